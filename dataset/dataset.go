// Copyright 2024 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"github.com/gorse-io/flicks/base/log"
	"github.com/gorse-io/flicks/common/floats"
	"github.com/gorse-io/flicks/storage/data"
	"go.uber.org/zap"
)

type (
	Movie  = data.Movie
	Rating = data.Rating
)

// Dataset is the rating store: a catalog of movies with unique titles and the ratings
// observed on them. A movie whose title is already in the catalog becomes an alias of
// the first movie with that title.
type Dataset struct {
	movies  []Movie
	titles  map[string]string // item id -> title, aliases included
	ratings []Rating
	dict    *Dict // title -> index of movies
}

func NewDataset(movies []Movie, ratings []Rating) *Dataset {
	d := &Dataset{
		movies:  make([]Movie, 0, len(movies)),
		titles:  make(map[string]string, len(movies)),
		ratings: make([]Rating, 0, len(ratings)),
		dict:    NewDict(),
	}
	for _, movie := range movies {
		if _, exist := d.titles[movie.ItemId]; exist {
			log.Logger().Warn("duplicate movie id", zap.String("item_id", movie.ItemId))
			continue
		}
		d.titles[movie.ItemId] = movie.Title
		if _, exist := d.dict.Index(movie.Title); exist {
			log.Logger().Debug("alias movie with duplicate title",
				zap.String("item_id", movie.ItemId), zap.String("title", movie.Title))
			continue
		}
		d.dict.Id(movie.Title)
		d.movies = append(d.movies, movie)
	}
	for _, rating := range ratings {
		if !floats.IsFinite(rating.Rating) {
			log.Logger().Warn("skip non-finite rating",
				zap.String("user_id", rating.UserId), zap.String("item_id", rating.ItemId))
			continue
		}
		d.ratings = append(d.ratings, rating)
	}
	return d
}

// Movies returns the catalog in source order, one entry per title.
func (d *Dataset) Movies() []Movie {
	return d.movies
}

func (d *Dataset) CountMovies() int {
	return len(d.movies)
}

// Titles returns the titles of the catalog in source order.
func (d *Dataset) Titles() []string {
	titles := make([]string, len(d.movies))
	for i, movie := range d.movies {
		titles[i] = movie.Title
	}
	return titles
}

// Ratings returns every rating, including ratings of movies missing from the catalog.
func (d *Dataset) Ratings() []Rating {
	return d.ratings
}

func (d *Dataset) CountRatings() int {
	return len(d.ratings)
}

// Title resolves an item id, aliases included, to its title.
func (d *Dataset) Title(itemId string) (string, bool) {
	title, ok := d.titles[itemId]
	return title, ok
}

func (d *Dataset) HasTitle(title string) bool {
	_, ok := d.dict.Index(title)
	return ok
}

// Movie returns the catalog entry of a title.
func (d *Dataset) Movie(title string) (Movie, bool) {
	if i, ok := d.dict.Index(title); ok {
		return d.movies[i], true
	}
	return Movie{}, false
}
