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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gorse-io/flicks/base"
	"github.com/gorse-io/flicks/base/log"
	"github.com/gorse-io/flicks/common/floats"
	"github.com/gorse-io/flicks/config"
	"github.com/gorse-io/flicks/storage/data"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const maxLineSize = 1024 * 1024

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return sc
}

func isBlank(fields []string) bool {
	return len(fields) == 1 && strings.TrimSpace(fields[0]) == ""
}

// ReadMovies reads a catalog in the format of MovieLens movies.csv: movieId,title,genres.
// The header line is optional and genres are separated by '|'.
func ReadMovies(r io.Reader) ([]Movie, error) {
	var (
		movies []Movie
		err    error
	)
	parseErr := base.ReadLines(newScanner(r), ",", func(lineNumber int, fields []string) bool {
		if lineNumber == 0 && len(fields) > 0 && fields[0] == "movieId" {
			return true
		}
		if isBlank(fields) {
			return true
		}
		if len(fields) < 2 {
			err = errors.NotValidf("line %d has %d fields, movie", lineNumber+1, len(fields))
			return false
		}
		itemId := strings.TrimSpace(fields[0])
		if err = base.ValidateId(itemId); err != nil {
			err = errors.NewNotValid(err, fmt.Sprintf("line %d", lineNumber+1))
			return false
		}
		movie := Movie{ItemId: itemId, Title: fields[1], Genres: []string{}}
		if len(fields) > 2 && fields[2] != "" {
			movie.Genres = strings.Split(fields[2], "|")
		}
		movies = append(movies, movie)
		return true
	})
	if parseErr != nil {
		return nil, errors.Trace(parseErr)
	}
	if err != nil {
		return nil, err
	}
	return movies, nil
}

// ReadRatings reads ratings in the format of MovieLens ratings.csv: userId,movieId,rating,timestamp.
// The header line is optional. Timestamps are parsed by dateparse, so unix seconds are accepted.
func ReadRatings(r io.Reader) ([]Rating, error) {
	var (
		ratings []Rating
		err     error
	)
	parseErr := base.ReadLines(newScanner(r), ",", func(lineNumber int, fields []string) bool {
		if lineNumber == 0 && len(fields) > 0 && fields[0] == "userId" {
			return true
		}
		if isBlank(fields) {
			return true
		}
		if len(fields) < 3 {
			err = errors.NotValidf("line %d has %d fields, rating", lineNumber+1, len(fields))
			return false
		}
		rating := Rating{
			UserId: strings.TrimSpace(fields[0]),
			ItemId: strings.TrimSpace(fields[1]),
		}
		if err = base.ValidateId(rating.UserId); err != nil {
			err = errors.NewNotValid(err, fmt.Sprintf("line %d", lineNumber+1))
			return false
		}
		if err = base.ValidateId(rating.ItemId); err != nil {
			err = errors.NewNotValid(err, fmt.Sprintf("line %d", lineNumber+1))
			return false
		}
		value, parseErr := strconv.ParseFloat(strings.TrimSpace(fields[2]), 32)
		if parseErr != nil {
			err = errors.NewNotValid(parseErr, fmt.Sprintf("line %d", lineNumber+1))
			return false
		}
		rating.Rating = float32(value)
		if !floats.IsFinite(rating.Rating) {
			err = errors.NotValidf("line %d: rating %v", lineNumber+1, value)
			return false
		}
		if len(fields) > 3 && strings.TrimSpace(fields[3]) != "" {
			if rating.Timestamp, err = parseTimestamp(strings.TrimSpace(fields[3])); err != nil {
				err = errors.NewNotValid(err, fmt.Sprintf("line %d", lineNumber+1))
				return false
			}
		}
		ratings = append(ratings, rating)
		return true
	})
	if parseErr != nil {
		return nil, errors.Trace(parseErr)
	}
	if err != nil {
		return nil, err
	}
	return ratings, nil
}

// parseTimestamp accepts unix seconds of any width, then the layouts known to dateparse.
func parseTimestamp(text string) (time.Time, error) {
	if seconds, err := strconv.ParseInt(text, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}
	timestamp, err := dateparse.ParseIn(text, time.UTC)
	if err != nil {
		return time.Time{}, errors.Trace(err)
	}
	return timestamp.UTC(), nil
}

// LoadCSV loads the rating store from MovieLens style CSV files.
func LoadCSV(moviePath, ratingPath string) (*Dataset, error) {
	start := time.Now()
	movies, err := readFile(moviePath, ReadMovies)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to load movies from %s", moviePath)
	}
	ratings, err := readFile(ratingPath, ReadRatings)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to load ratings from %s", ratingPath)
	}
	d := NewDataset(movies, ratings)
	log.Logger().Info("load dataset from csv",
		zap.String("movie_path", moviePath),
		zap.String("rating_path", ratingPath),
		zap.Int("n_movies", d.CountMovies()),
		zap.Int("n_ratings", d.CountRatings()),
		zap.Duration("used_time", time.Since(start)))
	return d, nil
}

func readFile[T any](path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	return read(file)
}

// LoadDatabase loads the rating store from a data store.
func LoadDatabase(ctx context.Context, database data.Database) (*Dataset, error) {
	start := time.Now()
	movies, err := database.GetMovies(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "failed to load movies from database")
	}
	ratings, err := database.GetRatings(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "failed to load ratings from database")
	}
	for _, rating := range ratings {
		if !floats.IsFinite(rating.Rating) {
			return nil, errors.NotValidf("rating %v of user %s on item %s", rating.Rating, rating.UserId, rating.ItemId)
		}
	}
	d := NewDataset(movies, ratings)
	log.Logger().Info("load dataset from database",
		zap.Int("n_movies", d.CountMovies()),
		zap.Int("n_ratings", d.CountRatings()),
		zap.Duration("used_time", time.Since(start)))
	return d, nil
}

// Load opens the rating store configured by cfg: the data store if one is set, otherwise the
// CSV files.
func Load(ctx context.Context, cfg *config.Config) (*Dataset, error) {
	if cfg.Database.DataStore == "" {
		return LoadCSV(cfg.Dataset.MoviePath, cfg.Dataset.RatingPath)
	}
	database, err := data.Open(cfg.Database.DataStore, cfg.Database.TablePrefix)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to connect data store %s", log.RedactDBURL(cfg.Database.DataStore))
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Logger().Warn("failed to close data store", zap.Error(err))
		}
	}()
	return LoadDatabase(ctx, database)
}
