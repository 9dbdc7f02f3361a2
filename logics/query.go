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

package logics

import (
	"maps"
	"slices"

	"github.com/gorse-io/flicks/common/floats"
	"github.com/juju/errors"
)

// Query holds the ratings of one out-of-sample user, keyed by title.
type Query map[string]float32

// DefaultQuery returns a fresh copy of the built-in sample ratings.
func DefaultQuery() Query {
	return Query{
		"Iron Man 2 (2010)":                     4.5,
		"22 Jump Street (2014)":                 4,
		"Over the Hedge (2006)":                 4,
		"Mission: Impossible (1996)":            3.4,
		"Frozen (2013)":                         4,
		"Saw (2004)":                            4.5,
		"Jumanji: Welcome to the Jungle (2017)": 0.5,
		"Asterix & Obelix vs. Caesar (Astérix et Obélix contre César) (1999)": 0.5,
		"Forrest Gump (1994)":                                   3.5,
		"Gladiator (2000)":                                      2.5,
		"Lord of the Rings: The Fellowship of the Ring, The (2001)": 4,
		"Dark Knight, The (2008)":                               5,
		"Lord of the Rings: The Return of the King, The (2003)": 3.7,
		"Inception (2010)":                                      5,
		"Shutter Island (2010)":                                 4.5,
		"City of God (Cidade de Deus) (2002)":                   3,
		"Lord of the Rings: The Two Towers, The (2002)":         4,
		"Dark Knight Rises, The (2012)":                         5,
		"Braveheart (1995)":                                     4.5,
		"Inglourious Basterds (2009)":                           4.5,
	}
}

// Titles returns rated titles in ascending order.
func (q Query) Titles() []string {
	return slices.Sorted(maps.Keys(q))
}

// checkFinite rejects NaN and infinite ratings.
func (q Query) checkFinite() error {
	for title, rating := range q {
		if !floats.IsFinite(rating) {
			return errors.NotValidf("rating %v of %q", rating, title)
		}
	}
	return nil
}

// Validate rejects non-finite ratings and ratings outside [minRating, maxRating].
func (q Query) Validate(minRating, maxRating float32) error {
	if err := q.checkFinite(); err != nil {
		return err
	}
	for title, rating := range q {
		if rating < minRating || rating > maxRating {
			return errors.NotValidf("rating %v of %q out of range [%v, %v]", rating, title, minRating, maxRating)
		}
	}
	return nil
}

// Score is a predicted rating of a title.
type Score struct {
	Title string  `json:"title"`
	Score float32 `json:"score"`
}

// Titles strips scores off a ranking.
func Titles(scores []Score) []string {
	titles := make([]string, len(scores))
	for i, score := range scores {
		titles[i] = score.Title
	}
	return titles
}

func checkN(n int) error {
	if n <= 0 {
		return errors.NotValidf("n = %d", n)
	}
	return nil
}
