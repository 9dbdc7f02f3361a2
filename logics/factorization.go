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
	"github.com/gorse-io/flicks/model/nmf"
	"github.com/juju/errors"
)

// RecommendFactorization predicts ratings of every title of the model vocabulary from the
// query. Titles the query does not rate are filled with the neutral rating before projection.
// Every title of the query is removed from the ranking, and at most n titles are returned.
func RecommendFactorization(q Query, model nmf.Model, n int, neutralRating float32) ([]Score, error) {
	if err := checkN(n); err != nil {
		return nil, err
	}
	if err := q.checkFinite(); err != nil {
		return nil, err
	}
	if model == nil {
		return nil, errors.NotProvisionedf("factorization model")
	}
	vocabulary := model.Vocabulary()
	row := make([]float32, len(vocabulary))
	for i, title := range vocabulary {
		if rating, ok := q[title]; ok {
			row[i] = rating
		} else {
			row[i] = neutralRating
		}
	}
	predictions := model.Reconstruct(model.Transform(row))
	scores := make([]Score, len(vocabulary))
	for i, title := range vocabulary {
		scores[i] = Score{Title: title, Score: predictions[i]}
	}
	scores = topN(scores, len(scores))
	ranking := make([]Score, 0, n)
	for _, score := range scores {
		if len(ranking) >= n {
			break
		}
		if _, rated := q[score.Title]; !rated {
			ranking = append(ranking, score)
		}
	}
	return ranking, nil
}
