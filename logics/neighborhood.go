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
	"cmp"
	"context"
	"slices"

	"github.com/gorse-io/flicks/common/parallel"
	"github.com/gorse-io/flicks/dataset"
	"github.com/juju/errors"
)

const neighborhoodEpsilon = 1e-10

// RecommendNeighborhood predicts ratings of unseen titles by the similarity weighted average of
// ratings from the k users most similar to the query. Titles rated by none of the neighbors are
// left out. At most n titles are returned, best first.
func RecommendNeighborhood(ctx context.Context, q Query, m *dataset.Matrix, k, n, jobs int) ([]Score, error) {
	if err := checkN(n); err != nil {
		return nil, err
	}
	if k < 0 {
		return nil, errors.NotValidf("k = %d", k)
	}
	similarity, err := ComputeSimilarity(ctx, m, q, jobs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	neighbors := TopNeighbors(similarity, similarity.QueryUser, k)
	columns := make([]int, len(neighbors))
	for i, neighbor := range neighbors {
		columns[i], _ = m.UserIndex(neighbor.User)
	}

	unseen := Unseen(q, m.Titles())
	scores := make([]Score, len(unseen))
	scored := make([]bool, len(unseen))
	err = parallel.For(ctx, len(unseen), jobs, func(jobId int) {
		row, _ := m.TitleIndex(unseen[jobId])
		var num, den float32
		for i, neighbor := range neighbors {
			if rating, ok := m.Get(row, columns[i]); ok {
				num += rating * neighbor.Similarity
				den += neighbor.Similarity
				scored[jobId] = true
			}
		}
		scores[jobId] = Score{Title: unseen[jobId], Score: num / (den + neighborhoodEpsilon)}
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	ranking := make([]Score, 0, len(unseen))
	for i, score := range scores {
		if scored[i] {
			ranking = append(ranking, score)
		}
	}
	return topN(ranking, n), nil
}

// topN sorts scores in descending order and keeps the first n. Ties keep their order.
func topN(scores []Score, n int) []Score {
	slices.SortStableFunc(scores, func(a, b Score) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if n < len(scores) {
		scores = scores[:n]
	}
	return scores
}
