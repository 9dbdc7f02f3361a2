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
	"math"
	"testing"

	"github.com/gorse-io/flicks/common/floats"
	"github.com/gorse-io/flicks/model/nmf"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

// fixedModel projects every row onto the same factors.
type fixedModel struct {
	vocabulary []string
	itemFactor [][]float32
	factors    []float32
	rows       [][]float32
}

func (m *fixedModel) Vocabulary() []string {
	return m.vocabulary
}

func (m *fixedModel) Transform(row []float32) []float32 {
	m.rows = append(m.rows, row)
	return m.factors
}

func (m *fixedModel) Reconstruct(factors []float32) []float32 {
	predictions := make([]float32, len(m.itemFactor))
	for i := range m.itemFactor {
		predictions[i] = floats.Dot(m.itemFactor[i], factors)
	}
	return predictions
}

func newFixedModel() *fixedModel {
	return &fixedModel{
		vocabulary: []string{"A", "B", "C", "D"},
		itemFactor: [][]float32{{1, 0}, {0, 1}, {1, 1}, {2, 1}},
		factors:    []float32{1, 2},
	}
}

func TestRecommendFactorization(t *testing.T) {
	model := newFixedModel()
	scores, err := RecommendFactorization(Query{"D": 3}, model, 1, 3)
	assert.NoError(t, err)
	// predictions are A=1, B=2, C=3, D=4 and D is rated
	assert.Equal(t, []Score{{Title: "C", Score: 3}}, scores)
	assert.Equal(t, [][]float32{{3, 3, 3, 3}}, model.rows)

	scores, err = RecommendFactorization(Query{"A": 5, "Z": 1}, model, 10, 2.5)
	assert.NoError(t, err)
	assert.Equal(t, []string{"D", "C", "B"}, Titles(scores))
	assert.Equal(t, []float32{5, 2.5, 2.5, 2.5}, model.rows[1])

	_, err = RecommendFactorization(Query{"A": 5}, model, 0, 3)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = RecommendFactorization(Query{"A": float32(math.NaN())}, model, 1, 3)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = RecommendFactorization(Query{"A": 5}, nil, 1, 3)
	assert.True(t, errors.Is(err, errors.NotProvisioned))
}

func TestRecommendFactorization_NMF(t *testing.T) {
	model, err := nmf.NewNMFWithFactors([]string{"A", "B", "C", "D"},
		[][]float32{{1, 0}, {0, 1}, {1, 1}, {2, 1}}, nil)
	assert.NoError(t, err)
	for _, q := range []Query{{"A": 5}, {"B": 0.5, "C": 4}, {}} {
		scores, err := RecommendFactorization(q, model, 2, 3)
		assert.NoError(t, err)
		assert.LessOrEqual(t, len(scores), 2)
		for _, score := range scores {
			assert.NotContains(t, q, score.Title)
		}
		for i := 1; i < len(scores); i++ {
			assert.GreaterOrEqual(t, scores[i-1].Score, scores[i].Score)
		}
	}
	// D has the largest item factors
	scores, err := RecommendFactorization(Query{}, model, 1, 3)
	assert.NoError(t, err)
	assert.Equal(t, []string{"D"}, Titles(scores))
}
