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
	"context"
	"fmt"
	"strconv"

	"github.com/chewxy/math32"
	"github.com/gorse-io/flicks/common/floats"
	"github.com/gorse-io/flicks/common/parallel"
	"github.com/gorse-io/flicks/dataset"
	"github.com/juju/errors"
)

// SimilarityMatrix is the cosine similarity between users of a rating matrix and the query
// user, which is the last user.
type SimilarityMatrix struct {
	QueryUser string
	users     []string
	index     map[string]int
	values    [][]float32
}

// ComputeSimilarity appends the query as a new user to the rating matrix and computes cosine
// similarity between every pair of users. Absent ratings count as zero, so a user with no
// ratings is similar to nobody.
func ComputeSimilarity(ctx context.Context, m *dataset.Matrix, q Query, jobs int) (*SimilarityMatrix, error) {
	if err := q.checkFinite(); err != nil {
		return nil, err
	}
	queryUser := newQueryUser(m)
	users := append(append(make([]string, 0, len(m.Users())+1), m.Users()...), queryUser)

	// columns of the rating matrix
	vectors := make([][]float32, len(users))
	for j := 0; j < len(users)-1; j++ {
		vectors[j] = m.Column(j)
	}
	queryVector := make([]float32, len(m.Titles()))
	for title, rating := range q {
		if i, ok := m.TitleIndex(title); ok {
			queryVector[i] = rating
		}
	}
	vectors[len(users)-1] = queryVector
	norms := make([]float32, len(users))
	for j, vector := range vectors {
		norms[j] = floats.Norm(vector)
	}

	s := &SimilarityMatrix{
		QueryUser: queryUser,
		users:     users,
		index:     make(map[string]int, len(users)),
		values:    make([][]float32, len(users)),
	}
	for j, user := range users {
		s.index[user] = j
		s.values[j] = make([]float32, len(users))
		s.values[j][j] = 1
	}
	// row i fills the upper triangle and its mirror
	err := parallel.For(ctx, len(users), jobs, func(i int) {
		for j := i + 1; j < len(users); j++ {
			var similarity float32
			if norms[i] > 0 && norms[j] > 0 {
				similarity = floats.Dot(vectors[i], vectors[j]) / (norms[i] * norms[j])
				similarity = math32.Max(-1, math32.Min(1, similarity))
			}
			s.values[i][j] = similarity
			s.values[j][i] = similarity
		}
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return s, nil
}

// newQueryUser picks an id that no user of the matrix has. It follows numeric ids if the
// largest id is numeric.
func newQueryUser(m *dataset.Matrix) string {
	users := m.Users()
	candidate := "query"
	if len(users) > 0 {
		if last, err := strconv.ParseInt(users[len(users)-1], 10, 64); err == nil {
			candidate = strconv.FormatInt(last+1, 10)
		}
	}
	for n := 1; ; n++ {
		if _, exist := m.UserIndex(candidate); !exist {
			return candidate
		}
		candidate = fmt.Sprintf("query-%d", n)
	}
}

// Users returns users in column order, the query user last.
func (s *SimilarityMatrix) Users() []string {
	return s.users
}

func (s *SimilarityMatrix) Len() int {
	return len(s.users)
}

func (s *SimilarityMatrix) At(i, j int) float32 {
	return s.values[i][j]
}

// Similarity between two users.
func (s *SimilarityMatrix) Similarity(a, b string) (float32, bool) {
	i, ok := s.index[a]
	if !ok {
		return 0, false
	}
	j, ok := s.index[b]
	if !ok {
		return 0, false
	}
	return s.values[i][j], true
}

func (s *SimilarityMatrix) Index(user string) (int, bool) {
	i, ok := s.index[user]
	return i, ok
}
