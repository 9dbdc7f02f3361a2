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
	"slices"
)

type Neighbor struct {
	User       string
	Similarity float32
}

// TopNeighbors returns the k users most similar to user, user excluded. Ties keep the column
// order of the similarity matrix.
func TopNeighbors(s *SimilarityMatrix, user string, k int) []Neighbor {
	i, ok := s.Index(user)
	if !ok || k <= 0 {
		return nil
	}
	neighbors := make([]Neighbor, 0, s.Len()-1)
	for j, other := range s.Users() {
		if j != i {
			neighbors = append(neighbors, Neighbor{User: other, Similarity: s.At(i, j)})
		}
	}
	slices.SortStableFunc(neighbors, func(a, b Neighbor) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	if k < len(neighbors) {
		neighbors = neighbors[:k]
	}
	return neighbors
}
