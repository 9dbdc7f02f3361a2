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
	"slices"

	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/flicks/base"
	"github.com/gorse-io/flicks/common/floats"
	"github.com/samber/lo"
)

// Matrix is a dense item-by-user rating matrix. Rows are titles in ascending order, columns
// are user ids in natural order. A cell is meaningful only if it is marked present.
type Matrix struct {
	titles     []string
	users      []string
	titleIndex map[string]int
	userIndex  map[string]int
	values     [][]float32
	present    []*bitset.BitSet
}

// BuildMatrix joins ratings to the catalog and pivots them into an item-by-user matrix.
// Ratings of unknown items are dropped and repeated ratings of a title by the same user are
// averaged. If normalize is set, the mean of each user over present cells is subtracted.
func BuildMatrix(d *Dataset, normalize bool) *Matrix {
	type cell struct {
		title string
		user  string
	}
	sums := make(map[cell]float32)
	counts := make(map[cell]int)
	titleSet := make(map[string]struct{})
	userSet := make(map[string]struct{})
	for _, rating := range d.Ratings() {
		title, ok := d.Title(rating.ItemId)
		if !ok {
			continue
		}
		c := cell{title: title, user: rating.UserId}
		sums[c] += rating.Rating
		counts[c]++
		titleSet[title] = struct{}{}
		userSet[rating.UserId] = struct{}{}
	}

	titles := lo.Keys(titleSet)
	slices.Sort(titles)
	users := lo.Keys(userSet)
	slices.SortFunc(users, base.NaturalCompare)

	m := &Matrix{
		titles:     titles,
		users:      users,
		titleIndex: indexOf(titles),
		userIndex:  indexOf(users),
		values:     make([][]float32, len(titles)),
		present:    make([]*bitset.BitSet, len(titles)),
	}
	for i := range titles {
		m.values[i] = make([]float32, len(users))
		m.present[i] = bitset.New(uint(len(users)))
	}
	for c, sum := range sums {
		i, j := m.titleIndex[c.title], m.userIndex[c.user]
		m.values[i][j] = sum / float32(counts[c])
		m.present[i].Set(uint(j))
	}
	if normalize {
		m.center()
	}
	return m
}

func indexOf(names []string) map[string]int {
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}
	return index
}

// center subtracts the mean of every column over its present cells.
func (m *Matrix) center() {
	sums := make([]float32, len(m.users))
	counts := make([]int, len(m.users))
	for i := range m.titles {
		for j, ok := m.present[i].NextSet(0); ok; j, ok = m.present[i].NextSet(j + 1) {
			sums[j] += m.values[i][j]
			counts[j]++
		}
	}
	for j := range sums {
		if counts[j] > 0 {
			sums[j] /= float32(counts[j])
		}
	}
	for i := range m.titles {
		for j, ok := m.present[i].NextSet(0); ok; j, ok = m.present[i].NextSet(j + 1) {
			m.values[i][j] -= sums[j]
		}
	}
}

// Titles returns row names.
func (m *Matrix) Titles() []string {
	return m.titles
}

// Users returns column names.
func (m *Matrix) Users() []string {
	return m.users
}

// Shape returns the number of rows and columns.
func (m *Matrix) Shape() (int, int) {
	return len(m.titles), len(m.users)
}

func (m *Matrix) TitleIndex(title string) (int, bool) {
	i, ok := m.titleIndex[title]
	return i, ok
}

func (m *Matrix) UserIndex(user string) (int, bool) {
	j, ok := m.userIndex[user]
	return j, ok
}

// Get returns the value of a cell and whether it is present.
func (m *Matrix) Get(i, j int) (float32, bool) {
	if !m.IsPresent(i, j) {
		return 0, false
	}
	return m.values[i][j], true
}

// IsPresent reports whether cell (i, j) holds an observed rating.
func (m *Matrix) IsPresent(i, j int) bool {
	return m.present[i].Test(uint(j))
}

// Column returns a copy of the ratings of a user with absent cells set to zero.
func (m *Matrix) Column(j int) []float32 {
	column := make([]float32, len(m.titles))
	for i := range m.titles {
		column[i] = m.values[i][j]
	}
	return column
}

// Count returns the number of present cells.
func (m *Matrix) Count() int {
	var n int
	for _, row := range m.present {
		n += int(row.Count())
	}
	return n
}

// UserItems returns a dense user-by-item copy with absent cells set to fill.
func (m *Matrix) UserItems(fill float32) [][]float32 {
	dense := make([][]float32, len(m.users))
	for j := range dense {
		dense[j] = make([]float32, len(m.titles))
		floats.AddConst(dense[j], fill)
	}
	for i := range m.titles {
		for j, ok := m.present[i].NextSet(0); ok; j, ok = m.present[i].NextSet(j + 1) {
			dense[j][i] = m.values[i][j]
		}
	}
	return dense
}
