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
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
)

// Unseen returns titles of the universe not rated by the query, in universe order.
func Unseen(q Query, universe []string) []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	for title := range q {
		seen.Add(title)
	}
	return lo.Filter(universe, func(title string, _ int) bool {
		return !seen.Contains(title)
	})
}
