// Copyright 2020 gorse Project Authors
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

package base

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNaturalCompare(t *testing.T) {
	ids := []string{"10", "b", "2", "a", "1", "-3", "01"}
	slices.SortFunc(ids, NaturalCompare)
	assert.Equal(t, []string{"-3", "01", "1", "2", "10", "a", "b"}, ids)
	assert.Zero(t, NaturalCompare("7", "7"))
}
