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

package nmf

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/chewxy/math32"
	"github.com/gorse-io/flicks/base/encoding"
	"github.com/gorse-io/flicks/dataset"
	"github.com/gorse-io/flicks/model"
	"github.com/gorse-io/flicks/storage/blob"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const delta = 0.05

var (
	testVocabulary = []string{"A", "B", "C", "D"}
	testItemFactor = [][]float32{{1, 0}, {0, 1}, {1, 1}, {2, 1}}
)

func newTestNMF(t *testing.T) *NMF {
	nmf, err := NewNMFWithFactors(testVocabulary, testItemFactor, model.Params{model.TransformEpochs: 1000})
	assert.NoError(t, err)
	return nmf
}

func TestNMF_Transform(t *testing.T) {
	nmf := newTestNMF(t)
	assert.Equal(t, testVocabulary, nmf.Vocabulary())
	assert.Equal(t, 2, nmf.NFactors())
	// x = H·(1, 2) has an exact non-negative solution
	factors := nmf.Transform([]float32{1, 2, 3, 4})
	assert.InDelta(t, 1, factors[0], delta)
	assert.InDelta(t, 2, factors[1], delta)
	for _, v := range nmf.Transform([]float32{5, 0, 0, 0}) {
		assert.GreaterOrEqual(t, v, float32(0))
	}
	// transform is deterministic
	assert.Equal(t, nmf.Transform([]float32{3, 3, 3, 5}), nmf.Transform([]float32{3, 3, 3, 5}))
	assert.Equal(t, []float32{0, 0}, nmf.Transform([]float32{0, 0, 0, 0}))
	assert.Panics(t, func() { nmf.Transform([]float32{1}) })
}

func TestNMF_SetTransformEpochs(t *testing.T) {
	nmf := newTestNMF(t)
	nmf.SetTransformEpochs(1)
	assert.Equal(t, 1, nmf.Params.GetInt(model.TransformEpochs, 0))
	assert.Equal(t, 2, nmf.NFactors())
	// a single update from the constant start leaves the exact solution far away
	factors := nmf.Transform([]float32{1, 2, 3, 4})
	assert.Len(t, factors, 2)
	assert.Greater(t, math32.Abs(factors[0]-1)+math32.Abs(factors[1]-2), float32(delta))
}

func TestNMF_Reconstruct(t *testing.T) {
	nmf := newTestNMF(t)
	assert.Equal(t, []float32{2, 1, 3, 5}, nmf.Reconstruct([]float32{2, 1}))
}

func TestNewNMFWithFactors(t *testing.T) {
	_, err := NewNMFWithFactors([]string{"A"}, testItemFactor, nil)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = NewNMFWithFactors([]string{"A", "B"}, [][]float32{{1, 0}, {1}}, nil)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = NewNMFWithFactors([]string{"A"}, [][]float32{{-1, 0}}, nil)
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.True(t, NewNMF(nil).Invalid())
	assert.False(t, newTestNMF(t).Invalid())
}

func newTestMatrix() *dataset.Matrix {
	var ratings []dataset.Rating
	values := [][]float32{
		{5, 4, 0, 1},
		{4, 5, 1, 0},
		{1, 0, 5, 4},
		{0, 1, 4, 5},
		{5, 5, 1, 1},
	}
	for u, row := range values {
		for i, v := range row {
			ratings = append(ratings, dataset.Rating{
				UserId: string(rune('1' + u)),
				ItemId: testVocabulary[i],
				Rating: v,
			})
		}
	}
	var movies []dataset.Movie
	for _, title := range testVocabulary {
		movies = append(movies, dataset.Movie{ItemId: title, Title: title})
	}
	return dataset.BuildMatrix(dataset.NewDataset(movies, ratings), false)
}

func TestNMF_Fit(t *testing.T) {
	m := newTestMatrix()
	params := model.Params{model.NFactors: 2, model.NEpochs: 500, model.RandomState: int64(42)}
	nmf := NewNMF(params)
	assert.NoError(t, nmf.Fit(context.Background(), m, 2))
	assert.Equal(t, testVocabulary, nmf.Vocabulary())
	assert.Less(t, nmf.rmse(m.UserItems(3)), float32(1))
	for _, factor := range nmf.ItemFactor {
		for _, v := range factor {
			assert.GreaterOrEqual(t, v, float32(0))
		}
	}
	// the first user prefers A over C
	prediction := nmf.Reconstruct(nmf.UserFactor[0])
	assert.Greater(t, prediction[0], prediction[2])

	// same seed, same model
	other := NewNMF(params)
	assert.NoError(t, other.Fit(context.Background(), m, 1))
	assert.Equal(t, nmf.ItemFactor, other.ItemFactor)

	// normalized matrices are rejected
	d := dataset.NewDataset(
		[]dataset.Movie{{ItemId: "1", Title: "A"}, {ItemId: "2", Title: "B"}},
		[]dataset.Rating{{UserId: "1", ItemId: "1", Rating: 1}, {UserId: "1", ItemId: "2", Rating: 5}})
	err := NewNMF(params).Fit(context.Background(), dataset.BuildMatrix(d, true), 1)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestNMF_Marshal(t *testing.T) {
	nmf := NewNMF(model.Params{model.NFactors: 2, model.NEpochs: 10, model.RandomState: int64(1)})
	assert.NoError(t, nmf.Fit(context.Background(), newTestMatrix(), 1))
	buf := bytes.NewBuffer(nil)
	assert.NoError(t, nmf.Marshal(buf))
	var copied NMF
	assert.NoError(t, copied.Unmarshal(buf))
	assert.Equal(t, nmf.Vocabulary(), copied.Vocabulary())
	assert.Equal(t, nmf.ItemFactor, copied.ItemFactor)
	assert.Equal(t, nmf.UserFactor, copied.UserFactor)
	assert.Equal(t, nmf.gram, copied.gram)
	assert.Equal(t, 10, copied.nEpochs)
	row := []float32{5, 3, 3, 1}
	assert.Equal(t, nmf.Transform(row), copied.Transform(row))

	// unknown model
	var unknown NMF
	assert.True(t, errors.Is(unknown.Unmarshal(bytes.NewBufferString("\x03\x00\x00\x00als")), errors.NotValid))
}

func TestNMF_UnmarshalCorrupted(t *testing.T) {
	header := func(t *testing.T) *bytes.Buffer {
		buf := bytes.NewBuffer(nil)
		assert.NoError(t, encoding.WriteString(buf, modelName))
		assert.NoError(t, encoding.WriteGob(buf, model.Params{model.NFactors: 2}))
		return buf
	}

	// huge vocabulary count
	buf := header(t)
	assert.NoError(t, binary.Write(buf, binary.LittleEndian, int64(1<<62)))
	assert.NoError(t, encoding.WriteString(buf, "A"))
	assert.Error(t, new(NMF).Unmarshal(buf))

	// huge number of factors
	buf = header(t)
	assert.NoError(t, encoding.WriteStrings(buf, []string{"A"}))
	assert.NoError(t, binary.Write(buf, binary.LittleEndian, []int64{1, 1 << 40}))
	assert.True(t, errors.Is(new(NMF).Unmarshal(buf), errors.NotValid))

	// huge number of users
	buf = header(t)
	assert.NoError(t, encoding.WriteStrings(buf, []string{"A"}))
	assert.NoError(t, binary.Write(buf, binary.LittleEndian, []int64{1 << 40, 2}))
	assert.NoError(t, encoding.WriteMatrix(buf, [][]float32{{1, 2}, {3, 4}}))
	assert.Error(t, new(NMF).Unmarshal(buf))
	// negative item factors
	buf = header(t)
	assert.NoError(t, encoding.WriteStrings(buf, []string{"A"}))
	assert.NoError(t, binary.Write(buf, binary.LittleEndian, []int64{0, 2}))
	assert.NoError(t, encoding.WriteMatrix(buf, [][]float32{{1, -2}}))
	assert.True(t, errors.Is(new(NMF).Unmarshal(buf), errors.NotValid))
}

type StoreTestSuite struct {
	suite.Suite
	store blob.Store
}

func (suite *StoreTestSuite) SetupTest() {
	suite.store = blob.NewPOSIX(suite.T().TempDir())
}

func (suite *StoreTestSuite) TestSaveLoad() {
	ctx := context.Background()
	nmf, err := NewNMFWithFactors(testVocabulary, testItemFactor, model.Params{model.RandomState: int64(42)})
	suite.NoError(err)
	suite.NoError(Save(ctx, suite.store, "nmf_29_42_1111", nmf))
	loaded, err := Load(ctx, suite.store, "nmf_29_42_1111")
	suite.NoError(err)
	suite.Equal(testVocabulary, loaded.Vocabulary())
	suite.Equal(testItemFactor, loaded.ItemFactor)
	suite.Equal(nmf.Reconstruct([]float32{1, 1}), loaded.Reconstruct([]float32{1, 1}))
}

func (suite *StoreTestSuite) TestLoadMissing() {
	_, err := Load(context.Background(), suite.store, "nmf_29_42_1111")
	suite.True(errors.Is(err, errors.NotFound))
	suite.Contains(err.Error(), "nmf_29_42_1111")
}

func (suite *StoreTestSuite) TestLoadCorrupted() {
	ctx := context.Background()
	w, err := suite.store.Create(ctx, "broken")
	suite.NoError(err)
	_, err = w.Write([]byte{0x03, 0x00, 0x00, 0x00, 'n'})
	suite.NoError(err)
	suite.NoError(w.Close())
	_, err = Load(ctx, suite.store, "broken")
	suite.Error(err)

	// a length prefix far beyond the artifact
	w, err = suite.store.Create(ctx, "huge")
	suite.NoError(err)
	_, err = w.Write([]byte{0xff, 0xff, 0xff, 0x7f, 'n', 'm', 'f'})
	suite.NoError(err)
	suite.NoError(w.Close())
	_, err = Load(ctx, suite.store, "huge")
	suite.Error(err)
}

func TestStore(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
