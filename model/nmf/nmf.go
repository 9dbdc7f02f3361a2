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
	"context"
	"encoding/binary"
	"io"
	"time"

	"github.com/chewxy/math32"
	"github.com/gorse-io/flicks/base"
	"github.com/gorse-io/flicks/base/encoding"
	"github.com/gorse-io/flicks/base/log"
	"github.com/gorse-io/flicks/common/floats"
	"github.com/gorse-io/flicks/common/parallel"
	"github.com/gorse-io/flicks/dataset"
	"github.com/gorse-io/flicks/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

const (
	modelName = "nmf"
	epsilon   = 1e-10
)

// Model is a trained latent factor model. It is read-only and safe for concurrent use.
type Model interface {
	// Vocabulary returns the ordered items of the model.
	Vocabulary() []string
	// Transform projects a row over the vocabulary into the factor space.
	Transform(row []float32) []float32
	// Reconstruct predicts a rating for every item of the vocabulary from factors.
	Reconstruct(factors []float32) []float32
}

// NMF is a non-negative matrix factorization X ≈ W·Hᵀ of a user-by-item rating matrix[1].
// W holds user factors and H holds item factors. Both are non-negative.
//
// Hyper-parameters:
//
//	NFactors        - The number of latent factors. Default is 29.
//	NEpochs         - The number of multiplicative updates in Fit. Default is 200.
//	TransformEpochs - The number of multiplicative updates in Transform. Default is 200.
//	RandomState     - The seed of initial factors. Default is 42.
//	InitLow         - The lower bound of initial factors. Default is 0.
//	InitHigh        - The upper bound of initial factors. Default is 1.
//	NeutralRating   - The rating filled into absent cells. Default is 3.
//
// [1] Lee, Daniel D., and H. Sebastian Seung. "Algorithms for non-negative matrix
// factorization." Advances in neural information processing systems 13 (2000).
type NMF struct {
	model.Params
	vocabulary []string
	ItemFactor [][]float32 // h_i
	UserFactor [][]float32 // w_u
	gram       [][]float32 // HᵀH

	nFactors        int
	nEpochs         int
	transformEpochs int
	randomState     int64
	initLow         float32
	initHigh        float32
	neutralRating   float32
}

// NewNMF creates an untrained model.
func NewNMF(params model.Params) *NMF {
	nmf := new(NMF)
	nmf.SetParams(params)
	return nmf
}

// NewNMFWithFactors creates a model from trained item factors.
func NewNMFWithFactors(vocabulary []string, itemFactor [][]float32, params model.Params) (*NMF, error) {
	nmf := NewNMF(params)
	if len(vocabulary) != len(itemFactor) {
		return nil, errors.NotValidf("%d items with %d item factors", len(vocabulary), len(itemFactor))
	}
	if len(itemFactor) > 0 {
		nmf.nFactors = len(itemFactor[0])
		nmf.Params[model.NFactors] = nmf.nFactors
	}
	for _, factor := range itemFactor {
		if len(factor) != nmf.nFactors {
			return nil, errors.NotValidf("item factor of length %d, expect %d", len(factor), nmf.nFactors)
		}
	}
	if err := checkFactors(itemFactor); err != nil {
		return nil, err
	}
	nmf.vocabulary = vocabulary
	nmf.ItemFactor = itemFactor
	nmf.computeGram()
	return nmf, nil
}

// checkFactors rejects negative and non-finite factors.
func checkFactors(factors [][]float32) error {
	for _, factor := range factors {
		for _, v := range factor {
			if v < 0 || !floats.IsFinite(v) {
				return errors.NotValidf("item factor %v", v)
			}
		}
	}
	return nil
}

func (nmf *NMF) SetParams(params model.Params) {
	nmf.Params = params.Copy()
	nmf.nFactors = nmf.Params.GetInt(model.NFactors, 29)
	nmf.nEpochs = nmf.Params.GetInt(model.NEpochs, 200)
	nmf.transformEpochs = nmf.Params.GetInt(model.TransformEpochs, 200)
	nmf.randomState = nmf.Params.GetInt64(model.RandomState, 42)
	nmf.initLow = nmf.Params.GetFloat32(model.InitLow, 0)
	nmf.initHigh = nmf.Params.GetFloat32(model.InitHigh, 1)
	nmf.neutralRating = nmf.Params.GetFloat32(model.NeutralRating, 3)
}

// SetTransformEpochs changes the number of updates run by Transform without touching the factors.
func (nmf *NMF) SetTransformEpochs(n int) {
	nmf.SetParams(nmf.Params.Overwrite(model.Params{model.TransformEpochs: n}))
}

func (nmf *NMF) Vocabulary() []string {
	return nmf.vocabulary
}

func (nmf *NMF) NFactors() int {
	return nmf.nFactors
}

// Invalid reports whether the model has not been trained or loaded.
func (nmf *NMF) Invalid() bool {
	return nmf == nil || nmf.ItemFactor == nil
}

// Transform solves min ||x - w·Hᵀ||² subject to w ≥ 0 with H fixed. It starts from a constant
// vector, so the result only depends on x.
func (nmf *NMF) Transform(row []float32) []float32 {
	if len(row) != len(nmf.vocabulary) {
		panic("nmf: row length does not match vocabulary")
	}
	// numerator Hᵀx is constant over iterations
	num := make([]float32, nmf.nFactors)
	for i, x := range row {
		if x != 0 {
			floats.MulConstAdd(nmf.ItemFactor[i], x, num)
		}
	}
	w := make([]float32, nmf.nFactors)
	if nmf.nFactors == 0 {
		return w
	}
	floats.AddConst(w, math32.Sqrt(math32.Max(floats.Mean(row), 0)/float32(nmf.nFactors)))
	den := make([]float32, nmf.nFactors)
	for epoch := 0; epoch < nmf.transformEpochs; epoch++ {
		for k := range den {
			den[k] = floats.Dot(nmf.gram[k], w) + epsilon
		}
		for k := range w {
			w[k] *= num[k] / den[k]
		}
	}
	return w
}

// Reconstruct returns w·Hᵀ.
func (nmf *NMF) Reconstruct(factors []float32) []float32 {
	predictions := make([]float32, len(nmf.ItemFactor))
	for i, factor := range nmf.ItemFactor {
		predictions[i] = floats.Dot(factor, factors)
	}
	return predictions
}

func (nmf *NMF) computeGram() {
	nmf.gram = make([][]float32, nmf.nFactors)
	for k := range nmf.gram {
		nmf.gram[k] = make([]float32, nmf.nFactors)
	}
	for _, factor := range nmf.ItemFactor {
		for k := range factor {
			floats.MulConstAdd(factor, factor[k], nmf.gram[k])
		}
	}
}

// Fit trains the model on a rating matrix with absent cells filled by the neutral rating.
// Ratings must be non-negative, so the matrix must not be normalized.
func (nmf *NMF) Fit(ctx context.Context, m *dataset.Matrix, jobs int) error {
	x := m.UserItems(nmf.neutralRating)
	for _, row := range x {
		for _, v := range row {
			if v < 0 {
				return errors.NotValidf("negative rating %v", v)
			}
		}
	}
	nUsers, nItems := len(x), len(m.Titles())
	log.Logger().Info("fit nmf",
		zap.Int("n_users", nUsers),
		zap.Int("n_items", nItems),
		zap.Int("n_factors", nmf.nFactors),
		zap.Int("n_epochs", nmf.nEpochs))
	start := time.Now()

	rng := base.NewRandomGenerator(nmf.randomState)
	nmf.vocabulary = m.Titles()
	nmf.UserFactor = rng.UniformMatrix(nUsers, nmf.nFactors, nmf.initLow, nmf.initHigh)
	nmf.ItemFactor = rng.UniformMatrix(nItems, nmf.nFactors, nmf.initLow, nmf.initHigh)
	xt := transpose(x, nItems)

	for epoch := 1; epoch <= nmf.nEpochs; epoch++ {
		// W ← W ⊙ (XH) / (W·HᵀH)
		if err := update(ctx, nmf.UserFactor, nmf.ItemFactor, x, jobs); err != nil {
			return errors.Trace(err)
		}
		// H ← H ⊙ (XᵀW) / (H·WᵀW)
		if err := update(ctx, nmf.ItemFactor, nmf.UserFactor, xt, jobs); err != nil {
			return errors.Trace(err)
		}
		if epoch%10 == 0 || epoch == nmf.nEpochs {
			log.Logger().Debug("fit nmf", zap.Int("epoch", epoch), zap.Float32("rmse", nmf.rmse(x)))
		}
	}
	nmf.computeGram()
	log.Logger().Info("fit nmf complete",
		zap.Float32("rmse", nmf.rmse(x)),
		zap.Duration("used_time", time.Since(start)))
	return nil
}

// update applies a multiplicative update to factors a given the fixed factors b and data
// x ≈ a·bᵀ.
func update(ctx context.Context, a, b, x [][]float32, jobs int) error {
	nFactors := 0
	if len(b) > 0 {
		nFactors = len(b[0])
	}
	gram := make([][]float32, nFactors)
	for k := range gram {
		gram[k] = make([]float32, nFactors)
	}
	for _, factor := range b {
		for k := range factor {
			floats.MulConstAdd(factor, factor[k], gram[k])
		}
	}
	return parallel.For(ctx, len(a), jobs, func(i int) {
		num := make([]float32, nFactors)
		for j, v := range x[i] {
			if v != 0 {
				floats.MulConstAdd(b[j], v, num)
			}
		}
		for k := range a[i] {
			a[i][k] *= num[k] / (floats.Dot(gram[k], a[i]) + epsilon)
		}
	})
}

func transpose(x [][]float32, nCols int) [][]float32 {
	t := make([][]float32, nCols)
	for j := range t {
		t[j] = make([]float32, len(x))
		for i := range x {
			t[j][i] = x[i][j]
		}
	}
	return t
}

func (nmf *NMF) rmse(x [][]float32) float32 {
	var sum float32
	var count int
	for u, row := range x {
		for i, v := range row {
			diff := v - floats.Dot(nmf.UserFactor[u], nmf.ItemFactor[i])
			sum += diff * diff
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math32.Sqrt(sum / float32(count))
}

const maxFactors = 1 << 16

// Marshal model into byte stream.
func (nmf *NMF) Marshal(w io.Writer) error {
	if err := encoding.WriteString(w, modelName); err != nil {
		return errors.Trace(err)
	}
	// write params
	if err := encoding.WriteGob(w, nmf.Params); err != nil {
		return errors.Trace(err)
	}
	// write vocabulary
	if err := encoding.WriteStrings(w, nmf.vocabulary); err != nil {
		return errors.Trace(err)
	}
	// write shapes
	shape := []int64{int64(len(nmf.UserFactor)), int64(nmf.nFactors)}
	if err := binary.Write(w, binary.LittleEndian, shape); err != nil {
		return errors.Trace(err)
	}
	// write factors
	if err := encoding.WriteMatrix(w, nmf.ItemFactor); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, nmf.UserFactor); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Unmarshal model from byte stream.
func (nmf *NMF) Unmarshal(r io.Reader) error {
	name, err := encoding.ReadString(r)
	if err != nil {
		return errors.Trace(err)
	}
	if name != modelName {
		return errors.NotValidf("model %s", name)
	}
	// read params
	var params model.Params
	if err = encoding.ReadGob(r, &params); err != nil {
		return errors.Trace(err)
	}
	nmf.SetParams(params)
	// read vocabulary
	if nmf.vocabulary, err = encoding.ReadStrings(r); err != nil {
		return errors.Trace(err)
	}
	// read shapes
	shape := make([]int64, 2)
	if err = binary.Read(r, binary.LittleEndian, shape); err != nil {
		return errors.Trace(err)
	}
	if shape[0] < 0 || shape[1] < 0 || shape[1] > maxFactors {
		return errors.NotValidf("shape %v", shape)
	}
	nmf.nFactors = int(shape[1])
	// read factors
	if nmf.ItemFactor, err = encoding.ReadMatrix(r, int64(len(nmf.vocabulary)), nmf.nFactors); err != nil {
		return errors.Trace(err)
	}
	if nmf.UserFactor, err = encoding.ReadMatrix(r, shape[0], nmf.nFactors); err != nil {
		return errors.Trace(err)
	}
	if err = checkFactors(nmf.ItemFactor); err != nil {
		return errors.Trace(err)
	}
	nmf.computeGram()
	return nil
}
