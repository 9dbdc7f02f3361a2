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

package model

import (
	"reflect"

	"github.com/gorse-io/flicks/base/log"
	"github.com/gorse-io/flicks/config"
	"go.uber.org/zap"
)

/* ParamName */

// ParamName is the type of hyper-parameter names.
type ParamName string

// Predefined hyper-parameter names
const (
	NFactors        ParamName = "NFactors"        // number of factors
	NEpochs         ParamName = "NEpochs"         // number of training epochs
	TransformEpochs ParamName = "TransformEpochs" // number of epochs to project a new row
	RandomState     ParamName = "RandomState"     // random state (seed)
	InitLow         ParamName = "InitLow"         // lower bound of uniform initial parameters
	InitHigh        ParamName = "InitHigh"        // upper bound of uniform initial parameters
	NeutralRating   ParamName = "NeutralRating"   // rating filled into absent cells
)

// Params stores hyper-parameters for an model. It is a map between strings
// (names) and interface{}s (values). For example, hyper-parameters for NMF
// is given by:
//
//	model.Params{
//		model.NFactors:    29,
//		model.NEpochs:     200,
//		model.RandomState: 42,
//	}
type Params map[ParamName]interface{}

// Copy hyper-parameters.
func (parameters Params) Copy() Params {
	newParams := make(Params)
	for k, v := range parameters {
		newParams[k] = v
	}
	return newParams
}

// GetInt gets a integer parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetInt(name ParamName, _default int) int {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int:
			return val
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "int"),
				zap.String("actual", reflect.TypeOf(val).Name()))
		}
	}
	return _default
}

// GetInt64 gets a int64 parameter by name. Returns _default if not exists or type doesn't match. The
// type will be converted if given int.
func (parameters Params) GetInt64(name ParamName, _default int64) int64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int64:
			return val
		case int:
			return int64(val)
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "int64"),
				zap.String("actual", reflect.TypeOf(val).Name()))
		}
	}
	return _default
}

// GetFloat32 gets a float32 parameter by name. Returns _default if not exists or type doesn't match. The
// type will be converted if given float64 or int.
func (parameters Params) GetFloat32(name ParamName, _default float32) float32 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case float32:
			return val
		case float64:
			return float32(val)
		case int:
			return float32(val)
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "float32"),
				zap.String("actual", reflect.TypeOf(val).Name()))
		}
	}
	return _default
}

// Overwrite returns a copy of the parameters updated with params.
func (parameters Params) Overwrite(params Params) Params {
	merged := make(Params)
	for k, v := range parameters {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

// NewParamsFromConfig collects the factorization hyper-parameters of a configuration.
func NewParamsFromConfig(cfg *config.Config) Params {
	return Params{
		NFactors:        cfg.NMF.NFactors,
		NEpochs:         cfg.NMF.NEpochs,
		TransformEpochs: cfg.NMF.TransformEpochs,
		RandomState:     cfg.NMF.RandomState,
		InitLow:         cfg.NMF.InitLow,
		InitHigh:        cfg.NMF.InitHigh,
		NeutralRating:   cfg.Recommend.NeutralRating,
	}
}
