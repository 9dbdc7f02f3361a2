// Copyright 2021 gorse Project Authors
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

package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

var dataStorePrefixes = []string{
	"sqlite://",
	"mysql://",
	"postgres://",
	"postgresql://",
	"clickhouse://",
	"chhttp://",
	"chhttps://",
	"mongodb://",
	"mongodb+srv://",
}

func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("data_store", func(fl validator.FieldLevel) bool {
		url := fl.Field().String()
		return lo.ContainsBy(dataStorePrefixes, func(prefix string) bool {
			return strings.HasPrefix(url, prefix)
		})
	}); err != nil {
		return errors.Trace(err)
	}
	if err := validate.Struct(config); err != nil {
		return errors.NewNotValid(err, "invalid config")
	}
	if config.Database.DataStore == "" && (config.Dataset.MoviePath == "" || config.Dataset.RatingPath == "") {
		return errors.NotValidf("dataset paths must be set when data_store is empty, config")
	}
	if config.Recommend.NeutralRating < config.Recommend.MinRating || config.Recommend.NeutralRating > config.Recommend.MaxRating {
		return errors.NotValidf("neutral_rating %v outside [%v, %v], config",
			config.Recommend.NeutralRating, config.Recommend.MinRating, config.Recommend.MaxRating)
	}
	return nil
}
