// Copyright 2022 gorse Project Authors
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
package main

import (
	"time"

	"github.com/gorse-io/flicks/base/log"
	"github.com/gorse-io/flicks/dataset"
	"github.com/gorse-io/flicks/model"
	"github.com/gorse-io/flicks/model/nmf"
	"github.com/gorse-io/flicks/storage/blob"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var fitCommand = &cobra.Command{
	Use:   "fit",
	Short: "Train the factorization model and save it to the blob store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("model-name") {
			cfg.NMF.ModelName, _ = cmd.Flags().GetString("model-name")
		}
		store, err := blob.Open(cmd.Context(), cfg.Blob)
		if err != nil {
			return errors.Trace(err)
		}
		d, err := dataset.Load(cmd.Context(), cfg)
		if err != nil {
			return errors.Trace(err)
		}

		start := time.Now()
		m := dataset.BuildMatrix(d, false)
		factorization := nmf.NewNMF(model.NewParamsFromConfig(cfg))
		if err = factorization.Fit(cmd.Context(), m, cfg.Recommend.Jobs); err != nil {
			return errors.Trace(err)
		}
		if err = nmf.Save(cmd.Context(), store, cfg.NMF.ModelName, factorization); err != nil {
			return errors.Trace(err)
		}
		log.Logger().Info("fit factorization model",
			zap.String("model_name", cfg.NMF.ModelName),
			zap.Duration("used_time", time.Since(start)))
		return nil
	},
}

func init() {
	fitCommand.Flags().String("model-name", "", "artifact name of the model (default from config)")
}
