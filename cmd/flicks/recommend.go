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
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/gorse-io/flicks/base/encoding"
	"github.com/gorse-io/flicks/config"
	"github.com/gorse-io/flicks/dataset"
	"github.com/gorse-io/flicks/logics"
	"github.com/gorse-io/flicks/model/nmf"
	"github.com/gorse-io/flicks/storage/blob"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var recommendCommand = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend movies for the ratings in a JSON file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		q := logics.DefaultQuery()
		if queryPath, _ := cmd.Flags().GetString("query"); queryPath != "" {
			if q, err = readQueryFile(queryPath); err != nil {
				return err
			}
		}
		d, err := dataset.Load(cmd.Context(), cfg)
		if err != nil {
			return errors.Trace(err)
		}
		recommender := logics.NewRecommender(cfg.Recommend, d)

		var scores []logics.Score
		method, _ := cmd.Flags().GetString("method")
		switch method {
		case logics.MethodNeighborhood:
			n := intFlag(cmd, "n", cfg.Recommend.N)
			k := intFlag(cmd, "k", cfg.Recommend.K)
			normalize := cfg.Recommend.Normalize
			if cmd.Flags().Changed("normalize") {
				normalize, _ = cmd.Flags().GetBool("normalize")
			}
			scores, err = recommender.Neighborhood(cmd.Context(), q, normalize, k, n)
		case logics.MethodFactorization:
			if err = loadModel(cmd, cfg, recommender); err != nil {
				return err
			}
			scores, err = recommender.Factorization(cmd.Context(), q, intFlag(cmd, "n", cfg.NMF.N))
		default:
			return errors.NotSupportedf("method %s", method)
		}
		if err != nil {
			return errors.Trace(err)
		}
		return printScores(cmd.OutOrStdout(), scores)
	},
}

func init() {
	recommendCommand.Flags().StringP("method", "m", logics.MethodNeighborhood, "recommendation method (neighborhood, factorization)")
	recommendCommand.Flags().StringP("query", "q", "", "JSON file of ratings keyed by title (default sample ratings if empty)")
	recommendCommand.Flags().IntP("k", "k", 0, "number of neighbors (default from config)")
	recommendCommand.Flags().IntP("n", "n", 0, "number of recommended movies (default from config)")
	recommendCommand.Flags().Bool("normalize", true, "center ratings by each user's mean")
}

func intFlag(cmd *cobra.Command, name string, fallback int) int {
	if !cmd.Flags().Changed(name) {
		return fallback
	}
	value, _ := cmd.Flags().GetInt(name)
	return value
}

func readQueryFile(path string) (logics.Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read query %s", path)
	}
	var q logics.Query
	if err = json.Unmarshal(data, &q); err != nil {
		return nil, errors.NewNotValid(err, "failed to decode query "+path)
	}
	return q, nil
}

func loadModel(cmd *cobra.Command, cfg *config.Config, recommender *logics.Recommender) error {
	store, err := blob.Open(cmd.Context(), cfg.Blob)
	if err != nil {
		return errors.Trace(err)
	}
	model, err := nmf.Load(cmd.Context(), store, cfg.NMF.ModelName)
	if err != nil {
		return errors.Trace(err)
	}
	model.SetTransformEpochs(cfg.NMF.TransformEpochs)
	recommender.SetModel(model)
	return nil
}

func printScores(w io.Writer, scores []logics.Score) error {
	table := tablewriter.NewWriter(w)
	table.Header("Rank", "Title", "Score")
	for i, score := range scores {
		if err := table.Append([]string{strconv.Itoa(i + 1), score.Title, encoding.FormatFloat32(score.Score)}); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}
