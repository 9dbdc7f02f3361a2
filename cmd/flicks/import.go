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
	"context"
	"io"
	"os"

	"github.com/gorse-io/flicks/base/log"
	"github.com/gorse-io/flicks/dataset"
	"github.com/gorse-io/flicks/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var importCommand = &cobra.Command{
	Use:   "import",
	Short: "Import movies and ratings from CSV files into the data store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Database.DataStore == "" {
			return errors.NotValidf("empty data_store")
		}
		moviePath, ratingPath := cfg.Dataset.MoviePath, cfg.Dataset.RatingPath
		if cmd.Flags().Changed("movies") {
			moviePath, _ = cmd.Flags().GetString("movies")
		}
		if cmd.Flags().Changed("ratings") {
			ratingPath, _ = cmd.Flags().GetString("ratings")
		}
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		if batchSize <= 0 {
			return errors.NotValidf("batch size %d", batchSize)
		}

		movies, err := readFile(moviePath, dataset.ReadMovies)
		if err != nil {
			return err
		}
		ratings, err := readFile(ratingPath, dataset.ReadRatings)
		if err != nil {
			return err
		}

		database, err := data.Open(cfg.Database.DataStore, cfg.Database.TablePrefix)
		if err != nil {
			return errors.Annotatef(err, "failed to connect data store %s", log.RedactDBURL(cfg.Database.DataStore))
		}
		defer database.Close()
		if err = database.Init(); err != nil {
			return errors.Trace(err)
		}
		bar := progressbar.NewOptions(len(movies)+len(ratings),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("import"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish())
		if err = importBatches(cmd.Context(), movies, batchSize, database.BatchInsertMovies, bar); err != nil {
			return errors.Annotate(err, "failed to import movies")
		}
		if err = importBatches(cmd.Context(), ratings, batchSize, database.BatchInsertRatings, bar); err != nil {
			return errors.Annotate(err, "failed to import ratings")
		}
		if err = bar.Finish(); err != nil {
			return errors.Trace(err)
		}
		log.Logger().Info("import dataset",
			zap.String("data_store", log.RedactDBURL(cfg.Database.DataStore)),
			zap.Int("n_movies", len(movies)),
			zap.Int("n_ratings", len(ratings)))
		return nil
	},
}

func init() {
	importCommand.Flags().String("movies", "", "movies CSV file (default from config)")
	importCommand.Flags().String("ratings", "", "ratings CSV file (default from config)")
	importCommand.Flags().Int("batch-size", 10000, "number of rows inserted at once")
}

func readFile[T any](path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open %s", path)
	}
	defer file.Close()
	rows, err := read(file)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read %s", path)
	}
	return rows, nil
}

func importBatches[T any](ctx context.Context, rows []T, batchSize int, insert func(context.Context, []T) error, bar *progressbar.ProgressBar) error {
	for _, batch := range lo.Chunk(rows, batchSize) {
		if err := insert(ctx, batch); err != nil {
			return errors.Trace(err)
		}
		if err := bar.Add(len(batch)); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
