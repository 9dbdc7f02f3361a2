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

package server

import (
	"context"
	"time"

	"github.com/gorse-io/flicks/base/log"
	"github.com/gorse-io/flicks/config"
	"github.com/gorse-io/flicks/dataset"
	"github.com/gorse-io/flicks/logics"
	"github.com/gorse-io/flicks/model/nmf"
	"github.com/gorse-io/flicks/storage/blob"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Server manages states of a server node.
type Server struct {
	RestServer
}

// NewServer creates a server node.
func NewServer(cfg *config.Config) *Server {
	return &Server{RestServer: *NewRestServer(cfg, nil)}
}

// Serve loads the rating store and the factorization model, then starts the REST server.
// The server stays unready until the default rating matrix is built.
func (s *Server) Serve(ctx context.Context) {
	d, err := dataset.Load(ctx, s.Config)
	if err != nil {
		log.Logger().Fatal("failed to load rating store", zap.Error(err))
	}
	s.Recommender = logics.NewRecommender(s.Config.Recommend, d)

	store, err := blob.Open(ctx, s.Config.Blob)
	if err != nil {
		log.Logger().Error("failed to open blob store", zap.Error(err))
	} else if err = s.LoadModel(ctx, store); err != nil {
		if errors.Is(err, errors.NotFound) {
			log.Logger().Warn("factorization model not found, train it with the fit command",
				zap.String("model_name", s.Config.NMF.ModelName))
		} else {
			log.Logger().Error("failed to load factorization model", zap.Error(err))
		}
	}

	go func() {
		start := time.Now()
		if err := s.Recommender.Warmup(ctx); err != nil {
			log.Logger().Error("failed to build rating matrix", zap.Error(err))
			return
		}
		s.SetReady(true)
		log.Logger().Info("server ready", zap.Duration("used_time", time.Since(start)))
	}()
	s.StartHttpServer()
}

// LoadModel loads the configured factorization model from a blob store.
func (s *RestServer) LoadModel(ctx context.Context, store blob.Store) error {
	m, err := nmf.Load(ctx, store, s.Config.NMF.ModelName)
	if err != nil {
		return errors.Trace(err)
	}
	m.SetTransformEpochs(s.Config.NMF.TransformEpochs)
	s.Recommender.SetModel(m)
	ModelLoadedTotal.Inc()
	log.Logger().Info("load factorization model",
		zap.String("model_name", s.Config.NMF.ModelName),
		zap.Int("n_items", len(m.Vocabulary())),
		zap.Int("n_factors", m.NFactors()))
	return nil
}
