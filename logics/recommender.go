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
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/flicks/base/log"
	"github.com/gorse-io/flicks/config"
	"github.com/gorse-io/flicks/dataset"
	"github.com/gorse-io/flicks/model/nmf"
	"github.com/jellydator/ttlcache/v3"
	"github.com/juju/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/gorse-io/flicks/logics")

// Recommender runs both pipelines over a rating store. Built matrices are cached by the
// normalize flag and shared read-only between requests.
type Recommender struct {
	config   config.RecommendConfig
	dataset  *dataset.Dataset
	matrices *ttlcache.Cache[bool, *dataset.Matrix]

	mu    sync.RWMutex
	model nmf.Model
}

func NewRecommender(cfg config.RecommendConfig, d *dataset.Dataset) *Recommender {
	return &Recommender{
		config:   cfg,
		dataset:  d,
		matrices: ttlcache.New[bool, *dataset.Matrix](ttlcache.WithTTL[bool, *dataset.Matrix](cfg.CacheTTL)),
	}
}

// SetModel replaces the factorization model.
func (r *Recommender) SetModel(model nmf.Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.model = model
}

func (r *Recommender) Model() nmf.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.model
}

// Movies returns the catalog.
func (r *Recommender) Movies() []dataset.Movie {
	return r.dataset.Movies()
}

func (r *Recommender) Config() config.RecommendConfig {
	return r.config
}

// Matrix returns the rating matrix, built on first use and cached until the TTL expires.
func (r *Recommender) Matrix(ctx context.Context, normalize bool) *dataset.Matrix {
	if item := r.matrices.Get(normalize, ttlcache.WithDisableTouchOnHit[bool, *dataset.Matrix]()); item != nil {
		MatrixCacheHitsTotal.Inc()
		return item.Value()
	}
	MatrixCacheMissesTotal.Inc()
	_, span := tracer.Start(ctx, "BuildMatrix", trace.WithAttributes(attribute.Bool("normalize", normalize)))
	defer span.End()
	start := time.Now()
	m := dataset.BuildMatrix(r.dataset, normalize)
	BuildMatrixSeconds.Observe(time.Since(start).Seconds())
	nRows, nCols := m.Shape()
	log.Logger().Info("build rating matrix",
		zap.Bool("normalize", normalize),
		zap.Int("n_titles", nRows),
		zap.Int("n_users", nCols),
		zap.Int("n_ratings", m.Count()),
		zap.Duration("used_time", time.Since(start)))
	r.matrices.Set(normalize, m, ttlcache.DefaultTTL)
	return m
}

// resolve validates a query and drops titles unknown to the catalog.
func (r *Recommender) resolve(q Query) (Query, error) {
	if err := q.Validate(r.config.MinRating, r.config.MaxRating); err != nil {
		return nil, err
	}
	resolved := make(Query, len(q))
	for title, rating := range q {
		if r.dataset.HasTitle(title) {
			resolved[title] = rating
		} else {
			ignoreTitle(title)
		}
	}
	return resolved, nil
}

func ignoreTitle(title string) {
	IgnoredTitlesTotal.Inc()
	log.Logger().Warn("ignore unknown title in query", zap.String("title", title))
}

// Neighborhood recommends at most n titles by user-based collaborative filtering over the k
// nearest users.
func (r *Recommender) Neighborhood(ctx context.Context, q Query, normalize bool, k, n int) (scores []Score, err error) {
	ctx, span := tracer.Start(ctx, "Neighborhood", trace.WithAttributes(
		attribute.Bool("normalize", normalize),
		attribute.Int("k", k),
		attribute.Int("n", n),
		attribute.Int("n_ratings", len(q))))
	defer func() { endSpan(span, MethodNeighborhood, err) }()
	start := time.Now()

	if q, err = r.resolve(q); err != nil {
		return nil, err
	}
	m := r.Matrix(ctx, normalize)
	if scores, err = RecommendNeighborhood(ctx, q, m, k, n, r.config.Jobs); err != nil {
		return nil, err
	}
	RecommendSeconds.WithLabelValues(MethodNeighborhood).Observe(time.Since(start).Seconds())
	return scores, nil
}

// Factorization recommends at most n titles by the factorization model. It fails with a
// NotProvisioned error if no model is loaded.
func (r *Recommender) Factorization(ctx context.Context, q Query, n int) (scores []Score, err error) {
	_, span := tracer.Start(ctx, "Factorization", trace.WithAttributes(
		attribute.Int("n", n),
		attribute.Int("n_ratings", len(q))))
	defer func() { endSpan(span, MethodFactorization, err) }()
	start := time.Now()

	// the model vocabulary, not the catalog, decides which titles are known
	if err = q.Validate(r.config.MinRating, r.config.MaxRating); err != nil {
		return nil, err
	}
	model := r.Model()
	if model != nil {
		vocabulary := mapset.NewThreadUnsafeSet(model.Vocabulary()...)
		for title := range q {
			if !vocabulary.Contains(title) {
				ignoreTitle(title)
			}
		}
	}
	if scores, err = RecommendFactorization(q, model, n, r.config.NeutralRating); err != nil {
		return nil, err
	}
	RecommendSeconds.WithLabelValues(MethodFactorization).Observe(time.Since(start).Seconds())
	return scores, nil
}

func endSpan(span trace.Span, method string, err error) {
	if err != nil {
		RecommendErrorsTotal.WithLabelValues(method).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Warmup builds and caches the rating matrix used by default.
func (r *Recommender) Warmup(ctx context.Context) error {
	if r.dataset == nil {
		return errors.NotProvisionedf("rating store")
	}
	r.Matrix(ctx, r.config.Normalize)
	return nil
}
