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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MethodNeighborhood  = "neighborhood"
	MethodFactorization = "factorization"
)

var (
	RecommendSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flicks",
		Subsystem: "recommend",
		Name:      "recommend_seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"method"})
	RecommendErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flicks",
		Subsystem: "recommend",
		Name:      "recommend_errors_total",
	}, []string{"method"})
	BuildMatrixSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "flicks",
		Subsystem: "recommend",
		Name:      "build_matrix_seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	})
	MatrixCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flicks",
		Subsystem: "recommend",
		Name:      "matrix_cache_hits_total",
	})
	MatrixCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flicks",
		Subsystem: "recommend",
		Name:      "matrix_cache_misses_total",
	})
	IgnoredTitlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flicks",
		Subsystem: "recommend",
		Name:      "ignored_titles_total",
	})
)
