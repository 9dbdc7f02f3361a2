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

package data

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchInsertMoviesSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "flicks",
		Subsystem: "database",
		Name:      "batch_insert_movies_seconds",
	})
	BatchInsertRatingsSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "flicks",
		Subsystem: "database",
		Name:      "batch_insert_ratings_seconds",
	})
	GetMoviesSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "flicks",
		Subsystem: "database",
		Name:      "get_movies_seconds",
	})
	GetRatingsSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "flicks",
		Subsystem: "database",
		Name:      "get_ratings_seconds",
	})
)
