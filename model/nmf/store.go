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
	"bufio"
	"context"

	"github.com/gorse-io/flicks/base/log"
	"github.com/gorse-io/flicks/storage/blob"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Save writes a model into a blob store as the artifact name.
func Save(ctx context.Context, store blob.Store, name string, nmf *NMF) error {
	w, err := store.Create(ctx, name)
	if err != nil {
		return errors.Annotatef(err, "failed to create model %s", name)
	}
	buf := bufio.NewWriter(w)
	if err = nmf.Marshal(buf); err != nil {
		blob.Abort(w, err)
		return errors.Annotatef(err, "failed to marshal model %s", name)
	}
	if err = buf.Flush(); err != nil {
		blob.Abort(w, err)
		return errors.Annotatef(err, "failed to write model %s", name)
	}
	if err = w.Close(); err != nil {
		return errors.Annotatef(err, "failed to write model %s", name)
	}
	log.Logger().Info("save model", zap.String("name", name), zap.Int("n_items", len(nmf.vocabulary)))
	return nil
}

// Load reads a model from a blob store. A missing artifact is a NotFound error.
func Load(ctx context.Context, store blob.Store, name string) (*NMF, error) {
	r, err := store.Open(ctx, name)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open model %s", name)
	}
	defer r.Close()
	nmf := new(NMF)
	if err = nmf.Unmarshal(bufio.NewReader(r)); err != nil {
		return nil, errors.Annotatef(err, "failed to load model %s", name)
	}
	log.Logger().Info("load model", zap.String("name", name),
		zap.Int("n_items", len(nmf.vocabulary)),
		zap.Int("n_factors", nmf.nFactors))
	return nmf, nil
}
