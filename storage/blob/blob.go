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

package blob

import (
	"context"
	"io"

	"github.com/gorse-io/flicks/config"
	"github.com/juju/errors"
)

// Store keeps model artifacts. Names are relative to the root (or prefix) of the store.
type Store interface {
	// Open an artifact for reading. A missing artifact is a NotFound error.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Create an artifact for writing. The artifact is complete once Close returns without error.
	Create(ctx context.Context, name string) (io.WriteCloser, error)
	List(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, name string) error
}

// Open creates the store selected by the configuration.
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Type {
	case config.BlobPOSIX, "":
		return NewPOSIX(cfg.Dir), nil
	case config.BlobS3:
		return NewS3(cfg.S3)
	case config.BlobGCS:
		return NewGCS(ctx, cfg.GCS)
	case config.BlobAzure:
		return NewAzureBlob(cfg.Azure)
	}
	return nil, errors.NotSupportedf("blob store %s", cfg.Type)
}

// upload streams everything written to the returned writer into fn running in the background.
// Close waits for fn and returns its error.
func upload(fn func(r io.Reader) error) io.WriteCloser {
	pr, pw := io.Pipe()
	w := &uploadWriter{PipeWriter: pw, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		w.err = fn(pr)
		_ = pr.CloseWithError(w.err)
	}()
	return w
}

type uploadWriter struct {
	*io.PipeWriter
	done chan struct{}
	err  error
}

func (w *uploadWriter) Close() error {
	if err := w.PipeWriter.Close(); err != nil {
		return errors.Trace(err)
	}
	<-w.done
	return w.err
}

// CloseWithError aborts an upload so the artifact is left untouched.
func (w *uploadWriter) CloseWithError(err error) error {
	_ = w.PipeWriter.CloseWithError(err)
	<-w.done
	return nil
}

// Abort closes a writer returned by Store.Create without completing the artifact if the store
// supports it.
func Abort(w io.WriteCloser, err error) {
	if aborter, ok := w.(interface{ CloseWithError(error) error }); ok {
		_ = aborter.CloseWithError(err)
	} else {
		_ = w.Close()
	}
}
