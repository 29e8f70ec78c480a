// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package splitfile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/blinklabs-io/gofcp/blockstore"
	"github.com/blinklabs-io/gofcp/config"
	"github.com/blinklabs-io/gofcp/fec"
	"github.com/blinklabs-io/gofcp/key"
	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrBlockUnavailable is reported by a Transport when the node cannot find a block
	ErrBlockUnavailable = errors.New("splitfile: block not found on node")
	// ErrBlockCollision is reported by a Transport when an inserted block already exists
	ErrBlockCollision = errors.New("splitfile: block already present on node")
)

// Transport moves single blocks to and from the node. It must be safe for concurrent use
// by the segment workers. Errors that must not be retried are marked with backoff.Permanent.
type Transport interface {
	// InsertBlock inserts data as a CHK and returns its key. On a collision it returns the
	// existing key and an error wrapping ErrBlockCollision.
	InsertBlock(ctx context.Context, data []byte) (key.URI, error)
	// FetchBlock retrieves the data of a CHK, or an error wrapping ErrBlockUnavailable
	FetchBlock(ctx context.Context, uri key.URI) ([]byte, error)
}

// OptionFunc configures an Inserter or Fetcher
type OptionFunc func(*engine)

// engine holds what the insert and fetch paths share
type engine struct {
	transport Transport
	store     blockstore.Store
	config    config.Config
	logger    *slog.Logger
	codec     fec.Codec
}

func newEngine(transport Transport, store blockstore.Store, opts ...OptionFunc) *engine {
	e := &engine{
		transport: transport,
		store:     store,
		config:    config.NewConfig(),
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithConfig sets the retry and parallelism settings
func WithConfig(cfg config.Config) OptionFunc {
	return func(e *engine) {
		e.config = cfg
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) OptionFunc {
	return func(e *engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCodec overrides the FEC codec named by the segments
func WithCodec(codec fec.Codec) OptionFunc {
	return func(e *engine) {
		e.codec = codec
	}
}

func (e *engine) codecFor(seg *Segment) (fec.Codec, error) {
	if e.codec != nil {
		return e.codec, nil
	}
	return fec.Lookup(seg.Algorithm)
}

// retry runs op until it succeeds, returns a permanent error, or runs out of retries
func (e *engine) retry(ctx context.Context, what string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.config.RetryDelay
	b.MaxElapsedTime = 0
	// #nosec G115
	policy := backoff.WithMaxRetries(b, uint64(max(e.config.Retry, 0)))
	return backoff.RetryNotify(
		op,
		backoff.WithContext(policy, ctx),
		func(err error, delay time.Duration) {
			e.logger.Debug(
				"retrying "+what,
				"component", "fcp",
				"error", err,
				"delay", delay,
			)
		},
	)
}
