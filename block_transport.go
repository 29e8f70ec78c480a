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

package fcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/blinklabs-io/gofcp/key"
	"github.com/blinklabs-io/gofcp/splitfile"
	"github.com/cenkalti/backoff/v4"
)

// blockTransport carries splitfile blocks over sessions taken from a SessionPool
type blockTransport struct {
	pool *SessionPool
}

// NewBlockTransport returns a splitfile.Transport that inserts and fetches blocks over sessions
// from pool. Each block uses its own session, so blocks of different segments move in parallel.
func NewBlockTransport(pool *SessionPool) splitfile.Transport {
	return &blockTransport{pool: pool}
}

func (t *blockTransport) InsertBlock(ctx context.Context, data []byte) (key.URI, error) {
	var ret key.URI
	err := t.withSession(ctx, func(conn *Connection) error {
		var err error
		ret, err = conn.Put(key.NewCHK(), nil, bytes.NewReader(data), int64(len(data)))
		return err
	})
	return ret, err
}

func (t *blockTransport) FetchBlock(ctx context.Context, uri key.URI) ([]byte, error) {
	var ret []byte
	err := t.withSession(ctx, func(conn *Connection) error {
		found, err := conn.Get(uri)
		if err != nil {
			return err
		}
		payload := conn.Payload()
		defer payload.Close()
		// #nosec G115
		if _, err := io.CopyN(io.Discard, payload, int64(found.MetadataLength)); err != nil {
			return err
		}
		ret, err = io.ReadAll(payload)
		return err
	})
	return ret, err
}

// withSession runs op on a pooled session. Cancelling ctx closes the session, which aborts a
// blocked read or write.
func (t *blockTransport) withSession(ctx context.Context, op func(*Connection) error) error {
	conn, err := t.pool.Get(ctx)
	if err != nil {
		return err
	}
	defer t.pool.Put(conn)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()
	err = op(conn)
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		return ctxErr
	}
	return blockError(err)
}

// blockError translates node outcomes into the splitfile error vocabulary
func blockError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrKeyCollision):
		return fmt.Errorf("%w: %w", splitfile.ErrBlockCollision, err)
	case errors.Is(err, ErrDataNotFound), errors.Is(err, ErrRouteNotFound):
		return fmt.Errorf("%w: %w", splitfile.ErrBlockUnavailable, err)
	case errors.Is(err, ErrURIError), errors.Is(err, ErrFormatError):
		return backoff.Permanent(err)
	}
	return err
}
