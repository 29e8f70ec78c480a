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

// Package blockstore holds splitfile blocks on the local side while they are
// inserted or after they are fetched, and provides temporary spools for
// staging key data.
package blockstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blinklabs-io/gofcp/cbor"
	"github.com/blinklabs-io/gofcp/config"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrBlockNotFound    = errors.New("blockstore: block not found")
	ErrChecksumMismatch = errors.New("blockstore: checksum mismatch")
	ErrInvalidID        = errors.New("blockstore: invalid block id")
	ErrClosed           = errors.New("blockstore: store closed")
)

// Store is a local block store. Implementations are safe for concurrent use.
type Store interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Open returns a store of the given kind. File and badger stores keep their data under dir;
// an empty dir creates a private temporary directory that is removed on Close.
func Open(kind string, dir string) (Store, error) {
	switch kind {
	case config.BlockStoreMemory:
		return NewMemoryStore(), nil
	case config.BlockStoreFile:
		return NewFileStore(dir)
	case config.BlockStoreBadger:
		return NewBadgerStore(dir)
	}
	return nil, fmt.Errorf("%w: %q", config.ErrInvalidBlockStore, kind)
}

// record is the stored form of a block
type record struct {
	cbor.StructAsArray
	Digest []byte
	Data   []byte
}

func encodeRecord(data []byte) ([]byte, error) {
	digest := blake2b.Sum256(data)
	return cbor.Encode(record{
		Digest: digest[:],
		Data:   data,
	})
}

func decodeRecord(id string, raw []byte) ([]byte, error) {
	var rec record
	if err := cbor.DecodeFull(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrChecksumMismatch, id, err)
	}
	digest := blake2b.Sum256(rec.Data)
	if !bytes.Equal(digest[:], rec.Digest) {
		return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, id)
	}
	if rec.Data == nil {
		rec.Data = []byte{}
	}
	return rec.Data, nil
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`+"\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
