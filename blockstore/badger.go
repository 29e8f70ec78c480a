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

package blockstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

const badgerKeyPrefix = "block:"

// BadgerStore keeps blocks in a badger database
type BadgerStore struct {
	db        *badger.DB
	dir       string
	ownsDir   bool
	onceClose sync.Once
}

// NewBadgerStore opens a badger database under dir. An empty dir creates a temporary directory
// that is removed on Close.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	b := &BadgerStore{dir: dir}
	if dir == "" {
		tmp, err := os.MkdirTemp("", "gofcp-badger-*")
		if err != nil {
			return nil, fmt.Errorf("blockstore: create temp dir: %w", err)
		}
		b.dir = tmp
		b.ownsDir = true
	}
	opts := badger.DefaultOptions(b.dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		if b.ownsDir {
			_ = os.RemoveAll(b.dir)
		}
		return nil, fmt.Errorf("blockstore: open badger: %w", err)
	}
	b.db = db
	return b, nil
}

// NewMemoryBadgerStore opens an in-memory badger database
func NewMemoryBadgerStore() (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("blockstore: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Put(ctx context.Context, id string, data []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	raw, err := encodeRecord(data)
	if err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+id), raw)
	})
	if err != nil {
		return fmt.Errorf("blockstore: persist %s: %w", id, err)
	}
	return nil
}

func (b *BadgerStore) Get(ctx context.Context, id string) ([]byte, error) {
	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + id))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, id)
		}
		if errors.Is(err, badger.ErrDBClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("blockstore: read %s: %w", id, err)
	}
	return decodeRecord(id, raw)
}

func (b *BadgerStore) Delete(ctx context.Context, id string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(badgerKeyPrefix + id))
	})
	if err != nil {
		return fmt.Errorf("blockstore: delete %s: %w", id, err)
	}
	return nil
}

func (b *BadgerStore) Close() error {
	var err error
	b.onceClose.Do(func() {
		err = b.db.Close()
		if b.ownsDir {
			if rmErr := os.RemoveAll(b.dir); err == nil {
				err = rmErr
			}
		}
	})
	return err
}
