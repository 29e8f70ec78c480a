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
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const fileStoreSuffix = ".blk"

// FileStore keeps each block in its own file under a directory
type FileStore struct {
	dir       string
	ownsDir   bool
	onceClose sync.Once
}

// NewFileStore returns a store under dir, creating it if needed. An empty dir creates a
// temporary directory that is removed on Close.
func NewFileStore(dir string) (*FileStore, error) {
	f := &FileStore{dir: dir}
	if dir == "" {
		tmp, err := os.MkdirTemp("", "gofcp-blocks-*")
		if err != nil {
			return nil, fmt.Errorf("blockstore: create temp dir: %w", err)
		}
		f.dir = tmp
		f.ownsDir = true
	} else if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("blockstore: create dir: %w", err)
	}
	return f, nil
}

// Dir returns the directory holding the blocks
func (f *FileStore) Dir() string {
	return f.dir
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.dir, id+fileStoreSuffix)
}

func (f *FileStore) Put(ctx context.Context, id string, data []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	raw, err := encodeRecord(data)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, ".put-*")
	if err != nil {
		return fmt.Errorf("blockstore: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("blockstore: write %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("blockstore: write %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), f.path(id)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("blockstore: write %s: %w", id, err)
	}
	return nil
}

func (f *FileStore) Get(ctx context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(f.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, id)
		}
		return nil, fmt.Errorf("blockstore: read %s: %w", id, err)
	}
	return decodeRecord(id, raw)
}

func (f *FileStore) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.Remove(f.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("blockstore: delete %s: %w", id, err)
	}
	return nil
}

// Close removes the directory if the store created it
func (f *FileStore) Close() error {
	var err error
	f.onceClose.Do(func() {
		if f.ownsDir {
			err = os.RemoveAll(f.dir)
		}
	})
	return err
}
