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
	"fmt"
	"io"
	"os"
	"sync"
)

// Spool is a temporary file used to stage key data. The file is removed on Close.
type Spool struct {
	mutex     sync.Mutex
	file      *os.File
	size      int64
	onceClose sync.Once
}

// NewSpool creates a spool in dir, or in the default temp directory if dir is empty
func NewSpool(dir string) (*Spool, error) {
	f, err := os.CreateTemp(dir, "gofcp-spool-*")
	if err != nil {
		return nil, fmt.Errorf("blockstore: create spool: %w", err)
	}
	return &Spool{file: f}, nil
}

// Name returns the path of the backing file
func (s *Spool) Name() string {
	return s.file.Name()
}

// Write appends to the spool
func (s *Spool) Write(p []byte) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	n, err := s.file.WriteAt(p, s.size)
	s.size += int64(n)
	return n, err
}

// ReadAt reads previously written data
func (s *Spool) ReadAt(p []byte, off int64) (int, error) {
	s.mutex.Lock()
	size := s.size
	s.mutex.Unlock()
	if off >= size {
		return 0, io.EOF
	}
	if remaining := size - off; int64(len(p)) > remaining {
		n, err := s.file.ReadAt(p[:remaining], off)
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	return s.file.ReadAt(p, off)
}

// Reader returns a reader over the spool contents written so far
func (s *Spool) Reader() io.Reader {
	return io.NewSectionReader(s, 0, s.Size())
}

// Size returns the number of bytes written
func (s *Spool) Size() int64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.size
}

// Close closes and removes the backing file
func (s *Spool) Close() error {
	var err error
	s.onceClose.Do(func() {
		err = s.file.Close()
		if rmErr := os.Remove(s.file.Name()); err == nil {
			err = rmErr
		}
	})
	return err
}
