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
	"fmt"
	"sync"
)

// MemoryStore keeps blocks in memory
type MemoryStore struct {
	mutex  sync.RWMutex
	blocks map[string][]byte
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocks: make(map[string][]byte),
	}
}

func (m *MemoryStore) Put(ctx context.Context, id string, data []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	raw, err := encodeRecord(data)
	if err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.blocks[id] = raw
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) ([]byte, error) {
	m.mutex.RLock()
	raw, ok := m.blocks[id]
	closed := m.closed
	m.mutex.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	return decodeRecord(id, raw)
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.blocks, id)
	return nil
}

// Len returns the number of stored blocks
func (m *MemoryStore) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.blocks)
}

func (m *MemoryStore) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.closed = true
	m.blocks = nil
	return nil
}

// corrupt flips a byte of a stored record, for tests
func (m *MemoryStore) corrupt(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if raw, ok := m.blocks[id]; ok && len(raw) > 0 {
		raw[len(raw)-1] ^= 0xff
	}
}
