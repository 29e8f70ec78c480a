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

// Package fec provides the forward error correction codecs used to protect
// splitfile segments. A codec turns n equally sized data blocks into check
// blocks, and rebuilds missing data blocks from any sufficient subset.
package fec

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrUnknownCodec  = errors.New("fec: unknown codec")
	ErrTooFewBlocks  = errors.New("fec: too few blocks to reconstruct")
	ErrBlockSize     = errors.New("fec: blocks differ in size")
	ErrInvalidLayout = errors.New("fec: invalid block layout")
)

// Codec is a pluggable erasure code
type Codec interface {
	// Name is the algorithm name recorded in splitfile metadata
	Name() string
	// CheckBlocks returns the number of check blocks generated for the given number of data blocks
	CheckBlocks(dataBlocks int) int
	// MaxBlocks returns the largest number of data plus check blocks a segment may have
	MaxBlocks() int
	// Encode returns the check blocks for the given data blocks, which must all have the same size
	Encode(data [][]byte) ([][]byte, error)
	// Reconstruct fills in the missing (nil) data blocks of blocks, which holds the data
	// blocks followed by the check blocks
	Reconstruct(dataBlocks int, blocks [][]byte) error
}

var (
	registryMutex sync.RWMutex
	registry      = map[string]Codec{}
)

// Register makes a codec available to Lookup
func Register(codec Codec) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	registry[codec.Name()] = codec
}

// Lookup returns the registered codec with the given name
func Lookup(name string) (Codec, error) {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	codec, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return codec, nil
}

// Names returns the names of the registered codecs, sorted
func Names() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	ret := make([]string, 0, len(registry))
	for name := range registry {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Default returns the codec used for new inserts
func Default() Codec {
	return defaultCodec
}

func init() {
	Register(defaultCodec)
}
