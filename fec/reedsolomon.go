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

package fec

import (
	"errors"
	"fmt"
	"sync"

	rs "github.com/klauspost/reedsolomon"
)

// ReedSolomonName is the algorithm name of the rate 1/2 Reed-Solomon codec
const ReedSolomonName = "ReedSolomon_1_2"

// GF(2^8) limit of the encoder
const reedSolomonMaxBlocks = 256

var defaultCodec = NewReedSolomon()

// ReedSolomon is a rate 1/2 Reed-Solomon codec: n data blocks get ceil(n/2) check blocks
type ReedSolomon struct {
	mutex    sync.Mutex
	encoders map[[2]int]rs.Encoder
}

func NewReedSolomon() *ReedSolomon {
	return &ReedSolomon{
		encoders: make(map[[2]int]rs.Encoder),
	}
}

func (r *ReedSolomon) Name() string {
	return ReedSolomonName
}

func (r *ReedSolomon) CheckBlocks(dataBlocks int) int {
	return max(1, (dataBlocks+1)/2)
}

func (r *ReedSolomon) MaxBlocks() int {
	return reedSolomonMaxBlocks
}

func (r *ReedSolomon) encoder(dataBlocks int, checkBlocks int) (rs.Encoder, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	k := [2]int{dataBlocks, checkBlocks}
	if enc, ok := r.encoders[k]; ok {
		return enc, nil
	}
	enc, err := rs.New(dataBlocks, checkBlocks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLayout, err)
	}
	r.encoders[k] = enc
	return enc, nil
}

func (r *ReedSolomon) Encode(data [][]byte) ([][]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no data blocks", ErrInvalidLayout)
	}
	size := len(data[0])
	for _, block := range data {
		if len(block) != size {
			return nil, ErrBlockSize
		}
	}
	checkBlocks := r.CheckBlocks(len(data))
	enc, err := r.encoder(len(data), checkBlocks)
	if err != nil {
		return nil, err
	}
	shards := make([][]byte, 0, len(data)+checkBlocks)
	shards = append(shards, data...)
	for range checkBlocks {
		shards = append(shards, make([]byte, size))
	}
	if err := enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("fec: encode: %w", err)
	}
	return shards[len(data):], nil
}

func (r *ReedSolomon) Reconstruct(dataBlocks int, blocks [][]byte) error {
	checkBlocks := len(blocks) - dataBlocks
	if dataBlocks <= 0 || checkBlocks != r.CheckBlocks(dataBlocks) {
		return fmt.Errorf("%w: %d blocks for %d data blocks", ErrInvalidLayout, len(blocks), dataBlocks)
	}
	enc, err := r.encoder(dataBlocks, checkBlocks)
	if err != nil {
		return err
	}
	if err := enc.ReconstructData(blocks); err != nil {
		switch {
		case errors.Is(err, rs.ErrTooFewShards):
			return fmt.Errorf("%w: %w", ErrTooFewBlocks, err)
		case errors.Is(err, rs.ErrShardSize), errors.Is(err, rs.ErrShardNoData):
			return fmt.Errorf("%w: %w", ErrBlockSize, err)
		}
		return fmt.Errorf("fec: reconstruct: %w", err)
	}
	return nil
}
