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

package fec_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/blinklabs-io/gofcp/fec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBlocks(t *testing.T, count int, size int) [][]byte {
	t.Helper()
	rng := rand.New(rand.NewSource(int64(count*1000 + size)))
	ret := make([][]byte, count)
	for i := range ret {
		ret[i] = make([]byte, size)
		_, _ = rng.Read(ret[i])
	}
	return ret
}

func TestCheckBlocks(t *testing.T) {
	codec := fec.Default()
	tests := map[int]int{1: 1, 2: 1, 3: 2, 4: 2, 31: 16, 32: 16}
	for data, check := range tests {
		assert.Equal(t, check, codec.CheckBlocks(data), "data blocks %d", data)
	}
}

func TestLookup(t *testing.T) {
	codec, err := fec.Lookup(fec.ReedSolomonName)
	require.NoError(t, err)
	assert.Equal(t, fec.ReedSolomonName, codec.Name())
	assert.Contains(t, fec.Names(), fec.ReedSolomonName)
	_, err = fec.Lookup("OnionFEC_a_1_2")
	assert.ErrorIs(t, err, fec.ErrUnknownCodec)
}

func TestEncodeReconstruct(t *testing.T) {
	codec := fec.Default()
	for _, count := range []int{1, 2, 5, 32} {
		data := randomBlocks(t, count, 512)
		check, err := codec.Encode(data)
		require.NoError(t, err)
		require.Len(t, check, codec.CheckBlocks(count))
		// Drop as many data blocks as there are check blocks
		blocks := make([][]byte, 0, count+len(check))
		for _, b := range data {
			blocks = append(blocks, bytes.Clone(b))
		}
		blocks = append(blocks, check...)
		for i := 0; i < len(check) && i < count; i++ {
			blocks[i] = nil
		}
		require.NoError(t, codec.Reconstruct(count, blocks))
		for i := range data {
			assert.Equal(t, data[i], blocks[i], "block %d of %d", i, count)
		}
	}
}

func TestReconstructTooFew(t *testing.T) {
	codec := fec.Default()
	data := randomBlocks(t, 4, 64)
	check, err := codec.Encode(data)
	require.NoError(t, err)
	blocks := append([][]byte{nil, nil, nil, data[3]}, check...)
	err = codec.Reconstruct(4, blocks)
	assert.ErrorIs(t, err, fec.ErrTooFewBlocks)
}

func TestEncodeErrors(t *testing.T) {
	codec := fec.Default()
	_, err := codec.Encode([][]byte{make([]byte, 4), make([]byte, 5)})
	assert.ErrorIs(t, err, fec.ErrBlockSize)
	_, err = codec.Encode(nil)
	assert.ErrorIs(t, err, fec.ErrInvalidLayout)
	err = codec.Reconstruct(4, make([][]byte, 5))
	assert.ErrorIs(t, err, fec.ErrInvalidLayout)
}
