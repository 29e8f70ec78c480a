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
	"fmt"
	"io"

	"github.com/blinklabs-io/gofcp/blockstore"
	"github.com/blinklabs-io/gofcp/fec"
	"github.com/blinklabs-io/gofcp/pipeline"
	"github.com/cenkalti/backoff/v4"
)

// Reconstruct rebuilds the bytes of a segment from the available blocks, keyed by combined
// index: data blocks are 0..BlockCount-1 and check blocks follow. The same set of blocks
// always yields the same bytes.
func Reconstruct(seg *Segment, available map[int][]byte, codec fec.Codec) ([]byte, error) {
	if codec == nil {
		var err error
		if codec, err = fec.Lookup(seg.Algorithm); err != nil {
			return nil, err
		}
	}
	total := seg.BlockCount + seg.CheckBlockCount
	have := 0
	for idx, b := range available {
		if idx >= 0 && idx < total && b != nil {
			have++
		}
	}
	out := make([]byte, seg.BlockCount*seg.BlockSize)
	complete := true
	for j := range seg.BlockCount {
		if available[j] == nil {
			complete = false
			break
		}
	}
	if complete {
		for j := range seg.BlockCount {
			copy(out[j*seg.BlockSize:(j+1)*seg.BlockSize], available[j])
		}
		return out[:seg.DataLength()], nil
	}
	if have < seg.BlocksRequired {
		return nil, &InsufficientBlocksError{Segment: seg.Index, Have: have, Need: seg.BlocksRequired}
	}
	shards := make([][]byte, total)
	for idx := range total {
		b := available[idx]
		if b == nil {
			continue
		}
		size := seg.BlockSize
		if idx >= seg.BlockCount {
			size = seg.CheckBlockSize
		}
		if len(b) > size {
			return nil, fmt.Errorf("%w: segment %d block %d is %d bytes", ErrFECDecode, seg.Index, idx, len(b))
		}
		shard := make([]byte, size)
		copy(shard, b)
		shards[idx] = shard
	}
	if err := codec.Reconstruct(seg.BlockCount, shards); err != nil {
		if errors.Is(err, fec.ErrTooFewBlocks) {
			return nil, &InsufficientBlocksError{Segment: seg.Index, Have: have, Need: seg.BlocksRequired}
		}
		return nil, fmt.Errorf("%w: segment %d: %w", ErrFECDecode, seg.Index, err)
	}
	for j := range seg.BlockCount {
		copy(out[j*seg.BlockSize:(j+1)*seg.BlockSize], shards[j])
	}
	return out[:seg.DataLength()], nil
}

// Fetcher retrieves and reassembles splitfile segments
type Fetcher struct {
	*engine
}

// NewFetcher returns a Fetcher that downloads through transport and keeps blocks in store
func NewFetcher(transport Transport, store blockstore.Store, opts ...OptionFunc) *Fetcher {
	return &Fetcher{
		engine: newEngine(transport, store, opts...),
	}
}

// FetchSegment fetches the data blocks of a segment and, only if some are not found, as many
// check blocks as needed to reconstruct it.
func (f *Fetcher) FetchSegment(ctx context.Context, seg *Segment) ([]byte, error) {
	codec, err := f.codecFor(seg)
	if err != nil {
		return nil, err
	}
	available := make(map[int][]byte, seg.BlocksRequired)
	missingData := false
	for _, blk := range seg.DataBlocks {
		data, err := f.fetchBlock(ctx, seg, blk)
		if err != nil {
			if errors.Is(err, ErrBlockUnavailable) {
				missingData = true
				continue
			}
			return nil, err
		}
		available[blk.Index] = data
	}
	if missingData {
		for _, blk := range seg.CheckBlocks {
			if len(available) >= seg.BlocksRequired {
				break
			}
			data, err := f.fetchBlock(ctx, seg, blk)
			if err != nil {
				if errors.Is(err, ErrBlockUnavailable) {
					continue
				}
				return nil, err
			}
			available[seg.BlockCount+blk.Index] = data
		}
	}
	return Reconstruct(seg, available, codec)
}

func (f *Fetcher) fetchBlock(ctx context.Context, seg *Segment, blk *Block) ([]byte, error) {
	if blk.Status == BlockStatusFetched {
		if data, err := blk.Data(ctx); err == nil {
			return data, nil
		}
	}
	if blk.URI.IsZero() {
		return nil, fmt.Errorf("%w: segment %d %s has no key", ErrInvalidSegment, seg.Index, blk.name())
	}
	var data []byte
	err := f.retry(ctx, "block fetch", func() error {
		var err error
		data, err = f.transport.FetchBlock(ctx, blk.URI)
		if err == nil && len(data) != blk.Size {
			return backoff.Permanent(
				fmt.Errorf("%w: %d bytes, want %d", ErrBlockUnavailable, len(data), blk.Size),
			)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, ErrBlockUnavailable) {
			blk.Status = BlockStatusMissing
			f.logger.Debug(
				"block unavailable",
				"component", "fcp",
				"segment", seg.Index,
				"block", blk.name(),
				"uri", blk.URI.String(),
			)
		}
		return nil, fmt.Errorf("splitfile: fetch segment %d %s: %w", seg.Index, blk.name(), err)
	}
	if f.store != nil {
		if err := blk.SetData(ctx, f.store, seg.storeID(blk), data); err != nil {
			return nil, err
		}
	}
	blk.Status = BlockStatusFetched
	return data, nil
}

// FetchAll fetches segments in parallel and writes their bytes to w in segment order. Nothing
// after a failed segment is written.
func (f *Fetcher) FetchAll(ctx context.Context, segments []*Segment, w io.Writer) error {
	values := make([]any, len(segments))
	for idx, seg := range segments {
		if seg.Index != idx {
			return fmt.Errorf("%w: segment %d at position %d", ErrInvalidSegment, seg.Index, idx)
		}
		values[idx] = seg
	}
	stage := pipeline.NewStageFunc("fetch", func(ctx context.Context, item *pipeline.Item) error {
		seg, _ := item.Value().(*Segment)
		data, err := f.FetchSegment(ctx, seg)
		if err != nil {
			return err
		}
		item.SetResult(data)
		return nil
	})
	_, err := pipeline.Run(
		ctx,
		stage,
		values,
		pipeline.WithWorkers(f.config.Parallelism),
		pipeline.WithHaltOnError(true),
		pipeline.WithFailFast(true),
		pipeline.WithApplyFunc(func(item *pipeline.Item) error {
			data, _ := item.Result().([]byte)
			_, err := w.Write(data)
			item.SetResult(nil)
			return err
		}),
	)
	return err
}
