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
	"github.com/blinklabs-io/gofcp/key"
	"github.com/blinklabs-io/gofcp/pipeline"
)

// Split reads totalLength bytes from r, stores every data block in store, and computes and
// stores the check blocks of each segment. Short final blocks are zero padded for FEC input
// only; the stored block keeps its real size.
func Split(
	ctx context.Context,
	r io.Reader,
	totalLength int64,
	blockSize int,
	store blockstore.Store,
	codec fec.Codec,
) ([]*Segment, error) {
	if codec == nil {
		codec = fec.Default()
	}
	segments, err := Layout(totalLength, blockSize, DefaultMaxDataBlocks, codec)
	if err != nil {
		return nil, err
	}
	for _, seg := range segments {
		if err := splitSegment(ctx, r, seg, store, codec); err != nil {
			// Best effort, the original error matters more
			for _, s := range segments {
				_ = s.Release(ctx)
			}
			return nil, err
		}
	}
	return segments, nil
}

func splitSegment(ctx context.Context, r io.Reader, seg *Segment, store blockstore.Store, codec fec.Codec) error {
	padded := make([][]byte, seg.BlockCount)
	for j, blk := range seg.DataBlocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf := make([]byte, seg.BlockSize)
		if _, err := io.ReadFull(r, buf[:blk.Size]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: segment %d block %d", ErrShortInput, seg.Index, j)
			}
			return fmt.Errorf("splitfile: read segment %d block %d: %w", seg.Index, j, err)
		}
		if err := blk.SetData(ctx, store, seg.storeID(blk), buf[:blk.Size]); err != nil {
			return err
		}
		padded[j] = buf
	}
	checks, err := codec.Encode(padded)
	if err != nil {
		return fmt.Errorf("splitfile: encode segment %d: %w", seg.Index, err)
	}
	if len(checks) != seg.CheckBlockCount {
		return fmt.Errorf(
			"%w: codec %s returned %d check blocks, want %d",
			ErrInvalidLayout,
			codec.Name(),
			len(checks),
			seg.CheckBlockCount,
		)
	}
	for j, blk := range seg.CheckBlocks {
		if err := blk.SetData(ctx, store, seg.storeID(blk), checks[j]); err != nil {
			return err
		}
	}
	return nil
}

// Inserter uploads the blocks of split segments
type Inserter struct {
	*engine
}

// NewInserter returns an Inserter that uploads through transport
func NewInserter(transport Transport, opts ...OptionFunc) *Inserter {
	return &Inserter{
		engine: newEngine(transport, nil, opts...),
	}
}

// Insert uploads every block that has not been sent yet. Segments are inserted in parallel,
// blocks within a segment in order: data blocks first, then check blocks.
func (i *Inserter) Insert(ctx context.Context, segments []*Segment) error {
	values := make([]any, len(segments))
	for idx, seg := range segments {
		values[idx] = seg
	}
	stage := pipeline.NewStageFunc("insert", func(ctx context.Context, item *pipeline.Item) error {
		seg, _ := item.Value().(*Segment)
		return i.insertSegment(ctx, seg)
	})
	_, err := pipeline.Run(
		ctx,
		stage,
		values,
		pipeline.WithWorkers(i.config.Parallelism),
		pipeline.WithFailFast(true),
	)
	return err
}

func (i *Inserter) insertSegment(ctx context.Context, seg *Segment) error {
	for _, blk := range seg.Blocks() {
		if blk.Status == BlockStatusSent {
			continue
		}
		data, err := blk.Data(ctx)
		if err != nil {
			return fmt.Errorf("splitfile: segment %d %s: %w", seg.Index, blk.name(), err)
		}
		var uri key.URI
		collided := false
		err = i.retry(ctx, "block insert", func() error {
			var err error
			uri, err = i.transport.InsertBlock(ctx, data)
			if errors.Is(err, ErrBlockCollision) && !uri.IsZero() {
				collided = true
				return nil
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("splitfile: insert segment %d %s: %w", seg.Index, blk.name(), err)
		}
		if collided {
			i.logger.Debug(
				"block already present",
				"component", "fcp",
				"segment", seg.Index,
				"block", blk.name(),
				"uri", uri.String(),
			)
		}
		blk.URI = uri
		blk.Status = BlockStatusSent
	}
	i.logger.Debug(
		"inserted segment",
		"component", "fcp",
		"segment", seg.Index,
		"segments", seg.Total,
	)
	return nil
}
