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

// Package splitfile splits large objects into segments of fixed-size blocks
// protected by FEC check blocks, inserts them through a Freenet node, and
// fetches and reassembles them from any sufficient subset of blocks.
package splitfile

import (
	"context"
	"errors"
	"fmt"

	"github.com/blinklabs-io/gofcp/blockstore"
	"github.com/blinklabs-io/gofcp/fec"
	"github.com/blinklabs-io/gofcp/key"
)

// DefaultMaxDataBlocks is the largest number of data blocks in one segment
const DefaultMaxDataBlocks = 32

var (
	ErrInsufficientBlocks = errors.New("splitfile: insufficient blocks to reconstruct segment")
	ErrFECDecode          = errors.New("splitfile: FEC decode failed")
	ErrInvalidLayout      = errors.New("splitfile: invalid layout")
	ErrInvalidSegment     = errors.New("splitfile: invalid segment document")
	ErrShortInput         = errors.New("splitfile: input shorter than declared length")
	ErrNoBlockData        = errors.New("splitfile: block has no local data")
)

// InsufficientBlocksError reports a segment that cannot be rebuilt from the blocks at hand
type InsufficientBlocksError struct {
	Segment int
	Have    int
	Need    int
}

func (e *InsufficientBlocksError) Error() string {
	return fmt.Sprintf("%s: segment %d has %d of %d blocks", ErrInsufficientBlocks, e.Segment, e.Have, e.Need)
}

func (e *InsufficientBlocksError) Unwrap() error {
	return ErrInsufficientBlocks
}

// BlockStatus is the state of a block relative to the remote store
type BlockStatus uint8

const (
	BlockStatusUnsent  BlockStatus = 0
	BlockStatusSent    BlockStatus = 1
	BlockStatusFetched BlockStatus = 2
	BlockStatusMissing BlockStatus = 3
)

func (s BlockStatus) String() string {
	switch s {
	case BlockStatusUnsent:
		return "Unsent"
	case BlockStatusSent:
		return "Sent"
	case BlockStatusFetched:
		return "Fetched"
	case BlockStatusMissing:
		return "Missing"
	}
	return fmt.Sprintf("BlockStatus(%d)", s)
}

// Block is one data or check block of a segment
type Block struct {
	// Index is the position of the block within its segment's data or check blocks
	Index  int
	Check  bool
	Size   int
	Status BlockStatus
	URI    key.URI
	// DeleteOnClose removes the local copy when the segment is released
	DeleteOnClose bool
	StoreID       string
	store         blockstore.Store
}

// Data reads the local copy of the block
func (b *Block) Data(ctx context.Context) ([]byte, error) {
	if b.store == nil || b.StoreID == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoBlockData, b.name())
	}
	return b.store.Get(ctx, b.StoreID)
}

// SetData stores a local copy of the block
func (b *Block) SetData(ctx context.Context, store blockstore.Store, id string, data []byte) error {
	if err := store.Put(ctx, id, data); err != nil {
		return err
	}
	b.store = store
	b.StoreID = id
	b.DeleteOnClose = true
	return nil
}

// Release removes the local copy if the block owns it
func (b *Block) Release(ctx context.Context) error {
	if !b.DeleteOnClose || b.store == nil {
		return nil
	}
	err := b.store.Delete(ctx, b.StoreID)
	b.store = nil
	b.StoreID = ""
	b.DeleteOnClose = false
	return err
}

func (b *Block) name() string {
	if b.Check {
		return fmt.Sprintf("check block %d", b.Index)
	}
	return fmt.Sprintf("data block %d", b.Index)
}

// Segment describes one independently encodable slice of a splitfile
type Segment struct {
	Algorithm  string
	FileLength int64
	// Offset is the position of the segment's first byte in the file
	Offset          int64
	BlockSize       int
	BlockCount      int
	DataBlockOffset int
	CheckBlockSize  int
	CheckBlockCount int
	// CheckBlockOffset is the index of the segment's first check block among all check blocks
	CheckBlockOffset int
	Index            int
	Total            int
	BlocksRequired   int
	DataBlocks       []*Block
	CheckBlocks      []*Block
}

// DataLength returns the number of file bytes the segment holds
func (s *Segment) DataLength() int64 {
	// #nosec G115
	return min(int64(s.BlockCount)*int64(s.BlockSize), s.FileLength-s.Offset)
}

// Block returns the block with the given combined index: data blocks first, then check blocks
func (s *Segment) Block(idx int) *Block {
	if idx < len(s.DataBlocks) {
		return s.DataBlocks[idx]
	}
	return s.CheckBlocks[idx-len(s.DataBlocks)]
}

// Blocks returns the data blocks followed by the check blocks
func (s *Segment) Blocks() []*Block {
	ret := make([]*Block, 0, len(s.DataBlocks)+len(s.CheckBlocks))
	ret = append(ret, s.DataBlocks...)
	return append(ret, s.CheckBlocks...)
}

// Release removes the local copies of all blocks owned by the segment
func (s *Segment) Release(ctx context.Context) error {
	var errs []error
	for _, b := range s.Blocks() {
		if err := b.Release(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Segment) storeID(b *Block) string {
	if b.Check {
		return fmt.Sprintf("seg%d-check%d", s.Index, b.Index)
	}
	return fmt.Sprintf("seg%d-data%d", s.Index, b.Index)
}

// Layout computes the segment geometry for an object of totalLength bytes. The final data
// block may be short; its declared size is its real size.
func Layout(totalLength int64, blockSize int, maxBlocksPerSegment int, codec fec.Codec) ([]*Segment, error) {
	if totalLength < 0 || blockSize <= 0 {
		return nil, fmt.Errorf("%w: length %d, block size %d", ErrInvalidLayout, totalLength, blockSize)
	}
	if codec == nil {
		codec = fec.Default()
	}
	if maxBlocksPerSegment <= 0 {
		maxBlocksPerSegment = DefaultMaxDataBlocks
	}
	segmentBlocks := maxBlocksPerSegment + codec.CheckBlocks(maxBlocksPerSegment)
	if segmentBlocks > codec.MaxBlocks() || segmentBlocks > MaxDocumentBlocks {
		return nil, fmt.Errorf(
			"%w: %d data blocks per segment exceeds the %s or document limit",
			ErrInvalidLayout,
			maxBlocksPerSegment,
			codec.Name(),
		)
	}
	// #nosec G115
	bs := int64(blockSize)
	totalBlocks := (totalLength + bs - 1) / bs
	// #nosec G115
	perSegment := int64(maxBlocksPerSegment)
	// #nosec G115
	segmentCount := int((totalBlocks + perSegment - 1) / perSegment)
	segments := make([]*Segment, 0, segmentCount)
	checkOffset := 0
	for i := range segmentCount {
		// #nosec G115
		firstBlock := int64(i) * perSegment
		// #nosec G115
		blockCount := int(min(perSegment, totalBlocks-firstBlock))
		checkCount := codec.CheckBlocks(blockCount)
		seg := &Segment{
			Algorithm:  codec.Name(),
			FileLength: totalLength,
			Offset:     firstBlock * bs,
			BlockSize:  blockSize,
			BlockCount: blockCount,
			// #nosec G115
			DataBlockOffset:  int(firstBlock),
			CheckBlockSize:   blockSize,
			CheckBlockCount:  checkCount,
			CheckBlockOffset: checkOffset,
			Index:            i,
			Total:            segmentCount,
			BlocksRequired:   blockCount,
		}
		seg.allocateBlocks()
		segments = append(segments, seg)
		checkOffset += checkCount
	}
	return segments, nil
}

// allocateBlocks creates the block records from the segment geometry
func (s *Segment) allocateBlocks() {
	dataLength := s.DataLength()
	s.DataBlocks = make([]*Block, s.BlockCount)
	for j := range s.DataBlocks {
		// #nosec G115
		start := int64(j) * int64(s.BlockSize)
		s.DataBlocks[j] = &Block{
			Index: j,
			// #nosec G115
			Size: int(min(int64(s.BlockSize), dataLength-start)),
		}
	}
	s.CheckBlocks = make([]*Block, s.CheckBlockCount)
	for j := range s.CheckBlocks {
		s.CheckBlocks[j] = &Block{
			Index: j,
			Check: true,
			Size:  s.CheckBlockSize,
		}
	}
}
