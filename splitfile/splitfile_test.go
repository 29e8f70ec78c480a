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
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blinklabs-io/gofcp/blockstore"
	"github.com/blinklabs-io/gofcp/config"
	"github.com/blinklabs-io/gofcp/fec"
	"github.com/blinklabs-io/gofcp/internal/test/fcpmock"
	"github.com/blinklabs-io/gofcp/key"
	"github.com/blinklabs-io/gofcp/metadata"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"
)

// memTransport is an in-memory node holding CHK blocks
type memTransport struct {
	mutex      sync.Mutex
	blocks     map[string][]byte
	flaky      map[string]int
	fetches    map[string]int
	inserts    atomic.Int64
	badKeys    map[string]bool
	collisions bool
}

func newMemTransport() *memTransport {
	return &memTransport{
		blocks:  make(map[string][]byte),
		flaky:   make(map[string]int),
		fetches: make(map[string]int),
		badKeys: make(map[string]bool),
	}
}

func (m *memTransport) InsertBlock(ctx context.Context, data []byte) (key.URI, error) {
	m.inserts.Add(1)
	uri := fcpmock.CHK(nil, data)
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.blocks[uri.String()]; ok && m.collisions {
		return uri, fmt.Errorf("%w: %s", ErrBlockCollision, uri.String())
	}
	m.blocks[uri.String()] = bytes.Clone(data)
	return uri, nil
}

func (m *memTransport) FetchBlock(ctx context.Context, uri key.URI) ([]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	k := uri.String()
	m.fetches[k]++
	if m.badKeys[k] {
		return nil, backoff.Permanent(errors.New("URIError"))
	}
	if m.flaky[k] > 0 {
		m.flaky[k]--
		return nil, errors.New("connection lost")
	}
	data, ok := m.blocks[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockUnavailable, k)
	}
	return bytes.Clone(data), nil
}

func (m *memTransport) drop(uri key.URI) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.blocks, uri.String())
}

func (m *memTransport) fetchCount(uri key.URI) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.fetches[uri.String()]
}

func testConfig() config.Config {
	return config.NewConfig(
		config.WithRetry(2),
		config.WithRetryDelay(time.Millisecond),
		config.WithParallelism(3),
	)
}

func pattern(n int) []byte {
	ret := make([]byte, n)
	for i := range ret {
		ret[i] = byte(i*7 + i/251)
	}
	return ret
}

func TestLayout(t *testing.T) {
	codec := fec.Default()
	testDefs := []struct {
		length     int64
		blockSize  int
		segments   int
		lastBlocks int
		lastCheck  int
		lastSize   int
	}{
		{length: 0, blockSize: 10, segments: 0},
		{length: 1, blockSize: 10, segments: 1, lastBlocks: 1, lastCheck: 1, lastSize: 1},
		{length: 100, blockSize: 10, segments: 1, lastBlocks: 10, lastCheck: 5, lastSize: 10},
		{length: 101, blockSize: 10, segments: 1, lastBlocks: 11, lastCheck: 6, lastSize: 1},
		{length: 320, blockSize: 10, segments: 1, lastBlocks: 32, lastCheck: 16, lastSize: 10},
		{length: 321, blockSize: 10, segments: 2, lastBlocks: 1, lastCheck: 1, lastSize: 1},
		{length: 1000, blockSize: 10, segments: 4, lastBlocks: 4, lastCheck: 2, lastSize: 10},
	}
	for _, testDef := range testDefs {
		t.Run(fmt.Sprintf("%d/%d", testDef.length, testDef.blockSize), func(t *testing.T) {
			segs, err := Layout(testDef.length, testDef.blockSize, 0, codec)
			require.NoError(t, err)
			require.Len(t, segs, testDef.segments)
			if testDef.segments == 0 {
				return
			}
			var total int64
			checkOffset := 0
			for i, seg := range segs {
				assert.Equal(t, i, seg.Index)
				assert.Equal(t, testDef.segments, seg.Total)
				assert.Equal(t, fec.ReedSolomonName, seg.Algorithm)
				assert.Equal(t, total, seg.Offset)
				assert.Equal(t, i*DefaultMaxDataBlocks, seg.DataBlockOffset)
				assert.Equal(t, checkOffset, seg.CheckBlockOffset)
				assert.Equal(t, seg.BlockCount, seg.BlocksRequired)
				assert.Equal(t, seg.BlockSize, seg.CheckBlockSize)
				assert.LessOrEqual(t, seg.BlockCount, DefaultMaxDataBlocks)
				assert.Len(t, seg.DataBlocks, seg.BlockCount)
				assert.Len(t, seg.CheckBlocks, seg.CheckBlockCount)
				total += seg.DataLength()
				checkOffset += seg.CheckBlockCount
			}
			assert.Equal(t, testDef.length, total)
			last := segs[len(segs)-1]
			assert.Equal(t, testDef.lastBlocks, last.BlockCount)
			assert.Equal(t, testDef.lastCheck, last.CheckBlockCount)
			assert.Equal(t, testDef.lastSize, last.DataBlocks[last.BlockCount-1].Size)
		})
	}
}

func TestLayoutErrors(t *testing.T) {
	_, err := Layout(-1, 10, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidLayout)
	_, err = Layout(10, 0, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidLayout)
	_, err = Layout(10, 10, 200, nil)
	assert.ErrorIs(t, err, ErrInvalidLayout)
	// 40 data blocks need 20 check blocks, past what one document can list
	_, err = Layout(10, 10, 40, nil)
	assert.ErrorIs(t, err, ErrInvalidLayout)
}

func TestSegmentDocumentFits(t *testing.T) {
	segs, err := Layout(32*10, 10, 0, nil)
	require.NoError(t, err)
	doc := segs[0].Document("")
	assert.Len(t, doc.Fields, 60)
	assert.LessOrEqual(t, len(doc.Fields), metadata.MaxFields)
}

func TestSplitReconstructProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 0, 4000).Draw(rt, "data")
		blockSize := rapid.IntRange(1, 64).Draw(rt, "blockSize")
		store := blockstore.NewMemoryStore()
		defer store.Close()
		ctx := context.Background()
		segs, err := Split(ctx, bytes.NewReader(data), int64(len(data)), blockSize, store, nil)
		if err != nil {
			rt.Fatalf("split: %s", err)
		}
		var out []byte
		for _, seg := range segs {
			available := make(map[int][]byte)
			for idx, blk := range seg.Blocks() {
				b, err := blk.Data(ctx)
				if err != nil {
					rt.Fatalf("block data: %s", err)
				}
				available[idx] = b
			}
			part, err := Reconstruct(seg, available, nil)
			if err != nil {
				rt.Fatalf("reconstruct: %s", err)
			}
			out = append(out, part...)
		}
		if !bytes.Equal(data, out) {
			rt.Fatalf("reconstructed %d bytes differ from %d input bytes", len(out), len(data))
		}
	})
}

func TestErasureToleranceProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		blockSize := rapid.IntRange(1, 32).Draw(rt, "blockSize")
		blocks := rapid.IntRange(1, DefaultMaxDataBlocks).Draw(rt, "blocks")
		length := rapid.IntRange((blocks-1)*blockSize+1, blocks*blockSize).Draw(rt, "length")
		data := pattern(length)
		store := blockstore.NewMemoryStore()
		defer store.Close()
		ctx := context.Background()
		segs, err := Split(ctx, bytes.NewReader(data), int64(length), blockSize, store, nil)
		if err != nil || len(segs) != 1 {
			rt.Fatalf("split: %v, %d segments", err, len(segs))
		}
		seg := segs[0]
		total := seg.BlockCount + seg.CheckBlockCount
		order := rapid.Permutation(rangeSlice(total)).Draw(rt, "order")
		drop := rapid.IntRange(0, total).Draw(rt, "drop")
		available := make(map[int][]byte)
		for _, idx := range order[drop:] {
			b, err := seg.Block(idx).Data(ctx)
			if err != nil {
				rt.Fatalf("block data: %s", err)
			}
			available[idx] = b
		}
		out, err := Reconstruct(seg, available, nil)
		if drop <= seg.CheckBlockCount {
			if err != nil {
				rt.Fatalf("dropping %d of %d check-tolerant blocks: %s", drop, seg.CheckBlockCount, err)
			}
			if !bytes.Equal(data, out) {
				rt.Fatalf("dropping %d blocks corrupted the segment", drop)
			}
			return
		}
		var insufficient *InsufficientBlocksError
		if !errors.As(err, &insufficient) || !errors.Is(err, ErrInsufficientBlocks) {
			rt.Fatalf("dropping %d > %d blocks: got %v", drop, seg.CheckBlockCount, err)
		}
	})
}

func rangeSlice(n int) []int {
	ret := make([]int, n)
	for i := range ret {
		ret[i] = i
	}
	return ret
}

func TestReconstructDeterministic(t *testing.T) {
	data := pattern(95)
	store := blockstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()
	segs, err := Split(ctx, bytes.NewReader(data), 95, 10, store, nil)
	require.NoError(t, err)
	seg := segs[0]
	available := make(map[int][]byte)
	for idx, blk := range seg.Blocks() {
		if idx == 2 || idx == 9 {
			continue
		}
		available[idx], err = blk.Data(ctx)
		require.NoError(t, err)
	}
	first, err := Reconstruct(seg, available, nil)
	require.NoError(t, err)
	second, err := Reconstruct(seg, available, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, data, first)
}

func TestSplitShortInput(t *testing.T) {
	store := blockstore.NewMemoryStore()
	defer store.Close()
	_, err := Split(context.Background(), bytes.NewReader(pattern(50)), 100, 10, store, nil)
	assert.ErrorIs(t, err, ErrShortInput)
	// Blocks stored before the failure are released
	assert.Equal(t, 0, store.Len())
}

func TestDocumentRoundTrip(t *testing.T) {
	store := blockstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()
	data := pattern(700)
	segs, err := Split(ctx, bytes.NewReader(data), 700, 10, store, nil)
	require.NoError(t, err)
	require.Len(t, segs, 3)
	transport := newMemTransport()
	require.NoError(t, NewInserter(transport, WithConfig(testConfig())).Insert(ctx, segs))

	chain := metadata.NewChain()
	// Out of order on purpose
	for _, i := range []int{2, 0, 1} {
		chain.Add(segs[i].Document(""))
	}
	chain.Add(metadata.NewInfo("", "text/plain", ""))
	raw, err := chain.Encode()
	require.NoError(t, err)
	decoded, err := metadata.Decode(raw)
	require.NoError(t, err)
	parsed, err := FromDocuments(decoded.Find(""))
	require.NoError(t, err)
	require.Len(t, parsed, 3)
	for i, seg := range parsed {
		orig := segs[i]
		assert.Equal(t, orig.Offset, seg.Offset)
		assert.Equal(t, orig.BlockCount, seg.BlockCount)
		assert.Equal(t, orig.CheckBlockCount, seg.CheckBlockCount)
		assert.Equal(t, orig.CheckBlockOffset, seg.CheckBlockOffset)
		for j, blk := range seg.Blocks() {
			assert.Equal(t, orig.Block(j).URI, blk.URI)
			assert.Equal(t, orig.Block(j).Size, blk.Size)
			assert.Equal(t, BlockStatusUnsent, blk.Status)
		}
	}
}

func TestFromDocumentsErrors(t *testing.T) {
	segs, err := Layout(250, 10, 0, nil)
	require.NoError(t, err)
	seg := segs[0]
	for _, blk := range seg.Blocks() {
		blk.URI = fcpmock.CHK(nil, []byte{byte(blk.Index)})
	}
	testDefs := []struct {
		name   string
		modify func(doc *metadata.Document)
	}{
		{name: "missing field", modify: func(doc *metadata.Document) {
			doc.Fields = doc.Fields[1:]
		}},
		{name: "leading zero", modify: func(doc *metadata.Document) { doc.Set(FieldBlockSize, "010") }},
		{name: "negative", modify: func(doc *metadata.Document) { doc.Set(FieldOffset, "-1") }},
		{name: "hex", modify: func(doc *metadata.Document) { doc.Set(FieldBlockCount, "1a") }},
		{name: "zero blocks", modify: func(doc *metadata.Document) { doc.Set(FieldBlockCount, "0") }},
		{name: "too many required", modify: func(doc *metadata.Document) { doc.Set(FieldBlocksRequired, "99") }},
		{name: "index past total", modify: func(doc *metadata.Document) { doc.Set(FieldSegment, "1") }},
		{name: "empty data blocks", modify: func(doc *metadata.Document) { doc.Set(FieldFileLength, "200") }},
		{name: "bad block key", modify: func(doc *metadata.Document) { doc.Set("Block.3", "freenet:KSK@foo") }},
		{name: "missing check key", modify: func(doc *metadata.Document) {
			doc.Fields = doc.Fields[:len(doc.Fields)-1]
		}},
		{name: "short coverage", modify: func(doc *metadata.Document) { doc.Set(FieldFileLength, "251") }},
		{name: "block count past field limit", modify: func(doc *metadata.Document) {
			doc.Fields = doc.Fields[:geometryFields]
			doc.Set(FieldFileLength, "20000000")
			doc.Set(FieldBlockSize, "1")
			doc.Set(FieldBlockCount, "20000000")
			doc.Set(FieldCheckBlockCount, "10000000")
			doc.Set(FieldBlocksRequired, "20000000")
		}},
		{name: "block count at int32 limit", modify: func(doc *metadata.Document) {
			doc.Set(FieldBlockCount, "2147483647")
			doc.Set(FieldCheckBlockCount, "2147483647")
		}},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			doc := seg.Document("")
			testDef.modify(doc)
			_, err := FromDocuments([]*metadata.Document{doc})
			assert.ErrorIs(t, err, ErrInvalidSegment)
		})
	}
	_, err = FromDocuments(nil)
	assert.ErrorIs(t, err, ErrInvalidSegment)
	parsed, err := FromDocuments([]*metadata.Document{seg.Document("")})
	require.NoError(t, err)
	assert.Len(t, parsed, 1)
}

func insertFixture(t *testing.T, length int, blockSize int) ([]byte, []*Segment, *memTransport) {
	t.Helper()
	ctx := context.Background()
	data := pattern(length)
	store := blockstore.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	segs, err := Split(ctx, bytes.NewReader(data), int64(length), blockSize, store, nil)
	require.NoError(t, err)
	transport := newMemTransport()
	require.NoError(t, NewInserter(transport, WithConfig(testConfig())).Insert(ctx, segs))
	for _, seg := range segs {
		for _, blk := range seg.Blocks() {
			require.Equal(t, BlockStatusSent, blk.Status)
			require.False(t, blk.URI.IsEmptyCHK())
		}
	}
	// Fetch from fresh segments, as a reader would
	var docs []*metadata.Document
	for _, seg := range segs {
		docs = append(docs, seg.Document(""))
	}
	parsed, err := FromDocuments(docs)
	require.NoError(t, err)
	return data, parsed, transport
}

func TestInsertFetchAll(t *testing.T) {
	defer goleak.VerifyNone(t)
	data, segs, transport := insertFixture(t, 2000, 16)
	require.Len(t, segs, 4)
	store := blockstore.NewMemoryStore()
	defer store.Close()
	var out bytes.Buffer
	require.NoError(t, NewFetcher(transport, store, WithConfig(testConfig())).FetchAll(context.Background(), segs, &out))
	assert.Equal(t, data, out.Bytes())
	for _, seg := range segs {
		for _, blk := range seg.DataBlocks {
			assert.Equal(t, BlockStatusFetched, blk.Status)
		}
		// No check blocks were needed
		for _, blk := range seg.CheckBlocks {
			assert.Equal(t, BlockStatusUnsent, blk.Status)
			assert.Equal(t, 0, transport.fetchCount(blk.URI))
		}
	}
}

func TestFetchFallsBackToCheckBlocks(t *testing.T) {
	defer goleak.VerifyNone(t)
	data, segs, transport := insertFixture(t, 300, 10)
	seg := segs[0]
	// 30 data blocks, 15 check blocks
	transport.drop(seg.DataBlocks[4].URI)
	transport.drop(seg.DataBlocks[17].URI)
	transport.drop(seg.CheckBlocks[0].URI)
	store := blockstore.NewMemoryStore()
	defer store.Close()
	out, err := NewFetcher(transport, store, WithConfig(testConfig())).FetchSegment(context.Background(), seg)
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, BlockStatusMissing, seg.DataBlocks[4].Status)
	assert.Equal(t, BlockStatusMissing, seg.CheckBlocks[0].Status)
	assert.Equal(t, BlockStatusFetched, seg.CheckBlocks[1].Status)
	assert.Equal(t, BlockStatusFetched, seg.CheckBlocks[2].Status)
	// Stops once enough blocks are held
	assert.Equal(t, BlockStatusUnsent, seg.CheckBlocks[3].Status)
	assert.Equal(t, 0, transport.fetchCount(seg.CheckBlocks[3].URI))
	// Not found is retried Retry times
	assert.Equal(t, 3, transport.fetchCount(seg.DataBlocks[4].URI))
}

func TestFetchInsufficient(t *testing.T) {
	defer goleak.VerifyNone(t)
	_, segs, transport := insertFixture(t, 40, 10)
	seg := segs[0]
	// 4 data blocks, 2 check blocks
	for _, idx := range []int{0, 1, 4} {
		transport.drop(seg.Block(idx).URI)
	}
	var out bytes.Buffer
	err := NewFetcher(transport, nil, WithConfig(testConfig())).FetchAll(context.Background(), segs, &out)
	assert.ErrorIs(t, err, ErrInsufficientBlocks)
	var insufficient *InsufficientBlocksError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 3, insufficient.Have)
	assert.Equal(t, 4, insufficient.Need)
	assert.Zero(t, out.Len())
}

func TestFetchAllStopsAtFailedSegment(t *testing.T) {
	defer goleak.VerifyNone(t)
	data, segs, transport := insertFixture(t, 100*10, 10)
	require.Len(t, segs, 4)
	seg := segs[2]
	for _, blk := range seg.CheckBlocks {
		transport.drop(blk.URI)
	}
	transport.drop(seg.DataBlocks[0].URI)
	var out bytes.Buffer
	err := NewFetcher(transport, nil, WithConfig(testConfig())).FetchAll(context.Background(), segs, &out)
	assert.ErrorIs(t, err, ErrInsufficientBlocks)
	// Only the segments before the failed one are written
	assert.Equal(t, data[:segs[2].Offset], out.Bytes())
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	data, segs, transport := insertFixture(t, 25, 10)
	transport.flaky[segs[0].DataBlocks[1].URI.String()] = 2
	out, err := NewFetcher(transport, nil, WithConfig(testConfig())).FetchSegment(context.Background(), segs[0])
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, 3, transport.fetchCount(segs[0].DataBlocks[1].URI))
}

func TestFetchPermanentError(t *testing.T) {
	defer goleak.VerifyNone(t)
	_, segs, transport := insertFixture(t, 25, 10)
	transport.badKeys[segs[0].DataBlocks[0].URI.String()] = true
	_, err := NewFetcher(transport, nil, WithConfig(testConfig())).FetchSegment(context.Background(), segs[0])
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBlockUnavailable)
	assert.Equal(t, 1, transport.fetchCount(segs[0].DataBlocks[0].URI))
}

func TestInsertCollisionIsNotAnError(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	store := blockstore.NewMemoryStore()
	defer store.Close()
	// Identical blocks collide with each other
	data := bytes.Repeat([]byte("abcdefghij"), 8)
	segs, err := Split(ctx, bytes.NewReader(data), int64(len(data)), 10, store, nil)
	require.NoError(t, err)
	transport := newMemTransport()
	transport.collisions = true
	require.NoError(t, NewInserter(transport, WithConfig(testConfig())).Insert(ctx, segs))
	first := segs[0].DataBlocks[0].URI
	for _, blk := range segs[0].DataBlocks {
		assert.Equal(t, BlockStatusSent, blk.Status)
		assert.Equal(t, first, blk.URI)
	}
	// Already sent blocks are skipped on a second insert
	before := transport.inserts.Load()
	require.NoError(t, NewInserter(transport, WithConfig(testConfig())).Insert(ctx, segs))
	assert.Equal(t, before, transport.inserts.Load())
}

func TestSegmentRelease(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemoryStore()
	defer store.Close()
	segs, err := Split(ctx, bytes.NewReader(pattern(55)), 55, 10, store, nil)
	require.NoError(t, err)
	assert.Equal(t, 6+3, store.Len())
	for _, seg := range segs {
		require.NoError(t, seg.Release(ctx))
	}
	assert.Equal(t, 0, store.Len())
	_, err = segs[0].DataBlocks[0].Data(ctx)
	assert.ErrorIs(t, err, ErrNoBlockData)
}

func TestBlockStatusString(t *testing.T) {
	assert.Equal(t, "Missing", BlockStatusMissing.String())
	assert.Equal(t, "BlockStatus(9)", BlockStatus(9).String())
}
