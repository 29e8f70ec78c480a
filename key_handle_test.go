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

package fcp_test

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"testing"
	"time"

	fcp "github.com/blinklabs-io/gofcp"
	"github.com/blinklabs-io/gofcp/config"
	"github.com/blinklabs-io/gofcp/internal/test"
	"github.com/blinklabs-io/gofcp/internal/test/fcpmock"
	"github.com/blinklabs-io/gofcp/key"
	"github.com/blinklabs-io/gofcp/metadata"
	"github.com/blinklabs-io/gofcp/splitfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func insertKey(t *testing.T, conn *fcp.Connection, uri key.URI, data []byte, mimeType string, options ...fcp.KeyHandleOptionFunc) key.URI {
	t.Helper()
	h, err := fcp.OpenKey(context.Background(), conn, uri, fcp.OpenWrite, options...)
	require.NoError(t, err)
	_, err = h.Write(data)
	require.NoError(t, err)
	if mimeType != "" {
		require.NoError(t, h.SetMimeType(mimeType))
	}
	require.NoError(t, h.Close())
	return h.URI()
}

func readKey(t *testing.T, conn *fcp.Connection, uri key.URI, options ...fcp.KeyHandleOptionFunc) ([]byte, *fcp.KeyHandle) {
	t.Helper()
	h, err := fcp.OpenKey(context.Background(), conn, uri, fcp.OpenRead, options...)
	require.NoError(t, err)
	data, err := io.ReadAll(h)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	return data, h
}

func storeChain(t *testing.T, node *fcpmock.Node, uri key.URI, data []byte, docs ...*metadata.Document) {
	t.Helper()
	chain := metadata.NewChain()
	chain.Add(docs...)
	meta, err := chain.Encode()
	require.NoError(t, err)
	node.Store(uri, meta, data)
}

func TestKeyHandleSimpleData(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, test.Config(t))
	data := test.Pattern(1000, 7)
	uri := insertKey(t, conn, key.NewKSK("simple"), data, "text/plain")
	assert.Equal(t, key.NewKSK("simple"), uri)
	assert.True(t, node.Has(uri))

	h, err := fcp.OpenKey(context.Background(), conn, uri, fcp.OpenRead)
	require.NoError(t, err)
	assert.Equal(t, fcp.HandleStateSimpleData, h.State())
	assert.Equal(t, int64(len(data)), h.Size())
	assert.Equal(t, "text/plain", h.MimeType())
	assert.Equal(t, 0, h.Segments())
	require.NotNil(t, h.Chain())
	assert.Len(t, h.Chain().FindType("", metadata.DocumentTypeInfo), 1)
	got, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	meta, err := io.ReadAll(readerFunc(h.ReadMetadata))
	require.NoError(t, err)
	decoded, err := metadata.Decode(meta)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", decoded.Format(""))
	require.NoError(t, h.Close())
	assert.Equal(t, fcp.HandleStateClosed, h.State())
}

func TestKeyHandleDefaultMimeType(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, test.Config(t))
	uri := insertKey(t, conn, key.NewCHK(), []byte("hello"), "")
	assert.Equal(t, key.KeyTypeCHK, uri.Type)
	assert.False(t, uri.IsEmptyCHK())
	data, h := readKey(t, conn, uri)
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, fcp.DefaultMimeType, h.MimeType())
}

func TestKeyHandleEmptyData(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, test.Config(t))
	uri := insertKey(t, conn, key.NewKSK("empty"), nil, "")
	data, h := readKey(t, conn, uri)
	assert.Empty(t, data)
	assert.Equal(t, int64(0), h.Size())
}

func splitfileConfig(t *testing.T) config.Config {
	return test.Config(t,
		config.WithBlockSize(1024),
		config.WithParallelism(2),
	)
}

// openSplitfile opens a splitfile key without fetching it and returns its segments as described
// by the metadata
func openSplitfile(t *testing.T, conn *fcp.Connection, uri key.URI) (*fcp.KeyHandle, []*splitfile.Segment) {
	t.Helper()
	h, err := fcp.OpenKey(context.Background(), conn, uri, fcp.OpenRead)
	require.NoError(t, err)
	require.Equal(t, fcp.HandleStateSplitfile, h.State())
	segments, err := splitfile.FromDocuments(h.Chain().Find(""))
	require.NoError(t, err)
	return h, segments
}

func TestKeyHandleSplitfile(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, splitfileConfig(t))
	// 41 blocks: a full segment of 32 and one of 9
	data := test.Pattern(40*1024+100, 3)
	uri := insertKey(t, conn, key.NewKSK("large"), data, "video/mpeg")

	h, segments := openSplitfile(t, conn, uri)
	assert.Equal(t, 2, h.Segments())
	assert.Equal(t, int64(len(data)), h.Size())
	assert.Equal(t, "video/mpeg", h.MimeType())
	require.Len(t, segments, 2)
	assert.Equal(t, 32, segments[0].BlockCount)
	assert.Equal(t, 16, segments[0].CheckBlockCount)
	assert.Equal(t, 9, segments[1].BlockCount)
	assert.Equal(t, 5, segments[1].CheckBlockCount)
	// Lose as many data blocks as each segment has check blocks
	for _, blk := range segments[0].DataBlocks[:16] {
		node.Drop(blk.URI)
	}
	for _, blk := range segments[1].DataBlocks[4:] {
		node.Drop(blk.URI)
	}
	got, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	require.NoError(t, h.Close())
}

func TestKeyHandleSplitfileInsufficientBlocks(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, splitfileConfig(t))
	data := test.Pattern(40*1024+100, 4)
	uri := insertKey(t, conn, key.NewKSK("lossy"), data, "")

	h, segments := openSplitfile(t, conn, uri)
	for _, blk := range segments[1].DataBlocks[:6] {
		node.Drop(blk.URI)
	}
	_, err := io.ReadAll(h)
	require.ErrorIs(t, err, splitfile.ErrInsufficientBlocks)
	assert.Equal(t, fcp.HandleStateFailed, h.State())
	// The error sticks
	_, err = h.Read(make([]byte, 1))
	assert.ErrorIs(t, err, splitfile.ErrInsufficientBlocks)
	require.NoError(t, h.Close())
}

func TestKeyHandleMetaRedirect(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, test.Config(t, config.WithMetaRedirect(true)))
	data := []byte("behind a redirect")
	uri := insertKey(t, conn, key.NewKSK("meta"), data, "text/plain")
	assert.Equal(t, 2, node.KeyCount())

	raw, h := readKey(t, conn, uri)
	assert.Equal(t, data, raw)
	assert.Equal(t, "text/plain", h.MimeType())
	assert.Equal(t, key.KeyTypeCHK, h.URI().Type)
}

func TestKeyHandleRedirect(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, test.Config(t))
	final := key.NewKSK("final")
	node.Store(final, nil, []byte("arrived"))
	storeChain(t, node, key.NewKSK("second"), nil, metadata.NewRedirect("", final))
	storeChain(t, node, key.NewKSK("first"), nil, metadata.NewRedirect("", key.NewKSK("second")))
	data, h := readKey(t, conn, key.NewKSK("first"))
	assert.Equal(t, []byte("arrived"), data)
	assert.Equal(t, final, h.URI())
}

func TestKeyHandleNoRedirect(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, test.Config(t, config.WithNoRedirect(true)))
	storeChain(t, node, key.NewKSK("first"), nil, metadata.NewRedirect("", key.NewKSK("second")))
	data, h := readKey(t, conn, key.NewKSK("first"))
	assert.Empty(t, data)
	assert.Equal(t, key.NewKSK("first"), h.URI())
	assert.NotNil(t, h.Chain().Control(""))
	assert.Equal(t, 0, node.Requests("ClientGet", key.NewKSK("second")))
}

func TestKeyHandleRedirectLoop(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, test.Config(t, config.WithMaxRedirects(3)))
	loop := key.NewKSK("loop")
	storeChain(t, node, loop, nil, metadata.NewRedirect("", loop))
	_, err := fcp.OpenKey(context.Background(), conn, loop, fcp.OpenRead)
	require.ErrorIs(t, err, fcp.ErrRedirectLoop)
	assert.Equal(t, 4, node.Requests("ClientGet", loop))
	// The session survives
	assert.NoError(t, conn.Err())
}

func TestKeyHandleDateRedirect(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, test.Config(t))
	now := time.Unix(1700000000, 0)
	edition := key.NewKSK(strconv.FormatInt(1700000000-1700000000%86400, 16) + "-news")
	node.Store(edition, nil, []byte("today"))
	storeChain(t, node, key.NewKSK("news"), nil, metadata.NewDateRedirect("", metadata.DateRedirect{
		Target:    key.NewKSK("news"),
		Increment: 24 * time.Hour,
	}))

	_, err := fcp.OpenKey(context.Background(), conn, key.NewKSK("news"), fcp.OpenRead)
	require.ErrorIs(t, err, fcp.ErrNoDatePolicy)

	data, h := readKey(
		t,
		conn,
		key.NewKSK("news"),
		fcp.WithDateRedirectPolicy(fcp.PeriodicDateRedirect{}),
		fcp.WithClock(func() time.Time { return now }),
	)
	assert.Equal(t, []byte("today"), data)
	assert.Equal(t, edition, h.URI())
}

func TestKeyHandleDateRedirectInsert(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, test.Config(t, config.WithDateRedirect(true)))
	clock := fcp.WithClock(func() time.Time { return time.Unix(1700000000, 0) })
	edition := key.NewKSK(strconv.FormatInt(1700000000-1700000000%86400, 16) + "-news")
	uri := insertKey(t, conn, key.NewKSK("news"), []byte("first edition"), "", clock)
	assert.Equal(t, key.NewKSK("news"), uri)
	assert.True(t, node.Has(edition))

	// The next period publishes a new edition; the redirect document is already in place
	later := fcp.WithClock(func() time.Time { return time.Unix(1700000000+86400, 0) })
	insertKey(t, conn, key.NewKSK("news"), []byte("second edition"), "", later)
	assert.Equal(t, 3, node.KeyCount())

	data, _ := readKey(t, conn, key.NewKSK("news"), fcp.WithDateRedirectPolicy(fcp.PeriodicDateRedirect{}), later)
	assert.Equal(t, []byte("second edition"), data)
}

func TestKeyHandleUserMetadata(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, test.Config(t))
	user := metadata.NewChain()
	user.Add(metadata.NewDocument(metadata.DocumentTypeExtInfo, "extra"))
	user.Rest = []byte("trailing")
	meta, err := user.Encode()
	require.NoError(t, err)

	h, err := fcp.OpenKey(context.Background(), conn, key.NewKSK("user"), fcp.OpenWrite)
	require.NoError(t, err)
	_, err = h.WriteMetadata(meta)
	require.NoError(t, err)
	_, err = h.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	data, r := readKey(t, conn, key.NewKSK("user"))
	assert.Equal(t, []byte("data"), data)
	assert.Len(t, r.Chain().Find("extra"), 1)
	assert.Equal(t, []byte("trailing"), r.Chain().Rest)
}

func TestKeyHandleRaw(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, test.Config(t))
	h, err := fcp.OpenKey(context.Background(), conn, key.NewKSK("raw"), fcp.OpenWrite|fcp.OpenRaw)
	require.NoError(t, err)
	_, err = h.WriteMetadata([]byte("not a chain"))
	require.NoError(t, err)
	_, err = h.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	r, err := fcp.OpenKey(context.Background(), conn, key.NewKSK("raw"), fcp.OpenRead|fcp.OpenRaw)
	require.NoError(t, err)
	defer r.Close()
	assert.Nil(t, r.Chain())
	meta, err := io.ReadAll(readerFunc(r.ReadMetadata))
	require.NoError(t, err)
	assert.Equal(t, []byte("not a chain"), meta)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	// Interpreted, the same key has malformed metadata
	_, err = fcp.OpenKey(context.Background(), conn, key.NewKSK("raw"), fcp.OpenRead)
	assert.ErrorIs(t, err, metadata.ErrMalformedMetadata)
}

func TestKeyHandleRemoteErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, test.Config(t))
	_, err := fcp.OpenKey(context.Background(), conn, key.NewKSK("nothing"), fcp.OpenRead)
	require.ErrorIs(t, err, fcp.ErrDataNotFound)
	assert.True(t, fcp.IsRemoteError(err))
	node.InjectFault(key.NewKSK("nothing"), fcpmock.FaultRouteNotFound, 1)
	_, err = fcp.OpenKey(context.Background(), conn, key.NewKSK("nothing"), fcp.OpenRead)
	require.ErrorIs(t, err, fcp.ErrRouteNotFound)
	assert.NoError(t, conn.Err())
}

func TestKeyHandleCollision(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, test.Config(t))
	insertKey(t, conn, key.NewKSK("taken"), []byte("one"), "")
	h, err := fcp.OpenKey(context.Background(), conn, key.NewKSK("taken"), fcp.OpenWrite)
	require.NoError(t, err)
	_, err = h.Write([]byte("two"))
	require.NoError(t, err)
	err = h.Close()
	require.ErrorIs(t, err, fcp.ErrKeyCollision)
	assert.NoError(t, h.Close())
}

func TestKeyHandleReinsertCHK(t *testing.T) {
	testDefs := []struct {
		name    string
		options []config.ConfigOptionFunc
		length  int
	}{
		{name: "simple", length: 500},
		{name: "splitfile", options: []config.ConfigOptionFunc{config.WithBlockSize(1024)}, length: 5000},
		{name: "meta redirect", options: []config.ConfigOptionFunc{config.WithMetaRedirect(true)}, length: 500},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)
			node := fcpmock.NewNode()
			defer node.Close()
			conn := test.Connect(t, node, test.Config(t, testDef.options...))
			data := test.Pattern(testDef.length, 3)
			first := insertKey(t, conn, key.NewCHK(), data, "")
			require.Equal(t, key.KeyTypeCHK, first.Type)
			require.False(t, first.IsEmptyCHK())
			keys := node.KeyCount()
			second := insertKey(t, conn, key.NewCHK(), data, "")
			assert.Equal(t, first, second)
			assert.Equal(t, keys, node.KeyCount())
			got, _ := readKey(t, conn, second)
			assert.Equal(t, data, got)
		})
	}
}

func TestKeyHandleModes(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, test.Config(t))
	ctx := context.Background()
	_, err := fcp.OpenKey(ctx, conn, key.NewKSK("x"), fcp.OpenRead|fcp.OpenWrite)
	assert.ErrorIs(t, err, fcp.ErrInvalidMode)
	_, err = fcp.OpenKey(ctx, conn, key.NewKSK("x"), fcp.OpenRaw)
	assert.ErrorIs(t, err, fcp.ErrInvalidMode)

	node.Store(key.NewKSK("x"), nil, []byte("x"))
	r, err := fcp.OpenKey(ctx, conn, key.NewKSK("x"), fcp.OpenRead)
	require.NoError(t, err)
	_, err = r.Write([]byte("y"))
	assert.ErrorIs(t, err, fcp.ErrInvalidMode)
	_, err = r.WriteMetadata([]byte("y"))
	assert.ErrorIs(t, err, fcp.ErrInvalidMode)
	assert.ErrorIs(t, r.SetMimeType("text/plain"), fcp.ErrInvalidMode)
	require.NoError(t, r.Close())

	w, err := fcp.OpenKey(ctx, conn, key.NewKSK("y"), fcp.OpenWrite)
	require.NoError(t, err)
	_, err = w.Read(make([]byte, 1))
	assert.ErrorIs(t, err, fcp.ErrInvalidMode)
	_, err = w.ReadMetadata(make([]byte, 1))
	assert.ErrorIs(t, err, fcp.ErrInvalidMode)
	require.NoError(t, w.Close())
}

func TestKeyHandleCloseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, splitfileConfig(t))
	data := test.Pattern(5000, 9)
	h, err := fcp.OpenKey(context.Background(), conn, key.NewKSK("twice"), fcp.OpenWrite)
	require.NoError(t, err)
	_, err = h.Write(data)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	puts := node.TotalRequests("ClientPut")
	require.NoError(t, h.Close())
	assert.Equal(t, puts, node.TotalRequests("ClientPut"))
	_, err = h.Write(data)
	assert.ErrorIs(t, err, fcp.ErrHandleClosed)

	r, err := fcp.OpenKey(context.Background(), conn, key.NewKSK("twice"), fcp.OpenRead)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, err = r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, fcp.ErrHandleClosed)
}

func TestKeyHandleCancelledOpen(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, test.Config(t))
	node.Store(key.NewKSK("x"), nil, bytes.Repeat([]byte("x"), 10))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fcp.OpenKey(ctx, conn, key.NewKSK("x"), fcp.OpenRead)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, node.TotalRequests("ClientGet"))
}

func TestKeyHandleAbort(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, test.Config(t))
	h, err := fcp.OpenKey(context.Background(), conn, key.NewKSK("aborted"), fcp.OpenWrite)
	require.NoError(t, err)
	_, err = h.Write([]byte("discarded"))
	require.NoError(t, err)
	require.NoError(t, h.Abort())
	require.NoError(t, h.Close())
	assert.Equal(t, fcp.HandleStateClosed, h.State())
	assert.Equal(t, 0, node.TotalRequests("ClientPut"))
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) {
	return f(p)
}
