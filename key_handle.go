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

package fcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/blinklabs-io/gofcp/blockstore"
	"github.com/blinklabs-io/gofcp/config"
	"github.com/blinklabs-io/gofcp/fec"
	"github.com/blinklabs-io/gofcp/key"
	"github.com/blinklabs-io/gofcp/metadata"
	"github.com/blinklabs-io/gofcp/protocol"
	"github.com/blinklabs-io/gofcp/splitfile"
)

// DefaultMimeType is recorded for inserted data without an explicit MIME type
const DefaultMimeType = "application/octet-stream"

// OpenMode selects what a key handle may do
type OpenMode uint8

const (
	OpenRead OpenMode = 1 << iota
	OpenWrite
	// OpenRaw disables metadata interpretation: no redirects, splitfiles or info documents
	OpenRaw
)

// HandleState is the lifecycle state of a key handle
type HandleState uint8

const (
	HandleStateOpening HandleState = iota
	HandleStateResolving
	HandleStateSplitfile
	HandleStateSimpleData
	HandleStateFailed
	HandleStateClosed
)

func (s HandleState) String() string {
	switch s {
	case HandleStateOpening:
		return "Opening"
	case HandleStateResolving:
		return "Resolving"
	case HandleStateSplitfile:
		return "Splitfile"
	case HandleStateSimpleData:
		return "SimpleData"
	case HandleStateFailed:
		return "Failed"
	case HandleStateClosed:
		return "Closed"
	}
	return fmt.Sprintf("HandleState(%d)", uint8(s))
}

// KeyHandleOptionFunc configures a key handle
type KeyHandleOptionFunc func(*KeyHandle)

// WithDateRedirectPolicy sets the policy used to follow and insert date-based redirects
func WithDateRedirectPolicy(policy DateRedirectPolicy) KeyHandleOptionFunc {
	return func(h *KeyHandle) {
		h.datePolicy = policy
	}
}

// WithClock sets the time source for date-based redirects
func WithClock(clock func() time.Time) KeyHandleOptionFunc {
	return func(h *KeyHandle) {
		h.clock = clock
	}
}

// WithBlockStore makes the handle keep splitfile blocks in store instead of a private store
// opened from the session config. The handle does not close it.
func WithBlockStore(store blockstore.Store) KeyHandleOptionFunc {
	return func(h *KeyHandle) {
		h.store = store
	}
}

// KeyHandle reads or writes the data stored under one key. A read handle follows redirects and
// reassembles splitfiles. A write handle stages everything written to it and inserts it on Close.
// A KeyHandle is not safe for concurrent use.
type KeyHandle struct {
	conn       *Connection
	config     config.Config
	logger     *slog.Logger
	ctx        context.Context
	mode       OpenMode
	state      HandleState
	uri        key.URI
	target     key.URI
	mimeType   string
	size       int64
	chain      *metadata.Chain
	metadata   bytes.Buffer
	metaReader *bytes.Reader
	segments   []*splitfile.Segment
	spool      *blockstore.Spool
	dataReader io.Reader
	fetched    bool
	store      blockstore.Store
	ownedStore blockstore.Store
	storeDir   string
	datePolicy DateRedirectPolicy
	clock      func() time.Time
	err        error
}

// OpenKey opens a handle for uri on conn. A read handle resolves the key before OpenKey returns.
// ctx bounds every node exchange the handle makes, including the lazy splitfile fetch and the
// insert on Close. Cancelling it closes conn.
func OpenKey(
	ctx context.Context,
	conn *Connection,
	uri key.URI,
	mode OpenMode,
	options ...KeyHandleOptionFunc,
) (*KeyHandle, error) {
	if (mode&OpenRead != 0) == (mode&OpenWrite != 0) {
		return nil, fmt.Errorf("%w: open mode must be exactly one of read or write", ErrInvalidMode)
	}
	h := &KeyHandle{
		conn:   conn,
		config: conn.Config(),
		logger: conn.Logger(),
		ctx:    ctx,
		mode:   mode,
		state:  HandleStateOpening,
		uri:    uri,
		target: uri,
		clock:  time.Now,
	}
	for _, option := range options {
		option(h)
	}
	if h.config.RawMode {
		h.mode |= OpenRaw
	}
	spool, err := blockstore.NewSpool(h.config.TempDir)
	if err != nil {
		return nil, err
	}
	h.spool = spool
	if h.mode&OpenRead != 0 {
		if err := h.resolve(); err != nil {
			_ = h.release()
			return nil, err
		}
	}
	return h, nil
}

// URI returns the key the handle was opened with, or the key the data was inserted under once
// a write handle has been closed successfully
func (h *KeyHandle) URI() key.URI {
	return h.target
}

// Chain returns the decoded metadata of the resolved key, or nil
func (h *KeyHandle) Chain() *metadata.Chain {
	return h.chain
}

// MimeType returns the MIME type from the metadata, or the one set on a write handle
func (h *KeyHandle) MimeType() string {
	return h.mimeType
}

// Size returns the length of the data. For a write handle it is the number of bytes written so far.
func (h *KeyHandle) Size() int64 {
	if h.mode&OpenWrite != 0 {
		return h.spool.Size()
	}
	return h.size
}

// Segments returns the number of splitfile segments of the data
func (h *KeyHandle) Segments() int {
	return len(h.segments)
}

// State returns the lifecycle state
func (h *KeyHandle) State() HandleState {
	return h.state
}

// Read reads the data of the key. The blocks of a splitfile are fetched on the first call.
func (h *KeyHandle) Read(p []byte) (int, error) {
	if err := h.checkRead(); err != nil {
		return 0, err
	}
	if err := h.fetch(); err != nil {
		return 0, err
	}
	if h.dataReader == nil {
		h.dataReader = h.spool.Reader()
	}
	return h.dataReader.Read(p)
}

// ReadMetadata reads the raw metadata of the resolved key
func (h *KeyHandle) ReadMetadata(p []byte) (int, error) {
	if err := h.checkRead(); err != nil {
		return 0, err
	}
	if h.metaReader == nil {
		h.metaReader = bytes.NewReader(h.metadata.Bytes())
	}
	return h.metaReader.Read(p)
}

// Write stages data for insertion
func (h *KeyHandle) Write(p []byte) (int, error) {
	if err := h.checkWrite(); err != nil {
		return 0, err
	}
	return h.spool.Write(p)
}

// WriteMetadata stages metadata for insertion. Unless the handle is raw, the staged bytes must
// form a metadata chain; its documents and trailing bytes are inserted along with the ones the
// handle generates.
func (h *KeyHandle) WriteMetadata(p []byte) (int, error) {
	if err := h.checkWrite(); err != nil {
		return 0, err
	}
	return h.metadata.Write(p)
}

// SetMimeType sets the MIME type recorded in the info document of the insert
func (h *KeyHandle) SetMimeType(mimeType string) error {
	if err := h.checkWrite(); err != nil {
		return err
	}
	h.mimeType = mimeType
	return nil
}

// Close inserts the staged data of a write handle and releases every temporary resource. Calling
// Close again returns nil.
func (h *KeyHandle) Close() error {
	if h.state == HandleStateClosed {
		return nil
	}
	var err error
	if h.mode&OpenWrite != 0 && h.state == HandleStateOpening {
		if err = h.commit(); err != nil {
			h.logger.Error("insert failed",
				"component", "fcp",
				"uri", h.uri.String(),
				"error", err,
			)
		}
	}
	releaseErr := h.release()
	h.state = HandleStateClosed
	return errors.Join(err, releaseErr)
}

// Abort releases every temporary resource without inserting anything
func (h *KeyHandle) Abort() error {
	if h.state == HandleStateClosed {
		return nil
	}
	err := h.release()
	h.state = HandleStateClosed
	return err
}

func (h *KeyHandle) checkRead() error {
	switch {
	case h.state == HandleStateClosed:
		return ErrHandleClosed
	case h.mode&OpenRead == 0:
		return ErrInvalidMode
	case h.state == HandleStateFailed:
		return h.err
	}
	return nil
}

func (h *KeyHandle) checkWrite() error {
	switch {
	case h.state == HandleStateClosed:
		return ErrHandleClosed
	case h.mode&OpenWrite == 0, h.state != HandleStateOpening:
		return ErrInvalidMode
	}
	return nil
}

func (h *KeyHandle) setFailed(err error) error {
	h.state = HandleStateFailed
	h.err = err
	return err
}

// watch closes the session when the handle context is cancelled. The returned function stops watching.
func (h *KeyHandle) watch() func() bool {
	return context.AfterFunc(h.ctx, func() {
		_ = h.conn.Close()
	})
}

func (h *KeyHandle) contextError(err error) error {
	if ctxErr := h.ctx.Err(); ctxErr != nil && err != nil {
		return ctxErr
	}
	return err
}

// resolve follows the metadata of the key until it reaches data or a splitfile
func (h *KeyHandle) resolve() error {
	if err := h.ctx.Err(); err != nil {
		return h.setFailed(err)
	}
	defer h.watch()()
	h.state = HandleStateResolving
	raw := h.mode&OpenRaw != 0
	for hops := 0; ; hops++ {
		found, err := h.conn.Get(h.target)
		if err != nil {
			return h.setFailed(h.contextError(err))
		}
		payload := h.conn.Payload()
		meta, err := readMetadata(payload, found)
		if err != nil {
			_ = payload.Close()
			return h.setFailed(h.contextError(err))
		}
		h.metadata.Reset()
		_, _ = h.metadata.Write(meta)
		if raw {
			return h.stageData(payload)
		}
		chain := metadata.NewChain()
		if len(meta) > 0 {
			if chain, err = metadata.Decode(meta); err != nil {
				_ = payload.Close()
				return h.setFailed(err)
			}
		}
		h.chain = chain
		name := h.target.DocumentName()
		if format := chain.Format(name); format != "" {
			h.mimeType = format
		}
		next, err := h.control(chain, name)
		if err != nil {
			_ = payload.Close()
			return h.setFailed(err)
		}
		if h.state == HandleStateSplitfile {
			if err := payload.Close(); err != nil {
				return h.setFailed(h.contextError(err))
			}
			return nil
		}
		if next.IsZero() {
			return h.stageData(payload)
		}
		if err := payload.Close(); err != nil {
			return h.setFailed(h.contextError(err))
		}
		if hops >= h.config.MaxRedirects {
			return h.setFailed(fmt.Errorf("%w: gave up at %s", ErrRedirectLoop, next.String()))
		}
		h.logger.Debug("following redirect",
			"component", "fcp",
			"uri", h.target.String(),
			"target", next.String(),
		)
		h.target = next
	}
}

// control acts on the control document for name. It returns the key to follow next, or a zero
// URI when the chain ends here.
func (h *KeyHandle) control(chain *metadata.Chain, name string) (key.URI, error) {
	doc := chain.Control(name)
	if doc == nil {
		return key.URI{}, nil
	}
	switch doc.Type {
	case metadata.DocumentTypeRedirect:
		if h.config.NoRedirect {
			return key.URI{}, nil
		}
		return doc.Target()
	case metadata.DocumentTypeDateRedirect:
		if h.config.NoRedirect {
			return key.URI{}, nil
		}
		if h.datePolicy == nil {
			return key.URI{}, fmt.Errorf("%w: %s", ErrNoDatePolicy, h.target.String())
		}
		return h.datePolicy.Resolve(doc, h.clock())
	case metadata.DocumentTypeSplitfile:
		segments, err := splitfile.FromDocuments(chain.Find(name))
		if err != nil {
			return key.URI{}, err
		}
		h.segments = segments
		h.size = segments[0].FileLength
		h.state = HandleStateSplitfile
	}
	return key.URI{}, nil
}

// readMetadata reads the metadata part of a DataFound body. The session has checked its length.
func readMetadata(payload io.Reader, found *protocol.DataFound) ([]byte, error) {
	ret := make([]byte, found.MetadataLength)
	if _, err := io.ReadFull(payload, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// stageData copies the rest of the response body into the spool
func (h *KeyHandle) stageData(payload io.ReadCloser) error {
	defer payload.Close()
	if _, err := io.Copy(h.spool, payload); err != nil {
		return h.setFailed(h.contextError(err))
	}
	h.size = h.spool.Size()
	h.state = HandleStateSimpleData
	h.fetched = true
	return nil
}

// fetch reassembles a splitfile into the spool
func (h *KeyHandle) fetch() error {
	if h.fetched {
		return nil
	}
	h.fetched = true
	store, err := h.blockStore()
	if err != nil {
		return h.setFailed(err)
	}
	pool := NewSessionPool(h.conn, SessionPoolConfig{})
	defer pool.Close()
	fetcher := splitfile.NewFetcher(
		NewBlockTransport(pool),
		store,
		splitfile.WithConfig(h.config),
		splitfile.WithLogger(h.logger),
	)
	start := time.Now()
	if err := fetcher.FetchAll(h.ctx, h.segments, h.spool); err != nil {
		return h.setFailed(err)
	}
	h.logger.Info("fetched splitfile",
		"component", "fcp",
		"uri", h.target.String(),
		"segments", len(h.segments),
		"size", h.spool.Size(),
		"duration", time.Since(start),
	)
	return nil
}

// blockStore returns the store for splitfile blocks, opening a private one on first use
func (h *KeyHandle) blockStore() (blockstore.Store, error) {
	if h.store != nil {
		return h.store, nil
	}
	dir, err := os.MkdirTemp(h.config.TempDir, "gofcp-blocks-*")
	if err != nil {
		return nil, fmt.Errorf("create block store dir: %w", err)
	}
	store, err := blockstore.Open(h.config.BlockStore, dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	h.store = store
	h.ownedStore = store
	h.storeDir = dir
	return store, nil
}

// commit inserts the staged data and metadata
func (h *KeyHandle) commit() error {
	if err := h.ctx.Err(); err != nil {
		return h.setFailed(err)
	}
	defer h.watch()()
	if h.mode&OpenRaw != 0 {
		uri, err := h.put(h.uri, h.metadata.Bytes(), h.spool.Reader(), h.spool.Size())
		if err != nil {
			return h.setFailed(err)
		}
		h.target = uri
		return nil
	}
	user := metadata.NewChain()
	if h.metadata.Len() > 0 {
		var err error
		if user, err = metadata.Decode(h.metadata.Bytes()); err != nil {
			return h.setFailed(err)
		}
	}
	name := h.uri.DocumentName()
	mimeType := h.mimeType
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	chain := metadata.NewChain()
	chain.Add(metadata.NewInfo(name, mimeType, ""))
	var data io.Reader
	dataLength := h.spool.Size()
	if dataLength <= int64(h.config.BlockSize) {
		data = h.spool.Reader()
	} else {
		docs, err := h.insertSplitfile(name)
		if err != nil {
			return h.setFailed(err)
		}
		chain.Add(docs...)
		dataLength = 0
	}
	chain.Add(user.Documents...)
	chain.Rest = user.Rest
	meta, err := chain.Encode()
	if err != nil {
		return h.setFailed(err)
	}
	target := h.uri
	var dbr *metadata.Document
	if h.config.DateRedirect {
		if dbr, target, err = h.edition(name); err != nil {
			return h.setFailed(err)
		}
	}
	if h.config.MetaRedirect {
		metaURI, err := h.put(key.NewCHK(), meta, data, dataLength)
		if err != nil {
			return h.setFailed(err)
		}
		redirect := metadata.NewChain()
		redirect.Add(metadata.NewRedirect(name, metaURI))
		if meta, err = redirect.Encode(); err != nil {
			return h.setFailed(err)
		}
		data = nil
		dataLength = 0
	}
	uri, err := h.put(target, meta, data, dataLength)
	if err != nil {
		return h.setFailed(err)
	}
	h.target = uri
	if dbr != nil {
		if uri, err = h.putDateRedirect(dbr); err != nil {
			return h.setFailed(err)
		}
		h.target = uri
	}
	h.logger.Info("inserted key",
		"component", "fcp",
		"uri", h.target.String(),
		"size", h.spool.Size(),
		"segments", len(h.segments),
	)
	return nil
}

// insertSplitfile splits the staged data into FEC segments, inserts every block and returns the
// splitfile documents describing them
func (h *KeyHandle) insertSplitfile(name string) ([]*metadata.Document, error) {
	store, err := h.blockStore()
	if err != nil {
		return nil, err
	}
	segments, err := splitfile.Split(
		h.ctx,
		h.spool.Reader(),
		h.spool.Size(),
		h.config.BlockSize,
		store,
		fec.Default(),
	)
	if err != nil {
		return nil, err
	}
	h.segments = segments
	pool := NewSessionPool(h.conn, SessionPoolConfig{})
	defer pool.Close()
	inserter := splitfile.NewInserter(
		NewBlockTransport(pool),
		splitfile.WithConfig(h.config),
		splitfile.WithLogger(h.logger),
	)
	if err := inserter.Insert(h.ctx, segments); err != nil {
		return nil, err
	}
	docs := make([]*metadata.Document, 0, len(segments))
	for _, seg := range segments {
		docs = append(docs, seg.Document(name))
	}
	return docs, nil
}

// edition returns the date-based redirect document for the handle key and the key of the
// edition current now
func (h *KeyHandle) edition(name string) (*metadata.Document, key.URI, error) {
	doc := metadata.NewDateRedirect(name, metadata.DateRedirect{
		Target:    h.uri.WithoutHints(),
		Increment: metadata.DefaultDateIncrement,
	})
	policy := h.datePolicy
	if policy == nil {
		policy = PeriodicDateRedirect{}
	}
	uri, err := policy.Resolve(doc, h.clock())
	if err != nil {
		return nil, key.URI{}, err
	}
	return doc, uri, nil
}

// putDateRedirect inserts the date-based redirect document at the handle key. The document is the
// same for every edition, so a collision means it is already in place.
func (h *KeyHandle) putDateRedirect(doc *metadata.Document) (key.URI, error) {
	chain := metadata.NewChain()
	chain.Add(doc)
	meta, err := chain.Encode()
	if err != nil {
		return key.URI{}, err
	}
	uri, err := h.put(h.uri, meta, nil, 0)
	if errors.Is(err, ErrKeyCollision) && !uri.IsZero() {
		return uri, nil
	}
	return uri, err
}

// put inserts under uri. A CHK is derived from the content, so a collision on one means the same
// content is already stored under the returned key.
func (h *KeyHandle) put(uri key.URI, meta []byte, data io.Reader, dataLength int64) (key.URI, error) {
	ret, err := h.conn.Put(uri, meta, data, dataLength)
	if errors.Is(err, ErrKeyCollision) {
		if uri.Type == key.KeyTypeCHK && !ret.IsZero() {
			h.logger.Debug("content already inserted",
				"component", "fcp",
				"uri", ret.String(),
			)
			return ret, nil
		}
		return ret, err
	}
	return ret, h.contextError(err)
}

// release frees segments, blocks, the spool and a private block store
func (h *KeyHandle) release() error {
	ctx := context.Background()
	var errs []error
	for _, seg := range h.segments {
		errs = append(errs, seg.Release(ctx))
	}
	if h.spool != nil {
		errs = append(errs, h.spool.Close())
	}
	if h.ownedStore != nil {
		errs = append(errs, h.ownedStore.Close())
		errs = append(errs, os.RemoveAll(h.storeDir))
		h.ownedStore = nil
	}
	h.store = nil
	return errors.Join(errs...)
}
