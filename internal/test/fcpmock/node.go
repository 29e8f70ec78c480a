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

package fcpmock

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/blinklabs-io/gofcp/key"
	"github.com/blinklabs-io/gofcp/protocol"
	"github.com/blinklabs-io/gofcp/wire"
	"golang.org/x/crypto/blake2b"
)

// Fault is a failure the mock node reports for a key instead of serving it
type Fault int

const (
	FaultNone Fault = iota
	FaultRouteNotFound
	FaultDataNotFound
	FaultFailed
	FaultURIError
	// FaultRestart sends Restarted before the real response
	FaultRestart
	// FaultPending sends Pending before the real response to an insert
	FaultPending
	// FaultHangUp closes the session without a response
	FaultHangUp
	// FaultGarbage sends a response with an unknown keyword
	FaultGarbage
)

const (
	mockSegmentBlocks = 32
	mockFECAlgorithm  = "OnionFEC_a_1_2"
)

type storedKey struct {
	metadata []byte
	data     []byte
}

type fault struct {
	fault Fault
	count int
}

// Node is a stateful in-memory FCP node. It serves any number of concurrent sessions opened with Dial.
type Node struct {
	mu        sync.Mutex
	base      int
	chunkSize int
	keys      map[string]storedKey
	keyPairs  map[string]string
	faults    map[string]*fault
	requests  map[string]int
	conns     map[net.Conn]struct{}
	nextPair  uint64
	waitGroup sync.WaitGroup
}

type NodeOptionFunc func(*Node)

// WithDecimalLengths makes the node read and write numeric fields in decimal
func WithDecimalLengths(decimal bool) NodeOptionFunc {
	return func(n *Node) {
		if decimal {
			n.base = 10
		} else {
			n.base = 16
		}
	}
}

// WithChunkSize makes the node deliver bodies in DataChunk messages of the given size instead of inline
func WithChunkSize(size int) NodeOptionFunc {
	return func(n *Node) {
		n.chunkSize = size
	}
}

// NewNode returns a new mock node
func NewNode(options ...NodeOptionFunc) *Node {
	n := &Node{
		base:     16,
		keys:     make(map[string]storedKey),
		keyPairs: make(map[string]string),
		faults:   make(map[string]*fault),
		requests: make(map[string]int),
		conns:    make(map[net.Conn]struct{}),
	}
	for _, option := range options {
		option(n)
	}
	return n
}

// Dial opens a new session to the node. It has the signature of fcp.DialFunc
func (n *Node) Dial(network string, address string) (net.Conn, error) {
	client, server := net.Pipe()
	n.mu.Lock()
	n.conns[server] = struct{}{}
	n.mu.Unlock()
	n.waitGroup.Add(1)
	go n.serve(server)
	return client, nil
}

// Close ends every open session and waits for them to finish
func (n *Node) Close() {
	n.mu.Lock()
	for conn := range n.conns {
		_ = conn.Close()
	}
	n.mu.Unlock()
	n.waitGroup.Wait()
}

// Store places a key on the node directly
func (n *Node) Store(uri key.URI, metadata []byte, data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.keys[storeKey(uri)] = storedKey{
		metadata: bytes.Clone(metadata),
		data:     bytes.Clone(data),
	}
}

// Has reports whether the node holds a key
func (n *Node) Has(uri key.URI) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.keys[storeKey(uri)]
	return ok
}

// Drop removes a key from the node
func (n *Node) Drop(uri key.URI) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.keys, storeKey(uri))
}

// KeyCount returns the number of keys the node holds
func (n *Node) KeyCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.keys)
}

// InjectFault makes the next count requests for a key fail with the given fault. A count of 0 or
// less applies the fault to every request.
func (n *Node) InjectFault(uri key.URI, f Fault, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.faults[storeKey(uri)] = &fault{fault: f, count: count}
}

// Requests returns how many requests with the given keyword the node received for a key
func (n *Node) Requests(keyword string, uri key.URI) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.requests[keyword+" "+storeKey(uri)]
}

// TotalRequests returns how many requests with the given keyword the node received
func (n *Node) TotalRequests(keyword string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.requests[keyword]
}

// CHK returns the content hash key the node assigns to the given metadata and data
func CHK(metadata []byte, data []byte) key.URI {
	h, _ := blake2b.New256(nil)
	_, _ = h.Write(metadata)
	_, _ = h.Write(data)
	sum := h.Sum(nil)
	return key.URI{
		Type:       key.KeyTypeCHK,
		RoutingKey: base64.RawURLEncoding.EncodeToString(sum[:20]),
		CryptoKey:  base64.RawURLEncoding.EncodeToString(sum[20:]),
	}
}

func storeKey(uri key.URI) string {
	return uri.WithoutHints().String()
}

func (n *Node) takeFault(k string) Fault {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, ok := n.faults[k]
	if !ok {
		return FaultNone
	}
	if f.count > 0 {
		f.count--
		if f.count == 0 {
			delete(n.faults, k)
		}
	}
	return f.fault
}

func (n *Node) countRequest(keyword string, k string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests[keyword]++
	if k != "" {
		n.requests[keyword+" "+k]++
	}
}

func (n *Node) serve(conn net.Conn) {
	defer n.waitGroup.Done()
	defer func() {
		n.mu.Lock()
		delete(n.conns, conn)
		n.mu.Unlock()
		_ = conn.Close()
	}()
	r := wire.NewReader(conn)
	s := &nodeSession{
		node:   n,
		writer: wire.NewWriter(conn),
	}
	id := make([]byte, len(wire.SessionIdentifier))
	if _, err := io.ReadFull(r, id); err != nil || !bytes.Equal(id, wire.SessionIdentifier) {
		return
	}
	for {
		h, err := r.ReadHeader()
		if err != nil {
			return
		}
		req, err := protocol.NewRequestFromHeader(h, n.base)
		if err != nil {
			if err := s.send("FormatError", "Reason", err.Error()); err != nil {
				return
			}
			continue
		}
		payload := make([]byte, req.PayloadLength())
		if _, err := io.ReadFull(r, payload); err != nil {
			return
		}
		if err := s.handle(req, payload); err != nil {
			return
		}
	}
}

var errHangUp = errors.New("hang up")

type nodeSession struct {
	node   *Node
	writer *wire.Writer
}

func (s *nodeSession) send(keyword string, fields ...string) error {
	h := wire.NewHeader(keyword)
	for i := 0; i+1 < len(fields); i += 2 {
		h.Set(fields[i], fields[i+1])
	}
	return s.writer.WriteMessage(h, nil)
}

func (s *nodeSession) num(v int) string {
	return strconv.FormatUint(uint64(v), s.node.base) // #nosec G115
}

// sendFault writes the response for a failure fault. It reports false for faults that only delay the response.
func (s *nodeSession) sendFault(f Fault) (bool, error) {
	switch f {
	case FaultRouteNotFound:
		return true, s.send("RouteNotFound", "Reason", "no route", "Unreachable", s.num(1))
	case FaultDataNotFound:
		return true, s.send("DataNotFound")
	case FaultFailed:
		return true, s.send("Failed", "Reason", "injected failure")
	case FaultURIError:
		return true, s.send("URIError", "Reason", "injected URI error")
	case FaultHangUp:
		return true, errHangUp
	case FaultGarbage:
		return true, s.send("Bogus", "Reason", "garbage")
	case FaultRestart:
		return false, s.send("Restarted", "Timeout", s.num(1000))
	}
	return false, nil
}

func (s *nodeSession) handle(req protocol.Request, payload []byte) error {
	n := s.node
	switch r := req.(type) {
	case protocol.ClientHello:
		n.countRequest(r.Keyword(), "")
		return s.send(
			"NodeHello",
			"Protocol", "1.2",
			"Node", "Fred,0.5,STABLE-0.5,5107",
			"HighestSeenBuild", "5107",
			"MaxFileSize", s.num(100000000),
		)
	case protocol.ClientInfo:
		n.countRequest(r.Keyword(), "")
		n.mu.Lock()
		keyCount := len(n.keys)
		n.mu.Unlock()
		return s.send(
			"NodeInfo",
			"Architecture", "amd64",
			"Processors", s.num(4),
			"OperatingSystem", "Linux",
			"JavaVendor", "mock",
			"DatastoreUsed", s.num(keyCount),
			"ActiveJobs", s.num(0),
			"IsTransient", "false",
		)
	case protocol.GenerateCHK:
		n.countRequest(r.Keyword(), "")
		if r.MetadataLength > r.DataLength {
			return s.send("FormatError", "Reason", "metadata length exceeds data length")
		}
		uri := CHK(payload[:r.MetadataLength], payload[r.MetadataLength:])
		return s.send("Success", "URI", "freenet:"+uri.String())
	case protocol.GenerateSVKPair:
		n.countRequest(r.Keyword(), "")
		n.mu.Lock()
		n.nextPair++
		seed := n.nextPair
		n.mu.Unlock()
		sum := blake2b.Sum256([]byte(strconv.FormatUint(seed, 10)))
		private := hex.EncodeToString(sum[:10])
		public := hex.EncodeToString(sum[10:20])
		crypto := hex.EncodeToString(sum[20:])
		n.mu.Lock()
		n.keyPairs[private] = public
		n.mu.Unlock()
		return s.send("Success", "PrivateKey", private, "PublicKey", public, "CryptoKey", crypto)
	case protocol.InvertPrivateKey:
		n.countRequest(r.Keyword(), "")
		n.mu.Lock()
		public, ok := n.keyPairs[r.Private]
		n.mu.Unlock()
		if !ok {
			return s.send("Failed", "Reason", "unknown private key")
		}
		return s.send("Success", "Public", public)
	case protocol.ClientGet:
		return s.handleGet(r)
	case protocol.ClientPut:
		return s.handlePut(r, payload)
	case protocol.FECSegmentFile:
		return s.handleSegmentFile(r)
	}
	return s.send("FormatError", "Reason", "unsupported request")
}

func (s *nodeSession) handleGet(r protocol.ClientGet) error {
	n := s.node
	uri, err := key.Parse(r.URI)
	if err != nil {
		return s.send("URIError", "Reason", err.Error())
	}
	k := storeKey(uri)
	n.countRequest(r.Keyword(), k)
	if handled, err := s.sendFault(n.takeFault(k)); handled || err != nil {
		return err
	}
	n.mu.Lock()
	stored, ok := n.keys[k]
	n.mu.Unlock()
	if !ok {
		return s.send("DataNotFound")
	}
	body := append(bytes.Clone(stored.metadata), stored.data...)
	h := wire.NewHeader("DataFound")
	h.SetUint("DataLength", uint64(len(body)), n.base)
	if len(stored.metadata) > 0 {
		h.SetUint("MetadataLength", uint64(len(stored.metadata)), n.base)
	}
	if n.chunkSize <= 0 {
		h.Terminator = wire.TermData
		return s.writer.WriteMessage(h, body)
	}
	if err := s.writer.WriteMessage(h, nil); err != nil {
		return err
	}
	for len(body) > 0 {
		size := min(n.chunkSize, len(body))
		chunk := wire.NewHeader("DataChunk")
		chunk.SetUint("Length", uint64(size), n.base)
		chunk.Terminator = wire.TermData
		if err := s.writer.WriteMessage(chunk, body[:size]); err != nil {
			return err
		}
		body = body[size:]
	}
	return nil
}

func (s *nodeSession) handlePut(r protocol.ClientPut, payload []byte) error {
	n := s.node
	uri, err := key.Parse(r.URI)
	if err != nil {
		return s.send("URIError", "Reason", err.Error())
	}
	if r.MetadataLength > r.DataLength {
		return s.send("FormatError", "Reason", "metadata length exceeds data length")
	}
	metadata := payload[:r.MetadataLength]
	data := payload[r.MetadataLength:]
	switch uri.Type {
	case key.KeyTypeCHK:
		uri = CHK(metadata, data)
	case key.KeyTypeSSK:
		n.mu.Lock()
		public, ok := n.keyPairs[uri.RoutingKey]
		n.mu.Unlock()
		if ok {
			uri.RoutingKey = public
		}
	}
	k := storeKey(uri)
	n.countRequest(r.Keyword(), k)
	f := n.takeFault(k)
	if f == FaultPending {
		if err := s.send("Pending", "URI", "freenet:"+uri.String(), "Timeout", s.num(1000)); err != nil {
			return err
		}
	} else if handled, err := s.sendFault(f); handled || err != nil {
		return err
	}
	n.mu.Lock()
	_, exists := n.keys[k]
	if !exists {
		n.keys[k] = storedKey{
			metadata: bytes.Clone(metadata),
			data:     bytes.Clone(data),
		}
	}
	n.mu.Unlock()
	if exists {
		return s.send("KeyCollision", "URI", "freenet:"+uri.String())
	}
	return s.send("Success", "URI", "freenet:"+uri.String())
}

func (s *nodeSession) handleSegmentFile(r protocol.FECSegmentFile) error {
	s.node.countRequest(r.Keyword(), "")
	if r.FileLength <= 0 {
		return s.send("Failed", "Reason", "invalid file length")
	}
	const blockSize = 256 * 1024
	blocks := int((r.FileLength + blockSize - 1) / blockSize)
	segments := (blocks + mockSegmentBlocks - 1) / mockSegmentBlocks
	for i := range segments {
		count := min(mockSegmentBlocks, blocks-i*mockSegmentBlocks)
		checks := (count + 1) / 2
		err := s.send(
			"SegmentHeader",
			"FECAlgorithm", mockFECAlgorithm,
			"FileLength", strconv.FormatInt(r.FileLength, s.node.base),
			"Offset", strconv.FormatInt(int64(i)*mockSegmentBlocks*blockSize, s.node.base),
			"BlockCount", s.num(count),
			"BlockSize", s.num(blockSize),
			"DataBlockOffset", s.num(i*mockSegmentBlocks),
			"CheckBlockCount", s.num(checks),
			"CheckBlockSize", s.num(blockSize),
			"CheckBlockOffset", s.num(i*(mockSegmentBlocks/2)),
			"Segments", s.num(segments),
			"SegmentNum", s.num(i),
			"BlocksRequired", s.num(count),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// String describes the node state, for test failure messages
func (n *Node) String() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fmt.Sprintf("fcpmock.Node{keys: %d, sessions: %d}", len(n.keys), len(n.conns))
}
