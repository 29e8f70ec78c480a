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

// Package fcp implements a client for the Freenet Client Protocol (FCP) as
// spoken by a local Freenet node.
//
// A Connection is one session with the node. It runs a strict
// request/response exchange and delivers response bodies through ReadPayload.
// On top of the session, OpenKey provides key handles that follow redirects,
// and insert or retrieve large files as FEC-protected splitfiles.
//
// This package is the main entry point into this library. The other packages can
// be used outside of this one, but it's not a primary design goal.
package fcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/gofcp/config"
	"github.com/blinklabs-io/gofcp/protocol"
	"github.com/blinklabs-io/gofcp/wire"
)

// DialFunc establishes the socket for a new session. It has the signature of [net.Dialer.Dial]
type DialFunc func(network string, address string) (net.Conn, error)

var connectionIdCounter atomic.Uint64

// The Connection type is a wrapper around a net.Conn object that handles communication using the FCP protocol over that connection
type Connection struct {
	id           uint64
	conn         net.Conn
	config       config.Config
	logger       *slog.Logger
	dialFunc     DialFunc
	network      string
	address      string
	stateMap     protocol.StateMap
	reader       *wire.Reader
	writer       *wire.Writer
	state        protocol.State
	pending      string
	body         bodyState
	lastResponse protocol.Message
	nodeHello    *protocol.NodeHello
	err          error
	doneChan     chan struct{}
	onceClose    sync.Once
}

// bodyState tracks the unread part of a response body
type bodyState struct {
	remaining int64
	inline    bool
	// bytes left in the current DataChunk
	chunk int64
}

// NewConnection returns a new Connection object with the specified options. If a connection is provided, the
// hello exchange will be performed. An error will be returned if the hello exchange fails
func NewConnection(options ...ConnectionOptionFunc) (*Connection, error) {
	c := &Connection{
		id:       connectionIdCounter.Add(1),
		config:   config.NewConfig(),
		stateMap: protocol.ResponseStateMap,
		state:    protocol.StateWaiting,
		doneChan: make(chan struct{}),
	}
	// Apply provided options functions
	for _, option := range options {
		option(c)
	}
	if err := c.config.Validate(); err != nil {
		return nil, err
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.dialFunc == nil {
		dialer := &net.Dialer{Timeout: c.config.Timeout}
		c.dialFunc = dialer.Dial
	}
	if c.network == "" {
		c.network = "tcp"
	}
	if c.address == "" {
		c.address = c.config.Address()
	}
	if c.conn != nil {
		if err := c.setupConnection(); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

// Connect returns a new Connection that is dialed to the node address from the config, or the address
// provided with WithAddress
func Connect(options ...ConnectionOptionFunc) (*Connection, error) {
	c, err := NewConnection(options...)
	if err != nil {
		return nil, err
	}
	if c.conn != nil {
		return c, nil
	}
	if err := c.Dial(c.network, c.address); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Dial will establish a connection using the specified protocol and address. The hello exchange will be
// performed when a connection is established. An error will be returned if the connection fails, a
// connection was already established, or the hello exchange fails
func (c *Connection) Dial(network string, address string) error {
	if c.conn != nil {
		return errors.New("a connection was already established")
	}
	conn, err := c.dialFunc(network, address)
	if err != nil {
		return err
	}
	c.network = network
	c.address = address
	c.conn = conn
	return c.setupConnection()
}

// Inherit opens a new session to the same node with a copy of this session's config, logger and dialer
func (c *Connection) Inherit() (*Connection, error) {
	return Connect(
		WithConfig(c.config.Clone()),
		WithLogger(c.logger),
		WithDialFunc(c.dialFunc),
		WithAddress(c.network, c.address),
	)
}

// Close will shutdown the FCP connection. It may be called from any goroutine and more than once
func (c *Connection) Close() error {
	var err error
	c.onceClose.Do(func() {
		// Close doneChan to signify that we're shutting down
		close(c.doneChan)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Id returns a process-unique identifier for the connection, used in log output
func (c *Connection) Id() uint64 {
	return c.id
}

// Config returns the session configuration
func (c *Connection) Config() config.Config {
	return c.config
}

// Logger returns the session logger
func (c *Connection) Logger() *slog.Logger {
	return c.logger
}

// NodeHello returns the node's answer to the hello exchange
func (c *Connection) NodeHello() *protocol.NodeHello {
	return c.nodeHello
}

// LastResponse returns the most recently received response
func (c *Connection) LastResponse() protocol.Message {
	return c.lastResponse
}

// State returns the current receive state
func (c *Connection) State() protocol.State {
	return c.state
}

// Err returns the error that made the session unusable, if any
func (c *Connection) Err() error {
	if err := c.checkUsable(); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	return nil
}

// SendRequest writes a request and, if the request declares one, its payload. Any unread
// body of the previous response is drained first.
func (c *Connection) SendRequest(req protocol.Request, payload io.Reader) error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	if err := c.drainPayload(); err != nil {
		return err
	}
	if c.pending != "" {
		return fmt.Errorf("%w: %s", ErrRequestInProgress, c.pending)
	}
	payloadLength := req.PayloadLength()
	if payloadLength > 0 && payload == nil {
		return fmt.Errorf("%w: %s declares %d bytes", ErrMissingPayload, req.Keyword(), payloadLength)
	}
	data, err := req.Header(c.config.NumberBase()).Encode()
	if err != nil {
		return err
	}
	if _, err := c.writer.Write(data); err != nil {
		return c.fail(err)
	}
	if payloadLength > 0 {
		copied, err := io.CopyN(c.writer, payload, payloadLength)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("%w: %d of %d bytes", ErrShortPayload, copied, payloadLength)
			}
			return c.fail(err)
		}
	}
	if err := c.writer.Flush(); err != nil {
		return c.fail(err)
	}
	c.pending = req.Keyword()
	c.logger.Debug("sent request",
		"component", "fcp",
		"connection_id", c.id,
		"keyword", req.Keyword(),
		"payload_length", payloadLength,
	)
	return nil
}

// ReceiveResponse reads the next response to the outstanding request. Any unread body of
// the previous response is drained first. Responses that announce a body move the session
// to the GotHeader state until the body is consumed with ReadPayload.
func (c *Connection) ReceiveResponse() (protocol.Message, error) {
	if err := c.checkUsable(); err != nil {
		return nil, err
	}
	if err := c.drainPayload(); err != nil {
		return nil, err
	}
	if c.pending == "" {
		return nil, ErrNoRequestPending
	}
	msg, err := c.readMessage()
	if err != nil {
		return nil, err
	}
	transition, ok := c.stateMap.Lookup(c.pending, msg)
	if !ok {
		return nil, c.fail(
			fmt.Errorf(
				"%w: %s in response to %s",
				protocol.ErrProtocolViolationUnexpectedMessage,
				msg.Type(),
				c.pending,
			),
		)
	}
	request := c.pending
	if transition.Final {
		c.pending = ""
	}
	if df, ok := msg.(*protocol.DataFound); ok && df.MetadataLength > df.DataLength {
		return nil, c.fail(
			fmt.Errorf(
				"%w: metadata length %d exceeds data length %d",
				protocol.ErrProtocolViolationInvalidMessage,
				df.MetadataLength,
				df.DataLength,
			),
		)
	}
	if pm, ok := msg.(protocol.PayloadMessage); ok {
		length := pm.PayloadLength()
		if length < 0 {
			return nil, c.fail(
				fmt.Errorf("%w: payload length out of range", protocol.ErrProtocolViolationInvalidMessage),
			)
		}
		if length > 0 {
			c.state = protocol.StateGotHeader
			c.body = bodyState{
				remaining: length,
				inline:    msg.Header().HasInlineBody(),
			}
		}
	}
	c.lastResponse = msg
	c.logger.Debug("received response",
		"component", "fcp",
		"connection_id", c.id,
		"request", request,
		"keyword", msg.Type().String(),
	)
	return msg, nil
}

// ReadPayload reads body bytes of the current response. It follows io.Reader semantics and
// returns io.EOF once the declared body length has been consumed.
func (c *Connection) ReadPayload(buf []byte) (int, error) {
	if err := c.checkUsable(); err != nil {
		return 0, err
	}
	if c.state != protocol.StateGotHeader {
		return 0, io.EOF
	}
	if len(buf) == 0 {
		return 0, nil
	}
	avail := c.body.remaining
	if !c.body.inline {
		if err := c.nextChunk(); err != nil {
			return 0, err
		}
		avail = c.body.chunk
	}
	if int64(len(buf)) > avail {
		buf = buf[:avail]
	}
	n, err := c.reader.Read(buf)
	if n == 0 && err != nil {
		return 0, c.fail(err)
	}
	c.body.remaining -= int64(n)
	if !c.body.inline {
		c.body.chunk -= int64(n)
	}
	if c.body.remaining == 0 {
		c.state = protocol.StateWaiting
		c.body = bodyState{}
	}
	return n, nil
}

// Payload returns a reader for the body of the current response. Closing it discards any unread bytes.
func (c *Connection) Payload() io.ReadCloser {
	return &payloadReader{c: c}
}

type payloadReader struct {
	c *Connection
}

func (p *payloadReader) Read(buf []byte) (int, error) {
	return p.c.ReadPayload(buf)
}

func (p *payloadReader) Close() error {
	return p.c.drainPayload()
}

// setupConnection writes the session identifier and performs the hello exchange
func (c *Connection) setupConnection() error {
	conn := &deadlineConn{
		Conn:    c.conn,
		timeout: c.config.Timeout,
	}
	c.reader = wire.NewReader(conn)
	c.writer = wire.NewWriter(conn)
	if _, err := c.writer.Write(wire.SessionIdentifier); err != nil {
		return c.fail(err)
	}
	if err := c.SendRequest(protocol.ClientHello{}, nil); err != nil {
		return err
	}
	msg, err := c.ReceiveResponse()
	if err != nil {
		return err
	}
	c.nodeHello = msg.(*protocol.NodeHello)
	c.logger.Info("connected to node",
		"component", "fcp",
		"connection_id", c.id,
		"node", c.nodeHello.Node,
		"protocol", c.nodeHello.Protocol,
	)
	return nil
}

func (c *Connection) readMessage() (protocol.Message, error) {
	h, err := c.reader.ReadHeader()
	if err != nil {
		return nil, c.fail(err)
	}
	msg, err := protocol.NewMsgFromHeader(h, c.config.NumberBase())
	if err != nil {
		return nil, c.fail(err)
	}
	c.logger.Log(context.Background(), config.LevelTrace, "read header",
		"component", "fcp",
		"connection_id", c.id,
		"keyword", h.Keyword,
		"fields", len(h.Fields),
	)
	return msg, nil
}

// nextChunk reads DataChunk headers until one with unread bytes is current
func (c *Connection) nextChunk() error {
	for c.body.chunk == 0 {
		msg, err := c.readMessage()
		if err != nil {
			return err
		}
		chunk, ok := msg.(*protocol.DataChunk)
		if !ok {
			return c.fail(
				fmt.Errorf(
					"%w: %s while reading body",
					protocol.ErrProtocolViolationUnexpectedMessage,
					msg.Type(),
				),
			)
		}
		if !chunk.Header().HasInlineBody() || chunk.Length > uint64(c.body.remaining) { // #nosec G115
			return c.fail(
				fmt.Errorf(
					"%w: data chunk of %d bytes with %d remaining",
					protocol.ErrProtocolViolationInvalidMessage,
					chunk.Length,
					c.body.remaining,
				),
			)
		}
		c.body.chunk = int64(chunk.Length) // #nosec G115
	}
	return nil
}

func (c *Connection) drainPayload() error {
	if c.state != protocol.StateGotHeader {
		return nil
	}
	_, err := io.Copy(io.Discard, &payloadReader{c: c})
	return err
}

func (c *Connection) checkUsable() error {
	if c.err != nil {
		return c.err
	}
	select {
	case <-c.doneChan:
		return fmt.Errorf("%w: %w", ErrSessionFailed, ErrConnectionClosed)
	default:
	}
	if c.conn == nil {
		return ErrNotConnected
	}
	return nil
}

// fail marks the session unusable and closes the socket
func (c *Connection) fail(err error) error {
	closed := false
	select {
	case <-c.doneChan:
		closed = true
	default:
	}
	var netErr net.Error
	switch {
	case closed:
		err = ErrConnectionClosed
	case errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()):
		err = fmt.Errorf("%w: %w", ErrSocketTimeout, err)
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed):
		err = fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	c.err = fmt.Errorf("%w: %w", ErrSessionFailed, err)
	if closed {
		c.logger.Debug("session closed",
			"component", "fcp",
			"connection_id", c.id,
		)
	} else {
		c.logger.Error("session failed",
			"component", "fcp",
			"connection_id", c.id,
			"error", err,
		)
	}
	_ = c.Close()
	return c.err
}

// deadlineConn refreshes the read or write deadline before every socket operation
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (d *deadlineConn) Read(p []byte) (int, error) {
	if d.timeout > 0 {
		if err := d.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
			return 0, err
		}
	}
	return d.Conn.Read(p)
}

func (d *deadlineConn) Write(p []byte) (int, error) {
	if d.timeout > 0 {
		if err := d.SetWriteDeadline(time.Now().Add(d.timeout)); err != nil {
			return 0, err
		}
	}
	return d.Conn.Write(p)
}
