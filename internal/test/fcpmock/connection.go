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

// Package fcpmock provides FCP node mocks for tests: a scripted conversation
// over an in-memory pipe, and a stateful in-memory node.
package fcpmock

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"reflect"
	"time"

	"github.com/blinklabs-io/gofcp/protocol"
	"github.com/blinklabs-io/gofcp/wire"
)

// Connection mocks an FCP node connection driven by a scripted conversation
type Connection struct {
	mockConn     net.Conn
	conn         net.Conn
	conversation []ConversationEntry
	base         int
	reader       *wire.Reader
	errorChan    chan error
}

// NewConnection returns a new Connection with the provided conversation entries. Numeric request
// fields are decoded in the provided base.
func NewConnection(base int, conversation []ConversationEntry) *Connection {
	c := &Connection{
		conversation: conversation,
		base:         base,
		errorChan:    make(chan error, 1),
	}
	c.conn, c.mockConn = net.Pipe()
	c.reader = wire.NewReader(c.mockConn)
	// Start async conversation handler
	go c.asyncLoop()
	return c
}

// ErrorChan receives a conversation mismatch, if one occurs. It is closed when the conversation ends
func (c *Connection) ErrorChan() <-chan error {
	return c.errorChan
}

// Read provides a proxy to the client-side connection's Read function. This is needed to satisfy the net.Conn interface
func (c *Connection) Read(b []byte) (n int, err error) {
	return c.conn.Read(b)
}

// Write provides a proxy to the client-side connection's Write function. This is needed to satisfy the net.Conn interface
func (c *Connection) Write(b []byte) (n int, err error) {
	return c.conn.Write(b)
}

// Close closes both sides of the connection. This is needed to satisfy the net.Conn interface
func (c *Connection) Close() error {
	if err := c.conn.Close(); err != nil {
		return err
	}
	return c.mockConn.Close()
}

// LocalAddr provides a proxy to the client-side connection's LocalAddr function. This is needed to satisfy the net.Conn interface
func (c *Connection) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr provides a proxy to the client-side connection's RemoteAddr function. This is needed to satisfy the net.Conn interface
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline provides a proxy to the client-side connection's SetDeadline function. This is needed to satisfy the net.Conn interface
func (c *Connection) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline provides a proxy to the client-side connection's SetReadDeadline function. This is needed to satisfy the net.Conn interface
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline provides a proxy to the client-side connection's SetWriteDeadline function. This is needed to satisfy the net.Conn interface
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c *Connection) asyncLoop() {
	defer close(c.errorChan)
	id := make([]byte, len(wire.SessionIdentifier))
	if _, err := io.ReadFull(c.reader, id); err != nil {
		return
	}
	if !bytes.Equal(id, wire.SessionIdentifier) {
		c.errorChan <- fmt.Errorf("unexpected session identifier: %x", id)
		_ = c.Close()
		return
	}
	for _, entry := range c.conversation {
		var err error
		switch entry.Type {
		case EntryTypeInput:
			err = c.processInputEntry(entry)
		case EntryTypeOutput:
			_, err = c.mockConn.Write(entry.OutputData)
		case EntryTypeClose:
			// Only the node side is closed, so the client sees EOF
			_ = c.mockConn.Close()
			return
		default:
			err = fmt.Errorf("unknown conversation entry type: %d: %#v", entry.Type, entry)
		}
		if err != nil {
			// The client going away ends the conversation
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			c.errorChan <- err
			_ = c.mockConn.Close()
			return
		}
	}
}

func (c *Connection) processInputEntry(entry ConversationEntry) error {
	h, err := c.reader.ReadHeader()
	if err != nil {
		return err
	}
	req, err := protocol.NewRequestFromHeader(h, c.base)
	if err != nil {
		return fmt.Errorf("request decode error: %w", err)
	}
	payload := make([]byte, req.PayloadLength())
	if _, err := io.ReadFull(c.reader, payload); err != nil {
		return err
	}
	if entry.InputKeyword != "" && entry.InputKeyword != req.Keyword() {
		return fmt.Errorf(
			"input request is not of expected type: expected %s, got %s",
			entry.InputKeyword,
			req.Keyword(),
		)
	}
	if entry.InputRequest != nil && !reflect.DeepEqual(req, entry.InputRequest) {
		return fmt.Errorf(
			"parsed request does not match expected value: got %#v, expected %#v",
			req,
			entry.InputRequest,
		)
	}
	if entry.InputPayload != nil && !bytes.Equal(payload, entry.InputPayload) {
		return fmt.Errorf("request payload does not match expected value: got %q, expected %q", payload, entry.InputPayload)
	}
	return nil
}
