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
	"fmt"
	"io"

	"github.com/blinklabs-io/gofcp/key"
	"github.com/blinklabs-io/gofcp/protocol"
)

// Info asks the node for a description of itself
func (c *Connection) Info() (*protocol.NodeInfo, error) {
	if err := c.SendRequest(protocol.ClientInfo{}, nil); err != nil {
		return nil, err
	}
	msg, err := c.ReceiveResponse()
	if err != nil {
		return nil, err
	}
	return msg.(*protocol.NodeInfo), nil
}

// GenerateCHK asks the node to compute the CHK for the given metadata and data without inserting it
func (c *Connection) GenerateCHK(metadata []byte, data []byte) (key.URI, error) {
	req := protocol.GenerateCHK{
		DataLength:     int64(len(metadata) + len(data)),
		MetadataLength: int64(len(metadata)),
	}
	success, err := c.keyRequest(req, io.MultiReader(bytes.NewReader(metadata), bytes.NewReader(data)))
	if err != nil {
		return key.URI{}, err
	}
	return parseResponseURI(success.URI)
}

// GenerateSVKPair asks the node for a new SSK key pair. PrivateKey, PublicKey and CryptoKey of the
// result are set.
func (c *Connection) GenerateSVKPair() (*protocol.Success, error) {
	return c.keyRequest(protocol.GenerateSVKPair{}, nil)
}

// InvertPrivateKey asks the node for the public key matching a private SSK key
func (c *Connection) InvertPrivateKey(private string) (string, error) {
	success, err := c.keyRequest(protocol.InvertPrivateKey{Private: private}, nil)
	if err != nil {
		return "", err
	}
	if success.Public != "" {
		return success.Public, nil
	}
	return success.PublicKey, nil
}

func (c *Connection) keyRequest(req protocol.Request, payload io.Reader) (*protocol.Success, error) {
	if err := c.SendRequest(req, payload); err != nil {
		return nil, err
	}
	msg, err := c.ReceiveResponse()
	if err != nil {
		return nil, err
	}
	if err := remoteError(req.Keyword(), msg); err != nil {
		return nil, err
	}
	return msg.(*protocol.Success), nil
}

// Get requests a key. On success the session is left in the GotHeader state with the
// metadata and data available through ReadPayload, metadata first.
func (c *Connection) Get(uri key.URI) (*protocol.DataFound, error) {
	req := protocol.ClientGet{
		URI:            wireURI(uri),
		HopsToLive:     uint(c.config.HopsToLive), // #nosec G115
		RemoveLocalKey: c.config.RemoveLocal,
	}
	if err := c.SendRequest(req, nil); err != nil {
		return nil, err
	}
	for {
		msg, err := c.ReceiveResponse()
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case *protocol.DataFound:
			return m, nil
		case *protocol.Restarted:
			c.logger.Debug("request restarted",
				"component", "fcp",
				"connection_id", c.id,
				"uri", uri.String(),
			)
			continue
		}
		return nil, remoteError(req.Keyword(), msg)
	}
}

// Put inserts metadata followed by dataLength bytes of data read from data. It returns the key the
// node stored the data under. A key collision returns the collided key together with a
// *RemoteError matching ErrKeyCollision.
func (c *Connection) Put(uri key.URI, metadata []byte, data io.Reader, dataLength int64) (key.URI, error) {
	if data == nil {
		data = bytes.NewReader(nil)
	}
	req := protocol.ClientPut{
		URI:            wireURI(uri),
		HopsToLive:     uint(c.config.HopsToLive), // #nosec G115
		RemoveLocalKey: c.config.RemoveLocal,
		DataLength:     int64(len(metadata)) + dataLength,
		MetadataLength: int64(len(metadata)),
	}
	if err := c.SendRequest(req, io.MultiReader(bytes.NewReader(metadata), data)); err != nil {
		return key.URI{}, err
	}
	for {
		msg, err := c.ReceiveResponse()
		if err != nil {
			return key.URI{}, err
		}
		switch m := msg.(type) {
		case *protocol.Success:
			return parseResponseURI(m.URI)
		case *protocol.Pending, *protocol.Restarted:
			c.logger.Debug("insert in progress",
				"component", "fcp",
				"connection_id", c.id,
				"uri", uri.String(),
				"keyword", msg.Type().String(),
			)
			continue
		case *protocol.KeyCollision:
			if m.URI == "" {
				return key.URI{}, remoteError(req.Keyword(), msg)
			}
			collided, err := parseResponseURI(m.URI)
			if err != nil {
				return key.URI{}, err
			}
			return collided, remoteError(req.Keyword(), msg)
		}
		return key.URI{}, remoteError(req.Keyword(), msg)
	}
}

// SegmentFile asks the node how it would segment a file of the given length
func (c *Connection) SegmentFile(algorithm string, length int64) ([]*protocol.SegmentHeader, error) {
	req := protocol.FECSegmentFile{
		AlgoName:   algorithm,
		FileLength: length,
	}
	if err := c.SendRequest(req, nil); err != nil {
		return nil, err
	}
	var ret []*protocol.SegmentHeader
	for {
		msg, err := c.ReceiveResponse()
		if err != nil {
			return nil, err
		}
		sh, ok := msg.(*protocol.SegmentHeader)
		if !ok {
			return nil, remoteError(req.Keyword(), msg)
		}
		ret = append(ret, sh)
		if sh.SegmentNum+1 >= sh.Segments {
			return ret, nil
		}
	}
}

func wireURI(uri key.URI) string {
	return "freenet:" + uri.String()
}

func parseResponseURI(s string) (key.URI, error) {
	ret, err := key.Parse(s)
	if err != nil {
		return key.URI{}, fmt.Errorf("node returned an invalid URI: %w", err)
	}
	return ret, nil
}
