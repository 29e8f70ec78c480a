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

// Package protocol defines the Freenet Client Protocol messages exchanged
// between a client and its node, and the table of responses that each
// request permits.
package protocol

import (
	"fmt"
	"strings"

	"github.com/blinklabs-io/gofcp/wire"
)

// MessageType identifies a node response
type MessageType uint8

// Message types
const (
	MESSAGE_TYPE_SUCCESS         MessageType = 1
	MESSAGE_TYPE_NODE_HELLO      MessageType = 10
	MESSAGE_TYPE_NODE_INFO       MessageType = 11
	MESSAGE_TYPE_DATA_FOUND      MessageType = 20
	MESSAGE_TYPE_DATA_CHUNK      MessageType = 21
	MESSAGE_TYPE_DATA_NOT_FOUND  MessageType = 22
	MESSAGE_TYPE_ROUTE_NOT_FOUND MessageType = 30
	MESSAGE_TYPE_URI_ERROR       MessageType = 40
	MESSAGE_TYPE_RESTARTED       MessageType = 50
	MESSAGE_TYPE_KEY_COLLISION   MessageType = 60
	MESSAGE_TYPE_PENDING         MessageType = 70
	MESSAGE_TYPE_FAILED          MessageType = 80
	MESSAGE_TYPE_FORMAT_ERROR    MessageType = 90
	MESSAGE_TYPE_SEGMENT_HEADER  MessageType = 100
	MESSAGE_TYPE_BLOCKS_ENCODED  MessageType = 111
	MESSAGE_TYPE_BLOCKS_DECODED  MessageType = 112
	MESSAGE_TYPE_MADE_METADATA   MessageType = 120
)

var messageKeywords = map[MessageType]string{
	MESSAGE_TYPE_SUCCESS:         "Success",
	MESSAGE_TYPE_NODE_HELLO:      "NodeHello",
	MESSAGE_TYPE_NODE_INFO:       "NodeInfo",
	MESSAGE_TYPE_DATA_FOUND:      "DataFound",
	MESSAGE_TYPE_DATA_CHUNK:      "DataChunk",
	MESSAGE_TYPE_DATA_NOT_FOUND:  "DataNotFound",
	MESSAGE_TYPE_ROUTE_NOT_FOUND: "RouteNotFound",
	MESSAGE_TYPE_URI_ERROR:       "URIError",
	MESSAGE_TYPE_RESTARTED:       "Restarted",
	MESSAGE_TYPE_KEY_COLLISION:   "KeyCollision",
	MESSAGE_TYPE_PENDING:         "Pending",
	MESSAGE_TYPE_FAILED:          "Failed",
	MESSAGE_TYPE_FORMAT_ERROR:    "FormatError",
	MESSAGE_TYPE_SEGMENT_HEADER:  "SegmentHeader",
	MESSAGE_TYPE_BLOCKS_ENCODED:  "BlocksEncoded",
	MESSAGE_TYPE_BLOCKS_DECODED:  "BlocksDecoded",
	MESSAGE_TYPE_MADE_METADATA:   "MadeMetadata",
}

var keywordMessageTypes = func() map[string]MessageType {
	ret := make(map[string]MessageType, len(messageKeywords))
	for k, v := range messageKeywords {
		ret[strings.ToLower(v)] = k
	}
	return ret
}()

// Keyword returns the wire keyword for the message type
func (t MessageType) Keyword() string {
	return messageKeywords[t]
}

func (t MessageType) String() string {
	if kw, ok := messageKeywords[t]; ok {
		return kw
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

// MessageTypeFromKeyword looks up a message type by its wire keyword
func MessageTypeFromKeyword(keyword string) (MessageType, bool) {
	ret, ok := keywordMessageTypes[strings.ToLower(keyword)]
	return ret, ok
}

// Message provides a common interface for node responses
type Message interface {
	SetHeader(*wire.Header)
	Header() *wire.Header
	Type() MessageType
}

// PayloadMessage is implemented by responses that carry a binary body
type PayloadMessage interface {
	Message
	PayloadLength() int64
}

// MessageBase is the common base for all node responses
type MessageBase struct {
	MessageType MessageType
	header      *wire.Header
}

// SetHeader stores the header the message was decoded from
func (m *MessageBase) SetHeader(h *wire.Header) {
	m.header = h
}

// Header returns the header the message was decoded from
func (m *MessageBase) Header() *wire.Header {
	return m.header
}

// Type returns the message type
func (m *MessageBase) Type() MessageType {
	return m.MessageType
}

// NewMsgFromHeader decodes a response header. Numeric fields are parsed in the provided base.
func NewMsgFromHeader(h *wire.Header, base int) (Message, error) {
	msgType, ok := MessageTypeFromKeyword(h.Keyword)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, h.Keyword)
	}
	d := &fieldDecoder{h: h, base: base}
	var ret Message
	switch msgType {
	case MESSAGE_TYPE_SUCCESS:
		ret = &Success{
			URI:        d.str("URI"),
			PublicKey:  d.str("PublicKey"),
			PrivateKey: d.str("PrivateKey"),
			CryptoKey:  d.str("CryptoKey"),
			Public:     d.str("Public"),
			Length:     d.num("Length", false),
		}
	case MESSAGE_TYPE_NODE_HELLO:
		ret = &NodeHello{
			Protocol:         d.str("Protocol"),
			Node:             d.str("Node"),
			HighestSeenBuild: d.str("HighestSeenBuild"),
			MaxFileSize:      d.num("MaxFileSize", false),
		}
	case MESSAGE_TYPE_NODE_INFO:
		ret = &NodeInfo{
			Architecture:             d.str("Architecture"),
			Processors:               d.num("Processors", false),
			OperatingSystem:          d.str("OperatingSystem"),
			OperatingSystemVersion:   d.str("OperatingSystemVersion"),
			JavaVendor:               d.str("JavaVendor"),
			JavaName:                 d.str("JavaName"),
			JavaVersion:              d.str("JavaVersion"),
			MaximumMemory:            d.num("MaximumMemory", false),
			AllocatedMemory:          d.num("AllocatedMemory", false),
			FreeMemory:               d.num("FreeMemory", false),
			EstimatedLoad:            d.num("EstimatedLoad", false),
			EstimateRateLimitingLoad: d.num("EstimateRateLimitingLoad", false),
			DatastoreMax:             d.num("DatastoreMax", false),
			DatastoreFree:            d.num("DatastoreFree", false),
			DatastoreUsed:            d.num("DatastoreUsed", false),
			MaxFileSize:              d.num("MaxFileSize", false),
			MostRecentTimestamp:      d.num("MostRecentTimestamp", false),
			LeastRecentTimestamp:     d.num("LeastRecentTimestamp", false),
			RoutingTime:              d.num("RoutingTime", false),
			AvailableThreads:         d.num("AvailableThreads", false),
			ActiveJobs:               d.num("ActiveJobs", false),
			NodeAddress:              d.str("NodeAddress"),
			NodePort:                 d.num("NodePort", false),
			IsTransient:              d.boolean("IsTransient"),
		}
	case MESSAGE_TYPE_DATA_FOUND:
		ret = &DataFound{
			DataLength:     d.num("DataLength", true),
			MetadataLength: d.num("MetadataLength", false),
			Timeout:        d.num("Timeout", false),
		}
	case MESSAGE_TYPE_DATA_CHUNK:
		ret = &DataChunk{
			Length: d.num("Length", true),
		}
	case MESSAGE_TYPE_DATA_NOT_FOUND:
		ret = &DataNotFound{
			Reason: d.str("Reason"),
		}
	case MESSAGE_TYPE_ROUTE_NOT_FOUND:
		ret = &RouteNotFound{
			Reason:      d.str("Reason"),
			Unreachable: d.num("Unreachable", false),
			Restarted:   d.num("Restarted", false),
			Rejected:    d.num("Rejected", false),
			BackedOff:   d.num("BackedOff", false),
		}
	case MESSAGE_TYPE_URI_ERROR:
		ret = &URIError{
			Reason: d.str("Reason"),
		}
	case MESSAGE_TYPE_RESTARTED:
		ret = &Restarted{
			Reason:  d.str("Reason"),
			Timeout: d.num("Timeout", false),
		}
	case MESSAGE_TYPE_KEY_COLLISION:
		ret = &KeyCollision{
			URI:        d.str("URI"),
			PublicKey:  d.str("PublicKey"),
			PrivateKey: d.str("PrivateKey"),
		}
	case MESSAGE_TYPE_PENDING:
		ret = &Pending{
			URI:        d.str("URI"),
			Timeout:    d.num("Timeout", false),
			PublicKey:  d.str("PublicKey"),
			PrivateKey: d.str("PrivateKey"),
		}
	case MESSAGE_TYPE_FAILED:
		ret = &Failed{
			Reason: d.str("Reason"),
		}
	case MESSAGE_TYPE_FORMAT_ERROR:
		ret = &FormatError{
			Reason: d.str("Reason"),
		}
	case MESSAGE_TYPE_SEGMENT_HEADER:
		ret = &SegmentHeader{
			FECAlgorithm:     d.str("FECAlgorithm"),
			FileLength:       d.num("FileLength", true),
			Offset:           d.num("Offset", false),
			BlockCount:       d.num("BlockCount", true),
			BlockSize:        d.num("BlockSize", true),
			DataBlockOffset:  d.num("DataBlockOffset", false),
			CheckBlockCount:  d.num("CheckBlockCount", false),
			CheckBlockSize:   d.num("CheckBlockSize", false),
			CheckBlockOffset: d.num("CheckBlockOffset", false),
			Segments:         d.num("Segments", true),
			SegmentNum:       d.num("SegmentNum", false),
			BlocksRequired:   d.num("BlocksRequired", false),
		}
	case MESSAGE_TYPE_BLOCKS_ENCODED, MESSAGE_TYPE_BLOCKS_DECODED:
		ret = &BlocksTransferred{
			BlockCount: d.num("BlockCount", true),
			BlockSize:  d.num("BlockSize", true),
		}
	case MESSAGE_TYPE_MADE_METADATA:
		ret = &MadeMetadata{
			DataLength: d.num("DataLength", true),
		}
	}
	if d.err != nil {
		return nil, fmt.Errorf("%s: %w", h.Keyword, d.err)
	}
	setMessageType(ret, msgType)
	ret.SetHeader(h)
	return ret, nil
}

func setMessageType(msg Message, msgType MessageType) {
	type typeSetter interface {
		setType(MessageType)
	}
	if s, ok := msg.(typeSetter); ok {
		s.setType(msgType)
	}
}

func (m *MessageBase) setType(t MessageType) {
	m.MessageType = t
}

type fieldDecoder struct {
	h    *wire.Header
	base int
	err  error
}

func (d *fieldDecoder) str(name string) string {
	v, _ := d.h.Get(name)
	return v
}

func (d *fieldDecoder) num(name string, required bool) uint64 {
	if d.err != nil {
		return 0
	}
	v, ok, err := d.h.Uint(name, d.base)
	if err != nil {
		d.err = fmt.Errorf("%w: %w", ErrProtocolViolationInvalidMessage, err)
		return 0
	}
	if !ok && required {
		d.err = fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return v
}

func (d *fieldDecoder) boolean(name string) bool {
	v, _ := d.h.Get(name)
	return strings.EqualFold(strings.TrimSpace(v), "true")
}
