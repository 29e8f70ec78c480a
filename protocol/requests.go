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

package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blinklabs-io/gofcp/wire"
)

// Request keywords
const (
	RequestClientHello      = "ClientHello"
	RequestClientInfo       = "ClientInfo"
	RequestClientGet        = "ClientGet"
	RequestClientPut        = "ClientPut"
	RequestGenerateCHK      = "GenerateCHK"
	RequestGenerateSVKPair  = "GenerateSVKPair"
	RequestInvertPrivateKey = "InvertPrivateKey"
	RequestFECSegmentFile   = "FECSegmentFile"
)

// Request is a message sent by the client
type Request interface {
	Keyword() string
	// Header returns the wire header with numeric fields formatted in the provided base
	Header(base int) *wire.Header
	// PayloadLength returns the number of body bytes that follow the header
	PayloadLength() int64
}

type ClientHello struct{}

func (ClientHello) Keyword() string { return RequestClientHello }

func (r ClientHello) Header(int) *wire.Header { return wire.NewHeader(r.Keyword()) }

func (ClientHello) PayloadLength() int64 { return 0 }

type ClientInfo struct{}

func (ClientInfo) Keyword() string { return RequestClientInfo }

func (r ClientInfo) Header(int) *wire.Header { return wire.NewHeader(r.Keyword()) }

func (ClientInfo) PayloadLength() int64 { return 0 }

type ClientGet struct {
	URI            string
	HopsToLive     uint
	RemoveLocalKey bool
}

func (ClientGet) Keyword() string { return RequestClientGet }

func (r ClientGet) Header(base int) *wire.Header {
	h := wire.NewHeader(r.Keyword())
	h.Set("URI", r.URI)
	h.SetUint("HopsToLive", uint64(r.HopsToLive), base)
	if r.RemoveLocalKey {
		h.Set("RemoveLocalKey", "true")
	}
	return h
}

func (ClientGet) PayloadLength() int64 { return 0 }

// ClientPut inserts DataLength bytes, the first MetadataLength of which are metadata
type ClientPut struct {
	URI            string
	HopsToLive     uint
	RemoveLocalKey bool
	DataLength     int64
	MetadataLength int64
}

func (ClientPut) Keyword() string { return RequestClientPut }

func (r ClientPut) Header(base int) *wire.Header {
	h := wire.NewHeader(r.Keyword())
	h.Set("URI", r.URI)
	h.SetUint("HopsToLive", uint64(r.HopsToLive), base)
	if r.RemoveLocalKey {
		h.Set("RemoveLocalKey", "true")
	}
	h.SetUint("DataLength", uint64(r.DataLength), base) // #nosec G115
	if r.MetadataLength > 0 {
		h.SetUint("MetadataLength", uint64(r.MetadataLength), base) // #nosec G115
	}
	h.Terminator = wire.TermData
	return h
}

func (r ClientPut) PayloadLength() int64 { return r.DataLength }

// GenerateCHK asks the node to compute the CHK of the attached metadata and data
type GenerateCHK struct {
	DataLength     int64
	MetadataLength int64
}

func (GenerateCHK) Keyword() string { return RequestGenerateCHK }

func (r GenerateCHK) Header(base int) *wire.Header {
	h := wire.NewHeader(r.Keyword())
	h.SetUint("DataLength", uint64(r.DataLength), base) // #nosec G115
	if r.MetadataLength > 0 {
		h.SetUint("MetadataLength", uint64(r.MetadataLength), base) // #nosec G115
	}
	h.Terminator = wire.TermData
	return h
}

func (r GenerateCHK) PayloadLength() int64 { return r.DataLength }

type GenerateSVKPair struct{}

func (GenerateSVKPair) Keyword() string { return RequestGenerateSVKPair }

func (r GenerateSVKPair) Header(int) *wire.Header { return wire.NewHeader(r.Keyword()) }

func (GenerateSVKPair) PayloadLength() int64 { return 0 }

type InvertPrivateKey struct {
	Private string
}

func (InvertPrivateKey) Keyword() string { return RequestInvertPrivateKey }

func (r InvertPrivateKey) Header(int) *wire.Header {
	h := wire.NewHeader(r.Keyword())
	h.Set("Private", r.Private)
	return h
}

func (InvertPrivateKey) PayloadLength() int64 { return 0 }

type FECSegmentFile struct {
	AlgoName   string
	FileLength int64
}

func (FECSegmentFile) Keyword() string { return RequestFECSegmentFile }

func (r FECSegmentFile) Header(base int) *wire.Header {
	h := wire.NewHeader(r.Keyword())
	h.Set("AlgoName", r.AlgoName)
	h.SetUint("FileLength", uint64(r.FileLength), base) // #nosec G115
	return h
}

func (FECSegmentFile) PayloadLength() int64 { return 0 }

// NewRequestFromHeader decodes a request header as sent by a client. It is
// the node side counterpart of Request.Header.
func NewRequestFromHeader(h *wire.Header, base int) (Request, error) {
	num := func(name string) (int64, error) {
		v, _, err := h.Uint(name, base)
		if err != nil {
			return 0, err
		}
		if v > uint64(1<<63-1) {
			return 0, fmt.Errorf("%w: %s out of range", ErrProtocolViolationInvalidMessage, name)
		}
		return int64(v), nil
	}
	str := func(name string) string {
		v, _ := h.Get(name)
		return v
	}
	flag := func(name string) bool {
		return strings.EqualFold(str(name), "true")
	}
	switch strings.ToLower(h.Keyword) {
	case strings.ToLower(RequestClientHello):
		return ClientHello{}, nil
	case strings.ToLower(RequestClientInfo):
		return ClientInfo{}, nil
	case strings.ToLower(RequestGenerateSVKPair):
		return GenerateSVKPair{}, nil
	case strings.ToLower(RequestInvertPrivateKey):
		return InvertPrivateKey{Private: str("Private")}, nil
	case strings.ToLower(RequestClientGet):
		htl, err := num("HopsToLive")
		if err != nil {
			return nil, err
		}
		return ClientGet{
			URI:            str("URI"),
			HopsToLive:     uint(htl), // #nosec G115
			RemoveLocalKey: flag("RemoveLocalKey"),
		}, nil
	case strings.ToLower(RequestClientPut):
		htl, err := num("HopsToLive")
		if err != nil {
			return nil, err
		}
		dataLen, err := num("DataLength")
		if err != nil {
			return nil, err
		}
		metaLen, err := num("MetadataLength")
		if err != nil {
			return nil, err
		}
		return ClientPut{
			URI:            str("URI"),
			HopsToLive:     uint(htl), // #nosec G115
			RemoveLocalKey: flag("RemoveLocalKey"),
			DataLength:     dataLen,
			MetadataLength: metaLen,
		}, nil
	case strings.ToLower(RequestGenerateCHK):
		dataLen, err := num("DataLength")
		if err != nil {
			return nil, err
		}
		metaLen, err := num("MetadataLength")
		if err != nil {
			return nil, err
		}
		return GenerateCHK{DataLength: dataLen, MetadataLength: metaLen}, nil
	case strings.ToLower(RequestFECSegmentFile):
		fileLen, err := num("FileLength")
		if err != nil {
			return nil, err
		}
		return FECSegmentFile{AlgoName: str("AlgoName"), FileLength: fileLen}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, strconv.Quote(h.Keyword))
}
