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

// Success reports a completed insert or key generation
type Success struct {
	MessageBase
	URI        string
	PublicKey  string
	PrivateKey string
	CryptoKey  string
	Public     string
	Length     uint64
}

// NodeHello answers ClientHello
type NodeHello struct {
	MessageBase
	Protocol         string
	Node             string
	HighestSeenBuild string
	MaxFileSize      uint64
}

// NodeInfo answers ClientInfo
type NodeInfo struct {
	MessageBase
	Architecture             string
	Processors               uint64
	OperatingSystem          string
	OperatingSystemVersion   string
	JavaVendor               string
	JavaName                 string
	JavaVersion              string
	MaximumMemory            uint64
	AllocatedMemory          uint64
	FreeMemory               uint64
	EstimatedLoad            uint64
	EstimateRateLimitingLoad uint64
	DatastoreMax             uint64
	DatastoreFree            uint64
	DatastoreUsed            uint64
	MaxFileSize              uint64
	MostRecentTimestamp      uint64
	LeastRecentTimestamp     uint64
	RoutingTime              uint64
	AvailableThreads         uint64
	ActiveJobs               uint64
	NodeAddress              string
	NodePort                 uint64
	IsTransient              bool
}

// DataFound announces the body of a retrieved key. DataLength covers the
// metadata and the data; the first MetadataLength bytes are metadata.
type DataFound struct {
	MessageBase
	DataLength     uint64
	MetadataLength uint64
	Timeout        uint64
}

func (m *DataFound) PayloadLength() int64 {
	return int64(m.DataLength) // #nosec G115
}

// DataChunk carries part of a body that was announced without an inline payload
type DataChunk struct {
	MessageBase
	Length uint64
}

type DataNotFound struct {
	MessageBase
	Reason string
}

type RouteNotFound struct {
	MessageBase
	Reason      string
	Unreachable uint64
	Restarted   uint64
	Rejected    uint64
	BackedOff   uint64
}

type URIError struct {
	MessageBase
	Reason string
}

// Restarted means the node restarted the request; the final response is still to come
type Restarted struct {
	MessageBase
	Reason  string
	Timeout uint64
}

type KeyCollision struct {
	MessageBase
	URI        string
	PublicKey  string
	PrivateKey string
}

// Pending reports an insert in progress; the final response is still to come
type Pending struct {
	MessageBase
	URI        string
	Timeout    uint64
	PublicKey  string
	PrivateKey string
}

type Failed struct {
	MessageBase
	Reason string
}

type FormatError struct {
	MessageBase
	Reason string
}

// SegmentHeader describes one segment of the node's own segmentation of a file
type SegmentHeader struct {
	MessageBase
	FECAlgorithm     string
	FileLength       uint64
	Offset           uint64
	BlockCount       uint64
	BlockSize        uint64
	DataBlockOffset  uint64
	CheckBlockCount  uint64
	CheckBlockSize   uint64
	CheckBlockOffset uint64
	Segments         uint64
	SegmentNum       uint64
	BlocksRequired   uint64
}

// BlocksTransferred is used for both BlocksEncoded and BlocksDecoded. The
// body holds BlockCount blocks of BlockSize bytes.
type BlocksTransferred struct {
	MessageBase
	BlockCount uint64
	BlockSize  uint64
}

func (m *BlocksTransferred) PayloadLength() int64 {
	return int64(m.BlockCount * m.BlockSize) // #nosec G115
}

// MadeMetadata carries metadata generated by the node
type MadeMetadata struct {
	MessageBase
	DataLength uint64
}

func (m *MadeMetadata) PayloadLength() int64 {
	return int64(m.DataLength) // #nosec G115
}
