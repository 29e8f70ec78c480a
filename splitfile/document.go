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
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/blinklabs-io/gofcp/key"
	"github.com/blinklabs-io/gofcp/metadata"
)

// Splitfile document field names
const (
	FieldAlgorithm        = "Algorithm"
	FieldFileLength       = "FileLength"
	FieldOffset           = metadata.FieldOffset
	FieldBlockSize        = "BlockSize"
	FieldBlockCount       = "BlockCount"
	FieldDataBlockOffset  = "DataBlockOffset"
	FieldCheckBlockSize   = "CheckBlockSize"
	FieldCheckBlockCount  = "CheckBlockCount"
	FieldCheckBlockOffset = "CheckBlockOffset"
	FieldSegment          = "Segment"
	FieldSegments         = "Segments"
	FieldBlocksRequired   = "BlocksRequired"
	FieldBlockPrefix      = "Block."
	FieldCheckPrefix      = "Check."
)

// geometryFields is the number of fields of a splitfile document that are not block keys
const geometryFields = 12

// MaxDocumentBlocks is the most data plus check blocks one splitfile document can list
const MaxDocumentBlocks = metadata.MaxFields - geometryFields

// Document returns the splitfile document describing the segment and its block keys
func (s *Segment) Document(name string) *metadata.Document {
	doc := metadata.NewDocument(metadata.DocumentTypeSplitfile, name)
	add := func(field string, value string) {
		doc.Fields = append(doc.Fields, metadata.Field{Name: field, Value: value})
	}
	add(FieldAlgorithm, s.Algorithm)
	add(FieldFileLength, strconv.FormatInt(s.FileLength, 10))
	add(FieldOffset, strconv.FormatInt(s.Offset, 10))
	add(FieldBlockSize, strconv.Itoa(s.BlockSize))
	add(FieldBlockCount, strconv.Itoa(s.BlockCount))
	add(FieldDataBlockOffset, strconv.Itoa(s.DataBlockOffset))
	add(FieldCheckBlockSize, strconv.Itoa(s.CheckBlockSize))
	add(FieldCheckBlockCount, strconv.Itoa(s.CheckBlockCount))
	add(FieldCheckBlockOffset, strconv.Itoa(s.CheckBlockOffset))
	add(FieldSegment, strconv.Itoa(s.Index))
	add(FieldSegments, strconv.Itoa(s.Total))
	add(FieldBlocksRequired, strconv.Itoa(s.BlocksRequired))
	for _, b := range s.DataBlocks {
		add(FieldBlockPrefix+strconv.Itoa(b.Index), "freenet:"+b.URI.String())
	}
	for _, b := range s.CheckBlocks {
		add(FieldCheckPrefix+strconv.Itoa(b.Index), "freenet:"+b.URI.String())
	}
	return doc
}

// FromDocuments builds the segments described by the splitfile documents among docs, in
// segment order. Every numeric field and block key is validated, and the segments must
// cover the file exactly.
func FromDocuments(docs []*metadata.Document) ([]*Segment, error) {
	var segments []*Segment
	for _, doc := range docs {
		if doc.Type != metadata.DocumentTypeSplitfile {
			continue
		}
		seg, err := segmentFromDocument(doc)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no splitfile documents", ErrInvalidSegment)
	}
	slices.SortStableFunc(segments, func(a, b *Segment) int {
		return a.Index - b.Index
	})
	var end int64
	for i, seg := range segments {
		switch {
		case seg.Index != i:
			return nil, fmt.Errorf("%w: expected segment %d, found %d", ErrInvalidSegment, i, seg.Index)
		case seg.Total != len(segments):
			return nil, fmt.Errorf(
				"%w: segment %d claims %d segments, found %d",
				ErrInvalidSegment,
				i,
				seg.Total,
				len(segments),
			)
		case seg.FileLength != segments[0].FileLength:
			return nil, fmt.Errorf("%w: segment %d file length differs", ErrInvalidSegment, i)
		case seg.Offset != end:
			return nil, fmt.Errorf("%w: segment %d starts at %d, want %d", ErrInvalidSegment, i, seg.Offset, end)
		}
		end += seg.DataLength()
	}
	if end != segments[0].FileLength {
		return nil, fmt.Errorf(
			"%w: segments cover %d of %d bytes",
			ErrInvalidSegment,
			end,
			segments[0].FileLength,
		)
	}
	return segments, nil
}

func segmentFromDocument(doc *metadata.Document) (*Segment, error) {
	r := fieldReader{doc: doc}
	seg := &Segment{
		Algorithm:        r.str(FieldAlgorithm),
		FileLength:       r.int64(FieldFileLength),
		Offset:           r.int64(FieldOffset),
		BlockSize:        r.int(FieldBlockSize),
		BlockCount:       r.int(FieldBlockCount),
		DataBlockOffset:  r.int(FieldDataBlockOffset),
		CheckBlockSize:   r.int(FieldCheckBlockSize),
		CheckBlockCount:  r.int(FieldCheckBlockCount),
		CheckBlockOffset: r.int(FieldCheckBlockOffset),
		Index:            r.int(FieldSegment),
		Total:            r.int(FieldSegments),
		BlocksRequired:   r.int(FieldBlocksRequired),
	}
	if r.err != nil {
		return nil, r.err
	}
	switch {
	case seg.BlockSize == 0 || seg.CheckBlockSize == 0:
		return nil, fmt.Errorf("%w: zero block size", ErrInvalidSegment)
	case seg.BlockCount == 0:
		return nil, fmt.Errorf("%w: segment %d has no data blocks", ErrInvalidSegment, seg.Index)
	case seg.BlockCount+seg.CheckBlockCount > MaxDocumentBlocks:
		return nil, fmt.Errorf(
			"%w: segment %d lists %d blocks, at most %d fit",
			ErrInvalidSegment,
			seg.Index,
			seg.BlockCount+seg.CheckBlockCount,
			MaxDocumentBlocks,
		)
	case seg.Total == 0 || seg.Index >= seg.Total:
		return nil, fmt.Errorf("%w: segment %d of %d", ErrInvalidSegment, seg.Index, seg.Total)
	case seg.BlocksRequired == 0 || seg.BlocksRequired > seg.BlockCount+seg.CheckBlockCount:
		return nil, fmt.Errorf("%w: segment %d requires %d blocks", ErrInvalidSegment, seg.Index, seg.BlocksRequired)
	case seg.Offset > seg.FileLength:
		return nil, fmt.Errorf("%w: segment %d starts past end of file", ErrInvalidSegment, seg.Index)
	}
	// Every data block must hold at least one byte
	// #nosec G115
	if seg.FileLength-seg.Offset <= int64(seg.BlockCount-1)*int64(seg.BlockSize) {
		return nil, fmt.Errorf("%w: segment %d has empty data blocks", ErrInvalidSegment, seg.Index)
	}
	seg.allocateBlocks()
	for _, b := range seg.DataBlocks {
		b.URI = r.uri(FieldBlockPrefix + strconv.Itoa(b.Index))
	}
	for _, b := range seg.CheckBlocks {
		b.URI = r.uri(FieldCheckPrefix + strconv.Itoa(b.Index))
	}
	if r.err != nil {
		return nil, r.err
	}
	return seg, nil
}

// fieldReader reads required fields, keeping the first error
type fieldReader struct {
	doc *metadata.Document
	err error
}

func (r *fieldReader) str(name string) string {
	if r.err != nil {
		return ""
	}
	v, ok := r.doc.Get(name)
	if !ok || v == "" {
		r.err = fmt.Errorf("%w: missing %s", ErrInvalidSegment, name)
		return ""
	}
	return v
}

func (r *fieldReader) int64(name string) int64 {
	v := r.str(name)
	if r.err != nil {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	// Canonical decimal only
	if err != nil || n < 0 || strconv.FormatInt(n, 10) != v {
		r.err = fmt.Errorf("%w: bad %s %q", ErrInvalidSegment, name, v)
		return 0
	}
	return n
}

func (r *fieldReader) int(name string) int {
	n := r.int64(name)
	if n > math.MaxInt32 {
		r.err = fmt.Errorf("%w: %s out of range", ErrInvalidSegment, name)
		return 0
	}
	return int(n)
}

func (r *fieldReader) uri(name string) key.URI {
	v := r.str(name)
	if r.err != nil {
		return key.URI{}
	}
	uri, err := key.Parse(v)
	if err != nil {
		r.err = fmt.Errorf("%w: %s: %w", ErrInvalidSegment, name, err)
		return key.URI{}
	}
	if uri.Type != key.KeyTypeCHK || uri.IsEmptyCHK() {
		r.err = fmt.Errorf("%w: %s is not a CHK", ErrInvalidSegment, name)
		return key.URI{}
	}
	return uri
}
