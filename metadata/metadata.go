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

// Package metadata encodes and decodes Freenet metadata: a chain of typed
// documents stored in front of the data of a key.
//
// The byte format is
//
//	chain    = header body rest
//	header   = "Version" SP revision SP encoding SP body-length LF
//	body     = *document
//	document = tag SP field-count SP netstr LF *field
//	field    = netstr SP netstr LF
//	netstr   = length ":" *OCTET
//
// with every number in canonical decimal. Bytes after the body are kept
// verbatim as the chain's rest and are never interpreted.
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

const (
	// MaxFields is the most fields a single document may hold
	MaxFields = 64
	// MaxDocuments is the most documents a chain may hold
	MaxDocuments = 128

	DefaultRevision   = 1
	EncodingNetstring = "netstr"

	headerKeyword = "Version"
	// canonical numbers longer than this cannot be valid lengths
	maxNumberDigits = 15
)

var (
	ErrMalformedMetadata   = errors.New("metadata: malformed")
	ErrTooManyFields       = errors.New("too many fields in document")
	ErrTooManyDocuments    = errors.New("too many documents in chain")
	ErrUnknownDocumentType = errors.New("unknown document type")
	ErrLengthMismatch      = errors.New("length mismatch")
)

// DocumentType is the one byte tag of a document
type DocumentType byte

const (
	DocumentTypeRedirect     DocumentType = 'r'
	DocumentTypeDateRedirect DocumentType = 'd'
	DocumentTypeSplitfile    DocumentType = 's'
	DocumentTypeInfo         DocumentType = 'i'
	DocumentTypeExtInfo      DocumentType = 'e'
)

func (t DocumentType) Valid() bool {
	switch t {
	case DocumentTypeRedirect,
		DocumentTypeDateRedirect,
		DocumentTypeSplitfile,
		DocumentTypeInfo,
		DocumentTypeExtInfo:
		return true
	}
	return false
}

func (t DocumentType) String() string {
	switch t {
	case DocumentTypeRedirect:
		return "Redirect"
	case DocumentTypeDateRedirect:
		return "DateRedirect"
	case DocumentTypeSplitfile:
		return "Splitfile"
	case DocumentTypeInfo:
		return "Info"
	case DocumentTypeExtInfo:
		return "ExtInfo"
	}
	return fmt.Sprintf("DocumentType(%q)", byte(t))
}

// IsControl reports whether documents of this type decide what a key handle does with the data
func (t DocumentType) IsControl() bool {
	return t == DocumentTypeRedirect || t == DocumentTypeDateRedirect || t == DocumentTypeSplitfile
}

type Field struct {
	Name  string
	Value string
}

// Document is one typed, named record of ordered fields
type Document struct {
	Type   DocumentType
	Name   string
	Fields []Field
}

// NewDocument returns an empty document
func NewDocument(docType DocumentType, name string) *Document {
	return &Document{
		Type: docType,
		Name: name,
	}
}

// Get returns the value of the first field with the given name
func (d *Document) Get(name string) (string, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Set replaces the value of the first field with the given name, or appends a new field
func (d *Document) Set(name string, value string) {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			d.Fields[i].Value = value
			return
		}
	}
	d.Fields = append(d.Fields, Field{Name: name, Value: value})
}

// Chain is a decoded metadata chain
type Chain struct {
	Revision  int
	Encoding  string
	Documents []*Document
	// Raw holds the encoded header and body, as decoded or last encoded
	Raw []byte
	// Rest holds the bytes following the body
	Rest []byte
}

// NewChain returns an empty chain with the default revision and encoding
func NewChain() *Chain {
	return &Chain{
		Revision: DefaultRevision,
		Encoding: EncodingNetstring,
	}
}

// Add appends documents to the chain
func (c *Chain) Add(docs ...*Document) {
	c.Documents = append(c.Documents, docs...)
}

// Find returns the documents with the given name, in chain order
func (c *Chain) Find(name string) []*Document {
	var ret []*Document
	for _, doc := range c.Documents {
		if doc.Name == name {
			ret = append(ret, doc)
		}
	}
	return ret
}

// Control returns the first redirect, date-based redirect or splitfile document with the given name
func (c *Chain) Control(name string) *Document {
	for _, doc := range c.Find(name) {
		if doc.Type.IsControl() {
			return doc
		}
	}
	return nil
}

// FindType returns the documents with the given name and type, in chain order
func (c *Chain) FindType(name string, docType DocumentType) []*Document {
	var ret []*Document
	for _, doc := range c.Find(name) {
		if doc.Type == docType {
			ret = append(ret, doc)
		}
	}
	return ret
}

// Encode serializes the documents, stores the result in Raw and returns Raw followed by Rest
func (c *Chain) Encode() ([]byte, error) {
	if len(c.Documents) > MaxDocuments {
		return nil, fmt.Errorf("%w: %w: %d", ErrMalformedMetadata, ErrTooManyDocuments, len(c.Documents))
	}
	encoding := c.Encoding
	if encoding == "" {
		encoding = EncodingNetstring
	}
	if encoding != EncodingNetstring {
		return nil, fmt.Errorf("%w: unsupported encoding %q", ErrMalformedMetadata, encoding)
	}
	if c.Revision < 0 {
		return nil, fmt.Errorf("%w: negative revision", ErrMalformedMetadata)
	}
	var body bytes.Buffer
	for _, doc := range c.Documents {
		if !doc.Type.Valid() {
			return nil, fmt.Errorf("%w: %w: %q", ErrMalformedMetadata, ErrUnknownDocumentType, byte(doc.Type))
		}
		if len(doc.Fields) > MaxFields {
			return nil, fmt.Errorf("%w: %w: %d", ErrMalformedMetadata, ErrTooManyFields, len(doc.Fields))
		}
		body.WriteByte(byte(doc.Type))
		body.WriteByte(' ')
		body.WriteString(strconv.Itoa(len(doc.Fields)))
		body.WriteByte(' ')
		writeNetstring(&body, doc.Name)
		body.WriteByte('\n')
		for _, f := range doc.Fields {
			writeNetstring(&body, f.Name)
			body.WriteByte(' ')
			writeNetstring(&body, f.Value)
			body.WriteByte('\n')
		}
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %d %s %d\n", headerKeyword, c.Revision, encoding, body.Len())
	buf.Write(body.Bytes())
	c.Encoding = encoding
	c.Raw = bytes.Clone(buf.Bytes())
	buf.Write(c.Rest)
	return buf.Bytes(), nil
}

func writeNetstring(buf *bytes.Buffer, s string) {
	buf.WriteString(strconv.Itoa(len(s)))
	buf.WriteByte(':')
	buf.WriteString(s)
}

// Decode parses a metadata chain. Empty input is malformed; callers skip decoding when a key
// carries no metadata.
func Decode(data []byte) (*Chain, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedMetadata)
	}
	lineEnd := bytes.IndexByte(data, '\n')
	if lineEnd < 0 {
		return nil, fmt.Errorf("%w: %w: unterminated header", ErrMalformedMetadata, ErrLengthMismatch)
	}
	parts := bytes.Split(data[:lineEnd], []byte{' '})
	if len(parts) != 4 || string(parts[0]) != headerKeyword {
		return nil, fmt.Errorf("%w: bad header", ErrMalformedMetadata)
	}
	ret := &Chain{}
	var err error
	if ret.Revision, err = parseNumber(parts[1]); err != nil {
		return nil, err
	}
	ret.Encoding = string(parts[2])
	if ret.Encoding != EncodingNetstring {
		return nil, fmt.Errorf("%w: unsupported encoding %q", ErrMalformedMetadata, ret.Encoding)
	}
	bodyLen, err := parseNumber(parts[3])
	if err != nil {
		return nil, err
	}
	bodyStart := lineEnd + 1
	if bodyLen > len(data)-bodyStart {
		return nil, fmt.Errorf(
			"%w: %w: body of %d bytes with %d available",
			ErrMalformedMetadata,
			ErrLengthMismatch,
			bodyLen,
			len(data)-bodyStart,
		)
	}
	p := &parser{data: data[bodyStart : bodyStart+bodyLen]}
	for p.pos < len(p.data) {
		if len(ret.Documents) == MaxDocuments {
			return nil, fmt.Errorf("%w: %w", ErrMalformedMetadata, ErrTooManyDocuments)
		}
		doc, err := p.document()
		if err != nil {
			return nil, err
		}
		ret.Documents = append(ret.Documents, doc)
	}
	ret.Raw = bytes.Clone(data[:bodyStart+bodyLen])
	ret.Rest = bytes.Clone(data[bodyStart+bodyLen:])
	return ret, nil
}

type parser struct {
	data []byte
	pos  int
}

func (p *parser) truncated() error {
	return fmt.Errorf("%w: %w: document runs past the body at offset %d", ErrMalformedMetadata, ErrLengthMismatch, p.pos)
}

func (p *parser) expect(b byte) error {
	if p.pos >= len(p.data) {
		return p.truncated()
	}
	if p.data[p.pos] != b {
		return fmt.Errorf("%w: expected %q at offset %d", ErrMalformedMetadata, b, p.pos)
	}
	p.pos++
	return nil
}

// number reads a canonical decimal number terminated by the given byte
func (p *parser) number(term byte) (int, error) {
	idx := bytes.IndexByte(p.data[p.pos:], term)
	if idx < 0 {
		return 0, p.truncated()
	}
	ret, err := parseNumber(p.data[p.pos : p.pos+idx])
	if err != nil {
		return 0, err
	}
	p.pos += idx + 1
	return ret, nil
}

func (p *parser) netstring() (string, error) {
	length, err := p.number(':')
	if err != nil {
		return "", err
	}
	if length > len(p.data)-p.pos {
		return "", p.truncated()
	}
	ret := string(p.data[p.pos : p.pos+length])
	p.pos += length
	return ret, nil
}

func (p *parser) document() (*Document, error) {
	docType := DocumentType(p.data[p.pos])
	if !docType.Valid() {
		return nil, fmt.Errorf("%w: %w: %q", ErrMalformedMetadata, ErrUnknownDocumentType, byte(docType))
	}
	p.pos++
	if err := p.expect(' '); err != nil {
		return nil, err
	}
	count, err := p.number(' ')
	if err != nil {
		return nil, err
	}
	if count > MaxFields {
		return nil, fmt.Errorf("%w: %w: %d", ErrMalformedMetadata, ErrTooManyFields, count)
	}
	doc := &Document{Type: docType}
	if doc.Name, err = p.netstring(); err != nil {
		return nil, err
	}
	if err := p.expect('\n'); err != nil {
		return nil, err
	}
	if count > 0 {
		doc.Fields = make([]Field, 0, count)
	}
	for range count {
		var f Field
		if f.Name, err = p.netstring(); err != nil {
			return nil, err
		}
		if err := p.expect(' '); err != nil {
			return nil, err
		}
		if f.Value, err = p.netstring(); err != nil {
			return nil, err
		}
		if err := p.expect('\n'); err != nil {
			return nil, err
		}
		doc.Fields = append(doc.Fields, f)
	}
	return doc, nil
}

// parseNumber accepts only canonical decimal: no sign, no leading zeros
func parseNumber(b []byte) (int, error) {
	if len(b) == 0 || len(b) > maxNumberDigits || (len(b) > 1 && b[0] == '0') {
		return 0, fmt.Errorf("%w: bad number %q", ErrMalformedMetadata, b)
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: bad number %q", ErrMalformedMetadata, b)
		}
	}
	ret, err := strconv.Atoi(string(b))
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", ErrMalformedMetadata, b)
	}
	return ret, nil
}
