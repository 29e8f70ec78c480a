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

// Package wire implements the line-oriented framing used by the Freenet
// Client Protocol: a keyword line, name/value header lines, a terminator
// line and an optional binary body whose length is declared in the header.
package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// MaxLineLength is the longest header line accepted from the peer
	MaxLineLength = 4096
	// MaxHeaderLines is the most name/value lines accepted in one header
	MaxHeaderLines = 128

	TerminatorEndMessage = "EndMessage"
	TerminatorData       = "Data"
)

// SessionIdentifier is written by the client at the start of every FCP connection
var SessionIdentifier = []byte{0x00, 0x00, 0x00, 0x02}

var (
	ErrLineTooLong      = errors.New("wire: header line too long")
	ErrTooManyFields    = errors.New("wire: too many header lines")
	ErrMalformedField   = errors.New("wire: malformed header line")
	ErrEmptyKeyword     = errors.New("wire: empty message keyword")
	ErrInvalidFieldText = errors.New("wire: header text contains a line break")
)

// Terminator identifies how a header ended, which determines where its body comes from
type Terminator uint8

const (
	// TermEndMessage ends a header without an inline body
	TermEndMessage Terminator = iota
	// TermData ends a header that is immediately followed by its body
	TermData
	// TermBlank is an empty line, followed by a body if the header declares one
	TermBlank
)

func (t Terminator) String() string {
	switch t {
	case TermEndMessage:
		return TerminatorEndMessage
	case TermData:
		return TerminatorData
	case TermBlank:
		return ""
	}
	return fmt.Sprintf("Terminator(%d)", uint8(t))
}

// Field is a single name/value header line
type Field struct {
	Name  string
	Value string
}

// Header is one framed message header
type Header struct {
	Keyword    string
	Fields     []Field
	Terminator Terminator
}

// NewHeader returns a header with the given keyword, ended with EndMessage
func NewHeader(keyword string) *Header {
	return &Header{
		Keyword:    keyword,
		Terminator: TermEndMessage,
	}
}

// Set appends a field, or replaces the value of an existing field with the same name
func (h *Header) Set(name string, value string) {
	for i := range h.Fields {
		if strings.EqualFold(h.Fields[i].Name, name) {
			h.Fields[i].Value = value
			return
		}
	}
	h.Fields = append(h.Fields, Field{Name: name, Value: value})
}

// SetUint sets a numeric field formatted in the given base
func (h *Header) SetUint(name string, value uint64, base int) {
	h.Set(name, strconv.FormatUint(value, base))
}

// Get returns the value of the named field. Names are matched case-insensitively.
func (h *Header) Get(name string) (string, bool) {
	for _, f := range h.Fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Uint returns the named field parsed as an unsigned number in the given base.
// A missing field is reported with ok set to false and no error.
func (h *Header) Uint(name string, base int) (uint64, bool, error) {
	v, ok := h.Get(name)
	if !ok {
		return 0, false, nil
	}
	ret, err := strconv.ParseUint(strings.TrimSpace(v), base, 64)
	if err != nil {
		return 0, true, fmt.Errorf("%w: %s=%q", ErrMalformedField, name, v)
	}
	return ret, true, nil
}

// HasInlineBody reports whether a declared body follows the header directly
func (h *Header) HasInlineBody() bool {
	return h.Terminator != TermEndMessage
}

// Encode returns the header in wire form
func (h *Header) Encode() ([]byte, error) {
	if h.Keyword == "" {
		return nil, ErrEmptyKeyword
	}
	var sb strings.Builder
	if err := writeLine(&sb, h.Keyword); err != nil {
		return nil, err
	}
	for _, f := range h.Fields {
		if f.Name == "" || strings.ContainsAny(f.Name, "=:") {
			return nil, fmt.Errorf("%w: field name %q", ErrMalformedField, f.Name)
		}
		if err := writeLine(&sb, f.Name+"="+f.Value); err != nil {
			return nil, err
		}
	}
	if err := writeLine(&sb, h.Terminator.String()); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func writeLine(sb *strings.Builder, line string) error {
	if strings.ContainsAny(line, "\r\n") {
		return ErrInvalidFieldText
	}
	sb.WriteString(line)
	sb.WriteByte('\n')
	return nil
}

// parseField splits a header line on whichever of '=' or ':' comes first
func parseField(line string) (Field, error) {
	eq := strings.IndexByte(line, '=')
	colon := strings.IndexByte(line, ':')
	switch {
	case eq > 0 && (colon < 0 || eq < colon):
		return Field{Name: strings.TrimSpace(line[:eq]), Value: line[eq+1:]}, nil
	case colon > 0:
		return Field{
			Name:  strings.TrimSpace(line[:colon]),
			Value: strings.TrimSpace(line[colon+1:]),
		}, nil
	}
	return Field{}, fmt.Errorf("%w: %q", ErrMalformedField, line)
}
