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

package wire

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// Reader reads framed headers and bodies from a byte stream
type Reader struct {
	r *bufio.Reader
}

// NewReader returns a Reader for the provided stream
func NewReader(r io.Reader) *Reader {
	return &Reader{
		// Leave room for the line ending on a maximum length line
		r: bufio.NewReaderSize(r, MaxLineLength+2),
	}
}

// ReadHeader reads the next message header. Empty lines before the keyword are
// skipped. It returns io.EOF if the stream ended cleanly before a new header
// and io.ErrUnexpectedEOF if it ended inside one.
func (r *Reader) ReadHeader() (*Header, error) {
	var keyword string
	for keyword == "" {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		keyword = strings.TrimSpace(line)
	}
	h := &Header{Keyword: keyword}
	for {
		line, err := r.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		switch line {
		case TerminatorEndMessage:
			h.Terminator = TermEndMessage
			return h, nil
		case TerminatorData:
			h.Terminator = TermData
			return h, nil
		case "":
			h.Terminator = TermBlank
			return h, nil
		}
		if len(h.Fields) >= MaxHeaderLines {
			return nil, ErrTooManyFields
		}
		field, err := parseField(line)
		if err != nil {
			return nil, err
		}
		h.Fields = append(h.Fields, field)
	}
}

// Read reads body bytes. Callers are responsible for never reading past the declared body length.
func (r *Reader) Read(p []byte) (int, error) {
	return r.r.Read(p)
}

// Buffered returns the number of bytes already read from the stream but not yet consumed
func (r *Reader) Buffered() int {
	return r.r.Buffered()
}

func (r *Reader) readLine() (string, error) {
	line, err := r.r.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return "", ErrLineTooLong
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	if len(line) > MaxLineLength {
		return "", ErrLineTooLong
	}
	return string(line), nil
}
