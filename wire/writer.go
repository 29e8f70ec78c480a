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
	"io"
)

// Writer writes framed messages. Output is buffered until Flush is called.
type Writer struct {
	w *bufio.Writer
}

// NewWriter returns a Writer for the provided stream
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w: bufio.NewWriter(w),
	}
}

// WriteHeader writes an encoded header
func (w *Writer) WriteHeader(h *Header) error {
	data, err := h.Encode()
	if err != nil {
		return err
	}
	_, err = w.w.Write(data)
	return err
}

// Write writes raw body bytes
func (w *Writer) Write(p []byte) (int, error) {
	return w.w.Write(p)
}

// Flush sends any buffered data to the underlying stream
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// WriteMessage writes a header followed by its body and flushes
func (w *Writer) WriteMessage(h *Header, body []byte) error {
	if err := w.WriteHeader(h); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.w.Write(body); err != nil {
			return err
		}
	}
	return w.w.Flush()
}
