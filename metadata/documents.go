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

package metadata

import (
	"fmt"
	"strconv"
	"time"

	"github.com/blinklabs-io/gofcp/key"
)

// Field names used by the well known document types
const (
	FieldTarget      = "Target"
	FieldOffset      = "Offset"
	FieldIncrement   = "Increment"
	FieldFormat      = "Format"
	FieldDescription = "Description"
)

const (
	// DefaultDateIncrement is the increment of a date-based redirect that does not specify one
	DefaultDateIncrement = 24 * time.Hour
)

// NewRedirect returns a redirect document pointing at target
func NewRedirect(name string, target key.URI) *Document {
	doc := NewDocument(DocumentTypeRedirect, name)
	doc.Set(FieldTarget, "freenet:"+target.String())
	return doc
}

// Target returns the parsed Target field of a redirect or date-based redirect document
func (d *Document) Target() (key.URI, error) {
	v, ok := d.Get(FieldTarget)
	if !ok {
		return key.URI{}, fmt.Errorf("%w: %s document without %s", ErrMalformedMetadata, d.Type, FieldTarget)
	}
	ret, err := key.Parse(v)
	if err != nil {
		return key.URI{}, fmt.Errorf("%w: %w", ErrMalformedMetadata, err)
	}
	return ret, nil
}

// DateRedirect holds the fields of a date-based redirect document. Target is the
// base key, and a new edition is published every Increment starting at Offset.
type DateRedirect struct {
	Target    key.URI
	Offset    time.Duration
	Increment time.Duration
}

// NewDateRedirect returns a date-based redirect document
func NewDateRedirect(name string, dbr DateRedirect) *Document {
	doc := NewDocument(DocumentTypeDateRedirect, name)
	doc.Set(FieldTarget, "freenet:"+dbr.Target.String())
	doc.Set(FieldOffset, strconv.FormatInt(int64(dbr.Offset/time.Second), 10))
	doc.Set(FieldIncrement, strconv.FormatInt(int64(dbr.Increment/time.Second), 10))
	return doc
}

// ParseDateRedirect reads the fields of a date-based redirect document
func ParseDateRedirect(d *Document) (DateRedirect, error) {
	var ret DateRedirect
	if d.Type != DocumentTypeDateRedirect {
		return ret, fmt.Errorf("%w: %s is not a date-based redirect", ErrMalformedMetadata, d.Type)
	}
	target, err := d.Target()
	if err != nil {
		return ret, err
	}
	ret.Target = target
	ret.Increment = DefaultDateIncrement
	if v, ok := d.Get(FieldOffset); ok {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil || secs < 0 {
			return ret, fmt.Errorf("%w: bad %s %q", ErrMalformedMetadata, FieldOffset, v)
		}
		ret.Offset = time.Duration(secs) * time.Second
	}
	if v, ok := d.Get(FieldIncrement); ok {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil || secs <= 0 {
			return ret, fmt.Errorf("%w: bad %s %q", ErrMalformedMetadata, FieldIncrement, v)
		}
		ret.Increment = time.Duration(secs) * time.Second
	}
	return ret, nil
}

// NewInfo returns an info document describing the data
func NewInfo(name string, format string, description string) *Document {
	doc := NewDocument(DocumentTypeInfo, name)
	if format != "" {
		doc.Set(FieldFormat, format)
	}
	if description != "" {
		doc.Set(FieldDescription, description)
	}
	return doc
}

// Format returns the MIME type of the first info document with the given name, if any
func (c *Chain) Format(name string) string {
	for _, doc := range c.FindType(name, DocumentTypeInfo) {
		if v, ok := doc.Get(FieldFormat); ok {
			return v
		}
	}
	return ""
}
