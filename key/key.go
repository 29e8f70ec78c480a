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

// Package key parses and formats Freenet key URIs (CHK@, SSK@ and KSK@).
package key

import (
	"errors"
	"fmt"
	"strings"
)

// KeyType identifies the kind of Freenet key
type KeyType uint8

const (
	KeyTypeNone KeyType = 0
	KeyTypeSSK  KeyType = 1
	KeyTypeCHK  KeyType = 2
	KeyTypeKSK  KeyType = 3
)

const uriScheme = "freenet:"

var keyTypePrefixes = map[KeyType]string{
	KeyTypeSSK: "SSK@",
	KeyTypeCHK: "CHK@",
	KeyTypeKSK: "KSK@",
}

var (
	ErrInvalidURI     = errors.New("key: invalid URI")
	ErrUnknownKeyType = errors.New("key: unknown key type")
)

func (t KeyType) String() string {
	if p, ok := keyTypePrefixes[t]; ok {
		return strings.TrimSuffix(p, "@")
	}
	return "None"
}

// URI is a parsed Freenet key reference. It is immutable once parsed.
type URI struct {
	Type KeyType
	// RoutingKey is the public/private routing key for CHK and SSK keys,
	// and the keyword itself for KSK keys
	RoutingKey string
	CryptoKey  string
	// Filename is the filename hint for CHK keys and the document name for SSK keys
	Filename   string
	MetaString string
}

// Parse parses a key URI string
func Parse(s string) (URI, error) {
	var ret URI
	s = strings.TrimSpace(s)
	if len(s) >= len(uriScheme) && strings.EqualFold(s[:len(uriScheme)], uriScheme) {
		s = s[len(uriScheme):]
	}
	if len(s) < 4 || s[3] != '@' {
		return ret, fmt.Errorf("%w: missing key type in %q", ErrInvalidURI, s)
	}
	switch strings.ToUpper(s[:4]) {
	case "CHK@":
		ret.Type = KeyTypeCHK
	case "SSK@":
		ret.Type = KeyTypeSSK
	case "KSK@":
		ret.Type = KeyTypeKSK
	default:
		return ret, fmt.Errorf("%w: %q", ErrUnknownKeyType, s[:3])
	}
	rest := s[4:]
	if idx := strings.IndexByte(rest, '#'); idx >= 0 {
		ret.MetaString = rest[idx+1:]
		rest = rest[:idx]
	}
	switch ret.Type {
	case KeyTypeKSK:
		if rest == "" {
			return ret, fmt.Errorf("%w: empty keyword", ErrInvalidURI)
		}
		ret.RoutingKey = rest
	case KeyTypeCHK:
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			ret.Filename = rest[idx+1:]
			rest = rest[:idx]
		}
		if rest != "" {
			parts := strings.SplitN(rest, ",", 2)
			if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
				return ret, fmt.Errorf("%w: CHK needs routing and crypto keys", ErrInvalidURI)
			}
			ret.RoutingKey, ret.CryptoKey = parts[0], parts[1]
		}
	case KeyTypeSSK:
		idx := strings.IndexByte(rest, '/')
		if idx < 0 {
			return ret, fmt.Errorf("%w: SSK needs a document name", ErrInvalidURI)
		}
		ret.Filename = rest[idx+1:]
		rest = rest[:idx]
		parts := strings.SplitN(rest, ",", 2)
		if parts[0] == "" {
			return ret, fmt.Errorf("%w: empty SSK routing key", ErrInvalidURI)
		}
		ret.RoutingKey = parts[0]
		if len(parts) == 2 {
			ret.CryptoKey = parts[1]
		}
	}
	return ret, nil
}

// MustParse is like Parse but panics on error. It is intended for constants and tests.
func MustParse(s string) URI {
	u, err := Parse(s)
	if err != nil {
		panic(err.Error())
	}
	return u
}

// NewCHK returns the URI of a CHK insert whose key will be computed by the node
func NewCHK() URI {
	return URI{Type: KeyTypeCHK}
}

// NewKSK returns the URI of a keyword signed key
func NewKSK(keyword string) URI {
	return URI{Type: KeyTypeKSK, RoutingKey: keyword}
}

// String formats the URI without the freenet: scheme
func (u URI) String() string {
	var sb strings.Builder
	sb.WriteString(keyTypePrefixes[u.Type])
	switch u.Type {
	case KeyTypeKSK:
		sb.WriteString(u.RoutingKey)
	case KeyTypeCHK:
		if u.RoutingKey != "" {
			sb.WriteString(u.RoutingKey)
			sb.WriteByte(',')
			sb.WriteString(u.CryptoKey)
		}
		if u.Filename != "" {
			sb.WriteByte('/')
			sb.WriteString(u.Filename)
		}
	case KeyTypeSSK:
		sb.WriteString(u.RoutingKey)
		if u.CryptoKey != "" {
			sb.WriteByte(',')
			sb.WriteString(u.CryptoKey)
		}
		sb.WriteByte('/')
		sb.WriteString(u.Filename)
	}
	if u.MetaString != "" {
		sb.WriteByte('#')
		sb.WriteString(u.MetaString)
	}
	return sb.String()
}

// IsZero reports whether the URI is unset
func (u URI) IsZero() bool {
	return u.Type == KeyTypeNone
}

// IsEmptyCHK reports whether the URI is a CHK insert request without a computed key
func (u URI) IsEmptyCHK() bool {
	return u.Type == KeyTypeCHK && u.RoutingKey == ""
}

// WithoutHints returns the URI with the filename and metastring removed, which
// is the form a node stores CHKs under
func (u URI) WithoutHints() URI {
	if u.Type == KeyTypeCHK {
		u.Filename = ""
	}
	u.MetaString = ""
	return u
}

// DocumentName returns the metadata document name the URI selects
func (u URI) DocumentName() string {
	if u.MetaString != "" {
		return u.MetaString
	}
	return ""
}
