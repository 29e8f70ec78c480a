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

package fcp

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/blinklabs-io/gofcp/key"
	"github.com/blinklabs-io/gofcp/metadata"
)

// ErrDateRedirectTarget is returned for a date-based redirect whose target cannot carry an edition
var ErrDateRedirectTarget = errors.New("fcp: date-based redirect target must be a KSK or SSK")

// DateRedirectPolicy maps a date-based redirect document to the key of the edition current at now
type DateRedirectPolicy interface {
	Resolve(doc *metadata.Document, now time.Time) (key.URI, error)
}

// DateRedirectPolicyFunc adapts a function to the DateRedirectPolicy interface
type DateRedirectPolicyFunc func(*metadata.Document, time.Time) (key.URI, error)

func (f DateRedirectPolicyFunc) Resolve(doc *metadata.Document, now time.Time) (key.URI, error) {
	return f(doc, now)
}

// PeriodicDateRedirect publishes a new edition every Increment, starting Offset after the Unix epoch.
// The edition key is the target with the hexadecimal start time of the current period prepended to
// its name, as in KSK@5f5e1000-name.
type PeriodicDateRedirect struct{}

func (PeriodicDateRedirect) Resolve(doc *metadata.Document, now time.Time) (key.URI, error) {
	dbr, err := metadata.ParseDateRedirect(doc)
	if err != nil {
		return key.URI{}, err
	}
	return EditionURI(dbr, now)
}

// EditionURI returns the key of the edition of a date-based redirect that is current at now
func EditionURI(dbr metadata.DateRedirect, now time.Time) (key.URI, error) {
	offset := int64(dbr.Offset / time.Second)
	increment := int64(dbr.Increment / time.Second)
	if increment <= 0 {
		increment = int64(metadata.DefaultDateIncrement / time.Second)
	}
	secs := now.Unix()
	edition := offset
	if secs > offset {
		edition += (secs - offset) / increment * increment
	}
	prefix := strconv.FormatInt(edition, 16) + "-"
	ret := dbr.Target
	switch ret.Type {
	case key.KeyTypeKSK:
		ret.RoutingKey = prefix + ret.RoutingKey
	case key.KeyTypeSSK:
		ret.Filename = prefix + ret.Filename
	default:
		return key.URI{}, fmt.Errorf("%w: %s", ErrDateRedirectTarget, ret.String())
	}
	return ret, nil
}
