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

package fcp_test

import (
	"testing"
	"time"

	fcp "github.com/blinklabs-io/gofcp"
	"github.com/blinklabs-io/gofcp/key"
	"github.com/blinklabs-io/gofcp/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditionURI(t *testing.T) {
	testDefs := []struct {
		name     string
		dbr      metadata.DateRedirect
		now      int64
		expected string
	}{
		{
			name:     "daily KSK",
			dbr:      metadata.DateRedirect{Target: key.NewKSK("news"), Increment: 24 * time.Hour},
			now:      86400*3 + 5,
			expected: "KSK@3f480-news",
		},
		{
			name: "offset and hourly",
			dbr: metadata.DateRedirect{
				Target:    key.NewKSK("site"),
				Offset:    1800 * time.Second,
				Increment: time.Hour,
			},
			now:      1800 + 3600*2 + 10,
			expected: "KSK@2328-site",
		},
		{
			name:     "before offset",
			dbr:      metadata.DateRedirect{Target: key.NewKSK("early"), Offset: 4096 * time.Second, Increment: time.Hour},
			now:      10,
			expected: "KSK@1000-early",
		},
		{
			name:     "SSK document name",
			dbr:      metadata.DateRedirect{Target: key.MustParse("SSK@pub/blog"), Increment: 24 * time.Hour},
			now:      86400 + 1,
			expected: "SSK@pub/15180-blog",
		},
		{
			name:     "zero increment uses the default",
			dbr:      metadata.DateRedirect{Target: key.NewKSK("d")},
			now:      86400*2 + 1,
			expected: "KSK@2a300-d",
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			uri, err := fcp.EditionURI(testDef.dbr, time.Unix(testDef.now, 0))
			require.NoError(t, err)
			assert.Equal(t, testDef.expected, uri.String())
		})
	}
}

func TestEditionURIRejectsCHK(t *testing.T) {
	_, err := fcp.EditionURI(
		metadata.DateRedirect{Target: key.NewCHK(), Increment: time.Hour},
		time.Unix(0, 0),
	)
	assert.ErrorIs(t, err, fcp.ErrDateRedirectTarget)
}

func TestPeriodicDateRedirect(t *testing.T) {
	doc := metadata.NewDateRedirect("", metadata.DateRedirect{
		Target:    key.NewKSK("feed"),
		Increment: time.Hour,
	})
	var policy fcp.DateRedirectPolicy = fcp.PeriodicDateRedirect{}
	uri, err := policy.Resolve(doc, time.Unix(3600*5+59, 0))
	require.NoError(t, err)
	assert.Equal(t, key.NewKSK("4650-feed"), uri)

	_, err = policy.Resolve(metadata.NewRedirect("", key.NewKSK("feed")), time.Now())
	assert.ErrorIs(t, err, metadata.ErrMalformedMetadata)

	called := false
	policy = fcp.DateRedirectPolicyFunc(func(d *metadata.Document, now time.Time) (key.URI, error) {
		called = true
		return key.NewKSK("fixed"), nil
	})
	uri, err = policy.Resolve(doc, time.Now())
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, key.NewKSK("fixed"), uri)
}
