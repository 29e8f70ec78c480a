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
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	fcp "github.com/blinklabs-io/gofcp"
	"github.com/blinklabs-io/gofcp/internal/test"
	"github.com/blinklabs-io/gofcp/internal/test/fcpmock"
	"github.com/blinklabs-io/gofcp/key"
	"github.com/blinklabs-io/gofcp/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestFileHelpers(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, splitfileConfig(t))
	dir := t.TempDir()
	data := test.Pattern(3000, 8)
	dataFile := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(dataFile, data, 0o600))
	user := metadata.NewChain()
	user.Add(metadata.NewInfo("", "", "a test page"))
	meta, err := user.Encode()
	require.NoError(t, err)
	metaFile := filepath.Join(dir, "page.meta")
	require.NoError(t, os.WriteFile(metaFile, meta, 0o600))

	uri, err := fcp.PutKeyFromFile(context.Background(), conn, key.NewKSK("page"), dataFile, metaFile)
	require.NoError(t, err)
	assert.Equal(t, key.NewKSK("page"), uri)

	outData := filepath.Join(dir, "out.html")
	outMeta := filepath.Join(dir, "out.meta")
	require.NoError(t, fcp.GetKeyToFile(context.Background(), conn, uri, outData, outMeta))
	got, err := os.ReadFile(outData)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	gotMeta, err := os.ReadFile(outMeta)
	require.NoError(t, err)
	chain, err := metadata.Decode(gotMeta)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(chain.Format(""), "text/html"), chain.Format(""))
	assert.Len(t, chain.FindType("", metadata.DocumentTypeSplitfile), 1)
	var description string
	for _, doc := range chain.FindType("", metadata.DocumentTypeInfo) {
		if v, ok := doc.Get(metadata.FieldDescription); ok {
			description = v
		}
	}
	assert.Equal(t, "a test page", description)
}

func TestFileHelpersErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := fcpmock.NewNode()
	defer node.Close()
	conn := test.Connect(t, node, test.Config(t))
	dir := t.TempDir()
	_, err := fcp.PutKeyFromFile(context.Background(), conn, key.NewKSK("x"), filepath.Join(dir, "missing"), "")
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 0, node.TotalRequests("ClientPut"))
	err = fcp.GetKeyToFile(context.Background(), conn, key.NewKSK("x"), filepath.Join(dir, "out"), "")
	assert.ErrorIs(t, err, fcp.ErrDataNotFound)
	assert.NoFileExists(t, filepath.Join(dir, "out"))
}
