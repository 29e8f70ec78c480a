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

package fcpmock

import (
	"testing"

	fcp "github.com/blinklabs-io/gofcp"
	"github.com/blinklabs-io/gofcp/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// Basic test of conversation mock functionality
func TestBasic(t *testing.T) {
	defer goleak.VerifyNone(t)
	mockConn := NewConnection(16, ConversationHello)
	conn, err := fcp.NewConnection(fcp.WithConnection(mockConn))
	if err != nil {
		t.Fatalf("unexpected error when creating FCP connection: %s", err)
	}
	// Close FCP connection
	if err := conn.Close(); err != nil {
		t.Fatalf("unexpected error when closing FCP connection: %s", err)
	}
	for err := range mockConn.ErrorChan() {
		t.Fatalf("unexpected conversation error: %s", err)
	}
}

func TestNodeFaults(t *testing.T) {
	defer goleak.VerifyNone(t)
	node := NewNode()
	defer node.Close()
	conn, err := fcp.Connect(fcp.WithDialFunc(node.Dial))
	require.NoError(t, err)
	defer conn.Close()
	uri := key.NewKSK("fault")
	node.Store(uri, nil, []byte("data"))
	assert.True(t, node.Has(uri))
	assert.Equal(t, 1, node.KeyCount())
	node.InjectFault(uri, FaultDataNotFound, 2)
	for range 2 {
		_, err = conn.Get(uri)
		assert.ErrorIs(t, err, fcp.ErrDataNotFound)
	}
	_, err = conn.Get(uri)
	require.NoError(t, err)
	require.NoError(t, conn.Payload().Close())
	assert.Equal(t, 3, node.Requests("ClientGet", uri))
	assert.Equal(t, 3, node.TotalRequests("ClientGet"))
	node.Drop(uri)
	assert.False(t, node.Has(uri))
	_, err = conn.Get(uri)
	assert.ErrorIs(t, err, fcp.ErrDataNotFound)
}
