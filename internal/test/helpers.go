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

// Package test holds helpers shared by the package tests
package test

import (
	"testing"
	"time"

	fcp "github.com/blinklabs-io/gofcp"
	"github.com/blinklabs-io/gofcp/config"
	"github.com/blinklabs-io/gofcp/internal/test/fcpmock"
	"github.com/stretchr/testify/require"
)

// Pattern returns n bytes of deterministic test data that differs for every seed
func Pattern(n int, seed byte) []byte {
	ret := make([]byte, n)
	for i := range ret {
		ret[i] = byte(i*31+i/251) ^ seed
	}
	return ret
}

// Config returns a config suited to a mock node: short retry delays, a short timeout and temporary
// files under the test's temp dir. The options are applied last.
func Config(t testing.TB, options ...config.ConfigOptionFunc) config.Config {
	t.Helper()
	base := []config.ConfigOptionFunc{
		config.WithTimeout(5 * time.Second),
		config.WithRetry(2),
		config.WithRetryDelay(time.Millisecond),
		config.WithTempDir(t.TempDir()),
		config.WithBlockStore(config.BlockStoreMemory),
	}
	return config.NewConfig(append(base, options...)...)
}

// Connect opens a session to a mock node. The session is closed when the test ends.
func Connect(t testing.TB, node *fcpmock.Node, cfg config.Config) *fcp.Connection {
	t.Helper()
	conn, err := fcp.Connect(
		fcp.WithConfig(cfg),
		fcp.WithDialFunc(node.Dial),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}
