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
	"log/slog"
	"net"

	"github.com/blinklabs-io/gofcp/config"
)

// ConnectionOptionFunc is a type that represents functions that modify the Connection config
type ConnectionOptionFunc func(*Connection)

// WithConnection specifies an existing connection to use. If none is provided, the Dial() function can be
// used to create one later
func WithConnection(conn net.Conn) ConnectionOptionFunc {
	return func(c *Connection) {
		c.conn = conn
	}
}

// WithConfig specifies the session configuration. The config is copied and not modified afterward
func WithConfig(cfg config.Config) ConnectionOptionFunc {
	return func(c *Connection) {
		c.config = cfg
	}
}

// WithLogger specifies the logger. If none is provided, log output is discarded
func WithLogger(logger *slog.Logger) ConnectionOptionFunc {
	return func(c *Connection) {
		c.logger = logger
	}
}

// WithDialFunc specifies the function used to open sockets by Connect, Dial and Inherit
func WithDialFunc(dialFunc DialFunc) ConnectionOptionFunc {
	return func(c *Connection) {
		c.dialFunc = dialFunc
	}
}

// WithAddress specifies the network and address used by Connect and Inherit. The default is TCP to
// the host and port from the config
func WithAddress(network string, address string) ConnectionOptionFunc {
	return func(c *Connection) {
		c.network = network
		c.address = address
	}
}
