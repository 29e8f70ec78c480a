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

package common

import (
	"log/slog"
	"os"
	"time"

	fcp "github.com/blinklabs-io/gofcp"
	"github.com/blinklabs-io/gofcp/config"
	"github.com/lmittmann/tint"
)

// NewLogger returns a logger writing to stderr at the level of the verbosity
func NewLogger(verbosity config.Verbosity) *slog.Logger {
	if verbosity == config.VerbositySilent {
		return slog.New(slog.DiscardHandler)
	}
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      verbosity.Level(),
		TimeFormat: time.TimeOnly,
		AddSource:  verbosity >= config.VerbosityDebug,
	})
	return slog.New(handler)
}

// CreateClientConnection opens a session to the node named by the config
func CreateClientConnection(cfg config.Config, logger *slog.Logger) (*fcp.Connection, error) {
	return fcp.Connect(
		fcp.WithConfig(cfg),
		fcp.WithLogger(logger),
	)
}
