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
	"fmt"
	"os"
	"time"

	"github.com/blinklabs-io/gofcp/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// GlobalFlags holds the flags shared by every command
type GlobalFlags struct {
	ConfigFile  string
	Host        string
	Port        uint16
	HopsToLive  int
	Timeout     time.Duration
	Retry       int
	BlockSize   int
	Parallelism int
	Verbosity   string
	BlockStore  string
	TempDir     string
	Decimal     bool
	RemoveLocal bool
}

// AddFlags registers the global flags as persistent flags of cmd
func (f *GlobalFlags) AddFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&f.ConfigFile, "config", "", "YAML config file")
	flags.StringVar(&f.Host, "host", config.DefaultHost, "node host")
	flags.Uint16Var(&f.Port, "port", config.DefaultPort, "node FCP port")
	flags.IntVar(&f.HopsToLive, "htl", config.DefaultHopsToLive, "hops-to-live for requests")
	flags.DurationVar(&f.Timeout, "timeout", config.DefaultTimeout, "socket timeout")
	flags.IntVar(&f.Retry, "retry", config.DefaultRetry, "retries per splitfile block")
	flags.IntVar(&f.BlockSize, "block-size", config.DefaultBlockSize, "largest insert stored without splitting, and the splitfile block size")
	flags.IntVar(&f.Parallelism, "parallelism", config.DefaultParallelism, "splitfile segments transferred at once")
	flags.StringVarP(&f.Verbosity, "verbosity", "v", config.VerbosityNormal.String(), "log verbosity: silent, critical, normal, verbose or debug")
	flags.StringVar(&f.BlockStore, "block-store", config.DefaultBlockStore, "splitfile block store: memory, file or badger")
	flags.StringVar(&f.TempDir, "temp-dir", "", "directory for temporary files (defaults to the system temp dir)")
	flags.BoolVar(&f.Decimal, "decimal", false, "use decimal instead of hexadecimal numbers on the wire")
	flags.BoolVar(&f.RemoveLocal, "remove-local", false, "ask the node to remove local copies of requested keys")
}

// Config builds the client config: defaults, then the config file, then any flags given on the
// command line
func (f *GlobalFlags) Config(cmd *cobra.Command) (config.Config, error) {
	cfg := config.NewConfig()
	if f.ConfigFile != "" {
		data, err := os.ReadFile(f.ConfigFile)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", f.ConfigFile, err)
		}
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = f.Host
	}
	if flags.Changed("port") {
		cfg.Port = f.Port
	}
	if flags.Changed("htl") {
		cfg.HopsToLive = f.HopsToLive
	}
	if flags.Changed("timeout") {
		cfg.Timeout = f.Timeout
	}
	if flags.Changed("retry") {
		cfg.Retry = f.Retry
	}
	if flags.Changed("block-size") {
		cfg.BlockSize = f.BlockSize
	}
	if flags.Changed("parallelism") {
		cfg.Parallelism = f.Parallelism
	}
	if flags.Changed("verbosity") {
		v, err := config.ParseVerbosity(f.Verbosity)
		if err != nil {
			return cfg, err
		}
		cfg.Verbosity = v
	}
	if flags.Changed("block-store") {
		cfg.BlockStore = f.BlockStore
	}
	if flags.Changed("temp-dir") {
		cfg.TempDir = f.TempDir
	}
	if flags.Changed("decimal") {
		cfg.DecimalLengths = f.Decimal
	}
	if flags.Changed("remove-local") {
		cfg.RemoveLocal = f.RemoveLocal
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	return cfg, cfg.Validate()
}
