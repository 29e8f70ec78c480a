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

// Package config provides the immutable option record shared by sessions,
// key handles and the splitfile engine.
//
// A Config is a plain value. Sessions and handles receive their own copy at
// creation time, so later changes by the caller never affect work in flight.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/jinzhu/copier"
)

// Defaults matching a stock Freenet 0.5 node and the historical client library
const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 8481
	DefaultHopsToLive   = 3
	DefaultTimeout      = 180 * time.Second
	DefaultRetry        = 5
	DefaultRetryDelay   = 1 * time.Second
	DefaultBlockSize    = 262144
	DefaultParallelism  = 4
	DefaultMaxRedirects = 16
	DefaultBlockStore   = BlockStoreFile
)

// Block store backends
const (
	BlockStoreMemory = "memory"
	BlockStoreFile   = "file"
	BlockStoreBadger = "badger"
)

var (
	ErrInvalidBlockSize  = errors.New("config: block size must be positive")
	ErrInvalidHopsToLive = errors.New("config: hops-to-live must not be negative")
	ErrInvalidBlockStore = errors.New("config: unknown block store")
)

// Config holds every option consumed by the client core
type Config struct {
	Host         string        `yaml:"host"`
	Port         uint16        `yaml:"port"`
	HopsToLive   int           `yaml:"htl"`
	Timeout      time.Duration `yaml:"timeout"`
	Retry        int           `yaml:"retry"`
	RetryDelay   time.Duration `yaml:"retryDelay"`
	BlockSize    int           `yaml:"blockSize"`
	Verbosity    Verbosity     `yaml:"verbosity"`
	NoRedirect   bool          `yaml:"noRedirect"`
	MetaRedirect bool          `yaml:"metaRedirect"`
	DateRedirect bool          `yaml:"dateRedirect"`
	RemoveLocal  bool          `yaml:"removeLocal"`
	RawMode      bool          `yaml:"rawMode"`
	Parallelism  int           `yaml:"parallelism"`
	MaxRedirects int           `yaml:"maxRedirects"`
	// DecimalLengths switches numeric header values from the node's native
	// hexadecimal to decimal
	DecimalLengths bool   `yaml:"decimalLengths"`
	BlockStore     string `yaml:"blockStore"`
	TempDir        string `yaml:"tempDir"`
	HomeDir        string `yaml:"homeDir"`
}

// ConfigOptionFunc is a function that modifies a Config
type ConfigOptionFunc func(*Config)

// NewConfig returns a Config populated with defaults, with the provided option functions applied
func NewConfig(options ...ConfigOptionFunc) Config {
	c := Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		HopsToLive:   DefaultHopsToLive,
		Timeout:      DefaultTimeout,
		Retry:        DefaultRetry,
		RetryDelay:   DefaultRetryDelay,
		BlockSize:    DefaultBlockSize,
		Verbosity:    VerbosityNormal,
		Parallelism:  DefaultParallelism,
		MaxRedirects: DefaultMaxRedirects,
		BlockStore:   DefaultBlockStore,
	}
	for _, option := range options {
		option(&c)
	}
	return c
}

// Clone returns a deep copy of the config. Every field is copied, including
// any added in the future, so inheriting sessions never lose an option.
func (c Config) Clone() Config {
	var ret Config
	if err := copier.CopyWithOption(&ret, &c, copier.Option{DeepCopy: true}); err != nil {
		// Config only holds plain values, so a failed copy is a programming error
		panic(fmt.Sprintf("config: clone failed: %s", err))
	}
	return ret
}

// Validate checks the config for values the core cannot work with
func (c Config) Validate() error {
	if c.BlockSize <= 0 {
		return ErrInvalidBlockSize
	}
	if c.HopsToLive < 0 {
		return ErrInvalidHopsToLive
	}
	switch c.BlockStore {
	case BlockStoreMemory, BlockStoreFile, BlockStoreBadger:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBlockStore, c.BlockStore)
	}
	return nil
}

// Address returns the node address in host:port form
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NumberBase returns the base used for numeric wire header values
func (c Config) NumberBase() int {
	if c.DecimalLengths {
		return 10
	}
	return 16
}

// WithHost sets the node host
func WithHost(host string) ConfigOptionFunc {
	return func(c *Config) {
		c.Host = host
	}
}

// WithPort sets the node FCP port
func WithPort(port uint16) ConfigOptionFunc {
	return func(c *Config) {
		c.Port = port
	}
}

// WithHopsToLive sets the request hops-to-live
func WithHopsToLive(htl int) ConfigOptionFunc {
	return func(c *Config) {
		c.HopsToLive = htl
	}
}

// WithTimeout sets the socket read/write timeout
func WithTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithRetry sets how many times a failed block transfer is retried
func WithRetry(retry int) ConfigOptionFunc {
	return func(c *Config) {
		c.Retry = retry
	}
}

// WithRetryDelay sets the initial delay between retries
func WithRetryDelay(delay time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.RetryDelay = delay
	}
}

// WithBlockSize sets the splitfile block size
func WithBlockSize(blockSize int) ConfigOptionFunc {
	return func(c *Config) {
		c.BlockSize = blockSize
	}
}

// WithVerbosity sets the log verbosity
func WithVerbosity(verbosity Verbosity) ConfigOptionFunc {
	return func(c *Config) {
		c.Verbosity = verbosity
	}
}

// WithNoRedirect disables following metadata redirects
func WithNoRedirect(noRedirect bool) ConfigOptionFunc {
	return func(c *Config) {
		c.NoRedirect = noRedirect
	}
}

// WithMetaRedirect inserts splitfile metadata under a CHK and redirects to it
func WithMetaRedirect(metaRedirect bool) ConfigOptionFunc {
	return func(c *Config) {
		c.MetaRedirect = metaRedirect
	}
}

// WithDateRedirect inserts keys behind a date-based redirect
func WithDateRedirect(dateRedirect bool) ConfigOptionFunc {
	return func(c *Config) {
		c.DateRedirect = dateRedirect
	}
}

// WithRemoveLocal asks the node to drop its local copy before a request
func WithRemoveLocal(removeLocal bool) ConfigOptionFunc {
	return func(c *Config) {
		c.RemoveLocal = removeLocal
	}
}

// WithRawMode disables metadata interpretation on reads
func WithRawMode(rawMode bool) ConfigOptionFunc {
	return func(c *Config) {
		c.RawMode = rawMode
	}
}

// WithParallelism sets the number of segments transferred concurrently
func WithParallelism(parallelism int) ConfigOptionFunc {
	return func(c *Config) {
		c.Parallelism = parallelism
	}
}

// WithMaxRedirects sets the redirect hop limit
func WithMaxRedirects(maxRedirects int) ConfigOptionFunc {
	return func(c *Config) {
		c.MaxRedirects = maxRedirects
	}
}

// WithDecimalLengths selects decimal numeric header values
func WithDecimalLengths(decimal bool) ConfigOptionFunc {
	return func(c *Config) {
		c.DecimalLengths = decimal
	}
}

// WithBlockStore selects the block store backend
func WithBlockStore(blockStore string) ConfigOptionFunc {
	return func(c *Config) {
		c.BlockStore = blockStore
	}
}

// WithTempDir sets the directory used for staged blocks and spools
func WithTempDir(dir string) ConfigOptionFunc {
	return func(c *Config) {
		c.TempDir = dir
	}
}

// WithHomeDir sets the directory used for persistent client state
func WithHomeDir(dir string) ConfigOptionFunc {
	return func(c *Config) {
		c.HomeDir = dir
	}
}
