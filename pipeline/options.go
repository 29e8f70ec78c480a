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

package pipeline

// DefaultWorkers is the default number of parallel process workers.
const DefaultWorkers = 4

// PipelineConfig holds configuration for a Pipeline.
type PipelineConfig struct {
	// Workers is the number of parallel process workers.
	Workers int
	// BufferSize is the buffer size for inter-stage channels.
	BufferSize int
	// MaxPending limits out-of-order items buffered in the apply stage (0 for unlimited).
	MaxPending int
	// ApplyFunc is the function called to apply items in order.
	ApplyFunc ApplyFunc
	// HaltOnError stops applying items after the first failed one.
	HaltOnError bool
	// FailFast makes Run cancel outstanding work after the first failed item.
	FailFast bool
}

// DefaultPipelineConfig returns a PipelineConfig with sensible defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Workers:    DefaultWorkers,
		BufferSize: DefaultWorkers,
	}
}

// PipelineOption is a functional option for configuring a Pipeline.
type PipelineOption func(*PipelineConfig)

// WithConfig applies a complete PipelineConfig, replacing all default values.
// Options applied after WithConfig still override the config values.
func WithConfig(config PipelineConfig) PipelineOption {
	return func(c *PipelineConfig) {
		*c = config
	}
}

// WithWorkers sets the number of process workers.
func WithWorkers(n int) PipelineOption {
	return func(c *PipelineConfig) {
		if n > 0 {
			c.Workers = n
		}
	}
}

// WithBufferSize sets the buffer size for inter-stage channels.
func WithBufferSize(size int) PipelineOption {
	return func(c *PipelineConfig) {
		if size > 0 {
			c.BufferSize = size
		}
	}
}

// WithMaxPending sets the limit for out-of-order items in the apply stage.
func WithMaxPending(n int) PipelineOption {
	return func(c *PipelineConfig) {
		if n >= 0 {
			c.MaxPending = n
		}
	}
}

// WithApplyFunc sets the apply function.
// A nil function is ignored (the pipeline will use a no-op apply).
func WithApplyFunc(fn ApplyFunc) PipelineOption {
	return func(c *PipelineConfig) {
		if fn != nil {
			c.ApplyFunc = fn
		}
	}
}

// WithHaltOnError stops applying items after the first failure
func WithHaltOnError(halt bool) PipelineOption {
	return func(c *PipelineConfig) {
		c.HaltOnError = halt
	}
}

// WithFailFast makes Run cancel remaining work after the first failure
func WithFailFast(failFast bool) PipelineOption {
	return func(c *PipelineConfig) {
		c.FailFast = failFast
	}
}
