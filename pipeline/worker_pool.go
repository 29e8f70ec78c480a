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

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNilStage is returned (as a panic value) when a worker pool is created without a stage.
var ErrNilStage = errors.New("pipeline: stage must not be nil")

// MetricsRecorder records metrics for a processed item.
type MetricsRecorder func(item *Item, err error)

// StageWorkerPool runs multiple workers in parallel for a given stage.
type StageWorkerPool struct {
	stage         Stage
	numWorkers    int
	input         <-chan *Item
	output        chan<- *Item
	errors        chan<- error
	recordMetrics MetricsRecorder
	wg            sync.WaitGroup
	started       atomic.Bool
}

// StageWorkerPoolConfig holds configuration for creating a StageWorkerPool.
type StageWorkerPoolConfig struct {
	// Stage is the processing stage to use (required, panics if nil).
	Stage Stage
	// NumWorkers is the number of parallel workers; defaults to 1 if <= 0.
	NumWorkers int
	// Input is the channel to receive items from.
	Input <-chan *Item
	// Output is the channel to send processed items to.
	Output chan<- *Item
	// Errors is the channel to send errors to; may be nil.
	Errors chan<- error
	// RecordMetrics is called after processing. If nil, no metrics are recorded.
	RecordMetrics MetricsRecorder
}

// NewStageWorkerPool creates a new worker pool for the given stage.
func NewStageWorkerPool(config StageWorkerPoolConfig) *StageWorkerPool {
	if config.Stage == nil {
		panic(ErrNilStage)
	}
	numWorkers := config.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &StageWorkerPool{
		stage:         config.Stage,
		numWorkers:    numWorkers,
		input:         config.Input,
		output:        config.Output,
		errors:        config.Errors,
		recordMetrics: config.RecordMetrics,
	}
}

// Start starts the worker pool. Call Stop to wait for completion.
// This method is idempotent - calling it multiple times has no effect.
func (p *StageWorkerPool) Start(ctx context.Context) {
	if p.started.Swap(true) {
		return
	}
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Stop waits for all workers to complete.
func (p *StageWorkerPool) Stop() {
	p.wg.Wait()
}

func (p *StageWorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.input:
			if !ok {
				return
			}

			start := time.Now()
			err := p.stage.Process(ctx, item)
			item.SetProcessed(err, time.Since(start))

			// Cancellation is not a processing attempt
			if p.recordMetrics != nil &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded) {
				p.recordMetrics(item, err)
			}

			if err != nil && p.errors != nil {
				select {
				case p.errors <- err:
				case <-ctx.Done():
					return
				}
			}

			// Forward to next stage even on error so ordering can advance
			select {
			case p.output <- item:
			case <-ctx.Done():
				return
			}
		}
	}
}

// ProcessMetricsRecorder returns a MetricsRecorder for the process stage.
func ProcessMetricsRecorder(metrics *PipelineMetrics) MetricsRecorder {
	if metrics == nil {
		return nil
	}
	return func(item *Item, err error) {
		metrics.RecordProcess(item.ProcessDuration(), err)
	}
}
