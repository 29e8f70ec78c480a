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
)

// ErrPipelineStopped is returned when trying to submit to a stopped pipeline.
var ErrPipelineStopped = errors.New("pipeline is stopped")

// ErrPipelineNotStarted is returned when trying to use a pipeline that hasn't been started.
var ErrPipelineNotStarted = errors.New("pipeline not started")

// closedResultsChan is a closed channel returned by Results() before Start() is called.
var closedResultsChan = func() <-chan *Item {
	ch := make(chan *Item)
	close(ch)
	return ch
}()

// Pipeline processes submitted items in parallel and applies them in submission order.
type Pipeline struct {
	config PipelineConfig
	stage  Stage

	applyStage  *ApplyStage
	pool        *StageWorkerPool
	applyRunner *ApplyStageRunner

	submitChan    chan *Item
	processedChan chan *Item
	resultsChan   chan *Item

	metrics *PipelineMetrics

	sequenceCounter uint64
	ctx             context.Context
	cancel          context.CancelFunc
	started         atomic.Bool
	closed          atomic.Bool
	doneChan        chan struct{}
	mu              sync.Mutex   // protects Start/Stop
	submitMu        sync.RWMutex // protects Submit against concurrent Close
}

// New creates a new Pipeline for the given stage using functional options.
func New(stage Stage, opts ...PipelineOption) *Pipeline {
	if stage == nil {
		panic(ErrNilStage)
	}
	config := DefaultPipelineConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Pipeline{
		config:  config,
		stage:   stage,
		metrics: NewPipelineMetrics(),
	}
}

// Start starts the pipeline processing.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return ErrPipelineStopped
	}
	if p.started.Load() {
		return nil
	}

	p.ctx, p.cancel = context.WithCancel(ctx)

	bufSize := p.config.BufferSize
	p.submitChan = make(chan *Item, bufSize)
	p.processedChan = make(chan *Item, bufSize)
	p.resultsChan = make(chan *Item, bufSize)
	p.doneChan = make(chan struct{})

	p.applyStage = NewApplyStage(p.config.ApplyFunc, p.config.MaxPending, p.config.HaltOnError)
	p.pool = NewStageWorkerPool(StageWorkerPoolConfig{
		Stage:         p.stage,
		NumWorkers:    p.config.Workers,
		Input:         p.submitChan,
		Output:        p.processedChan,
		RecordMetrics: ProcessMetricsRecorder(p.metrics),
	})
	p.applyRunner = NewApplyStageRunner(
		p.applyStage,
		p.processedChan,
		p.resultsChan,
		nil,
	)
	p.applyRunner.SetMetrics(p.metrics)

	p.pool.Start(p.ctx)        //nolint:contextcheck
	p.applyRunner.Start(p.ctx) //nolint:contextcheck

	go func() {
		p.pool.Stop()
		close(p.processedChan)
		p.applyRunner.Stop()
		close(p.resultsChan)
		close(p.doneChan)
	}()

	p.started.Store(true)
	return nil
}

// Submit submits a value for processing and returns its sequence number.
// This method is safe to call concurrently with Close and Stop.
func (p *Pipeline) Submit(ctx context.Context, value any) (uint64, error) {
	if !p.started.Load() {
		return 0, ErrPipelineNotStarted
	}

	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	if p.closed.Load() {
		return 0, ErrPipelineStopped
	}

	seq := atomic.AddUint64(&p.sequenceCounter, 1) - 1
	item := NewItem(value, seq)

	select {
	case p.submitChan <- item:
		p.metrics.RecordSubmit()
		return seq, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-p.ctx.Done():
		return 0, ErrPipelineStopped
	}
}

// Close signals that no more items will be submitted. Results is closed once every
// submitted item has been processed.
func (p *Pipeline) Close() {
	if !p.started.Load() {
		return
	}
	p.submitMu.Lock()
	defer p.submitMu.Unlock()
	if p.closed.Swap(true) {
		return
	}
	close(p.submitChan)
}

// Results returns a channel of items in submission order.
// If the pipeline has not been started, returns a closed channel to prevent blocking.
func (p *Pipeline) Results() <-chan *Item {
	if !p.started.Load() {
		return closedResultsChan
	}
	return p.resultsChan
}

// Stop cancels outstanding work and waits for all workers to exit.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started.Load() {
		return nil
	}
	// Cancel first to unblock any Submit waiting on a full channel
	p.cancel()
	p.Close()
	<-p.doneChan
	return nil
}

// Stats returns the current pipeline statistics.
func (p *Pipeline) Stats() PipelineStats {
	return p.metrics.Stats()
}

// Run processes values with stage and applies the results in order. It returns the items in
// submission order and the first error in that order. With FailFast set, items after a failure
// may be missing from the returned slice.
func Run(ctx context.Context, stage Stage, values []any, opts ...PipelineOption) ([]*Item, error) {
	p := New(stage, opts...)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := p.Start(runCtx); err != nil {
		return nil, err
	}
	submitDone := make(chan struct{})
	go func() {
		defer close(submitDone)
		defer p.Close()
		for _, value := range values {
			if _, err := p.Submit(runCtx, value); err != nil {
				return
			}
		}
	}()

	items := make([]*Item, len(values))
	var firstErr error
	for item := range p.Results() {
		items[item.SequenceNumber()] = item
		if err := item.Err(); err != nil && firstErr == nil {
			firstErr = err
			if p.config.FailFast {
				cancel()
			}
		}
	}
	_ = p.Stop()
	<-submitDone

	if firstErr == nil {
		for _, item := range items {
			if item == nil {
				if err := ctx.Err(); err != nil {
					return items, err
				}
				return items, ErrPipelineStopped
			}
		}
	}
	return items, firstErr
}
