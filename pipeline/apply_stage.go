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
	"time"
)

// ErrPendingLimitExceeded is returned when the apply stage's pending buffer is full.
var ErrPendingLimitExceeded = errors.New("pipeline: pending item limit exceeded")

// ApplyFunc is called for each successfully processed item in sequence order.
type ApplyFunc func(*Item) error

// ApplyStage buffers processed items and applies them in sequence order.
//
// ProcessWithStatus must be called from a single goroutine to guarantee ordered
// execution of ApplyFunc. The ApplyStageRunner provides this guarantee.
type ApplyStage struct {
	applyFunc   ApplyFunc
	maxPending  int
	haltOnError bool
	mu          sync.Mutex
	// pending holds out-of-order items waiting to be applied
	pending map[uint64]*Item
	// nextSequence is the next sequence number to apply
	nextSequence uint64
	// halted is set once an item fails while haltOnError is set
	halted bool
}

// NewApplyStage creates a new ApplyStage with the given apply function.
// maxPending limits the number of out-of-order items that can be buffered (0 for unlimited).
// With haltOnError set, no item is applied after the first one that failed, so the applied
// items always form a prefix of the submitted sequence.
func NewApplyStage(applyFunc ApplyFunc, maxPending int, haltOnError bool) *ApplyStage {
	return &ApplyStage{
		applyFunc:   applyFunc,
		maxPending:  maxPending,
		haltOnError: haltOnError,
		pending:     make(map[uint64]*Item),
	}
}

func (s *ApplyStage) Name() string {
	return "apply"
}

// Process buffers the item and applies any items that are now in order.
func (s *ApplyStage) Process(ctx context.Context, item *Item) error {
	_, err := s.ProcessWithStatus(ctx, item)
	return err
}

// ProcessWithStatus processes an item and returns all items that were released.
// If the item is next in sequence, it is applied immediately along with any
// buffered items that become ready. If the item is out of order, it is buffered
// and the returned slice will be nil.
func (s *ApplyStage) ProcessWithStatus(ctx context.Context, item *Item) ([]*Item, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.Lock()
	if item.SequenceNumber() == s.nextSequence {
		s.nextSequence++
		s.mu.Unlock()
		s.applyItem(ctx, item)
		buffered := s.applyPending(ctx)
		processed := make([]*Item, 0, 1+len(buffered))
		processed = append(processed, item)
		processed = append(processed, buffered...)
		return processed, nil
	}

	// Buffer for later, even past the limit, to prevent sequence gaps
	s.pending[item.SequenceNumber()] = item
	pendingCount := len(s.pending)
	s.mu.Unlock()

	if s.maxPending > 0 && pendingCount > s.maxPending {
		return nil, ErrPendingLimitExceeded
	}
	return nil, nil
}

// applyItem applies a single item without holding the lock.
func (s *ApplyStage) applyItem(ctx context.Context, item *Item) {
	s.mu.Lock()
	halted := s.halted
	s.mu.Unlock()
	if halted {
		return
	}
	if item.ProcessError() != nil {
		s.halt()
		return
	}

	select {
	case <-ctx.Done():
		item.SetApplied(false, ctx.Err(), 0)
		s.halt()
		return
	default:
	}

	start := time.Now()
	var err error
	if s.applyFunc != nil {
		err = s.applyFunc(item)
	}
	item.SetApplied(err == nil, err, time.Since(start))
	if err != nil {
		s.halt()
	}
}

func (s *ApplyStage) halt() {
	if !s.haltOnError {
		return
	}
	s.mu.Lock()
	s.halted = true
	s.mu.Unlock()
}

// applyPending applies any pending items that are now in order.
func (s *ApplyStage) applyPending(ctx context.Context) []*Item {
	var processed []*Item
	for {
		select {
		case <-ctx.Done():
			return processed
		default:
		}

		s.mu.Lock()
		item, ok := s.pending[s.nextSequence]
		if !ok {
			s.mu.Unlock()
			return processed
		}
		delete(s.pending, s.nextSequence)
		s.nextSequence++
		s.mu.Unlock()

		s.applyItem(ctx, item)
		processed = append(processed, item)
	}
}

// Halted returns true if an item failed and later items are no longer applied.
func (s *ApplyStage) Halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

// Reset resets the stage state for reuse.
func (s *ApplyStage) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[uint64]*Item)
	s.nextSequence = 0
	s.halted = false
}

// PendingCount returns the number of items waiting to be applied.
func (s *ApplyStage) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// ApplyStageRunner runs the apply stage as a single goroutine.
type ApplyStageRunner struct {
	stage   *ApplyStage
	input   <-chan *Item
	output  chan<- *Item
	errors  chan<- error
	metrics *PipelineMetrics
	done    chan struct{}
	running bool
	mu      sync.Mutex
}

// NewApplyStageRunner creates a new runner for the apply stage. The errors channel may be nil.
func NewApplyStageRunner(
	stage *ApplyStage,
	input <-chan *Item,
	output chan<- *Item,
	errors chan<- error,
) *ApplyStageRunner {
	return &ApplyStageRunner{
		stage:  stage,
		input:  input,
		output: output,
		errors: errors,
		done:   make(chan struct{}),
	}
}

// SetMetrics sets the metrics collector for the runner.
// Must be called before Start() to avoid data races.
func (r *ApplyStageRunner) SetMetrics(metrics *PipelineMetrics) {
	r.metrics = metrics
}

// Start starts the apply stage runner.
func (r *ApplyStageRunner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.run(ctx)
}

// Stop waits for the runner to complete. The runner exits when the context
// passed to Start is cancelled or the input channel is closed.
func (r *ApplyStageRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	done := r.done
	r.mu.Unlock()

	<-done
}

// Done returns a channel that is closed when the runner exits
func (r *ApplyStageRunner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *ApplyStageRunner) run(ctx context.Context) {
	defer func() {
		r.mu.Lock()
		r.running = false
		close(r.done)
		r.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-r.input:
			if !ok {
				return
			}

			processed, err := r.stage.ProcessWithStatus(ctx, item)
			if err != nil {
				if r.errors != nil {
					select {
					case r.errors <- err:
					case <-ctx.Done():
						return
					}
				}
				continue
			}

			for _, p := range processed {
				r.forwardItem(ctx, p)
			}
		}
	}
}

// forwardItem sends an item to output and reports any apply errors.
func (r *ApplyStageRunner) forwardItem(ctx context.Context, item *Item) {
	if r.metrics != nil {
		r.metrics.RecordApply(item.ApplyDuration(), item.Err())
	}

	select {
	case r.output <- item:
	case <-ctx.Done():
		return
	}

	if applyErr := item.ApplyError(); applyErr != nil && r.errors != nil {
		select {
		case r.errors <- applyErr:
		case <-ctx.Done():
			return
		}
	}
}
