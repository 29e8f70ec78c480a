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
	"sync"
	"time"
)

// Item is a unit of work as it moves through the pipeline.
// It is thread-safe and tracks the processing state at each stage.
type Item struct {
	// Immutable fields (set at construction, never modified)
	value          any
	sequenceNumber uint64
	submittedAt    time.Time

	mu sync.RWMutex

	// Process stage results
	result          any
	processed       bool
	processError    error
	processDuration time.Duration

	// Apply stage results
	applied       bool
	applyError    error
	applyDuration time.Duration
}

// NewItem creates a new Item for the given value and sequence number
func NewItem(value any, seq uint64) *Item {
	return &Item{
		value:          value,
		sequenceNumber: seq,
		submittedAt:    time.Now(),
	}
}

// Value returns the value submitted to the pipeline
func (i *Item) Value() any {
	return i.value
}

// SequenceNumber returns the order in which the item was submitted
func (i *Item) SequenceNumber() uint64 {
	return i.sequenceNumber
}

// SubmittedAt returns when the item was created
func (i *Item) SubmittedAt() time.Time {
	return i.submittedAt
}

// SetResult stores the output of the process stage
func (i *Item) SetResult(result any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.result = result
}

// Result returns the output of the process stage
func (i *Item) Result() any {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.result
}

// SetProcessed records the outcome of the process stage
func (i *Item) SetProcessed(err error, duration time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.processed = err == nil
	i.processError = err
	i.processDuration = duration
}

// IsProcessed returns true if the process stage completed without error
func (i *Item) IsProcessed() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.processed
}

func (i *Item) ProcessError() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.processError
}

func (i *Item) ProcessDuration() time.Duration {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.processDuration
}

// SetApplied records the outcome of the apply stage
func (i *Item) SetApplied(applied bool, err error, duration time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.applied = applied
	i.applyError = err
	i.applyDuration = duration
}

func (i *Item) IsApplied() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.applied
}

func (i *Item) ApplyError() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.applyError
}

func (i *Item) ApplyDuration() time.Duration {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.applyDuration
}

// Err returns the first error recorded for the item, if any
func (i *Item) Err() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.processError != nil {
		return i.processError
	}
	return i.applyError
}

// TotalDuration returns the time since the item was submitted
func (i *Item) TotalDuration() time.Duration {
	return time.Since(i.submittedAt)
}
