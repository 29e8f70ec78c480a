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

// Package pipeline runs independent work items, such as splitfile segments,
// through a pool of parallel workers and applies the results in submission order.
package pipeline

import (
	"context"
	"time"
)

// Stage represents a processing stage in the pipeline.
type Stage interface {
	// Name returns the name of the stage for logging and metrics.
	Name() string
	// Process processes a single item. Returns an error if processing fails.
	Process(ctx context.Context, item *Item) error
}

// StageFunc is an adapter that allows using ordinary functions as Stage implementations.
type StageFunc struct {
	name string
	fn   func(ctx context.Context, item *Item) error
}

// NewStageFunc creates a new StageFunc with the given name and processing function.
func NewStageFunc(name string, fn func(ctx context.Context, item *Item) error) *StageFunc {
	return &StageFunc{
		name: name,
		fn:   fn,
	}
}

func (s *StageFunc) Name() string {
	return s.name
}

func (s *StageFunc) Process(ctx context.Context, item *Item) error {
	return s.fn(ctx, item)
}

// PipelineStats contains statistics about pipeline progress.
type PipelineStats struct {
	// ItemsSubmitted is the total number of items submitted to the pipeline.
	ItemsSubmitted uint64
	// ItemsProcessed is the total number of items successfully processed.
	ItemsProcessed uint64
	// ItemsApplied is the total number of items successfully applied.
	ItemsApplied uint64
	// ProcessErrors is the total number of process errors.
	ProcessErrors uint64
	// ApplyErrors is the total number of apply errors.
	ApplyErrors uint64

	// CurrentQueueDepth is the current number of items in the pipeline.
	CurrentQueueDepth int
	// PeakQueueDepth is the maximum queue depth observed.
	PeakQueueDepth int

	// LastApplyTime is the time the last item was applied.
	LastApplyTime time.Time
	// StartTime is when the pipeline was started.
	StartTime time.Time
}
