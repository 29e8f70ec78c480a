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
	"sync/atomic"
	"time"
)

// PipelineMetrics tracks metrics for the entire pipeline.
// Uses atomic counters for thread-safe operation.
type PipelineMetrics struct {
	itemsSubmitted atomic.Uint64
	itemsProcessed atomic.Uint64
	itemsApplied   atomic.Uint64
	processErrors  atomic.Uint64
	applyErrors    atomic.Uint64

	// Queue tracking (requires mutex)
	mu                sync.RWMutex
	currentQueueDepth int
	peakQueueDepth    int
	processTime       time.Duration

	lastApplyTime time.Time
	startTime     time.Time
}

func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{
		startTime: time.Now(),
	}
}

// RecordSubmit increments the submitted counter and the queue depth.
func (m *PipelineMetrics) RecordSubmit() {
	m.itemsSubmitted.Add(1)
	m.mu.Lock()
	m.currentQueueDepth++
	if m.currentQueueDepth > m.peakQueueDepth {
		m.peakQueueDepth = m.currentQueueDepth
	}
	m.mu.Unlock()
}

// RecordProcess records a process result.
func (m *PipelineMetrics) RecordProcess(duration time.Duration, err error) {
	if err != nil {
		m.processErrors.Add(1)
	} else {
		m.itemsProcessed.Add(1)
	}
	m.mu.Lock()
	m.processTime += duration
	m.mu.Unlock()
}

// RecordApply records an apply result. The item leaves the queue either way.
func (m *PipelineMetrics) RecordApply(duration time.Duration, err error) {
	if err != nil {
		m.applyErrors.Add(1)
	} else {
		m.itemsApplied.Add(1)
	}
	m.mu.Lock()
	if m.currentQueueDepth > 0 {
		m.currentQueueDepth--
	}
	if err == nil {
		m.lastApplyTime = time.Now()
	}
	m.mu.Unlock()
}

// AverageProcessTime returns the mean time spent in the process stage
func (m *PipelineMetrics) AverageProcessTime() time.Duration {
	count := m.itemsProcessed.Load() + m.processErrors.Load()
	if count == 0 {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	// #nosec G115
	return m.processTime / time.Duration(count)
}

// Stats returns a snapshot of the current metrics.
func (m *PipelineMetrics) Stats() PipelineStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return PipelineStats{
		ItemsSubmitted:    m.itemsSubmitted.Load(),
		ItemsProcessed:    m.itemsProcessed.Load(),
		ItemsApplied:      m.itemsApplied.Load(),
		ProcessErrors:     m.processErrors.Load(),
		ApplyErrors:       m.applyErrors.Load(),
		CurrentQueueDepth: m.currentQueueDepth,
		PeakQueueDepth:    m.peakQueueDepth,
		LastApplyTime:     m.lastApplyTime,
		StartTime:         m.startTime,
	}
}
