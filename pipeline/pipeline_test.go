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
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// jitterStage sleeps for a random short time so items finish out of order
func jitterStage(fail map[int]error) Stage {
	return NewStageFunc("jitter", func(ctx context.Context, item *Item) error {
		// #nosec G404
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
		v := item.Value().(int)
		if err, ok := fail[v]; ok {
			return err
		}
		item.SetResult(v * 2)
		return nil
	})
}

func intValues(n int) []any {
	ret := make([]any, n)
	for i := range ret {
		ret[i] = i
	}
	return ret
}

func TestItem(t *testing.T) {
	item := NewItem("seg", 7)
	assert.Equal(t, "seg", item.Value())
	assert.Equal(t, uint64(7), item.SequenceNumber())
	assert.False(t, item.SubmittedAt().IsZero())
	assert.False(t, item.IsProcessed())
	item.SetResult(42)
	item.SetProcessed(nil, 5*time.Millisecond)
	assert.True(t, item.IsProcessed())
	assert.Equal(t, 42, item.Result())
	assert.Equal(t, 5*time.Millisecond, item.ProcessDuration())
	assert.NoError(t, item.Err())
	applyErr := errors.New("apply failed")
	item.SetApplied(false, applyErr, time.Millisecond)
	assert.False(t, item.IsApplied())
	assert.ErrorIs(t, item.Err(), applyErr)
	processErr := errors.New("process failed")
	item.SetProcessed(processErr, 0)
	assert.ErrorIs(t, item.Err(), processErr)
}

func TestStageFunc(t *testing.T) {
	s := NewStageFunc("double", func(ctx context.Context, item *Item) error {
		item.SetResult(item.Value().(int) * 2)
		return nil
	})
	assert.Equal(t, "double", s.Name())
	item := NewItem(21, 0)
	require.NoError(t, s.Process(context.Background(), item))
	assert.Equal(t, 42, item.Result())
}

func TestNilStagePanics(t *testing.T) {
	assert.PanicsWithValue(t, ErrNilStage, func() {
		NewStageWorkerPool(StageWorkerPoolConfig{})
	})
}

func TestApplyStageOrdering(t *testing.T) {
	var applied []uint64
	s := NewApplyStage(func(item *Item) error {
		applied = append(applied, item.SequenceNumber())
		return nil
	}, 0, false)
	ctx := context.Background()
	for _, seq := range []uint64{2, 0, 3, 1, 4} {
		item := NewItem(nil, seq)
		item.SetProcessed(nil, 0)
		_, err := s.ProcessWithStatus(ctx, item)
		require.NoError(t, err)
	}
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, applied)
	assert.Equal(t, 0, s.PendingCount())
}

func TestApplyStageHaltOnError(t *testing.T) {
	var applied []uint64
	s := NewApplyStage(func(item *Item) error {
		applied = append(applied, item.SequenceNumber())
		return nil
	}, 0, true)
	ctx := context.Background()
	items := make([]*Item, 4)
	for i := range items {
		// #nosec G115
		items[i] = NewItem(nil, uint64(i))
		items[i].SetProcessed(nil, 0)
	}
	items[1].SetProcessed(errors.New("boom"), 0)
	for _, idx := range []int{3, 0, 2, 1} {
		_, err := s.ProcessWithStatus(ctx, items[idx])
		require.NoError(t, err)
	}
	assert.Equal(t, []uint64{0}, applied)
	assert.True(t, s.Halted())
	s.Reset()
	assert.False(t, s.Halted())
}

func TestApplyStagePendingLimit(t *testing.T) {
	s := NewApplyStage(nil, 1, false)
	ctx := context.Background()
	_, err := s.ProcessWithStatus(ctx, NewItem(nil, 1))
	require.NoError(t, err)
	_, err = s.ProcessWithStatus(ctx, NewItem(nil, 2))
	assert.ErrorIs(t, err, ErrPendingLimitExceeded)
	// Both are still buffered
	assert.Equal(t, 2, s.PendingCount())
	processed, err := s.ProcessWithStatus(ctx, NewItem(nil, 0))
	require.NoError(t, err)
	assert.Len(t, processed, 3)
}

func TestApplyStageContextCancellation(t *testing.T) {
	s := NewApplyStage(nil, 0, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.ProcessWithStatus(ctx, NewItem(nil, 0))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunOrdered(t *testing.T) {
	defer goleak.VerifyNone(t)
	var mu sync.Mutex
	var order []int
	items, err := Run(
		context.Background(),
		jitterStage(nil),
		intValues(50),
		WithWorkers(8),
		WithApplyFunc(func(item *Item) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, item.Result().(int))
			return nil
		}),
	)
	require.NoError(t, err)
	require.Len(t, items, 50)
	for i, item := range items {
		// #nosec G115
		assert.Equal(t, uint64(i), item.SequenceNumber())
		assert.Equal(t, i*2, item.Result())
		assert.True(t, item.IsApplied())
		assert.Equal(t, i*2, order[i])
	}
}

func TestRunHaltOnError(t *testing.T) {
	defer goleak.VerifyNone(t)
	boom := errors.New("segment 5 failed")
	var applied atomic.Int64
	items, err := Run(
		context.Background(),
		jitterStage(map[int]error{5: boom, 9: errors.New("later")}),
		intValues(20),
		WithWorkers(4),
		WithHaltOnError(true),
		WithApplyFunc(func(item *Item) error {
			applied.Add(1)
			return nil
		}),
	)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(5), applied.Load())
	require.Len(t, items, 20)
	for i := 0; i < 5; i++ {
		assert.True(t, items[i].IsApplied())
	}
	for i := 5; i < 20; i++ {
		assert.False(t, items[i].IsApplied())
	}
}

func TestRunFailFast(t *testing.T) {
	defer goleak.VerifyNone(t)
	boom := errors.New("boom")
	var processed atomic.Int64
	stage := NewStageFunc("slow", func(ctx context.Context, item *Item) error {
		processed.Add(1)
		if item.Value().(int) == 0 {
			return boom
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
		return nil
	})
	_, err := Run(context.Background(), stage, intValues(200), WithWorkers(2), WithFailFast(true))
	assert.ErrorIs(t, err, boom)
	assert.Less(t, processed.Load(), int64(200))
}

func TestRunCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	stage := NewStageFunc("block", func(ctx context.Context, item *Item) error {
		if item.Value().(int) == 3 {
			cancel()
		}
		<-ctx.Done()
		return ctx.Err()
	})
	_, err := Run(ctx, stage, intValues(10), WithWorkers(4))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunEmpty(t *testing.T) {
	defer goleak.VerifyNone(t)
	items, err := Run(context.Background(), jitterStage(nil), nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestPipelineLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)
	p := New(jitterStage(nil), WithWorkers(2))
	_, err := p.Submit(context.Background(), 1)
	assert.ErrorIs(t, err, ErrPipelineNotStarted)
	_, ok := <-p.Results()
	assert.False(t, ok)

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Start(context.Background()))
	for i := 0; i < 3; i++ {
		seq, err := p.Submit(context.Background(), i)
		require.NoError(t, err)
		// #nosec G115
		assert.Equal(t, uint64(i), seq)
	}
	p.Close()
	_, err = p.Submit(context.Background(), 4)
	assert.ErrorIs(t, err, ErrPipelineStopped)
	var got []uint64
	for item := range p.Results() {
		got = append(got, item.SequenceNumber())
	}
	assert.Equal(t, []uint64{0, 1, 2}, got)
	require.NoError(t, p.Stop())
	stats := p.Stats()
	assert.Equal(t, uint64(3), stats.ItemsSubmitted)
	assert.Equal(t, uint64(3), stats.ItemsProcessed)
	assert.Equal(t, uint64(3), stats.ItemsApplied)
	assert.Equal(t, 0, stats.CurrentQueueDepth)
	assert.GreaterOrEqual(t, stats.PeakQueueDepth, 1)
	assert.Equal(t, ErrPipelineStopped, p.Start(context.Background()))
}
