package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSchedulerRunsOnInterval(t *testing.T) {
	var runs atomic.Int64
	s := New(20*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, zap.NewNop())

	s.Start(context.Background())
	time.Sleep(110 * time.Millisecond)
	s.Stop()

	got := runs.Load()
	assert.GreaterOrEqual(t, got, int64(3))
}

func TestSchedulerTriggerRunsImmediately(t *testing.T) {
	var runs atomic.Int64
	s := New(time.Hour, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, zap.NewNop())

	s.Start(context.Background())
	s.Trigger()

	deadline := time.After(time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("trigger did not cause a run")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	s.Stop()
	assert.Equal(t, int64(1), runs.Load())
}

func TestSchedulerSurvivesJobErrors(t *testing.T) {
	var runs atomic.Int64
	s := New(10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("boom")
	}, zap.NewNop())

	s.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, runs.Load(), int64(2))
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(time.Hour, func(ctx context.Context) error { return nil }, zap.NewNop())

	s.Start(ctx)
	cancel()

	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on context cancellation")
	}
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := New(time.Hour, func(ctx context.Context) error { return nil }, zap.NewNop())
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}
