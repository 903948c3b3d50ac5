package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/npezzotti/cryptoforum/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestScheduler_RunsAndStops(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(testutil.TestLogger(t), Task{
		Name:     "counter",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context, now time.Time) {
			runs.Add(1)
		},
	})

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond,
		"expected task to run repeatedly")

	s.Stop()
	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "expected no runs after Stop returned")

	// stopping twice is a no-op
	s.Stop()
}

func TestScheduler_RunAtStart(t *testing.T) {
	ran := make(chan struct{}, 1)
	s := NewScheduler(testutil.TestLogger(t), Task{
		Name:       "eager",
		Interval:   time.Hour,
		RunAtStart: true,
		Run: func(ctx context.Context, now time.Time) {
			ran <- struct{}{}
		},
	})

	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Error("timeout: task did not run at start")
	}
}

func TestScheduler_RecoversPanics(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(testutil.TestLogger(t), Task{
		Name:     "panicky",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context, now time.Time) {
			runs.Add(1)
			panic("boom")
		},
	})

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond,
		"expected task to keep running after a panic")
	s.Stop()
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	s := NewScheduler(testutil.TestLogger(t))
	assert.NotPanics(t, s.Stop)
}

func TestScheduler_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s := NewScheduler(testutil.TestLogger(t), Task{
		Name:     "ctx",
		Interval: time.Hour,
		Run:      func(ctx context.Context, now time.Time) {},
	})
	s.Start(ctx)
	cancel()

	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("timeout: Stop did not return after parent cancel")
	}
}
