package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/delaneyj/fiberparty/lane"
	"github.com/delaneyj/fiberparty/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduler() (*scheduler.Scheduler, *fakeclock.FakeClock) {
	clk := fakeclock.NewFakeClock(time.Unix(0, 0))
	return scheduler.New(scheduler.WithClock(clk)), clk
}

func TestRunsByPriorityThenInsertionOrder(t *testing.T) {
	s, _ := newScheduler()
	order := []string{}
	record := func(name string) scheduler.Callback {
		return func(bool) scheduler.Callback {
			order = append(order, name)
			return nil
		}
	}

	s.ScheduleCallback(scheduler.NormalPriority, record("normal-1"))
	s.ScheduleCallback(scheduler.IdlePriority, record("idle"))
	s.ScheduleCallback(scheduler.UserBlockingPriority, record("user-blocking"))
	s.ScheduleCallback(scheduler.NormalPriority, record("normal-2"))
	s.ScheduleCallback(scheduler.ImmediatePriority, record("immediate"))

	s.FlushAll()
	assert.Equal(t, []string{"immediate", "user-blocking", "normal-1", "normal-2", "idle"}, order)
	assert.False(t, s.HasPendingWork())
}

func TestCancelledTaskDoesNotRun(t *testing.T) {
	s, _ := newScheduler()
	ran := false
	task := s.ScheduleCallback(scheduler.NormalPriority, func(bool) scheduler.Callback {
		ran = true
		return nil
	})
	s.CancelCallback(task)
	assert.True(t, task.Cancelled())
	s.FlushAll()
	assert.False(t, ran)
}

func TestContinuationKeepsTaskQueued(t *testing.T) {
	s, _ := newScheduler()
	steps := 0
	var step scheduler.Callback
	step = func(bool) scheduler.Callback {
		steps++
		if steps < 3 {
			return step
		}
		return nil
	}
	s.ScheduleCallback(scheduler.NormalPriority, step)
	s.FlushAll()
	assert.Equal(t, 3, steps)
}

func TestYieldAfterInterruptsSlice(t *testing.T) {
	s, _ := newScheduler()
	units := 0
	var work scheduler.Callback
	work = func(bool) scheduler.Callback {
		for units < 10 {
			if s.ShouldYield() {
				return work
			}
			units++
		}
		return nil
	}
	s.ScheduleCallback(scheduler.NormalPriority, work)

	s.YieldAfter(2)
	assert.True(t, s.RunNext(), "work remains after a forced yield")
	assert.Equal(t, 2, units)

	s.FlushAll()
	assert.Equal(t, 10, units)
}

func TestYieldBudgetSpansTasks(t *testing.T) {
	s, _ := newScheduler()
	var order []string
	s.ScheduleCallback(scheduler.NormalPriority, func(bool) scheduler.Callback {
		if !s.ShouldYield() {
			order = append(order, "a")
		}
		return nil
	})
	var b scheduler.Callback
	b = func(bool) scheduler.Callback {
		for len(order) < 5 {
			if s.ShouldYield() {
				return b
			}
			order = append(order, "b")
		}
		return nil
	}
	s.ScheduleCallback(scheduler.NormalPriority, b)

	// Moving from one task to the next costs nothing.
	s.YieldAfter(3)
	require.True(t, s.RunNext())
	assert.Equal(t, []string{"a", "b", "b"}, order)

	s.FlushAll()
	assert.Equal(t, []string{"a", "b", "b", "b", "b"}, order)
}

func TestFrameDeadlineYields(t *testing.T) {
	s, clk := newScheduler()
	units := 0
	var work scheduler.Callback
	work = func(bool) scheduler.Callback {
		for units < 5 {
			if s.ShouldYield() {
				return work
			}
			units++
			clk.Increment(2 * time.Millisecond)
		}
		return nil
	}
	s.ScheduleCallback(scheduler.NormalPriority, work)

	require.True(t, s.RunNext())
	assert.Equal(t, 3, units)
}

func TestExpiredTaskRunsWithoutYielding(t *testing.T) {
	s, clk := newScheduler()
	var timedOut bool
	s.ScheduleCallback(scheduler.UserBlockingPriority, func(didTimeout bool) scheduler.Callback {
		timedOut = didTimeout
		return nil
	})
	clk.Increment(time.Second)
	s.YieldAfter(0)
	s.RunNext()
	assert.True(t, timedOut)
}

func TestNowIsMillisecondsSinceStart(t *testing.T) {
	s, clk := newScheduler()
	assert.Equal(t, lane.Timestamp(0), s.Now())
	clk.Increment(1500 * time.Millisecond)
	assert.Equal(t, lane.Timestamp(1500), s.Now())
}

func TestSyncQueueFlushesInOrder(t *testing.T) {
	s, _ := newScheduler()
	order := []int{}
	for i := 0; i < 3; i++ {
		i := i
		s.ScheduleSyncCallback(func() error {
			order = append(order, i)
			return nil
		})
	}
	require.NoError(t, s.FlushSyncCallbackQueue())
	assert.Equal(t, []int{0, 1, 2}, order)

	// The immediate task was cancelled by the explicit flush.
	s.FlushAll()
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestSyncQueueKeepsRemainderAfterError(t *testing.T) {
	s, _ := newScheduler()
	boom := errors.New("boom")
	ran := []string{}
	s.ScheduleSyncCallback(func() error {
		ran = append(ran, "a")
		return boom
	})
	s.ScheduleSyncCallback(func() error {
		ran = append(ran, "b")
		return nil
	})

	assert.ErrorIs(t, s.FlushSyncCallbackQueue(), boom)
	assert.Equal(t, []string{"a"}, ran)

	s.FlushAll()
	assert.Equal(t, []string{"a", "b"}, ran)
}

func TestSyncQueueDrainsViaImmediateTask(t *testing.T) {
	s, _ := newScheduler()
	ran := false
	s.ScheduleSyncCallback(func() error {
		ran = true
		return nil
	})
	s.FlushAll()
	assert.True(t, ran)
}

func TestRunExecutesPostedWork(t *testing.T) {
	s := scheduler.New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Post(func() {
			s.ScheduleCallback(scheduler.NormalPriority, func(bool) scheduler.Callback {
				close(done)
				cancel()
				return nil
			})
		})
	}()

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	select {
	case <-done:
	default:
		t.Fatal("posted task never ran")
	}
}
