package training_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiio/training"
)

func TestCheckAndScheduleRunsAfterMinIntervalAndEventThreshold(t *testing.T) {
	s := training.New(training.Config{MinNewEvents: 5, MinInterval: 10 * time.Millisecond})
	var runs int32
	s.Start(func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	time.Sleep(15 * time.Millisecond)

	s.CheckAndSchedule(10)
	// The run fires after the scheduler's 1s debounce, so allow more than that.
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, 3*time.Second, time.Millisecond)
}

func TestCheckAndScheduleNoOpBelowEventThreshold(t *testing.T) {
	s := training.New(training.Config{MinNewEvents: 100, MinInterval: time.Millisecond})
	var runs int32
	s.Start(func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	s.CheckAndSchedule(3)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))
}

func TestTrainNowCancelsPendingScheduleAndRunsImmediately(t *testing.T) {
	s := training.New(training.Config{MinNewEvents: 1, MinInterval: time.Hour})
	var runs int32
	s.Start(func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	s.CheckAndSchedule(5)
	s.TrainNow(5)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, time.Second, time.Millisecond)
}

func TestFailedTrainFuncLeavesSchedulerRunning(t *testing.T) {
	s := training.New(training.Config{MinNewEvents: 1, MinInterval: time.Millisecond})
	s.Start(func(ctx context.Context) error { return assert.AnError })
	s.TrainNow(1)
	time.Sleep(5 * time.Millisecond)
	assert.True(t, s.IsRunning())
}

func TestStopPreventsFurtherRuns(t *testing.T) {
	s := training.New(training.Config{MinNewEvents: 1, MinInterval: time.Millisecond})
	var runs int32
	s.Start(func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	s.Stop()
	s.CheckAndSchedule(100)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))
}
