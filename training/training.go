// Package training implements spec §2 component P: TrainingScheduler, an
// interval/idle/event-count driven retrain trigger (§4.13). The timer +
// mutex + cancel-context shape is adapted from the teacher's generic job
// scheduler: one named job (retraining) instead of many, triggered by
// event-count thresholds and idle detection instead of calendar
// frequencies.
package training

import (
	"context"
	"sync"
	"time"

	"audiio/logging"
)

// TrainFunc performs one retraining pass. Errors are caught and logged;
// they never stop the scheduler (§4.13).
type TrainFunc func(ctx context.Context) error

// state is the scheduler's stopped/running state machine.
type state int

const (
	stateStopped state = iota
	stateRunning
)

// Config tunes the event-count and idle thresholds.
type Config struct {
	MinNewEvents  int
	MinInterval   time.Duration
	IdleThreshold time.Duration // 0 disables idle-triggered training
}

// Scheduler drives TrainFunc from CheckAndSchedule calls and optional
// idle detection.
type Scheduler struct {
	cfg Config

	mu                 sync.Mutex
	state              state
	trainFn            TrainFunc
	lastTrainedAt      time.Time
	baselineEventCount int
	pendingTimer       *time.Timer
	idleTimer          *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Scheduler in the stopped state.
func New(cfg Config) *Scheduler {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Hour
	}
	return &Scheduler{cfg: cfg, state: stateStopped}
}

// Start installs trainFn and transitions to running (§4.13).
func (s *Scheduler) Start(trainFn TrainFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateRunning {
		return
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.trainFn = trainFn
	s.state = stateRunning
	s.lastTrainedAt = time.Now()
	s.resetIdleTimerLocked()
}

// Stop cancels any pending schedule and transitions to stopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRunning {
		return
	}
	s.state = stateStopped
	if s.cancel != nil {
		s.cancel()
	}
	s.stopTimersLocked()
}

// CheckAndSchedule is called after each recorded event with the current
// total event count. It schedules a retrain run immediately (1s debounce)
// once enough new events have accumulated and the minimum interval has
// elapsed, or defers to the interval boundary otherwise (§4.13).
func (s *Scheduler) CheckAndSchedule(currentEventCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRunning {
		return
	}

	newEvents := currentEventCount - s.baselineEventCount
	if newEvents < s.cfg.MinNewEvents {
		return
	}

	elapsed := time.Since(s.lastTrainedAt)
	if elapsed >= s.cfg.MinInterval {
		s.scheduleLocked(time.Second, currentEventCount)
		return
	}
	s.scheduleLocked(s.cfg.MinInterval-elapsed, currentEventCount)
}

// scheduleLocked arms (or re-arms) the pending-run timer. Re-arming
// replaces any earlier schedule rather than stacking runs.
func (s *Scheduler) scheduleLocked(delay time.Duration, eventCountAtSchedule int) {
	if s.pendingTimer != nil {
		s.pendingTimer.Stop()
	}
	s.pendingTimer = time.AfterFunc(delay, func() {
		s.runLocked(eventCountAtSchedule)
	})
}

// TrainNow cancels any pending schedule and runs immediately (§4.13).
func (s *Scheduler) TrainNow(currentEventCount int) {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return
	}
	if s.pendingTimer != nil {
		s.pendingTimer.Stop()
		s.pendingTimer = nil
	}
	s.mu.Unlock()
	s.runLocked(currentEventCount)
}

// runLocked executes trainFn and updates bookkeeping regardless of
// outcome — a failed training pass leaves the scheduler runnable
// (§4.13: "state remains runnable").
func (s *Scheduler) runLocked(eventCountAtSchedule int) {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	trainFn := s.trainFn
	s.pendingTimer = nil
	s.mu.Unlock()

	if trainFn == nil {
		return
	}
	if err := trainFn(ctx); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("training: run failed")
	}

	s.mu.Lock()
	s.lastTrainedAt = time.Now()
	s.baselineEventCount = eventCountAtSchedule
	s.mu.Unlock()
}

// ReportActivity resets the idle-detection timer. Call on any user
// interaction the host can observe.
func (s *Scheduler) ReportActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRunning {
		return
	}
	s.resetIdleTimerLocked()
}

func (s *Scheduler) resetIdleTimerLocked() {
	if s.cfg.IdleThreshold <= 0 {
		return
	}
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(s.cfg.IdleThreshold, func() {
		s.mu.Lock()
		eventCount := s.baselineEventCount
		s.mu.Unlock()
		s.runLocked(eventCount)
	})
}

func (s *Scheduler) stopTimersLocked() {
	if s.pendingTimer != nil {
		s.pendingTimer.Stop()
		s.pendingTimer = nil
	}
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

// IsRunning reports whether the scheduler has been started.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}
