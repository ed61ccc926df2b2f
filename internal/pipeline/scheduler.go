package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	DefaultInterval   = 3 * time.Second
	DefaultWarmDelay  = 500 * time.Millisecond
	DefaultRetryDelay = time.Second
)

type SchedulerConfig struct {
	Interval   time.Duration
	WarmDelay  time.Duration
	RetryDelay time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.WarmDelay <= 0 {
		c.WarmDelay = DefaultWarmDelay
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

// SchedulerHooks are called from the scheduler goroutine. Ready reports
// whether the video currently has usable dimensions. Tick runs in its own
// goroutine while the guard is held.
type SchedulerHooks struct {
	Ready     func() bool
	Tick      func(ctx context.Context)
	OnWaiting func()
	OnStart   func()
}

type SchedulerStats struct {
	Dispatched uint64 `json:"dispatched"`
	Skipped    uint64 `json:"skipped"`
	NotReady   uint64 `json:"not_ready"`
}

// Scheduler fires the first attempt WarmDelay after the video is ready and
// then every Interval. An attempt is skipped while a previous one is still in
// flight; when the video has no dimensions a single retry is armed instead.
type Scheduler struct {
	cfg    SchedulerConfig
	clock  clock.Clock
	guard  *Guard
	hooks  SchedulerHooks
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}

	retry  *clock.Timer
	retryC <-chan time.Time

	dispatched atomic.Uint64
	skipped    atomic.Uint64
	notReady   atomic.Uint64
}

func NewScheduler(cfg SchedulerConfig, clk clock.Clock, hooks SchedulerHooks, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if hooks.Ready == nil {
		hooks.Ready = func() bool { return true }
	}
	if hooks.Tick == nil {
		hooks.Tick = func(context.Context) {}
	}
	return &Scheduler{
		cfg:    cfg.withDefaults(),
		clock:  clk,
		guard:  NewGuard(),
		hooks:  hooks,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the scheduler goroutine. It returns false if the scheduler
// was already started or stopped.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return false
	}
	s.started = true
	go s.run(ctx)
	return true
}

// Stop clears every timer and the in-flight flag. A tick already running is
// not interrupted. Stop does not wait for the scheduler goroutine.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stop)
	if !s.started {
		close(s.done)
	}
	s.guard.Release()
}

func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) InFlight() bool {
	return s.guard.Busy()
}

func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Dispatched: s.dispatched.Load(),
		Skipped:    s.skipped.Load(),
		NotReady:   s.notReady.Load(),
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	if !s.awaitVideo(ctx) {
		return
	}

	ticker := s.clock.Ticker(s.cfg.Interval)
	warm := s.clock.Timer(s.cfg.WarmDelay)
	defer func() {
		ticker.Stop()
		warm.Stop()
		if s.retry != nil {
			s.retry.Stop()
		}
	}()

	s.logger.Debug("scheduler started",
		"interval", s.cfg.Interval,
		"warm_delay", s.cfg.WarmDelay)
	if s.hooks.OnStart != nil {
		s.hooks.OnStart()
	}

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-warm.C:
			s.attempt(ctx)
		case <-ticker.C:
			s.attempt(ctx)
		case <-s.retryC:
			s.retry, s.retryC = nil, nil
			s.attempt(ctx)
		}
	}
}

// awaitVideo polls every RetryDelay until the video reports dimensions.
func (s *Scheduler) awaitVideo(ctx context.Context) bool {
	for !s.hooks.Ready() {
		t := s.clock.Timer(s.cfg.RetryDelay)
		if s.hooks.OnWaiting != nil {
			s.hooks.OnWaiting()
		}
		select {
		case <-s.stop:
			t.Stop()
			return false
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
	return true
}

func (s *Scheduler) attempt(ctx context.Context) {
	if s.isStopped() {
		return
	}
	if s.guard.Busy() {
		s.skipped.Add(1)
		s.logger.Debug("tick skipped, request in flight")
		return
	}
	if !s.hooks.Ready() {
		if s.retry == nil {
			s.retry = s.clock.Timer(s.cfg.RetryDelay)
			s.retryC = s.retry.C
		}
		s.notReady.Add(1)
		s.logger.Debug("video not ready, retry armed", "retry_delay", s.cfg.RetryDelay)
		return
	}
	if !s.guard.TryAcquire() {
		s.skipped.Add(1)
		return
	}

	s.dispatched.Add(1)
	go func() {
		defer s.guard.Release()
		s.hooks.Tick(ctx)
	}()
}

func (s *Scheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
