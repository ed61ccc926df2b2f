package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type schedulerHarness struct {
	clock    *clock.Mock
	sched    *Scheduler
	ready    atomic.Bool
	ticks    atomic.Int32
	inFlight atomic.Int32
	maxPar   atomic.Int32
	waiting  atomic.Int32
	started  atomic.Bool
	release  chan struct{}
	block    atomic.Bool
}

func newSchedulerHarness(t *testing.T, ready bool) *schedulerHarness {
	t.Helper()
	h := &schedulerHarness{
		clock:   clock.NewMock(),
		release: make(chan struct{}),
	}
	h.ready.Store(ready)
	h.sched = NewScheduler(SchedulerConfig{}, h.clock, SchedulerHooks{
		Ready: h.ready.Load,
		Tick: func(ctx context.Context) {
			n := h.inFlight.Add(1)
			for {
				m := h.maxPar.Load()
				if n <= m || h.maxPar.CompareAndSwap(m, n) {
					break
				}
			}
			h.ticks.Add(1)
			if h.block.Load() {
				<-h.release
			}
			h.inFlight.Add(-1)
		},
		OnWaiting: func() { h.waiting.Add(1) },
		OnStart:   func() { h.started.Store(true) },
	}, discardLogger())
	t.Cleanup(h.sched.Stop)
	return h
}

// settled reports n completed ticks with the guard free again.
func (h *schedulerHarness) settled(n int32) func() bool {
	return func() bool {
		return h.ticks.Load() == n && h.inFlight.Load() == 0 && !h.sched.InFlight()
	}
}

func (h *schedulerHarness) start(t *testing.T) {
	t.Helper()
	if !h.sched.Start(context.Background()) {
		t.Fatal("Start should succeed")
	}
}

func TestSchedulerConfig_Defaults(t *testing.T) {
	cfg := SchedulerConfig{}.withDefaults()
	if cfg.Interval != 3*time.Second {
		t.Errorf("expected 3s interval, got %v", cfg.Interval)
	}
	if cfg.WarmDelay != 500*time.Millisecond {
		t.Errorf("expected 500ms warm delay, got %v", cfg.WarmDelay)
	}
	if cfg.RetryDelay != time.Second {
		t.Errorf("expected 1s retry delay, got %v", cfg.RetryDelay)
	}
}

func TestScheduler_FirstAttemptAfterWarmDelay(t *testing.T) {
	h := newSchedulerHarness(t, true)
	h.start(t)
	waitFor(t, "scheduler start", h.started.Load)

	h.clock.Add(499 * time.Millisecond)
	if h.ticks.Load() != 0 {
		t.Fatal("no attempt expected before warm delay")
	}

	h.clock.Add(time.Millisecond)
	waitFor(t, "first tick", h.settled(1))

	h.clock.Add(2500 * time.Millisecond)
	waitFor(t, "interval tick", h.settled(2))

	h.clock.Add(3 * time.Second)
	waitFor(t, "second interval tick", h.settled(3))
}

func TestScheduler_SkipsWhileInFlight(t *testing.T) {
	h := newSchedulerHarness(t, true)
	h.block.Store(true)
	h.start(t)
	waitFor(t, "scheduler start", h.started.Load)

	h.clock.Add(500 * time.Millisecond)
	waitFor(t, "first tick", func() bool { return h.ticks.Load() == 1 })

	h.clock.Add(2500 * time.Millisecond)
	waitFor(t, "skip", func() bool { return h.sched.Stats().Skipped == 1 })
	h.clock.Add(3 * time.Second)
	waitFor(t, "second skip", func() bool { return h.sched.Stats().Skipped == 2 })

	if h.ticks.Load() != 1 {
		t.Errorf("expected 1 tick while blocked, got %d", h.ticks.Load())
	}

	h.block.Store(false)
	close(h.release)
	waitFor(t, "guard released", func() bool { return !h.sched.InFlight() })

	h.clock.Add(3 * time.Second)
	waitFor(t, "tick after release", func() bool { return h.ticks.Load() == 2 })

	if h.maxPar.Load() != 1 {
		t.Errorf("expected at most one tick in flight, saw %d", h.maxPar.Load())
	}
}

func TestScheduler_WaitsForVideoBeforeStarting(t *testing.T) {
	h := newSchedulerHarness(t, false)
	h.start(t)
	waitFor(t, "waiting notification", func() bool { return h.waiting.Load() == 1 })

	h.clock.Add(999 * time.Millisecond)
	if h.waiting.Load() != 1 {
		t.Fatal("readiness should not be rechecked before the retry delay")
	}
	h.clock.Add(time.Millisecond)
	waitFor(t, "second readiness check", func() bool { return h.waiting.Load() == 2 })

	h.ready.Store(true)
	h.clock.Add(time.Second)
	waitFor(t, "scheduler start", h.started.Load)
	if h.ticks.Load() != 0 {
		t.Fatal("no request may be sent while the video was not ready")
	}

	h.clock.Add(500 * time.Millisecond)
	waitFor(t, "first tick", func() bool { return h.ticks.Load() == 1 })
}

func TestScheduler_NotReadyArmsSingleRetry(t *testing.T) {
	h := newSchedulerHarness(t, true)
	h.start(t)
	waitFor(t, "scheduler start", h.started.Load)

	h.ready.Store(false)
	h.clock.Add(500 * time.Millisecond)
	waitFor(t, "not-ready attempt", func() bool { return h.sched.Stats().NotReady == 1 })
	if h.ticks.Load() != 0 {
		t.Fatal("no request may be sent while the video is not ready")
	}

	h.ready.Store(true)
	h.clock.Add(999 * time.Millisecond)
	if h.ticks.Load() != 0 {
		t.Fatal("retry fired early")
	}
	h.clock.Add(time.Millisecond)
	waitFor(t, "retry tick", h.settled(1))

	h.clock.Add(1500 * time.Millisecond)
	waitFor(t, "periodic tick resumes", h.settled(2))
}

func TestScheduler_NeverMoreThanOneRetryPending(t *testing.T) {
	h := newSchedulerHarness(t, true)
	h.sched.cfg.RetryDelay = 5 * time.Second
	h.start(t)
	waitFor(t, "scheduler start", h.started.Load)

	h.ready.Store(false)
	h.clock.Add(500 * time.Millisecond)
	waitFor(t, "first not-ready", func() bool { return h.sched.Stats().NotReady == 1 })
	h.clock.Add(2500 * time.Millisecond)
	waitFor(t, "second not-ready", func() bool { return h.sched.Stats().NotReady == 2 })

	h.ready.Store(true)
	h.clock.Add(2500 * time.Millisecond)
	waitFor(t, "single retry tick", h.settled(1))

	h.clock.Add(400 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if h.ticks.Load() != 1 {
		t.Errorf("expected exactly one retry dispatch, got %d", h.ticks.Load())
	}
}

func TestScheduler_StopHaltsTicks(t *testing.T) {
	h := newSchedulerHarness(t, true)
	h.start(t)
	waitFor(t, "scheduler start", h.started.Load)

	h.sched.Stop()
	h.sched.Stop()

	select {
	case <-h.sched.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler goroutine did not exit")
	}

	h.clock.Add(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if h.ticks.Load() != 0 {
		t.Errorf("no ticks expected after stop, got %d", h.ticks.Load())
	}
	if h.sched.Start(context.Background()) {
		t.Error("stopped scheduler must not restart")
	}
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	h := newSchedulerHarness(t, true)
	h.sched.Stop()

	select {
	case <-h.sched.Done():
	default:
		t.Fatal("done should be closed when never started")
	}
	if h.sched.Start(context.Background()) {
		t.Error("Start after Stop should fail")
	}
}

func TestScheduler_StopClearsInFlight(t *testing.T) {
	h := newSchedulerHarness(t, true)
	h.block.Store(true)
	h.start(t)
	waitFor(t, "scheduler start", h.started.Load)

	h.clock.Add(500 * time.Millisecond)
	waitFor(t, "tick", func() bool { return h.ticks.Load() == 1 })
	if !h.sched.InFlight() {
		t.Fatal("expected request in flight")
	}

	h.sched.Stop()
	if h.sched.InFlight() {
		t.Error("stop should clear the in-flight flag")
	}
	close(h.release)
}
