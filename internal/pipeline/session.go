package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/eleven-am/live-vision/internal/camera"
	"github.com/eleven-am/live-vision/internal/overlay"
	"github.com/eleven-am/live-vision/internal/vision"
)

type Dispatcher interface {
	Analyze(ctx context.Context, req vision.AnalysisRequest) (*vision.AnalysisResult, error)
	Preload(ctx context.Context, modelID string) (*vision.PreloadResponse, error)
}

type FrameCapturer interface {
	Capture(src vision.FrameSource, sessionID string) (*vision.Frame, error)
}

// Session binds one camera stream to one overlay and one scheduler. It is
// created by a Controller and lives until Close.
type Session struct {
	id       string
	source   string
	modelID  string
	stream   camera.Stream
	renderer *overlay.Renderer

	capturer   FrameCapturer
	dispatcher Dispatcher
	scheduler  *Scheduler
	observer   Observer
	clock      clock.Clock
	logger     *slog.Logger
	onClose    func(*Session)

	ctx      context.Context
	cancel   context.CancelFunc
	warm     chan struct{}
	openedAt time.Time

	closeOnce sync.Once

	mu         sync.Mutex
	status     Status
	lastResult *vision.AnalysisResult
	preload    *vision.PreloadResponse
	classes    map[string]struct{}

	results         atomic.Uint64
	failures        atomic.Uint64
	discarded       atomic.Uint64
	captureFailures atomic.Uint64
}

type sessionParams struct {
	id         string
	source     string
	modelID    string
	stream     camera.Stream
	capturer   FrameCapturer
	dispatcher Dispatcher
	observer   Observer
	clock      clock.Clock
	scheduler  SchedulerConfig
	logger     *slog.Logger
	onClose    func(*Session)
}

func newSession(p sessionParams) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	logger := p.logger.With("session_id", p.id)

	s := &Session{
		id:         p.id,
		source:     p.source,
		modelID:    p.modelID,
		stream:     p.stream,
		renderer:   overlay.NewRenderer(),
		capturer:   p.capturer,
		dispatcher: p.dispatcher,
		observer:   p.observer,
		clock:      p.clock,
		logger:     logger,
		onClose:    p.onClose,
		ctx:        ctx,
		cancel:     cancel,
		warm:       make(chan struct{}),
		openedAt:   p.clock.Now(),
		classes:    make(map[string]struct{}),
	}
	s.scheduler = NewScheduler(p.scheduler, p.clock, SchedulerHooks{
		Ready:     s.videoReady,
		Tick:      s.analyze,
		OnWaiting: func() { s.setStatus(StateWaiting, "Waiting for camera...") },
		OnStart:   func() { s.setStatus(StateStarting, "Starting analysis...") },
	}, logger.With("component", "scheduler"))
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Source() string {
	return s.source
}

func (s *Session) ModelID() string {
	return s.modelID
}

func (s *Session) StreamID() string {
	return s.stream.ID()
}

func (s *Session) OpenedAt() time.Time {
	return s.openedAt
}

func (s *Session) Renderer() *overlay.Renderer {
	return s.renderer
}

func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Session) Active() bool {
	return s.ctx.Err() == nil
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) LastResult() *vision.AnalysisResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

func (s *Session) Preload() *vision.PreloadResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preload
}

func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

func (s *Session) summaryLocked() Summary {
	stats := s.scheduler.Stats()
	classes := make([]string, 0, len(s.classes))
	for c := range s.classes {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	return Summary{
		SessionID:  s.id,
		Source:     s.source,
		StreamID:   s.stream.ID(),
		ModelID:    s.modelID,
		OpenedAt:   s.openedAt,
		Dispatched: stats.Dispatched,
		Skipped:    stats.Skipped,
		NotReady:   stats.NotReady,
		Results:    s.results.Load(),
		Failures:   s.failures.Load(),
		Discarded:  s.discarded.Load(),
		Classes:    classes,
		LastStatus: s.status,
	}
}

// start publishes the opened event, fires the warm-up call and arms the
// scheduler once both the camera and the warm-up have settled. The session
// closes itself if the camera ends first.
func (s *Session) start() {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.status = Status{State: StatePreparing, Message: "Preparing model...", UpdatedAt: s.clock.Now()}
	summary := s.summaryLocked()
	status := s.status
	s.publishLocked(Event{Type: EventOpened, Summary: &summary})
	s.publishLocked(Event{Type: EventStatus, Status: &status})
	s.mu.Unlock()

	go s.warmUp()
	go s.awaitStart()
	go s.watchStream()
}

func (s *Session) watchStream() {
	select {
	case <-s.stream.Done():
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Info("camera stream ended, closing session", "stream_id", s.stream.ID())
		s.Close()
	case <-s.ctx.Done():
	}
}

func (s *Session) warmUp() {
	defer close(s.warm)

	start := s.clock.Now()
	resp, err := s.dispatcher.Preload(s.ctx, s.modelID)
	if err != nil {
		s.logger.Warn("model preload failed, continuing", "model", s.modelID, "error", err)
	} else {
		s.logger.Info("model preloaded",
			"model", resp.Model,
			"load_time_seconds", resp.LoadTimeSeconds,
			"elapsed", s.clock.Since(start))
	}

	s.mu.Lock()
	s.preload = resp
	s.mu.Unlock()
}

func (s *Session) awaitStart() {
	select {
	case <-s.stream.Ready():
	case <-s.stream.Done():
		return
	case <-s.ctx.Done():
		return
	}
	select {
	case <-s.warm:
	case <-s.ctx.Done():
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	s.scheduler.Start(s.ctx)
}

func (s *Session) videoReady() bool {
	w, h := s.stream.Dimensions()
	return w > 0 && h > 0
}

// analyze runs one capture and dispatch cycle. The request is detached from
// the session context so Close never aborts it; the answer is dropped if the
// session closed in the meantime.
func (s *Session) analyze(ctx context.Context) {
	frame, err := s.capturer.Capture(s.stream, s.id)
	if err != nil {
		s.captureFailures.Add(1)
		s.logger.Debug("capture skipped", "error", err)
		return
	}

	s.setStatus(StateAnalyzing, "Analyzing frame...")

	req := vision.AnalysisRequest{
		Frame:       frame,
		Model:       s.modelID,
		SubmittedAt: s.clock.Now(),
	}
	res, err := s.dispatcher.Analyze(context.WithoutCancel(ctx), req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		s.discarded.Add(1)
		s.logger.Debug("late result discarded")
		return
	}

	now := s.clock.Now()
	if res == nil {
		s.failures.Add(1)
		s.status = statusFromError(s.status, err, now)
		s.logger.Warn("analysis failed", "error", err)
		status := s.status
		s.publishLocked(Event{Type: EventStatus, Status: &status})
		return
	}

	if err != nil || res.Error != "" {
		s.failures.Add(1)
		var inf *vision.InferenceError
		if !errors.As(err, &inf) {
			s.logger.Warn("analysis failed", "error", err)
		}
	} else {
		s.results.Add(1)
	}

	boxes, renderErr := s.renderer.Render(frame.SourceWidth, frame.SourceHeight, frame.Width, frame.Height, res.Detections)
	if renderErr != nil {
		s.logger.Warn("overlay render failed", "error", renderErr)
	}
	for _, d := range res.Detections {
		s.classes[d.Class] = struct{}{}
	}

	s.lastResult = res
	s.status = statusFromResult(s.status, res, err, now)
	status := s.status

	s.publishLocked(Event{Type: EventResult, Result: res, Boxes: boxes})
	s.publishLocked(Event{Type: EventStatus, Status: &status})
}

func (s *Session) setStatus(state State, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	s.status = s.status.with(state, message, s.clock.Now())
	status := s.status
	s.publishLocked(Event{Type: EventStatus, Status: &status})
}

func (s *Session) publishLocked(ev Event) {
	if s.observer == nil {
		return
	}
	ev.SessionID = s.id
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.clock.Now()
	}
	s.observer.OnEvent(ev)
}

// Close stops the scheduler and the camera and detaches the overlay. Only the
// first call has any effect.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.cancel()
		s.scheduler.Stop()
		s.stream.Stop()
		s.renderer.Detach()

		now := s.clock.Now()
		s.status = s.status.with(StateClosed, "Stopped", now)
		summary := s.summaryLocked()
		summary.ClosedAt = now
		status := s.status
		s.publishLocked(Event{Type: EventStatus, Status: &status})
		s.publishLocked(Event{Type: EventClosed, Summary: &summary})
		s.mu.Unlock()

		s.logger.Info("session closed",
			"dispatched", summary.Dispatched,
			"results", summary.Results,
			"failures", summary.Failures)

		if s.onClose != nil {
			s.onClose(s)
		}
	})
}
