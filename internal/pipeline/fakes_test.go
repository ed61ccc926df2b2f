package pipeline

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/eleven-am/live-vision/internal/camera"
	"github.com/eleven-am/live-vision/internal/vision"
)

type fakeStream struct {
	id        string
	width     atomic.Int32
	height    atomic.Int32
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once
	stops     atomic.Int32
}

func newFakeStream(id string, w, h int) *fakeStream {
	s := &fakeStream{id: id, ready: make(chan struct{}), done: make(chan struct{})}
	s.setSize(w, h)
	if w > 0 && h > 0 {
		s.markReady()
	}
	return s
}

func (s *fakeStream) setSize(w, h int) {
	s.width.Store(int32(w))
	s.height.Store(int32(h))
}

func (s *fakeStream) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *fakeStream) ID() string             { return s.id }
func (s *fakeStream) Ready() <-chan struct{} { return s.ready }
func (s *fakeStream) Done() <-chan struct{}  { return s.done }

func (s *fakeStream) Dimensions() (int, int) {
	return int(s.width.Load()), int(s.height.Load())
}

func (s *fakeStream) Snapshot() (image.Image, error) {
	w, h := s.Dimensions()
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

func (s *fakeStream) Stop() {
	s.stops.Add(1)
	s.end()
}

// end simulates the device going away without the session asking.
func (s *fakeStream) end() {
	s.doneOnce.Do(func() { close(s.done) })
}

type fakeSource struct {
	streams  []camera.Stream
	err      error
	acquires atomic.Int32
	mu       sync.Mutex
	devices  []string
}

func (f *fakeSource) Acquire(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	f.acquires.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append(f.devices, c.DeviceID)
	s := f.streams[0]
	if len(f.streams) > 1 {
		f.streams = f.streams[1:]
	}
	return s, nil
}

type fakeDispatcher struct {
	analyzeFn    func(ctx context.Context, req vision.AnalysisRequest) (*vision.AnalysisResult, error)
	preloadFn    func(ctx context.Context, model string) (*vision.PreloadResponse, error)
	analyzeCalls atomic.Int32
	preloadCalls atomic.Int32
	inFlight     atomic.Int32
	maxInFlight  atomic.Int32
	lastModel    atomic.Value
}

func (d *fakeDispatcher) Analyze(ctx context.Context, req vision.AnalysisRequest) (*vision.AnalysisResult, error) {
	d.analyzeCalls.Add(1)
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		m := d.maxInFlight.Load()
		if n <= m || d.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	d.lastModel.Store(req.Model)
	if d.analyzeFn != nil {
		return d.analyzeFn(ctx, req)
	}
	return &vision.AnalysisResult{
		Description: "an empty room",
		FrameWidth:  req.Frame.Width,
		FrameHeight: req.Frame.Height,
	}, nil
}

func (d *fakeDispatcher) Preload(ctx context.Context, model string) (*vision.PreloadResponse, error) {
	d.preloadCalls.Add(1)
	if d.preloadFn != nil {
		return d.preloadFn(ctx, model)
	}
	return &vision.PreloadResponse{Status: "loaded", Model: model, LoadTimeSeconds: 1.5}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(typ EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (r *recorder) sawState(state State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Type == EventStatus && ev.Status != nil && ev.Status.State == state {
			return true
		}
	}
	return false
}

func (r *recorder) last(typ EventType) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == typ {
			return r.events[i], true
		}
	}
	return Event{}, false
}

type testEnv struct {
	clock      *clock.Mock
	source     *fakeSource
	stream     *fakeStream
	dispatcher *fakeDispatcher
	recorder   *recorder
	controller *Controller
}

func newTestEnv(t *testing.T, stream *fakeStream) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:      clock.NewMock(),
		source:     &fakeSource{streams: []camera.Stream{stream}},
		stream:     stream,
		dispatcher: &fakeDispatcher{},
		recorder:   &recorder{},
	}
	env.controller = NewController(env.config())
	t.Cleanup(env.controller.Close)
	return env
}

func (e *testEnv) config() ControllerConfig {
	return ControllerConfig{
		Sources:      map[string]camera.Source{SourceStill: e.source},
		Capturer:     vision.NewCapturer(vision.CapturerConfig{Logger: discardLogger()}),
		Dispatcher:   e.dispatcher,
		Clock:        e.clock,
		Observer:     e.recorder,
		Logger:       discardLogger(),
		DefaultModel: "test-model",
	}
}

func (e *testEnv) open(t *testing.T) *Session {
	t.Helper()
	sess, err := e.controller.Open(context.Background(), OpenOptions{Source: SourceStill})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return sess
}

// startAnalysis opens a session, waits for the scheduler to arm its timers and
// advances past the warm delay so the first request goes out.
func (e *testEnv) startAnalysis(t *testing.T) *Session {
	t.Helper()
	sess := e.open(t)
	waitFor(t, "scheduler start", func() bool { return e.recorder.sawState(StateStarting) })
	e.clock.Add(DefaultWarmDelay)
	waitFor(t, "first request", func() bool { return e.dispatcher.analyzeCalls.Load() >= 1 })
	return sess
}

func idle(s *Session) func() bool {
	return func() bool { return !s.scheduler.InFlight() }
}

func sleepBriefly() {
	time.Sleep(20 * time.Millisecond)
}
