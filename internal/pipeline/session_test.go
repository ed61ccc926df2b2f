package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/eleven-am/live-vision/internal/camera"
	"github.com/eleven-am/live-vision/internal/overlay"
	"github.com/eleven-am/live-vision/internal/vision"
)

func TestController_Open_AccessErrorStartsNothing(t *testing.T) {
	env := newTestEnv(t, newFakeStream("cam", 1280, 720))
	env.source.err = &camera.AccessError{Device: "cam", Reason: "permission denied"}

	sess, err := env.controller.Open(context.Background(), OpenOptions{Source: SourceStill})
	var accessErr *camera.AccessError
	if !errors.As(err, &accessErr) {
		t.Fatalf("expected AccessError, got %v", err)
	}
	if sess != nil {
		t.Error("no session expected")
	}

	env.clock.Add(10 * time.Second)
	sleepBriefly()
	if env.dispatcher.preloadCalls.Load() != 0 {
		t.Error("warm-up must not run without a camera")
	}
	if env.dispatcher.analyzeCalls.Load() != 0 {
		t.Error("no analysis may run without a camera")
	}
	if env.controller.Current() != nil {
		t.Error("controller should hold no session")
	}
}

func TestController_Open_WrapsPlainErrors(t *testing.T) {
	env := newTestEnv(t, newFakeStream("cam", 1280, 720))
	env.source.err = errors.New("device busy")

	_, err := env.controller.Open(context.Background(), OpenOptions{Source: SourceStill})
	var accessErr *camera.AccessError
	if !errors.As(err, &accessErr) {
		t.Fatalf("expected AccessError, got %v", err)
	}
	if !strings.Contains(err.Error(), "device busy") {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}

func TestController_Open_UnknownSource(t *testing.T) {
	env := newTestEnv(t, newFakeStream("cam", 1280, 720))

	_, err := env.controller.Open(context.Background(), OpenOptions{Source: "usb"})
	var accessErr *camera.AccessError
	if !errors.As(err, &accessErr) {
		t.Fatalf("expected AccessError, got %v", err)
	}
	if env.source.acquires.Load() != 0 {
		t.Error("no source should be touched")
	}
}

func TestSession_OpenPublishesPreparing(t *testing.T) {
	env := newTestEnv(t, newFakeStream("cam", 1280, 720))
	sess := env.open(t)

	if env.recorder.count(EventOpened) != 1 {
		t.Error("expected opened event")
	}
	if !env.recorder.sawState(StatePreparing) {
		t.Error("expected preparing status")
	}
	if sess.ModelID() != "test-model" {
		t.Errorf("expected default model, got %s", sess.ModelID())
	}
	if !strings.HasPrefix(sess.ID(), "vs_") {
		t.Errorf("unexpected session id %s", sess.ID())
	}
	waitFor(t, "preload", func() bool { return env.dispatcher.preloadCalls.Load() == 1 })
}

func TestSession_SchedulerWaitsForWarmUp(t *testing.T) {
	env := newTestEnv(t, newFakeStream("cam", 1280, 720))
	release := make(chan struct{})
	env.dispatcher.preloadFn = func(ctx context.Context, model string) (*vision.PreloadResponse, error) {
		<-release
		return &vision.PreloadResponse{Status: "loaded", Model: model}, nil
	}

	sess := env.open(t)
	waitFor(t, "preload call", func() bool { return env.dispatcher.preloadCalls.Load() == 1 })

	env.clock.Add(5 * time.Second)
	sleepBriefly()
	if env.recorder.sawState(StateStarting) {
		t.Fatal("scheduler must not start before warm-up settles")
	}
	if env.dispatcher.analyzeCalls.Load() != 0 {
		t.Fatal("no analysis before warm-up settles")
	}

	close(release)
	waitFor(t, "scheduler start", func() bool { return env.recorder.sawState(StateStarting) })
	waitFor(t, "preload recorded", func() bool { return sess.Preload() != nil })
	if sess.Preload().Status != "loaded" {
		t.Errorf("unexpected preload %+v", sess.Preload())
	}
}

func TestSession_WarmUpFailureStillStartsAnalysis(t *testing.T) {
	env := newTestEnv(t, newFakeStream("cam", 1280, 720))
	env.dispatcher.preloadFn = func(ctx context.Context, model string) (*vision.PreloadResponse, error) {
		return nil, &vision.NetworkError{Op: "preload", Err: errors.New("connection refused")}
	}

	env.startAnalysis(t)

	if env.dispatcher.analyzeCalls.Load() != 1 {
		t.Errorf("expected one request, got %d", env.dispatcher.analyzeCalls.Load())
	}
}

func TestSession_VideoNotReadyRetries(t *testing.T) {
	stream := newFakeStream("cam", 0, 0)
	stream.markReady()
	env := newTestEnv(t, stream)

	env.open(t)
	waitFor(t, "waiting status", func() bool { return env.recorder.sawState(StateWaiting) })

	env.clock.Add(5 * time.Second)
	sleepBriefly()
	if env.dispatcher.analyzeCalls.Load() != 0 {
		t.Fatal("no request may be sent while the video has no dimensions")
	}

	stream.setSize(1280, 720)
	env.clock.Add(time.Second)
	waitFor(t, "scheduler start", func() bool { return env.recorder.sawState(StateStarting) })

	env.clock.Add(DefaultWarmDelay)
	waitFor(t, "first request", func() bool { return env.dispatcher.analyzeCalls.Load() == 1 })
}

func TestSession_NotReadyTickSchedulesOneRetry(t *testing.T) {
	stream := newFakeStream("cam", 1280, 720)
	env := newTestEnv(t, stream)

	sess := env.open(t)
	waitFor(t, "scheduler start", func() bool { return env.recorder.sawState(StateStarting) })

	stream.setSize(0, 0)
	env.clock.Add(DefaultWarmDelay)
	waitFor(t, "not-ready tick", func() bool { return sess.scheduler.Stats().NotReady == 1 })
	if env.dispatcher.analyzeCalls.Load() != 0 {
		t.Fatal("no request may be sent while the video is not ready")
	}

	stream.setSize(1280, 720)
	env.clock.Add(DefaultRetryDelay)
	waitFor(t, "retry request", func() bool { return env.dispatcher.analyzeCalls.Load() == 1 })
}

func TestSession_ResultRendersBoxesAndStatus(t *testing.T) {
	env := newTestEnv(t, newFakeStream("cam", 1280, 720))
	env.dispatcher.analyzeFn = func(ctx context.Context, req vision.AnalysisRequest) (*vision.AnalysisResult, error) {
		return &vision.AnalysisResult{
			Description: "Two people are standing in a bright room",
			Detections: []vision.Detection{
				{BBox: vision.BoundingBox{X1: 10, Y1: 40, X2: 200, Y2: 400}, Class: "person", Confidence: 0.91},
				{BBox: vision.BoundingBox{X1: 320, Y1: 40, X2: 600, Y2: 460}, Class: "person", Confidence: 0.84},
			},
			DetectionCount: 2,
			Latency:        vision.StageLatency{YOLO: 120, LLaVA: 2300, Total: 2500},
			FrameWidth:     req.Frame.Width,
			FrameHeight:    req.Frame.Height,
		}, nil
	}

	sess := env.startAnalysis(t)
	waitFor(t, "result", func() bool { return env.recorder.count(EventResult) == 1 })

	boxes := sess.Renderer().Boxes()
	if len(boxes) != 2 {
		t.Fatalf("expected 2 boxes, got %d", len(boxes))
	}
	if boxes[0].Color == boxes[1].Color {
		t.Error("boxes must use distinct palette colours")
	}
	if boxes[0].Color != overlay.Palette[0] || boxes[1].Color != overlay.Palette[1] {
		t.Errorf("unexpected colours %v %v", boxes[0].Color, boxes[1].Color)
	}
	if boxes[0].Rect.Min.X != 20 || boxes[0].Rect.Min.Y != 60 {
		t.Errorf("expected box scaled to native video, got %v", boxes[0].Rect)
	}

	status := sess.Status()
	if status.State != StateReady {
		t.Errorf("expected ready, got %s", status.State)
	}
	if status.TotalMs != 2420 {
		t.Errorf("expected total = yolo + llava = 2420, got %v", status.TotalMs)
	}
	if status.ServerTotalMs != 2500 {
		t.Errorf("expected server total 2500, got %v", status.ServerTotalMs)
	}
	if status.Tokens != 8 {
		t.Errorf("expected 8 tokens, got %d", status.Tokens)
	}
	if status.TokensPerSec != 8/2.5 {
		t.Errorf("expected %v tokens/s, got %v", 8/2.5, status.TokensPerSec)
	}
	if !status.ModelLoaded {
		t.Error("model should be marked loaded after a description")
	}
	if status.DetectionCount != 2 {
		t.Errorf("expected detection count 2, got %d", status.DetectionCount)
	}

	ev, _ := env.recorder.last(EventResult)
	if len(ev.Boxes) != 2 || ev.Result == nil {
		t.Errorf("result event should carry boxes and result, got %+v", ev)
	}
	if got := env.dispatcher.lastModel.Load(); got != "test-model" {
		t.Errorf("expected model test-model on the request, got %v", got)
	}
}

func TestSession_BackendErrorShownAndNextTickProceeds(t *testing.T) {
	env := newTestEnv(t, newFakeStream("cam", 1280, 720))
	env.dispatcher.analyzeFn = func(ctx context.Context, req vision.AnalysisRequest) (*vision.AnalysisResult, error) {
		return &vision.AnalysisResult{Error: "CUDA out of memory"},
			&vision.InferenceError{Op: "pipeline", StatusCode: 500, Message: "CUDA out of memory"}
	}

	sess := env.startAnalysis(t)
	waitFor(t, "error status", func() bool { return sess.Status().State == StateError })
	waitFor(t, "in-flight cleared", idle(sess))

	status := sess.Status()
	if status.Message != "CUDA out of memory" {
		t.Errorf("expected backend message in status, got %q", status.Message)
	}
	if len(sess.Renderer().Boxes()) != 0 {
		t.Error("no boxes expected for an error result")
	}

	env.clock.Add(DefaultInterval - DefaultWarmDelay)
	waitFor(t, "next request", func() bool { return env.dispatcher.analyzeCalls.Load() == 2 })
}

func TestSession_NetworkErrorKeepsOverlay(t *testing.T) {
	env := newTestEnv(t, newFakeStream("cam", 640, 480))
	var calls int
	env.dispatcher.analyzeFn = func(ctx context.Context, req vision.AnalysisRequest) (*vision.AnalysisResult, error) {
		calls++
		if calls == 1 {
			return &vision.AnalysisResult{
				Description: "a cup",
				Detections:  []vision.Detection{{BBox: vision.BoundingBox{X2: 50, Y2: 50}, Class: "cup", Confidence: 0.5}},
			}, nil
		}
		return nil, &vision.NetworkError{Op: "pipeline", Err: errors.New("connection reset")}
	}

	sess := env.startAnalysis(t)
	waitFor(t, "first result", func() bool { return env.recorder.count(EventResult) == 1 })
	waitFor(t, "in-flight cleared", idle(sess))

	env.clock.Add(DefaultInterval - DefaultWarmDelay)
	waitFor(t, "error status", func() bool { return sess.Status().State == StateError })

	if !strings.HasPrefix(sess.Status().Message, "Request failed") {
		t.Errorf("unexpected message %q", sess.Status().Message)
	}
	if len(sess.Renderer().Boxes()) != 1 {
		t.Error("a transport failure should leave the previous overlay in place")
	}
	if sess.Status().Description != "a cup" {
		t.Error("previous figures should be kept on transport failure")
	}
}

func TestSession_EmptyResultClearsOverlay(t *testing.T) {
	env := newTestEnv(t, newFakeStream("cam", 640, 480))
	var calls int
	env.dispatcher.analyzeFn = func(ctx context.Context, req vision.AnalysisRequest) (*vision.AnalysisResult, error) {
		calls++
		if calls == 1 {
			return &vision.AnalysisResult{
				Description: "a cup",
				Detections:  []vision.Detection{{BBox: vision.BoundingBox{X2: 50, Y2: 50}, Class: "cup", Confidence: 0.5}},
			}, nil
		}
		return &vision.AnalysisResult{Description: "nothing here"}, nil
	}

	sess := env.startAnalysis(t)
	waitFor(t, "first result", func() bool { return env.recorder.count(EventResult) == 1 })
	waitFor(t, "in-flight cleared", idle(sess))

	env.clock.Add(DefaultInterval - DefaultWarmDelay)
	waitFor(t, "second result", func() bool { return env.recorder.count(EventResult) == 2 })

	if len(sess.Renderer().Boxes()) != 0 {
		t.Error("overlay should be cleared when the latest result has no detections")
	}
}

func TestSession_CloseMidFlightDiscardsLateResult(t *testing.T) {
	env := newTestEnv(t, newFakeStream("cam", 1280, 720))
	release := make(chan struct{})
	env.dispatcher.analyzeFn = func(ctx context.Context, req vision.AnalysisRequest) (*vision.AnalysisResult, error) {
		<-release
		if ctx.Err() != nil {
			t.Error("request context must not be cancelled by Close")
		}
		return &vision.AnalysisResult{
			Description: "late",
			Detections:  []vision.Detection{{BBox: vision.BoundingBox{X2: 10, Y2: 10}, Class: "cup", Confidence: 0.9}},
		}, nil
	}

	sess := env.startAnalysis(t)

	sess.Close()
	if env.stream.stops.Load() != 1 {
		t.Fatalf("stream should stop immediately, got %d stops", env.stream.stops.Load())
	}
	if sess.Renderer().Attached() {
		t.Error("overlay should be detached on close")
	}

	close(release)
	waitFor(t, "late result discarded", func() bool { return sess.discarded.Load() == 1 })

	if env.recorder.count(EventResult) != 0 {
		t.Error("late result must not be published")
	}
	if sess.Renderer().Attached() || len(sess.Renderer().Boxes()) != 0 {
		t.Error("late result must not render")
	}
	if sess.Status().State != StateClosed {
		t.Errorf("expected closed status, got %s", sess.Status().State)
	}

	env.clock.Add(30 * time.Second)
	sleepBriefly()
	if env.dispatcher.analyzeCalls.Load() != 1 {
		t.Errorf("no ticks expected after close, got %d requests", env.dispatcher.analyzeCalls.Load())
	}
	if env.source.acquires.Load() != 1 {
		t.Error("camera must not be reacquired")
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	env := newTestEnv(t, newFakeStream("cam", 1280, 720))
	sess := env.open(t)

	sess.Close()
	sess.Close()
	env.controller.Close()

	if env.stream.stops.Load() != 1 {
		t.Errorf("expected exactly one stream stop, got %d", env.stream.stops.Load())
	}
	if env.recorder.count(EventClosed) != 1 {
		t.Errorf("expected one closed event, got %d", env.recorder.count(EventClosed))
	}
	if sess.Active() {
		t.Error("session should be inactive")
	}
	if env.controller.Current() != nil {
		t.Error("controller should release the session")
	}
}

func TestSession_CloseBeforeCameraReady(t *testing.T) {
	stream := newFakeStream("cam", 0, 0)
	env := newTestEnv(t, stream)
	sess := env.open(t)

	sess.Close()
	stream.setSize(640, 480)
	stream.markReady()

	env.clock.Add(10 * time.Second)
	sleepBriefly()
	if env.recorder.sawState(StateStarting) {
		t.Error("scheduler must not start after close")
	}
	if env.dispatcher.analyzeCalls.Load() != 0 {
		t.Error("no requests expected after close")
	}
}

func TestSession_AtMostOneRequestInFlight(t *testing.T) {
	env := newTestEnv(t, newFakeStream("cam", 1280, 720))
	release := make(chan struct{})
	env.dispatcher.analyzeFn = func(ctx context.Context, req vision.AnalysisRequest) (*vision.AnalysisResult, error) {
		<-release
		return &vision.AnalysisResult{Description: "ok"}, nil
	}

	sess := env.startAnalysis(t)
	for i := uint64(1); i <= 5; i++ {
		env.clock.Add(DefaultInterval)
		waitFor(t, "skipped tick", func() bool { return sess.scheduler.Stats().Skipped == i })
	}

	if env.dispatcher.analyzeCalls.Load() != 1 {
		t.Errorf("expected a single request while one is pending, got %d", env.dispatcher.analyzeCalls.Load())
	}
	close(release)
	waitFor(t, "in-flight cleared", idle(sess))

	if env.dispatcher.maxInFlight.Load() != 1 {
		t.Errorf("expected at most one request in flight, saw %d", env.dispatcher.maxInFlight.Load())
	}
	if sess.Summary().Skipped != 5 {
		t.Errorf("expected summary to report 5 skipped, got %d", sess.Summary().Skipped)
	}
}

func TestController_ReopenClosesPrevious(t *testing.T) {
	first := newFakeStream("cam-1", 640, 480)
	second := newFakeStream("cam-2", 640, 480)
	env := newTestEnv(t, first)
	env.source.streams = append(env.source.streams, second)

	s1 := env.open(t)
	s2 := env.open(t)

	if s1.Active() {
		t.Error("previous session should be closed")
	}
	if first.stops.Load() != 1 {
		t.Error("previous stream should be stopped")
	}
	if !s2.Active() || env.controller.Current() != s2 {
		t.Error("new session should be current")
	}
	if s2.StreamID() != "cam-2" {
		t.Errorf("expected cam-2, got %s", s2.StreamID())
	}
}

func TestSession_SummaryOnClose(t *testing.T) {
	env := newTestEnv(t, newFakeStream("cam", 640, 480))
	env.dispatcher.analyzeFn = func(ctx context.Context, req vision.AnalysisRequest) (*vision.AnalysisResult, error) {
		return &vision.AnalysisResult{
			Description: "a dog and a cat",
			Detections: []vision.Detection{
				{Class: "dog", Confidence: 0.9, BBox: vision.BoundingBox{X2: 5, Y2: 5}},
				{Class: "cat", Confidence: 0.8, BBox: vision.BoundingBox{X2: 5, Y2: 5}},
			},
		}, nil
	}

	sess := env.startAnalysis(t)
	waitFor(t, "result", func() bool { return env.recorder.count(EventResult) == 1 })
	sess.Close()

	ev, ok := env.recorder.last(EventClosed)
	if !ok || ev.Summary == nil {
		t.Fatal("expected closed event with summary")
	}
	if ev.Summary.Results != 1 || ev.Summary.Dispatched != 1 {
		t.Errorf("unexpected counters %+v", ev.Summary)
	}
	if len(ev.Summary.Classes) != 2 || ev.Summary.Classes[0] != "cat" {
		t.Errorf("expected sorted classes, got %v", ev.Summary.Classes)
	}
	if ev.Summary.ClosedAt.IsZero() {
		t.Error("closed time should be set")
	}
}

func TestSession_CameraEndClosesSession(t *testing.T) {
	stream := newFakeStream("cam", 640, 480)
	env := newTestEnv(t, stream)
	sess := env.startAnalysis(t)
	waitFor(t, "in-flight cleared", idle(sess))

	stream.end()
	waitFor(t, "session closed", func() bool { return !sess.Active() })
	waitFor(t, "closed event", func() bool { return env.recorder.count(EventClosed) == 1 })

	if sess.Status().State != StateClosed {
		t.Errorf("expected closed status, got %s", sess.Status().State)
	}
	waitFor(t, "controller released", func() bool { return env.controller.Current() == nil })
	if stream.stops.Load() != 1 {
		t.Errorf("expected stream stopped once, got %d", stream.stops.Load())
	}

	calls := env.dispatcher.analyzeCalls.Load()
	env.clock.Add(10 * time.Second)
	sleepBriefly()
	if env.dispatcher.analyzeCalls.Load() != calls {
		t.Error("no requests expected after the camera ended")
	}
}

func TestSession_CameraEndBeforeReadyClosesSession(t *testing.T) {
	stream := newFakeStream("cam", 0, 0)
	env := newTestEnv(t, stream)
	sess := env.open(t)

	stream.end()
	waitFor(t, "session closed", func() bool { return !sess.Active() })

	env.clock.Add(10 * time.Second)
	sleepBriefly()
	if env.recorder.sawState(StateStarting) {
		t.Error("scheduler must not start for an ended camera")
	}
	if env.recorder.count(EventClosed) != 1 {
		t.Errorf("expected one closed event, got %d", env.recorder.count(EventClosed))
	}
}

func TestSession_StartAfterCloseIsNoop(t *testing.T) {
	env := newTestEnv(t, newFakeStream("cam", 640, 480))
	sess := env.open(t)
	waitFor(t, "warm-up", func() bool { return env.dispatcher.preloadCalls.Load() == 1 })

	sess.Close()
	opened := env.recorder.count(EventOpened)
	sess.start()
	sleepBriefly()

	if env.recorder.count(EventOpened) != opened {
		t.Error("start on a closed session must not publish")
	}
	if env.dispatcher.preloadCalls.Load() != 1 {
		t.Error("start on a closed session must not warm the model")
	}
	if sess.Status().State != StateClosed {
		t.Errorf("expected closed status, got %s", sess.Status().State)
	}
}

func TestSession_ErrorWithDescriptionIsFailure(t *testing.T) {
	env := newTestEnv(t, newFakeStream("cam", 640, 480))
	env.dispatcher.analyzeFn = func(ctx context.Context, req vision.AnalysisRequest) (*vision.AnalysisResult, error) {
		return &vision.AnalysisResult{Description: "a blurry shape", Error: "describer timed out"}, nil
	}

	sess := env.startAnalysis(t)
	waitFor(t, "error status", func() bool { return sess.Status().State == StateError })
	waitFor(t, "in-flight cleared", idle(sess))

	status := sess.Status()
	if status.Message != "a blurry shape" {
		t.Errorf("expected description shown as the error, got %q", status.Message)
	}
	if status.ModelLoaded {
		t.Error("an errored answer must not mark the model loaded")
	}
	summary := sess.Summary()
	if summary.Failures != 1 || summary.Results != 0 {
		t.Errorf("expected one failure and no results, got %d/%d", summary.Failures, summary.Results)
	}
}
