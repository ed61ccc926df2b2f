package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/eleven-am/live-vision/internal/camera"
	"github.com/eleven-am/live-vision/internal/shared"
)

const (
	SourceStill  = "still"
	SourceWebRTC = "webrtc"
)

type OpenOptions struct {
	Source   string
	DeviceID string
	ModelID  string
}

type ControllerConfig struct {
	Sources    map[string]camera.Source
	Capturer   FrameCapturer
	Dispatcher Dispatcher
	Scheduler  SchedulerConfig
	Clock      clock.Clock
	Observer   Observer
	Logger     *slog.Logger
	// DefaultModel is used when OpenOptions.ModelID is empty.
	DefaultModel string
	// OnClose is invoked once for every session this controller closes.
	OnClose func(*Session)
}

// Controller holds at most one session. Opening a new one first closes the
// previous, which is how a client switches camera modes.
type Controller struct {
	cfg    ControllerConfig
	logger *slog.Logger

	openMu sync.Mutex

	mu      sync.Mutex
	current *Session
}

func NewController(cfg ControllerConfig) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "session-controller"),
	}
}

// Open acquires a camera and starts a session on it. A camera failure is
// returned as *camera.AccessError and leaves nothing running.
func (c *Controller) Open(ctx context.Context, opts OpenOptions) (*Session, error) {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	c.Close()

	src, ok := c.cfg.Sources[opts.Source]
	if !ok || src == nil {
		return nil, &camera.AccessError{Device: opts.Source, Reason: "unknown camera source"}
	}

	constraints := camera.DefaultConstraints()
	constraints.DeviceID = opts.DeviceID

	stream, err := src.Acquire(ctx, constraints)
	if err != nil {
		var accessErr *camera.AccessError
		if !errors.As(err, &accessErr) {
			err = &camera.AccessError{Device: opts.Source, Reason: "acquire failed", Err: err}
		}
		c.logger.Warn("camera access failed", "source", opts.Source, "error", err)
		return nil, err
	}
	if stream == nil {
		return nil, &camera.AccessError{Device: opts.Source, Reason: "no stream returned"}
	}

	modelID := opts.ModelID
	if modelID == "" {
		modelID = c.cfg.DefaultModel
	}

	sess := newSession(sessionParams{
		id:         shared.NewID("vs_"),
		source:     opts.Source,
		modelID:    modelID,
		stream:     stream,
		capturer:   c.cfg.Capturer,
		dispatcher: c.cfg.Dispatcher,
		observer:   c.cfg.Observer,
		clock:      c.cfg.Clock,
		scheduler:  c.cfg.Scheduler,
		logger:     c.cfg.Logger.With("component", "session"),
		onClose:    c.released,
	})
	c.logger.Info("session opened",
		"session_id", sess.ID(),
		"source", opts.Source,
		"stream_id", stream.ID(),
		"model", modelID)

	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()

	sess.start()
	return sess, nil
}

// Close ends the current session, if any.
func (c *Controller) Close() {
	c.mu.Lock()
	sess := c.current
	c.current = nil
	c.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
}

func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) released(s *Session) {
	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.mu.Unlock()

	if c.cfg.OnClose != nil {
		c.cfg.OnClose(s)
	}
}
