package vision

import (
	"bytes"
	"image"
	"image/jpeg"
	"log/slog"
	"time"

	"golang.org/x/image/draw"
)

const (
	DefaultCaptureWidth   = 640
	DefaultCaptureHeight  = 480
	DefaultCaptureQuality = 60
)

// FrameSource is the live video a frame is grabbed from. Dimensions report the
// native resolution and are zero until the source has produced a frame.
type FrameSource interface {
	Dimensions() (width, height int)
	Snapshot() (image.Image, error)
}

type CapturerConfig struct {
	Width   int
	Height  int
	Quality int
	Logger  *slog.Logger
}

// Capturer downsamples to a fixed target size regardless of the native
// resolution so payload size and backend latency stay bounded.
type Capturer struct {
	width   int
	height  int
	quality int
	scaler  draw.Scaler
	logger  *slog.Logger
}

func NewCapturer(cfg CapturerConfig) *Capturer {
	if cfg.Width <= 0 {
		cfg.Width = DefaultCaptureWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultCaptureHeight
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = DefaultCaptureQuality
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Capturer{
		width:   cfg.Width,
		height:  cfg.Height,
		quality: cfg.Quality,
		scaler:  draw.ApproxBiLinear,
		logger:  cfg.Logger.With("component", "frame-capturer"),
	}
}

func (c *Capturer) Size() (width, height int) {
	return c.width, c.height
}

func (c *Capturer) Capture(src FrameSource, sessionID string) (*Frame, error) {
	srcW, srcH := src.Dimensions()
	if srcW <= 0 || srcH <= 0 {
		return nil, &CaptureError{Reason: "source has no dimensions"}
	}

	img, err := src.Snapshot()
	if err != nil {
		return nil, &CaptureError{Reason: "snapshot failed", Err: err}
	}
	if img == nil || img.Bounds().Empty() {
		return nil, &CaptureError{Reason: "snapshot is empty"}
	}

	dst := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	c.scaler.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, &CaptureError{Reason: "jpeg encode failed", Err: err}
	}
	if buf.Len() == 0 {
		return nil, &CaptureError{Reason: "encoder produced no data"}
	}

	c.logger.Debug("frame captured",
		"session_id", sessionID,
		"source_width", srcW,
		"source_height", srcH,
		"bytes", buf.Len())

	return &Frame{
		SessionID:    sessionID,
		Timestamp:    time.Now().UnixMilli(),
		Data:         buf.Bytes(),
		Width:        c.width,
		Height:       c.height,
		SourceWidth:  srcW,
		SourceHeight: srcH,
	}, nil
}
