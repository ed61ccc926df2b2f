package camera

import (
	"context"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var ErrStopped = errors.New("camera: stream stopped")

// StillSource serves a single image file as if it were a camera. Each Acquire
// re-reads the file so a replaced file is picked up by the next session.
type StillSource struct {
	path   string
	logger *slog.Logger
}

func NewStillSource(path string, logger *slog.Logger) *StillSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &StillSource{
		path:   path,
		logger: logger.With("component", "still-camera"),
	}
}

func (s *StillSource) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, &AccessError{Device: s.path, Reason: "cancelled", Err: err}
	}

	path := s.path
	if c.DeviceID != "" {
		path = c.DeviceID
	}
	if path == "" {
		return nil, &AccessError{Device: "still", Reason: "no image configured"}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &AccessError{Device: path, Reason: "open failed", Err: err}
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, &AccessError{Device: path, Reason: "decode failed", Err: err}
	}

	s.logger.Info("still image acquired",
		"path", path,
		"format", format,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy())

	return NewStillStream(img), nil
}

type StillStream struct {
	id    string
	img   image.Image
	ready chan struct{}
	done  chan struct{}

	mu       sync.RWMutex
	stopped  bool
	stopOnce sync.Once
}

func NewStillStream(img image.Image) *StillStream {
	s := &StillStream{
		id:    uuid.NewString(),
		img:   img,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	if img != nil && !img.Bounds().Empty() {
		close(s.ready)
	}
	return s
}

var _ Stream = (*StillStream)(nil)

func (s *StillStream) ID() string {
	return s.id
}

func (s *StillStream) Ready() <-chan struct{} {
	return s.ready
}

func (s *StillStream) Done() <-chan struct{} {
	return s.done
}

func (s *StillStream) Dimensions() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped || s.img == nil {
		return 0, 0
	}
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *StillStream) Snapshot() (image.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return nil, ErrStopped
	}
	return s.img, nil
}

func (s *StillStream) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *StillStream) Stopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}
