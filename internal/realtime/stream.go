package realtime

import (
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/eleven-am/live-vision/internal/camera"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
)

const (
	sampleMaxLate  = 64
	videoClockRate = 90000
)

// Stream is a browser camera received over WebRTC. It keeps only the most
// recently decoded key frame; Snapshot never blocks on the network.
type Stream struct {
	id      string
	peer    *Peer
	decoder *VP8Decoder
	logger  *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	stopOnce  sync.Once
	onStop    func(id string)

	mu       sync.RWMutex
	latest   image.Image
	width    int
	height   int
	builder  *samplebuilder.SampleBuilder
	mimeType string
	claimed  bool

	decoded atomic.Uint64
	skipped atomic.Uint64
}

func newStream(id string, peer *Peer, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		id:      id,
		peer:    peer,
		decoder: NewVP8Decoder(),
		logger:  logger.With("component", "rtc-stream", "stream_id", id),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

var _ camera.Stream = (*Stream)(nil)

func (s *Stream) ID() string {
	return s.id
}

func (s *Stream) Ready() <-chan struct{} {
	return s.ready
}

func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) Dimensions() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

func (s *Stream) Snapshot() (image.Image, error) {
	select {
	case <-s.done:
		return nil, camera.ErrStopped
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, errors.New("no frame decoded yet")
	}
	return s.latest, nil
}

func (s *Stream) Stats() (decoded, skipped uint64) {
	return s.decoded.Load(), s.skipped.Load()
}

// HandlePacket feeds one RTP packet of the remote video track.
func (s *Stream) HandlePacket(pkt *rtp.Packet, mimeType string) {
	select {
	case <-s.done:
		return
	default:
	}

	s.mu.Lock()
	if s.builder == nil || s.mimeType != mimeType {
		s.mimeType = mimeType
		s.builder = newSampleBuilder(mimeType)
		if s.builder == nil {
			s.mu.Unlock()
			s.logger.Warn("unsupported video codec", "mime_type", mimeType)
			return
		}
	}
	s.builder.Push(pkt)

	var frames [][]byte
	for {
		sample := s.builder.Pop()
		if sample == nil {
			break
		}
		frames = append(frames, sample.Data)
	}
	s.mu.Unlock()

	for _, data := range frames {
		s.decode(data)
	}
}

func newSampleBuilder(mimeType string) *samplebuilder.SampleBuilder {
	if mimeType != webrtc.MimeTypeVP8 {
		return nil
	}
	return samplebuilder.New(sampleMaxLate, &codecs.VP8Packet{}, videoClockRate)
}

func (s *Stream) decode(data []byte) {
	if !IsKeyframe(data) {
		s.skipped.Add(1)
		return
	}

	img, err := s.decoder.Decode(data)
	if err != nil {
		s.skipped.Add(1)
		s.logger.Debug("frame decode failed", "error", err)
		return
	}
	s.setFrame(img)
}

func (s *Stream) setFrame(img image.Image) {
	b := img.Bounds()
	if b.Empty() {
		return
	}

	s.mu.Lock()
	s.latest = img
	s.width = b.Dx()
	s.height = b.Dy()
	s.mu.Unlock()

	n := s.decoded.Add(1)
	s.readyOnce.Do(func() {
		s.logger.Info("first video frame", "width", b.Dx(), "height", b.Dy())
		close(s.ready)
	})
	if n%100 == 0 {
		s.logger.Debug("frames decoded", "count", n, "skipped", s.skipped.Load())
	}
}

func (s *Stream) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed {
		return false
	}
	s.claimed = true
	return true
}

func (s *Stream) Claimed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claimed
}

func (s *Stream) Stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Stop closes the peer connection. Safe to call from the session, the HTTP
// handler and the peer's own state callback.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		s.latest = nil
		s.width, s.height = 0, 0
		s.mu.Unlock()

		if s.peer != nil {
			if err := s.peer.Close(); err != nil {
				s.logger.Debug("peer close failed", "error", err)
			}
		}
		if s.onStop != nil {
			s.onStop(s.id)
		}
		s.logger.Info("stream stopped")
	})
}
