package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/eleven-am/live-vision/internal/camera"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Manager owns every browser camera connected over WebRTC and hands them out
// to pipeline sessions as a camera.Source.
type Manager struct {
	cfg    Config
	api    *webrtc.API
	logger *slog.Logger

	mu      sync.RWMutex
	streams map[string]*Stream
	order   []string
}

func NewManager(cfg Config, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	se := &webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > cfg.PortRange.Min {
		if err := se.SetEphemeralUDPPortRange(uint16(cfg.PortRange.Min), uint16(cfg.PortRange.Max)); err != nil {
			return nil, err
		}
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithSettingEngine(*se),
	)

	return &Manager{
		cfg:     cfg,
		api:     api,
		logger:  logger.With("component", "rtc-manager"),
		streams: make(map[string]*Stream),
	}, nil
}

var _ camera.Source = (*Manager)(nil)

// Offer negotiates a new camera connection and returns the registered stream
// together with the SDP answer.
func (m *Manager) Offer(ctx context.Context, sdp string) (*Stream, string, error) {
	pc, err := m.api.NewPeerConnection(webrtc.Configuration{ICEServers: m.iceServers()})
	if err != nil {
		return nil, "", fmt.Errorf("create peer connection: %w", err)
	}

	peer, err := NewPeer(pc, m.cfg.KeyframeInterval, m.logger)
	if err != nil {
		pc.Close()
		return nil, "", fmt.Errorf("create peer: %w", err)
	}

	if err := peer.SetOffer(sdp); err != nil {
		peer.Close()
		return nil, "", &OfferError{Err: err}
	}

	stream := newStream(uuid.NewString(), peer, m.logger)
	peer.OnPacket(stream.HandlePacket)
	peer.OnFailed(func() { go stream.Stop() })

	gatherCtx, cancel := context.WithTimeout(ctx, m.cfg.GatherTimeout)
	defer cancel()

	answer, err := peer.Answer(gatherCtx)
	if err != nil {
		stream.Stop()
		return nil, "", fmt.Errorf("create answer: %w", err)
	}

	m.add(stream)
	m.logger.Info("camera connected", "stream_id", stream.ID())
	return stream, answer, nil
}

// OfferError marks an SDP offer the peer connection rejected.
type OfferError struct {
	Err error
}

func (e *OfferError) Error() string {
	return "invalid offer: " + e.Err.Error()
}

func (e *OfferError) Unwrap() error {
	return e.Err
}

func (m *Manager) add(s *Stream) {
	s.onStop = m.remove

	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[s.id] = s
	m.order = append(m.order, s.id)
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, id)
	for i, sid := range m.order {
		if sid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Acquire claims a connected camera. DeviceID selects a stream by id; when it
// is empty the most recently connected unclaimed stream is used.
func (m *Manager) Acquire(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, &camera.AccessError{Device: c.DeviceID, Reason: "cancelled", Err: err}
	}

	m.mu.RLock()
	var stream *Stream
	if c.DeviceID != "" {
		stream = m.streams[c.DeviceID]
	} else {
		for i := len(m.order) - 1; i >= 0; i-- {
			if s := m.streams[m.order[i]]; s != nil && !s.Claimed() {
				stream = s
				break
			}
		}
	}
	m.mu.RUnlock()

	device := c.DeviceID
	if device == "" {
		device = "webrtc"
	}
	if stream == nil {
		return nil, &camera.AccessError{Device: device, Reason: "no camera connected"}
	}
	if stream.Stopped() {
		return nil, &camera.AccessError{Device: device, Reason: "camera disconnected"}
	}
	if !stream.claim() {
		return nil, &camera.AccessError{Device: device, Reason: "camera in use"}
	}
	return stream, nil
}

func (m *Manager) Get(id string) (*Stream, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.streams[id]
	return s, ok
}

func (m *Manager) List() []*Stream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (m *Manager) Remove(id string) bool {
	s, ok := m.Get(id)
	if !ok {
		return false
	}
	s.Stop()
	return true
}

func (m *Manager) CloseAll() {
	for _, s := range m.List() {
		s.Stop()
	}
}

func (m *Manager) iceServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(m.cfg.ICEServers))
	for _, s := range m.cfg.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, server)
	}

	if len(servers) == 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs: []string{"stun:stun.l.google.com:19302"},
		})
	}
	return servers
}

func (m *Manager) ICEServers() []ICEServerConfig {
	return m.cfg.ICEServers
}

func (m *Manager) Config() Config {
	return m.cfg
}
