package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Peer is a receive-only connection carrying one browser camera track.
type Peer struct {
	pc     *webrtc.PeerConnection
	logger *slog.Logger

	keyframeInterval time.Duration

	mu       sync.RWMutex
	onPacket func(*rtp.Packet, string)
	onFailed func()
	closed   chan struct{}
	once     sync.Once
}

func NewPeer(pc *webrtc.PeerConnection, keyframeInterval time.Duration, logger *slog.Logger) (*Peer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return nil, err
	}

	p := &Peer{
		pc:               pc,
		logger:           logger,
		keyframeInterval: keyframeInterval,
		closed:           make(chan struct{}),
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		codec := track.Codec()
		p.logger.Info("remote track",
			"kind", track.Kind().String(),
			"codec", codec.MimeType,
			"clock_rate", codec.ClockRate)
		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		go p.requestKeyframes(track)
		go p.readVideo(track)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.logger.Debug("peer state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			p.mu.RLock()
			onFailed := p.onFailed
			p.mu.RUnlock()
			if onFailed != nil {
				onFailed()
			}
		}
	})

	return p, nil
}

func (p *Peer) readVideo(track *webrtc.TrackRemote) {
	mimeType := track.Codec().MimeType
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			p.logger.Debug("video read ended", "error", err)
			return
		}

		p.mu.RLock()
		cb := p.onPacket
		p.mu.RUnlock()
		if cb != nil {
			cb(pkt, mimeType)
		}
	}
}

// requestKeyframes asks the sender for a fresh key frame on a fixed interval.
// The first request goes out immediately so the stream becomes ready quickly.
func (p *Peer) requestKeyframes(track *webrtc.TrackRemote) {
	ticker := time.NewTicker(p.keyframeInterval)
	defer ticker.Stop()

	for {
		pli := []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}}
		if err := p.pc.WriteRTCP(pli); err != nil {
			p.logger.Debug("keyframe request failed", "error", err)
		}

		select {
		case <-p.closed:
			return
		case <-ticker.C:
		}
	}
}

func (p *Peer) SetOffer(sdp string) error {
	return p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	})
}

// Answer creates the local answer and waits for ICE gathering so the returned
// SDP carries every candidate.
func (p *Peer) Answer(ctx context.Context) (string, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}

	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return "", fmt.Errorf("ice gathering: %w", ctx.Err())
	}

	local := p.pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("no local description")
	}
	return local.SDP, nil
}

func (p *Peer) OnPacket(fn func(*rtp.Packet, string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPacket = fn
}

func (p *Peer) OnFailed(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFailed = fn
}

func (p *Peer) Close() error {
	var err error
	p.once.Do(func() {
		close(p.closed)
		err = p.pc.Close()
	})
	return err
}
