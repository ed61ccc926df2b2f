package pipeline

import (
	"time"

	"github.com/eleven-am/live-vision/internal/overlay"
	"github.com/eleven-am/live-vision/internal/vision"
)

type EventType string

const (
	EventOpened EventType = "session.opened"
	EventStatus EventType = "session.status"
	EventResult EventType = "session.result"
	EventClosed EventType = "session.closed"
)

type Event struct {
	Type      EventType              `json:"type"`
	SessionID string                 `json:"session_id"`
	Status    *Status                `json:"status,omitempty"`
	Result    *vision.AnalysisResult `json:"result,omitempty"`
	Boxes     []overlay.Box          `json:"boxes,omitempty"`
	Summary   *Summary               `json:"summary,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Summary describes a session as a whole. It rides on opened and closed
// events so observers never need to call back into the session.
type Summary struct {
	SessionID  string    `json:"session_id"`
	Source     string    `json:"source"`
	StreamID   string    `json:"stream_id"`
	ModelID    string    `json:"model_id"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
	Dispatched uint64    `json:"dispatched"`
	Skipped    uint64    `json:"skipped"`
	NotReady   uint64    `json:"not_ready"`
	Results    uint64    `json:"results"`
	Failures   uint64    `json:"failures"`
	Discarded  uint64    `json:"discarded"`
	Classes    []string  `json:"classes,omitempty"`
	LastStatus Status    `json:"last_status"`
}

// Observer receives every session event. Implementations must not block.
type Observer interface {
	OnEvent(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(ev Event) {
	f(ev)
}

type observers []Observer

func (o observers) OnEvent(ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.OnEvent(ev)
		}
	}
}
