package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/eleven-am/live-vision/internal/vision"
)

type State string

const (
	StatePreparing State = "preparing"
	StateWaiting   State = "waiting_camera"
	StateStarting  State = "starting"
	StateAnalyzing State = "analyzing"
	StateReady     State = "ready"
	StateError     State = "error"
	StateClosed    State = "closed"
)

// slowDescribeMs is the describer latency above which the first answers are
// assumed to include model load time.
const slowDescribeMs = 10000

type Status struct {
	State          State     `json:"state"`
	Message        string    `json:"message,omitempty"`
	Description    string    `json:"description,omitempty"`
	DetectionCount int       `json:"detection_count"`
	YOLOMs         float64   `json:"yolo_ms"`
	LLaVAMs        float64   `json:"llava_ms"`
	TotalMs        float64   `json:"total_ms"`
	ServerTotalMs  float64   `json:"server_total_ms"`
	RoundTripMs    float64   `json:"round_trip_ms"`
	Tokens         int       `json:"tokens"`
	TokensPerSec   float64   `json:"tokens_per_sec"`
	ModelLoaded    bool      `json:"model_loaded"`
	SlowHint       bool      `json:"slow_hint"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (s Status) with(state State, message string, now time.Time) Status {
	s.State = state
	s.Message = message
	s.UpdatedAt = now
	return s
}

// statusFromResult derives the user-facing status of one answer. Figures from
// the previous status are replaced, except ModelLoaded which only latches on.
// A backend error wins over any description that came with it.
func statusFromResult(prev Status, res *vision.AnalysisResult, err error, now time.Time) Status {
	tokens := len(strings.Fields(res.Description))

	seconds := res.Latency.Total / 1000
	if seconds <= 0 {
		seconds = res.RoundTrip.Seconds()
	}
	var rate float64
	if seconds > 0 {
		rate = float64(tokens) / seconds
	}

	s := Status{
		State:          StateReady,
		Description:    res.Description,
		DetectionCount: res.DetectionCount,
		YOLOMs:         res.Latency.YOLO,
		LLaVAMs:        res.Latency.LLaVA,
		TotalMs:        res.Latency.YOLO + res.Latency.LLaVA,
		ServerTotalMs:  res.Latency.Total,
		RoundTripMs:    float64(res.RoundTrip) / float64(time.Millisecond),
		Tokens:         tokens,
		TokensPerSec:   rate,
		ModelLoaded:    prev.ModelLoaded || (res.Error == "" && res.HasDescription()),
		SlowHint:       res.Latency.LLaVA > slowDescribeMs,
		UpdatedAt:      now,
	}

	switch {
	case res.Error != "":
		s.State = StateError
		s.Message = res.Error
		if res.HasDescription() {
			s.Message = res.Description
		}
	case res.HasDescription():
		s.Message = res.Description
	case err != nil:
		s.State = StateError
		s.Message = err.Error()
	case len(res.Detections) > 0:
		s.Message = fmt.Sprintf("%d objects detected", len(res.Detections))
	default:
		s.State = StateError
		s.Message = "Analysis failed"
	}
	return s
}

func statusFromError(prev Status, err error, now time.Time) Status {
	return prev.with(StateError, "Request failed: "+err.Error(), now)
}
