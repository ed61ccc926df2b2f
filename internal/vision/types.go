package vision

import "time"

const (
	DefaultPrompt    = "Describe what you see in detail"
	DefaultModel     = "llava-v1.6-7b-q4"
	DefaultMaxTokens = 100
)

type Config struct {
	BaseURL   string
	Model     string
	Prompt    string
	MaxTokens int
	// Timeout is zero by default: a slow backend delays the next tick instead of failing it.
	Timeout time.Duration
}

type Frame struct {
	SessionID    string
	Timestamp    int64
	Data         []byte
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
}

type AnalysisRequest struct {
	Frame       *Frame
	Prompt      string
	Model       string
	MaxTokens   int
	SubmittedAt time.Time
}

type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (b BoundingBox) Width() float64 {
	return b.X2 - b.X1
}

func (b BoundingBox) Height() float64 {
	return b.Y2 - b.Y1
}

type Detection struct {
	BBox       BoundingBox `json:"bbox"`
	Class      string      `json:"class"`
	Confidence float64     `json:"confidence"`
}

type StageLatency struct {
	YOLO  float64 `json:"yolo"`
	LLaVA float64 `json:"llava"`
	Total float64 `json:"total"`
}

// AnalysisResult keeps detections in the coordinate space of the submitted frame.
type AnalysisResult struct {
	Description    string        `json:"description"`
	Detections     []Detection   `json:"detections"`
	DetectionCount int           `json:"detection_count"`
	Latency        StageLatency  `json:"latency_ms"`
	Error          string        `json:"error,omitempty"`
	FrameWidth     int           `json:"frame_width"`
	FrameHeight    int           `json:"frame_height"`
	Timestamp      int64         `json:"timestamp"`
	RoundTrip      time.Duration `json:"round_trip_ns"`
}

func (r *AnalysisResult) HasDescription() bool {
	return r != nil && r.Description != ""
}

type PreloadResponse struct {
	Status          string  `json:"status"`
	Model           string  `json:"model,omitempty"`
	LoadTimeSeconds float64 `json:"load_time_seconds,omitempty"`
	Message         string  `json:"message,omitempty"`
}
