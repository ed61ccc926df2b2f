package history

import (
	"time"

	"github.com/eleven-am/live-vision/internal/pipeline"
	"github.com/eleven-am/live-vision/internal/shared"
)

// SessionRecord is written once, when a session closes.
type SessionRecord struct {
	ID              string             `gorm:"primaryKey" json:"id"`
	Source          string             `gorm:"not null;index" json:"source"`
	StreamID        string             `json:"stream_id"`
	ModelID         string             `gorm:"index" json:"model_id"`
	OpenedAt        time.Time          `gorm:"not null;index" json:"opened_at"`
	ClosedAt        time.Time          `json:"closed_at"`
	DurationMs      int64              `json:"duration_ms"`
	Dispatched      int64              `json:"dispatched"`
	Results         int64              `json:"results"`
	Failures        int64              `json:"failures"`
	Skipped         int64              `json:"skipped"`
	Discarded       int64              `json:"discarded"`
	Classes         shared.StringSlice `gorm:"type:text" json:"classes"`
	LastState       string             `json:"last_state"`
	LastMessage     string             `json:"last_message,omitempty"`
	LastDescription string             `json:"last_description,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

func RecordFromSummary(s pipeline.Summary) *SessionRecord {
	closedAt := s.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Now()
	}
	return &SessionRecord{
		ID:              s.SessionID,
		Source:          s.Source,
		StreamID:        s.StreamID,
		ModelID:         s.ModelID,
		OpenedAt:        s.OpenedAt,
		ClosedAt:        closedAt,
		DurationMs:      closedAt.Sub(s.OpenedAt).Milliseconds(),
		Dispatched:      int64(s.Dispatched),
		Results:         int64(s.Results),
		Failures:        int64(s.Failures),
		Skipped:         int64(s.Skipped),
		Discarded:       int64(s.Discarded),
		Classes:         shared.StringSlice(s.Classes),
		LastState:       string(s.LastStatus.State),
		LastMessage:     s.LastStatus.Message,
		LastDescription: s.LastStatus.Description,
	}
}
