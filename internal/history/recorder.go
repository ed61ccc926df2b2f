package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/live-vision/internal/pipeline"
)

const saveTimeout = 5 * time.Second

// Recorder persists a SessionRecord for every closed session.
type Recorder struct {
	store   *Store
	logger  *slog.Logger
	pending sync.WaitGroup
}

func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  store,
		logger: logger.With("component", "history-recorder"),
	}
}

func (r *Recorder) OnEvent(ev pipeline.Event) {
	if ev.Type != pipeline.EventClosed || ev.Summary == nil {
		return
	}
	rec := RecordFromSummary(*ev.Summary)

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := r.store.Save(ctx, rec); err != nil {
			r.logger.Error("failed to save session record", "session_id", rec.ID, "error", err)
			return
		}
		r.logger.Debug("session record saved", "session_id", rec.ID, "results", rec.Results)
	}()
}

func (r *Recorder) Wait() {
	r.pending.Wait()
}
