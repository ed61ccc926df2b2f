package events

import (
	"log/slog"
	"time"

	"github.com/eleven-am/live-vision/internal/pipeline"
	"github.com/eleven-am/live-vision/internal/shared"
	"github.com/labstack/echo/v4"
)

type SessionLookup interface {
	Get(id string) (*pipeline.Session, bool)
}

type Handler struct {
	hub      *Hub
	sessions SessionLookup
	logger   *slog.Logger
}

func NewHandler(hub *Hub, sessions SessionLookup, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:      hub,
		sessions: sessions,
		logger:   logger.With("component", "event-handler"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/sessions/:id/events", h.Stream)
}

// @Summary      Session event stream
// @Description  WebSocket of session.status, session.result and session.closed events. The current status is sent first.
// @Tags         sessions
// @Param        id   path  string  true  "Session ID"
// @Success      101  "Switching Protocols"
// @Failure      404  {object}  shared.APIError
// @Router       /sessions/{id}/events [get]
func (h *Handler) Stream(c echo.Context) error {
	id := c.Param("id")
	sess, ok := h.sessions.Get(id)
	if !ok {
		return shared.NotFound("session_not_found", "session not found")
	}

	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return err
	}

	client := NewClient(ws, id, h.logger)
	h.hub.Register(client)
	defer h.hub.Unregister(client)

	status := sess.Status()
	client.Send(pipeline.Event{
		Type:      pipeline.EventStatus,
		SessionID: id,
		Status:    &status,
		Timestamp: time.Now(),
	})
	if !sess.Active() {
		client.finish()
	}

	h.logger.Debug("event client connected", "session_id", id)

	go client.writePump(c.Request().Context())
	client.readPump()

	h.logger.Debug("event client disconnected", "session_id", id)
	return nil
}
