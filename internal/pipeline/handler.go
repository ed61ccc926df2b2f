package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/eleven-am/live-vision/internal/camera"
	"github.com/eleven-am/live-vision/internal/overlay"
	"github.com/eleven-am/live-vision/internal/shared"
	"github.com/eleven-am/live-vision/internal/vision"
	"github.com/labstack/echo/v4"
)

const (
	defaultResultLimit = 20
	maxResultLimit     = 200
)

// ResultLog serves recent results after they have left the session.
type ResultLog interface {
	Recent(ctx context.Context, sessionID string, limit int) ([]vision.AnalysisResult, error)
}

type Handler struct {
	manager *Manager
	results ResultLog
	logger  *slog.Logger
}

func NewHandler(mgr *Manager, results ResultLog, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		manager: mgr,
		results: results,
		logger:  logger.With("component", "session-handler"),
	}
}

type OpenSessionRequest struct {
	Source   string `json:"source" example:"webrtc"`
	StreamID string `json:"stream_id,omitempty"`
	ModelID  string `json:"model_id,omitempty" example:"llava-v1.6-7b-q4"`
	ClientID string `json:"client_id,omitempty"`
}

type SessionResponse struct {
	ID       string                  `json:"id"`
	Source   string                  `json:"source"`
	StreamID string                  `json:"stream_id"`
	ModelID  string                  `json:"model_id"`
	Active   bool                    `json:"active"`
	OpenedAt time.Time               `json:"opened_at"`
	Status   Status                  `json:"status"`
	Boxes    []overlay.Box           `json:"boxes,omitempty"`
	Preload  *vision.PreloadResponse `json:"preload,omitempty"`
	Stats    Summary                 `json:"stats"`
}

type ResultsResponse struct {
	SessionID string                  `json:"session_id"`
	Results   []vision.AnalysisResult `json:"results"`
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/sessions", h.Open)
	g.GET("/sessions", h.List)
	g.GET("/sessions/:id", h.Get)
	g.DELETE("/sessions/:id", h.Close)
	g.GET("/sessions/:id/overlay.png", h.Overlay)
	g.GET("/sessions/:id/results", h.Results)
	g.GET("/sources", h.Sources)
}

// @Summary      Open a session
// @Description  Acquires a camera, warms the model and starts periodic analysis
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        request  body      OpenSessionRequest  true  "Camera and model"
// @Success      201      {object}  SessionResponse
// @Failure      400      {object}  shared.APIError
// @Failure      422      {object}  shared.APIError
// @Router       /sessions [post]
func (h *Handler) Open(c echo.Context) error {
	var req OpenSessionRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_request", "invalid request body")
	}

	if req.Source == "" {
		req.Source = SourceStill
		if req.StreamID != "" {
			req.Source = SourceWebRTC
		}
	}
	if req.Source != SourceStill && req.Source != SourceWebRTC {
		return shared.BadRequest("invalid_source", "source must be still or webrtc")
	}

	// Still images come from server configuration only.
	deviceID := ""
	if req.Source == SourceWebRTC {
		deviceID = req.StreamID
	}

	sess, err := h.manager.Open(c.Request().Context(), req.ClientID, OpenOptions{
		Source:   req.Source,
		DeviceID: deviceID,
		ModelID:  req.ModelID,
	})
	if err != nil {
		var accessErr *camera.AccessError
		if errors.As(err, &accessErr) {
			return shared.Unprocessable("camera_unavailable", accessErr.Error(),
				map[string]string{"device": accessErr.Device, "reason": accessErr.Reason})
		}
		h.logger.Error("failed to open session", "error", err)
		return shared.InternalError("open_failed", "failed to open session")
	}

	return c.JSON(http.StatusCreated, sessionToResponse(sess))
}

// @Summary      List sessions
// @Tags         sessions
// @Produce      json
// @Success      200  {array}  SessionResponse
// @Router       /sessions [get]
func (h *Handler) List(c echo.Context) error {
	sessions := h.manager.List()
	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionToResponse(s))
	}
	return c.JSON(http.StatusOK, out)
}

// @Summary      Get a session
// @Tags         sessions
// @Produce      json
// @Param        id   path      string  true  "Session ID"
// @Success      200  {object}  SessionResponse
// @Failure      404  {object}  shared.APIError
// @Router       /sessions/{id} [get]
func (h *Handler) Get(c echo.Context) error {
	sess, ok := h.manager.Get(c.Param("id"))
	if !ok {
		return shared.NotFound("session_not_found", "session not found")
	}
	return c.JSON(http.StatusOK, sessionToResponse(sess))
}

// @Summary      Close a session
// @Description  Stops analysis and releases the camera. Closing an unknown or already closed session succeeds.
// @Tags         sessions
// @Param        id  path  string  true  "Session ID"
// @Success      204  "No Content"
// @Router       /sessions/{id} [delete]
func (h *Handler) Close(c echo.Context) error {
	id := c.Param("id")
	if h.manager.Close(id) {
		h.logger.Info("session closed by request", "session_id", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// @Summary      Overlay image
// @Description  Transparent PNG at the video's native size with the latest detection boxes
// @Tags         sessions
// @Produce      png
// @Param        id   path  string  true  "Session ID"
// @Success      200  {file}    binary
// @Failure      404  {object}  shared.APIError
// @Router       /sessions/{id}/overlay.png [get]
func (h *Handler) Overlay(c echo.Context) error {
	sess, ok := h.manager.Get(c.Param("id"))
	if !ok {
		return shared.NotFound("session_not_found", "session not found")
	}

	data, err := sess.Renderer().PNG()
	if err != nil {
		if errors.Is(err, overlay.ErrDetached) {
			return shared.NotFound("overlay_not_ready", "no overlay drawn yet")
		}
		h.logger.Error("overlay encode failed", "error", err, "session_id", sess.ID())
		return shared.InternalError("overlay_failed", "failed to encode overlay")
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "image/png", data)
}

// @Summary      Recent results
// @Tags         sessions
// @Produce      json
// @Param        id     path      string  true   "Session ID"
// @Param        limit  query     int     false  "Maximum results (default 20)"
// @Success      200    {object}  ResultsResponse
// @Failure      404    {object}  shared.APIError
// @Router       /sessions/{id}/results [get]
func (h *Handler) Results(c echo.Context) error {
	id := c.Param("id")
	limit := defaultResultLimit
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxResultLimit {
			limit = n
		}
	}

	sess, live := h.manager.Get(id)

	if h.results != nil {
		results, err := h.results.Recent(c.Request().Context(), id, limit)
		if err != nil {
			h.logger.Error("failed to read results", "error", err, "session_id", id)
			return shared.InternalError("results_failed", "failed to read results")
		}
		if len(results) > 0 || live {
			return c.JSON(http.StatusOK, ResultsResponse{SessionID: id, Results: results})
		}
	}

	if !live {
		return shared.NotFound("session_not_found", "session not found")
	}

	results := []vision.AnalysisResult{}
	if last := sess.LastResult(); last != nil {
		results = append(results, *last)
	}
	return c.JSON(http.StatusOK, ResultsResponse{SessionID: id, Results: results})
}

// @Summary      Camera sources
// @Tags         sessions
// @Produce      json
// @Success      200  {object}  map[string][]string
// @Router       /sources [get]
func (h *Handler) Sources(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"sources": h.manager.Sources()})
}

func sessionToResponse(s *Session) SessionResponse {
	return SessionResponse{
		ID:       s.ID(),
		Source:   s.Source(),
		StreamID: s.StreamID(),
		ModelID:  s.ModelID(),
		Active:   s.Active(),
		OpenedAt: s.OpenedAt(),
		Status:   s.Status(),
		Boxes:    s.Renderer().Boxes(),
		Preload:  s.Preload(),
		Stats:    s.Summary(),
	}
}
