package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/eleven-am/live-vision/internal/shared"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	manager *Manager
	log     *slog.Logger
}

func NewHandler(mgr *Manager, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		manager: mgr,
		log:     log.With("component", "rtc-handler"),
	}
}

type OfferRequest struct {
	SDP string `json:"sdp"`
}

type OfferResponse struct {
	StreamID   string      `json:"stream_id"`
	SDP        string      `json:"sdp"`
	ICEServers []ICEServer `json:"ice_servers,omitempty"`
}

type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type StreamResponse struct {
	ID      string `json:"id"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Ready   bool   `json:"ready"`
	Claimed bool   `json:"claimed"`
	Decoded uint64 `json:"decoded_frames"`
	Skipped uint64 `json:"skipped_frames"`
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/cameras", h.HandleOffer)
	g.GET("/cameras", h.ListStreams)
	g.DELETE("/cameras/:id", h.CloseStream)
	g.GET("/ice-servers", h.HandleICEServers)
}

// @Summary      Connect a camera
// @Description  Accepts a WebRTC SDP offer carrying one video track and returns the answer. The X-Stream-Id header names the camera for POST /sessions.
// @Tags         cameras
// @Accept       json
// @Accept       plain
// @Produce      json
// @Produce      plain
// @Param        request  body      OfferRequest  true  "SDP offer"
// @Success      200      {object}  OfferResponse
// @Failure      400      {object}  shared.APIError
// @Failure      500      {object}  shared.APIError
// @Router       /cameras [post]
func (h *Handler) HandleOffer(c echo.Context) error {
	sdp, wantsJSON, err := h.extractSDP(c)
	if err != nil {
		h.log.Debug("failed to extract offer", "error", err)
		return shared.BadRequest("invalid_offer", err.Error())
	}
	if sdp == "" {
		return shared.BadRequest("missing_sdp", "missing sdp")
	}

	stream, answer, err := h.manager.Offer(c.Request().Context(), sdp)
	if err != nil {
		var offerErr *OfferError
		if errors.As(err, &offerErr) {
			return shared.BadRequest("invalid_offer", "failed to process offer")
		}
		h.log.Error("camera negotiation failed", "error", err)
		return shared.InternalError("negotiation_failed", "failed to create answer")
	}

	c.Response().Header().Set("X-Stream-Id", stream.ID())
	if wantsJSON {
		return c.JSON(http.StatusOK, OfferResponse{
			StreamID:   stream.ID(),
			SDP:        answer,
			ICEServers: h.iceServersResponse(),
		})
	}
	return c.Blob(http.StatusOK, "application/sdp", []byte(answer))
}

// @Summary      List cameras
// @Tags         cameras
// @Produce      json
// @Success      200  {array}  StreamResponse
// @Router       /cameras [get]
func (h *Handler) ListStreams(c echo.Context) error {
	streams := h.manager.List()
	out := make([]StreamResponse, 0, len(streams))
	for _, s := range streams {
		out = append(out, streamToResponse(s))
	}
	return c.JSON(http.StatusOK, out)
}

// @Summary      Disconnect a camera
// @Tags         cameras
// @Param        id  path  string  true  "Stream ID"
// @Success      204  "No Content"
// @Failure      404  {object}  shared.APIError
// @Router       /cameras/{id} [delete]
func (h *Handler) CloseStream(c echo.Context) error {
	if !h.manager.Remove(c.Param("id")) {
		return shared.NotFound("stream_not_found", "camera not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// @Summary      ICE servers
// @Tags         cameras
// @Produce      json
// @Success      200  {object}  map[string][]ICEServer
// @Router       /ice-servers [get]
func (h *Handler) HandleICEServers(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]ICEServer{"ice_servers": h.iceServersResponse()})
}

func streamToResponse(s *Stream) StreamResponse {
	w, hgt := s.Dimensions()
	decoded, skipped := s.Stats()
	ready := false
	select {
	case <-s.Ready():
		ready = true
	default:
	}
	return StreamResponse{
		ID:      s.ID(),
		Width:   w,
		Height:  hgt,
		Ready:   ready,
		Claimed: s.Claimed(),
		Decoded: decoded,
		Skipped: skipped,
	}
}

func (h *Handler) iceServersResponse() []ICEServer {
	cfgServers := h.manager.ICEServers()
	servers := make([]ICEServer, 0, len(cfgServers))
	for _, s := range cfgServers {
		servers = append(servers, ICEServer(s))
	}

	if len(servers) == 0 {
		servers = append(servers, ICEServer{
			URLs: []string{"stun:stun.l.google.com:19302"},
		})
	}
	return servers
}

func (h *Handler) extractSDP(c echo.Context) (string, bool, error) {
	contentType := c.Request().Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	limit := int64(h.manager.Config().MaxSDPSize)

	switch mediaType {
	case "application/sdp", "text/plain":
		body, err := io.ReadAll(io.LimitReader(c.Request().Body, limit))
		if err != nil {
			return "", false, fmt.Errorf("failed to read SDP body: %w", err)
		}
		return string(body), false, nil

	case "application/json", "":
		body, err := io.ReadAll(io.LimitReader(c.Request().Body, limit))
		if err != nil {
			return "", true, fmt.Errorf("failed to read request body: %w", err)
		}
		var req OfferRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return "", true, fmt.Errorf("invalid JSON body: %w", err)
		}
		return req.SDP, true, nil

	default:
		return "", false, fmt.Errorf("unsupported content type: %s", contentType)
	}
}
