package history

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eleven-am/live-vision/internal/shared"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  store,
		logger: logger.With("component", "history-handler"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/history", h.List)
	g.GET("/history/:id", h.Get)
}

type ListResponse struct {
	Total    int64            `json:"total"`
	Sessions []*SessionRecord `json:"sessions"`
}

// @Summary      Closed sessions
// @Tags         history
// @Produce      json
// @Param        model_id  query     string  false  "Filter by model"
// @Param        source    query     string  false  "Filter by camera source"
// @Param        limit     query     int     false  "Page size (default 20, max 100)"
// @Param        offset    query     int     false  "Offset"
// @Success      200       {object}  ListResponse
// @Router       /history [get]
func (h *Handler) List(c echo.Context) error {
	limit := 20
	offset := 0
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		offset = o
	}

	records, total, err := h.store.List(c.Request().Context(), ListFilter{
		ModelID: c.QueryParam("model_id"),
		Source:  c.QueryParam("source"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		h.logger.Error("failed to list history", "error", err)
		return shared.InternalError("history_failed", "failed to list history")
	}
	if records == nil {
		records = []*SessionRecord{}
	}

	return c.JSON(http.StatusOK, ListResponse{Total: total, Sessions: records})
}

// @Summary      Closed session
// @Tags         history
// @Produce      json
// @Param        id   path      string  true  "Session ID"
// @Success      200  {object}  SessionRecord
// @Failure      404  {object}  shared.APIError
// @Router       /history/{id} [get]
func (h *Handler) Get(c echo.Context) error {
	rec, err := h.store.GetByID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("session_not_found", "no record for this session")
	}
	if err != nil {
		h.logger.Error("failed to get history record", "error", err)
		return shared.InternalError("history_failed", "failed to get history record")
	}
	return c.JSON(http.StatusOK, rec)
}
