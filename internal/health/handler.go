package health

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/live-vision/internal/pipeline"
	"github.com/eleven-am/live-vision/internal/realtime"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentStatus struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type RuntimeStats struct {
	Goroutines         int    `json:"goroutines"`
	MemoryAllocMB      uint64 `json:"memory_alloc_mb"`
	MemoryTotalAllocMB uint64 `json:"memory_total_alloc_mb"`
	MemorySysMB        uint64 `json:"memory_sys_mb"`
	NumGC              uint32 `json:"num_gc"`
}

type SessionStats struct {
	Active   int `json:"active"`
	InFlight int `json:"in_flight"`
}

type StreamStats struct {
	Connected int `json:"connected"`
	Claimed   int `json:"claimed"`
}

type RequestStats struct {
	TotalRequests     uint64 `json:"total_requests"`
	ActiveConnections int64  `json:"active_connections"`
}

type Stats struct {
	Sessions SessionStats `json:"sessions"`
	Streams  StreamStats  `json:"streams"`
	Requests RequestStats `json:"requests"`
	Runtime  RuntimeStats `json:"runtime"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Stats         Stats                      `json:"stats"`
	Components    map[string]ComponentStatus `json:"components"`
}

type SessionDetail struct {
	SessionID  string         `json:"session_id"`
	Source     string         `json:"source"`
	StreamID   string         `json:"stream_id"`
	ModelID    string         `json:"model_id"`
	State      pipeline.State `json:"state"`
	Message    string         `json:"message,omitempty"`
	Dispatched uint64         `json:"dispatched"`
	Results    uint64         `json:"results"`
	Failures   uint64         `json:"failures"`
}

type SessionsResponse struct {
	Total    int             `json:"total"`
	Sessions []SessionDetail `json:"sessions"`
}

// Backend is the inference service probe.
type Backend interface {
	Health(ctx context.Context) error
}

type SessionLister interface {
	List() []*pipeline.Session
}

type StreamLister interface {
	List() []*realtime.Stream
}

type Handler struct {
	db        *gorm.DB
	redis     *redis.Client
	backend   Backend
	sessions  SessionLister
	streams   StreamLister
	version   string
	startTime time.Time

	totalRequests     uint64
	activeConnections int64
}

// NewHandler accepts nil db and redis; components that are not configured are
// left out of the readiness report.
func NewHandler(
	db *gorm.DB,
	redis *redis.Client,
	backend Backend,
	sessions SessionLister,
	streams StreamLister,
	version string,
) *Handler {
	return &Handler{
		db:        db,
		redis:     redis,
		backend:   backend,
		sessions:  sessions,
		streams:   streams,
		version:   version,
		startTime: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	e.GET("/health/ready", h.Readiness)
	e.GET("/health/sessions", h.Sessions)
}

func (h *Handler) IncrementRequests() {
	atomic.AddUint64(&h.totalRequests, 1)
}

func (h *Handler) IncrementConnections() {
	atomic.AddInt64(&h.activeConnections, 1)
}

func (h *Handler) DecrementConnections() {
	atomic.AddInt64(&h.activeConnections, -1)
}

// @Summary  Liveness probe
// @Tags     health
// @Produce  json
// @Success  200  {object}  map[string]string
// @Router   /health [get]
func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// @Summary  Readiness probe
// @Tags     health
// @Produce  json
// @Success  200  {object}  HealthResponse
// @Failure  503  {object}  HealthResponse
// @Router   /health/ready [get]
func (h *Handler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	type check struct {
		name string
		fn   func(context.Context) ComponentStatus
	}
	checks := []check{{"vision", h.checkBackend}}
	if h.db != nil {
		checks = append(checks, check{"database", h.checkDatabase})
	}
	if h.redis != nil {
		checks = append(checks, check{"redis", h.checkRedis})
	}

	components := make(map[string]ComponentStatus)
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(len(checks))
	for _, ch := range checks {
		go func(name string, fn func(context.Context) ComponentStatus) {
			defer wg.Done()
			status := fn(ctx)
			mu.Lock()
			components[name] = status
			mu.Unlock()
		}(ch.name, ch.fn)
	}
	wg.Wait()

	overallStatus := h.computeOverallStatus(components)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := HealthResponse{
		Status:        overallStatus,
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Stats: Stats{
			Sessions: h.sessionStats(),
			Streams:  h.streamStats(),
			Requests: RequestStats{
				TotalRequests:     atomic.LoadUint64(&h.totalRequests),
				ActiveConnections: atomic.LoadInt64(&h.activeConnections),
			},
			Runtime: RuntimeStats{
				Goroutines:         runtime.NumGoroutine(),
				MemoryAllocMB:      memStats.Alloc / 1024 / 1024,
				MemoryTotalAllocMB: memStats.TotalAlloc / 1024 / 1024,
				MemorySysMB:        memStats.Sys / 1024 / 1024,
				NumGC:              memStats.NumGC,
			},
		},
		Components: components,
	}

	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, resp)
}

// @Summary  Running sessions
// @Tags     health
// @Produce  json
// @Success  200  {object}  SessionsResponse
// @Router   /health/sessions [get]
func (h *Handler) Sessions(c echo.Context) error {
	var sessions []*pipeline.Session
	if h.sessions != nil {
		sessions = h.sessions.List()
	}

	details := make([]SessionDetail, len(sessions))
	for i, s := range sessions {
		summary := s.Summary()
		details[i] = SessionDetail{
			SessionID:  s.ID(),
			Source:     s.Source(),
			StreamID:   s.StreamID(),
			ModelID:    s.ModelID(),
			State:      summary.LastStatus.State,
			Message:    summary.LastStatus.Message,
			Dispatched: summary.Dispatched,
			Results:    summary.Results,
			Failures:   summary.Failures,
		}
	}

	return c.JSON(http.StatusOK, SessionsResponse{
		Total:    len(details),
		Sessions: details,
	})
}

func (h *Handler) sessionStats() SessionStats {
	var stats SessionStats
	if h.sessions == nil {
		return stats
	}
	for _, s := range h.sessions.List() {
		stats.Active++
		if s.Status().State == pipeline.StateAnalyzing {
			stats.InFlight++
		}
	}
	return stats
}

func (h *Handler) streamStats() StreamStats {
	var stats StreamStats
	if h.streams == nil {
		return stats
	}
	for _, s := range h.streams.List() {
		stats.Connected++
		if s.Claimed() {
			stats.Claimed++
		}
	}
	return stats
}

func (h *Handler) checkBackend(ctx context.Context) ComponentStatus {
	start := time.Now()
	if h.backend == nil {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "vision backend not configured",
		}
	}

	if err := h.backend.Health(ctx); err != nil {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     err.Error(),
		}
	}

	return ComponentStatus{
		Status:    StatusHealthy,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func (h *Handler) checkDatabase(ctx context.Context) ComponentStatus {
	start := time.Now()
	sqlDB, err := h.db.DB()
	if err != nil {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "failed to get underlying db",
		}
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "ping failed",
		}
	}

	return ComponentStatus{
		Status:    h.evaluateDBStats(sqlDB.Stats()),
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func (h *Handler) evaluateDBStats(stats sql.DBStats) Status {
	if stats.OpenConnections >= stats.MaxOpenConnections && stats.MaxOpenConnections > 0 {
		return StatusDegraded
	}
	return StatusHealthy
}

func (h *Handler) checkRedis(ctx context.Context) ComponentStatus {
	start := time.Now()
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "ping failed",
		}
	}

	return ComponentStatus{
		Status:    StatusHealthy,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

// computeOverallStatus treats the vision backend as critical. Journal and
// history stores only degrade the service.
func (h *Handler) computeOverallStatus(components map[string]ComponentStatus) Status {
	if status, ok := components["vision"]; ok && status.Status == StatusUnhealthy {
		return StatusUnhealthy
	}

	for _, status := range components {
		if status.Status != StatusHealthy {
			return StatusDegraded
		}
	}
	return StatusHealthy
}
