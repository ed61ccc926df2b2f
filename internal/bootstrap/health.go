package bootstrap

import (
	"github.com/eleven-am/live-vision/internal/health"
	"github.com/eleven-am/live-vision/internal/pipeline"
	"github.com/eleven-am/live-vision/internal/realtime"
	"github.com/eleven-am/live-vision/internal/vision"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const version = "1.0.0"

func ProvideHealthHandler(
	db *gorm.DB,
	rdb *redis.Client,
	client *vision.Client,
	sessions *pipeline.Manager,
	streams *realtime.Manager,
) *health.Handler {
	return health.NewHandler(db, rdb, client, sessions, streams, version)
}

func metricsMiddleware(h *health.Handler) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h.IncrementRequests()
			h.IncrementConnections()
			defer h.DecrementConnections()
			return next(c)
		}
	}
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	e.Use(metricsMiddleware(h))
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
