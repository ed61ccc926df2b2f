package bootstrap

import (
	"log/slog"
	"os"

	"github.com/eleven-am/live-vision/internal/events"
	"github.com/eleven-am/live-vision/internal/history"
	"github.com/eleven-am/live-vision/internal/pipeline"
	"github.com/eleven-am/live-vision/internal/realtime"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/fx"
)

type HandlerParams struct {
	fx.In

	SessionHandler *pipeline.Handler
	EventHandler   *events.Handler
	CameraHandler  *realtime.Handler
	HistoryHandler *history.Handler
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	api := e.Group("/api/v1")

	params.SessionHandler.RegisterRoutes(api)
	params.EventHandler.RegisterRoutes(api)
	params.CameraHandler.RegisterRoutes(api)
	if params.HistoryHandler != nil {
		params.HistoryHandler.RegisterRoutes(api)
	}

	e.GET("/swagger/*", echoSwagger.WrapHandler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	return logger
}

func ProvideSessionHandler(mgr *pipeline.Manager, results pipeline.ResultLog, logger *slog.Logger) *pipeline.Handler {
	return pipeline.NewHandler(mgr, results, logger.With("handler", "session"))
}

func ProvideEventHandler(hub *events.Hub, mgr *pipeline.Manager, logger *slog.Logger) *events.Handler {
	return events.NewHandler(hub, mgr, logger.With("handler", "events"))
}

func ProvideCameraHandler(rtc *realtime.Manager, logger *slog.Logger) *realtime.Handler {
	return realtime.NewHandler(rtc, logger.With("handler", "camera"))
}

func ProvideHistoryHandler(store *history.Store, logger *slog.Logger) *history.Handler {
	if store == nil {
		return nil
	}
	return history.NewHandler(store, logger.With("handler", "history"))
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideLogger,
		ProvideSessionHandler,
		ProvideEventHandler,
		ProvideCameraHandler,
		ProvideHistoryHandler,
	),
	fx.Invoke(RegisterRoutes),
)
