package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/live-vision/internal/camera"
	"github.com/eleven-am/live-vision/internal/events"
	"github.com/eleven-am/live-vision/internal/history"
	"github.com/eleven-am/live-vision/internal/journal"
	"github.com/eleven-am/live-vision/internal/pipeline"
	"github.com/eleven-am/live-vision/internal/realtime"
	"github.com/eleven-am/live-vision/internal/vision"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideVisionClient(cfg *Config, logger *slog.Logger) *vision.Client {
	return vision.NewClient(vision.Config{
		BaseURL:   cfg.VisionBaseURL,
		Model:     cfg.VisionModel,
		Prompt:    cfg.VisionPrompt,
		MaxTokens: cfg.VisionMaxTokens,
		Timeout:   cfg.VisionTimeout,
	}, logger)
}

func ProvideCapturer(cfg *Config, logger *slog.Logger) *vision.Capturer {
	return vision.NewCapturer(vision.CapturerConfig{
		Width:   cfg.CaptureWidth,
		Height:  cfg.CaptureHeight,
		Quality: cfg.CaptureQuality,
		Logger:  logger,
	})
}

func ProvideRTCConfig(cfg *Config) realtime.Config {
	iceServers := make([]realtime.ICEServerConfig, 0, len(cfg.RTCICEServers))
	for _, s := range cfg.RTCICEServers {
		iceServers = append(iceServers, realtime.ICEServerConfig{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	return realtime.Config{
		ICEServers: iceServers,
		PortRange: realtime.PortRange{
			Min: cfg.RTCPortMin,
			Max: cfg.RTCPortMax,
		},
	}
}

func ProvideRTCManager(cfg realtime.Config, logger *slog.Logger) (*realtime.Manager, error) {
	return realtime.NewManager(cfg, logger)
}

func ProvideStillSource(cfg *Config, logger *slog.Logger) *camera.StillSource {
	return camera.NewStillSource(cfg.StillImagePath, logger)
}

func ProvideSessionManager(
	cfg *Config,
	client *vision.Client,
	capturer *vision.Capturer,
	still *camera.StillSource,
	rtc *realtime.Manager,
	logger *slog.Logger,
) *pipeline.Manager {
	return pipeline.NewManager(pipeline.ControllerConfig{
		Sources: map[string]camera.Source{
			pipeline.SourceStill:  still,
			pipeline.SourceWebRTC: rtc,
		},
		Capturer:   capturer,
		Dispatcher: client,
		Scheduler: pipeline.SchedulerConfig{
			Interval:   cfg.SchedulerInterval,
			WarmDelay:  cfg.SchedulerWarmDelay,
			RetryDelay: cfg.SchedulerRetryDelay,
		},
		Logger:       logger,
		DefaultModel: client.Model(),
	})
}

func ProvideEventHub(logger *slog.Logger) *events.Hub {
	return events.NewHub(logger)
}

func ProvideJournal(rdb *redis.Client, cfg *Config, logger *slog.Logger) *journal.Journal {
	if rdb == nil {
		return nil
	}
	return journal.New(rdb, journal.Config{
		TTL:        cfg.ResultTTL,
		MaxResults: cfg.JournalMaxResults,
		Publish:    cfg.JournalPublish,
	}, logger)
}

// ProvideResultLog keeps a missing journal a nil interface.
func ProvideResultLog(j *journal.Journal) pipeline.ResultLog {
	if j == nil {
		return nil
	}
	return j
}

func ProvideHistoryStore(db *gorm.DB) (*history.Store, error) {
	if db == nil {
		return nil, nil
	}
	store := history.NewStore(db)
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func ProvideHistoryRecorder(store *history.Store, logger *slog.Logger) *history.Recorder {
	if store == nil {
		return nil
	}
	return history.NewRecorder(store, logger)
}

func SubscribeObservers(mgr *pipeline.Manager, hub *events.Hub, j *journal.Journal, rec *history.Recorder, logger *slog.Logger) {
	mgr.Subscribe(hub)
	if j != nil {
		mgr.Subscribe(j)
	}
	if rec != nil {
		mgr.Subscribe(rec)
	}
	logger.Info("session observers attached",
		"journal", j != nil,
		"history", rec != nil)
}

// CloseSessions stops every session before the cameras go away, then waits
// for pending journal and history writes.
func CloseSessions(lc fx.Lifecycle, mgr *pipeline.Manager, rtc *realtime.Manager, hub *events.Hub, j *journal.Journal, rec *history.Recorder) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			mgr.CloseAll()
			rtc.CloseAll()
			hub.CloseAll()
			if j != nil {
				j.Wait()
			}
			if rec != nil {
				rec.Wait()
			}
			return nil
		},
	})
}

var VisionModule = fx.Options(
	fx.Provide(
		ProvideVisionClient,
		ProvideCapturer,
		ProvideRTCConfig,
		ProvideRTCManager,
		ProvideStillSource,
		ProvideSessionManager,
		ProvideEventHub,
		ProvideJournal,
		ProvideResultLog,
		ProvideHistoryStore,
		ProvideHistoryRecorder,
	),
	fx.Invoke(SubscribeObservers, CloseSessions),
)
