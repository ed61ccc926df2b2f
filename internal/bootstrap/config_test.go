package bootstrap

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"SERVER_ADDR", "VISION_API_BASE", "SCHEDULER_INTERVAL", "REDIS_ADDR", "DATABASE_DSN", "VISION_REQUEST_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	if cfg.ServerAddr != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.ServerAddr)
	}
	if cfg.VisionBaseURL != "http://localhost:8080/api/v1" {
		t.Errorf("unexpected base url %s", cfg.VisionBaseURL)
	}
	if cfg.SchedulerInterval != 3*time.Second || cfg.SchedulerWarmDelay != 500*time.Millisecond || cfg.SchedulerRetryDelay != time.Second {
		t.Errorf("unexpected scheduler timings %v %v %v", cfg.SchedulerInterval, cfg.SchedulerWarmDelay, cfg.SchedulerRetryDelay)
	}
	if cfg.VisionTimeout != 0 {
		t.Errorf("expected no request timeout, got %v", cfg.VisionTimeout)
	}
	if cfg.RedisAddr != "" || cfg.DatabaseDSN != "" {
		t.Error("redis and database should be disabled by default")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("VISION_API_BASE", "http://gpu-box:9000/api/v1/")
	t.Setenv("SCHEDULER_INTERVAL", "5s")
	t.Setenv("SCHEDULER_WARM_DELAY", "250")
	t.Setenv("CAPTURE_QUALITY", "80")
	t.Setenv("JOURNAL_PUBLISH", "true")

	cfg := LoadConfig()
	if cfg.VisionBaseURL != "http://gpu-box:9000/api/v1" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.VisionBaseURL)
	}
	if cfg.SchedulerInterval != 5*time.Second {
		t.Errorf("expected 5s, got %v", cfg.SchedulerInterval)
	}
	if cfg.SchedulerWarmDelay != 250*time.Millisecond {
		t.Errorf("expected bare number as milliseconds, got %v", cfg.SchedulerWarmDelay)
	}
	if cfg.CaptureQuality != 80 {
		t.Errorf("expected 80, got %d", cfg.CaptureQuality)
	}
	if !cfg.JournalPublish {
		t.Error("expected publish enabled")
	}
}

func TestGetEnvDuration_Invalid(t *testing.T) {
	t.Setenv("SOME_DURATION", "soon")
	if got := getEnvDuration("SOME_DURATION", time.Minute); got != time.Minute {
		t.Errorf("expected default on invalid value, got %v", got)
	}
}

func TestParseICEServers(t *testing.T) {
	servers := parseICEServers("stun:a.example.com, turn:b.example.com ,")
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
	if servers[1].URLs[0] != "turn:b.example.com" {
		t.Errorf("expected trimmed url, got %q", servers[1].URLs[0])
	}

	if got := parseICEServers(" , "); len(got) != 1 || got[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Errorf("expected default server, got %v", got)
	}
}
