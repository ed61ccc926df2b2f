package bootstrap

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr string
	LogLevel   string

	VisionBaseURL   string
	VisionModel     string
	VisionPrompt    string
	VisionMaxTokens int
	VisionTimeout   time.Duration

	SchedulerInterval   time.Duration
	SchedulerWarmDelay  time.Duration
	SchedulerRetryDelay time.Duration

	CaptureWidth   int
	CaptureHeight  int
	CaptureQuality int

	StillImagePath string

	RTCICEServers []ICEServerConfig
	RTCPortMin    int
	RTCPortMax    int

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	ResultTTL         time.Duration
	JournalMaxResults int
	JournalPublish    bool

	DatabaseDSN string
}

type ICEServerConfig struct {
	URLs       []string
	Username   string
	Credential string
}

// LoadConfig reads an optional .env file and then the process environment.
// Redis and the database are disabled when their address is empty.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded, using process environment", "error", err)
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		VisionBaseURL:   strings.TrimRight(getEnv("VISION_API_BASE", "http://localhost:8080/api/v1"), "/"),
		VisionModel:     getEnv("VISION_MODEL", "llava-v1.6-7b-q4"),
		VisionPrompt:    getEnv("VISION_PROMPT", "Describe what you see in detail"),
		VisionMaxTokens: getEnvInt("VISION_MAX_TOKENS", 100),
		VisionTimeout:   getEnvDuration("VISION_REQUEST_TIMEOUT", 0),

		SchedulerInterval:   getEnvDuration("SCHEDULER_INTERVAL", 3*time.Second),
		SchedulerWarmDelay:  getEnvDuration("SCHEDULER_WARM_DELAY", 500*time.Millisecond),
		SchedulerRetryDelay: getEnvDuration("SCHEDULER_RETRY_DELAY", time.Second),

		CaptureWidth:   getEnvInt("CAPTURE_WIDTH", 640),
		CaptureHeight:  getEnvInt("CAPTURE_HEIGHT", 480),
		CaptureQuality: getEnvInt("CAPTURE_QUALITY", 60),

		StillImagePath: getEnv("STILL_IMAGE_PATH", ""),

		RTCICEServers: parseICEServers(getEnv("RTC_ICE_SERVERS", "stun:stun.l.google.com:19302")),
		RTCPortMin:    getEnvInt("RTC_PORT_MIN", 10000),
		RTCPortMax:    getEnvInt("RTC_PORT_MAX", 20000),

		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		ResultTTL:         getEnvDuration("RESULT_TTL", 10*time.Minute),
		JournalMaxResults: getEnvInt("JOURNAL_MAX_RESULTS", 200),
		JournalPublish:    getEnvBool("JOURNAL_PUBLISH", false),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("3s") or a bare number of milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func parseICEServers(envValue string) []ICEServerConfig {
	if envValue == "" {
		return []ICEServerConfig{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	var servers []ICEServerConfig
	for _, url := range strings.Split(envValue, ",") {
		url = strings.TrimSpace(url)
		if url != "" {
			servers = append(servers, ICEServerConfig{URLs: []string{url}})
		}
	}

	if len(servers) == 0 {
		return []ICEServerConfig{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	return servers
}
