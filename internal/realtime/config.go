package realtime

import "time"

type Config struct {
	ICEServers []ICEServerConfig
	PortRange  PortRange
	MaxSDPSize int
	// KeyframeInterval is how often a picture-loss indication is sent to the
	// browser. Only key frames are decoded, so this bounds snapshot staleness.
	KeyframeInterval time.Duration
	GatherTimeout    time.Duration
}

type ICEServerConfig struct {
	URLs       []string
	Username   string
	Credential string
}

type PortRange struct {
	Min int
	Max int
}

const (
	defaultMaxSDPSize       = 64 * 1024
	defaultKeyframeInterval = 2 * time.Second
	defaultGatherTimeout    = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxSDPSize <= 0 {
		c.MaxSDPSize = defaultMaxSDPSize
	}
	if c.KeyframeInterval <= 0 {
		c.KeyframeInterval = defaultKeyframeInterval
	}
	if c.GatherTimeout <= 0 {
		c.GatherTimeout = defaultGatherTimeout
	}
	return c
}
