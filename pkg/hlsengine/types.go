package hlsengine

import (
	"net/http"
	"time"
)

type Config struct {
	Client           *http.Client  // used for manifests and segments
	MaxBandwidth     int           // highest variant bandwidth to pick, 0 means no cap
	MaxFetchRetries  int           // consecutive failures before a network fault turns fatal
	RetryDelay       time.Duration // wait between fetch attempts
	PrefetchSegments int           // segments fetched ahead of the writer with worker offload
	EventBuffer      int           // capacity of the event channel
	LiveEdgeSegments int           // segments from the end a live stream starts at
}

func (c Config) withDefaultValues() Config {
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 20 * time.Second}
	}
	if c.MaxFetchRetries <= 0 {
		c.MaxFetchRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.PrefetchSegments <= 0 {
		c.PrefetchSegments = 3
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 32
	}
	if c.LiveEdgeSegments <= 0 {
		c.LiveEdgeSegments = 3
	}
	return c
}
