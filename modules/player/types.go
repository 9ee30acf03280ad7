package player

type Config struct {
	ProxySource string // hlsproxy source manifests are routed through, direct CDN when empty
	HlsJsURL    string // engine script used when the browser cannot play HLS natively

	// engine settings handed to the page
	LowLatency       bool
	WorkerOffload    bool
	BackBufferLength int // seconds
	MaxRecoveries    int
	RecoveryWindow   int // seconds
}

func (c Config) withDefaultValues() Config {
	if c.HlsJsURL == "" {
		c.HlsJsURL = "https://cdn.jsdelivr.net/npm/hls.js@1"
	}
	if c.BackBufferLength <= 0 {
		c.BackBufferLength = 90
	}
	if c.RecoveryWindow <= 0 {
		c.RecoveryWindow = 60
	}
	return c
}

// Proxy maps a CDN path to its proxied address.
type Proxy interface {
	URL(source, path string) (string, bool)
}
