package hlsengine

import (
	"github.com/movieverse/vidstream/pkg/playback"
)

// Provider constructs one engine per playback attempt.
type Provider struct {
	config Config
}

func NewProvider(config *Config) *Provider {
	return &Provider{
		config: config.withDefaultValues(),
	}
}

// Supported always holds, segments are fetched and demuxed in process.
func (p *Provider) Supported() bool {
	return true
}

func (p *Provider) New(config playback.EngineConfig) (playback.Engine, error) {
	return New(p.config, config), nil
}
