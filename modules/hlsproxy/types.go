package hlsproxy

import "github.com/movieverse/vidstream/pkg/hlsproxy"

type Config struct {
	hlsproxy.Config

	// overwritten properties
	PlaylistBaseUrl    string `mapstructure:"-"`
	PlaylistPathPrefix string `mapstructure:"-"`
	SegmentBaseUrl     string `mapstructure:"-"`
	SegmentPathPrefix  string `mapstructure:"-"`

	// source name to CDN base address
	Sources map[string]string
}

func (c Config) withDefaultValues() Config {
	if c.Sources == nil {
		c.Sources = map[string]string{}
	}
	return c
}
