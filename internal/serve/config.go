package serve

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/movieverse/vidstream/internal/server"
)

type Config struct {
	server.Config

	HlsProxy    map[string]string
	ProxySource string
	HlsJsURL    string
}

func (c Config) Init(cmd *cobra.Command) error {
	if err := c.Config.Init(cmd); err != nil {
		return err
	}

	cmd.PersistentFlags().String("player.proxy-source", "", "hls-proxy source watch pages route manifests through")
	if err := viper.BindPFlag("player.proxy-source", cmd.PersistentFlags().Lookup("player.proxy-source")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("player.hlsjs-url", "", "hls.js script loaded by watch pages")
	if err := viper.BindPFlag("player.hlsjs-url", cmd.PersistentFlags().Lookup("player.hlsjs-url")); err != nil {
		return err
	}

	return nil
}

func (c *Config) Set() {
	c.Config.Set()

	c.HlsProxy = viper.GetStringMapString("hls-proxy")
	c.ProxySource = viper.GetString("player.proxy-source")
	c.HlsJsURL = viper.GetString("player.hlsjs-url")
}
