package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/movieverse/vidstream/internal/config"
	"github.com/movieverse/vidstream/internal/serve"
)

func init() {
	service := serve.NewCommand(catalogConfig, authConfig, playbackConfig)

	command := &cobra.Command{
		Use:   "serve",
		Short: "serve watch pages and the hls proxy",
		Long:  `serve watch pages, the hls proxy and playback metrics over http`,
		PreRun: func(cmd *cobra.Command, args []string) {
			service.Preflight()
		},
		Run: service.Run,
	}

	configs := []config.Config{
		service.Config,
	}

	onConfigLoad = append(onConfigLoad, func() {
		for _, cfg := range configs {
			cfg.Set()
		}
		service.ConfigReload()
	})

	for _, cfg := range configs {
		if err := cfg.Init(command); err != nil {
			log.Panic().Err(err).Msg("unable to run serve command")
		}
	}

	rootCmd.AddCommand(command)
}
