package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/movieverse/vidstream/internal/config"
	"github.com/movieverse/vidstream/internal/play"
)

func init() {
	service := play.NewCommand(catalogConfig, authConfig, playbackConfig)

	command := &cobra.Command{
		Use:   "play <id|manifest-url>",
		Short: "play a catalog video or manifest address",
		Long:  `play a catalog video or manifest address with an external player, or record it to a file`,
		Args:  cobra.ExactArgs(1),
		PreRun: func(cmd *cobra.Command, args []string) {
			service.Preflight()
		},
		Run: service.Run,
	}

	configs := []config.Config{
		service.Element,
	}

	onConfigLoad = append(onConfigLoad, func() {
		for _, cfg := range configs {
			cfg.Set()
		}
	})

	for _, cfg := range configs {
		if err := cfg.Init(command); err != nil {
			log.Panic().Err(err).Msg("unable to run play command")
		}
	}

	rootCmd.AddCommand(command)
}
