package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/movieverse/vidstream/internal/config"
	"github.com/movieverse/vidstream/internal/process"
)

func init() {
	service := process.NewCommand(catalogConfig)

	command := &cobra.Command{
		Use:   "process <file> <id>",
		Short: "transcode an upload into an adaptive stream",
		Long:  `inspect an uploaded video, encode every fitting rendition of the bitrate ladder, write the master playlist and mark the catalog item ready`,
		Args:  cobra.ExactArgs(2),
		PreRun: func(cmd *cobra.Command, args []string) {
			service.Preflight()
		},
		Run: service.Run,
	}

	command.Flags().String("title", "", "title stored with the catalog item")

	configs := []config.Config{
		service.Transcode,
	}

	onConfigLoad = append(onConfigLoad, func() {
		for _, cfg := range configs {
			cfg.Set()
		}
	})

	for _, cfg := range configs {
		if err := cfg.Init(command); err != nil {
			log.Panic().Err(err).Msg("unable to run process command")
		}
	}

	rootCmd.AddCommand(command)
}
