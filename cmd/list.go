package cmd

import (
	"github.com/spf13/cobra"

	"github.com/movieverse/vidstream/internal/list"
)

func init() {
	service := list.NewCommand(catalogConfig)

	command := &cobra.Command{
		Use:   "list",
		Short: "list catalog videos",
		Long:  `list catalog videos with their status and manifest address`,
		PreRun: func(cmd *cobra.Command, args []string) {
			service.Preflight()
		},
		Run: service.Run,
	}

	command.Flags().Bool("playable", false, "only list videos that finished processing")

	rootCmd.AddCommand(command)
}
