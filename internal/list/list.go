package list

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/movieverse/vidstream/internal/catalog"
	"github.com/movieverse/vidstream/internal/config"
)

func NewCommand(catalogConfig *config.Catalog) *Main {
	return &Main{
		Catalog: catalogConfig,
		Out:     os.Stdout,
	}
}

type Main struct {
	Catalog *config.Catalog
	Out     io.Writer

	logger zerolog.Logger
}

func (main *Main) Preflight() {
	main.logger = log.With().Str("service", "list").Logger()
}

// List prints every catalog item with its manifest address.
func (main *Main) List(ctx context.Context, playableOnly bool) error {
	source, err := catalog.New(main.Catalog.Catalog())
	if err != nil {
		return err
	}

	items, err := source.List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(main.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tMANIFEST")

	config := main.Catalog.Catalog()
	for _, item := range items {
		if playableOnly && !item.Playable() {
			continue
		}

		manifest := "-"
		if item.Playable() {
			manifest, err = catalog.ManifestURL(config.CDNBase, config.ProcessedPath, item.ID, config.ManifestName)
			if err != nil {
				main.logger.Warn().Err(err).Str("id", item.ID).Msg("unable to build manifest address")
				manifest = "-"
			}
		}

		status := item.Status
		if status == "" {
			status = catalog.StatusReady
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.ID, item.Title, status, manifest)
	}

	return w.Flush()
}

func (main *Main) Run(cmd *cobra.Command, args []string) {
	playableOnly, _ := cmd.Flags().GetBool("playable")

	if err := main.List(cmd.Context(), playableOnly); err != nil {
		main.logger.Fatal().Err(err).Msg("unable to list catalog")
	}
}
