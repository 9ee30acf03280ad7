package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/movieverse/vidstream/internal/catalog"
	"github.com/movieverse/vidstream/internal/config"
	"github.com/movieverse/vidstream/pkg/transcode"
)

var idRegex = regexp.MustCompile(`^[0-9A-Za-z_-]+$`)

func NewCommand(catalogConfig *config.Catalog) *Main {
	return &Main{
		Transcode: &config.Transcode{},
		Catalog:   catalogConfig,
	}
}

type Main struct {
	Transcode *config.Transcode
	Catalog   *config.Catalog

	logger zerolog.Logger
}

func (main *Main) Preflight() {
	main.logger = log.With().Str("service", "process").Logger()
}

// Process turns input into an adaptive stream for item id below the
// processed path and records the outcome in the catalog.
func (main *Main) Process(ctx context.Context, input, id, title string) (*transcode.Result, error) {
	if !idRegex.MatchString(id) {
		return nil, fmt.Errorf("invalid item id %q", id)
	}

	if _, err := os.Stat(input); err != nil {
		return nil, err
	}

	catalogConfig := main.Catalog.Catalog()
	writer, err := catalog.NewWriter(catalogConfig)
	if err != nil {
		return nil, err
	}

	processedPath := catalogConfig.ProcessedPath
	if processedPath == "" {
		processedPath = catalog.DefaultProcessedPath
	}
	manifestName := catalogConfig.ManifestName
	if manifestName == "" {
		manifestName = catalog.DefaultManifestName
	}

	output := filepath.Join(main.Transcode.Output, filepath.FromSlash(processedPath), id)

	if err := main.setStatus(ctx, writer, id, title, catalog.StatusProcessing); err != nil {
		return nil, err
	}

	manager := transcode.New(main.Transcode.Transcode(manifestName))
	manager.OnRendition(func(rendition transcode.Rendition, err error) {
		if err != nil && !errors.Is(err, context.Canceled) {
			main.logger.Warn().Err(err).Str("id", id).Str("rendition", rendition.Name).Msg("rendition failed")
		}
	})

	result, err := manager.Process(ctx, input, output)
	if err != nil {
		status := catalog.StatusFailed
		if errors.Is(err, transcode.ErrNothingToProduce) {
			status = catalog.StatusSkipped
		}

		// the job context may be gone already
		if serr := main.setStatus(context.WithoutCancel(ctx), writer, id, "", status); serr != nil {
			main.logger.Err(serr).Str("id", id).Msg("unable to record failure")
		}
		return nil, fmt.Errorf("unable to process %s: %w", id, err)
	}

	if err := main.setStatus(ctx, writer, id, "", catalog.StatusReady); err != nil {
		return nil, err
	}

	main.logger.Info().
		Str("id", id).
		Str("master", result.Master).
		Int("renditions", len(result.Renditions)).
		Msg("video ready")

	return result, nil
}

func (main *Main) setStatus(ctx context.Context, writer catalog.Writer, id, title, status string) error {
	return writer.Update(ctx, id, func(item *catalog.Item) {
		item.Status = status
		if title != "" {
			item.Title = title
		}
	})
}

func (main *Main) Run(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	title, _ := cmd.Flags().GetString("title")

	result, err := main.Process(ctx, args[0], args[1], title)
	if err != nil {
		main.logger.Fatal().Err(err).Msg("processing failed")
	}

	manifest, err := catalog.ManifestURL(main.Catalog.CDNBase, main.Catalog.ProcessedPath, args[1], main.Catalog.ManifestName)
	if err != nil {
		main.logger.Info().Str("master", result.Master).Msg("processing finished")
		return
	}
	main.logger.Info().Str("master", result.Master).Str("manifest", manifest).Msg("processing finished")
}
