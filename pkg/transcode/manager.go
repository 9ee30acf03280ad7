package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/movieverse/vidstream/internal/utils"
)

var (
	renditionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidstream_transcode_renditions_total",
		Help: "Total number of encoded renditions, by rendition and result.",
	}, []string{"rendition", "result"})

	renditionSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidstream_transcode_rendition_seconds",
		Help:    "Time spent encoding one rendition.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{"rendition"})
)

type ManagerCtx struct {
	logger zerolog.Logger
	config Config

	events struct {
		onRendition func(rendition Rendition, err error)
	}
}

func New(config *Config) *ManagerCtx {
	return &ManagerCtx{
		logger: log.With().Str("module", "transcode").Str("submodule", "manager").Logger(),
		config: config.withDefaultValues(),
	}
}

// OnRendition is called once per rendition when its encoder finished.
func (m *ManagerCtx) OnRendition(event func(rendition Rendition, err error)) {
	m.events.onRendition = event
}

func (m *ManagerCtx) Process(ctx context.Context, input, outputDir string) (*Result, error) {
	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}

	logger := m.logger.With().Str("input", input).Str("output", outputDir).Logger()
	start := time.Now()

	logger.Info().Msg("fetching metadata")
	metadata, err := ProbeMedia(ctx, m.config.FFprobeBinary, input)
	if err != nil {
		return nil, fmt.Errorf("unable to read media info: %w", err)
	}

	if metadata.Video == nil {
		return nil, ErrNoVideo
	}

	height := metadata.Video.Height
	if height <= 0 {
		logger.Warn().Int("default", m.config.DefaultHeight).Msg("unknown source height, assuming default")
		height = m.config.DefaultHeight
	}

	renditions := FilterLadder(m.config.Ladder, height)
	if len(renditions) == 0 {
		return nil, fmt.Errorf("%w: source is %dp", ErrNothingToProduce, height)
	}

	logger.Info().
		Int("height", height).
		Int("renditions", len(renditions)).
		Int("audios", len(metadata.Audio)).
		Str("duration", metadata.Duration.String()).
		Msg("metadata fetched")

	// a missing master marks the output as incomplete
	master := filepath.Join(outputDir, m.config.MasterName)
	if err := os.Remove(master); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.Parallel)

	for _, rendition := range renditions {
		rendition := rendition
		g.Go(func() error {
			err := m.transcode(gctx, logger, input, outputDir, rendition, len(metadata.Audio) > 0)

			if m.events.onRendition != nil {
				m.events.onRendition(rendition, err)
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := writeFile(master, MasterPlaylist(renditions, m.config.PlaylistName).Bytes()); err != nil {
		return nil, fmt.Errorf("unable to write master playlist: %w", err)
	}

	logger.Info().Str("elapsed", time.Since(start).String()).Msg("transcode finished")

	return &Result{
		Master:       master,
		Duration:     metadata.Duration,
		SourceHeight: height,
		Renditions:   renditions,
	}, nil
}

func (m *ManagerCtx) transcode(ctx context.Context, logger zerolog.Logger, input, outputDir string, rendition Rendition, audio bool) error {
	logger = logger.With().Str("rendition", rendition.Name).Logger()

	dir := filepath.Join(outputDir, rendition.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	logger.Info().Msg("transcoding rendition")
	start := time.Now()

	err := TranscodeRendition(ctx, m.config.FFmpegBinary, RenditionConfig{
		InputFilePath: input,
		OutputDirPath: dir,
		PlaylistName:  m.config.PlaylistName,
		SegmentLength: m.config.SegmentLength,
		Preset:        m.config.Preset,
		Audio:         audio,
		Rendition:     rendition,
	}, utils.LogWriter(logger))

	if err != nil {
		renditionsTotal.WithLabelValues(rendition.Name, "failed").Inc()
		return err
	}

	if _, err := os.Stat(filepath.Join(dir, m.config.PlaylistName)); err != nil {
		renditionsTotal.WithLabelValues(rendition.Name, "failed").Inc()
		return fmt.Errorf("ffmpeg produced no playlist for %s: %w", rendition.Name, err)
	}

	renditionsTotal.WithLabelValues(rendition.Name, "ok").Inc()
	renditionSeconds.WithLabelValues(rendition.Name).Observe(time.Since(start).Seconds())

	logger.Info().Str("elapsed", time.Since(start).String()).Msg("rendition finished")
	return nil
}

// writeFile replaces path at once so readers never see a partial file.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), path)
}
