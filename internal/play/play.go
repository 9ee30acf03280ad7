package play

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/movieverse/vidstream/internal/auth"
	"github.com/movieverse/vidstream/internal/catalog"
	"github.com/movieverse/vidstream/internal/config"
	"github.com/movieverse/vidstream/pkg/element"
	"github.com/movieverse/vidstream/pkg/hlsengine"
	"github.com/movieverse/vidstream/pkg/playback"
)

var ErrPlayerExited = errors.New("player exited")

type mediaElement interface {
	playback.MediaElement
	io.Closer
}

// streamFeeder is an element that plays out its source buffer after it is
// closed, e.g. an external player reading stdin.
type streamFeeder interface {
	EndOfStream() error
	Running() bool
}

func NewCommand(catalogConfig *config.Catalog, authConfig *config.Auth, playbackConfig *config.Playback) *Main {
	return &Main{
		Element:  &config.Element{},
		Catalog:  catalogConfig,
		Auth:     authConfig,
		Playback: playbackConfig,
	}
}

type Main struct {
	Element  *config.Element
	Catalog  *config.Catalog
	Auth     *config.Auth
	Playback *config.Playback

	logger zerolog.Logger
}

func (main *Main) Preflight() {
	main.logger = log.With().Str("service", "play").Logger()
}

// Play authenticates the viewer, resolves ref to a manifest and plays it
// until the stream ends, the player exits or ctx is done.
func (main *Main) Play(ctx context.Context, ref string) error {
	viewer := auth.Authenticate(ctx, auth.New(main.Auth.Auth()), main.Auth.Token)
	if err := auth.Require(viewer); err != nil {
		return fmt.Errorf("%w: %v", err, viewer.Err)
	}

	manifest, err := main.resolve(ctx, ref)
	if err != nil {
		return err
	}

	el, exited := main.newElement()
	defer el.Close()

	player := playback.New(main.Playback.Playback(), hlsengine.NewProvider(main.Playback.Engine()))
	player.OnStateChange(func(session *playback.Session, state playback.State) {
		main.logger.Debug().Str("session", session.ID()).Str("state", state.String()).Msg("state changed")
	})
	defer player.Shutdown()

	session, err := player.StartPlayback(ctx, el, manifest)
	if err != nil {
		return err
	}
	defer session.Teardown()

	main.logger.Info().
		Str("session", session.ID()).
		Str("path", session.Path().String()).
		Str("manifest", manifest).
		Msg("playback started")

	select {
	case <-session.Ended():
		main.logger.Info().Msg("stream ended")
		return main.drain(ctx, el, session, exited)
	case <-session.Done():
		return session.Err()
	case err := <-exited:
		return fmt.Errorf("%w: %v", ErrPlayerExited, err)
	case <-ctx.Done():
		return nil
	}
}

// drain waits until the player has played everything it was fed.
func (main *Main) drain(ctx context.Context, el mediaElement, session *playback.Session, exited <-chan error) error {
	feeder, ok := el.(streamFeeder)
	if !ok {
		return nil
	}

	if err := feeder.EndOfStream(); err != nil {
		return err
	}

	if !feeder.Running() {
		return nil
	}

	main.logger.Debug().Msg("waiting for the player to finish")

	select {
	case err := <-exited:
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPlayerExited, err)
		}
		return nil
	case <-session.Done():
		return session.Err()
	case <-ctx.Done():
		return nil
	}
}

// resolve accepts a manifest address or a catalog id.
func (main *Main) resolve(ctx context.Context, ref string) (string, error) {
	if u, err := url.Parse(ref); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return ref, nil
	}

	source, err := catalog.New(main.Catalog.Catalog())
	if err != nil {
		return "", err
	}

	item, manifest, err := catalog.NewResolver(source, main.Catalog.Catalog()).Resolve(ctx, ref)
	if err != nil {
		return "", err
	}

	main.logger.Info().Str("id", item.ID).Str("title", item.Title).Msg("resolved video")
	return manifest, nil
}

func (main *Main) newElement() (mediaElement, <-chan error) {
	exited := make(chan error, 1)

	if main.Element.Output != "" {
		return element.NewRecorder(main.Element.Output), exited
	}

	process := element.NewProcess(main.Element.Element())
	process.OnCmdLog(func(message string) {
		main.logger.Debug().Str("player", main.Element.Binary).Msg(message)
	})
	process.OnExit(func(err error) {
		select {
		case exited <- err:
		default:
		}
	})
	return process, exited
}

func (main *Main) Run(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if err := main.Play(ctx, args[0]); err != nil {
		main.logger.Fatal().Err(err).Msg("playback failed")
	}
	main.logger.Info().Msg("playback finished")
}
