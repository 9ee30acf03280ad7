package serve

import (
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/movieverse/vidstream/internal/auth"
	"github.com/movieverse/vidstream/internal/catalog"
	"github.com/movieverse/vidstream/internal/config"
	"github.com/movieverse/vidstream/internal/server"
	"github.com/movieverse/vidstream/modules"
	"github.com/movieverse/vidstream/modules/hlsproxy"
	"github.com/movieverse/vidstream/modules/player"
)

func NewCommand(catalogConfig *config.Catalog, authConfig *config.Auth, playbackConfig *config.Playback) *Main {
	return &Main{
		Config:   &Config{},
		Catalog:  catalogConfig,
		Auth:     authConfig,
		Playback: playbackConfig,
	}
}

type Main struct {
	Config   *Config
	Catalog  *config.Catalog
	Auth     *config.Auth
	Playback *config.Playback

	logger   zerolog.Logger
	server   *server.ServerManagerCtx
	hlsProxy *hlsproxy.ModuleCtx
	player   *player.ModuleCtx
	modules  map[string]modules.Module
}

func (main *Main) Preflight() {
	main.logger = log.With().Str("service", "main").Logger()
}

func (main *Main) playerConfig() *player.Config {
	return &player.Config{
		ProxySource:      main.Config.ProxySource,
		HlsJsURL:         main.Config.HlsJsURL,
		LowLatency:       main.Playback.LowLatency,
		WorkerOffload:    main.Playback.WorkerOffload,
		BackBufferLength: int(main.Playback.BackBuffer.Seconds()),
		MaxRecoveries:    main.Playback.MaxRecoveries,
		RecoveryWindow:   int(main.Playback.RecoveryWindow.Seconds()),
	}
}

func (main *Main) mount(name, pathPrefix string, module modules.Module) {
	if main.modules == nil {
		main.modules = map[string]modules.Module{}
	}

	main.modules[name] = module
	main.server.Handle(pathPrefix, module)
	main.logger.Info().Str("path", pathPrefix).Msgf("%s registered", name)
}

func (main *Main) start() error {
	config := main.Config

	source, err := catalog.New(main.Catalog.Catalog())
	if err != nil {
		return err
	}

	main.server = server.New(&config.Config)

	if len(config.HlsProxy) > 0 {
		main.hlsProxy = hlsproxy.New("/hlsproxy/", &hlsproxy.Config{
			Sources: config.HlsProxy,
		})
		main.mount("hlsProxy", "/hlsproxy/", main.hlsProxy)
		main.logger.Info().Interface("hls-proxy", config.HlsProxy).Msg("hls proxy is active")
	}

	main.player = player.New("/watch/", main.playerConfig(),
		catalog.NewResolver(source, main.Catalog.Catalog()),
		auth.New(main.Auth.Auth()),
	)
	if main.hlsProxy != nil {
		main.player.WithProxy(main.hlsProxy)
	}
	main.mount("player", "/watch/", main.player)

	main.server.Start()
	return nil
}

// ConfigReload applies changed module settings without restarting the server.
func (main *Main) ConfigReload() {
	if main.hlsProxy != nil {
		main.hlsProxy.ConfigReload(&hlsproxy.Config{
			Sources: main.Config.HlsProxy,
		})
	}

	if main.player != nil {
		main.player.ConfigReload(main.playerConfig())
	}
}

func (main *Main) shutdown() {
	err := main.server.Shutdown()
	main.logger.Err(err).Msg("http manager shutdown")

	for name, module := range main.modules {
		module.Shutdown()
		main.logger.Info().Msgf("%s shutdown", name)
	}
}

func (main *Main) Run(cmd *cobra.Command, args []string) {
	main.logger.Info().Msg("starting main server")
	if err := main.start(); err != nil {
		main.logger.Fatal().Err(err).Msg("unable to start main server")
	}
	main.logger.Info().Msg("main ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	sig := <-quit

	main.logger.Warn().Msgf("received %s, attempting graceful shutdown", sig)
	main.shutdown()
	main.logger.Info().Msg("shutdown complete")
}
