package hlsproxy

import (
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/movieverse/vidstream/pkg/hlsproxy"
)

var resourceRegex = regexp.MustCompile(`^[0-9A-Za-z_-]+$`)

type ModuleCtx struct {
	logger     zerolog.Logger
	pathPrefix string

	mu       sync.Mutex
	config   Config
	managers map[string]hlsproxy.Manager
}

func New(pathPrefix string, config *Config) *ModuleCtx {
	module := &ModuleCtx{
		logger:     log.With().Str("module", "hlsproxy").Logger(),
		pathPrefix: "/" + strings.Trim(pathPrefix, "/") + "/",
		config:     config.withDefaultValues(),

		managers: make(map[string]hlsproxy.Manager),
	}

	return module
}

func (m *ModuleCtx) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, manager := range m.managers {
		manager.Shutdown()
		delete(m.managers, name)
	}
}

// ConfigReload drops all managers, they are recreated on demand.
func (m *ModuleCtx) ConfigReload(config *Config) {
	m.Shutdown()

	m.mu.Lock()
	m.config = config.withDefaultValues()
	m.mu.Unlock()

	m.logger.Info().Interface("sources", config.Sources).Msg("config reloaded")
}

// URL returns the proxied address of p on source, false when the source is unknown.
func (m *ModuleCtx) URL(source, p string) (string, bool) {
	m.mu.Lock()
	_, ok := m.config.Sources[source]
	m.mu.Unlock()

	if !ok {
		return "", false
	}

	return m.pathPrefix + source + "/" + strings.TrimLeft(p, "/"), true
}

func (m *ModuleCtx) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, m.pathPrefix) {
		http.NotFound(w, r)
		return
	}

	p := r.URL.Path
	// remove path prefix
	p = strings.TrimPrefix(p, m.pathPrefix)
	// split path to parts
	s := strings.Split(p, "/")

	// we need the source name and a resource
	if len(s) < 2 || s[1] == "" {
		http.NotFound(w, r)
		return
	}

	sourceName := s[0]

	// check if parameters match regex
	if !resourceRegex.MatchString(sourceName) {
		http.Error(w, "400 invalid parameters", http.StatusBadRequest)
		return
	}

	manager, ok := m.manager(sourceName)
	if !ok {
		http.Error(w, "404 source not found", http.StatusNotFound)
		return
	}

	if strings.HasSuffix(r.URL.Path, ".m3u8") {
		manager.ServePlaylist(w, r)
	} else {
		manager.ServeSegment(w, r)
	}
}

func (m *ModuleCtx) manager(sourceName string) (hlsproxy.Manager, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	manager, ok := m.managers[sourceName]
	if ok {
		return manager, true
	}

	// find relevant source
	source, ok := m.config.Sources[sourceName]
	if !ok {
		return nil, false
	}

	config := m.config.Config
	config.PlaylistBaseUrl = source
	config.PlaylistPathPrefix = m.pathPrefix + sourceName

	// create new manager
	manager = hlsproxy.New(&config)
	m.managers[sourceName] = manager

	m.logger.Debug().Str("source", sourceName).Str("url", source).Msg("manager created")
	return manager, true
}
