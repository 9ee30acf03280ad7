package player

import (
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/movieverse/vidstream/internal/auth"
	"github.com/movieverse/vidstream/internal/catalog"
)

//go:embed player.html
var playHTML string

var playTemplate = template.Must(template.New("player").Parse(playHTML))

type Source struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Synopsis string `json:"synopsis,omitempty"`
	Manifest string `json:"manifest"`
}

type ModuleCtx struct {
	logger     zerolog.Logger
	pathPrefix string
	router     chi.Router

	resolver *catalog.Resolver
	verifier auth.Verifier
	proxy    Proxy

	mu     sync.RWMutex
	config Config
}

func New(pathPrefix string, config *Config, resolver *catalog.Resolver, verifier auth.Verifier) *ModuleCtx {
	module := &ModuleCtx{
		logger:     log.With().Str("module", "player").Logger(),
		pathPrefix: "/" + strings.Trim(pathPrefix, "/"),
		config:     config.withDefaultValues(),
		resolver:   resolver,
		verifier:   verifier,
	}

	router := chi.NewRouter()
	router.Get(module.pathPrefix+"/{id}", module.watch)
	router.Get(module.pathPrefix+"/{id}/source", module.source)
	module.router = router

	return module
}

// WithProxy routes manifests through proxy.
func (m *ModuleCtx) WithProxy(proxy Proxy) {
	m.proxy = proxy
}

func (m *ModuleCtx) Shutdown() {

}

func (m *ModuleCtx) ConfigReload(config *Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = config.withDefaultValues()
}

func (m *ModuleCtx) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.router.ServeHTTP(w, r)
}

func (m *ModuleCtx) watch(w http.ResponseWriter, r *http.Request) {
	source, ok := m.lookup(w, r)
	if !ok {
		return
	}

	m.mu.RLock()
	config := m.config
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := playTemplate.Execute(w, struct {
		Source Source
		Config Config
	}{source, config})

	if err != nil {
		m.logger.Err(err).Str("id", source.ID).Msg("unable to render player")
	}
}

func (m *ModuleCtx) source(w http.ResponseWriter, r *http.Request) {
	source, ok := m.lookup(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(source)
}

// lookup authenticates the viewer and resolves the item, writing the error response itself.
func (m *ModuleCtx) lookup(w http.ResponseWriter, r *http.Request) (Source, bool) {
	viewer := auth.AuthenticateRequest(m.verifier, r)
	if err := auth.Require(viewer); err != nil {
		m.logger.Debug().Err(viewer.Err).Msg("viewer not authenticated")
		http.Error(w, "401 not authenticated", http.StatusUnauthorized)
		return Source{}, false
	}

	id := chi.URLParam(r, "id")
	item, manifest, err := m.resolver.Resolve(r.Context(), id)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		http.Error(w, "404 video not found", http.StatusNotFound)
		return Source{}, false
	case errors.Is(err, catalog.ErrNotPlayable):
		http.Error(w, "409 video is still processing", http.StatusConflict)
		return Source{}, false
	case err != nil:
		m.logger.Err(err).Str("id", id).Msg("unable to resolve video")
		http.Error(w, "502 catalog unavailable", http.StatusBadGateway)
		return Source{}, false
	}

	return Source{
		ID:       item.ID,
		Title:    item.Title,
		Synopsis: item.Synopsis,
		Manifest: m.proxied(manifest),
	}, true
}

func (m *ModuleCtx) proxied(manifest string) string {
	m.mu.RLock()
	source := m.config.ProxySource
	m.mu.RUnlock()

	if m.proxy == nil || source == "" {
		return manifest
	}

	u, err := url.Parse(manifest)
	if err != nil {
		return manifest
	}

	proxied, ok := m.proxy.URL(source, u.Path)
	if !ok {
		m.logger.Warn().Str("source", source).Msg("unknown proxy source, serving direct address")
		return manifest
	}
	return proxied
}
