package hlsproxy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/grafov/m3u8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var segmentTypes = map[string]string{
	".ts":  "video/MP2T",
	".m4s": "video/iso.segment",
	".mp4": "video/mp4",
	".aac": "audio/aac",
	".vtt": "text/vtt",
	".key": "application/octet-stream",
}

type ManagerCtx struct {
	logger zerolog.Logger
	config Config

	cache   map[string]*cacheEntry
	cacheMu sync.RWMutex

	sweepMu   sync.Mutex
	sweepStop chan struct{}
}

func New(config *Config) *ManagerCtx {
	return &ManagerCtx{
		logger: log.With().Str("module", "hlsproxy").Str("submodule", "manager").Logger(),
		config: config.withDefaultValues(),
		cache:  map[string]*cacheEntry{},
	}
}

func (m *ManagerCtx) Shutdown() {
	m.sweepShutdown()
}

func (m *ManagerCtx) ServePlaylist(w http.ResponseWriter, r *http.Request) {
	url := m.config.PlaylistBaseUrl + strings.TrimPrefix(r.URL.RequestURI(), m.config.PlaylistPathPrefix)

	entry, ok := m.lookup(url)
	if !ok {
		resp, err := m.get(url)
		if err != nil {
			m.upstreamFailed(url, err)
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
			return
		}

		entry, err = m.storePlaylist(url, resp)
		if err != nil {
			m.logger.Err(err).Str("url", url).Msg("upstream returned invalid playlist")
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
			return
		}
	}

	m.serve(w, entry)
}

func (m *ManagerCtx) ServeSegment(w http.ResponseWriter, r *http.Request) {
	url := m.config.SegmentBaseUrl + strings.TrimPrefix(r.URL.RequestURI(), m.config.SegmentPathPrefix)
	ext := path.Ext(r.URL.Path)

	entry, ok := m.lookup(url)
	if !ok {
		resp, err := m.get(url)
		if err != nil {
			m.upstreamFailed(url, err)

			code := http.StatusBadGateway
			var upstream *upstreamError
			if errors.As(err, &upstream) {
				code = upstream.code
			}
			http.Error(w, http.StatusText(code), code)
			return
		}

		contentType := resp.Header.Get("Content-Type")

		// playlists without the usual extension still need rewriting
		if kindOf(contentType, ext) == entryPlaylist {
			entry, err = m.storePlaylist(url, resp)
			if err != nil {
				m.logger.Err(err).Str("url", url).Msg("upstream returned invalid playlist")
				http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
				return
			}
		} else {
			entry = m.store(url, entrySegment, segmentType(ext, contentType), resp.Body)
		}
	}

	m.serve(w, entry)
}

func (m *ManagerCtx) serve(w http.ResponseWriter, entry *cacheEntry) {
	w.Header().Set("Content-Type", entry.contentType)
	if entry.kind == entryPlaylist {
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.WriteHeader(http.StatusOK)

	if err := entry.CopyTo(w); err != nil {
		m.logger.Debug().Err(err).Str("kind", entry.kind.String()).Msg("copy interrupted")
	}
}

// storePlaylist refuses to relay anything that is not a playlist and
// rewrites the addresses it references into the proxy.
func (m *ManagerCtx) storePlaylist(url string, resp *http.Response) (*cacheEntry, error) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	if _, _, err := m3u8.DecodeFrom(bytes.NewReader(body), false); err != nil {
		return nil, err
	}

	text := PlaylistUrlWalk(bytes.NewReader(body), func(u string) string {
		return RelativePath(m.config.SegmentBaseUrl, m.config.SegmentPathPrefix, u)
	})

	return m.store(url, entryPlaylist, "application/vnd.apple.mpegurl", strings.NewReader(text)), nil
}

func (m *ManagerCtx) upstreamFailed(url string, err error) {
	var upstream *upstreamError
	if !errors.As(err, &upstream) {
		m.logger.Err(err).Str("url", url).Msg("unable to get HTTP")
		return
	}

	m.logger.Warn().Int("code", upstream.code).Str("url", url).Msg("invalid HTTP response")

	// gone upstream, cached playlists pointing to it are stale
	if upstream.code >= 400 && upstream.code < 500 {
		m.evictRendition(url)
	}
}

type upstreamError struct {
	code int
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("invalid HTTP response %d", e.code)
}

func (m *ManagerCtx) get(url string) (*http.Response, error) {
	resp, err := m.config.Client.Get(url)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &upstreamError{code: resp.StatusCode}
	}

	return resp, nil
}

func segmentType(ext, upstream string) string {
	if contentType, ok := segmentTypes[strings.ToLower(ext)]; ok {
		return contentType
	}
	if upstream != "" {
		return upstream
	}
	return "application/octet-stream"
}
