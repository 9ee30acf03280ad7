package serve

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movieverse/vidstream/internal/config"
	"github.com/movieverse/vidstream/internal/server"
	"github.com/movieverse/vidstream/modules/player"
)

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000
/processed/42/low/index.m3u8
`

func newMain(t *testing.T) *Main {
	t.Helper()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/processed/42/master.m3u8" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(masterPlaylist))
	}))
	t.Cleanup(origin.Close)

	file := filepath.Join(t.TempDir(), "catalog.yml")
	require.NoError(t, os.WriteFile(file, []byte("items:\n  - id: \"42\"\n    title: Night Drive\n"), 0o644))

	main := NewCommand(
		&config.Catalog{File: file, CDNBase: origin.URL},
		&config.Auth{Anonymous: true},
		&config.Playback{BackBuffer: 90 * time.Second, MaxRecoveries: 10, RecoveryWindow: time.Minute},
	)
	main.Config = &Config{
		Config:      server.Config{Bind: "127.0.0.1:0", Metrics: true},
		HlsProxy:    map[string]string{"cdn": origin.URL},
		ProxySource: "cdn",
	}
	main.Preflight()

	require.NoError(t, main.start())
	t.Cleanup(main.shutdown)

	return main
}

func get(main *Main, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	main.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServe_WatchThroughProxy(t *testing.T) {
	main := newMain(t)

	rec := get(main, "/watch/42/source")
	require.Equal(t, http.StatusOK, rec.Code)

	source := player.Source{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&source))
	assert.Equal(t, "/hlsproxy/cdn/processed/42/master.m3u8", source.Manifest)

	rec = get(main, source.Manifest)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/hlsproxy/cdn/processed/42/low/index.m3u8")
}

func TestServe_Endpoints(t *testing.T) {
	main := newMain(t)

	assert.Equal(t, "pong", get(main, "/ping").Body.String())
	assert.Equal(t, http.StatusOK, get(main, "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, get(main, "/hlsproxy/unknown/master.m3u8").Code)
	assert.Equal(t, http.StatusOK, get(main, "/watch/42").Code)
}

func TestServe_ConfigReload(t *testing.T) {
	main := newMain(t)

	main.Config.ProxySource = ""
	main.ConfigReload()

	rec := get(main, "/watch/42/source")
	source := player.Source{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&source))
	assert.Contains(t, source.Manifest, "/processed/42/master.m3u8")
	assert.NotContains(t, source.Manifest, "/hlsproxy/")
}
