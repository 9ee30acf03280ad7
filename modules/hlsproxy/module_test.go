package hlsproxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModule(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/processed/7/master.m3u8":
			_, _ = w.Write([]byte("#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=800000\nhttp://" + r.Host + "/processed/7/360p.m3u8\n"))
		case "/processed/7/seg0.ts":
			_, _ = w.Write([]byte{0x47})
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	module := New("/hlsproxy/", &Config{Sources: map[string]string{"cdn": upstream.URL}})
	defer module.Shutdown()

	url, ok := module.URL("cdn", "/processed/7/master.m3u8")
	require.True(t, ok)
	assert.Equal(t, "/hlsproxy/cdn/processed/7/master.m3u8", url)

	_, ok = module.URL("other", "/processed/7/master.m3u8")
	assert.False(t, ok)

	rec := httptest.NewRecorder()
	module.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\n/hlsproxy/cdn/processed/7/360p.m3u8\n")

	rec = httptest.NewRecorder()
	module.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hlsproxy/cdn/processed/7/seg0.ts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte{0x47}, rec.Body.Bytes())

	tests := []struct {
		target string
		code   int
	}{
		{target: "/hlsproxy/unknown/processed/7/master.m3u8", code: http.StatusNotFound},
		{target: "/hlsproxy/bad.name/master.m3u8", code: http.StatusBadRequest},
		{target: "/hlsproxy/cdn", code: http.StatusNotFound},
		{target: "/elsewhere/cdn/master.m3u8", code: http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		module.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
		assert.Equal(t, tt.code, rec.Code, tt.target)
	}
}

func TestModule_ConfigReload(t *testing.T) {
	module := New("/hlsproxy", &Config{Sources: map[string]string{"cdn": "https://d1.cloudfront.net"}})
	defer module.Shutdown()

	_, ok := module.manager("cdn")
	require.True(t, ok)

	module.ConfigReload(&Config{Sources: map[string]string{"backup": "https://d2.cloudfront.net"}})

	_, ok = module.URL("cdn", "master.m3u8")
	assert.False(t, ok)
	_, ok = module.URL("backup", "master.m3u8")
	assert.True(t, ok)
	assert.Empty(t, module.managers)
}
