//go:build !windows
// +build !windows

package process

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movieverse/vidstream/internal/catalog"
	"github.com/movieverse/vidstream/internal/config"
)

const metadata1080 = `{"streams": [{"codec_type": "video", "width": 1920, "height": 1080}, {"codec_type": "audio"}], "format": {"duration": "30.0"}}`

func writeScript(t *testing.T, name, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// newMain uses stand-in encoders: ffprobe prints metadata, ffmpeg writes a
// playlist to its last argument or fails when ffmpegFails is set.
func newMain(t *testing.T, metadata string, ffmpegFails bool) (*Main, string, string) {
	t.Helper()

	dir := t.TempDir()
	catalogFile := filepath.Join(dir, "catalog.yml")
	require.NoError(t, os.WriteFile(catalogFile, []byte(`items:
  - id: "42"
    title: Night Drive
    status: UPLOADED
`), 0o644))

	input := filepath.Join(dir, "upload.mp4")
	require.NoError(t, os.WriteFile(input, []byte("not really a video"), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), []byte(metadata), 0o644))
	ffprobe := writeScript(t, "ffprobe", "cat '"+filepath.Join(dir, "metadata.json")+"'\n")

	ffmpeg := writeScript(t, "ffmpeg", "for last; do :; done\nprintf '#EXTM3U\\n#EXT-X-ENDLIST\\n' > \"$last\"\n")
	if ffmpegFails {
		ffmpeg = writeScript(t, "ffmpeg", "echo 'Unknown encoder libx264' >&2\nexit 1\n")
	}

	main := NewCommand(&config.Catalog{
		File:          catalogFile,
		CDNBase:       "https://d1.cloudfront.net",
		ProcessedPath: "processed",
		ManifestName:  "master.m3u8",
	})
	main.Transcode = &config.Transcode{
		FFmpegBinary:  ffmpeg,
		FFprobeBinary: ffprobe,
		Output:        filepath.Join(dir, "cdn"),
		Parallel:      2,
	}
	main.Preflight()

	return main, input, filepath.Join(dir, "cdn")
}

func status(t *testing.T, main *Main, id string) *catalog.Item {
	t.Helper()

	item, err := catalog.NewFile(main.Catalog.File).Get(context.Background(), id)
	require.NoError(t, err)
	return item
}

func TestProcess_MarksItemReady(t *testing.T) {
	main, input, cdn := newMain(t, metadata1080, false)

	result, err := main.Process(context.Background(), input, "42", "")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(cdn, "processed", "42", "master.m3u8"), result.Master)
	assert.FileExists(t, result.Master)
	for _, rendition := range []string{"1080p", "720p", "480p", "360p"} {
		assert.FileExists(t, filepath.Join(cdn, "processed", "42", rendition, "index.m3u8"))
	}

	item := status(t, main, "42")
	assert.Equal(t, catalog.StatusReady, item.Status)
	assert.Equal(t, "Night Drive", item.Title)

	// the item now resolves for playback
	source, err := catalog.New(main.Catalog.Catalog())
	require.NoError(t, err)
	_, manifest, err := catalog.NewResolver(source, main.Catalog.Catalog()).Resolve(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "https://d1.cloudfront.net/processed/42/master.m3u8", manifest)
}

func TestProcess_NewItem(t *testing.T) {
	main, input, _ := newMain(t, metadata1080, false)

	_, err := main.Process(context.Background(), input, "43", "Second Feature")
	require.NoError(t, err)

	item := status(t, main, "43")
	assert.Equal(t, catalog.StatusReady, item.Status)
	assert.Equal(t, "Second Feature", item.Title)
}

func TestProcess_Failures(t *testing.T) {
	tests := []struct {
		name        string
		metadata    string
		ffmpegFails bool
		wantStatus  string
	}{
		{name: "encoder fails", metadata: metadata1080, ffmpegFails: true, wantStatus: catalog.StatusFailed},
		{name: "source below the ladder", metadata: `{"streams": [{"codec_type": "video", "height": 144}]}`, wantStatus: catalog.StatusSkipped},
		{name: "unreadable source", metadata: "garbage", wantStatus: catalog.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			main, input, cdn := newMain(t, tt.metadata, tt.ffmpegFails)

			_, err := main.Process(context.Background(), input, "42", "")
			assert.Error(t, err)

			item := status(t, main, "42")
			assert.Equal(t, tt.wantStatus, item.Status)
			assert.False(t, item.Playable())
			assert.NoFileExists(t, filepath.Join(cdn, "processed", "42", "master.m3u8"))
		})
	}
}

func TestProcess_Rejected(t *testing.T) {
	main, input, _ := newMain(t, metadata1080, false)

	_, err := main.Process(context.Background(), input, "../42", "")
	assert.Error(t, err)

	_, err = main.Process(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"), "42", "")
	assert.ErrorIs(t, err, os.ErrNotExist)

	main.Catalog.ListingURL = "https://api.example.com/videos"
	_, err = main.Process(context.Background(), input, "42", "")
	assert.ErrorIs(t, err, catalog.ErrReadOnly)

	// nothing was recorded
	main.Catalog.ListingURL = ""
	assert.Equal(t, "UPLOADED", status(t, main, "42").Status)
}
