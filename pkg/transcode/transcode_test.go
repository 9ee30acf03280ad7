package transcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenditionArgs(t *testing.T) {
	tests := []struct {
		name    string
		audio   bool
		want    []string
		notWant []string
	}{
		{
			name:    "with audio",
			audio:   true,
			want:    []string{"-codec:a aac", "-b:a 128k"},
			notWant: []string{"-an"},
		},
		{
			name:    "video only",
			want:    []string{"-an"},
			notWant: []string{"-codec:a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := renditionArgs(RenditionConfig{
				InputFilePath: "/uploads/in.mp4",
				OutputDirPath: "/srv/processed/42/720p",
				PlaylistName:  "index.m3u8",
				SegmentLength: 10,
				Preset:        "ultrafast",
				Audio:         tt.audio,
				Rendition:     DefaultLadder[1],
			})
			joined := strings.Join(args, " ")

			for _, want := range append([]string{
				"-i /uploads/in.mp4",
				"-vf scale=-2:720",
				"-codec:v libx264",
				"-preset ultrafast",
				"-b:v 2500k",
				"-maxrate 2500k",
				"-f hls",
				"-hls_time 10",
				"-hls_list_size 0",
				"-hls_segment_filename /srv/processed/42/720p/720p_%04d.ts",
			}, tt.want...) {
				assert.Contains(t, joined, want)
			}
			for _, notWant := range tt.notWant {
				assert.NotContains(t, joined, notWant)
			}

			// output goes last
			assert.Equal(t, "/srv/processed/42/720p/index.m3u8", args[len(args)-1])
		})
	}
}
