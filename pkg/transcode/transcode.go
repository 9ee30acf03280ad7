package transcode

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
)

type RenditionConfig struct {
	InputFilePath string // Transcoded video input.
	OutputDirPath string // Rendition folder, receives playlist and segments.
	PlaylistName  string
	SegmentLength int
	Preset        string
	Audio         bool // whether the source has audio to encode

	Rendition Rendition
}

func renditionArgs(config RenditionConfig) []string {
	rendition := config.Rendition

	args := []string{
		"-loglevel", "warning",
		"-y",
		"-i", config.InputFilePath,
		"-sn", // No subtitles
	}

	// Video specs
	args = append(args, []string{
		"-vf", fmt.Sprintf("scale=-2:%d", rendition.Height),
		"-codec:v", "libx264",
		"-preset", config.Preset,
		"-b:v", fmt.Sprintf("%dk", rendition.VideoBitrate),
		"-maxrate", fmt.Sprintf("%dk", rendition.VideoBitrate),
		"-bufsize", fmt.Sprintf("%dk", 2*rendition.VideoBitrate),
	}...)

	// Audio specs
	if config.Audio {
		args = append(args, []string{
			"-codec:a", "aac",
			"-b:a", fmt.Sprintf("%dk", rendition.AudioBitrate),
		}...)
	} else {
		args = append(args, "-an")
	}

	// Segmenting specs
	args = append(args, []string{
		"-f", "hls",
		"-hls_time", strconv.Itoa(config.SegmentLength),
		"-hls_list_size", "0",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(config.OutputDirPath, rendition.Name+"_%04d.ts"),
		filepath.Join(config.OutputDirPath, config.PlaylistName),
	}...)

	return args
}

// TranscodeRendition encodes one rung of the ladder and waits for ffmpeg
// to finish. The ffmpeg log goes to stderr.
func TranscodeRendition(ctx context.Context, ffmpegBinary string, config RenditionConfig, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, ffmpegBinary, renditionArgs(config)...)
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg failed for %s: %w", config.Rendition.Name, err)
	}

	return nil
}
