package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

type ProbeMediaData struct {
	FormatName []string
	Duration   time.Duration

	Video *ProbeVideoData
	Audio []ProbeAudioData
}

type ProbeVideoData struct {
	Width    int
	Height   int
	Duration time.Duration
}

type ProbeAudioData struct {
	Duration time.Duration
	BitRate  float64
}

// ProbeMedia reads container and stream information with ffprobe.
func ProbeMedia(ctx context.Context, ffprobeBinary string, inputFilePath string) (*ProbeMediaData, error) {
	args := []string{
		"-v", "error", // Hide debug information
		"-show_format",  // Show container information
		"-show_streams", // Show codec information
		"-of", "json",
		inputFilePath,
	}

	cmd := exec.CommandContext(ctx, ffprobeBinary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("ffprobe failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (*ProbeMediaData, error) {
	out := struct {
		Streams []struct {
			CodecName string `json:"codec_name"`
			CodecType string `json:"codec_type"`
			Duration  string `json:"duration"`

			// For video streams.
			Width  int `json:"width"`
			Height int `json:"height"`

			// For audio streams.
			BitRate string `json:"bit_rate"`
		} `json:"streams"`
		Format struct {
			FormatName string `json:"format_name"`
			Duration   string `json:"duration"`
		} `json:"format"`
	}{}

	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unable to parse ffprobe output: %w", err)
	}

	media := ProbeMediaData{}
	for _, stream := range out.Streams {
		duration, err := parseSeconds(stream.Duration)
		if err != nil {
			return nil, fmt.Errorf("unable to parse stream duration: %w", err)
		}

		switch stream.CodecType {
		case "video":
			// the first video stream is the primary one
			if media.Video != nil {
				continue
			}

			media.Video = &ProbeVideoData{
				Width:    stream.Width,
				Height:   stream.Height,
				Duration: duration,
			}
		case "audio":
			var bitRate float64
			if stream.BitRate != "" {
				bitRate, err = strconv.ParseFloat(stream.BitRate, 64)
				if err != nil {
					return nil, fmt.Errorf("unable to parse audio stream bitrate: %w", err)
				}
			}

			media.Audio = append(media.Audio, ProbeAudioData{
				BitRate:  bitRate,
				Duration: duration,
			})
		}
	}

	if out.Format.FormatName != "" {
		media.FormatName = strings.Split(out.Format.FormatName, ",")
	}

	var err error
	media.Duration, err = parseSeconds(out.Format.Duration)
	if err != nil {
		return nil, fmt.Errorf("unable to parse format duration: %w", err)
	}

	return &media, nil
}

// parseSeconds reads ffprobe durations such as "12.480000".
func parseSeconds(value string) (time.Duration, error) {
	if value == "" || value == "N/A" {
		return 0, nil
	}
	return time.ParseDuration(value + "s")
}
