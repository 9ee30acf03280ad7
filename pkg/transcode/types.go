package transcode

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoVideo          = errors.New("source has no video stream")
	ErrNothingToProduce = errors.New("source is smaller than every rendition")
)

// Rendition is one rung of the bitrate ladder.
type Rendition struct {
	Name         string // also the output folder, e.g. 720p
	Height       int
	VideoBitrate int // in kilobits
	AudioBitrate int // in kilobits
}

// DefaultLadder is ordered from the highest rendition down.
var DefaultLadder = []Rendition{
	{Name: "1080p", Height: 1080, VideoBitrate: 5000, AudioBitrate: 192},
	{Name: "720p", Height: 720, VideoBitrate: 2500, AudioBitrate: 128},
	{Name: "480p", Height: 480, VideoBitrate: 1000, AudioBitrate: 96},
	{Name: "360p", Height: 360, VideoBitrate: 600, AudioBitrate: 64},
}

type Config struct {
	FFmpegBinary  string
	FFprobeBinary string

	Ladder        []Rendition
	DefaultHeight int    // assumed when the source height cannot be read
	SegmentLength int    // target segment duration in seconds
	Preset        string // x264 preset
	PlaylistName  string // rendition playlist file name
	MasterName    string // master playlist file name
	Parallel      int    // renditions encoded at once

	Timeout time.Duration // how long can a whole job take, 0 for no limit
}

func (c Config) withDefaultValues() Config {
	if c.FFmpegBinary == "" {
		c.FFmpegBinary = "ffmpeg"
	}
	if c.FFprobeBinary == "" {
		c.FFprobeBinary = "ffprobe"
	}
	if len(c.Ladder) == 0 {
		c.Ladder = DefaultLadder
	}
	if c.DefaultHeight == 0 {
		c.DefaultHeight = 720
	}
	if c.SegmentLength == 0 {
		c.SegmentLength = 10
	}
	if c.Preset == "" {
		c.Preset = "ultrafast"
	}
	if c.PlaylistName == "" {
		c.PlaylistName = "index.m3u8"
	}
	if c.MasterName == "" {
		c.MasterName = "master.m3u8"
	}
	if c.Parallel <= 0 {
		c.Parallel = 2
	}
	return c
}

// Result describes a finished job.
type Result struct {
	Master       string // path of the written master playlist
	Duration     time.Duration
	SourceHeight int
	Renditions   []Rendition
}

type Manager interface {
	// Process encodes input into outputDir and writes the master playlist last.
	Process(ctx context.Context, input, outputDir string) (*Result, error)
}
