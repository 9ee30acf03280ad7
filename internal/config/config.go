package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/movieverse/vidstream/internal/auth"
	"github.com/movieverse/vidstream/internal/catalog"
	"github.com/movieverse/vidstream/pkg/element"
	"github.com/movieverse/vidstream/pkg/hlsengine"
	"github.com/movieverse/vidstream/pkg/playback"
	"github.com/movieverse/vidstream/pkg/transcode"
)

type Config interface {
	Init(cmd *cobra.Command) error
	Set()
}

//
// Catalog
//

type Catalog struct {
	ListingURL    string
	Token         string
	File          string
	CDNBase       string
	ProcessedPath string
	ManifestName  string
}

func (Catalog) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("catalog.listing-url", "", "JSON endpoint listing the video catalog")
	if err := viper.BindPFlag("catalog.listing-url", cmd.PersistentFlags().Lookup("catalog.listing-url")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("catalog.token", "", "bearer token sent to the listing endpoint")
	if err := viper.BindPFlag("catalog.token", cmd.PersistentFlags().Lookup("catalog.token")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("catalog.file", "", "YAML catalog file, used when no listing endpoint is set")
	if err := viper.BindPFlag("catalog.file", cmd.PersistentFlags().Lookup("catalog.file")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("catalog.cdn-base", "", "CDN base address processed videos are served from")
	if err := viper.BindPFlag("catalog.cdn-base", cmd.PersistentFlags().Lookup("catalog.cdn-base")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("catalog.processed-path", catalog.DefaultProcessedPath, "CDN directory holding processed videos")
	if err := viper.BindPFlag("catalog.processed-path", cmd.PersistentFlags().Lookup("catalog.processed-path")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("catalog.manifest-name", catalog.DefaultManifestName, "master manifest file name")
	if err := viper.BindPFlag("catalog.manifest-name", cmd.PersistentFlags().Lookup("catalog.manifest-name")); err != nil {
		return err
	}

	return nil
}

func (c *Catalog) Set() {
	c.ListingURL = viper.GetString("catalog.listing-url")
	c.Token = viper.GetString("catalog.token")
	c.File = viper.GetString("catalog.file")
	c.CDNBase = viper.GetString("catalog.cdn-base")
	c.ProcessedPath = viper.GetString("catalog.processed-path")
	c.ManifestName = viper.GetString("catalog.manifest-name")
}

func (c *Catalog) Catalog() *catalog.Config {
	return &catalog.Config{
		ListingURL:    c.ListingURL,
		Token:         c.Token,
		File:          c.File,
		CDNBase:       c.CDNBase,
		ProcessedPath: c.ProcessedPath,
		ManifestName:  c.ManifestName,
	}
}

//
// Auth
//

type Auth struct {
	Secret    string
	VerifyURL string
	Leeway    time.Duration
	Anonymous bool
	Token     string
}

func (Auth) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("auth.secret", "", "HS256 secret viewer tokens are signed with")
	if err := viper.BindPFlag("auth.secret", cmd.PersistentFlags().Lookup("auth.secret")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("auth.verify-url", "", "authentication endpoint that validates viewer tokens")
	if err := viper.BindPFlag("auth.verify-url", cmd.PersistentFlags().Lookup("auth.verify-url")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("auth.leeway", 30*time.Second, "clock skew tolerated on token expiry")
	if err := viper.BindPFlag("auth.leeway", cmd.PersistentFlags().Lookup("auth.leeway")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("auth.anonymous", false, "treat every viewer as authenticated")
	if err := viper.BindPFlag("auth.anonymous", cmd.PersistentFlags().Lookup("auth.anonymous")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("auth.token", "", "viewer token used by the command line player")
	if err := viper.BindPFlag("auth.token", cmd.PersistentFlags().Lookup("auth.token")); err != nil {
		return err
	}

	return nil
}

func (a *Auth) Set() {
	a.Secret = viper.GetString("auth.secret")
	a.VerifyURL = viper.GetString("auth.verify-url")
	a.Leeway = viper.GetDuration("auth.leeway")
	a.Anonymous = viper.GetBool("auth.anonymous")
	a.Token = viper.GetString("auth.token")
}

func (a *Auth) Auth() *auth.Config {
	return &auth.Config{
		Secret:    a.Secret,
		VerifyURL: a.VerifyURL,
		Leeway:    a.Leeway,
		Anonymous: a.Anonymous,
	}
}

//
// Playback
//

type Playback struct {
	EngineEnabled    bool
	WorkerOffload    bool
	LowLatency       bool
	BackBuffer       time.Duration
	MaxRecoveries    int
	RecoveryWindow   time.Duration
	MaxBandwidth     int
	MaxFetchRetries  int
	PrefetchSegments int
}

func (Playback) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().Bool("playback.engine", true, "use the built-in HLS engine when the player cannot open HLS itself")
	if err := viper.BindPFlag("playback.engine", cmd.PersistentFlags().Lookup("playback.engine")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("playback.worker-offload", true, "fetch segments in a background worker")
	if err := viper.BindPFlag("playback.worker-offload", cmd.PersistentFlags().Lookup("playback.worker-offload")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("playback.low-latency", true, "start live streams at the live edge")
	if err := viper.BindPFlag("playback.low-latency", cmd.PersistentFlags().Lookup("playback.low-latency")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("playback.back-buffer", 90*time.Second, "already played media kept by the engine")
	if err := viper.BindPFlag("playback.back-buffer", cmd.PersistentFlags().Lookup("playback.back-buffer")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("playback.max-recoveries", 10, "fatal fault recoveries allowed per window, 0 for unlimited")
	if err := viper.BindPFlag("playback.max-recoveries", cmd.PersistentFlags().Lookup("playback.max-recoveries")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("playback.recovery-window", time.Minute, "window the recovery limit applies to")
	if err := viper.BindPFlag("playback.recovery-window", cmd.PersistentFlags().Lookup("playback.recovery-window")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("playback.max-bandwidth", 0, "highest variant bandwidth in bits per second, 0 for no cap")
	if err := viper.BindPFlag("playback.max-bandwidth", cmd.PersistentFlags().Lookup("playback.max-bandwidth")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("playback.fetch-retries", 3, "failed fetches before a network fault is fatal")
	if err := viper.BindPFlag("playback.fetch-retries", cmd.PersistentFlags().Lookup("playback.fetch-retries")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("playback.prefetch", 3, "segments fetched ahead with worker offload")
	if err := viper.BindPFlag("playback.prefetch", cmd.PersistentFlags().Lookup("playback.prefetch")); err != nil {
		return err
	}

	return nil
}

func (p *Playback) Set() {
	p.EngineEnabled = viper.GetBool("playback.engine")
	p.WorkerOffload = viper.GetBool("playback.worker-offload")
	p.LowLatency = viper.GetBool("playback.low-latency")
	p.BackBuffer = viper.GetDuration("playback.back-buffer")
	p.MaxRecoveries = viper.GetInt("playback.max-recoveries")
	p.RecoveryWindow = viper.GetDuration("playback.recovery-window")
	p.MaxBandwidth = viper.GetInt("playback.max-bandwidth")
	p.MaxFetchRetries = viper.GetInt("playback.fetch-retries")
	p.PrefetchSegments = viper.GetInt("playback.prefetch")
}

func (p *Playback) Playback() *playback.Config {
	return &playback.Config{
		EngineEnabled:    p.EngineEnabled,
		WorkerOffload:    p.WorkerOffload,
		LowLatencyMode:   p.LowLatency,
		BackBufferWindow: p.BackBuffer,
		MaxRecoveries:    p.MaxRecoveries,
		RecoveryWindow:   p.RecoveryWindow,
	}
}

func (p *Playback) Engine() *hlsengine.Config {
	return &hlsengine.Config{
		MaxBandwidth:     p.MaxBandwidth,
		MaxFetchRetries:  p.MaxFetchRetries,
		PrefetchSegments: p.PrefetchSegments,
	}
}

//
// Element
//

type Element struct {
	Binary    string
	Args      []string
	NativeHLS bool
	StdinArg  string
	Output    string
}

func (Element) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("element.binary", "mpv", "player executable")
	if err := viper.BindPFlag("element.binary", cmd.PersistentFlags().Lookup("element.binary")); err != nil {
		return err
	}

	cmd.PersistentFlags().StringSlice("element.args", []string{}, "arguments passed to the player before the source")
	if err := viper.BindPFlag("element.args", cmd.PersistentFlags().Lookup("element.args")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("element.native-hls", false, "player opens HLS addresses on its own")
	if err := viper.BindPFlag("element.native-hls", cmd.PersistentFlags().Lookup("element.native-hls")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("element.stdin-arg", "-", "source argument that makes the player read stdin")
	if err := viper.BindPFlag("element.stdin-arg", cmd.PersistentFlags().Lookup("element.stdin-arg")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("element.output", "", "record the stream into this file instead of starting a player")
	if err := viper.BindPFlag("element.output", cmd.PersistentFlags().Lookup("element.output")); err != nil {
		return err
	}

	return nil
}

func (e *Element) Set() {
	e.Binary = viper.GetString("element.binary")
	e.Args = viper.GetStringSlice("element.args")
	e.NativeHLS = viper.GetBool("element.native-hls")
	e.StdinArg = viper.GetString("element.stdin-arg")
	e.Output = viper.GetString("element.output")
}

func (e *Element) Element() *element.Config {
	return &element.Config{
		Binary:    e.Binary,
		Args:      e.Args,
		NativeHLS: e.NativeHLS,
		StdinArg:  e.StdinArg,
	}
}

//
// Transcode
//

type Transcode struct {
	FFmpegBinary  string
	FFprobeBinary string
	Output        string
	SegmentLength int
	Preset        string
	Parallel      int
	Timeout       time.Duration
}

func (Transcode) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("transcode.ffmpeg", "ffmpeg", "ffmpeg executable")
	if err := viper.BindPFlag("transcode.ffmpeg", cmd.PersistentFlags().Lookup("transcode.ffmpeg")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("transcode.ffprobe", "ffprobe", "ffprobe executable")
	if err := viper.BindPFlag("transcode.ffprobe", cmd.PersistentFlags().Lookup("transcode.ffprobe")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("transcode.output", ".", "directory served by the CDN, processed videos go below it")
	if err := viper.BindPFlag("transcode.output", cmd.PersistentFlags().Lookup("transcode.output")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("transcode.segment-length", 10, "target segment duration in seconds")
	if err := viper.BindPFlag("transcode.segment-length", cmd.PersistentFlags().Lookup("transcode.segment-length")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("transcode.preset", "ultrafast", "x264 preset")
	if err := viper.BindPFlag("transcode.preset", cmd.PersistentFlags().Lookup("transcode.preset")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("transcode.parallel", 2, "renditions encoded at once")
	if err := viper.BindPFlag("transcode.parallel", cmd.PersistentFlags().Lookup("transcode.parallel")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("transcode.timeout", 0, "limit for a whole job, 0 for none")
	if err := viper.BindPFlag("transcode.timeout", cmd.PersistentFlags().Lookup("transcode.timeout")); err != nil {
		return err
	}

	return nil
}

func (t *Transcode) Set() {
	t.FFmpegBinary = viper.GetString("transcode.ffmpeg")
	t.FFprobeBinary = viper.GetString("transcode.ffprobe")
	t.Output = viper.GetString("transcode.output")
	t.SegmentLength = viper.GetInt("transcode.segment-length")
	t.Preset = viper.GetString("transcode.preset")
	t.Parallel = viper.GetInt("transcode.parallel")
	t.Timeout = viper.GetDuration("transcode.timeout")
}

func (t *Transcode) Transcode(manifestName string) *transcode.Config {
	return &transcode.Config{
		FFmpegBinary:  t.FFmpegBinary,
		FFprobeBinary: t.FFprobeBinary,
		SegmentLength: t.SegmentLength,
		Preset:        t.Preset,
		Parallel:      t.Parallel,
		MasterName:    manifestName,
		Timeout:       t.Timeout,
	}
}
