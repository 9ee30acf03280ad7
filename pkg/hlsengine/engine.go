package hlsengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/grafov/m3u8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/movieverse/vidstream/pkg/playback"
)

var (
	ErrDestroyed  = errors.New("engine destroyed")
	ErrNoSource   = errors.New("no source loaded")
	ErrNoMedia    = errors.New("no media attached")
	ErrBadAddress = errors.New("invalid manifest address")
)

type EngineCtx struct {
	logger       zerolog.Logger
	config       Config
	engineConfig playback.EngineConfig

	mu         sync.Mutex
	source     *url.URL
	media      *url.URL // selected media playlist
	element    playback.MediaElement
	sink       io.Writer
	next       uint64 // media sequence of the next segment to append
	positioned bool
	parsed     bool
	loading    bool
	destroyed  bool
	back       *backBuffer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	events chan playback.EngineEvent
}

func New(config Config, engineConfig playback.EngineConfig) *EngineCtx {
	config = config.withDefaultValues()
	ctx, cancel := context.WithCancel(context.Background())

	return &EngineCtx{
		logger:       log.With().Str("module", "hlsengine").Logger(),
		config:       config,
		engineConfig: engineConfig,
		back:         newBackBuffer(engineConfig.BackBufferWindow),
		ctx:          ctx,
		cancel:       cancel,
		events:       make(chan playback.EngineEvent, config.EventBuffer),
	}
}

func (e *EngineCtx) Events() <-chan playback.EngineEvent {
	return e.events
}

func (e *EngineCtx) LoadSource(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: %q is not absolute", ErrBadAddress, uri)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return ErrDestroyed
	}

	e.source = u
	e.media = nil
	e.positioned = false
	e.logger.Debug().Str("source", uri).Msg("source loaded")

	if e.element != nil {
		e.startLocked()
	}
	return nil
}

func (e *EngineCtx) AttachMedia(element playback.MediaElement) error {
	if element == nil {
		return ErrNoMedia
	}

	sink, err := element.SourceBuffer()
	if err != nil {
		return fmt.Errorf("unable to open source buffer: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return ErrDestroyed
	}

	e.element = element
	e.sink = sink

	if e.source != nil {
		e.startLocked()
	}
	return nil
}

func (e *EngineCtx) StartLoad() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return ErrDestroyed
	}
	if e.source == nil {
		return ErrNoSource
	}
	if e.element == nil {
		return ErrNoMedia
	}

	e.startLocked()
	return nil
}

// RecoverMediaError resets the element's source buffer and resumes
// appending from the segment that failed.
func (e *EngineCtx) RecoverMediaError() error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return ErrDestroyed
	}
	element := e.element
	e.mu.Unlock()

	if element == nil {
		return ErrNoMedia
	}

	if err := element.ResetSourceBuffer(); err != nil {
		return fmt.Errorf("unable to reset source buffer: %w", err)
	}

	sink, err := element.SourceBuffer()
	if err != nil {
		return fmt.Errorf("unable to reopen source buffer: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.destroyed {
		return ErrDestroyed
	}

	e.sink = sink
	if e.source != nil {
		e.startLocked()
	}
	return nil
}

func (e *EngineCtx) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	element := e.element
	e.element = nil
	e.sink = nil
	e.mu.Unlock()

	e.cancel()

	// detaching unblocks appends waiting on the element
	if element != nil {
		if err := element.ResetSourceBuffer(); err != nil {
			e.logger.Warn().Err(err).Msg("unable to detach media")
		}
	}

	e.wg.Wait()
	close(e.events)
	e.logger.Debug().Msg("engine destroyed")
}

// BackBuffer returns how much played media is retained.
func (e *EngineCtx) BackBuffer() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.back.Duration()
}

// Variant returns the selected media playlist address.
func (e *EngineCtx) Variant() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.media == nil {
		return ""
	}
	return e.media.String()
}

func (e *EngineCtx) startLocked() {
	if e.loading {
		return
	}

	e.loading = true
	e.wg.Add(1)
	go e.run(e.ctx)
}

func (e *EngineCtx) run(ctx context.Context) {
	defer e.wg.Done()

	err := e.load(ctx)

	// a recovery issued in response to the fault below must find the loader stopped
	e.mu.Lock()
	e.loading = false
	e.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	if err == nil {
		e.logger.Info().Msg("stream ended")
		e.emit(ctx, playback.EngineEvent{Type: playback.EventEnded})
		return
	}

	var fault *faultError
	if !errors.As(err, &fault) {
		fault = &faultError{category: playback.FaultOther, details: "loader stopped", err: err}
	}

	e.logger.Warn().Err(fault).Msg("loading stopped")
	e.emit(ctx, fault.event(true))
}

func (e *EngineCtx) load(ctx context.Context) error {
	mediaURL, playlist, err := e.resolveMedia(ctx)
	if err != nil {
		return err
	}

	for {
		e.mu.Lock()
		if !e.positioned {
			e.next = e.startSequence(playlist)
			e.positioned = true
		}
		next := e.next
		parsed := e.parsed
		e.parsed = true
		e.mu.Unlock()

		if !parsed {
			e.logger.Info().Str("variant", mediaURL.String()).Msg("manifest parsed")
			e.emit(ctx, playback.EngineEvent{Type: playback.EventManifestParsed})
		}

		refs := pendingSegments(mediaURL, playlist, next)
		if len(refs) > 0 {
			if err := e.appendSegments(ctx, refs); err != nil {
				return err
			}
		}

		if playlist.Closed {
			return nil
		}

		if err := sleep(ctx, e.pollInterval(playlist)); err != nil {
			return err
		}

		playlist, err = e.fetchMedia(ctx, mediaURL)
		if err != nil {
			return err
		}
	}
}

func (e *EngineCtx) resolveMedia(ctx context.Context) (*url.URL, *m3u8.MediaPlaylist, error) {
	e.mu.Lock()
	source, media := e.source, e.media
	e.mu.Unlock()

	if media != nil {
		playlist, err := e.fetchMedia(ctx, media)
		return media, playlist, err
	}

	playlist, listType, err := e.fetchPlaylist(ctx, source)
	if err != nil {
		return nil, nil, err
	}

	var mediaPlaylist *m3u8.MediaPlaylist
	switch listType {
	case m3u8.MEDIA:
		media = source
		mediaPlaylist = playlist.(*m3u8.MediaPlaylist)
	case m3u8.MASTER:
		variant := selectVariant(playlist.(*m3u8.MasterPlaylist).Variants, e.config.MaxBandwidth)
		if variant == nil {
			return nil, nil, &faultError{category: playback.FaultOther, details: "master playlist has no playable variant"}
		}

		ref, err := url.Parse(variant.URI)
		if err != nil {
			return nil, nil, &faultError{category: playback.FaultOther, details: "invalid variant address", err: err}
		}

		media = source.ResolveReference(ref)
		e.logger.Debug().Str("variant", media.String()).Uint32("bandwidth", variant.Bandwidth).Msg("variant selected")

		mediaPlaylist, err = e.fetchMedia(ctx, media)
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, &faultError{category: playback.FaultOther, details: "unknown playlist type"}
	}

	e.mu.Lock()
	e.media = media
	e.mu.Unlock()

	return media, mediaPlaylist, nil
}

func (e *EngineCtx) fetchPlaylist(ctx context.Context, u *url.URL) (m3u8.Playlist, m3u8.ListType, error) {
	data, err := e.fetch(ctx, u, "manifest")
	if err != nil {
		return nil, 0, err
	}

	playlist, listType, err := decodePlaylist(data)
	if err != nil {
		return nil, 0, &faultError{category: playback.FaultOther, details: "manifest parse failed", err: err}
	}

	return playlist, listType, nil
}

func (e *EngineCtx) fetchMedia(ctx context.Context, u *url.URL) (*m3u8.MediaPlaylist, error) {
	playlist, listType, err := e.fetchPlaylist(ctx, u)
	if err != nil {
		return nil, err
	}

	if listType != m3u8.MEDIA {
		return nil, &faultError{category: playback.FaultOther, details: "expected a media playlist"}
	}

	return playlist.(*m3u8.MediaPlaylist), nil
}

// fetch retries transient failures, reporting each as a non-fatal
// network fault, and fails with a fatal one once retries are exhausted.
func (e *EngineCtx) fetch(ctx context.Context, u *url.URL, what string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= e.config.MaxFetchRetries; attempt++ {
		data, err := get(ctx, e.config.Client, u.String())
		if err == nil {
			return data, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		if attempt == e.config.MaxFetchRetries {
			break
		}

		e.logger.Debug().Err(err).Str("url", u.String()).Int("attempt", attempt).Msg("fetch failed, retrying")
		e.emit(ctx, (&faultError{category: playback.FaultNetwork, details: what + " load failed", err: err}).event(false))

		if err := sleep(ctx, e.config.RetryDelay); err != nil {
			return nil, err
		}
	}

	return nil, &faultError{category: playback.FaultNetwork, details: what + " load failed", err: lastErr}
}

func (e *EngineCtx) appendSegments(ctx context.Context, refs []segmentRef) error {
	if !e.engineConfig.WorkerOffload {
		for _, ref := range refs {
			data, err := e.fetch(ctx, ref.uri, "segment")
			if err != nil {
				return err
			}
			if err := e.appendSegment(ref, data); err != nil {
				return err
			}
		}
		return nil
	}

	type fetched struct {
		ref  segmentRef
		data []byte
	}

	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan fetched, e.config.PrefetchSegments)

	// fetch worker
	g.Go(func() error {
		defer close(queue)

		for _, ref := range refs {
			data, err := e.fetch(gctx, ref.uri, "segment")
			if err != nil {
				return err
			}

			select {
			case queue <- fetched{ref: ref, data: data}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// writer
	g.Go(func() error {
		for item := range queue {
			if err := e.appendSegment(item.ref, item.data); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

func (e *EngineCtx) appendSegment(ref segmentRef, data []byte) error {
	if err := validatePayload(data); err != nil {
		// refetching the same bytes cannot help, skip the segment
		e.mu.Lock()
		e.next = ref.seq + 1
		e.mu.Unlock()
		return &faultError{category: playback.FaultMedia, details: fmt.Sprintf("segment %d not decodable", ref.seq), err: err}
	}

	e.mu.Lock()
	sink := e.sink
	e.mu.Unlock()

	if sink == nil {
		return &faultError{category: playback.FaultMedia, details: "no source buffer", err: ErrNoMedia}
	}

	if _, err := sink.Write(data); err != nil {
		return &faultError{category: playback.FaultMedia, details: fmt.Sprintf("append of segment %d failed", ref.seq), err: err}
	}

	e.mu.Lock()
	e.next = ref.seq + 1
	e.back.add(ref.seq, ref.duration)
	e.mu.Unlock()
	return nil
}

func (e *EngineCtx) startSequence(playlist *m3u8.MediaPlaylist) uint64 {
	count := len(segmentsOf(playlist))
	if playlist.Closed || count == 0 {
		return playlist.SeqNo
	}

	edge := e.config.LiveEdgeSegments
	if e.engineConfig.LowLatencyMode {
		edge = 1
	}

	if count > edge {
		return playlist.SeqNo + uint64(count-edge)
	}
	return playlist.SeqNo
}

func (e *EngineCtx) pollInterval(playlist *m3u8.MediaPlaylist) time.Duration {
	interval := time.Duration(playlist.TargetDuration * float64(time.Second))
	if e.engineConfig.LowLatencyMode {
		interval /= 2
	}
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	return interval
}

func (e *EngineCtx) emit(ctx context.Context, event playback.EngineEvent) {
	select {
	case e.events <- event:
	case <-ctx.Done():
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
