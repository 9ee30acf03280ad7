package element

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrRecorderClosed = errors.New("recorder closed")

// RecorderCtx is a headless element that appends received media to a file.
type RecorderCtx struct {
	logger zerolog.Logger
	path   string

	mu      sync.Mutex
	src     string
	file    *os.File
	written int64
	resets  int
	playing bool
	closed  bool
}

func NewRecorder(path string) *RecorderCtx {
	return &RecorderCtx{
		logger: log.With().Str("module", "element").Str("submodule", "recorder").Str("path", path).Logger(),
		path:   path,
	}
}

// CanPlayType is always false, the recorder cannot fetch media by itself.
func (r *RecorderCtx) CanPlayType(mimeType string) bool {
	return false
}

func (r *RecorderCtx) SetSource(uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.src = uri
}

func (r *RecorderCtx) Source() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.src
}

func (r *RecorderCtx) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.playing = false
	return nil
}

func (r *RecorderCtx) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRecorderClosed
	}

	r.playing = true
	return nil
}

func (r *RecorderCtx) SourceBuffer() (io.Writer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRecorderClosed
	}

	if r.file == nil {
		if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
			return nil, err
		}

		file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}

		r.file = file
		r.logger.Debug().Msg("recording started")
	}

	return recorderWriter{r}, nil
}

// ResetSourceBuffer flushes the file. Appends continue at its end.
func (r *RecorderCtx) ResetSourceBuffer() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resets++
	return r.closeFileLocked()
}

func (r *RecorderCtx) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	return r.closeFileLocked()
}

// Written returns the number of bytes recorded so far.
func (r *RecorderCtx) Written() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.written
}

func (r *RecorderCtx) Playing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.playing
}

func (r *RecorderCtx) closeFileLocked() error {
	if r.file == nil {
		return nil
	}

	err := r.file.Close()
	r.file = nil
	r.logger.Err(err).Int64("written", r.written).Msg("recording flushed")
	return err
}

type recorderWriter struct {
	r *RecorderCtx
}

func (w recorderWriter) Write(p []byte) (int, error) {
	w.r.mu.Lock()
	defer w.r.mu.Unlock()

	if w.r.file == nil {
		return 0, ErrSourceReset
	}

	n, err := w.r.file.Write(p)
	w.r.written += int64(n)
	return n, err
}
