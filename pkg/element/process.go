package element

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/movieverse/vidstream/internal/utils"
	"github.com/movieverse/vidstream/pkg/playback"
)

type process struct {
	cmd     *exec.Cmd
	done    chan struct{}
	stopped atomic.Bool
}

func (p *process) running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ProcessCtx drives an external player. With a source set the player opens
// it itself, otherwise it is fed from the source buffer over stdin.
type ProcessCtx struct {
	logger zerolog.Logger
	config Config

	mu     sync.Mutex
	src    string
	proc   *process
	reader *io.PipeReader
	writer *io.PipeWriter
	resume bool // restart the player with the next source buffer

	events struct {
		onStart  func()
		onCmdLog func(message string)
		onExit   func(err error)
	}
}

func NewProcess(config *Config) *ProcessCtx {
	return &ProcessCtx{
		logger: log.With().Str("module", "element").Str("submodule", "process").Logger(),
		config: config.withDefaultValues(),
	}
}

func (p *ProcessCtx) CanPlayType(mimeType string) bool {
	return p.config.NativeHLS && mimeType == playback.HLSMimeType
}

func (p *ProcessCtx) SetSource(uri string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.src = uri
}

func (p *ProcessCtx) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.src
}

// Load stops whatever is playing. A non-empty source must be playable.
func (p *ProcessCtx) Load() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.closePipeLocked()
	p.resume = false

	if p.src == "" {
		return nil
	}

	if _, err := exec.LookPath(p.config.Binary); err != nil {
		return fmt.Errorf("player %q not available: %w", p.config.Binary, err)
	}
	return nil
}

func (p *ProcessCtx) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.proc != nil && p.proc.running() {
		return nil
	}

	return p.startLocked()
}

func (p *ProcessCtx) SourceBuffer() (io.Writer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		p.reader, p.writer = io.Pipe()
	}

	if p.resume {
		p.resume = false
		if err := p.startLocked(); err != nil {
			return nil, err
		}
	}

	return p.writer, nil
}

// ResetSourceBuffer kills the player and fails pending appends. A player
// that was running comes back with the next source buffer.
func (p *ProcessCtx) ResetSourceBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	wasRunning := p.proc != nil && p.proc.running()
	p.stopLocked()
	p.closePipeLocked()
	p.resume = wasRunning && p.src == ""
	return nil
}

// EndOfStream closes the source buffer without an error. The player reads
// what is still buffered, sees end of file and exits on its own.
func (p *ProcessCtx) EndOfStream() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resume = false
	if p.writer == nil {
		return nil
	}

	err := p.writer.Close()
	p.reader, p.writer = nil, nil
	return err
}

// Close stops the player and releases the source buffer.
func (p *ProcessCtx) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.closePipeLocked()
	p.resume = false
	return nil
}

// Running reports whether the player process is alive.
func (p *ProcessCtx) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.proc != nil && p.proc.running()
}

func (p *ProcessCtx) OnStart(event func()) {
	p.events.onStart = event
}

func (p *ProcessCtx) OnCmdLog(event func(message string)) {
	p.events.onCmdLog = event
}

// OnExit is called when the player exits on its own, e.g. the user quit it.
func (p *ProcessCtx) OnExit(event func(err error)) {
	p.events.onExit = event
}

func (p *ProcessCtx) startLocked() error {
	args := append([]string{}, p.config.Args...)
	if p.src != "" {
		args = append(args, p.src)
	} else if p.reader != nil {
		args = append(args, p.config.StdinArg)
	} else {
		return ErrNothingToPlay
	}

	cmd := exec.Command(p.config.Binary, args...)
	cmd.SysProcAttr = configureAsProcessGroup()

	if p.events.onCmdLog != nil {
		cmd.Stderr = utils.LogEvent(p.events.onCmdLog)
	} else {
		cmd.Stderr = utils.LogWriter(p.logger)
	}

	var stdin io.WriteCloser
	if p.src == "" {
		var err error
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return err
		}
	}

	p.logger.Debug().Strs("args", args).Msg("performing start")

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("unable to start player: %w", err)
	}

	proc := &process{cmd: cmd, done: make(chan struct{})}
	p.proc = proc

	// feed the source buffer to the player
	if stdin != nil {
		reader := p.reader
		go func() {
			_, err := io.Copy(stdin, reader)
			stdin.Close()
			if err == nil {
				err = io.ErrClosedPipe
			}
			reader.CloseWithError(err)
		}()
	}

	if p.events.onStart != nil {
		p.events.onStart()
	}

	// wait for program to exit
	go func() {
		err := cmd.Wait()
		close(proc.done)

		if proc.stopped.Load() {
			return
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				p.logger.Warn().Int("exit-status", status.ExitStatus()).Msg("the player has exited with an exit code != 0")
			}
		} else if err != nil {
			p.logger.Err(err).Msg("the player has exited with an error")
		} else {
			p.logger.Info().Msg("the player has successfully exited")
		}

		if p.events.onExit != nil {
			p.events.onExit(err)
		}
	}()

	return nil
}

func (p *ProcessCtx) stopLocked() {
	proc := p.proc
	p.proc = nil

	if proc == nil || !proc.running() {
		return
	}

	p.logger.Debug().Msg("performing stop")

	proc.stopped.Store(true)
	killProcessGroup(p.logger, proc.cmd)
	<-proc.done
}

func (p *ProcessCtx) closePipeLocked() {
	if p.writer == nil {
		return
	}

	// pending and later appends fail with ErrSourceReset
	p.reader.CloseWithError(ErrSourceReset)
	p.reader, p.writer = nil, nil
}
