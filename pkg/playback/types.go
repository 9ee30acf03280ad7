package playback

import (
	"context"
	"fmt"
	"io"
	"time"
)

// HLSMimeType is checked on the media element to detect native adaptive playback.
const HLSMimeType = "application/vnd.apple.mpegurl"

type Config struct {
	EngineEnabled    bool          // allow the engine path when the element cannot play natively
	WorkerOffload    bool          // let the engine fetch segments in background workers
	LowLatencyMode   bool          // start live streams at the live edge
	BackBufferWindow time.Duration // how much already played media the engine retains
	MaxRecoveries    int           // recoverable fatal faults allowed per window, 0 means unbounded
	RecoveryWindow   time.Duration // sliding window for MaxRecoveries
}

// DefaultConfig mirrors the configuration the web client ships with.
func DefaultConfig() Config {
	return Config{
		EngineEnabled:    true,
		WorkerOffload:    true,
		LowLatencyMode:   true,
		BackBufferWindow: 90 * time.Second,
	}
}

func (c Config) withDefaultValues() Config {
	if c.BackBufferWindow <= 0 {
		c.BackBufferWindow = 90 * time.Second
	}
	if c.RecoveryWindow <= 0 {
		c.RecoveryWindow = 60 * time.Second
	}
	if c.MaxRecoveries < 0 {
		c.MaxRecoveries = 0
	}
	return c
}

func (c Config) engineConfig() EngineConfig {
	return EngineConfig{
		WorkerOffload:    c.WorkerOffload,
		LowLatencyMode:   c.LowLatencyMode,
		BackBufferWindow: c.BackBufferWindow,
	}
}

// EngineConfig is handed to the provider when an engine instance is constructed.
type EngineConfig struct {
	WorkerOffload    bool
	LowLatencyMode   bool
	BackBufferWindow time.Duration
}

// MediaElement is the playable target a session drives.
type MediaElement interface {
	// CanPlayType reports whether the element plays the given media type on its own.
	CanPlayType(mimeType string) bool
	SetSource(uri string)
	Source() string
	// Load resets the element and picks up the current source.
	Load() error
	// Play requests playback start. It may be rejected.
	Play(ctx context.Context) error
	// SourceBuffer returns the sink an engine appends media data to.
	SourceBuffer() (io.Writer, error)
	// ResetSourceBuffer drops buffered media and the decoder state behind it.
	ResetSourceBuffer() error
}

// Engine is an adaptive-streaming engine instance bound to one element.
type Engine interface {
	LoadSource(uri string) error
	AttachMedia(element MediaElement) error
	// StartLoad resumes manifest and segment loading.
	StartLoad() error
	// RecoverMediaError resets the decode pipeline without a full reload.
	RecoverMediaError() error
	// Destroy releases every resource and closes the event channel.
	Destroy()
	Events() <-chan EngineEvent
}

type EngineProvider interface {
	// Supported reports whether engine playback is available at all.
	Supported() bool
	New(config EngineConfig) (Engine, error)
}

type Path int

const (
	PathNative Path = iota + 1
	PathEngine
)

func (p Path) String() string {
	switch p {
	case PathNative:
		return "native"
	case PathEngine:
		return "engine"
	default:
		return "unknown"
	}
}

type State int

const (
	StateUninitialized State = iota
	StateConstructed
	StateAttached
	StatePlaying
	StateRecovering
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConstructed:
		return "constructed"
	case StateAttached:
		return "attached"
	case StatePlaying:
		return "playing"
	case StateRecovering:
		return "recovering"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type FaultCategory string

const (
	FaultNetwork FaultCategory = "network"
	FaultMedia   FaultCategory = "media"
	FaultOther   FaultCategory = "other"
)

// FaultEvent describes a playback-impairing condition reported by an engine.
type FaultEvent struct {
	Category FaultCategory
	Fatal    bool
	Details  string
	Err      error
}

func (f FaultEvent) String() string {
	s := fmt.Sprintf("%s fault (fatal=%t)", f.Category, f.Fatal)
	if f.Details != "" {
		s += ": " + f.Details
	}
	if f.Err != nil {
		s += ": " + f.Err.Error()
	}
	return s
}

type EventType int

const (
	EventManifestParsed EventType = iota + 1
	EventFault
	EventEnded
)

type EngineEvent struct {
	Type  EventType
	Fault FaultEvent
}
