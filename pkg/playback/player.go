package playback

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Player selects a playback path per session and keeps at most one
// session per media element.
type Player struct {
	logger   zerolog.Logger
	config   Config
	provider EngineProvider
	clock    clock

	// serializes StartPlayback so that replacing a session is atomic
	startMu sync.Mutex

	mu       sync.Mutex
	sessions map[MediaElement]*Session
	events   struct {
		onStateChange func(session *Session, state State)
		onTerminate   func(session *Session, err error)
	}
}

// New creates a player. Provider may be nil when only native playback is wanted.
func New(config *Config, provider EngineProvider) *Player {
	return &Player{
		logger:   log.With().Str("module", "playback").Logger(),
		config:   config.withDefaultValues(),
		provider: provider,
		clock:    realClock{},
		sessions: map[MediaElement]*Session{},
	}
}

// OnStateChange registers a hook called after every session state transition.
func (p *Player) OnStateChange(event func(session *Session, state State)) {
	p.mu.Lock()
	p.events.onStateChange = event
	p.mu.Unlock()
}

// OnTerminate registers a hook called once a session reaches Terminated.
// The error is nil when the caller tore the session down. Hooks run on the
// goroutine that terminated the session and must not block on StartPlayback.
func (p *Player) OnTerminate(event func(session *Session, err error)) {
	p.mu.Lock()
	p.events.onTerminate = event
	p.mu.Unlock()
}

// StartPlayback plays source on element. An existing session on the same
// element is torn down first.
func (p *Player) StartPlayback(ctx context.Context, element MediaElement, source string) (*Session, error) {
	if element == nil {
		return nil, p.startFailed(ErrNoMediaElement)
	}

	if err := validateSource(source); err != nil {
		return nil, p.startFailed(err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.startMu.Lock()
	defer p.startMu.Unlock()

	if previous := p.Session(element); previous != nil {
		p.logger.Debug().Str("session", previous.ID()).Msg("replacing session on element")
		previous.Teardown()
	}

	path, err := p.selectPath(element)
	if err != nil {
		return nil, p.startFailed(err)
	}

	session := newSession(context.WithoutCancel(ctx), p, element, source, path)

	// register before starting so that hooks already see the session
	p.mu.Lock()
	p.sessions[element] = session
	p.mu.Unlock()

	switch path {
	case PathNative:
		err = session.startNative()
	case PathEngine:
		err = session.startEngine()
	}

	if err != nil {
		return nil, p.startFailed(err)
	}

	sessionsStarted.WithLabelValues(path.String()).Inc()
	return session, nil
}

// Teardown releases the session. Safe to call repeatedly.
func (p *Player) Teardown(session *Session) {
	if session != nil {
		session.Teardown()
	}
}

// Session returns the active session driving element, if any.
func (p *Player) Session(element MediaElement) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.sessions[element]
}

// Shutdown tears down every active session.
func (p *Player) Shutdown() {
	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.sessions))
	for _, session := range p.sessions {
		sessions = append(sessions, session)
	}
	p.mu.Unlock()

	for _, session := range sessions {
		session.Teardown()
	}
}

func (p *Player) selectPath(element MediaElement) (Path, error) {
	if element.CanPlayType(HLSMimeType) {
		return PathNative, nil
	}

	if p.config.EngineEnabled && p.provider != nil && p.provider.Supported() {
		return PathEngine, nil
	}

	return 0, ErrUnsupportedPlaybackEnvironment
}

func (p *Player) startFailed(err error) error {
	startFailures.WithLabelValues(startFailureReason(err)).Inc()
	p.logger.Warn().Err(err).Msg("playback could not be started")
	return err
}

func (p *Player) unregister(session *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sessions[session.element] == session {
		delete(p.sessions, session.element)
	}
}

func (p *Player) stateChanged(session *Session, state State) {
	p.mu.Lock()
	event := p.events.onStateChange
	p.mu.Unlock()

	if event != nil {
		event(session, state)
	}
}

func (p *Player) terminated(session *Session, err error) {
	p.mu.Lock()
	event := p.events.onTerminate
	p.mu.Unlock()

	if event != nil {
		event(session, err)
	}
}

func validateSource(source string) error {
	if source == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidSource)
	}

	u, err := url.Parse(source)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSource, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidSource)
	}

	return nil
}
