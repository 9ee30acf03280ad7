package playback

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Session binds one source to one media element and owns at most one engine.
type Session struct {
	id      string
	source  string
	path    Path
	logger  zerolog.Logger
	player  *Player
	element MediaElement
	budget  *recoveryBudget

	mu       sync.Mutex
	state    State
	engine   Engine
	err      error
	startErr error

	// serializes every call into the engine
	engineMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	ended     chan struct{}
	endedOnce sync.Once
}

func newSession(ctx context.Context, player *Player, element MediaElement, source string, path Path) *Session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(ctx)

	sessionsActive.WithLabelValues(path.String()).Inc()

	return &Session{
		id:      id,
		source:  source,
		path:    path,
		logger:  player.logger.With().Str("session", id).Str("path", path.String()).Logger(),
		player:  player,
		element: element,
		budget:  newRecoveryBudget(player.config.MaxRecoveries, player.config.RecoveryWindow, player.clock),
		state:   StateUninitialized,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		ended:   make(chan struct{}),
	}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) Source() string { return s.source }
func (s *Session) Path() Path     { return s.path }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Err returns why the session terminated. It is nil while the session is
// alive and after a caller initiated teardown.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// StartErr returns the last rejected playback start, if any.
func (s *Session) StartErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.startErr
}

// Done is closed once the session is terminated.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Ended is closed when the engine reports the end of the stream.
func (s *Session) Ended() <-chan struct{} {
	return s.ended
}

// Play retries playback start, e.g. after a user gesture following a
// rejected autoplay.
func (s *Session) Play(ctx context.Context) error {
	if s.State() == StateTerminated {
		return ErrPlaybackTerminated
	}

	if err := s.element.Play(ctx); err != nil {
		err = fmt.Errorf("%w: %w", ErrPlaybackStartRejected, err)
		s.mu.Lock()
		s.startErr = err
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.startErr = nil
	s.mu.Unlock()
	return nil
}

// Teardown releases the engine instance. It is idempotent and safe from
// any state, including while a recovery is in flight.
func (s *Session) Teardown() {
	if s.terminate(nil) {
		s.logger.Info().Msg("session torn down")
	}
}

func (s *Session) startNative() error {
	s.element.SetSource(s.source)
	if err := s.element.Load(); err != nil {
		err = fmt.Errorf("%w: %w", ErrSourceLoadFailed, err)
		s.terminate(err)
		return err
	}

	if !s.transition(StatePlaying) {
		return nil
	}

	s.logger.Info().Str("source", s.source).Msg("using native playback")
	go s.requestPlay()
	return nil
}

func (s *Session) startEngine() error {
	if err := s.construct(); err != nil {
		return err
	}

	return s.attach()
}

func (s *Session) construct() error {
	engine, err := s.player.provider.New(s.player.config.engineConfig())
	if err == nil && engine == nil {
		err = errors.New("provider returned no engine")
	}

	if err != nil {
		err = fmt.Errorf("%w: %w", ErrEngineInitFailed, err)
		s.terminate(err)
		return err
	}

	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		engine.Destroy()
		return nil
	}
	s.engine = engine
	s.mu.Unlock()

	s.transition(StateConstructed)
	s.logger.Debug().Msg("engine constructed")
	return nil
}

func (s *Session) attach() error {
	engine := s.currentEngine()
	if engine == nil {
		// torn down meanwhile
		return nil
	}

	s.engineMu.Lock()
	err := engine.LoadSource(s.source)
	if err == nil {
		err = engine.AttachMedia(s.element)
	}
	s.engineMu.Unlock()

	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSourceLoadFailed, err)
		s.terminate(err)
		return err
	}

	if !s.transition(StateAttached) {
		return nil
	}

	s.logger.Info().Str("source", s.source).Msg("engine attached")
	go s.loop(engine.Events())
	return nil
}

func (s *Session) loop(events <-chan EngineEvent) {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-events:
			if !ok {
				s.terminate(fmt.Errorf("%w: engine stopped emitting events", ErrPlaybackTerminated))
				return
			}
			s.handle(event)
		}
	}
}

func (s *Session) handle(event EngineEvent) {
	// late callbacks after teardown are ignored
	if s.State() == StateTerminated {
		return
	}

	switch event.Type {
	case EventManifestParsed:
		if s.transitionFrom(StateAttached, StatePlaying) {
			s.logger.Info().Msg("manifest parsed, starting playback")
			go s.requestPlay()
		}
	case EventEnded:
		s.endedOnce.Do(func() { close(s.ended) })
		s.logger.Info().Msg("stream ended")
	case EventFault:
		s.handleFault(event.Fault)
	}
}

func (s *Session) handleFault(fault FaultEvent) {
	faultsTotal.WithLabelValues(string(fault.Category), strconv.FormatBool(fault.Fatal)).Inc()

	if !fault.Fatal {
		s.logger.Warn().Str("category", string(fault.Category)).Str("details", fault.Details).Err(fault.Err).Msg("non-fatal fault")
		return
	}

	s.logger.Error().Str("category", string(fault.Category)).Str("details", fault.Details).Err(fault.Err).Msg("fatal fault")

	action := recoveryFor(fault.Category)
	if action == nil {
		s.terminate(fmt.Errorf("%w: %s", ErrPlaybackTerminated, fault))
		return
	}

	if !s.budget.allow() {
		s.terminate(fmt.Errorf("%w: %w: %s", ErrPlaybackTerminated, ErrRecoveryExhausted, fault))
		return
	}

	previous, ok := s.enterRecovering()
	if !ok {
		return
	}

	engine := s.currentEngine()
	if engine == nil {
		return
	}

	s.logger.Info().Str("category", string(fault.Category)).Msg("recovering")
	recoveriesTotal.WithLabelValues(string(fault.Category)).Inc()

	s.engineMu.Lock()
	err := action(engine)
	s.engineMu.Unlock()

	if err != nil {
		s.terminate(fmt.Errorf("%w: recovery from %s failed: %w", ErrPlaybackTerminated, fault.Category, err))
		return
	}

	s.transitionFrom(StateRecovering, previous)
}

func (s *Session) requestPlay() {
	err := s.element.Play(s.ctx)

	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.startErr = fmt.Errorf("%w: %w", ErrPlaybackStartRejected, err)
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn().Err(err).Msg("playback start rejected, waiting for manual start")
		return
	}

	s.logger.Info().Msg("playback started")
}

func (s *Session) currentEngine() Engine {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.engine
}

func (s *Session) enterRecovering() (State, bool) {
	s.mu.Lock()
	previous := s.state
	if previous == StateTerminated {
		s.mu.Unlock()
		return previous, false
	}
	s.state = StateRecovering
	s.mu.Unlock()

	s.player.stateChanged(s, StateRecovering)
	return previous, true
}

// transition moves to state unless the session is already terminated.
func (s *Session) transition(state State) bool {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return false
	}
	s.state = state
	s.mu.Unlock()

	s.player.stateChanged(s, state)
	return true
}

func (s *Session) transitionFrom(from, to State) bool {
	s.mu.Lock()
	if s.state != from {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.mu.Unlock()

	s.player.stateChanged(s, to)
	return true
}

// terminate moves the session to Terminated exactly once and releases
// its driver. It reports whether this call performed the release.
func (s *Session) terminate(cause error) bool {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return false
	}
	wasStarted := s.state != StateUninitialized
	s.state = StateTerminated
	s.err = cause
	engine := s.engine
	s.engine = nil
	close(s.done)
	s.cancel()
	s.mu.Unlock()

	if engine != nil {
		// waits for an in-flight recovery call to return
		s.engineMu.Lock()
		engine.Destroy()
		s.engineMu.Unlock()
		s.logger.Debug().Msg("engine destroyed")
	}

	if s.path == PathNative && wasStarted {
		s.element.SetSource("")
		if err := s.element.Load(); err != nil {
			s.logger.Warn().Err(err).Msg("unable to release media element")
		}
	}

	s.player.unregister(s)

	sessionsActive.WithLabelValues(s.path.String()).Dec()

	reason := "teardown"
	if cause != nil {
		reason = "fault"
		if errors.Is(cause, ErrRecoveryExhausted) {
			reason = "recovery_exhausted"
		} else if !errors.Is(cause, ErrPlaybackTerminated) {
			reason = startFailureReason(cause)
		}
		s.logger.Warn().Err(cause).Msg("session terminated")
	}
	terminationsTotal.WithLabelValues(reason).Inc()

	s.player.stateChanged(s, StateTerminated)
	s.player.terminated(s, cause)
	return true
}
