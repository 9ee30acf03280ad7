package playback

import (
	"sync"
	"time"
)

// clock abstracts time operations for testability.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// recoveryAction is the instruction issued to the engine for a fatal fault.
type recoveryAction func(engine Engine) error

// recoveryFor returns nil when the category has no known recovery.
func recoveryFor(category FaultCategory) recoveryAction {
	switch category {
	case FaultNetwork:
		return func(engine Engine) error { return engine.StartLoad() }
	case FaultMedia:
		return func(engine Engine) error { return engine.RecoverMediaError() }
	default:
		return nil
	}
}

// recoveryBudget limits recoveries to max within a sliding window.
type recoveryBudget struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	clock  clock
	events []time.Time
}

func newRecoveryBudget(max int, window time.Duration, c clock) *recoveryBudget {
	if c == nil {
		c = realClock{}
	}

	return &recoveryBudget{
		max:    max,
		window: window,
		clock:  c,
	}
}

// allow records an attempt and reports whether it fits the budget.
func (b *recoveryBudget) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if b.max <= 0 {
		return true
	}

	cutoff := now.Add(-b.window)
	kept := b.events[:0]
	for _, t := range b.events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.events = kept

	if len(b.events) >= b.max {
		return false
	}

	b.events = append(b.events, now)
	return true
}
