package playback

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

type fakeElement struct {
	mu      sync.Mutex
	native  bool
	src     string
	loads   int
	plays   int
	resets  int
	playErr error
	loadErr error
	buf     bytes.Buffer
}

func (e *fakeElement) CanPlayType(mimeType string) bool {
	return e.native && mimeType == HLSMimeType
}

func (e *fakeElement) SetSource(uri string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.src = uri
}

func (e *fakeElement) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src
}

func (e *fakeElement) Load() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loads++
	return e.loadErr
}

func (e *fakeElement) Play(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plays++
	return e.playErr
}

func (e *fakeElement) SourceBuffer() (io.Writer, error) {
	return &e.buf, nil
}

func (e *fakeElement) ResetSourceBuffer() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resets++
	return nil
}

func (e *fakeElement) playCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plays
}

func (e *fakeElement) setPlayErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playErr = err
}

type fakeEngine struct {
	mu         sync.Mutex
	source     string
	element    MediaElement
	calls      []string
	loadErr    error
	attachErr  error
	recoverErr error
	startLoadHook func()
	startLoads int
	recovers   int
	destroys   int
	events     chan EngineEvent
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{events: make(chan EngineEvent, 16)}
}

func (e *fakeEngine) LoadSource(uri string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "load")
	e.source = uri
	return e.loadErr
}

func (e *fakeEngine) AttachMedia(element MediaElement) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "attach")
	e.element = element
	return e.attachErr
}

func (e *fakeEngine) StartLoad() error {
	e.mu.Lock()
	hook := e.startLoadHook
	e.mu.Unlock()

	if hook != nil {
		hook()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "startLoad")
	e.startLoads++
	return e.recoverErr
}

func (e *fakeEngine) RecoverMediaError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "recoverMediaError")
	e.recovers++
	return e.recoverErr
}

func (e *fakeEngine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "destroy")
	e.destroys++
}

func (e *fakeEngine) Events() <-chan EngineEvent {
	return e.events
}

func (e *fakeEngine) emit(event EngineEvent) {
	e.events <- event
}

func (e *fakeEngine) fault(category FaultCategory, fatal bool) {
	e.emit(EngineEvent{Type: EventFault, Fault: FaultEvent{Category: category, Fatal: fatal}})
}

func (e *fakeEngine) counts() (startLoads, recovers, destroys int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startLoads, e.recovers, e.destroys
}

type fakeProvider struct {
	mu        sync.Mutex
	supported bool
	newErr    error
	prepare   func(engine *fakeEngine)
	engines   []*fakeEngine
}

func (p *fakeProvider) Supported() bool {
	return p.supported
}

func (p *fakeProvider) New(config EngineConfig) (Engine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.newErr != nil {
		return nil, p.newErr
	}

	engine := newFakeEngine()
	if p.prepare != nil {
		p.prepare(engine)
	}
	p.engines = append(p.engines, engine)
	return engine, nil
}

func (p *fakeProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.engines)
}

func (p *fakeProvider) last() *fakeEngine {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engines[len(p.engines)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errAutoplay = errors.New("autoplay blocked")
