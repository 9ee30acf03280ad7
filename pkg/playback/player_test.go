package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

func newTestPlayer(config Config, provider EngineProvider) *Player {
	return New(&config, provider)
}

func TestStartPlayback_NativeNeverConstructsEngine(t *testing.T) {
	provider := &fakeProvider{supported: true}
	player := newTestPlayer(DefaultConfig(), provider)
	el := &fakeElement{native: true}

	session, err := player.StartPlayback(context.Background(), el, "https://cdn/x/master.m3u8")
	require.NoError(t, err)
	defer session.Teardown()

	assert.Equal(t, "https://cdn/x/master.m3u8", el.Source())
	assert.Equal(t, 1, el.loads)
	assert.Equal(t, 0, provider.count())
	assert.Equal(t, PathNative, session.Path())
	assert.Equal(t, StatePlaying, session.State())
	assert.Same(t, session, player.Session(el))
	assert.Eventually(t, func() bool { return el.playCount() == 1 }, waitFor, tick)
}

func TestStartPlayback_NativeWinsEvenWithEngineDisabled(t *testing.T) {
	config := DefaultConfig()
	config.EngineEnabled = false
	player := newTestPlayer(config, nil)
	el := &fakeElement{native: true}

	session, err := player.StartPlayback(context.Background(), el, "https://cdn/x/master.m3u8")
	require.NoError(t, err)
	defer session.Teardown()

	assert.Equal(t, PathNative, session.Path())
}

func TestStartPlayback_EngineAttachedWithSource(t *testing.T) {
	provider := &fakeProvider{supported: true}
	player := newTestPlayer(DefaultConfig(), provider)
	el := &fakeElement{}

	session, err := player.StartPlayback(context.Background(), el, "https://cdn/y/master.m3u8")
	require.NoError(t, err)
	defer session.Teardown()

	require.Equal(t, 1, provider.count())
	engine := provider.last()
	assert.Equal(t, "https://cdn/y/master.m3u8", engine.source)
	assert.Same(t, el, engine.element)
	assert.Equal(t, []string{"load", "attach"}, engine.calls)
	assert.Equal(t, StateAttached, session.State())
	assert.Equal(t, "", el.Source(), "engine path must not assign the element source")

	// start is requested only after the manifest is ready
	assert.Equal(t, 0, el.playCount())
	engine.emit(EngineEvent{Type: EventManifestParsed})

	assert.Eventually(t, func() bool { return session.State() == StatePlaying }, waitFor, tick)
	assert.Eventually(t, func() bool { return el.playCount() == 1 }, waitFor, tick)
}

func TestStartPlayback_OneEnginePerCall(t *testing.T) {
	provider := &fakeProvider{supported: true}
	player := newTestPlayer(DefaultConfig(), provider)

	for i := 0; i < 3; i++ {
		el := &fakeElement{}
		session, err := player.StartPlayback(context.Background(), el, "https://cdn/y/master.m3u8")
		require.NoError(t, err)
		assert.Equal(t, i+1, provider.count())
		session.Teardown()
	}
}

func TestStartPlayback_Unsupported(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		provider EngineProvider
	}{
		{name: "no provider", config: DefaultConfig()},
		{name: "provider unsupported", config: DefaultConfig(), provider: &fakeProvider{}},
		{name: "engine disabled", config: Config{}, provider: &fakeProvider{supported: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			player := newTestPlayer(tt.config, tt.provider)
			el := &fakeElement{}

			session, err := player.StartPlayback(context.Background(), el, "https://cdn/y/master.m3u8")
			assert.Nil(t, session)
			assert.ErrorIs(t, err, ErrUnsupportedPlaybackEnvironment)
			assert.Equal(t, "", el.Source())
			assert.Nil(t, player.Session(el))
		})
	}
}

func TestStartPlayback_InvalidInput(t *testing.T) {
	player := newTestPlayer(DefaultConfig(), &fakeProvider{supported: true})

	_, err := player.StartPlayback(context.Background(), nil, "https://cdn/y/master.m3u8")
	assert.ErrorIs(t, err, ErrNoMediaElement)

	for _, source := range []string{"", "cdn/y/master.m3u8", "ftp://cdn/y/master.m3u8", "https:///master.m3u8", "http://[::1"} {
		_, err := player.StartPlayback(context.Background(), &fakeElement{}, source)
		assert.ErrorIs(t, err, ErrInvalidSource, source)
	}
}

func TestStartPlayback_EngineInitFailed(t *testing.T) {
	provider := &fakeProvider{supported: true, newErr: errors.New("out of memory")}
	player := newTestPlayer(DefaultConfig(), provider)
	el := &fakeElement{}

	session, err := player.StartPlayback(context.Background(), el, "https://cdn/y/master.m3u8")
	assert.Nil(t, session)
	assert.ErrorIs(t, err, ErrEngineInitFailed)
	assert.Nil(t, player.Session(el))
}

func TestStartPlayback_SourceLoadFailed(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(engine *fakeEngine)
	}{
		{name: "load rejected", prepare: func(engine *fakeEngine) { engine.loadErr = errors.New("bad manifest address") }},
		{name: "attach rejected", prepare: func(engine *fakeEngine) { engine.attachErr = errors.New("element busy") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{supported: true, prepare: tt.prepare}
			player := newTestPlayer(DefaultConfig(), provider)
			el := &fakeElement{}

			var terminated error
			player.OnTerminate(func(session *Session, err error) { terminated = err })

			session, err := player.StartPlayback(context.Background(), el, "https://cdn/y/master.m3u8")
			assert.Nil(t, session)
			assert.ErrorIs(t, err, ErrSourceLoadFailed)
			assert.ErrorIs(t, terminated, ErrSourceLoadFailed)

			_, _, destroys := provider.last().counts()
			assert.Equal(t, 1, destroys)
			assert.Nil(t, player.Session(el))
		})
	}
}

func TestStartPlayback_NativeLoadFailed(t *testing.T) {
	player := newTestPlayer(DefaultConfig(), nil)
	el := &fakeElement{native: true, loadErr: errors.New("decoder missing")}

	_, err := player.StartPlayback(context.Background(), el, "https://cdn/x/master.m3u8")
	assert.ErrorIs(t, err, ErrSourceLoadFailed)
	assert.Nil(t, player.Session(el))
}

func TestStartPlayback_ReplacesPreviousSession(t *testing.T) {
	provider := &fakeProvider{supported: true}
	player := newTestPlayer(DefaultConfig(), provider)
	el := &fakeElement{}

	first, err := player.StartPlayback(context.Background(), el, "https://cdn/a/master.m3u8")
	require.NoError(t, err)
	firstEngine := provider.last()

	second, err := player.StartPlayback(context.Background(), el, "https://cdn/b/master.m3u8")
	require.NoError(t, err)
	defer second.Teardown()

	_, _, destroys := firstEngine.counts()
	assert.Equal(t, 1, destroys)
	assert.Equal(t, StateTerminated, first.State())
	assert.NoError(t, first.Err())
	assert.Same(t, second, player.Session(el))
	assert.Equal(t, "https://cdn/b/master.m3u8", provider.last().source)
}

func TestStartPlayback_ReplacesNativeSession(t *testing.T) {
	player := newTestPlayer(DefaultConfig(), nil)
	el := &fakeElement{native: true}

	first, err := player.StartPlayback(context.Background(), el, "https://cdn/a/master.m3u8")
	require.NoError(t, err)

	second, err := player.StartPlayback(context.Background(), el, "https://cdn/b/master.m3u8")
	require.NoError(t, err)
	defer second.Teardown()

	assert.Equal(t, StateTerminated, first.State())
	assert.Equal(t, "https://cdn/b/master.m3u8", el.Source())
}

func TestStartPlayback_CanceledContext(t *testing.T) {
	player := newTestPlayer(DefaultConfig(), &fakeProvider{supported: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := player.StartPlayback(ctx, &fakeElement{}, "https://cdn/y/master.m3u8")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlayer_Shutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	provider := &fakeProvider{supported: true}
	player := newTestPlayer(DefaultConfig(), provider)

	sessions := []*Session{}
	for i := 0; i < 3; i++ {
		session, err := player.StartPlayback(context.Background(), &fakeElement{}, "https://cdn/y/master.m3u8")
		require.NoError(t, err)
		sessions = append(sessions, session)
	}

	player.Shutdown()

	for i, session := range sessions {
		assert.Equal(t, StateTerminated, session.State())
		_, _, destroys := provider.engines[i].counts()
		assert.Equal(t, 1, destroys)
	}
}

func TestPlayer_StateHooks(t *testing.T) {
	provider := &fakeProvider{supported: true}
	player := newTestPlayer(DefaultConfig(), provider)

	states := make(chan State, 16)
	player.OnStateChange(func(session *Session, state State) { states <- state })

	session, err := player.StartPlayback(context.Background(), &fakeElement{}, "https://cdn/y/master.m3u8")
	require.NoError(t, err)

	next := func() State {
		select {
		case state := <-states:
			return state
		case <-time.After(waitFor):
			t.Fatal("missing state change")
			return 0
		}
	}

	assert.Equal(t, StateConstructed, next())
	assert.Equal(t, StateAttached, next())

	provider.last().emit(EngineEvent{Type: EventManifestParsed})
	assert.Equal(t, StatePlaying, next())

	session.Teardown()
	assert.Equal(t, StateTerminated, next())
}
