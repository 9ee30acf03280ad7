//go:build !windows
// +build !windows

package element

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/movieverse/vidstream/pkg/playback"
)

// shellPlayer runs script with the source as $1.
func shellPlayer(script string, native bool) *Config {
	return &Config{
		Binary:    "sh",
		Args:      []string{"-c", script, "player"},
		NativeHLS: native,
	}
}

func TestProcess_CanPlayType(t *testing.T) {
	assert.True(t, NewProcess(&Config{NativeHLS: true}).CanPlayType(playback.HLSMimeType))
	assert.False(t, NewProcess(&Config{NativeHLS: true}).CanPlayType("video/webm"))
	assert.False(t, NewProcess(&Config{}).CanPlayType(playback.HLSMimeType))
}

func TestProcess_NativeSource(t *testing.T) {
	defer goleak.VerifyNone(t)

	el := NewProcess(shellPlayer("sleep 30", true))

	started := make(chan struct{}, 1)
	el.OnStart(func() { started <- struct{}{} })

	el.SetSource("https://cdn.example.com/processed/1/master.m3u8")
	require.NoError(t, el.Load())
	require.NoError(t, el.Play(context.Background()))
	<-started
	assert.True(t, el.Running())

	// second play is a no-op
	require.NoError(t, el.Play(context.Background()))

	// release
	el.SetSource("")
	require.NoError(t, el.Load())
	assert.False(t, el.Running())
	assert.Equal(t, "", el.Source())
}

func TestProcess_LoadUnavailablePlayer(t *testing.T) {
	el := NewProcess(&Config{Binary: "vidstream-no-such-player", NativeHLS: true})
	el.SetSource("https://cdn.example.com/processed/1/master.m3u8")

	assert.Error(t, el.Load())
	assert.False(t, (&Config{Binary: "vidstream-no-such-player"}).Available())
	assert.True(t, (&Config{Binary: "sh"}).Available())
}

func TestProcess_PlayWithoutSource(t *testing.T) {
	el := NewProcess(&Config{Binary: "sh"})
	assert.ErrorIs(t, el.Play(context.Background()), ErrNothingToPlay)
}

func TestProcess_SourceBufferFeedsStdin(t *testing.T) {
	defer goleak.VerifyNone(t)

	out := filepath.Join(t.TempDir(), "out.ts")
	el := NewProcess(shellPlayer("cat > "+out, false))
	defer el.Close()

	sink, err := el.SourceBuffer()
	require.NoError(t, err)
	require.NoError(t, el.Play(context.Background()))

	_, err = sink.Write([]byte{0x47, 0x01, 0x02})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(out)
		return err == nil && len(data) == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProcess_ResetRestartsPlayer(t *testing.T) {
	defer goleak.VerifyNone(t)

	el := NewProcess(shellPlayer("cat > /dev/null", false))
	defer el.Close()

	sink, err := el.SourceBuffer()
	require.NoError(t, err)
	require.NoError(t, el.Play(context.Background()))
	require.True(t, el.Running())

	require.NoError(t, el.ResetSourceBuffer())
	assert.False(t, el.Running())

	// appends to the old buffer fail
	_, err = sink.Write([]byte{0x47})
	assert.ErrorIs(t, err, ErrSourceReset)

	sink, err = el.SourceBuffer()
	require.NoError(t, err)
	assert.True(t, el.Running())

	_, err = sink.Write([]byte{0x47})
	assert.NoError(t, err)
}

func TestProcess_ResetWhileStoppedDoesNotStart(t *testing.T) {
	el := NewProcess(shellPlayer("cat > /dev/null", false))
	defer el.Close()

	_, err := el.SourceBuffer()
	require.NoError(t, err)
	require.NoError(t, el.ResetSourceBuffer())

	_, err = el.SourceBuffer()
	require.NoError(t, err)
	assert.False(t, el.Running())
}

func TestProcess_OnExit(t *testing.T) {
	el := NewProcess(shellPlayer("exit 3", true))

	exited := make(chan error, 1)
	el.OnExit(func(err error) { exited <- err })

	el.SetSource("https://cdn.example.com/processed/1/master.m3u8")
	require.NoError(t, el.Play(context.Background()))

	select {
	case err := <-exited:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("exit not reported")
	}

	assert.False(t, el.Running())
}

func TestProcess_StopIsNotAnExit(t *testing.T) {
	el := NewProcess(shellPlayer("sleep 30", true))

	exited := make(chan error, 1)
	el.OnExit(func(err error) { exited <- err })

	el.SetSource("https://cdn.example.com/processed/1/master.m3u8")
	require.NoError(t, el.Play(context.Background()))
	require.NoError(t, el.Close())

	select {
	case <-exited:
		t.Fatal("stop reported as exit")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProcess_EndOfStreamDrains(t *testing.T) {
	defer goleak.VerifyNone(t)

	out := filepath.Join(t.TempDir(), "out.ts")
	el := NewProcess(shellPlayer("sleep 0.3; cat > "+out, false))
	defer el.Close()

	exited := make(chan error, 1)
	el.OnExit(func(err error) { exited <- err })

	sink, err := el.SourceBuffer()
	require.NoError(t, err)
	require.NoError(t, el.Play(context.Background()))

	_, err = sink.Write([]byte{0x47, 0x01, 0x02, 0x03})
	require.NoError(t, err)

	// the player is still asleep with the data in its stdin
	require.NoError(t, el.EndOfStream())

	select {
	case err := <-exited:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("player did not exit after end of stream")
	}

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x47, 0x01, 0x02, 0x03}, data)
	assert.False(t, el.Running())

	// repeated end of stream is a no-op, the old buffer stays closed
	require.NoError(t, el.EndOfStream())
	_, err = sink.Write([]byte{0x47})
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
