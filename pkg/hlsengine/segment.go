package hlsengine

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/movieverse/vidstream/pkg/playback"
)

var (
	ErrEmptySegment   = errors.New("empty segment")
	ErrUnknownPayload = errors.New("unknown segment payload")
)

var mp4Boxes = [][]byte{
	[]byte("ftyp"),
	[]byte("styp"),
	[]byte("moof"),
	[]byte("moov"),
	[]byte("sidx"),
	[]byte("emsg"),
}

// validatePayload accepts MPEG-TS, fragmented MP4 and packed audio.
func validatePayload(data []byte) error {
	switch {
	case len(data) == 0:
		return ErrEmptySegment
	case data[0] == 0x47: // TS sync byte
		return nil
	case bytes.HasPrefix(data, []byte("ID3")):
		return nil
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xF0 == 0xF0: // ADTS
		return nil
	}

	if len(data) >= 8 {
		for _, box := range mp4Boxes {
			if bytes.Equal(data[4:8], box) {
				return nil
			}
		}
	}

	return ErrUnknownPayload
}

type faultError struct {
	category playback.FaultCategory
	details  string
	err      error
}

func (f *faultError) Error() string {
	if f.err == nil {
		return fmt.Sprintf("%s: %s", f.category, f.details)
	}
	return fmt.Sprintf("%s: %s: %v", f.category, f.details, f.err)
}

func (f *faultError) Unwrap() error {
	return f.err
}

func (f *faultError) event(fatal bool) playback.EngineEvent {
	return playback.EngineEvent{
		Type: playback.EventFault,
		Fault: playback.FaultEvent{
			Category: f.category,
			Fatal:    fatal,
			Details:  f.details,
			Err:      f.err,
		},
	}
}

type bufferedSegment struct {
	seq      uint64
	duration time.Duration
}

// backBuffer accounts for appended media up to window. The bytes belong to
// the element once appended, only sequence numbers and durations are kept.
type backBuffer struct {
	window   time.Duration
	total    time.Duration
	segments []bufferedSegment
}

func newBackBuffer(window time.Duration) *backBuffer {
	return &backBuffer{window: window}
}

func (b *backBuffer) add(seq uint64, duration time.Duration) {
	b.segments = append(b.segments, bufferedSegment{seq: seq, duration: duration})
	b.total += duration

	// the newest segment always stays
	for len(b.segments) > 1 && b.total > b.window {
		b.total -= b.segments[0].duration
		b.segments = b.segments[1:]
	}
}

func (b *backBuffer) Duration() time.Duration {
	return b.total
}

func (b *backBuffer) Len() int {
	return len(b.segments)
}
