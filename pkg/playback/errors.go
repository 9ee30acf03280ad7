package playback

import "errors"

var (
	ErrNoMediaElement                 = errors.New("no media element")
	ErrInvalidSource                  = errors.New("invalid playback source")
	ErrUnsupportedPlaybackEnvironment = errors.New("neither native nor engine playback is available")
	ErrSourceLoadFailed               = errors.New("source load failed")
	ErrEngineInitFailed               = errors.New("engine init failed")
	ErrPlaybackStartRejected          = errors.New("playback start rejected")
	ErrPlaybackTerminated             = errors.New("playback terminated")
	ErrRecoveryExhausted              = errors.New("recovery attempts exhausted")
)
