package playback

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// No session ids in labels.
var (
	sessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidstream_playback_sessions_started_total",
		Help: "Total number of playback sessions started, by path.",
	}, []string{"path"})

	sessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vidstream_playback_sessions_active",
		Help: "Current number of live playback sessions, by path.",
	}, []string{"path"})

	startFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidstream_playback_start_failures_total",
		Help: "Total number of failed playback starts, by reason.",
	}, []string{"reason"})

	faultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidstream_playback_faults_total",
		Help: "Total number of engine faults received, by category and fatality.",
	}, []string{"category", "fatal"})

	recoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidstream_playback_recoveries_total",
		Help: "Total number of recovery actions issued, by fault category.",
	}, []string{"category"})

	terminationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidstream_playback_terminations_total",
		Help: "Total number of terminated sessions, by reason.",
	}, []string{"reason"})
)

func startFailureReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrUnsupportedPlaybackEnvironment):
		return "unsupported"
	case errors.Is(err, ErrEngineInitFailed):
		return "engine_init"
	case errors.Is(err, ErrSourceLoadFailed):
		return "source_load"
	case errors.Is(err, ErrInvalidSource), errors.Is(err, ErrNoMediaElement):
		return "invalid"
	default:
		return "other"
	}
}
