package utils

import (
	"strings"

	"github.com/rs/zerolog"
)

type LogWriterCtx struct {
	logger zerolog.Logger
}

// LogWriter forwards every non-empty output line of a child process as a warning.
func LogWriter(l zerolog.Logger) *LogWriterCtx {
	return &LogWriterCtx{
		logger: l,
	}
}

func (l LogWriterCtx) Write(p []byte) (n int, err error) {
	for _, line := range splitLines(p) {
		l.logger.Warn().Msg(line)
	}
	return len(p), nil
}

func splitLines(p []byte) []string {
	lines := []string{}
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
