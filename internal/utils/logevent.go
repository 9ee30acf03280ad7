package utils

type LogEventCtx struct {
	event func(message string)
}

// LogEvent calls event once per non-empty output line.
func LogEvent(event func(message string)) *LogEventCtx {
	return &LogEventCtx{
		event: event,
	}
}

func (l LogEventCtx) Write(p []byte) (n int, err error) {
	for _, line := range splitLines(p) {
		l.event(line)
	}
	return len(p), nil
}
