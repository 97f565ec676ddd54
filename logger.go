package gfx

import (
	"log/slog"
	"sync/atomic"
)

// logger holds the active logger. SetLogger may race with logging from
// recording goroutines, so it is swapped atomically.
var logger atomic.Pointer[slog.Logger]

func init() {
	SetLogger(nil)
}

// SetLogger directs gfx and rendergraph diagnostics to l.
// Pass nil to silence them again, which is the default.
//
// Levels:
//   - [slog.LevelDebug]: submissions, pass recording, barriers, transient pool
//   - [slog.LevelInfo]: device creation and teardown
//   - [slog.LevelWarn]: backend probe failures, failed resource initialization
//
// Example:
//
//	gfx.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	logger.Store(l)
}

// Logger returns the logger installed by SetLogger.
func Logger() *slog.Logger {
	return logger.Load()
}
