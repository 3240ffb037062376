// internal/recovery/recovery.go
// Package recovery turns panics into a logged, clean process exit so the
// sidetone is never left sounding.
package recovery

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
)

// HandlePanic should be deferred at the top of main().
// It prints panic details and exits with code 1.
func HandlePanic() {
	if r := recover(); r != nil {
		_, _ = fmt.Fprintf(os.Stderr, "FATAL: %v\n\nStack trace:\n%s\n", r, debug.Stack())
		os.Exit(1)
	}
}

// Guard should be deferred at the top of goroutines that drive the keyer.
// It logs the panic through logger, runs cleanup (typically silencing the
// tone) and exits with code 1. A nil logger writes to stderr.
func Guard(logger *slog.Logger, cleanup func()) {
	r := recover()
	if r == nil {
		return
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	logger.Error("FATAL: goroutine panic",
		"panic", fmt.Sprint(r),
		"stack", string(debug.Stack()))
	if cleanup != nil {
		cleanup()
	}
	os.Exit(1)
}
