package safemdbx

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// logger receives warning-level signals the binding is required to emit:
// force-aborted transactions on environment close, stale reader cleanup,
// corruption latching.
var logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelWarn}))

// SetLogger replaces the package logger. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}
