package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"
)

var (
	initOnce    sync.Once
	initialized atomic.Bool
)

// Setup installs the default slog logger. It writes through a charmbracelet
// handler to stderr, or to logFile when one is given.
func Setup(logFile string, debug bool) {
	initOnce.Do(func() {
		level := charmlog.InfoLevel
		if debug {
			level = charmlog.DebugLevel
		}

		out := io.Writer(os.Stderr)
		if logFile != "" {
			f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
			if err == nil {
				out = f
			}
		}

		handler := charmlog.NewWithOptions(out, charmlog.Options{
			Level:        level,
			ReportCaller: debug,
			Prefix:       "symmap",
		})

		slog.SetDefault(slog.New(handler))
		initialized.Store(true)
	})
}

func Initialized() bool {
	return initialized.Load()
}

func RecoverPanic(name string, cleanup func()) {
	if r := recover(); r != nil {
		if Initialized() {
			slog.Error(fmt.Sprintf("Panic in %s", name),
				"panic", r,
				"stack", string(debug.Stack()))
		}
		if cleanup != nil {
			cleanup()
		}
	}
}
