// Package logger holds the process-wide zerolog logger.
//
// Call Init once from the command layer; library packages take a zerolog.Logger
// explicitly and fall back to Get.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options controls logger construction.
type Options struct {
	// Level is one of trace, debug, info, warn, error. Unknown values mean info.
	Level string
	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool
	// Output defaults to os.Stderr so that command output on stdout stays clean.
	Output io.Writer
}

var (
	mu       sync.Mutex
	instance = zerolog.Nop()
)

// Init builds the shared logger from opts and returns it. Later calls replace it.
func Init(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	l := zerolog.New(out).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Str("service", "facegate").
		Logger()

	mu.Lock()
	instance = l
	mu.Unlock()
	return l
}

// Get returns the shared logger. Before Init it is a no-op logger.
func Get() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return instance
}

// Reset restores the no-op logger. Tests only.
func Reset() {
	mu.Lock()
	instance = zerolog.Nop()
	mu.Unlock()
}

// ParseLevel maps a level name to a zerolog.Level.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
