// Package logger holds the process-wide zerolog logger.
//
// main calls Init once; packages receive a child logger from Component and
// never reach for the global themselves.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options configures Init.
type Options struct {
	// Level is one of trace, debug, info, warn, error. Anything else means info.
	Level string
	// Pretty switches to the coloured console writer for local runs.
	Pretty bool
	// Service is stamped on every entry as service=<name> when set.
	Service string
	// Output defaults to os.Stdout.
	Output io.Writer
}

var (
	mu     sync.Mutex
	root   zerolog.Logger
	active bool
)

// Init builds the root logger. Calls after the first return the existing
// logger unchanged.
func Init(opts Options) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if active {
		return root
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	lvl := parseLevel(opts.Level)
	zerolog.SetGlobalLevel(lvl)

	ctx := zerolog.New(out).Level(lvl).With().Timestamp().Caller()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}
	root = ctx.Logger()
	active = true
	return root
}

// Get returns the root logger. It panics before Init.
func Get() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if !active {
		panic("logger: Get() called before Init()")
	}
	return root
}

// Component returns the root logger tagged with component=name, or a
// disabled logger when Init has not run.
func Component(name string) zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if !active {
		return zerolog.Nop()
	}
	return root.With().Str("component", name).Logger()
}

// Reset drops the root logger. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	root = zerolog.Logger{}
	active = false
}

func parseLevel(s string) zerolog.Level {
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
