package logger

import (
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	corelogger "github.com/kilianp07/loadguard/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger = corelogger.Nop

// Options are process-wide logger settings applied to loggers created
// afterwards.
type Options struct {
	// Level is a zerolog level name. Empty keeps "info".
	Level string
	// Console forces the human readable writer. APP_ENV=dev enables it too.
	Console bool
	// Output defaults to stdout.
	Output io.Writer
}

var (
	mu   sync.RWMutex
	opts = Options{Level: "info"}
)

// Configure replaces the process-wide options. It returns an error for an
// unknown level and leaves the previous options in place.
func Configure(o Options) error {
	lvl := zerolog.InfoLevel
	if o.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(o.Level))
		if err != nil {
			return err
		}
		lvl = parsed
	}
	mu.Lock()
	opts = o
	mu.Unlock()
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// New returns a Logger for the given component.
func New(component string) Logger {
	mu.RLock()
	o := opts
	mu.RUnlock()
	return NewZerologLogger(component, o)
}
