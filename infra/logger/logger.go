// Package logger provides the zerolog-backed implementation of the core
// logger interface.
package logger

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	corelogger "github.com/kilianp07/chargesim/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger = corelogger.Nop

// New returns a Logger for the given component. The environment is detected via
// the APP_ENV variable.
func New(component string) Logger {
	return NewZerologLogger(component)
}

// SetLevel sets the global minimum level from its name ("debug", "info",
// "warn", "error"). An empty name keeps the current level.
func SetLevel(name string) error {
	if name == "" {
		return nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("log level %q: %w", name, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}
