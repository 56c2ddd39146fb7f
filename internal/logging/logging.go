// Package logging sets up the relay's structured logging sink
// (github.com/rs/zerolog): a global Logger plus per-subsystem child
// loggers. Records carry keyed fields throughout (connection_id,
// subscription_id, event_id, pubkey, scope, kind).
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide base logger; every subsystem derives a child
// from it rather than logging through the package-level zerolog default.
var Logger zerolog.Logger

// Config selects the sink's verbosity and encoding.
type Config struct {
	Level      string // "debug" | "info" | "warn" | "error"
	JSONOutput bool
}

// Init sets the global log level and builds Logger. Console output (the
// default) favors operator readability; JSON output is for production
// log aggregation.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.JSONOutput {
		Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagging every record with component.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
