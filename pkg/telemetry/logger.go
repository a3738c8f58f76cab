// Package telemetry provides structured logging and Prometheus metrics for
// the engine and CLI.
package telemetry

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogging configures the global zerolog logger with a console writer
// and the given level ("debug", "info", "warn", "error").
func SetupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// ComponentLogger returns a child of the global logger tagged with a
// component name.
func ComponentLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
