// Package logging configures the process-wide zerolog logger: JSON to
// stdout in production, human-readable console output in development.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/payflow-engine/payflow/internal/env"
)

// New builds the root logger every component derives from.
func New(instance string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var logger zerolog.Logger
	if env.IsProduction() {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return logger.With().Timestamp().Str("instance", instance).Logger()
}
