package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger creates the process-wide structured logger. The level string
// follows zerolog's level names; anything unparseable falls back to info.
func NewLogger(level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return logger.Level(lvl)
}
