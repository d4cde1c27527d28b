// Package logger builds the zerolog logger used across cdse-grab.
//
// The logger is constructed once from the logging section of the loaded
// configuration and passed explicitly to the components that want it — there
// is no process-wide logger and no global level.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/NAEO-KCL/cdse-grab/internal/config"
	"github.com/rs/zerolog"
)

// New creates a logger from the given logging configuration, writing to out.
// A nil out defaults to os.Stdout.
func New(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	var log zerolog.Logger
	if strings.EqualFold(cfg.Format, "console") {
		// Human-readable console output for interactive sessions.
		log = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		// Structured JSON for everything else.
		log = zerolog.New(out)
	}

	return log.Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

// Nop returns a logger that discards everything. Components treat it as the
// default when the caller provides none.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// ParseLevel maps the configuration level enum (DEBUG, INFO, WARNING, ERROR,
// case-insensitive) to a zerolog level. Unknown values fall back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
