package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup initializes the global zerolog logger.
//   - level: trace, debug, info, warn, error, fatal, panic (defaults to info)
//   - format: "json" for production, "pretty" for human-readable dev output
func Setup(service, level, format string) zerolog.Logger {
	return New(os.Stdout, service, level, format)
}

// New builds a logger writing to w. Tests pass a buffer.
func New(w io.Writer, service, level, format string) zerolog.Logger {
	if format == "pretty" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	return zerolog.New(w).
		With().
		Timestamp().
		Str("service", service).
		Caller().
		Logger()
}
