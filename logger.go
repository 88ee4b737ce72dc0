package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

const eventTimeFormat = "2006-01-02 15:04:05"

// newEventLogger opens the append-only event log at path, creating the
// parent directory if missing. The caller owns the returned file.
func newEventLogger(path string) (zerolog.Logger, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("open log file: %w", err)
	}
	return eventLoggerTo(f), f, nil
}

// eventLoggerTo builds a logger that emits one
// "YYYY-MM-DD HH:MM:SS - <message>" line per event.
func eventLoggerTo(w io.Writer) zerolog.Logger {
	cw := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: eventTimeFormat,
		FormatLevel: func(interface{}) string {
			return "-"
		},
	}
	return zerolog.New(cw).With().Timestamp().Logger()
}
