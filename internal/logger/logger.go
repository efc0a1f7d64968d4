package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"beacon/internal/models"
)

var (
	// Logger is the global logger instance; discards output until Init is called
	Logger = zerolog.Nop()
)

// Init initializes the global logger on stdout
func Init(level string) {
	Logger = New(level, os.Stdout)

	Logger.Info().
		Str("level", zerolog.GlobalLevel().String()).
		Msg("logger initialized")
}

// New builds a logger writing to w. An unknown level falls back to info.
// LOG_FORMAT=console switches to human readable output.
func New(level string, w io.Writer) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if os.Getenv("LOG_FORMAT") == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		With().
		Timestamp().
		Str("service", "nmsd").
		Logger()
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithDevice returns a component logger bound to one device
func WithDevice(component string, id models.DeviceID) zerolog.Logger {
	return Logger.With().
		Str("component", component).
		Int64("device_id", int64(id)).
		Logger()
}

// WithRequestID returns a logger with a request ID field
func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}
