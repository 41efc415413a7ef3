package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level      string `json:"level" yaml:"level"`
	Output     string `json:"output" yaml:"output"` // "stdout", "stderr", or file path
	Component  string `json:"component" yaml:"component"`
	JSONFormat bool   `json:"json_format" yaml:"json_format"` // false renders a console writer
}

// DefaultConfig returns JSON info logging to stdout
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Output:     "stdout",
		Component:  "app",
		JSONFormat: true,
	}
}

// ParseLevel converts a string to a zerolog level, defaulting to info
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates the root logger. The returned closer releases the output
// file, if any.
func New(cfg Config) (zerolog.Logger, io.Closer) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}

	switch cfg.Output {
	case "", "stdout":
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			output = file
			closer = file
		}
	}

	if !cfg.JSONFormat {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	component := cfg.Component
	if component == "" {
		component = "app"
	}

	logger := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("component", component).
		Logger()
	return logger, closer
}

// Component returns a child logger tagged with component
func Component(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
