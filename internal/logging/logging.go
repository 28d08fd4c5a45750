package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ZanzyTHEbar/mcp-mindgraph-go/internal/config"
)

// Config controls the process-wide logger.
type Config struct {
	Level  string
	Format string // "console" or "json"
	Output io.Writer
}

// NewConfig reads LOG_LEVEL and LOG_FORMAT.
func NewConfig() Config {
	return Config{
		Level:  config.GetString("LOG_LEVEL", "info"),
		Format: config.GetString("LOG_FORMAT", "console"),
	}
}

// Setup installs the global zerolog logger and returns it. Output defaults to
// stderr; stdout is reserved for protocol traffic.
func Setup(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	w := out
	if !strings.EqualFold(cfg.Format, "json") {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(w).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}
