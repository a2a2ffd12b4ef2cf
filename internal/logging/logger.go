package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/fetchctl/internal/config"
)

// NewLogger creates a structured zerolog.Logger writing to stderr, so that
// command output on stdout stays machine-readable.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return newLogger(os.Stderr, cfg)
}

func newLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp()

	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if cfg.Host != "" && cfg.ControlPort != 0 {
		ctx = ctx.Str("host", cfg.Host).Int("control_port", cfg.ControlPort)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
