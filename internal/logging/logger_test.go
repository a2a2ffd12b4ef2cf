package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/fetchctl/internal/config"
)

func TestNewLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{
		ServiceName: "fetchctl",
		Host:        "localhost",
		ControlPort: 13555,
		LogLevel:    "info",
	})

	logger.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "fetchctl", line["service"])
	assert.Equal(t, "localhost", line["host"])
	assert.Equal(t, float64(13555), line["control_port"])
	assert.Equal(t, "hello", line["message"])
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{LogLevel: "warn"})

	logger.Info().Msg("dropped")
	assert.Empty(t, buf.String())

	logger.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{LogLevel: "chatty"})

	logger.Debug().Msg("dropped")
	logger.Info().Msg("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}
