package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/dotbox/internal/config"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LogConfig{Level: "WARN", JSON: true}, &buf)
	require.NoError(t, err)

	log.Info().Msg("dropped")
	log.Warn().Str("sandbox_id", "abc").Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "abc", line["sandbox_id"])
	assert.Equal(t, "kept", line["message"])
	assert.Contains(t, line, "time")
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(config.LogConfig{}, &buf)
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("project_id", "demo").Msg("started")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "started")
	assert.Contains(t, out, "project_id=demo")
}

func TestNewBadLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}
