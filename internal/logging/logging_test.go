package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := Component(New("debug", FormatJSON, &buf), "store")
	l.Info().Str("case_id", "c1").Msg("created")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "store", entry["component"])
	assert.Equal(t, "c1", entry["case_id"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New("warn", FormatJSON, &buf)
	l.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	l.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	l := New("loud", FormatJSON, &bytes.Buffer{})
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	l := New("info", FormatConsole, &buf)
	l.Info().Msg("hello")
	assert.True(t, strings.Contains(buf.String(), "hello"))
	assert.False(t, json.Valid(buf.Bytes()))
	assert.NotContains(t, buf.String(), "\x1b[", "no colour codes off a terminal")
}
