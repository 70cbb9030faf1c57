package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })
}

func TestInitJSONFormatSetsLevelAndComponent(t *testing.T) {
	resetLevel(t)
	var buf bytes.Buffer

	logger := Init(Config{Format: "json", Level: "debug", Component: "portal", Out: &buf})
	logger.Debug().Str("state", "polling").Msg("checkout transition")

	var event map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &event))
	assert.Equal(t, "portal", event["component"])
	assert.Equal(t, "debug", event["level"])
	assert.Equal(t, "polling", event["state"])
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestInitLevelFiltersBelowThreshold(t *testing.T) {
	resetLevel(t)
	var buf bytes.Buffer

	logger := Init(Config{Format: "json", Level: "warn", Out: &buf})
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestInitConsoleFormat(t *testing.T) {
	resetLevel(t)
	var buf bytes.Buffer

	logger := Init(Config{Format: "console", Out: &buf})
	logger.Info().Msg("hello")

	assert.False(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"))
	assert.Contains(t, buf.String(), "hello")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestWithRequestID(t *testing.T) {
	ctx, id := WithRequestID(context.Background(), "")
	assert.NotEmpty(t, id)
	assert.Equal(t, id, RequestIDFrom(ctx))

	ctx, id = WithRequestID(ctx, " fixed ")
	assert.Equal(t, "fixed", id)
	assert.Equal(t, "fixed", RequestIDFrom(ctx))
	assert.Empty(t, RequestIDFrom(context.Background()))
}
