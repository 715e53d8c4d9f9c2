package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	charmlog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]charmlog.Level{
		"debug":   charmlog.DebugLevel,
		"INFO":    charmlog.InfoLevel,
		"":        charmlog.WarnLevel,
		"warning": charmlog.WarnLevel,
		" error ": charmlog.ErrorLevel,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Output: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("Rate limited, waiting", "delay", "2s")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "Rate limited, waiting")
	assert.Contains(t, out, "delay=2s")
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "debug", JSON: true, Output: &buf})
	require.NoError(t, err)

	logger.Debug("Tool call", "tool", "Wikipedia")

	line := strings.TrimSpace(buf.String())
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "Tool call", rec["msg"])
	assert.Equal(t, "Wikipedia", rec["tool"])
}
