package clog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "bad level", cfg: &Config{Level: "verbose"}},
		{name: "bad format", cfg: &Config{Format: "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			assert.Error(t, err)
			assert.Nil(t, logger)
		})
	}
}

func TestNewWithNilConfig(t *testing.T) {
	logger, err := New(nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Level: "debug", Format: "json"}, WithWriter(&buf))
	require.NoError(t, err)

	logger.Info("instance registered",
		String("service", "demo"),
		Int("port", 8080),
		Bool("healthy", true))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "instance registered", entry["msg"])
	assert.Equal(t, "demo", entry["service"])
	assert.Equal(t, float64(8080), entry["port"])
	assert.Equal(t, true, entry["healthy"])
}

func TestNamespace(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Format: "json"}, WithWriter(&buf), WithNamespace("agent"))
	require.NoError(t, err)

	logger.WithNamespace("heartbeat").Info("beat sent")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "agent.heartbeat", entry[NamespaceKey])
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Format: "json"}, WithWriter(&buf))
	require.NoError(t, err)

	child := logger.With(String("service", "demo"))
	child.Info("first")
	child.Info("second")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, line, `"service":"demo"`)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Level: "warn", Format: "json"}, WithWriter(&buf))
	require.NoError(t, err)

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))

	require.NoError(t, logger.SetLevel(DebugLevel))
	logger.Debug("kept now")
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("ERROR")
	require.NoError(t, err)
	assert.Equal(t, ErrorLevel, level)

	_, err = ParseLevel("nope")
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	logger := Noop()
	logger.Info("discarded")
	assert.NotNil(t, logger.With(String("k", "v")))
	assert.NotNil(t, logger.WithNamespace("x"))
}
