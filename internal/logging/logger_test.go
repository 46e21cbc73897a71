package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" DEBUG ": zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for name, want := range tests {
		assert.Equal(t, want, ParseLevel(name), name)
	}
}

func TestNewWritesStructuredEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "barkd.log")

	logger, err := New(WithLevel("warn"), WithDeviceID("porch-1"), WithOutput(path))
	require.NoError(t, err)

	logger.Info("dropped by level")
	logger.Warn("battery low")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "battery low", entry["msg"])
	assert.Equal(t, "porch-1", entry["device_id"])
	assert.Contains(t, entry, "time")
}

func TestDevelopmentKeepsLevel(t *testing.T) {
	logger, err := New(WithLevel("error"), WithDevelopment(), WithOutput(filepath.Join(t.TempDir(), "dev.log")))
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.WarnLevel))
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))
}
