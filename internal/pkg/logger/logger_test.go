package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auroraagent/internal/config"
)

func TestInitLogger_FileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "aurora.log")
	lm, err := InitLogger(&config.LogConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: path,
		MaxSize:  1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { LoggerInstance = nil })

	LogTaskTransition("toolA", "task-1", "completed", 0, 12, map[string]interface{}{"exit_code": 0})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &record))
	assert.Equal(t, "task", record["type"])
	assert.Equal(t, "toolA", record["agent"])
	assert.Equal(t, "completed", record["status"])
	assert.Contains(t, record, "timestamp")
	assert.Equal(t, lm, LoggerInstance)
}

func TestInitLogger_RejectsUnknownFormat(t *testing.T) {
	_, err := InitLogger(&config.LogConfig{Level: "info", Format: "xml", Output: "stdout"})
	assert.Error(t, err)

	_, err = InitLogger(nil)
	assert.Error(t, err)
}

func TestHelpers_NoInstance(t *testing.T) {
	LoggerInstance = nil
	assert.NotPanics(t, func() {
		Info("ignored")
		LogSystemEvent("test", "noop", "ignored", WarnLevel, nil)
		LogRecoveryEvent("input", "crashed", 1, "boom", nil)
		LogError("input", assert.AnError, nil)
	})
}
