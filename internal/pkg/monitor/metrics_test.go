package monitor

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProcessStats(t *testing.T) {
	stats := GetProcessStats()
	require.NotNil(t, stats)
	assert.Equal(t, int32(os.Getpid()), stats.PID)
	assert.Positive(t, stats.Goroutines)
	if !stats.StartedAt.IsZero() {
		assert.True(t, stats.StartedAt.Before(time.Now().Add(time.Second)))
	}
}

func TestGetHostInfo(t *testing.T) {
	info, err := GetHostInfo()
	require.NoError(t, err)
	assert.NotEmpty(t, info.OS)
	assert.NotEmpty(t, info.Arch)
	assert.Positive(t, info.CPUCores)
}

func TestGetSystemMetrics(t *testing.T) {
	metrics, err := GetSystemMetrics()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, metrics.MemoryUsage, 0.0)
}
