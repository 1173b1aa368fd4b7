package sysinfo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMemInfo = `MemTotal:       16384000 kB
MemFree:         2048000 kB
MemAvailable:    8192000 kB
Buffers:          512000 kB
Cached:          4096000 kB
`

func TestParseMemInfo(t *testing.T) {
	total, avail, err := parseMemInfo(strings.NewReader(sampleMemInfo))
	require.NoError(t, err)
	assert.Equal(t, int64(16384000), total)
	assert.Equal(t, int64(8192000), avail)
}

func TestParseMemInfoMissingFields(t *testing.T) {
	total, avail, err := parseMemInfo(strings.NewReader("SwapTotal: 0 kB\n"))
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, avail)
}

func TestMemInfoValue(t *testing.T) {
	assert.Equal(t, int64(16384000), memInfoValue("MemTotal:       16384000 kB"))
	assert.Equal(t, int64(0), memInfoValue("MemTotal:"))
	assert.Equal(t, int64(0), memInfoValue("MemTotal: garbage kB"))
}

func TestParseCPULine(t *testing.T) {
	// user=100 nice=0 system=50 idle=800 iowait=50
	idle, total := parseCPULine("cpu  100 0 50 800 50 0 0 0 0 0")
	assert.Equal(t, uint64(800), idle)
	assert.Equal(t, uint64(1000), total)
}

func TestParseCPULineTooShort(t *testing.T) {
	idle, total := parseCPULine("cpu 1 2")
	assert.Zero(t, idle)
	assert.Zero(t, total)
}

func TestCPUPercent(t *testing.T) {
	// 1000 ticks elapsed, 800 of them idle: 20% used.
	assert.InDelta(t, 20.0, cpuPercent(0, 0, 800, 1000), 0.001)
	// No elapsed time yields zero, not NaN.
	assert.Zero(t, cpuPercent(100, 1000, 100, 1000))
}

func TestCollectReportsPlatform(t *testing.T) {
	snap := Collect()
	assert.NotEmpty(t, snap.OS)
	assert.NotEmpty(t, snap.Arch)
	assert.Greater(t, snap.CPUCores, 0)
}
