package docker

import (
	"errors"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
)

func TestCalculateStats(t *testing.T) {
	stats := &container.StatsResponse{}
	stats.CPUStats.CPUUsage.TotalUsage = 200
	stats.PreCPUStats.CPUUsage.TotalUsage = 100
	stats.CPUStats.SystemUsage = 1100
	stats.PreCPUStats.SystemUsage = 100
	stats.CPUStats.OnlineCPUs = 2
	stats.MemoryStats.Usage = 512 * 1024 * 1024
	stats.MemoryStats.Limit = 1024 * 1024 * 1024
	stats.Networks = map[string]container.NetworkStats{
		"eth0": {RxBytes: 1000, TxBytes: 2000},
		"eth1": {RxBytes: 10, TxBytes: 20},
	}
	stats.BlkioStats.IoServiceBytesRecursive = []container.BlkioStatEntry{
		{Op: "Read", Value: 4096},
		{Op: "Write", Value: 8192},
		{Op: "read", Value: 100},
	}
	stats.PidsStats.Current = 12

	result := calculateStats(stats)

	// 100 cpu ticks of 1000 system ticks across 2 CPUs.
	assert.InDelta(t, 20.0, result.CPUPercent, 0.001)
	assert.Equal(t, int64(512*1024*1024), result.MemoryUsageBytes)
	assert.InDelta(t, 50.0, result.MemoryPercent, 0.001)
	assert.Equal(t, int64(1010), result.NetworkRxBytes)
	assert.Equal(t, int64(2020), result.NetworkTxBytes)
	assert.Equal(t, int64(4196), result.BlockReadBytes)
	assert.Equal(t, int64(8192), result.BlockWriteBytes)
	assert.Equal(t, 12, result.PIDs)
}

func TestCalculateStatsZeroDeltas(t *testing.T) {
	result := calculateStats(&container.StatsResponse{})
	assert.Zero(t, result.CPUPercent)
	assert.Zero(t, result.MemoryPercent)
}

func TestErrorFormatting(t *testing.T) {
	err := NewError("StartContainer", "container", "abc123", "container not found", ErrContainerNotFound)
	assert.Equal(t, "StartContainer container abc123: container not found", err.Error())
	assert.True(t, errors.Is(err, ErrContainerNotFound))

	err = NewError("Prune", "image", "", "prune failed", nil)
	assert.Equal(t, "Prune image: prune failed", err.Error())

	err = NewError("Ping", "", "", "daemon down", ErrConnectionFailed)
	assert.Equal(t, "Ping: daemon down", err.Error())
}
