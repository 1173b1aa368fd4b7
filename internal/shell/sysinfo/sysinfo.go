// Package sysinfo probes host-level resources through /proc and syscalls.
// The environment validator uses it to decide whether a deployment should
// be allowed to proceed.
package sysinfo

import (
	"bufio"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is one observation of the host's resources.
type Snapshot struct {
	OS            string
	Arch          string
	CPUCores      int
	CPUUsedPct    float64
	MemoryTotalMB int64
	MemoryFreeMB  int64
	DiskTotalMB   int64
	DiskFreeMB    int64
}

// Collect gathers a host resource snapshot. Probe failures leave the
// corresponding fields zero rather than failing the whole snapshot; the
// caller decides which zeros are acceptable.
func Collect() Snapshot {
	snap := Snapshot{
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		CPUCores: runtime.NumCPU(),
	}

	if total, avail, err := readMemInfo("/proc/meminfo"); err == nil {
		snap.MemoryTotalMB = total / 1024 // /proc/meminfo reports in kB
		snap.MemoryFreeMB = avail / 1024
	}

	if total, free, err := diskSpace("/"); err == nil {
		snap.DiskTotalMB = total / (1024 * 1024)
		snap.DiskFreeMB = free / (1024 * 1024)
	}

	snap.CPUUsedPct = readCPUPercent()

	return snap
}

// DiskFreeMB returns free space on the filesystem holding path, in MB.
func DiskFreeMB(path string) (int64, error) {
	_, free, err := diskSpace(path)
	if err != nil {
		return 0, err
	}
	return free / (1024 * 1024), nil
}

func diskSpace(path string) (total, free int64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total = int64(stat.Blocks) * stat.Bsize
	free = int64(stat.Bavail) * stat.Bsize
	return total, free, nil
}

// =============================================================================
// /proc/meminfo
// =============================================================================

// readMemInfo reads MemTotal and MemAvailable (values in kB).
func readMemInfo(path string) (total, available int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	return parseMemInfo(f)
}

func parseMemInfo(r io.Reader) (total, available int64, err error) {
	scanner := bufio.NewScanner(r)
	var gotTotal, gotAvail bool
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "MemTotal:") {
			total = memInfoValue(line)
			gotTotal = true
		} else if strings.HasPrefix(line, "MemAvailable:") {
			available = memInfoValue(line)
			gotAvail = true
		}
		if gotTotal && gotAvail {
			break
		}
	}
	return total, available, scanner.Err()
}

// memInfoValue parses a line like "MemTotal:       16384000 kB" → 16384000.
func memInfoValue(line string) int64 {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return 0
	}
	val, _ := strconv.ParseInt(parts[1], 10, 64)
	return val
}

// =============================================================================
// /proc/stat
// =============================================================================

// readCPUPercent reads two /proc/stat samples 100ms apart and computes
// CPU usage %.
func readCPUPercent() float64 {
	idle1, total1 := readCPUSample("/proc/stat")
	if total1 == 0 {
		return 0
	}

	time.Sleep(100 * time.Millisecond)

	idle2, total2 := readCPUSample("/proc/stat")
	if total2 == 0 {
		return 0
	}

	return cpuPercent(idle1, total1, idle2, total2)
}

func cpuPercent(idle1, total1, idle2, total2 uint64) float64 {
	idleDelta := float64(idle2 - idle1)
	totalDelta := float64(total2 - total1)
	if totalDelta <= 0 {
		return 0
	}
	return (1.0 - idleDelta/totalDelta) * 100.0
}

func readCPUSample(path string) (idle, total uint64) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "cpu ") {
			return parseCPULine(scanner.Text())
		}
	}
	return 0, 0
}

// parseCPULine parses the aggregate "cpu" line from /proc/stat and returns
// idle and total ticks.
func parseCPULine(line string) (idle, total uint64) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return 0, 0
	}
	// fields: cpu user nice system idle iowait irq softirq steal guest guest_nice
	for i := 1; i < len(fields); i++ {
		val, _ := strconv.ParseUint(fields[i], 10, 64)
		total += val
		if i == 4 {
			idle = val
		}
	}
	return idle, total
}
