package proctree

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
)

// Usage is the combined resource usage of a process tree.
type Usage struct {
	Processes  int
	CPUPercent float64
	RSS        uint64
}

// TreeUsage sums CPU and resident memory over pid and its descendants.
// Processes that exit while being sampled are skipped.
func TreeUsage(pid int) (Usage, error) {
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		return Usage{}, err
	}
	procs, err := Descendants(pid)
	if err != nil {
		return Usage{}, err
	}

	var u Usage
	for _, p := range append([]*process.Process{root}, procs...) {
		mem, err := p.MemoryInfo()
		if err != nil {
			continue
		}
		u.Processes++
		u.RSS += mem.RSS
		if cpu, err := p.CPUPercent(); err == nil {
			u.CPUPercent += cpu
		}
	}
	return u, nil
}

func (u Usage) String() string {
	return fmt.Sprintf("CPU %.1f%% · MEM %s · %d proc", u.CPUPercent, FormatBytes(u.RSS), u.Processes)
}

// FormatBytes formats bytes into a human-readable string
func FormatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
