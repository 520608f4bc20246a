package monitor

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats describes the scanner process itself.
type ProcessStats struct {
	PID        int       `json:"pid"`
	CPUPercent float64   `json:"cpuPercent"`
	RSSBytes   uint64    `json:"rssBytes"`
	Threads    int32     `json:"threads"`
	StartedAt  time.Time `json:"startedAt"`
}

// SampleProcess reads resource usage for pid.
func SampleProcess(pid int) (ProcessStats, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return ProcessStats{}, fmt.Errorf("process %d: %w", pid, err)
	}

	stats := ProcessStats{PID: pid}
	if cpu, err := p.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		stats.RSSBytes = mem.RSS
	}
	if n, err := p.NumThreads(); err == nil {
		stats.Threads = n
	}
	if ms, err := p.CreateTime(); err == nil {
		stats.StartedAt = time.UnixMilli(ms)
	}
	return stats, nil
}

// SampleSelf reads resource usage for the current process.
func SampleSelf() (ProcessStats, error) {
	return SampleProcess(os.Getpid())
}
