package api

import (
	"context"
	"runtime"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemStats is a host snapshot for judging playback headroom
type SystemStats struct {
	NumCPU     int `json:"num_cpu"`
	Goroutines int `json:"goroutines"`

	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	Load1         float64 `json:"load_1"`
	Load5         float64 `json:"load_5"`
	Load15        float64 `json:"load_15"`
}

// CollectSystemStats gathers host metrics. Collectors that fail leave
// their fields zero.
func CollectSystemStats(ctx context.Context, logger hclog.Logger) SystemStats {
	stats := SystemStats{
		NumCPU:     runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
	}

	// interval 0 compares against the previous call
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	} else if err != nil {
		logger.Debug("failed to read cpu usage", "error", err)
	}

	if memStats, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryPercent = memStats.UsedPercent
		stats.MemoryUsedMB = float64(memStats.Used) / (1024 * 1024)
		stats.MemoryTotalMB = float64(memStats.Total) / (1024 * 1024)
	} else {
		logger.Debug("failed to read memory usage", "error", err)
	}

	if loadStats, err := load.AvgWithContext(ctx); err == nil {
		stats.Load1 = loadStats.Load1
		stats.Load5 = loadStats.Load5
		stats.Load15 = loadStats.Load15
	} else {
		logger.Debug("failed to read load average", "error", err)
	}
	return stats
}
