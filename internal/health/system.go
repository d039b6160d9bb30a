package health

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

const bytesPerGB = 1024 * 1024 * 1024

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// CPUProbe samples CPU usage over one second; healthy below threshold percent.
func CPUProbe(threshold float64) Probe {
	return ProbeFunc(func(ctx context.Context) (ProbeResult, error) {
		percents, err := cpu.PercentWithContext(ctx, time.Second, false)
		if err != nil {
			return ProbeResult{}, fmt.Errorf("cpu percent: %w", err)
		}
		if len(percents) == 0 {
			return ProbeResult{}, fmt.Errorf("cpu percent: no samples")
		}
		p := round2(percents[0])
		return ProbeResult{
			Healthy: p < threshold,
			Details: map[string]any{
				"cpu_percent": p,
				"message":     fmt.Sprintf("CPU at %.1f%%", p),
			},
		}, nil
	})
}

// MemoryProbe is healthy while used memory is below threshold percent.
func MemoryProbe(threshold float64) Probe {
	return ProbeFunc(func(ctx context.Context) (ProbeResult, error) {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return ProbeResult{}, fmt.Errorf("virtual memory: %w", err)
		}
		p := round2(vm.UsedPercent)
		return ProbeResult{
			Healthy: p < threshold,
			Details: map[string]any{
				"memory_percent": p,
				"available_gb":   round2(float64(vm.Available) / bytesPerGB),
				"message":        fmt.Sprintf("Memory at %.1f%%", p),
			},
		}, nil
	})
}

// DiskProbe is healthy while usage of the filesystem at path is below
// threshold percent.
func DiskProbe(path string, threshold float64) Probe {
	return ProbeFunc(func(ctx context.Context) (ProbeResult, error) {
		usage, err := disk.UsageWithContext(ctx, path)
		if err != nil {
			return ProbeResult{}, fmt.Errorf("disk usage %s: %w", path, err)
		}
		p := round2(usage.UsedPercent)
		return ProbeResult{
			Healthy: p < threshold,
			Details: map[string]any{
				"disk_percent": p,
				"free_gb":      round2(float64(usage.Free) / bytesPerGB),
				"path":         path,
				"message":      fmt.Sprintf("Disk at %.1f%%", p),
			},
		}, nil
	})
}
