package relay

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostInfo describes the machine the relay runs on. Host queries that are not
// supported on the platform are skipped.
func HostInfo(ctx context.Context) ([]string, error) {
	h, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("host info: %w", err)
	}
	lines := []string{
		"\x1b[1;36mSystem Information:\x1b[0m",
		"  Hostname: " + h.Hostname,
		fmt.Sprintf("  OS: %s %s (%s)", h.Platform, h.PlatformVersion, h.KernelArch),
		"  Uptime: " + (time.Duration(h.Uptime) * time.Second).String(),
	}

	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		lines = append(lines, fmt.Sprintf("  CPUs: %d", n))
	} else {
		lines = append(lines, fmt.Sprintf("  CPUs: %d", runtime.NumCPU()))
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		lines = append(lines, fmt.Sprintf("  Load: %.2f %.2f %.2f", avg.Load1, avg.Load5, avg.Load15))
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		lines = append(lines, fmt.Sprintf("  Memory: %s / %s (%.1f%%)",
			formatBytes(vm.Used), formatBytes(vm.Total), vm.UsedPercent))
	}
	return lines, nil
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
