package poller

import (
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/patze/bridge/internal/telemetry"
)

// CollectHostStats samples host CPU and memory. Sampling failures yield
// zeroed fields rather than an error; a heartbeat with empty stats is still
// a liveness signal.
func CollectHostStats() telemetry.HostStats {
	var stats telemetry.HostStats

	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		stats.CPUPercent = pcts[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemoryPercent = vm.UsedPercent
		stats.MemoryUsedMB = float64(vm.Used) / 1024 / 1024
	}

	return stats
}
