package dispatch

import (
	"github.com/shirou/gopsutil/v3/mem"
)

// memoryUsagePercent returns system memory utilization as a percentage.
// ok is false when stats are unavailable, in which case callers should
// assume the host is fine rather than stall the queue.
func memoryUsagePercent() (percent float64, ok bool) {
	v, err := mem.VirtualMemory()
	if err != nil || v.Total == 0 {
		return 0, false
	}
	return v.UsedPercent, true
}
