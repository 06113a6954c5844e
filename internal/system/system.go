package system

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	minWorkers = 1
	maxWorkers = 8
)

// RecommendedWorkers sizes the frame-synthesis worker pool from the
// machine's physical cores. When available memory is tight the count is
// halved: every in-flight worker holds at least one full RGBA canvas.
func RecommendedWorkers() int {
	workers, err := cpu.Counts(false)
	if err != nil || workers <= 0 {
		workers = runtime.NumCPU()
	}

	if vm, err := mem.VirtualMemory(); err == nil && vm.Available < 1<<30 {
		workers /= 2
	}

	if workers < minWorkers {
		workers = minWorkers
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}
	return workers
}
