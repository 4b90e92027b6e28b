package system

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealthSnapshot summarises process and host resource usage for the health
// endpoint.
type HealthSnapshot struct {
	Status        string    `json:"status"`
	PID           int       `json:"pid"`
	Uptime        string    `json:"uptime"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	CheckedAt     time.Time `json:"checked_at"`
}

var processStart = time.Now()

// Snapshot gathers current resource usage. Collection failures degrade to
// zero values rather than failing the health check.
func Snapshot() HealthSnapshot {
	snap := HealthSnapshot{
		Status:    "ok",
		PID:       os.Getpid(),
		Uptime:    time.Since(processStart).Round(time.Second).String(),
		CheckedAt: time.Now().UTC(),
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemoryPercent = vm.UsedPercent
	}
	return snap
}
