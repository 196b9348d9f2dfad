// Package hoststats takes snapshots of the host's CPU and memory availability.
package hoststats

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const bytesPerMB = 1024 * 1024

// Stats is a point-in-time view of host resources.
type Stats struct {
	AvailableMB uint64 `json:"available_mb"`
	CPUCores    int    `json:"cpu_cores"`
}

// HostStats reports host resources.
type HostStats interface {
	Snapshot() (Stats, error)
}

// System reads host resources through gopsutil.
type System struct{}

// NewSystem returns a System.
func NewSystem() *System {
	return &System{}
}

// Snapshot returns the available memory and the logical core count.
func (s *System) Snapshot() (Stats, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Stats{}, fmt.Errorf("read memory stats: %w", err)
	}

	cores, err := cpu.Counts(true)
	if err != nil || cores <= 0 {
		cores = runtime.NumCPU()
	}

	return Stats{
		AvailableMB: vm.Available / bytesPerMB,
		CPUCores:    cores,
	}, nil
}

// Static always reports the same values. Err, when set, is returned instead.
type Static struct {
	Stats Stats
	Err   error
}

func (s Static) Snapshot() (Stats, error) {
	if s.Err != nil {
		return Stats{}, s.Err
	}
	return s.Stats, nil
}
