package compressor

const (
	maxWorkers      = 8
	lowMemoryMB     = 512
	mediumMemoryMB  = 1024
	lowMemoryCap    = 2
	mediumMemoryCap = 4
)

// PlanWorkers maps the host's available memory and core count to a worker
// count in [1, 8]. Hosts under 512 MB get at most 2 workers, under 1 GB at
// most 4.
func PlanWorkers(availableMB uint64, cpuCores int) int {
	workers := min(cpuCores, maxWorkers)

	if availableMB < lowMemoryMB {
		workers = min(workers, lowMemoryCap)
	} else if availableMB < mediumMemoryMB {
		workers = min(workers, mediumMemoryCap)
	}

	return max(workers, 1)
}
