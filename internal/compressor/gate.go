package compressor

import "sync"

// DefaultFailureThreshold is the number of failures a batch tolerates before
// it stops starting new jobs.
const DefaultFailureThreshold = 10

const abortedMessage = "Too many errors, stopping early"

// failureGate counts failed jobs of one batch. The lock is only held for the
// compare or the increment, never across a decode or encode.
type failureGate struct {
	mu        sync.Mutex
	failures  int
	threshold int
}

func newFailureGate(threshold int) *failureGate {
	return &failureGate{threshold: threshold}
}

// exceeded reports whether more than threshold failures have been recorded.
func (g *failureGate) exceeded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures > g.threshold
}

// record counts one failure and returns the new total.
func (g *failureGate) record() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	return g.failures
}

func (g *failureGate) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures
}
