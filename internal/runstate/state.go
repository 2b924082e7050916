// Package runstate owns the shared mutable state of one pipeline run.
//
// All run-wide counters and the pause flag live behind a single mutex held
// by the Coordinator. Workers never touch the fields directly; every
// mutation goes through a method so done and failed can only move under
// the lock. The lock is held only for the counter update itself, never
// across a fetch or file write.
package runstate

import "sync"

// Snapshot is a consistent view of the counters, taken under the lock.
type Snapshot struct {
	Done   int
	Failed int
	Total  int
}

// Succeeded derives the success count; Done counts every finished link.
func (s Snapshot) Succeeded() int {
	return s.Done - s.Failed
}

// Coordinator mediates access to the run counters and the pause flag.
type Coordinator struct {
	mu     sync.Mutex
	done   int
	failed int
	total  int
	paused bool
}

// New creates a Coordinator for a run over total links.
func New(total int) *Coordinator {
	return &Coordinator{total: total}
}

// IncrementDone records one finished link (success or exhausted failure).
func (c *Coordinator) IncrementDone() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done++
}

// IncrementFailed records one exhausted-retry failure.
func (c *Coordinator) IncrementFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed++
}

// TogglePause flips the pause flag and returns the new value.
func (c *Coordinator) TogglePause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = !c.paused
	return c.paused
}

// SetPaused forces the pause flag.
func (c *Coordinator) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
}

// IsPaused reports whether new fetch attempts are suspended. Pause is
// cooperative: it never cancels an attempt already in flight.
func (c *Coordinator) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Snapshot returns done, failed and total as one consistent triple.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Done: c.done, Failed: c.failed, Total: c.total}
}
