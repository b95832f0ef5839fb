// Package stats holds the emulator's paging and CPU-utilization
// counters (spec.md §4.8), updated from the Memory Manager and the
// Scheduler Loop.
package stats

import "sync/atomic"

// Sink aggregates the counters required by spec.md §4.8. All fields are
// 64-bit and monotonically non-decreasing (invariant 7).
type Sink struct {
	pagedIn     atomic.Int64
	pagedOut    atomic.Int64
	activeTicks atomic.Int64
	idleTicks   atomic.Int64
}

// New returns a zeroed Sink.
func New() *Sink {
	return &Sink{}
}

func (s *Sink) IncPagedIn()  { s.pagedIn.Add(1) }
func (s *Sink) IncPagedOut() { s.pagedOut.Add(1) }

// AddActive and AddIdle are called once per scheduler iteration with the
// per-tick occupied/idle core counts.
func (s *Sink) AddActive(n int64) { s.activeTicks.Add(n) }
func (s *Sink) AddIdle(n int64)   { s.idleTicks.Add(n) }

func (s *Sink) PagedIn() int64     { return s.pagedIn.Load() }
func (s *Sink) PagedOut() int64    { return s.pagedOut.Load() }
func (s *Sink) ActiveTicks() int64 { return s.activeTicks.Load() }
func (s *Sink) IdleTicks() int64   { return s.idleTicks.Load() }

// Utilization returns the fraction of core-ticks spent active, or 0 if
// no ticks have elapsed yet.
func (s *Sink) Utilization() float64 {
	active, idle := s.activeTicks.Load(), s.idleTicks.Load()
	total := active + idle
	if total == 0 {
		return 0
	}
	return float64(active) / float64(total)
}

// Snapshot is an immutable copy of the counters, safe to hand to report
// formatting code without holding any lock.
type Snapshot struct {
	PagedIn     int64
	PagedOut    int64
	ActiveTicks int64
	IdleTicks   int64
}

func (s *Sink) Snapshot() Snapshot {
	return Snapshot{
		PagedIn:     s.PagedIn(),
		PagedOut:    s.PagedOut(),
		ActiveTicks: s.ActiveTicks(),
		IdleTicks:   s.IdleTicks(),
	}
}
