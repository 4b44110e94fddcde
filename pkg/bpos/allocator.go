package bpos

import "sync/atomic"

// Allocator tracks process-wide byte accounting for storage buffers, spec.md
// §5: "the allocator is process-wide and thread-safe; it maintains
// current_bytes and high_water_bytes counters (the high-water figure is a
// diagnostic, not a limit)."
type Allocator struct {
	current   atomic.Int64
	highWater atomic.Int64
}

// NewAllocator returns a zeroed Allocator.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Alloc records n bytes as allocated and returns the new current total.
func (a *Allocator) Alloc(n int) int64 {
	cur := a.current.Add(int64(n))
	for {
		hw := a.highWater.Load()
		if cur <= hw || a.highWater.CompareAndSwap(hw, cur) {
			break
		}
	}
	return cur
}

// Free records n bytes as released and returns the new current total.
func (a *Allocator) Free(n int) int64 {
	return a.current.Add(-int64(n))
}

// CurrentBytes returns the live allocation total.
func (a *Allocator) CurrentBytes() int64 { return a.current.Load() }

// HighWaterBytes returns the largest CurrentBytes ever observed.
func (a *Allocator) HighWaterBytes() int64 { return a.highWater.Load() }
