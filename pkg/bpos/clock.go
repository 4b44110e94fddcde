package bpos

import (
	"errors"
	"sync"
	"time"
)

// Epoch2000 is the BPv6 creation-timestamp origin: 2000-01-01T00:00:00Z.
var Epoch2000 = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// ErrUnreliableClock is returned when the clock reads before the epoch or
// goes backwards since the previous call, spec.md §6's clock collaborator.
var ErrUnreliableClock = errors.New("bpos: clock reading is before epoch or retrograde")

// Clock is the monotonic wall-clock collaborator, spec.md §6: "systime(&seconds)
// -> status; returns ERROR if the clock is before epoch-2000 or goes
// backwards since the last call."
type Clock interface {
	Now() (seconds int64, err error)
}

// SystemClock is the production Clock, backed by the host's wall clock.
// It is safe for concurrent use.
type SystemClock struct {
	mu   sync.Mutex
	last int64
}

// NewSystemClock returns a SystemClock with no prior reading recorded.
func NewSystemClock() *SystemClock {
	return &SystemClock{last: -1}
}

func (c *SystemClock) Now() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Since(Epoch2000).Seconds()
	seconds := int64(now)
	if seconds < 0 {
		return 0, ErrUnreliableClock
	}
	if c.last >= 0 && seconds < c.last {
		c.last = seconds
		return seconds, ErrUnreliableClock
	}
	c.last = seconds
	return seconds, nil
}

// FakeClock is a test-only Clock that returns a caller-scripted sequence of
// readings, letting send-path tests drive UNRELIABLE_TIME / retrograde
// scenarios deterministically (spec.md §8's "Time monotonicity" property).
type FakeClock struct {
	mu       sync.Mutex
	readings []int64
	errs     []error
	pos      int
}

// NewFakeClock returns a FakeClock that yields readings in order, repeating
// the final one once exhausted.
func NewFakeClock(readings ...int64) *FakeClock {
	return &FakeClock{readings: readings}
}

// WithErrorAt marks the reading at index i as unreliable.
func (c *FakeClock) WithErrorAt(i int, err error) *FakeClock {
	for len(c.errs) <= i {
		c.errs = append(c.errs, nil)
	}
	c.errs[i] = err
	return c
}

func (c *FakeClock) Now() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.pos
	if i >= len(c.readings) {
		i = len(c.readings) - 1
	}
	if c.pos < len(c.readings) {
		c.pos++
	}
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	return c.readings[i], err
}
