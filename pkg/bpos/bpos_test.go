package bpos

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtn7/bpv6engine/pkg/bpevent"
)

func TestRuntimeLockRegistryReusesNamedLock(t *testing.T) {
	rt := NewRuntime(NewSystemClock(), NewLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	a := rt.Lock("channel-1")
	b := rt.Lock("channel-1")
	assert.Same(t, a, b)

	c := rt.Lock("channel-2")
	assert.NotSame(t, a, c)
}

func TestNamedLockWaitZeroTimeoutReturnsImmediately(t *testing.T) {
	l := newNamedLock("x")
	l.Lock()
	defer l.Unlock()

	err := l.Wait(context.Background(), 0)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestNamedLockWaitSignaled(t *testing.T) {
	l := newNamedLock("x")
	go func() {
		time.Sleep(10 * time.Millisecond)
		l.Lock()
		l.Signal()
		l.Unlock()
	}()

	l.Lock()
	defer l.Unlock()
	err := l.Wait(context.Background(), -1)
	assert.NoError(t, err)
}

func TestNamedLockWaitContextCanceled(t *testing.T) {
	l := newNamedLock("x")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	l.Lock()
	defer l.Unlock()
	err := l.Wait(ctx, -1)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestFakeClockRepeatsAndErrorsScripted(t *testing.T) {
	c := NewFakeClock(100, 90, 95).WithErrorAt(1, ErrUnreliableClock)

	s, err := c.Now()
	require.NoError(t, err)
	assert.EqualValues(t, 100, s)

	s, err = c.Now()
	assert.ErrorIs(t, err, ErrUnreliableClock)
	assert.EqualValues(t, 90, s)

	s, err = c.Now()
	require.NoError(t, err)
	assert.EqualValues(t, 95, s)

	s, _ = c.Now()
	assert.EqualValues(t, 95, s, "repeats the final scripted reading")
}

func TestAllocatorTracksHighWater(t *testing.T) {
	a := NewAllocator()
	a.Alloc(100)
	a.Alloc(50)
	assert.EqualValues(t, 150, a.CurrentBytes())
	assert.EqualValues(t, 150, a.HighWaterBytes())

	a.Free(120)
	assert.EqualValues(t, 30, a.CurrentBytes())
	assert.EqualValues(t, 150, a.HighWaterBytes(), "high water is a diagnostic, not a limit")
}

func TestLoggerSetsFlagsBit(t *testing.T) {
	l := NewLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	var flags bpevent.Flags
	l.Log(&flags, bpevent.UnreliableTime, "clock went backwards")
	assert.True(t, flags.Has(bpevent.UnreliableTime))
}
