package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrFull is returned by RAMQueue.Create when the per-channel queue is at
// capacity and timeout elapses before room frees up.
var ErrFull = errors.New("storage: ram queue full")

// ErrNotFound is returned by RAMQueue.Delete and FileStore.Delete when cid
// names no stored entry.
var ErrNotFound = errors.New("storage: entry not found")

type ramEntry struct {
	cid      uint64
	isRecord bool
	payload  []byte
}

// RAMQueue is an in-memory Store: a bounded, per-channel FIFO queue gated by
// a semaphore.Weighted so concurrent Create calls block (rather than
// allocate unbounded memory) once the channel is full, matching spec.md
// §5's "at most one thread mutates a channel's table" budget discipline
// extended to the storage layer.
type RAMQueue struct {
	mu       sync.Mutex
	capacity int64
	sems     map[any]*semaphore.Weighted
	queues   map[any][]ramEntry
	nextCID  map[any]uint64
}

// NewRAMQueue returns a RAMQueue where every channel is capped at capacity
// in-flight fragments.
func NewRAMQueue(capacity int64) *RAMQueue {
	return &RAMQueue{
		capacity: capacity,
		sems:     make(map[any]*semaphore.Weighted),
		queues:   make(map[any][]ramEntry),
		nextCID:  make(map[any]uint64),
	}
}

func (q *RAMQueue) semFor(parm any) *semaphore.Weighted {
	q.mu.Lock()
	defer q.mu.Unlock()
	sem, ok := q.sems[parm]
	if !ok {
		sem = semaphore.NewWeighted(q.capacity)
		q.sems[parm] = sem
	}
	return sem
}

// Create enqueues payload for channel parm, blocking up to timeout if the
// channel is at capacity. A zero timeout never blocks; a negative one waits
// with no limit.
func (q *RAMQueue) Create(parm any, isRecord bool, payload []byte, timeout time.Duration) error {
	sem := q.semFor(parm)

	if timeout == 0 {
		if !sem.TryAcquire(1) {
			return ErrFull
		}
	} else {
		var ctx context.Context
		var cancel context.CancelFunc
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(context.Background(), timeout)
		} else {
			ctx, cancel = context.WithCancel(context.Background())
		}
		defer cancel()
		if err := sem.Acquire(ctx, 1); err != nil {
			return ErrFull
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	cid := q.nextCID[parm]
	q.nextCID[parm] = cid + 1
	stored := append([]byte(nil), payload...)
	q.queues[parm] = append(q.queues[parm], ramEntry{cid: cid, isRecord: isRecord, payload: stored})
	return nil
}

// Delete removes the entry that Create numbered cid for channel parm
// (entries are numbered per channel in creation order, from 0), freeing one
// slot in that channel's semaphore.
func (q *RAMQueue) Delete(parm any, cid uint64, flags uint32) error {
	sem := q.semFor(parm)

	q.mu.Lock()
	defer q.mu.Unlock()
	entries := q.queues[parm]
	for i, e := range entries {
		if e.cid == cid {
			q.queues[parm] = append(entries[:i], entries[i+1:]...)
			sem.Release(1)
			return nil
		}
	}
	return ErrNotFound
}

// Len reports how many entries are currently queued for parm, for tests.
func (q *RAMQueue) Len(parm any) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[parm])
}
