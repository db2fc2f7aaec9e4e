package main

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// AdmissionQueue bounds concurrent downloads on two levels: a global pool of
// N slots shared by everyone, and one slot per user. A user who already has
// a download in flight waits on their own slot and never occupies a second
// place in the global line.
//
// Active and waiting counts are tracked with explicit atomics rather than
// read out of the semaphores, so they are exact and never go negative.
type AdmissionQueue struct {
	capacity int64
	global   *semaphore.Weighted

	mu    sync.Mutex
	users map[int64]*semaphore.Weighted

	active  atomic.Int64
	waiting atomic.Int64
}

// NewAdmissionQueue creates a queue admitting at most n concurrent downloads.
func NewAdmissionQueue(n int) *AdmissionQueue {
	if n < 1 {
		n = 1
	}
	return &AdmissionQueue{
		capacity: int64(n),
		global:   semaphore.NewWeighted(int64(n)),
		users:    make(map[int64]*semaphore.Weighted),
	}
}

// Acquire blocks until the caller holds both the user-level slot and a
// global slot, or ctx is done. Order matters: the user slot is taken first,
// so the global pool is only contended by users who are not already running.
// On cancellation nothing stays held.
//
// Every successful Acquire must be paired with exactly one Release.
func (q *AdmissionQueue) Acquire(ctx context.Context, userID int64) error {
	user := q.userSlot(userID)
	if err := user.Acquire(ctx, 1); err != nil {
		return err
	}

	q.waiting.Add(1)
	if err := q.global.Acquire(ctx, 1); err != nil {
		q.waiting.Add(-1)
		user.Release(1)
		return err
	}
	q.waiting.Add(-1)
	q.active.Add(1)
	return nil
}

// Release frees the global slot first, then the user's own slot, mirroring
// the nested acquisition in reverse.
func (q *AdmissionQueue) Release(userID int64) {
	q.active.Add(-1)
	q.global.Release(1)
	q.userSlot(userID).Release(1)
}

// Active returns how many downloads currently hold a global slot.
func (q *AdmissionQueue) Active() int {
	return int(q.active.Load())
}

// Waiting returns how many callers are currently blocked waiting for a
// global slot. Users blocked behind their own in-flight download are not
// counted; this is the length of the global line, not of every line.
func (q *AdmissionQueue) Waiting() int {
	return int(q.waiting.Load())
}

// Capacity returns the configured global slot count.
func (q *AdmissionQueue) Capacity() int {
	return int(q.capacity)
}

// userSlot returns the capacity-1 semaphore for userID, creating it on first
// use. Entries are kept for the life of the process: a semaphore cannot be
// dropped while a goroutine may still be waiting on it, and each entry is
// only a couple of words.
func (q *AdmissionQueue) userSlot(userID int64) *semaphore.Weighted {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.users[userID]
	if !ok {
		s = semaphore.NewWeighted(1)
		q.users[userID] = s
	}
	return s
}
