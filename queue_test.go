package main

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAcquireRelease(t *testing.T) {
	q := NewAdmissionQueue(2)

	if err := q.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := q.Active(); got != 1 {
		t.Fatalf("active = %d, want 1", got)
	}

	q.Release(1)
	if got := q.Active(); got != 0 {
		t.Fatalf("active after release = %d, want 0", got)
	}
}

func TestGlobalCapacityNeverExceeded(t *testing.T) {
	const capacity = 3
	const jobs = 20

	q := NewAdmissionQueue(capacity)
	var inFlight, peak atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			if err := q.Acquire(context.Background(), userID); err != nil {
				t.Errorf("acquire user %d: %v", userID, err)
				return
			}
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			q.Release(userID)
		}(int64(i))
	}
	wg.Wait()

	if p := peak.Load(); p > capacity {
		t.Fatalf("peak concurrency %d exceeded capacity %d", p, capacity)
	}
	if got := q.Active(); got != 0 {
		t.Fatalf("active after all released = %d, want 0", got)
	}
	if got := q.Waiting(); got != 0 {
		t.Fatalf("waiting after all released = %d, want 0", got)
	}
}

func TestPerUserExclusivity(t *testing.T) {
	const user = int64(7)
	q := NewAdmissionQueue(3)

	if err := q.Acquire(context.Background(), user); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	granted := make(chan struct{})
	go func() {
		if err := q.Acquire(context.Background(), user); err != nil {
			t.Errorf("second acquire: %v", err)
			return
		}
		close(granted)
	}()

	select {
	case <-granted:
		t.Fatal("second acquire for the same user granted while first still held")
	case <-time.After(50 * time.Millisecond):
	}

	q.Release(user)

	select {
	case <-granted:
	case <-time.After(time.Second):
		t.Fatal("second acquire not granted after release")
	}
	q.Release(user)
}

func TestPerUserExclusivityUnderContention(t *testing.T) {
	const user = int64(99)
	q := NewAdmissionQueue(5)
	var inFlight atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := q.Acquire(context.Background(), user); err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if n := inFlight.Add(1); n > 1 {
				t.Errorf("user held %d slots at once", n)
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
			q.Release(user)
		}()
	}
	wg.Wait()
}

func TestSingleSlotSerializesTwoUsers(t *testing.T) {
	q := NewAdmissionQueue(1)

	if err := q.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("user 1 acquire: %v", err)
	}

	granted := make(chan struct{})
	go func() {
		if err := q.Acquire(context.Background(), 2); err != nil {
			t.Errorf("user 2 acquire: %v", err)
			return
		}
		close(granted)
	}()

	select {
	case <-granted:
		t.Fatal("user 2 admitted while user 1 holds the only slot")
	case <-time.After(50 * time.Millisecond):
	}
	if got := q.Waiting(); got != 1 {
		t.Fatalf("waiting = %d, want 1", got)
	}

	q.Release(1)
	select {
	case <-granted:
	case <-time.After(time.Second):
		t.Fatal("user 2 not admitted after user 1 released")
	}
	if got := q.Active(); got != 1 {
		t.Fatalf("active = %d, want 1", got)
	}
	q.Release(2)
}

func TestThreeUsersRunFourthWaits(t *testing.T) {
	q := NewAdmissionQueue(3)

	for userID := int64(1); userID <= 3; userID++ {
		if err := q.Acquire(context.Background(), userID); err != nil {
			t.Fatalf("user %d acquire: %v", userID, err)
		}
	}
	if got := q.Active(); got != 3 {
		t.Fatalf("active = %d, want 3", got)
	}

	granted := make(chan struct{})
	go func() {
		if err := q.Acquire(context.Background(), 4); err != nil {
			t.Errorf("user 4 acquire: %v", err)
			return
		}
		close(granted)
	}()

	select {
	case <-granted:
		t.Fatal("user 4 admitted beyond capacity")
	case <-time.After(50 * time.Millisecond):
	}

	q.Release(2)
	select {
	case <-granted:
	case <-time.After(time.Second):
		t.Fatal("user 4 not admitted after a slot freed")
	}

	q.Release(1)
	q.Release(3)
	q.Release(4)
	if got := q.Active(); got != 0 {
		t.Fatalf("active = %d, want 0", got)
	}
}

func TestCancelWhileWaitingLeaksNothing(t *testing.T) {
	q := NewAdmissionQueue(1)

	if err := q.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("user 1 acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Acquire(ctx, 2)
	}()

	// Let user 2 reach the global wait before cancelling.
	deadline := time.Now().Add(time.Second)
	for q.Waiting() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("user 2 never started waiting")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := <-errCh; err == nil {
		t.Fatal("cancelled acquire returned nil error")
	}
	if got := q.Waiting(); got != 0 {
		t.Fatalf("waiting after cancel = %d, want 0", got)
	}

	// The user-level slot must not have leaked: with capacity back, user 2
	// acquires without delay.
	q.Release(1)
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := q.Acquire(ctx2, 2); err != nil {
		t.Fatalf("user 2 acquire after cancel: %v", err)
	}
	q.Release(2)
}

func TestReacquireAfterRelease(t *testing.T) {
	q := NewAdmissionQueue(1)
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := q.Acquire(ctx, 5); err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		cancel()
		q.Release(5)
	}
	if got := q.Active(); got != 0 {
		t.Fatalf("active = %d, want 0", got)
	}
}
