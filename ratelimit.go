package main

import (
	"math"
	"sync"
	"time"
)

// CooldownGate enforces a minimum interval between accepted requests per
// user. A denied check does not update the timestamp, so the wait a user is
// told is the wait they actually get.
type CooldownGate struct {
	cooldown time.Duration

	mu   sync.Mutex
	last map[int64]time.Time
}

// NewCooldownGate creates a gate with the given minimum interval.
func NewCooldownGate(cooldown time.Duration) *CooldownGate {
	return &CooldownGate{
		cooldown: cooldown,
		last:     make(map[int64]time.Time),
	}
}

// Check reports whether a request from userID at time now is accepted.
// When denied it returns the remaining wait in whole seconds, rounded up.
// Accepting records now as the user's new timestamp under the same lock, so
// near-simultaneous requests from one user cannot both pass.
func (g *CooldownGate) Check(userID int64, now time.Time) (retryAfter int, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, seen := g.last[userID]; seen {
		if elapsed := now.Sub(last); elapsed < g.cooldown {
			remaining := (g.cooldown - elapsed).Seconds()
			return int(math.Ceil(remaining)), false
		}
	}
	g.last[userID] = now
	return 0, true
}

// Prune drops entries whose last accepted request is older than retention.
// Entries still inside their cooldown window are never droppable because
// retention is required to be at least the cooldown itself.
func (g *CooldownGate) Prune(retention time.Duration, now time.Time) {
	if retention < g.cooldown {
		retention = g.cooldown
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, last := range g.last {
		if now.Sub(last) > retention {
			delete(g.last, id)
		}
	}
}

// Size returns the number of tracked users.
func (g *CooldownGate) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.last)
}
