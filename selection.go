package main

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PendingSelection is a link waiting for the user to pick video or audio.
type PendingSelection struct {
	UserID    int64
	URL       string
	Platform  string
	CreatedAt time.Time
}

// SelectionStore maps short callback tokens to pending selections. Tokens
// are single-use and expire after a TTL; Telegram callback data is too small
// to carry the URL itself.
type SelectionStore struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]PendingSelection
}

// NewSelectionStore creates a store whose tokens live for ttl.
func NewSelectionStore(ttl time.Duration) *SelectionStore {
	return &SelectionStore{
		ttl:     ttl,
		entries: make(map[string]PendingSelection),
	}
}

// Put stores a pending selection and returns its token.
func (s *SelectionStore) Put(sel PendingSelection) string {
	if sel.CreatedAt.IsZero() {
		sel.CreatedAt = time.Now()
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	s.mu.Lock()
	s.entries[token] = sel
	s.mu.Unlock()
	return token
}

// Take consumes a token on behalf of userID. It misses when the token was
// never issued, was already consumed, or has expired. A token belonging to
// a different user also misses but stays stored, so someone else pressing
// the button cannot burn the owner's choice.
func (s *SelectionStore) Take(token string, userID int64) (PendingSelection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel, ok := s.entries[token]
	if !ok {
		return PendingSelection{}, false
	}
	if time.Since(sel.CreatedAt) > s.ttl {
		delete(s.entries, token)
		return PendingSelection{}, false
	}
	if sel.UserID != userID {
		return PendingSelection{}, false
	}
	delete(s.entries, token)
	return sel, true
}

// Len returns the number of live entries.
func (s *SelectionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor prunes expired tokens until ctx is done. Run it in its own
// goroutine.
func (s *SelectionStore) StartJanitor(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.prune(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

func (s *SelectionStore) prune(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, sel := range s.entries {
		if now.Sub(sel.CreatedAt) > s.ttl {
			delete(s.entries, token)
		}
	}
}
