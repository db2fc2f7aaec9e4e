package main

import (
	"testing"
	"time"
)

func TestSelectionPutTake(t *testing.T) {
	s := NewSelectionStore(time.Minute)
	token := s.Put(PendingSelection{UserID: 1, URL: "https://tiktok.com/v/1", Platform: "TikTok"})

	sel, ok := s.Take(token, 1)
	if !ok {
		t.Fatal("fresh token not found")
	}
	if sel.UserID != 1 || sel.Platform != "TikTok" {
		t.Fatalf("got %+v", sel)
	}
}

func TestSelectionSingleUse(t *testing.T) {
	s := NewSelectionStore(time.Minute)
	token := s.Put(PendingSelection{UserID: 1, URL: "u", Platform: "p"})

	if _, ok := s.Take(token, 1); !ok {
		t.Fatal("first take missed")
	}
	if _, ok := s.Take(token, 1); ok {
		t.Fatal("token consumed twice")
	}
}

func TestSelectionExpiry(t *testing.T) {
	s := NewSelectionStore(10 * time.Millisecond)
	token := s.Put(PendingSelection{UserID: 1, URL: "u", Platform: "p"})

	time.Sleep(30 * time.Millisecond)
	if _, ok := s.Take(token, 1); ok {
		t.Fatal("expired token still usable")
	}
}

func TestSelectionUnknownToken(t *testing.T) {
	s := NewSelectionStore(time.Minute)
	if _, ok := s.Take("deadbeef", 1); ok {
		t.Fatal("unknown token returned a selection")
	}
}

func TestSelectionWrongUserDoesNotConsume(t *testing.T) {
	s := NewSelectionStore(time.Minute)
	token := s.Put(PendingSelection{UserID: 1, URL: "u", Platform: "p"})

	if _, ok := s.Take(token, 2); ok {
		t.Fatal("token handed to a different user")
	}
	// The owner can still use it.
	if _, ok := s.Take(token, 1); !ok {
		t.Fatal("owner lost the token after someone else's press")
	}
}

func TestSelectionPrune(t *testing.T) {
	s := NewSelectionStore(time.Minute)
	s.Put(PendingSelection{UserID: 1, URL: "old", Platform: "p", CreatedAt: time.Now().Add(-2 * time.Minute)})
	fresh := s.Put(PendingSelection{UserID: 2, URL: "new", Platform: "p"})

	s.prune(time.Now())
	if got := s.Len(); got != 1 {
		t.Fatalf("len after prune = %d, want 1", got)
	}
	if _, ok := s.Take(fresh, 2); !ok {
		t.Fatal("fresh token lost by prune")
	}
}

func TestSelectionTokensAreUnique(t *testing.T) {
	s := NewSelectionStore(time.Minute)
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		token := s.Put(PendingSelection{UserID: int64(i), URL: "u", Platform: "p"})
		if _, dup := seen[token]; dup {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = struct{}{}
	}
}
