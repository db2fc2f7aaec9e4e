package main

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Stats tracks process-wide counters for the /stats report. All mutation
// goes through one mutex; increments come from many in-flight jobs at once.
type Stats struct {
	mu sync.Mutex

	startedAt  time.Time
	attempted  int64
	succeeded  int64
	failed     int64
	tooLarge   int64
	seen       map[int64]struct{}
	byPlatform map[string]int64
	byUser     map[int64]int64
}

// PlatformCount is one entry of the top-platforms ranking.
type PlatformCount struct {
	Platform string `json:"platform"`
	Count    int64  `json:"count"`
}

// StatsSnapshot is a point-in-time copy of all counters. It doubles as the
// persistence format for the Redis store.
type StatsSnapshot struct {
	Uptime      time.Duration    `json:"-"`
	Attempted   int64            `json:"attempted"`
	Succeeded   int64            `json:"succeeded"`
	Failed      int64            `json:"failed"`
	TooLarge    int64            `json:"too_large"`
	UniqueUsers int              `json:"-"`
	Users       []int64          `json:"users"`
	ByPlatform  map[string]int64 `json:"by_platform"`
	ByUser      map[int64]int64  `json:"by_user"`
}

// NewStats creates an empty recorder with uptime measured from now.
func NewStats() *Stats {
	return &Stats{
		startedAt:  time.Now(),
		seen:       make(map[int64]struct{}),
		byPlatform: make(map[string]int64),
		byUser:     make(map[int64]int64),
	}
}

// RecordUser marks a user as seen, whatever they sent.
func (s *Stats) RecordUser(userID int64) {
	s.mu.Lock()
	s.seen[userID] = struct{}{}
	s.mu.Unlock()
}

// RecordAttempt counts one admitted download attempt.
func (s *Stats) RecordAttempt() {
	s.mu.Lock()
	s.attempted++
	s.mu.Unlock()
}

// RecordSuccess counts a completed download for a platform and user.
func (s *Stats) RecordSuccess(platform string, userID int64) {
	s.mu.Lock()
	s.succeeded++
	s.byPlatform[platform]++
	s.byUser[userID]++
	s.seen[userID] = struct{}{}
	s.mu.Unlock()
}

// RecordFailure counts a failed download.
func (s *Stats) RecordFailure() {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
}

// RecordTooLarge counts an oversized download. Too-large is a failure
// subtype, so the failure counter moves as well.
func (s *Stats) RecordTooLarge() {
	s.mu.Lock()
	s.tooLarge++
	s.failed++
	s.mu.Unlock()
}

// Snapshot returns a consistent copy of all counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Uptime:      time.Since(s.startedAt),
		Attempted:   s.attempted,
		Succeeded:   s.succeeded,
		Failed:      s.failed,
		TooLarge:    s.tooLarge,
		UniqueUsers: len(s.seen),
		Users:       make([]int64, 0, len(s.seen)),
		ByPlatform:  make(map[string]int64, len(s.byPlatform)),
		ByUser:      make(map[int64]int64, len(s.byUser)),
	}
	for id := range s.seen {
		snap.Users = append(snap.Users, id)
	}
	for p, n := range s.byPlatform {
		snap.ByPlatform[p] = n
	}
	for id, n := range s.byUser {
		snap.ByUser[id] = n
	}
	return snap
}

// Restore merges a persisted snapshot into the recorder. Used once at
// startup before any job runs.
func (s *Stats) Restore(snap StatsSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempted += snap.Attempted
	s.succeeded += snap.Succeeded
	s.failed += snap.Failed
	s.tooLarge += snap.TooLarge
	for _, id := range snap.Users {
		s.seen[id] = struct{}{}
	}
	for p, n := range snap.ByPlatform {
		s.byPlatform[p] += n
	}
	for id, n := range snap.ByUser {
		s.byUser[id] += n
	}
}

// TopPlatforms returns the n most-downloaded-from platforms, descending.
func (snap StatsSnapshot) TopPlatforms(n int) []PlatformCount {
	top := make([]PlatformCount, 0, len(snap.ByPlatform))
	for p, c := range snap.ByPlatform {
		top = append(top, PlatformCount{Platform: p, Count: c})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count == top[j].Count {
			return top[i].Platform < top[j].Platform
		}
		return top[i].Count > top[j].Count
	})
	if len(top) > n {
		top = top[:n]
	}
	return top
}

// Summary renders the admin /stats message in Telegram HTML.
func (s *Stats) Summary() string {
	snap := s.Snapshot()

	var b strings.Builder
	b.WriteString("📊 <b>Bot Statistics</b>\n\n")
	fmt.Fprintf(&b, "⏱ Uptime: <b>%s</b>\n", formatUptime(snap.Uptime))
	fmt.Fprintf(&b, "👥 Total Users: <b>%d</b>\n", snap.UniqueUsers)
	fmt.Fprintf(&b, "📥 Attempted: <b>%d</b>\n", snap.Attempted)
	fmt.Fprintf(&b, "✅ Succeeded: <b>%d</b>\n", snap.Succeeded)
	fmt.Fprintf(&b, "❌ Failed: <b>%d</b>\n", snap.Failed)
	fmt.Fprintf(&b, "📦 Too large: <b>%d</b>", snap.TooLarge)

	if top := snap.TopPlatforms(5); len(top) > 0 {
		b.WriteString("\n\n🏆 <b>Top platforms:</b>")
		for _, pc := range top {
			fmt.Fprintf(&b, "\n  • %s: %d", pc.Platform, pc.Count)
		}
	}
	return b.String()
}

func formatUptime(d time.Duration) string {
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
