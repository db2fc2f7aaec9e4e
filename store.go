package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const statsKey = "vidbot:stats"

// StatsStore persists the stats snapshot to Redis so counters survive
// restarts. Redis is optional: when it is not configured or not reachable
// the store is a no-op and stats stay in memory only.
type StatsStore struct {
	client *redis.Client
}

// NewStatsStore connects to Redis at addr. An empty addr or a failed ping
// yields a disabled store rather than an error.
func NewStatsStore(ctx context.Context, addr, password string, db int) *StatsStore {
	if addr == "" {
		return &StatsStore{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warnf("Redis not available, stats will not be persisted: %v", err)
		_ = client.Close()
		return &StatsStore{}
	}
	log.Info("✅ Redis connected, stats persistence enabled")
	return &StatsStore{client: client}
}

// Enabled reports whether a Redis connection is backing this store.
func (s *StatsStore) Enabled() bool {
	return s.client != nil
}

// Save writes the snapshot under a single key. Best effort; the caller
// treats errors as log-worthy, not fatal.
func (s *StatsStore) Save(ctx context.Context, snap StatsSnapshot) error {
	if s.client == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	return s.client.Set(ctx, statsKey, data, 0).Err()
}

// Load reads the persisted snapshot. A missing key returns ok=false.
func (s *StatsStore) Load(ctx context.Context) (StatsSnapshot, bool, error) {
	var snap StatsSnapshot
	if s.client == nil {
		return snap, false, nil
	}
	val, err := s.client.Get(ctx, statsKey).Result()
	if err == redis.Nil {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, err
	}
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return snap, false, fmt.Errorf("unmarshal stats: %w", err)
	}
	return snap, true, nil
}

// Close releases the Redis connection.
func (s *StatsStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
