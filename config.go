package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Centralized configuration values
const (
	// Download Settings
	DefaultMaxFileSizeMB = 50
	DefaultDownloadDir   = "./downloads"
	DownloadTimeout      = 10 * time.Minute

	// Queue Settings
	DefaultMaxConcurrent = 3
	DefaultCooldownSecs  = 5

	// Flood Protection (updates/second across all users)
	FloodRatePerSecond = 30
	FloodBurstSize     = 60

	// Format selection keyboards expire after this long
	SelectionTTL = 10 * time.Minute

	// Cooldown entries idle longer than this are pruned
	CooldownRetention = 5 * time.Minute

	// Stats snapshot persistence interval (when Redis is configured)
	StatsSaveInterval = 1 * time.Minute
)

// SupportedPlatforms maps a display name to the hostnames it serves.
var SupportedPlatforms = map[string][]string{
	"TikTok":      {"tiktok.com", "vm.tiktok.com", "vt.tiktok.com"},
	"Instagram":   {"instagram.com"},
	"Facebook":    {"facebook.com", "fb.watch", "fb.com"},
	"Pinterest":   {"pinterest.com", "pin.it"},
	"X (Twitter)": {"twitter.com", "x.com"},
	"YouTube":     {"youtube.com", "youtu.be", "m.youtube.com"},
	"Reddit":      {"reddit.com", "redd.it", "v.redd.it"},
	"Snapchat":    {"snapchat.com", "t.snapchat.com"},
	"Threads":     {"threads.net"},
}

// Config holds all runtime settings, read once from the environment.
type Config struct {
	BotToken string
	AdminIDs []int64

	MaxFileSizeMB    int64
	MaxFileSizeBytes int64
	DownloadDir      string

	CooldownSeconds int
	MaxConcurrent   int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// LoadConfig reads configuration from environment variables. BOT_TOKEN is
// required; everything else has a default.
func LoadConfig() (*Config, error) {
	token := strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	if token == "" {
		return nil, fmt.Errorf("BOT_TOKEN is not set; create a .env file with your bot token")
	}

	cfg := &Config{
		BotToken:        token,
		AdminIDs:        parseAdminIDs(os.Getenv("ADMIN_IDS")),
		MaxFileSizeMB:   int64(envInt("MAX_FILE_SIZE_MB", DefaultMaxFileSizeMB)),
		DownloadDir:     envStr("DOWNLOAD_DIR", DefaultDownloadDir),
		CooldownSeconds: envInt("COOLDOWN_SECONDS", DefaultCooldownSecs),
		MaxConcurrent:   envInt("MAX_CONCURRENT_DOWNLOADS", DefaultMaxConcurrent),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         envInt("REDIS_DB", 0),
	}
	if cfg.MaxFileSizeMB <= 0 {
		return nil, fmt.Errorf("MAX_FILE_SIZE_MB must be positive, got %d", cfg.MaxFileSizeMB)
	}
	if cfg.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("MAX_CONCURRENT_DOWNLOADS must be positive, got %d", cfg.MaxConcurrent)
	}
	cfg.MaxFileSizeBytes = cfg.MaxFileSizeMB * 1024 * 1024
	return cfg, nil
}

// IsAdmin reports whether the given user may run admin-only commands.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// parseAdminIDs parses a comma-separated list of Telegram user IDs,
// skipping anything that is not a number.
func parseAdminIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func envStr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
