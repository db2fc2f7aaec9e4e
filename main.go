package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		log.Fatalf("create download dir %s: %v", cfg.DownloadDir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats := NewStats()
	store := NewStatsStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if snap, ok, err := store.Load(ctx); err != nil {
		log.Warnf("failed to load persisted stats: %v", err)
	} else if ok {
		stats.Restore(snap)
		log.Infof("restored stats: %d attempts, %d users", snap.Attempted, len(snap.Users))
	}

	queue := NewAdmissionQueue(cfg.MaxConcurrent)
	gate := NewCooldownGate(cfg.Cooldown())
	engine := NewYTDLPEngine(cfg.DownloadDir, cfg.MaxFileSizeBytes)
	runner := NewJobRunner(queue, gate, stats, engine)
	selections := NewSelectionStore(SelectionTTL)

	bot, err := NewBot(ctx, cfg, runner, queue, stats, selections)
	if err != nil {
		log.Fatalf("bot init failed: %v", err)
	}

	go selections.StartJanitor(ctx)
	go runCooldownJanitor(ctx, gate)
	if store.Enabled() {
		go runStatsSaver(ctx, store, stats)
	}

	setupGracefulShutdown(cancel, bot)

	log.Infof("🚀 Bot is running (max %d concurrent downloads, %d MB cap)",
		cfg.MaxConcurrent, cfg.MaxFileSizeMB)
	bot.Start()

	// Poller has stopped; persist the final counters.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer saveCancel()
	if err := store.Save(saveCtx, stats.Snapshot()); err != nil {
		log.Warnf("final stats save failed: %v", err)
	}
	_ = store.Close()
	log.Info("bye")
}

// setupGracefulShutdown stops the poller and cancels all queued jobs on
// SIGINT/SIGTERM.
func setupGracefulShutdown(cancel context.CancelFunc, bot *Bot) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-c
		log.Infof("🛑 %s received, shutting down...", sig)
		cancel()
		bot.Stop()
	}()
}

// runCooldownJanitor prunes idle cooldown entries so the per-user timestamp
// table does not grow with every user ever seen.
func runCooldownJanitor(ctx context.Context, gate *CooldownGate) {
	ticker := time.NewTicker(CooldownRetention)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			gate.Prune(CooldownRetention, time.Now())
		case <-ctx.Done():
			return
		}
	}
}

// runStatsSaver periodically persists the stats snapshot.
func runStatsSaver(ctx context.Context, store *StatsStore, stats *Stats) {
	ticker := time.NewTicker(StatsSaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := store.Save(ctx, stats.Snapshot()); err != nil {
				log.Warnf("stats save failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
