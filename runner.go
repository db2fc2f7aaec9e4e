package main

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// JobRunner drives one job through its lifecycle: cooldown check, slot
// acquisition, the download itself, outcome classification, and slot release
// on every path out.
type JobRunner struct {
	queue  *AdmissionQueue
	gate   *CooldownGate
	stats  *Stats
	engine Fetcher
}

// NewJobRunner wires the runner to its collaborators.
func NewJobRunner(queue *AdmissionQueue, gate *CooldownGate, stats *Stats, engine Fetcher) *JobRunner {
	return &JobRunner{queue: queue, gate: gate, stats: stats, engine: engine}
}

// Run executes one job attempt and always terminates with an Outcome. The
// call blocks while the job waits for a slot and while it downloads, so run
// it on its own goroutine. A successful outcome hands artifact ownership to
// the caller, who must call CleanupArtifact after transmission.
func (r *JobRunner) Run(ctx context.Context, req JobRequest) Outcome {
	if retryAfter, ok := r.gate.Check(req.UserID, time.Now()); !ok {
		return Outcome{Kind: OutcomeRateLimited, RetryAfter: retryAfter}
	}

	if err := r.queue.Acquire(ctx, req.UserID); err != nil {
		// Only cancellation gets here; no slot is held.
		log.WithFields(log.Fields{"user": req.UserID, "url": req.URL}).
			Infof("job cancelled while queued: %v", err)
		return Outcome{Kind: OutcomeFailed, Reason: "cancelled while waiting for a free slot"}
	}
	defer r.queue.Release(req.UserID)

	r.stats.RecordAttempt()
	return r.fetch(ctx, req)
}

// fetch invokes the engine and classifies what came back. A panic inside
// the engine is converted to a generic failure; the deferred Release in Run
// still frees the slot.
func (r *JobRunner) fetch(ctx context.Context, req JobRequest) (out Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithFields(log.Fields{"user": req.UserID, "url": req.URL}).
				Errorf("panic during download: %v", rec)
			r.stats.RecordFailure()
			out = Outcome{Kind: OutcomeFailed, Reason: "an unexpected error occurred"}
		}
	}()

	artifact, err := r.engine.Fetch(ctx, req.URL, req.Format)
	if err != nil {
		var tooLarge *TooLargeError
		if errors.As(err, &tooLarge) {
			r.stats.RecordTooLarge()
			log.WithFields(log.Fields{"user": req.UserID, "size": tooLarge.Size}).
				Info("download rejected: file too large")
			return Outcome{Kind: OutcomeTooLarge, Size: tooLarge.Size, Limit: tooLarge.Limit}
		}
		r.stats.RecordFailure()
		log.WithFields(log.Fields{"user": req.UserID, "url": req.URL}).
			Warnf("download failed: %v", err)
		return Outcome{Kind: OutcomeFailed, Reason: err.Error()}
	}

	r.stats.RecordSuccess(req.Platform, req.UserID)
	log.WithFields(log.Fields{
		"user":     req.UserID,
		"platform": req.Platform,
		"size":     artifact.Size,
	}).Info("download completed")
	return Outcome{Kind: OutcomeSuccess, Artifact: artifact}
}
