package main

import "fmt"

// FormatKind selects what the user wants out of a link.
type FormatKind string

const (
	FormatVideo FormatKind = "video"
	FormatAudio FormatKind = "audio"
)

// JobRequest is one download attempt for one user. Immutable once built.
type JobRequest struct {
	UserID   int64
	URL      string
	Platform string
	Format   FormatKind
}

// Artifact describes a successfully retrieved media file.
type Artifact struct {
	Path     string
	Title    string
	Uploader string
	Platform string  // extractor label reported by yt-dlp
	Duration float64 // seconds
	Size     int64   // bytes
}

// OutcomeKind classifies how a job attempt ended.
type OutcomeKind string

const (
	OutcomeSuccess     OutcomeKind = "success"
	OutcomeTooLarge    OutcomeKind = "too_large"
	OutcomeFailed      OutcomeKind = "failed"
	OutcomeRateLimited OutcomeKind = "rate_limited"
)

// Outcome is the terminal result of one job attempt.
type Outcome struct {
	Kind     OutcomeKind
	Artifact *Artifact // set when Kind == OutcomeSuccess

	// OutcomeRateLimited
	RetryAfter int // whole seconds the user must wait

	// OutcomeTooLarge
	Size  int64
	Limit int64

	// OutcomeFailed; raw engine message, escape before rendering
	Reason string
}

// TooLargeError is returned by the engine when the downloaded file exceeds
// the configured size cap. The partial artifact is already deleted.
type TooLargeError struct {
	Size  int64
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("file is %s, exceeds the %s limit",
		formatBytes(e.Size), formatBytes(e.Limit))
}
