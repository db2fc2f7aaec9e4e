package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const downloadUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Fetcher is the download engine as the job runner sees it: resolve a URL
// to a local media file or report why it could not.
type Fetcher interface {
	Fetch(ctx context.Context, url string, format FormatKind) (*Artifact, error)
}

// YTDLPEngine shells out to yt-dlp. Each fetch writes under a random file ID
// so concurrent downloads never collide, enforces the size cap, and removes
// anything oversized before returning.
type YTDLPEngine struct {
	dir      string
	maxBytes int64
}

// NewYTDLPEngine creates an engine writing artifacts into dir.
func NewYTDLPEngine(dir string, maxBytes int64) *YTDLPEngine {
	return &YTDLPEngine{dir: dir, maxBytes: maxBytes}
}

// ytdlpInfo is the slice of yt-dlp's --print-json output we care about.
type ytdlpInfo struct {
	Title        string  `json:"title"`
	Duration     float64 `json:"duration"`
	Uploader     string  `json:"uploader"`
	Channel      string  `json:"channel"`
	ExtractorKey string  `json:"extractor_key"`
}

func (e *YTDLPEngine) Fetch(ctx context.Context, url string, format FormatKind) (*Artifact, error) {
	fileID := newFileID()
	outTemplate := filepath.Join(e.dir, fileID+".%(ext)s")

	args := []string{
		"--no-playlist",
		"--socket-timeout", "30",
		"--retries", "10",
		"--fragment-retries", "10",
		"--geo-bypass",
		"--user-agent", downloadUserAgent,
		"--output", outTemplate,
		"--print-json",
		"--no-simulate",
	}
	preferredExt := "mp4"
	if format == FormatAudio {
		preferredExt = "mp3"
		args = append(args,
			"--format", "bestaudio/best",
			"--extract-audio",
			"--audio-format", "mp3",
			"--audio-quality", "192K",
		)
	} else {
		args = append(args,
			"--format", "bestvideo+bestaudio/best",
			"--merge-output-format", "mp4",
		)
	}
	args = append(args, url)

	runCtx, cancel := context.WithTimeout(ctx, DownloadTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "yt-dlp", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// The temp file may exist in a partial state.
		cleanupByPrefix(e.dir, fileID)
		if runCtx.Err() != nil {
			return nil, fmt.Errorf("download timed out or was cancelled")
		}
		return nil, fmt.Errorf("%s", extractYTDLPError(stderr.String()))
	}

	info := parseYTDLPInfo(stdout.Bytes())

	path, err := findArtifact(e.dir, fileID, preferredExt)
	if err != nil {
		return nil, fmt.Errorf("file not found after download")
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat downloaded file: %w", err)
	}
	if fi.Size() > e.maxBytes {
		cleanupByPrefix(e.dir, fileID)
		return nil, &TooLargeError{Size: fi.Size(), Limit: e.maxBytes}
	}

	uploader := info.Uploader
	if uploader == "" {
		uploader = info.Channel
	}
	if uploader == "" {
		uploader = "Unknown"
	}
	title := info.Title
	if title == "" {
		title = "Video"
	}
	platform := info.ExtractorKey
	if platform == "" {
		platform = "Unknown"
	}

	return &Artifact{
		Path:     path,
		Title:    title,
		Uploader: uploader,
		Platform: platform,
		Duration: info.Duration,
		Size:     fi.Size(),
	}, nil
}

// parseYTDLPInfo decodes the last JSON line of yt-dlp output. Missing or
// malformed metadata is non-fatal; the file itself is what matters.
func parseYTDLPInfo(out []byte) ytdlpInfo {
	var info ytdlpInfo
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	if len(lines) == 0 {
		return info
	}
	last := lines[len(lines)-1]
	if err := json.Unmarshal(last, &info); err != nil {
		log.Debugf("yt-dlp metadata parse failed: %v", err)
	}
	return info
}

// extractYTDLPError pulls the first "ERROR:" line out of yt-dlp stderr so
// the user sees the cause, not the whole trace.
func extractYTDLPError(stderr string) string {
	for _, line := range strings.Split(stderr, "\n") {
		if idx := strings.Index(line, "ERROR:"); idx >= 0 {
			msg := strings.TrimSpace(line[idx+len("ERROR:"):])
			if msg != "" {
				return msg
			}
		}
	}
	return "download failed"
}

// findArtifact locates the downloaded file by its ID prefix, preferring the
// expected extension. yt-dlp may pick a different container than requested.
func findArtifact(dir, prefix, preferredExt string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var fallback string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		if strings.HasSuffix(name, "."+preferredExt) {
			return filepath.Join(dir, name), nil
		}
		if fallback == "" {
			fallback = filepath.Join(dir, name)
		}
	}
	if fallback == "" {
		return "", os.ErrNotExist
	}
	return fallback, nil
}

// CleanupArtifact removes the artifact and any sidecar files sharing its
// base name (yt-dlp can leave .part fragments, thumbnails and subtitles).
func CleanupArtifact(path string) {
	if path == "" {
		return
	}
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	cleanupByPrefix(dir, base)
}

func cleanupByPrefix(dir, prefix string) {
	if prefix == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			log.Warnf("failed to clean up %s: %v", entry.Name(), err)
		}
	}
}

func newFileID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
