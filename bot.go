package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v3"
)

// Bot is the Telegram dispatcher. It turns updates into job requests and
// renders outcomes back; all coordination lives behind the runner.
type Bot struct {
	tb         *tele.Bot
	cfg        *Config
	runner     *JobRunner
	queue      *AdmissionQueue
	stats      *Stats
	selections *SelectionStore
	flood      *rate.Limiter
	ctx        context.Context
}

// NewBot builds the bot and registers all handlers. ctx bounds every job
// the bot submits; cancelling it drains queued work during shutdown.
func NewBot(ctx context.Context, cfg *Config, runner *JobRunner, queue *AdmissionQueue, stats *Stats, selections *SelectionStore) (*Bot, error) {
	tb, err := tele.NewBot(tele.Settings{
		Token:     cfg.BotToken,
		Poller:    &tele.LongPoller{Timeout: 10 * time.Second},
		ParseMode: tele.ModeHTML,
	})
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b := &Bot{
		tb:         tb,
		cfg:        cfg,
		runner:     runner,
		queue:      queue,
		stats:      stats,
		selections: selections,
		flood:      rate.NewLimiter(rate.Limit(FloodRatePerSecond), FloodBurstSize),
		ctx:        ctx,
	}

	tb.Use(b.floodMiddleware)

	tb.Handle("/start", b.handleStart)
	tb.Handle("/help", b.handleHelp)
	tb.Handle("/id", b.handleID)
	tb.Handle("/status", b.handleStatus)
	tb.Handle("/stats", b.handleStats)
	tb.Handle(tele.OnText, b.handleText)
	tb.Handle(&tele.Btn{Unique: "dl"}, b.handleSelection)

	if err := tb.SetCommands([]tele.Command{
		{Text: "start", Description: "Welcome message"},
		{Text: "id", Description: "Get your Telegram user ID"},
		{Text: "help", Description: "How to use the bot"},
		{Text: "status", Description: "Bot queue status"},
		{Text: "stats", Description: "Statistics (admin only)"},
	}); err != nil {
		log.Warnf("failed to set command list: %v", err)
	}

	return b, nil
}

// Start begins long polling; it blocks until Stop is called.
func (b *Bot) Start() {
	b.tb.Start()
}

// Stop ends long polling.
func (b *Bot) Stop() {
	b.tb.Stop()
}

// floodMiddleware drops updates beyond the process-wide rate to protect the
// bot from message floods. Per-user pacing is the runner's cooldown.
func (b *Bot) floodMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if !b.flood.Allow() {
			return nil
		}
		return next(c)
	}
}

func (b *Bot) handleStart(c tele.Context) error {
	b.stats.RecordUser(c.Sender().ID)
	return c.Send(
		"👋 <b>Welcome to the Video Downloader Bot!</b>\n\n" +
			"I download the best quality video from:\n" +
			"<i>" + strings.Join(platformNames(), ", ") + "</i>\n\n" +
			"⚡ Just send me a link!",
	)
}

func (b *Bot) handleHelp(c tele.Context) error {
	lines := []string{
		"📖 <b>How to use</b>\n",
		"Paste a link, pick video or audio — the bot does the rest.\n",
		"<b>Supported Platforms:</b>",
	}
	for _, p := range platformNames() {
		lines = append(lines, "• "+p)
	}
	lines = append(lines,
		"\n⚠️ <b>Limits:</b>",
		fmt.Sprintf("• Max file size: %d MB", b.cfg.MaxFileSizeMB),
		"• Single videos only (no playlists)",
		"\n<b>Commands:</b>",
		"/id — Your Telegram user ID",
		"/status — Queue status",
		"/stats — Statistics (admin)",
	)
	return c.Send(strings.Join(lines, "\n"))
}

func (b *Bot) handleID(c tele.Context) error {
	return c.Send(fmt.Sprintf("Your Telegram ID is: <code>%d</code>", c.Sender().ID))
}

func (b *Bot) handleStatus(c tele.Context) error {
	return c.Send(fmt.Sprintf(
		"🛰 <b>Bot Status</b>\n\n"+
			"Active downloads: <b>%d</b> / %d\n"+
			"Waiting in queue: <b>%d</b>",
		b.queue.Active(), b.queue.Capacity(), b.queue.Waiting(),
	))
}

func (b *Bot) handleStats(c tele.Context) error {
	if !b.cfg.IsAdmin(c.Sender().ID) {
		return c.Send("🔒 Admin only.")
	}
	return c.Send(b.stats.Summary())
}

// handleText detects links in plain messages and offers the format choice.
func (b *Bot) handleText(c tele.Context) error {
	text := strings.TrimSpace(c.Text())
	if strings.HasPrefix(text, "/") {
		return nil
	}
	b.stats.RecordUser(c.Sender().ID)

	urls := extractURLs(text)
	if len(urls) == 0 {
		return nil
	}

	targetURL, platform, ok := firstSupportedURL(text)
	if !ok {
		return c.Reply("❌ Unsupported platform. Use /help to see the list.")
	}

	token := b.selections.Put(PendingSelection{
		UserID:   c.Sender().ID,
		URL:      targetURL,
		Platform: platform,
	})

	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("🎬 Video", "dl", token, string(FormatVideo)),
		markup.Data("🎵 Audio", "dl", token, string(FormatAudio)),
	))
	return c.Reply(
		fmt.Sprintf("🔗 <b>%s</b> link detected.\nChoose a format:", platform),
		markup,
	)
}

// handleSelection resolves a format button press to a job submission. The
// download runs on its own goroutine so slow jobs never stall the poller.
func (b *Bot) handleSelection(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Respond(&tele.CallbackResponse{Text: "Malformed selection."})
	}
	token, format := args[0], FormatKind(args[1])
	if format != FormatVideo && format != FormatAudio {
		return c.Respond(&tele.CallbackResponse{Text: "Unknown format."})
	}

	sel, ok := b.selections.Take(token, c.Sender().ID)
	if !ok {
		// Only a toast: when another user pressed the button, editing
		// would wipe the owner's keyboard.
		return c.Respond(&tele.CallbackResponse{
			Text: "⌛ Link expired — please send it again.",
		})
	}

	if err := c.Edit(fmt.Sprintf(
		"⏳ Downloading from <b>%s</b>...\n<i>Please wait.</i>", sel.Platform,
	)); err != nil {
		log.Debugf("edit status message: %v", err)
	}

	status := c.Message()
	go b.processJob(sel, format, status)

	return c.Respond(&tele.CallbackResponse{})
}

// processJob submits the job and renders its outcome onto the status
// message. Runs outside the poller goroutine.
func (b *Bot) processJob(sel PendingSelection, format FormatKind, status *tele.Message) {
	out := b.runner.Run(b.ctx, JobRequest{
		UserID:   sel.UserID,
		URL:      sel.URL,
		Platform: sel.Platform,
		Format:   format,
	})

	switch out.Kind {
	case OutcomeRateLimited:
		b.edit(status, fmt.Sprintf("⏳ Please wait %ds before sending another link.", out.RetryAfter))

	case OutcomeTooLarge:
		b.edit(status, fmt.Sprintf(
			"❌ <b>File too large</b>\n\nFile is %s, exceeds the %s limit.\n\n"+
				"💡 Try a shorter clip or the audio-only option.",
			formatBytes(out.Size), formatBytes(out.Limit),
		))

	case OutcomeFailed:
		b.edit(status, fmt.Sprintf(
			"❌ <b>Download failed</b>\n\n%s\n\n"+
				"💡 Make sure the link is valid and the video is public.",
			escapeHTML(out.Reason),
		))

	case OutcomeSuccess:
		b.deliver(sel, format, out.Artifact, status)
	}
}

// deliver uploads the artifact, then deletes it and its sidecars whether or
// not the upload worked.
func (b *Bot) deliver(sel PendingSelection, format FormatKind, artifact *Artifact, status *tele.Message) {
	defer CleanupArtifact(artifact.Path)

	b.edit(status, "📤 Uploading...")

	caption := buildCaption(sel.Platform, artifact)
	var payload interface{}
	if format == FormatAudio {
		payload = &tele.Audio{
			File:      tele.FromDisk(artifact.Path),
			Caption:   caption,
			Title:     artifact.Title,
			Performer: artifact.Uploader,
		}
	} else {
		payload = &tele.Video{
			File:      tele.FromDisk(artifact.Path),
			Caption:   caption,
			Streaming: true,
		}
	}

	if _, err := b.tb.Send(status.Chat, payload); err != nil {
		log.WithFields(log.Fields{"user": sel.UserID}).Errorf("upload failed: %v", err)
		b.edit(status, "❌ <b>Upload failed</b>\n\nPlease try again later.")
		return
	}

	if err := b.tb.Delete(status); err != nil {
		log.Debugf("delete status message: %v", err)
	}
}

func (b *Bot) edit(msg *tele.Message, text string) {
	if _, err := b.tb.Edit(msg, text); err != nil {
		log.Debugf("edit message: %v", err)
	}
}

func buildCaption(platform string, a *Artifact) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("🎬 <b>%s</b>", escapeHTML(a.Title)))
	line := fmt.Sprintf("👤 %s  •  📱 %s", escapeHTML(a.Uploader), platform)
	if a.Duration > 0 {
		line += "  •  ⏱ " + formatDuration(a.Duration)
	}
	parts = append(parts, line)
	parts = append(parts, "📦 "+formatBytes(a.Size))
	return strings.Join(parts, "\n")
}

func platformNames() []string {
	names := make([]string, 0, len(SupportedPlatforms))
	for name := range SupportedPlatforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
