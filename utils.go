package main

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var urlRegex = regexp.MustCompile(
	`(?i)https?://(?:www\.)?[-a-zA-Z0-9@:%._+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b[-a-zA-Z0-9()@:%_+.~#?&/=]*`,
)

// extractURLs pulls all unique URLs out of a message, in order of first
// appearance.
func extractURLs(text string) []string {
	matches := urlRegex.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		m = normalizeURL(m)
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		urls = append(urls, m)
	}
	return urls
}

// normalizeURL strips tracking query params from TikTok share links; other
// URLs pass through untouched.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if strings.Contains(u.Hostname(), "tiktok.com") {
		u.RawQuery = ""
		u.Fragment = ""
		return u.String()
	}
	return raw
}

// identifyPlatform maps a URL to a supported platform name by hostname
// suffix match. Returns ok=false for unsupported hosts or unparsable URLs.
func identifyPlatform(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	hostname := strings.TrimPrefix(u.Hostname(), "www.")
	if hostname == "" {
		return "", false
	}
	for platform, domains := range SupportedPlatforms {
		for _, domain := range domains {
			if hostname == domain || strings.HasSuffix(hostname, "."+domain) {
				return platform, true
			}
		}
	}
	return "", false
}

// firstSupportedURL returns the first URL in text that belongs to a
// supported platform, along with the platform name.
func firstSupportedURL(text string) (targetURL, platform string, ok bool) {
	for _, u := range extractURLs(text) {
		if p, supported := identifyPlatform(u); supported {
			return u, p, true
		}
	}
	return "", "", false
}

// formatBytes renders a byte count for user display.
func formatBytes(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}

// escapeHTML escapes the characters Telegram's HTML parse mode treats as
// markup. Applied to every dynamic string echoed back to a user.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// formatDuration renders seconds as m:ss for captions.
func formatDuration(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
