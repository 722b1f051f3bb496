package router

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/jmarlin/focusd/internal/logging"
)

const (
	maxFetchBytes   = 256 * 1024
	maxSnippetRunes = 2000
)

var (
	tagRe    = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>`)
	markupRe = regexp.MustCompile(`<[^>]*>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// WebFetcher retrieves page text for browser sessions. Every failure mode
// degrades to an empty snippet; a trigger never waits on a dead site.
type WebFetcher struct {
	client  *http.Client
	timeout time.Duration
}

func NewWebFetcher(timeout time.Duration) *WebFetcher {
	return &WebFetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Fetch returns a plain-text snippet of the page, or "" on any failure.
func (f *WebFetcher) Fetch(ctx context.Context, url string) string {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "focusd/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		logging.Debug("webfetch", "fetch %s failed: %v", url, err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logging.Debug("webfetch", "fetch %s: status %d", url, resp.StatusCode)
		return ""
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "text/html") && !strings.Contains(ct, "text/plain") {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return ""
	}
	return extractText(string(body))
}

// extractText strips markup down to readable text, capped for the prompt.
func extractText(html string) string {
	text := tagRe.ReplaceAllString(html, " ")
	text = markupRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) > maxSnippetRunes {
		text = string(runes[:maxSnippetRunes])
	}
	return text
}
