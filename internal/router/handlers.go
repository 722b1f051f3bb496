package router

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/jmarlin/focusd/internal/types"
)

// appMatches reports whether the lowercased app name contains any pattern.
func appMatches(appName string, patterns []string) bool {
	app := strings.ToLower(appName)
	for _, p := range patterns {
		if strings.Contains(app, p) {
			return true
		}
	}
	return false
}

// languageByExt maps editor-title file extensions to language names for the
// agent prompt.
var languageByExt = map[string]string{
	".go":   "Go",
	".py":   "Python",
	".js":   "JavaScript",
	".ts":   "TypeScript",
	".rs":   "Rust",
	".c":    "C",
	".h":    "C",
	".cpp":  "C++",
	".java": "Java",
	".rb":   "Ruby",
	".sh":   "shell",
	".sql":  "SQL",
	".md":   "Markdown",
	".yaml": "YAML",
	".yml":  "YAML",
	".json": "JSON",
	".html": "HTML",
	".css":  "CSS",
}

// CodeHandler recognizes editors and IDEs and pulls the open file name and
// language out of the window title.
type CodeHandler struct {
	Apps []string
}

func (h *CodeHandler) Name() string { return "code" }

func (h *CodeHandler) CanHandle(s *types.SessionSnapshot) bool {
	return appMatches(s.AppName, h.Apps)
}

func (h *CodeHandler) Enrich(_ context.Context, s *types.SessionSnapshot) types.EnrichedContext {
	ec := types.EnrichedContext{Category: "coding", HandlerName: h.Name()}

	file := extractFileName(s.WindowTitle)
	if file == "" {
		ec.ExtraForPrompt = fmt.Sprintf("The user is in %s.", s.AppName)
		return ec
	}

	lang := languageByExt[strings.ToLower(filepath.Ext(file))]
	if lang != "" {
		ec.ExtraForPrompt = fmt.Sprintf("The user is editing %s (%s) in %s.", file, lang, s.AppName)
	} else {
		ec.ExtraForPrompt = fmt.Sprintf("The user is editing %s in %s.", file, s.AppName)
	}
	return ec
}

// extractFileName pulls a filename-looking token out of an editor title.
// Titles look like "session.go - focusd - Cursor" or "main.py (~/proj) - VIM".
func extractFileName(title string) string {
	for _, sep := range []string{" - ", " — ", " | "} {
		if i := strings.Index(title, sep); i >= 0 {
			title = title[:i]
			break
		}
	}
	title = strings.TrimSpace(strings.TrimPrefix(title, "● ")) // unsaved marker
	if i := strings.IndexAny(title, " ("); i >= 0 {
		title = title[:i]
	}
	if strings.Contains(title, ".") && !strings.HasSuffix(title, ".") {
		return title
	}
	return ""
}

// BrowserHandler recognizes web browsers. When a page URL is known it is
// included, and page content may be fetched to ground the assistance.
type BrowserHandler struct {
	Apps    []string
	Fetcher *WebFetcher // nil disables content fetching
}

func (h *BrowserHandler) Name() string { return "browser" }

func (h *BrowserHandler) CanHandle(s *types.SessionSnapshot) bool {
	return appMatches(s.AppName, h.Apps)
}

func (h *BrowserHandler) Enrich(ctx context.Context, s *types.SessionSnapshot) types.EnrichedContext {
	ec := types.EnrichedContext{Category: "browsing", HandlerName: h.Name()}

	var b strings.Builder
	fmt.Fprintf(&b, "The user is reading %q in %s.", s.WindowTitle, s.AppName)
	if s.PageURL != "" {
		fmt.Fprintf(&b, " URL: %s", s.PageURL)
		snippet := ""
		if h.Fetcher != nil {
			snippet = h.Fetcher.Fetch(ctx, s.PageURL)
		}
		if snippet == "" {
			// Collector-supplied snippet stands in when fetching is off
			// or the page is unreachable from here.
			snippet = s.PageSnippet
		}
		if snippet != "" {
			fmt.Fprintf(&b, "\nPage content (truncated):\n%s", snippet)
		}
	}
	ec.ExtraForPrompt = b.String()
	return ec
}

// TerminalHandler recognizes terminal emulators and surfaces the running
// command from the title when the shell exports it.
type TerminalHandler struct {
	Apps []string
}

func (h *TerminalHandler) Name() string { return "terminal" }

func (h *TerminalHandler) CanHandle(s *types.SessionSnapshot) bool {
	return appMatches(s.AppName, h.Apps)
}

func (h *TerminalHandler) Enrich(_ context.Context, s *types.SessionSnapshot) types.EnrichedContext {
	ec := types.EnrichedContext{Category: "terminal", HandlerName: h.Name()}
	title := strings.TrimSpace(s.WindowTitle)
	if title != "" {
		ec.ExtraForPrompt = fmt.Sprintf("The user is at a terminal, title %q.", title)
	} else {
		ec.ExtraForPrompt = "The user is working in a terminal."
	}
	return ec
}

// ReadingHandler recognizes document viewers. PDF viewers carry the document
// name and usually a page position in the title; page 3 of 40 and page 38 of
// 40 call for different help.
type ReadingHandler struct {
	Apps []string
}

func (h *ReadingHandler) Name() string { return "reading" }

func (h *ReadingHandler) CanHandle(s *types.SessionSnapshot) bool {
	return appMatches(s.AppName, h.Apps) ||
		strings.Contains(strings.ToLower(s.WindowTitle), ".pdf")
}

func (h *ReadingHandler) Enrich(_ context.Context, s *types.SessionSnapshot) types.EnrichedContext {
	ec := types.EnrichedContext{Category: "reading", HandlerName: h.Name()}

	doc, page, total := parseDocTitle(s.WindowTitle)
	switch {
	case doc == "":
		ec.ExtraForPrompt = fmt.Sprintf("The user is reading a document in %s.", s.AppName)
	case total > 0:
		ec.ExtraForPrompt = fmt.Sprintf("The user is reading %s, page %d of %d (%s of the document), in %s.",
			doc, page, total, readingSection(page, total), s.AppName)
	default:
		ec.ExtraForPrompt = fmt.Sprintf("The user is reading %s in %s.", doc, s.AppName)
	}
	return ec
}

// Viewer titles vary: "paper.pdf – Page 7 of 21" (Preview),
// "paper.pdf - Adobe Acrobat", "paper.pdf (3/40)" (some Linux viewers).
var (
	docPageRe = regexp.MustCompile(`(?i)(.+?\.pdf)\s*[-–—|]?\s*(?:page\s+)?\(?(\d+)\s*(?:of|/)\s*(\d+)\)?`)
	docNameRe = regexp.MustCompile(`(?i)([^/\\]+?\.pdf)`)
)

// parseDocTitle pulls the document name and, when present, the page position
// out of a viewer title. Returns "" when nothing document-like is there.
func parseDocTitle(title string) (doc string, page, total int) {
	if m := docPageRe.FindStringSubmatch(title); m != nil {
		page, _ = strconv.Atoi(m[2])
		total, _ = strconv.Atoi(m[3])
		if page >= 1 && total >= page {
			return strings.TrimSpace(m[1]), page, total
		}
	}
	if m := docNameRe.FindStringSubmatch(title); m != nil {
		return strings.TrimSpace(m[1]), 0, 0
	}
	return "", 0, 0
}

// readingSection buckets a page position into thirds.
func readingSection(page, total int) string {
	switch frac := float64(page) / float64(total); {
	case frac <= 1.0/3:
		return "the beginning"
	case frac <= 2.0/3:
		return "the middle"
	default:
		return "the end"
	}
}

// DefaultHandler accepts anything. It is the router fallback, never
// registered.
type DefaultHandler struct{}

func (h *DefaultHandler) Name() string { return "default" }

func (h *DefaultHandler) CanHandle(_ *types.SessionSnapshot) bool { return true }

func (h *DefaultHandler) Enrich(_ context.Context, s *types.SessionSnapshot) types.EnrichedContext {
	return types.EnrichedContext{
		Category:       "general",
		HandlerName:    h.Name(),
		ExtraForPrompt: fmt.Sprintf("The user is using %s, window %q.", s.AppName, s.WindowTitle),
	}
}
