// Package fetch downloads web pages and extracts their readable text,
// stripping navigation, scripts, and other boilerplate. The pipeline
// uses it for URLs pasted into prompts; the fetch tool exposes it
// directly.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/BA-SupportII/BA-AI/internal/httpkit"
)

const (
	// DefaultTimeout bounds a single page download.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBytes caps the response body read (5 MB).
	DefaultMaxBytes int64 = 5 * 1024 * 1024

	// DefaultMaxChars caps extracted text when the caller passes 0.
	DefaultMaxChars = 50000

	// maxParallelFetches bounds concurrent downloads in FetchAll.
	maxParallelFetches = 3
)

// Page holds the fetched and extracted content of one URL.
type Page struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
	Length      int    `json:"length"`
	StatusCode  int    `json:"status_code"`
}

// Fetcher downloads pages and extracts readable content.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// New creates a Fetcher with default limits.
func New(logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client: httpkit.NewClient(
			httpkit.WithTimeout(DefaultTimeout),
		),
		maxBytes: DefaultMaxBytes,
		logger:   logger.With("component", "fetch"),
	}
}

// Fetch downloads rawURL and extracts readable text. maxChars limits the
// output length; 0 uses DefaultMaxChars.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxChars int) (*Page, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("fetch: url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch: read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")

	var title, content string
	switch {
	case isHTML(contentType):
		title, content = extractReadable(string(body))
	case isPlainText(contentType):
		content = string(body)
	case utf8.Valid(body):
		content = string(body)
	default:
		return &Page{
			URL:         rawURL,
			ContentType: contentType,
			StatusCode:  resp.StatusCode,
			Content:     fmt.Sprintf("Binary content (%s), %d bytes", contentType, len(body)),
			Length:      len(body),
		}, nil
	}

	truncated := false
	if len(content) > maxChars {
		content = clampRunes(content, maxChars)
		truncated = true
	}

	return &Page{
		URL:         rawURL,
		Title:       title,
		Content:     content,
		ContentType: contentType,
		Truncated:   truncated,
		Length:      len(content),
		StatusCode:  resp.StatusCode,
	}, nil
}

// FetchAll downloads up to maxPages of the given URLs in parallel and
// returns the pages that succeeded, in input order. Individual failures
// are logged and skipped.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string, maxChars, maxPages int) []*Page {
	if maxPages <= 0 {
		maxPages = maxParallelFetches
	}
	if len(urls) > maxPages {
		urls = urls[:maxPages]
	}

	// Each goroutine writes its own slot, so no lock is needed.
	pages := make([]*Page, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)
	for i, u := range urls {
		g.Go(func() error {
			page, err := f.Fetch(gctx, u, maxChars)
			if err != nil {
				f.logger.Warn("page fetch failed", "url", u, "error", err)
				return nil
			}
			pages[i] = page
			return nil
		})
	}
	g.Wait()

	out := make([]*Page, 0, len(pages))
	for _, p := range pages {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func isHTML(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

func isPlainText(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "text/plain")
}

// clampRunes cuts s at maxChars runes without splitting a multi-byte
// character.
func clampRunes(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	count := 0
	for i := range s {
		if count >= maxChars {
			return s[:i]
		}
		count++
	}
	return s
}
