// Package websearch provides pluggable web search for grounded
// answers. Each engine implements the [Provider] interface; the
// [Manager] tries the configured primary first and falls through the
// remaining engines on failure or empty results.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BA-SupportII/BA-AI/internal/config"
)

// Result is a single search result.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Options are optional parameters for a search query.
type Options struct {
	// Count is the maximum number of results to return.
	// Providers may return fewer. Zero means provider default.
	Count int `json:"count,omitempty"`

	// Language is an ISO 639-1 language code (e.g., "en", "de").
	Language string `json:"language,omitempty"`
}

// Provider is the interface that search backends implement.
type Provider interface {
	// Name returns the engine identifier (e.g., "serpapi", "searxng").
	Name() string

	// Search executes a query and returns results.
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Manager holds providers in fallback order and routes searches.
type Manager struct {
	providers []Provider
	logger    *slog.Logger
}

// NewManager creates an empty search manager. Providers are tried in
// registration order.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger.With("component", "websearch")}
}

// Register appends a provider to the fallback chain.
func (m *Manager) Register(p Provider) {
	m.providers = append(m.providers, p)
}

// FromConfig builds the manager with every engine the config enables,
// the configured primary first, the rest in serpapi → searxng →
// duckduckgo order. DuckDuckGo needs no key and is always present.
func FromConfig(cfg config.SearchConfig, logger *slog.Logger) *Manager {
	m := NewManager(logger)

	available := make(map[string]Provider)
	if cfg.APIKey != "" {
		available["serpapi"] = NewSerpAPI(cfg.APIKey)
	}
	if cfg.SearxngURL != "" {
		available["searxng"] = NewSearXNG(cfg.SearxngURL)
	}
	available["duckduckgo"] = NewDuckDuckGo()

	order := []string{"serpapi", "searxng", "duckduckgo"}
	if p, ok := available[cfg.Engine]; ok {
		m.Register(p)
		delete(available, cfg.Engine)
	}
	for _, name := range order {
		if p, ok := available[name]; ok {
			m.Register(p)
		}
	}
	return m
}

// Configured reports whether at least one provider is registered.
func (m *Manager) Configured() bool {
	return len(m.providers) > 0
}

// Providers returns the registered engine names in fallback order.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for _, p := range m.providers {
		names = append(names, p.Name())
	}
	return names
}

// Search runs a query through the fallback chain. A provider that
// errors or returns nothing passes the query to the next one. When
// every provider comes back empty the result is nil with no error;
// callers treat that as "no grounding available".
func (m *Manager) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if len(m.providers) == 0 {
		return nil, errors.New("no search providers configured")
	}

	var lastErr error
	for _, p := range m.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results, err := p.Search(ctx, query, opts)
		if err != nil {
			m.logger.Warn("search provider failed", "provider", p.Name(), "error", err)
			lastErr = err
			continue
		}
		if len(results) == 0 {
			m.logger.Debug("search provider returned nothing", "provider", p.Name())
			continue
		}
		return results, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("all search providers failed: %w", lastErr)
	}
	return nil, nil
}

// FormatContext renders results as the numbered source list embedded
// in prompts and cited back as [n] markers.
func FormatContext(results []Result) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("] ")
		b.WriteString(r.Title)
		b.WriteString(" — ")
		b.WriteString(r.URL)
		if r.Snippet != "" {
			b.WriteString("\n    ")
			b.WriteString(r.Snippet)
		}
	}
	return b.String()
}
