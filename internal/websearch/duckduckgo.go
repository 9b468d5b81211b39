package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BA-SupportII/BA-AI/internal/httpkit"
)

// DuckDuckGo implements the Provider interface over the DuckDuckGo
// instant-answer API. It needs no API key, which makes it the
// always-available last rung of the fallback chain; coverage is
// shallower than a proper results API.
type DuckDuckGo struct {
	baseURL    string
	httpClient *http.Client
}

// NewDuckDuckGo creates a DuckDuckGo provider.
func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{
		baseURL: "https://api.duckduckgo.com",
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(15 * time.Second),
		),
	}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	Heading       string     `json:"Heading"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	Results       []ddgTopic `json:"Results"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	count := opts.Count
	if count == 0 {
		count = 5
	}

	params := url.Values{"q": {query}, "format": {"json"}}
	params.Set("no_html", "1")
	params.Set("no_redirect", "1")
	params.Set("skip_disambig", "1")

	reqURL := fmt.Sprintf("%s/?%s", d.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("duckduckgo: HTTP %d: %s", resp.StatusCode, body)
	}

	var dr ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("duckduckgo: decode response: %w", err)
	}

	var results []Result
	if dr.AbstractText != "" && dr.AbstractURL != "" {
		results = append(results, Result{
			Title:   dr.Heading,
			URL:     dr.AbstractURL,
			Snippet: dr.AbstractText,
		})
	}
	results = appendTopics(results, dr.Results, count)
	results = appendTopics(results, dr.RelatedTopics, count)
	if len(results) > count {
		results = results[:count]
	}
	return results, nil
}

// appendTopics flattens one level of grouped topics into results.
func appendTopics(results []Result, topics []ddgTopic, count int) []Result {
	for _, t := range topics {
		if len(results) >= count {
			break
		}
		if len(t.Topics) > 0 {
			results = appendTopics(results, t.Topics, count)
			continue
		}
		if t.FirstURL == "" || t.Text == "" {
			continue
		}
		results = append(results, Result{
			Title:   topicTitle(t.Text),
			URL:     t.FirstURL,
			Snippet: t.Text,
		})
	}
	return results
}

// topicTitle keeps the leading clause of an instant-answer text blob.
func topicTitle(text string) string {
	if i := strings.Index(text, " - "); i > 0 {
		return text[:i]
	}
	return text
}
