package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/BA-SupportII/BA-AI/internal/httpkit"
)

// SerpAPI implements the Provider interface for serpapi.com.
type SerpAPI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewSerpAPI creates a SerpAPI provider.
func NewSerpAPI(apiKey string) *SerpAPI {
	return &SerpAPI{
		apiKey:  apiKey,
		baseURL: "https://serpapi.com",
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(15 * time.Second),
		),
	}
}

func (s *SerpAPI) Name() string { return "serpapi" }

type serpapiResponse struct {
	Organic []serpapiResult `json:"organic_results"`
}

type serpapiResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

func (s *SerpAPI) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	count := opts.Count
	if count == 0 {
		count = 5
	}

	params := url.Values{
		"q":       {query},
		"api_key": {s.apiKey},
		"num":     {strconv.Itoa(count)},
	}
	if opts.Language != "" {
		params.Set("hl", opts.Language)
	}

	reqURL := fmt.Sprintf("%s/search.json?%s", s.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("serpapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serpapi: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("serpapi: HTTP %d: %s", resp.StatusCode, body)
	}

	var sr serpapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("serpapi: decode response: %w", err)
	}

	results := make([]Result, 0, count)
	for i, r := range sr.Organic {
		if i >= count {
			break
		}
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: r.Snippet,
		})
	}
	return results, nil
}
