// Package embeddings generates vector embeddings through the Ollama
// embedding API and provides the similarity helpers the recall and
// semantic-cache paths share.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/BA-SupportII/BA-AI/internal/httpkit"
)

// Client generates embeddings for prompts, memories, and doc chunks.
type Client struct {
	baseURL string
	model   string
	logger  *slog.Logger
	client  *http.Client
}

// Config for the embedding client.
type Config struct {
	BaseURL string // backend base URL, e.g. "http://127.0.0.1:11434"
	Model   string // embedding model, e.g. "nomic-embed-text"
	Timeout time.Duration
	Logger  *slog.Logger
}

// New creates an embedding client. Zero-value knobs get working
// defaults so callers only set what they care about.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		logger:  cfg.Logger,
		client:  httpkit.NewClient(httpkit.WithTimeout(cfg.Timeout)),
	}
}

// Model returns the configured embedding model name.
func (c *Client) Model() string { return c.model }

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Generate returns the embedding vector for one text.
func (c *Client) Generate(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("embedding backend returned status %d: %s", resp.StatusCode, errBody)
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(er.Embedding) == 0 {
		return nil, fmt.Errorf("embedding backend returned an empty vector for model %s", c.model)
	}
	return er.Embedding, nil
}

// GenerateBatch embeds texts one by one. The backend has no batch
// endpoint; the loop stops at the first failure or cancellation.
func (c *Client) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := c.Generate(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		results[i] = vec
	}
	return results, nil
}

// CosineSimilarity computes cosine similarity between two vectors.
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

// TopK returns the indices of the k vectors most similar to query,
// best first.
func TopK(query []float32, vectors [][]float32, k int) []int {
	idx := make([]int, len(vectors))
	scores := make([]float32, len(vectors))
	for i, v := range vectors {
		idx[i] = i
		scores[i] = CosineSimilarity(query, v)
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	if k > len(idx) {
		k = len(idx)
	}
	return idx[:k]
}
