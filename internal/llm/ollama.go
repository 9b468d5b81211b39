package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/httpkit"
)

// OllamaClient talks to an Ollama-compatible HTTP backend.
type OllamaClient struct {
	baseURL   string
	keepAlive string
	logger    *slog.Logger

	// blocking carries a hard overall deadline. streaming only bounds
	// the wait for response headers so long generations are not cut off
	// mid-answer; callers bound the whole attempt via context.
	blocking  *http.Client
	streaming *http.Client
}

// OllamaConfig configures an OllamaClient.
type OllamaConfig struct {
	BaseURL        string
	HeadersTimeout time.Duration // max wait for response headers on streaming calls
	BodyTimeout    time.Duration // overall deadline for blocking calls
	KeepAlive      string        // forwarded as keep_alive on every request
	Logger         *slog.Logger
}

func (c *OllamaConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://127.0.0.1:11434"
	}
	if c.HeadersTimeout <= 0 {
		c.HeadersTimeout = 2 * time.Minute
	}
	if c.BodyTimeout <= 0 {
		c.BodyTimeout = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// NewOllamaClient creates a client for the backend at cfg.BaseURL.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	cfg.applyDefaults()
	return &OllamaClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		keepAlive: cfg.KeepAlive,
		logger:    cfg.Logger.With("component", "llm"),
		blocking: httpkit.NewClient(
			httpkit.WithTimeout(cfg.BodyTimeout),
		),
		streaming: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithResponseHeaderTimeout(cfg.HeadersTimeout),
		),
	}
}

// Chat sends a blocking chat request and returns the full response.
func (c *OllamaClient) Chat(ctx context.Context, model string, messages []Message, opts *Options) (*ChatResponse, error) {
	resp, err := c.send(ctx, c.blocking, ChatRequest{
		Model:     model,
		Messages:  messages,
		Stream:    false,
		KeepAlive: c.keepAlive,
		Options:   opts,
	})
	if err != nil {
		return nil, err
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}
	return &out, nil
}

// streamChunk is a single NDJSON line from a streaming chat. Backends
// report mid-stream failures as an error field on an otherwise normal
// chunk.
type streamChunk struct {
	ChatResponse
	Error string `json:"error,omitempty"`
}

// ChatStream sends a streaming chat request. Each content delta is
// passed to callback as it arrives; the returned response contains the
// accumulated content plus the timing counters from the final chunk.
func (c *OllamaClient) ChatStream(ctx context.Context, model string, messages []Message, opts *Options, callback StreamCallback) (*ChatResponse, error) {
	resp, err := c.send(ctx, c.streaming, ChatRequest{
		Model:     model,
		Messages:  messages,
		Stream:    true,
		KeepAlive: c.keepAlive,
		Options:   opts,
	})
	if err != nil {
		return nil, err
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	var (
		final   ChatResponse
		content strings.Builder
	)
	dec := json.NewDecoder(resp.Body)
	for {
		var chunk streamChunk
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("decoding stream: %w", err)
		}
		if chunk.Error != "" {
			return nil, classify(&BackendError{StatusCode: http.StatusInternalServerError, Body: chunk.Error})
		}
		if chunk.Message.Content != "" {
			content.WriteString(chunk.Message.Content)
			if callback != nil {
				callback(chunk.Message.Content)
			}
		}
		if chunk.Done {
			final = chunk.ChatResponse
			break
		}
	}
	final.Message.Role = "assistant"
	final.Message.Content = content.String()
	return &final, nil
}

// Ping checks that the backend is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("building ping request: %w", err)
	}
	resp, err := c.blocking.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)
	if resp.StatusCode != http.StatusOK {
		return &BackendError{StatusCode: resp.StatusCode, Body: httpkit.ReadErrorBody(resp.Body, 2048)}
	}
	return nil
}

// ListModels returns the names of the models the backend has available.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("building list request: %w", err)
	}
	resp, err := c.blocking.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)
	if resp.StatusCode != http.StatusOK {
		return nil, &BackendError{StatusCode: resp.StatusCode, Body: httpkit.ReadErrorBody(resp.Body, 2048)}
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decoding model list: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (c *OllamaClient) send(ctx context.Context, hc *http.Client, body ChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}
	c.logger.Log(ctx, config.LevelTrace, "chat request",
		"model", body.Model, "stream", body.Stream, "payload", string(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling model backend: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := httpkit.ReadErrorBody(resp.Body, 2048)
		return nil, classify(&BackendError{StatusCode: resp.StatusCode, Body: msg})
	}
	return resp, nil
}

// classify wraps backend errors that indicate memory pressure so callers
// can pick a smaller model instead of retrying the same one.
func classify(be *BackendError) error {
	if hasMemorySentinel(be.Body) {
		return fmt.Errorf("%w: %v", ErrInsufficientMemory, be)
	}
	return be
}
