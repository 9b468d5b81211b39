package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Message is a single turn in a chat exchange.
type Message struct {
	Role    string   `json:"role"` // "system", "user", or "assistant"
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64-encoded, for vision models
}

// Options carries per-request sampling parameters. Zero values are
// omitted so the backend's model defaults apply.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ChatRequest is the request body for /api/chat.
type ChatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream"`
	KeepAlive string    `json:"keep_alive,omitempty"`
	Format    string    `json:"format,omitempty"` // "json" forces structured output
	Options   *Options  `json:"options,omitempty"`
}

// ChatResponse is a chat reply. For streaming requests the timing
// counters are only present on the final chunk.
type ChatResponse struct {
	Model     string  `json:"model"`
	CreatedAt string  `json:"created_at"`
	Message   Message `json:"message"`
	Done      bool    `json:"done"`

	TotalDuration   int64 `json:"total_duration,omitempty"`
	LoadDuration    int64 `json:"load_duration,omitempty"`
	PromptEvalCount int   `json:"prompt_eval_count,omitempty"`
	EvalCount       int   `json:"eval_count,omitempty"`
	EvalDuration    int64 `json:"eval_duration,omitempty"`
}

// StreamCallback receives incremental tokens during a streaming chat.
type StreamCallback func(token string)

// BackendError is a non-2xx reply from the model backend.
type BackendError struct {
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

// ErrInsufficientMemory marks failures where the backend could not load
// the requested model because the host ran out of memory. Callers skip
// further retries on the same model and fall back to a smaller one.
var ErrInsufficientMemory = errors.New("insufficient memory to load model")

var memorySentinels = []string{
	"not enough memory",
	"out of memory",
	"insufficient memory",
	"requires more system memory",
	"cannot allocate memory",
}

func hasMemorySentinel(s string) bool {
	s = strings.ToLower(s)
	for _, m := range memorySentinels {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// IsMemoryError reports whether err indicates memory pressure on the
// backend, either via the ErrInsufficientMemory sentinel or recognizable
// text in the error chain.
func IsMemoryError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInsufficientMemory) {
		return true
	}
	return hasMemorySentinel(err.Error())
}
