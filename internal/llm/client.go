// Package llm implements the client for the local Ollama-compatible
// model backend.
package llm

import "context"

// Client is the interface the rest of the pipeline uses to talk to the
// model backend.
type Client interface {
	// Chat sends a blocking chat request and returns the full response.
	Chat(ctx context.Context, model string, messages []Message, opts *Options) (*ChatResponse, error)

	// ChatStream sends a streaming chat request. If callback is non-nil it
	// receives each token as it arrives. The returned response carries the
	// accumulated content and the final timing counters.
	ChatStream(ctx context.Context, model string, messages []Message, opts *Options, callback StreamCallback) (*ChatResponse, error)

	// Ping checks whether the backend is reachable.
	Ping(ctx context.Context) error

	// ListModels returns the names of the models the backend has loaded
	// or available on disk.
	ListModels(ctx context.Context) ([]string, error)
}
