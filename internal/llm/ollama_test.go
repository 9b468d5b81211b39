package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler) (*OllamaClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, KeepAlive: "30m"})
	return c, srv
}

func TestChat(t *testing.T) {
	var got ChatRequest
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ChatResponse{
			Model:     got.Model,
			Message:   Message{Role: "assistant", Content: "hello back"},
			Done:      true,
			EvalCount: 3,
		})
	}))

	resp, err := c.Chat(context.Background(), "qwen3:8b", []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
	}, &Options{Temperature: 0.2})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if got.Stream {
		t.Error("blocking request sent stream=true")
	}
	if got.KeepAlive != "30m" {
		t.Errorf("keep_alive = %q, want 30m", got.KeepAlive)
	}
	if got.Model != "qwen3:8b" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.Options == nil || got.Options.Temperature != 0.2 {
		t.Errorf("options = %+v", got.Options)
	}
	if resp.Message.Content != "hello back" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.EvalCount != 3 {
		t.Errorf("eval count = %d", resp.EvalCount)
	}
}

func TestChatStream(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("streaming request sent stream=false")
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, tok := range []string{"one ", "two ", "three"} {
			fmt.Fprintf(w, `{"message":{"role":"assistant","content":%q},"done":false}`+"\n", tok)
		}
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true,"eval_count":9,"total_duration":1200}`)
	}))

	var tokens []string
	resp, err := c.ChatStream(context.Background(), "qwen3:8b", []Message{{Role: "user", Content: "count"}}, nil, func(tok string) {
		tokens = append(tokens, tok)
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	if want := []string{"one ", "two ", "three"}; len(tokens) != len(want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
	if resp.Message.Content != "one two three" {
		t.Errorf("accumulated content = %q", resp.Message.Content)
	}
	if resp.EvalCount != 9 || resp.TotalDuration != 1200 {
		t.Errorf("final counters not captured: %+v", resp)
	}
	if resp.Message.Role != "assistant" {
		t.Errorf("role = %q", resp.Message.Role)
	}
}

func TestChatStream_NilCallback(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"ok"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":""},"done":true}`)
	}))

	resp, err := c.ChatStream(context.Background(), "m", []Message{{Role: "user", Content: "x"}}, nil, nil)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if resp.Message.Content != "ok" {
		t.Errorf("content = %q", resp.Message.Content)
	}
}

func TestChatStream_ErrorChunk(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"partial"},"done":false}`)
		fmt.Fprintln(w, `{"error":"llama runner process has terminated"}`)
	}))

	_, err := c.ChatStream(context.Background(), "m", []Message{{Role: "user", Content: "x"}}, nil, nil)
	if err == nil {
		t.Fatal("expected error from error chunk")
	}
	if !strings.Contains(err.Error(), "llama runner") {
		t.Errorf("error = %v, want backend message preserved", err)
	}
}

func TestChat_MemoryError(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model requires more system memory (12.1 GiB) than is available (8.0 GiB)"}`, http.StatusInternalServerError)
	}))

	_, err := c.Chat(context.Background(), "big-model", []Message{{Role: "user", Content: "x"}}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrInsufficientMemory) {
		t.Errorf("errors.Is(err, ErrInsufficientMemory) = false for %v", err)
	}
	if !IsMemoryError(err) {
		t.Errorf("IsMemoryError = false for %v", err)
	}
}

func TestChat_BackendError(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model 'nope' not found"}`, http.StatusNotFound)
	}))

	_, err := c.Chat(context.Background(), "nope", []Message{{Role: "user", Content: "x"}}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("expected BackendError, got %T: %v", err, err)
	}
	if be.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", be.StatusCode)
	}
	if IsMemoryError(err) {
		t.Error("not-found misclassified as memory pressure")
	}
}

func TestChatStream_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"first"},"done":false}`)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := c.ChatStream(ctx, "m", []Message{{Role: "user", Content: "x"}}, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestListModels(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprintln(w, `{"models":[{"name":"qwen3:8b"},{"name":"qwen3:1.7b"}]}`)
	}))

	names, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(names) != 2 || names[0] != "qwen3:8b" || names[1] != "qwen3:1.7b" {
		t.Errorf("names = %v", names)
	}
}

func TestPing(t *testing.T) {
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"models":[]}`)
	}))

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	srv.Close()
	if err := c.Ping(context.Background()); err == nil {
		t.Error("Ping succeeded against closed server")
	}
}
