package embeddings

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	var gotPath, gotModel, gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotModel = req.Model
		gotPrompt = req.Prompt
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "nomic-embed-text"})
	vec, err := c.Generate(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3 dims, got %d", len(vec))
	}
	if gotPath != "/api/embeddings" {
		t.Errorf("expected POST to /api/embeddings, got %s", gotPath)
	}
	if gotModel != "nomic-embed-text" || gotPrompt != "hello world" {
		t.Errorf("request carried model=%q prompt=%q", gotModel, gotPrompt)
	}
}

func TestGenerate_BackendErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-200 status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model not found", http.StatusNotFound)
			},
		},
		{
			name: "empty vector",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{}})
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			c := New(Config{BaseURL: srv.URL})
			if _, err := c.Generate(context.Background(), "x"); err == nil {
				t.Fatal("expected an error, got nil")
			}
		})
	}
}

func TestGenerateBatch_StopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{1}})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	if _, err := c.GenerateBatch(ctx, []string{"a", "b"}); err == nil {
		t.Fatal("expected cancellation error, got nil")
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{name: "identical", a: []float32{1, 0, 0}, b: []float32{1, 0, 0}, expected: 1.0},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, expected: 0.0},
		{name: "opposite", a: []float32{1, 1}, b: []float32{-1, -1}, expected: -1.0},
		{name: "mismatched length", a: []float32{1}, b: []float32{1, 2}, expected: 0.0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, expected: 0.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CosineSimilarity(tc.a, tc.b)
			if math.Abs(float64(got-tc.expected)) > 0.0001 {
				t.Errorf("got %f, want %f", got, tc.expected)
			}
		})
	}
}

func TestTopK(t *testing.T) {
	query := []float32{1, 0, 0}
	vectors := [][]float32{
		{0, 1, 0},     // sim = 0
		{1, 0, 0},     // sim = 1
		{-1, 0, 0},    // sim = -1
		{0.7, 0.7, 0}, // sim = 0.707
	}

	top2 := TopK(query, vectors, 2)
	if len(top2) != 2 {
		t.Fatalf("expected 2 results, got %d", len(top2))
	}
	if top2[0] != 1 || top2[1] != 3 {
		t.Errorf("expected [1 3], got %v", top2)
	}

	all := TopK(query, vectors, 10)
	if len(all) != len(vectors) {
		t.Errorf("k beyond len should clamp, got %d results", len(all))
	}
}
