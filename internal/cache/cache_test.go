package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/storage"
)

func testCache(t *testing.T, cfg config.CacheConfig) (*Cache, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "response_cache.json")
	c, err := New(path, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, path
}

func TestKey(t *testing.T) {
	a := Key("MATH_REASONING", "What is 2+2?")
	b := Key("MATH_REASONING", "what is 2+2?")
	if a != b {
		t.Errorf("casing split the key: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "MATH_REASONING_") {
		t.Errorf("key missing intent prefix: %q", a)
	}

	suffix := strings.TrimPrefix(a, "MATH_REASONING_")
	for _, r := range suffix {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z') {
			t.Fatalf("suffix not base36: %q", suffix)
		}
	}

	if Key("CASUAL_CHAT", "What is 2+2?") == a {
		t.Error("different intents should key separately")
	}
	if Key("MATH_REASONING", "What is 2+3?") == a {
		t.Error("different prompts should key separately")
	}
}

func TestCache_PutGet(t *testing.T) {
	c, _ := testCache(t, config.CacheConfig{})

	key := Key("CASUAL_CHAT", "hello there")
	c.Put(key, "Result\n- Hi!", "CASUAL_CHAT", nil, false)

	got, ok := c.Get(key)
	if !ok || got != "Result\n- Hi!" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	if _, ok := c.Get("CASUAL_CHAT_nope"); ok {
		t.Error("unknown key reported a hit")
	}

	stats := c.Stats()
	if stats["items"] != 1 || stats["hits"] != 1 {
		t.Errorf("stats = %v", stats)
	}
}

func TestCache_OverwriteSameKey(t *testing.T) {
	c, _ := testCache(t, config.CacheConfig{})
	key := Key("CASUAL_CHAT", "hi")

	c.Put(key, "first", "CASUAL_CHAT", nil, false)
	c.Put(key, "second", "CASUAL_CHAT", nil, false)

	if c.Len() != 1 {
		t.Fatalf("overwrite grew the cache to %d", c.Len())
	}
	if got, _ := c.Get(key); got != "second" {
		t.Errorf("last writer should win, got %q", got)
	}
}

func TestCache_FIFOEviction(t *testing.T) {
	c, _ := testCache(t, config.CacheConfig{MaxEntries: 3})

	keys := make([]string, 4)
	for i, p := range []string{"a", "b", "c", "d"} {
		keys[i] = Key("CASUAL_CHAT", p)
		c.Put(keys[i], "resp-"+p, "CASUAL_CHAT", nil, false)
	}

	if c.Len() != 3 {
		t.Fatalf("expected cap of 3, got %d", c.Len())
	}
	if _, ok := c.Get(keys[0]); ok {
		t.Error("oldest item should have been evicted")
	}
	if _, ok := c.Get(keys[3]); !ok {
		t.Error("newest item missing after eviction")
	}
}

func TestCache_TTL(t *testing.T) {
	c, _ := testCache(t, config.CacheConfig{TTLHours: 12, FastTTLHours: 168})

	slow := Key("CASUAL_CHAT", "slow")
	fast := Key("CASUAL_CHAT", "fast")
	c.Put(slow, "slow answer", "CASUAL_CHAT", nil, false)
	c.Put(fast, "fast answer", "CASUAL_CHAT", nil, true)

	// Age both past the default TTL but inside the fast TTL.
	c.mu.Lock()
	for i := range c.items {
		c.items[i].Timestamp = time.Now().Add(-13 * time.Hour)
	}
	c.mu.Unlock()

	if _, ok := c.Get(slow); ok {
		t.Error("12h item should expire after 13h")
	}
	if got, ok := c.Get(fast); !ok || got != "fast answer" {
		t.Errorf("fast item should survive 13h, got %q, %v", got, ok)
	}
}

func TestCache_SemanticProbe(t *testing.T) {
	c, _ := testCache(t, config.CacheConfig{SemanticThreshold: 0.92})

	c.Put(Key("CASUAL_CHAT", "plain"), "no vector", "CASUAL_CHAT", nil, false)
	c.Put(Key("CASUAL_CHAT", "close"), "close answer", "CASUAL_CHAT", []float32{0.96, 0.28}, false)
	c.Put(Key("CASUAL_CHAT", "exact"), "exact answer", "CASUAL_CHAT", []float32{1, 0}, false)

	got, score, ok := c.GetSemantic([]float32{1, 0})
	if !ok || got != "exact answer" {
		t.Fatalf("GetSemantic = %q, %v", got, ok)
	}
	if score < 0.999 {
		t.Errorf("identical vector should score 1, got %f", score)
	}

	if _, _, ok := c.GetSemantic([]float32{0.6, 0.8}); ok {
		t.Error("cosine 0.6 must not clear a 0.92 threshold")
	}
	if _, _, ok := c.GetSemantic(nil); ok {
		t.Error("empty query vector should miss")
	}
}

func TestCache_ReloadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "response_cache.json")

	c1, err := New(path, config.CacheConfig{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key := Key("MATH_REASONING", "28 - 4 + 2")
	c1.Put(key, "Result\n- 28-4+2 = 26", "MATH_REASONING", nil, false)
	if err := c1.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(raw), `"items"`) {
		t.Errorf("document missing items key: %s", raw)
	}

	c2, err := New(path, config.CacheConfig{}, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got, ok := c2.Get(key); !ok || got != "Result\n- 28-4+2 = 26" {
		t.Errorf("round trip lost the item: %q, %v", got, ok)
	}
}

func TestCache_ExpiredDroppedOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "response_cache.json")
	doc := cacheFile{Items: []Item{
		{Key: "a", Response: "stale", Timestamp: time.Now().Add(-13 * time.Hour)},
		{Key: "b", Response: "stale but fast", Fast: true, Timestamp: time.Now().Add(-13 * time.Hour)},
		{Key: "c", Response: "fresh", Timestamp: time.Now()},
	}}
	if err := storage.SaveJSON(path, doc); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	c, err := New(path, config.CacheConfig{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected expired item dropped on load, kept %d", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("expired item survived the load")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("fast item inside its TTL was dropped")
	}
}
