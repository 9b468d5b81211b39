// Package cache is the response cache consulted before any model call.
// It layers an exact probe (intent + hashed prompt) over an optional
// semantic probe that matches stored embeddings by cosine similarity.
package cache

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/embeddings"
	"github.com/BA-SupportII/BA-AI/internal/storage"
)

// Key builds the exact-probe key for a prompt under an intent tag.
// The prompt is lowercased first so casing never splits the cache.
func Key(intent, prompt string) string {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(prompt))))
	return intent + "_" + strconv.FormatUint(h.Sum64(), 36)
}

// Item is one cached response. Fast items come from the cheap route
// and keep a much longer TTL than full generations.
type Item struct {
	Key       string    `json:"key"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
	Embedding []float32 `json:"embedding,omitempty"`
	Intent    string    `json:"intent"`
	Fast      bool      `json:"fast,omitempty"`
	Hits      int       `json:"hits,omitempty"`
}

// cacheFile is the on-disk document shape.
type cacheFile struct {
	Items []Item `json:"items"`
}

// Cache is a bounded FIFO response cache persisted as one JSON
// document with debounced writes.
type Cache struct {
	mu        sync.Mutex
	items     []Item
	saver     *storage.Saver
	max       int
	ttl       time.Duration
	fastTTL   time.Duration
	threshold float64
}

// New opens or creates the cache file at path. Items whose TTL already
// passed are dropped on load. Zero-value config knobs fall back to the
// shipped defaults so the cache stays bounded no matter what.
func New(path string, cfg config.CacheConfig, logger *slog.Logger) (*Cache, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 500
	}
	if cfg.TTLHours <= 0 {
		cfg.TTLHours = 12
	}
	if cfg.FastTTLHours <= 0 {
		cfg.FastTTLHours = 168
	}
	if cfg.SemanticThreshold <= 0 {
		cfg.SemanticThreshold = 0.92
	}

	var doc cacheFile
	if err := storage.LoadJSON(path, &doc); err != nil {
		return nil, fmt.Errorf("load response cache: %w", err)
	}

	c := &Cache{
		max:       cfg.MaxEntries,
		ttl:       time.Duration(cfg.TTLHours) * time.Hour,
		fastTTL:   time.Duration(cfg.FastTTLHours) * time.Hour,
		threshold: cfg.SemanticThreshold,
	}

	now := time.Now()
	for _, it := range doc.Items {
		if c.live(it, now) {
			c.items = append(c.items, it)
		}
	}

	c.saver = storage.NewSaver(path, storage.DefaultDebounce, c.snapshot, logger)
	return c, nil
}

func (c *Cache) snapshot() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]Item, len(c.items))
	copy(items, c.items)
	return cacheFile{Items: items}
}

func (c *Cache) ttlFor(it Item) time.Duration {
	if it.Fast {
		return c.fastTTL
	}
	return c.ttl
}

func (c *Cache) live(it Item, now time.Time) bool {
	return now.Sub(it.Timestamp) <= c.ttlFor(it)
}

// Get returns the response stored under key. Expired items read as
// misses; they age out of the window through FIFO eviction.
func (c *Cache) Get(key string) (string, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.items {
		if c.items[i].Key != key {
			continue
		}
		if !c.live(c.items[i], now) {
			return "", false
		}
		c.items[i].Hits++
		return c.items[i].Response, true
	}
	return "", false
}

// GetSemantic returns the live response whose embedding is most
// similar to vec, provided the similarity clears the threshold.
func (c *Cache) GetSemantic(vec []float32) (string, float64, bool) {
	if len(vec) == 0 {
		return "", 0, false
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	best := -1
	var bestScore float64
	for i := range c.items {
		if len(c.items[i].Embedding) == 0 || !c.live(c.items[i], now) {
			continue
		}
		score := float64(embeddings.CosineSimilarity(vec, c.items[i].Embedding))
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 || bestScore < c.threshold {
		return "", 0, false
	}
	c.items[best].Hits++
	return c.items[best].Response, bestScore, true
}

// Put stores a response under key and schedules a write. An existing
// key is overwritten in place; new items evict the oldest once the
// cache is full. Last writer wins.
func (c *Cache) Put(key, response, intent string, vec []float32, fast bool) {
	it := Item{
		Key:       key,
		Response:  response,
		Timestamp: time.Now(),
		Embedding: vec,
		Intent:    intent,
		Fast:      fast,
	}

	c.mu.Lock()
	replaced := false
	for i := range c.items {
		if c.items[i].Key == key {
			it.Hits = c.items[i].Hits
			c.items[i] = it
			replaced = true
			break
		}
	}
	if !replaced {
		c.items = append(c.items, it)
		if len(c.items) > c.max {
			keep := make([]Item, c.max)
			copy(keep, c.items[len(c.items)-c.max:])
			c.items = keep
		}
	}
	c.mu.Unlock()

	c.saver.Trigger()
}

// Len reports the number of stored items, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats returns cache counters for the stats endpoint.
func (c *Cache) Stats() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	hits := 0
	for i := range c.items {
		hits += c.items[i].Hits
	}
	return map[string]any{
		"items": len(c.items),
		"hits":  hits,
		"max":   c.max,
	}
}

// Flush writes any pending state synchronously. Call on shutdown.
func (c *Cache) Flush() error {
	return c.saver.Flush()
}
