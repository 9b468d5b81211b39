package memory

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/embeddings"
	"github.com/BA-SupportII/BA-AI/internal/storage"
)

// Memory entry types.
const (
	TypeConversation = "conversation"
	TypeSummary      = "summary"
	TypeFact         = "fact"
	TypePreference   = "preference"
)

const (
	// maxEntryKeywords caps keywords stored per entry.
	maxEntryKeywords = 40

	// vectorWeight scales cosine similarity against keyword hit counts
	// when both the query and the entry carry embeddings.
	vectorWeight = 2.0
)

// Meta identifies who owns an entry and what kind it is.
type Meta struct {
	UserID string `json:"userId"`
	TeamID string `json:"teamId,omitempty"`
	Type   string `json:"type"`
}

// Entry is one persisted memory.
type Entry struct {
	ID        string    `json:"id"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Keywords  []string  `json:"keywords,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	Meta      Meta      `json:"meta"`
	CreatedAt time.Time `json:"createdAt"`
	// ExpiresAt stays a string so hand-edited or malformed timestamps
	// survive the round trip. An unparsable value never expires.
	ExpiresAt string `json:"expiresAt,omitempty"`
}

// Expired reports whether the entry's TTL has passed.
func (e Entry) Expired(now time.Time) bool {
	if e.ExpiresAt == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, e.ExpiresAt)
	if err != nil {
		return false
	}
	return now.After(t)
}

// Scope selects whose entries an operation sees. With TeamMode set and
// a TeamID present, entries are shared across the team; otherwise each
// user sees only their own.
type Scope struct {
	UserID   string
	TeamID   string
	TeamMode bool
}

func (s Scope) owns(e Entry) bool {
	if s.TeamMode && s.TeamID != "" {
		return e.Meta.TeamID == s.TeamID
	}
	return e.Meta.UserID == s.UserID
}

// Recalled pairs an entry with its relevance score.
type Recalled struct {
	Entry Entry
	Score float64
}

// memoryFile is the on-disk document shape.
type memoryFile struct {
	Entries []Entry `json:"entries"`
}

// Store persists long-lived memories as a single JSON document with
// debounced writes. MaxEntries of zero or less means unbounded, a
// DefaultTTLDays of zero or less means entries never expire.
type Store struct {
	mu         sync.RWMutex
	entries    []Entry
	saver      *storage.Saver
	maxEntries int
	defaultTTL time.Duration
	minScore   float64
}

// NewStore opens or creates the memory file at path. Entries whose
// TTL already passed are dropped on load.
func NewStore(path string, cfg config.MemoryConfig, logger *slog.Logger) (*Store, error) {
	var doc memoryFile
	if err := storage.LoadJSON(path, &doc); err != nil {
		return nil, fmt.Errorf("load memory store: %w", err)
	}

	s := &Store{
		maxEntries: cfg.MaxEntries,
		defaultTTL: time.Duration(cfg.DefaultTTLDays) * 24 * time.Hour,
		minScore:   cfg.MinRecallScore,
	}

	now := time.Now().UTC()
	for _, e := range doc.Entries {
		if e.Expired(now) {
			continue
		}
		s.entries = append(s.entries, e)
	}

	s.saver = storage.NewSaver(path, storage.DefaultDebounce, s.snapshot, logger)
	return s, nil
}

func (s *Store) snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]Entry, len(s.entries))
	copy(entries, s.entries)
	return memoryFile{Entries: entries}
}

// Save stores a new memory and schedules a write. Keywords are
// extracted from both sides of the exchange; the oldest entries are
// trimmed once the store exceeds its cap.
func (s *Store) Save(prompt, response string, meta Meta, vec []float32) Entry {
	if meta.Type == "" {
		meta.Type = TypeConversation
	}

	now := time.Now().UTC()
	e := Entry{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Response:  response,
		Keywords:  Keywords(prompt+" "+response, maxEntryKeywords),
		Embedding: vec,
		Meta:      meta,
		CreatedAt: now,
	}
	if s.defaultTTL > 0 {
		e.ExpiresAt = now.Add(s.defaultTTL).Format(time.RFC3339)
	}

	s.mu.Lock()
	s.entries = append(s.entries, e)
	if s.maxEntries > 0 && len(s.entries) > s.maxEntries {
		keep := make([]Entry, s.maxEntries)
		copy(keep, s.entries[len(s.entries)-s.maxEntries:])
		s.entries = keep
	}
	s.mu.Unlock()

	s.saver.Trigger()
	return e
}

// Recall returns up to limit live entries in scope relevant to query,
// best first. The score counts shared keywords, plus weighted cosine
// similarity when both the query and the entry carry vectors; entries
// under the minimum score are dropped.
func (s *Store) Recall(query string, queryVec []float32, scope Scope, limit int) []Recalled {
	qset := make(map[string]struct{})
	for _, k := range Keywords(query, 0) {
		qset[k] = struct{}{}
	}

	now := time.Now().UTC()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []Recalled
	for _, e := range s.entries {
		if !scope.owns(e) || e.Expired(now) {
			continue
		}
		var score float64
		for _, k := range e.Keywords {
			if _, ok := qset[k]; ok {
				score++
			}
		}
		if len(queryVec) > 0 && len(e.Embedding) > 0 {
			score += float64(embeddings.CosineSimilarity(queryVec, e.Embedding)) * vectorWeight
		}
		if score < s.minScore {
			continue
		}
		hits = append(hits, Recalled{Entry: e, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// List returns a copy of the live entries in scope, oldest first.
func (s *Store) List(scope Scope) []Entry {
	now := time.Now().UTC()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if scope.owns(e) && !e.Expired(now) {
			out = append(out, e)
		}
	}
	return out
}

// Delete removes the entry with the given id.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	found := false
	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if found {
		s.saver.Trigger()
	}
	return found
}

// Purge drops all expired entries and reports how many were removed.
func (s *Store) Purge() int {
	now := time.Now().UTC()

	s.mu.Lock()
	live := s.entries[:0]
	for _, e := range s.entries {
		if !e.Expired(now) {
			live = append(live, e)
		}
	}
	removed := len(s.entries) - len(live)
	s.entries = live
	s.mu.Unlock()

	if removed > 0 {
		s.saver.Trigger()
	}
	return removed
}

// UpdateTTL rewrites the expiry of every entry in scope. Days of zero
// or less pins the entries so they never expire. Returns the number of
// entries touched.
func (s *Store) UpdateTTL(scope Scope, days int) int {
	var expires string
	if days > 0 {
		expires = time.Now().UTC().Add(time.Duration(days) * 24 * time.Hour).Format(time.RFC3339)
	}

	s.mu.Lock()
	touched := 0
	for i := range s.entries {
		if scope.owns(s.entries[i]) {
			s.entries[i].ExpiresAt = expires
			touched++
		}
	}
	s.mu.Unlock()

	if touched > 0 {
		s.saver.Trigger()
	}
	return touched
}

// Clear removes every entry in scope and reports how many went.
func (s *Store) Clear(scope Scope) int {
	s.mu.Lock()
	keep := s.entries[:0]
	for _, e := range s.entries {
		if !scope.owns(e) {
			keep = append(keep, e)
		}
	}
	removed := len(s.entries) - len(keep)
	s.entries = keep
	s.mu.Unlock()

	if removed > 0 {
		s.saver.Trigger()
	}
	return removed
}

// Len reports the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Flush writes any pending state synchronously. Call on shutdown.
func (s *Store) Flush() error {
	return s.saver.Flush()
}
