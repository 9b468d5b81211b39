// Package storage persists the data-directory JSON documents.
//
// Every document is written whole: marshal, write to a temp file next
// to the target, rename over it. A reader therefore sees either the
// previous or the next complete document, never a torn one. Mutating
// stores trigger a debounced Saver instead of writing inline, so a
// burst of changes costs one disk write.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultDebounce is the save coalescing window.
const DefaultDebounce = 250 * time.Millisecond

// SaveJSON writes v to path atomically (temp file + rename).
func SaveJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// LoadJSON reads path into v. A missing file is not an error; v is
// left untouched so the caller keeps its zero-value state.
func LoadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Provider supplies the document to persist. It is called at flush
// time, on the Saver's goroutine, and must return a value that is safe
// to marshal concurrently with further store mutations (i.e. a copy).
type Provider func() any

// Saver debounces saves for one document. Trigger marks the document
// dirty; the write happens once per coalescing window. Flush writes
// synchronously and is meant for shutdown.
type Saver struct {
	path    string
	delay   time.Duration
	collect Provider
	logger  *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewSaver creates a debounced saver for path. A delay of zero uses
// DefaultDebounce.
func NewSaver(path string, delay time.Duration, collect Provider, logger *slog.Logger) *Saver {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Saver{path: path, delay: delay, collect: collect, logger: logger}
}

// Trigger schedules a save. Calls during a pending window are
// absorbed, so the document hits disk at most once per window and at
// latest one window after the first dirty write.
func (s *Saver) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		s.timer = nil
		s.mu.Unlock()

		if err := SaveJSON(s.path, s.collect()); err != nil {
			s.logger.Error("debounced save failed", "path", s.path, "error", err)
		}
	})
}

// Flush cancels any pending timer and writes the document now.
func (s *Saver) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return SaveJSON(s.path, s.collect())
}
