package storage

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

type doc struct {
	Entries []string `json:"entries"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "memory.json")

	want := doc{Entries: []string{"a", "b"}}
	if err := SaveJSON(path, want); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}

	var got doc
	if err := LoadJSON(path, &got); err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if len(got.Entries) != 2 || got.Entries[0] != "a" {
		t.Errorf("got %+v, want %+v", got, want)
	}

	// No temp file left behind.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file survived the rename")
	}
}

func TestLoadJSON_MissingFileKeepsZeroValue(t *testing.T) {
	got := doc{Entries: []string{"seed"}}
	if err := LoadJSON(filepath.Join(t.TempDir(), "absent.json"), &got); err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0] != "seed" {
		t.Errorf("missing file mutated target: %+v", got)
	}
}

func TestLoadJSON_CorruptFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	var got doc
	if err := LoadJSON(path, &got); err == nil {
		t.Error("corrupt file did not error")
	}
}

func TestSaver_CoalescesTriggers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	var collects atomic.Int32
	s := NewSaver(path, 30*time.Millisecond, func() any {
		collects.Add(1)
		return doc{Entries: []string{"x"}}
	}, nil)

	for i := 0; i < 10; i++ {
		s.Trigger()
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("debounced save never landed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n := collects.Load(); n != 1 {
		t.Errorf("collect ran %d times, want 1", n)
	}
}

func TestSaver_FlushWritesImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mem.json")
	s := NewSaver(path, time.Hour, func() any { return doc{Entries: []string{"y"}} }, nil)

	s.Trigger() // pending far in the future
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	var got doc
	if err := LoadJSON(path, &got); err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0] != "y" {
		t.Errorf("flush wrote %+v", got)
	}

	// The pending timer was cancelled; no second write should occur.
	before, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("cancelled timer still wrote")
	}
}
