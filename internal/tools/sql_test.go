package tools

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func newTestDB(t *testing.T) (*SQLStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	store := NewSQLStore(path, nil)
	ctx := context.Background()

	mustExec := func(q string) {
		t.Helper()
		if _, err := store.Query(ctx, path, q, true); err != nil {
			t.Fatalf("setup %q: %v", q, err)
		}
	}
	mustExec("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, age INTEGER)")
	mustExec("INSERT INTO users (name, age) VALUES ('alice', 31)")
	mustExec("INSERT INTO users (name, age) VALUES ('bob', 27)")
	return store, path
}

func TestSQLSelect(t *testing.T) {
	store, path := newTestDB(t)
	out, err := store.Query(context.Background(), path, "SELECT name, age FROM users ORDER BY name", false)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !strings.Contains(out, "| name | age |") {
		t.Fatalf("missing header row:\n%s", out)
	}
	if !strings.Contains(out, "| alice | 31 |") || !strings.Contains(out, "| bob | 27 |") {
		t.Fatalf("missing data rows:\n%s", out)
	}
}

func TestSQLReadOnlyGuard(t *testing.T) {
	store, path := newTestDB(t)
	ctx := context.Background()

	for _, q := range []string{
		"INSERT INTO users (name) VALUES ('eve')",
		"DELETE FROM users",
		"DROP TABLE users",
		"UPDATE users SET age = 0",
		"SELECT 1; SELECT 2",
		"PRAGMA journal_mode",
	} {
		if _, err := store.Query(ctx, path, q, false); !errors.Is(err, ErrUnsafeCode) {
			t.Fatalf("Query(%q) = %v, want ErrUnsafeCode", q, err)
		}
	}

	// Column names containing write keywords as substrings pass.
	if _, err := store.Query(ctx, path, "SELECT id AS created_at FROM users", false); err != nil {
		t.Fatalf("created_at query should be read-safe, got %v", err)
	}

	// Trailing semicolon alone is not multi-statement.
	if _, err := store.Query(ctx, path, "SELECT 1;", false); err != nil {
		t.Fatalf("trailing semicolon should pass, got %v", err)
	}
}

func TestSQLReadCache(t *testing.T) {
	store, path := newTestDB(t)
	ctx := context.Background()
	query := "SELECT count(*) AS n FROM users"

	first, err := store.Query(ctx, path, query, false)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if _, err := store.Query(ctx, path, "INSERT INTO users (name, age) VALUES ('carol', 44)", true); err != nil {
		t.Fatalf("write: %v", err)
	}
	second, err := store.Query(ctx, path, query, false)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if first != second {
		t.Fatalf("cached read changed within TTL:\nfirst: %s\nsecond: %s", first, second)
	}
}

func TestSQLSchema(t *testing.T) {
	store, path := newTestDB(t)
	out, err := store.Schema(context.Background(), path)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	if !strings.Contains(out, "table users:") {
		t.Fatalf("missing table block:\n%s", out)
	}
	if !strings.Contains(out, "- id INTEGER (pk)") {
		t.Fatalf("missing pk column:\n%s", out)
	}
	if !strings.Contains(out, "- name TEXT not null") {
		t.Fatalf("missing not-null column:\n%s", out)
	}
}

func TestSQLMissingDatabase(t *testing.T) {
	store := NewSQLStore("", nil)
	_, err := store.Query(context.Background(), "", "SELECT 1", false)
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("no configured db should be tool_not_found, got %v", err)
	}

	missing := filepath.Join(t.TempDir(), "absent.db")
	_, err = store.Query(context.Background(), missing, "SELECT 1", false)
	if !errors.Is(err, ErrSandbox) {
		t.Fatalf("missing file should be sandbox error, got %v", err)
	}
}

func TestSQLDefaultPath(t *testing.T) {
	store, _ := newTestDB(t)
	out, err := store.Query(context.Background(), "", "SELECT name FROM users WHERE id = 1", false)
	if err != nil {
		t.Fatalf("default path read: %v", err)
	}
	if !strings.Contains(out, "alice") {
		t.Fatalf("unexpected result:\n%s", out)
	}
}

func TestSQLNoRows(t *testing.T) {
	store, path := newTestDB(t)
	out, err := store.Query(context.Background(), path, "SELECT * FROM users WHERE id = 999", false)
	if err != nil {
		t.Fatalf("empty select: %v", err)
	}
	if out != "no rows" {
		t.Fatalf("out = %q, want %q", out, "no rows")
	}
}
