package tools

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqlCacheTTL     = 5 * time.Minute
	sqlCacheMax     = 128
	sqlMaxRows      = 200
	sqlMaxCellChars = 200
)

// reWriteKeyword matches statements that mutate the database or its
// settings. Word-bounded so column names like created_at pass.
var reWriteKeyword = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|replace|truncate|attach|detach|vacuum|pragma|reindex)\b`)

// SQLStore runs queries against local SQLite files. Reads are the
// default; writes require the caller to set allowWrite explicitly.
// Read results are cached per (dbPath, query) for a short TTL.
type SQLStore struct {
	defaultPath string
	logger      *slog.Logger

	mu    sync.Mutex
	cache map[string]sqlCacheEntry
}

type sqlCacheEntry struct {
	result string
	stored time.Time
}

func NewSQLStore(defaultPath string, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{
		defaultPath: defaultPath,
		logger:      logger.With("component", "sqlstore"),
		cache:       make(map[string]sqlCacheEntry),
	}
}

// Query executes one statement against dbPath (falling back to the
// configured default path). Read-only unless allowWrite: writes,
// multi-statement input, and PRAGMA are rejected up front.
func (s *SQLStore) Query(ctx context.Context, dbPath, query string, allowWrite bool) (string, error) {
	path := s.resolvePath(dbPath)
	if path == "" {
		return "", fmt.Errorf("%w: no database configured", ErrToolNotFound)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("%w: empty query", ErrSandbox)
	}

	if !allowWrite {
		if err := checkReadOnly(query); err != nil {
			return "", err
		}
		if cached, ok := s.cacheGet(path, query); ok {
			return cached, nil
		}
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: database %s: %v", ErrSandbox, path, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrSandbox, path, err)
	}
	defer db.Close()

	if allowWrite && !isSelect(query) {
		res, err := db.ExecContext(ctx, query)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrSandbox, err)
		}
		affected, _ := res.RowsAffected()
		return fmt.Sprintf("ok (%d rows affected)", affected), nil
	}

	out, err := s.runSelect(ctx, db, query)
	if err != nil {
		return "", err
	}
	if !allowWrite {
		s.cachePut(path, query, out)
	}
	return out, nil
}

// Schema introspects the tables of dbPath and renders one block per
// table with column names, types, and key markers.
func (s *SQLStore) Schema(ctx context.Context, dbPath string) (string, error) {
	path := s.resolvePath(dbPath)
	if path == "" {
		return "", fmt.Errorf("%w: no database configured", ErrToolNotFound)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: database %s: %v", ErrSandbox, path, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrSandbox, path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return "", fmt.Errorf("%w: list tables: %v", ErrSandbox, err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return "", fmt.Errorf("%w: scan table name: %v", ErrSandbox, err)
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("%w: list tables: %v", ErrSandbox, err)
	}
	if len(tables) == 0 {
		return "no tables", nil
	}

	var b strings.Builder
	for i, table := range tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "table %s:\n", table)
		cols, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
		if err != nil {
			return "", fmt.Errorf("%w: describe %s: %v", ErrSandbox, table, err)
		}
		for cols.Next() {
			var (
				cid     int
				name    string
				ctype   string
				notNull int
				dflt    sql.NullString
				pk      int
			)
			if err := cols.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
				cols.Close()
				return "", fmt.Errorf("%w: describe %s: %v", ErrSandbox, table, err)
			}
			marker := ""
			if pk > 0 {
				marker = " (pk)"
			} else if notNull > 0 {
				marker = " not null"
			}
			if ctype == "" {
				ctype = "ANY"
			}
			fmt.Fprintf(&b, "  - %s %s%s\n", name, ctype, marker)
		}
		cols.Close()
		if err := cols.Err(); err != nil {
			return "", fmt.Errorf("%w: describe %s: %v", ErrSandbox, table, err)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *SQLStore) runSelect(ctx context.Context, db *sql.DB, query string) (string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSandbox, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSandbox, err)
	}

	var b strings.Builder
	b.WriteString("| " + strings.Join(cols, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(cols)) + "\n")

	count := 0
	truncated := false
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if count >= sqlMaxRows {
			truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", fmt.Errorf("%w: scan row: %v", ErrSandbox, err)
		}
		cells := make([]string, len(cols))
		for i, v := range values {
			cells[i] = renderCell(v)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		count++
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSandbox, err)
	}

	if count == 0 {
		return "no rows", nil
	}
	out := strings.TrimRight(b.String(), "\n")
	if truncated {
		out += fmt.Sprintf("\n(truncated at %d rows)", sqlMaxRows)
	}
	return out, nil
}

func (s *SQLStore) resolvePath(dbPath string) string {
	if strings.TrimSpace(dbPath) != "" {
		return dbPath
	}
	return s.defaultPath
}

func (s *SQLStore) cacheGet(path, query string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[path+"\x00"+query]
	if !ok || time.Since(entry.stored) > sqlCacheTTL {
		return "", false
	}
	return entry.result, true
}

func (s *SQLStore) cachePut(path, query, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cache) >= sqlCacheMax {
		for k, e := range s.cache {
			if time.Since(e.stored) > sqlCacheTTL {
				delete(s.cache, k)
			}
		}
		// Still full after pruning means a hot window; start over.
		if len(s.cache) >= sqlCacheMax {
			s.cache = make(map[string]sqlCacheEntry)
		}
	}
	s.cache[path+"\x00"+query] = sqlCacheEntry{result: result, stored: time.Now()}
}

// checkReadOnly rejects multi-statement input and anything carrying a
// write keyword.
func checkReadOnly(query string) error {
	trimmed := strings.TrimRight(strings.TrimSpace(query), "; \t\n")
	if strings.Contains(trimmed, ";") {
		return fmt.Errorf("%w: multi-statement queries are not allowed", ErrUnsafeCode)
	}
	if m := reWriteKeyword.FindString(trimmed); m != "" {
		return fmt.Errorf("%w: %s requires allowWrite", ErrUnsafeCode, strings.ToUpper(m))
	}
	return nil
}

func isSelect(query string) bool {
	head := strings.ToLower(strings.TrimSpace(query))
	return strings.HasPrefix(head, "select") || strings.HasPrefix(head, "with") ||
		strings.HasPrefix(head, "explain")
}

func renderCell(v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		s = "NULL"
	case []byte:
		s = string(val)
	case time.Time:
		s = val.Format(time.RFC3339)
	default:
		s = fmt.Sprintf("%v", val)
	}
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > sqlMaxCellChars {
		s = s[:sqlMaxCellChars] + "..."
	}
	return s
}
