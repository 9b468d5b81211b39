// Package files loads attached-file context for prompt assembly:
// explicit paths named in the request plus automatic selection of
// relevant candidates under the files root.
package files

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/BA-SupportII/BA-AI/internal/memory"
)

const (
	// MaxFileBytes caps the content loaded per file.
	MaxFileBytes = 120 * 1024

	// maxAutoSelect caps how many files auto-selection attaches.
	maxAutoSelect = 4

	// maxScanned caps how many candidates a selection scan visits.
	maxScanned = 120

	// headBytes is the scored content prefix during auto-selection.
	headBytes = 4096
)

// textExt lists extensions loaded as plain text.
var textExt = map[string]struct{}{
	".txt": {}, ".md": {}, ".markdown": {}, ".rst": {},
	".go": {}, ".py": {}, ".js": {}, ".ts": {},
	".json": {}, ".yaml": {}, ".yml": {}, ".toml": {},
	".html": {}, ".css": {}, ".sql": {}, ".csv": {},
	".sh": {}, ".log": {},
}

// skipDirs lists directory names a selection scan never enters.
var skipDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "vendor": {}, "data": {},
}

// File is one loaded attachment.
type File struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Loader reads attachment content from under a fixed root directory.
// Paths that resolve outside the root are refused.
type Loader struct {
	root   string
	logger *slog.Logger
}

// NewLoader creates a loader rooted at root.
func NewLoader(root string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Loader{root: root, logger: logger.With("component", "files")}
}

// resolve joins p under the root and rejects escapes.
func (l *Loader) resolve(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Join(l.root, p))
	if err != nil {
		return "", err
	}
	if abs != l.root && !strings.HasPrefix(abs, l.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes the files root", p)
	}
	return abs, nil
}

// Load reads the named files. Unresolvable, unreadable, and binary
// files are skipped with a warning; the request proceeds without them.
func (l *Loader) Load(paths []string) []File {
	var out []File
	for _, p := range paths {
		abs, err := l.resolve(p)
		if err != nil {
			l.logger.Warn("rejecting file path", "path", p, "error", err)
			continue
		}
		f, err := l.read(abs)
		if err != nil {
			l.logger.Warn("skipping file", "path", p, "error", err)
			continue
		}
		f.Path = p
		out = append(out, f)
	}
	return out
}

func (l *Loader) read(abs string) (File, error) {
	if strings.EqualFold(filepath.Ext(abs), ".pdf") {
		text, err := extractPDF(abs)
		if err != nil {
			return File{}, err
		}
		content, truncated := clampText(text)
		return File{Content: content, Truncated: truncated}, nil
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		return File{}, err
	}
	if !utf8.Valid(raw) {
		return File{}, fmt.Errorf("binary content")
	}
	content, truncated := clampText(string(raw))
	return File{Content: content, Truncated: truncated}, nil
}

// clampText truncates text to MaxFileBytes on a rune boundary.
func clampText(text string) (string, bool) {
	if len(text) <= MaxFileBytes {
		return text, false
	}
	cut := MaxFileBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut], true
}

// candidate is one scanned file during auto-selection.
type candidate struct {
	rel   string
	abs   string
	score int
}

// AutoSelect scans the files root and attaches the most relevant
// files by keyword overlap with the prompt. Name matches weigh double
// content-head matches. max of zero or less selects up to four.
func (l *Loader) AutoSelect(prompt string, max int) []File {
	if max <= 0 || max > maxAutoSelect {
		max = maxAutoSelect
	}

	qset := make(map[string]struct{})
	for _, k := range memory.Keywords(prompt, 0) {
		qset[k] = struct{}{}
	}
	if len(qset) == 0 {
		return nil
	}

	var cands []candidate
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if _, skip := skipDirs[d.Name()]; skip {
				return fs.SkipDir
			}
			if name := d.Name(); len(name) > 1 && name[0] == '.' {
				return fs.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if _, ok := textExt[ext]; !ok && ext != ".pdf" {
			return nil
		}
		rel, relErr := filepath.Rel(l.root, path)
		if relErr != nil {
			rel = path
		}
		cands = append(cands, candidate{rel: rel, abs: path})
		if len(cands) >= maxScanned {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		l.logger.Warn("auto-selection scan failed", "root", l.root, "error", err)
		return nil
	}

	for i := range cands {
		for _, k := range memory.Keywords(strings.ReplaceAll(cands[i].rel, string(os.PathSeparator), " "), 0) {
			if _, ok := qset[k]; ok {
				cands[i].score += 2
			}
		}
		for _, k := range contentHeadKeywords(cands[i].abs) {
			if _, ok := qset[k]; ok {
				cands[i].score++
			}
		}
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })

	var out []File
	for _, c := range cands {
		if c.score == 0 || len(out) >= max {
			break
		}
		f, err := l.read(c.abs)
		if err != nil {
			l.logger.Warn("skipping selected file", "path", c.rel, "error", err)
			continue
		}
		f.Path = c.rel
		out = append(out, f)
	}
	return out
}

// contentHeadKeywords extracts keywords from the first few kilobytes
// of a text file. PDFs are scored by name only.
func contentHeadKeywords(abs string) []string {
	if strings.EqualFold(filepath.Ext(abs), ".pdf") {
		return nil
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil
	}
	defer f.Close()

	head, err := io.ReadAll(io.LimitReader(f, headBytes))
	if err != nil || !utf8.Valid(head) {
		return nil
	}
	return memory.Keywords(string(head), 0)
}

// extractPDF pulls the plain text layer out of a PDF, page by page.
func extractPDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat pdf: %w", err)
	}
	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil || text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}
