// Package docindex maintains the two retrieval indexes over local
// documents: a keyword index for cheap lexical lookup and a chunked
// embedding index for semantic search. Both are rebuilt whole from a
// directory walk and persisted as JSON documents.
package docindex

import (
	"context"
	"fmt"
	"hash/fnv"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/BA-SupportII/BA-AI/internal/memory"
	"github.com/BA-SupportII/BA-AI/internal/storage"
)

const (
	// maxSnippet caps the stored document snippet.
	maxSnippet = 60000

	// maxChunksPerFile caps how many chunks one file contributes.
	maxChunksPerFile = 120

	// maxFileBytes skips files too large to index usefully.
	maxFileBytes = 1 << 20

	// maxDocKeywords caps keywords stored per document entry.
	maxDocKeywords = 200

	// excerptRunes bounds the text returned per retrieval hit.
	excerptRunes = 1200

	// embedWorkers bounds concurrent embedding calls during a build.
	embedWorkers = 4
)

// indexedExt lists the file extensions the walker picks up.
var indexedExt = map[string]struct{}{
	".txt": {}, ".md": {}, ".markdown": {}, ".rst": {},
	".go": {}, ".py": {}, ".js": {}, ".ts": {},
	".json": {}, ".yaml": {}, ".yml": {}, ".toml": {},
	".html": {}, ".css": {}, ".sql": {}, ".csv": {},
	".sh": {}, ".log": {},
}

// skipDirs lists directory names the walker never descends into.
var skipDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "vendor": {}, "data": {},
}

// Embedder generates vectors for chunk and query text. Satisfied by
// *embeddings.Client; nil disables the embedding index.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// Entry is one document in the keyword index.
type Entry struct {
	Path     string   `json:"path"`
	Keywords []string `json:"keywords"`
	Snippet  string   `json:"snippet"`
}

// Chunk is one embedded slice of a document.
type Chunk struct {
	Path      string    `json:"path"`
	Index     int       `json:"index"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
	Hash      string    `json:"hash"`
}

// Source is one retrieval hit handed to the context assembler.
type Source struct {
	Path  string  `json:"path"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
	Kind  string  `json:"kind"` // "keyword" or "embedding"
}

// ChunkParams controls how documents are sliced for embedding.
type ChunkParams struct {
	Size    int // runes per chunk
	Overlap int // runes shared between neighboring chunks
}

func (p ChunkParams) withDefaults() ChunkParams {
	if p.Size <= 0 {
		p.Size = 1200
	}
	if p.Overlap <= 0 || p.Overlap >= p.Size {
		p.Overlap = p.Size / 6
	}
	return p
}

type docFile struct {
	Entries []Entry `json:"entries"`
}

type chunkFile struct {
	Items []Chunk `json:"items"`
}

// Index owns both retrieval indexes and their persistence.
type Index struct {
	mu       sync.RWMutex
	entries  []Entry
	chunks   []Chunk
	docSaver *storage.Saver
	embSaver *storage.Saver
	embedder Embedder
	logger   *slog.Logger
}

// New loads the indexes from dataDir, creating empty ones when the
// files are absent.
func New(dataDir string, embedder Embedder, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}

	docPath := filepath.Join(dataDir, "doc_index.json")
	embPath := filepath.Join(dataDir, "embeddings.json")

	var docs docFile
	if err := storage.LoadJSON(docPath, &docs); err != nil {
		return nil, fmt.Errorf("load doc index: %w", err)
	}
	var chunks chunkFile
	if err := storage.LoadJSON(embPath, &chunks); err != nil {
		return nil, fmt.Errorf("load embedding index: %w", err)
	}

	x := &Index{
		entries:  docs.Entries,
		chunks:   chunks.Items,
		embedder: embedder,
		logger:   logger.With("component", "docindex"),
	}
	x.docSaver = storage.NewSaver(docPath, storage.DefaultDebounce, x.docSnapshot, logger)
	x.embSaver = storage.NewSaver(embPath, storage.DefaultDebounce, x.embSnapshot, logger)
	return x, nil
}

func (x *Index) docSnapshot() any {
	x.mu.RLock()
	defer x.mu.RUnlock()
	entries := make([]Entry, len(x.entries))
	copy(entries, x.entries)
	return docFile{Entries: entries}
}

func (x *Index) embSnapshot() any {
	x.mu.RLock()
	defer x.mu.RUnlock()
	items := make([]Chunk, len(x.chunks))
	copy(items, x.chunks)
	return chunkFile{Items: items}
}

// walkFiles returns the indexable files under root.
func walkFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
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
		if _, ok := indexedExt[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > maxFileBytes {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return paths, nil
}

// BuildDocs rebuilds the keyword index from a directory walk. The
// previous index is replaced whole.
func (x *Index) BuildDocs(ctx context.Context, root string) (int, error) {
	paths, err := walkFiles(root)
	if err != nil {
		return 0, err
	}

	var entries []Entry
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		raw, err := os.ReadFile(p)
		if err != nil {
			x.logger.Warn("skipping unreadable file", "path", p, "error", err)
			continue
		}
		snippet := truncateRunes(string(raw), maxSnippet)
		entries = append(entries, Entry{
			Path:     p,
			Keywords: memory.Keywords(snippet, maxDocKeywords),
			Snippet:  snippet,
		})
	}

	x.mu.Lock()
	x.entries = entries
	x.mu.Unlock()
	x.docSaver.Trigger()

	x.logger.Info("keyword index rebuilt", "root", root, "documents", len(entries))
	return len(entries), nil
}

// BuildChunks rebuilds the embedding index from a directory walk,
// slicing each file into overlapping chunks and embedding them with a
// bounded worker pool. Chunks whose embedding call fails keep an empty
// vector and are skipped at query time. The previous index is replaced
// whole.
func (x *Index) BuildChunks(ctx context.Context, root string, p ChunkParams) (int, error) {
	if x.embedder == nil {
		return 0, fmt.Errorf("embedding index requires an embedding client")
	}
	p = p.withDefaults()

	paths, err := walkFiles(root)
	if err != nil {
		return 0, err
	}

	var chunks []Chunk
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			x.logger.Warn("skipping unreadable file", "path", path, "error", err)
			continue
		}
		for i, text := range chunkText(string(raw), p.Size, p.Overlap) {
			chunks = append(chunks, Chunk{
				Path:  path,
				Index: i,
				Text:  text,
				Hash:  chunkHash(path, i, text),
			})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedWorkers)
	for i := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vec, err := x.embedder.Generate(gctx, chunks[i].Text)
			if err != nil {
				x.logger.Warn("chunk embedding failed",
					"path", chunks[i].Path, "chunk", chunks[i].Index, "error", err)
				return nil
			}
			chunks[i].Embedding = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	embedded := 0
	for i := range chunks {
		if len(chunks[i].Embedding) > 0 {
			embedded++
		}
	}

	x.mu.Lock()
	x.chunks = chunks
	x.mu.Unlock()
	x.embSaver.Trigger()

	x.logger.Info("embedding index rebuilt",
		"root", root, "chunks", len(chunks), "embedded", embedded)
	return embedded, nil
}

// IngestPath adds or refreshes keyword-index entries for one file or
// directory subtree. Existing entries for the same paths are replaced;
// the rest of the index is untouched.
func (x *Index) IngestPath(ctx context.Context, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	var paths []string
	if info.IsDir() {
		paths, err = walkFiles(path)
		if err != nil {
			return 0, err
		}
	} else if info.Size() <= maxFileBytes {
		paths = []string{path}
	}

	var fresh []Entry
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		raw, err := os.ReadFile(p)
		if err != nil {
			x.logger.Warn("skipping unreadable file", "path", p, "error", err)
			continue
		}
		if !utf8.Valid(raw) {
			x.logger.Warn("skipping binary file", "path", p)
			continue
		}
		snippet := truncateRunes(string(raw), maxSnippet)
		fresh = append(fresh, Entry{
			Path:     p,
			Keywords: memory.Keywords(snippet, maxDocKeywords),
			Snippet:  snippet,
		})
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	replaced := make(map[string]struct{}, len(fresh))
	for _, e := range fresh {
		replaced[e.Path] = struct{}{}
	}

	x.mu.Lock()
	kept := make([]Entry, 0, len(x.entries)+len(fresh))
	for _, e := range x.entries {
		if _, gone := replaced[e.Path]; !gone {
			kept = append(kept, e)
		}
	}
	x.entries = append(kept, fresh...)
	x.mu.Unlock()
	x.docSaver.Trigger()

	x.logger.Info("documents ingested", "path", path, "documents", len(fresh))
	return len(fresh), nil
}

// chunkText slices text into overlapping rune windows, at most
// maxChunksPerFile of them.
func chunkText(text string, size, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	step := size - overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) || len(out) >= maxChunksPerFile {
			break
		}
	}
	return out
}

// chunkHash identifies a chunk by its position and content.
func chunkHash(path string, index int, text string) string {
	h := fnv.New64a()
	h.Write([]byte(path))
	h.Write([]byte{':'})
	h.Write([]byte(strconv.Itoa(index)))
	h.Write([]byte{':'})
	h.Write([]byte(text))
	return strconv.FormatUint(h.Sum64(), 36)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
