package docindex

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/BA-SupportII/BA-AI/internal/embeddings"
	"github.com/BA-SupportII/BA-AI/internal/memory"
)

// QueryDocs returns documents whose keywords overlap the query, best
// first. Scores count shared keywords.
func (x *Index) QueryDocs(query string, limit int) []Source {
	qset := make(map[string]struct{})
	for _, k := range memory.Keywords(query, 0) {
		qset[k] = struct{}{}
	}
	if len(qset) == 0 {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	var hits []Source
	for _, e := range x.entries {
		score := 0
		for _, k := range e.Keywords {
			if _, ok := qset[k]; ok {
				score++
			}
		}
		if score == 0 {
			continue
		}
		hits = append(hits, Source{
			Path:  e.Path,
			Text:  truncateRunes(e.Snippet, excerptRunes),
			Score: float64(score),
			Kind:  "keyword",
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// QueryChunks embeds the query and returns the most similar chunks.
func (x *Index) QueryChunks(ctx context.Context, query string, limit int) ([]Source, error) {
	if x.embedder == nil {
		return nil, nil
	}
	qvec, err := x.embedder.Generate(ctx, query)
	if err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	var hits []Source
	for i := range x.chunks {
		if len(x.chunks[i].Embedding) == 0 {
			continue
		}
		score := float64(embeddings.CosineSimilarity(qvec, x.chunks[i].Embedding))
		if score <= 0 {
			continue
		}
		hits = append(hits, Source{
			Path:  x.chunks[i].Path,
			Text:  x.chunks[i].Text,
			Score: score,
			Kind:  "embedding",
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Hybrid unions keyword and embedding hits for the context assembler,
// keyword hits first. Duplicate paths collapse to their best hit. The
// embedding leg degrades to keyword-only on error.
func (x *Index) Hybrid(ctx context.Context, query string, limit int) []Source {
	if limit <= 0 {
		limit = 4
	}

	hits := x.QueryDocs(query, limit)

	chunkHits, err := x.QueryChunks(ctx, query, limit)
	if err != nil {
		x.logger.Warn("embedding query failed, keyword hits only", "error", err)
	}

	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		seen[h.Path] = struct{}{}
	}
	for _, h := range chunkHits {
		if _, dup := seen[h.Path]; dup {
			continue
		}
		seen[h.Path] = struct{}{}
		hits = append(hits, h)
	}

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// rerankScore is one element of the reranker model's JSON output.
type rerankScore struct {
	ID    int     `json:"id"`
	Score float64 `json:"score"`
}

// Rerank reorders sources by model-assigned scores. raw is the
// reranker output containing a JSON array of {id, score} where id is
// the 1-based position in sources. Sources the model skipped keep
// their original order after the scored ones; unparsable output keeps
// the input untouched.
func Rerank(raw string, sources []Source) []Source {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return sources
	}

	var scores []rerankScore
	if err := json.Unmarshal([]byte(raw[start:end+1]), &scores); err != nil {
		return sources
	}

	ranked := make([]Source, 0, len(sources))
	taken := make(map[int]bool, len(scores))
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	for _, s := range scores {
		idx := s.ID - 1
		if idx < 0 || idx >= len(sources) || taken[idx] {
			continue
		}
		taken[idx] = true
		ranked = append(ranked, sources[idx])
	}
	for i, s := range sources {
		if !taken[i] {
			ranked = append(ranked, s)
		}
	}
	return ranked
}

// Stats returns index counters for the stats endpoint.
func (x *Index) Stats() map[string]any {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return map[string]any{
		"documents": len(x.entries),
		"chunks":    len(x.chunks),
	}
}

// Flush writes any pending state synchronously. Call on shutdown.
func (x *Index) Flush() error {
	if err := x.docSaver.Flush(); err != nil {
		return err
	}
	return x.embSaver.Flush()
}
