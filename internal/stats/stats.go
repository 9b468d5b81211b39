// Package stats tracks per-model usage counters for the current process.
package stats

import (
	"sort"
	"sync"
	"time"
)

// Registry accumulates request counts and latencies per model.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	started time.Time
	models  map[string]*modelStat
}

type modelStat struct {
	requests   int64
	errors     int64
	evalTokens int64
	durationMS int64
}

// ModelSnapshot is a copy-safe view of one model's counters.
type ModelSnapshot struct {
	Model         string  `json:"model"`
	Requests      int64   `json:"requests"`
	Errors        int64   `json:"errors"`
	EvalTokens    int64   `json:"evalTokens"`
	TotalMS       int64   `json:"totalMs"`
	AvgMS         float64 `json:"avgMs"`
	TokensPerSec  float64 `json:"tokensPerSec,omitempty"`
	ErrorFraction float64 `json:"errorFraction"`
}

// Snapshot is the full registry view returned by the stats endpoint.
type Snapshot struct {
	UptimeSeconds int64           `json:"uptimeSeconds"`
	TotalRequests int64           `json:"totalRequests"`
	TotalErrors   int64           `json:"totalErrors"`
	Models        []ModelSnapshot `json:"models"`
}

func NewRegistry() *Registry {
	return &Registry{
		started: time.Now(),
		models:  make(map[string]*modelStat),
	}
}

// Record adds one completed generation attempt. evalTokens may be zero
// when the backend did not report a count.
func (r *Registry) Record(model string, duration time.Duration, evalTokens int, failed bool) {
	if model == "" {
		model = "unknown"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.models[model]
	if !ok {
		st = &modelStat{}
		r.models[model] = st
	}
	st.requests++
	if failed {
		st.errors++
	}
	st.evalTokens += int64(evalTokens)
	st.durationMS += duration.Milliseconds()
}

// Snapshot returns a stable copy sorted by request count, busiest first.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := Snapshot{
		UptimeSeconds: int64(time.Since(r.started).Seconds()),
		Models:        make([]ModelSnapshot, 0, len(r.models)),
	}
	for model, st := range r.models {
		ms := ModelSnapshot{
			Model:      model,
			Requests:   st.requests,
			Errors:     st.errors,
			EvalTokens: st.evalTokens,
			TotalMS:    st.durationMS,
		}
		if st.requests > 0 {
			ms.AvgMS = float64(st.durationMS) / float64(st.requests)
			ms.ErrorFraction = float64(st.errors) / float64(st.requests)
		}
		if st.durationMS > 0 && st.evalTokens > 0 {
			ms.TokensPerSec = float64(st.evalTokens) / (float64(st.durationMS) / 1000.0)
		}
		out.TotalRequests += st.requests
		out.TotalErrors += st.errors
		out.Models = append(out.Models, ms)
	}
	sort.Slice(out.Models, func(i, j int) bool {
		if out.Models[i].Requests != out.Models[j].Requests {
			return out.Models[i].Requests > out.Models[j].Requests
		}
		return out.Models[i].Model < out.Models[j].Model
	})
	return out
}
