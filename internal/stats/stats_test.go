package stats

import (
	"testing"
	"time"
)

func TestRecordAndSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Record("qwen3:8b", 200*time.Millisecond, 50, false)
	r.Record("qwen3:8b", 400*time.Millisecond, 100, false)
	r.Record("deepseek-r1:14b", 1*time.Second, 30, true)

	snap := r.Snapshot()
	if snap.TotalRequests != 3 {
		t.Fatalf("TotalRequests = %d, want 3", snap.TotalRequests)
	}
	if snap.TotalErrors != 1 {
		t.Fatalf("TotalErrors = %d, want 1", snap.TotalErrors)
	}
	if len(snap.Models) != 2 {
		t.Fatalf("len(Models) = %d, want 2", len(snap.Models))
	}
	// Busiest model first.
	if snap.Models[0].Model != "qwen3:8b" {
		t.Fatalf("Models[0] = %q, want qwen3:8b", snap.Models[0].Model)
	}
	if snap.Models[0].TotalMS != 600 {
		t.Fatalf("TotalMS = %d, want 600", snap.Models[0].TotalMS)
	}
	if snap.Models[0].AvgMS != 300 {
		t.Fatalf("AvgMS = %v, want 300", snap.Models[0].AvgMS)
	}
	if snap.Models[0].EvalTokens != 150 {
		t.Fatalf("EvalTokens = %d, want 150", snap.Models[0].EvalTokens)
	}
	if snap.Models[1].ErrorFraction != 1 {
		t.Fatalf("ErrorFraction = %v, want 1", snap.Models[1].ErrorFraction)
	}
}

func TestRecordEmptyModel(t *testing.T) {
	r := NewRegistry()
	r.Record("", 10*time.Millisecond, 0, false)
	snap := r.Snapshot()
	if len(snap.Models) != 1 || snap.Models[0].Model != "unknown" {
		t.Fatalf("empty model should be recorded as unknown, got %+v", snap.Models)
	}
}

func TestSnapshotOrderStable(t *testing.T) {
	r := NewRegistry()
	r.Record("b-model", time.Millisecond, 0, false)
	r.Record("a-model", time.Millisecond, 0, false)
	snap := r.Snapshot()
	if snap.Models[0].Model != "a-model" {
		t.Fatalf("ties should sort by name, got %q first", snap.Models[0].Model)
	}
}
