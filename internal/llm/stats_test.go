package llm

import (
	"errors"
	"testing"
	"time"
)

func TestStatsSnapshotPercentiles(t *testing.T) {
	stats := NewStats(time.Hour)
	for _, ms := range []int64{100, 200, 300, 400, 500} {
		stats.Record(ScenarioMindmap, time.Duration(ms)*time.Millisecond, nil)
	}

	snap, ok := stats.Snapshot()["mindmap"]
	if !ok {
		t.Fatal("expected mindmap scenario in snapshot")
	}
	if snap.Count != 5 {
		t.Fatalf("expected count=5, got %d", snap.Count)
	}
	if snap.MinMs != 100 {
		t.Fatalf("expected min=100, got %d", snap.MinMs)
	}
	if snap.MaxMs != 500 {
		t.Fatalf("expected max=500, got %d", snap.MaxMs)
	}
	if snap.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgMs)
	}
	if snap.P50Ms != 300 {
		t.Fatalf("expected p50=300, got %f", snap.P50Ms)
	}
	if snap.P95Ms != 480 {
		t.Fatalf("expected p95=480, got %f", snap.P95Ms)
	}
	if snap.P99Ms != 496 {
		t.Fatalf("expected p99=496, got %f", snap.P99Ms)
	}
}

func TestStatsPerScenario(t *testing.T) {
	stats := NewStats(time.Hour)
	stats.Record(ScenarioSummary, 10*time.Millisecond, nil)
	stats.Record(ScenarioSummary, 20*time.Millisecond, errors.New("boom"))
	stats.Record(ScenarioSection, 30*time.Millisecond, nil)

	snap := stats.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 scenarios, got %d", len(snap))
	}
	if snap["summary"].Count != 2 || snap["summary"].Errors != 1 {
		t.Fatalf("summary: got %+v", snap["summary"])
	}
	if snap["section"].Count != 1 || snap["section"].Errors != 0 {
		t.Fatalf("section: got %+v", snap["section"])
	}
}

func TestStatsPrunesExpiredSamples(t *testing.T) {
	stats := NewStats(10 * time.Millisecond)
	stats.Record(ScenarioMindmap, 100*time.Millisecond, nil)
	time.Sleep(25 * time.Millisecond)

	if snap := stats.Snapshot(); len(snap) != 0 {
		t.Fatalf("expected empty snapshot after prune, got %v", snap)
	}

	stats.Record(ScenarioMindmap, 200*time.Millisecond, nil)
	snap := stats.Snapshot()["mindmap"]
	if snap.Count != 1 {
		t.Fatalf("expected count=1 for fresh sample, got %d", snap.Count)
	}
	if snap.MinMs != 200 || snap.MaxMs != 200 {
		t.Fatalf("expected min=max=200, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
}

func TestStatsRecordClampsNegativeDuration(t *testing.T) {
	stats := NewStats(time.Hour)
	stats.Record(ScenarioMindmap, -10*time.Millisecond, nil)
	snap := stats.Snapshot()["mindmap"]
	if snap.Count != 1 {
		t.Fatalf("expected count=1, got %d", snap.Count)
	}
	if snap.MinMs != 0 || snap.MaxMs != 0 {
		t.Fatalf("expected clamped duration=0, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
}
