package features

import (
	"testing"
	"time"

	"github.com/hyperforge/capiforge/pkg/types"
)

type fakeTraceSource struct {
	traces []*types.ExecutionTrace
}

func (f *fakeTraceSource) AllTraces() ([]*types.ExecutionTrace, error) {
	return f.traces, nil
}

type fakeGraphSignals struct {
	feat   map[types.NodeID]types.NodeFeatures
	adamic float64
}

func (f *fakeGraphSignals) NodeFeatures(id types.NodeID) (types.NodeFeatures, bool) {
	nf, ok := f.feat[id]
	return nf, ok
}

func (f *fakeGraphSignals) AdamicAdar(a, b types.NodeID) float64 { return f.adamic }

func makeTrace(path []types.NodeID, success bool, finishedAgo time.Duration) *types.ExecutionTrace {
	return &types.ExecutionTrace{
		ExecutedPath: path,
		Success:      success,
		FinishedAt:   time.Now().Add(-finishedAgo),
	}
}

func TestStatsBelowMinSamplesReturnsDefault(t *testing.T) {
	src := &fakeTraceSource{traces: []*types.ExecutionTrace{
		makeTrace([]types.NodeID{"tool-a"}, true, time.Hour),
	}}
	ext := New(DefaultConfig(), src, &fakeGraphSignals{})

	stats, err := ext.Stats("tool-a")
	if err != nil {
		t.Fatal(err)
	}
	if stats != types.DefaultTraceStats {
		t.Errorf("expected default stats below min sample size, got %+v", stats)
	}
}

func TestStatsComputesHistoricalSuccessRate(t *testing.T) {
	traces := []*types.ExecutionTrace{
		makeTrace([]types.NodeID{"a", "tool-a", "b"}, true, time.Hour),
		makeTrace([]types.NodeID{"tool-a", "b"}, true, 2*time.Hour),
		makeTrace([]types.NodeID{"tool-a"}, false, 3*time.Hour),
		makeTrace([]types.NodeID{"tool-a", "c"}, true, 4*time.Hour),
		makeTrace([]types.NodeID{"tool-a"}, false, 5*time.Hour),
	}
	src := &fakeTraceSource{traces: traces}
	cfg := DefaultConfig()
	cfg.MinSamples = 5
	ext := New(cfg, src, &fakeGraphSignals{})

	stats, err := ext.Stats("tool-a")
	if err != nil {
		t.Fatal(err)
	}
	if stats.HistoricalSuccessRate != 0.6 {
		t.Errorf("expected 3/5 = 0.6 success rate, got %f", stats.HistoricalSuccessRate)
	}
	if stats.SampleSize != 5 {
		t.Errorf("expected sample size 5, got %d", stats.SampleSize)
	}
}

func TestInvalidateForcesRecompute(t *testing.T) {
	traces := make([]*types.ExecutionTrace, 5)
	for i := range traces {
		traces[i] = makeTrace([]types.NodeID{"tool-a"}, true, time.Hour)
	}
	src := &fakeTraceSource{traces: traces}
	ext := New(DefaultConfig(), src, &fakeGraphSignals{})

	if _, err := ext.Stats("tool-a"); err != nil {
		t.Fatal(err)
	}
	if ext.CacheStats().Size != 1 {
		t.Fatalf("expected 1 cached entry, got %d", ext.CacheStats().Size)
	}

	ext.Invalidate("tool-a")
	if ext.CacheStats().Size != 0 {
		t.Errorf("expected cache cleared after invalidate, got size %d", ext.CacheStats().Size)
	}
}

func TestSequencePositionIgnoresSingleStepPaths(t *testing.T) {
	traces := []*types.ExecutionTrace{
		makeTrace([]types.NodeID{"tool-a"}, true, time.Hour),
		makeTrace([]types.NodeID{"x", "tool-a", "y", "z"}, true, time.Hour),
		makeTrace([]types.NodeID{"tool-a", "y"}, true, time.Hour),
		makeTrace([]types.NodeID{"x", "tool-a"}, true, time.Hour),
		makeTrace([]types.NodeID{"x", "y", "tool-a"}, true, time.Hour),
	}
	got := sequencePosition(traces, "tool-a")
	// occurrences: pos 1/3, 0/1, 1/1, 2/2 -> (0.333+0+1+1)/4 = 0.583
	if got < 0.5 || got > 0.7 {
		t.Errorf("unexpected sequence position %f", got)
	}
}

func TestUsageFrequencyNormalizesByMax(t *testing.T) {
	traces := []*types.ExecutionTrace{
		makeTrace([]types.NodeID{"a"}, true, time.Hour),
		makeTrace([]types.NodeID{"a"}, true, time.Hour),
		makeTrace([]types.NodeID{"b"}, true, time.Hour),
	}
	if got := usageFrequency(traces, "a"); got != 1.0 {
		t.Errorf("expected 1.0 for most-used tool, got %f", got)
	}
	if got := usageFrequency(traces, "b"); got != 0.5 {
		t.Errorf("expected 0.5, got %f", got)
	}
}

func TestExtractMeanPoolsContextAndZerosWhenEmpty(t *testing.T) {
	traces := make([]*types.ExecutionTrace, 5)
	for i := range traces {
		traces[i] = makeTrace([]types.NodeID{"cand"}, true, time.Hour)
	}
	src := &fakeTraceSource{traces: traces}
	gs := &fakeGraphSignals{
		feat:   map[types.NodeID]types.NodeFeatures{"cand": {PageRank: 0.5}},
		adamic: 0.42,
	}
	ext := New(DefaultConfig(), src, gs)

	bundle, err := ext.Extract([]float32{1, 0}, "cand", []float32{0, 1}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range bundle.ContextMean {
		if v != 0 {
			t.Errorf("expected zero-vector context mean when no context given, got %v", bundle.ContextMean)
		}
	}
	if bundle.Graph.PageRank != 0.5 {
		t.Errorf("expected graph features to be threaded through, got %+v", bundle.Graph)
	}
}
