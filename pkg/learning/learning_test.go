package learning

import (
	"testing"
	"time"

	"github.com/hyperforge/capiforge/pkg/config"
	"github.com/hyperforge/capiforge/pkg/features"
	"github.com/hyperforge/capiforge/pkg/hypergraph"
	"github.com/hyperforge/capiforge/pkg/shgat"
	"github.com/hyperforge/capiforge/pkg/tracestore"
	"github.com/hyperforge/capiforge/pkg/types"
)

const testDim = 8

func unitVec(hot int) []float32 {
	v := make([]float32, testDim)
	v[hot%testDim] = 1
	return v
}

type harness struct {
	store  *hypergraph.Store
	traces *tracestore.MemoryStore
	feats  *features.Extractor
	model  *shgat.Model
	loop   *Loop
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := hypergraph.New(hypergraph.DefaultConfig())
	if err := store.AddNode("book-trip", types.KindCapability, unitVec(0)); err != nil {
		t.Fatal(err)
	}
	if err := store.AddNode("search-flights", types.KindTool, unitVec(1)); err != nil {
		t.Fatal(err)
	}
	if err := store.AddNode("book-flight", types.KindTool, unitVec(2)); err != nil {
		t.Fatal(err)
	}

	traces := tracestore.NewMemoryStore()
	feats := features.New(features.DefaultConfig(), traces, store)
	model := shgat.New(config.Default().SHGAT, testDim)
	loop := New(DefaultConfig(), store, feats, feats, model, traces)

	return &harness{store: store, traces: traces, feats: feats, model: model, loop: loop}
}

func sampleExecution(rootID types.TraceID, success bool) Execution {
	base := time.Unix(1000, 0)
	root := &types.ExecutionTrace{
		TraceID:      rootID,
		Kind:         types.TraceCapabilityRun,
		NodeID:       "book-trip",
		StartedAt:    base,
		FinishedAt:   base.Add(500 * time.Millisecond),
		Success:      success,
		ExecutedPath: []types.NodeID{"book-trip", "search-flights", "book-flight"},
		IntentEmb:    unitVec(0),
	}
	child1 := &types.ExecutionTrace{
		TraceID:       rootID + "-c1",
		ParentTraceID: rootID,
		Kind:          types.TraceToolRun,
		NodeID:        "search-flights",
		StartedAt:     base.Add(10 * time.Millisecond),
		FinishedAt:    base.Add(100 * time.Millisecond),
		Success:       success,
	}
	child2 := &types.ExecutionTrace{
		TraceID:       rootID + "-c2",
		ParentTraceID: rootID,
		Kind:          types.TraceToolRun,
		NodeID:        "book-flight",
		StartedAt:     base.Add(150 * time.Millisecond),
		FinishedAt:    base.Add(400 * time.Millisecond),
		Success:       success,
	}
	return Execution{
		Traces:    []*types.ExecutionTrace{root, child1, child2},
		RootID:    rootID,
		IntentEmb: unitVec(0),
	}
}

func TestCompleteExecutionFoldsContainsAndSequenceEdges(t *testing.T) {
	h := newHarness(t)
	res, err := h.loop.CompleteExecution(sampleExecution("t1", true))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.EdgesTouched) != 3 { // 2 contains + 1 sequence
		t.Fatalf("expected 3 edges touched, got %d", len(res.EdgesTouched))
	}

	all := h.store.AllHyperedges()
	var containsCount, sequenceCount int
	for _, e := range all {
		switch e.Type {
		case types.EdgeContains:
			containsCount++
		case types.EdgeSequence:
			sequenceCount++
		}
	}
	if containsCount != 2 {
		t.Errorf("expected 2 contains edges, got %d", containsCount)
	}
	if sequenceCount != 1 {
		t.Errorf("expected 1 sequence edge, got %d", sequenceCount)
	}
}

func TestCompleteExecutionIsIdempotentOnEdgeCount(t *testing.T) {
	h := newHarness(t)
	if _, err := h.loop.CompleteExecution(sampleExecution("t1", true)); err != nil {
		t.Fatal(err)
	}
	before := len(h.store.AllHyperedges())

	if _, err := h.loop.CompleteExecution(sampleExecution("t2", true)); err != nil {
		t.Fatal(err)
	}
	after := len(h.store.AllHyperedges())
	if after != before {
		t.Errorf("expected duplicate siblings to reuse existing edges, before=%d after=%d", before, after)
	}
}

func TestCompleteExecutionNeverSelfLoops(t *testing.T) {
	h := newHarness(t)
	base := time.Unix(2000, 0)
	root := &types.ExecutionTrace{
		TraceID:    "self",
		Kind:       types.TraceCapabilityRun,
		NodeID:     "book-trip",
		StartedAt:  base,
		FinishedAt: base.Add(time.Second),
		Success:    true,
	}
	child := &types.ExecutionTrace{
		TraceID:       "self-c1",
		ParentTraceID: "self",
		Kind:          types.TraceCapabilityRun,
		NodeID:        "book-trip", // same node as parent
		StartedAt:     base.Add(10 * time.Millisecond),
		FinishedAt:    base.Add(20 * time.Millisecond),
		Success:       true,
	}
	res, err := h.loop.CompleteExecution(Execution{
		Traces: []*types.ExecutionTrace{root, child}, RootID: "self", IntentEmb: unitVec(0),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.EdgesTouched) != 0 {
		t.Errorf("expected no edges for a self-referential parent/child, got %d", len(res.EdgesTouched))
	}
}

func TestCompleteExecutionSavesTraceWithClampedPriority(t *testing.T) {
	h := newHarness(t)
	res, err := h.loop.CompleteExecution(sampleExecution("t1", false))
	if err != nil {
		t.Fatal(err)
	}
	if res.Saved == nil {
		t.Fatal("expected a saved trace")
	}
	if res.Saved.Priority < types.MinPriority || res.Saved.Priority > types.MaxPriority {
		t.Errorf("expected priority in [%f, %f], got %f", types.MinPriority, types.MaxPriority, res.Saved.Priority)
	}
}

func TestCompleteExecutionColdStartOnEmptyGraphYieldsDefaultPriority(t *testing.T) {
	store := hypergraph.New(hypergraph.DefaultConfig()) // no nodes registered
	traces := tracestore.NewMemoryStore()
	feats := features.New(features.DefaultConfig(), traces, store)
	model := shgat.New(config.Default().SHGAT, testDim)
	loop := New(DefaultConfig(), store, feats, feats, model, traces)

	base := time.Unix(3000, 0)
	root := &types.ExecutionTrace{
		TraceID: "cold", Kind: types.TraceCapabilityRun, NodeID: "unregistered",
		StartedAt: base, FinishedAt: base.Add(time.Second), Success: true,
	}
	res, err := loop.CompleteExecution(Execution{Traces: []*types.ExecutionTrace{root}, RootID: "cold", IntentEmb: unitVec(0)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Saved.Priority != types.ColdStartPriority {
		t.Errorf("expected cold-start priority %f, got %f", types.ColdStartPriority, res.Saved.Priority)
	}
}

func TestCompleteExecutionInvalidatesCacheForEveryInvolvedNode(t *testing.T) {
	h := newHarness(t)
	if _, err := h.feats.Stats("search-flights"); err != nil { // warm the cache
		t.Fatal(err)
	}
	res, err := h.loop.CompleteExecution(sampleExecution("t1", true))
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, id := range res.InvalidatedOn {
		if id == "search-flights" {
			found = true
		}
	}
	if !found {
		t.Error("expected search-flights to be in the invalidated set")
	}
}

func TestCompleteExecutionEnqueuesTrainingExample(t *testing.T) {
	h := newHarness(t)
	if h.loop.PendingTrainingCount() != 0 {
		t.Fatal("expected empty queue before any execution")
	}
	if _, err := h.loop.CompleteExecution(sampleExecution("t1", true)); err != nil {
		t.Fatal(err)
	}
	if h.loop.PendingTrainingCount() != 1 {
		t.Errorf("expected 1 queued training example, got %d", h.loop.PendingTrainingCount())
	}

	batch := h.loop.DrainTrainingBatch(10)
	if len(batch) != 1 {
		t.Fatalf("expected to drain 1 example, got %d", len(batch))
	}
	if h.loop.PendingTrainingCount() != 0 {
		t.Error("expected queue empty after drain")
	}
}

func TestRefreshCapabilityWeightUpdatesHyperedgeWeight(t *testing.T) {
	h := newHarness(t)
	if err := h.store.AddNode("trip-planner", types.KindMetaCapability, unitVec(3)); err != nil {
		t.Fatal(err)
	}
	base := time.Unix(4000, 0)
	root := &types.ExecutionTrace{
		TraceID: "meta", Kind: types.TraceCapabilityRun, NodeID: "trip-planner",
		StartedAt: base, FinishedAt: base.Add(time.Second), Success: true,
	}
	child := &types.ExecutionTrace{
		TraceID: "meta-c1", ParentTraceID: "meta", Kind: types.TraceCapabilityRun, NodeID: "book-trip",
		StartedAt: base.Add(10 * time.Millisecond), FinishedAt: base.Add(200 * time.Millisecond), Success: true,
	}
	res, err := h.loop.CompleteExecution(Execution{
		Traces: []*types.ExecutionTrace{root, child}, RootID: "meta", IntentEmb: unitVec(3),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.EdgesTouched) != 1 {
		t.Fatalf("expected 1 contains edge, got %d", len(res.EdgesTouched))
	}
	edge, ok := h.store.Hyperedge(res.EdgesTouched[0])
	if !ok {
		t.Fatal("expected folded edge to exist")
	}
	if edge.Weight <= 0 {
		t.Errorf("expected capability weight refresh to leave a positive weight, got %f", edge.Weight)
	}
}

func TestRefreshCapabilityWeightSkipsToolNodes(t *testing.T) {
	h := newHarness(t)
	// search-flights is a Tool, not a Capability: refreshing must no-op
	// rather than error even though it's part of the folded tree.
	if _, err := h.loop.CompleteExecution(sampleExecution("t1", true)); err != nil {
		t.Fatal(err)
	}
}
