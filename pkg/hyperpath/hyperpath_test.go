package hyperpath

import (
	"math"
	"testing"

	"github.com/hyperforge/capiforge/pkg/types"
)

func simpleChain(t *testing.T) *Graph {
	t.Helper()
	g, err := NewGraph([]HyperedgeView{
		{ID: "ab", Sources: []types.NodeID{"a"}, Targets: []types.NodeID{"b"}, Weight: 1.0},
		{ID: "bc", Sources: []types.NodeID{"b"}, Targets: []types.NodeID{"c"}, Weight: 0.5},
		{ID: "ac", Sources: []types.NodeID{"a"}, Targets: []types.NodeID{"c"}, Weight: 0.1}, // expensive detour
	})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestNewGraphRejectsNegativeWeight(t *testing.T) {
	_, err := NewGraph([]HyperedgeView{{ID: "x", Sources: []types.NodeID{"a"}, Targets: []types.NodeID{"b"}, Weight: -1}})
	if err == nil {
		t.Fatal("expected negative weight to be rejected")
	}
}

func TestSSSPDegeneratesToDijkstraOnSingleSourceEdges(t *testing.T) {
	g := simpleChain(t)
	st := SSSP(g, "a", 0.1)

	dAB, ok := st.Distance("b")
	if !ok {
		t.Fatal("expected b reachable")
	}
	if dAB != 1.0 { // cost(1.0,floor)=1/1=1
		t.Errorf("expected dist(a,b)=1.0, got %f", dAB)
	}

	dAC, ok := st.Distance("c")
	if !ok {
		t.Fatal("expected c reachable")
	}
	// direct a->c costs 1/0.1=10, via b: 1 + 1/0.5=1+2=3. Cheaper path wins.
	if dAC != 3.0 {
		t.Errorf("expected shortest dist(a,c)=3.0 via b, got %f", dAC)
	}
}

func TestFindShortestHyperpathReconstructsPath(t *testing.T) {
	g := simpleChain(t)
	res := FindShortestHyperpath(g, "a", "c", 0.1)
	if !res.Found {
		t.Fatal("expected path found")
	}
	want := []types.NodeID{"a", "b", "c"}
	if len(res.NodeSequence) != len(want) {
		t.Fatalf("expected sequence %v, got %v", want, res.NodeSequence)
	}
	for i := range want {
		if res.NodeSequence[i] != want[i] {
			t.Fatalf("expected sequence %v, got %v", want, res.NodeSequence)
		}
	}
}

func TestFindShortestHyperpathUnreachableReturnsInfinity(t *testing.T) {
	g := simpleChain(t)
	res := FindShortestHyperpath(g, "a", "zzz", 0.1)
	if res.Found {
		t.Fatal("expected not found for unreachable target")
	}
	if !math.IsInf(res.TotalWeight, 1) {
		t.Errorf("expected +Inf total weight, got %f", res.TotalWeight)
	}
}

func TestBottleneckRequiresAllSourcesReached(t *testing.T) {
	g, err := NewGraph([]HyperedgeView{
		{ID: "ad", Sources: []types.NodeID{"a"}, Targets: []types.NodeID{"d"}, Weight: 1.0},
		{ID: "dz_needs_b_too", Sources: []types.NodeID{"d", "b"}, Targets: []types.NodeID{"z"}, Weight: 1.0},
	})
	if err != nil {
		t.Fatal(err)
	}
	st := SSSP(g, "a", 0.1)
	if _, ok := st.Distance("z"); ok {
		t.Fatal("expected z unreachable: source 'b' is never reached, so the hyperedge never fires")
	}
}

func TestApplyWeightDecreaseImprovesDistance(t *testing.T) {
	g := simpleChain(t)
	st := SSSP(g, "a", 0.1)

	before, _ := st.Distance("c")
	if err := st.ApplyWeightDecrease("ac", 10.0); err != nil { // now much cheaper than going through b
		t.Fatal(err)
	}
	after, _ := st.Distance("c")
	if after >= before {
		t.Errorf("expected distance to improve after weight decrease: before=%f after=%f", before, after)
	}
}

func TestApplyWeightIncreaseInvalidatesDependents(t *testing.T) {
	g := simpleChain(t)
	st := SSSP(g, "a", 0.1)

	if err := st.ApplyWeightIncrease("bc", 0.001); err != nil { // make b->c extremely expensive
		t.Fatal(err)
	}
	dAC, ok := st.Distance("c")
	if !ok {
		t.Fatal("expected c still reachable via the direct (now relatively cheaper) edge")
	}
	// direct a->c cost is 1/0.1=10, which must now win over the degraded b->c route.
	if dAC != 10.0 {
		t.Errorf("expected dist(a,c)=10.0 after bc degraded, got %f", dAC)
	}
}

func TestRemoveHyperedgeReconverges(t *testing.T) {
	g := simpleChain(t)
	st := SSSP(g, "a", 0.1)

	if err := st.RemoveHyperedge("bc"); err != nil {
		t.Fatal(err)
	}
	dAC, ok := st.Distance("c")
	if !ok {
		t.Fatal("expected c still reachable via the direct edge")
	}
	if dAC != 10.0 {
		t.Errorf("expected dist(a,c)=10.0 via direct edge after bc removed, got %f", dAC)
	}
}

func TestFindShortestHyperpathUnknownSourceNotFound(t *testing.T) {
	g := simpleChain(t)
	res := FindShortestHyperpath(g, "zzz", "zzz", 0.1)
	if res.Found {
		t.Fatal("expected not found for a source node absent from the graph, even queried against itself")
	}
	if !math.IsInf(res.TotalWeight, 1) {
		t.Errorf("expected +Inf total weight, got %f", res.TotalWeight)
	}
}

func TestSSSPUnknownSourceHasNoDistances(t *testing.T) {
	g := simpleChain(t)
	st := SSSP(g, "zzz", 0.1)
	if _, ok := st.Distance("zzz"); ok {
		t.Fatal("expected the unknown source itself to be unreached")
	}
	if _, ok := st.Distance("a"); ok {
		t.Fatal("expected no node reachable from an unknown source")
	}
}

func TestFindAllShortestPathsIncludesSourceAndReachableNodes(t *testing.T) {
	g := simpleChain(t)
	results := FindAllShortestPaths(g, "a", 0.1)
	if r, ok := results["a"]; !ok || !r.Found || r.TotalWeight != 0 {
		t.Errorf("expected source 'a' present with zero weight, got %+v", results["a"])
	}
	if r, ok := results["c"]; !ok || !r.Found {
		t.Errorf("expected 'c' reachable, got %+v", results)
	}
}

func TestFindAllShortestPathsEmptyForUnknownSource(t *testing.T) {
	g := simpleChain(t)
	results := FindAllShortestPaths(g, "zzz", 0.1)
	if len(results) != 0 {
		t.Errorf("expected no results for an unknown source, got %+v", results)
	}
}

func TestAddHyperedgeInvalidWeightRejected(t *testing.T) {
	g := simpleChain(t)
	st := SSSP(g, "a", 0.1)
	err := st.AddHyperedge(HyperedgeView{ID: "new", Sources: []types.NodeID{"a"}, Targets: []types.NodeID{"q"}, Weight: -5})
	if err == nil {
		t.Fatal("expected negative weight to be rejected")
	}
}
