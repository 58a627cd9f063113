package linkpredict

import (
	"testing"

	"github.com/hyperforge/capiforge/pkg/types"
)

func triangleGraph() Graph {
	g := make(Graph)
	g.AddEdge("a", "b")
	g.AddEdge("a", "c")
	g.AddEdge("b", "c")
	g.AddEdge("b", "d")
	g.AddEdge("c", "d")
	return g
}

func TestCommonNeighborsFindsSharedNeighbor(t *testing.T) {
	g := triangleGraph()
	preds := CommonNeighbors(g, "a", 5)

	found := false
	for _, p := range preds {
		if p.TargetID == types.NodeID("d") {
			found = true
			if p.Score <= 0 {
				t.Errorf("expected positive score for d, got %f", p.Score)
			}
		}
	}
	if !found {
		t.Fatal("expected d to be a candidate via common neighbors b and c")
	}
}

func TestJaccardInRange(t *testing.T) {
	g := triangleGraph()
	preds := Jaccard(g, "a", 5)
	for _, p := range preds {
		if p.Score < 0 || p.Score > 1 {
			t.Errorf("jaccard score out of range: %f", p.Score)
		}
	}
}

func TestAdamicAdarWeightsRareNeighborHigher(t *testing.T) {
	g := make(Graph)
	// x and y share neighbor r1 (degree 2, rare) and hub (degree 10).
	g.AddEdge("x", "r1")
	g.AddEdge("y", "r1")
	g.AddEdge("x", "hub")
	g.AddEdge("y", "hub")
	for i := 0; i < 8; i++ {
		g.AddEdge("hub", types.NodeID(rune('A'+i)))
	}

	preds := AdamicAdar(g, "x", 5)
	var score, hubOnly float64
	for _, p := range preds {
		if p.TargetID == "y" {
			score = p.Score
		} else {
			hubOnly = p.Score // A..H share only the hub with x
		}
	}
	if score <= 0 {
		t.Fatalf("expected positive adamic-adar score for y, got %f", score)
	}
	if hubOnly <= 0 {
		t.Fatalf("expected a hub-only candidate in the results, got %+v", preds)
	}
	// y shares r1 and hub; subtracting a hub-only score leaves r1's share.
	if score-hubOnly <= hubOnly {
		t.Errorf("expected rare neighbor r1 to outweigh hub: y=%f hub-only=%f", score, hubOnly)
	}
}

func TestPreferentialAttachmentSkipsExistingNeighbors(t *testing.T) {
	g := triangleGraph()
	preds := PreferentialAttachment(g, "a", 5)
	for _, p := range preds {
		if p.TargetID == "b" || p.TargetID == "c" {
			t.Errorf("should not score existing neighbor %s", p.TargetID)
		}
	}
}

func TestResourceAllocationNoSelfOrExistingEdge(t *testing.T) {
	g := triangleGraph()
	preds := ResourceAllocation(g, "a", 5)
	for _, p := range preds {
		if p.TargetID == "a" {
			t.Fatal("should never score self")
		}
		if p.TargetID == "b" || p.TargetID == "c" {
			t.Errorf("should not score existing neighbor %s", p.TargetID)
		}
	}
}

func TestDegreeAndNeighborsOnAbsentNode(t *testing.T) {
	g := make(Graph)
	if g.Degree("ghost") != 0 {
		t.Error("expected 0 degree for absent node")
	}
	if len(g.Neighbors("ghost")) != 0 {
		t.Error("expected empty neighbor set for absent node")
	}
}
