package hypergraph

import (
	"math"
	"testing"

	"github.com/hyperforge/capiforge/pkg/types"
)

func chainStore(t *testing.T) *Store {
	t.Helper()
	s := New(DefaultConfig())
	ids := []types.NodeID{"a", "b", "c", "d"}
	for _, id := range ids {
		if err := s.AddNode(id, types.KindTool, []float32{1, 0}); err != nil {
			t.Fatal(err)
		}
	}
	pairs := [][2]types.NodeID{{"a", "b"}, {"b", "c"}, {"c", "d"}, {"d", "a"}}
	for _, p := range pairs {
		he := &types.Hyperedge{
			Sources: map[types.NodeID]struct{}{p[0]: {}},
			Targets: map[types.NodeID]struct{}{p[1]: {}},
			Type:    types.EdgeSequence,
			Source:  types.SourceObserved,
		}
		if _, err := s.AddHyperedge(he); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestPageRankCoversEveryNodeAndSumsToOne(t *testing.T) {
	s := chainStore(t)
	ranks := s.PageRank()
	if len(ranks) != 4 {
		t.Fatalf("expected 4 ranked nodes, got %d", len(ranks))
	}
	var sum float64
	for _, r := range ranks {
		sum += r
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("expected pagerank to sum to ~1, got %f", sum)
	}
}

func TestCommunitiesAssignEveryNode(t *testing.T) {
	s := chainStore(t)
	c := s.Communities()
	if len(c) != 4 {
		t.Fatalf("expected every node assigned a community, got %d entries", len(c))
	}
}

func TestSpectralClustersAssignEveryNode(t *testing.T) {
	s := chainStore(t)
	clusters := s.SpectralClusters()
	if len(clusters) != 4 {
		t.Fatalf("expected every node assigned a cluster, got %d entries", len(clusters))
	}
}

func TestDerivedCacheInvalidatesOnMutation(t *testing.T) {
	s := chainStore(t)
	v0 := s.Version()
	_ = s.PageRank()

	if err := s.AddNode("e", types.KindTool, nil); err != nil {
		t.Fatal(err)
	}
	if s.Version() <= v0 {
		t.Fatal("expected version to bump after AddNode")
	}

	ranks := s.PageRank()
	if _, ok := ranks["e"]; !ok {
		t.Fatal("expected pagerank to include newly added node after recompute")
	}
}

func TestHeatDiffusionPeaksAtSeed(t *testing.T) {
	s := chainStore(t)
	heat := s.HeatDiffusion([]types.NodeID{"a"}, 0.5)
	if len(heat) != 4 {
		t.Fatalf("expected heat value for every node, got %d", len(heat))
	}
	for id, v := range heat {
		if id != "a" && v > heat["a"] {
			t.Errorf("expected seed node 'a' to have the highest heat, but %s=%f > a=%f", id, v, heat["a"])
		}
	}
}

func TestHeatDiffusionEmptyGraph(t *testing.T) {
	s := New(DefaultConfig())
	heat := s.HeatDiffusion([]types.NodeID{"ghost"}, 1.0)
	if len(heat) != 0 {
		t.Fatalf("expected empty result for empty graph, got %v", heat)
	}
}
