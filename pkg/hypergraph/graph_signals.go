package hypergraph

import (
	"github.com/hyperforge/capiforge/pkg/linkpredict"
	"github.com/hyperforge/capiforge/pkg/types"
)

// NodeFeatures returns the node's version-tagged derived quantities,
// recomputing the underlying pagerank/community/cluster caches if
// stale. Satisfies pkg/features.GraphSignals.
func (s *Store) NodeFeatures(id types.NodeID) (types.NodeFeatures, bool) {
	s.mu.RLock()
	_, exists := s.nodes[id]
	s.mu.RUnlock()
	if !exists {
		return types.NodeFeatures{}, false
	}

	s.ensureDerived()
	s.derived.mu.Lock()
	defer s.derived.mu.Unlock()

	return types.NodeFeatures{
		Version:         s.derived.version,
		PageRank:        s.derived.pagerank[id],
		CommunityID:     s.derived.communities[id],
		SpectralCluster: s.derived.clusters[id],
	}, true
}

// AdamicAdar returns the Adamic-Adar topology-similarity score between a
// and b over the store's node adjacency projection. Satisfies
// pkg/features.GraphSignals.
func (s *Store) AdamicAdar(a, b types.NodeID) float64 {
	s.mu.RLock()
	edges := s.projectedEdges()
	s.mu.RUnlock()

	g := make(linkpredict.Graph)
	for _, e := range edges {
		g.AddEdge(e.from, e.to)
	}

	for _, pred := range linkpredict.AdamicAdar(g, a, 0) {
		if pred.TargetID == b {
			return pred.Score
		}
	}
	return 0
}
