package hyperpath

import (
	"github.com/hyperforge/capiforge/pkg/engerr"
	"github.com/hyperforge/capiforge/pkg/types"
)

func (g *Graph) addEdge(e HyperedgeView) {
	g.edges[e.ID] = e
	for _, t := range e.Targets {
		g.incoming[t] = append(g.incoming[t], e.ID)
		g.nodes[t] = struct{}{}
	}
	for _, s := range e.Sources {
		g.outgoing[s] = append(g.outgoing[s], e.ID)
		g.nodes[s] = struct{}{}
	}
}

func (g *Graph) removeEdge(e HyperedgeView) {
	delete(g.edges, e.ID)
	for _, t := range e.Targets {
		g.incoming[t] = removeID(g.incoming[t], e.ID)
	}
	for _, s := range e.Sources {
		g.outgoing[s] = removeID(g.outgoing[s], e.ID)
	}
}

func removeID(ids []types.HyperedgeID, victim types.HyperedgeID) []types.HyperedgeID {
	out := ids[:0]
	for _, id := range ids {
		if id != victim {
			out = append(out, id)
		}
	}
	return out
}

// ApplyWeightDecrease updates edgeID's weight (which must be non-negative)
// for a change that lowers its traversal cost, i.e. a larger weight since
// cost is 1/weight, and performs a localized re-relaxation from its
// targets, bounded by the subtree of nodes whose distance improves. That
// the cost really decreased is not checked.
func (st *State) ApplyWeightDecrease(edgeID types.HyperedgeID, newWeight float64) error {
	if newWeight < 0 {
		return engerr.New(engerr.KindInvalidWeight, "ApplyWeightDecrease", nil)
	}
	e, ok := st.graph.edges[edgeID]
	if !ok {
		return engerr.ErrNotFound
	}
	e.Weight = newWeight
	st.graph.edges[edgeID] = e
	return st.relaxEdgeAndPropagate(e)
}

// AddHyperedge inserts a brand-new hyperedge into the graph and relaxes
// from it, handled the same as a weight decrease: a newly added
// hyperedge can only shorten existing distances.
func (st *State) AddHyperedge(e HyperedgeView) error {
	if e.Weight < 0 {
		return engerr.New(engerr.KindInvalidWeight, "AddHyperedge", nil)
	}
	st.graph.addEdge(e)
	return st.relaxEdgeAndPropagate(e)
}

// relaxEdgeAndPropagate relaxes e once (if its sources are all already
// reached) and, for every target whose distance improves, continues the
// heap-based propagation from there.
func (st *State) relaxEdgeAndPropagate(e HyperedgeView) error {
	for _, s := range e.Sources {
		if _, ok := st.dist[s]; !ok {
			return nil // source set not yet fully reachable; nothing to relax
		}
	}

	bottleneck := st.maxSourceDist(e)
	candidate := bottleneck + cost(e.Weight, st.floor)

	var improved []types.NodeID
	for _, t := range e.Targets {
		if cur, ok := st.dist[t]; !ok || candidate < cur {
			st.dist[t] = candidate
			st.parent[t] = e.ID
			improved = append(improved, t)
		}
	}
	if len(improved) > 0 {
		st.relaxFrom(improved)
	}
	return nil
}

// ApplyWeightIncrease updates edgeID's weight (which must be
// non-negative) and invalidates every node transitively dependent on it
// before reconverging via the heap.
func (st *State) ApplyWeightIncrease(edgeID types.HyperedgeID, newWeight float64) error {
	if newWeight < 0 {
		return engerr.New(engerr.KindInvalidWeight, "ApplyWeightIncrease", nil)
	}
	e, ok := st.graph.edges[edgeID]
	if !ok {
		return engerr.ErrNotFound
	}
	e.Weight = newWeight
	st.graph.edges[edgeID] = e
	st.invalidateAndReconverge(edgeID)
	return nil
}

// RemoveHyperedge deletes edgeID from the graph, invalidating every node
// whose shortest distance depended on it before reconverging. Handled as
// the limiting case of a weight increase: cost goes to infinity.
func (st *State) RemoveHyperedge(edgeID types.HyperedgeID) error {
	e, ok := st.graph.edges[edgeID]
	if !ok {
		return engerr.ErrNotFound
	}
	st.graph.removeEdge(e)
	st.invalidateAndReconverge(edgeID)
	return nil
}

// invalidateAndReconverge drops the distance of every node transitively
// dependent on edgeID, then re-seeds the heap from every surviving node:
// distances stay monotone over successful relaxations once reconvergence
// completes.
func (st *State) invalidateAndReconverge(edgeID types.HyperedgeID) {
	invalid := st.invalidateDescendants(edgeID)

	survivors := make([]types.NodeID, 0, len(st.dist))
	for n := range st.dist {
		if !invalid[n] {
			survivors = append(survivors, n)
		}
	}
	for n := range invalid {
		delete(st.dist, n)
		delete(st.parent, n)
	}
	st.relaxFrom(survivors)
}

// invalidateDescendants finds every node whose shortest path depends,
// directly or transitively, on edgeID: first the nodes edgeID directly
// finalized, then any node whose parent hyperedge used an already
// invalidated node as one of its sources.
func (st *State) invalidateDescendants(edgeID types.HyperedgeID) map[types.NodeID]bool {
	invalid := make(map[types.NodeID]bool)
	for n, p := range st.parent {
		if p == edgeID {
			invalid[n] = true
		}
	}

	for changed := true; changed; {
		changed = false
		for n, p := range st.parent {
			if invalid[n] {
				continue
			}
			e, ok := st.graph.edges[p]
			if !ok {
				continue
			}
			for _, s := range e.Sources {
				if invalid[s] {
					invalid[n] = true
					changed = true
					break
				}
			}
		}
	}
	return invalid
}
