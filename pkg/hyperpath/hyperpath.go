// Package hyperpath implements the DR-DSP hyperpath engine (C4): shortest
// hyperpaths over a directed weighted hypergraph under bottleneck
// semantics (a hyperedge fires only once every node in its source set is
// reached), with incremental updates under weight changes. The heap-based
// relaxation loop and its lazy-decrease-key discipline generalize a
// single-source-edge Dijkstra to hyperedge source sets.
package hyperpath

import (
	"container/heap"
	"math"

	"github.com/hyperforge/capiforge/pkg/engerr"
	"github.com/hyperforge/capiforge/pkg/types"
)

// HyperedgeView is the minimal shape hyperpath needs from a hyperedge;
// BuildGraph converts each types.Hyperedge into one.
type HyperedgeView struct {
	ID      types.HyperedgeID
	Sources []types.NodeID
	Targets []types.NodeID
	Weight  float64
}

// Graph is a snapshot of the hypergraph the engine runs over: every
// hyperedge plus, for quick lookup, which hyperedges have node as a
// target ("incoming", used when relaxing towards a node) and as a source
// ("outgoing", used to find hyperedges a newly-finalized node unblocks).
type Graph struct {
	edges    map[types.HyperedgeID]HyperedgeView
	incoming map[types.NodeID][]types.HyperedgeID // edges with this node as a target
	outgoing map[types.NodeID][]types.HyperedgeID // edges with this node as a source
	nodes    map[types.NodeID]struct{}            // every node seen as a source or target
}

// NewGraph builds a Graph from a flat edge list.
func NewGraph(edges []HyperedgeView) (*Graph, error) {
	g := &Graph{
		edges:    make(map[types.HyperedgeID]HyperedgeView, len(edges)),
		incoming: make(map[types.NodeID][]types.HyperedgeID),
		outgoing: make(map[types.NodeID][]types.HyperedgeID),
		nodes:    make(map[types.NodeID]struct{}),
	}
	for _, e := range edges {
		if e.Weight < 0 {
			return nil, engerr.Newf(engerr.KindInvalidWeight, "NewGraph", "hyperedge %s has negative weight %f", e.ID, e.Weight)
		}
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
	return g, nil
}

// HasNode reports whether node appears as a source or target of some
// hyperedge in g.
func (g *Graph) HasNode(node types.NodeID) bool {
	_, ok := g.nodes[node]
	return ok
}

// cost converts a hyperedge weight to a DR-DSP relaxation cost, clamping
// the weight at floor before inverting.
func cost(weight, floor float64) float64 {
	if weight < floor {
		weight = floor
	}
	return 1.0 / weight
}

// Result is the outcome of a single-pair or SSSP query.
type Result struct {
	Found          bool
	NodeSequence   []types.NodeID
	HyperedgesUsed []types.HyperedgeID
	TotalWeight    float64 // +Inf when !Found
}

// State is the full SSSP output: every reachable node's distance and the
// hyperedge that finalized it (its "parent"), for incremental updates and
// for reconstructing any reachable node's path on demand.
type State struct {
	floor float64

	dist   map[types.NodeID]float64
	parent map[types.NodeID]types.HyperedgeID // edge that finalized this node; "" for the source
	graph  *Graph
	source types.NodeID
}

type heapItem struct {
	node types.NodeID
	dist float64
}

type nodeHeap []heapItem

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// SSSP runs DR-DSP from source over every reachable node, returning a
// State that can later be queried (Distance, PathTo) or incrementally
// repaired (ApplyUpdate). If source does not appear in g, the returned
// State has no reachable nodes: Distance/PathTo report not-found for
// every node, including source itself.
func SSSP(g *Graph, source types.NodeID, costFloor float64) *State {
	st := &State{
		floor:  costFloor,
		dist:   map[types.NodeID]float64{},
		parent: map[types.NodeID]types.HyperedgeID{},
		graph:  g,
		source: source,
	}
	if !g.HasNode(source) {
		return st
	}
	st.dist[source] = 0
	st.relaxFrom([]types.NodeID{source})
	return st
}

// relaxFrom runs the heap-based relaxation loop seeded with the given
// frontier, updating st.dist/st.parent in place. Mirrors the lazy
// decrease-key discipline of a standard Dijkstra heap: stale heap entries
// are detected by comparing the popped distance to the current best.
func (st *State) relaxFrom(frontier []types.NodeID) {
	finalized := make(map[types.NodeID]bool, len(st.dist))
	h := &nodeHeap{}
	heap.Init(h)
	for _, n := range frontier {
		heap.Push(h, heapItem{node: n, dist: st.dist[n]})
	}

	for h.Len() > 0 {
		item := heap.Pop(h).(heapItem)
		u := item.node
		if finalized[u] {
			continue
		}
		if d, ok := st.dist[u]; !ok || item.dist > d {
			continue // stale entry
		}
		finalized[u] = true

		for _, edgeID := range st.graph.outgoing[u] {
			e := st.graph.edges[edgeID]
			if !st.allSourcesFinalized(e, finalized) {
				continue
			}
			bottleneck := st.maxSourceDist(e)
			edgeCost := cost(e.Weight, st.floor)
			candidate := bottleneck + edgeCost

			for _, t := range e.Targets {
				if cur, ok := st.dist[t]; !ok || candidate < cur {
					st.dist[t] = candidate
					st.parent[t] = e.ID
					heap.Push(h, heapItem{node: t, dist: candidate})
				}
			}
		}
	}
}

// allSourcesFinalized reports whether every source of e has a finalized
// distance (bottleneck semantics: the whole source set must be reached
// before any target relaxes). Sources outside st.dist entirely are never
// finalized.
func (st *State) allSourcesFinalized(e HyperedgeView, finalized map[types.NodeID]bool) bool {
	for _, s := range e.Sources {
		if _, ok := st.dist[s]; !ok {
			return false
		}
		if !finalized[s] {
			return false
		}
	}
	return true
}

func (st *State) maxSourceDist(e HyperedgeView) float64 {
	var max float64
	for _, s := range e.Sources {
		if d := st.dist[s]; d > max {
			max = d
		}
	}
	return max
}

// Distance returns node's shortest distance from the SSSP source, or
// (+Inf, false) if unreached.
func (st *State) Distance(node types.NodeID) (float64, bool) {
	d, ok := st.dist[node]
	if !ok {
		return math.Inf(1), false
	}
	return d, true
}

// PathTo reconstructs the node sequence and hyperedge multiset from the
// SSSP source to node by walking parent pointers backwards.
func (st *State) PathTo(node types.NodeID) Result {
	d, ok := st.dist[node]
	if !ok {
		return Result{Found: false, TotalWeight: math.Inf(1)}
	}

	var edges []types.HyperedgeID
	nodes := []types.NodeID{node}
	cur := node
	for cur != st.source {
		edgeID, ok := st.parent[cur]
		if !ok {
			return Result{Found: false, TotalWeight: math.Inf(1)}
		}
		e := st.graph.edges[edgeID]
		edges = append(edges, edgeID)
		// Walk to the bottleneck source (the one with max distance) as
		// the predecessor node in the reconstructed sequence.
		var prev types.NodeID
		var prevDist float64 = -1
		for _, s := range e.Sources {
			if d := st.dist[s]; d > prevDist {
				prevDist, prev = d, s
			}
		}
		nodes = append(nodes, prev)
		cur = prev
	}

	reversed := make([]types.NodeID, len(nodes))
	for i, n := range nodes {
		reversed[len(nodes)-1-i] = n
	}
	reversedEdges := make([]types.HyperedgeID, len(edges))
	for i, e := range edges {
		reversedEdges[len(edges)-1-i] = e
	}

	return Result{Found: true, NodeSequence: reversed, HyperedgesUsed: reversedEdges, TotalWeight: d}
}

// FindShortestHyperpath runs a single-pair query by computing full SSSP
// from source and reconstructing the path to target.
func FindShortestHyperpath(g *Graph, source, target types.NodeID, costFloor float64) Result {
	st := SSSP(g, source, costFloor)
	return st.PathTo(target)
}

// FindAllShortestPaths runs SSSP from source once and reconstructs the
// path to every node reachable from it, keyed by node ID. Returns an
// empty map if source does not appear in g.
func FindAllShortestPaths(g *Graph, source types.NodeID, costFloor float64) map[types.NodeID]Result {
	st := SSSP(g, source, costFloor)
	out := make(map[types.NodeID]Result, len(st.dist))
	for node := range st.dist {
		out[node] = st.PathTo(node)
	}
	return out
}
