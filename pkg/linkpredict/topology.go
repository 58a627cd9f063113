// Package linkpredict implements topological link-prediction heuristics
// over a node adjacency graph. SHGAT (pkg/shgat) uses AdamicAdar as one of
// its graph-topology feature signals when scoring a candidate node against
// an intent: two tools that are frequently co-used with a rare common
// neighbor are stronger candidates for being co-used again than two tools
// whose only common neighbor is a hub every other tool also touches. The
// hypergraph store builds its own adjacency view directly (see
// pkg/hypergraph) rather than going through an external graph-builder.
package linkpredict

import (
	"math"
	"sort"

	"github.com/hyperforge/capiforge/pkg/types"
)

// Graph is an adjacency-set view of the hypergraph's pairwise node
// relationships (a hyperedge with sources S and targets T contributes an
// edge between every s in S and every t in T).
type Graph map[types.NodeID]NodeSet

// NodeSet is a set of node IDs.
type NodeSet map[types.NodeID]struct{}

// Prediction is a candidate target with an algorithm-specific score,
// normalized to [0, 1].
type Prediction struct {
	TargetID  types.NodeID
	Score     float64
	Algorithm string
}

// CommonNeighbors scores candidates by |N(u) ∩ N(v)|: source and candidate
// share many neighbors.
func CommonNeighbors(graph Graph, source types.NodeID, topK int) []Prediction {
	neighbors, exists := graph[source]
	if !exists {
		return nil
	}

	scores := make(map[types.NodeID]float64)
	for neighbor := range neighbors {
		for candidate := range graph[neighbor] {
			if candidate == source {
				continue
			}
			if _, isNeighbor := neighbors[candidate]; isNeighbor {
				continue
			}
			scores[candidate]++
		}
	}

	return topKPredictions(scores, topK, "common_neighbors")
}

// Jaccard scores candidates by |N(u) ∩ N(v)| / |N(u) ∪ N(v)|, normalizing
// common-neighbor count by total neighborhood size.
func Jaccard(graph Graph, source types.NodeID, topK int) []Prediction {
	neighbors, exists := graph[source]
	if !exists {
		return nil
	}

	scores := make(map[types.NodeID]float64)
	candidates := candidateSet(graph, source, neighbors)

	for candidate := range candidates {
		candidateNeighbors := graph[candidate]
		intersection := 0
		for n := range neighbors {
			if _, ok := candidateNeighbors[n]; ok {
				intersection++
			}
		}
		if intersection == 0 {
			continue
		}
		union := len(neighbors) + len(candidateNeighbors) - intersection
		if union > 0 {
			scores[candidate] = float64(intersection) / float64(union)
		}
	}

	return topKPredictions(scores, topK, "jaccard")
}

// AdamicAdar scores candidates by Σ(1/log|N(z)|) over common neighbors z,
// weighting rare common neighbors more heavily than hub neighbors.
func AdamicAdar(graph Graph, source types.NodeID, topK int) []Prediction {
	neighbors, exists := graph[source]
	if !exists {
		return nil
	}

	scores := make(map[types.NodeID]float64)
	candidates := candidateSet(graph, source, neighbors)

	for candidate := range candidates {
		sum := 0.0
		candidateNeighbors := graph[candidate]
		for neighbor := range neighbors {
			if _, ok := candidateNeighbors[neighbor]; ok {
				degree := len(graph[neighbor])
				if degree > 1 {
					sum += 1.0 / math.Log(float64(degree))
				}
			}
		}
		if sum > 0 {
			scores[candidate] = sum
		}
	}

	return topKPredictions(scores, topK, "adamic_adar")
}

// PreferentialAttachment scores candidates by |N(u)| * |N(v)|: high-degree
// nodes attract more connections ("rich get richer").
func PreferentialAttachment(graph Graph, source types.NodeID, topK int) []Prediction {
	neighbors, exists := graph[source]
	if !exists {
		return nil
	}

	sourceDegree := float64(len(neighbors))
	scores := make(map[types.NodeID]float64)
	for candidate, candidateNeighbors := range graph {
		if candidate == source {
			continue
		}
		if _, isNeighbor := neighbors[candidate]; isNeighbor {
			continue
		}
		scores[candidate] = sourceDegree * float64(len(candidateNeighbors))
	}

	return topKPredictions(scores, topK, "preferential_attachment")
}

// ResourceAllocation scores candidates by Σ(1/|N(z)|) over common neighbors
// z: each common neighbor distributes one unit of "resource" across its
// own neighbors.
func ResourceAllocation(graph Graph, source types.NodeID, topK int) []Prediction {
	neighbors, exists := graph[source]
	if !exists {
		return nil
	}

	scores := make(map[types.NodeID]float64)
	candidates := candidateSet(graph, source, neighbors)

	for candidate := range candidates {
		sum := 0.0
		candidateNeighbors := graph[candidate]
		for neighbor := range neighbors {
			if _, ok := candidateNeighbors[neighbor]; ok {
				degree := len(graph[neighbor])
				if degree > 0 {
					sum += 1.0 / float64(degree)
				}
			}
		}
		if sum > 0 {
			scores[candidate] = sum
		}
	}

	return topKPredictions(scores, topK, "resource_allocation")
}

// candidateSet collects the 2-hop neighborhood of source, excluding source
// itself and its existing direct neighbors.
func candidateSet(graph Graph, source types.NodeID, neighbors NodeSet) map[types.NodeID]struct{} {
	candidates := make(map[types.NodeID]struct{})
	for neighbor := range neighbors {
		for candidate := range graph[neighbor] {
			if candidate == source {
				continue
			}
			if _, isNeighbor := neighbors[candidate]; isNeighbor {
				continue
			}
			candidates[candidate] = struct{}{}
		}
	}
	return candidates
}

func topKPredictions(scores map[types.NodeID]float64, k int, algorithm string) []Prediction {
	predictions := make([]Prediction, 0, len(scores))
	for nodeID, score := range scores {
		predictions = append(predictions, Prediction{
			TargetID:  nodeID,
			Score:     normalizeAlgorithmScore(score, algorithm),
			Algorithm: algorithm,
		})
	}

	sort.Slice(predictions, func(i, j int) bool {
		return predictions[i].Score > predictions[j].Score
	})

	if k > 0 && len(predictions) > k {
		predictions = predictions[:k]
	}
	return predictions
}

// normalizeAlgorithmScore maps each algorithm's native score range onto
// [0, 1] so SHGAT can treat this as one feature regardless of which
// heuristic produced it.
func normalizeAlgorithmScore(score float64, algorithm string) float64 {
	switch algorithm {
	case "jaccard":
		return math.Min(1.0, math.Max(0.0, score))
	case "common_neighbors":
		return 1.0 - (1.0 / (1.0 + score/2.0))
	case "adamic_adar", "resource_allocation":
		return math.Tanh(score / 5.0)
	case "preferential_attachment":
		if score <= 1.0 {
			return 0.0
		}
		return math.Min(1.0, math.Log10(score)/4.0)
	default:
		return math.Min(1.0, math.Max(0.0, score))
	}
}

// Contains reports whether id is a member of the set.
func (ns NodeSet) Contains(id types.NodeID) bool {
	_, exists := ns[id]
	return exists
}

// Size returns the number of nodes in the set.
func (ns NodeSet) Size() int {
	return len(ns)
}

// Degree returns the neighbor count for node, or 0 if node is absent.
func (g Graph) Degree(node types.NodeID) int {
	return len(g[node])
}

// Neighbors returns the neighbor set for node (empty, not nil, if absent).
func (g Graph) Neighbors(node types.NodeID) NodeSet {
	if neighbors, exists := g[node]; exists {
		return neighbors
	}
	return make(NodeSet)
}

// AddEdge inserts an undirected adjacency between a and b.
func (g Graph) AddEdge(a, b types.NodeID) {
	if g[a] == nil {
		g[a] = make(NodeSet)
	}
	if g[b] == nil {
		g[b] = make(NodeSet)
	}
	g[a][b] = struct{}{}
	g[b][a] = struct{}{}
}
