package hyperpath

import "github.com/hyperforge/capiforge/pkg/types"

// HyperedgeSource is the narrow view hyperpath needs of a hypergraph
// store to build a Graph snapshot (pkg/hypergraph.Store satisfies it
// directly; BuildGraph converts the hyperedges into []HyperedgeView).
type HyperedgeSource interface {
	AllHyperedges() []*types.Hyperedge
}

// BuildGraph snapshots every hyperedge from src into a hyperpath Graph.
func BuildGraph(src HyperedgeSource) (*Graph, error) {
	all := src.AllHyperedges()
	views := make([]HyperedgeView, len(all))
	for i, e := range all {
		views[i] = HyperedgeView{
			ID:      e.ID,
			Sources: e.SourcesSlice(),
			Targets: e.TargetsSlice(),
			Weight:  e.Weight,
		}
	}
	return NewGraph(views)
}

// ApplyUpdate reacts to a hypergraph mutation's UpdateKind by dispatching
// to the matching incremental repair. newEdge is required (and used) only
// for OpAddHyperedge; newWeight is the edge's weight after the mutation
// and is ignored for OpRemoveHyperedge.
func (st *State) ApplyUpdate(u types.UpdateKind, newEdge *HyperedgeView, newWeight float64) error {
	switch u.Op {
	case types.OpRemoveHyperedge:
		return st.RemoveHyperedge(u.EdgeID)
	case types.OpAddHyperedge:
		if newEdge == nil {
			return nil
		}
		return st.AddHyperedge(*newEdge)
	default:
		if u.WeightDecrease {
			return st.ApplyWeightDecrease(u.EdgeID, newWeight)
		}
		return st.ApplyWeightIncrease(u.EdgeID, newWeight)
	}
}
