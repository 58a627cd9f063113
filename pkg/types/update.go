package types

// UpdateOp tags which mutation apply_update performs.
type UpdateOp int

const (
	OpWeightSet UpdateOp = iota
	OpWeightDelta
	OpAddHyperedge
	OpRemoveHyperedge
	OpObserveEdge
)

// Update is the closed sum of hypergraph mutations accepted by
// Store.ApplyUpdate.
type Update struct {
	Op Op

	// WeightSet / WeightDelta
	EdgeID HyperedgeID
	Weight float64 // absolute value for WeightSet, delta for WeightDelta

	// AddHyperedge
	NewEdge *Hyperedge

	// ObserveEdge
	From NodeID
	To   NodeID
	Type EdgeType
}

// Op is an alias kept distinct from UpdateOp so call sites read
// types.Update{Op: types.OpWeightSet, ...} without stutter.
type Op = UpdateOp

// UpdateKind describes the effect an applied Update had, for incremental
// subscribers (DR-DSP, caches) to react to.
type UpdateKind struct {
	Op             Op
	EdgeID         HyperedgeID
	WeightIncrease bool // true if the edge got more expensive (or removed)
	WeightDecrease bool // true if the edge got cheaper (or added)
	NewVersion     uint64
}
