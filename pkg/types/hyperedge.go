package types

// HyperedgeID is a strongly-typed opaque identifier for a hyperedge.
type HyperedgeID string

// EdgeType is the closed enum of hyperedge relation kinds.
type EdgeType string

const (
	EdgeContains    EdgeType = "contains"
	EdgeSequence    EdgeType = "sequence"
	EdgeDependency  EdgeType = "dependency"
	EdgeProvides    EdgeType = "provides"
	EdgeAlternative EdgeType = "alternative"
)

// EdgeSource is the closed, monotone provenance enum: a hyperedge's
// source only ever moves template -> inferred -> observed.
type EdgeSource string

const (
	SourceTemplate EdgeSource = "template"
	SourceInferred EdgeSource = "inferred"
	SourceObserved EdgeSource = "observed"
)

// EdgeTypeWeights gives the base per-type weight multiplier.
var EdgeTypeWeights = map[EdgeType]float64{
	EdgeContains:    0.8,
	EdgeSequence:    0.5,
	EdgeDependency:  1.0,
	EdgeProvides:    0.7,
	EdgeAlternative: 0.6,
}

// EdgeSourceModifiers gives the base per-provenance weight multiplier.
var EdgeSourceModifiers = map[EdgeSource]float64{
	SourceTemplate: 0.5,
	SourceInferred: 0.7,
	SourceObserved: 1.0,
}

// ObservedThreshold is the observed_count at which an inferred edge is
// promoted to observed.
const ObservedThreshold = 3

// Hyperedge is a directed relation from a non-empty Sources set to a
// non-empty Targets set. A capability compiles to one hyperedge (or a
// chain of hyperedges) whose endpoints are the first/last tools of its
// static DAG.
type Hyperedge struct {
	ID            HyperedgeID
	Sources       map[NodeID]struct{}
	Targets       map[NodeID]struct{}
	Weight        float64
	Type          EdgeType
	Source        EdgeSource
	ObservedCount int
	Version       uint64
	Metadata      map[string]any
}

// Weight computes the canonical scalar weight for (t, s).
func Weight(t EdgeType, s EdgeSource) float64 {
	return EdgeTypeWeights[t] * EdgeSourceModifiers[s]
}

// Cost is the DR-DSP relaxation cost of traversing a hyperedge of this
// weight, clamped by the configured floor.
func Cost(weight, floor float64) float64 {
	if weight < floor {
		weight = floor
	}
	return 1.0 / weight
}

// SourcesSlice returns Sources as a stable-ordered slice (sorted by ID).
func (h *Hyperedge) SourcesSlice() []NodeID {
	return sortedKeys(h.Sources)
}

// TargetsSlice returns Targets as a stable-ordered slice (sorted by ID).
func (h *Hyperedge) TargetsSlice() []NodeID {
	return sortedKeys(h.Targets)
}

func sortedKeys(m map[NodeID]struct{}) []NodeID {
	out := make([]NodeID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	// Simple insertion sort: hyperedge fan-in/out is small in practice
	// (tool counts per capability), so O(n^2) is not a concern and avoids
	// pulling sort.Slice closures into a hot path called per relaxation.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Clone returns a deep copy of h.
func (h *Hyperedge) Clone() *Hyperedge {
	if h == nil {
		return nil
	}
	cp := &Hyperedge{
		ID:            h.ID,
		Weight:        h.Weight,
		Type:          h.Type,
		Source:        h.Source,
		ObservedCount: h.ObservedCount,
		Version:       h.Version,
		Sources:       make(map[NodeID]struct{}, len(h.Sources)),
		Targets:       make(map[NodeID]struct{}, len(h.Targets)),
	}
	for k := range h.Sources {
		cp.Sources[k] = struct{}{}
	}
	for k := range h.Targets {
		cp.Targets[k] = struct{}{}
	}
	if h.Metadata != nil {
		cp.Metadata = make(map[string]any, len(h.Metadata))
		for k, v := range h.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}
