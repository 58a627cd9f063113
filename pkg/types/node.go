// Package types defines the shared data model of the hypergraph store and
// execution-trace log: nodes, hyperedges, traces, and the derived
// TraceStats bundle. Field shapes follow a property-graph convention,
// generalized from a binary-edge property graph to a typed hypergraph.
package types

import "time"

// NodeID is a strongly-typed, opaque string identifier for a graph node.
type NodeID string

// Kind is the closed tag distinguishing tools from (meta-)capabilities.
type Kind string

const (
	KindTool           Kind = "Tool"
	KindCapability     Kind = "Capability"
	KindMetaCapability Kind = "MetaCapability"
)

// Node is a tool, capability, or meta-capability vertex in the hypergraph.
//
// Embedding is a unit-norm vector of the configured dimension (default
// 1024), produced externally by an Embedder; the core never computes it.
type Node struct {
	ID        NodeID
	Kind      Kind
	Embedding []float32
	Parents   []NodeID
	Children  []NodeID

	// Features caches derived hypergraph quantities (PageRank, community,
	// spectral cluster, ...) tagged with the graph version at which they
	// were computed. A stale cache is refreshed lazily on read.
	Features NodeFeatures
}

// NodeFeatures holds derived, version-tagged hypergraph signals for a node.
type NodeFeatures struct {
	Version         uint64
	PageRank        float64
	CommunityID     int
	SpectralCluster int
}

// Clone returns a deep copy of n so callers cannot mutate engine state
// through a returned pointer.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	cp.Embedding = append([]float32(nil), n.Embedding...)
	cp.Parents = append([]NodeID(nil), n.Parents...)
	cp.Children = append([]NodeID(nil), n.Children...)
	return &cp
}

// TraceStats bundles the derived per-tool statistics produced by the
// feature extractor. All fields are in [0, 1] except
// PathVariance (non-negative) and AvgPathLengthToSuccess (non-negative,
// integer-valued average).
type TraceStats struct {
	HistoricalSuccessRate    float64
	ContextualSuccessRate    float64
	IntentSimilarSuccessRate float64
	RecencyScore             float64
	UsageFrequency           float64
	SequencePosition         float64
	PathVariance             float64
	AvgPathLengthToSuccess   float64
	ComputedAt               time.Time
	SampleSize               int
}

// DefaultTraceStats is returned by the feature extractor for any tool
// below the minimum sample size (cold start).
var DefaultTraceStats = TraceStats{
	HistoricalSuccessRate:    0.5,
	ContextualSuccessRate:    0.5,
	IntentSimilarSuccessRate: 0.5,
	RecencyScore:             0.5,
	UsageFrequency:           0.0,
	SequencePosition:         0.5,
	PathVariance:             0.0,
	AvgPathLengthToSuccess:   0,
}
