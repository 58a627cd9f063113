// Package tracestore implements the trace store and prioritized
// experience replay layer (C5): recording execution traces, rebuilding
// their parent/child hierarchy, sampling by priority for the learning
// loop, and anonymizing user-tied fields. An in-memory implementation
// for tests sits behind the same Repository interface as a Badger-backed
// durable one, generalized from a property graph's Node/Edge CRUD to
// append-only ExecutionTrace records.
package tracestore

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hyperforge/capiforge/pkg/types"
)

// Repository is the storage contract every backend satisfies. It also
// satisfies pkg/features.TraceSource (AllTraces) so the feature
// extractor can read straight off whichever backend is in use.
type Repository interface {
	SaveTrace(in SaveInput) (*types.ExecutionTrace, error)
	GetByID(id types.TraceID) (*types.ExecutionTrace, bool)
	ChildrenOf(id types.TraceID) ([]*types.ExecutionTrace, error)
	AllTraces() ([]*types.ExecutionTrace, error)
	SampleByPriority(limit int, minPriority, alpha float64) ([]*types.ExecutionTrace, error)
	AnonymizeUserTraces(userID string) (int, error)
	Stats() Stats
	Close() error
}

// SaveInput is what a caller supplies to record one execution; TraceID
// is assigned by the store if empty.
type SaveInput struct {
	TraceID       types.TraceID
	ParentTraceID types.TraceID
	Kind          types.TraceKind
	NodeID        types.NodeID
	StartedAt     int64 // unix nanos; caller-supplied since stores never call time.Now themselves
	FinishedAt    int64
	Success       bool
	ExecutedPath  []types.NodeID
	IntentText    string
	IntentEmb     []float32
	Priority      float64
	UserID        string
	AgentID       string
	Decisions     []types.Decision
	TaskResults   []any // sanitized into types.Value via types.FromAny
}

// Stats summarizes the recorded trace population; defaults to
// (0, 0, 0, 0.5) on an empty store.
type Stats struct {
	Total         int
	Successful    int
	AvgDurationMs float64
	AvgPriority   float64
}

// DefaultStats is returned for an empty store.
var DefaultStats = Stats{Total: 0, Successful: 0, AvgDurationMs: 0, AvgPriority: 0.5}

// newTraceID mints a fresh trace identifier; grounded on the pack-wide
// convention (github.com/google/uuid) of UUID-stamping every stored
// record rather than using an auto-increment counter.
func newTraceID() types.TraceID {
	return types.TraceID(uuid.NewString())
}

// sanitize converts raw task-result payloads into the depth/length
// bounded Value representation and assembles the trace record. Priority
// is clamped to [MinPriority, MaxPriority].
func sanitize(in SaveInput, id types.TraceID) *types.ExecutionTrace {
	results := make([]types.Value, len(in.TaskResults))
	for i, r := range in.TaskResults {
		results[i] = types.FromAny(r)
	}
	path := make([]types.NodeID, len(in.ExecutedPath))
	copy(path, in.ExecutedPath)
	decisions := make([]types.Decision, len(in.Decisions))
	copy(decisions, in.Decisions)
	emb := make([]float32, len(in.IntentEmb))
	copy(emb, in.IntentEmb)

	return &types.ExecutionTrace{
		TraceID:       id,
		ParentTraceID: in.ParentTraceID,
		Kind:          in.Kind,
		NodeID:        in.NodeID,
		StartedAt:     time.Unix(0, in.StartedAt),
		FinishedAt:    time.Unix(0, in.FinishedAt),
		Success:       in.Success,
		ExecutedPath:  path,
		IntentText:    in.IntentText,
		IntentEmb:     emb,
		Priority:      types.ClampPriority(in.Priority),
		UserID:        in.UserID,
		AgentID:       in.AgentID,
		Decisions:     decisions,
		TaskResults:   results,
	}
}

// sortByStartedAt sorts traces ascending by StartedAt, the order
// children_of returns them in.
func sortByStartedAt(traces []*types.ExecutionTrace) {
	sort.Slice(traces, func(i, j int) bool { return traces[i].StartedAt.Before(traces[j].StartedAt) })
}

// Tree is one node of build_hierarchy's output forest.
type Tree struct {
	Trace    *types.ExecutionTrace
	Children []*Tree
}

// BuildHierarchy assembles traces into a parent/child forest; any trace
// whose ParentTraceID doesn't resolve within the set is treated as a
// root.
func BuildHierarchy(traces []*types.ExecutionTrace) []*Tree {
	byID := make(map[types.TraceID]*Tree, len(traces))
	for _, t := range traces {
		byID[t.TraceID] = &Tree{Trace: t}
	}

	var roots []*Tree
	for _, t := range traces {
		node := byID[t.TraceID]
		parent, ok := byID[t.ParentTraceID]
		if t.ParentTraceID == "" || !ok {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	sort.Slice(roots, func(i, j int) bool { return roots[i].Trace.StartedAt.Before(roots[j].Trace.StartedAt) })
	for _, t := range byID {
		sort.Slice(t.Children, func(i, j int) bool { return t.Children[i].Trace.StartedAt.Before(t.Children[j].Trace.StartedAt) })
	}
	return roots
}
