// Package learning implements the learning loop (C6): folding a
// completed execution's trace tree into the hypergraph as contains/
// sequence hyperedges, recomputing a capability's success rate into its
// hyperedge weight, computing the TD-error priority that drives
// prioritized experience replay, invalidating the feature cache for
// every tool involved, and queuing a batch for C3's background
// training step. Batches the CreateEdge/UpdateNode-style calls a
// higher-level ingestion loop drives, generalized from bulk graph
// ingestion to execution-trace folding.
package learning

import (
	"github.com/hyperforge/capiforge/pkg/features"
	"github.com/hyperforge/capiforge/pkg/obslog"
	"github.com/hyperforge/capiforge/pkg/shgat"
	"github.com/hyperforge/capiforge/pkg/tracestore"
	"github.com/hyperforge/capiforge/pkg/types"
)

var log = obslog.WithPrefix("learning")

// HypergraphWriter is the narrow view of pkg/hypergraph.Store the
// learning loop needs: edge folding/promotion and weight refresh, plus
// enough read access to detect a cold-start graph and fetch a node's kind.
type HypergraphWriter interface {
	FindOrPromoteEdge(from, to types.NodeID, edgeType types.EdgeType) (types.HyperedgeID, error)
	ApplyUpdate(u types.Update) (types.UpdateKind, error)
	Node(id types.NodeID) (*types.Node, bool)
	NodeCount() int
}

// StatsSource is the narrow view of pkg/features.Extractor the loop
// needs: recomputing a node's historical success rate and invalidating
// its cache entry after new traces land.
type StatsSource interface {
	Stats(id types.NodeID) (types.TraceStats, error)
	Invalidate(id types.NodeID)
}

// PathPredictor is the narrow view of pkg/shgat.Model the loop needs for
// the TD-error's predicted-success term.
type PathPredictor interface {
	PredictPathSuccess(path []shgat.PathStep) float64
}

// FeatureAssembler builds a features.TraceFeatureBundle for one
// candidate, pairing intent/candidate embeddings with trace stats and
// graph topology. pkg/features.Extractor.Extract satisfies this directly.
type FeatureAssembler interface {
	Extract(intentEmb []float32, candidateID types.NodeID, candidateEmb []float32, contextIDs []types.NodeID, contextEmbs [][]float32) (features.TraceFeatureBundle, error)
}

// Config tunes the TD-error priority bounds (mirrors config.PERConfig).
type Config struct {
	MinPriority float64
	MaxPriority float64
}

// DefaultConfig returns the loop's default bounds (min 0.01, max 1.0).
func DefaultConfig() Config {
	return Config{MinPriority: types.MinPriority, MaxPriority: types.MaxPriority}
}

// Loop wires the hypergraph, feature cache, predictor, and trace store
// together into a six-step fold-and-reprioritize procedure.
type Loop struct {
	cfg      Config
	graph    HypergraphWriter
	stats    StatsSource
	feats    FeatureAssembler
	model    PathPredictor
	traces   tracestore.Repository
	perQueue []shgat.TrainExample
}

// New builds a Loop over the given components.
func New(cfg Config, graph HypergraphWriter, stats StatsSource, feats FeatureAssembler, model PathPredictor, traces tracestore.Repository) *Loop {
	return &Loop{cfg: cfg, graph: graph, stats: stats, feats: feats, model: model, traces: traces}
}

// Execution is one completed root-to-leaf invocation: the full set of
// ExecutionTrace records for one root (including the root itself) plus
// the intent embedding that drove it, used for the TD-error prediction.
type Execution struct {
	Traces    []*types.ExecutionTrace
	RootID    types.TraceID
	IntentEmb []float32
}

// FoldResult reports what CompleteExecution did, for callers (tests,
// the CLI demo) that want to confirm the loop actually fired.
type FoldResult struct {
	Saved         *types.ExecutionTrace
	EdgesTouched  []types.HyperedgeID
	InvalidatedOn []types.NodeID
}

// CompleteExecution runs the full six-step fold-and-reprioritize
// procedure over one completed execution.
func (l *Loop) CompleteExecution(ex Execution) (FoldResult, error) {
	forest := tracestore.BuildHierarchy(ex.Traces)

	var edgesTouched []types.HyperedgeID
	involved := map[types.NodeID]bool{}
	for _, t := range ex.Traces {
		involved[t.NodeID] = true
	}

	for _, root := range forest {
		touched, err := l.foldSubtree(root)
		if err != nil {
			return FoldResult{}, err
		}
		edgesTouched = append(edgesTouched, touched...)
	}

	var root *types.ExecutionTrace
	for _, t := range ex.Traces {
		if t.TraceID == ex.RootID {
			root = t
			break
		}
	}

	priority := types.ColdStartPriority
	if root != nil {
		priority = l.tdErrorPriority(ex.IntentEmb, root)
	}

	var saved *types.ExecutionTrace
	if root != nil {
		in := tracestore.SaveInput{
			TraceID:       root.TraceID,
			ParentTraceID: root.ParentTraceID,
			Kind:          root.Kind,
			NodeID:        root.NodeID,
			StartedAt:     root.StartedAt.UnixNano(),
			FinishedAt:    root.FinishedAt.UnixNano(),
			Success:       root.Success,
			ExecutedPath:  root.ExecutedPath,
			IntentText:    root.IntentText,
			IntentEmb:     root.IntentEmb,
			Priority:      priority,
			UserID:        root.UserID,
			AgentID:       root.AgentID,
			Decisions:     root.Decisions,
		}
		var err error
		saved, err = l.traces.SaveTrace(in)
		if err != nil {
			return FoldResult{}, err
		}
		l.enqueueTraining(root, priority)
	}

	var invalidated []types.NodeID
	for id := range involved {
		l.stats.Invalidate(id)
		invalidated = append(invalidated, id)
	}

	log.Info("execution folded", map[string]any{"root": ex.RootID, "edges_touched": len(edgesTouched), "priority": priority})
	return FoldResult{Saved: saved, EdgesTouched: edgesTouched, InvalidatedOn: invalidated}, nil
}

// foldSubtree recurses over one tree, folding parent->child contains
// edges, sibling sequence edges, and a capability weight refresh, then
// descending into each child.
func (l *Loop) foldSubtree(node *tracestore.Tree) ([]types.HyperedgeID, error) {
	var touched []types.HyperedgeID

	for i, child := range node.Children {
		if node.Trace.NodeID != child.Trace.NodeID { // never self-loops
			id, err := l.graph.FindOrPromoteEdge(node.Trace.NodeID, child.Trace.NodeID, types.EdgeContains)
			if err != nil {
				return nil, err
			}
			touched = append(touched, id)
			if err := l.refreshCapabilityWeight(child.Trace.NodeID, id); err != nil {
				return nil, err
			}
		}
		if i > 0 {
			prev := node.Children[i-1].Trace.NodeID
			if prev != child.Trace.NodeID {
				id, err := l.graph.FindOrPromoteEdge(prev, child.Trace.NodeID, types.EdgeSequence)
				if err != nil {
					return nil, err
				}
				touched = append(touched, id)
			}
		}
	}

	for _, child := range node.Children {
		childTouched, err := l.foldSubtree(child)
		if err != nil {
			return nil, err
		}
		touched = append(touched, childTouched...)
	}
	return touched, nil
}

// refreshCapabilityWeight recomputes nodeID's historical success rate
// and, if nodeID is a capability, writes it straight onto the edge that
// was just folded.
func (l *Loop) refreshCapabilityWeight(nodeID types.NodeID, edgeID types.HyperedgeID) error {
	n, ok := l.graph.Node(nodeID)
	if !ok || n.Kind != types.KindCapability {
		return nil
	}
	st, err := l.stats.Stats(nodeID)
	if err != nil {
		return err
	}
	weight := st.HistoricalSuccessRate
	if weight <= 0 {
		weight = types.MinPriority // never drop a hyperedge to a non-positive weight
	}
	_, err = l.graph.ApplyUpdate(types.Update{Op: types.OpWeightSet, EdgeID: edgeID, Weight: weight})
	return err
}

// tdErrorPriority computes the TD-error priority formula: a graph with
// no registered nodes is a cold start and always yields 0.5.
func (l *Loop) tdErrorPriority(intentEmb []float32, t *types.ExecutionTrace) float64 {
	if l.graph.NodeCount() == 0 {
		return types.ColdStartPriority
	}
	predicted := l.model.PredictPathSuccess(l.buildPathSteps(intentEmb, t.ExecutedPath))
	actual := 0.0
	if t.Success {
		actual = 1.0
	}
	td := actual - predicted
	if td < 0 {
		td = -td
	}
	if td < l.cfg.MinPriority {
		return l.cfg.MinPriority
	}
	if td > l.cfg.MaxPriority {
		return l.cfg.MaxPriority
	}
	return td
}

// buildPathSteps assembles a shgat.PathStep per node along path, looking
// up each node's kind and embedding and assembling its scoring Input.
// Nodes no longer present in the graph are skipped.
func (l *Loop) buildPathSteps(intentEmb []float32, path []types.NodeID) []shgat.PathStep {
	steps := make([]shgat.PathStep, 0, len(path))
	for _, id := range path {
		n, ok := l.graph.Node(id)
		if !ok {
			continue
		}
		bundle, err := l.feats.Extract(intentEmb, id, n.Embedding, nil, nil)
		if err != nil {
			continue
		}
		steps = append(steps, shgat.PathStep{
			ID:   id,
			Kind: n.Kind,
			In: shgat.Input{
				IntentEmb:    intentEmb,
				CandidateEmb: n.Embedding,
				ContextMean:  bundle.ContextMean,
				Graph:        bundle.Graph,
				AdamicAdar:   bundle.AdamicAdar,
				Stats:        bundle.Stats,
			},
		})
	}
	return steps
}

// enqueueTraining appends a training example derived from this
// execution's outcome to the pending PER batch, for optional background
// training.
func (l *Loop) enqueueTraining(t *types.ExecutionTrace, priority float64) {
	n, ok := l.graph.Node(t.NodeID)
	if !ok {
		return
	}
	bundle, err := l.feats.Extract(t.IntentEmb, t.NodeID, n.Embedding, nil, nil)
	if err != nil {
		return
	}
	outcome := 0.0
	if t.Success {
		outcome = 1.0
	}
	l.perQueue = append(l.perQueue, shgat.TrainExample{
		Kind: n.Kind,
		In: shgat.Input{
			IntentEmb:    t.IntentEmb,
			CandidateEmb: n.Embedding,
			ContextMean:  bundle.ContextMean,
			Graph:        bundle.Graph,
			AdamicAdar:   bundle.AdamicAdar,
			Stats:        bundle.Stats,
		},
		Outcome: outcome,
	})
	_ = priority // priority currently informs sample_by_priority via the trace store, not the in-process queue
}

// DrainTrainingBatch removes and returns up to n queued training
// examples, for the background C3 training step to consume.
func (l *Loop) DrainTrainingBatch(n int) []shgat.TrainExample {
	if n > len(l.perQueue) {
		n = len(l.perQueue)
	}
	batch := l.perQueue[:n]
	l.perQueue = l.perQueue[n:]
	return batch
}

// PendingTrainingCount reports how many training examples are queued.
func (l *Loop) PendingTrainingCount() int {
	return len(l.perQueue)
}
