// Package predictor implements the two public prediction operations
// (C7): score_capabilities and predict_next_node, plus the engine-wide
// get_stats rollup. It composes C1 (hypergraph), C3 (SHGAT), C4 (DR-DSP),
// C2 (feature cache), and C5 (trace store) behind narrow, capability-
// based interfaces rather than depending on any of their concrete types
// directly: consume the interface, never the provider.
package predictor

import (
	"context"
	"math"
	"sort"

	"github.com/hyperforge/capiforge/pkg/cache"
	"github.com/hyperforge/capiforge/pkg/embed"
	"github.com/hyperforge/capiforge/pkg/engerr"
	"github.com/hyperforge/capiforge/pkg/hyperpath"
	"github.com/hyperforge/capiforge/pkg/obslog"
	"github.com/hyperforge/capiforge/pkg/shgat"
	"github.com/hyperforge/capiforge/pkg/tracestore"
	"github.com/hyperforge/capiforge/pkg/types"
	"github.com/hyperforge/capiforge/pkg/vecmath"
)

var log = obslog.WithPrefix("predictor")

// HypergraphSnapshot is the narrow read view predictor needs from
// pkg/hypergraph.Store: node/hyperedge lookups for assembling SHGAT
// input and the tool-sequence walk, plus enough summary state for
// get_stats.
type HypergraphSnapshot interface {
	hyperpath.HyperedgeSource
	Node(id types.NodeID) (*types.Node, bool)
	NodeCount() int
	PageRank() map[types.NodeID]float64
	AdamicAdar(a, b types.NodeID) float64
	NodeFeatures(id types.NodeID) (types.NodeFeatures, bool)
	HeatDiffusion(seedNodes []types.NodeID, t float64) map[types.NodeID]float64
}

// heatDiffusionTime is the diffusion time constant t passed to
// HeatDiffusion when scoring candidates against the current context, the
// t in the exp(-t*L) kernel.
const heatDiffusionTime = 1.0

// TraceRepository is the narrow view of pkg/tracestore.Repository
// predictor needs for get_stats's avg_priority/total/successful rollup.
type TraceRepository interface {
	Stats() tracestore.Stats
}

// FeatureCache is the narrow view of pkg/features.Extractor predictor
// needs for get_stats's cache hit-rate figure and for a candidate's
// historical trace statistics.
type FeatureCache interface {
	CacheStats() cache.Stats
	Stats(id types.NodeID) (types.TraceStats, error)
}

// Config tunes the predictor's routing thresholds.
type Config struct {
	ThompsonThreshold float64
	MaxConfidence     float64
}

// DefaultConfig returns the predictor's default tuning
// (thompson_threshold=0.4, max_confidence=0.9).
func DefaultConfig() Config {
	return Config{ThompsonThreshold: 0.4, MaxConfidence: 0.9}
}

// Predictor composes the engine's read-only components into the two
// public scoring operations plus get_stats.
type Predictor struct {
	cfg       Config
	graph     HypergraphSnapshot
	model     *shgat.Model
	embedder  embed.Embedder
	traces    TraceRepository
	features  FeatureCache
	costFloor float64
}

// New builds a Predictor. costFloor must match the value the hypergraph
// store's DR-DSP queries use, so incremental hyperpath distances stay
// consistent with one-shot queries here.
func New(cfg Config, graph HypergraphSnapshot, model *shgat.Model, embedder embed.Embedder, traces TraceRepository, features FeatureCache, costFloor float64) *Predictor {
	if costFloor <= 0 {
		costFloor = 0.1
	}
	return &Predictor{cfg: cfg, graph: graph, model: model, embedder: embedder, traces: traces, features: features, costFloor: costFloor}
}

// ScoredCapability is one ranked result of ScoreCapabilities.
type ScoredCapability struct {
	ID        types.NodeID
	Score     float64
	Rationale string
}

// ScoreCapabilities embeds intent, resolves context_nodes to embeddings
// by lookup, and scores against it every capability/meta-capability that
// is an endpoint of at least one hyperedge. A capability with no
// hyperedge is not scored, nor is any node listed in contextNodes.
func (p *Predictor) ScoreCapabilities(ctx context.Context, intent string, contextNodes []types.NodeID) ([]ScoredCapability, error) {
	if err := ctx.Err(); err != nil {
		return nil, engerr.New(engerr.KindCancelled, "ScoreCapabilities", err)
	}
	intentEmb, err := p.embedder.Embed(ctx, intent)
	if err != nil {
		return nil, engerr.New(engerr.KindInternal, "ScoreCapabilities", err)
	}

	contextEmbs := make([][]float32, 0, len(contextNodes))
	for _, id := range contextNodes {
		if n, ok := p.graph.Node(id); ok {
			contextEmbs = append(contextEmbs, n.Embedding)
		}
	}
	contextMean := vecmath.MeanPool(contextEmbs, p.embedder.Dimensions())
	contextClusters := p.contextClusters(contextNodes)

	candidates := p.capabilityCandidates(intentEmb, contextNodes, contextMean, contextClusters)
	scored := p.model.ScoreAllCapabilities(candidates)

	out := make([]ScoredCapability, len(scored))
	for i, s := range scored {
		out[i] = ScoredCapability{ID: s.ID, Score: s.Score, Rationale: rationale(s.HeadWeights)}
	}
	return out, nil
}

// capabilityCandidates assembles a shgat.Candidate for every node of
// Capability or MetaCapability kind, pairing each with its graph
// features, historical trace statistics, and cluster-boost eligibility.
func (p *Predictor) capabilityCandidates(intentEmb []float32, contextNodes []types.NodeID, contextMean []float32, contextClusters map[int]bool) []shgat.Candidate {
	var out []shgat.Candidate
	seen := map[types.NodeID]bool{}
	for _, ctxID := range contextNodes {
		seen[ctxID] = true // never re-suggest a node already in context
	}

	for _, id := range p.allCapabilityIDs() {
		if seen[id] {
			continue
		}
		n, ok := p.graph.Node(id)
		if !ok {
			continue
		}
		graphFeat, _ := p.graph.NodeFeatures(id)
		var adamic float64
		for _, ctxID := range contextNodes {
			if score := p.graph.AdamicAdar(ctxID, id); score > adamic {
				adamic = score
			}
		}
		heat := p.heatDiffusion(contextNodes, id)
		stats, _ := p.features.Stats(id) // zero-value TraceStats on lookup failure

		out = append(out, shgat.Candidate{
			ID:   id,
			Kind: n.Kind,
			In: shgat.Input{
				IntentEmb:              intentEmb,
				CandidateEmb:           n.Embedding,
				ContextMean:            contextMean,
				Graph:                  graphFeat,
				AdamicAdar:             adamic,
				HeatDiffusion:          heat,
				Stats:                  stats,
				InSameClusterAsContext: contextClusters[graphFeat.SpectralCluster],
			},
		})
	}
	return out
}

// allCapabilityIDs walks the hypergraph's hyperedge endpoints (the only
// enumeration predictor's narrow interface exposes) and returns the
// distinct Capability/MetaCapability IDs seen. A node that is no
// hyperedge's endpoint is not returned.
func (p *Predictor) allCapabilityIDs() []types.NodeID {
	seen := map[types.NodeID]bool{}
	var ids []types.NodeID
	add := func(id types.NodeID) {
		if seen[id] {
			return
		}
		if n, ok := p.graph.Node(id); ok && (n.Kind == types.KindCapability || n.Kind == types.KindMetaCapability) {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, e := range p.graph.AllHyperedges() {
		for _, id := range e.SourcesSlice() {
			add(id)
		}
		for _, id := range e.TargetsSlice() {
			add(id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (p *Predictor) contextClusters(contextNodes []types.NodeID) map[int]bool {
	clusters := map[int]bool{}
	for _, id := range contextNodes {
		if feat, ok := p.graph.NodeFeatures(id); ok {
			clusters[feat.SpectralCluster] = true
		}
	}
	return clusters
}

func (p *Predictor) heatDiffusion(seeds []types.NodeID, target types.NodeID) float64 {
	if len(seeds) == 0 {
		return 0
	}
	return p.graph.HeatDiffusion(seeds, heatDiffusionTime)[target]
}

// rationale composes a human-readable explanation from the dominant
// attention head (e.g. graph centrality, recency).
func rationale(headWeights []float64) string {
	if len(headWeights) == 0 {
		return "no attention signal"
	}
	best := 0
	for i, w := range headWeights {
		if w > headWeights[best] {
			best = i
		}
	}
	labels := []string{"graph centrality", "recency", "contextual fit", "sequence position"}
	if best < len(labels) {
		return labels[best]
	}
	return "attention head " + itoa(best)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

// Suggestion is predict_next_node's result.
type Suggestion struct {
	NextNode   types.NodeID
	Capability types.NodeID
	Confidence float64
	Path       []types.NodeID
}

// PredictNextNode scores capabilities, filters by the Thompson threshold,
// picks the best, then resolves the next tool either from the
// capability's own sequence or via a DR-DSP hyperpath query.
func (p *Predictor) PredictNextNode(ctx context.Context, intent string, contextNodes []types.NodeID) (*Suggestion, error) {
	scores, err := p.ScoreCapabilities(ctx, intent, contextNodes)
	if err != nil {
		return nil, err
	}

	var filtered []ScoredCapability
	for _, s := range scores {
		if s.Score >= p.cfg.ThompsonThreshold {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		log.Info("no capability met threshold", map[string]any{"intent": intent, "threshold": p.cfg.ThompsonThreshold, "candidates": len(scores)})
		return nil, nil
	}

	best := filtered[0]
	for _, s := range filtered[1:] {
		if s.Score > best.Score {
			best = s
		}
	}

	if n, ok := p.graph.Node(best.ID); ok && n.Kind == types.KindMetaCapability {
		if child, ok := p.bestChild(best.ID, scores); ok {
			log.Debug("two-level meta selection resolved to child", map[string]any{"meta": best.ID, "child": child.ID})
			best = child
		}
	}

	tools := p.capabilityTools(best.ID)
	if len(tools) == 0 {
		return &Suggestion{Capability: best.ID, Confidence: clipConfidence(best.Score, p.cfg.MaxConfidence)}, nil
	}

	lastContext := types.NodeID("")
	if len(contextNodes) > 0 {
		lastContext = contextNodes[len(contextNodes)-1]
	}

	if idx := indexOf(tools, lastContext); idx >= 0 && idx+1 < len(tools) {
		return &Suggestion{
			NextNode:   tools[idx+1],
			Capability: best.ID,
			Confidence: clipConfidence(best.Score, p.cfg.MaxConfidence),
			Path:       tools[idx+1:],
		}, nil
	}

	if lastContext == "" {
		return &Suggestion{
			NextNode:   tools[0],
			Capability: best.ID,
			Confidence: clipConfidence(best.Score, p.cfg.MaxConfidence),
			Path:       tools,
		}, nil
	}

	g, err := hyperpath.BuildGraph(p.graph)
	if err != nil {
		return nil, err
	}
	res := hyperpath.FindShortestHyperpath(g, lastContext, tools[0], p.costFloor)
	log.Debug("fell back to hyperpath search", map[string]any{"from": lastContext, "to": tools[0], "found": res.Found})

	if !res.Found {
		return &Suggestion{
			NextNode:   tools[0],
			Capability: best.ID,
			Confidence: clipConfidence(best.Score, p.cfg.MaxConfidence),
			Path:       tools,
		}, nil
	}

	next := tools[0]
	if len(res.NodeSequence) > 1 {
		next = res.NodeSequence[1]
	}
	confidence := best.Score * math.Exp(-res.TotalWeight/10)
	return &Suggestion{
		NextNode:   next,
		Capability: best.ID,
		Confidence: clipConfidence(confidence, p.cfg.MaxConfidence),
		Path:       res.NodeSequence,
	}, nil
}

func clipConfidence(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

func indexOf(s []types.NodeID, v types.NodeID) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

// capabilityTools derives capabilityID's ordered tool sequence: the
// contains-edge target set, chained by sequence edges (populated during
// learning). When no sequence edges exist among the targets the tools
// are returned in deterministic ID order.
func (p *Predictor) capabilityTools(capabilityID types.NodeID) []types.NodeID {
	members := map[types.NodeID]bool{}
	for _, e := range p.graph.AllHyperedges() {
		if e.Type != types.EdgeContains {
			continue
		}
		if _, ok := e.Sources[capabilityID]; !ok {
			continue
		}
		for id := range e.Targets {
			members[id] = true
		}
	}
	if len(members) == 0 {
		return nil
	}

	next := map[types.NodeID]types.NodeID{}
	hasIncoming := map[types.NodeID]bool{}
	for _, e := range p.graph.AllHyperedges() {
		if e.Type != types.EdgeSequence {
			continue
		}
		srcs := e.SourcesSlice()
		tgts := e.TargetsSlice()
		if len(srcs) != 1 || len(tgts) != 1 {
			continue
		}
		from, to := srcs[0], tgts[0]
		if !members[from] || !members[to] {
			continue
		}
		next[from] = to
		hasIncoming[to] = true
	}

	var ordered []types.NodeID
	var starts []types.NodeID
	for id := range members {
		if !hasIncoming[id] {
			starts = append(starts, id)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	visited := map[types.NodeID]bool{}
	for _, start := range starts {
		for cur := start; cur != "" && !visited[cur]; cur = next[cur] {
			visited[cur] = true
			ordered = append(ordered, cur)
			if _, ok := next[cur]; !ok {
				break
			}
		}
	}
	for id := range members {
		if !visited[id] {
			ordered = append(ordered, id)
		}
	}
	return ordered
}

// bestChild implements two-level meta→child selection: among metaID's
// contains-edge children, returns the one with the highest score from
// an already-computed ScoreCapabilities result. Used when the flat
// argmax over ScoreCapabilities lands on a meta-capability and the
// intent is better resolved by a semantically distinct child than by
// the meta itself.
func (p *Predictor) bestChild(metaID types.NodeID, scores []ScoredCapability) (ScoredCapability, bool) {
	children := map[types.NodeID]bool{}
	for _, id := range p.capabilityTools(metaID) {
		children[id] = true
	}
	if len(children) == 0 {
		return ScoredCapability{}, false
	}
	var best ScoredCapability
	found := false
	for _, s := range scores {
		if !children[s.ID] {
			continue
		}
		if !found || s.Score > best.Score {
			best = s
			found = true
		}
	}
	return best, found
}

// EngineStats is get_stats's result.
type EngineStats struct {
	NodeCount        int
	EdgeCount        int
	AvgPageRank      float64
	AvgTracePriority float64
	TotalTraces      int
	SuccessfulTraces int
	CacheHitRate     float64
}

// GetStats assembles the overall engine rollup from every component's
// summary view.
func (p *Predictor) GetStats() EngineStats {
	pr := p.graph.PageRank()
	var sum float64
	for _, v := range pr {
		sum += v
	}
	avgPR := 0.0
	if len(pr) > 0 {
		avgPR = sum / float64(len(pr))
	}

	traceStats := p.traces.Stats()
	hitRate := 0.0
	if p.features != nil {
		hitRate = p.features.CacheStats().HitRate
	}

	return EngineStats{
		NodeCount:        p.graph.NodeCount(),
		EdgeCount:        len(p.graph.AllHyperedges()),
		AvgPageRank:      avgPR,
		AvgTracePriority: traceStats.AvgPriority,
		TotalTraces:      traceStats.Total,
		SuccessfulTraces: traceStats.Successful,
		CacheHitRate:     hitRate,
	}
}
