// Package features implements the feature extractor (C2): per-tool
// TraceStats derived from the trace store, a TTL+LRU cache over them
// (pkg/cache), and a recency half-life decay (pkg/decay).
package features

import (
	"sort"
	"time"

	"github.com/hyperforge/capiforge/pkg/cache"
	"github.com/hyperforge/capiforge/pkg/decay"
	"github.com/hyperforge/capiforge/pkg/types"
	"github.com/hyperforge/capiforge/pkg/vecmath"
)

// TraceSource is the narrow read boundary the extractor needs from the
// trace store: the full set of recorded executions. The trace store
// (pkg/tracestore) satisfies this directly; tests use an in-memory slice.
type TraceSource interface {
	AllTraces() ([]*types.ExecutionTrace, error)
}

// GraphSignals supplies the non-trace-derived half of a feature bundle:
// the hypergraph's derived per-node quantities and a topology-based
// similarity score between two nodes. The hypergraph store (pkg/hypergraph)
// satisfies this.
type GraphSignals interface {
	NodeFeatures(id types.NodeID) (types.NodeFeatures, bool)
	AdamicAdar(a, b types.NodeID) float64
}

// IntentSimilarityThreshold is the cosine threshold for
// intent_similar_success_rate.
const IntentSimilarityThreshold = 0.7

// Config controls cache sizing, minimum sample size, and recency
// half-life.
type Config struct {
	CacheTTL         time.Duration
	MinSamples       int
	RecencyHalfLifeH float64
	MaxCacheEntries  int
}

// DefaultConfig returns the extractor's default tuning: 5 min TTL, a
// minimum sample size of 5 traces, 24h half-life, 1000-entry cache.
func DefaultConfig() Config {
	return Config{
		CacheTTL:         5 * time.Minute,
		MinSamples:       5,
		RecencyHalfLifeH: 24,
		MaxCacheEntries:  1000,
	}
}

// Extractor computes and caches TraceStats, and assembles the combined
// feature bundle SHGAT scores against.
type Extractor struct {
	cfg    Config
	traces TraceSource
	graph  GraphSignals
	cache  *cache.Cache
	decay  *decay.Config
}

// New builds an Extractor over the given trace source and graph-signal
// provider.
func New(cfg Config, traces TraceSource, graph GraphSignals) *Extractor {
	return &Extractor{
		cfg:    cfg,
		traces: traces,
		graph:  graph,
		cache:  cache.New(cfg.MaxCacheEntries, cfg.CacheTTL),
		decay:  &decay.Config{HalfLifeHours: cfg.RecencyHalfLifeH},
	}
}

// Stats returns the cached TraceStats for id if fresh, else recomputes
// over the full trace set.
func (e *Extractor) Stats(id types.NodeID) (types.TraceStats, error) {
	if cached, ok := e.cache.Get(string(id)); ok {
		return cached.(types.TraceStats), nil
	}

	all, err := e.traces.AllTraces()
	if err != nil {
		return types.TraceStats{}, err
	}

	stats := e.computeStats(id, all, nil)
	e.cache.Put(string(id), stats)
	return stats, nil
}

// BatchStats computes TraceStats for every id in one pass over the trace
// set, populating the cache for each.
func (e *Extractor) BatchStats(ids []types.NodeID) (map[types.NodeID]types.TraceStats, error) {
	all, err := e.traces.AllTraces()
	if err != nil {
		return nil, err
	}

	out := make(map[types.NodeID]types.TraceStats, len(ids))
	for _, id := range ids {
		stats := e.computeStats(id, all, nil)
		e.cache.Put(string(id), stats)
		out[id] = stats
	}
	return out, nil
}

// Invalidate drops the cached stats for id, forcing recomputation on next
// access (called by the learning loop after folding a new trace in).
func (e *Extractor) Invalidate(id types.NodeID) {
	e.cache.Remove(string(id))
}

// CacheStats exposes the underlying cache's hit-rate telemetry.
func (e *Extractor) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// TraceFeatureBundle pairs an intent/candidate embedding pair with the
// candidate's trace statistics and graph features, ready for SHGAT's
// attention forward pass.
type TraceFeatureBundle struct {
	IntentEmb    []float32
	CandidateEmb []float32
	ContextMean  []float32
	Stats        types.TraceStats
	Graph        types.NodeFeatures
	AdamicAdar   float64
}

// Extract assembles a TraceFeatureBundle for a candidate node, pairing its
// stats, graph features, and Adamic-Adar topology score against
// contextIDs with the intent/candidate embeddings and mean-pooled context.
// candidateID is threaded through alongside candidateEmb since stats/graph
// lookups are keyed by node identity, not embedding.
func (e *Extractor) Extract(intentEmb []float32, candidateID types.NodeID, candidateEmb []float32, contextIDs []types.NodeID, contextEmbs [][]float32) (TraceFeatureBundle, error) {
	stats, err := e.statsWithContext(candidateID, contextIDs, intentEmb)
	if err != nil {
		return TraceFeatureBundle{}, err
	}

	graphFeat, _ := e.graph.NodeFeatures(candidateID)

	var adamic float64
	for _, ctxID := range contextIDs {
		if score := e.graph.AdamicAdar(ctxID, candidateID); score > adamic {
			adamic = score
		}
	}

	return TraceFeatureBundle{
		IntentEmb:    intentEmb,
		CandidateEmb: candidateEmb,
		ContextMean:  vecmath.MeanPool(contextEmbs, len(candidateEmb)),
		Stats:        stats,
		Graph:        graphFeat,
		AdamicAdar:   adamic,
	}, nil
}

// statsWithContext recomputes stats (bypassing the plain cache, since
// contextual/intent-similar rates are query-specific) when contextIDs or
// intentEmb are supplied; otherwise defers to the cached Stats path.
func (e *Extractor) statsWithContext(id types.NodeID, contextIDs []types.NodeID, intentEmb []float32) (types.TraceStats, error) {
	if len(contextIDs) == 0 && len(intentEmb) == 0 {
		return e.Stats(id)
	}
	all, err := e.traces.AllTraces()
	if err != nil {
		return types.TraceStats{}, err
	}
	return e.computeStats(id, all, &queryContext{contextIDs: contextIDs, intentEmb: intentEmb}), nil
}

type queryContext struct {
	contextIDs []types.NodeID
	intentEmb  []float32
}

func (e *Extractor) computeStats(id types.NodeID, all []*types.ExecutionTrace, qc *queryContext) types.TraceStats {
	mentioning := tracesContaining(all, id)
	if len(mentioning) < e.cfg.MinSamples {
		return types.DefaultTraceStats
	}

	stats := types.TraceStats{
		ComputedAt: time.Now(),
		SampleSize: len(mentioning),
	}

	stats.HistoricalSuccessRate = successRate(mentioning)
	stats.RecencyScore = e.recencyScore(mentioning)
	stats.UsageFrequency = usageFrequency(all, id)
	stats.SequencePosition = sequencePosition(mentioning, id)
	stats.AvgPathLengthToSuccess, stats.PathVariance = pathLengthStats(mentioning, id)

	if qc != nil && len(qc.contextIDs) > 0 {
		stats.ContextualSuccessRate = contextualSuccessRate(mentioning, qc.contextIDs, stats.HistoricalSuccessRate)
	} else {
		stats.ContextualSuccessRate = stats.HistoricalSuccessRate
	}

	if qc != nil && len(qc.intentEmb) > 0 {
		if rate, ok := intentSimilarSuccessRate(mentioning, qc.intentEmb); ok {
			stats.IntentSimilarSuccessRate = rate
		} else {
			stats.IntentSimilarSuccessRate = types.DefaultTraceStats.IntentSimilarSuccessRate
		}
	} else {
		stats.IntentSimilarSuccessRate = types.DefaultTraceStats.IntentSimilarSuccessRate
	}

	return stats
}

func tracesContaining(all []*types.ExecutionTrace, id types.NodeID) []*types.ExecutionTrace {
	out := make([]*types.ExecutionTrace, 0, len(all))
	for _, tr := range all {
		if containsNode(tr.ExecutedPath, id) {
			out = append(out, tr)
		}
	}
	return out
}

func containsNode(path []types.NodeID, id types.NodeID) bool {
	for _, n := range path {
		if n == id {
			return true
		}
	}
	return false
}

func successRate(traces []*types.ExecutionTrace) float64 {
	if len(traces) == 0 {
		return types.DefaultTraceStats.HistoricalSuccessRate
	}
	var successes int
	for _, tr := range traces {
		if tr.Success {
			successes++
		}
	}
	return float64(successes) / float64(len(traces))
}

func contextualSuccessRate(traces []*types.ExecutionTrace, contextIDs []types.NodeID, fallback float64) float64 {
	matching := make([]*types.ExecutionTrace, 0, len(traces))
	for _, tr := range traces {
		for _, ctx := range contextIDs {
			if containsNode(tr.ExecutedPath, ctx) {
				matching = append(matching, tr)
				break
			}
		}
	}
	if len(matching) == 0 {
		return fallback
	}
	return successRate(matching)
}

func intentSimilarSuccessRate(traces []*types.ExecutionTrace, intentEmb []float32) (float64, bool) {
	matching := make([]*types.ExecutionTrace, 0, len(traces))
	for _, tr := range traces {
		if len(tr.IntentEmb) == 0 {
			continue
		}
		if vecmath.Cosine(tr.IntentEmb, intentEmb) >= IntentSimilarityThreshold {
			matching = append(matching, tr)
		}
	}
	if len(matching) == 0 {
		return 0, false
	}
	return successRate(matching), true
}

func (e *Extractor) recencyScore(traces []*types.ExecutionTrace) float64 {
	var latest time.Time
	for _, tr := range traces {
		if tr.FinishedAt.After(latest) {
			latest = tr.FinishedAt
		}
	}
	if latest.IsZero() {
		return types.DefaultTraceStats.RecencyScore
	}
	hours := time.Since(latest).Hours()
	return e.decay.RecencyScore(hours)
}

func usageFrequency(all []*types.ExecutionTrace, id types.NodeID) float64 {
	counts := make(map[types.NodeID]int)
	for _, tr := range all {
		seen := make(map[types.NodeID]bool)
		for _, n := range tr.ExecutedPath {
			if !seen[n] {
				counts[n]++
				seen[n] = true
			}
		}
	}

	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	if max == 0 {
		return types.DefaultTraceStats.UsageFrequency
	}
	return float64(counts[id]) / float64(max)
}

func sequencePosition(traces []*types.ExecutionTrace, id types.NodeID) float64 {
	var sum float64
	var n int
	for _, tr := range traces {
		l := len(tr.ExecutedPath)
		if l <= 1 {
			continue
		}
		for pos, node := range tr.ExecutedPath {
			if node == id {
				sum += float64(pos) / float64(l-1)
				n++
			}
		}
	}
	if n == 0 {
		return types.DefaultTraceStats.SequencePosition
	}
	return sum / float64(n)
}

func pathLengthStats(traces []*types.ExecutionTrace, id types.NodeID) (mean, variance float64) {
	var stepsToEnd []float64
	for _, tr := range traces {
		if !tr.Success {
			continue
		}
		l := len(tr.ExecutedPath)
		for pos, node := range tr.ExecutedPath {
			if node == id {
				stepsToEnd = append(stepsToEnd, float64(l-1-pos))
			}
		}
	}
	if len(stepsToEnd) == 0 {
		return types.DefaultTraceStats.AvgPathLengthToSuccess, types.DefaultTraceStats.PathVariance
	}

	sort.Float64s(stepsToEnd)
	var sum float64
	for _, s := range stepsToEnd {
		sum += s
	}
	mean = sum / float64(len(stepsToEnd))

	var sqDiff float64
	for _, s := range stepsToEnd {
		d := s - mean
		sqDiff += d * d
	}
	variance = sqDiff / float64(len(stepsToEnd))
	return mean, variance
}
