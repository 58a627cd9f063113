// Package shgat implements the SHGAT scorer (C3): a small, CPU-tractable
// multi-head attention model that scores a candidate capability against an
// intent embedding and its surrounding hypergraph/trace-statistics signals.
// One parameter set (Wq, Wk, Wv, Wo, b) per hierarchy level (tool,
// capability, meta-capability) lets the model weight signals differently
// for each. Linear algebra runs on gonum's `mat` package rather than a
// hand-rolled implementation; cosine similarity runs through pkg/vecmath.
package shgat

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/hyperforge/capiforge/pkg/config"
	"github.com/hyperforge/capiforge/pkg/types"
	"github.com/hyperforge/capiforge/pkg/vecmath"
)

// graphFeatureCount is the number of scalar graph signals folded into the
// value projection alongside the candidate embedding and trace stats
// (pagerank, community id, spectral cluster, adamic-adar, heat diffusion).
const graphFeatureCount = 5

// traceStatsCount is the number of scalar fields in types.TraceStats.
const traceStatsCount = 8

// Input bundles everything score_candidate needs for one (intent,
// candidate) pair. Callers (pkg/predictor) are responsible for assembling
// it from pkg/hypergraph and pkg/features.
type Input struct {
	IntentEmb    []float32
	CandidateEmb []float32
	ContextMean  []float32 // mean-pooled context embeddings; zero vector if no context

	Graph         types.NodeFeatures
	AdamicAdar    float64
	HeatDiffusion float64
	Stats         types.TraceStats

	// InSameClusterAsContext is true when the candidate's spectral
	// cluster matches at least one context node's cluster (cluster-boost).
	InSameClusterAsContext bool
}

// Result is the output of one forward pass. ScoreCandidate does not fill
// in BlendScore or BlendMode; they stay at their zero values.
type Result struct {
	Score       float64
	HeadWeights []float64
	BlendScore  float64
	BlendMode   BlendMode
}

// BlendMode selects how Blend combines the semantic (embedding) and
// graph-topology signals. It does not affect the learned Wq/Wk/Wv/Wo/b
// pipeline.
type BlendMode string

const (
	BlendEmbeddingsHybrides BlendMode = "embeddings_hybrides"
	BlendHeatDiffusion      BlendMode = "heat_diffusion"
	BlendHeatHierarchical   BlendMode = "heat_hierarchical"
	BlendBayesian           BlendMode = "bayesian"
)

// Blend combines a semantic similarity score and a graph-topology score
// per the selected mode. heat_diffusion reports the heat value
// directly; all others are the convex combination
// alpha*semantic + (1-alpha)*graph, with alpha clamped to [0.5, 1.0].
func Blend(mode BlendMode, semantic, graph, heat, alpha float64) float64 {
	if alpha < 0.5 {
		alpha = 0.5
	}
	if alpha > 1.0 {
		alpha = 1.0
	}
	switch mode {
	case BlendHeatDiffusion:
		return clamp01(heat)
	default:
		return clamp01(alpha*semantic + (1-alpha)*graph)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// headParams is one attention head's learned projections.
type headParams struct {
	Wq *mat.Dense // hiddenDim x embeddingDim
	Wk *mat.Dense // hiddenDim x embeddingDim
	Wv *mat.Dense // hiddenDim x featureDim
}

// levelModel is the (Wq, Wk, Wv, Wo, b) parameter set for one node kind.
type levelModel struct {
	mu sync.RWMutex

	heads []headParams
	Wo    *mat.Dense // 1 x (hiddenDim*numHeads)
	b     float64

	embeddingDim int
	hiddenDim    int
	featureDim   int
}

// Model holds one levelModel per hierarchy level and the shared scoring
// config (num_heads, hidden_dim, boost coefficients).
type Model struct {
	cfg          config.SHGATConfig
	embeddingDim int

	levels map[types.Kind]*levelModel
}

// New builds a Model with freshly (deterministically) initialized
// parameters for the Tool, Capability, and MetaCapability levels.
func New(cfg config.SHGATConfig, embeddingDim int) *Model {
	if cfg.NumHeads <= 0 {
		cfg.NumHeads = 4
	}
	if cfg.HiddenDim <= 0 {
		cfg.HiddenDim = 32
	}
	if embeddingDim <= 0 {
		embeddingDim = 1024
	}

	m := &Model{cfg: cfg, embeddingDim: embeddingDim, levels: make(map[types.Kind]*levelModel)}
	seed := uint64(1)
	for _, k := range []types.Kind{types.KindTool, types.KindCapability, types.KindMetaCapability} {
		m.levels[k] = newLevelModel(cfg.NumHeads, cfg.HiddenDim, embeddingDim, &seed)
	}
	return m
}

func newLevelModel(numHeads, hiddenDim, embeddingDim int, seed *uint64) *levelModel {
	featureDim := embeddingDim*2 + graphFeatureCount + traceStatsCount
	lm := &levelModel{
		heads:        make([]headParams, numHeads),
		embeddingDim: embeddingDim,
		hiddenDim:    hiddenDim,
		featureDim:   featureDim,
	}
	for h := 0; h < numHeads; h++ {
		lm.heads[h] = headParams{
			Wq: initMatrix(hiddenDim, embeddingDim, seed),
			Wk: initMatrix(hiddenDim, embeddingDim, seed),
			Wv: initMatrix(hiddenDim, featureDim, seed),
		}
	}
	lm.Wo = initMatrix(1, hiddenDim*numHeads, seed)
	lm.b = 0
	return lm
}

// initMatrix fills an r x c matrix with small values from a deterministic
// xorshift64 stream, scaled by 1/sqrt(c) (Xavier-style fan-in scaling), so
// model construction never depends on an external RNG.
func initMatrix(r, c int, seed *uint64) *mat.Dense {
	scale := 1.0 / math.Sqrt(float64(c))
	data := make([]float64, r*c)
	for i := range data {
		*seed ^= *seed << 13
		*seed ^= *seed >> 7
		*seed ^= *seed << 17
		u := float64(*seed%1_000_000) / 1_000_000.0 // [0, 1)
		data[i] = (u*2 - 1) * scale
	}
	return mat.NewDense(r, c, data)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func zeroPad(v []float32, dim int) []float64 {
	out := make([]float64, dim)
	for i := 0; i < dim && i < len(v); i++ {
		out[i] = float64(v[i])
	}
	return out
}

func featureVector(in Input, embeddingDim int) []float64 {
	out := make([]float64, 0, embeddingDim*2+graphFeatureCount+traceStatsCount)
	out = append(out, zeroPad(in.CandidateEmb, embeddingDim)...)
	out = append(out,
		in.Graph.PageRank,
		float64(in.Graph.CommunityID),
		float64(in.Graph.SpectralCluster),
		in.AdamicAdar,
		in.HeatDiffusion,
	)
	out = append(out,
		in.Stats.HistoricalSuccessRate,
		in.Stats.ContextualSuccessRate,
		in.Stats.IntentSimilarSuccessRate,
		in.Stats.RecencyScore,
		in.Stats.UsageFrequency,
		in.Stats.SequencePosition,
		in.Stats.PathVariance,
		in.Stats.AvgPathLengthToSuccess,
	)
	out = append(out, zeroPad(in.ContextMean, embeddingDim)...)
	return out
}

// forward runs one attention pass, returning the sigmoid score, the
// per-head softmax weights, and the concatenated weighted value vector
// (needed by TrainBatch to take a gradient step on Wo/b).
func (lm *levelModel) forward(in Input) (score float64, headWeights []float64, concat *mat.VecDense) {
	intentVec := mat.NewVecDense(lm.embeddingDim, zeroPad(in.IntentEmb, lm.embeddingDim))
	candVec := mat.NewVecDense(lm.embeddingDim, zeroPad(in.CandidateEmb, lm.embeddingDim))
	featVec := mat.NewVecDense(lm.featureDim, featureVector(in, lm.embeddingDim))

	numHeads := len(lm.heads)
	raw := make([]float64, numHeads)
	vs := make([]*mat.VecDense, numHeads)
	sqrtH := math.Sqrt(float64(lm.hiddenDim))

	for h, hp := range lm.heads {
		q := mat.NewVecDense(lm.hiddenDim, nil)
		q.MulVec(hp.Wq, intentVec)
		k := mat.NewVecDense(lm.hiddenDim, nil)
		k.MulVec(hp.Wk, candVec)
		v := mat.NewVecDense(lm.hiddenDim, nil)
		v.MulVec(hp.Wv, featVec)
		vs[h] = v

		raw[h] = mat.Dot(q, k) / sqrtH
	}

	alphas := softmax(raw)

	cat := mat.NewVecDense(numHeads*lm.hiddenDim, nil)
	for h := 0; h < numHeads; h++ {
		for d := 0; d < lm.hiddenDim; d++ {
			cat.SetVec(h*lm.hiddenDim+d, alphas[h]*vs[h].AtVec(d))
		}
	}

	out := mat.Dot(lm.Wo.RowView(0), cat) + lm.b
	return sigmoid(out), alphas, cat
}

func softmax(xs []float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	max := xs[0]
	for _, x := range xs[1:] {
		if x > max {
			max = x
		}
	}
	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		out[i] = math.Exp(x - max)
		sum += out[i]
	}
	if sum == 0 {
		uniform := 1.0 / float64(len(xs))
		for i := range out {
			out[i] = uniform
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func sigmoid(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }

// ScoreCandidate runs the forward pass for one candidate, applying the
// context-boost and cluster-boost additive coefficients on top of the
// learned score, clamped to [0, 1].
func (m *Model) ScoreCandidate(kind types.Kind, in Input) Result {
	lm := m.levelFor(kind)
	lm.mu.RLock()
	score, heads, _ := lm.forward(in)
	lm.mu.RUnlock()

	if len(in.ContextMean) > 0 && len(in.CandidateEmb) > 0 {
		score += m.cfg.ContextBoost * vecmath.Cosine(in.CandidateEmb, in.ContextMean)
	}
	if in.InSameClusterAsContext {
		score += m.cfg.ClusterBoost
	}
	score = clamp01(score)

	return Result{Score: score, HeadWeights: heads}
}

func (m *Model) levelFor(kind types.Kind) *levelModel {
	if lm, ok := m.levels[kind]; ok {
		return lm
	}
	return m.levels[types.KindTool]
}

// Candidate pairs a node ID with its kind and assembled scoring input, the
// unit of work for ScoreAllCapabilities.
type Candidate struct {
	ID   types.NodeID
	Kind types.Kind
	In   Input
}

// Scored is one entry of ScoreAllCapabilities' ranked output.
type Scored struct {
	ID          types.NodeID
	Score       float64
	HeadWeights []float64
}

// ScoreAllCapabilities scores every candidate and returns them sorted by
// descending score.
func (m *Model) ScoreAllCapabilities(candidates []Candidate) []Scored {
	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		r := m.ScoreCandidate(c.Kind, c.In)
		out[i] = Scored{ID: c.ID, Score: r.Score, HeadWeights: r.HeadWeights}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// PathStep is one node along an executed path, with its kind and
// pre-assembled scoring input.
type PathStep struct {
	ID   types.NodeID
	Kind types.Kind
	In   Input
}

// PredictPathSuccess returns the uniform-weighted average of per-node
// scores along path. An empty path is cold-start and returns 0.5.
func (m *Model) PredictPathSuccess(path []PathStep) float64 {
	if len(path) == 0 {
		return 0.5
	}
	var sum float64
	for _, step := range path {
		sum += m.ScoreCandidate(step.Kind, step.In).Score
	}
	return sum / float64(len(path))
}
