package shgat

import (
	"math"
	"testing"

	"github.com/hyperforge/capiforge/pkg/config"
	"github.com/hyperforge/capiforge/pkg/types"
)

func testModel(t *testing.T) *Model {
	t.Helper()
	cfg := config.Default().SHGAT
	return New(cfg, 8)
}

func unitVec(dim int, hot int) []float32 {
	v := make([]float32, dim)
	v[hot%dim] = 1
	return v
}

func baseInput() Input {
	return Input{
		IntentEmb:    unitVec(8, 0),
		CandidateEmb: unitVec(8, 1),
		Stats:        types.DefaultTraceStats,
	}
}

func TestScoreCandidateInRange(t *testing.T) {
	m := testModel(t)
	r := m.ScoreCandidate(types.KindTool, baseInput())
	if r.Score < 0 || r.Score > 1 {
		t.Fatalf("expected score in [0,1], got %f", r.Score)
	}
	if len(r.HeadWeights) != m.cfg.NumHeads {
		t.Fatalf("expected %d head weights, got %d", m.cfg.NumHeads, len(r.HeadWeights))
	}
	var sum float64
	for _, w := range r.HeadWeights {
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("expected head weights to sum to 1 (softmax), got %f", sum)
	}
}

func TestContextBoostIncreasesScoreForAlignedCandidate(t *testing.T) {
	m := testModel(t)
	in := baseInput()
	without := m.ScoreCandidate(types.KindTool, in).Score

	in.ContextMean = in.CandidateEmb // perfectly aligned with candidate
	with := m.ScoreCandidate(types.KindTool, in).Score

	if with <= without {
		t.Errorf("expected context boost to raise score: without=%f with=%f", without, with)
	}
}

func TestClusterBoostAddsConfiguredAmount(t *testing.T) {
	m := testModel(t)
	in := baseInput()
	without := m.ScoreCandidate(types.KindTool, in).Score

	in.InSameClusterAsContext = true
	with := m.ScoreCandidate(types.KindTool, in).Score

	want := math.Min(1, without+m.cfg.ClusterBoost)
	if math.Abs(with-want) > 1e-9 {
		t.Errorf("expected cluster boost to add %f (capped at 1): without=%f with=%f", m.cfg.ClusterBoost, without, with)
	}
}

func TestScoreAllCapabilitiesSortsDescending(t *testing.T) {
	m := testModel(t)
	candidates := []Candidate{
		{ID: "a", Kind: types.KindCapability, In: baseInput()},
		{ID: "b", Kind: types.KindCapability, In: Input{IntentEmb: unitVec(8, 0), CandidateEmb: unitVec(8, 0), Stats: types.DefaultTraceStats}},
	}
	scored := m.ScoreAllCapabilities(candidates)
	if len(scored) != 2 {
		t.Fatalf("expected 2 results, got %d", len(scored))
	}
	if scored[0].Score < scored[1].Score {
		t.Errorf("expected descending order, got %v", scored)
	}
}

func TestPredictPathSuccessColdStartOnEmptyPath(t *testing.T) {
	m := testModel(t)
	if got := m.PredictPathSuccess(nil); got != 0.5 {
		t.Errorf("expected cold-start 0.5, got %f", got)
	}
}

func TestPredictPathSuccessAveragesSteps(t *testing.T) {
	m := testModel(t)
	step := PathStep{ID: "a", Kind: types.KindTool, In: baseInput()}
	got := m.PredictPathSuccess([]PathStep{step, step})
	single := m.ScoreCandidate(types.KindTool, baseInput()).Score
	if math.Abs(got-single) > 1e-9 {
		t.Errorf("expected uniform average over identical steps to equal single score, got %f vs %f", got, single)
	}
}

func TestTrainBatchReducesLossOverIterations(t *testing.T) {
	m := testModel(t)
	examples := []TrainExample{
		{Kind: types.KindTool, In: baseInput(), Outcome: 1},
		{Kind: types.KindTool, In: baseInput(), Outcome: 1},
	}

	first := m.TrainBatch(examples)
	var last TrainResult
	for i := 0; i < 20; i++ {
		last = m.TrainBatch(examples)
	}
	if last.Loss > first.Loss {
		t.Errorf("expected loss to decrease after repeated training on a consistent label, first=%f last=%f", first.Loss, last.Loss)
	}
}

func TestTrainBatchEmptyIsNoop(t *testing.T) {
	m := testModel(t)
	got := m.TrainBatch(nil)
	if got != (TrainResult{}) {
		t.Errorf("expected zero-value result for empty batch, got %+v", got)
	}
}

func TestBlendModeHeatDiffusionReturnsHeatValue(t *testing.T) {
	got := Blend(BlendHeatDiffusion, 0.9, 0.1, 0.42, 0.7)
	if got != 0.42 {
		t.Errorf("expected heat_diffusion mode to report heat value, got %f", got)
	}
}

func TestBlendModeConvexCombinationClampsAlpha(t *testing.T) {
	got := Blend(BlendEmbeddingsHybrides, 1.0, 0.0, 0, 0.3) // alpha below 0.5 floor
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("expected alpha clamped to 0.5 giving 0.5*1+0.5*0=0.5, got %f", got)
	}
}
