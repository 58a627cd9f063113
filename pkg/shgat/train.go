package shgat

import (
	"math"

	"github.com/hyperforge/capiforge/pkg/obslog"
	"github.com/hyperforge/capiforge/pkg/types"
)

var log = obslog.WithPrefix("shgat")

// TrainExample is one labeled (intent, candidate, outcome) observation fed
// to TrainBatch. Context is carried in In.ContextMean/InSameClusterAsContext
// by the caller, matching ScoreCandidate's input shape.
type TrainExample struct {
	Kind    types.Kind
	In      Input
	Outcome float64 // 0 or 1
}

// TrainResult reports the batch's log-loss and classification accuracy
// (threshold 0.5) before the weight update is applied.
type TrainResult struct {
	Loss     float64
	Accuracy float64
}

// TrainBatch takes EpochsPerBatch gradient-descent steps per level
// touched by the batch, updating (Wo, b) against log-loss with the
// heads' current (fixed) q/k/v projections as features. The reported
// loss/accuracy are from the final epoch. The update is applied
// atomically per level per epoch; scoring and training on the same
// level are mutually serialized by levelModel.mu.
func (m *Model) TrainBatch(examples []TrainExample) TrainResult {
	if len(examples) == 0 {
		return TrainResult{}
	}

	byLevel := make(map[types.Kind][]TrainExample)
	for _, ex := range examples {
		byLevel[ex.Kind] = append(byLevel[ex.Kind], ex)
	}

	epochs := m.cfg.EpochsPerBatch
	if epochs < 1 {
		epochs = 1
	}

	var totalLoss, totalCorrect float64
	for kind, batch := range byLevel {
		lm := m.levelFor(kind)
		var loss, correct float64
		for epoch := 0; epoch < epochs; epoch++ {
			loss, correct = lm.trainStep(batch, m.cfg.LearningRate)
		}
		totalLoss += loss * float64(len(batch))
		totalCorrect += correct
	}

	n := float64(len(examples))
	result := TrainResult{Loss: totalLoss / n, Accuracy: totalCorrect / n}
	log.Info("train batch applied", map[string]any{"examples": len(examples), "levels": len(byLevel), "epochs": epochs, "loss": result.Loss, "accuracy": result.Accuracy})
	return result
}

func (lm *levelModel) trainStep(batch []TrainExample, lr float64) (avgLoss, correct float64) {
	if lr <= 0 {
		lr = 0.01
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	dim := lm.Wo.RawRowView(0)
	gradWo := make([]float64, len(dim))
	var gradB float64
	var lossSum float64

	for _, ex := range batch {
		score, _, concat := lm.forward(ex.In)
		const eps = 1e-9
		p := math.Min(math.Max(score, eps), 1-eps)
		if ex.Outcome >= 1 {
			lossSum -= math.Log(p)
		} else {
			lossSum -= math.Log(1 - p)
		}
		if (score >= 0.5 && ex.Outcome >= 1) || (score < 0.5 && ex.Outcome < 1) {
			correct++
		}

		grad := score - ex.Outcome // d(log-loss)/d(logit) for sigmoid output
		for i := 0; i < concat.Len(); i++ {
			gradWo[i] += grad * concat.AtVec(i)
		}
		gradB += grad
	}

	n := float64(len(batch))
	for i, g := range gradWo {
		dim[i] -= lr / n * g
	}
	lm.b -= lr / n * gradB

	return lossSum / n, correct
}
