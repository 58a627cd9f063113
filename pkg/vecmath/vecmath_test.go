package vecmath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func approxEqual(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func TestCosineIdenticalVectors(t *testing.T) {
	v := []float32{1, 0, 0}
	assert.True(t, approxEqual(Cosine(v, v), 1.0, 1e-9))
}

func TestCosineOrthogonalVectors(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.True(t, approxEqual(Cosine(a, b), 0.0, 1e-9))
}

func TestCosineMismatchedLengthReturnsZero(t *testing.T) {
	assert.Zero(t, Cosine([]float32{1, 2}, []float32{1}))
}

func TestCosineZeroVectorReturnsZero(t *testing.T) {
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestMeanPoolAverages(t *testing.T) {
	vectors := [][]float32{{1, 1}, {3, 3}}
	got := MeanPool(vectors, 2)
	assert.Equal(t, []float32{2, 2}, got)
}

func TestMeanPoolEmptyReturnsZeroVector(t *testing.T) {
	got := MeanPool(nil, 3)
	assert.Equal(t, []float32{0, 0, 0}, got)
}
