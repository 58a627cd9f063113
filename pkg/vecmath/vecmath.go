// Package vecmath provides small vector-similarity helpers shared by the
// feature extractor (C2) and SHGAT scorer (C3): cosine similarity and
// mean-pooling over variable-length embedding lists, on float32
// embeddings throughout. Dot/norm arithmetic runs on gonum's floats
// package rather than hand-rolled loops.
package vecmath

import "gonum.org/v1/gonum/floats"

// Cosine returns the cosine similarity of a and b, or 0 if either is
// empty, the lengths differ, or either vector has zero norm.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	fa, fb := toFloat64(a), toFloat64(b)
	normA, normB := floats.Norm(fa, 2), floats.Norm(fb, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	return floats.Dot(fa, fb) / (normA * normB)
}

// MeanPool averages a set of equal-dimension embeddings, returning a
// zero-vector of the given dimension if vectors is empty.
func MeanPool(vectors [][]float32, dim int) []float32 {
	sum := make([]float64, dim)
	if len(vectors) == 0 {
		out := make([]float32, dim)
		return out
	}
	for _, v := range vectors {
		n := dim
		if len(v) < n {
			n = len(v)
		}
		floats.Add(sum[:n], toFloat64(v[:n]))
	}
	floats.Scale(1/float64(len(vectors)), sum)

	out := make([]float32, dim)
	for i, x := range sum {
		out[i] = float32(x)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
