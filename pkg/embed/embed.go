// Package embed defines the Embedder boundary CapiForge uses to turn
// natural-language intent and node descriptions into fixed-dimension unit
// vectors. Producing real embeddings (calling out to an Ollama/OpenAI
// client) is outside this package's scope: it exposes only the interface
// plus a deterministic stand-in suitable for tests and the CLI demo.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
)

// Embedder generates unit-norm vector embeddings from text. Real
// implementations (Ollama, OpenAI, ...) live outside this module; the
// core only ever depends on this interface.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector dimension.
	Dimensions() int
}

// Deterministic is a hash-based stand-in Embedder for tests and the CLI
// demo. It has no semantic understanding of text: it is a stable,
// dependency-free way to exercise the scoring and learning pipeline
// without a live model. Vectors are deterministic in their text input and
// unit-normalized, matching the contract real embedders must satisfy.
type Deterministic struct {
	dims int
}

// NewDeterministic returns a Deterministic embedder of the given
// dimension (default 1024).
func NewDeterministic(dims int) *Deterministic {
	if dims <= 0 {
		dims = 1024
	}
	return &Deterministic{dims: dims}
}

func (d *Deterministic) Dimensions() int { return d.dims }

func (d *Deterministic) Embed(_ context.Context, text string) ([]float32, error) {
	return deterministicVector(text, d.dims), nil
}

func (d *Deterministic) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = deterministicVector(t, d.dims)
	}
	return out, nil
}

// deterministicVector expands a SHA-256 hash of text into dims floats via
// a counter-mode stream, then L2-normalizes the result.
func deterministicVector(text string, dims int) []float32 {
	v := make([]float32, dims)
	var counter uint32
	for i := 0; i < dims; i += 8 {
		h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", text, counter)))
		counter++
		for j := 0; j < 8 && i+j < dims; j++ {
			bits := binary.BigEndian.Uint32(h[j*4 : j*4+4])
			// Map uint32 into [-1, 1).
			v[i+j] = float32(bits)/float32(math.MaxUint32)*2 - 1
		}
	}
	normalize(v)
	return v
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
