// Package embeddings provides utilities for embedding vectors
// (dimension checks, L2 normalization, cosine similarity).
package embeddings

import (
	"fmt"
	"math"
)

// CheckDimensions returns an error when vector does not have exactly want
// dimensions. Every corpus column stores vectors of one fixed dimension, so a
// mismatched query vector can never produce meaningful similarities.
func CheckDimensions(vector []float32, want int) error {
	if len(vector) != want {
		return fmt.Errorf("embedding has %d dimensions, want %d", len(vector), want)
	}

	return nil
}

// NormalizeL2 normalizes a raw embedding vector to unit length in place.
// With unit vectors, cosine distance and inner-product distance rank identically.
func NormalizeL2(vector []float32) {
	var sumSquares float64

	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	// A valid model embedding is never all zeros, but avoid dividing by zero anyway.
	if sumSquares == 0 {
		return
	}

	magnitude := math.Sqrt(sumSquares)

	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}
}

// CosineSimilarity returns the cosine similarity of two equal-length vectors
// in [-1, 1]. Returns 0 for zero-magnitude input.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	if magA == 0 || magB == 0 {
		return 0
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
