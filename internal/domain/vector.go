package domain

import (
	"fmt"
	"math"
)

// KeyPrefix namespaces every key the service writes to the key-value store.
const KeyPrefix = "triage:"

// DefaultDimensions is the process-wide embedding dimensionality when none is configured.
const DefaultDimensions = 384

// normEpsilon is the smallest norm still considered a direction.
const normEpsilon = 1e-12

// ValidateVector reports whether v has the expected dimension, only finite
// components and a non-zero norm. dim <= 0 skips the dimension check.
func ValidateVector(v []float32, dim int) error {
	if len(v) == 0 {
		return &VectorError{Reason: "empty vector", Err: ErrMalformedVector}
	}
	if dim > 0 && len(v) != dim {
		return &VectorError{
			Reason: fmt.Sprintf("got %d, want %d", len(v), dim),
			Err:    ErrVectorDimMismatch,
		}
	}
	var sum float64
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &VectorError{Reason: fmt.Sprintf("non-finite component at %d", i), Err: ErrMalformedVector}
		}
		sum += f * f
	}
	if math.Sqrt(sum) < normEpsilon {
		return &VectorError{Reason: "zero norm", Err: ErrMalformedVector}
	}
	return nil
}

// Norm returns the Euclidean length of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. The input is never modified.
// Callers must validate first; a zero vector is returned as a zero copy.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	n := Norm(v)
	if n < normEpsilon {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// Dot returns the inner product of a and b over their common prefix.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Cosine returns the cosine similarity of a and b, or 0 when either is
// empty, zero-norm, or the dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := Norm(a), Norm(b)
	if na < normEpsilon || nb < normEpsilon {
		return 0
	}
	return Dot(a, b) / (na * nb)
}
