// Package index implements an exact inner-product similarity index.
//
// Vectors are stored row-major in insertion order, so row i of the index
// always pairs with element i of whatever sequence the vectors were built
// from. With L2-normalized vectors the inner product equals cosine
// similarity. The index is immutable once built and safe for concurrent
// readers.
package index

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when a vector does not match the index dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Candidate is one search hit: the row position of a stored vector and its
// inner-product score against the query.
type Candidate struct {
	Row   int
	Score float64
}

// Flat is an exact-scan inner-product index.
type Flat struct {
	dim  int
	data []float32
}

// New creates an empty index for vectors of the given dimension.
func New(dim int) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", dim)
	}
	return &Flat{dim: dim}, nil
}

// Add appends vectors to the index in order.
func (f *Flat) Add(vectors ...[]float32) error {
	for _, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("add vector: %w: got %d, index has %d", ErrDimensionMismatch, len(v), f.dim)
		}
		f.data = append(f.data, v...)
	}
	return nil
}

// Dim returns the vector dimension.
func (f *Flat) Dim() int { return f.dim }

// Len returns the number of stored vectors.
func (f *Flat) Len() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

// Search scans every stored vector and returns up to k candidates ordered by
// score descending. Ties keep insertion order. The caller must normalize the
// query for scores to be cosine similarities.
func (f *Flat) Search(query []float32, k int) ([]Candidate, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("search: %w: got %d, index has %d", ErrDimensionMismatch, len(query), f.dim)
	}

	n := f.Len()
	if n == 0 || k <= 0 {
		return nil, nil
	}

	candidates := make([]Candidate, n)
	for row := 0; row < n; row++ {
		base := row * f.dim
		var dot float64
		for i, q := range query {
			dot += float64(q) * float64(f.data[base+i])
		}
		candidates[row] = Candidate{Row: row, Score: dot}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if k < len(candidates) {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// Normalize scales v to unit L2 length in place. Zero vectors are left
// unchanged.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}

	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
