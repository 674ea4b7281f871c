// Package index provides an exact nearest-neighbor index over float32
// vectors using squared Euclidean distance.
package index

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// ErrDimensionMismatch is returned when a vector does not match the
// index dimensionality.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// Neighbor is one search hit: the row number in insertion order and its
// squared L2 distance to the query.
type Neighbor struct {
	Row      int
	Distance float64
}

// Flat stores vectors row-major in one contiguous slice and answers
// queries by brute force. Rows are append-only.
//
// Flat is not safe for concurrent mutation; callers serialize Add against
// Search.
type Flat struct {
	dims int
	data []float32
}

// NewFlat creates an empty index. dims == 0 adopts the dimensionality of
// the first row added.
func NewFlat(dims int) *Flat {
	return &Flat{dims: dims}
}

// Dims returns the vector dimensionality, or 0 if not yet fixed.
func (f *Flat) Dims() int { return f.dims }

// Len returns the number of rows.
func (f *Flat) Len() int {
	if f.dims == 0 {
		return 0
	}
	return len(f.data) / f.dims
}

// Add appends vec as a new row.
func (f *Flat) Add(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("add row: empty vector: %w", ErrDimensionMismatch)
	}
	if f.dims == 0 {
		f.dims = len(vec)
	}
	if len(vec) != f.dims {
		return fmt.Errorf("add row: expected %d dims, got %d: %w", f.dims, len(vec), ErrDimensionMismatch)
	}
	f.data = append(f.data, vec...)
	return nil
}

// Row returns a copy of row i.
func (f *Flat) Row(i int) []float32 {
	return slices.Clone(f.data[i*f.dims : (i+1)*f.dims])
}

// Search returns the k nearest rows ordered by ascending distance, ties
// broken by row number. k larger than Len returns every row.
func (f *Flat) Search(query []float32, k int) ([]Neighbor, error) {
	n := f.Len()
	if k <= 0 || n == 0 {
		return nil, nil
	}
	if len(query) != f.dims {
		return nil, fmt.Errorf("search: expected %d dims, got %d: %w", f.dims, len(query), ErrDimensionMismatch)
	}

	hits := make([]Neighbor, n)
	for i := 0; i < n; i++ {
		hits[i] = Neighbor{Row: i, Distance: SquaredL2(query, f.data[i*f.dims:(i+1)*f.dims])}
	}
	slices.SortFunc(hits, func(a, b Neighbor) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Row, b.Row)
	})

	if k < n {
		hits = hits[:k]
	}
	return hits, nil
}

// SquaredL2 computes the squared Euclidean distance between a and b,
// accumulating in float64. The vectors must have equal length.
func SquaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
