package retrieval

import (
	"fmt"
	"sort"

	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

var (
	ErrIndexNotReady     = fmt.Errorf("index not built: %w", appErr.ErrNotReady)
	ErrDimensionMismatch = fmt.Errorf("vector dimension mismatch: %w", appErr.ErrInvalid)
	// ErrQueryMismatch means the query vector came from a different model
	// than the document's index. It is a backend condition, not bad input.
	ErrQueryMismatch = fmt.Errorf("query embedding does not match index: %w", appErr.ErrUpstream)
)

// Hit is one search result. Position is the vector's construction order.
type Hit struct {
	Position int
	Distance float32
}

// FlatIndex is an exact squared-L2 index. It is built once and read-only after.
type FlatIndex struct {
	dim     int
	vectors [][]float32
}

func BuildFlatIndex(vectors [][]float32) (*FlatIndex, error) {
	if len(vectors) == 0 {
		return &FlatIndex{}, nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("empty vector at 0: %w", appErr.ErrInvalid)
	}
	stored := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has %d dims, want %d: %w", i, len(v), dim, ErrDimensionMismatch)
		}
		stored[i] = append([]float32(nil), v...)
	}
	return &FlatIndex{dim: dim, vectors: stored}, nil
}

func (f *FlatIndex) Len() int {
	if f == nil {
		return 0
	}
	return len(f.vectors)
}

func (f *FlatIndex) Dim() int {
	if f == nil {
		return 0
	}
	return f.dim
}

// Vector returns the stored vector at position i.
func (f *FlatIndex) Vector(i int) []float32 {
	return f.vectors[i]
}

// Search returns the k nearest vectors by squared L2 distance, ascending.
// Ties keep construction order. When fewer than k vectors exist all are
// returned.
func (f *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if f.Len() == 0 {
		return nil, ErrIndexNotReady
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive: %w", appErr.ErrInvalid)
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("query has %d dims, want %d: %w", len(query), f.dim, ErrDimensionMismatch)
	}
	hits := make([]Hit, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = Hit{Position: i, Distance: squaredL2(query, v)}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Distance < hits[b].Distance
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
