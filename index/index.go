// Package index defines the capability interface for vector index backends.
//
// The engine treats an index as a collaborator offering insert, remove,
// search, persistence and statistics; the structural algorithm behind it is
// an implementation detail of the backend. Backends register themselves by
// kind so persisted snapshots can be reopened without knowing the concrete
// type up front.
package index

import (
	"fmt"
	"io"
	"sync"

	"github.com/vexasearch/vexa/distance"
)

// ErrDimensionMismatch indicates a vector whose length differs from the
// index dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// Candidate is a single search hit: the stored vector's identifier and its
// score under the index metric.
type Candidate struct {
	ID    int64
	Score float32
}

// SearchOptions carries the optional parameters of a search.
type SearchOptions struct {
	// Threshold excludes candidates that do not meet the bound in the
	// metric's orientation. Only applied when HasThreshold is true.
	Threshold    float32
	HasThreshold bool

	// Filter restricts candidates to IDs for which it returns true.
	// It must be safe to call from the search goroutine.
	Filter func(id int64) bool
}

// Stats describes the current shape of an index.
type Stats struct {
	Count       int
	Dimension   int
	Kind        string
	MemoryBytes int64
}

// Index is the capability contract every backend satisfies.
//
// Search must be safe to call concurrently with other searches and with a
// single in-flight mutation; readers observe the index state as of dispatch
// time (snapshot consistency). Insert and Remove are serialized by the
// caller (single-writer).
type Index interface {
	// Insert adds vectors and returns their assigned IDs. On any
	// validation error no vector becomes visible.
	Insert(vectors [][]float32) ([]int64, error)

	// Remove deletes the given IDs and returns how many were present.
	// Missing IDs are ignored.
	Remove(ids []int64) int

	// Search returns up to k candidates ordered best-first, ties broken
	// by ascending ID. It never pads: fewer than k qualifying entries
	// yield fewer results.
	Search(query []float32, k int, opts *SearchOptions) ([]Candidate, error)

	// WriteTo serializes the index payload (excluding the snapshot file
	// header, which persistence owns).
	WriteTo(w io.Writer) (int64, error)

	// ReadFrom replaces the index content from a payload produced by
	// WriteTo on an index of the same kind and dimension.
	ReadFrom(r io.Reader) (int64, error)

	Dimension() int
	Metric() distance.Metric
	Len() int
	Kind() string
	Stats() Stats
}

// Factory constructs an empty index of a registered kind.
type Factory func(dimension int, metric distance.Metric) (Index, error)

var (
	registryMu sync.RWMutex
	registry   = map[uint8]registration{}
	kindCodes  = map[string]uint8{}
)

type registration struct {
	kind    string
	factory Factory
}

// Register makes an index kind constructible by code. Backends call this
// from init; registering a duplicate code panics.
func Register(code uint8, kind string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[code]; ok {
		panic(fmt.Sprintf("index: duplicate registration for code %d", code))
	}
	registry[code] = registration{kind: kind, factory: factory}
	kindCodes[kind] = code
}

// New constructs an empty index for a registered kind code.
func New(code uint8, dimension int, metric distance.Metric) (Index, error) {
	registryMu.RLock()
	reg, ok := registry[code]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("index: unknown kind code %d", code)
	}
	return reg.factory(dimension, metric)
}

// Code returns the registered code for a kind name.
func Code(kind string) (uint8, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	code, ok := kindCodes[kind]
	return code, ok
}

// ValidateDimension checks a configured dimension.
func ValidateDimension(dimension int) error {
	if dimension <= 0 {
		return &ErrInvalidDimension{Dimension: dimension}
	}
	return nil
}
