// Package distance provides the distance metrics and kernels used for
// vector comparison.
package distance

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	// MetricL2 is the squared Euclidean distance. Smaller is better.
	MetricL2 Metric = iota
	// MetricCosine is cosine similarity over L2-normalized vectors.
	// Larger is better.
	MetricCosine
	// MetricDot is the raw inner product. Larger is better.
	MetricDot
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricCosine:
		return "Cosine"
	case MetricDot:
		return "Dot"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// Parse converts a configuration string ("l2", "cosine", "dot") to a Metric.
func Parse(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l2", "euclidean", "":
		return MetricL2, nil
	case "cosine":
		return MetricCosine, nil
	case "dot", "ip", "inner_product":
		return MetricDot, nil
	default:
		return 0, fmt.Errorf("unsupported metric: %q", s)
	}
}

// Ascending reports whether smaller scores rank higher for the metric.
func (m Metric) Ascending() bool {
	return m == MetricL2
}

// Func is a function type for distance calculation.
// Callers are responsible for matching vector lengths.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric.
//
// Cosine is implemented as a dot product; index backends are expected to
// L2-normalize stored vectors and queries so the dot product equals the
// cosine similarity.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricL2:
		return SquaredL2, nil
	case MetricCosine, MetricDot:
		return Dot, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}

// Dot calculates the dot product of two vectors.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := Dot(v, v)
	if norm2 == 0 {
		return false
	}
	inv := 1 / float32(math.Sqrt(float64(norm2)))
	for i := range v {
		v[i] *= inv
	}
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// Better reports whether score a ranks strictly higher than score b
// under the metric's ordering.
func (m Metric) Better(a, b float32) bool {
	if m.Ascending() {
		return a < b
	}
	return a > b
}

// Meets reports whether a score satisfies the threshold: at most the
// threshold for distance metrics, at least the threshold for similarity
// metrics.
func (m Metric) Meets(score, threshold float32) bool {
	if m.Ascending() {
		return score <= threshold
	}
	return score >= threshold
}
