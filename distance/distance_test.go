package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquaredL2(t *testing.T) {
	assert.Equal(t, float32(0), SquaredL2([]float32{1, 0, 0}, []float32{1, 0, 0}))
	assert.Equal(t, float32(2), SquaredL2([]float32{1, 0}, []float32{0, 1}))
	assert.Equal(t, float32(25), SquaredL2([]float32{0, 3}, []float32{4, 0}))
}

func TestDot(t *testing.T) {
	assert.Equal(t, float32(0), Dot([]float32{1, 0}, []float32{0, 1}))
	assert.Equal(t, float32(11), Dot([]float32{1, 2}, []float32{3, 4}))
}

func TestNormalizeL2(t *testing.T) {
	t.Run("InPlace", func(t *testing.T) {
		v := []float32{3, 4}
		require.True(t, NormalizeL2InPlace(v))
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
	})

	t.Run("ZeroNorm", func(t *testing.T) {
		assert.False(t, NormalizeL2InPlace([]float32{0, 0}))

		_, ok := NormalizeL2Copy([]float32{0, 0, 0})
		assert.False(t, ok)
	})

	t.Run("CopyDoesNotMutate", func(t *testing.T) {
		src := []float32{3, 4}
		dst, ok := NormalizeL2Copy(src)
		require.True(t, ok)
		assert.Equal(t, []float32{3, 4}, src)
		assert.InDelta(t, 1.0, Dot(dst, dst), 1e-6)
	})
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Metric
		wantErr bool
	}{
		{"l2", MetricL2, false},
		{"L2", MetricL2, false},
		{"", MetricL2, false},
		{"cosine", MetricCosine, false},
		{"dot", MetricDot, false},
		{"inner_product", MetricDot, false},
		{"hamming", 0, true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestOrdering(t *testing.T) {
	// L2: smaller distance ranks higher.
	assert.True(t, MetricL2.Better(0.1, 0.5))
	assert.False(t, MetricL2.Better(0.5, 0.1))
	assert.True(t, MetricL2.Meets(0.5, 0.5))
	assert.False(t, MetricL2.Meets(0.6, 0.5))

	// Cosine: larger similarity ranks higher.
	assert.True(t, MetricCosine.Better(0.9, 0.2))
	assert.True(t, MetricCosine.Meets(0.9, 0.5))
	assert.False(t, MetricCosine.Meets(0.2, 0.5))
}
