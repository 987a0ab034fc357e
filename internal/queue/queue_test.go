package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopKAscending(t *testing.T) {
	tk := NewTopK(3, true)
	for id, score := range map[int64]float32{
		0: 0.9, 1: 0.1, 2: 0.5, 3: 0.3, 4: 0.7,
	} {
		tk.Offer(id, score)
	}

	got := tk.Drain()
	require.Len(t, got, 3)
	assert.Equal(t, []Candidate{{1, 0.1}, {3, 0.3}, {2, 0.5}}, got)
}

func TestTopKDescending(t *testing.T) {
	tk := NewTopK(2, false)
	tk.Offer(0, 0.2)
	tk.Offer(1, 0.8)
	tk.Offer(2, 0.5)

	got := tk.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, []Candidate{{1, 0.8}, {2, 0.5}}, got)
}

func TestTopKFewerThanK(t *testing.T) {
	tk := NewTopK(5, true)
	tk.Offer(7, 1.5)

	got := tk.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, 0, tk.Len())
}

func TestTopKTieBreakByID(t *testing.T) {
	// Equal scores must come out in ascending-ID order, and the larger
	// ID must be the one evicted when the heap is full.
	tk := NewTopK(2, true)
	tk.Offer(9, 0.5)
	tk.Offer(3, 0.5)
	tk.Offer(6, 0.5)

	got := tk.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, []Candidate{{3, 0.5}, {6, 0.5}}, got)
}
