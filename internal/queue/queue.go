// Package queue provides a bounded candidate heap used by index backends
// to track the current best k results during a scan.
package queue

import "container/heap"

// Candidate is a scored entry tracked by the heap.
type Candidate struct {
	ID    int64
	Score float32
}

// topK keeps at most k candidates with the *worst* candidate at the root,
// so a new candidate only needs to beat the root to enter the set.
type topK struct {
	ascending bool // true when smaller scores are better
	items     []Candidate
}

var _ heap.Interface = (*topK)(nil)

func (h *topK) Len() int { return len(h.items) }

// Less orders worst-first. Ties rank the larger ID as worse, which yields
// ascending-ID tie-breaks in the final sorted output.
func (h *topK) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.Score != b.Score {
		if h.ascending {
			return a.Score > b.Score
		}
		return a.Score < b.Score
	}
	return a.ID > b.ID
}

func (h *topK) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *topK) Push(x any) { h.items = append(h.items, x.(Candidate)) }

func (h *topK) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// TopK collects the k best candidates seen so far.
type TopK struct {
	k int
	h topK
}

// NewTopK creates a collector for the k best candidates.
// ascending selects the ordering: true when smaller scores are better.
func NewTopK(k int, ascending bool) *TopK {
	return &TopK{
		k: k,
		h: topK{ascending: ascending, items: make([]Candidate, 0, k)},
	}
}

// Len returns the number of collected candidates.
func (t *TopK) Len() int { return t.h.Len() }

// Offer considers a candidate, evicting the current worst if full.
func (t *TopK) Offer(id int64, score float32) {
	c := Candidate{ID: id, Score: score}
	if t.h.Len() < t.k {
		heap.Push(&t.h, c)
		return
	}
	worst := t.h.items[0]
	if !t.beats(c, worst) {
		return
	}
	t.h.items[0] = c
	heap.Fix(&t.h, 0)
}

// beats reports whether a should replace b in the result set.
func (t *TopK) beats(a, b Candidate) bool {
	if a.Score != b.Score {
		if t.h.ascending {
			return a.Score < b.Score
		}
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

// Drain returns the collected candidates ordered best-first
// (score order with ties broken by ascending ID). The collector
// is empty afterwards.
func (t *TopK) Drain() []Candidate {
	n := t.h.Len()
	out := make([]Candidate, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.h).(Candidate)
	}
	return out
}
