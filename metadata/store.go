// Package metadata stores per-vector metadata and evaluates attribute
// filters.
//
// Every entry couples an opaque payload string with an attribute map used
// for filtering. A Roaring-bitmap inverted index (attribute=value -> set of
// IDs) backs pre-filtering, so a filtered search can restrict the candidate
// set before any distance computation happens.
package metadata

import (
	"maps"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Entry is the metadata attached to one vector.
type Entry struct {
	// Payload is an opaque string returned verbatim with search results.
	Payload string `json:"payload"`

	// Attributes participate in filter evaluation (exact string equality).
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Store maps vector IDs to metadata entries.
//
// Mutations are expected to happen inside the engine's single-writer
// section together with the matching index mutation; reads may run
// concurrently with one in-flight mutation.
type Store struct {
	mu       sync.RWMutex
	entries  map[int64]Entry
	inverted map[string]*roaring64.Bitmap // "attr\x00value" -> IDs
}

// NewStore creates an empty metadata store.
func NewStore() *Store {
	return &Store{
		entries:  make(map[int64]Entry),
		inverted: make(map[string]*roaring64.Bitmap),
	}
}

func invertedKey(attr, value string) string {
	return attr + "\x00" + value
}

// Get returns the entry for an ID.
func (s *Store) Get(id int64) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	return e, ok
}

// Payload returns the payload for an ID, or "" when the ID has no entry.
// Missing metadata is not an error on the search path.
func (s *Store) Payload(id int64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.entries[id].Payload
}

// Set stores the entry for an ID, replacing any previous one.
func (s *Store) Set(id int64, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[id]; ok {
		s.unindexLocked(id, old)
	}
	s.entries[id] = e
	s.indexLocked(id, e)
}

// Remove deletes the entry for an ID. Missing IDs are a no-op.
func (s *Store) Remove(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.entries[id]
	if !ok {
		return false
	}
	s.unindexLocked(id, old)
	delete(s.entries, id)
	return true
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// Matches reports whether the ID's attributes satisfy every filter
// (logical AND, exact string equality). An ID without attributes matches
// only an empty filter set.
func (s *Store) Matches(id int64, filters map[string]string) bool {
	if len(filters) == 0 {
		return true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	for attr, want := range filters {
		if got, ok := e.Attributes[attr]; !ok || got != want {
			return false
		}
	}
	return true
}

// FilterBitmap returns the set of IDs whose attributes satisfy every
// filter. The returned bitmap is owned by the caller. A nil result means
// "no restriction" (empty filter set).
func (s *Store) FilterBitmap(filters map[string]string) *roaring64.Bitmap {
	if len(filters) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var acc *roaring64.Bitmap
	for attr, value := range filters {
		bm, ok := s.inverted[invertedKey(attr, value)]
		if !ok {
			return roaring64.New()
		}
		if acc == nil {
			acc = bm.Clone()
		} else {
			acc.And(bm)
		}
		if acc.IsEmpty() {
			return acc
		}
	}
	return acc
}

// ToMap returns a copy of all entries, keyed by ID. Used by persistence.
func (s *Store) ToMap() map[int64]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]Entry, len(s.entries))
	for id, e := range s.entries {
		copied := e
		copied.Attributes = maps.Clone(e.Attributes)
		out[id] = copied
	}
	return out
}

// Replace swaps the full content of the store, rebuilding the inverted
// index. Used when loading a snapshot.
func (s *Store) Replace(entries map[int64]Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[int64]Entry, len(entries))
	s.inverted = make(map[string]*roaring64.Bitmap)
	for id, e := range entries {
		copied := e
		copied.Attributes = maps.Clone(e.Attributes)
		s.entries[id] = copied
		s.indexLocked(id, copied)
	}
}

func (s *Store) indexLocked(id int64, e Entry) {
	for attr, value := range e.Attributes {
		key := invertedKey(attr, value)
		bm, ok := s.inverted[key]
		if !ok {
			bm = roaring64.New()
			s.inverted[key] = bm
		}
		bm.Add(uint64(id))
	}
}

func (s *Store) unindexLocked(id int64, e Entry) {
	for attr, value := range e.Attributes {
		key := invertedKey(attr, value)
		bm, ok := s.inverted[key]
		if !ok {
			continue
		}
		bm.Remove(uint64(id))
		if bm.IsEmpty() {
			delete(s.inverted, key)
		}
	}
}
