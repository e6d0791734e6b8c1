package results

import (
	"sort"

	"github.com/jask/testdock/internal/testtree"
)

// Store maps test IDs to their latest outcome.
//
// A missing key means the test has not run, a key holding nil means the test
// is in progress and a key holding a result means it finished. Store is owned
// by the UI goroutine and is not safe for concurrent use.
type Store struct {
	entries map[testtree.ID]*Result
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[testtree.ID]*Result)}
}

// MarkInProgress records that id has started.
func (s *Store) MarkInProgress(id testtree.ID) {
	s.entries[id] = nil
}

// Finish records r as the latest result of its test.
func (s *Store) Finish(r Result) {
	s.entries[r.Test] = &r
}

// Remove reverts id to not run.
func (s *Store) Remove(id testtree.ID) {
	delete(s.entries, id)
}

// Lookup returns the entry for id. ok is false when the test has not run; a
// nil result with ok true means the test is in progress.
func (s *Store) Lookup(id testtree.ID) (r *Result, ok bool) {
	r, ok = s.entries[id]
	return r, ok
}

// IDs returns every stored test ID in ascending order.
func (s *Store) IDs() []testtree.ID {
	out := make([]testtree.ID, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of entries, in-progress ones included.
func (s *Store) Len() int {
	return len(s.entries)
}

// Reset drops every entry.
func (s *Store) Reset() {
	s.entries = make(map[testtree.ID]*Result)
}
