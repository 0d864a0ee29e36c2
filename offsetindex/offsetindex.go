// Package offsetindex locates the backing file responsible for a logical
// offset inside a swarm volume via binary search over sorted, disjoint
// extents.
package offsetindex

import (
	"sort"

	"github.com/anacrolix/missinggo/v2/panicif"
)

// Entry is anything with a logical half-closed byte range [Start, End+1).
// backingfile.BackingFile satisfies this.
type Entry interface {
	Start() int64
	End() int64
}

// Index is a sorted, contiguous run of Entry, queried by logical offset.
// It holds no ownership over the entries; it is a pure in-memory view.
type Index[E Entry] struct {
	entries []E
}

// New builds an Index over entries already sorted by Start. It does not
// sort them itself: the manifest is assumed sorted and contiguous per
// spec, and resorting would hide a malformed manifest instead of
// surfacing it as a parse failure upstream.
func New[E Entry](entries []E) Index[E] {
	return Index[E]{entries: entries}
}

// Len reports the number of entries in the index.
func (idx Index[E]) Len() int {
	return len(idx.entries)
}

// Entries returns the backing slice. Callers must not mutate it through
// this view; Index does not defend against races (see spec §5).
func (idx Index[E]) Entries() []E {
	return idx.entries
}

// FindByOffset returns the entry whose range [Start, End+1) contains off,
// using binary search over the half-closed intervals. ok is false when off
// falls outside the union of all entries, which indicates a logic error
// upstream (spec §4.2).
func (idx Index[E]) FindByOffset(off int64) (e E, ok bool) {
	n := len(idx.entries)
	i := sort.Search(n, func(i int) bool {
		return idx.entries[i].End()+1 > off
	})
	if i == n || off < idx.entries[i].Start() {
		return e, false
	}
	return idx.entries[i], true
}

// CheckContiguous asserts the invariants spec.md §3 places on a complete
// multi-file index: sorted, contiguous, starting at zero. It panics on
// violation, mirroring the teacher's panicif-based internal consistency
// checks (these indicate a bug in manifest construction, not a runtime
// condition a caller should need to handle).
func (idx Index[E]) CheckContiguous() {
	if len(idx.entries) == 0 {
		return
	}
	panicif.NotEq(idx.entries[0].Start(), int64(0))
	for i := 1; i < len(idx.entries); i++ {
		panicif.NotEq(idx.entries[i-1].End()+1, idx.entries[i].Start())
	}
}
