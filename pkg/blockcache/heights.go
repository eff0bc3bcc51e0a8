package blockcache

import (
	"bytes"
	"sort"
)

// heightEntry is one member of the height index: invariant 2 requires
// exactly one (height, hash) pair per cached block.
type heightEntry struct {
	Height uint64
	Hash   IndepHash
}

func (a heightEntry) less(b heightEntry) bool {
	if a.Height != b.Height {
		return a.Height < b.Height
	}
	return bytes.Compare(a.Hash[:], b.Hash[:]) < 0
}

// heightIndex is an ordered set of (height, hash) pairs supporting
// min-scans (pruning). Kept as a sorted slice rather
// than a tree: cache occupancy is bounded by STORE_BLOCKS_BEHIND_CURRENT
// in steady state, so O(n) insert/remove is cheaper to reason about than
// a balanced tree. Membership is tracked by a side map keyed directly on
// heightEntry, which is a plain comparable struct.
type heightIndex struct {
	entries []heightEntry
	member  map[heightEntry]struct{}
}

func newHeightIndex() *heightIndex {
	return &heightIndex{member: make(map[heightEntry]struct{})}
}

func (h *heightIndex) insert(height uint64, hash IndepHash) {
	e := heightEntry{Height: height, Hash: hash}
	if _, ok := h.member[e]; ok {
		return
	}
	i := sort.Search(len(h.entries), func(i int) bool { return !h.entries[i].less(e) })
	h.entries = append(h.entries, heightEntry{})
	copy(h.entries[i+1:], h.entries[i:])
	h.entries[i] = e
	h.member[e] = struct{}{}
}

func (h *heightIndex) remove(height uint64, hash IndepHash) {
	e := heightEntry{Height: height, Hash: hash}
	if _, ok := h.member[e]; !ok {
		return
	}
	delete(h.member, e)
	i := sort.Search(len(h.entries), func(i int) bool { return !h.entries[i].less(e) })
	if i < len(h.entries) && h.entries[i] == e {
		h.entries = append(h.entries[:i], h.entries[i+1:]...)
	}
}

// min returns the lowest (height, hash) pair, if any.
func (h *heightIndex) min() (heightEntry, bool) {
	if len(h.entries) == 0 {
		return heightEntry{}, false
	}
	return h.entries[0], true
}

func (h *heightIndex) len() int {
	return len(h.entries)
}
