// Package sparse provides a sparse set of arena indices with O(1) insert,
// remove, and membership testing.
//
// The RETE drive loops use one of these per retraction cascade to mark
// partial-match arena slots already visited, so a partial match reachable
// through more than one lineage edge (as a left child of one cascade member
// and a right child of another) is processed exactly once per cascade.
package sparse

// Set is a set of uint32 arena indices. It maintains a sparse array (index
// -> position in dense) alongside a dense array (the actual members), the
// classic Briggs/Torczon sparse-set layout: membership, insert, and remove
// are all O(1), and Clear resets the set in O(1) without touching the
// sparse array.
//
// Unlike a fixed-universe sparse set, Set grows its sparse array on demand
// so it can track arena indices from a store that keeps allocating new
// partial-match slots over the lifetime of an Environment.
type Set struct {
	sparse []uint32 // index -> position in dense, valid only when Contains
	dense  []uint32 // members, in insertion order up to size
	size   uint32
}

// New creates an empty set. capacity is a hint for the initial sparse-array
// size; the set grows automatically past it.
func New(capacity uint32) *Set {
	return &Set{
		sparse: make([]uint32, capacity),
		dense:  make([]uint32, 0, capacity),
	}
}

func (s *Set) ensure(value uint32) {
	if value < uint32(len(s.sparse)) {
		return
	}
	grown := make([]uint32, value+1)
	copy(grown, s.sparse)
	s.sparse = grown
}

// Insert adds value to the set. No-op if already present.
func (s *Set) Insert(value uint32) {
	if s.Contains(value) {
		return
	}
	s.ensure(value)
	s.dense = append(s.dense, value)
	s.sparse[value] = s.size
	s.size++
}

// Contains reports whether value is currently in the set.
func (s *Set) Contains(value uint32) bool {
	if value >= uint32(len(s.sparse)) {
		return false
	}
	idx := s.sparse[value]
	return idx < s.size && s.dense[idx] == value
}

// Remove drops value from the set. No-op if not present.
func (s *Set) Remove(value uint32) {
	if !s.Contains(value) {
		return
	}
	idx := s.sparse[value]
	last := s.dense[s.size-1]
	s.dense[idx] = last
	s.sparse[last] = idx
	s.size--
	s.dense = s.dense[:s.size]
}

// Clear empties the set in O(1).
func (s *Set) Clear() {
	s.size = 0
	s.dense = s.dense[:0]
}

// Len returns the number of members.
func (s *Set) Len() int {
	return int(s.size)
}

// Values returns the current members. The slice is valid until the next
// mutation of the set.
func (s *Set) Values() []uint32 {
	return s.dense[:s.size]
}
