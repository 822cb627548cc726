// Package pmstore owns every PartialMatch record and the lineage that
// threads them together, per spec.md §4.1.
//
// Design Note applied (SPEC_FULL.md "Cyclic pointer graphs → arena +
// indices"): the source's raw back-pointers (left/right parents, children,
// blockers, dependents) become typed ID indices into a single arena per
// Store, exactly mirroring the teacher's StateID/[]State arena in
// nfa.Builder. Slots are held as *PartialMatch rather than value PartialMatch
// so a growing arena never invalidates a pointer obtained before the growth.
package pmstore

import "github.com/coregx/rete/entity"

// ID indexes a PartialMatch within a Store's arena.
type ID uint32

// NilID denotes the absence of a link, mirroring nfa.InvalidState.
const NilID ID = 0xFFFFFFFF

// MultifieldMarker records how a $-variable bound a slice of a multi-valued
// slot (spec.md §3.1).
type MultifieldMarker struct {
	WhichField    int
	SlotKey       uint32
	StartPosition int
	Range         int
}

// Bind is one slot of a PartialMatch's binds array: either a real
// alpha-level match of an entity, or the NULL sentinel used for a satisfied
// negated/exists CE (spec.md §3.2 invariant 2, "Side consistency").
type Bind struct {
	Valid   bool
	Entity  entity.ID
	Markers []MultifieldMarker
}

// PartialMatch is an ordered tuple of binds across BCount patterns,
// spec.md §3.1's central record.
type PartialMatch struct {
	id ID

	BCount    int
	Binds     []Bind
	HashValue uint64
	Deleting  bool

	// Lineage: the LHS and RHS partial matches this one was merged from,
	// and the children built using this one as their left or right
	// contributor. Order within the child lists is not semantically
	// significant (unlike beta-memory bucket order, which is) so plain
	// slices are used rather than an explicit linked list.
	LeftParent    ID
	RightParent   ID
	LeftChildren  []ID
	RightChildren []ID

	// Beta/alpha-memory bucket threading. Order here IS significant
	// (spec.md §3.2 invariant 3 / §5 ordering guarantee 3): the owning
	// memory decides whether to prepend (LHS) or append (RHS).
	NextInMemory ID
	PrevInMemory ID

	// Block links (spec.md §4.1 "blockList ... a negated LHS partial match
	// may have a block-list of RHS PMs that suppress it"). Blockers holds,
	// for an LHS-side PM, the RHS PMs currently suppressing it; BlockedLHS
	// holds, for an RHS-side PM, the LHS PMs it is currently suppressing —
	// the reverse index needed to re-examine them when this PM retracts.
	Blockers   []ID
	BlockedLHS []ID

	// Dependents lists the entities whose existence is conditional on this
	// PM's survival (spec.md §4.6 logical dependency manager).
	Dependents []entity.ID
}

// ID returns the PartialMatch's arena index.
func (pm *PartialMatch) ID() ID { return pm.id }

// Store owns the partial-match arena for one Environment.
type Store struct {
	slots []*PartialMatch
	free  []ID

	// entityAlpha indexes alpha-level (BCount==1, real entity) PMs by the
	// entity they match, realizing spec.md §3.2 invariant 5's back
	// reference without requiring PatternEntity to hold the list itself
	// (the core only consumes PatternEntity handles, per spec.md's scope).
	entityAlpha map[entity.ID][]ID

	garbage []ID
	timetag int64
}

// NewStore creates an empty partial-match store.
func NewStore() *Store {
	return &Store{entityAlpha: make(map[entity.ID][]ID)}
}

func (s *Store) alloc() ID {
	if n := len(s.free); n > 0 {
		id := s.free[n-1]
		s.free = s.free[:n-1]
		return id
	}
	id := ID(len(s.slots))
	s.slots = append(s.slots, &PartialMatch{})
	return id
}

// Get returns the PartialMatch at id. Panics if id is out of range or NilID,
// the same contract the teacher's state arenas use for index access.
func (s *Store) Get(id ID) *PartialMatch {
	return s.slots[id]
}

// CreateEmpty returns the BCount=0 left prime, the sentinel LHS input a
// first join merges against (spec.md §4.1): Merge(prime, rhsID, true)
// yields a BCount=1 PM holding exactly the first pattern's bind, so Ref
// pattern indices start at 0 for the first real pattern regardless of
// whether that join is positive, negated, or exists.
func (s *Store) CreateEmpty() ID {
	id := s.alloc()
	*s.Get(id) = PartialMatch{
		id: id, BCount: 0, Binds: nil,
		LeftParent: NilID, RightParent: NilID,
		NextInMemory: NilID, PrevInMemory: NilID,
	}
	return id
}

// CreateAlpha returns a BCount=1 PM wrapping a single alpha-level match of
// e, and records it in e's back-reference index (spec.md §3.2 invariant 5).
func (s *Store) CreateAlpha(e entity.ID, markers []MultifieldMarker, timetag int64) ID {
	id := s.alloc()
	*s.Get(id) = PartialMatch{
		id: id, BCount: 1,
		Binds:        []Bind{{Valid: true, Entity: e, Markers: markers}},
		LeftParent:   NilID, RightParent: NilID,
		NextInMemory: NilID, PrevInMemory: NilID,
	}
	s.entityAlpha[e] = append(s.entityAlpha[e], id)
	s.timetag = timetag
	return id
}

// Merge builds a BCount = lhs.BCount+1 PM, copying lhs's binds and
// appending either rhs's single bind (rhsValid) or the NULL sentinel
// (!rhsValid, for a satisfied negated/exists CE), per spec.md §4.1. It also
// threads the new PM into its parents' child lists.
func (s *Store) Merge(lhsID, rhsID ID, rhsValid bool) ID {
	lhs := s.Get(lhsID)
	binds := make([]Bind, len(lhs.Binds)+1)
	copy(binds, lhs.Binds)

	rp := NilID
	if rhsValid {
		rhs := s.Get(rhsID)
		binds[len(binds)-1] = rhs.Binds[0]
		rp = rhsID
	}

	id := s.alloc()
	*s.Get(id) = PartialMatch{
		id: id, BCount: lhs.BCount + 1, Binds: binds,
		LeftParent: lhsID, RightParent: rp,
		NextInMemory: NilID, PrevInMemory: NilID,
	}

	lhs.LeftChildren = append(lhs.LeftChildren, id)
	if rhsValid {
		s.Get(rhsID).RightChildren = append(s.Get(rhsID).RightChildren, id)
	}
	return id
}

// UnlinkLeftChild removes child from parent's left-child list.
func (s *Store) UnlinkLeftChild(parent, child ID) {
	p := s.Get(parent)
	p.LeftChildren = removeID(p.LeftChildren, child)
}

// UnlinkRightChild removes child from parent's right-child list.
func (s *Store) UnlinkRightChild(parent, child ID) {
	p := s.Get(parent)
	p.RightChildren = removeID(p.RightChildren, child)
}

func removeID(list []ID, id ID) []ID {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Block records that rhs currently suppresses propagation from lhs
// (negated/exists/join-from-the-right joins, spec.md §4.4).
func (s *Store) Block(lhsID, rhsID ID) {
	l := s.Get(lhsID)
	l.Blockers = append(l.Blockers, rhsID)
	r := s.Get(rhsID)
	r.BlockedLHS = append(r.BlockedLHS, lhsID)
}

// Unblock reverses Block. It returns true if lhs has no remaining blockers,
// i.e. it is now eligible to propagate (spec.md §8 testable property 9:
// "blocking and unblocking are inverse operations").
func (s *Store) Unblock(lhsID, rhsID ID) bool {
	l := s.Get(lhsID)
	l.Blockers = removeID(l.Blockers, rhsID)
	r := s.Get(rhsID)
	r.BlockedLHS = removeID(r.BlockedLHS, lhsID)
	return len(l.Blockers) == 0
}

// IsBlocked reports whether id currently has at least one blocker.
func (s *Store) IsBlocked(id ID) bool {
	return len(s.Get(id).Blockers) > 0
}

// BlockedLHS returns the LHS PMs id currently blocks (id is an RHS PM).
func (s *Store) BlockedLHS(id ID) []ID {
	return s.Get(id).BlockedLHS
}

// AddDependent records that e's existence is conditional on pmID's survival
// (spec.md §4.6).
func (s *Store) AddDependent(pmID ID, e entity.ID) {
	pm := s.Get(pmID)
	pm.Dependents = append(pm.Dependents, e)
}

// Dependents returns the entities conditional on pmID.
func (s *Store) Dependents(pmID ID) []entity.ID {
	return s.Get(pmID).Dependents
}

// EntityAlphaMatches returns the alpha-level PMs recorded for e.
func (s *Store) EntityAlphaMatches(e entity.ID) []ID {
	return s.entityAlpha[e]
}

// ReturnPartialMatch places pm on the garbage list for reclamation once the
// current drive (and any enclosing activation) completes, rather than
// freeing it immediately — spec.md §4.7: "The garbage list is flushed only
// when no rule is currently executing on the agenda, preventing observers
// from following freed storage mid-activation."
func (s *Store) ReturnPartialMatch(id ID) {
	s.Get(id).Deleting = true
	s.garbage = append(s.garbage, id)
}

// DestroyPartialMatch reclaims pm's slot immediately. Used only during
// environment teardown, never mid-drive.
func (s *Store) DestroyPartialMatch(id ID) {
	s.removeEntityBackRef(id)
	*s.Get(id) = PartialMatch{}
	s.free = append(s.free, id)
}

// FlushGarbage reclaims every PM placed on the garbage list since the last
// flush. The caller must only invoke this when no rule is firing on the
// agenda (spec.md §4.7).
func (s *Store) FlushGarbage() {
	for _, id := range s.garbage {
		s.removeEntityBackRef(id)
		*s.Get(id) = PartialMatch{}
		s.free = append(s.free, id)
	}
	s.garbage = s.garbage[:0]
}

// GarbageLen reports how many PMs are pending reclamation, used by tests
// that check the flush gate.
func (s *Store) GarbageLen() int {
	return len(s.garbage)
}

func (s *Store) removeEntityBackRef(id ID) {
	pm := s.Get(id)
	if pm.BCount != 1 || len(pm.Binds) == 0 || !pm.Binds[0].Valid {
		return
	}
	e := pm.Binds[0].Entity
	remaining := removeID(s.entityAlpha[e], id)
	if len(remaining) == 0 {
		delete(s.entityAlpha, e)
	} else {
		s.entityAlpha[e] = remaining
	}
}

// SetTimetag records the timetag stamped onto PMs created for the edit
// currently in progress (spec.md §3.2 invariant 6).
func (s *Store) SetTimetag(t int64) { s.timetag = t }

// Timetag returns the timetag in effect for the current edit.
func (s *Store) Timetag() int64 { return s.timetag }
