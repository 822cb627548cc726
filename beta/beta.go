// Package beta implements a join's beta memory: a dynamically-resized open
// hash keyed by a join-expression hash, storing partial matches of length
// equal to the join's depth (spec.md §4.3).
package beta

import (
	"github.com/coregx/rete/internal/hash"
	"github.com/coregx/rete/pmstore"
)

// InitialSize is CLIPS's INITIAL_BETA_HASH_SIZE.
const InitialSize uint32 = 17

// GrowthFactor is the resize multiplier spec.md §3.2 invariant 7 specifies:
// a beta memory with size s > 1 resizes to GrowthFactor*s once
// count > GrowthFactor*s.
const GrowthFactor = 11

// Side distinguishes a join's two beta memories. LHS inserts prepend (LIFO);
// RHS inserts append (FIFO), so RHS always grows newest-last — spec.md
// §4.3/§5 ordering guarantee 3.
type Side uint8

const (
	LHS Side = iota
	RHS
)

// Memory is one join-side's beta memory.
type Memory struct {
	side Side
	size uint32
	head []pmstore.ID
	tail []pmstore.ID

	count         uint32
	resizeEnabled bool
}

// NewMemory creates a beta memory for the given side. initialSize <= 0 uses
// InitialSize.
func NewMemory(side Side, initialSize uint32, resizeEnabled bool) *Memory {
	if initialSize == 0 {
		initialSize = InitialSize
	}
	return &Memory{
		side:          side,
		size:          initialSize,
		head:          filledNil(initialSize),
		tail:          filledNil(initialSize),
		resizeEnabled: resizeEnabled,
	}
}

func filledNil(n uint32) []pmstore.ID {
	s := make([]pmstore.ID, n)
	for i := range s {
		s[i] = pmstore.NilID
	}
	return s
}

// BucketFor reduces a folded beta-hash value to a bucket index for this
// memory's current size (spec.md §8 testable property 2:
// "pm.hashValue mod s == b").
func (m *Memory) BucketFor(hv uint64) uint32 {
	return hash.Mod(hv, m.size)
}

// Insert stores pm's hash value and links it into its bucket, prepending
// for LHS or appending for RHS, then resizes if the count threshold is
// exceeded and resizing is enabled.
func (m *Memory) Insert(store *pmstore.Store, hv uint64, pm pmstore.ID) {
	idx := m.BucketFor(hv)
	store.Get(pm).HashValue = hv

	if m.side == LHS {
		m.prepend(store, idx, pm)
	} else {
		m.append(store, idx, pm)
	}
	m.count++

	if m.resizeEnabled && m.size > 1 && m.count > GrowthFactor*m.size {
		m.Resize(store, GrowthFactor*m.size)
	}
}

func (m *Memory) prepend(store *pmstore.Store, idx uint32, pm pmstore.ID) {
	p := store.Get(pm)
	p.NextInMemory = m.head[idx]
	p.PrevInMemory = pmstore.NilID
	if m.head[idx] != pmstore.NilID {
		store.Get(m.head[idx]).PrevInMemory = pm
	} else {
		m.tail[idx] = pm
	}
	m.head[idx] = pm
}

func (m *Memory) append(store *pmstore.Store, idx uint32, pm pmstore.ID) {
	p := store.Get(pm)
	p.PrevInMemory = m.tail[idx]
	p.NextInMemory = pmstore.NilID
	if m.tail[idx] != pmstore.NilID {
		store.Get(m.tail[idx]).NextInMemory = pm
	} else {
		m.head[idx] = pm
	}
	m.tail[idx] = pm
}

// Remove unlinks pm from its bucket (recovered from its stored hash value)
// and shrinks back to InitialSize once the memory empties, per spec.md
// §3.2 invariant 7.
func (m *Memory) Remove(store *pmstore.Store, pm pmstore.ID) {
	p := store.Get(pm)
	idx := m.BucketFor(p.HashValue)

	if p.PrevInMemory != pmstore.NilID {
		store.Get(p.PrevInMemory).NextInMemory = p.NextInMemory
	} else {
		m.head[idx] = p.NextInMemory
	}
	if p.NextInMemory != pmstore.NilID {
		store.Get(p.NextInMemory).PrevInMemory = p.PrevInMemory
	} else {
		m.tail[idx] = p.PrevInMemory
	}
	p.NextInMemory = pmstore.NilID
	p.PrevInMemory = pmstore.NilID
	m.count--

	if m.resizeEnabled && m.count == 0 && m.size > 1 {
		m.Resize(store, InitialSize)
	}
}

// Resize rehashes every member into a table of newSize buckets in place,
// re-threading NextInMemory/PrevInMemory per bucket while preserving each
// bucket's relative member order (spec.md §8 testable property 5). No-op if
// newSize equals the current size.
func (m *Memory) Resize(store *pmstore.Store, newSize uint32) {
	if newSize == m.size || newSize == 0 {
		return
	}
	oldHeads, oldTails, oldSize := m.head, m.tail, m.size
	m.size = newSize
	m.head = filledNil(newSize)
	m.tail = filledNil(newSize)

	for b := uint32(0); b < oldSize; b++ {
		if m.side == LHS {
			// Old bucket order is newest-to-oldest (prepend-built); walk
			// oldest-to-newest via PrevInMemory and re-prepend in that
			// order so the newest member ends up at the new head again.
			id := oldTails[b]
			for id != pmstore.NilID {
				p := store.Get(id)
				prev := p.PrevInMemory
				p.NextInMemory, p.PrevInMemory = pmstore.NilID, pmstore.NilID
				m.prepend(store, m.BucketFor(p.HashValue), id)
				id = prev
			}
		} else {
			// Old bucket order is oldest-to-newest (append-built); walk
			// forward and re-append in the same order.
			id := oldHeads[b]
			for id != pmstore.NilID {
				p := store.Get(id)
				next := p.NextInMemory
				p.NextInMemory, p.PrevInMemory = pmstore.NilID, pmstore.NilID
				m.append(store, m.BucketFor(p.HashValue), id)
				id = next
			}
		}
	}
}

// Each visits every PartialMatch currently in bucket idx, in this memory's
// order (LIFO for LHS, FIFO for RHS).
func (m *Memory) Each(store *pmstore.Store, idx uint32, f func(pmstore.ID)) {
	id := m.head[idx]
	for id != pmstore.NilID {
		next := store.Get(id).NextInMemory
		f(id)
		id = next
	}
}

// Size returns the current bucket count.
func (m *Memory) Size() uint32 { return m.size }

// Count returns the current member count.
func (m *Memory) Count() uint32 { return m.count }

// SetResizing toggles dynamic resizing, exposed via the CLI surface's
// set-beta-memory-resizing.
func (m *Memory) SetResizing(enabled bool) { m.resizeEnabled = enabled }

// Resizing reports whether dynamic resizing is enabled.
func (m *Memory) Resizing() bool { return m.resizeEnabled }
