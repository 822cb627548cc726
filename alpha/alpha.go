// Package alpha implements the per-pattern alpha memory: a hash table of
// AlphaMemoryHash buckets keyed by right-hash value, each holding a FIFO of
// the partial matches (one per matched entity) that satisfied that
// pattern's alpha tests (spec.md §4.2).
package alpha

import (
	"github.com/coregx/rete/internal/conv"
	"github.com/coregx/rete/internal/hash"
	"github.com/coregx/rete/pmstore"
)

// DefaultHashSize is CLIPS's SIZE_ALPHA_HASH (reteutil.h), the default
// bucket count for a new pattern-node-header.
const DefaultHashSize uint32 = 167

// NilBucket marks the absence of a bucket-list link.
const NilBucket uint32 = 0xFFFFFFFF

type bucket struct {
	occupied   bool
	head, tail pmstore.ID // FIFO, threaded via PartialMatch.NextInMemory/PrevInMemory
	prevHash   uint32     // inter-bucket thread over occupied buckets only
	nextHash   uint32
}

// Header is a pattern-node-header: the alpha memory for one pattern in the
// network. firstHash/lastHash thread every currently-occupied bucket so a
// join drive can walk just the non-empty ones (spec.md §3.2 invariant 4).
type Header struct {
	buckets   []bucket
	firstHash uint32
	lastHash  uint32
	bucketOf  map[pmstore.ID]uint32
}

// NewHeader creates a pattern-node-header with hashSize buckets. hashSize
// <= 0 uses DefaultHashSize.
func NewHeader(hashSize uint32) *Header {
	if hashSize == 0 {
		hashSize = DefaultHashSize
	}
	buckets := make([]bucket, hashSize)
	for i := range buckets {
		buckets[i].prevHash = NilBucket
		buckets[i].nextHash = NilBucket
		buckets[i].head = pmstore.NilID
		buckets[i].tail = pmstore.NilID
	}
	return &Header{
		buckets:   buckets,
		firstHash: NilBucket,
		lastHash:  NilBucket,
		bucketOf:  make(map[pmstore.ID]uint32),
	}
}

// BucketFor reduces a folded right-hash value to a bucket index.
func (h *Header) BucketFor(rightHash uint64) uint32 {
	return hash.Mod(rightHash, conv.IntToUint32(len(h.buckets)))
}

// Insert adds pm (a BCount=1 alpha-level PartialMatch) to the bucket
// selected by rightHash, appending to that bucket's FIFO, and records the
// bucket index on the header so Remove is O(1) without re-hashing (spec.md
// §4.2).
func (h *Header) Insert(store *pmstore.Store, rightHash uint64, pm pmstore.ID) uint32 {
	idx := h.BucketFor(rightHash)
	b := &h.buckets[idx]
	wasEmpty := !b.occupied

	p := store.Get(pm)
	p.PrevInMemory = b.tail
	p.NextInMemory = pmstore.NilID
	if b.tail != pmstore.NilID {
		store.Get(b.tail).NextInMemory = pm
	} else {
		b.head = pm
	}
	b.tail = pm
	b.occupied = true

	if wasEmpty {
		h.linkBucket(idx)
	}
	h.bucketOf[pm] = idx
	return idx
}

// Remove splices pm out of its bucket's FIFO in O(1), using the bucket
// index recorded at Insert time.
func (h *Header) Remove(store *pmstore.Store, pm pmstore.ID) {
	idx, ok := h.bucketOf[pm]
	if !ok {
		return
	}
	delete(h.bucketOf, pm)

	b := &h.buckets[idx]
	p := store.Get(pm)
	if p.PrevInMemory != pmstore.NilID {
		store.Get(p.PrevInMemory).NextInMemory = p.NextInMemory
	} else {
		b.head = p.NextInMemory
	}
	if p.NextInMemory != pmstore.NilID {
		store.Get(p.NextInMemory).PrevInMemory = p.PrevInMemory
	} else {
		b.tail = p.PrevInMemory
	}
	p.NextInMemory = pmstore.NilID
	p.PrevInMemory = pmstore.NilID

	if b.head == pmstore.NilID {
		b.occupied = false
		h.unlinkBucket(idx)
	}
}

func (h *Header) linkBucket(idx uint32) {
	if h.firstHash == NilBucket {
		h.firstHash = idx
		h.lastHash = idx
		h.buckets[idx].prevHash = NilBucket
		h.buckets[idx].nextHash = NilBucket
		return
	}
	h.buckets[h.lastHash].nextHash = idx
	h.buckets[idx].prevHash = h.lastHash
	h.buckets[idx].nextHash = NilBucket
	h.lastHash = idx
}

func (h *Header) unlinkBucket(idx uint32) {
	b := &h.buckets[idx]
	if b.prevHash != NilBucket {
		h.buckets[b.prevHash].nextHash = b.nextHash
	} else {
		h.firstHash = b.nextHash
	}
	if b.nextHash != NilBucket {
		h.buckets[b.nextHash].prevHash = b.prevHash
	} else {
		h.lastHash = b.prevHash
	}
	b.prevHash = NilBucket
	b.nextHash = NilBucket
}

// EachOccupiedBucket visits every currently non-empty bucket index, in
// firstHash..lastHash order.
func (h *Header) EachOccupiedBucket(f func(idx uint32)) {
	for idx := h.firstHash; idx != NilBucket; idx = h.buckets[idx].nextHash {
		f(idx)
	}
}

// Each visits every PartialMatch currently in bucket idx, in FIFO order.
// The visitor may safely cause pm to be removed from this or another
// bucket during the visit (the next link is captured before the callback
// runs), matching spec.md §5's "drive loops re-read their next-pointer
// before operating on the current node."
func (h *Header) Each(store *pmstore.Store, idx uint32, f func(pmstore.ID)) {
	id := h.buckets[idx].head
	for id != pmstore.NilID {
		next := store.Get(id).NextInMemory
		f(id)
		id = next
	}
}

// BucketOf returns the bucket index pm was last inserted into.
func (h *Header) BucketOf(pm pmstore.ID) (uint32, bool) {
	idx, ok := h.bucketOf[pm]
	return idx, ok
}

// Size returns the configured bucket count.
func (h *Header) Size() uint32 {
	return conv.IntToUint32(len(h.buckets))
}
