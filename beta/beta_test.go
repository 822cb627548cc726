package beta

import (
	"testing"

	"github.com/coregx/rete/entity"
	"github.com/coregx/rete/pmstore"
)

func TestBucketModuloInvariant(t *testing.T) {
	store := pmstore.NewStore()
	m := NewMemory(RHS, 4, false)
	id := store.CreateAlpha(entity.ID(1), nil, 0)
	m.Insert(store, 13, id)

	pm := store.Get(id)
	if pm.HashValue%uint64(m.Size()) != uint64(m.BucketFor(pm.HashValue)) {
		t.Fatal("hash mod size invariant violated")
	}
}

func TestRHSAppendOrderIsFIFO(t *testing.T) {
	store := pmstore.NewStore()
	m := NewMemory(RHS, 4, false)
	a := store.CreateAlpha(entity.ID(1), nil, 0)
	b := store.CreateAlpha(entity.ID(2), nil, 0)
	c := store.CreateAlpha(entity.ID(3), nil, 0)
	m.Insert(store, 0, a)
	m.Insert(store, 4, b)
	m.Insert(store, 8, c)

	var order []pmstore.ID
	m.Each(store, 0, func(id pmstore.ID) { order = append(order, id) })
	if len(order) != 3 || order[0] != a || order[1] != b || order[2] != c {
		t.Fatalf("RHS order = %v, want oldest-first [%v %v %v]", order, a, b, c)
	}
}

func TestLHSPrependOrderIsLIFO(t *testing.T) {
	store := pmstore.NewStore()
	m := NewMemory(LHS, 4, false)
	a := store.CreateAlpha(entity.ID(1), nil, 0)
	b := store.CreateAlpha(entity.ID(2), nil, 0)
	c := store.CreateAlpha(entity.ID(3), nil, 0)
	m.Insert(store, 0, a)
	m.Insert(store, 4, b)
	m.Insert(store, 8, c)

	var order []pmstore.ID
	m.Each(store, 0, func(id pmstore.ID) { order = append(order, id) })
	if len(order) != 3 || order[0] != c || order[1] != b || order[2] != a {
		t.Fatalf("LHS order = %v, want newest-first [%v %v %v]", order, c, b, a)
	}
}

func TestResizeGrowsAndPreservesMembership(t *testing.T) {
	store := pmstore.NewStore()
	m := NewMemory(RHS, 2, true)

	ids := make([]pmstore.ID, 0, 30)
	for i := 0; i < 30; i++ {
		id := store.CreateAlpha(entity.ID(uint64(i)), nil, 0)
		m.Insert(store, uint64(i), id)
		ids = append(ids, id)
	}

	if m.Size() <= 2 {
		t.Fatalf("expected memory to have resized past initial size 2, got %d", m.Size())
	}
	if m.Count() != 30 {
		t.Fatalf("Count() = %d, want 30", m.Count())
	}

	// every member must still be reachable at its new bucket
	seen := map[pmstore.ID]bool{}
	for b := uint32(0); b < m.Size(); b++ {
		m.Each(store, b, func(id pmstore.ID) {
			if store.Get(id).HashValue%uint64(m.Size()) != uint64(b) {
				t.Fatalf("member %v found in wrong bucket %d after resize", id, b)
			}
			seen[id] = true
		})
	}
	for _, id := range ids {
		if !seen[id] {
			t.Fatalf("member %v lost after resize", id)
		}
	}
}

func TestShrinkOnEmpty(t *testing.T) {
	store := pmstore.NewStore()
	m := NewMemory(RHS, 2, true)
	ids := make([]pmstore.ID, 0, 25)
	for i := 0; i < 25; i++ {
		id := store.CreateAlpha(entity.ID(uint64(i)), nil, 0)
		m.Insert(store, uint64(i), id)
		ids = append(ids, id)
	}
	if m.Size() <= 2 {
		t.Fatal("expected resize to have grown the table")
	}
	for _, id := range ids {
		m.Remove(store, id)
	}
	if m.Size() != InitialSize {
		t.Fatalf("Size() after emptying = %d, want InitialSize %d", m.Size(), InitialSize)
	}
	if m.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", m.Count())
	}
}
