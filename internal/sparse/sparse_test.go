package sparse

import "testing"

func TestSetInsertContainsRemove(t *testing.T) {
	s := New(4)
	if s.Contains(2) {
		t.Fatal("empty set should not contain 2")
	}
	s.Insert(2)
	s.Insert(7) // past initial capacity, must grow
	if !s.Contains(2) || !s.Contains(7) {
		t.Fatal("expected 2 and 7 to be members")
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	s.Remove(2)
	if s.Contains(2) {
		t.Fatal("2 should have been removed")
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
}

func TestSetClear(t *testing.T) {
	s := New(4)
	s.Insert(1)
	s.Insert(2)
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after Clear", s.Len())
	}
	if s.Contains(1) {
		t.Fatal("set should be empty after Clear")
	}
}

func TestSetInsertIdempotent(t *testing.T) {
	s := New(4)
	s.Insert(3)
	s.Insert(3)
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after duplicate insert", s.Len())
	}
}

func TestSetValuesOrder(t *testing.T) {
	s := New(2)
	s.Insert(5)
	s.Insert(9)
	vals := s.Values()
	if len(vals) != 2 {
		t.Fatalf("len(Values()) = %d, want 2", len(vals))
	}
	if vals[0] != 5 || vals[1] != 9 {
		t.Fatalf("Values() = %v, want insertion order [5 9]", vals)
	}
}
