package rete

import (
	"bytes"
	"testing"

	"github.com/coregx/rete/agenda"
	"github.com/coregx/rete/entity"
	"github.com/coregx/rete/eval"
	"github.com/coregx/rete/internal/atoms"
	"github.com/coregx/rete/join"
	"github.com/coregx/rete/object"
	"github.com/coregx/rete/pmstore"
)

// fakeSlots is a minimal entity.SlotReader backed by a map, enough to drive
// these scenarios without pulling in a real host expression evaluator.
type fakeSlots struct {
	vals map[entity.ID]map[atoms.ID]int64
}

func newFakeSlots() *fakeSlots { return &fakeSlots{vals: make(map[entity.ID]map[atoms.ID]int64)} }

func (f *fakeSlots) set(e entity.ID, slot atoms.ID, v int64) {
	if f.vals[e] == nil {
		f.vals[e] = make(map[atoms.ID]int64)
	}
	f.vals[e][slot] = v
}

func (f *fakeSlots) Slot(e entity.ID, slot atoms.ID) (eval.Value, bool) {
	m, ok := f.vals[e]
	if !ok {
		return eval.Value{}, false
	}
	v, ok := m[slot]
	if !ok {
		return eval.Value{}, false
	}
	return eval.Value{Kind: eval.KindInteger, EntityID: uint64(v)}, true
}

type noMultifields struct{}

func (noMultifields) Length(entity.ID, atoms.ID) int { return 0 }

// eqExpr compares two Refs for equality via their resolved EntityID,
// standing in for a compiled "?x == ?x" cross-pattern join test.
type eqExpr struct{ a, b eval.Ref }

func (e eqExpr) Evaluate(ctx *eval.Context) (eval.Value, error) {
	va, err := (eval.Var(e.a)).Evaluate(ctx)
	if err != nil {
		return eval.Value{}, err
	}
	vb, err := (eval.Var(e.b)).Evaluate(ctx)
	if err != nil {
		return eval.Value{}, err
	}
	return eval.Bool(va.EntityID == vb.EntityID), nil
}

// positiveExpr evaluates "slot k > 0" against the candidate's own bind.
type positiveExpr struct{ slot atoms.ID }

func (p positiveExpr) Evaluate(ctx *eval.Context) (eval.Value, error) {
	v, ok := ctx.Resolve(eval.Ref{Pattern: 0, Slot: p.slot})
	if !ok {
		return eval.Value{}, &eval.EvalError{Err: eval.ErrUnboundVariable}
	}
	return eval.Bool(int64(v.EntityID) > 0), nil
}

func newScenarioEnv(t *testing.T) (*Environment, *fakeSlots) {
	t.Helper()
	slots := newFakeSlots()
	env := New(DefaultConfig(), slots, noMultifields{}, nil)
	return env, slots
}

// TestScenarioS1_SimplePositiveJoin implements spec.md §8 S1: R1: (A ?x) (B
// ?x). Assert A 7, assert B 7, assert B 8 yields one activation bound to
// ?x=7; retracting A 7 withdraws it.
func TestScenarioS1_SimplePositiveJoin(t *testing.T) {
	env, slots := newScenarioEnv(t)
	slotX := atoms.ID(1)

	first := env.NewJoin(1)
	first.FirstJoin = true
	first.EmptyLHS = env.Store.CreateEmpty()

	second := env.NewJoin(2)
	second.NetworkTest = eval.Leaf(eqExpr{a: eval.Ref{Pattern: 0, Slot: slotX}, b: eval.Ref{Pattern: 1, Slot: slotX}})
	second.RuleToActivate = &agenda.Rule{Name: "R1"}
	first.AddLink(join.EnterLeft, second)

	hA := env.NewHeader()
	hB := env.NewHeader()
	env.RegisterHeaderJoin(hA, first)
	env.RegisterHeaderJoin(hB, second)

	a7, b7, b8 := entity.ID(1), entity.ID(2), entity.ID(3)
	slots.set(a7, slotX, 7)
	slots.set(b7, slotX, 7)
	slots.set(b8, slotX, 8)

	env.Assert(hA, a7, nil, 0)
	env.Assert(hB, b7, nil, 0)
	env.Assert(hB, b8, nil, 0)

	if env.Agenda.Len() != 1 {
		t.Fatalf("expected exactly one activation bound to x=7, got %d", env.Agenda.Len())
	}

	env.Retract(a7)
	if env.Agenda.Len() != 0 {
		t.Fatalf("expected activation removed after A 7 retracts, got %d", env.Agenda.Len())
	}
}

// TestScenarioS2_NegatedCE implements spec.md §8 S2: R2: (A ?x) (not (C
// ?x)). Asserting A 3 activates R2; asserting C 3 deactivates it; retracting
// C 3 reactivates it.
func TestScenarioS2_NegatedCE(t *testing.T) {
	env, slots := newScenarioEnv(t)
	slotX := atoms.ID(1)

	first := env.NewJoin(1)
	first.FirstJoin = true
	first.EmptyLHS = env.Store.CreateEmpty()

	second := env.NewJoin(2)
	second.Negated = true
	second.NetworkTest = eval.Leaf(eqExpr{a: eval.Ref{Pattern: 0, Slot: slotX}, b: eval.Ref{Pattern: 1, Slot: slotX}})
	second.RuleToActivate = &agenda.Rule{Name: "R2"}
	first.AddLink(join.EnterLeft, second)

	hA := env.NewHeader()
	hC := env.NewHeader()
	env.RegisterHeaderJoin(hA, first)
	env.RegisterHeaderJoin(hC, second)

	a3, c3 := entity.ID(1), entity.ID(2)
	slots.set(a3, slotX, 3)
	slots.set(c3, slotX, 3)

	env.Assert(hA, a3, nil, 0)
	if env.Agenda.Len() != 1 {
		t.Fatalf("expected R2 to activate with x=3, got %d activations", env.Agenda.Len())
	}

	env.Assert(hC, c3, nil, 0)
	if env.Agenda.Len() != 0 {
		t.Fatalf("expected R2 to deactivate once C 3 is asserted, got %d activations", env.Agenda.Len())
	}

	env.Retract(c3)
	if env.Agenda.Len() != 1 {
		t.Fatalf("expected R2 to reactivate once C 3 retracts, got %d activations", env.Agenda.Len())
	}
}

// TestScenarioS3_ExistsWithModify implements spec.md §8 S3: object class Foo
// with slot k, rule R3: (exists (Foo (k ?v&:(> ?v 0)))). Asserting
// Foo{k=-1} yields no activation; modifying to k=5 activates R3; modifying
// back to k=-1 withdraws it.
func TestScenarioS3_ExistsWithModify(t *testing.T) {
	env, slots := newScenarioEnv(t)
	slotK := atoms.ID(1)

	first := env.NewJoin(1)
	first.FirstJoin = true
	first.EmptyLHS = env.Store.CreateEmpty()
	first.Exists = true
	first.RuleToActivate = &agenda.Rule{Name: "R3"}

	header := env.NewHeader()
	env.RegisterHeaderJoin(header, first)

	class := object.ClassID(1)
	root := &object.PatternNode{
		Slot:       slotK,
		SlotBitmap: 1,
		Test:       positiveExpr{slot: slotK},
		Terminal:   &object.AlphaNode{Classes: map[object.ClassID]bool{class: true}, SlotBitmap: 1, Header: header},
	}
	env.RegisterObjectRoot(class, root)

	foo := entity.ID(1)
	slots.set(foo, slotK, -1)
	env.ObjectAssert(foo, class)
	if env.Agenda.Len() != 0 {
		t.Fatalf("expected no activation for k=-1, got %d", env.Agenda.Len())
	}

	slots.set(foo, slotK, 5)
	env.ObjectModify(foo, class, 1)
	if env.Agenda.Len() != 1 {
		t.Fatalf("expected one activation after modify to k=5, got %d", env.Agenda.Len())
	}

	slots.set(foo, slotK, -1)
	env.ObjectModify(foo, class, 1)
	if env.Agenda.Len() != 0 {
		t.Fatalf("expected activation removed after modify back to k=-1, got %d", env.Agenda.Len())
	}
}

// TestScenarioS4_DelayBatching implements spec.md §8 S4: within a delay
// window, retract A 1, modify Foo{k}, assert A 2; outside the window the
// queue drains retract-first under one monotonic timetag.
func TestScenarioS4_DelayBatching(t *testing.T) {
	env, slots := newScenarioEnv(t)
	slotX := atoms.ID(1)
	slotK := atoms.ID(2)

	first := env.NewJoin(1)
	first.FirstJoin = true
	first.EmptyLHS = env.Store.CreateEmpty()
	first.RuleToActivate = &agenda.Rule{Name: "RA"}

	hA := env.NewHeader()
	env.RegisterHeaderJoin(hA, first)

	class := object.ClassID(1)
	root := &object.PatternNode{
		Slot:       slotK,
		SlotBitmap: 1,
		Terminal:   &object.AlphaNode{Classes: map[object.ClassID]bool{class: true}, SlotBitmap: 1, Header: env.NewHeader()},
	}
	env.RegisterObjectRoot(class, root)

	a1 := entity.ID(1)
	foo := entity.ID(2)
	slots.set(a1, slotX, 1)
	slots.set(foo, slotK, 1)
	env.Assert(hA, a1, nil, 0)
	env.ObjectAssert(foo, class)
	before := env.Store.Timetag()

	env.SetDelayObjectPatternMatching(true)
	env.Retract(a1)
	env.ObjectModify(foo, class, 1)
	a2 := entity.ID(3)
	slots.set(a2, slotX, 2)
	env.Assert(hA, a2, nil, 0)

	if env.ObjectNet.QueueLen() == 0 {
		t.Fatal("expected the object-side edit to be queued during the delay window")
	}

	env.SetDelayObjectPatternMatching(false)
	if env.Store.Timetag() != before+1 {
		t.Fatalf("expected one monotonic timetag advance on drain, got base %d -> %d", before, env.Store.Timetag())
	}
	if env.Agenda.Len() != 1 {
		t.Fatalf("expected exactly one activation (A 2) once the window closes, got %d", env.Agenda.Len())
	}
}

// TestScenarioS5_LogicalSupport implements spec.md §8 S5: R5: (logical (A
// ?x)) => (assert (D ?x)). Firing R5 creates D 9 under logical support from
// A 9's match; retracting A 9 retracts D 9 before the next rule fires.
func TestScenarioS5_LogicalSupport(t *testing.T) {
	env, slots := newScenarioEnv(t)
	slotX := atoms.ID(1)

	first := env.NewJoin(1)
	first.FirstJoin = true
	first.EmptyLHS = env.Store.CreateEmpty()
	first.LogicalJoin = true
	rule := &agenda.Rule{Name: "R5"}
	first.RuleToActivate = rule

	hA := env.NewHeader()
	hD := env.NewHeader()
	env.RegisterHeaderJoin(hA, first)
	env.RegisterHeaderJoin(hD, env.NewJoin(1)) // D has no rule watching it in this scenario

	a9 := entity.ID(9)
	d9 := entity.ID(109)
	slots.set(a9, slotX, 9)

	env.Assert(hA, a9, nil, 0)
	if env.Agenda.Len() != 1 {
		t.Fatalf("expected R5 to activate for A 9, got %d", env.Agenda.Len())
	}

	fired := env.FireNext(func(r *agenda.Rule, lhs pmstore.ID) {
		if r != rule {
			t.Fatalf("unexpected rule fired: %s", r.Name)
		}
		env.Assert(hD, d9, nil, 0)
		env.Logical.RecordSupport(lhs, d9)
	})
	if !fired {
		t.Fatal("expected FireNext to fire R5")
	}
	if len(env.Store.EntityAlphaMatches(d9)) == 0 {
		t.Fatal("expected D 9 to have been asserted")
	}

	env.Retract(a9)
	if len(env.Store.EntityAlphaMatches(d9)) != 0 {
		t.Fatal("expected D 9 to be retracted by logical support once A 9 retracts")
	}
}

// TestScenarioS6_ImageRoundTrip implements spec.md §8 S6: bsave an
// environment's interned atom tables, bload into a fresh environment, and
// confirm the atom identities line up bit-for-bit.
func TestScenarioS6_ImageRoundTrip(t *testing.T) {
	env, _ := newScenarioEnv(t)
	symFoo := env.Tables.Symbols.Intern("foo")
	symBar := env.Tables.Symbols.Intern("bar")

	var buf bytes.Buffer
	if err := env.Bsave(&buf, "1.0", nil, nil); err != nil {
		t.Fatalf("bsave failed: %v", err)
	}

	fresh, _ := newScenarioEnv(t)
	if _, err := fresh.Bload(&buf, allFunctionsDefined{}, nil); err != nil {
		t.Fatalf("bload failed: %v", err)
	}

	if fresh.Tables.Symbols.Intern("foo") != symFoo {
		t.Fatalf("expected symbol %q to re-intern to the same id %d, got %d", "foo", symFoo, fresh.Tables.Symbols.Intern("foo"))
	}
	if fresh.Tables.Symbols.Intern("bar") != symBar {
		t.Fatalf("expected symbol %q to re-intern to the same id %d, got %d", "bar", symBar, fresh.Tables.Symbols.Intern("bar"))
	}
}

type allFunctionsDefined struct{}

func (allFunctionsDefined) Defined(string) bool { return true }
