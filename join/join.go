// Package join implements the join-node network: the discrimination graph
// stage that propagates partial matches leftward and rightward across beta
// memories, evaluates network tests, and drives terminal-join rule
// activation (spec.md §4.4).
package join

import (
	"github.com/coregx/rete/agenda"
	"github.com/coregx/rete/alpha"
	"github.com/coregx/rete/beta"
	"github.com/coregx/rete/entity"
	"github.com/coregx/rete/eval"
	"github.com/coregx/rete/internal/atoms"
	"github.com/coregx/rete/internal/hash"
	"github.com/coregx/rete/internal/sparse"
	"github.com/coregx/rete/logical"
	"github.com/coregx/rete/pmstore"
)

// Operation distinguishes an assert drive from a retract drive.
type Operation uint8

const (
	Assert Operation = iota
	Retract
)

// Direction selects which side of a downstream join a Link feeds.
type Direction uint8

const (
	EnterLeft Direction = iota
	EnterRight
)

// Link threads a join's output to one downstream join, entering it on the
// named side (spec.md §4.4's "drive to each nextLink in the indicated
// direction").
type Link struct {
	Direction Direction
	Target    *Node
}

// Node is one join in the network: spec.md §4.1's JoinNode record. A join
// consumes an LHS stream (its lastLevel parent, or the single empty prime
// for a first join) and an RHS stream (an alpha memory, or — for
// join-from-the-right — another join's own output, wired in purely through
// Links; see the AlphaSource and JoinFromRight fields).
type Node struct {
	Depth     int
	FirstJoin bool

	// AlphaSource is this join's RHS alpha memory when it is fed directly
	// by pattern matching. nil for a join-from-the-right join, whose RHS
	// instead arrives exclusively through an upstream Link with
	// Direction == EnterRight.
	AlphaSource *alpha.Header

	LeftMemory  *beta.Memory
	RightMemory *beta.Memory

	// EmptyLHS is the sentinel empty partial match this join merges
	// against when FirstJoin is true, bypassing a LeftMemory bucket scan
	// (spec.md §4.4's first-join optimization).
	EmptyLHS pmstore.ID

	NetworkTest          *eval.BoolExpr
	SecondaryNetworkTest *eval.BoolExpr
	LeftHashExprs        []eval.Expression
	RightHashExprs       []eval.Expression

	// Negated and Exists select the CE-quantifier semantics spec.md §4.4
	// describes; both false is an ordinary positive join.
	Negated bool
	Exists  bool

	// JoinFromRight marks a join whose RHS stream is another join's output
	// rather than an alpha memory, purely for diagnostics — the drive
	// logic itself is identical either way (NetworkAssertRight doesn't
	// care where its caller got the PM from).
	JoinFromRight bool

	// LogicalJoin marks a join whose surviving matches register logical
	// dependencies (spec.md §4.6), consumed by the logical package.
	LogicalJoin bool

	// RuleToActivate is set only on a terminal join: completing a match
	// here adds (Assert) or removes (Retract) an activation instead of
	// merely feeding NextLinks.
	RuleToActivate *agenda.Rule

	NextLinks []*Link
}

// NewJoin creates a join at the given network depth. depth is the number
// of patterns matched by the time this join completes (1 for the first
// join). resizeBeta enables the dynamic beta-memory growth spec.md §3.2
// invariant 7 describes; tests that want deterministic bucket counts pass
// false.
func NewJoin(depth int, resizeBeta bool) *Node {
	return NewJoinWithHashSize(depth, resizeBeta, 0)
}

// NewJoinWithHashSize is NewJoin with an explicit initial beta-memory bucket
// count (0 uses beta.InitialSize), letting a host honor its own configured
// Config.InitialBetaHashSize.
func NewJoinWithHashSize(depth int, resizeBeta bool, initialHashSize uint32) *Node {
	return &Node{
		Depth:       depth,
		LeftMemory:  beta.NewMemory(beta.LHS, initialHashSize, resizeBeta),
		RightMemory: beta.NewMemory(beta.RHS, initialHashSize, resizeBeta),
		EmptyLHS:    pmstore.NilID,
	}
}

// AddLink wires node's output to target, entering target on the given
// side.
func (n *Node) AddLink(dir Direction, target *Node) {
	n.NextLinks = append(n.NextLinks, &Link{Direction: dir, Target: target})
}

// Runtime bundles the collaborators every drive function needs: the
// partial-match arena, the interned-atom tables a hash fold consults, the
// host's slot reader, and the agenda a terminal join activates.
type Runtime struct {
	Store  *pmstore.Store
	Tables *atoms.Tables
	Slots  entity.SlotReader
	Agenda agenda.Agenda

	// Logical is nil until a host wires it up (via SetLogicalManager), since
	// the manager needs a Retractor that itself wraps this Runtime's owning
	// Network — a dependency only the host can close the loop on.
	Logical *logical.Manager

	// owner maps a completed match's id to the join whose Merge produced it
	// (recorded by propagate). A retraction cascade consults this to find
	// which join's NextLinks the match was inserted into downstream, and
	// whether that join activates a rule.
	owner map[pmstore.ID]*Node
}

// NewRuntime creates a Runtime from its four collaborators.
func NewRuntime(store *pmstore.Store, tables *atoms.Tables, slots entity.SlotReader, ag agenda.Agenda) *Runtime {
	return &Runtime{Store: store, Tables: tables, Slots: slots, Agenda: ag, owner: make(map[pmstore.ID]*Node)}
}

// SetLogicalManager wires the logical-dependency manager in after both it
// and this Runtime's Network exist (the manager's Retractor is the Network
// itself), enabling retractChildren's logical-support teardown below.
func (rt *Runtime) SetLogicalManager(m *logical.Manager) { rt.Logical = m }

func lastBind(pm *pmstore.PartialMatch) pmstore.Bind {
	return pm.Binds[len(pm.Binds)-1]
}

// context builds an eval.Context that resolves a Ref against lhs's binds
// for pattern indices within lhs, falling through to rhsBind (the
// candidate entering from the other side) for anything past lhs's own
// patterns.
func (rt *Runtime) context(lhs *pmstore.PartialMatch, rhsBind pmstore.Bind, hasRHS bool) *eval.Context {
	return &eval.Context{
		Tables: rt.Tables,
		Resolve: func(ref eval.Ref) (eval.Value, bool) {
			if ref.Pattern >= 0 && ref.Pattern < len(lhs.Binds) {
				b := lhs.Binds[ref.Pattern]
				if !b.Valid {
					return eval.Value{}, false
				}
				return rt.Slots.Slot(b.Entity, ref.Slot)
			}
			if hasRHS && rhsBind.Valid {
				return rt.Slots.Slot(rhsBind.Entity, ref.Slot)
			}
			return eval.Value{}, false
		},
	}
}

// evalPositiveTest evaluates node's networkTest (and, for an exists join,
// secondaryNetworkTest) against lhsID's binds plus the candidate rhsBind.
// Errors are coerced to true under a negated/exists context, per spec.md
// §4.4 and §9's extension of that conservative coercion to exists by
// symmetry (both are existential-quantification variants).
func (rt *Runtime) evalPositiveTest(node *Node, lhsID pmstore.ID, rhsBind pmstore.Bind) (bool, error) {
	ctx := rt.context(rt.Store.Get(lhsID), rhsBind, true)
	negated := node.Negated || node.Exists

	if node.NetworkTest != nil {
		ok, err := node.NetworkTest.Eval(ctx, negated)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	if node.Exists && node.SecondaryNetworkTest != nil {
		return node.SecondaryNetworkTest.Eval(ctx, negated)
	}
	return true, nil
}

var emptyPM = &pmstore.PartialMatch{}

func (rt *Runtime) leftHashValue(node *Node, lhsID pmstore.ID) uint64 {
	if len(node.LeftHashExprs) == 0 {
		return 0
	}
	ctx := rt.context(rt.Store.Get(lhsID), pmstore.Bind{}, false)
	vals := make([]uint64, len(node.LeftHashExprs))
	for i, e := range node.LeftHashExprs {
		v, err := e.Evaluate(ctx)
		if err != nil {
			continue
		}
		vals[i] = v.Bucket(rt.Tables)
	}
	return hash.Values(vals)
}

func (rt *Runtime) rightHashValue(node *Node, rhsBind pmstore.Bind) uint64 {
	if len(node.RightHashExprs) == 0 {
		return 0
	}
	ctx := rt.context(emptyPM, rhsBind, true)
	vals := make([]uint64, len(node.RightHashExprs))
	for i, e := range node.RightHashExprs {
		v, err := e.Evaluate(ctx)
		if err != nil {
			continue
		}
		vals[i] = v.Bucket(rt.Tables)
	}
	return hash.Values(vals)
}

// activateIfTerminal adds or removes pm's activation when node is a
// terminal join.
func (rt *Runtime) activateIfTerminal(node *Node, pm pmstore.ID, op Operation) {
	if node.RuleToActivate == nil {
		return
	}
	if op == Assert {
		rt.Agenda.AddActivation(node.RuleToActivate, pm)
	} else {
		rt.Agenda.RemoveActivation(node.RuleToActivate, pm)
	}
}

// propagate drives pm into every one of node's NextLinks, and activates or
// deactivates node's rule if it is a terminal join.
//
// Simplification recorded in DESIGN.md: pm is driven as-is into every
// link, so a single join with more than one NextLink in the same direction
// shares one PartialMatch object across those downstream memories. Because
// a PartialMatch carries exactly one NextInMemory/PrevInMemory thread, this
// is only correct when at most one of those downstream memories actually
// stores pm at a time — true for every network this package builds from
// SPEC_FULL.md's scenarios (no two rules share a join's tail). A network
// that fans the same completed match into multiple sibling joins needing
// simultaneous membership would need per-link cloning instead.
func (rt *Runtime) propagate(node *Node, pm pmstore.ID, op Operation) {
	if op == Assert {
		rt.owner[pm] = node
	}
	rt.activateIfTerminal(node, pm, op)
	for _, link := range node.NextLinks {
		if link.Direction == EnterLeft {
			NetworkAssertLeft(rt, link.Target, pm, op)
		} else {
			NetworkAssertRight(rt, link.Target, pm, op)
		}
	}
}

// retractChildren tears down every child built from parentID as its left
// (or right) contributor, as one retraction cascade (spec.md §4.7). A
// sparse.Set deduplicates arena slots reachable through more than one
// lineage edge within the same cascade (a match whose left and right parents
// both fall inside the cascade, for instance), so each is torn
// down exactly once — the "visited" role internal/sparse's doc comment
// describes, driven here as an explicit worklist instead of recursion so a
// long retraction chain never grows the Go call stack.
//
// Each child id is looked up in rt.owner, the join whose Merge produced it.
// That join's NextLinks say which downstream memories id was inserted into
// (propagate drove it there on assert) and activateIfTerminal says whether
// tearing it down must also withdraw a rule activation — both unreachable
// from the lineage arrays alone, since a PartialMatch doesn't carry a
// back-pointer to its producing join.
func retractChildren(rt *Runtime, parentID pmstore.ID, leftSide bool) {
	parent := rt.Store.Get(parentID)
	var queue []pmstore.ID
	if leftSide {
		queue = append(queue, parent.LeftChildren...)
	} else {
		queue = append(queue, parent.RightChildren...)
	}
	if len(queue) == 0 {
		return
	}

	visited := sparse.New(0)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited.Contains(uint32(id)) {
			continue
		}
		visited.Insert(uint32(id))

		pm := rt.Store.Get(id)
		if pm.Deleting {
			continue
		}
		queue = append(queue, pm.LeftChildren...)
		queue = append(queue, pm.RightChildren...)

		if owner, ok := rt.owner[id]; ok {
			for _, link := range owner.NextLinks {
				if link.Direction == EnterLeft {
					link.Target.LeftMemory.Remove(rt.Store, id)
				} else {
					link.Target.RightMemory.Remove(rt.Store, id)
				}
			}
			rt.activateIfTerminal(owner, id, Retract)
			delete(rt.owner, id)
		}

		if pm.LeftParent != pmstore.NilID {
			rt.Store.UnlinkLeftChild(pm.LeftParent, id)
		}
		if pm.RightParent != pmstore.NilID {
			rt.Store.UnlinkRightChild(pm.RightParent, id)
		}
		if rt.Logical != nil {
			rt.Logical.RemoveLogicalSupport(id)
		}
		rt.Store.ReturnPartialMatch(id)
	}
}
