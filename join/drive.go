package join

import "github.com/coregx/rete/pmstore"

// NetworkAssertLeft drives lhsID into node from its LHS side: an assert
// inserts it into node.LeftMemory and attempts every matching RHS
// candidate; a retract tears down whatever node had built from it and
// removes it from node.LeftMemory (spec.md §4.4, §4.7).
func NetworkAssertLeft(rt *Runtime, node *Node, lhsID pmstore.ID, op Operation) {
	switch {
	case node.Negated:
		assertLeftNegated(rt, node, lhsID, op)
	case node.Exists:
		assertLeftExists(rt, node, lhsID, op)
	default:
		assertLeftPositive(rt, node, lhsID, op)
	}
}

// NetworkAssertRight drives rhsID into node from its RHS side — whether
// rhsID is a freshly alpha-matched entity or, for a join-from-the-right
// join, another join's own propagated output (spec.md §4.4).
func NetworkAssertRight(rt *Runtime, node *Node, rhsID pmstore.ID, op Operation) {
	switch {
	case node.Negated:
		assertRightNegated(rt, node, rhsID, op)
	case node.Exists:
		assertRightExists(rt, node, rhsID, op)
	default:
		assertRightPositive(rt, node, rhsID, op)
	}
}

// --- Positive join ---------------------------------------------------

func assertLeftPositive(rt *Runtime, node *Node, lhsID pmstore.ID, op Operation) {
	if op == Retract {
		retractChildren(rt, lhsID, true)
		node.LeftMemory.Remove(rt.Store, lhsID)
		return
	}

	hv := rt.leftHashValue(node, lhsID)
	idx := node.RightMemory.BucketFor(hv)
	node.RightMemory.Each(rt.Store, idx, func(rhsID pmstore.ID) {
		rhsBind := lastBind(rt.Store.Get(rhsID))
		ok, err := rt.evalPositiveTest(node, lhsID, rhsBind)
		if err != nil || !ok {
			return
		}
		childID := rt.Store.Merge(lhsID, rhsID, true)
		rt.propagate(node, childID, Assert)
	})
	node.LeftMemory.Insert(rt.Store, hv, lhsID)
}

func assertRightPositive(rt *Runtime, node *Node, rhsID pmstore.ID, op Operation) {
	if op == Retract {
		retractChildren(rt, rhsID, false)
		node.RightMemory.Remove(rt.Store, rhsID)
		return
	}

	rhsBind := lastBind(rt.Store.Get(rhsID))
	hv := rt.rightHashValue(node, rhsBind)

	if node.FirstJoin {
		childID := rt.Store.Merge(node.EmptyLHS, rhsID, true)
		rt.propagate(node, childID, Assert)
	} else {
		idx := node.LeftMemory.BucketFor(hv)
		node.LeftMemory.Each(rt.Store, idx, func(lhsID pmstore.ID) {
			ok, err := rt.evalPositiveTest(node, lhsID, rhsBind)
			if err != nil || !ok {
				return
			}
			childID := rt.Store.Merge(lhsID, rhsID, true)
			rt.propagate(node, childID, Assert)
		})
	}
	node.RightMemory.Insert(rt.Store, hv, rhsID)
}

// --- Negated join ------------------------------------------------------
//
// A negated join propagates (lhs, NULL) exactly while no RHS candidate
// satisfies the test. Matching RHS candidates are recorded as blockers;
// when the last blocker retracts, the suppressed (lhs, NULL) child
// re-propagates (spec.md §4.4, §8 testable property 9).

func assertLeftNegated(rt *Runtime, node *Node, lhsID pmstore.ID, op Operation) {
	if op == Retract {
		retractChildren(rt, lhsID, true)
		node.LeftMemory.Remove(rt.Store, lhsID)
		return
	}

	hv := rt.leftHashValue(node, lhsID)
	idx := node.RightMemory.BucketFor(hv)

	var blockers []pmstore.ID
	node.RightMemory.Each(rt.Store, idx, func(rhsID pmstore.ID) {
		rhsBind := lastBind(rt.Store.Get(rhsID))
		ok, err := rt.evalPositiveTest(node, lhsID, rhsBind)
		if err == nil && ok {
			blockers = append(blockers, rhsID)
		}
	})

	node.LeftMemory.Insert(rt.Store, hv, lhsID)
	for _, rhsID := range blockers {
		rt.Store.Block(lhsID, rhsID)
	}
	if len(blockers) == 0 {
		childID := rt.Store.Merge(lhsID, pmstore.NilID, false)
		rt.propagate(node, childID, Assert)
	}
}

func assertRightNegated(rt *Runtime, node *Node, rhsID pmstore.ID, op Operation) {
	if op == Retract {
		blockedLHS := append([]pmstore.ID(nil), rt.Store.BlockedLHS(rhsID)...)
		for _, lhsID := range blockedLHS {
			if rt.Store.Unblock(lhsID, rhsID) {
				childID := rt.Store.Merge(lhsID, pmstore.NilID, false)
				rt.propagate(node, childID, Assert)
			}
		}
		node.RightMemory.Remove(rt.Store, rhsID)
		return
	}

	rhsBind := lastBind(rt.Store.Get(rhsID))
	hv := rt.rightHashValue(node, rhsBind)

	if node.FirstJoin {
		ok, err := rt.evalPositiveTest(node, node.EmptyLHS, rhsBind)
		if err == nil && ok {
			wasBlocked := rt.Store.IsBlocked(node.EmptyLHS)
			rt.Store.Block(node.EmptyLHS, rhsID)
			if !wasBlocked {
				retractChildren(rt, node.EmptyLHS, true)
			}
		}
	} else {
		idx := node.LeftMemory.BucketFor(hv)
		node.LeftMemory.Each(rt.Store, idx, func(lhsID pmstore.ID) {
			ok, err := rt.evalPositiveTest(node, lhsID, rhsBind)
			if err != nil || !ok {
				return
			}
			wasBlocked := rt.Store.IsBlocked(lhsID)
			rt.Store.Block(lhsID, rhsID)
			if !wasBlocked {
				retractChildren(rt, lhsID, true)
			}
		})
	}
	node.RightMemory.Insert(rt.Store, hv, rhsID)
}

// --- Exists join ---------------------------------------------------
//
// Inverted from negated: a (lhs, NULL) child propagates exactly while at
// least one RHS candidate supports it. Only one supporting match is
// retained at a time (reusing the block link to record it); losing that
// support looks for a replacement before retracting the child.

func assertLeftExists(rt *Runtime, node *Node, lhsID pmstore.ID, op Operation) {
	if op == Retract {
		retractChildren(rt, lhsID, true)
		node.LeftMemory.Remove(rt.Store, lhsID)
		return
	}

	hv := rt.leftHashValue(node, lhsID)
	idx := node.RightMemory.BucketFor(hv)

	firstMatch := pmstore.NilID
	node.RightMemory.Each(rt.Store, idx, func(rhsID pmstore.ID) {
		if firstMatch != pmstore.NilID {
			return
		}
		rhsBind := lastBind(rt.Store.Get(rhsID))
		ok, err := rt.evalPositiveTest(node, lhsID, rhsBind)
		if err == nil && ok {
			firstMatch = rhsID
		}
	})

	node.LeftMemory.Insert(rt.Store, hv, lhsID)
	if firstMatch != pmstore.NilID {
		rt.Store.Block(lhsID, firstMatch)
		childID := rt.Store.Merge(lhsID, pmstore.NilID, false)
		rt.propagate(node, childID, Assert)
	}
}

func assertRightExists(rt *Runtime, node *Node, rhsID pmstore.ID, op Operation) {
	if op == Retract {
		blockedLHS := append([]pmstore.ID(nil), rt.Store.BlockedLHS(rhsID)...)
		for _, lhsID := range blockedLHS {
			rt.Store.Unblock(lhsID, rhsID)
			if rt.Store.IsBlocked(lhsID) {
				continue
			}
			replacement := findReplacementSupport(rt, node, lhsID, rhsID)
			if replacement != pmstore.NilID {
				rt.Store.Block(lhsID, replacement)
			} else {
				retractChildren(rt, lhsID, true)
			}
		}
		node.RightMemory.Remove(rt.Store, rhsID)
		return
	}

	rhsBind := lastBind(rt.Store.Get(rhsID))
	hv := rt.rightHashValue(node, rhsBind)

	if node.FirstJoin {
		if !rt.Store.IsBlocked(node.EmptyLHS) {
			ok, err := rt.evalPositiveTest(node, node.EmptyLHS, rhsBind)
			if err == nil && ok {
				rt.Store.Block(node.EmptyLHS, rhsID)
				childID := rt.Store.Merge(node.EmptyLHS, pmstore.NilID, false)
				rt.propagate(node, childID, Assert)
			}
		}
	} else {
		idx := node.LeftMemory.BucketFor(hv)
		node.LeftMemory.Each(rt.Store, idx, func(lhsID pmstore.ID) {
			if rt.Store.IsBlocked(lhsID) {
				return
			}
			ok, err := rt.evalPositiveTest(node, lhsID, rhsBind)
			if err != nil || !ok {
				return
			}
			rt.Store.Block(lhsID, rhsID)
			childID := rt.Store.Merge(lhsID, pmstore.NilID, false)
			rt.propagate(node, childID, Assert)
		})
	}
	node.RightMemory.Insert(rt.Store, hv, rhsID)
}

// findReplacementSupport looks for another RHS candidate in lhsID's bucket
// (other than exclude, which just retracted) that still satisfies node's
// test, so an exists join's child needn't be torn down and immediately
// rebuilt when several supporting matches exist.
func findReplacementSupport(rt *Runtime, node *Node, lhsID, exclude pmstore.ID) pmstore.ID {
	hv := rt.leftHashValue(node, lhsID)
	idx := node.RightMemory.BucketFor(hv)
	replacement := pmstore.NilID
	node.RightMemory.Each(rt.Store, idx, func(cand pmstore.ID) {
		if cand == exclude || replacement != pmstore.NilID {
			return
		}
		rhsBind := lastBind(rt.Store.Get(cand))
		ok, err := rt.evalPositiveTest(node, lhsID, rhsBind)
		if err == nil && ok {
			replacement = cand
		}
	})
	return replacement
}
