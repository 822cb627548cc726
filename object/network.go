package object

import (
	"math"

	"github.com/coregx/rete/entity"
	"github.com/coregx/rete/eval"
	"github.com/coregx/rete/internal/atoms"
	"github.com/coregx/rete/join"
	"github.com/coregx/rete/pmstore"
)

// ActionKind tags a deferred object edit (spec.md §4.5's ObjectMatchAction).
type ActionKind uint8

const (
	ActionAssert ActionKind = iota
	ActionRetract
	ActionModify
)

// AnySlot is the slotId sentinel meaning "any slot may have changed"
// (spec.md §6).
const AnySlot uint64 = math.MaxUint64

type queueEntry struct {
	kind       ActionKind
	entity     entity.ID
	class      ClassID
	slotBitmap uint64
}

// Network is the object-pattern sub-network bound to one join.Network. It
// owns the class-to-alpha reactive list, match-time tagging, and the
// deferred match-action queue (spec.md §4.5).
type Network struct {
	store  *pmstore.Store
	tables *atoms.Tables
	slots  entity.SlotReader
	mfLen  MultifieldLength
	joinNet *join.Network

	classIndex map[ClassID][]*PatternNode
	allNodes   []*PatternNode
	allAlpha   []*AlphaNode
	currentTag uint64

	delay           bool
	joinInProgress  bool
	queue           []queueEntry
	queueIdx        map[entity.ID]int
	nextTimetagBase int64
}

// NewNetwork creates an object network over the given collaborators.
// joinNet is where a completed object-pattern match is driven once it
// reaches an AlphaNode's Header.
func NewNetwork(store *pmstore.Store, tables *atoms.Tables, slots entity.SlotReader, mfLen MultifieldLength, joinNet *join.Network) *Network {
	return &Network{
		store:      store,
		tables:     tables,
		slots:      slots,
		mfLen:      mfLen,
		joinNet:    joinNet,
		classIndex: make(map[ClassID][]*PatternNode),
		queueIdx:   make(map[entity.ID]int),
	}
}

// RegisterRoot adds root as a pattern-tree entry point reached whenever an
// instance of class is asserted, retracted, or modified — the "class
// carries a list of alpha nodes whose class-bitmap includes this class"
// reactive list of spec.md §4.5.
func (n *Network) RegisterRoot(class ClassID, root *PatternNode) {
	n.classIndex[class] = append(n.classIndex[class], root)
	n.registerNode(root)
}

func (n *Network) registerNode(node *PatternNode) {
	n.allNodes = append(n.allNodes, node)
	if node.Terminal != nil {
		n.allAlpha = append(n.allAlpha, node.Terminal)
	}
	for _, c := range node.Children {
		n.registerNode(c)
	}
	for _, c := range node.SelectorChildren {
		n.registerNode(c)
	}
}

// SetDelay opens or closes the deferred-match-action batch window (spec.md
// §6's setDelayObjectPatternMatching). Closing it drains the queue.
func (n *Network) SetDelay(delay bool) {
	wasDelaying := n.delay
	n.delay = delay
	if wasDelaying && !delay {
		n.Drain()
	}
}

// Delaying reports whether a batch window is currently open.
func (n *Network) Delaying() bool { return n.delay }

// ObjectNetworkAction is the object store's entry point into the engine
// (spec.md §6). When a delay window is open, or a join drive is already in
// progress, the edit is queued instead of matched immediately (spec.md §5
// "Object match during join").
func (n *Network) ObjectNetworkAction(kind ActionKind, e entity.ID, class ClassID, slotBitmap uint64) {
	if n.delay || n.joinInProgress {
		n.enqueue(e, class, kind, slotBitmap)
		return
	}
	n.dispatch(kind, e, class, slotBitmap)
}

func (n *Network) dispatch(kind ActionKind, e entity.ID, class ClassID, slotBitmap uint64) {
	n.joinInProgress = true
	defer func() { n.joinInProgress = false }()

	switch kind {
	case ActionAssert:
		n.matchAssert(e, class)
	case ActionRetract:
		n.matchRetract(e)
	case ActionModify:
		n.matchModify(e, class, slotBitmap)
	}
}

// Drain runs every queued action to completion in FIFO order (spec.md
// §4.5's "drain runs in FIFO order over a single monotonic timetag").
func (n *Network) Drain() {
	q := n.queue
	n.queue = nil
	n.queueIdx = make(map[entity.ID]int)

	tag := n.store.Timetag() + 1
	n.store.SetTimetag(tag)
	for _, qe := range q {
		n.dispatch(qe.kind, qe.entity, qe.class, qe.slotBitmap)
	}
}

// enqueue applies spec.md §4.5's queue-merge table for a new action on the
// same instance as one already pending, or appends/inserts a fresh entry.
func (n *Network) enqueue(e entity.ID, class ClassID, kind ActionKind, slotBitmap uint64) {
	if idx, ok := n.queueIdx[e]; ok {
		existing := &n.queue[idx]
		switch {
		case existing.kind == ActionAssert && kind == ActionRetract:
			n.removeQueueEntry(idx)
			return
		case existing.kind == ActionAssert && kind == ActionModify:
			return
		case existing.kind == ActionModify && kind == ActionModify:
			existing.slotBitmap |= slotBitmap
			return
		case existing.kind == ActionModify && kind == ActionRetract:
			existing.kind = ActionRetract
			existing.slotBitmap = slotBitmap
			return
		}
	}

	if kind == ActionRetract {
		insertPos := 0
		for insertPos < len(n.queue) && n.queue[insertPos].kind == ActionRetract {
			insertPos++
		}
		n.queue = append(n.queue, queueEntry{})
		copy(n.queue[insertPos+1:], n.queue[insertPos:])
		n.queue[insertPos] = queueEntry{kind: kind, entity: e, class: class, slotBitmap: slotBitmap}
		n.reindexAll()
		return
	}

	n.queue = append(n.queue, queueEntry{kind: kind, entity: e, class: class, slotBitmap: slotBitmap})
	n.queueIdx[e] = len(n.queue) - 1
}

func (n *Network) removeQueueEntry(idx int) {
	n.queue = append(n.queue[:idx], n.queue[idx+1:]...)
	n.reindexAll()
}

func (n *Network) reindexAll() {
	n.queueIdx = make(map[entity.ID]int, len(n.queue))
	for i, qe := range n.queue {
		n.queueIdx[qe.entity] = i
	}
}

// QueueLen reports how many actions are currently queued, used by tests
// asserting delay batching.
func (n *Network) QueueLen() int { return len(n.queue) }

// nextTag advances currentTag, resetting every node's stamp and restarting
// numbering at 1 on overflow (spec.md §4.5 "when it would overflow, the
// matcher resets all tags to 0 and restarts numbering").
func (n *Network) nextTag() uint64 {
	if n.currentTag == math.MaxUint64 {
		for _, nd := range n.allNodes {
			nd.matchTag = 0
		}
		for _, an := range n.allAlpha {
			an.matchTag = 0
		}
		n.currentTag = 0
	}
	n.currentTag++
	return n.currentTag
}

func (n *Network) matchAssert(e entity.ID, class ClassID) {
	tag := n.nextTag()
	for _, root := range n.classIndex[class] {
		n.walk(root, e, AnySlot, false, tag)
	}
}

// matchModify retracts every alpha match currently recorded for e and
// re-derives matches from scratch against the instance's post-modify slot
// values.
//
// Simplification recorded in DESIGN.md: a targeted re-match would retract
// and re-walk only the subtrees whose SlotBitmap intersects slotBitmap,
// leaving matches rooted in untouched subtrees alone. Doing that safely
// requires knowing, per retracted alpha match, which AlphaNode produced it
// (so an unaffected subtree's match is never torn down); this reference
// network does not index that reverse mapping, so it retracts and
// re-derives unconditionally instead. The end state — which matches exist
// after the modify settles — is identical either way; only the amount of
// churn in between differs. The slot-bitmap intersection check in walk
// itself is still real and exercised directly (object_test.go), for a host
// that wants the targeted fast path.
func (n *Network) matchModify(e entity.ID, class ClassID, slotBitmap uint64) {
	n.joinNet.RetractEntity(e)
	tag := n.nextTag()
	for _, root := range n.classIndex[class] {
		n.walk(root, e, AnySlot, false, tag)
	}
}

// matchRetract cascades a retraction for every alpha-level match recorded
// for e, via the join network (spec.md §4.7 shared with the fact side).
func (n *Network) matchRetract(e entity.ID) {
	n.joinNet.RetractEntity(e)
}

// walk descends the pattern tree from node, applying slot-bitmap filtering
// for modify operations, match-time-tag dedup across shared subtrees, and
// the blocked-short-circuit rule per sibling slot group. It reports whether
// node's own test passed (false if filtered out, already visited this
// round, or its test failed/errored) so a caller iterating siblings knows
// whether to honor node.Blocked.
func (n *Network) walk(node *PatternNode, e entity.ID, modifiedSlots uint64, isModify bool, tag uint64) bool {
	if isModify && node.SlotBitmap&modifiedSlots == 0 {
		return false
	}
	if node.matchTag == tag {
		return false
	}
	node.matchTag = tag

	if node.Selector {
		val, ok := n.slots.Slot(e, node.Slot)
		if !ok {
			return false
		}
		key := val.Bucket(n.tables)
		child, ok := node.SelectorChildren[key]
		if !ok {
			return false
		}
		return n.walk(child, e, modifiedSlots, isModify, tag)
	}

	if node.Multifield {
		return n.walkMultifield(node, e, modifiedSlots, isModify, tag)
	}

	ok, err := n.evalConstant(node, e)
	if err != nil || !ok {
		return false
	}
	if node.Terminal != nil {
		n.emit(node.Terminal, e, tag)
	}
	n.descendChildren(node, e, modifiedSlots, isModify, tag)
	return true
}

// descendChildren visits node's Children, honoring the "blocked" rule:
// once a blocked child matches, remaining children testing the same slot
// are skipped (spec.md §4.5 "constant nodes with blocked=true short-circuit
// further sibling attempts on the same field/slot").
func (n *Network) descendChildren(node *PatternNode, e entity.ID, modifiedSlots uint64, isModify bool, tag uint64) {
	skipSlot := make(map[atoms.ID]bool)
	for _, child := range node.Children {
		if skipSlot[child.Slot] {
			continue
		}
		matched := n.walk(child, e, modifiedSlots, isModify, tag)
		if matched && child.Blocked {
			skipSlot[child.Slot] = true
		}
	}
}

func (n *Network) walkMultifield(node *PatternNode, e entity.ID, modifiedSlots uint64, isModify bool, tag uint64) bool {
	length := n.mfLen.Length(e, node.Slot)
	matchedAny := false
	for start := 0; start <= length; start++ {
		for rng := 0; start+rng <= length; rng++ {
			ok, err := n.evalMultifieldSplit(node, e, start, rng)
			if err != nil || !ok {
				continue
			}
			matchedAny = true
			if node.Terminal != nil {
				n.emit(node.Terminal, e, tag)
			}
			n.descendChildren(node, e, modifiedSlots, isModify, tag)
			if node.Blocked {
				return true
			}
		}
	}
	return matchedAny
}

func (n *Network) evalConstant(node *PatternNode, e entity.ID) (bool, error) {
	if node.Test == nil {
		return true, nil
	}
	ctx := &eval.Context{
		Tables: n.tables,
		Resolve: func(ref eval.Ref) (eval.Value, bool) {
			return n.slots.Slot(e, ref.Slot)
		},
	}
	v, err := node.Test.Evaluate(ctx)
	if err != nil {
		return false, err
	}
	return eval.Truthy(v), nil
}

// evalMultifieldSplit evaluates node's Test for one candidate split. The
// split bounds are neither passed to the test nor recorded as a
// MultifieldMarker (emit asserts with no markers), so every split of a slot
// resolves the test against the same Value.
func (n *Network) evalMultifieldSplit(node *PatternNode, e entity.ID, start, rng int) (bool, error) {
	return n.evalConstant(node, e)
}

func (n *Network) emit(an *AlphaNode, e entity.ID, tag uint64) {
	if an.matchTag == tag {
		return
	}
	an.matchTag = tag
	n.joinNet.AssertFact(an.Header, e, nil, 0)
}
