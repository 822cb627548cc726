// Package object implements the object-pattern sub-network (spec.md §4.5):
// a second discrimination tree, specialized for slot-oriented instance
// patterns, that feeds the same join network the fact-pattern alpha memories
// do.
package object

import (
	"github.com/coregx/rete/alpha"
	"github.com/coregx/rete/entity"
	"github.com/coregx/rete/eval"
	"github.com/coregx/rete/internal/atoms"
)

// ClassID identifies an object class (deftemplate-like shape) across the
// object network.
type ClassID uint32

// MultifieldLength is how the matcher learns how many values are currently
// bound to a multifield slot on an instance, needed to enumerate the
// (startPosition, range) splits spec.md §4.5 describes.
type MultifieldLength interface {
	Length(e entity.ID, slot atoms.ID) int
}

// AlphaNode is an object-pattern terminal: spec.md §4.5's ObjectAlphaNode,
// backed by the same alpha.Header bucket structure the fact network uses.
type AlphaNode struct {
	Classes    map[ClassID]bool
	SlotBitmap uint64
	Header     *alpha.Header

	matchTag uint64
}

// PatternNode is one level of the object discrimination tree: spec.md
// §4.5's ObjectPatternNode. A node either runs a constant Test, or — if
// Selector is set — dispatches directly to the child keyed by the
// evaluated (type, value) hash instead of scanning Children sequentially.
type PatternNode struct {
	Slot       atoms.ID
	SlotBitmap uint64
	Multifield bool
	Selector   bool
	Blocked    bool

	// Test is evaluated against the instance's bind at Ref{Pattern: 0, Slot:
	// Slot} (object-network contexts always test a single candidate
	// instance, never a cross-pattern join test — those live in join.Node).
	Test eval.Expression

	Children         []*PatternNode
	SelectorChildren map[uint64]*PatternNode
	Terminal         *AlphaNode

	matchTag uint64
}
