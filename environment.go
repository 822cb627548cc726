// Package rete assembles the join network, object-pattern network, partial-
// match store, agenda, and logical-dependency manager into a single
// Environment, the aggregate spec.md §9's design note describes in place of
// CLIPS's dozen module-global data blocks (DefruleData, EngineData,
// ObjectReteData, BloadData, BsaveData, SystemDependentData): one struct,
// passed explicitly, with well-defined field initialization order.
//
// Compiling rule/pattern syntax into alpha headers and join nodes is out of
// scope (spec.md §6); a host builds the network once against this
// Environment's NewHeader/NewJoin/RegisterHeaderJoin/RegisterObjectRoot and then drives it
// through Assert/Retract/ObjectAssert/ObjectRetract/ObjectModify per edit.
package rete

import (
	"io"

	"github.com/coregx/rete/agenda"
	"github.com/coregx/rete/alpha"
	"github.com/coregx/rete/bimage"
	"github.com/coregx/rete/entity"
	"github.com/coregx/rete/internal/atoms"
	"github.com/coregx/rete/join"
	"github.com/coregx/rete/logical"
	"github.com/coregx/rete/object"
	"github.com/coregx/rete/pmstore"
	"github.com/coregx/rete/trace"
)

// Environment is the RETE core's single aggregate. Not safe for concurrent
// use from multiple goroutines: unlike meta.Engine (concurrency-safe via
// sync.Pool-scoped per-search state), Environment mutates shared arenas and
// memories in place on every drive, matching the single-threaded cooperative
// model spec.md §5 describes.
type Environment struct {
	Config Config
	Tables *atoms.Tables
	Store  *pmstore.Store
	Agenda *agenda.Default
	Router trace.Router
	Stats  trace.Stats

	joinRT    *join.Runtime
	JoinNet   *join.Network
	ObjectNet *object.Network
	Logical   *logical.Manager

	imageActive bool
}

// New creates an Environment wired from cfg, a host-supplied slot reader
// (spec.md §6's Expression-evaluator-adjacent collaborator), and a
// multifield-length oracle for object-pattern matching. router may be nil,
// in which case trace output is discarded.
func New(cfg Config, slots entity.SlotReader, mfLen object.MultifieldLength, router trace.Router) *Environment {
	if router == nil {
		router = trace.DiscardRouter{}
	}

	store := pmstore.NewStore()
	tables := atoms.NewTables()
	ag := agenda.NewDefault()
	rt := join.NewRuntime(store, tables, slots, ag)
	joinNet := join.NewNetwork(rt)
	objNet := object.NewNetwork(store, tables, slots, mfLen, joinNet)
	logicalMgr := logical.NewManager(store, joinNet)
	rt.SetLogicalManager(logicalMgr)

	if cfg.DelayObjectPatternMatching {
		objNet.SetDelay(true)
	}

	return &Environment{
		Config:    cfg,
		Tables:    tables,
		Store:     store,
		Agenda:    ag,
		Router:    router,
		joinRT:    rt,
		JoinNet:   joinNet,
		ObjectNet: objNet,
		Logical:   logicalMgr,
	}
}

// NewHeader creates a pattern-node-header sized per Config.AlphaMemoryHashSize.
func (e *Environment) NewHeader() *alpha.Header {
	return alpha.NewHeader(e.Config.AlphaMemoryHashSize)
}

// NewJoin creates a join at the given network depth, honoring
// Config.BetaMemoryResizing and Config.InitialBetaHashSize.
func (e *Environment) NewJoin(depth int) *join.Node {
	return join.NewJoinWithHashSize(depth, e.Config.BetaMemoryResizing, e.Config.InitialBetaHashSize)
}

// RegisterHeaderJoin records that matches arriving in h should be driven
// into node's RHS.
func (e *Environment) RegisterHeaderJoin(h *alpha.Header, node *join.Node) {
	e.JoinNet.RegisterHeaderJoin(h, node)
}

// RegisterObjectRoot adds root as a pattern-tree entry point for class.
func (e *Environment) RegisterObjectRoot(class object.ClassID, root *object.PatternNode) {
	e.ObjectNet.RegisterRoot(class, root)
}

// Assert drives e's alpha-level match against h into the join network,
// flushing the garbage list and draining any forced logical retractions at
// exit — spec.md §4.6's suspension point (b), "at the end of each
// assert/retract public call."
func (e *Environment) Assert(h *alpha.Header, en entity.ID, markers []pmstore.MultifieldMarker, rightHash uint64) pmstore.ID {
	pmID := e.JoinNet.AssertFact(h, en, markers, rightHash)
	e.Stats.AlphaMatches++
	e.drainSuspensionPoint()
	return pmID
}

// Retract cascades a retraction for every alpha-level match recorded for en.
func (e *Environment) Retract(en entity.ID) {
	e.JoinNet.RetractEntity(en)
	e.drainSuspensionPoint()
}

// ObjectAssert, ObjectRetract, and ObjectModify drive the object-pattern
// network's three action kinds (spec.md §6's objectNetworkAction).
func (e *Environment) ObjectAssert(en entity.ID, class object.ClassID) {
	e.ObjectNet.ObjectNetworkAction(object.ActionAssert, en, class, object.AnySlot)
	e.drainSuspensionPoint()
}

func (e *Environment) ObjectRetract(en entity.ID, class object.ClassID) {
	e.ObjectNet.ObjectNetworkAction(object.ActionRetract, en, class, 0)
	e.drainSuspensionPoint()
}

func (e *Environment) ObjectModify(en entity.ID, class object.ClassID, slotBitmap uint64) {
	e.ObjectNet.ObjectNetworkAction(object.ActionModify, en, class, slotBitmap)
	e.drainSuspensionPoint()
}

// SetDelayObjectPatternMatching opens or closes the object network's
// deferred-match-action batch window (spec.md §6).
func (e *Environment) SetDelayObjectPatternMatching(delay bool) {
	e.ObjectNet.SetDelay(delay)
}

// FireNext pops the next activation conflict resolution selects and invokes
// action with it, then runs the suspension-point drain spec.md §4.6
// describes for "when the last activation finishes firing." Firing a rule's
// own actions (asserting, retracting, calling host functions) is out of the
// core's scope; action is the host's rule-execution callback.
func (e *Environment) FireNext(action func(rule *agenda.Rule, lhs pmstore.ID)) bool {
	act, ok := e.Agenda.Pop()
	if !ok {
		return false
	}
	action(act.Rule, act.LHS)
	e.Stats.RulesFired++
	e.drainSuspensionPoint()
	return true
}

func (e *Environment) drainSuspensionPoint() {
	if e.Logical.Pending() > 0 {
		before := e.Logical.Pending()
		e.Logical.ForceLogicalRetractions()
		e.Stats.LogicalRetractions += uint64(before)
	}
	e.Store.FlushGarbage()
}

// Bsave writes a complete binary image of the environment's interned atom
// tables to w. Constructs (compiled rules, pattern headers, joins) are
// serialized by the host-supplied writer, since their byte layout depends on
// rule-compilation machinery outside this core's scope.
func (e *Environment) Bsave(w io.Writer, version string, functionNames []string, constructs bimage.ConstructWriter) error {
	return bimage.Bsave(w, bimage.SaveOptions{
		Version:       version,
		FunctionNames: functionNames,
		Tables:        e.Tables,
		Constructs:    constructs,
		ImageActive:   e.imageActive,
	})
}

// Bload restores a binary image written by Bsave, replacing e.Tables with
// the image's atom tables (spec.md §6's load order: "atom and function
// tables are materialized first... then constructs"; pattern-node-headers
// and joins the host subsequently rebuilds start with zeroed statistics and
// memories, per spec.md §6 item 5).
func (e *Environment) Bload(r io.Reader, functions bimage.FunctionDirectory, constructs bimage.ConstructReader) (*bimage.LoadResult, error) {
	e.imageActive = true
	defer func() { e.imageActive = false }()

	result, err := bimage.Bload(r, bimage.LoadOptions{Functions: functions, Constructs: constructs})
	if err != nil {
		return nil, err
	}
	e.Tables = result.Tables
	return result, nil
}
