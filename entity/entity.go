// Package entity declares the handle the RETE core requires of the external
// working-memory stores (fact bases and instance managers). Per spec.md's
// scope, those stores are external collaborators: the core only consumes
// PatternEntity handles, never the store's own representation.
package entity

import (
	"github.com/coregx/rete/eval"
	"github.com/coregx/rete/internal/atoms"
)

// ID identifies a pattern entity (a fact or an instance) across the core.
// The owning store assigns IDs; the core treats them as opaque keys.
type ID uint64

// PatternEntity documents the handle shape a working-memory store owns for
// each fact or instance it hands the core by ID. The store, not the core,
// owns timetags and the busy counter: the core's own entry points
// (Assert, ObjectAssert, ...) take a bare entity.ID, so it is the store's
// own enqueue/retract wrapper that increments and decrements the busy
// counter and sets the timetag before notifying the engine (spec.md §6) —
// the core never calls these methods itself.
type PatternEntity interface {
	// EntityID returns the entity's identity, stable for its lifetime.
	EntityID() ID

	// Timetag returns the entity's current conflict-resolution timetag.
	Timetag() int64

	// IncrementBusy marks the entity as referenced by one more in-flight
	// match or activation; DecrementBusy reverses it. An entity with a
	// nonzero busy count must not be reclaimed by its store.
	IncrementBusy()
	DecrementBusy()

	// ShortPrint renders a short diagnostic form, used by trace output and
	// the `matches` CLI verb.
	ShortPrint() string
}

// SlotReader is how the join and object-pattern networks read an entity's
// slot values while evaluating a network test or hash expression (spec.md
// §6). The host's working-memory store implements it once per entity shape
// (deftemplate fact, instance of a class); the core never parses slot
// syntax itself.
type SlotReader interface {
	// Slot returns the current value bound to slot on e, or false if e has
	// no such slot (an unbound multifield reference, for instance).
	Slot(e ID, slot atoms.ID) (eval.Value, bool)
}
