// Package agenda declares the conflict-resolution collaborator the core
// requires (spec.md §6) and provides a default depth/salience strategy.
// The agenda's own conflict-resolution semantics are explicitly out of
// scope for the core (spec.md §1); only the AddActivation/RemoveActivation
// boundary the join network drives through is in scope.
package agenda

import (
	"sort"

	"github.com/coregx/rete/pmstore"
)

// Rule is the minimal terminal-join hook a rule needs: a name for
// diagnostics and a salience for conflict resolution. Parsing rule syntax
// itself is out of scope; a host compiles its rules into a Rule plus a
// join.Node chain.
type Rule struct {
	Name     string
	Salience int
}

// Agenda is what a terminal join needs of the external conflict-resolution
// collaborator.
type Agenda interface {
	// AddActivation records that rule's left-hand side completed at lhs.
	AddActivation(rule *Rule, lhs pmstore.ID)

	// RemoveActivation withdraws a previously added activation for the
	// same (rule, lhs) pair.
	RemoveActivation(rule *Rule, lhs pmstore.ID)
}

// Activation is one entry on the Default agenda.
type Activation struct {
	Rule *Rule
	LHS  pmstore.ID
	seq  int64
}

// Default implements depth conflict resolution (CLIPS's default strategy):
// higher salience first, and within equal salience, most-recently-activated
// first.
type Default struct {
	activations []Activation
	seq         int64
}

// NewDefault creates an empty Default agenda.
func NewDefault() *Default {
	return &Default{}
}

// AddActivation implements Agenda.
func (a *Default) AddActivation(rule *Rule, lhs pmstore.ID) {
	a.seq++
	a.activations = append(a.activations, Activation{Rule: rule, LHS: lhs, seq: a.seq})
	sort.SliceStable(a.activations, func(i, j int) bool {
		if a.activations[i].Rule.Salience != a.activations[j].Rule.Salience {
			return a.activations[i].Rule.Salience > a.activations[j].Rule.Salience
		}
		return a.activations[i].seq > a.activations[j].seq
	})
}

// RemoveActivation implements Agenda.
func (a *Default) RemoveActivation(rule *Rule, lhs pmstore.ID) {
	for i, act := range a.activations {
		if act.Rule == rule && act.LHS == lhs {
			a.activations = append(a.activations[:i], a.activations[i+1:]...)
			return
		}
	}
}

// Peek returns the activation conflict resolution would fire next, without
// removing it.
func (a *Default) Peek() (Activation, bool) {
	if len(a.activations) == 0 {
		return Activation{}, false
	}
	return a.activations[0], true
}

// Pop removes and returns the activation conflict resolution fires next.
func (a *Default) Pop() (Activation, bool) {
	act, ok := a.Peek()
	if !ok {
		return act, false
	}
	a.activations = a.activations[1:]
	return act, true
}

// Len reports how many activations are currently on the agenda.
func (a *Default) Len() int {
	return len(a.activations)
}

// Contains reports whether an activation for (rule, lhs) is currently on
// the agenda, used by tests asserting activation/deactivation.
func (a *Default) Contains(rule *Rule, lhs pmstore.ID) bool {
	for _, act := range a.activations {
		if act.Rule == rule && act.LHS == lhs {
			return true
		}
	}
	return false
}

// Activations returns a snapshot of every activation currently on the
// agenda, in firing order. Used by diagnostic surfaces (rete.Console) that
// need to list a rule's current matches without popping them.
func (a *Default) Activations() []Activation {
	out := make([]Activation, len(a.activations))
	copy(out, a.activations)
	return out
}
