// Package logical implements the logical-dependency manager (spec.md §4.6):
// a partial match may own a list of entities whose existence is conditional
// on its own survival; losing that support schedules the dependents for
// retraction rather than tearing them down mid-drive.
//
// Grounded on lgcldpnd.h's CL_AddLogicalDependencies / CL_RemoveLogicalSupport
// / CL_ForceLogicalRetractions / CL_FindLogicalBind (only the header survived
// distillation; the .c file did not, so this package follows the header's
// function contracts and spec.md §4.6's prose rather than a C routine body).
package logical

import (
	"github.com/coregx/rete/entity"
	"github.com/coregx/rete/pmstore"
)

// Retractor is how the manager reaches back into the join network to force
// a retraction once a dependency's support disappears.
type Retractor interface {
	RetractEntity(e entity.ID)
}

// Manager tracks which entities are logically dependent on which partial
// matches and defers their retraction to the next drain point.
type Manager struct {
	store     *pmstore.Store
	retractor Retractor
	pending   []entity.ID
}

// NewManager creates a logical-dependency manager over store, forcing
// retractions through retractor.
func NewManager(store *pmstore.Store, retractor Retractor) *Manager {
	return &Manager{store: store, retractor: retractor}
}

// RecordSupport wires e's existence to pmID's survival (CL_AddLogicalDependencies).
// The host calls this when a rule fires a logical CE's action: pmID is the
// support partial match FindLogicalBind located for the firing activation.
func (m *Manager) RecordSupport(pmID pmstore.ID, e entity.ID) {
	m.store.AddDependent(pmID, e)
}

// RemoveLogicalSupport detaches pmID's dependents and queues them for
// retraction (CL_RemoveLogicalSupport). The actual retraction happens at the
// next ForceLogicalRetractions drain, not synchronously here — spec.md §4.6:
// "removeLogicalSupport detaches the dependents and schedules their
// retraction via forceLogicalRetractions."
func (m *Manager) RemoveLogicalSupport(pmID pmstore.ID) {
	deps := m.store.Dependents(pmID)
	if len(deps) == 0 {
		return
	}
	m.pending = append(m.pending, deps...)
	m.store.Get(pmID).Dependents = nil
}

// ForceLogicalRetractions drains the pending list built up by
// RemoveLogicalSupport (CL_ForceLogicalRetractions). Called at each of
// spec.md §4.6's suspension points: on exit from objectNetworkAction when no
// delay is open, at the end of each assert/retract public call, and when the
// last activation on the agenda finishes firing.
func (m *Manager) ForceLogicalRetractions() {
	if len(m.pending) == 0 {
		return
	}
	pending := m.pending
	m.pending = nil
	for _, e := range pending {
		m.retractor.RetractEntity(e)
	}
}

// Pending reports how many retractions are currently queued, used by tests
// asserting the drain gate.
func (m *Manager) Pending() int { return len(m.pending) }

// FindLogicalBind walks pmID's left lineage back to the partial match
// produced at logicalJoinDepth patterns — the join a rule designates as its
// single logical CE (spec.md §4.6) — materializing the "support" PM
// dependency wiring attaches to.
//
// CL_FindLogicalBind walks joinNode.lastLevel node pointers to the same
// destination; this arena implementation walks the PM's LeftParent chain
// instead, since a PM's lineage already encodes which join depth produced
// each bind (the Design Note's arena-and-indices substitution for raw
// pointer chasing, applied here too).
func FindLogicalBind(store *pmstore.Store, pmID pmstore.ID, logicalJoinDepth int) pmstore.ID {
	for pmID != pmstore.NilID {
		pm := store.Get(pmID)
		if pm.BCount == logicalJoinDepth {
			return pmID
		}
		pmID = pm.LeftParent
	}
	return pmstore.NilID
}
