package join

import (
	"github.com/coregx/rete/alpha"
	"github.com/coregx/rete/entity"
	"github.com/coregx/rete/pmstore"
)

// Network indexes which join consumes a given alpha header and drives
// networkRetract's whole-entity cascade (spec.md §4.7): "networkRetract
// removes every pattern match recorded for a vanishing entity and cascades
// the retraction through the join network's lineage."
//
// Parsing rule syntax and compiling it into headers and joins is out of
// scope (spec.md §6); a host builds the network once with RegisterHeaderJoin
// and then drives it through AssertFact/RetractEntity per edit.
type Network struct {
	rt          *Runtime
	headerJoins map[*alpha.Header]*Node
	pmHeader    map[pmstore.ID]*alpha.Header
}

// NewNetwork creates an empty join network bound to rt.
func NewNetwork(rt *Runtime) *Network {
	return &Network{
		rt:          rt,
		headerJoins: make(map[*alpha.Header]*Node),
		pmHeader:    make(map[pmstore.ID]*alpha.Header),
	}
}

// RegisterHeaderJoin records that entry matches arriving in h should be
// driven into node's RHS (node.AlphaSource == h).
func (n *Network) RegisterHeaderJoin(h *alpha.Header, node *Node) {
	n.headerJoins[h] = node
	node.AlphaSource = h
}

// AssertFact creates the BCount=1 alpha-level partial match for e's match
// against h (rightHash, markers as computed by the host's alpha-test
// matcher) and drives it into h's registered entry join, per spec.md §4.2
// and §4.4.
func (n *Network) AssertFact(h *alpha.Header, e entity.ID, markers []pmstore.MultifieldMarker, rightHash uint64) pmstore.ID {
	pmID := n.rt.Store.CreateAlpha(e, markers, n.rt.Store.Timetag())
	h.Insert(n.rt.Store, rightHash, pmID)
	n.pmHeader[pmID] = h

	if node, ok := n.headerJoins[h]; ok {
		NetworkAssertRight(n.rt, node, pmID, Assert)
	}
	if n.rt.Logical != nil {
		n.rt.Logical.ForceLogicalRetractions()
	}
	return pmID
}

// RetractEntity removes every alpha-level match recorded for e and
// cascades a Retract drive through each one's entry join, tearing down
// every downstream partial match and rule activation that depended on it
// (spec.md §4.7).
func (n *Network) RetractEntity(e entity.ID) {
	matches := append([]pmstore.ID(nil), n.rt.Store.EntityAlphaMatches(e)...)
	for _, pmID := range matches {
		h, ok := n.pmHeader[pmID]
		if ok {
			if node, ok2 := n.headerJoins[h]; ok2 {
				NetworkAssertRight(n.rt, node, pmID, Retract)
			}
			h.Remove(n.rt.Store, pmID)
			delete(n.pmHeader, pmID)
		}
		n.rt.Store.ReturnPartialMatch(pmID)
	}
	if n.rt.Logical != nil {
		n.rt.Logical.ForceLogicalRetractions()
	}
}
