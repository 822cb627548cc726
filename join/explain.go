package join

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/coregx/rete/pmstore"
)

// Explain renders pm's bind list as a comma-separated sequence of entity
// ids (or "*" for a NULL negated/exists bind), mirroring CL_PrintPartialMatch
// (original_source CL_reteutil.c): that function prints, for each bind,
// either the matching item's short form or "*" when the slot has no
// matchingItem. Used by the trace/watch surface and the "matches" CLI verb
// (spec.md §6) to render a partial match without exposing pmstore internals.
func Explain(store *pmstore.Store, id pmstore.ID) string {
	pm := store.Get(id)
	parts := make([]string, len(pm.Binds))
	for i, b := range pm.Binds {
		if !b.Valid {
			parts[i] = "*"
			continue
		}
		parts[i] = "e-" + strconv.FormatUint(uint64(b.Entity), 10)
	}
	return strings.Join(parts, ",")
}

// ExplainVerbose is Explain with every bind's multifield markers appended,
// for the "matches verbose" CLI verb's extra detail.
func ExplainVerbose(store *pmstore.Store, id pmstore.ID) string {
	pm := store.Get(id)
	var b strings.Builder
	for i, bind := range pm.Binds {
		if i > 0 {
			b.WriteString(", ")
		}
		if !bind.Valid {
			b.WriteString("*")
			continue
		}
		fmt.Fprintf(&b, "e-%d", bind.Entity)
		for _, m := range bind.Markers {
			fmt.Fprintf(&b, "[field %d @ %d+%d]", m.WhichField, m.StartPosition, m.Range)
		}
	}
	return b.String()
}
