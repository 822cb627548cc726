package rete

import (
	"fmt"
	"strings"

	"github.com/coregx/rete/agenda"
	"github.com/coregx/rete/join"
	"github.com/coregx/rete/pmstore"
)

// MatchVerbosity selects how much detail Console.Matches renders for a
// rule's current partial matches (spec.md §6's CLI surface: "matches <rule>
// [verbose|succinct|terse]").
type MatchVerbosity uint8

const (
	MatchTerse MatchVerbosity = iota
	MatchSuccinct
	MatchVerbose
)

// Console exposes the engine's optional CLI surface (spec.md §6) as plain
// methods a host CLI wraps, rather than a cmd/ binary — the teacher itself
// is a library with no cmd/ of its own.
type Console struct {
	env          *Environment
	joinActivity map[string]int
	watch        map[string]bool
}

// NewConsole creates a Console bound to env.
func NewConsole(env *Environment) *Console {
	return &Console{env: env, joinActivity: make(map[string]int), watch: make(map[string]bool)}
}

// Matches renders rule's currently active partial matches at the requested
// verbosity. verbose lists every bind's entity ID plus multifield markers;
// succinct lists each PM id with its bound entities; terse reports a count.
func (c *Console) Matches(rule *agenda.Rule, verbosity MatchVerbosity) string {
	ids := c.activeLHSIDs(rule)

	switch verbosity {
	case MatchTerse:
		return fmt.Sprintf("%s: %d activation(s)", rule.Name, len(ids))
	case MatchSuccinct:
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = fmt.Sprintf("f-%d(%s)", id, join.Explain(c.env.Store, id))
		}
		return fmt.Sprintf("%s: [%s]", rule.Name, strings.Join(parts, ", "))
	default: // MatchVerbose
		var b strings.Builder
		fmt.Fprintf(&b, "%s:\n", rule.Name)
		for _, id := range ids {
			fmt.Fprintf(&b, "  f-%d: %s\n", id, join.ExplainVerbose(c.env.Store, id))
		}
		return b.String()
	}
}

// activeLHSIDs filters the agenda's activation snapshot down to rule's own
// matches.
func (c *Console) activeLHSIDs(rule *agenda.Rule) []pmstore.ID {
	var ids []pmstore.ID
	for _, act := range c.env.Agenda.Activations() {
		if act.Rule == rule {
			ids = append(ids, act.LHS)
		}
	}
	return ids
}

// JoinActivity reports how many times each named join has fired a
// propagation since the last JoinActivityReset, for the rules named (or
// every tracked join if names is empty).
func (c *Console) JoinActivity(names ...string) map[string]int {
	if len(names) == 0 {
		out := make(map[string]int, len(c.joinActivity))
		for k, v := range c.joinActivity {
			out[k] = v
		}
		return out
	}
	out := make(map[string]int, len(names))
	for _, n := range names {
		out[n] = c.joinActivity[n]
	}
	return out
}

// RecordJoinActivity increments name's propagation counter; a host calls
// this from its own join-drive wrapper since the core join package has no
// notion of a join's diagnostic name.
func (c *Console) RecordJoinActivity(name string) {
	c.joinActivity[name]++
}

// JoinActivityReset clears every join's activity counter.
func (c *Console) JoinActivityReset() {
	c.joinActivity = make(map[string]int)
}

// Watch marks item as a watched diagnostic channel (spec.md §6: "watch /
// unwatch <item>").
func (c *Console) Watch(item string) { c.watch[item] = true }

// Unwatch clears item.
func (c *Console) Unwatch(item string) { delete(c.watch, item) }

// ListWatchItems returns every currently watched item.
func (c *Console) ListWatchItems() []string {
	items := make([]string, 0, len(c.watch))
	for item := range c.watch {
		items = append(items, item)
	}
	return items
}

// SetBetaMemoryResizing toggles Config.BetaMemoryResizing for joins created
// after this call (spec.md §6's set-beta-memory-resizing).
func (c *Console) SetBetaMemoryResizing(enabled bool) {
	c.env.Config.BetaMemoryResizing = enabled
}

// GetBetaMemoryResizing reports the environment's current setting.
func (c *Console) GetBetaMemoryResizing() bool {
	return c.env.Config.BetaMemoryResizing
}
