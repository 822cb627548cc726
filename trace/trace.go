// Package trace mirrors meta.Stats: a diagnostics surface for the engine,
// without pulling in a logging dependency the example corpus never reaches
// for in a library-shaped core.
package trace

import "fmt"

// Router is a routable textual output channel, matching CLIPS's named
// output/error router abstraction ("t"/werror-equivalent channels) rather
// than a fixed stdout/stderr pair, so a host CLI can redirect watch output
// independently of error output.
type Router interface {
	WriteLine(channel, line string)
}

// DiscardRouter implements Router by dropping every line, the default for
// an Environment that hasn't been given a host router.
type DiscardRouter struct{}

// WriteLine implements Router.
func (DiscardRouter) WriteLine(string, string) {}

// Stats accumulates counters a host can surface for diagnostics, mirroring
// meta.Engine's Stats field: alpha-match, resize, activation, rule-firing
// and logical-retraction counts, all plain counters with a String() for
// human inspection.
type Stats struct {
	AlphaMatches       uint64
	BetaResizes        uint64
	ActivationsAdded   uint64
	ActivationsRemoved uint64
	RulesFired         uint64
	LogicalRetractions uint64
}

// String renders the counters for diagnostic output.
func (s Stats) String() string {
	return fmt.Sprintf(
		"alphaMatches=%d betaResizes=%d activationsAdded=%d activationsRemoved=%d rulesFired=%d logicalRetractions=%d",
		s.AlphaMatches, s.BetaResizes, s.ActivationsAdded, s.ActivationsRemoved, s.RulesFired, s.LogicalRetractions,
	)
}
