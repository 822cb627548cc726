// Package eval declares the expression evaluator interface the RETE core
// requires of its host language (spec.md §6 "Interfaces the core
// requires of collaborators"). Parsing and compiling expressions from rule
// syntax is out of scope; this package only fixes the Value union, the
// evaluation context, and the short-circuit boolean tree the join and
// object-pattern networks drive tests through.
package eval

import "github.com/coregx/rete/internal/atoms"

// Kind tags the variant carried by a Value, mirroring the result types
// spec.md §6 requires of the host evaluator: symbol, string,
// instance-name, integer, float, fact-address, instance-address, and
// external-address. KindBoolean is an implementation convenience layered on
// top for the reference test evaluator and the boolean short-circuit tree;
// it is not one of the canonical wire tags.
type Kind uint8

const (
	KindSymbol Kind = iota
	KindString
	KindInstanceName
	KindInteger
	KindFloat
	KindFactAddress
	KindInstanceAddress
	KindExternalAddress
	KindBoolean
)

// Value is a tagged evaluation result. Atom-backed kinds (Symbol, String,
// InstanceName, Integer, Float) carry an atoms.ID into the Environment's
// interned tables; address kinds carry an entity.ID-shaped integer directly
// (entity is not imported here to avoid a dependency cycle with the
// packages that build Contexts); ExternalAddress carries an opaque Go
// value the host owns.
type Value struct {
	Kind     Kind
	Atom     atoms.ID
	EntityID uint64
	Bool     bool
	External any
}

// Bucket returns the hash ingredient this value contributes to an alpha- or
// beta-memory hash fold (internal/hash.Values). spec.md §9 open question 2
// notes that CLIPS's computeRightHashValue switches on result type with no
// default case, so a result of unexpected type silently contributes zero;
// this implementation keeps that behavior rather than guessing at a fix, as
// directed by SPEC_FULL.md's decision for that open question.
func (v Value) Bucket(tables *atoms.Tables) uint64 {
	switch v.Kind {
	case KindSymbol:
		return uint64(tables.Symbols.Bucket(v.Atom))
	case KindString:
		return uint64(tables.Strings.Bucket(v.Atom))
	case KindInstanceName:
		return uint64(tables.InstanceNames.Bucket(v.Atom))
	case KindInteger:
		return uint64(tables.Integers.Bucket(v.Atom))
	case KindFloat:
		return uint64(tables.Floats.Bucket(v.Atom))
	case KindFactAddress, KindInstanceAddress:
		return v.EntityID
	default:
		return 0
	}
}

// Truthy reports whether v should be treated as true by the boolean
// short-circuit tree. Symbols/strings/instance-names/addresses are always
// truthy; only an explicit KindBoolean(false) is falsy — matching CLIPS
// treating anything but the symbol FALSE as true.
func Truthy(v Value) bool {
	if v.Kind == KindBoolean {
		return v.Bool
	}
	return true
}

// Bool wraps a Go bool as a Value.
func Bool(b bool) Value {
	return Value{Kind: KindBoolean, Bool: b}
}

// Symbol wraps an interned symbol ID as a Value.
func Symbol(id atoms.ID) Value {
	return Value{Kind: KindSymbol, Atom: id}
}

// Integer wraps an interned integer ID as a Value.
func Integer(id atoms.ID) Value {
	return Value{Kind: KindInteger, Atom: id}
}

// Ref identifies a variable binding site a network test reads: which
// pattern in the join's left-hand-side prefix (0-based, left to right) and
// which slot within that pattern's entity.
type Ref struct {
	Pattern int
	Slot    atoms.ID
}

// Context is threaded through expression evaluation during a drive. Resolve
// looks up the current binding for a variable reference; the join and
// object packages supply it from the partial match under test. Tables
// gives expressions access to the Environment's interned atoms.
type Context struct {
	Tables  *atoms.Tables
	Resolve func(ref Ref) (Value, bool)

	// Rule, Pattern, Slot identify the current evaluation site for error
	// messages (spec.md §7: "a located message identifying the rule,
	// pattern number, and slot").
	Rule    string
	Pattern int
	Slot    string
}

// Expression evaluates a join test or hash ingredient against ctx. An error
// is returned to the caller (BoolExpr.Eval for join tests), which applies the
// negated-context coercion or positive-context abort documented in spec.md
// §4.4 "Cancellation and errors".
type Expression interface {
	Evaluate(ctx *Context) (Value, error)
}

// Const is an Expression that always evaluates to a fixed Value, useful for
// tests and as the leaf node of compiled constraints.
type Const Value

// Evaluate implements Expression.
func (c Const) Evaluate(*Context) (Value, error) {
	return Value(c), nil
}

// Var is an Expression that resolves a variable reference through the
// Context.
type Var Ref

// Evaluate implements Expression.
func (v Var) Evaluate(ctx *Context) (Value, error) {
	val, ok := ctx.Resolve(Ref(v))
	if !ok {
		return Value{}, &EvalError{Rule: ctx.Rule, Pattern: ctx.Pattern, Slot: ctx.Slot, Err: ErrUnboundVariable}
	}
	return val, nil
}
