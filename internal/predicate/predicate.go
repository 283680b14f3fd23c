// Package predicate implements the typed boolean trigger expressions a job
// carries in its `when` block. Expressions are evaluated against an immutable
// Env snapshot; evaluation is pure and total. A nil expression is always
// true, and a test against an unset metadata field is false rather than an
// error, so a malformed condition skips a job instead of crashing the run.
package predicate

import "strings"

// Field names a piece of run metadata an expression can test. Matrix axis
// values are addressable as "axis.<name>".
type Field string

const (
	FieldRef     Field = "ref"
	FieldRefKind Field = "ref_kind"
	FieldBaseRef Field = "base_ref"
	FieldSHA     Field = "sha"
	FieldMessage Field = "message"
)

// axisPrefix addresses a matrix axis value, e.g. "axis.python".
const axisPrefix = "axis."

// Env is the read-only snapshot an expression is evaluated against: the run
// metadata, the instance's matrix combination, and the terminal state of its
// upstream dependencies as visible at evaluation time.
type Env struct {
	Ref     string
	RefKind string
	BaseRef string
	SHA     string
	Message string

	// Axes holds the instance's matrix combination, empty for matrix-less jobs.
	Axes map[string]string

	// Upstream terminal state visible when the instance comes up for dispatch.
	UpstreamFailed    bool
	UpstreamCancelled bool
}

// lookup resolves a field to its value. ok is false for unknown fields and
// for fields that are unset in this run.
func (e Env) lookup(f Field) (value string, ok bool) {
	if name, isAxis := strings.CutPrefix(string(f), axisPrefix); isAxis {
		v, present := e.Axes[name]
		return v, present
	}
	switch f {
	case FieldRef:
		value = e.Ref
	case FieldRefKind:
		value = e.RefKind
	case FieldBaseRef:
		value = e.BaseRef
	case FieldSHA:
		value = e.SHA
	case FieldMessage:
		value = e.Message
	default:
		return "", false
	}
	return value, value != ""
}

// Expr is one node of a predicate expression tree.
type Expr interface {
	// Eval reports whether the expression holds in the given environment.
	Eval(env Env) bool
}

// Equals tests a metadata field for exact equality.
type Equals struct {
	Field Field
	Value string
}

func (p Equals) Eval(env Env) bool {
	v, ok := env.lookup(p.Field)
	return ok && v == p.Value
}

// Contains tests whether a metadata field contains a substring.
type Contains struct {
	Field Field
	Value string
}

func (p Contains) Eval(env Env) bool {
	v, ok := env.lookup(p.Field)
	return ok && strings.Contains(v, p.Value)
}

// Not negates its operand.
type Not struct {
	Expr Expr
}

func (p Not) Eval(env Env) bool { return !Eval(p.Expr, env) }

// And holds iff every operand holds. An empty And is true.
type And struct {
	Exprs []Expr
}

func (p And) Eval(env Env) bool {
	for _, e := range p.Exprs {
		if !Eval(e, env) {
			return false
		}
	}
	return true
}

// Or holds iff at least one operand holds. An empty Or is false.
type Or struct {
	Exprs []Expr
}

func (p Or) Eval(env Env) bool {
	for _, e := range p.Exprs {
		if Eval(e, env) {
			return true
		}
	}
	return false
}

// UpstreamFailed holds iff at least one upstream dependency of the instance
// ended Failed. Referencing it opts the job out of the default
// skip-on-upstream-failure behaviour, which is how cleanup and log-shipping
// jobs run after a failed build.
type UpstreamFailed struct{}

func (UpstreamFailed) Eval(env Env) bool { return env.UpstreamFailed }

// UpstreamCancelled holds iff at least one upstream dependency ended
// Cancelled. Like UpstreamFailed it opts the job out of dependency gating.
type UpstreamCancelled struct{}

func (UpstreamCancelled) Eval(env Env) bool { return env.UpstreamCancelled }

// Eval evaluates an expression, treating a nil expression as true: a job
// without a `when` block is always eligible, subject to dependency gating.
func Eval(e Expr, env Env) bool {
	if e == nil {
		return true
	}
	return e.Eval(env)
}

// References walks the expression tree and reports whether it mentions the
// UpstreamFailed or UpstreamCancelled terms anywhere. The scheduler uses
// this to decide whether a job tolerates a failed or cancelled dependency.
func References(e Expr) (failed, cancelled bool) {
	switch t := e.(type) {
	case nil:
	case UpstreamFailed:
		failed = true
	case UpstreamCancelled:
		cancelled = true
	case Not:
		failed, cancelled = References(t.Expr)
	case And:
		for _, sub := range t.Exprs {
			f, c := References(sub)
			failed = failed || f
			cancelled = cancelled || c
		}
	case Or:
		for _, sub := range t.Exprs {
			f, c := References(sub)
			failed = failed || f
			cancelled = cancelled || c
		}
	}
	return failed, cancelled
}
