package predicate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func prEnv() Env {
	return Env{
		Ref:     "feature/login",
		RefKind: "pull_request",
		BaseRef: "develop",
		SHA:     "abc123",
		Message: "fix login [skip ci]",
		Axes:    map[string]string{"python": "3.10"},
	}
}

func TestEval_FieldTests(t *testing.T) {
	t.Parallel()
	env := prEnv()

	tests := []struct {
		name string
		expr Expr
		want bool
	}{
		{"equals ref matches", Equals{Field: FieldRef, Value: "feature/login"}, true},
		{"equals ref mismatch", Equals{Field: FieldRef, Value: "main"}, false},
		{"equals ref_kind", Equals{Field: FieldRefKind, Value: "pull_request"}, true},
		{"contains message", Contains{Field: FieldMessage, Value: "[skip ci]"}, true},
		{"contains message miss", Contains{Field: FieldMessage, Value: "[urgent]"}, false},
		{"axis value", Equals{Field: "axis.python", Value: "3.10"}, true},
		{"axis miss", Equals{Field: "axis.python", Value: "3.9"}, false},
		{"unknown axis", Equals{Field: "axis.database", Value: "sqlite"}, false},
		{"unknown field", Equals{Field: "nonsense", Value: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Eval(tt.expr, env))
		})
	}
}

func TestEval_UnsetFieldIsFalse(t *testing.T) {
	t.Parallel()
	env := Env{Ref: "main", RefKind: "branch"} // no base_ref on branch builds

	assert.False(t, Eval(Equals{Field: FieldBaseRef, Value: ""}, env))
	assert.False(t, Eval(Contains{Field: FieldBaseRef, Value: "dev"}, env))
	// Negation of a test on an unset field holds: the inner test is false.
	assert.True(t, Eval(Not{Expr: Equals{Field: FieldBaseRef, Value: "develop"}}, env))
}

func TestEval_Combinators(t *testing.T) {
	t.Parallel()
	env := prEnv()

	onPR := Equals{Field: FieldRefKind, Value: "pull_request"}
	onMain := Equals{Field: FieldRef, Value: "main"}

	assert.True(t, Eval(And{Exprs: []Expr{onPR, Not{Expr: onMain}}}, env))
	assert.True(t, Eval(Or{Exprs: []Expr{onMain, onPR}}, env))
	assert.False(t, Eval(And{Exprs: []Expr{onPR, onMain}}, env))
	assert.False(t, Eval(Or{Exprs: []Expr{onMain, Not{Expr: onPR}}}, env))

	// Empty combinators keep their identity values.
	assert.True(t, Eval(And{}, env))
	assert.False(t, Eval(Or{}, env))
}

func TestEval_NilExprIsTrue(t *testing.T) {
	t.Parallel()
	assert.True(t, Eval(nil, Env{}))
}

func TestEval_UpstreamPredicates(t *testing.T) {
	t.Parallel()

	env := prEnv()
	assert.False(t, Eval(UpstreamFailed{}, env))
	assert.False(t, Eval(UpstreamCancelled{}, env))

	env.UpstreamFailed = true
	assert.True(t, Eval(UpstreamFailed{}, env))
	env.UpstreamCancelled = true
	assert.True(t, Eval(Or{Exprs: []Expr{UpstreamFailed{}, UpstreamCancelled{}}}, env))
}

func TestReferences(t *testing.T) {
	t.Parallel()

	f, c := References(nil)
	assert.False(t, f)
	assert.False(t, c)

	f, c = References(Equals{Field: FieldRef, Value: "main"})
	assert.False(t, f)
	assert.False(t, c)

	f, c = References(Or{Exprs: []Expr{UpstreamFailed{}, Equals{Field: FieldRef, Value: "main"}}})
	assert.True(t, f)
	assert.False(t, c)

	f, c = References(Not{Expr: And{Exprs: []Expr{UpstreamCancelled{}}}})
	assert.False(t, f)
	assert.True(t, c)
}
