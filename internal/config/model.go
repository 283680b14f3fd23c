// Package config holds the format-agnostic pipeline model: job and gate
// definitions, shared matrix and retry blocks, and the Loader interface a
// concrete configuration format implements. The model is immutable once
// loaded; every run reads the same definitions.
package config

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/mergegate/internal/artifact"
	"github.com/vk/mergegate/internal/matrix"
	"github.com/vk/mergegate/internal/predicate"
	"github.com/vk/mergegate/internal/retry"
)

// Pipeline is one loaded pipeline: its settings plus every job and gate
// definition.
type Pipeline struct {
	Name    string
	Workers int

	// GroupExpr is the concurrency-group key template, kept as an unevaluated
	// expression and resolved per trigger event against that event's
	// metadata. Nil means the pipeline name is the group key.
	GroupExpr hcl.Expression

	Jobs  []*Job
	Gates []*Gate
}

// Job is the static description of one unit of work.
type Job struct {
	Name      string
	Command   []string
	DependsOn []string

	// Matrix and Retry reference shared immutable value objects; several
	// jobs may point at the same spec or policy.
	Matrix *matrix.Spec
	Retry  *retry.Policy

	// When gates eligibility; nil means always eligible.
	When predicate.Expr

	// Skippable marks that a Skipped instance of this job still satisfies
	// downstream dependents.
	Skippable bool

	Artifacts Artifacts
}

// Artifacts is a job's post-run collection settings.
type Artifacts struct {
	Policy artifact.Policy
	Paths  []string
}

// Gate is a pure status-aggregating definition: it depends on jobs and
// computes Succeeded or Failed from their instance statuses, nothing else.
type Gate struct {
	Name      string
	DependsOn []string

	// AllowSkipped lists dependency definitions whose Skipped instances
	// still count as satisfying this gate.
	AllowSkipped []string
}

// Loader is the interface a configuration format implements to produce the
// model. Parsing details live entirely in the format package.
type Loader interface {
	Load(ctx context.Context, paths ...string) (*Pipeline, error)
}

// ConcurrencyKey evaluates the pipeline's concurrency-group template against
// per-event metadata variables (ref, ref_kind, base_ref, sha). With no
// template configured the pipeline name is the key, i.e. at most one run of
// the pipeline is active at a time.
func (p *Pipeline) ConcurrencyKey(vars map[string]string) (string, error) {
	if p.GroupExpr == nil {
		return p.Name, nil
	}
	ctyVars := make(map[string]cty.Value, len(vars))
	for k, v := range vars {
		ctyVars[k] = cty.StringVal(v)
	}
	val, diags := p.GroupExpr.Value(&hcl.EvalContext{Variables: ctyVars})
	if diags.HasErrors() {
		return "", fmt.Errorf("evaluating concurrency_group: %w", diags)
	}
	val, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("concurrency_group must be a string: %w", err)
	}
	if val.IsNull() {
		return "", fmt.Errorf("concurrency_group evaluated to null")
	}
	return val.AsString(), nil
}
