// Package schema defines the HCL block structures of a pipeline definition
// file. These structs are decode targets only; translation into the
// format-agnostic config model happens in the hclconf package.
package schema

import "github.com/hashicorp/hcl/v2"

// File is the top-level structure of one pipeline definition file.
type File struct {
	Pipeline      *PipelineBlock      `hcl:"pipeline,block"`
	RetryPolicies []*RetryPolicyBlock `hcl:"retry_policy,block"`
	Matrices      []*MatrixBlock      `hcl:"matrix,block"`
	Jobs          []*JobBlock         `hcl:"job,block"`
	Gates         []*GateBlock        `hcl:"gate,block"`
}

// PipelineBlock carries pipeline-wide settings. The concurrency_group
// attribute is captured unevaluated: it is a template resolved against each
// trigger event's metadata.
type PipelineBlock struct {
	Name             string         `hcl:"name,label"`
	ConcurrencyGroup hcl.Expression `hcl:"concurrency_group,optional"`
	Workers          int            `hcl:"workers,optional"`
}

// RetryPolicyBlock is a shared, named retry table. Its body is free-form:
// each attribute names a retry bucket and gives its limit, except for the
// reserved `classify` attribute which maps raw outcome codes to buckets.
type RetryPolicyBlock struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

// MatrixBlock is a shared, named axis specification.
type MatrixBlock struct {
	Name    string        `hcl:"name,label"`
	Axes    []*AxisBlock  `hcl:"axis,block"`
	Include []*ComboBlock `hcl:"include,block"`
	Exclude []*ComboBlock `hcl:"exclude,block"`
}

// AxisBlock is one dimension of a matrix.
type AxisBlock struct {
	Name   string   `hcl:"name,label"`
	Values []string `hcl:"values"`
}

// ComboBlock is a free-form set of axis=value pairs, used by both include
// overrides and exclude filters.
type ComboBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// JobBlock is one job definition.
type JobBlock struct {
	Name      string          `hcl:"name,label"`
	Command   []string        `hcl:"command,optional"`
	DependsOn []string        `hcl:"depends_on,optional"`
	Matrix    string          `hcl:"matrix,optional"`
	Retry     string          `hcl:"retry,optional"`
	Skippable bool            `hcl:"skippable,optional"`
	When      *PredicateBlock `hcl:"when,block"`
	Artifacts *ArtifactsBlock `hcl:"artifacts,block"`
}

// ArtifactsBlock is a job's collection settings.
type ArtifactsBlock struct {
	Policy string   `hcl:"policy"`
	Paths  []string `hcl:"paths,optional"`
}

// GateBlock is a status-aggregating gate definition.
type GateBlock struct {
	Name         string   `hcl:"name,label"`
	DependsOn    []string `hcl:"depends_on"`
	AllowSkipped []string `hcl:"allow_skipped,optional"`
}

// PredicateBlock is one level of a `when` expression tree. Members of a
// level are combined with AND; `any` introduces OR, `not` negation.
type PredicateBlock struct {
	All               []*PredicateBlock `hcl:"all,block"`
	Any               []*PredicateBlock `hcl:"any,block"`
	Not               []*PredicateBlock `hcl:"not,block"`
	Equals            []*FieldTestBlock `hcl:"equals,block"`
	Contains          []*FieldTestBlock `hcl:"contains,block"`
	UpstreamFailed    []*MarkerBlock    `hcl:"upstream_failed,block"`
	UpstreamCancelled []*MarkerBlock    `hcl:"upstream_cancelled,block"`
}

// FieldTestBlock tests one metadata field.
type FieldTestBlock struct {
	Field string `hcl:"field"`
	Value string `hcl:"value"`
}

// MarkerBlock is an empty block used by the upstream state predicates.
type MarkerBlock struct{}
