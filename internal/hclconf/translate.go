package hclconf

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/mergegate/internal/artifact"
	"github.com/vk/mergegate/internal/config"
	"github.com/vk/mergegate/internal/matrix"
	"github.com/vk/mergegate/internal/predicate"
	"github.com/vk/mergegate/internal/retry"
	"github.com/vk/mergegate/internal/schema"
)

// classifyAttr is the reserved retry_policy attribute mapping raw outcome
// codes to buckets; every other attribute is a bucket limit.
const classifyAttr = "classify"

// translate converts the merged schema view into the config model,
// resolving matrix and retry references to their shared value objects.
func translate(f *schema.File) (*config.Pipeline, error) {
	var result *multierror.Error

	p := &config.Pipeline{}
	if f.Pipeline != nil {
		p.Name = f.Pipeline.Name
		p.Workers = f.Pipeline.Workers
		p.GroupExpr = f.Pipeline.ConcurrencyGroup
	} else {
		result = multierror.Append(result, fmt.Errorf("missing pipeline block"))
	}

	policies := make(map[string]*retry.Policy, len(f.RetryPolicies))
	for _, block := range f.RetryPolicies {
		policy, err := translateRetryPolicy(block)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if _, dup := policies[policy.Name]; dup {
			result = multierror.Append(result, fmt.Errorf("duplicate retry_policy %q", policy.Name))
		}
		policies[policy.Name] = policy
	}

	matrices := make(map[string]*matrix.Spec, len(f.Matrices))
	for _, block := range f.Matrices {
		spec, err := translateMatrix(block)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if _, dup := matrices[spec.Name]; dup {
			result = multierror.Append(result, fmt.Errorf("duplicate matrix %q", spec.Name))
		}
		matrices[spec.Name] = spec
	}

	for _, block := range f.Jobs {
		job, err := translateJob(block, matrices, policies)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		p.Jobs = append(p.Jobs, job)
	}

	for _, block := range f.Gates {
		p.Gates = append(p.Gates, &config.Gate{
			Name:         block.Name,
			DependsOn:    block.DependsOn,
			AllowSkipped: block.AllowSkipped,
		})
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return p, nil
}

func translateJob(block *schema.JobBlock, matrices map[string]*matrix.Spec, policies map[string]*retry.Policy) (*config.Job, error) {
	job := &config.Job{
		Name:      block.Name,
		Command:   block.Command,
		DependsOn: block.DependsOn,
		Skippable: block.Skippable,
	}

	if block.Matrix != "" {
		spec, ok := matrices[block.Matrix]
		if !ok {
			return nil, fmt.Errorf("job %q references unknown matrix %q", block.Name, block.Matrix)
		}
		job.Matrix = spec
	}
	if block.Retry != "" {
		policy, ok := policies[block.Retry]
		if !ok {
			return nil, fmt.Errorf("job %q references unknown retry_policy %q", block.Name, block.Retry)
		}
		job.Retry = policy
	}
	if block.When != nil {
		expr, err := translatePredicate(block.When)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", block.Name, err)
		}
		job.When = expr
	}
	if block.Artifacts != nil {
		pol, err := artifact.ParsePolicy(block.Artifacts.Policy)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", block.Name, err)
		}
		job.Artifacts = config.Artifacts{Policy: pol, Paths: block.Artifacts.Paths}
	}
	return job, nil
}

func translateRetryPolicy(block *schema.RetryPolicyBlock) (*retry.Policy, error) {
	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("retry_policy %q: %w", block.Name, diags)
	}

	policy := &retry.Policy{
		Name:   block.Name,
		Limits: make(map[retry.Class]int),
	}
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("retry_policy %q: attribute %q: %w", block.Name, name, diags)
		}
		if name == classifyAttr {
			classify, err := translateClassify(val)
			if err != nil {
				return nil, fmt.Errorf("retry_policy %q: %w", block.Name, err)
			}
			policy.Classify = classify
			continue
		}
		val, err := convert.Convert(val, cty.Number)
		if err != nil {
			return nil, fmt.Errorf("retry_policy %q: bucket %q limit must be a number: %w", block.Name, name, err)
		}
		limit, _ := val.AsBigFloat().Int64()
		if limit < 0 {
			return nil, fmt.Errorf("retry_policy %q: bucket %q limit must not be negative", block.Name, name)
		}
		policy.Limits[retry.Class(name)] = int(limit)
	}
	return policy, nil
}

// translateClassify decodes a map of outcome-code strings to bucket names.
func translateClassify(val cty.Value) (map[retry.OutcomeCode]retry.Class, error) {
	if val.IsNull() || !val.CanIterateElements() {
		return nil, fmt.Errorf("classify must be a map of outcome codes to buckets")
	}
	out := make(map[retry.OutcomeCode]retry.Class)
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		code, err := strconv.Atoi(k.AsString())
		if err != nil {
			return nil, fmt.Errorf("classify key %q is not an outcome code", k.AsString())
		}
		v, convErr := convert.Convert(v, cty.String)
		if convErr != nil {
			return nil, fmt.Errorf("classify value for code %d must be a bucket name", code)
		}
		out[retry.OutcomeCode(code)] = retry.Class(v.AsString())
	}
	return out, nil
}

func translateMatrix(block *schema.MatrixBlock) (*matrix.Spec, error) {
	spec := &matrix.Spec{Name: block.Name}
	for _, axis := range block.Axes {
		spec.Axes = append(spec.Axes, matrix.Axis{Name: axis.Name, Values: axis.Values})
	}
	for _, combo := range block.Include {
		pairs, err := translateCombo(combo.Body)
		if err != nil {
			return nil, fmt.Errorf("matrix %q include: %w", block.Name, err)
		}
		spec.Include = append(spec.Include, pairs)
	}
	for _, combo := range block.Exclude {
		pairs, err := translateCombo(combo.Body)
		if err != nil {
			return nil, fmt.Errorf("matrix %q exclude: %w", block.Name, err)
		}
		spec.Exclude = append(spec.Exclude, pairs)
	}
	return spec, nil
}

// translateCombo flattens a free-form include/exclude block into axis=value
// pairs.
func translateCombo(body hcl.Body) (map[string]string, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w", diags)
	}
	pairs := make(map[string]string, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("axis %q: %w", name, diags)
		}
		val, err := convert.Convert(val, cty.String)
		if err != nil {
			return nil, fmt.Errorf("axis %q value must be a string: %w", name, err)
		}
		pairs[name] = val.AsString()
	}
	return pairs, nil
}

// translatePredicate converts a `when` tree into the typed predicate AST.
// Sibling terms at one level are combined with AND.
func translatePredicate(block *schema.PredicateBlock) (predicate.Expr, error) {
	terms, err := predicateTerms(block)
	if err != nil {
		return nil, err
	}
	switch len(terms) {
	case 0:
		return nil, fmt.Errorf("empty when block")
	case 1:
		return terms[0], nil
	default:
		return predicate.And{Exprs: terms}, nil
	}
}

// predicateTerms translates every member of one predicate level, in a fixed
// order: combinators first, then field tests, then upstream markers.
func predicateTerms(block *schema.PredicateBlock) ([]predicate.Expr, error) {
	var terms []predicate.Expr

	for _, sub := range block.All {
		inner, err := predicateTerms(sub)
		if err != nil {
			return nil, err
		}
		terms = append(terms, predicate.And{Exprs: inner})
	}
	for _, sub := range block.Any {
		inner, err := predicateTerms(sub)
		if err != nil {
			return nil, err
		}
		terms = append(terms, predicate.Or{Exprs: inner})
	}
	for _, sub := range block.Not {
		inner, err := predicateTerms(sub)
		if err != nil {
			return nil, err
		}
		if len(inner) != 1 {
			return nil, fmt.Errorf("not block must contain exactly one term, got %d", len(inner))
		}
		terms = append(terms, predicate.Not{Expr: inner[0]})
	}
	for _, test := range block.Equals {
		if err := validateField(test.Field); err != nil {
			return nil, err
		}
		terms = append(terms, predicate.Equals{Field: predicate.Field(test.Field), Value: test.Value})
	}
	for _, test := range block.Contains {
		if err := validateField(test.Field); err != nil {
			return nil, err
		}
		terms = append(terms, predicate.Contains{Field: predicate.Field(test.Field), Value: test.Value})
	}
	for range block.UpstreamFailed {
		terms = append(terms, predicate.UpstreamFailed{})
	}
	for range block.UpstreamCancelled {
		terms = append(terms, predicate.UpstreamCancelled{})
	}

	return terms, nil
}

func validateField(name string) error {
	switch predicate.Field(name) {
	case predicate.FieldRef, predicate.FieldRefKind, predicate.FieldBaseRef, predicate.FieldSHA, predicate.FieldMessage:
		return nil
	}
	if strings.HasPrefix(name, "axis.") {
		return nil
	}
	return fmt.Errorf("unknown predicate field %q", name)
}
