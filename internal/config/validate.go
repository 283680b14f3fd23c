package config

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Validate checks the static shape of the pipeline: unique names across jobs
// and gates, no dangling dependency references, well-formed matrices, and
// gate allow_skipped entries that actually name dependencies. All findings
// are aggregated so a broken configuration is reported in one pass; cycle
// detection happens later, at graph-build time.
func (p *Pipeline) Validate() error {
	var result *multierror.Error

	if p.Name == "" {
		result = multierror.Append(result, fmt.Errorf("pipeline name must not be empty"))
	}

	names := make(map[string]bool, len(p.Jobs)+len(p.Gates))
	for _, j := range p.Jobs {
		if j.Name == "" {
			result = multierror.Append(result, fmt.Errorf("job with empty name"))
			continue
		}
		if names[j.Name] {
			result = multierror.Append(result, fmt.Errorf("duplicate definition name %q", j.Name))
		}
		names[j.Name] = true
	}
	for _, g := range p.Gates {
		if g.Name == "" {
			result = multierror.Append(result, fmt.Errorf("gate with empty name"))
			continue
		}
		if names[g.Name] {
			result = multierror.Append(result, fmt.Errorf("duplicate definition name %q", g.Name))
		}
		names[g.Name] = true
	}

	for _, j := range p.Jobs {
		for _, dep := range j.DependsOn {
			if !names[dep] {
				result = multierror.Append(result, fmt.Errorf("job %q depends on unknown definition %q", j.Name, dep))
			}
		}
		if err := j.Matrix.Validate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("job %q: %w", j.Name, err))
		}
	}

	for _, g := range p.Gates {
		if len(g.DependsOn) == 0 {
			result = multierror.Append(result, fmt.Errorf("gate %q has no dependencies", g.Name))
		}
		deps := make(map[string]bool, len(g.DependsOn))
		for _, dep := range g.DependsOn {
			if !names[dep] {
				result = multierror.Append(result, fmt.Errorf("gate %q depends on unknown definition %q", g.Name, dep))
			}
			deps[dep] = true
		}
		for _, allowed := range g.AllowSkipped {
			if !deps[allowed] {
				result = multierror.Append(result, fmt.Errorf("gate %q allows skipped %q which is not among its dependencies", g.Name, allowed))
			}
		}
	}

	return result.ErrorOrNil()
}
