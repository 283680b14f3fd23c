// Package matrix expands a job's axis specification into the concrete set of
// parameter combinations its instances run under. Expansion is deterministic:
// the same spec always yields the same combinations in the same order, so
// instance IDs stay stable across runs for caching and log correlation.
package matrix

import (
	"fmt"
	"sort"
	"strings"
)

// Axis is one independent parameter dimension.
type Axis struct {
	Name   string
	Values []string
}

// Spec describes how a job definition is expanded: the Cartesian product of
// its axes, minus combinations matched by an exclude filter, plus include
// overrides appended verbatim. Specs are shared immutable value objects;
// several job definitions may reference the same one.
type Spec struct {
	Name    string
	Axes    []Axis
	Include []map[string]string
	Exclude []map[string]string
}

// Combination is one concrete assignment of a value to every axis.
type Combination struct {
	axisOrder []string
	values    map[string]string
}

// Value returns the value assigned to the named axis.
func (c Combination) Value(axis string) (string, bool) {
	v, ok := c.values[axis]
	return v, ok
}

// Values returns the combination as a plain map, for predicate evaluation
// and executor environment injection.
func (c Combination) Values() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Key renders the combination as a stable instance-ID suffix of the form
// "[a=1,b=2]". Axes appear in declaration order; keys an include override
// introduced beyond the declared axes follow, sorted.
func (c Combination) Key() string {
	if len(c.values) == 0 {
		return ""
	}
	parts := make([]string, 0, len(c.values))
	seen := make(map[string]bool, len(c.values))
	for _, name := range c.axisOrder {
		if v, ok := c.values[name]; ok {
			parts = append(parts, name+"="+v)
			seen[name] = true
		}
	}
	var extra []string
	for name := range c.values {
		if !seen[name] {
			extra = append(extra, name+"="+c.values[name])
		}
	}
	sort.Strings(extra)
	parts = append(parts, extra...)
	return "[" + strings.Join(parts, ",") + "]"
}

// Expand produces the ordered list of combinations for the spec. A nil spec
// expands to the single empty combination, so a matrix-less job still yields
// exactly one instance.
func (s *Spec) Expand() []Combination {
	if s == nil || len(s.Axes) == 0 {
		base := []Combination{{}}
		if s != nil {
			base = s.appendIncludes(base)
		}
		return base
	}

	order := make([]string, len(s.Axes))
	for i, a := range s.Axes {
		order[i] = a.Name
	}

	combos := []Combination{{axisOrder: order, values: map[string]string{}}}
	for _, axis := range s.Axes {
		next := make([]Combination, 0, len(combos)*len(axis.Values))
		for _, c := range combos {
			for _, v := range axis.Values {
				merged := make(map[string]string, len(c.values)+1)
				for k, existing := range c.values {
					merged[k] = existing
				}
				merged[axis.Name] = v
				next = append(next, Combination{axisOrder: order, values: merged})
			}
		}
		combos = next
	}

	kept := combos[:0]
	for _, c := range combos {
		if !s.excluded(c) {
			kept = append(kept, c)
		}
	}
	return s.appendIncludes(kept)
}

// excluded reports whether any exclude filter matches the combination. A
// filter matches when every key/value pair it names agrees with the
// combination; filters are partial keys, not full combinations.
func (s *Spec) excluded(c Combination) bool {
	for _, filter := range s.Exclude {
		if len(filter) == 0 {
			continue
		}
		match := true
		for k, v := range filter {
			if got, ok := c.values[k]; !ok || got != v {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// appendIncludes adds include overrides verbatim, in declaration order,
// skipping any that duplicate a combination already present.
func (s *Spec) appendIncludes(combos []Combination) []Combination {
	if len(s.Include) == 0 {
		return combos
	}
	var order []string
	for _, a := range s.Axes {
		order = append(order, a.Name)
	}
	present := make(map[string]bool, len(combos))
	for _, c := range combos {
		present[c.Key()] = true
	}
	for _, inc := range s.Include {
		values := make(map[string]string, len(inc))
		for k, v := range inc {
			values[k] = v
		}
		c := Combination{axisOrder: order, values: values}
		if present[c.Key()] {
			continue
		}
		present[c.Key()] = true
		combos = append(combos, c)
	}
	return combos
}

// Validate rejects specs that cannot expand to a usable combination set.
func (s *Spec) Validate() error {
	if s == nil {
		return nil
	}
	seen := make(map[string]bool, len(s.Axes))
	for _, a := range s.Axes {
		if a.Name == "" {
			return fmt.Errorf("matrix %q: axis with empty name", s.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("matrix %q: duplicate axis %q", s.Name, a.Name)
		}
		seen[a.Name] = true
		if len(a.Values) == 0 {
			return fmt.Errorf("matrix %q: axis %q has no values", s.Name, a.Name)
		}
	}
	return nil
}
