package run

import (
	"github.com/vk/mergegate/internal/event"
	"github.com/vk/mergegate/internal/predicate"
)

// Metadata is the process-wide, read-only snapshot of the triggering event
// for one orchestration run. It is never mutated after creation.
type Metadata struct {
	Ref     string
	RefKind event.RefKind
	BaseRef string
	SHA     string
	Message string
}

// MetadataFromEvent derives the run metadata from a validated trigger event.
func MetadataFromEvent(ev *event.TriggerEvent) Metadata {
	return Metadata{
		Ref:     ev.Ref,
		RefKind: ev.RefKind,
		BaseRef: ev.BaseRef,
		SHA:     ev.SHA,
		Message: ev.Message,
	}
}

// PredicateEnv returns the predicate evaluation environment for this run.
// Axis values and upstream state are filled in per instance by the
// scheduler.
func (m Metadata) PredicateEnv() predicate.Env {
	return predicate.Env{
		Ref:     m.Ref,
		RefKind: string(m.RefKind),
		BaseRef: m.BaseRef,
		SHA:     m.SHA,
		Message: m.Message,
	}
}

// Vars exposes the metadata as template variables for the concurrency-group
// key expression.
func (m Metadata) Vars() map[string]string {
	return map[string]string{
		"ref":      m.Ref,
		"ref_kind": string(m.RefKind),
		"base_ref": m.BaseRef,
		"sha":      m.SHA,
	}
}

// BranchCandidates returns the ordered companion-branch candidate list for
// this run: the feature branch first, then the PR base branch, then the
// companion repository's default branches. The branch resolver walks these
// in order.
func (m Metadata) BranchCandidates(defaults ...string) []string {
	candidates := []string{m.Ref}
	if m.RefKind == event.RefPullRequest {
		candidates = append(candidates, m.BaseRef)
	}
	return append(candidates, defaults...)
}
