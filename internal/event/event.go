// Package event defines the trigger event delivered by an external event
// source (webhook, CLI fixture file) that starts an orchestration run.
package event

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RefKind identifies what kind of ref a trigger event refers to.
type RefKind string

const (
	RefBranch      RefKind = "branch"
	RefTag         RefKind = "tag"
	RefPullRequest RefKind = "pull_request"
)

// TriggerEvent is the payload delivered for one triggering event. It is
// read-only after creation; the coordinator derives the run metadata from it.
type TriggerEvent struct {
	Ref     string  `yaml:"ref" json:"ref"`
	RefKind RefKind `yaml:"ref_kind" json:"ref_kind"`
	BaseRef string  `yaml:"base_ref,omitempty" json:"base_ref,omitempty"`
	SHA     string  `yaml:"sha" json:"sha"`
	Message string  `yaml:"message,omitempty" json:"message,omitempty"`
}

// Validate checks that the event carries the minimum fields the engine
// needs to build run metadata.
func (e *TriggerEvent) Validate() error {
	if e.Ref == "" {
		return fmt.Errorf("trigger event: ref is required")
	}
	if e.SHA == "" {
		return fmt.Errorf("trigger event: sha is required")
	}
	switch e.RefKind {
	case RefBranch, RefTag, RefPullRequest:
	case "":
		return fmt.Errorf("trigger event: ref_kind is required")
	default:
		return fmt.Errorf("trigger event: unknown ref_kind %q", e.RefKind)
	}
	if e.RefKind == RefPullRequest && e.BaseRef == "" {
		return fmt.Errorf("trigger event: base_ref is required for pull_request events")
	}
	return nil
}

// LoadFile reads a trigger event from a YAML file. Used by the CLI one-shot
// mode and by test fixtures.
func LoadFile(path string) (*TriggerEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading event file: %w", err)
	}
	var ev TriggerEvent
	if err := yaml.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("parsing event file %s: %w", path, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}
