// Package artifact implements best-effort post-run collection of logs and
// build outputs. Collection runs after an instance reaches a terminal state
// and never alters that state: a missing file is logged, not escalated.
package artifact

import (
	"context"
	"fmt"

	"github.com/vk/mergegate/internal/ctxlog"
)

// Policy decides whether an instance's artifacts are collected at all.
type Policy int

const (
	// Never skips collection entirely.
	Never Policy = iota
	// OnFailure collects only when the instance ended Failed or Cancelled.
	OnFailure
	// Always collects regardless of outcome.
	Always
)

// ParsePolicy maps the configuration spelling of a policy to its value.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "never":
		return Never, nil
	case "on_failure":
		return OnFailure, nil
	case "always":
		return Always, nil
	default:
		return Never, fmt.Errorf("unknown artifact policy %q", s)
	}
}

func (p Policy) String() string {
	switch p {
	case OnFailure:
		return "on_failure"
	case Always:
		return "always"
	default:
		return "never"
	}
}

// Applies reports whether the policy calls for collection given whether the
// instance ended in a failed-like state (Failed or Cancelled).
func (p Policy) Applies(failed bool) bool {
	switch p {
	case Always:
		return true
	case OnFailure:
		return failed
	default:
		return false
	}
}

// Store is the external artifact sink. Upload failures are reported to the
// collector, which logs and drops them.
type Store interface {
	Upload(ctx context.Context, instanceID string, paths []string) error
}

// Collector applies a collection policy against a store.
type Collector struct {
	store Store
}

// NewCollector returns a collector backed by the given store. A nil store
// disables collection.
func NewCollector(store Store) *Collector {
	return &Collector{store: store}
}

// Collect uploads the instance's artifact paths if the policy applies.
// Collection is best-effort: errors are logged and swallowed so they can
// never change an instance's terminal status.
func (c *Collector) Collect(ctx context.Context, instanceID string, pol Policy, failed bool, paths []string) {
	if c == nil || c.store == nil || len(paths) == 0 || !pol.Applies(failed) {
		return
	}
	logger := ctxlog.FromContext(ctx).With("instanceID", instanceID, "policy", pol.String())
	logger.Debug("Collecting artifacts.", "paths", paths)
	if err := c.store.Upload(ctx, instanceID, paths); err != nil {
		logger.Warn("Artifact collection failed, continuing.", "error", err)
		return
	}
	logger.Debug("Artifact collection complete.")
}
