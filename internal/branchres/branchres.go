// Package branchres resolves a companion-resource reference by walking an
// ordered list of candidate ref names. The typical use is finding the branch
// of a sibling test-suite repository that tracks the current feature branch,
// falling back to that repository's default branch when no companion exists.
package branchres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vk/mergegate/internal/ctxlog"
)

// ErrNotFound is returned by a FetchFunc when the candidate ref does not
// exist in the companion repository.
var ErrNotFound = errors.New("ref not found")

// ErrExhausted is returned by Resolve when every candidate was skipped or
// came back NotFound.
var ErrExhausted = errors.New("branch resolution exhausted all candidates")

// Resource is whatever the fetch function produces for a resolved ref; the
// resolver never inspects it.
type Resource any

// FetchFunc retrieves the resource behind a candidate ref. It must return
// ErrNotFound (possibly wrapped) when the ref does not exist; any other
// error aborts resolution immediately.
type FetchFunc func(ctx context.Context, ref string) (Resource, error)

// Resolve walks candidates in order and returns the resource of the first
// one that fetches successfully, along with the ref that won. Candidates
// that are empty or that live in a pull-request merge-ref namespace are
// skipped without a fetch, and no candidate is ever fetched twice.
func Resolve(ctx context.Context, candidates []string, fetch FetchFunc) (Resource, string, error) {
	logger := ctxlog.FromContext(ctx)
	tried := make(map[string]bool, len(candidates))
	for _, ref := range candidates {
		if skipCandidate(ref) {
			logger.Debug("Skipping candidate ref.", "ref", ref)
			continue
		}
		if tried[ref] {
			continue
		}
		tried[ref] = true

		res, err := fetch(ctx, ref)
		if errors.Is(err, ErrNotFound) {
			logger.Debug("Candidate ref not found, trying next.", "ref", ref)
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("fetching candidate %q: %w", ref, err)
		}
		logger.Debug("Resolved companion ref.", "ref", ref)
		return res, ref, nil
	}
	return nil, "", ErrExhausted
}

// skipCandidate reports whether a candidate must not be fetched: empty names
// and refs under a pull-request namespace (merge commits are not real
// branches of the companion repository).
func skipCandidate(ref string) bool {
	if ref == "" {
		return true
	}
	if strings.HasPrefix(ref, "refs/pull/") {
		return true
	}
	return strings.HasSuffix(ref, "/merge")
}
