// Package retry classifies a job instance's execution outcome and decides
// whether the scheduler re-dispatches it. Classification buckets and their
// limits come from named retry_policy blocks in the pipeline configuration;
// policies are shared immutable value objects referenced by many jobs.
package retry

// OutcomeCode is the raw result the external executor returns for one
// attempt. Zero is success. The engine treats the code itself as opaque
// except for classification.
type OutcomeCode int

const (
	// CodeSuccess is the only code that counts as a successful attempt.
	CodeSuccess OutcomeCode = 0

	// CodeAgentLost is the distinguished code an executor reports when the
	// agent running the instance disappeared (infrastructure failure), as
	// opposed to the command itself failing.
	CodeAgentLost OutcomeCode = -1

	// CodeTransient is the conventional code for a generic transient
	// failure that is worth re-running.
	CodeTransient OutcomeCode = 2
)

// Success reports whether the code represents a successful attempt.
func (c OutcomeCode) Success() bool { return c == CodeSuccess }

// Class is a retry bucket name. The two well-known buckets mirror the
// distinguished outcome codes; configuration may define limits for either
// independently.
type Class string

const (
	ClassAgentLost Class = "agent_lost"
	ClassTransient Class = "transient"

	// classFatal is the implicit bucket for every outcome a policy does not
	// name: no retries, the instance fails terminally.
	classFatal Class = ""
)

// defaultClassify maps the distinguished outcome codes to their buckets.
// Agent loss and generic transient failures stay separate buckets so their
// limits can be tuned independently.
var defaultClassify = map[OutcomeCode]Class{
	CodeAgentLost: ClassAgentLost,
	CodeTransient: ClassTransient,
}

// Policy is a named, immutable retry table: per-bucket limits plus an
// optional per-job override of the code-to-bucket classification.
type Policy struct {
	Name string

	// Limits maps a bucket to the number of retries allowed after the first
	// attempt: limit N permits N+1 total attempts. A bucket absent from the
	// map is fatal.
	Limits map[Class]int

	// Classify overrides the default code-to-bucket mapping for this
	// policy's jobs. Codes absent here fall through to the defaults.
	Classify map[OutcomeCode]Class
}

// ClassOf resolves an outcome code to its retry bucket. Unknown codes are
// fatal.
func (p *Policy) ClassOf(code OutcomeCode) Class {
	if p != nil {
		if class, ok := p.Classify[code]; ok {
			return class
		}
	}
	if class, ok := defaultClassify[code]; ok {
		return class
	}
	return classFatal
}

// ShouldRetry reports whether an instance that has already made
// attemptsSoFar attempts, the last of which ended with code, may be
// re-dispatched. A nil policy never retries.
func (p *Policy) ShouldRetry(code OutcomeCode, attemptsSoFar int) bool {
	if p == nil || code.Success() {
		return false
	}
	limit, ok := p.Limits[p.ClassOf(code)]
	if !ok {
		return false
	}
	return attemptsSoFar <= limit
}
