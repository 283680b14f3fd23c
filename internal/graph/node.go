package graph

import (
	"sync/atomic"
	"time"

	"github.com/vk/mergegate/internal/config"
	"github.com/vk/mergegate/internal/matrix"
)

// NodeType distinguishes schedulable job instances from pure-aggregation
// gate nodes.
type NodeType int

const (
	JobNode NodeType = iota
	GateNode
)

// Node is one vertex of the built job graph: a concrete job instance
// produced by matrix expansion, or a gate. The status field is the only
// shared mutable state between workers; every transition goes through a
// compare-and-swap so exactly one writer moves a node between states.
type Node struct {
	ID   string
	Type NodeType

	// Job and Combo are set for JobNode, Gate for GateNode.
	Job   *config.Job
	Combo matrix.Combination
	Gate  *config.Gate

	Deps       map[string]*Node
	Dependents map[string]*Node

	state atomic.Int32

	// pendingDeps counts dependencies that have not yet reached a terminal
	// state; the node becomes ready when it hits zero.
	pendingDeps atomic.Int32

	// attempts counts executor dispatches of this instance.
	attempts atomic.Int32

	// Err, StartedAt and EndedAt are written by the node's owning worker
	// before the terminal status transition and read only after observing a
	// terminal status.
	Err       error
	StartedAt time.Time
	EndedAt   time.Time
}

// Status returns the node's current lifecycle state.
func (n *Node) Status() Status {
	return Status(n.state.Load())
}

// Transition atomically moves the node from one state to another. It
// returns false when another writer got there first, in which case the
// caller must not treat the node as its own.
func (n *Node) Transition(from, to Status) bool {
	return n.state.CompareAndSwap(int32(from), int32(to))
}

// Attempts returns how many times the instance has been dispatched.
func (n *Node) Attempts() int {
	return int(n.attempts.Load())
}

// RecordAttempt increments the dispatch counter and returns the new total.
func (n *Node) RecordAttempt() int {
	return int(n.attempts.Add(1))
}

// DefName returns the definition name this node was expanded from.
func (n *Node) DefName() string {
	if n.Type == GateNode {
		return n.Gate.Name
	}
	return n.Job.Name
}

// Skippable reports whether a Skipped terminal state of this node still
// satisfies dependents. Gates are never skippable.
func (n *Node) Skippable() bool {
	return n.Type == JobNode && n.Job.Skippable
}

// DepDone decrements the pending-dependency counter and reports whether the
// node just became ready.
func (n *Node) DepDone() bool {
	return n.pendingDeps.Add(-1) == 0
}
