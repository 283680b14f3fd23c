// Package scheduler drives a built job graph to completion: it dispatches
// ready instances to the external executor over a bounded worker pool,
// applies predicate and dependency gating, consults the retry policy on
// failures, folds gate nodes, and honours cooperative cancellation. The
// scheduler owns status bookkeeping only; it contains no execution logic.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vk/mergegate/internal/artifact"
	"github.com/vk/mergegate/internal/ctxlog"
	"github.com/vk/mergegate/internal/graph"
	"github.com/vk/mergegate/internal/predicate"
	"github.com/vk/mergegate/internal/retry"
)

// DefaultWorkers bounds concurrent executor dispatches when the pipeline
// does not configure its own limit.
const DefaultWorkers = 4

// InstanceSpec is everything the external executor needs to run one attempt
// of one instance. The engine treats the command as opaque.
type InstanceSpec struct {
	ID      string
	Job     string
	Command []string
	Axes    map[string]string
	Attempt int
}

// Executor runs one attempt of an instance in an isolated environment and
// reports the outcome code. It must respect ctx and return promptly once
// the context is cancelled; a forced timeout surfaces as a distinguished
// outcome code.
type Executor interface {
	Run(ctx context.Context, spec InstanceSpec) (retry.OutcomeCode, error)
}

// ExecFunc adapts a plain function to the Executor interface.
type ExecFunc func(ctx context.Context, spec InstanceSpec) (retry.OutcomeCode, error)

func (f ExecFunc) Run(ctx context.Context, spec InstanceSpec) (retry.OutcomeCode, error) {
	return f(ctx, spec)
}

// Scheduler executes one graph. It is single-use: construct, Run, inspect
// the graph's terminal statuses.
type Scheduler struct {
	graph     *graph.Graph
	exec      Executor
	collector *artifact.Collector
	baseEnv   predicate.Env
	workers   int
	wg        sync.WaitGroup
}

// New returns a scheduler over the given graph. baseEnv carries the run
// metadata every predicate is evaluated against; per-instance axis values
// and upstream state are filled in at dispatch time.
func New(g *graph.Graph, exec Executor, collector *artifact.Collector, baseEnv predicate.Env, workers int) *Scheduler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Scheduler{
		graph:     g,
		exec:      exec,
		collector: collector,
		baseEnv:   baseEnv,
		workers:   workers,
	}
}

// Run drives every node to a terminal state and returns once the whole
// graph has settled. Failures are contained per instance; a cancelled ctx
// moves all still-pending work to Cancelled and Run still returns normally.
func (s *Scheduler) Run(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)

	readyChan := make(chan *graph.Node, len(s.graph.Nodes))
	roots := s.graph.Roots()
	logger.Debug("Scheduler starting.", "nodes", len(s.graph.Nodes), "roots", len(roots), "workers", s.workers)
	for _, n := range roots {
		readyChan <- n
	}

	s.wg.Add(len(s.graph.Nodes))
	for i := 0; i < s.workers; i++ {
		go s.worker(ctx, readyChan, i)
	}

	s.wg.Wait()
	close(readyChan)
	logger.Debug("Scheduler finished, all nodes terminal.")
}

// worker is the processing loop for one concurrent worker.
func (s *Scheduler) worker(ctx context.Context, readyChan chan *graph.Node, workerID int) {
	logger := ctxlog.FromContext(ctx).With("workerID", workerID)
	for n := range readyChan {
		s.process(ctx, n)
		logger.Debug("Node reached terminal state.", "nodeID", n.ID, "status", n.Status().String())

		for _, dependent := range n.Dependents {
			if dependent.DepDone() {
				readyChan <- dependent
			}
		}
		s.wg.Done()
	}
}

// process moves one ready node to a terminal state. All of the node's
// dependencies are already terminal when it gets here.
func (s *Scheduler) process(ctx context.Context, n *graph.Node) {
	if ctx.Err() != nil {
		n.Err = ctx.Err()
		n.Transition(graph.Pending, graph.Cancelled)
		s.collect(ctx, n)
		return
	}
	if n.Type == graph.GateNode {
		s.evaluateGate(ctx, n)
		return
	}
	s.dispatch(ctx, n)
}

// upstream summarises the terminal states of a node's dependencies: whether
// any failed, any were cancelled, and whether any ended Skipped without
// being declared skippable.
func upstream(n *graph.Node) (failed, cancelled, skippedHard bool) {
	for _, dep := range n.Deps {
		switch dep.Status() {
		case graph.Failed:
			failed = true
		case graph.Cancelled:
			cancelled = true
		case graph.Skipped:
			if !dep.Skippable() {
				skippedHard = true
			}
		}
	}
	return failed, cancelled, skippedHard
}

// dispatch applies predicate and dependency gating to a job instance and,
// if it is eligible, runs it through the executor with retries.
func (s *Scheduler) dispatch(ctx context.Context, n *graph.Node) {
	logger := ctxlog.FromContext(ctx).With("instanceID", n.ID)

	upFailed, upCancelled, upSkippedHard := upstream(n)
	env := s.baseEnv
	env.Axes = n.Combo.Values()
	env.UpstreamFailed = upFailed
	env.UpstreamCancelled = upCancelled

	if !predicate.Eval(n.Job.When, env) {
		logger.Info("Instance skipped: predicate is false.")
		n.Err = errors.New("predicate evaluated to false")
		n.Transition(graph.Pending, graph.Skipped)
		return
	}

	refsFailed, refsCancelled := predicate.References(n.Job.When)
	tolerated := (refsFailed && upFailed) || (refsCancelled && upCancelled)
	if upSkippedHard || ((upFailed || upCancelled) && !tolerated) {
		logger.Info("Instance skipped: hard dependency not satisfied.")
		n.Err = errors.New("upstream dependency not satisfied")
		n.Transition(graph.Pending, graph.Skipped)
		return
	}

	if !n.Transition(graph.Pending, graph.Running) {
		return
	}
	n.StartedAt = time.Now()

	spec := InstanceSpec{
		ID:      n.ID,
		Job:     n.Job.Name,
		Command: n.Job.Command,
		Axes:    n.Combo.Values(),
	}

	final := graph.Failed
	for {
		spec.Attempt = n.RecordAttempt()
		attemptLogger := logger.With("attempt", spec.Attempt)
		attemptLogger.Info("Dispatching instance to executor.")

		code, err := s.exec.Run(ctx, spec)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				attemptLogger.Warn("Instance cancelled during execution.")
				n.Err = context.Canceled
				final = graph.Cancelled
			} else {
				attemptLogger.Error("Executor failed.", "error", err)
				n.Err = err
				final = graph.Failed
			}
			break
		}
		if code.Success() {
			attemptLogger.Info("Instance succeeded.")
			final = graph.Succeeded
			break
		}
		if ctx.Err() != nil {
			// The attempt was allowed to finish, but no retries are issued
			// once cancellation has been requested.
			attemptLogger.Warn("Instance cancelled after failed attempt.", "code", int(code))
			n.Err = context.Canceled
			final = graph.Cancelled
			break
		}
		if n.Job.Retry.ShouldRetry(code, spec.Attempt) {
			attemptLogger.Warn("Transient failure, retrying immediately.", "code", int(code))
			continue
		}
		attemptLogger.Error("Instance failed terminally.", "code", int(code))
		n.Err = fmt.Errorf("executor returned outcome code %d", int(code))
		final = graph.Failed
		break
	}

	n.EndedAt = time.Now()
	n.Transition(graph.Running, final)
	s.collect(ctx, n)
}

// evaluateGate folds the terminal statuses of a gate's dependencies into
// the gate's own status. A gate never does work of its own.
func (s *Scheduler) evaluateGate(ctx context.Context, n *graph.Node) {
	logger := ctxlog.FromContext(ctx).With("gate", n.ID)

	allowed := make(map[string]bool, len(n.Gate.AllowSkipped))
	for _, name := range n.Gate.AllowSkipped {
		allowed[name] = true
	}

	status := graph.Succeeded
	for _, dep := range n.Deps {
		switch dep.Status() {
		case graph.Succeeded:
		case graph.Skipped:
			if !allowed[dep.DefName()] {
				status = graph.Failed
			}
		default:
			status = graph.Failed
		}
	}

	logger.Info("Gate evaluated.", "status", status.String())
	n.Transition(graph.Pending, status)
}

// collect runs post-instance artifact collection. It deliberately detaches
// from run cancellation: artifacts of a cancelled instance are exactly the
// ones worth keeping.
func (s *Scheduler) collect(ctx context.Context, n *graph.Node) {
	if n.Type != graph.JobNode {
		return
	}
	status := n.Status()
	failedLike := status == graph.Failed || status == graph.Cancelled
	s.collector.Collect(context.WithoutCancel(ctx), n.ID, n.Job.Artifacts.Policy, failedLike, n.Job.Artifacts.Paths)
}
