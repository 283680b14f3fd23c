// Package run contains the top-level coordinator: it accepts trigger
// events, enforces concurrency-group supersession, builds and schedules the
// job graph, and reduces the settled graph to one aggregate pass/fail
// result for external consumers such as a merge-readiness check.
package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vk/mergegate/internal/artifact"
	"github.com/vk/mergegate/internal/config"
	"github.com/vk/mergegate/internal/ctxlog"
	"github.com/vk/mergegate/internal/event"
	"github.com/vk/mergegate/internal/graph"
	"github.com/vk/mergegate/internal/scheduler"
)

// Result is the aggregate outcome of one run: the single signal external
// consumers gate on, plus per-gate and per-instance statuses for display.
type Result struct {
	RunID     string                  `json:"run_id"`
	Group     string                  `json:"group"`
	Passed    bool                    `json:"passed"`
	Gates     map[string]graph.Status `json:"gates,omitempty"`
	Instances map[string]graph.Status `json:"instances"`
	StartedAt time.Time               `json:"started_at"`
	EndedAt   time.Time               `json:"ended_at"`
}

// Sink receives a run's final result. Delivery is fire-and-forget: sink
// errors are logged and never affect the run outcome.
type Sink interface {
	Notify(ctx context.Context, res Result) error
}

// State labels a run record's position in its lifecycle.
type State string

const (
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateError    State = "error"
)

// Record is the registry entry for one run, snapshotted for the HTTP
// status surface.
type Record struct {
	ID     string   `json:"id"`
	Group  string   `json:"group"`
	State  State    `json:"state"`
	Meta   Metadata `json:"meta"`
	Result *Result  `json:"result,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// activeRun tracks the in-flight run of a concurrency group so a newer run
// can cancel and drain it.
type activeRun struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Coordinator ties the engine together per triggering event.
type Coordinator struct {
	pipeline  *config.Pipeline
	exec      scheduler.Executor
	collector *artifact.Collector
	sinks     []Sink

	mu      sync.Mutex
	active  map[string]*activeRun
	records map[string]*Record
}

// NewCoordinator wires a coordinator over the loaded pipeline and the
// external collaborators.
func NewCoordinator(p *config.Pipeline, exec scheduler.Executor, store artifact.Store, sinks ...Sink) *Coordinator {
	return &Coordinator{
		pipeline:  p,
		exec:      exec,
		collector: artifact.NewCollector(store),
		sinks:     sinks,
		active:    make(map[string]*activeRun),
		records:   make(map[string]*Record),
	}
}

// Trigger runs the pipeline for one event and blocks until the run settles,
// returning its aggregate result.
func (c *Coordinator) Trigger(ctx context.Context, ev *event.TriggerEvent) (*Result, error) {
	id, err := c.register(ev)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, id, ev)
}

// TriggerAsync validates and registers a run, then drives it on its own
// goroutine. The returned run ID can be polled through Snapshot.
func (c *Coordinator) TriggerAsync(ctx context.Context, ev *event.TriggerEvent) (string, error) {
	id, err := c.register(ev)
	if err != nil {
		return "", err
	}
	go func() {
		if _, err := c.execute(context.WithoutCancel(ctx), id, ev); err != nil {
			ctxlog.FromContext(ctx).Error("Run failed.", "runID", id, "error", err)
		}
	}()
	return id, nil
}

// Snapshot returns a copy of a run's registry record.
func (c *Coordinator) Snapshot(id string) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// register validates the event and creates the run's registry entry.
func (c *Coordinator) register(ev *event.TriggerEvent) (string, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	c.mu.Lock()
	c.records[id] = &Record{ID: id, State: StateQueued, Meta: MetadataFromEvent(ev)}
	c.mu.Unlock()
	return id, nil
}

// execute performs one full orchestration run: supersede the concurrency
// group, build the graph, schedule it, aggregate and notify.
func (c *Coordinator) execute(ctx context.Context, id string, ev *event.TriggerEvent) (*Result, error) {
	meta := MetadataFromEvent(ev)
	logger := ctxlog.FromContext(ctx).With("runID", id, "ref", meta.Ref, "sha", meta.SHA)
	ctx = ctxlog.WithLogger(ctx, logger)

	key, err := c.pipeline.ConcurrencyKey(meta.Vars())
	if err != nil {
		c.fail(id, key, err)
		return nil, err
	}
	logger = logger.With("group", key)
	ctx = ctxlog.WithLogger(ctx, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	me := &activeRun{id: id, cancel: cancel, done: make(chan struct{})}
	defer close(me.done)

	c.mu.Lock()
	prior := c.active[key]
	c.active[key] = me
	rec := c.records[id]
	rec.Group = key
	rec.State = StateRunning
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.active[key] == me {
			delete(c.active, key)
		}
		c.mu.Unlock()
	}()

	if prior != nil {
		logger.Info("Superseding active run in concurrency group.", "supersededRunID", prior.id)
		prior.cancel()
		<-prior.done
	}

	startedAt := time.Now()
	g, err := graph.Build(runCtx, c.pipeline)
	if err != nil {
		err = fmt.Errorf("building job graph: %w", err)
		c.fail(id, key, err)
		return nil, err
	}

	logger.Info("Run starting.", "instances", len(g.Nodes))
	sched := scheduler.New(g, c.exec, c.collector, meta.PredicateEnv(), c.pipeline.Workers)
	sched.Run(runCtx)

	res := c.aggregate(id, key, g, startedAt)
	c.mu.Lock()
	rec.State = StateComplete
	rec.Result = &res
	c.mu.Unlock()
	logger.Info("Run finished.", "passed", res.Passed)

	c.notify(ctx, res)
	return &res, nil
}

// aggregate reduces the settled graph to the run's single result. With
// gates configured the gates decide; without gates every non-skipped
// instance must have succeeded.
func (c *Coordinator) aggregate(id, group string, g *graph.Graph, startedAt time.Time) Result {
	res := Result{
		RunID:     id,
		Group:     group,
		Passed:    true,
		Instances: make(map[string]graph.Status),
		StartedAt: startedAt,
		EndedAt:   time.Now(),
	}
	for _, nodeID := range g.Order {
		n := g.Nodes[nodeID]
		if n.Type == graph.GateNode {
			if res.Gates == nil {
				res.Gates = make(map[string]graph.Status)
			}
			res.Gates[n.ID] = n.Status()
			continue
		}
		res.Instances[n.ID] = n.Status()
	}

	if len(res.Gates) > 0 {
		for _, status := range res.Gates {
			if status != graph.Succeeded {
				res.Passed = false
			}
		}
		return res
	}
	for _, status := range res.Instances {
		if status != graph.Succeeded && status != graph.Skipped {
			res.Passed = false
		}
	}
	return res
}

// notify fans the result out to every sink. Failures are logged and
// dropped.
func (c *Coordinator) notify(ctx context.Context, res Result) {
	logger := ctxlog.FromContext(ctx)
	for _, sink := range c.sinks {
		if err := sink.Notify(context.WithoutCancel(ctx), res); err != nil {
			logger.Warn("Notification sink failed, ignoring.", "error", err)
		}
	}
}

// fail finalizes a run record that never got to scheduling.
func (c *Coordinator) fail(id, group string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.records[id]; ok {
		rec.Group = group
		rec.State = StateError
		rec.Error = err.Error()
	}
}
