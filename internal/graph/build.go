package graph

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/vk/mergegate/internal/config"
	"github.com/vk/mergegate/internal/ctxlog"
)

// Graph is the validated, acyclic set of job instances and gates for one
// run. Order preserves creation order so scheduling and reporting are
// deterministic for a given configuration.
type Graph struct {
	Nodes map[string]*Node
	Order []string

	// byDef groups instance nodes by the definition they were expanded
	// from, in expansion order.
	byDef map[string][]*Node
}

// InstancesOf returns the instance nodes expanded from the named
// definition, in expansion order.
func (g *Graph) InstancesOf(def string) []*Node {
	return g.byDef[def]
}

// Roots returns the nodes with no dependencies, in creation order.
func (g *Graph) Roots() []*Node {
	var roots []*Node
	for _, id := range g.Order {
		if n := g.Nodes[id]; len(n.Deps) == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}

// Build constructs the complete, validated job graph for one run from the
// pipeline definitions: first pass creates instance and gate nodes (matrix
// expansion happens here), second pass links definition-level dependencies
// all-to-all between their instances, third pass initializes readiness
// counters and rejects cycles. Any validation finding aborts before a
// single instance can run.
func Build(ctx context.Context, p *config.Pipeline) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: starting graph construction.")

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	g := &Graph{
		Nodes: make(map[string]*Node),
		byDef: make(map[string][]*Node),
	}

	createNodes(p, g)
	logger.Debug("Build: node creation complete.", "node_count", len(g.Nodes))

	if err := linkNodes(p, g); err != nil {
		return nil, err
	}
	logger.Debug("Build: node linking complete.")

	for _, n := range g.Nodes {
		n.pendingDeps.Store(int32(len(n.Deps)))
	}

	if err := g.detectCycles(); err != nil {
		return nil, fmt.Errorf("error validating dependency graph: %w", err)
	}
	logger.Debug("Build: cycle detection passed.")

	return g, nil
}

// createNodes expands every job definition against its matrix and registers
// the resulting instance nodes, then the gate nodes.
func createNodes(p *config.Pipeline, g *Graph) {
	for _, job := range p.Jobs {
		for _, combo := range job.Matrix.Expand() {
			id := job.Name + combo.Key()
			n := &Node{
				ID:         id,
				Type:       JobNode,
				Job:        job,
				Combo:      combo,
				Deps:       make(map[string]*Node),
				Dependents: make(map[string]*Node),
			}
			g.Nodes[id] = n
			g.Order = append(g.Order, id)
			g.byDef[job.Name] = append(g.byDef[job.Name], n)
		}
	}
	for _, gate := range p.Gates {
		n := &Node{
			ID:         gate.Name,
			Type:       GateNode,
			Gate:       gate,
			Deps:       make(map[string]*Node),
			Dependents: make(map[string]*Node),
		}
		g.Nodes[gate.Name] = n
		g.Order = append(g.Order, gate.Name)
		g.byDef[gate.Name] = append(g.byDef[gate.Name], n)
	}
}

// linkNodes turns definition-level depends_on edges into instance-level
// edges: every instance of a dependent definition depends on every instance
// of the dependency definition.
func linkNodes(p *config.Pipeline, g *Graph) error {
	var result *multierror.Error

	link := func(name string, node *Node, deps []string) {
		for _, depName := range deps {
			depInstances := g.byDef[depName]
			if len(depInstances) == 0 {
				result = multierror.Append(result, fmt.Errorf("%q depends on unknown definition %q", name, depName))
				continue
			}
			for _, dep := range depInstances {
				if dep == node {
					result = multierror.Append(result, fmt.Errorf("%q depends on itself", name))
					continue
				}
				node.Deps[dep.ID] = dep
				dep.Dependents[node.ID] = node
			}
		}
	}

	for _, job := range p.Jobs {
		for _, n := range g.byDef[job.Name] {
			link(job.Name, n, job.DependsOn)
		}
	}
	for _, gate := range p.Gates {
		link(gate.Name, g.Nodes[gate.Name], gate.DependsOn)
	}

	return result.ErrorOrNil()
}

// detectCycles runs a depth-first search with the classic three node sets:
// permanently cleared nodes, nodes on the current recursion stack, and
// unvisited nodes. Hitting a node already on the stack means the
// configuration wired a cycle.
func (g *Graph) detectCycles() error {
	permanent := make(map[string]bool, len(g.Nodes))
	temporary := make(map[string]bool)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if permanent[n.ID] {
			return nil
		}
		if temporary[n.ID] {
			return fmt.Errorf("cycle detected involving %q", n.ID)
		}
		temporary[n.ID] = true
		for _, dependent := range n.Dependents {
			if err := visit(dependent); err != nil {
				return err
			}
		}
		delete(temporary, n.ID)
		permanent[n.ID] = true
		return nil
	}

	for _, id := range g.Order {
		if !permanent[id] {
			if err := visit(g.Nodes[id]); err != nil {
				return err
			}
		}
	}
	return nil
}
