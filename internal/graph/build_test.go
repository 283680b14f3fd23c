package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mergegate/internal/config"
	"github.com/vk/mergegate/internal/matrix"
)

func testPipeline() *config.Pipeline {
	return &config.Pipeline{
		Name: "ci",
		Jobs: []*config.Job{
			{Name: "lint", Command: []string{"make", "lint"}},
			{
				Name:      "test",
				Command:   []string{"make", "test"},
				DependsOn: []string{"lint"},
				Matrix: &matrix.Spec{
					Name: "versions",
					Axes: []matrix.Axis{
						{Name: "python", Values: []string{"3.9", "3.10"}},
						{Name: "database", Values: []string{"sqlite", "postgres"}},
					},
				},
			},
		},
		Gates: []*config.Gate{
			{Name: "mergeable", DependsOn: []string{"test"}},
		},
	}
}

func TestBuild_InstanceExpansion(t *testing.T) {
	t.Parallel()

	g, err := Build(context.Background(), testPipeline())
	require.NoError(t, err)

	// 1 lint + 4 test instances + 1 gate.
	assert.Len(t, g.Nodes, 6)
	assert.Len(t, g.InstancesOf("lint"), 1)
	assert.Len(t, g.InstancesOf("test"), 4)
	require.Contains(t, g.Nodes, "test[python=3.9,database=sqlite]")
	assert.Equal(t, JobNode, g.Nodes["test[python=3.9,database=sqlite]"].Type)
	assert.Equal(t, GateNode, g.Nodes["mergeable"].Type)
}

func TestBuild_AllToAllLinking(t *testing.T) {
	t.Parallel()

	g, err := Build(context.Background(), testPipeline())
	require.NoError(t, err)

	lint := g.Nodes["lint"]
	assert.Len(t, lint.Dependents, 4, "every test instance depends on lint")

	for _, n := range g.InstancesOf("test") {
		assert.Len(t, n.Deps, 1)
		assert.Contains(t, n.Deps, "lint")
		assert.Contains(t, n.Dependents, "mergeable")
	}

	gate := g.Nodes["mergeable"]
	assert.Len(t, gate.Deps, 4, "the gate depends on every instance of the test definition")
}

func TestBuild_Roots(t *testing.T) {
	t.Parallel()

	g, err := Build(context.Background(), testPipeline())
	require.NoError(t, err)

	roots := g.Roots()
	require.Len(t, roots, 1)
	assert.Equal(t, "lint", roots[0].ID)
}

func TestBuild_OrderIsDeterministic(t *testing.T) {
	t.Parallel()

	first, err := Build(context.Background(), testPipeline())
	require.NoError(t, err)
	second, err := Build(context.Background(), testPipeline())
	require.NoError(t, err)

	assert.Equal(t, first.Order, second.Order)
	assert.Equal(t, []string{
		"lint",
		"test[python=3.9,database=sqlite]",
		"test[python=3.9,database=postgres]",
		"test[python=3.10,database=sqlite]",
		"test[python=3.10,database=postgres]",
	}, first.Order[:5])
}

func TestBuild_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pipeline *config.Pipeline
		wantErr  string
	}{
		{
			name: "dangling dependency",
			pipeline: &config.Pipeline{
				Name: "ci",
				Jobs: []*config.Job{{Name: "a", DependsOn: []string{"ghost"}}},
			},
			wantErr: "unknown definition",
		},
		{
			name: "duplicate names",
			pipeline: &config.Pipeline{
				Name: "ci",
				Jobs: []*config.Job{{Name: "a"}, {Name: "a"}},
			},
			wantErr: "duplicate definition name",
		},
		{
			name: "gate without dependencies",
			pipeline: &config.Pipeline{
				Name:  "ci",
				Gates: []*config.Gate{{Name: "g"}},
			},
			wantErr: "has no dependencies",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Build(context.Background(), tt.pipeline)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuild_RejectsCycle(t *testing.T) {
	t.Parallel()

	p := &config.Pipeline{
		Name: "ci",
		Jobs: []*config.Job{
			{Name: "a", DependsOn: []string{"c"}},
			{Name: "b", DependsOn: []string{"a"}},
			{Name: "c", DependsOn: []string{"b"}},
		},
	}
	_, err := Build(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle detected")
}

func TestBuild_RejectsSelfDependency(t *testing.T) {
	t.Parallel()

	p := &config.Pipeline{
		Name: "ci",
		Jobs: []*config.Job{{Name: "a", DependsOn: []string{"a"}}},
	}
	_, err := Build(context.Background(), p)
	require.Error(t, err)
}

func TestNode_TransitionIsExclusive(t *testing.T) {
	t.Parallel()

	n := &Node{ID: "x", Type: JobNode}
	require.True(t, n.Transition(Pending, Running))
	assert.False(t, n.Transition(Pending, Cancelled), "only one writer wins a transition")
	assert.True(t, n.Transition(Running, Succeeded))
	assert.Equal(t, Succeeded, n.Status())
	assert.True(t, n.Status().Terminal())
}

func TestStatus_Terminal(t *testing.T) {
	t.Parallel()

	assert.False(t, Pending.Terminal())
	assert.False(t, Running.Terminal())
	for _, s := range []Status{Succeeded, Failed, Cancelled, Skipped} {
		assert.True(t, s.Terminal(), s.String())
	}
}
