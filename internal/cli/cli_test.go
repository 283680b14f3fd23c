package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AllFlags(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cfg, shouldExit, err := Parse([]string{
		"--pipeline", "pipeline.hcl",
		"--event", "event.yaml",
		"--log-format", "text",
		"--log-level", "debug",
		"--workers", "8",
		"--artifact-dir", "/tmp/artifacts",
		"--workdir", "/srv/checkout",
	}, out)

	require.NoError(t, err)
	require.False(t, shouldExit)
	assert.Equal(t, "pipeline.hcl", cfg.PipelinePath)
	assert.Equal(t, "event.yaml", cfg.EventPath)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "/tmp/artifacts", cfg.ArtifactDir)
	assert.Equal(t, "/srv/checkout", cfg.WorkDir)
}

func TestParse_PositionalPipelinePath(t *testing.T) {
	t.Parallel()

	cfg, shouldExit, err := Parse([]string{"--event", "event.yaml", "pipeline.hcl"}, &bytes.Buffer{})
	require.NoError(t, err)
	require.False(t, shouldExit)
	assert.Equal(t, "pipeline.hcl", cfg.PipelinePath)
}

func TestParse_ShorthandFlag(t *testing.T) {
	t.Parallel()

	cfg, _, err := Parse([]string{"-p", "pipeline.hcl", "--listen", ":8080"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "pipeline.hcl", cfg.PipelinePath)
	assert.Equal(t, ":8080", cfg.ListenAddr)
}

func TestParse_NoPathPrintsUsage(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cfg, shouldExit, err := Parse([]string{}, out)
	require.NoError(t, err)
	assert.True(t, shouldExit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{
			name:    "invalid log format",
			args:    []string{"--event", "e.yaml", "--log-format", "xml", "p.hcl"},
			wantMsg: "invalid log-format",
		},
		{
			name:    "invalid log level",
			args:    []string{"--event", "e.yaml", "--log-level", "verbose", "p.hcl"},
			wantMsg: "invalid log-level",
		},
		{
			name:    "no execution mode",
			args:    []string{"p.hcl"},
			wantMsg: "either an event file or a listen address",
		},
		{
			name:    "both execution modes",
			args:    []string{"--event", "e.yaml", "--listen", ":8080", "p.hcl"},
			wantMsg: "mutually exclusive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := Parse(tt.args, &bytes.Buffer{})
			require.Error(t, err)

			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tt.wantMsg)
		})
	}
}
