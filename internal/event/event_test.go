package event

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ev      TriggerEvent
		wantErr string
	}{
		{
			name: "valid branch push",
			ev:   TriggerEvent{Ref: "main", RefKind: RefBranch, SHA: "abc123"},
		},
		{
			name: "valid pull request",
			ev:   TriggerEvent{Ref: "feature-x", RefKind: RefPullRequest, BaseRef: "develop", SHA: "abc123"},
		},
		{
			name: "valid tag",
			ev:   TriggerEvent{Ref: "v1.2.0", RefKind: RefTag, SHA: "abc123"},
		},
		{
			name:    "missing ref",
			ev:      TriggerEvent{RefKind: RefBranch, SHA: "abc123"},
			wantErr: "ref is required",
		},
		{
			name:    "missing sha",
			ev:      TriggerEvent{Ref: "main", RefKind: RefBranch},
			wantErr: "sha is required",
		},
		{
			name:    "missing ref_kind",
			ev:      TriggerEvent{Ref: "main", SHA: "abc123"},
			wantErr: "ref_kind is required",
		},
		{
			name:    "unknown ref_kind",
			ev:      TriggerEvent{Ref: "main", RefKind: "release", SHA: "abc123"},
			wantErr: `unknown ref_kind "release"`,
		},
		{
			name:    "pull request without base_ref",
			ev:      TriggerEvent{Ref: "feature-x", RefKind: RefPullRequest, SHA: "abc123"},
			wantErr: "base_ref is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.ev.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "event.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ref: feature-x
ref_kind: pull_request
base_ref: develop
sha: abc123
message: "fix login [skip ci]"
`), 0o644))

	ev, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "feature-x", ev.Ref)
	assert.Equal(t, RefPullRequest, ev.RefKind)
	assert.Equal(t, "develop", ev.BaseRef)
	assert.Equal(t, "abc123", ev.SHA)
	assert.Equal(t, "fix login [skip ci]", ev.Message)
}

func TestLoadFile_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading event file")

	badYAML := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(badYAML, []byte("ref: [unclosed"), 0o644))
	_, err = LoadFile(badYAML)
	assert.ErrorContains(t, err, "parsing event file")

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("ref: main\nref_kind: branch\n"), 0o644))
	_, err = LoadFile(invalid)
	assert.ErrorContains(t, err, "sha is required")
}
