package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/mergegate/internal/config"
	"github.com/vk/mergegate/internal/retry"
	"github.com/vk/mergegate/internal/run"
	"github.com/vk/mergegate/internal/scheduler"
)

func newTestServer(t *testing.T) (*httptest.Server, *run.Coordinator) {
	t.Helper()
	p := &config.Pipeline{
		Name: "ci",
		Jobs: []*config.Job{{Name: "test"}},
		Gates: []*config.Gate{
			{Name: "mergeable", DependsOn: []string{"test"}},
		},
	}
	exec := scheduler.ExecFunc(func(_ context.Context, _ scheduler.InstanceSpec) (retry.OutcomeCode, error) {
		return retry.CodeSuccess, nil
	})
	coord := run.NewCoordinator(p, exec, nil)
	srv := httptest.NewServer(New(coord).Handler())
	t.Cleanup(srv.Close)
	return srv, coord
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventTriggersRun(t *testing.T) {
	t.Parallel()

	srv, coord := newTestServer(t)
	body := `{"ref": "main", "ref_kind": "branch", "sha": "abc123"}`
	resp, err := http.Post(srv.URL+"/events", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	id := accepted["run_id"]
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		rec, ok := coord.Snapshot(id)
		return ok && rec.State == run.StateComplete
	}, 5*time.Second, 10*time.Millisecond)

	statusResp, err := http.Get(srv.URL + "/runs/" + id)
	require.NoError(t, err)
	defer statusResp.Body.Close()
	require.Equal(t, http.StatusOK, statusResp.StatusCode)

	var rec run.Record
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&rec))
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, run.StateComplete, rec.State)
	require.NotNil(t, rec.Result)
	assert.True(t, rec.Result.Passed)
}

func TestEventRejectsInvalidPayload(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{not json`},
		{"missing sha", `{"ref": "main", "ref_kind": "branch"}`},
		{"unknown ref_kind", `{"ref": "main", "ref_kind": "release", "sha": "abc"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/events", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var payload map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
			assert.NotEmpty(t, payload["error"])
		})
	}
}

func TestRunStatusUnknownRun(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/runs/no-such-run")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
