package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/goprovision/bootstrap"
	"github.com/nomis52/goprovision/buildinfo"
	"github.com/nomis52/goprovision/server/runner"
	"github.com/nomis52/goprovision/server/types"
)

type mockStatusProvider struct {
	status  runner.RunStatus
	nextRun *time.Time
	result  *bootstrap.Result
}

func (m *mockStatusProvider) Properties() types.ServerProperties {
	return types.ServerProperties{Build: buildinfo.Get(), Hostname: "prov-1", ConfigPath: "/etc/goprovision/config.yaml"}
}

func (m *mockStatusProvider) Status() runner.RunStatus { return m.status }

func (m *mockStatusProvider) NextRun() *time.Time { return m.nextRun }

func (m *mockStatusProvider) LastResult() *bootstrap.Result { return m.result }

func TestAPIStatusHandler(t *testing.T) {
	next := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
	provider := &mockStatusProvider{
		status:  runner.RunStatus{RunSummary: runner.RunSummary{ID: "run-1", State: runner.RunStateRunning, Provider: "dc1"}},
		nextRun: &next,
	}
	handler := NewAPIStatusHandler(provider)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp APIStatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "prov-1", resp.Server.Hostname)
	assert.Equal(t, "dev", resp.Server.Build.Version)
	assert.Equal(t, "run-1", resp.Run.ID)
	assert.Equal(t, runner.RunStateRunning, resp.Run.State)
	assert.True(t, resp.NextRun.Scheduled)
	require.NotNil(t, resp.NextRun.NextRun)
	assert.True(t, next.Equal(*resp.NextRun.NextRun))
}

func TestAPIStatusHandler_NoSchedule(t *testing.T) {
	handler := NewAPIStatusHandler(&mockStatusProvider{})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"scheduled":false`)
	assert.Contains(t, w.Body.String(), `"state":"idle"`)
	assert.NotContains(t, w.Body.String(), `"next_run":"`)
}

func TestRunStatusHandler(t *testing.T) {
	provider := &mockStatusProvider{
		status: runner.RunStatus{RunSummary: runner.RunSummary{ID: "run-7", Phase: "done"}},
	}
	handler := NewRunStatusHandler(provider)

	req := httptest.NewRequest(http.MethodGet, "/api/run", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"run-7"`)
}

func TestResultHandler(t *testing.T) {
	provider := &mockStatusProvider{}
	handler := NewResultHandler(provider)

	req := httptest.NewRequest(http.MethodGet, "/api/result", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	provider.result = &bootstrap.Result{Phase: bootstrap.PhaseDone, ProviderUUID: "prov-dc1", Mode: "create"}
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got bootstrap.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, bootstrap.PhaseDone, got.Phase)
	assert.Equal(t, "prov-dc1", got.ProviderUUID)
}
