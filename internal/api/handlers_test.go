package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hive-agi/hostfleet/internal/eventbus"
	"github.com/hive-agi/hostfleet/internal/fleet"
	"github.com/hive-agi/hostfleet/internal/types"
	"github.com/hive-agi/hostfleet/internal/workerstore"
)

type fakeStore struct {
	workers map[string]*workerstore.Worker
}

func newFakeStore() *fakeStore {
	return &fakeStore{workers: make(map[string]*workerstore.Worker)}
}

func (s *fakeStore) GetWorker(ctx context.Context, id string) (*workerstore.Worker, error) {
	w, ok := s.workers[id]
	if !ok {
		return nil, workerstore.ErrNotFound
	}
	return w, nil
}

func (s *fakeStore) GetTasksForWorker(ctx context.Context, workerID string, status types.TaskStatus) ([]*workerstore.Task, error) {
	return nil, nil
}

func (s *fakeStore) FailTask(ctx context.Context, taskID string) error { return nil }

func (s *fakeStore) ReleaseClaims(ctx context.Context, workerID string) error { return nil }

func (s *fakeStore) UpdateWorkerStatus(ctx context.Context, id string, status types.WorkerStatus) error {
	return nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake emacsclient script requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-emacsclient")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho '\"pong\"'\n"), 0o755))

	logger := zap.NewNop()
	f := fleet.New(fleet.Config{
		DefaultHostID:     "server",
		EmacsClient:       path,
		HeartbeatInterval: time.Hour,
		CleanupInterval:   time.Hour,
		StaleAfter:        time.Hour,
	}, newFakeStore(), nil, nil, logger)
	require.NoError(t, f.Start(context.Background()))
	t.Cleanup(func() { _ = f.Stop() })

	hub := eventbus.NewHub()
	return NewRouter(RouterConfig{Fleet: f, Hub: hub, Logger: logger})
}

func decodeEnvelope(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestGetStatusReturnsData(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeEnvelope(t, rec.Body.Bytes())
	assert.Contains(t, body, "data")
}

func TestRegisterHostRequiresID(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/hosts", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeEnvelope(t, rec.Body.Bytes())
	assert.Contains(t, body, "error")
}

func TestRegisterHostCreatesHost(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/hosts", bytes.NewBufferString(`{"id":"h1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/v1/hosts", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)

	body := decodeEnvelope(t, listRec.Body.Bytes())
	hosts, ok := body["data"].([]any)
	require.True(t, ok)
	assert.Len(t, hosts, 2) // h1 plus the auto-registered default host
}

func TestBindWorkerSelectsHost(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/workers/w1/bind", bytes.NewBufferString(`{"project_id":"proj-1"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeEnvelope(t, rec.Body.Bytes())
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "selected", data["Reason"])
}

func TestHealAndRedistributeReturnOk(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/v1/heal", "/v1/redistribute"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestCircuitResetReturnsClosedState(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/circuit/reset", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeEnvelope(t, rec.Body.Bytes())
	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "closed", data["State"])
}
