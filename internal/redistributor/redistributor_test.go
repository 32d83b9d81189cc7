package redistributor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hive-agi/hostfleet/internal/registry"
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

type fakeBus struct {
	events []string
}

func (b *fakeBus) Emit(name string, payload map[string]any) {
	b.events = append(b.events, name)
}

func newTestRedistributor(store *fakeStore, bus *fakeBus) (*Redistributor, *registry.Registry) {
	reg := registry.New(zap.NewNop())
	return New(reg, store, bus, zap.NewNop()), reg
}

func TestRunMigratesIdleWorkerOffOverloadedHost(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	rd, reg := newTestRedistributor(store, bus)

	reg.Register("busy", nil)
	reg.Register("quiet", nil)
	reg.HeartbeatSuccess("busy", time.Now(), 50) // degraded: overloaded regardless of worker count
	reg.HeartbeatSuccess("quiet", time.Now(), 100)

	reg.Bind("busy", "w1", "")
	store.workers["w1"] = &workerstore.Worker{ID: "w1", Status: types.WorkerIdle}

	result := rd.Run(context.Background())
	require.Equal(t, 1, result.Planned)
	assert.Equal(t, 1, result.Executed)
	assert.Equal(t, 0, result.Failed)
	assert.Contains(t, bus.events, "workers_redistributed")

	moved := result.Results[0].WorkerID
	hostID, ok := reg.HostOfWorker(moved)
	require.True(t, ok)
	assert.Equal(t, "quiet", hostID)
}

func TestRunSkipsWorkingWorkers(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	rd, reg := newTestRedistributor(store, bus)

	reg.Register("busy", nil)
	reg.Register("quiet", nil)
	reg.HeartbeatSuccess("busy", time.Now(), 100)
	reg.HeartbeatSuccess("quiet", time.Now(), 100)

	for _, id := range []string{"w1", "w2", "w3", "w4"} {
		reg.Bind("busy", id, "")
		store.workers[id] = &workerstore.Worker{ID: id, Status: types.WorkerWorking}
	}

	result := rd.Run(context.Background())
	assert.Equal(t, 0, result.Planned)
	assert.Empty(t, bus.events)
}

func TestRunCapsMigrationsPerCycle(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	rd, reg := newTestRedistributor(store, bus)

	reg.Register("busy", nil)
	reg.Register("quiet-a", nil)
	reg.Register("quiet-b", nil)
	reg.HeartbeatSuccess("busy", time.Now(), 100)
	reg.HeartbeatSuccess("quiet-a", time.Now(), 100)
	reg.HeartbeatSuccess("quiet-b", time.Now(), 100)

	for _, id := range []string{"w1", "w2", "w3", "w4", "w5"} {
		reg.Bind("busy", id, "")
		store.workers[id] = &workerstore.Worker{ID: id, Status: types.WorkerIdle}
	}

	result := rd.Run(context.Background())
	assert.Equal(t, 5, result.Planned)
	assert.Equal(t, MaxMigrationsPerCycle, result.Executed)
}

func TestRunNoOverloadedHostsIsNoOp(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	rd, reg := newTestRedistributor(store, bus)

	reg.Register("h1", nil)
	reg.HeartbeatSuccess("h1", time.Now(), 100)

	result := rd.Run(context.Background())
	assert.Equal(t, 0, result.Planned)
}

func TestRunSkipsMigrationWhenImprovementBelowThreshold(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	rd, reg := newTestRedistributor(store, bus)

	reg.Register("busy", nil)
	reg.Register("also-busy", nil)
	reg.HeartbeatSuccess("busy", time.Now(), 100)
	reg.HeartbeatSuccess("also-busy", time.Now(), 100)

	for _, id := range []string{"w1", "w2", "w3", "w4"} {
		reg.Bind("busy", id, "")
		store.workers[id] = &workerstore.Worker{ID: id, Status: types.WorkerIdle}
	}
	for _, id := range []string{"x1", "x2", "x3", "x4"} {
		reg.Bind("also-busy", id, "")
	}

	result := rd.Run(context.Background())
	assert.Equal(t, 0, result.Planned)
}
