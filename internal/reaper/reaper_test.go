package reaper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hive-agi/hostfleet/internal/registry"
	"github.com/hive-agi/hostfleet/internal/types"
	"github.com/hive-agi/hostfleet/internal/workerstore"
)

type fakeStore struct {
	workers     map[string]*workerstore.Worker
	tasks       map[string][]*workerstore.Task
	failedTasks []string
	released    []string
	updatedTo   map[string]types.WorkerStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		workers:   make(map[string]*workerstore.Worker),
		tasks:     make(map[string][]*workerstore.Task),
		updatedTo: make(map[string]types.WorkerStatus),
	}
}

func (s *fakeStore) GetWorker(ctx context.Context, id string) (*workerstore.Worker, error) {
	w, ok := s.workers[id]
	if !ok {
		return nil, workerstore.ErrNotFound
	}
	return w, nil
}

func (s *fakeStore) GetTasksForWorker(ctx context.Context, workerID string, status types.TaskStatus) ([]*workerstore.Task, error) {
	var out []*workerstore.Task
	for _, t := range s.tasks[workerID] {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) FailTask(ctx context.Context, taskID string) error {
	s.failedTasks = append(s.failedTasks, taskID)
	return nil
}

func (s *fakeStore) ReleaseClaims(ctx context.Context, workerID string) error {
	s.released = append(s.released, workerID)
	return nil
}

func (s *fakeStore) UpdateWorkerStatus(ctx context.Context, id string, status types.WorkerStatus) error {
	s.updatedTo[id] = status
	return nil
}

type fakeBus struct {
	events []string
}

func (b *fakeBus) Emit(name string, payload map[string]any) {
	b.events = append(b.events, name)
}

func newTestReaper(store *fakeStore, bus *fakeBus) (*Reaper, *registry.Registry) {
	reg := registry.New(zap.NewNop())
	return New(reg, store, bus, zap.NewNop()), reg
}

func TestHealNoOrphansIsNoOp(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	r, reg := newTestReaper(store, bus)
	reg.Register("h1", nil)

	result := r.Heal(context.Background())
	assert.Equal(t, 0, result.OrphansFound)
	assert.Empty(t, bus.events)
}

func TestHealRebindsIdleWorkerToHealthyHost(t *testing.T) {
	store := newFakeStore()
	store.workers["w1"] = &workerstore.Worker{ID: "w1", Status: types.WorkerIdle}
	bus := &fakeBus{}
	r, reg := newTestReaper(store, bus)

	reg.Register("dead", nil)
	reg.Register("healthy", nil)
	reg.Bind("dead", "w1", "proj-1")
	reg.MarkError("dead", "test")

	result := r.Heal(context.Background())
	require.Equal(t, 1, result.OrphansFound)
	assert.Equal(t, 1, result.Healed)
	require.Len(t, result.Results, 1)
	assert.Equal(t, types.ActionRebind, result.Results[0].Action)
	assert.True(t, result.Results[0].Success)

	hostID, ok := reg.HostOfWorker("w1")
	require.True(t, ok)
	assert.Equal(t, "healthy", hostID)
	assert.Contains(t, bus.events, "orphans_healed")
}

func TestHealTerminatesWorkingWorkerAndFailsItsTasks(t *testing.T) {
	store := newFakeStore()
	store.workers["w1"] = &workerstore.Worker{ID: "w1", Status: types.WorkerWorking}
	store.tasks["w1"] = []*workerstore.Task{
		{ID: "t1", WorkerID: "w1", Status: types.TaskDispatched},
		{ID: "t2", WorkerID: "w1", Status: types.TaskDone},
	}
	bus := &fakeBus{}
	r, reg := newTestReaper(store, bus)

	reg.Register("dead", nil)
	reg.Bind("dead", "w1", "proj-1")
	reg.MarkError("dead", "test")

	result := r.Heal(context.Background())
	require.Equal(t, 1, result.Healed)
	assert.Equal(t, types.ActionTerminate, result.Results[0].Action)
	assert.Equal(t, []string{"t1"}, store.failedTasks)
	assert.Equal(t, []string{"w1"}, store.released)
	assert.Equal(t, types.WorkerTerminated, store.updatedTo["w1"])

	_, ok := reg.HostOfWorker("w1")
	assert.False(t, ok)
}

func TestHealSkipsWorkerAlreadyTerminated(t *testing.T) {
	store := newFakeStore()
	store.workers["w1"] = &workerstore.Worker{ID: "w1", Status: types.WorkerTerminated}
	bus := &fakeBus{}
	r, reg := newTestReaper(store, bus)

	reg.Register("dead", nil)
	reg.Bind("dead", "w1", "")
	reg.MarkError("dead", "test")

	result := r.Heal(context.Background())
	assert.Equal(t, 1, result.Healed)
	assert.Equal(t, types.ActionSkip, result.Results[0].Action)
	_, ok := reg.HostOfWorker("w1")
	assert.False(t, ok)
}

func TestHealUnbindsWorkerMissingFromStore(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	r, reg := newTestReaper(store, bus)

	reg.Register("dead", nil)
	reg.Bind("dead", "ghost", "")
	reg.MarkError("dead", "test")

	result := r.Heal(context.Background())
	assert.Equal(t, 1, result.Healed)
	assert.Equal(t, types.ActionSkip, result.Results[0].Action)
	_, ok := reg.HostOfWorker("ghost")
	assert.False(t, ok)
}

func TestHealRebindFailsWhenNoOtherHealthyHost(t *testing.T) {
	store := newFakeStore()
	store.workers["w1"] = &workerstore.Worker{ID: "w1", Status: types.WorkerIdle}
	bus := &fakeBus{}
	r, reg := newTestReaper(store, bus)

	reg.Register("dead", nil)
	reg.Bind("dead", "w1", "")
	reg.MarkError("dead", "test")

	result := r.Heal(context.Background())
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, "no_healthy_host", result.Results[0].Reason)
}
