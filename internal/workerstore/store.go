// Package workerstore defines the external worker data store collaborator
// (spec §6): the core never owns worker/task business data, it only calls
// get_worker, get_tasks_for_worker, fail_task, release_claims, and
// update_worker. This package is the Go interface for that collaborator,
// plus a reference GORM-backed implementation (see ./gormstore) so the
// reaper and redistributor are runnable end-to-end without a real unified
// worker store wired in.
package workerstore

import (
	"context"
	"errors"
	"time"

	"github.com/hive-agi/hostfleet/internal/types"
)

// ErrNotFound is returned when a worker or task id does not exist.
var ErrNotFound = errors.New("workerstore: record not found")

// Worker is a logical unit of work bound to exactly one host (spec
// GLOSSARY). ProjectID drives placement affinity (spec §4.5).
type Worker struct {
	ID        string
	HostID    string
	ProjectID string
	Status    types.WorkerStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Task is a unit of dispatched work owned by a worker. Only the
// "dispatched" status is load-bearing for the reaper's terminate action
// (spec §4.6).
type Task struct {
	ID       string
	WorkerID string
	Status   types.TaskStatus
}

// Store is the external worker data store collaborator (spec §6). The
// core never writes worker fields other than status-terminal transitions
// during termination.
type Store interface {
	GetWorker(ctx context.Context, id string) (*Worker, error)
	GetTasksForWorker(ctx context.Context, workerID string, status types.TaskStatus) ([]*Task, error)
	FailTask(ctx context.Context, taskID string) error
	ReleaseClaims(ctx context.Context, workerID string) error
	UpdateWorkerStatus(ctx context.Context, id string, status types.WorkerStatus) error
}
