package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hive-agi/hostfleet/internal/types"
	"github.com/hive-agi/hostfleet/internal/workerstore"
)

// Store is the GORM-backed workerstore.Store implementation.
type Store struct {
	db *gorm.DB
}

// New returns a workerstore.Store backed by the given *gorm.DB. The caller
// is responsible for opening the connection and applying migrations (Open
// does both) before first use, mirroring the teacher's db.New/runMigrations
// split.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetWorker(ctx context.Context, id string) (*workerstore.Worker, error) {
	wid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("gormstore: invalid worker id %q: %w", id, err)
	}

	var w worker
	if err := s.db.WithContext(ctx).First(&w, "id = ?", wid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, workerstore.ErrNotFound
		}
		return nil, fmt.Errorf("gormstore: get worker: %w", err)
	}
	return toWorker(w), nil
}

func (s *Store) GetTasksForWorker(ctx context.Context, workerID string, status types.TaskStatus) ([]*workerstore.Task, error) {
	wid, err := uuid.Parse(workerID)
	if err != nil {
		return nil, fmt.Errorf("gormstore: invalid worker id %q: %w", workerID, err)
	}

	var rows []task
	if err := s.db.WithContext(ctx).
		Where("worker_id = ? AND status = ?", wid, string(status)).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gormstore: get tasks for worker: %w", err)
	}

	out := make([]*workerstore.Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, toTask(r))
	}
	return out, nil
}

func (s *Store) FailTask(ctx context.Context, taskID string) error {
	tid, err := uuid.Parse(taskID)
	if err != nil {
		return fmt.Errorf("gormstore: invalid task id %q: %w", taskID, err)
	}

	result := s.db.WithContext(ctx).
		Model(&task{}).
		Where("id = ?", tid).
		Update("status", string(types.TaskError))
	if result.Error != nil {
		return fmt.Errorf("gormstore: fail task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return workerstore.ErrNotFound
	}
	return nil
}

// ReleaseClaims is a no-op in this reference store: claims are a concept
// of the real unified worker store (spec §1 "worker data store is
// unified"), which this reference implementation does not model. It
// exists so the reaper's termination sequence (spec §4.6 step 2) can call
// it unconditionally regardless of which Store implementation is wired in.
func (s *Store) ReleaseClaims(ctx context.Context, workerID string) error {
	return nil
}

func (s *Store) UpdateWorkerStatus(ctx context.Context, id string, status types.WorkerStatus) error {
	wid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("gormstore: invalid worker id %q: %w", id, err)
	}

	result := s.db.WithContext(ctx).
		Model(&worker{}).
		Where("id = ?", wid).
		Update("status", string(status))
	if result.Error != nil {
		return fmt.Errorf("gormstore: update worker status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return workerstore.ErrNotFound
	}
	return nil
}

func toWorker(w worker) *workerstore.Worker {
	return &workerstore.Worker{
		ID:        w.ID.String(),
		HostID:    w.HostID,
		ProjectID: w.ProjectID,
		Status:    types.WorkerStatus(w.Status),
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

func toTask(t task) *workerstore.Task {
	return &workerstore.Task{
		ID:       t.ID.String(),
		WorkerID: t.WorkerID.String(),
		Status:   types.TaskStatus(t.Status),
	}
}
