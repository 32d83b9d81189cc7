// Package reaper implements the auto-heal orphan reaper (spec §4.6):
// rebind-or-terminate for workers bound to hosts that have died.
package reaper

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hive-agi/hostfleet/internal/eventbus"
	"github.com/hive-agi/hostfleet/internal/placement"
	"github.com/hive-agi/hostfleet/internal/registry"
	"github.com/hive-agi/hostfleet/internal/types"
	"github.com/hive-agi/hostfleet/internal/workerstore"
)

// deadStatuses is the set of host statuses that make every worker bound to
// that host an orphan (spec §4.6 "Detect").
var deadStatuses = map[types.HostStatus]bool{
	types.HostStale:      true,
	types.HostError:      true,
	types.HostTerminated: true,
}

// orphan is one detected worker bound to a dead host.
type orphan struct {
	WorkerID  string
	HostID    string
	ProjectID string
}

// OrphanOutcome is the per-worker result of a heal attempt.
type OrphanOutcome struct {
	WorkerID string
	Action   types.OrphanAction
	Success  bool
	Reason   string
}

// HealResult is the outcome of a single Heal call (spec §4.6 "Result").
type HealResult struct {
	OrphansFound int
	Healed       int
	Failed       int
	Results      []OrphanOutcome
}

// Reaper detects and heals orphaned workers.
type Reaper struct {
	registry *registry.Registry
	store    workerstore.Store
	bus      eventbus.Bus
	logger   *zap.Logger
}

// New constructs a Reaper. bus may be nil (no event emission).
func New(reg *registry.Registry, store workerstore.Store, bus eventbus.Bus, logger *zap.Logger) *Reaper {
	return &Reaper{registry: reg, store: store, bus: bus, logger: logger.Named("reaper")}
}

// Heal detects every orphan in the current registry snapshot and heals it
// (spec §4.6). Safe to call repeatedly — failed rebinds simply leave the
// binding in place for the next cycle.
func (r *Reaper) Heal(ctx context.Context) HealResult {
	orphans := r.detect()
	result := HealResult{OrphansFound: len(orphans), Results: make([]OrphanOutcome, 0, len(orphans))}

	for _, o := range orphans {
		outcome := r.healOne(ctx, o)
		result.Results = append(result.Results, outcome)
		if outcome.Success {
			result.Healed++
		} else {
			result.Failed++
		}
	}

	if result.OrphansFound > 0 && r.bus != nil {
		r.bus.Emit("orphans_healed", map[string]any{
			"orphans_found": result.OrphansFound,
			"healed":        result.Healed,
			"failed":        result.Failed,
		})
	}

	return result
}

func (r *Reaper) detect() []orphan {
	var orphans []orphan
	for _, h := range r.registry.GetAll() {
		if !deadStatuses[h.Status] {
			continue
		}
		for workerID, binding := range h.Workers {
			orphans = append(orphans, orphan{WorkerID: workerID, HostID: h.ID, ProjectID: binding.ProjectID})
		}
	}
	return orphans
}

func (r *Reaper) healOne(ctx context.Context, o orphan) OrphanOutcome {
	worker, err := r.store.GetWorker(ctx, o.WorkerID)
	if err != nil {
		// The worker record is gone from the store entirely; there is
		// nothing left to classify against, so just unbind and move on.
		r.registry.Unbind(o.HostID, o.WorkerID)
		return OrphanOutcome{WorkerID: o.WorkerID, Action: types.ActionSkip, Success: true}
	}

	switch classify(worker.Status) {
	case types.ActionRebind:
		return r.rebind(o)
	case types.ActionTerminate:
		return r.terminate(ctx, o)
	default:
		r.registry.Unbind(o.HostID, o.WorkerID)
		return OrphanOutcome{WorkerID: o.WorkerID, Action: types.ActionSkip, Success: true}
	}
}

// classify buckets a worker's status into the reaper's action (spec §4.6
// "Classify"). Unknown statuses fall through to terminate — conservative,
// since a worker we can't recognize cannot safely be left claiming a dead
// host's slot.
func classify(status types.WorkerStatus) types.OrphanAction {
	switch status {
	case types.WorkerIdle, types.WorkerInitializing, types.WorkerSpawning, types.WorkerStarting:
		return types.ActionRebind
	case types.WorkerWorking, types.WorkerBlocked:
		return types.ActionTerminate
	case types.WorkerError, types.WorkerTerminated:
		return types.ActionSkip
	default:
		return types.ActionTerminate
	}
}

func (r *Reaper) rebind(o orphan) OrphanOutcome {
	candidates := r.registry.GetAll()
	result := placement.Select(candidates, o.ProjectID)

	if result.Reason != types.ReasonSelected || result.HostID == o.HostID {
		return OrphanOutcome{WorkerID: o.WorkerID, Action: types.ActionRebind, Success: false, Reason: "no_healthy_host"}
	}

	r.registry.Unbind(o.HostID, o.WorkerID)
	r.registry.Bind(result.HostID, o.WorkerID, o.ProjectID)
	return OrphanOutcome{WorkerID: o.WorkerID, Action: types.ActionRebind, Success: true}
}

// terminate fails every dispatched task and releases claims on a best-effort
// basis — none of those steps block the unbind, so their errors are combined
// with multierr.Append rather than short-circuiting, and logged once.
func (r *Reaper) terminate(ctx context.Context, o orphan) OrphanOutcome {
	var cleanupErr error

	tasks, err := r.store.GetTasksForWorker(ctx, o.WorkerID, types.TaskDispatched)
	cleanupErr = multierr.Append(cleanupErr, err)
	for _, t := range tasks {
		cleanupErr = multierr.Append(cleanupErr, r.store.FailTask(ctx, t.ID))
	}

	cleanupErr = multierr.Append(cleanupErr, r.store.ReleaseClaims(ctx, o.WorkerID))
	if cleanupErr != nil {
		r.logger.Warn("non-fatal cleanup errors during termination",
			zap.String("worker_id", o.WorkerID), zap.Error(cleanupErr))
	}

	r.registry.Unbind(o.HostID, o.WorkerID)

	if err := r.store.UpdateWorkerStatus(ctx, o.WorkerID, types.WorkerTerminated); err != nil {
		return OrphanOutcome{WorkerID: o.WorkerID, Action: types.ActionTerminate, Success: false, Reason: err.Error()}
	}

	return OrphanOutcome{WorkerID: o.WorkerID, Action: types.ActionTerminate, Success: true}
}
