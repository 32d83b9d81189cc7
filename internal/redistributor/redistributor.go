// Package redistributor implements the proactive idle-worker redistributor
// (spec §4.7): migrates idle workers off live-but-stressed hosts without
// ever preempting working workers or causing churn.
package redistributor

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/hive-agi/hostfleet/internal/eventbus"
	"github.com/hive-agi/hostfleet/internal/placement"
	"github.com/hive-agi/hostfleet/internal/registry"
	"github.com/hive-agi/hostfleet/internal/types"
	"github.com/hive-agi/hostfleet/internal/workerstore"
)

const (
	// OverloadedThreshold is the worker count at or above which an active
	// host is considered overloaded regardless of health level.
	OverloadedThreshold = 4
	// RedistributionThreshold is the minimum score improvement a migration
	// plan must promise before it is considered worth the churn.
	RedistributionThreshold = 20
	// MaxMigrationsPerCycle bounds how many migrations execute in one call
	// to Run, so redistribution proceeds gradually rather than in a burst.
	MaxMigrationsPerCycle = 2
)

type plan struct {
	WorkerID    string
	Source      string
	Target      string
	Improvement int
}

// MigrationOutcome is the per-migration result of executing a plan.
type MigrationOutcome struct {
	WorkerID string
	Source   string
	Target   string
	Success  bool
	Reason   string
}

// Result is the outcome of a single Run call (spec §4.7 "Result").
type Result struct {
	Planned  int
	Executed int
	Failed   int
	Results  []MigrationOutcome
}

// Redistributor plans and executes idle-worker migrations.
type Redistributor struct {
	registry *registry.Registry
	store    workerstore.Store
	bus      eventbus.Bus
	logger   *zap.Logger
}

// New constructs a Redistributor. bus may be nil (no event emission).
func New(reg *registry.Registry, store workerstore.Store, bus eventbus.Bus, logger *zap.Logger) *Redistributor {
	return &Redistributor{registry: reg, store: store, bus: bus, logger: logger.Named("redistributor")}
}

// Run generates a migration plan from the current registry snapshot and
// executes up to MaxMigrationsPerCycle of it (spec §4.7).
func (rd *Redistributor) Run(ctx context.Context) Result {
	hosts := rd.registry.GetAll()
	plans := rd.generatePlan(hosts)

	result := Result{Planned: len(plans), Results: make([]MigrationOutcome, 0, len(plans))}
	if len(plans) > MaxMigrationsPerCycle {
		plans = plans[:MaxMigrationsPerCycle]
	}

	for _, p := range plans {
		outcome := rd.execute(ctx, p)
		result.Results = append(result.Results, outcome)
		if outcome.Success {
			result.Executed++
		} else {
			result.Failed++
		}
	}

	if result.Planned > 0 && rd.bus != nil {
		rd.bus.Emit("workers_redistributed", map[string]any{
			"planned":  result.Planned,
			"executed": result.Executed,
			"failed":   result.Failed,
		})
	}

	return result
}

func isOverloaded(h *registry.Host) bool {
	if h.Status != types.HostActive || h.WorkerCount() == 0 {
		return false
	}
	return h.Level() == types.HealthDegraded || h.WorkerCount() >= OverloadedThreshold
}

func (rd *Redistributor) generatePlan(hosts []*registry.Host) []plan {
	var plans []plan

	for _, source := range hosts {
		if !isOverloaded(source) {
			continue
		}
		sourceScore := placement.ScoreHost(source, "").Score
		if sourceScore < 0 {
			sourceScore = 0
		}

		for workerID, binding := range source.Workers {
			worker, err := rd.store.GetWorker(context.Background(), workerID)
			if err != nil || worker.Status != types.WorkerIdle {
				continue
			}

			others := otherHosts(hosts, source.ID)
			target := placement.Select(others, binding.ProjectID)
			if target.Reason != types.ReasonSelected {
				continue
			}

			improvement := bestScore(target.Scored, target.HostID) - sourceScore
			if improvement < RedistributionThreshold {
				continue
			}

			plans = append(plans, plan{WorkerID: workerID, Source: source.ID, Target: target.HostID, Improvement: improvement})
		}
	}

	sort.SliceStable(plans, func(i, j int) bool { return plans[i].Improvement > plans[j].Improvement })
	return plans
}

func (rd *Redistributor) execute(ctx context.Context, p plan) MigrationOutcome {
	worker, err := rd.store.GetWorker(ctx, p.WorkerID)
	if err != nil {
		return MigrationOutcome{WorkerID: p.WorkerID, Source: p.Source, Target: p.Target, Success: false, Reason: "worker_not_found"}
	}
	if worker.Status != types.WorkerIdle {
		return MigrationOutcome{WorkerID: p.WorkerID, Source: p.Source, Target: p.Target, Success: false, Reason: "no_longer_idle"}
	}

	rd.registry.Unbind(p.Source, p.WorkerID)
	rd.registry.Bind(p.Target, p.WorkerID, worker.ProjectID)
	return MigrationOutcome{WorkerID: p.WorkerID, Source: p.Source, Target: p.Target, Success: true}
}

func otherHosts(hosts []*registry.Host, excludeID string) []*registry.Host {
	out := make([]*registry.Host, 0, len(hosts))
	for _, h := range hosts {
		if h.ID != excludeID {
			out = append(out, h)
		}
	}
	return out
}

func bestScore(scored []placement.Scored, hostID string) int {
	for _, s := range scored {
		if s.HostID == hostID {
			return s.Score
		}
	}
	return 0
}
