// Package fleet wires every collaborator (spec §6, §9) into the top-level
// orchestrator a process entrypoint constructs once at startup: the RPC
// client/circuit breaker, the host registry, the worker store, the
// notifier, the event bus, the reaper, the redistributor, and the
// heartbeat supervisor. Collaborators are constructor-injected rather than
// reached for as module-level singletons, per the design note in spec §9.
package fleet

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hive-agi/hostfleet/internal/eventbus"
	"github.com/hive-agi/hostfleet/internal/heartbeat"
	"github.com/hive-agi/hostfleet/internal/notifier"
	"github.com/hive-agi/hostfleet/internal/placement"
	"github.com/hive-agi/hostfleet/internal/reaper"
	"github.com/hive-agi/hostfleet/internal/redistributor"
	"github.com/hive-agi/hostfleet/internal/registry"
	"github.com/hive-agi/hostfleet/internal/rpcclient"
	"github.com/hive-agi/hostfleet/internal/types"
	"github.com/hive-agi/hostfleet/internal/workerstore"
)

// Config holds every knob fleet.New needs, assembled by the entrypoint
// from internal/config.
type Config struct {
	DefaultHostID     string // EMACS_SOCKET_NAME or literal "server"
	EmacsClient       string // EMACSCLIENT path
	HeartbeatInterval time.Duration
	CleanupInterval   time.Duration
	StaleAfter        time.Duration
}

// Fleet is the assembled, runnable control plane.
type Fleet struct {
	cfg Config

	RPC           *rpcclient.Client
	Registry      *registry.Registry
	Store         workerstore.Store
	Notifier      notifier.Notifier
	Bus           eventbus.Bus
	Reaper        *reaper.Reaper
	Redistributor *redistributor.Redistributor
	Supervisor    *heartbeat.Supervisor

	logger *zap.Logger
}

// New assembles a Fleet. It does not start the heartbeat loop — call Start.
func New(cfg Config, store workerstore.Store, notify notifier.Notifier, bus eventbus.Bus, logger *zap.Logger) *Fleet {
	logger = logger.Named("fleet")
	reg := registry.New(logger)

	f := &Fleet{
		cfg:      cfg,
		Registry: reg,
		Store:    store,
		Notifier: notify,
		Bus:      bus,
		logger:   logger,
	}

	f.RPC = rpcclient.New(logger,
		rpcclient.WithBinary(cfg.EmacsClient),
		rpcclient.WithDefaultSocket(cfg.DefaultHostID),
		rpcclient.WithErrorSink(f.handleHostError),
	)

	f.Reaper = reaper.New(reg, store, bus, logger)
	f.Redistributor = redistributor.New(reg, store, bus, logger)

	f.Supervisor = heartbeat.New(f.RPC, reg, f.Reaper, f.Redistributor, heartbeat.Config{
		HeartbeatInterval: cfg.HeartbeatInterval,
		CleanupInterval:   cfg.CleanupInterval,
		StaleAfter:        cfg.StaleAfter,
		DefaultHostID:     cfg.DefaultHostID,
	}, logger)

	return f
}

// Start auto-registers the default host (Open Question resolution #1 —
// SPEC_FULL.md §9) if it is not already present, then starts the heartbeat
// supervisor.
func (f *Fleet) Start(ctx context.Context) error {
	if f.Registry.Get(f.cfg.DefaultHostID) == nil {
		f.Registry.Register(f.cfg.DefaultHostID, map[string]string{"socket": f.cfg.DefaultHostID})
		f.logger.Info("auto-registered default host", zap.String("host_id", f.cfg.DefaultHostID))
	}
	return f.Supervisor.Start(ctx)
}

// Stop stops the heartbeat supervisor.
func (f *Fleet) Stop() error {
	return f.Supervisor.Stop()
}

// Status is the admin API's fleet-wide status snapshot.
type Status struct {
	Supervisor heartbeat.Status
	Circuit    rpcclient.Snapshot
	Hosts      []*registry.Host
}

// Status reports the supervisor's run state, the circuit breaker's current
// record, and every host in the registry.
func (f *Fleet) Status() Status {
	return Status{
		Supervisor: f.Supervisor.Status(),
		Circuit:    f.RPC.Breaker().Snapshot(),
		Hosts:      f.Registry.GetAll(),
	}
}

// RegisterHost is the manual entry point mirroring the registry's
// register operation (spec §7 "manual entry points mirror the automatic
// ones").
func (f *Fleet) RegisterHost(id string, opts map[string]string) *registry.Host {
	return f.Registry.Register(id, opts)
}

// SelectAndBind runs the placement selector over the current fleet
// snapshot and, on a successful selection, binds the worker to the chosen
// host — the manual counterpart to whatever internal flow spawns a new
// worker and needs a host (spec §4.5, §7).
func (f *Fleet) SelectAndBind(workerID, projectID string) placement.Result {
	result := placement.Select(f.Registry.GetAll(), projectID)
	if result.Reason == types.ReasonSelected {
		f.Registry.Bind(result.HostID, workerID, projectID)
	}
	return result
}

// Heal is the manual entry point for the auto-heal reaper (spec §7).
func (f *Fleet) Heal(ctx context.Context) reaper.HealResult {
	return f.Reaper.Heal(ctx)
}

// Redistribute is the manual entry point for the redistributor (spec §7).
func (f *Fleet) Redistribute(ctx context.Context) redistributor.Result {
	return f.Redistributor.Run(ctx)
}

// ResetCircuit is the test/ops-only manual reset of the circuit breaker
// (spec §3 "Lifecycle").
func (f *Fleet) ResetCircuit() {
	f.RPC.Breaker().Reset(time.Now())
}

// CircuitSnapshot returns the breaker's current record for the admin API.
func (f *Fleet) CircuitSnapshot() rpcclient.Snapshot {
	return f.RPC.Breaker().Snapshot()
}

// handleHostError is the RPC client's ErrorSink (spec §4.1 step 5: "report
// the error to the host registry as mark_error(...)"), wired here rather
// than reached for as a package-level function so the registry, bus, and
// notifier stay constructor-injected.
func (f *Fleet) handleHostError(hostID, message string) {
	f.Registry.MarkError(hostID, message)

	if f.Bus != nil {
		f.Bus.Emit("circuit_tripped", map[string]any{"host_id": hostID, "message": message})
	}
	if f.Notifier != nil {
		f.Notifier.Notify(
			fmt.Sprintf("host %s unreachable", hostID),
			message,
			notifier.UrgencyCritical,
			notifier.IconError,
			5000,
		)
	}
}
