// Package registry is the in-memory host registry (spec §4.2): the
// durable-for-the-process-lifetime store of host records and
// worker-to-host bindings. It follows the same RWMutex-guarded map shape
// the teacher uses for its connected-agent registry
// (server/internal/agentmanager/manager.go), generalized from "is this
// agent's gRPC stream open" to the richer host lifecycle/health/binding
// record spec.md §3 describes.
package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hive-agi/hostfleet/internal/types"
)

// Binding is a worker bound to a host. ProjectID is cached here at bind
// time (Open Question resolution #2 in SPEC_FULL.md §9): the registry is
// the cheap place to read project affinity from during placement, rather
// than querying the external worker store on every selection call.
type Binding struct {
	WorkerID  string
	ProjectID string
}

// Host is a host record (spec §3). Workers is keyed by worker ID.
type Host struct {
	ID          string
	Status      types.HostStatus
	HealthScore int
	ErrorCount  int
	HeartbeatAt *time.Time
	Workers     map[string]Binding
	Opts        map[string]string
}

// WorkerCount returns the number of workers currently bound to this host.
func (h *Host) WorkerCount() int { return len(h.Workers) }

// Level buckets HealthScore into the coarse health level (spec §3).
func (h *Host) Level() types.HealthLevel { return types.LevelOf(h.HealthScore) }

func (h *Host) clone() *Host {
	cp := *h
	cp.Workers = make(map[string]Binding, len(h.Workers))
	for k, v := range h.Workers {
		cp.Workers[k] = v
	}
	cp.Opts = make(map[string]string, len(h.Opts))
	for k, v := range h.Opts {
		cp.Opts[k] = v
	}
	if h.HeartbeatAt != nil {
		at := *h.HeartbeatAt
		cp.HeartbeatAt = &at
	}
	return &cp
}

// ErrorThresholdForStatus is the consecutive-failure count (spec §3
// invariant: status = error implies error_count >= 3) at which a heartbeat
// failure flips a host's status to error.
const ErrorThresholdForStatus = 3

// Registry is the process-wide host registry. Safe for concurrent use; the
// zero value is not usable, construct with New.
type Registry struct {
	mu          sync.RWMutex
	hosts       map[string]*Host
	workerIndex map[string]string // worker_id -> host_id
	logger      *zap.Logger
}

// New constructs an empty Registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		hosts:       make(map[string]*Host),
		workerIndex: make(map[string]string),
		logger:      logger.Named("registry"),
	}
}

// Register creates an active host with the given opts if absent. Calling
// it again for the same id is a no-op (idempotent, spec §8 round-trip
// property: "register(id, opts) twice yields one host, not two").
func (r *Registry) Register(id string, opts map[string]string) *Host {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, exists := r.hosts[id]; exists {
		return h.clone()
	}

	optsCopy := make(map[string]string, len(opts))
	for k, v := range opts {
		optsCopy[k] = v
	}

	h := &Host{
		ID:          id,
		Status:      types.HostActive,
		HealthScore: 100,
		Workers:     make(map[string]Binding),
		Opts:        optsCopy,
	}
	r.hosts[id] = h

	r.logger.Info("host registered", zap.String("host_id", id))
	return h.clone()
}

// HeartbeatSuccess records a successful ping: resets error_count to zero,
// applies the already-scored health value, stamps heartbeat_at, and
// ensures the host is active (spec §4.4 step 2 "On success").
func (r *Registry) HeartbeatSuccess(id string, at time.Time, newScore int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hosts[id]
	if !ok {
		return
	}
	h.ErrorCount = 0
	h.HealthScore = clampScore(newScore)
	h.HeartbeatAt = &at
	h.Status = types.HostActive
}

// HeartbeatFailure records a failed ping: bumps error_count, applies the
// already-scored health value, and flips status to error once error_count
// reaches ErrorThresholdForStatus (spec §4.4 step 2 "On failure").
func (r *Registry) HeartbeatFailure(id string, newScore int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hosts[id]
	if !ok {
		return
	}
	h.ErrorCount++
	h.HealthScore = clampScore(newScore)
	if h.ErrorCount >= ErrorThresholdForStatus {
		h.Status = types.HostError
	}
}

// MarkStale marks a host stale (spec §4.2).
func (r *Registry) MarkStale(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.hosts[id]; ok {
		h.Status = types.HostStale
	}
}

// MarkError marks a host errored with a diagnostic message. Reached from
// the RPC client's error sink on a host-death match (spec §4.1 step 5);
// the heartbeat threshold in HeartbeatFailure sets the same status itself.
func (r *Registry) MarkError(id, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hosts[id]
	if !ok {
		return
	}
	h.Status = types.HostError
	r.logger.Warn("host marked error", zap.String("host_id", id), zap.String("reason", msg))
}

// MarkTerminated marks a host terminated. The heartbeat loop pings only
// active hosts (and the default host when none is active), but
// HeartbeatSuccess sets any host it is called for back to active,
// including a terminated one.
func (r *Registry) MarkTerminated(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.hosts[id]; ok {
		h.Status = types.HostTerminated
	}
}

// Bind assigns a worker to a host, caching its project_id on the binding
// record. Enforces the uniqueness invariant (spec §3): if the worker is
// already bound elsewhere, it is unbound from its previous host first.
func (r *Registry) Bind(hostID, workerID, projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prevHostID, bound := r.workerIndex[workerID]; bound && prevHostID != hostID {
		if prev, ok := r.hosts[prevHostID]; ok {
			delete(prev.Workers, workerID)
		}
	}

	h, ok := r.hosts[hostID]
	if !ok {
		return
	}
	h.Workers[workerID] = Binding{WorkerID: workerID, ProjectID: projectID}
	r.workerIndex[workerID] = hostID
}

// Unbind removes a worker from a host.
func (r *Registry) Unbind(hostID, workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.hosts[hostID]; ok {
		delete(h.Workers, workerID)
	}
	if r.workerIndex[workerID] == hostID {
		delete(r.workerIndex, workerID)
	}
}

// Get returns a snapshot copy of a host, or nil if unknown.
func (r *Registry) Get(id string) *Host {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hosts[id]
	if !ok {
		return nil
	}
	return h.clone()
}

// GetAll returns a snapshot copy of every host.
func (r *Registry) GetAll() []*Host {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Host, 0, len(r.hosts))
	for _, h := range r.hosts {
		out = append(out, h.clone())
	}
	return out
}

// GetByStatus returns a snapshot copy of every host with the given status.
func (r *Registry) GetByStatus(status types.HostStatus) []*Host {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Host, 0)
	for _, h := range r.hosts {
		if h.Status == status {
			out = append(out, h.clone())
		}
	}
	return out
}

// HostOfWorker returns the host id a worker is currently bound to, and
// false if the worker is unbound.
func (r *Registry) HostOfWorker(workerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.workerIndex[workerID]
	return id, ok
}

// CleanupStale marks every active host whose heartbeat_at is older than
// staleAfter, or that has never had a successful heartbeat, as stale, and
// returns their ids. Registration time is not recorded, so a host that has
// not yet been pinged is marked stale however recently it was registered.
func (r *Registry) CleanupStale(now time.Time, staleAfter time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-staleAfter)
	var staleIDs []string
	for id, h := range r.hosts {
		if h.Status != types.HostActive {
			continue
		}
		if h.HeartbeatAt == nil || h.HeartbeatAt.Before(cutoff) {
			h.Status = types.HostStale
			staleIDs = append(staleIDs, id)
		}
	}
	return staleIDs
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
