// Package heartbeat implements the heartbeat loop (C4) and its owning
// supervisor (C8) from spec §4.4: a fixed-interval tick that pings every
// active host through the RPC client, feeds results through the health
// scorer into the registry, and — every cleanup interval — runs stale
// detection, the auto-heal reaper, and the redistributor. Built on
// gocron.DurationJob in singleton mode, the same recurring-job shape the
// teacher's internal/scheduler wraps for policy schedules, which gives
// Start/Stop idempotence "for free" instead of a hand-rolled ticker
// goroutine.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/hive-agi/hostfleet/internal/health"
	"github.com/hive-agi/hostfleet/internal/reaper"
	"github.com/hive-agi/hostfleet/internal/redistributor"
	"github.com/hive-agi/hostfleet/internal/registry"
	"github.com/hive-agi/hostfleet/internal/rpcclient"
	"github.com/hive-agi/hostfleet/internal/types"
)

// pingCode is the minimal no-op payload sent to a host on every heartbeat
// (spec §4.4 step 2: `eval("t", 3000)`).
const pingCode = "t"

// pingTimeoutMs is the deadline for a single heartbeat ping.
const pingTimeoutMs = 3000

// Config holds the heartbeat loop's cadence (spec §4.4).
type Config struct {
	// HeartbeatInterval is the fixed tick period (spec default 30s).
	HeartbeatInterval time.Duration
	// CleanupInterval gates stale detection, the reaper, and the
	// redistributor (spec default 2m).
	CleanupInterval time.Duration
	// StaleAfter is the heartbeat_at age beyond which an active host with
	// no recent successful ping is marked stale.
	StaleAfter time.Duration
	// DefaultHostID is pinged when no host is active (spec §4.4 step 1
	// fallback), from EMACS_SOCKET_NAME or literal "server".
	DefaultHostID string
}

// Status reports the supervisor's run state for the admin API.
type Status struct {
	Running    bool
	LastTickAt *time.Time
	NextTickAt *time.Time
}

// Supervisor owns the heartbeat loop's gocron job and exposes idempotent
// start/stop/status (spec §4.4, §5 "cooperative supervisor stop").
type Supervisor struct {
	cfg Config

	rpc      *rpcclient.Client
	registry *registry.Registry
	reaper   *reaper.Reaper
	redist   *redistributor.Redistributor
	logger   *zap.Logger

	mu             sync.Mutex
	cron           gocron.Scheduler
	running        bool
	lastTickAt     *time.Time
	lastCleanupAt  time.Time
}

// New constructs a Supervisor. It does not start the loop — call Start.
func New(
	rpc *rpcclient.Client,
	reg *registry.Registry,
	rpr *reaper.Reaper,
	redist *redistributor.Redistributor,
	cfg Config,
	logger *zap.Logger,
) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		rpc:      rpc,
		registry: reg,
		reaper:   rpr,
		redist:   redist,
		logger:   logger.Named("heartbeat"),
	}
}

// Start begins the heartbeat loop. A no-op if already running (spec §4.4
// "idempotent start/stop").
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	cron, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = cron.NewJob(
		gocron.DurationJob(s.cfg.HeartbeatInterval),
		gocron.NewTask(func() { s.tick(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	s.cron = cron
	s.lastCleanupAt = time.Now()
	cron.Start()
	s.running = true
	s.logger.Info("heartbeat supervisor started",
		zap.Duration("heartbeat_interval", s.cfg.HeartbeatInterval),
		zap.Duration("cleanup_interval", s.cfg.CleanupInterval),
	)
	return nil
}

// Stop flips the run flag and shuts down the gocron scheduler, draining any
// in-flight tick. A no-op if not running.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	err := s.cron.Shutdown()
	s.running = false
	s.logger.Info("heartbeat supervisor stopped")
	return err
}

// Status reports the supervisor's current run state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Running: s.running, LastTickAt: s.lastTickAt}
	if s.running {
		next := time.Now().Add(s.cfg.HeartbeatInterval)
		st.NextTickAt = &next
	}
	return st
}

// tick runs one heartbeat pass (spec §4.4 "Per tick"). Recovers from any
// panic so one bad tick can never take down the supervisor.
func (s *Supervisor) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("heartbeat tick panicked", zap.Any("recovered", r))
		}
	}()

	now := time.Now()
	s.mu.Lock()
	s.lastTickAt = &now
	dueForCleanup := now.Sub(s.lastCleanupAt) >= s.cfg.CleanupInterval
	if dueForCleanup {
		s.lastCleanupAt = now
	}
	s.mu.Unlock()

	s.pingActiveHosts(ctx)

	if dueForCleanup {
		s.runCleanup(ctx)
	}
}

func (s *Supervisor) pingActiveHosts(ctx context.Context) {
	active := s.registry.GetByStatus(types.HostActive)

	ids := make([]string, 0, len(active))
	for _, h := range active {
		ids = append(ids, h.ID)
	}
	if len(ids) == 0 {
		ids = []string{s.cfg.DefaultHostID}
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(hostID string) {
			defer wg.Done()
			s.heartbeatOne(ctx, hostID)
		}(id)
	}
	wg.Wait()
}

// heartbeatOne pings a single host and folds the result into the registry
// via the health scorer (spec §4.4 step 2).
func (s *Supervisor) heartbeatOne(ctx context.Context, hostID string) {
	host := s.registry.Get(hostID)

	priorErrorCount := 0
	priorScore := 100
	workerCount := 0
	if host != nil {
		priorErrorCount = host.ErrorCount
		priorScore = host.HealthScore
		workerCount = host.WorkerCount()
	}

	result := s.rpc.Eval(ctx, hostID, pingCode, pingTimeoutMs)

	if result.OK {
		latencyMs := int(result.ElapsedMs)
		score := health.Score(health.Measurement{
			LatencyMs:       &latencyMs,
			ErrorCount:      0,
			PriorErrorCount: priorErrorCount,
			WorkerCount:     workerCount,
			Succeeded:       true,
			PreviousScore:   priorScore,
		})
		s.registry.HeartbeatSuccess(hostID, time.Now(), score)
		return
	}

	newErrorCount := priorErrorCount + 1
	score := health.Score(health.Measurement{
		LatencyMs:       nil,
		ErrorCount:      newErrorCount,
		PriorErrorCount: priorErrorCount,
		WorkerCount:     workerCount,
		Succeeded:       false,
		PreviousScore:   priorScore,
	})
	s.registry.HeartbeatFailure(hostID, score)
}

func (s *Supervisor) runCleanup(ctx context.Context) {
	staleIDs := s.registry.CleanupStale(time.Now(), s.cfg.StaleAfter)
	if len(staleIDs) > 0 {
		s.logger.Info("hosts marked stale", zap.Strings("host_ids", staleIDs))
	}

	s.reaper.Heal(ctx)
	s.redist.Run(ctx)
}
