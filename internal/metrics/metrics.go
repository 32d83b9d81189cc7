// Package metrics exposes the fleet supervisor's Prometheus collectors,
// grounded on the pack's warren pkg/metrics package (package-level
// prometheus.NewXVec + MustRegister in init, plus a Timer helper for
// histogram observations). Names are scoped under the hostfleetd_ prefix.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Host / registry gauges.
	HostsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hostfleetd_hosts_total",
			Help: "Total number of registered hosts by status",
		},
		[]string{"status"},
	)

	HostHealthScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hostfleetd_host_health_score",
			Help: "Current EWMA health score per host",
		},
		[]string{"host_id"},
	)

	WorkersBoundTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hostfleetd_workers_bound_total",
			Help: "Number of workers currently bound, by host",
		},
		[]string{"host_id"},
	)

	// Circuit breaker gauges and counters.
	CircuitState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostfleetd_circuit_state",
			Help: "Circuit breaker state: 0=closed, 1=half_open, 2=open",
		},
	)

	CircuitTripsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hostfleetd_circuit_trips_total",
			Help: "Total number of times the RPC circuit breaker has tripped open",
		},
	)

	// Heartbeat / RPC histograms and counters.
	HeartbeatDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hostfleetd_heartbeat_duration_seconds",
			Help:    "Time taken for a full heartbeat tick across all hosts",
			Buckets: prometheus.DefBuckets,
		},
	)

	RPCEvalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hostfleetd_rpc_eval_duration_seconds",
			Help:    "Time taken for an individual rpcclient.Eval call",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	RPCEvalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostfleetd_rpc_evals_total",
			Help: "Total number of rpcclient.Eval calls by outcome",
		},
		[]string{"outcome"},
	)

	// Reaper / redistributor counters.
	OrphansHealedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostfleetd_orphans_healed_total",
			Help: "Total number of orphaned workers healed, by action",
		},
		[]string{"action"},
	)

	MigrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostfleetd_migrations_total",
			Help: "Total number of worker migrations attempted by the redistributor, by outcome",
		},
		[]string{"outcome"},
	)

	RedistributionCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hostfleetd_redistribution_cycles_total",
			Help: "Total number of redistribution cycles completed",
		},
	)

	// Migration runner.
	MigrationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hostfleetd_db_migration_duration_seconds",
			Help:    "Time taken to apply pending golang-migrate migrations at startup",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		HostsTotal,
		HostHealthScore,
		WorkersBoundTotal,
		CircuitState,
		CircuitTripsTotal,
		HeartbeatDuration,
		RPCEvalDuration,
		RPCEvalsTotal,
		OrphansHealedTotal,
		MigrationsTotal,
		RedistributionCyclesTotal,
		MigrationDuration,
	)
}

// Handler returns the Prometheus scrape handler for GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an operation and reports it to a histogram on ObserveDuration.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// CircuitStateValue maps a CircuitState name to the numeric value used by
// the CircuitState gauge.
func CircuitStateValue(state string) float64 {
	switch state {
	case "half_open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
