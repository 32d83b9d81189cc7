package rpcclient

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hive-agi/hostfleet/internal/types"
)

// Backoff bounds for the circuit breaker (spec §4.1).
const (
	InitialBackoffMs int64 = 1000
	MaxBackoffMs     int64 = 60000
)

const (
	stateClosed int32 = iota
	stateOpen
	stateHalfOpen
)

// Snapshot is a point-in-time read of the breaker's process-wide record
// (spec §3 "Circuit-breaker record").
type Snapshot struct {
	State      types.CircuitState
	TrippedAt  time.Time
	BackoffMs  int64
	CrashCount int64
	LastError  string
	LastTag    string
	RecoveryAt time.Time
}

// Breaker is the process-wide 3-state circuit breaker guarding the RPC
// subprocess surface. State transitions (the open→half_open edge) are
// lock-free via atomic.Int32.CompareAndSwap, per spec §9's CAS requirement;
// the rarer trip/reset paths use a mutex so the backoff-doubling arithmetic
// is computed against a consistent prior state. No third-party breaker
// library maps onto this exact state machine — see DESIGN.md.
type Breaker struct {
	state atomic.Int32

	mu             sync.Mutex
	trippedAt      time.Time
	recoveryAt     time.Time
	backoffMs      int64
	crashCount     int64
	lastError      string
	lastTag        string
}

// NewBreaker returns a breaker starting in the closed state.
func NewBreaker() *Breaker {
	b := &Breaker{backoffMs: InitialBackoffMs}
	b.state.Store(stateClosed)
	return b
}

// Guard decides whether a call may proceed to spawn a subprocess, per the
// per-call algorithm in spec §4.1 step 1. It returns the state the call
// should be attributed to for post-call transition bookkeeping.
func (b *Breaker) Guard(now time.Time) (proceed bool, attributedState types.CircuitState) {
	switch b.state.Load() {
	case stateClosed:
		return true, types.CircuitClosed
	case stateHalfOpen:
		return true, types.CircuitHalfOpen
	case stateOpen:
		b.mu.Lock()
		trippedAt := b.trippedAt
		backoff := time.Duration(b.backoffMs) * time.Millisecond
		b.mu.Unlock()

		if now.Sub(trippedAt) < backoff {
			return false, types.CircuitOpen
		}
		// Backoff has elapsed: exactly one caller wins the open→half_open
		// edge via CAS; the rest observe "blocked" and skip this tick.
		if b.state.CompareAndSwap(stateOpen, stateHalfOpen) {
			return true, types.CircuitHalfOpen
		}
		return false, types.CircuitOpen
	default:
		return false, types.CircuitOpen
	}
}

// RecordSuccess applies the post-call success transition (spec §4.1 step 5).
// A success observed from closed is a no-op; a success observed from
// half_open closes the breaker and resets backoff to the initial value.
func (b *Breaker) RecordSuccess(attributedState types.CircuitState, now time.Time) {
	if attributedState != types.CircuitHalfOpen {
		return
	}
	b.mu.Lock()
	b.backoffMs = InitialBackoffMs
	b.recoveryAt = now
	b.mu.Unlock()
	b.state.CompareAndSwap(stateHalfOpen, stateClosed)
}

// Trip applies the trip transition (spec §4.1 "Trip transition"). backoff
// doubles (capped) only when the prior state was already open; any other
// prior state resets backoff to the initial value.
func (b *Breaker) Trip(now time.Time, lastError, lastTag string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if types.CircuitState(stateName(b.state.Load())) == types.CircuitOpen {
		next := b.backoffMs * 2
		if next > MaxBackoffMs {
			next = MaxBackoffMs
		}
		b.backoffMs = next
	} else {
		b.backoffMs = InitialBackoffMs
	}

	b.trippedAt = now
	b.crashCount++
	b.lastError = lastError
	b.lastTag = lastTag
	b.state.Store(stateOpen)
}

// Reset restores the breaker to closed with the initial backoff. Test/ops
// only (spec §3 Lifecycle) — crash_count is left untouched because it is a
// monotone counter "since startup", not since last reset.
func (b *Breaker) Reset(now time.Time) {
	b.mu.Lock()
	b.backoffMs = InitialBackoffMs
	b.recoveryAt = now
	b.mu.Unlock()
	b.state.Store(stateClosed)
}

// Snapshot returns a consistent read of the breaker's current record.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:      types.CircuitState(stateName(b.state.Load())),
		TrippedAt:  b.trippedAt,
		BackoffMs:  b.backoffMs,
		CrashCount: b.crashCount,
		LastError:  b.lastError,
		LastTag:    b.lastTag,
		RecoveryAt: b.recoveryAt,
	}
}

func stateName(s int32) types.CircuitState {
	switch s {
	case stateOpen:
		return types.CircuitOpen
	case stateHalfOpen:
		return types.CircuitHalfOpen
	default:
		return types.CircuitClosed
	}
}
