package rpcclient

import (
	"fmt"

	"github.com/hive-agi/hostfleet/internal/types"
)

// EvalError is the structured failure a call can surface (spec §7). Reason
// is always one of the closed RPCFailureReason values; Tag is only set
// alongside ReasonHostDead and carries the death-pattern classification
// (e.g. "socket_not_found") — host_dead is spec.md's one parameterized
// error variant, host_dead(tag), so the tag travels as a sibling field
// rather than being folded into the enum.
type EvalError struct {
	Reason  types.RPCFailureReason
	Tag     string
	Message string
}

func (e *EvalError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("%s(%s): %s", e.Reason, e.Tag, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// EvalResult is the outcome of a single eval call. Exactly one of Result or
// Err is set. ElapsedMs is populated on failure as well as on success (0
// when the breaker blocked the call); the heartbeat loop scores failures
// with a nil latency and does not use it.
type EvalResult struct {
	OK        bool
	Result    string
	Err       *EvalError
	ElapsedMs int64
}

func okResult(result string, elapsedMs int64) EvalResult {
	return EvalResult{OK: true, Result: result, ElapsedMs: elapsedMs}
}

func errResult(reason types.RPCFailureReason, tag, message string, elapsedMs int64) EvalResult {
	return EvalResult{
		OK:        false,
		Err:       &EvalError{Reason: reason, Tag: tag, Message: message},
		ElapsedMs: elapsedMs,
	}
}
