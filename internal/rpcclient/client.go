// Package rpcclient implements the subprocess RPC client and its circuit
// breaker (spec §4.1). A call shells out to emacsclient, the same
// exec.CommandContext/stdout-stderr-capture shape the teacher uses for its
// restic/rclone subprocess invocations (agent/internal/restic/wrapper.go),
// generalized from a backup tool to an editor-host RPC transport.
package rpcclient

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hive-agi/hostfleet/internal/types"
)

const (
	defaultTimeoutMs = 5000
	maxTimeoutMs     = 30000
)

// ErrorSink is notified whenever a call trips the breaker on a host-death
// match. It is injected at construction rather than reached for as a
// module-level singleton, per the design note in spec §9. hostID is the
// socket name the call was made against (falling back to the client's
// default socket when the caller didn't name one).
type ErrorSink func(hostID, message string)

// Client is the process-wide RPC client guarding all emacsclient subprocess
// invocations behind a single circuit breaker (spec §3: the breaker record
// is a process-wide singleton, not one per host).
type Client struct {
	breaker *Breaker

	binary        string
	defaultSocket string

	reportHostError ErrorSink
	logger          *zap.Logger
}

// Option configures a Client at construction.
type Option func(*Client)

// WithBinary overrides the emacsclient executable path (default:
// "emacsclient"; the client does not read EMACSCLIENT itself, the daemon
// passes it in through internal/config).
func WithBinary(path string) Option {
	return func(c *Client) { c.binary = path }
}

// WithDefaultSocket overrides the fallback socket name used when a caller
// evaluates against "" (default: "", which omits -s entirely, matching
// emacsclient's own default-socket discovery; the client does not read
// EMACS_SOCKET_NAME itself).
func WithDefaultSocket(socket string) Option {
	return func(c *Client) { c.defaultSocket = socket }
}

// WithErrorSink installs the sink notified on host-death trips.
func WithErrorSink(sink ErrorSink) Option {
	return func(c *Client) { c.reportHostError = sink }
}

// New constructs a Client with its own fresh breaker.
func New(logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		breaker: NewBreaker(),
		binary:  "emacsclient",
		logger:  logger.Named("rpcclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Breaker exposes the underlying breaker for status reporting and the
// circuit/reset admin endpoint.
func (c *Client) Breaker() *Breaker { return c.breaker }

// Eval evaluates an elisp form on the named host (its emacsclient socket).
// hostID == "" evaluates against the client's configured default socket.
// timeoutMs is clamped to (0, maxTimeoutMs]; 0 or negative falls back to
// defaultTimeoutMs.
func (c *Client) Eval(ctx context.Context, hostID, code string, timeoutMs int) EvalResult {
	timeoutMs = clampTimeout(timeoutMs)
	now := time.Now()

	proceed, attributedState := c.breaker.Guard(now)
	if !proceed {
		return errResult(types.ReasonCircuitOpen, "", "breaker open", 0)
	}

	socket := hostID
	if socket == "" {
		socket = c.defaultSocket
	}

	start := time.Now()
	result := c.run(ctx, socket, code, timeoutMs)
	elapsed := time.Since(start)
	result.ElapsedMs = elapsed.Milliseconds()

	c.postCall(result, attributedState, socket, time.Now())
	return result
}

func (c *Client) run(ctx context.Context, socket, code string, timeoutMs int) EvalResult {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	args := make([]string, 0, 4)
	if socket != "" {
		args = append(args, "-s", socket)
	}
	args = append(args, "--eval", code)

	cmd := exec.CommandContext(callCtx, c.binary, args...)
	out, err := cmd.Output()
	if err == nil {
		return okResult(unwrapQuotes(strings.TrimSpace(string(out))), 0)
	}

	if callCtx.Err() == context.DeadlineExceeded {
		return errResult(types.ReasonTimeout, "", "emacsclient did not respond within deadline", 0)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stderr := string(exitErr.Stderr)
		if tag, ok := matchDeathTag(stderr); ok {
			return errResult(types.ReasonHostDead, tag, strings.TrimSpace(stderr), 0)
		}
		return errResult(types.ReasonException, "", strings.TrimSpace(stderr), 0)
	}

	return errResult(types.ReasonException, "", err.Error(), 0)
}

// postCall applies the breaker's post-call transition (spec §4.1 step 5)
// and, on a host-death trip, notifies the error sink.
func (c *Client) postCall(result EvalResult, attributedState types.CircuitState, socket string, now time.Time) {
	if result.OK {
		c.breaker.RecordSuccess(attributedState, now)
		return
	}

	switch result.Err.Reason {
	case types.ReasonHostDead:
		c.breaker.Trip(now, result.Err.Message, result.Err.Tag)
		if c.reportHostError != nil {
			c.reportHostError(socket, "["+result.Err.Tag+"] "+result.Err.Message)
		}
	case types.ReasonTimeout, types.ReasonException:
		if attributedState == types.CircuitHalfOpen {
			c.breaker.Trip(now, result.Err.Message, "")
		}
	}
}

func clampTimeout(timeoutMs int) int {
	if timeoutMs <= 0 {
		return defaultTimeoutMs
	}
	if timeoutMs > maxTimeoutMs {
		return maxTimeoutMs
	}
	return timeoutMs
}

func unwrapQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
