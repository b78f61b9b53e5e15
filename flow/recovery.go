package flow

import (
	"context"
	"math"
	"sync"
	"time"
)

// RecoveryKind selects one of the six error recovery strategies (§7):
// retry, fallback, circuit-breaker, skip, compensate, escalate.
type RecoveryKind string

const (
	RecoveryRetry          RecoveryKind = "retry"
	RecoveryFallback       RecoveryKind = "fallback"
	RecoveryCircuitBreaker RecoveryKind = "circuit-breaker"
	RecoverySkip           RecoveryKind = "skip"
	RecoveryCompensate     RecoveryKind = "compensate"
	RecoveryEscalate       RecoveryKind = "escalate"
)

// RecoveryPolicy configures a single node's error-recovery behavior.
type RecoveryPolicy struct {
	Kind RecoveryKind

	// retry
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffFactor   float64

	// fallback
	FallbackValue map[string]any

	// circuit-breaker
	FailureThreshold int
	ResetTimeout     time.Duration

	// compensate: reverse-order undo actions for prior nodes in the same
	// flow, run when this node fails after those nodes already committed.
	CompensateNodeIDs []string

	// Compensate, when set, actually runs the undo actions named by
	// CompensateNodeIDs in reverse order. The interpreter populates this
	// per-dispatch with a closure bound to the current graph and execution
	// context; it is not part of a node's declarative configuration.
	Compensate func(ctx context.Context) error

	// OnRetryAttempt and OnCircuitTrip, like Compensate, are populated
	// per-dispatch by the interpreter (when Metrics is configured) rather
	// than declared on a node. OnRetryAttempt is called before each retry
	// beyond the first; OnCircuitTrip is called the moment a circuit
	// breaker transitions from closed to open.
	OnRetryAttempt func(attempt int)
	OnCircuitTrip  func()
}

// DefaultRecoveryPolicy is applied to a node with no explicit policy: a
// single attempt, no retry, failure propagates (§7 "absent recovery
// config behaves as if kind=escalate with zero retries").
var DefaultRecoveryPolicy = RecoveryPolicy{Kind: RecoveryEscalate, MaxAttempts: 1}

// circuitState tracks one circuit breaker's open/closed state, keyed by
// node id at the Interpreter level.
type circuitState struct {
	mu          sync.Mutex
	failures    int
	openedAt    time.Time
	open        bool
}

func (c *circuitState) allow(resetTimeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return true
	}
	if time.Since(c.openedAt) >= resetTimeout {
		c.open = false
		c.failures = 0
		return true
	}
	return false
}

func (c *circuitState) recordFailure(threshold int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	if c.failures >= threshold {
		c.open = true
		c.openedAt = time.Now()
	}
}

func (c *circuitState) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *circuitState) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.open = false
}

// Recover wraps a node-execution attempt with the given policy, retrying,
// falling back, tripping a circuit, skipping, or escalating as configured
// (§7). breaker is nil unless policy.Kind is RecoveryCircuitBreaker.
func Recover(ctx context.Context, policy RecoveryPolicy, breaker *circuitState, attempt func(ctx context.Context) (map[string]any, error)) (map[string]any, error) {
	switch policy.Kind {
	case RecoveryRetry:
		return recoverRetry(ctx, policy, attempt)
	case RecoveryFallback:
		out, err := attempt(ctx)
		if err != nil {
			return policy.FallbackValue, nil
		}
		return out, nil
	case RecoveryCircuitBreaker:
		return recoverCircuitBreaker(ctx, policy, breaker, attempt)
	case RecoverySkip:
		out, err := attempt(ctx)
		if err != nil {
			return map[string]any{}, nil
		}
		return out, nil
	case RecoveryCompensate:
		out, err := attempt(ctx)
		if err != nil {
			if policy.Compensate != nil {
				if cerr := policy.Compensate(ctx); cerr != nil {
					return nil, RecoveryErr("", "node failed and compensation itself failed", cerr)
				}
			}
			fe := RecoveryErr("", "node failed; registered compensations ran in reverse order", err)
			fe.Recovered = true
			return nil, fe
		}
		return out, nil
	case RecoveryEscalate:
		fallthrough
	default:
		return attempt(ctx)
	}
}

func recoverRetry(ctx context.Context, policy RecoveryPolicy, attempt func(ctx context.Context) (map[string]any, error)) (map[string]any, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	backoff := policy.InitialBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	factor := policy.BackoffFactor
	if factor <= 0 {
		factor = 2
	}
	maxBackoff := policy.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		out, err := attempt(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var fe *FlowError
		if asFlowError(err, &fe) && !fe.Retryable {
			return nil, err
		}

		if i == maxAttempts-1 {
			break
		}
		if policy.OnRetryAttempt != nil {
			policy.OnRetryAttempt(i + 1)
		}
		wait := time.Duration(math.Min(float64(maxBackoff), float64(backoff)*math.Pow(factor, float64(i))))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, RecoveryErr("", "retry attempts exhausted", lastErr)
}

func asFlowError(err error, target **FlowError) bool {
	fe, ok := err.(*FlowError)
	if ok {
		*target = fe
	}
	return ok
}

func recoverCircuitBreaker(ctx context.Context, policy RecoveryPolicy, breaker *circuitState, attempt func(ctx context.Context) (map[string]any, error)) (map[string]any, error) {
	threshold := policy.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	resetTimeout := policy.ResetTimeout
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}

	if breaker == nil {
		return attempt(ctx)
	}
	if !breaker.allow(resetTimeout) {
		return nil, RecoveryErr("", "circuit breaker open", nil)
	}

	out, err := attempt(ctx)
	if err != nil {
		wasOpen := breaker.isOpen()
		breaker.recordFailure(threshold)
		if !wasOpen && breaker.isOpen() && policy.OnCircuitTrip != nil {
			policy.OnCircuitTrip()
		}
		return nil, err
	}
	breaker.recordSuccess()
	return out, nil
}
