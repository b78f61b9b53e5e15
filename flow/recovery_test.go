package flow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRecover_EscalateDefaultPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	_, err := Recover(context.Background(), DefaultRecoveryPolicy, nil, func(ctx context.Context) (map[string]any, error) {
		return nil, wantErr
	})
	if err != wantErr {
		t.Errorf("expected %v, got %v", wantErr, err)
	}
}

func TestRecover_RetrySucceedsBeforeExhaustion(t *testing.T) {
	attempts := 0
	policy := RecoveryPolicy{Kind: RecoveryRetry, MaxAttempts: 3, InitialBackoff: time.Millisecond, BackoffFactor: 2}
	out, err := Recover(context.Background(), policy, nil, func(ctx context.Context) (map[string]any, error) {
		attempts++
		if attempts < 2 {
			return nil, TimeoutErr("t", "transient")
		}
		return map[string]any{"ok": true}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["ok"] != true {
		t.Errorf("unexpected output: %v", out)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestRecover_RetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	policy := RecoveryPolicy{Kind: RecoveryRetry, MaxAttempts: 3, InitialBackoff: time.Millisecond, BackoffFactor: 2}
	_, err := Recover(context.Background(), policy, nil, func(ctx context.Context) (map[string]any, error) {
		attempts++
		return nil, TimeoutErr("t", "always fails")
	})
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRecover_RetryStopsOnNonRetryableError(t *testing.T) {
	attempts := 0
	nonRetryable := &FlowError{Category: CategoryValidation, Message: "bad args", Retryable: false}
	policy := RecoveryPolicy{Kind: RecoveryRetry, MaxAttempts: 5, InitialBackoff: time.Millisecond}
	_, err := Recover(context.Background(), policy, nil, func(ctx context.Context) (map[string]any, error) {
		attempts++
		return nil, nonRetryable
	})
	if err != nonRetryable {
		t.Errorf("expected the non-retryable error to propagate immediately, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for a non-retryable error, got %d", attempts)
	}
}

func TestRecover_Fallback(t *testing.T) {
	fallback := map[string]any{"default": true}
	policy := RecoveryPolicy{Kind: RecoveryFallback, FallbackValue: fallback}
	out, err := Recover(context.Background(), policy, nil, func(ctx context.Context) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["default"] != true {
		t.Errorf("expected fallback value, got %v", out)
	}
}

func TestRecover_Skip(t *testing.T) {
	policy := RecoveryPolicy{Kind: RecoverySkip}
	out, err := Recover(context.Background(), policy, nil, func(ctx context.Context) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty output on skip, got %v", out)
	}
}

func TestRecover_CompensateRunsRegisteredUndoActionsInReverseOrder(t *testing.T) {
	var ran []string
	policy := RecoveryPolicy{
		Kind:              RecoveryCompensate,
		CompensateNodeIDs: []string{"a", "b"},
		Compensate: func(ctx context.Context) error {
			ran = append(ran, "b", "a")
			return nil
		},
	}
	_, err := Recover(context.Background(), policy, nil, func(ctx context.Context) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	var fe *FlowError
	if !errors.As(err, &fe) || fe.Category != CategoryRecovery {
		t.Fatalf("expected a recovery-category error, got %v", err)
	}
	if !fe.Recovered {
		t.Error("expected the surfaced error to be marked Recovered once compensation ran")
	}
	if len(ran) != 2 || ran[0] != "b" || ran[1] != "a" {
		t.Errorf("expected compensations to run in reverse registration order, got %v", ran)
	}
}

func TestRecover_CompensateSurfacesCompensationFailure(t *testing.T) {
	policy := RecoveryPolicy{
		Kind:              RecoveryCompensate,
		CompensateNodeIDs: []string{"a"},
		Compensate: func(ctx context.Context) error {
			return errors.New("undo failed")
		},
	}
	_, err := Recover(context.Background(), policy, nil, func(ctx context.Context) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	var fe *FlowError
	if !errors.As(err, &fe) || fe.Category != CategoryRecovery {
		t.Fatalf("expected a recovery-category error, got %v", err)
	}
	if fe.Recovered {
		t.Error("expected Recovered to stay false when compensation itself fails")
	}
}

func TestRecover_CircuitBreakerTripsAfterThreshold(t *testing.T) {
	policy := RecoveryPolicy{Kind: RecoveryCircuitBreaker, FailureThreshold: 2, ResetTimeout: time.Hour}
	breaker := &circuitState{}

	for i := 0; i < 2; i++ {
		_, err := Recover(context.Background(), policy, breaker, func(ctx context.Context) (map[string]any, error) {
			return nil, errors.New("boom")
		})
		if err == nil {
			t.Fatalf("attempt %d: expected an error", i)
		}
	}

	called := false
	_, err := Recover(context.Background(), policy, breaker, func(ctx context.Context) (map[string]any, error) {
		called = true
		return map[string]any{}, nil
	})
	if called {
		t.Error("expected the circuit to be open, short-circuiting the attempt")
	}
	var fe *FlowError
	if !errors.As(err, &fe) || fe.Category != CategoryRecovery {
		t.Fatalf("expected a recovery-category error for an open circuit, got %v", err)
	}
}

func TestRecover_CircuitBreakerResetsAfterTimeout(t *testing.T) {
	policy := RecoveryPolicy{Kind: RecoveryCircuitBreaker, FailureThreshold: 1, ResetTimeout: time.Millisecond}
	breaker := &circuitState{}

	_, err := Recover(context.Background(), policy, breaker, func(ctx context.Context) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected the first failure to trip the breaker")
	}

	time.Sleep(5 * time.Millisecond)

	out, err := Recover(context.Background(), policy, breaker, func(ctx context.Context) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})
	if err != nil {
		t.Fatalf("expected the breaker to allow a retry after ResetTimeout, got %v", err)
	}
	if out["ok"] != true {
		t.Errorf("unexpected output: %v", out)
	}
}

func TestRecover_RetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RecoveryPolicy{Kind: RecoveryRetry, MaxAttempts: 5, InitialBackoff: 50 * time.Millisecond}

	attempts := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := Recover(ctx, policy, nil, func(ctx context.Context) (map[string]any, error) {
		attempts++
		return nil, TimeoutErr("t", "transient")
	})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
