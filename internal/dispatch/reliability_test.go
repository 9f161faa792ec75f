package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"bazaar/internal/protocol"
)

func TestRetryPolicy_RetriesWithBackoff(t *testing.T) {
	t.Parallel()

	attempts := 0
	var delays []time.Duration

	policy := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    50 * time.Millisecond,
		Jitter:      func(d time.Duration) time.Duration { return d },
		Sleep: func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
		ShouldRetry: func(error) bool { return true },
	}

	err := policy.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("fail")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(delays) != 2 || delays[0] != 10*time.Millisecond || delays[1] != 20*time.Millisecond {
		t.Fatalf("unexpected delays: %v", delays)
	}
}

func TestRetryPolicy_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := RetryPolicy{MaxAttempts: 3}.Do(ctx, func() error {
		attempts++
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 0 {
		t.Fatalf("expected no attempts on dead context, got %d", attempts)
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	t.Parallel()

	now := time.Now()
	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Minute,
		Now:          func() time.Time { return now },
	})

	failing := func() error { return errors.New("connection refused") }
	if err := breaker.Execute(failing); err == nil {
		t.Fatalf("expected failure")
	}
	if err := breaker.Execute(failing); err == nil {
		t.Fatalf("expected failure")
	}

	calls := 0
	err := breaker.Execute(func() error {
		calls++
		return nil
	})
	if err != ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("open breaker still invoked the function")
	}
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	t.Parallel()

	now := time.Now()
	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		Now:          func() time.Time { return now },
	})

	if err := breaker.Execute(func() error { return errors.New("down") }); err == nil {
		t.Fatalf("expected failure")
	}
	if err := breaker.Execute(func() error { return nil }); err != ErrCircuitOpen {
		t.Fatalf("expected open breaker, got %v", err)
	}

	now = now.Add(2 * time.Second)
	if err := breaker.Execute(func() error { return nil }); err != nil {
		t.Fatalf("half-open probe should succeed, got %v", err)
	}
	if err := breaker.Execute(func() error { return nil }); err != nil {
		t.Fatalf("breaker should be closed again, got %v", err)
	}
}

func TestReliableChannel_BusinessRejectionDoesNotTripBreaker(t *testing.T) {
	t.Parallel()

	base := &stubChannel{id: "SA", reserveFn: rejects("SA", protocol.ReasonNoStock)}
	breaker := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})
	ch := NewReliableChannel(base, breaker, RetryPolicy{})

	for i := 0; i < 3; i++ {
		res, err := ch.Reserve(context.Background(), protocol.ReserveRequest{OrderID: "O1", ProductID: "PA"})
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if res.Reserved() {
			t.Fatalf("attempt %d: unexpected grant", i)
		}
	}
	if base.reserveCount() != 3 {
		t.Fatalf("breaker swallowed calls: %d", base.reserveCount())
	}
}

func TestReliableChannel_TransportErrorsTripBreaker(t *testing.T) {
	t.Parallel()

	base := &stubChannel{id: "SA", reserveFn: func(protocol.ReserveRequest) (protocol.ReserveResponse, error) {
		return protocol.ReserveResponse{}, errors.New("connection refused")
	}}
	breaker := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute})
	ch := NewReliableChannel(base, breaker, RetryPolicy{})

	for i := 0; i < 4; i++ {
		if _, err := ch.Reserve(context.Background(), protocol.ReserveRequest{OrderID: "O1", ProductID: "PA"}); err == nil {
			t.Fatalf("attempt %d: expected error", i)
		}
	}
	if base.reserveCount() != 2 {
		t.Fatalf("expected breaker to stop calls after 2 failures, got %d", base.reserveCount())
	}
}

func TestReliableChannel_CancelRetriesTransportErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	base := &retryProbeChannel{fail: 2, calls: &calls}
	ch := NewReliableChannel(base, nil, RetryPolicy{
		MaxAttempts: 3,
		Jitter:      func(d time.Duration) time.Duration { return d },
		Sleep:       func(context.Context, time.Duration) error { return nil },
	})

	ack, err := ch.Cancel(context.Background(), protocol.CancelRequest{OrderID: "O1", ProductID: "PA", SellerID: "SA"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if ack.Status != protocol.StatusCancelled {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

type retryProbeChannel struct {
	fail  int
	calls *int
}

func (r *retryProbeChannel) SellerID() string { return "SA" }

func (r *retryProbeChannel) Reserve(ctx context.Context, req protocol.ReserveRequest) (protocol.ReserveResponse, error) {
	return protocol.ReserveResponse{}, errors.New("unused")
}

func (r *retryProbeChannel) Cancel(ctx context.Context, req protocol.CancelRequest) (protocol.CancelResponse, error) {
	*r.calls++
	if *r.calls <= r.fail {
		return protocol.CancelResponse{}, errors.New("connection refused")
	}
	return protocol.CancelResponse{OrderID: req.OrderID, ProductID: req.ProductID, SellerID: "SA", Status: protocol.StatusCancelled}, nil
}

func (r *retryProbeChannel) Confirm(req protocol.ConfirmRequest) error { return nil }

func (r *retryProbeChannel) Close() error { return nil }
