package approval

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/apm287/stockledger/internal/domain"
)

// BreakerGate wraps a Gate with a circuit breaker. Every call is bounded
// by callTimeout; a timeout or gate error counts as a breaker failure,
// while an explicit "no" verdict is a successful call. After maxFailures
// consecutive failures the breaker opens and calls fail fast with
// domain.ErrCircuitOpen until resetTimeout elapses, at which point a
// single trial call is let through.
type BreakerGate struct {
	gate        Gate
	cb          *gobreaker.CircuitBreaker
	callTimeout time.Duration
}

// NewBreakerGate creates a BreakerGate around the given gate.
func NewBreakerGate(gate Gate, maxFailures uint32, callTimeout, resetTimeout time.Duration, logger *slog.Logger) *BreakerGate {
	st := gobreaker.Settings{
		Name:        "approval",
		MaxRequests: 1, // single half-open trial
		Timeout:     resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("approval breaker state change",
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}
	return &BreakerGate{
		gate:        gate,
		cb:          gobreaker.NewCircuitBreaker(st),
		callTimeout: callTimeout,
	}
}

// Approve implements Gate. Failures are returned as the domain errors the
// ledger surfaces in trade results: domain.ErrCircuitOpen when the
// breaker rejects the call, domain.ErrApprovalTimeout when the call
// exceeded the call timeout, and *domain.ApprovalError for anything else.
func (g *BreakerGate) Approve(ctx context.Context, code string, size int64) (bool, error) {
	v, err := g.cb.Execute(func() (interface{}, error) {
		verdict, err := g.call(ctx, code, size)
		if err != nil {
			return nil, err
		}
		return verdict, nil
	})
	if err != nil {
		return false, mapBreakerError(err)
	}
	return v.(bool), nil
}

// call runs a single gate invocation under the per-call timeout. The gate
// runs on its own goroutine so a gate that ignores its context cannot
// stall the breaker past the deadline.
func (g *BreakerGate) call(ctx context.Context, code string, size int64) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	type result struct {
		verdict bool
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		verdict, err := g.gate.Approve(cctx, code, size)
		ch <- result{verdict, err}
	}()

	select {
	case r := <-ch:
		return r.verdict, r.err
	case <-cctx.Done():
		return false, cctx.Err()
	}
}

func mapBreakerError(err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return domain.ErrCircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrApprovalTimeout
	default:
		return &domain.ApprovalError{Detail: err.Error(), Err: err}
	}
}
