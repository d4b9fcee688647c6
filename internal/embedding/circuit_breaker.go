package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// Breaker thresholds for the embedding provider. The circuit opens after
// breakerMaxFailures consecutive failures, stays open for
// breakerOpenTimeout, then admits breakerHalfOpenProbes trial requests
// before closing again.
const (
	breakerMaxFailures    = 3
	breakerOpenTimeout    = 30 * time.Second
	breakerHalfOpenProbes = 2
)

// circuitBreaker guards provider calls and translates open-circuit
// rejections into ErrCircuitOpen so retry policies stop immediately
// instead of hammering a provider that is already failing.
type circuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

func newCircuitBreaker(name string) *circuitBreaker {
	return &circuitBreaker{
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: breakerHalfOpenProbes,
			Timeout:     breakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerMaxFailures
			},
		}),
	}
}

// call runs one embedding request through the breaker.
func (b *circuitBreaker) call(ctx context.Context, fn func() ([]float32, error)) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}

	return result.([]float32), nil
}

// State reports "closed", "open" or "half-open".
func (b *circuitBreaker) State() string {
	switch b.cb.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
