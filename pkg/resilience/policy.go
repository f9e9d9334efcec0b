// Package resilience wraps gateway calls in failsafe-go timeout, retry and circuit breaker policies
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "market_client/pkg/errors"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/failsafe-go/failsafe-go/timeout"
)

// Config tunes the policies
type Config struct {
	// Timeout bounds each attempt; zero leaves calls bounded only by the caller's context
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Breaker opens after FailureThreshold failures out of the last FailureWindow calls
	FailureThreshold uint
	FailureWindow    uint
	BreakerDelay     time.Duration
}

// DefaultConfig matches the policies used for every gateway
func DefaultConfig() Config {
	return Config{
		Timeout:          10 * time.Second,
		MaxRetries:       3,
		InitialBackoff:   100 * time.Millisecond,
		MaxBackoff:       2 * time.Second,
		FailureThreshold: 5,
		FailureWindow:    10,
		BreakerDelay:     10 * time.Second,
	}
}

// IsTransient reports whether err is worth retrying. Domain rejections never are.
func IsTransient(err error) bool {
	return errors.Is(err, apperrors.ErrUnavailable) || errors.Is(err, timeout.ErrExceeded)
}

// Pipeline holds the executors for one remote service. Idempotent reads are retried,
// writes only pass through the breaker. Both share the breaker.
type Pipeline struct {
	read    failsafe.Executor[any]
	write   failsafe.Executor[any]
	breaker circuitbreaker.CircuitBreaker[any]
}

// NewPipeline builds the executors from cfg
func NewPipeline(cfg Config) *Pipeline {
	breaker := circuitbreaker.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool { return IsTransient(err) }).
		WithFailureThresholdRatio(cfg.FailureThreshold, cfg.FailureWindow).
		WithDelay(cfg.BreakerDelay).
		Build()

	var write []failsafe.Policy[any]
	write = append(write, breaker)
	if cfg.Timeout > 0 {
		write = append(write, timeout.New[any](cfg.Timeout))
	}

	p := &Pipeline{
		write:   failsafe.With[any](write...),
		breaker: breaker,
	}

	if cfg.MaxRetries > 0 {
		retryPolicy := retrypolicy.NewBuilder[any]().
			HandleIf(func(_ any, err error) bool { return IsTransient(err) }).
			WithBackoff(cfg.InitialBackoff, cfg.MaxBackoff).
			WithMaxRetries(cfg.MaxRetries).
			ReturnLastFailure().
			Build()
		p.read = failsafe.With[any](append([]failsafe.Policy[any]{retryPolicy}, write...)...)
	} else {
		p.read = p.write
	}
	return p
}

// BreakerOpen reports whether calls are currently short-circuited
func (p *Pipeline) BreakerOpen() bool {
	return p.breaker.IsOpen()
}

// Read runs an idempotent call with retries
func Read[T any](ctx context.Context, p *Pipeline, fn func(ctx context.Context) (T, error)) (T, error) {
	return run(ctx, p.read, fn)
}

// Write runs a call that must not be repeated
func Write[T any](ctx context.Context, p *Pipeline, fn func(ctx context.Context) (T, error)) (T, error) {
	return run(ctx, p.write, fn)
}

// Exec is Write for calls without a result
func Exec(ctx context.Context, p *Pipeline, fn func(ctx context.Context) error) error {
	_, err := run(ctx, p.write, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// run hands fn the execution's context so a per-attempt timeout cancels it
func run[T any](ctx context.Context, exec failsafe.Executor[any], fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	res, err := exec.WithContext(ctx).GetWithExecution(func(e failsafe.Execution[any]) (any, error) {
		return fn(e.Context())
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, timeout.ErrExceeded) {
			return zero, fmt.Errorf("%w: %v", apperrors.ErrUnavailable, err)
		}
		return zero, err
	}
	if v, ok := res.(T); ok {
		return v, nil
	}
	return zero, nil
}
