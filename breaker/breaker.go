// Package breaker guards calls to a flaky downstream dependency. It wraps
// sony/gobreaker with a consecutive failure threshold, a single half-open
// trial call and go-errors shaped open errors.
package breaker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-backorder/core"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/sony/gobreaker"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

type Settings struct {
	Name             string
	FailureThreshold int
	RecoveryTimeout  time.Duration
	Logger           core.Logger
	LoggerProvider   core.LoggerProvider
	MetricsRecorder  core.MetricsRecorder
}

func SettingsFromConfig(name string, cfg core.BreakerConfig) Settings {
	return Settings{
		Name:             name,
		FailureThreshold: cfg.Threshold(),
		RecoveryTimeout:  cfg.RecoveryTimeoutDuration(),
	}
}

type Breaker struct {
	name     string
	cb       *gobreaker.CircuitBreaker
	observer core.Observer
}

func New(settings Settings) *Breaker {
	name := strings.TrimSpace(settings.Name)
	if name == "" {
		name = "default"
	}
	threshold := settings.FailureThreshold
	if threshold <= 0 {
		threshold = core.DefaultFailureThreshold
	}
	timeout := settings.RecoveryTimeout
	if timeout <= 0 {
		timeout = core.DefaultRecoveryTimeout
	}
	_, logger := glog.Resolve("breaker", settings.LoggerProvider, settings.Logger)

	b := &Breaker{
		name:     name,
		observer: core.NewObserver("backorder", logger, settings.MetricsRecorder),
	}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: b.onStateChange,
		// a call cancelled mid-flight counts as a failure: it gives no sign
		// the downstream recovered
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
	return b
}

func (b *Breaker) Name() string {
	if b == nil {
		return ""
	}
	return b.name
}

func (b *Breaker) State() State {
	if b == nil || b.cb == nil {
		return StateClosed
	}
	return fromGoBreaker(b.cb.State())
}

// Execute runs fn unless the breaker is open or ctx is already done. While open, or while the
// half-open trial is in flight, fn is not invoked and a BreakerOpen error is
// returned.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func Do[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if fn == nil {
		return zero, core.NewError("breaker: function is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if b == nil || b.cb == nil {
		return fn(ctx)
	}
	// already abandoned calls never reach the breaker counts
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	result, err := b.cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.observer.Count(ctx, core.MetricBreakerRejected, 1, map[string]string{"breaker": b.name})
			return zero, core.NewBreakerOpenError(b.name)
		}
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, nil
	}
	return typed, nil
}

func (b *Breaker) onStateChange(name string, from gobreaker.State, to gobreaker.State) {
	fields := map[string]any{
		"breaker": name,
		"from":    string(fromGoBreaker(from)),
		"to":      string(fromGoBreaker(to)),
	}
	b.observer.Count(context.Background(), core.MetricBreakerTransition, 1, map[string]string{
		"breaker": name,
		"to":      string(fromGoBreaker(to)),
	})
	if to == gobreaker.StateOpen {
		b.observer.Warn(context.Background(), "circuit breaker opened", fields)
		return
	}
	b.observer.Info(context.Background(), "circuit breaker state changed", fields)
}

func fromGoBreaker(state gobreaker.State) State {
	switch state {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
