package breaker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-backorder/core"
)

var errDownstream = errors.New("downstream unavailable")

func failing(calls *int32) func(context.Context) error {
	return func(context.Context) error {
		atomic.AddInt32(calls, 1)
		return errDownstream
	}
}

func succeeding(calls *int32) func(context.Context) error {
	return func(context.Context) error {
		atomic.AddInt32(calls, 1)
		return nil
	}
}

func tripped(t *testing.T, recovery time.Duration) *Breaker {
	t.Helper()
	b := New(Settings{Name: "registrar.register", FailureThreshold: 3, RecoveryTimeout: recovery})
	var calls int32
	for i := 0; i < 3; i++ {
		if err := b.Execute(context.Background(), failing(&calls)); !errors.Is(err, errDownstream) {
			t.Fatalf("call %d: expected downstream error, got %v", i+1, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after threshold, got %s", b.State())
	}
	return b
}

func TestBreaker_OpensAfterThresholdAndFailsFast(t *testing.T) {
	b := tripped(t, time.Hour)

	var calls int32
	err := b.Execute(context.Background(), succeeding(&calls))
	if !core.HasTextCode(err, core.ErrorBreakerOpen) {
		t.Fatalf("expected breaker open error, got %v", err)
	}
	if core.ClassifyError(err) != core.ErrorKindBreakerOpen {
		t.Fatalf("expected breaker open kind, got %s", core.ClassifyError(err))
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("wrapped function must not run while open")
	}
}

func TestBreaker_StaysClosedBelowThreshold(t *testing.T) {
	b := New(Settings{Name: "x", FailureThreshold: 3, RecoveryTimeout: time.Hour})
	var calls int32
	ctx := context.Background()

	_ = b.Execute(ctx, failing(&calls))
	_ = b.Execute(ctx, failing(&calls))
	if err := b.Execute(ctx, succeeding(&calls)); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	_ = b.Execute(ctx, failing(&calls))
	_ = b.Execute(ctx, failing(&calls))

	if b.State() != StateClosed {
		t.Fatalf("a success must reset the consecutive failure count, got %s", b.State())
	}
	if atomic.LoadInt32(&calls) != 5 {
		t.Fatalf("expected every call to pass through, got %d", calls)
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := tripped(t, 50*time.Millisecond)
	time.Sleep(80 * time.Millisecond)

	if b.State() != StateHalfOpen {
		t.Fatalf("expected half open after recovery timeout, got %s", b.State())
	}
	var calls int32
	if err := b.Execute(context.Background(), succeeding(&calls)); err != nil {
		t.Fatalf("expected trial call to pass, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected trial call to be invoked once, got %d", calls)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after successful trial, got %s", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := tripped(t, 50*time.Millisecond)
	time.Sleep(80 * time.Millisecond)

	var calls int32
	if err := b.Execute(context.Background(), failing(&calls)); !errors.Is(err, errDownstream) {
		t.Fatalf("expected trial failure to surface, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after failed trial, got %s", b.State())
	}
	if err := b.Execute(context.Background(), succeeding(&calls)); !core.HasTextCode(err, core.ErrorBreakerOpen) {
		t.Fatalf("expected fail fast after reopen, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected only the trial call to run, got %d", calls)
	}
}

func TestBreaker_HalfOpenAllowsSingleTrial(t *testing.T) {
	b := tripped(t, 50*time.Millisecond)
	time.Sleep(80 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	var calls int32
	err := b.Execute(context.Background(), succeeding(&calls))
	if !core.HasTextCode(err, core.ErrorBreakerOpen) {
		t.Fatalf("expected concurrent call during trial to be rejected, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("concurrent call must not run during trial")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after trial, got %s", b.State())
	}
}

func TestDo_ReturnsTypedResult(t *testing.T) {
	b := New(Settings{Name: "provider.detail"})
	got, err := Do(context.Background(), b, func(context.Context) (string, error) {
		return "Closed", nil
	})
	if err != nil || got != "Closed" {
		t.Fatalf("unexpected result %q %v", got, err)
	}

	var nilBreaker *Breaker
	got, err = Do(context.Background(), nilBreaker, func(context.Context) (string, error) {
		return "passthrough", nil
	})
	if err != nil || got != "passthrough" {
		t.Fatalf("nil breaker should pass through, got %q %v", got, err)
	}
}

func TestBreaker_DoneContextSkipsCall(t *testing.T) {
	b := New(Settings{Name: "x", FailureThreshold: 1, RecoveryTimeout: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	if err := b.Execute(ctx, succeeding(&calls)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("function must not run for a done context")
	}
	if b.State() != StateClosed {
		t.Fatalf("a call that never ran must not move the breaker, got %s", b.State())
	}
}

func TestBreaker_CanceledCallKeepsFailureStreak(t *testing.T) {
	b := New(Settings{Name: "x", FailureThreshold: 3, RecoveryTimeout: time.Hour})
	ctx := context.Background()
	var calls int32

	_ = b.Execute(ctx, failing(&calls))
	_ = b.Execute(ctx, failing(&calls))
	err := b.Execute(ctx, func(context.Context) error {
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled error to surface, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("a cancellation must not reset the failure streak, got %s", b.State())
	}
}

func TestBreaker_CanceledHalfOpenTrialReopens(t *testing.T) {
	b := tripped(t, 50*time.Millisecond)
	time.Sleep(80 * time.Millisecond)

	err := b.Execute(context.Background(), func(context.Context) error {
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("a canceled trial must not close the breaker, got %s", b.State())
	}
}
