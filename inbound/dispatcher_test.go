package inbound

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-backorder/core"
	"github.com/goliatone/go-backorder/devkit"
)

func newTestDispatcher(t *testing.T, ledger core.ProcessedLedger, action core.Action, locker core.DistributedLocker) *Dispatcher {
	t.Helper()
	dispatcher, err := NewDispatcher(Settings{
		Ledger:    ledger,
		Action:    action,
		Locker:    locker,
		LocalWait: 50 * time.Millisecond,
		LockTTL:   30 * time.Second,
		LockWait:  50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return dispatcher
}

func notifyingAction(sink core.NotificationSink, calls *int32, hold time.Duration) core.Action {
	return core.ActionFunc(func(ctx context.Context, trigger core.Trigger) (core.ActionResult, error) {
		atomic.AddInt32(calls, 1)
		time.Sleep(hold)
		sink.Notify(ctx, core.Notification{OriginReference: trigger.Key, Kind: core.NotificationPlacement})
		return core.ActionResult{Summary: map[string]any{"order_id": "ord-1"}}, nil
	})
}

func TestDispatch_DuplicateTriggerRunsOnce(t *testing.T) {
	ledger := devkit.NewMemoryLedger()
	sink := &devkit.RecordingSink{}
	var calls int32
	dispatcher := newTestDispatcher(t, ledger, notifyingAction(sink, &calls, 0), nil)
	trigger := core.Trigger{Key: "T-100", EventID: "evt-1"}

	first, err := dispatcher.Dispatch(context.Background(), trigger)
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if first.Outcome != core.DispatchProcessed || first.Summary["order_id"] != "ord-1" {
		t.Fatalf("unexpected first result %#v", first)
	}

	trigger.EventID = "evt-2"
	second, err := dispatcher.Dispatch(context.Background(), trigger)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if second.Outcome != core.DispatchAlreadyProcessed || second.Summary["order_id"] != "ord-1" {
		t.Fatalf("expected already processed with stored summary, got %#v", second)
	}
	if calls != 1 || len(sink.Notifications()) != 1 {
		t.Fatalf("expected one action run and one notification, got %d and %d", calls, len(sink.Notifications()))
	}
}

func TestDispatch_ConcurrentDeliveriesRunActionOnce(t *testing.T) {
	ledger := devkit.NewMemoryLedger()
	sink := &devkit.RecordingSink{}
	var calls int32
	dispatcher := newTestDispatcher(t, ledger, notifyingAction(sink, &calls, 20*time.Millisecond), core.NewMemoryLocker())

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[core.DispatchOutcome]int{}
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			result, err := dispatcher.Dispatch(context.Background(), core.Trigger{Key: "T-200"})
			if err != nil {
				t.Errorf("dispatch: %v", err)
				return
			}
			mu.Lock()
			outcomes[result.Outcome]++
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected action to run exactly once, got %d", calls)
	}
	if outcomes[core.DispatchProcessed] != 1 {
		t.Fatalf("expected exactly one processed outcome, got %#v", outcomes)
	}
	if outcomes[core.DispatchProcessed]+outcomes[core.DispatchInProgress]+outcomes[core.DispatchAlreadyProcessed] != workers {
		t.Fatalf("unexpected outcomes %#v", outcomes)
	}
	if len(sink.Notifications()) != 1 {
		t.Fatalf("expected one notification, got %d", len(sink.Notifications()))
	}
}

func TestDispatch_FailureLeavesKeyRetryable(t *testing.T) {
	ledger := devkit.NewMemoryLedger()
	var calls int32
	action := core.ActionFunc(func(context.Context, core.Trigger) (core.ActionResult, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return core.ActionResult{}, errors.New("provider unavailable")
		}
		return core.ActionResult{Summary: map[string]any{"attempt": 2}}, nil
	})
	dispatcher := newTestDispatcher(t, ledger, action, nil)

	if _, err := dispatcher.Dispatch(context.Background(), core.Trigger{Key: "T-300"}); err == nil {
		t.Fatalf("expected action failure to surface")
	}
	record, found, err := ledger.Get(context.Background(), "T-300")
	if err != nil || !found || record.Processed || record.LastError == "" {
		t.Fatalf("expected unprocessed record with error, got %#v found=%t err=%v", record, found, err)
	}

	result, err := dispatcher.Dispatch(context.Background(), core.Trigger{Key: "T-300"})
	if err != nil || result.Outcome != core.DispatchProcessed {
		t.Fatalf("expected retry to succeed, got %#v %v", result, err)
	}
	record, _, _ = ledger.Get(context.Background(), "T-300")
	if !record.Processed || record.Attempts != 2 {
		t.Fatalf("expected processed record after two attempts, got %#v", record)
	}
}

func TestDispatch_IgnoresHoldTriggers(t *testing.T) {
	ledger := devkit.NewMemoryLedger()
	var calls int32
	dispatcher := newTestDispatcher(t, ledger, notifyingAction(&devkit.RecordingSink{}, &calls, 0), nil)

	for _, status := range []string{"HOLD", " hold "} {
		result, err := dispatcher.Dispatch(context.Background(), core.Trigger{Key: "T-400", Status: status})
		if err != nil || result.Outcome != core.DispatchIgnored || result.Reason == "" {
			t.Fatalf("expected ignored result, got %#v %v", result, err)
		}
	}
	if calls != 0 {
		t.Fatalf("ignored triggers must not run the action")
	}
	if _, found, _ := ledger.Get(context.Background(), "T-400"); found {
		t.Fatalf("ignored triggers must not touch the ledger")
	}
}

func TestDispatch_SkippedActionLeavesKeyOpen(t *testing.T) {
	ledger := devkit.NewMemoryLedger()
	var calls int32
	action := core.ActionFunc(func(_ context.Context, trigger core.Trigger) (core.ActionResult, error) {
		atomic.AddInt32(&calls, 1)
		if trigger.Payload["resource_descriptor"] == nil {
			return core.ActionResult{Skipped: true, Reason: "no placement requested"}, nil
		}
		return core.ActionResult{Summary: map[string]any{"order_id": "ord-9"}}, nil
	})
	dispatcher := newTestDispatcher(t, ledger, action, nil)

	first, err := dispatcher.Dispatch(context.Background(), core.Trigger{Key: "T-9", Payload: map[string]any{"note": "hi"}})
	if err != nil || first.Outcome != core.DispatchIgnored || first.Reason != "no placement requested" {
		t.Fatalf("expected skipped delivery to be ignored, got %#v %v", first, err)
	}
	if record, _, _ := ledger.Get(context.Background(), "T-9"); record.Processed {
		t.Fatalf("a skipped action must not settle the key")
	}

	second, err := dispatcher.Dispatch(context.Background(), core.Trigger{Key: "T-9", Payload: map[string]any{"resource_descriptor": "415"}})
	if err != nil || second.Outcome != core.DispatchProcessed || second.Summary["order_id"] != "ord-9" {
		t.Fatalf("expected the later request to run, got %#v %v", second, err)
	}
	if calls != 2 {
		t.Fatalf("expected the action to run for both deliveries, got %d", calls)
	}
	third, _ := dispatcher.Dispatch(context.Background(), core.Trigger{Key: "T-9", Payload: map[string]any{"resource_descriptor": "415"}})
	if third.Outcome != core.DispatchAlreadyProcessed {
		t.Fatalf("expected the settled key to stay settled, got %s", third.Outcome)
	}
}

func TestDispatch_HeldDistributedLockIsInProgress(t *testing.T) {
	locker := core.NewMemoryLocker()
	if _, err := locker.Acquire(context.Background(), distributedLockPrefix+"T-500", time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	var calls int32
	dispatcher := newTestDispatcher(t, devkit.NewMemoryLedger(), notifyingAction(&devkit.RecordingSink{}, &calls, 0), locker)

	result, err := dispatcher.Dispatch(context.Background(), core.Trigger{Key: "T-500"})
	if err != nil {
		t.Fatalf("lock contention must not be an error: %v", err)
	}
	if result.Outcome != core.DispatchInProgress || calls != 0 {
		t.Fatalf("expected in progress without running the action, got %#v", result)
	}
}

func TestDispatch_ActionOutlivesCallerCancellation(t *testing.T) {
	ledger := devkit.NewMemoryLedger()
	ctx, cancel := context.WithCancel(context.Background())
	var actionErr error
	action := core.ActionFunc(func(actionCtx context.Context, _ core.Trigger) (core.ActionResult, error) {
		cancel()
		time.Sleep(10 * time.Millisecond)
		actionErr = actionCtx.Err()
		return core.ActionResult{}, nil
	})
	dispatcher := newTestDispatcher(t, ledger, action, nil)

	result, err := dispatcher.Dispatch(ctx, core.Trigger{Key: "T-600"})
	if err != nil || result.Outcome != core.DispatchProcessed {
		t.Fatalf("expected processed result, got %#v %v", result, err)
	}
	if actionErr != nil {
		t.Fatalf("action context must not be canceled, got %v", actionErr)
	}
	if record, _, _ := ledger.Get(context.Background(), "T-600"); !record.Processed {
		t.Fatalf("expected processed record")
	}
}

func TestDispatch_RecoversActionPanics(t *testing.T) {
	ledger := devkit.NewMemoryLedger()
	action := core.ActionFunc(func(context.Context, core.Trigger) (core.ActionResult, error) {
		panic("boom")
	})
	dispatcher := newTestDispatcher(t, ledger, action, nil)

	if _, err := dispatcher.Dispatch(context.Background(), core.Trigger{Key: "T-700"}); !core.HasTextCode(err, core.ErrorActionFailed) {
		t.Fatalf("expected action failure from panic, got %v", err)
	}
	if record, found, _ := ledger.Get(context.Background(), "T-700"); !found || record.Processed {
		t.Fatalf("panicking action must leave key unprocessed")
	}
}

func TestDispatch_RequiresKey(t *testing.T) {
	dispatcher := newTestDispatcher(t, devkit.NewMemoryLedger(), core.ActionFunc(func(context.Context, core.Trigger) (core.ActionResult, error) {
		return core.ActionResult{}, nil
	}), nil)
	if _, err := dispatcher.Dispatch(context.Background(), core.Trigger{Key: "  "}); !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input error, got %v", err)
	}
}
