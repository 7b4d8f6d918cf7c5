package inbound

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-backorder/core"
	glog "github.com/goliatone/go-logger/glog"
)

const distributedLockPrefix = "backorder:dispatch:"

type Settings struct {
	Ledger      core.ProcessedLedger
	Action      core.Action
	Locker      core.DistributedLocker
	LocalLocker core.LocalLocker

	LocalWait time.Duration
	LockTTL   time.Duration
	LockWait  time.Duration

	Logger          core.Logger
	LoggerProvider  core.LoggerProvider
	MetricsRecorder core.MetricsRecorder
}

func SettingsFromConfig(cfg core.DispatcherConfig) Settings {
	return Settings{
		LocalWait: cfg.LocalWaitDuration(),
		LockTTL:   cfg.LockTTLDuration(),
		LockWait:  cfg.LockWaitDuration(),
	}
}

// Dispatcher runs an action at most once per trigger key.
type Dispatcher struct {
	ledger      core.ProcessedLedger
	action      core.Action
	locker      core.DistributedLocker
	localLocker core.LocalLocker

	localWait time.Duration
	lockTTL   time.Duration
	lockWait  time.Duration
	observer  core.Observer
}

func NewDispatcher(settings Settings) (*Dispatcher, error) {
	if settings.Ledger == nil {
		return nil, misconfigured("inbound: processed ledger is required")
	}
	if settings.Action == nil {
		return nil, misconfigured("inbound: action is required")
	}
	_, logger := glog.Resolve("dispatcher", settings.LoggerProvider, settings.Logger)
	d := &Dispatcher{
		ledger:      settings.Ledger,
		action:      settings.Action,
		locker:      settings.Locker,
		localLocker: settings.LocalLocker,
		localWait:   settings.LocalWait,
		lockTTL:     settings.LockTTL,
		lockWait:    settings.LockWait,
		observer:    core.NewObserver("backorder", logger, settings.MetricsRecorder),
	}
	if d.locker == nil {
		d.locker = core.NewMemoryLocker()
	}
	if d.localLocker == nil {
		d.localLocker = NewKeyedLocker()
	}
	if d.localWait <= 0 {
		d.localWait = core.DefaultLocalLockWait
	}
	if d.lockTTL <= 0 {
		d.lockTTL = core.DefaultLockTTL
	}
	if d.lockWait <= 0 {
		d.lockWait = core.DefaultLockWait
	}
	return d, nil
}

// Dispatch handles one delivery of a trigger. Lock contention is reported
// as DispatchInProgress, not as an error. An error means the action (or
// the ledger) failed and the key stays unprocessed.
func (d *Dispatcher) Dispatch(ctx context.Context, trigger core.Trigger) (core.DispatchResult, error) {
	if d == nil {
		return core.DispatchResult{}, misconfigured("inbound: dispatcher is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	trigger.Key = strings.TrimSpace(trigger.Key)
	if trigger.Key == "" {
		return core.DispatchResult{}, invalidTrigger("inbound: trigger key is required", http.StatusBadRequest, map[string]any{
			"event_id": trigger.EventID,
		})
	}

	startedAt := time.Now()
	result, err := d.dispatch(ctx, trigger)
	d.observer.ObserveOperation(ctx, startedAt, core.MetricDispatch, err, map[string]any{
		"key":      trigger.Key,
		"event_id": trigger.EventID,
		"outcome":  string(result.Outcome),
	})
	return result, err
}

func (d *Dispatcher) dispatch(ctx context.Context, trigger core.Trigger) (core.DispatchResult, error) {
	result := core.DispatchResult{Key: trigger.Key}
	if reason := ignoreReason(trigger); reason != "" {
		result.Outcome = core.DispatchIgnored
		result.Reason = reason
		return result, nil
	}

	release, ok := d.localLocker.Acquire(ctx, trigger.Key, d.localWait)
	if !ok {
		result.Outcome = core.DispatchInProgress
		result.Reason = "local lock busy"
		return result, nil
	}
	defer release()

	handle, err := core.AcquireWithin(ctx, d.locker, distributedLockPrefix+trigger.Key, d.lockTTL, d.lockWait)
	if err != nil {
		if core.HasTextCode(err, core.ErrorLockHeld) {
			result.Outcome = core.DispatchInProgress
			result.Reason = "distributed lock busy"
			return result, nil
		}
		return result, stageFailure(err, stageLock, trigger.Key)
	}
	defer func() {
		if unlockErr := handle.Unlock(context.WithoutCancel(ctx)); unlockErr != nil {
			d.observer.Warn(ctx, "release distributed lock failed", map[string]any{
				"key":   trigger.Key,
				"error": unlockErr.Error(),
			})
		}
	}()

	record, found, err := d.ledger.Get(ctx, trigger.Key)
	if err != nil {
		return result, stageFailure(err, stageLookup, trigger.Key)
	}
	if found && record.Processed {
		result.Outcome = core.DispatchAlreadyProcessed
		result.Summary = record.ResultSummary
		return result, nil
	}
	if _, err := d.ledger.Begin(ctx, trigger.Key); err != nil {
		return result, stageFailure(err, stageBegin, trigger.Key)
	}

	// the action runs to completion even if the caller goes away
	actionResult, err := d.execute(context.WithoutCancel(ctx), trigger)
	if err == nil && actionResult.Skipped {
		// nothing happened, so the key stays open for a later delivery
		result.Outcome = core.DispatchIgnored
		result.Reason = actionResult.Reason
		if result.Reason == "" {
			result.Reason = "action skipped"
		}
		result.Summary = actionResult.Summary
		return result, nil
	}
	if err != nil {
		if failErr := d.ledger.RecordFailure(context.WithoutCancel(ctx), trigger.Key, err.Error()); failErr != nil {
			d.observer.Error(ctx, "record dispatch failure failed", map[string]any{
				"key":   trigger.Key,
				"error": failErr.Error(),
			})
		}
		return result, stageFailure(err, stageAction, trigger.Key)
	}

	summary := actionResult.Summary
	if summary == nil {
		summary = map[string]any{}
	}
	if err := d.ledger.MarkProcessed(context.WithoutCancel(ctx), trigger.Key, summary); err != nil {
		return result, stageFailure(err, stageSettle, trigger.Key)
	}
	result.Outcome = core.DispatchProcessed
	result.Summary = summary
	return result, nil
}

func (d *Dispatcher) execute(ctx context.Context, trigger core.Trigger) (result core.ActionResult, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("inbound: action panic: %v", recovered)
		}
	}()
	return d.action.Execute(ctx, trigger)
}

func ignoreReason(trigger core.Trigger) string {
	if strings.EqualFold(strings.TrimSpace(trigger.Status), core.TriggerStatusHold) {
		return "trigger status is hold"
	}
	return ""
}
