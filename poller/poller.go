// Package poller watches pending backorders on a fixed cadence, detects
// terminal provider statuses and hands finished orders to the completion
// pipeline exactly once.
package poller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-backorder/core"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Settings struct {
	Store     core.OrderStore
	Provider  core.StatusProvider
	Completer core.Completer
	Sink      core.NotificationSink

	Interval       time.Duration
	ErrorBackoff   time.Duration
	NotifyInterval time.Duration
	TerminalStatus string
	Now            func() time.Time

	Logger          core.Logger
	LoggerProvider  core.LoggerProvider
	MetricsRecorder core.MetricsRecorder
}

func SettingsFromConfig(cfg core.PollerConfig) Settings {
	return Settings{
		Interval:       cfg.IntervalDuration(),
		ErrorBackoff:   cfg.ErrorBackoffDuration(),
		NotifyInterval: cfg.NotifyIntervalDuration(),
		TerminalStatus: cfg.TerminalMarker(),
	}
}

// Poller is safe for concurrent use. Ticks never overlap: a manual Tick
// waits for the loop's in-flight tick and vice versa.
type Poller struct {
	store     core.OrderStore
	provider  core.StatusProvider
	completer core.Completer
	sink      core.NotificationSink

	interval       time.Duration
	errorBackoff   time.Duration
	notifyInterval time.Duration
	terminalStatus string
	now            func() time.Time
	observer       core.Observer

	tickMu  sync.Mutex
	handled map[string]struct{}

	loopMu  sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func New(settings Settings) (*Poller, error) {
	if settings.Store == nil {
		return nil, core.NewError("poller requires an order store", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	if settings.Provider == nil {
		return nil, core.NewError("poller requires a status provider", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	if settings.Completer == nil {
		return nil, core.NewError("poller requires a completer", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	_, logger := glog.Resolve("poller", settings.LoggerProvider, settings.Logger)
	p := &Poller{
		store:          settings.Store,
		provider:       settings.Provider,
		completer:      settings.Completer,
		sink:           settings.Sink,
		interval:       settings.Interval,
		errorBackoff:   settings.ErrorBackoff,
		notifyInterval: settings.NotifyInterval,
		terminalStatus: strings.TrimSpace(settings.TerminalStatus),
		now:            settings.Now,
		observer:       core.NewObserver("backorder", logger, settings.MetricsRecorder),
		handled:        map[string]struct{}{},
	}
	if p.interval <= 0 {
		p.interval = core.DefaultPollInterval
	}
	if p.errorBackoff <= 0 {
		p.errorBackoff = core.DefaultErrorBackoff
	}
	if p.notifyInterval <= 0 {
		p.notifyInterval = core.DefaultNotifyInterval
	}
	if p.terminalStatus == "" {
		p.terminalStatus = core.DefaultTerminalStatus
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	return p, nil
}

// Tick polls every pending order once, sequentially and in listing order.
// Provider failures are logged and skipped; only a failure to list pending
// orders fails the tick.
func (p *Poller) Tick(ctx context.Context) (core.TickStats, error) {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	startedAt := time.Now()
	stats := core.TickStats{}
	pending, err := p.store.ListPending(ctx)
	if err != nil {
		err = core.WrapError(err, goerrors.CategoryInternal, "list pending orders", core.ErrorInternal)
		p.observer.ObserveOperation(ctx, startedAt, core.MetricPollTick, err, nil)
		return stats, err
	}
	stats.Pending = len(pending)

	for _, order := range pending {
		if _, done := p.handled[order.OrderID]; done {
			continue
		}
		p.pollOrder(ctx, order, &stats)
	}

	p.observer.ObserveOperation(ctx, startedAt, core.MetricPollTick, nil, map[string]any{
		"pending":        stats.Pending,
		"polled":         stats.Polled,
		"provider_fails": stats.ProviderFails,
		"completed":      stats.Completed,
		"stopped":        stats.Stopped,
		"notified":       stats.Notified,
	})
	return stats, nil
}

func (p *Poller) pollOrder(ctx context.Context, order core.TrackedOrder, stats *core.TickStats) {
	detail, err := p.provider.GetOrderDetail(ctx, order.OrderID)
	if err != nil {
		stats.ProviderFails++
		p.observer.Warn(ctx, "order status check failed", map[string]any{
			"order_id":   order.OrderID,
			"error":      err.Error(),
			"error_kind": string(core.ClassifyError(err)),
		})
		return
	}
	stats.Polled++

	remote := strings.TrimSpace(detail.RemoteStatus)
	if remote != order.LastKnownRemoteStatus {
		stats.Transitions++
		p.observer.Info(ctx, "remote order status changed", map[string]any{
			"order_id": order.OrderID,
			"from":     order.LastKnownRemoteStatus,
			"to":       remote,
		})
		if err := p.store.UpdateLastKnownStatus(ctx, order.OrderID, remote); err != nil {
			p.observer.Error(ctx, "persist remote status failed", map[string]any{
				"order_id": order.OrderID,
				"error":    err.Error(),
			})
		}
	}

	if remote == p.terminalStatus {
		p.complete(ctx, order, detail, stats)
		return
	}

	now := p.now()
	if detail.PastDesiredDate(now) {
		p.stopOrder(ctx, order, detail, now, stats)
		return
	}

	if order.LastNotifiedAt != nil && now.Sub(*order.LastNotifiedAt) < p.notifyInterval {
		return
	}
	p.notify(ctx, statusNotification(order, detail, now, p.notifyInterval))
	if err := p.store.UpdateLastNotified(ctx, order.OrderID, now); err != nil {
		p.observer.Error(ctx, "persist notification time failed", map[string]any{
			"order_id": order.OrderID,
			"error":    err.Error(),
		})
	}
	stats.Notified++
}

func (p *Poller) complete(ctx context.Context, order core.TrackedOrder, detail core.OrderDetail, stats *core.TickStats) {
	startedAt := time.Now()
	report, err := p.completer.Complete(ctx, order, detail)
	// a pipeline that failed before any side effect is retried on the next tick
	if err == nil || report.Started {
		p.handled[order.OrderID] = struct{}{}
	}
	outcome := "completed"
	if report.Skipped {
		outcome = "skipped"
	}
	p.observer.ObserveOperation(ctx, startedAt, core.MetricPollOrder, err, map[string]any{
		"order_id": order.OrderID,
		"outcome":  outcome,
	})
	if err == nil && !report.Skipped {
		stats.Completed++
	}
}

func (p *Poller) stopOrder(ctx context.Context, order core.TrackedOrder, detail core.OrderDetail, now time.Time, stats *core.TickStats) {
	p.handled[order.OrderID] = struct{}{}
	err := p.store.UpdateStatus(ctx, order.OrderID, core.OrderStatusStopped, &now)
	if err != nil {
		if !core.HasTextCode(err, core.ErrorOrderAlreadyTerminal) {
			p.observer.Error(ctx, "stop order failed", map[string]any{
				"order_id": order.OrderID,
				"error":    err.Error(),
			})
		}
		return
	}
	stats.Stopped++
	p.observer.Info(ctx, "order passed its desired completion date, tracking stopped", map[string]any{
		"order_id": order.OrderID,
		"remote":   detail.RemoteStatus,
	})
	p.notify(ctx, stoppedNotification(order, detail))
}

func (p *Poller) notify(ctx context.Context, notification core.Notification) {
	if p.sink == nil || strings.TrimSpace(notification.OriginReference) == "" {
		return
	}
	p.sink.Notify(ctx, notification)
}

// Start runs the tick loop in its own goroutine until Stop is called or ctx
// is done. Calling Start on a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.loopMu.Lock()
	defer p.loopMu.Unlock()
	if p.running {
		p.observer.Warn(ctx, "poller already running", nil)
		return
	}
	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(ctx, p.stop, p.done)
	p.observer.Info(ctx, "poller started", map[string]any{
		"interval":        p.interval.String(),
		"notify_interval": p.notifyInterval.String(),
	})
}

// Stop signals the loop and waits for the in-flight tick to finish.
func (p *Poller) Stop() {
	p.loopMu.Lock()
	if !p.running {
		p.loopMu.Unlock()
		return
	}
	p.running = false
	close(p.stop)
	done := p.done
	p.loopMu.Unlock()

	<-done
	p.observer.Info(context.Background(), "poller stopped", nil)
}

func (p *Poller) Running() bool {
	p.loopMu.Lock()
	defer p.loopMu.Unlock()
	return p.running
}

func (p *Poller) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	tickCtx := context.WithoutCancel(ctx)
	for {
		delay := p.interval
		if err := p.safeTick(tickCtx); err != nil {
			delay = p.errorBackoff
			p.observer.Error(ctx, "poll tick failed, backing off", map[string]any{
				"error":   err.Error(),
				"backoff": delay.String(),
			})
		}

		timer := time.NewTimer(delay)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			p.loopMu.Lock()
			p.running = false
			p.loopMu.Unlock()
			return
		case <-timer.C:
		}
	}
}

func (p *Poller) safeTick(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = core.NewError(fmt.Sprintf("poll tick panic: %v", recovered), goerrors.CategoryInternal, core.ErrorInternal)
		}
	}()
	_, err = p.Tick(ctx)
	return err
}
