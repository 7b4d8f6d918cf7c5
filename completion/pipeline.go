// Package completion turns a fulfilled order into registered inventory:
// every fulfilled unit is registered then restricted, a shortfall is
// re-ordered and the origin gets exactly one summary notification.
package completion

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-backorder/core"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Settings struct {
	Store      core.OrderStore
	Registrar  core.Registrar
	Classifier core.UnitClassifier
	Placer     core.OrderPlacer
	Sink       core.NotificationSink
	Now        func() time.Time

	Logger          core.Logger
	LoggerProvider  core.LoggerProvider
	MetricsRecorder core.MetricsRecorder
}

type Pipeline struct {
	store      core.OrderStore
	registrar  core.Registrar
	classifier core.UnitClassifier
	placer     core.OrderPlacer
	sink       core.NotificationSink
	now        func() time.Time
	observer   core.Observer
}

func New(settings Settings) (*Pipeline, error) {
	if settings.Store == nil {
		return nil, core.NewError("completion pipeline requires an order store", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	if settings.Registrar == nil {
		return nil, core.NewError("completion pipeline requires a registrar", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	_, logger := glog.Resolve("completion", settings.LoggerProvider, settings.Logger)
	pipeline := &Pipeline{
		store:      settings.Store,
		registrar:  settings.Registrar,
		classifier: settings.Classifier,
		placer:     settings.Placer,
		sink:       settings.Sink,
		now:        settings.Now,
		observer:   core.NewObserver("backorder", logger, settings.MetricsRecorder),
	}
	if pipeline.classifier == nil {
		pipeline.classifier = idClassifier{}
	}
	if pipeline.now == nil {
		pipeline.now = func() time.Time { return time.Now().UTC() }
	}
	return pipeline, nil
}

// Complete finalises a backordered order whose provider status reached the
// terminal marker. The stored row is re-read first; orders that are no
// longer pending are skipped without side effects.
func (p *Pipeline) Complete(ctx context.Context, order core.TrackedOrder, detail core.OrderDetail) (core.CompletionReport, error) {
	current, err := p.store.Get(ctx, order.OrderID)
	if err != nil {
		return core.CompletionReport{OrderID: order.OrderID, OriginReference: order.OriginReference}, err
	}
	if current.Status.Terminal() {
		p.observer.Info(ctx, "completion skipped, order already terminal", map[string]any{
			"order_id": current.OrderID,
			"status":   string(current.Status),
		})
		return core.CompletionReport{
			OrderID:         current.OrderID,
			OriginReference: current.OriginReference,
			Requested:       current.RequestedQuantity,
			Skipped:         true,
		}, nil
	}
	return p.CompleteUnits(ctx, current, detail.FulfilledUnits())
}

// CompleteUnits runs the pipeline for an explicit list of fulfilled unit
// ids. The immediate fulfilment path calls it directly, in which case the
// order may not be tracked in the store at all.
func (p *Pipeline) CompleteUnits(ctx context.Context, order core.TrackedOrder, unitIDs []string) (core.CompletionReport, error) {
	startedAt := time.Now()
	report := core.CompletionReport{
		OrderID:         order.OrderID,
		OriginReference: order.OriginReference,
		Requested:       order.RequestedQuantity,
		Fulfilled:       len(unitIDs),
		Started:         true,
	}

	if len(unitIDs) == 0 {
		report.NoUnits = true
		p.observer.Warn(ctx, "order reached terminal status without fulfilled units", map[string]any{
			"order_id": order.OrderID,
		})
		notify, err := p.finalise(ctx, &report)
		if notify {
			p.notify(ctx, noUnitsNotification(order, report))
		}
		p.observer.ObserveOperation(ctx, startedAt, core.MetricCompletion, err, map[string]any{
			"order_id": order.OrderID,
			"outcome":  "no_units",
		})
		return report, err
	}

	registered := p.register(ctx, order, unitIDs, &report)
	p.restrict(ctx, registered, &report)
	p.reorderShortfall(ctx, order, &report)

	notify, err := p.finalise(ctx, &report)
	if notify {
		p.notify(ctx, completedNotification(order, report))
	}
	p.observer.ObserveOperation(ctx, startedAt, core.MetricCompletion, err, map[string]any{
		"order_id":           order.OrderID,
		"outcome":            completionOutcome(report),
		"fulfilled":          report.Fulfilled,
		"requested":          report.Requested,
		"failed_additions":   len(report.FailedAdditions),
		"shortfall_order_id": report.ShortfallOrderID,
	})
	return report, err
}

func (p *Pipeline) register(ctx context.Context, order core.TrackedOrder, unitIDs []string, report *core.CompletionReport) []core.Unit {
	registered := make([]core.Unit, 0, len(unitIDs))
	for _, unitID := range unitIDs {
		unit := p.classifier.Classify(unitID)
		if strings.TrimSpace(unit.ID) == "" {
			unit.ID = unitID
		}
		unit.OwnerReference = order.OrderID
		result := p.registrar.Register(ctx, unit)
		if !result.Success {
			report.FailedAdditions = append(report.FailedAdditions, unitFailure(unit.ID, result))
			continue
		}
		report.SuccessfulAdditions = append(report.SuccessfulAdditions, unit.ID)
		registered = append(registered, unit)
	}
	return registered
}

func (p *Pipeline) restrict(ctx context.Context, units []core.Unit, report *core.CompletionReport) {
	for _, unit := range units {
		result := p.registrar.Restrict(ctx, unit)
		if !result.Success {
			report.FailedRestrictions = append(report.FailedRestrictions, unitFailure(unit.ID, result))
			p.observer.Warn(ctx, "unit registered but restriction failed", map[string]any{
				"unit_id": unit.ID,
				"error":   result.Error(),
			})
			continue
		}
		report.SuccessfulRestrictions = append(report.SuccessfulRestrictions, unit.ID)
	}
}

func (p *Pipeline) reorderShortfall(ctx context.Context, order core.TrackedOrder, report *core.CompletionReport) {
	shortfall := report.Shortfall()
	if shortfall == 0 {
		return
	}
	report.ShortfallQuantity = shortfall
	if p.placer == nil {
		report.ShortfallError = "order placer is not configured"
		return
	}
	orderID, err := p.placer.PlaceOrder(ctx, core.PlacementRequest{
		ResourceDescriptor: order.ResourceDescriptor,
		CarrierGroup:       order.CarrierGroup,
		Quantity:           shortfall,
		OriginReference:    order.OriginReference,
	})
	if err != nil {
		report.ShortfallError = err.Error()
		p.observer.Error(ctx, "shortfall placement failed", map[string]any{
			"order_id":  order.OrderID,
			"shortfall": shortfall,
			"error":     err.Error(),
		})
		return
	}
	report.ShortfallOrderID = orderID
	_, _, err = p.store.InsertOrGet(ctx, core.TrackedOrder{
		OrderID:            orderID,
		OriginReference:    order.OriginReference,
		ResourceDescriptor: order.ResourceDescriptor,
		CarrierGroup:       order.CarrierGroup,
		RequestedQuantity:  shortfall,
		Status:             core.OrderStatusPending,
	})
	if err != nil {
		report.ShortfallError = "shortfall order placed but not tracked: " + err.Error()
		p.observer.Error(ctx, "shortfall order could not be tracked", map[string]any{
			"order_id":           order.OrderID,
			"shortfall_order_id": orderID,
			"error":              err.Error(),
		})
	}
}

// finalise persists the completed status. It reports whether the caller
// still owns the completion and should notify.
func (p *Pipeline) finalise(ctx context.Context, report *core.CompletionReport) (bool, error) {
	now := p.now()
	report.CompletedAt = now
	err := p.store.UpdateStatus(ctx, report.OrderID, core.OrderStatusCompleted, &now)
	switch {
	case err == nil:
		return true, nil
	case core.IsNotFound(err):
		// untracked immediate fulfilment
		return true, nil
	case core.HasTextCode(err, core.ErrorOrderAlreadyTerminal):
		p.observer.Warn(ctx, "order finalised concurrently", map[string]any{"order_id": report.OrderID})
		return false, nil
	default:
		return true, core.WrapError(err, goerrors.CategoryInternal, "persist completed order", core.ErrorInternal)
	}
}

func (p *Pipeline) notify(ctx context.Context, notification core.Notification) {
	if p.sink == nil || strings.TrimSpace(notification.OriginReference) == "" {
		return
	}
	p.sink.Notify(ctx, notification)
}

func unitFailure(unitID string, result core.CallResult) core.UnitFailure {
	reason := result.Error()
	if reason == "" {
		reason = "unknown failure"
	}
	return core.UnitFailure{UnitID: unitID, Kind: result.Kind, Reason: reason}
}

func completionOutcome(report core.CompletionReport) string {
	switch {
	case len(report.SuccessfulAdditions) == 0:
		return "failed"
	case len(report.FailedAdditions) > 0 || report.ShortfallError != "":
		return "partial"
	default:
		return "completed"
	}
}

type idClassifier struct{}

func (idClassifier) Classify(unitID string) core.Unit { return core.Unit{ID: unitID} }

var _ core.Completer = (*Pipeline)(nil)
