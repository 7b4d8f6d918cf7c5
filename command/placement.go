package command

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-backorder/core"
	glog "github.com/goliatone/go-logger/glog"
)

type PlacementSettings struct {
	Placer core.OrderPlacer
	Store  OrderInserter
	Sink   core.NotificationSink

	Logger          core.Logger
	LoggerProvider  core.LoggerProvider
	MetricsRecorder core.MetricsRecorder
}

// PlacementAction places a backorder for the resource named in a trigger's
// payload and starts tracking it. Triggers without a resource descriptor
// are skipped and leave the trigger key unsettled.
type PlacementAction struct {
	placer   core.OrderPlacer
	store    OrderInserter
	sink     core.NotificationSink
	observer core.Observer
}

func NewPlacementAction(settings PlacementSettings) (*PlacementAction, error) {
	if settings.Placer == nil {
		return nil, missingDependency("order placer")
	}
	if settings.Store == nil {
		return nil, missingDependency("order store")
	}
	_, logger := glog.Resolve("placement", settings.LoggerProvider, settings.Logger)
	return &PlacementAction{
		placer:   settings.Placer,
		store:    settings.Store,
		sink:     settings.Sink,
		observer: core.NewObserver("backorder", logger, settings.MetricsRecorder),
	}, nil
}

func (a *PlacementAction) Execute(ctx context.Context, trigger core.Trigger) (core.ActionResult, error) {
	descriptor := payloadString(trigger.Payload, "resource_descriptor")
	if descriptor == "" {
		return core.ActionResult{Skipped: true, Reason: "no placement requested"}, nil
	}
	quantity, err := payloadInt(trigger.Payload, "quantity")
	if err != nil {
		return core.ActionResult{}, invalidField("quantity", err.Error())
	}
	request := core.PlacementRequest{
		ResourceDescriptor: descriptor,
		CarrierGroup:       payloadString(trigger.Payload, "carrier_group"),
		Quantity:           quantity,
		OriginReference:    trigger.Key,
	}
	if err := request.Validate(); err != nil {
		return core.ActionResult{}, invalidPayload(err, "placement request")
	}

	startedAt := time.Now()
	orderID, err := a.placer.PlaceOrder(ctx, request)
	a.observer.ObserveOperation(ctx, startedAt, core.MetricProviderPlaceOrder, err, map[string]any{
		"origin_reference":    request.OriginReference,
		"resource_descriptor": request.ResourceDescriptor,
		"quantity":            request.Quantity,
	})
	if err != nil {
		return core.ActionResult{}, err
	}

	order, existed, err := a.store.InsertOrGet(ctx, core.TrackedOrder{
		OrderID:            orderID,
		OriginReference:    request.OriginReference,
		ResourceDescriptor: request.ResourceDescriptor,
		CarrierGroup:       request.CarrierGroup,
		RequestedQuantity:  request.Quantity,
		Status:             core.OrderStatusPending,
	})
	if err != nil {
		return core.ActionResult{}, err
	}

	if a.sink != nil {
		a.sink.Notify(ctx, core.Notification{
			OriginReference: request.OriginReference,
			OrderID:         orderID,
			Kind:            core.NotificationPlacement,
			Internal: fmt.Sprintf("Backorder %s placed for %d units of %s. Status updates follow every few hours until it closes.",
				orderID, request.Quantity, request.ResourceDescriptor),
			Public: fmt.Sprintf("We ordered %d numbers for you and will update this ticket when they are ready.", request.Quantity),
		})
	}

	return core.ActionResult{Summary: map[string]any{
		"order_id":            order.OrderID,
		"resource_descriptor": order.ResourceDescriptor,
		"quantity":            order.RequestedQuantity,
		"created":             !existed,
	}}, nil
}

func payloadString(payload map[string]any, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func payloadInt(payload map[string]any, key string) (int, error) {
	value, ok := payload[key]
	if !ok || value == nil {
		return 0, fmt.Errorf("is required")
	}
	switch typed := value.(type) {
	case int:
		return typed, nil
	case int64:
		return int(typed), nil
	case float64:
		if typed != math.Trunc(typed) {
			return 0, fmt.Errorf("must be a whole number")
		}
		return int(typed), nil
	case json.Number:
		parsed, err := strconv.Atoi(typed.String())
		if err != nil {
			return 0, fmt.Errorf("must be a whole number")
		}
		return parsed, nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0, fmt.Errorf("must be a whole number")
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}
