package command

import (
	"context"

	"github.com/goliatone/go-backorder/core"
	gocmd "github.com/goliatone/go-command"
)

type OrderInserter interface {
	InsertOrGet(ctx context.Context, order core.TrackedOrder) (core.TrackedOrder, bool, error)
}

type Ticker interface {
	Tick(ctx context.Context) (core.TickStats, error)
}

type TriggerDispatcher interface {
	Dispatch(ctx context.Context, trigger core.Trigger) (core.DispatchResult, error)
}

type TrackOrderCommand struct {
	store OrderInserter
}

func NewTrackOrderCommand(store OrderInserter) *TrackOrderCommand {
	return &TrackOrderCommand{store: store}
}

func (c *TrackOrderCommand) Execute(ctx context.Context, msg TrackOrderMessage) error {
	if c == nil || c.store == nil {
		return missingDependency("order store")
	}
	order := msg.Order
	if order.Status == "" {
		order.Status = core.OrderStatusPending
	}
	stored, existed, err := c.store.InsertOrGet(ctx, order)
	if err != nil {
		return err
	}
	storeResult(ctx, TrackOrderResult{Order: stored, Created: !existed})
	return nil
}

type RunPollTickCommand struct {
	ticker Ticker
}

func NewRunPollTickCommand(ticker Ticker) *RunPollTickCommand {
	return &RunPollTickCommand{ticker: ticker}
}

func (c *RunPollTickCommand) Execute(ctx context.Context, _ RunPollTickMessage) error {
	if c == nil || c.ticker == nil {
		return missingDependency("poller")
	}
	stats, err := c.ticker.Tick(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, stats)
	return nil
}

type DispatchTriggerCommand struct {
	dispatcher TriggerDispatcher
}

func NewDispatchTriggerCommand(dispatcher TriggerDispatcher) *DispatchTriggerCommand {
	return &DispatchTriggerCommand{dispatcher: dispatcher}
}

func (c *DispatchTriggerCommand) Execute(ctx context.Context, msg DispatchTriggerMessage) error {
	if c == nil || c.dispatcher == nil {
		return missingDependency("trigger dispatcher")
	}
	result, err := c.dispatcher.Dispatch(ctx, msg.Trigger)
	if err != nil {
		return err
	}
	storeResult(ctx, result)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
