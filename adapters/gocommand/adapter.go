package gocommand

import (
	"context"
	"fmt"
	"strings"

	backordercmd "github.com/goliatone/go-backorder/command"
	"github.com/goliatone/go-backorder/core"
	"github.com/goliatone/go-backorder/query"
	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeCommandFunc[T any](handler command.CommandFunc[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func SubscribeQueryFunc[T any, R any](qry command.QueryFunc[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// DispatchWithResult dispatches msg and returns what the handler stored in
// the result collector.
func DispatchWithResult[T any, R any](ctx context.Context, msg T) (R, error) {
	var zero R
	collector := command.NewResult[R]()
	if err := Dispatch(command.ContextWithResult(ctx, collector), msg); err != nil {
		return zero, err
	}
	value, ok := collector.Load()
	if !ok {
		return zero, fmt.Errorf("gocommand: handler for %T stored no result", msg)
	}
	return value, nil
}

// Handlers groups the backorder commands and queries exposed on the bus.
// Nil entries are skipped.
type Handlers struct {
	TrackOrder      *backordercmd.TrackOrderCommand
	RunPollTick     *backordercmd.RunPollTickCommand
	DispatchTrigger *backordercmd.DispatchTriggerCommand

	ListPendingOrders   *query.ListPendingOrdersQuery
	GetOrder            *query.GetOrderQuery
	ListOrdersByOrigin  *query.ListOrdersByOriginQuery
	GetProcessedRequest *query.GetProcessedRequestQuery
}

// Wiring holds the subscriptions created by Wire.
type Wiring struct {
	subscriptions []commanddispatcher.Subscription
}

func (w *Wiring) Len() int {
	if w == nil {
		return 0
	}
	return len(w.subscriptions)
}

func (w *Wiring) Close() {
	if w == nil {
		return
	}
	for _, subscription := range w.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	w.subscriptions = nil
}

// Wire registers and subscribes every configured backorder handler. On
// failure the subscriptions made so far are released.
func Wire(adapter *RegistryAdapter, handlers Handlers, runnerOpts ...runner.Option) (*Wiring, error) {
	wiring := &Wiring{}
	add := func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			wiring.Close()
			return err
		}
		wiring.subscriptions = append(wiring.subscriptions, subscription)
		return nil
	}

	if handlers.TrackOrder != nil {
		if err := add(RegisterAndSubscribe[backordercmd.TrackOrderMessage](adapter, handlers.TrackOrder, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.RunPollTick != nil {
		if err := add(RegisterAndSubscribe[backordercmd.RunPollTickMessage](adapter, handlers.RunPollTick, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.DispatchTrigger != nil {
		if err := add(RegisterAndSubscribe[backordercmd.DispatchTriggerMessage](adapter, handlers.DispatchTrigger, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.ListPendingOrders != nil {
		if err := add(RegisterAndSubscribeQuery[query.ListPendingOrdersMessage, []core.TrackedOrder](adapter, handlers.ListPendingOrders, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.GetOrder != nil {
		if err := add(RegisterAndSubscribeQuery[query.GetOrderMessage, core.TrackedOrder](adapter, handlers.GetOrder, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.ListOrdersByOrigin != nil {
		if err := add(RegisterAndSubscribeQuery[query.ListOrdersByOriginMessage, []core.TrackedOrder](adapter, handlers.ListOrdersByOrigin, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.GetProcessedRequest != nil {
		if err := add(RegisterAndSubscribeQuery[query.GetProcessedRequestMessage, core.ProcessedRequest](adapter, handlers.GetProcessedRequest, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	return wiring, nil
}

// TrackOrder dispatches a TrackOrderMessage through the bus.
func TrackOrder(ctx context.Context, order core.TrackedOrder) (backordercmd.TrackOrderResult, error) {
	return DispatchWithResult[backordercmd.TrackOrderMessage, backordercmd.TrackOrderResult](ctx, backordercmd.TrackOrderMessage{Order: order})
}

// RunPollTick dispatches one poller pass through the bus.
func RunPollTick(ctx context.Context) (core.TickStats, error) {
	return DispatchWithResult[backordercmd.RunPollTickMessage, core.TickStats](ctx, backordercmd.RunPollTickMessage{})
}

// DispatchTrigger routes a trigger through the bus.
func DispatchTrigger(ctx context.Context, trigger core.Trigger) (core.DispatchResult, error) {
	return DispatchWithResult[backordercmd.DispatchTriggerMessage, core.DispatchResult](ctx, backordercmd.DispatchTriggerMessage{Trigger: trigger})
}
