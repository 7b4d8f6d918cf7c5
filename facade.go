package backorder

import (
	"github.com/goliatone/go-backorder/adapters/gocommand"
	backordercmd "github.com/goliatone/go-backorder/command"
	"github.com/goliatone/go-backorder/core"
	"github.com/goliatone/go-backorder/query"
)

type Commands struct {
	TrackOrder      *backordercmd.TrackOrderCommand
	RunPollTick     *backordercmd.RunPollTickCommand
	DispatchTrigger *backordercmd.DispatchTriggerCommand
}

type Queries struct {
	ListPendingOrders   *query.ListPendingOrdersQuery
	GetOrder            *query.GetOrderQuery
	ListOrdersByOrigin  *query.ListOrdersByOriginQuery
	GetProcessedRequest *query.GetProcessedRequestQuery
}

// Facade groups the go-command handlers of a runtime.
type Facade struct {
	commands Commands
	queries  Queries
}

// NewFacade builds the command and query handlers. ListOrdersByOrigin is
// only offered when store also implements core.OrderLister.
func NewFacade(
	store core.OrderStore,
	ledger core.ProcessedLedger,
	ticker backordercmd.Ticker,
	dispatcher backordercmd.TriggerDispatcher,
) (*Facade, error) {
	if store == nil {
		return nil, runtimeError("backorder: order store is required")
	}
	if ledger == nil {
		return nil, runtimeError("backorder: processed ledger is required")
	}
	facade := &Facade{}
	facade.commands = Commands{TrackOrder: backordercmd.NewTrackOrderCommand(store)}
	if ticker != nil {
		facade.commands.RunPollTick = backordercmd.NewRunPollTickCommand(ticker)
	}
	if dispatcher != nil {
		facade.commands.DispatchTrigger = backordercmd.NewDispatchTriggerCommand(dispatcher)
	}
	facade.queries = Queries{
		ListPendingOrders:   query.NewListPendingOrdersQuery(store),
		GetOrder:            query.NewGetOrderQuery(store),
		GetProcessedRequest: query.NewGetProcessedRequestQuery(ledger),
	}
	if lister, ok := store.(core.OrderLister); ok {
		facade.queries.ListOrdersByOrigin = query.NewListOrdersByOriginQuery(lister)
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

// Handlers lists every handler for gocommand.Wire.
func (f *Facade) Handlers() gocommand.Handlers {
	if f == nil {
		return gocommand.Handlers{}
	}
	return gocommand.Handlers{
		TrackOrder:          f.commands.TrackOrder,
		RunPollTick:         f.commands.RunPollTick,
		DispatchTrigger:     f.commands.DispatchTrigger,
		ListPendingOrders:   f.queries.ListPendingOrders,
		GetOrder:            f.queries.GetOrder,
		ListOrdersByOrigin:  f.queries.ListOrdersByOrigin,
		GetProcessedRequest: f.queries.GetProcessedRequest,
	}
}
