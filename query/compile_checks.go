package query

import (
	"github.com/goliatone/go-backorder/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[ListPendingOrdersMessage, []core.TrackedOrder]     = (*ListPendingOrdersQuery)(nil)
	_ gocmd.Querier[GetOrderMessage, core.TrackedOrder]                = (*GetOrderQuery)(nil)
	_ gocmd.Querier[ListOrdersByOriginMessage, []core.TrackedOrder]    = (*ListOrdersByOriginQuery)(nil)
	_ gocmd.Querier[GetProcessedRequestMessage, core.ProcessedRequest] = (*GetProcessedRequestQuery)(nil)
	_ ProcessedRequestReader                                           = core.ProcessedLedger(nil)
)
