package query

import "strings"

const (
	TypeListPendingOrders   = "backorder.query.orders.pending"
	TypeGetOrder            = "backorder.query.order.get"
	TypeListOrdersByOrigin  = "backorder.query.orders.by_origin"
	TypeGetProcessedRequest = "backorder.query.processed_request.get"
)

type ListPendingOrdersMessage struct{}

func (ListPendingOrdersMessage) Type() string { return TypeListPendingOrders }

type GetOrderMessage struct {
	OrderID string
}

func (GetOrderMessage) Type() string { return TypeGetOrder }

func (m GetOrderMessage) Validate() error {
	if strings.TrimSpace(m.OrderID) == "" {
		return queryValidationError("order_id", "is required")
	}
	return nil
}

type ListOrdersByOriginMessage struct {
	OriginReference string
}

func (ListOrdersByOriginMessage) Type() string { return TypeListOrdersByOrigin }

func (m ListOrdersByOriginMessage) Validate() error {
	if strings.TrimSpace(m.OriginReference) == "" {
		return queryValidationError("origin_reference", "is required")
	}
	return nil
}

type GetProcessedRequestMessage struct {
	Key string
}

func (GetProcessedRequestMessage) Type() string { return TypeGetProcessedRequest }

func (m GetProcessedRequestMessage) Validate() error {
	if strings.TrimSpace(m.Key) == "" {
		return queryValidationError("key", "is required")
	}
	return nil
}
