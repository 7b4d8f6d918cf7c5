package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-backorder/core"
)

type PendingOrderReader interface {
	ListPending(ctx context.Context) ([]core.TrackedOrder, error)
}

type OrderReader interface {
	Get(ctx context.Context, orderID string) (core.TrackedOrder, error)
}

type ProcessedRequestReader interface {
	Get(ctx context.Context, key string) (core.ProcessedRequest, bool, error)
}

type ListPendingOrdersQuery struct {
	reader PendingOrderReader
}

func NewListPendingOrdersQuery(reader PendingOrderReader) *ListPendingOrdersQuery {
	return &ListPendingOrdersQuery{reader: reader}
}

func (q *ListPendingOrdersQuery) Query(ctx context.Context, _ ListPendingOrdersMessage) ([]core.TrackedOrder, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: pending order reader is required")
	}
	return q.reader.ListPending(ctx)
}

type GetOrderQuery struct {
	reader OrderReader
}

func NewGetOrderQuery(reader OrderReader) *GetOrderQuery {
	return &GetOrderQuery{reader: reader}
}

func (q *GetOrderQuery) Query(ctx context.Context, msg GetOrderMessage) (core.TrackedOrder, error) {
	if q == nil || q.reader == nil {
		return core.TrackedOrder{}, queryDependencyError("query: order reader is required")
	}
	return q.reader.Get(ctx, strings.TrimSpace(msg.OrderID))
}

type ListOrdersByOriginQuery struct {
	lister core.OrderLister
}

func NewListOrdersByOriginQuery(lister core.OrderLister) *ListOrdersByOriginQuery {
	return &ListOrdersByOriginQuery{lister: lister}
}

func (q *ListOrdersByOriginQuery) Query(ctx context.Context, msg ListOrdersByOriginMessage) ([]core.TrackedOrder, error) {
	if q == nil || q.lister == nil {
		return nil, queryDependencyError("query: order lister is required")
	}
	return q.lister.ListByOrigin(ctx, strings.TrimSpace(msg.OriginReference))
}

type GetProcessedRequestQuery struct {
	reader ProcessedRequestReader
}

func NewGetProcessedRequestQuery(reader ProcessedRequestReader) *GetProcessedRequestQuery {
	return &GetProcessedRequestQuery{reader: reader}
}

func (q *GetProcessedRequestQuery) Query(ctx context.Context, msg GetProcessedRequestMessage) (core.ProcessedRequest, error) {
	if q == nil || q.reader == nil {
		return core.ProcessedRequest{}, queryDependencyError("query: processed request reader is required")
	}
	key := strings.TrimSpace(msg.Key)
	record, found, err := q.reader.Get(ctx, key)
	if err != nil {
		return core.ProcessedRequest{}, err
	}
	if !found {
		return core.ProcessedRequest{}, queryNotFoundError("query: processed request not found", map[string]any{"key": key})
	}
	return record, nil
}
