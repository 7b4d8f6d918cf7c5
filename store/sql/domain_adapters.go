package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-backorder/core"
)

func newTrackedOrderRecord(order core.TrackedOrder, now time.Time) *trackedOrderRecord {
	status := order.Status
	if status == "" {
		status = core.OrderStatusPending
	}
	record := &trackedOrderRecord{
		OrderID:               strings.TrimSpace(order.OrderID),
		OriginReference:       strings.TrimSpace(order.OriginReference),
		ResourceDescriptor:    strings.TrimSpace(order.ResourceDescriptor),
		CarrierGroup:          strings.TrimSpace(order.CarrierGroup),
		RequestedQuantity:     order.RequestedQuantity,
		Status:                string(status),
		LastKnownRemoteStatus: order.LastKnownRemoteStatus,
		LastNotifiedAt:        copyTime(order.LastNotifiedAt),
		CompletionTime:        copyTime(order.CompletionTime),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if !order.CreatedAt.IsZero() {
		record.CreatedAt = order.CreatedAt.UTC()
	}
	return record
}

func (r *trackedOrderRecord) toDomain() core.TrackedOrder {
	if r == nil {
		return core.TrackedOrder{}
	}
	return core.TrackedOrder{
		OrderID:               r.OrderID,
		OriginReference:       r.OriginReference,
		ResourceDescriptor:    r.ResourceDescriptor,
		CarrierGroup:          r.CarrierGroup,
		RequestedQuantity:     r.RequestedQuantity,
		Status:                core.OrderStatus(r.Status),
		LastKnownRemoteStatus: r.LastKnownRemoteStatus,
		LastNotifiedAt:        copyTime(r.LastNotifiedAt),
		CompletionTime:        copyTime(r.CompletionTime),
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

func (r *processedRequestRecord) toDomain() core.ProcessedRequest {
	if r == nil {
		return core.ProcessedRequest{}
	}
	return core.ProcessedRequest{
		Key:           r.RequestKey,
		Processed:     r.Processed,
		ResultSummary: copyAnyMap(r.ResultSummary),
		Attempts:      r.Attempts,
		LastError:     r.LastError,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func copyTime(in *time.Time) *time.Time {
	if in == nil || in.IsZero() {
		return nil
	}
	value := in.UTC()
	return &value
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
