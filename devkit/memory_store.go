package devkit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-backorder/core"
	goerrors "github.com/goliatone/go-errors"
)

// MemoryOrderStore is an in-process OrderStore with the same status
// guarantees as the SQL store.
type MemoryOrderStore struct {
	mu     sync.Mutex
	orders map[string]core.TrackedOrder
	seq    map[string]int
	next   int

	Now func() time.Time
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{
		orders: map[string]core.TrackedOrder{},
		seq:    map[string]int{},
	}
}

func (s *MemoryOrderStore) InsertOrGet(_ context.Context, order core.TrackedOrder) (core.TrackedOrder, bool, error) {
	if err := order.Validate(); err != nil {
		return core.TrackedOrder{}, false, core.WrapError(err, goerrors.CategoryBadInput, "invalid tracked order", core.ErrorBadInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	orderID := strings.TrimSpace(order.OrderID)
	if existing, ok := s.orders[orderID]; ok {
		return cloneOrder(existing), true, nil
	}
	now := s.now()
	order.OrderID = orderID
	if order.Status == "" {
		order.Status = core.OrderStatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	s.orders[orderID] = cloneOrder(order)
	s.next++
	s.seq[orderID] = s.next
	return cloneOrder(order), false, nil
}

func (s *MemoryOrderStore) ListPending(context.Context) ([]core.TrackedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.TrackedOrder, 0, len(s.orders))
	for _, order := range s.orders {
		if order.Status == core.OrderStatusPending {
			out = append(out, cloneOrder(order))
		}
	}
	s.sortLocked(out)
	return out, nil
}

func (s *MemoryOrderStore) Get(_ context.Context, orderID string) (core.TrackedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[strings.TrimSpace(orderID)]
	if !ok {
		return core.TrackedOrder{}, core.NewOrderNotFoundError(orderID)
	}
	return cloneOrder(order), nil
}

func (s *MemoryOrderStore) ListByOrigin(_ context.Context, originReference string) ([]core.TrackedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.TrackedOrder, 0)
	for _, order := range s.orders {
		if order.OriginReference == strings.TrimSpace(originReference) {
			out = append(out, cloneOrder(order))
		}
	}
	s.sortLocked(out)
	return out, nil
}

func (s *MemoryOrderStore) UpdateStatus(_ context.Context, orderID string, status core.OrderStatus, completionTime *time.Time) error {
	if !status.Valid() {
		return core.NewError(fmt.Sprintf("invalid order status %q", status), goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	orderID = strings.TrimSpace(orderID)
	order, ok := s.orders[orderID]
	if !ok {
		return core.NewOrderNotFoundError(orderID)
	}
	if order.Status.Terminal() {
		return core.NewOrderTerminalError(orderID)
	}
	if !status.Terminal() {
		return nil
	}
	now := s.now()
	if completionTime != nil && !completionTime.IsZero() {
		now = completionTime.UTC()
	}
	if err := order.TransitionTo(status, now); err != nil {
		return core.NewOrderTerminalError(orderID)
	}
	s.orders[orderID] = order
	return nil
}

func (s *MemoryOrderStore) UpdateLastNotified(_ context.Context, orderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	orderID = strings.TrimSpace(orderID)
	order, ok := s.orders[orderID]
	if !ok {
		return core.NewOrderNotFoundError(orderID)
	}
	value := at.UTC()
	order.LastNotifiedAt = &value
	order.UpdatedAt = s.now()
	s.orders[orderID] = order
	return nil
}

func (s *MemoryOrderStore) UpdateLastKnownStatus(_ context.Context, orderID string, remoteStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	orderID = strings.TrimSpace(orderID)
	order, ok := s.orders[orderID]
	if !ok {
		return core.NewOrderNotFoundError(orderID)
	}
	order.LastKnownRemoteStatus = strings.TrimSpace(remoteStatus)
	order.UpdatedAt = s.now()
	s.orders[orderID] = order
	return nil
}

func (s *MemoryOrderStore) sortLocked(orders []core.TrackedOrder) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return s.seq[orders[i].OrderID] < s.seq[orders[j].OrderID]
	})
}

func (s *MemoryOrderStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func cloneOrder(in core.TrackedOrder) core.TrackedOrder {
	out := in
	if in.LastNotifiedAt != nil {
		value := *in.LastNotifiedAt
		out.LastNotifiedAt = &value
	}
	if in.CompletionTime != nil {
		value := *in.CompletionTime
		out.CompletionTime = &value
	}
	return out
}

// MemoryLedger is an in-process ProcessedLedger.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string]core.ProcessedRequest

	Now func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: map[string]core.ProcessedRequest{}}
}

func (l *MemoryLedger) Get(_ context.Context, key string) (core.ProcessedRequest, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[strings.TrimSpace(key)]
	return cloneRequest(record), ok, nil
}

func (l *MemoryLedger) Begin(_ context.Context, key string) (core.ProcessedRequest, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return core.ProcessedRequest{}, fmt.Errorf("devkit: request key is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	record, ok := l.records[key]
	if !ok {
		record = core.ProcessedRequest{Key: key, ResultSummary: map[string]any{}, CreatedAt: now}
	}
	if !record.Processed {
		record.Attempts++
		record.UpdatedAt = now
	}
	l.records[key] = record
	return cloneRequest(record), nil
}

func (l *MemoryLedger) MarkProcessed(_ context.Context, key string, summary map[string]any) error {
	key = strings.TrimSpace(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	record, ok := l.records[key]
	if ok && record.Processed {
		return nil
	}
	if !ok {
		record = core.ProcessedRequest{Key: key, Attempts: 1, CreatedAt: now}
	}
	record.Processed = true
	record.ResultSummary = copyMap(summary)
	record.LastError = ""
	record.UpdatedAt = now
	l.records[key] = record
	return nil
}

func (l *MemoryLedger) RecordFailure(_ context.Context, key string, reason string) error {
	key = strings.TrimSpace(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[key]
	if !ok || record.Processed {
		return nil
	}
	record.LastError = reason
	record.UpdatedAt = l.now()
	l.records[key] = record
	return nil
}

func (l *MemoryLedger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func cloneRequest(in core.ProcessedRequest) core.ProcessedRequest {
	out := in
	out.ResultSummary = copyMap(in.ResultSummary)
	return out
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.OrderStore      = (*MemoryOrderStore)(nil)
	_ core.OrderLister     = (*MemoryOrderStore)(nil)
	_ core.ProcessedLedger = (*MemoryLedger)(nil)
)
