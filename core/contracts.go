package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type OrderStore interface {
	InsertOrGet(ctx context.Context, order TrackedOrder) (TrackedOrder, bool, error)
	ListPending(ctx context.Context) ([]TrackedOrder, error)
	Get(ctx context.Context, orderID string) (TrackedOrder, error)
	UpdateStatus(ctx context.Context, orderID string, status OrderStatus, completionTime *time.Time) error
	UpdateLastNotified(ctx context.Context, orderID string, at time.Time) error
	UpdateLastKnownStatus(ctx context.Context, orderID string, remoteStatus string) error
}

type OrderLister interface {
	ListByOrigin(ctx context.Context, originReference string) ([]TrackedOrder, error)
}

type ProcessedLedger interface {
	Get(ctx context.Context, key string) (ProcessedRequest, bool, error)
	Begin(ctx context.Context, key string) (ProcessedRequest, error)
	MarkProcessed(ctx context.Context, key string, summary map[string]any) error
	RecordFailure(ctx context.Context, key string, reason string) error
}

type StatusProvider interface {
	GetOrderDetail(ctx context.Context, orderID string) (OrderDetail, error)
}

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, request PlacementRequest) (string, error)
}

type Registrar interface {
	Register(ctx context.Context, unit Unit) CallResult
	Restrict(ctx context.Context, unit Unit) CallResult
}

type UnitClassifier interface {
	Classify(unitID string) Unit
}

type NotificationSink interface {
	Notify(ctx context.Context, notification Notification)
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// DistributedLocker is a lease style lock shared between processes. A
// handle that is never released expires after ttl.
type DistributedLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

// LocalLocker guards a key inside one process. Acquire waits at most wait.
type LocalLocker interface {
	Acquire(ctx context.Context, key string, wait time.Duration) (release func(), ok bool)
}

type Action interface {
	Execute(ctx context.Context, trigger Trigger) (ActionResult, error)
}

type ActionFunc func(ctx context.Context, trigger Trigger) (ActionResult, error)

func (f ActionFunc) Execute(ctx context.Context, trigger Trigger) (ActionResult, error) {
	return f(ctx, trigger)
}

type Completer interface {
	Complete(ctx context.Context, order TrackedOrder, detail OrderDetail) (CompletionReport, error)
}

type OrderTracker interface {
	Track(ctx context.Context, order TrackedOrder) (TrackedOrder, bool, error)
}
