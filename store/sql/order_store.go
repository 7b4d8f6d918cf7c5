package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-backorder/core"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultOriginListLimit = 200

// OrderStore persists tracked orders. Status only ever moves from pending to
// a terminal value; the guard lives in the UPDATE predicate so concurrent
// writers cannot regress it.
type OrderStore struct {
	db   *bun.DB
	repo repository.Repository[*trackedOrderRecord]

	Now func() time.Time
}

func NewOrderStore(db *bun.DB) (*OrderStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*trackedOrderRecord](db, trackedOrderHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid tracked order repository wiring: %w", err)
		}
	}
	return &OrderStore{
		db:   db,
		repo: repo,
	}, nil
}

// InsertOrGet stores the order unless one with the same order id exists, in
// which case the stored row is returned untouched with existed=true.
func (s *OrderStore) InsertOrGet(ctx context.Context, order core.TrackedOrder) (core.TrackedOrder, bool, error) {
	if s == nil || s.db == nil {
		return core.TrackedOrder{}, false, fmt.Errorf("sqlstore: order store is not configured")
	}
	if err := order.Validate(); err != nil {
		return core.TrackedOrder{}, false, core.WrapError(err, goerrors.CategoryBadInput, "invalid tracked order", core.ErrorBadInput)
	}

	record := newTrackedOrderRecord(order, s.now())
	record.ID = uuid.NewString()
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.Get(ctx, record.OrderID)
			if getErr != nil {
				return core.TrackedOrder{}, false, getErr
			}
			return existing, true, nil
		}
		return core.TrackedOrder{}, false, err
	}
	return record.toDomain(), false, nil
}

// ListPending returns every pending order, oldest first.
func (s *OrderStore) ListPending(ctx context.Context) ([]core.TrackedOrder, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: order store is not configured")
	}
	records := make([]*trackedOrderRecord, 0)
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", string(core.OrderStatusPending)).
		Order("created_at ASC", "order_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.TrackedOrder, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *OrderStore) Get(ctx context.Context, orderID string) (core.TrackedOrder, error) {
	if s == nil || s.db == nil {
		return core.TrackedOrder{}, fmt.Errorf("sqlstore: order store is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	record := &trackedOrderRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.order_id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.TrackedOrder{}, core.NewOrderNotFoundError(orderID)
		}
		return core.TrackedOrder{}, err
	}
	return record.toDomain(), nil
}

// ListByOrigin returns the orders raised for one origin reference, which
// includes shortfall orders placed on its behalf.
func (s *OrderStore) ListByOrigin(ctx context.Context, originReference string) ([]core.TrackedOrder, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: order store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("origin_reference", "=", strings.TrimSpace(originReference)),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(defaultOriginListLimit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.TrackedOrder, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// UpdateStatus applies a terminal status to a pending order. Requests that
// would move a terminal order fail with ORDER_ALREADY_TERMINAL.
func (s *OrderStore) UpdateStatus(
	ctx context.Context,
	orderID string,
	status core.OrderStatus,
	completionTime *time.Time,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: order store is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	if !status.Valid() {
		return core.NewError(fmt.Sprintf("invalid order status %q", status), goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	if !status.Terminal() {
		current, err := s.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return core.NewOrderTerminalError(orderID)
		}
		return nil
	}

	now := s.now()
	completedAt := now
	if completionTime != nil && !completionTime.IsZero() {
		completedAt = completionTime.UTC()
	}
	result, err := s.db.NewUpdate().
		Model((*trackedOrderRecord)(nil)).
		Set("status = ?", string(status)).
		Set("completion_time = ?", completedAt).
		Set("updated_at = ?", now).
		Where("order_id = ?", orderID).
		Where("status = ?", string(core.OrderStatusPending)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rowsAffected(result) > 0 {
		return nil
	}
	if _, err := s.Get(ctx, orderID); err != nil {
		return err
	}
	return core.NewOrderTerminalError(orderID)
}

func (s *OrderStore) UpdateLastNotified(ctx context.Context, orderID string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: order store is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	result, err := s.db.NewUpdate().
		Model((*trackedOrderRecord)(nil)).
		Set("last_notified_at = ?", at.UTC()).
		Set("updated_at = ?", s.now()).
		Where("order_id = ?", orderID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rowsAffected(result) == 0 {
		return core.NewOrderNotFoundError(orderID)
	}
	return nil
}

func (s *OrderStore) UpdateLastKnownStatus(ctx context.Context, orderID string, remoteStatus string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: order store is not configured")
	}
	orderID = strings.TrimSpace(orderID)
	result, err := s.db.NewUpdate().
		Model((*trackedOrderRecord)(nil)).
		Set("last_known_remote_status = ?", strings.TrimSpace(remoteStatus)).
		Set("updated_at = ?", s.now()).
		Where("order_id = ?", orderID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rowsAffected(result) == 0 {
		return core.NewOrderNotFoundError(orderID)
	}
	return nil
}

func (s *OrderStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func rowsAffected(result sql.Result) int64 {
	if result == nil {
		return 0
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0
	}
	return affected
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
