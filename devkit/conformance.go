package devkit

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-backorder/core"
)

// ValidateOrderStoreConformance runs the behaviour every OrderStore must
// share against a fresh store. It creates orders with the given prefix.
func ValidateOrderStoreConformance(ctx context.Context, store core.OrderStore, prefix string) error {
	if store == nil {
		return fmt.Errorf("devkit: order store is required")
	}
	orderID := prefix + "-conformance"
	order := core.TrackedOrder{
		OrderID:            orderID,
		OriginReference:    prefix + "-origin",
		ResourceDescriptor: "415",
		RequestedQuantity:  2,
	}
	if _, existed, err := store.InsertOrGet(ctx, order); err != nil || existed {
		return fmt.Errorf("devkit: first insert: existed=%t err=%v", existed, err)
	}
	order.RequestedQuantity = 9
	stored, existed, err := store.InsertOrGet(ctx, order)
	if err != nil || !existed || stored.RequestedQuantity != 2 {
		return fmt.Errorf("devkit: duplicate insert must return the stored row: existed=%t quantity=%d err=%v", existed, stored.RequestedQuantity, err)
	}

	pending, err := store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("devkit: list pending: %w", err)
	}
	if !containsOrder(pending, orderID) {
		return fmt.Errorf("devkit: pending list is missing %s", orderID)
	}

	if err := store.UpdateLastKnownStatus(ctx, orderID, "BACKORDERED"); err != nil {
		return fmt.Errorf("devkit: update last known status: %w", err)
	}
	if err := store.UpdateLastNotified(ctx, orderID, time.Now().UTC()); err != nil {
		return fmt.Errorf("devkit: update last notified: %w", err)
	}
	if err := store.UpdateStatus(ctx, orderID, core.OrderStatusStopped, nil); err != nil {
		return fmt.Errorf("devkit: stop order: %w", err)
	}
	if err := store.UpdateStatus(ctx, orderID, core.OrderStatusCompleted, nil); !core.HasTextCode(err, core.ErrorOrderAlreadyTerminal) {
		return fmt.Errorf("devkit: terminal orders must not move, got %v", err)
	}

	current, err := store.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("devkit: get: %w", err)
	}
	if current.Status != core.OrderStatusStopped || current.CompletionTime == nil {
		return fmt.Errorf("devkit: unexpected final state %s completion=%v", current.Status, current.CompletionTime)
	}
	if current.LastKnownRemoteStatus != "BACKORDERED" || current.LastNotifiedAt == nil {
		return fmt.Errorf("devkit: bookkeeping fields were not persisted")
	}

	pending, err = store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("devkit: list pending: %w", err)
	}
	if containsOrder(pending, orderID) {
		return fmt.Errorf("devkit: terminal order %s is still pending", orderID)
	}
	if _, err := store.Get(ctx, prefix+"-missing"); !core.IsNotFound(err) {
		return fmt.Errorf("devkit: expected not found for unknown order, got %v", err)
	}
	return nil
}

// ValidateLedgerConformance checks the processed flag never reverts and
// that Begin counts attempts on unprocessed keys only.
func ValidateLedgerConformance(ctx context.Context, ledger core.ProcessedLedger, key string) error {
	if ledger == nil {
		return fmt.Errorf("devkit: ledger is required")
	}
	if _, found, err := ledger.Get(ctx, key); err != nil || found {
		return fmt.Errorf("devkit: expected unknown key: found=%t err=%v", found, err)
	}
	if _, err := ledger.Begin(ctx, key); err != nil {
		return fmt.Errorf("devkit: begin: %w", err)
	}
	second, err := ledger.Begin(ctx, key)
	if err != nil || second.Attempts != 2 || second.Processed {
		return fmt.Errorf("devkit: second begin: attempts=%d processed=%t err=%v", second.Attempts, second.Processed, err)
	}
	if err := ledger.MarkProcessed(ctx, key, map[string]any{"result": "first"}); err != nil {
		return fmt.Errorf("devkit: mark processed: %w", err)
	}
	if err := ledger.MarkProcessed(ctx, key, map[string]any{"result": "second"}); err != nil {
		return fmt.Errorf("devkit: mark processed twice: %w", err)
	}
	if err := ledger.RecordFailure(ctx, key, "late"); err != nil {
		return fmt.Errorf("devkit: record failure: %w", err)
	}
	record, found, err := ledger.Get(ctx, key)
	if err != nil || !found || !record.Processed {
		return fmt.Errorf("devkit: expected processed record: found=%t err=%v", found, err)
	}
	if record.ResultSummary["result"] != "first" || record.LastError != "" {
		return fmt.Errorf("devkit: processed record changed after settling: %#v", record)
	}
	return nil
}

func containsOrder(orders []core.TrackedOrder, orderID string) bool {
	for _, order := range orders {
		if order.OrderID == orderID {
			return true
		}
	}
	return false
}
