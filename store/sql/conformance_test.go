package sqlstore_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-backorder/devkit"
	sqlstore "github.com/goliatone/go-backorder/store/sql"
)

func TestOrderStore_Conformance(t *testing.T) {
	store, cleanup := newOrderStore(t)
	defer cleanup()
	if err := devkit.ValidateOrderStoreConformance(context.Background(), store, "sql"); err != nil {
		t.Fatalf("order store conformance: %v", err)
	}
}

func TestProcessedRequestStore_Conformance(t *testing.T) {
	store, cleanup := newLedgerStore(t)
	defer cleanup()
	if err := devkit.ValidateLedgerConformance(context.Background(), store, "T-conformance"); err != nil {
		t.Fatalf("ledger conformance: %v", err)
	}
}

func TestCachedProcessedLedger_Conformance(t *testing.T) {
	store, cleanup := newLedgerStore(t)
	defer cleanup()
	ledger, err := sqlstore.NewCachedProcessedLedger(store, newTestLedgerCacheService(t))
	if err != nil {
		t.Fatalf("new cached ledger: %v", err)
	}
	if err := devkit.ValidateLedgerConformance(context.Background(), ledger, "T-cached"); err != nil {
		t.Fatalf("cached ledger conformance: %v", err)
	}
}
