package sqlstore_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-backorder/core"
	sqlstore "github.com/goliatone/go-backorder/store/sql"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

func newLedgerStore(t *testing.T) (*sqlstore.ProcessedRequestStore, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	store, err := sqlstore.NewProcessedRequestStore(client.DB())
	if err != nil {
		cleanup()
		t.Fatalf("new processed request store: %v", err)
	}
	return store, cleanup
}

func TestProcessedRequestStore_LedgerLifecycle(t *testing.T) {
	store, cleanup := newLedgerStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, found, err := store.Get(ctx, "T-1:evt-1"); err != nil || found {
		t.Fatalf("expected unknown key, got found=%t err=%v", found, err)
	}

	first, err := store.Begin(ctx, "T-1:evt-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if first.Attempts != 1 || first.Processed {
		t.Fatalf("unexpected first attempt %#v", first)
	}
	if err := store.RecordFailure(ctx, "T-1:evt-1", "registrar unavailable"); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	second, err := store.Begin(ctx, "T-1:evt-1")
	if err != nil {
		t.Fatalf("begin again: %v", err)
	}
	if second.Attempts != 2 || second.LastError != "registrar unavailable" {
		t.Fatalf("expected retry to be counted with last error, got %#v", second)
	}

	if err := store.MarkProcessed(ctx, "T-1:evt-1", map[string]any{"order_id": "ord-1", "api_token": "secret"}); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if err := store.MarkProcessed(ctx, "T-1:evt-1", map[string]any{"order_id": "ord-2"}); err != nil {
		t.Fatalf("mark processed again: %v", err)
	}
	if err := store.RecordFailure(ctx, "T-1:evt-1", "late failure"); err != nil {
		t.Fatalf("record failure after processed: %v", err)
	}

	record, found, err := store.Get(ctx, "T-1:evt-1")
	if err != nil || !found {
		t.Fatalf("get: found=%t err=%v", found, err)
	}
	if !record.Processed {
		t.Fatalf("expected processed record")
	}
	if record.ResultSummary["order_id"] != "ord-1" {
		t.Fatalf("expected first summary to be kept, got %#v", record.ResultSummary)
	}
	if record.ResultSummary["api_token"] != "[REDACTED]" {
		t.Fatalf("expected credential-like keys to be redacted, got %#v", record.ResultSummary)
	}
	if record.LastError != "" {
		t.Fatalf("processed records must not carry a failure, got %q", record.LastError)
	}

	third, err := store.Begin(ctx, "T-1:evt-1")
	if err != nil {
		t.Fatalf("begin after processed: %v", err)
	}
	if third.Attempts != 2 || !third.Processed {
		t.Fatalf("begin must not touch processed rows, got %#v", third)
	}
}

func TestProcessedRequestStore_MarkProcessedWithoutBegin(t *testing.T) {
	store, cleanup := newLedgerStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.MarkProcessed(ctx, "T-9:evt-9", map[string]any{"outcome": "ok"}); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	record, found, err := store.Get(ctx, "T-9:evt-9")
	if err != nil || !found || !record.Processed {
		t.Fatalf("expected processed row, got %#v found=%t err=%v", record, found, err)
	}
}

func TestProcessedRequestStore_ConcurrentBeginSharesOneRow(t *testing.T) {
	store, cleanup := newLedgerStore(t)
	defer cleanup()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Begin(ctx, "T-2:evt-2"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent begin: %v", err)
	}

	record, found, err := store.Get(ctx, "T-2:evt-2")
	if err != nil || !found {
		t.Fatalf("get: found=%t err=%v", found, err)
	}
	if record.Attempts != workers {
		t.Fatalf("expected %d attempts on a single row, got %d", workers, record.Attempts)
	}

	unprocessed, err := store.ListUnprocessed(ctx, 10)
	if err != nil {
		t.Fatalf("list unprocessed: %v", err)
	}
	if len(unprocessed) != 1 || unprocessed[0].Key != "T-2:evt-2" {
		t.Fatalf("unexpected unprocessed keys %#v", unprocessed)
	}
}

type countingLedger struct {
	core.ProcessedLedger
	gets int32
}

func (l *countingLedger) Get(ctx context.Context, key string) (core.ProcessedRequest, bool, error) {
	atomic.AddInt32(&l.gets, 1)
	return l.ProcessedLedger.Get(ctx, key)
}

func newTestLedgerCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return cacheService
}

func TestCachedProcessedLedger_CachesOnlySettledKeys(t *testing.T) {
	store, cleanup := newLedgerStore(t)
	defer cleanup()
	ctx := context.Background()

	base := &countingLedger{ProcessedLedger: store}
	ledger, err := sqlstore.NewCachedProcessedLedger(base, newTestLedgerCacheService(t))
	if err != nil {
		t.Fatalf("new cached ledger: %v", err)
	}

	if _, err := ledger.Begin(ctx, "T-3:evt-3"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	for i := 0; i < 2; i++ {
		record, found, err := ledger.Get(ctx, "T-3:evt-3")
		if err != nil || !found || record.Processed {
			t.Fatalf("expected pending record, got %#v found=%t err=%v", record, found, err)
		}
	}
	if got := atomic.LoadInt32(&base.gets); got != 2 {
		t.Fatalf("pending keys must always reach the store, got %d reads", got)
	}

	if err := ledger.MarkProcessed(ctx, "T-3:evt-3", map[string]any{"order_id": "ord-3"}); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	for i := 0; i < 3; i++ {
		record, found, err := ledger.Get(ctx, "T-3:evt-3")
		if err != nil || !found || !record.Processed {
			t.Fatalf("expected processed record, got %#v found=%t err=%v", record, found, err)
		}
	}
	if got := atomic.LoadInt32(&base.gets); got != 3 {
		t.Fatalf("expected processed key to be served from cache after one read, got %d reads", got)
	}

	if _, found, err := ledger.Get(ctx, "T-3:unknown"); err != nil || found {
		t.Fatalf("expected unknown key to miss, got found=%t err=%v", found, err)
	}
}

func TestProcessedRequestCacheKey(t *testing.T) {
	key, err := sqlstore.ProcessedRequestCacheKey("T-1/evt 1")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "go-backorder::processed_request::v1::T-1%2Fevt%201" {
		t.Fatalf("unexpected cache key %q", key)
	}
	if _, err := sqlstore.ProcessedRequestCacheKey("  "); err == nil {
		t.Fatalf("expected empty key to fail")
	}
}

func TestProcessedRequestStore_LongFailureKeepsValidUTF8(t *testing.T) {
	store, cleanup := newLedgerStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := store.Begin(ctx, "T-utf8"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	reason := strings.Repeat("a", 1023) + strings.Repeat("é", 10)
	if err := store.RecordFailure(ctx, "T-utf8", reason); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	record, found, err := store.Get(ctx, "T-utf8")
	if err != nil || !found {
		t.Fatalf("get: found=%t err=%v", found, err)
	}
	if !utf8.ValidString(record.LastError) {
		t.Fatalf("stored failure is not valid utf-8: %q", record.LastError)
	}
	if len(record.LastError) != 1023 {
		t.Fatalf("expected truncation before the split rune, got %d bytes", len(record.LastError))
	}
}

func TestRedactMetadata_MasksCredentialFields(t *testing.T) {
	redacted := sqlstore.RedactMetadata(map[string]any{
		"order_id": "ord-1",
		"quantity": 3,
		"registrar": map[string]any{
			"User_Email": "ops@example.com",
			"password":   "hunter2",
		},
		"items": []any{map[string]any{"private_key": "pem", "sku": "SKU-1"}},
	})
	if redacted["order_id"] != "ord-1" || redacted["quantity"] != 3 {
		t.Fatalf("expected order fields to be kept, got %#v", redacted)
	}
	registrar := redacted["registrar"].(map[string]any)
	if registrar["User_Email"] != "[REDACTED]" || registrar["password"] != "[REDACTED]" {
		t.Fatalf("expected registrar credentials to be masked, got %#v", registrar)
	}
	item := redacted["items"].([]any)[0].(map[string]any)
	if item["private_key"] != "[REDACTED]" || item["sku"] != "SKU-1" {
		t.Fatalf("expected nested private key to be masked, got %#v", item)
	}
}
