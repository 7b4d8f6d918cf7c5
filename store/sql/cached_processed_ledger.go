package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-backorder/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const processedRequestCacheKeyPrefix = "go-backorder::processed_request::v1"

var errLedgerMiss = errors.New("sqlstore: processed request not settled")

// CachedProcessedLedger puts a read-through cache in front of a ledger. Only
// processed entries are cached: they can never change again, while pending
// entries must always be read from the durable store.
type CachedProcessedLedger struct {
	base  core.ProcessedLedger
	cache repositorycache.CacheService
}

func NewCachedProcessedLedger(
	base core.ProcessedLedger,
	cacheService repositorycache.CacheService,
) (*CachedProcessedLedger, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base processed ledger is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: processed ledger cache service is required")
	}
	return &CachedProcessedLedger{base: base, cache: cacheService}, nil
}

// ProcessedRequestCacheKey returns go-backorder::processed_request::v1::<key>
// with the key URL-path escaped.
func ProcessedRequestCacheKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("sqlstore: request key is required")
	}
	return processedRequestCacheKeyPrefix + "::" + url.PathEscape(key), nil
}

func (l *CachedProcessedLedger) Get(ctx context.Context, key string) (core.ProcessedRequest, bool, error) {
	if l == nil || l.base == nil || l.cache == nil {
		return core.ProcessedRequest{}, false, fmt.Errorf("sqlstore: cached processed ledger is not configured")
	}
	cacheKey, err := ProcessedRequestCacheKey(key)
	if err != nil {
		return core.ProcessedRequest{}, false, err
	}

	var (
		missed  bool
		fetched core.ProcessedRequest
		found   bool
	)
	record, err := repositorycache.GetOrFetch(ctx, l.cache, cacheKey, func(ctx context.Context) (core.ProcessedRequest, error) {
		current, ok, fetchErr := l.base.Get(ctx, key)
		if fetchErr != nil {
			return core.ProcessedRequest{}, fetchErr
		}
		if !ok || !current.Processed {
			missed, fetched, found = true, current, ok
			return core.ProcessedRequest{}, errLedgerMiss
		}
		return cloneProcessedRequest(current), nil
	})
	if err != nil {
		if missed {
			return cloneProcessedRequest(fetched), found, nil
		}
		if errors.Is(err, errLedgerMiss) {
			// a concurrent caller shared our in-flight fetch
			return l.base.Get(ctx, key)
		}
		return core.ProcessedRequest{}, false, err
	}
	return cloneProcessedRequest(record), true, nil
}

func (l *CachedProcessedLedger) Begin(ctx context.Context, key string) (core.ProcessedRequest, error) {
	if l == nil || l.base == nil {
		return core.ProcessedRequest{}, fmt.Errorf("sqlstore: cached processed ledger is not configured")
	}
	return l.base.Begin(ctx, key)
}

func (l *CachedProcessedLedger) MarkProcessed(ctx context.Context, key string, summary map[string]any) error {
	if l == nil || l.base == nil || l.cache == nil {
		return fmt.Errorf("sqlstore: cached processed ledger is not configured")
	}
	if err := l.base.MarkProcessed(ctx, key, summary); err != nil {
		return err
	}
	cacheKey, err := ProcessedRequestCacheKey(key)
	if err != nil {
		return err
	}
	return l.cache.Delete(ctx, cacheKey)
}

func (l *CachedProcessedLedger) RecordFailure(ctx context.Context, key string, reason string) error {
	if l == nil || l.base == nil {
		return fmt.Errorf("sqlstore: cached processed ledger is not configured")
	}
	return l.base.RecordFailure(ctx, key, reason)
}

func cloneProcessedRequest(in core.ProcessedRequest) core.ProcessedRequest {
	out := in
	out.ResultSummary = copyAnyMap(in.ResultSummary)
	return out
}
