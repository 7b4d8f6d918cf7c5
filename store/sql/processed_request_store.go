package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-backorder/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const maxLedgerErrorLength = 1024

// ProcessedRequestStore is the durable idempotency ledger. A key that has
// been marked processed stays processed.
type ProcessedRequestStore struct {
	db   *bun.DB
	repo repository.Repository[*processedRequestRecord]

	Now func() time.Time
}

func NewProcessedRequestStore(db *bun.DB) (*ProcessedRequestStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*processedRequestRecord](db, processedRequestHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid processed request repository wiring: %w", err)
		}
	}
	return &ProcessedRequestStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *ProcessedRequestStore) Get(ctx context.Context, key string) (core.ProcessedRequest, bool, error) {
	if s == nil || s.db == nil {
		return core.ProcessedRequest{}, false, fmt.Errorf("sqlstore: processed request store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return core.ProcessedRequest{}, false, fmt.Errorf("sqlstore: request key is required")
	}
	record := &processedRequestRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.request_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.ProcessedRequest{}, false, nil
		}
		return core.ProcessedRequest{}, false, err
	}
	return record.toDomain(), true, nil
}

// Begin registers an attempt for key. The first attempt inserts the row;
// later attempts on an unprocessed key bump the attempt counter.
func (s *ProcessedRequestStore) Begin(ctx context.Context, key string) (core.ProcessedRequest, error) {
	if s == nil || s.db == nil {
		return core.ProcessedRequest{}, fmt.Errorf("sqlstore: processed request store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return core.ProcessedRequest{}, fmt.Errorf("sqlstore: request key is required")
	}
	now := s.now()
	record := &processedRequestRecord{
		ID:            uuid.NewString(),
		RequestKey:    key,
		ResultSummary: map[string]any{},
		Attempts:      1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return core.ProcessedRequest{}, err
		}
		if _, err := s.db.NewUpdate().
			Model((*processedRequestRecord)(nil)).
			Set("attempts = attempts + 1").
			Set("updated_at = ?", now).
			Where("request_key = ?", key).
			Where("processed = ?", false).
			Exec(ctx); err != nil {
			return core.ProcessedRequest{}, err
		}
		existing, found, err := s.Get(ctx, key)
		if err != nil {
			return core.ProcessedRequest{}, err
		}
		if !found {
			return core.ProcessedRequest{}, fmt.Errorf("sqlstore: processed request %q vanished during begin", key)
		}
		return existing, nil
	}
	return record.toDomain(), nil
}

// MarkProcessed flips key to processed and stores the action summary. Calls
// against an already processed key leave the first summary in place.
func (s *ProcessedRequestStore) MarkProcessed(ctx context.Context, key string, summary map[string]any) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: processed request store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: request key is required")
	}
	encoded, err := json.Marshal(RedactMetadata(summary))
	if err != nil {
		return fmt.Errorf("sqlstore: encode result summary: %w", err)
	}
	now := s.now()
	result, err := s.db.NewUpdate().
		Model((*processedRequestRecord)(nil)).
		Set("processed = ?", true).
		Set("result_summary = ?", string(encoded)).
		Set("last_error = NULL").
		Set("updated_at = ?", now).
		Where("request_key = ?", key).
		Where("processed = ?", false).
		Exec(ctx)
	if err != nil {
		return err
	}
	if rowsAffected(result) > 0 {
		return nil
	}

	_, found, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	record := &processedRequestRecord{
		ID:            uuid.NewString(),
		RequestKey:    key,
		Processed:     true,
		ResultSummary: RedactMetadata(summary),
		Attempts:      1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return s.MarkProcessed(ctx, key, summary)
		}
		return err
	}
	return nil
}

// RecordFailure keeps the last failure reason on an unprocessed key so
// operators can see why a trigger keeps being retried.
func (s *ProcessedRequestStore) RecordFailure(ctx context.Context, key string, reason string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: processed request store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: request key is required")
	}
	reason = truncateUTF8(strings.TrimSpace(reason), maxLedgerErrorLength)
	_, err := s.db.NewUpdate().
		Model((*processedRequestRecord)(nil)).
		Set("last_error = ?", reason).
		Set("updated_at = ?", s.now()).
		Where("request_key = ?", key).
		Where("processed = ?", false).
		Exec(ctx)
	return err
}

// ListUnprocessed returns keys that were attempted but never completed.
func (s *ProcessedRequestStore) ListUnprocessed(ctx context.Context, limit int) ([]core.ProcessedRequest, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: processed request store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.processed = ?", false)
		}),
		repository.OrderBy("updated_at ASC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.ProcessedRequest, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *ProcessedRequestStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// truncateUTF8 cuts value to at most limit bytes without splitting a rune.
func truncateUTF8(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
