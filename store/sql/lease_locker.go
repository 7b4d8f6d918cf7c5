package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-backorder/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LeaseLocker is a row-lease lock shared by every process pointed at the
// same database. Expired leases are reclaimed by the next Acquire.
type LeaseLocker struct {
	db *bun.DB

	Now func() time.Time
}

func NewLeaseLocker(db *bun.DB) (*LeaseLocker, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &LeaseLocker{db: db}, nil
}

func (l *LeaseLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (core.LockHandle, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("sqlstore: lease locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("sqlstore: lock key is required")
	}
	if ttl <= 0 {
		ttl = core.DefaultLockTTL
	}
	now := l.now()

	if _, err := l.db.NewDelete().
		Model((*lockLeaseRecord)(nil)).
		Where("lock_key = ?", key).
		Where("expires_at <= ?", now).
		Exec(ctx); err != nil {
		return nil, err
	}

	record := &lockLeaseRecord{
		LockKey:   key,
		Owner:     uuid.NewString(),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if _, err := l.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, core.NewLockHeldError(key)
		}
		return nil, err
	}
	return &leaseHandle{db: l.db, key: key, owner: record.Owner}, nil
}

func (l *LeaseLocker) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

type leaseHandle struct {
	db    *bun.DB
	key   string
	owner string
}

// Unlock only removes the lease this handle created.
func (h *leaseHandle) Unlock(ctx context.Context) error {
	if h == nil || h.db == nil {
		return nil
	}
	_, err := h.db.NewDelete().
		Model((*lockLeaseRecord)(nil)).
		Where("lock_key = ?", h.key).
		Where("owner = ?", h.owner).
		Exec(ctx)
	return err
}
