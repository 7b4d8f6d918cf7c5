package core

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const defaultLockRetryInterval = 50 * time.Millisecond

func NewLockHeldError(key string) *goerrors.Error {
	return NewError("lock already held", goerrors.CategoryConflict, ErrorLockHeld).
		WithCode(http.StatusConflict).
		WithMetadata(map[string]any{"key": key})
}

// AcquireWithin retries a non-blocking locker until wait elapses.
func AcquireWithin(
	ctx context.Context,
	locker DistributedLocker,
	key string,
	ttl time.Duration,
	wait time.Duration,
) (LockHandle, error) {
	if locker == nil {
		return nil, NewError("distributed locker is not configured", goerrors.CategoryInternal, ErrorInternal)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := time.Now().Add(wait)
	for {
		handle, err := locker.Acquire(ctx, key, ttl)
		if err == nil {
			return handle, nil
		}
		if !HasTextCode(err, ErrorLockHeld) {
			return nil, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, err
		}
		delay := defaultLockRetryInterval
		if remaining < delay {
			delay = remaining
		}
		if waitErr := waitWithContext(ctx, delay); waitErr != nil {
			return nil, waitErr
		}
	}
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type memoryLease struct {
	token string
	until time.Time
}

// MemoryLocker is a DistributedLocker for single process deployments and
// tests. Leases expire after their ttl even if never released.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLease
	Now   func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]memoryLease),
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, NewError("memory locker is not configured", goerrors.CategoryInternal, ErrorInternal)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, NewError("lock key is required", goerrors.CategoryBadInput, ErrorBadInput)
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locks == nil {
		l.locks = make(map[string]memoryLease)
	}
	if lease, ok := l.locks[key]; ok && now.Before(lease.until) {
		return nil, NewLockHeldError(key)
	}
	token := uuid.NewString()
	l.locks[key] = memoryLease{token: token, until: now.Add(ttl)}
	return &memoryLockHandle{locker: l, key: key, token: token}, nil
}

func (l *MemoryLocker) now() time.Time {
	if l.Now == nil {
		return time.Now().UTC()
	}
	return l.Now()
}

type memoryLockHandle struct {
	locker *MemoryLocker
	key    string
	token  string
	once   sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		defer h.locker.mu.Unlock()
		// an expired lease may already belong to another owner
		if lease, ok := h.locker.locks[h.key]; ok && lease.token == h.token {
			delete(h.locker.locks, h.key)
		}
	})
	return nil
}
