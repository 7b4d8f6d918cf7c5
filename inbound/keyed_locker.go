package inbound

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-backorder/core"
	"golang.org/x/sync/semaphore"
)

type keyedEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// KeyedLocker is a process-local mutex per key with a bounded wait.
// Entries are dropped once no goroutine holds or waits on them.
type KeyedLocker struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{entries: map[string]*keyedEntry{}}
}

func (l *KeyedLocker) Acquire(ctx context.Context, key string, wait time.Duration) (func(), bool) {
	if l == nil {
		return func() {}, true
	}
	if ctx == nil {
		ctx = context.Background()
	}
	key = strings.TrimSpace(key)
	entry := l.retain(key)

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := entry.sem.Acquire(waitCtx, 1); err != nil {
		l.releaseRef(key, entry)
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.sem.Release(1)
			l.releaseRef(key, entry)
		})
	}, true
}

func (l *KeyedLocker) retain(key string) *keyedEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &keyedEntry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (l *KeyedLocker) releaseRef(key string, entry *keyedEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs <= 0 && l.entries[key] == entry {
		delete(l.entries, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

var _ core.LocalLocker = (*KeyedLocker)(nil)
