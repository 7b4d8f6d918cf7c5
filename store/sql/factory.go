package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-backorder/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	orderStore  *OrderStore
	ledgerStore *ProcessedRequestStore
	leaseLocker *LeaseLocker
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.Build(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.Build(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// Build resolves a bun db from persistenceClient (a *bun.DB or anything with
// a DB() *bun.DB method) and wires the stores on top of it.
func (f *RepositoryFactory) Build(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.orderStore != nil && f.ledgerStore != nil && f.leaseLocker != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) OrderStore() *OrderStore {
	if f == nil {
		return nil
	}
	return f.orderStore
}

func (f *RepositoryFactory) ProcessedRequestStore() *ProcessedRequestStore {
	if f == nil {
		return nil
	}
	return f.ledgerStore
}

func (f *RepositoryFactory) LeaseLocker() *LeaseLocker {
	if f == nil {
		return nil
	}
	return f.leaseLocker
}

// Ledger returns the processed request ledger, fronted by a read-through
// cache when cacheService is not nil.
func (f *RepositoryFactory) Ledger(cacheService repositorycache.CacheService) (core.ProcessedLedger, error) {
	if f == nil || f.ledgerStore == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is not built")
	}
	if cacheService == nil {
		return f.ledgerStore, nil
	}
	return NewCachedProcessedLedger(f.ledgerStore, cacheService)
}

func (f *RepositoryFactory) initStores() error {
	orderStore, err := NewOrderStore(f.db)
	if err != nil {
		return err
	}
	f.orderStore = orderStore
	ledgerStore, err := NewProcessedRequestStore(f.db)
	if err != nil {
		return err
	}
	f.ledgerStore = ledgerStore
	leaseLocker, err := NewLeaseLocker(f.db)
	if err != nil {
		return err
	}
	f.leaseLocker = leaseLocker
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
