package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-backorder/core"
	backordermigrations "github.com/goliatone/go-backorder/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type persistenceSettings struct {
	cfg core.PersistenceConfig
}

func (s persistenceSettings) GetDebug() bool {
	return s.cfg.Debug
}

func (s persistenceSettings) GetDriver() string {
	return s.cfg.Driver
}

func (s persistenceSettings) GetServer() string {
	return s.cfg.DSN
}

func (s persistenceSettings) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (s persistenceSettings) GetOtelIdentifier() string {
	return "backorderd"
}

type database struct {
	client *persistence.Client
}

// openDatabase opens the configured database and applies the schema for
// its dialect.
func openDatabase(ctx context.Context, cfg core.PersistenceConfig) (*database, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	var dialect schema.Dialect
	switch driver {
	case "sqlite3", "sqlite":
		driver = "sqlite3"
		dialect = sqlitedialect.New()
	case "postgres", "pq":
		driver = "postgres"
		dialect = pgdialect.New()
	default:
		return nil, fmt.Errorf("backorderd: unsupported persistence driver %q", cfg.Driver)
	}
	cfg.Driver = driver

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("backorderd: open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceSettings{cfg: cfg}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("backorderd: persistence client: %w", err)
	}
	if _, err := backordermigrations.RegisterForDriver(ctx, driver, func(fsys fs.FS) {
		client.RegisterSQLMigrations(fsys)
	}); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("backorderd: migrate: %w", err)
	}
	return &database{client: client}, nil
}

func (d *database) Ping(ctx context.Context) error {
	return d.client.DB().PingContext(ctx)
}

func (d *database) close() {
	_ = d.client.Close()
}

// newLedgerCache returns a nil service when ledger_cache_ttl is zero, which
// leaves the ledger reading straight from the database.
func newLedgerCache(cfg core.PersistenceConfig) (repositorycache.CacheService, error) {
	raw := strings.TrimSpace(cfg.LedgerCacheTTL)
	if raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed <= 0 {
			return nil, nil
		}
	}
	config := repositorycache.DefaultConfig()
	config.TTL = cfg.LedgerCacheTTLDuration()
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		return nil, fmt.Errorf("backorderd: ledger cache: %w", err)
	}
	return service, nil
}
