// Command backorderd runs the backorder tracker: the trigger webhook, the
// order poller and the Prometheus endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	backorder "github.com/goliatone/go-backorder"
	"github.com/goliatone/go-backorder/adapters/gocommand"
	"github.com/goliatone/go-backorder/core"
	"github.com/goliatone/go-backorder/metrics"
	sqlstore "github.com/goliatone/go-backorder/store/sql"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type CLI struct {
	Config    string `help:"YAML config file." type:"path" env:"BACKORDER_CONFIG"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info" env:"BACKORDER_LOG_LEVEL"`
	LogFormat string `help:"Log format (json, text, pretty)." default:"json" enum:"json,text,pretty" env:"BACKORDER_LOG_FORMAT"`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the webhook server and the poller."`
	Tick    TickCmd    `cmd:"" help:"Run a single poll pass and exit."`
	Migrate MigrateCmd `cmd:"" help:"Apply database migrations and exit."`
}

type ServeCmd struct {
	Addr string `help:"Listen address, overrides http.addr."`
}

type TickCmd struct{}

type MigrateCmd struct{}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("backorderd"),
		kong.Description("Tracks backorders until the provider closes them and registers the fulfilled units."),
		kong.UsageOnError(),
	)
	kctx.FatalIfErrorf(kctx.Run(&cli))
}

// app is what every subcommand needs: resolved config, logging, metrics and
// an open database.
type app struct {
	cfg      core.Config
	logs     *glog.BaseLogger
	recorder *metrics.PrometheusRecorder
	registry *prometheus.Registry
	db       *database
}

func newApp(ctx context.Context, cli *CLI) (*app, error) {
	logs := newLogger(os.Stderr, cli.LogFormat, cli.LogLevel)
	cfg, err := loadConfig(ctx, cli.Config)
	if err != nil {
		return nil, err
	}
	db, err := openDatabase(ctx, cfg.Persistence)
	if err != nil {
		return nil, err
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &app{
		cfg:      cfg,
		logs:     logs,
		recorder: metrics.NewPrometheusRecorder(registry),
		registry: registry,
		db:       db,
	}, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.close()
	}
}

func (a *app) runtime(ctx context.Context) (*backorder.Runtime, error) {
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(a.db.client)
	if err != nil {
		return nil, err
	}
	cache, err := newLedgerCache(a.cfg.Persistence)
	if err != nil {
		return nil, err
	}
	ledger, err := factory.Ledger(cache)
	if err != nil {
		return nil, err
	}
	return backorder.New(ctx, a.cfg,
		backorder.WithLoggerProvider(a.logs),
		backorder.WithMetricsRecorder(a.recorder),
		backorder.WithOrderStore(factory.OrderStore()),
		backorder.WithProcessedLedger(ledger),
		backorder.WithDistributedLocker(factory.LeaseLocker()),
	)
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logs.GetLogger("backorderd")

	runtime, err := a.runtime(ctx)
	if err != nil {
		return err
	}
	bus := gocommand.NewRegistryAdapter(nil)
	wiring, err := runtime.Wire(bus)
	if err != nil {
		return err
	}
	defer wiring.Close()
	if err := bus.Initialize(); err != nil {
		return err
	}

	addr := a.cfg.HTTP.Addr
	if c.Addr != "" {
		addr = c.Addr
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           newMux(runtime, a.recorder, a.db),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	runtime.Start(ctx)
	defer runtime.Stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("backorderd: http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func (c *TickCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := newApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.close()

	runtime, err := a.runtime(ctx)
	if err != nil {
		return err
	}
	stats, err := runtime.Tick(ctx)
	if err != nil {
		return err
	}
	a.logs.GetLogger("backorderd").Info("poll pass finished",
		"pending", stats.Pending,
		"polled", stats.Polled,
		"provider_failures", stats.ProviderFails,
		"transitions", stats.Transitions,
		"completed", stats.Completed,
		"stopped", stats.Stopped,
		"notified", stats.Notified,
	)
	return nil
}

// Run only needs the database: opening it applies the migrations.
func (c *MigrateCmd) Run(cli *CLI) error {
	ctx := context.Background()
	a, err := newApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.close()
	a.logs.GetLogger("backorderd").Info("migrations applied", "driver", a.cfg.Persistence.Driver)
	return nil
}
