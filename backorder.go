// Package backorder assembles the backorder tracker: the idempotent trigger
// dispatcher that places orders, the poller that watches them, and the
// completion pipeline that registers fulfilled units.
package backorder

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-backorder/adapters/gocommand"
	backordercmd "github.com/goliatone/go-backorder/command"
	"github.com/goliatone/go-backorder/completion"
	"github.com/goliatone/go-backorder/core"
	"github.com/goliatone/go-backorder/inbound"
	"github.com/goliatone/go-backorder/notify"
	"github.com/goliatone/go-backorder/poller"
	"github.com/goliatone/go-backorder/provider"
	"github.com/goliatone/go-backorder/registrar"
	"github.com/goliatone/go-command/runner"
	goerrors "github.com/goliatone/go-errors"
)

type Config = core.Config

type Option = core.Option

type TrackedOrder = core.TrackedOrder
type Trigger = core.Trigger
type DispatchResult = core.DispatchResult
type TickStats = core.TickStats

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorMapper       = core.WithErrorMapper
	WithClock             = core.WithClock
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithOrderStore        = core.WithOrderStore
	WithProcessedLedger   = core.WithProcessedLedger
	WithStatusProvider    = core.WithStatusProvider
	WithOrderPlacer       = core.WithOrderPlacer
	WithRegistrar         = core.WithRegistrar
	WithUnitClassifier    = core.WithUnitClassifier
	WithNotificationSink  = core.WithNotificationSink
	WithDistributedLocker = core.WithDistributedLocker
	WithLocalLocker       = core.WithLocalLocker
	WithAction            = core.WithAction
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Runtime owns one wired set of components. Collaborators passed as options
// win over the ones built from config.
type Runtime struct {
	cfg  Config
	deps core.Dependencies

	store      core.OrderStore
	ledger     core.ProcessedLedger
	sink       core.NotificationSink
	pipeline   *completion.Pipeline
	poller     *poller.Poller
	dispatcher *inbound.Dispatcher
	handler    *inbound.HTTPHandler
	facade     *Facade
}

func New(ctx context.Context, runtime Config, options ...Option) (*Runtime, error) {
	deps := core.ResolveDependencies(options...)
	cfg, err := core.LoadConfig(ctx, runtime, deps.ConfigProvider, deps.OptionsResolver)
	if err != nil {
		return nil, err
	}
	if deps.OrderStore == nil {
		return nil, runtimeError("backorder: order store is required")
	}
	if deps.Ledger == nil {
		return nil, runtimeError("backorder: processed ledger is required")
	}

	r := &Runtime{cfg: cfg, deps: deps, store: deps.OrderStore, ledger: deps.Ledger}

	statusProvider, placer, err := r.resolveProvider()
	if err != nil {
		return nil, err
	}
	registrarClient, err := r.resolveRegistrar()
	if err != nil {
		return nil, err
	}
	classifier := deps.Classifier
	if classifier == nil {
		classifier = registrar.NewClassifier(cfg.Registrar.CarrierID)
	}
	r.sink, err = r.resolveSink()
	if err != nil {
		return nil, err
	}

	r.pipeline, err = completion.New(completion.Settings{
		Store:           r.store,
		Registrar:       registrarClient,
		Classifier:      classifier,
		Placer:          placer,
		Sink:            r.sink,
		Now:             deps.Now,
		Logger:          deps.Logger,
		LoggerProvider:  deps.LoggerProvider,
		MetricsRecorder: deps.MetricsRecorder,
	})
	if err != nil {
		return nil, err
	}

	pollerSettings := poller.SettingsFromConfig(cfg.Poller)
	pollerSettings.Store = r.store
	pollerSettings.Provider = statusProvider
	pollerSettings.Completer = r.pipeline
	pollerSettings.Sink = r.sink
	pollerSettings.Now = deps.Now
	pollerSettings.Logger = deps.Logger
	pollerSettings.LoggerProvider = deps.LoggerProvider
	pollerSettings.MetricsRecorder = deps.MetricsRecorder
	r.poller, err = poller.New(pollerSettings)
	if err != nil {
		return nil, err
	}

	action := deps.Action
	if action == nil {
		if placer == nil {
			return nil, runtimeError("backorder: an order placer or trigger action is required")
		}
		action, err = backordercmd.NewPlacementAction(backordercmd.PlacementSettings{
			Placer:          placer,
			Store:           r.store,
			Sink:            r.sink,
			Logger:          deps.Logger,
			LoggerProvider:  deps.LoggerProvider,
			MetricsRecorder: deps.MetricsRecorder,
		})
		if err != nil {
			return nil, err
		}
	}

	dispatcherSettings := inbound.SettingsFromConfig(cfg.Dispatcher)
	dispatcherSettings.Ledger = r.ledger
	dispatcherSettings.Action = action
	dispatcherSettings.Locker = deps.DistributedLocker
	dispatcherSettings.LocalLocker = deps.LocalLocker
	dispatcherSettings.Logger = deps.Logger
	dispatcherSettings.LoggerProvider = deps.LoggerProvider
	dispatcherSettings.MetricsRecorder = deps.MetricsRecorder
	r.dispatcher, err = inbound.NewDispatcher(dispatcherSettings)
	if err != nil {
		return nil, err
	}

	r.handler = inbound.NewHTTPHandler(r.dispatcher, inbound.HTTPHandlerSettings{
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		Now:            deps.Now,
		Logger:         deps.Logger,
		LoggerProvider: deps.LoggerProvider,
	})

	r.facade, err = NewFacade(r.store, r.ledger, r.poller, r.dispatcher)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runtime) resolveProvider() (core.StatusProvider, core.OrderPlacer, error) {
	statusProvider := r.deps.StatusProvider
	placer := r.deps.OrderPlacer
	if (statusProvider == nil || placer == nil) && strings.TrimSpace(r.cfg.Provider.BaseURL) != "" {
		settings := provider.SettingsFromConfig(r.cfg.Provider)
		settings.Logger = r.deps.Logger
		settings.LoggerProvider = r.deps.LoggerProvider
		settings.MetricsRecorder = r.deps.MetricsRecorder
		client, err := provider.NewClient(settings)
		if err != nil {
			return nil, nil, err
		}
		if statusProvider == nil {
			statusProvider = client
		}
		if placer == nil {
			placer = client
		}
	}
	if statusProvider == nil {
		return nil, nil, runtimeError("backorder: a status provider or provider.base_url is required")
	}
	return statusProvider, placer, nil
}

func (r *Runtime) resolveRegistrar() (core.Registrar, error) {
	if r.deps.Registrar != nil {
		return r.deps.Registrar, nil
	}
	if strings.TrimSpace(r.cfg.Registrar.URL) == "" {
		return nil, runtimeError("backorder: a registrar or registrar.url is required")
	}
	settings := registrar.SettingsFromConfig(r.cfg.Registrar, r.cfg.Breaker)
	settings.Logger = r.deps.Logger
	settings.LoggerProvider = r.deps.LoggerProvider
	settings.MetricsRecorder = r.deps.MetricsRecorder
	return registrar.NewClient(settings)
}

func (r *Runtime) resolveSink() (core.NotificationSink, error) {
	if r.deps.NotificationSink != nil {
		return r.deps.NotificationSink, nil
	}
	loggerSink := notify.NewLoggerSink(r.deps.ComponentLogger("notify"), r.deps.MetricsRecorder)
	if strings.TrimSpace(r.cfg.Notify.URL) == "" {
		return loggerSink, nil
	}
	settings := notify.HTTPSinkSettingsFromConfig(r.cfg.Notify)
	settings.Logger = r.deps.Logger
	settings.LoggerProvider = r.deps.LoggerProvider
	settings.MetricsRecorder = r.deps.MetricsRecorder
	httpSink, err := notify.NewHTTPSink(settings)
	if err != nil {
		return nil, err
	}
	return notify.Multi{httpSink, loggerSink}, nil
}

func (r *Runtime) Config() Config {
	if r == nil {
		return Config{}
	}
	return r.cfg
}

func (r *Runtime) Store() core.OrderStore {
	return r.store
}

func (r *Runtime) Ledger() core.ProcessedLedger {
	return r.ledger
}

func (r *Runtime) Pipeline() *completion.Pipeline {
	return r.pipeline
}

func (r *Runtime) Poller() *poller.Poller {
	return r.poller
}

func (r *Runtime) Dispatcher() *inbound.Dispatcher {
	return r.dispatcher
}

func (r *Runtime) Facade() *Facade {
	return r.facade
}

// HTTPHandler serves the trigger webhook.
func (r *Runtime) HTTPHandler() http.Handler {
	return r.handler
}

// Start launches the poll loop. It returns immediately.
func (r *Runtime) Start(ctx context.Context) {
	r.poller.Start(ctx)
}

// Stop halts the poll loop and waits for an in-flight tick to finish.
func (r *Runtime) Stop() {
	r.poller.Stop()
}

func (r *Runtime) Tick(ctx context.Context) (TickStats, error) {
	return r.poller.Tick(ctx)
}

func (r *Runtime) Dispatch(ctx context.Context, trigger Trigger) (DispatchResult, error) {
	return r.dispatcher.Dispatch(ctx, trigger)
}

// Wire exposes the runtime's commands and queries on the go-command bus.
func (r *Runtime) Wire(adapter *gocommand.RegistryAdapter, runnerOpts ...runner.Option) (*gocommand.Wiring, error) {
	return gocommand.Wire(adapter, r.facade.Handlers(), runnerOpts...)
}

func runtimeError(message string) error {
	return core.NewError(message, goerrors.CategoryBadInput, core.ErrorBadInput)
}
