package backorder_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	backorder "github.com/goliatone/go-backorder"
	"github.com/goliatone/go-backorder/adapters/gocommand"
	"github.com/goliatone/go-backorder/core"
	"github.com/goliatone/go-backorder/devkit"
	"github.com/goliatone/go-backorder/query"
	"github.com/goliatone/go-command"
)

type runtimeFixture struct {
	store     *devkit.MemoryOrderStore
	ledger    *devkit.MemoryLedger
	provider  *devkit.ScriptedStatusProvider
	placer    *devkit.FakePlacer
	registrar *devkit.FakeRegistrar
	sink      *devkit.RecordingSink
	runtime   *backorder.Runtime
}

func newRuntimeFixture(t *testing.T) *runtimeFixture {
	t.Helper()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	f := &runtimeFixture{
		store:     devkit.NewMemoryOrderStore(),
		ledger:    devkit.NewMemoryLedger(),
		provider:  devkit.NewScriptedStatusProvider(),
		placer:    &devkit.FakePlacer{Prefix: "bo"},
		registrar: &devkit.FakeRegistrar{},
		sink:      &devkit.RecordingSink{},
	}
	runtime, err := backorder.New(context.Background(), backorder.Config{},
		backorder.WithOrderStore(f.store),
		backorder.WithProcessedLedger(f.ledger),
		backorder.WithStatusProvider(f.provider),
		backorder.WithOrderPlacer(f.placer),
		backorder.WithRegistrar(f.registrar),
		backorder.WithUnitClassifier(devkit.PassthroughClassifier{}),
		backorder.WithNotificationSink(f.sink),
		backorder.WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	f.runtime = runtime
	return f
}

func TestRuntime_TriggerToCompletion(t *testing.T) {
	f := newRuntimeFixture(t)
	ctx := context.Background()

	trigger := backorder.Trigger{
		Key:     "T-1",
		Payload: map[string]any{"resource_descriptor": "415", "quantity": 2, "carrier_group": "TG-1"},
	}
	result, err := f.runtime.Dispatch(ctx, trigger)
	if err != nil || result.Outcome != core.DispatchProcessed {
		t.Fatalf("unexpected dispatch result %#v %v", result, err)
	}
	if again, _ := f.runtime.Dispatch(ctx, trigger); again.Outcome != core.DispatchAlreadyProcessed {
		t.Fatalf("expected duplicate trigger to be settled, got %s", again.Outcome)
	}
	if got := len(f.placer.Requests()); got != 1 {
		t.Fatalf("expected one placement, got %d", got)
	}

	f.provider.Set("bo-1", core.OrderDetail{
		RemoteStatus: "Closed",
		Units: []core.FulfilledUnit{
			{ID: "+14155550101", Complete: true},
			{ID: "+14155550102", Complete: true},
		},
	})
	stats, err := f.runtime.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if stats.Completed != 1 {
		t.Fatalf("expected one completed order, got %#v", stats)
	}
	order, err := f.store.Get(ctx, "bo-1")
	if err != nil || order.Status != core.OrderStatusCompleted {
		t.Fatalf("expected completed order, got %#v %v", order, err)
	}
	if got := len(f.registrar.Registered()); got != 2 {
		t.Fatalf("expected both units registered, got %d", got)
	}
	if f.sink.Count(core.NotificationPlacement) != 1 || f.sink.Count(core.NotificationCompleted) != 1 {
		t.Fatalf("unexpected notifications %#v", f.sink.Notifications())
	}
}

func TestRuntime_HTTPHandlerDispatches(t *testing.T) {
	f := newRuntimeFixture(t)
	server := httptest.NewServer(f.runtime.HTTPHandler())
	defer server.Close()

	body := `{"ticket_id": 42, "payload": {"resource_descriptor": "212", "quantity": 1}}`
	resp, err := http.Post(server.URL, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	resp, err = http.Post(server.URL, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post duplicate: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", resp.StatusCode)
	}
	if orders, _ := f.store.ListByOrigin(context.Background(), "42"); len(orders) != 1 {
		t.Fatalf("expected one tracked order for ticket 42, got %d", len(orders))
	}
}

func TestRuntime_WireExposesFacade(t *testing.T) {
	f := newRuntimeFixture(t)
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	wiring, err := f.runtime.Wire(adapter)
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	defer wiring.Close()
	if wiring.Len() != 7 {
		t.Fatalf("expected every handler to be wired, got %d", wiring.Len())
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	ctx := context.Background()
	if _, err := gocommand.TrackOrder(ctx, core.TrackedOrder{
		OrderID:            "manual-1",
		OriginReference:    "T-9",
		ResourceDescriptor: "646",
		RequestedQuantity:  1,
	}); err != nil {
		t.Fatalf("track order: %v", err)
	}
	pending, err := gocommand.Query[query.ListPendingOrdersMessage, []core.TrackedOrder](ctx, query.ListPendingOrdersMessage{})
	if err != nil || len(pending) != 1 || pending[0].OrderID != "manual-1" {
		t.Fatalf("unexpected pending orders %#v %v", pending, err)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	ctx := context.Background()
	if _, err := backorder.New(ctx, backorder.Config{}); !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected missing store error, got %v", err)
	}

	base := []backorder.Option{
		backorder.WithOrderStore(devkit.NewMemoryOrderStore()),
		backorder.WithProcessedLedger(devkit.NewMemoryLedger()),
	}
	if _, err := backorder.New(ctx, backorder.Config{}, base...); err == nil {
		t.Fatalf("expected missing status provider error")
	}

	withProvider := append(base, backorder.WithStatusProvider(devkit.NewScriptedStatusProvider()))
	if _, err := backorder.New(ctx, backorder.Config{}, withProvider...); err == nil {
		t.Fatalf("expected missing registrar error")
	}

	withRegistrar := append(withProvider, backorder.WithRegistrar(&devkit.FakeRegistrar{}))
	if _, err := backorder.New(ctx, backorder.Config{}, withRegistrar...); err == nil {
		t.Fatalf("expected missing placer error")
	}
}

func TestNew_BuildsClientsFromConfig(t *testing.T) {
	runtime, err := backorder.New(context.Background(), backorder.Config{
		Provider:  core.ProviderConfig{BaseURL: "https://orders.example.com/v1"},
		Registrar: core.RegistrarConfig{URL: "https://inventory.example.com/graphql"},
		Notify:    core.NotifyConfig{URL: "https://tickets.example.com/notes"},
	},
		backorder.WithOrderStore(devkit.NewMemoryOrderStore()),
		backorder.WithProcessedLedger(devkit.NewMemoryLedger()),
	)
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	if runtime.Config().Poller.IntervalDuration() != core.DefaultPollInterval {
		t.Fatalf("expected default poll interval")
	}
	if runtime.Facade().Queries().ListOrdersByOrigin == nil {
		t.Fatalf("expected memory store to offer origin lookups")
	}
}

func TestRuntime_StartStop(t *testing.T) {
	f := newRuntimeFixture(t)
	f.runtime.Start(context.Background())
	if !f.runtime.Poller().Running() {
		t.Fatalf("expected poller to be running")
	}
	f.runtime.Stop()
	if f.runtime.Poller().Running() {
		t.Fatalf("expected poller to be stopped")
	}
}

func TestRuntime_SkippedTriggerDoesNotSettleTicket(t *testing.T) {
	f := newRuntimeFixture(t)
	ctx := context.Background()

	first, err := f.runtime.Dispatch(ctx, backorder.Trigger{Key: "T-9", Payload: map[string]any{"note": "any update?"}})
	if err != nil || first.Outcome != core.DispatchIgnored {
		t.Fatalf("expected non placement trigger to be ignored, got %#v %v", first, err)
	}

	second, err := f.runtime.Dispatch(ctx, backorder.Trigger{
		Key:     "T-9",
		Payload: map[string]any{"resource_descriptor": "415", "quantity": 1},
	})
	if err != nil || second.Outcome != core.DispatchProcessed {
		t.Fatalf("expected the real request to be processed, got %#v %v", second, err)
	}
	if got := len(f.placer.Requests()); got != 1 {
		t.Fatalf("expected one placement, got %d", got)
	}
}
