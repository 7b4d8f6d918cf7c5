package command

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/goliatone/go-backorder/core"
	"github.com/goliatone/go-backorder/devkit"
)

func newPlacementFixture(t *testing.T) (*PlacementAction, *devkit.FakePlacer, *devkit.MemoryOrderStore, *devkit.RecordingSink) {
	t.Helper()
	placer := &devkit.FakePlacer{Prefix: "ord"}
	store := devkit.NewMemoryOrderStore()
	sink := &devkit.RecordingSink{}
	action, err := NewPlacementAction(PlacementSettings{Placer: placer, Store: store, Sink: sink})
	if err != nil {
		t.Fatalf("new placement action: %v", err)
	}
	return action, placer, store, sink
}

func TestPlacementAction_PlacesAndTracks(t *testing.T) {
	action, placer, store, sink := newPlacementFixture(t)

	result, err := action.Execute(context.Background(), core.Trigger{
		Key: "T-55",
		Payload: map[string]any{
			"resource_descriptor": json.Number("415"),
			"quantity":            json.Number("5"),
			"carrier_group":       "TG-1",
		},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Summary["order_id"] != "ord-1" || result.Summary["created"] != true {
		t.Fatalf("unexpected summary %#v", result.Summary)
	}
	requests := placer.Requests()
	if len(requests) != 1 || requests[0].Quantity != 5 || requests[0].OriginReference != "T-55" || requests[0].ResourceDescriptor != "415" {
		t.Fatalf("unexpected placement %#v", requests)
	}
	tracked, err := store.Get(context.Background(), "ord-1")
	if err != nil || tracked.Status != core.OrderStatusPending || tracked.CarrierGroup != "TG-1" {
		t.Fatalf("expected tracked pending order, got %#v %v", tracked, err)
	}
	if sink.Count(core.NotificationPlacement) != 1 {
		t.Fatalf("expected one placement notification")
	}
}

func TestPlacementAction_SkipsTriggersWithoutPlacement(t *testing.T) {
	action, placer, _, sink := newPlacementFixture(t)
	result, err := action.Execute(context.Background(), core.Trigger{Key: "T-1", Payload: map[string]any{"note": "hello"}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Skipped || result.Reason == "" {
		t.Fatalf("expected skipped result, got %#v", result)
	}
	if len(placer.Requests()) != 0 || len(sink.Notifications()) != 0 {
		t.Fatalf("skipped triggers must not place orders or notify")
	}
}

func TestPlacementAction_RejectsBadQuantities(t *testing.T) {
	action, placer, _, _ := newPlacementFixture(t)
	for _, quantity := range []any{nil, "many", 2.5, 0} {
		payload := map[string]any{"resource_descriptor": "415", "quantity": quantity}
		if _, err := action.Execute(context.Background(), core.Trigger{Key: "T-1", Payload: payload}); !core.HasTextCode(err, core.ErrorBadInput) {
			t.Fatalf("quantity %v: expected bad input, got %v", quantity, err)
		}
	}
	if len(placer.Requests()) != 0 {
		t.Fatalf("invalid requests must not reach the provider")
	}
}

func TestPlacementAction_PropagatesPlacementFailure(t *testing.T) {
	action, placer, store, _ := newPlacementFixture(t)
	placer.Err = errors.New("provider unavailable")
	_, err := action.Execute(context.Background(), core.Trigger{Key: "T-1", Payload: map[string]any{"resource_descriptor": "415", "quantity": 1}})
	if err == nil {
		t.Fatalf("expected placement error")
	}
	if pending, _ := store.ListPending(context.Background()); len(pending) != 0 {
		t.Fatalf("failed placements must not be tracked")
	}
}
