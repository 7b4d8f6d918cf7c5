package devkit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-backorder/core"
)

type StatusScript struct {
	Detail core.OrderDetail
	Err    error
}

// ScriptedStatusProvider replays scripted responses per order id. The last
// script of an order repeats once the others are used up.
type ScriptedStatusProvider struct {
	mu      sync.Mutex
	scripts map[string][]StatusScript
	calls   map[string]int
}

func NewScriptedStatusProvider() *ScriptedStatusProvider {
	return &ScriptedStatusProvider{
		scripts: map[string][]StatusScript{},
		calls:   map[string]int{},
	}
}

func (p *ScriptedStatusProvider) Script(orderID string, scripts ...StatusScript) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[orderID] = append([]StatusScript(nil), scripts...)
}

func (p *ScriptedStatusProvider) Set(orderID string, detail core.OrderDetail) {
	p.Script(orderID, StatusScript{Detail: detail})
}

func (p *ScriptedStatusProvider) GetOrderDetail(_ context.Context, orderID string) (core.OrderDetail, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	index := p.calls[orderID]
	p.calls[orderID] = index + 1
	scripts := p.scripts[orderID]
	if len(scripts) == 0 {
		return core.OrderDetail{}, fmt.Errorf("devkit: no status scripted for order %q", orderID)
	}
	if index >= len(scripts) {
		index = len(scripts) - 1
	}
	script := scripts[index]
	if script.Err != nil {
		return core.OrderDetail{}, script.Err
	}
	detail := script.Detail
	if detail.OrderID == "" {
		detail.OrderID = orderID
	}
	detail.Units = append([]core.FulfilledUnit(nil), script.Detail.Units...)
	return detail, nil
}

func (p *ScriptedStatusProvider) Calls(orderID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[orderID]
}

// FakePlacer records placement requests and hands out sequential ids.
type FakePlacer struct {
	mu       sync.Mutex
	requests []core.PlacementRequest

	Prefix string
	Err    error
}

func (p *FakePlacer) PlaceOrder(_ context.Context, request core.PlacementRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, request)
	if p.Err != nil {
		return "", p.Err
	}
	prefix := p.Prefix
	if prefix == "" {
		prefix = "placed"
	}
	return fmt.Sprintf("%s-%d", prefix, len(p.requests)), nil
}

func (p *FakePlacer) Requests() []core.PlacementRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.PlacementRequest(nil), p.requests...)
}

// FakeRegistrar succeeds for every unit unless a failure is scripted for
// the unit id.
type FakeRegistrar struct {
	mu         sync.Mutex
	registered []string
	restricted []string

	RegisterFailures map[string]error
	RestrictFailures map[string]error
}

func (r *FakeRegistrar) Register(_ context.Context, unit core.Unit) core.CallResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, unit.ID)
	if err := lookupFailure(r.RegisterFailures, unit.ID); err != nil {
		return core.Failed(err)
	}
	return core.Succeeded()
}

func (r *FakeRegistrar) Restrict(_ context.Context, unit core.Unit) core.CallResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restricted = append(r.restricted, unit.ID)
	if err := lookupFailure(r.RestrictFailures, unit.ID); err != nil {
		return core.Failed(err)
	}
	return core.Succeeded()
}

func (r *FakeRegistrar) Registered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.registered...)
}

func (r *FakeRegistrar) Restricted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.restricted...)
}

func lookupFailure(failures map[string]error, unitID string) error {
	if len(failures) == 0 {
		return nil
	}
	if err, ok := failures[unitID]; ok {
		return err
	}
	return failures[strings.TrimPrefix(unitID, "+1")]
}

// RecordingSink keeps every notification it receives.
type RecordingSink struct {
	mu            sync.Mutex
	notifications []core.Notification
}

func (s *RecordingSink) Notify(_ context.Context, notification core.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, notification)
}

func (s *RecordingSink) Notifications() []core.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Notification(nil), s.notifications...)
}

func (s *RecordingSink) Count(kind core.NotificationKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, notification := range s.notifications {
		if notification.Kind == kind {
			count++
		}
	}
	return count
}

// PassthroughClassifier keeps the unit id as is and fills no attributes.
type PassthroughClassifier struct{}

func (PassthroughClassifier) Classify(unitID string) core.Unit {
	return core.Unit{ID: unitID}
}

var (
	_ core.StatusProvider   = (*ScriptedStatusProvider)(nil)
	_ core.OrderPlacer      = (*FakePlacer)(nil)
	_ core.Registrar        = (*FakeRegistrar)(nil)
	_ core.NotificationSink = (*RecordingSink)(nil)
	_ core.UnitClassifier   = PassthroughClassifier{}
)
