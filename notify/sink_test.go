package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-backorder/core"
)

type counterCall struct {
	name string
	tags map[string]string
}

type recordingMetrics struct {
	mu       sync.Mutex
	counters []counterCall
}

func (m *recordingMetrics) IncCounter(_ context.Context, name string, _ int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, counterCall{name: name, tags: tags})
}

func (m *recordingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func (m *recordingMetrics) snapshot() []counterCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]counterCall(nil), m.counters...)
}

func TestHTTPSink_PostsNotification(t *testing.T) {
	var (
		got  notificationPayload
		auth string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	metrics := &recordingMetrics{}
	sink, err := NewHTTPSink(HTTPSinkSettings{
		URL:             server.URL,
		Token:           "secret",
		Timeout:         time.Second,
		HTTPClient:      server.Client(),
		MetricsRecorder: metrics,
	})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	sink.Notify(context.Background(), core.Notification{
		OriginReference: "T-100",
		OrderID:         "ord-1",
		Kind:            core.NotificationCompleted,
		Internal:        "3 of 5 units registered",
		Public:          "Your numbers are ready",
	})

	if auth != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", auth)
	}
	if got.OriginReference != "T-100" || got.Kind != "completed" || got.InternalNote == "" || got.PublicComment == "" {
		t.Fatalf("unexpected payload %#v", got)
	}
	counters := metrics.snapshot()
	if len(counters) != 1 || counters[0].tags["status"] != "success" {
		t.Fatalf("expected one successful delivery counter, got %#v", counters)
	}
}

func TestHTTPSink_SwallowsDeliveryFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	metrics := &recordingMetrics{}
	sink, err := NewHTTPSink(HTTPSinkSettings{URL: server.URL, HTTPClient: server.Client(), MetricsRecorder: metrics})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	sink.Notify(context.Background(), core.Notification{OriginReference: "T-1", Kind: core.NotificationStatusUpdate})

	counters := metrics.snapshot()
	if len(counters) != 1 || counters[0].tags["status"] != "failure" {
		t.Fatalf("expected failed delivery to be counted, got %#v", counters)
	}
}

func TestNewHTTPSink_RequiresURL(t *testing.T) {
	if _, err := NewHTTPSink(HTTPSinkSettings{}); !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input error, got %v", err)
	}
}

type countingSink struct {
	count int
}

func (s *countingSink) Notify(context.Context, core.Notification) { s.count++ }

func TestMulti_FansOutAndSkipsNil(t *testing.T) {
	first, second := &countingSink{}, &countingSink{}
	metrics := &recordingMetrics{}
	sinks := Multi{first, nil, second, NewLoggerSink(nil, metrics)}

	sinks.Notify(context.Background(), core.Notification{Kind: core.NotificationNoUnits})

	if first.count != 1 || second.count != 1 {
		t.Fatalf("expected every sink to be called once, got %d %d", first.count, second.count)
	}
	counters := metrics.snapshot()
	if len(counters) != 1 || counters[0].name != "backorder.notifications.sent.total" || counters[0].tags["kind"] != "no_units" {
		t.Fatalf("unexpected logger sink counters %#v", counters)
	}
}
