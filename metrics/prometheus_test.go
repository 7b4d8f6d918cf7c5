package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-backorder/core"
	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricName(t *testing.T) {
	cases := map[string]string{
		"backorder.poller.tick.total":       "backorder_poller_tick_total",
		"backorder.registrar-call..latency": "backorder_registrar_call_latency",
		" 1backorder.x ":                    "backorder_x",
		"...":                               "",
	}
	for input, want := range cases {
		if got := MetricName(input); got != want {
			t.Fatalf("MetricName(%q) = %q, want %q", input, got, want)
		}
	}
}

func scrape(t *testing.T, recorder *PrometheusRecorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read exposition: %v", err)
	}
	return string(body)
}

func TestPrometheusRecorder_CountsObserverOperations(t *testing.T) {
	recorder := NewPrometheusRecorder(nil)
	observer := core.NewObserver("backorder", nil, recorder)
	ctx := context.Background()

	observer.ObserveOperation(ctx, time.Now(), core.MetricPollTick, nil, nil)
	observer.ObserveOperation(ctx, time.Now(), core.MetricPollTick, nil, nil)
	observer.ObserveOperation(ctx, time.Now(), core.MetricPollTick, errors.New("list failed"), nil)
	observer.ObserveOperation(ctx, time.Now(), core.MetricRegistrarCall, nil, map[string]any{"breaker": "registrar.register"})

	text := scrape(t, recorder)
	success := `backorder_poller_tick_total{breaker="",job_id="",kind="",operation="poller.tick",outcome="",sink="",status="success",to=""} 2`
	if !strings.Contains(text, success) {
		t.Fatalf("expected two successful ticks, got:\n%s", text)
	}
	failure := `backorder_poller_tick_total{breaker="",job_id="",kind="",operation="poller.tick",outcome="",sink="",status="failure",to=""} 1`
	if !strings.Contains(text, failure) {
		t.Fatalf("expected one failed tick, got:\n%s", text)
	}
	if !strings.Contains(text, `backorder_registrar_call_duration_ms_bucket{breaker="registrar.register"`) {
		t.Fatalf("expected registrar duration histogram, got:\n%s", text)
	}
}

func TestPrometheusRecorder_DropsUnknownTagsAndSharesRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewPrometheusRecorder(registry)
	second := NewPrometheusRecorder(registry)
	ctx := context.Background()

	first.IncCounter(ctx, "backorder.notifications.sent.total", 1, map[string]string{"kind": "completed", "ticket": "T-1"})
	second.IncCounter(ctx, "backorder.notifications.sent.total", 2, map[string]string{"kind": "completed"})
	first.IncCounter(ctx, "backorder.notifications.sent.total", -1, nil)

	text := scrape(t, first)
	if strings.Contains(text, "ticket") {
		t.Fatalf("expected unknown tag to be dropped, got:\n%s", text)
	}
	series := `backorder_notifications_sent_total{breaker="",job_id="",kind="completed",operation="",outcome="",sink="",status="",to=""} 3`
	if !strings.Contains(text, series) {
		t.Fatalf("expected both recorders to share one series, got:\n%s", text)
	}
	if strings.Count(text, "backorder_notifications_sent_total{") != 1 {
		t.Fatalf("expected negative increments to be ignored, got:\n%s", text)
	}
}

func TestPrometheusRecorder_Handler(t *testing.T) {
	recorder := NewPrometheusRecorder(nil)
	recorder.IncCounter(context.Background(), "backorder.dispatcher.dispatch.total", 1, map[string]string{"outcome": "processed"})
	recorder.ObserveHistogram(context.Background(), "backorder.dispatcher.dispatch.duration_ms", 12, nil)

	text := scrape(t, recorder)
	if !strings.Contains(text, `outcome="processed"`) {
		t.Fatalf("expected dispatch counter in exposition, got:\n%s", text)
	}
	if !strings.Contains(text, "backorder_dispatcher_dispatch_duration_ms_bucket") {
		t.Fatalf("expected histogram buckets in exposition")
	}
}
