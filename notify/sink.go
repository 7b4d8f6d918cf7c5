// Package notify delivers backorder notifications to the origin's ticket
// thread. Sinks are fire-and-forget: failures are logged and counted, never
// returned to the caller.
package notify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-backorder/core"
	"github.com/goliatone/go-backorder/transport"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// LoggerSink writes notifications to the log. It is the default sink when no
// ticketing endpoint is configured.
type LoggerSink struct {
	observer core.Observer
}

func NewLoggerSink(logger core.Logger, metrics core.MetricsRecorder) *LoggerSink {
	return &LoggerSink{observer: core.NewObserver("backorder", glog.Ensure(logger), metrics)}
}

func (s *LoggerSink) Notify(ctx context.Context, notification core.Notification) {
	if s == nil {
		return
	}
	s.observer.Info(ctx, "backorder notification", map[string]any{
		"kind":             string(notification.Kind),
		"origin_reference": notification.OriginReference,
		"order_id":         notification.OrderID,
		"internal":         notification.Internal,
		"public":           notification.Public,
	})
	s.observer.Count(ctx, core.MetricNotificationSent+".total", 1, map[string]string{
		"kind": string(notification.Kind),
		"sink": "logger",
	})
}

type HTTPSinkSettings struct {
	URL     string
	Token   string
	Timeout time.Duration

	HTTPClient      transport.HTTPDoer
	Logger          core.Logger
	LoggerProvider  core.LoggerProvider
	MetricsRecorder core.MetricsRecorder
}

func HTTPSinkSettingsFromConfig(cfg core.NotifyConfig) HTTPSinkSettings {
	return HTTPSinkSettings{
		URL:     cfg.URL,
		Token:   cfg.Token,
		Timeout: cfg.TimeoutDuration(),
	}
}

// HTTPSink posts each notification as JSON to a ticketing endpoint.
type HTTPSink struct {
	url      string
	token    string
	timeout  time.Duration
	adapter  *transport.RESTAdapter
	observer core.Observer
}

func NewHTTPSink(settings HTTPSinkSettings) (*HTTPSink, error) {
	endpoint := strings.TrimSpace(settings.URL)
	if endpoint == "" {
		return nil, core.NewError("notification url is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = core.DefaultRequestTimeout
	}
	_, logger := glog.Resolve("notify", settings.LoggerProvider, settings.Logger)
	return &HTTPSink{
		url:      endpoint,
		token:    strings.TrimSpace(settings.Token),
		timeout:  timeout,
		adapter:  transport.NewRESTAdapter(settings.HTTPClient),
		observer: core.NewObserver("backorder", logger, settings.MetricsRecorder),
	}, nil
}

type notificationPayload struct {
	OriginReference string         `json:"origin_reference"`
	OrderID         string         `json:"order_id,omitempty"`
	Kind            string         `json:"kind"`
	InternalNote    string         `json:"internal_note,omitempty"`
	PublicComment   string         `json:"public_comment,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

func (s *HTTPSink) Notify(ctx context.Context, notification core.Notification) {
	if s == nil || s.adapter == nil {
		return
	}
	startedAt := time.Now()
	headers := map[string]string{}
	if s.token != "" {
		headers["Authorization"] = "Bearer " + s.token
	}
	_, err := s.adapter.DoJSON(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     s.url,
		Headers: headers,
		Timeout: s.timeout,
	}, notificationPayload{
		OriginReference: notification.OriginReference,
		OrderID:         notification.OrderID,
		Kind:            string(notification.Kind),
		InternalNote:    notification.Internal,
		PublicComment:   notification.Public,
		Metadata:        notification.Metadata,
	}, nil, core.ErrorInternal)
	s.observer.ObserveOperation(ctx, startedAt, core.MetricNotificationSent, err, map[string]any{
		"kind":             string(notification.Kind),
		"origin_reference": notification.OriginReference,
		"order_id":         notification.OrderID,
	})
}

// Multi fans a notification out to every sink in order.
type Multi []core.NotificationSink

func (m Multi) Notify(ctx context.Context, notification core.Notification) {
	for _, sink := range m {
		if sink == nil {
			continue
		}
		sink.Notify(ctx, notification)
	}
}

var (
	_ core.NotificationSink = (*LoggerSink)(nil)
	_ core.NotificationSink = (*HTTPSink)(nil)
	_ core.NotificationSink = Multi(nil)
)
