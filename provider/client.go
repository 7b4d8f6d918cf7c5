// Package provider talks to the upstream order provider: it reads order
// detail for tracked orders and places new orders for shortfalls.
package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-backorder/core"
	"github.com/goliatone/go-backorder/transport"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	unitStatusComplete = "Complete"
	activateOnPlace    = "Y"
)

var dueDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type Settings struct {
	BaseURL    string
	Username   string
	Password   string
	PrivateKey string
	Timeout    time.Duration

	HTTPClient      transport.HTTPDoer
	Logger          core.Logger
	LoggerProvider  core.LoggerProvider
	MetricsRecorder core.MetricsRecorder
}

func SettingsFromConfig(cfg core.ProviderConfig) Settings {
	return Settings{
		BaseURL:    cfg.BaseURL,
		Username:   cfg.Username,
		Password:   cfg.Password,
		PrivateKey: cfg.PrivateKey,
		Timeout:    cfg.TimeoutDuration(),
	}
}

// Client is a StatusProvider and OrderPlacer over the provider REST API.
// It never retries; the caller decides when to ask again.
type Client struct {
	baseURL    string
	auth       *transport.BasicAuth
	privateKey string
	timeout    time.Duration
	adapter    *transport.RESTAdapter
	observer   core.Observer
}

func NewClient(settings Settings) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(settings.BaseURL), "/")
	if baseURL == "" {
		return nil, core.NewError("provider base url is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, core.WrapError(err, goerrors.CategoryBadInput, "invalid provider base url", core.ErrorBadInput)
	}
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = core.DefaultRequestTimeout
	}
	var auth *transport.BasicAuth
	if strings.TrimSpace(settings.Username) != "" {
		auth = &transport.BasicAuth{Username: settings.Username, Password: settings.Password}
	}
	logger := resolveLogger(settings)
	return &Client{
		baseURL:    baseURL,
		auth:       auth,
		privateKey: strings.TrimSpace(settings.PrivateKey),
		timeout:    timeout,
		adapter:    transport.NewRESTAdapter(settings.HTTPClient),
		observer:   core.NewObserver("backorder", logger, settings.MetricsRecorder),
	}, nil
}

type orderDetailEnvelope struct {
	OrderDetailResponse orderDetailPayload `json:"orderDetailResponse"`
}

type orderDetailPayload struct {
	OrderID        string        `json:"orderId"`
	OrderStatus    string        `json:"orderStatus"`
	DesiredDueDate string        `json:"desiredDueDate"`
	TNList         unitListField `json:"tnList"`
}

type unitListField struct {
	TNItem []unitItem `json:"tnItem"`
}

type unitItem struct {
	TN       string `json:"tn"`
	TNStatus string `json:"tnStatus"`
}

// GetOrderDetail fetches the current state of orderID. Transport failures
// and non 2xx responses are errors; an unknown business status is not.
func (c *Client) GetOrderDetail(ctx context.Context, orderID string) (detail core.OrderDetail, err error) {
	startedAt := time.Now()
	defer func() {
		c.observer.ObserveOperation(ctx, startedAt, core.MetricProviderOrderFetch, err, map[string]any{
			"order_id": orderID,
		})
	}()

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return core.OrderDetail{}, core.NewError("order id is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	var envelope orderDetailEnvelope
	_, err = c.adapter.DoJSON(ctx, transport.Request{
		Method:    http.MethodGet,
		URL:       c.baseURL + "/orders/" + url.PathEscape(orderID),
		BasicAuth: c.auth,
		Timeout:   c.timeout,
	}, nil, &envelope, core.ErrorProviderRequestFailed)
	if err != nil {
		return core.OrderDetail{}, err
	}
	return toOrderDetail(orderID, envelope.OrderDetailResponse), nil
}

type placeOrderPayload struct {
	PrivateKey             string `json:"privateKey,omitempty"`
	NPA                    string `json:"npa"`
	TrunkGroup             string `json:"trunkGroup,omitempty"`
	Activate               string `json:"activate"`
	Quantity               int    `json:"quantity"`
	CustomerOrderReference string `json:"customerOrderReference,omitempty"`
}

type placeOrderResponse struct {
	OrderID   string `json:"orderId"`
	TNOrderID string `json:"tnOrderId"`
}

// PlaceOrder requests a new upstream order and returns its id.
func (c *Client) PlaceOrder(ctx context.Context, request core.PlacementRequest) (orderID string, err error) {
	startedAt := time.Now()
	defer func() {
		c.observer.ObserveOperation(ctx, startedAt, core.MetricProviderPlaceOrder, err, map[string]any{
			"origin_reference": request.OriginReference,
			"quantity":         request.Quantity,
		})
	}()

	if err := request.Validate(); err != nil {
		return "", core.WrapError(err, goerrors.CategoryBadInput, "invalid placement request", core.ErrorBadInput)
	}
	payload := placeOrderPayload{
		PrivateKey: c.privateKey,
		NPA:        strings.TrimSpace(request.ResourceDescriptor),
		TrunkGroup: strings.TrimSpace(request.CarrierGroup),
		Activate:   activateOnPlace,
		Quantity:   request.Quantity,
	}
	if origin := strings.TrimSpace(request.OriginReference); origin != "" {
		payload.CustomerOrderReference = "Ticket_" + origin
	}

	var response placeOrderResponse
	_, err = c.adapter.DoJSON(ctx, transport.Request{
		Method:    http.MethodPost,
		URL:       c.baseURL + "/orders",
		BasicAuth: c.auth,
		Timeout:   c.timeout,
	}, payload, &response, core.ErrorProviderRequestFailed)
	if err != nil {
		return "", err
	}
	orderID = strings.TrimSpace(response.OrderID)
	if orderID == "" {
		orderID = strings.TrimSpace(response.TNOrderID)
	}
	if orderID == "" {
		return "", core.NewError(
			"provider accepted the order without an order id",
			goerrors.CategoryExternal,
			core.ErrorProviderRequestFailed,
		).WithCode(http.StatusBadGateway)
	}
	return orderID, nil
}

func toOrderDetail(orderID string, payload orderDetailPayload) core.OrderDetail {
	detail := core.OrderDetail{
		OrderID:      orderID,
		RemoteStatus: strings.TrimSpace(payload.OrderStatus),
		Units:        make([]core.FulfilledUnit, 0, len(payload.TNList.TNItem)),
	}
	if remoteID := strings.TrimSpace(payload.OrderID); remoteID != "" {
		detail.OrderID = remoteID
	}
	for _, item := range payload.TNList.TNItem {
		detail.Units = append(detail.Units, core.FulfilledUnit{
			ID:       strings.TrimSpace(item.TN),
			Complete: strings.EqualFold(strings.TrimSpace(item.TNStatus), unitStatusComplete),
		})
	}
	detail.DesiredCompletionDate = parseDueDate(payload.DesiredDueDate)
	return detail
}

func parseDueDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dueDateLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			value := parsed.UTC()
			return &value
		}
	}
	return nil
}

func resolveLogger(settings Settings) core.Logger {
	_, logger := glog.Resolve("provider", settings.LoggerProvider, settings.Logger)
	return logger
}

var (
	_ core.StatusProvider = (*Client)(nil)
	_ core.OrderPlacer    = (*Client)(nil)
)
