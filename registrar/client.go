// Package registrar adds fulfilled units to the inventory system and marks
// them restricted. Each operation runs behind its own circuit breaker.
package registrar

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-backorder/breaker"
	"github.com/goliatone/go-backorder/core"
	"github.com/goliatone/go-backorder/transport"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	QueryRegister = "add numbers to inventory"
	QueryRestrict = "block numbers"

	BreakerRegister = "registrar.register"
	BreakerRestrict = "registrar.restrict"
)

type Settings struct {
	URL               string
	Username          string
	Password          string
	Timeout           time.Duration
	UserEmail         string
	SkipNumberTesting bool
	Breaker           core.BreakerConfig

	HTTPClient      transport.HTTPDoer
	Logger          core.Logger
	LoggerProvider  core.LoggerProvider
	MetricsRecorder core.MetricsRecorder
}

func SettingsFromConfig(cfg core.RegistrarConfig, breakerCfg core.BreakerConfig) Settings {
	return Settings{
		URL:               cfg.URL,
		Username:          cfg.Username,
		Password:          cfg.Password,
		Timeout:           cfg.TimeoutDuration(),
		UserEmail:         cfg.UserEmail,
		SkipNumberTesting: cfg.SkipNumberTesting,
		Breaker:           breakerCfg,
	}
}

type Client struct {
	url               string
	auth              *transport.BasicAuth
	timeout           time.Duration
	userEmail         string
	skipNumberTesting bool
	adapter           *transport.RESTAdapter
	register          *breaker.Breaker
	restrict          *breaker.Breaker
	observer          core.Observer
}

func NewClient(settings Settings) (*Client, error) {
	endpoint := strings.TrimSpace(settings.URL)
	if endpoint == "" {
		return nil, core.NewError("registrar url is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = core.DefaultRequestTimeout
	}
	var auth *transport.BasicAuth
	if strings.TrimSpace(settings.Username) != "" {
		auth = &transport.BasicAuth{Username: settings.Username, Password: settings.Password}
	}
	_, logger := glog.Resolve("registrar", settings.LoggerProvider, settings.Logger)

	newBreaker := func(name string) *breaker.Breaker {
		cfg := breaker.SettingsFromConfig(name, settings.Breaker)
		cfg.Logger = settings.Logger
		cfg.LoggerProvider = settings.LoggerProvider
		cfg.MetricsRecorder = settings.MetricsRecorder
		return breaker.New(cfg)
	}

	return &Client{
		url:               endpoint,
		auth:              auth,
		timeout:           timeout,
		userEmail:         strings.TrimSpace(settings.UserEmail),
		skipNumberTesting: settings.SkipNumberTesting,
		adapter:           transport.NewRESTAdapter(settings.HTTPClient),
		register:          newBreaker(BreakerRegister),
		restrict:          newBreaker(BreakerRestrict),
		observer:          core.NewObserver("backorder", logger, settings.MetricsRecorder),
	}, nil
}

type requestEnvelope struct {
	Query   string         `json:"query"`
	RawArgs map[string]any `json:"raw_args"`
}

type responseEnvelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

// Register adds one unit to inventory.
func (c *Client) Register(ctx context.Context, unit core.Unit) core.CallResult {
	return c.call(ctx, c.register, QueryRegister, unit, map[string]any{
		"numbers":                                []map[string]any{unitArgs(unit)},
		"user_email":                             c.userEmail,
		"skip_number_testing":                    c.skipNumberTesting,
		"skip_phone_number_profile_restrictions": false,
		"reason_skip_number_testing":             registerReason(unit),
	})
}

// Restrict marks one registered unit as restricted.
func (c *Client) Restrict(ctx context.Context, unit core.Unit) core.CallResult {
	return c.call(ctx, c.restrict, QueryRestrict, unit, map[string]any{
		"numbers":    []string{unit.ID},
		"user_email": c.userEmail,
	})
}

// BreakerStates reports the state of both breakers, keyed by breaker name.
func (c *Client) BreakerStates() map[string]breaker.State {
	return map[string]breaker.State{
		BreakerRegister: c.register.State(),
		BreakerRestrict: c.restrict.State(),
	}
}

func (c *Client) call(
	ctx context.Context,
	cb *breaker.Breaker,
	query string,
	unit core.Unit,
	rawArgs map[string]any,
) core.CallResult {
	if c == nil || c.adapter == nil {
		return core.Failed(core.NewError("registrar client is not configured", goerrors.CategoryInternal, core.ErrorInternal))
	}
	if strings.TrimSpace(unit.ID) == "" {
		return core.Failed(core.NewError("unit id is required", goerrors.CategoryBadInput, core.ErrorBadInput))
	}

	startedAt := time.Now()
	err := cb.Execute(ctx, func(ctx context.Context) error {
		return c.send(ctx, query, rawArgs)
	})
	c.observer.ObserveOperation(ctx, startedAt, core.MetricRegistrarCall, err, map[string]any{
		"breaker": cb.Name(),
		"unit_id": unit.ID,
	})
	if err != nil {
		return core.Failed(err)
	}
	return core.Succeeded()
}

func (c *Client) send(ctx context.Context, query string, rawArgs map[string]any) error {
	var response responseEnvelope
	_, err := c.adapter.DoJSON(ctx, transport.Request{
		Method:    http.MethodPost,
		URL:       c.url,
		BasicAuth: c.auth,
		Timeout:   c.timeout,
	}, requestEnvelope{Query: query, RawArgs: rawArgs}, &response, core.ErrorRegistrarRequestFailed)
	if err != nil {
		return err
	}
	if response.Success != nil && !*response.Success {
		reason := strings.TrimSpace(response.Error)
		if reason == "" {
			reason = "registrar rejected the request"
		}
		return core.NewError(reason, goerrors.CategoryOperation, core.ErrorRegistrarRequestFailed).
			WithCode(http.StatusUnprocessableEntity).
			WithMetadata(map[string]any{"query": query})
	}
	return nil
}

func unitArgs(unit core.Unit) map[string]any {
	args := map[string]any{
		"number":          unit.ID,
		"number_type":     unit.UnitType,
		"voice_enabled":   unit.VoiceEnabled,
		"sms_enabled":     unit.SMSEnabled,
		"mms_enabled":     unit.MMSEnabled,
		"carrier_id":      unit.CarrierID,
		"carrier_tier_id": unit.CarrierTierID,
	}
	if unit.RegionID != 0 {
		args["region_id"] = unit.RegionID
	}
	return args
}

func registerReason(unit core.Unit) string {
	if owner := strings.TrimSpace(unit.OwnerReference); owner != "" {
		return fmt.Sprintf("Automated addition from order %s", owner)
	}
	return "Automated addition"
}

var _ core.Registrar = (*Client)(nil)
