package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-backorder/core"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

const defaultMaxBodyBytes int64 = 1 << 20

// TriggerDispatcher is the part of Dispatcher the HTTP surface needs.
type TriggerDispatcher interface {
	Dispatch(ctx context.Context, trigger core.Trigger) (core.DispatchResult, error)
}

type HTTPHandlerSettings struct {
	MaxBodyBytes int64
	Now          func() time.Time

	Logger         core.Logger
	LoggerProvider core.LoggerProvider
}

// HTTPHandler accepts ticket webhooks and dispatches them as triggers.
type HTTPHandler struct {
	dispatcher   TriggerDispatcher
	maxBodyBytes int64
	now          func() time.Time
	observer     core.Observer
}

func NewHTTPHandler(dispatcher TriggerDispatcher, settings HTTPHandlerSettings) *HTTPHandler {
	_, logger := glog.Resolve("inbound.http", settings.LoggerProvider, settings.Logger)
	handler := &HTTPHandler{
		dispatcher:   dispatcher,
		maxBodyBytes: settings.MaxBodyBytes,
		now:          settings.Now,
		observer:     core.NewObserver("backorder", logger, nil),
	}
	if handler.maxBodyBytes <= 0 {
		handler.maxBodyBytes = defaultMaxBodyBytes
	}
	if handler.now == nil {
		handler.now = func() time.Time { return time.Now().UTC() }
	}
	return handler
}

type webhookPayload struct {
	TicketID any            `json:"ticket_id"`
	EventID  string         `json:"event_id"`
	Status   string         `json:"status"`
	Payload  map[string]any `json:"payload"`
}

type dispatchResponse struct {
	Key     string         `json:"key"`
	Outcome string         `json:"outcome"`
	Reason  string         `json:"reason,omitempty"`
	Summary map[string]any `json:"summary,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	TextCode string `json:"text_code"`
	Message  string `json:"message"`
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(w, invalidTrigger("method not allowed", http.StatusMethodNotAllowed, nil))
		return
	}
	if h.dispatcher == nil {
		h.writeError(w, misconfigured("inbound: dispatcher is not configured"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	trigger, err := h.decode(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), trigger)
	if err != nil {
		h.observer.Error(r.Context(), "trigger dispatch failed", map[string]any{
			"key":   trigger.Key,
			"error": err.Error(),
		})
		h.writeError(w, err)
		return
	}
	writeJSON(w, statusForOutcome(result.Outcome), dispatchResponse{
		Key:     result.Key,
		Outcome: string(result.Outcome),
		Reason:  result.Reason,
		Summary: result.Summary,
	})
}

func (h *HTTPHandler) decode(r *http.Request) (core.Trigger, error) {
	var payload webhookPayload
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.Trigger{}, invalidTrigger("inbound: request body too large",
				http.StatusRequestEntityTooLarge, map[string]any{"limit": tooLarge.Limit})
		}
		return core.Trigger{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "inbound: invalid json body").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ErrorBadInput)
	}

	key := ticketKey(payload.TicketID)
	if key == "" {
		return core.Trigger{}, goerrors.NewValidation("inbound: invalid trigger",
			goerrors.FieldError{Field: "ticket_id", Message: "is required"},
		).WithCode(http.StatusBadRequest).WithTextCode(core.ErrorBadInput)
	}
	eventID := strings.TrimSpace(payload.EventID)
	if eventID == "" {
		eventID = uuid.NewString()
	}
	return core.Trigger{
		Key:        key,
		EventID:    eventID,
		Status:     strings.TrimSpace(payload.Status),
		Payload:    payload.Payload,
		ReceivedAt: h.now(),
	}, nil
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	mapped := core.MapError(err)
	status := mapped.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{Error: errorBody{TextCode: mapped.TextCode, Message: mapped.Message}})
}

func statusForOutcome(outcome core.DispatchOutcome) int {
	switch outcome {
	case core.DispatchProcessed:
		return http.StatusAccepted
	case core.DispatchInProgress:
		return http.StatusConflict
	default:
		return http.StatusOK
	}
}

func ticketKey(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

var _ TriggerDispatcher = (*Dispatcher)(nil)
