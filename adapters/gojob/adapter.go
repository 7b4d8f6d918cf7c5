package gojob

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-backorder/core"

	goerrors "github.com/goliatone/go-errors"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDDispatchTrigger = "backorder.trigger.dispatch"
	JobIDPollTick        = "backorder.poller.tick"

	scriptDispatchTrigger = "backorder/trigger/dispatch"
	scriptPollTick        = "backorder/poller/tick"

	defaultRetryDelay = 30 * time.Second
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// Backoff doubles BaseDelay per attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// TriggerMessage encodes a trigger as a go-job execution message. The
// idempotency key pins one queued message per ticket event.
func TriggerMessage(trigger core.Trigger) (*job.ExecutionMessage, error) {
	key := strings.TrimSpace(trigger.Key)
	if key == "" {
		return nil, core.NewError("gojob: trigger key is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	params := map[string]any{
		"key":      key,
		"event_id": strings.TrimSpace(trigger.EventID),
		"status":   strings.TrimSpace(trigger.Status),
		"payload":  copyAnyMap(trigger.Payload),
	}
	if !trigger.ReceivedAt.IsZero() {
		params["received_at"] = trigger.ReceivedAt.UTC().Format(time.RFC3339Nano)
	}
	idempotencyKey := "trigger:" + key
	if eventID := strings.TrimSpace(trigger.EventID); eventID != "" {
		idempotencyKey += ":" + eventID
	}
	return &job.ExecutionMessage{
		JobID:          JobIDDispatchTrigger,
		ScriptPath:     scriptDispatchTrigger,
		Parameters:     params,
		IdempotencyKey: idempotencyKey,
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}, nil
}

// TriggerFromMessage decodes a trigger from a dequeued execution message.
// Parameters may have been serialized by the queue backend, so numbers and
// nested maps are accepted in their JSON decoded forms.
func TriggerFromMessage(msg *job.ExecutionMessage) (core.Trigger, error) {
	if msg == nil {
		return core.Trigger{}, core.NewError("gojob: execution message is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	if strings.TrimSpace(msg.JobID) != JobIDDispatchTrigger {
		return core.Trigger{}, core.NewError(
			fmt.Sprintf("gojob: unexpected job id %q", msg.JobID), goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	params := msg.Parameters
	trigger := core.Trigger{
		Key:     stringParam(params, "key"),
		EventID: stringParam(params, "event_id"),
		Status:  stringParam(params, "status"),
	}
	if trigger.Key == "" {
		return core.Trigger{}, core.NewError("gojob: trigger key is missing", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	payload, err := mapParam(params["payload"])
	if err != nil {
		return core.Trigger{}, err
	}
	trigger.Payload = payload
	if raw := stringParam(params, "received_at"); raw != "" {
		if at, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			trigger.ReceivedAt = at
		}
	}
	return trigger, nil
}

// PollTickMessage asks a worker to run one poller tick. Ticks scheduled for
// the same minute collapse into one message.
func PollTickMessage(at time.Time) *job.ExecutionMessage {
	slot := at.UTC().Truncate(time.Minute).Format("200601021504")
	return &job.ExecutionMessage{
		JobID:          JobIDPollTick,
		ScriptPath:     scriptPollTick,
		Parameters:     map[string]any{"scheduled_at": at.UTC().Format(time.RFC3339)},
		IdempotencyKey: "poll-tick:" + slot,
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}
}

type TriggerEnqueuer struct {
	enqueuer queue.Enqueuer
}

func NewTriggerEnqueuer(enqueuer queue.Enqueuer) *TriggerEnqueuer {
	return &TriggerEnqueuer{enqueuer: enqueuer}
}

func (a *TriggerEnqueuer) Enqueue(ctx context.Context, trigger core.Trigger) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	msg, err := TriggerMessage(trigger)
	if err != nil {
		return err
	}
	return a.enqueuer.Enqueue(ctx, msg)
}

func (a *TriggerEnqueuer) EnqueuePollTick(ctx context.Context, at time.Time) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	return a.enqueuer.Enqueue(ctx, PollTickMessage(at))
}

type TriggerDispatcher interface {
	Dispatch(ctx context.Context, trigger core.Trigger) (core.DispatchResult, error)
}

type Ticker interface {
	Tick(ctx context.Context) (core.TickStats, error)
}

type ConsumerSettings struct {
	Dequeuer   queue.Dequeuer
	Dispatcher TriggerDispatcher
	Ticker     Ticker
	Policy     RetryPolicy
	Hook       worker.Hook
	Now        func() time.Time
}

// Consumer drains queued backorder jobs and routes them to the dispatcher
// or the poller.
type Consumer struct {
	dequeuer   queue.Dequeuer
	dispatcher TriggerDispatcher
	ticker     Ticker
	policy     RetryPolicy
	hook       worker.Hook
	now        func() time.Time

	mu       sync.Mutex
	attempts map[string]int
}

func NewConsumer(settings ConsumerSettings) (*Consumer, error) {
	if settings.Dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if settings.Dispatcher == nil && settings.Ticker == nil {
		return nil, fmt.Errorf("gojob: dispatcher or ticker is required")
	}
	now := settings.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Consumer{
		dequeuer:   settings.Dequeuer,
		dispatcher: settings.Dispatcher,
		ticker:     settings.Ticker,
		policy:     settings.Policy,
		hook:       settings.Hook,
		now:        now,
		attempts:   map[string]int{},
	}, nil
}

// ProcessNext dequeues one delivery and settles it. Handler errors are
// settled through Nack and returned; only queue errors leave the delivery
// unsettled.
func (c *Consumer) ProcessNext(ctx context.Context) error {
	delivery, err := c.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	msg := delivery.Message()
	attempt := c.nextAttempt(msg)
	startedAt := c.now()
	event := worker.Event{Message: msg, Delivery: delivery, Attempt: attempt, StartedAt: startedAt}
	c.onStart(ctx, event)

	handleErr := c.handle(ctx, msg)
	event.Duration = c.now().Sub(startedAt)
	if handleErr == nil {
		c.forget(msg)
		c.onSuccess(ctx, event)
		return delivery.Ack(ctx)
	}

	event.Err = handleErr
	opts := queue.NackOptions{Requeue: true, Delay: c.policy.Backoff(attempt), Reason: handleErr.Error()}
	if core.ClassifyError(handleErr) == core.ErrorKindPermanent {
		opts = queue.NackOptions{DeadLetter: true, Reason: handleErr.Error()}
	}
	opts = c.policy.NormalizeAttempt(opts, attempt)
	if opts.Requeue {
		event.Delay = opts.Delay
		c.onRetry(ctx, event)
	} else {
		c.forget(msg)
		c.onFailure(ctx, event)
	}
	if err := delivery.Nack(ctx, opts); err != nil {
		return err
	}
	return handleErr
}

func (c *Consumer) handle(ctx context.Context, msg *job.ExecutionMessage) error {
	if msg == nil {
		return core.NewError("gojob: delivery carried no message", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	switch strings.TrimSpace(msg.JobID) {
	case JobIDDispatchTrigger:
		if c.dispatcher == nil {
			return core.NewError("gojob: no dispatcher configured for triggers", goerrors.CategoryInternal, core.ErrorInternal)
		}
		trigger, err := TriggerFromMessage(msg)
		if err != nil {
			return err
		}
		result, err := c.dispatcher.Dispatch(ctx, trigger)
		if err != nil {
			return err
		}
		if result.Outcome == core.DispatchInProgress {
			return core.NewError("gojob: trigger is being processed elsewhere", goerrors.CategoryOperation, core.ErrorDispatchInProgress).
				WithCode(http.StatusServiceUnavailable)
		}
		return nil
	case JobIDPollTick:
		if c.ticker == nil {
			return core.NewError("gojob: no ticker configured for poll ticks", goerrors.CategoryInternal, core.ErrorInternal)
		}
		_, err := c.ticker.Tick(ctx)
		return err
	default:
		return core.NewError(fmt.Sprintf("gojob: unknown job id %q", msg.JobID), goerrors.CategoryBadInput, core.ErrorBadInput)
	}
}

func (c *Consumer) nextAttempt(msg *job.ExecutionMessage) int {
	if msg == nil {
		return 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[msg.IdempotencyKey]++
	return c.attempts[msg.IdempotencyKey]
}

func (c *Consumer) forget(msg *job.ExecutionMessage) {
	if msg == nil {
		return
	}
	c.mu.Lock()
	delete(c.attempts, msg.IdempotencyKey)
	c.mu.Unlock()
}

func (c *Consumer) onStart(ctx context.Context, event worker.Event) {
	if c.hook != nil {
		c.hook.OnStart(ctx, event)
	}
}

func (c *Consumer) onSuccess(ctx context.Context, event worker.Event) {
	if c.hook != nil {
		c.hook.OnSuccess(ctx, event)
	}
}

func (c *Consumer) onFailure(ctx context.Context, event worker.Event) {
	if c.hook != nil {
		c.hook.OnFailure(ctx, event)
	}
}

func (c *Consumer) onRetry(ctx context.Context, event worker.Event) {
	if c.hook != nil {
		c.hook.OnRetry(ctx, event)
	}
}

// ObservingHook reports worker lifecycle events through the shared observer.
type ObservingHook struct {
	observer core.Observer
}

func NewObservingHook(logger core.Logger, metrics core.MetricsRecorder) *ObservingHook {
	return &ObservingHook{observer: core.NewObserver("backorder", logger, metrics)}
}

func (h *ObservingHook) OnStart(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.observer.Debug(ctx, "queued job started", eventFields(event))
}

func (h *ObservingHook) OnSuccess(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.observer.ObserveOperation(ctx, event.StartedAt, "queue.job", nil, eventFields(event))
}

func (h *ObservingHook) OnFailure(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.observer.ObserveOperation(ctx, event.StartedAt, "queue.job", event.Err, eventFields(event))
}

func (h *ObservingHook) OnRetry(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	fields := eventFields(event)
	fields["delay"] = event.Delay.String()
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	h.observer.Warn(ctx, "queued job will be retried", fields)
	h.observer.Count(ctx, "queue.job.retry", 1, map[string]string{"job_id": fmt.Sprint(fields["job_id"])})
}

func eventFields(event worker.Event) map[string]any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fields := map[string]any{"attempt": event.Attempt}
	if message != nil {
		fields["job_id"] = message.JobID
		fields["idempotency_key"] = message.IdempotencyKey
	}
	return fields
}

func stringParam(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if text, ok := value.(string); ok {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func mapParam(value any) (map[string]any, error) {
	switch typed := value.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return copyAnyMap(typed), nil
	case string, []byte:
		var raw []byte
		if text, ok := typed.(string); ok {
			raw = []byte(text)
		} else {
			raw = typed.([]byte)
		}
		out := map[string]any{}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, core.WrapError(err, goerrors.CategoryBadInput, "gojob: trigger payload is not a json object", core.ErrorBadInput)
		}
		return out, nil
	default:
		return nil, core.NewError(fmt.Sprintf("gojob: unsupported payload type %T", value), goerrors.CategoryBadInput, core.ErrorBadInput)
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ worker.Hook       = (*ObservingHook)(nil)
	_ TriggerDispatcher = TriggerDispatcherFunc(nil)
)

type TriggerDispatcherFunc func(ctx context.Context, trigger core.Trigger) (core.DispatchResult, error)

func (f TriggerDispatcherFunc) Dispatch(ctx context.Context, trigger core.Trigger) (core.DispatchResult, error) {
	return f(ctx, trigger)
}
