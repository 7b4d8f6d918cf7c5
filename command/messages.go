package command

import (
	"strings"

	"github.com/goliatone/go-backorder/core"
)

const (
	TypeTrackOrder      = "backorder.command.order.track"
	TypeRunPollTick     = "backorder.command.poller.tick"
	TypeDispatchTrigger = "backorder.command.trigger.dispatch"
)

type TrackOrderMessage struct {
	Order core.TrackedOrder
}

func (TrackOrderMessage) Type() string { return TypeTrackOrder }

func (m TrackOrderMessage) Validate() error {
	if strings.TrimSpace(m.Order.OrderID) == "" {
		return invalidField("order_id", "is required")
	}
	if err := m.Order.Validate(); err != nil {
		return invalidPayload(err, "tracked order")
	}
	return nil
}

type RunPollTickMessage struct{}

func (RunPollTickMessage) Type() string { return TypeRunPollTick }

type DispatchTriggerMessage struct {
	Trigger core.Trigger
}

func (DispatchTriggerMessage) Type() string { return TypeDispatchTrigger }

func (m DispatchTriggerMessage) Validate() error {
	if strings.TrimSpace(m.Trigger.Key) == "" {
		return invalidField("key", "is required")
	}
	return nil
}

// TrackOrderResult is stored in the result collector by TrackOrderCommand.
type TrackOrderResult struct {
	Order   core.TrackedOrder
	Created bool
}
