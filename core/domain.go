package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidOrderStatusTransition = errors.New("core: invalid order status transition")
	ErrInvalidOrderQuantity         = errors.New("core: invalid order quantity")
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusStopped   OrderStatus = "stopped"
)

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusStopped
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusStopped:
		return true
	default:
		return false
	}
}

func orderTransitionAllowed(from OrderStatus, to OrderStatus) bool {
	return from == OrderStatusPending && to.Terminal()
}

// TrackedOrder is one backordered upstream order, keyed by the provider
// assigned order id.
type TrackedOrder struct {
	OrderID               string
	OriginReference       string
	ResourceDescriptor    string
	CarrierGroup          string
	RequestedQuantity     int
	Status                OrderStatus
	LastKnownRemoteStatus string
	LastNotifiedAt        *time.Time
	CompletionTime        *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (o TrackedOrder) Validate() error {
	if strings.TrimSpace(o.OrderID) == "" {
		return fmt.Errorf("core: order id is required")
	}
	if strings.TrimSpace(o.ResourceDescriptor) == "" {
		return fmt.Errorf("core: resource descriptor is required")
	}
	if o.RequestedQuantity < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidOrderQuantity, o.RequestedQuantity)
	}
	if o.Status != "" && !o.Status.Valid() {
		return fmt.Errorf("core: invalid order status %q", o.Status)
	}
	return nil
}

// TransitionTo moves the order to a terminal status. Terminal orders never
// move again.
func (o *TrackedOrder) TransitionTo(status OrderStatus, now time.Time) error {
	if o == nil {
		return nil
	}
	if !orderTransitionAllowed(o.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOrderStatusTransition, o.Status, status)
	}
	o.Status = status
	completed := now
	o.CompletionTime = &completed
	o.UpdatedAt = now
	return nil
}

// PlacementRequest asks the upstream provider for quantity more units of a
// resource on behalf of an origin reference.
type PlacementRequest struct {
	ResourceDescriptor string
	CarrierGroup       string
	Quantity           int
	OriginReference    string
}

func (r PlacementRequest) Validate() error {
	if strings.TrimSpace(r.ResourceDescriptor) == "" {
		return fmt.Errorf("core: resource descriptor is required")
	}
	if r.Quantity < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidOrderQuantity, r.Quantity)
	}
	return nil
}

type ProcessedRequest struct {
	Key           string
	Processed     bool
	ResultSummary map[string]any
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type FulfilledUnit struct {
	ID       string
	Complete bool
}

type OrderDetail struct {
	OrderID               string
	RemoteStatus          string
	Units                 []FulfilledUnit
	DesiredCompletionDate *time.Time
}

// FulfilledUnits returns the ids of completed units in provider order.
func (d OrderDetail) FulfilledUnits() []string {
	out := make([]string, 0, len(d.Units))
	for _, unit := range d.Units {
		id := strings.TrimSpace(unit.ID)
		if !unit.Complete || id == "" {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (d OrderDetail) PastDesiredDate(now time.Time) bool {
	return d.DesiredCompletionDate != nil && now.After(*d.DesiredCompletionDate)
}

// Unit is a single inventory item plus the attributes the registrar
// requires for it.
type Unit struct {
	ID             string
	UnitType       string
	RegionID       int
	CarrierTierID  int
	CarrierID      string
	VoiceEnabled   bool
	SMSEnabled     bool
	MMSEnabled     bool
	OwnerReference string
}

type CallResult struct {
	Success bool
	Kind    ErrorKind
	Err     error
}

func Succeeded() CallResult {
	return CallResult{Success: true, Kind: ErrorKindNone}
}

func Failed(err error) CallResult {
	if err == nil {
		return Succeeded()
	}
	return CallResult{Kind: ClassifyError(err), Err: err}
}

func (r CallResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

type UnitFailure struct {
	UnitID string
	Kind   ErrorKind
	Reason string
}

// CompletionReport summarises one pipeline run. Started is set once the run
// moved past its guard read and may have caused external side effects.
type CompletionReport struct {
	OrderID                string
	OriginReference        string
	Fulfilled              int
	Requested              int
	SuccessfulAdditions    []string
	FailedAdditions        []UnitFailure
	SuccessfulRestrictions []string
	FailedRestrictions     []UnitFailure
	ShortfallOrderID       string
	ShortfallQuantity      int
	ShortfallError         string
	NoUnits                bool
	Skipped                bool
	Started                bool
	CompletedAt            time.Time
}

func (r CompletionReport) Shortfall() int {
	if r.Requested <= r.Fulfilled {
		return 0
	}
	return r.Requested - r.Fulfilled
}

type NotificationKind string

const (
	NotificationPlacement    NotificationKind = "placement"
	NotificationStatusUpdate NotificationKind = "status_update"
	NotificationCompleted    NotificationKind = "completed"
	NotificationNoUnits      NotificationKind = "no_units"
	NotificationStopped      NotificationKind = "stopped"
)

type Notification struct {
	OriginReference string
	OrderID         string
	Kind            NotificationKind
	Internal        string
	Public          string
	Metadata        map[string]any
}

type Trigger struct {
	Key        string
	EventID    string
	Status     string
	Payload    map[string]any
	ReceivedAt time.Time
}

const TriggerStatusHold = "hold"

type DispatchOutcome string

const (
	DispatchProcessed        DispatchOutcome = "processed"
	DispatchAlreadyProcessed DispatchOutcome = "already_processed"
	DispatchInProgress       DispatchOutcome = "in_progress"
	DispatchIgnored          DispatchOutcome = "ignored"
)

type DispatchResult struct {
	Key     string
	Outcome DispatchOutcome
	Summary map[string]any
	Reason  string
}

// ActionResult is what an action reports back to the dispatcher. A skipped
// result leaves the trigger key unsettled so a later delivery on the same
// key can still act.
type ActionResult struct {
	Summary map[string]any
	Skipped bool
	Reason  string
}

type TickStats struct {
	Pending       int
	Polled        int
	ProviderFails int
	Transitions   int
	Completed     int
	Stopped       int
	Notified      int
}
