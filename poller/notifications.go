package poller

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-backorder/core"
)

const dateLayout = "2006-01-02 15:04 UTC"

func statusNotification(order core.TrackedOrder, detail core.OrderDetail, now time.Time, every time.Duration) core.Notification {
	estimate := "TBD"
	if detail.DesiredCompletionDate != nil {
		estimate = detail.DesiredCompletionDate.UTC().Format(dateLayout)
	}
	remote := strings.TrimSpace(detail.RemoteStatus)
	if remote == "" {
		remote = "unknown"
	}

	var note strings.Builder
	fmt.Fprintf(&note, "Backorder status update - %s\n\n", now.UTC().Format(dateLayout))
	fmt.Fprintf(&note, "Order ID: %s\n", order.OrderID)
	fmt.Fprintf(&note, "Resource: %s\n", order.ResourceDescriptor)
	fmt.Fprintf(&note, "Quantity: %d\n", order.RequestedQuantity)
	fmt.Fprintf(&note, "Current status: %s\n", strings.ToUpper(remote))
	fmt.Fprintf(&note, "Estimated completion: %s\n", estimate)
	if strings.EqualFold(remote, "pending") {
		note.WriteString("\nThe carrier is still processing this order.\n")
	}
	fmt.Fprintf(&note, "\nNext status update: %s", now.Add(every).UTC().Format(dateLayout))

	return core.Notification{
		OriginReference: order.OriginReference,
		OrderID:         order.OrderID,
		Kind:            core.NotificationStatusUpdate,
		Internal:        note.String(),
		Metadata: map[string]any{
			"remote_status": remote,
		},
	}
}

func stoppedNotification(order core.TrackedOrder, detail core.OrderDetail) core.Notification {
	due := "unknown"
	if detail.DesiredCompletionDate != nil {
		due = detail.DesiredCompletionDate.UTC().Format(dateLayout)
	}
	return core.Notification{
		OriginReference: order.OriginReference,
		OrderID:         order.OrderID,
		Kind:            core.NotificationStopped,
		Internal: fmt.Sprintf(
			"Backorder %s passed its desired completion date (%s) with status %s. Tracking has stopped; no further updates will be posted.",
			order.OrderID, due, strings.ToUpper(strings.TrimSpace(detail.RemoteStatus)),
		),
		Metadata: map[string]any{
			"remote_status": detail.RemoteStatus,
		},
	}
}
