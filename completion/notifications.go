package completion

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-backorder/core"
)

func completedNotification(order core.TrackedOrder, report core.CompletionReport) core.Notification {
	var internal strings.Builder
	fmt.Fprintf(&internal, "Backorder %s completed. %d of %d units fulfilled.\n", order.OrderID, report.Fulfilled, report.Requested)
	if len(report.SuccessfulAdditions) > 0 {
		fmt.Fprintf(&internal, "Added to inventory: %s\n", strings.Join(report.SuccessfulAdditions, ", "))
	}
	writeFailures(&internal, "Failed to add", report.FailedAdditions)
	if len(report.SuccessfulRestrictions) > 0 {
		fmt.Fprintf(&internal, "Restricted: %s\n", strings.Join(report.SuccessfulRestrictions, ", "))
	}
	writeFailures(&internal, "Failed to restrict", report.FailedRestrictions)
	switch {
	case report.ShortfallOrderID != "" && report.ShortfallError == "":
		fmt.Fprintf(&internal, "Shortfall of %d units re-ordered as %s.\n", report.ShortfallQuantity, report.ShortfallOrderID)
	case report.ShortfallQuantity > 0:
		fmt.Fprintf(&internal, "Shortfall of %d units could not be re-ordered: %s\n", report.ShortfallQuantity, report.ShortfallError)
	}

	public := fmt.Sprintf("Backorder %s completed! %d numbers have been added to inventory.", order.OrderID, len(report.SuccessfulAdditions))
	if report.ShortfallOrderID != "" {
		public += fmt.Sprintf(" The remaining %d numbers were ordered again and are being tracked.", report.ShortfallQuantity)
	}

	return core.Notification{
		OriginReference: order.OriginReference,
		OrderID:         order.OrderID,
		Kind:            core.NotificationCompleted,
		Internal:        strings.TrimRight(internal.String(), "\n"),
		Public:          public,
		Metadata: map[string]any{
			"fulfilled":          report.Fulfilled,
			"requested":          report.Requested,
			"added":              len(report.SuccessfulAdditions),
			"failed_additions":   len(report.FailedAdditions),
			"restricted":         len(report.SuccessfulRestrictions),
			"shortfall_order_id": report.ShortfallOrderID,
		},
	}
}

func noUnitsNotification(order core.TrackedOrder, report core.CompletionReport) core.Notification {
	return core.Notification{
		OriginReference: order.OriginReference,
		OrderID:         order.OrderID,
		Kind:            core.NotificationNoUnits,
		Internal: fmt.Sprintf(
			"Backorder %s closed without any completed units. Nothing was added to inventory; %d units are still outstanding.",
			order.OrderID, report.Requested,
		),
		Metadata: map[string]any{"requested": report.Requested},
	}
}

func writeFailures(out *strings.Builder, label string, failures []core.UnitFailure) {
	if len(failures) == 0 {
		return
	}
	fmt.Fprintf(out, "%s:\n", label)
	for _, failure := range failures {
		fmt.Fprintf(out, "  %s (%s): %s\n", failure.UnitID, failure.Kind, failure.Reason)
	}
}
