package command

import (
	"github.com/goliatone/go-backorder/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Commander[TrackOrderMessage]      = (*TrackOrderCommand)(nil)
	_ gocmd.Commander[RunPollTickMessage]     = (*RunPollTickCommand)(nil)
	_ gocmd.Commander[DispatchTriggerMessage] = (*DispatchTriggerCommand)(nil)
	_ core.Action                             = (*PlacementAction)(nil)
)
