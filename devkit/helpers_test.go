package devkit

import "github.com/goliatone/go-backorder/core"

func detailWithStatus(status string) core.OrderDetail {
	return core.OrderDetail{RemoteStatus: status}
}
