package sqlstore

import "github.com/goliatone/go-backorder/core"

var (
	_ core.OrderStore        = (*OrderStore)(nil)
	_ core.OrderLister       = (*OrderStore)(nil)
	_ core.ProcessedLedger   = (*ProcessedRequestStore)(nil)
	_ core.ProcessedLedger   = (*CachedProcessedLedger)(nil)
	_ core.DistributedLocker = (*LeaseLocker)(nil)
)
