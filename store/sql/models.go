package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type trackedOrderRecord struct {
	bun.BaseModel `bun:"table:backorder_tracked_orders,alias:bto"`

	ID                    string     `bun:"id,pk"`
	OrderID               string     `bun:"order_id,notnull"`
	OriginReference       string     `bun:"origin_reference,notnull"`
	ResourceDescriptor    string     `bun:"resource_descriptor,notnull"`
	CarrierGroup          string     `bun:"carrier_group,notnull"`
	RequestedQuantity     int        `bun:"requested_quantity,notnull"`
	Status                string     `bun:"status,notnull"`
	LastKnownRemoteStatus string     `bun:"last_known_remote_status"`
	LastNotifiedAt        *time.Time `bun:"last_notified_at,nullzero"`
	CompletionTime        *time.Time `bun:"completion_time,nullzero"`
	CreatedAt             time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt             time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type processedRequestRecord struct {
	bun.BaseModel `bun:"table:backorder_processed_requests,alias:bpr"`

	ID            string         `bun:"id,pk"`
	RequestKey    string         `bun:"request_key,notnull"`
	Processed     bool           `bun:"processed,notnull"`
	ResultSummary map[string]any `bun:"result_summary,type:jsonb,notnull"`
	Attempts      int            `bun:"attempts,notnull"`
	LastError     string         `bun:"last_error"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type lockLeaseRecord struct {
	bun.BaseModel `bun:"table:backorder_lock_leases,alias:bll"`

	LockKey   string    `bun:"lock_key,pk"`
	Owner     string    `bun:"owner,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
