package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func trackedOrderHandlers() repository.ModelHandlers[*trackedOrderRecord] {
	return repository.ModelHandlers[*trackedOrderRecord]{
		NewRecord: func() *trackedOrderRecord {
			return &trackedOrderRecord{}
		},
		GetID: func(record *trackedOrderRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *trackedOrderRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "order_id"
		},
		GetIdentifierValue: func(record *trackedOrderRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.OrderID)
		},
	}
}

func processedRequestHandlers() repository.ModelHandlers[*processedRequestRecord] {
	return repository.ModelHandlers[*processedRequestRecord]{
		NewRecord: func() *processedRequestRecord {
			return &processedRequestRecord{}
		},
		GetID: func(record *processedRequestRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *processedRequestRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "request_key"
		},
		GetIdentifierValue: func(record *processedRequestRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.RequestKey)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
