package model

import (
	"time"

	"kartoteka/internal/slots"
)

// DayOverride replaces a worker's weekly default for one date. It never merges with it:
// an override with no slots means the worker is off that day.
type DayOverride struct {
	ID                 int64        `json:"id"`
	TenantID           int64        `json:"tenant_id"`
	WorkerID           int64        `json:"worker_id"`
	Date               time.Time    `json:"date"`
	Slots              []slots.Slot `json:"slots"`
	ServiceIDs         []int64      `json:"service_ids"`
	ServicesConfigured bool         `json:"services_configured"`
	Reason             string       `json:"reason,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}
