package model

import (
	"time"

	"kartoteka/internal/slots"
)

// Worker is a staff member who can be assigned availability and reservations.
type Worker struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	Name     string `json:"name"`
	// ServicesConfigured is false when the worker never restricted their service list,
	// which means they perform every service.
	ServicesConfigured bool      `json:"services_configured"`
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
}

// WeeklySlot is one row of a worker's recurring default schedule.
type WeeklySlot struct {
	WorkerID  int64      `json:"worker_id"`
	DayOfWeek int        `json:"day_of_week"` // 0-6 (Monday-Sunday)
	Slot      slots.Slot `json:"slot"`
}

// WorkerService links a worker to a service they are configured to perform.
type WorkerService struct {
	WorkerID  int64 `json:"worker_id"`
	ServiceID int64 `json:"service_id"`
}
