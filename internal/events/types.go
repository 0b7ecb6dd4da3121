package events

// TypeReservationCreated is published after a reservation is committed.
const TypeReservationCreated = "reservation.created"

// ReservationCreated is the payload of TypeReservationCreated.
type ReservationCreated struct {
	ReservationID   int64  `json:"reservation_id"`
	Reference       string `json:"reference"`
	TenantID        int64  `json:"tenant_id"`
	WorkerID        int64  `json:"worker_id"`
	ServiceID       int64  `json:"service_id"`
	Date            string `json:"date"`
	Start           string `json:"start"`
	DurationMinutes int    `json:"duration_minutes"`
}
