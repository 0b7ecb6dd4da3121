package model

import (
	"time"

	"kartoteka/internal/slots"
)

// DefaultReservationMinutes is assumed for reservations stored without a duration.
const DefaultReservationMinutes = 30

type Reservation struct {
	ID              int64      `json:"id"`
	Reference       string     `json:"reference"`
	TenantID        int64      `json:"tenant_id"`
	WorkerID        int64      `json:"worker_id"`
	ServiceID       int64      `json:"service_id"`
	Date            time.Time  `json:"date"`
	TimeSlot        slots.Slot `json:"time_slot"`
	DurationMinutes int        `json:"duration_minutes"`
	ClientName      string     `json:"client_name"`
	ClientPhone     string     `json:"client_phone"`
	ClientEmail     string     `json:"client_email,omitempty"`
	Note            string     `json:"note,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// EffectiveDuration returns the stored duration or the default for unset rows.
func (r *Reservation) EffectiveDuration() int {
	if r.DurationMinutes <= 0 {
		return DefaultReservationMinutes
	}
	return r.DurationMinutes
}

// SlotCount returns the number of grid slots the reservation occupies.
func (r *Reservation) SlotCount() int {
	return slots.RequiredSlotCount(r.EffectiveDuration())
}

// SlotRange returns the occupied ordinal range [start, end) clipped to the grid.
func (r *Reservation) SlotRange() (start, end int, ok bool) {
	start, ok = slots.Index(r.TimeSlot)
	if !ok {
		return 0, 0, false
	}
	end = start + r.SlotCount()
	if end > slots.Len() {
		end = slots.Len()
	}
	return start, end, true
}

// OverlapsWith reports whether both reservations hold the same worker on the same
// date with intersecting slot ranges.
func (r *Reservation) OverlapsWith(other *Reservation) bool {
	if r.WorkerID != other.WorkerID || !r.Date.Equal(other.Date) {
		return false
	}
	s1, e1, ok1 := r.SlotRange()
	s2, e2, ok2 := other.SlotRange()
	if !ok1 || !ok2 {
		return false
	}
	return s1 < e2 && s2 < e1
}

// ContainsSlot reports whether the slot is inside the occupied range.
func (r *Reservation) ContainsSlot(s slots.Slot) bool {
	idx, ok := slots.Index(s)
	if !ok {
		return false
	}
	start, end, ok := r.SlotRange()
	return ok && idx >= start && idx < end
}
