package availability

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"kartoteka/internal/model"
	"kartoteka/internal/slots"
)

// memStore is an in-memory catalog, roster and reservation book for one tenant.
type memStore struct {
	services     []model.Service
	workers      []model.Worker
	weekly       []model.WeeklySlot
	links        []model.WorkerService
	overrides    []model.DayOverride
	reservations []model.Reservation
	failWith     error
}

func (m *memStore) ListActiveServices(_ context.Context, _ int64) ([]model.Service, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []model.Service
	for _, s := range m.services {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) ListActiveWorkers(_ context.Context, _ int64) ([]model.Worker, error) {
	var out []model.Worker
	for _, w := range m.workers {
		if w.IsActive {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memStore) ListWeeklySlots(_ context.Context, _ int64, day int) ([]model.WeeklySlot, error) {
	var out []model.WeeklySlot
	for _, ws := range m.weekly {
		if ws.DayOfWeek == day {
			out = append(out, ws)
		}
	}
	return out, nil
}

func (m *memStore) ListWorkerServices(_ context.Context, _ int64) ([]model.WorkerService, error) {
	return m.links, nil
}

func (m *memStore) ListDayOverrides(_ context.Context, _ int64, date time.Time) ([]model.DayOverride, error) {
	var out []model.DayOverride
	for _, o := range m.overrides {
		if o.Date.Equal(date) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) ListReservations(_ context.Context, _ int64, date time.Time) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, r := range m.reservations {
		if r.Date.Equal(date) {
			out = append(out, r)
		}
	}
	return out, nil
}

var errBoom = errors.New("boom")

func mustDate(s string) time.Time {
	d, err := slots.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func service(id int64, name string, minutes int) model.Service {
	return model.Service{ID: id, TenantID: 1, Name: name, DurationMinutes: minutes, Price: decimal.NewFromInt(10), IsActive: true}
}

func worker(id int64, name string) model.Worker {
	return model.Worker{ID: id, TenantID: 1, Name: name, IsActive: true}
}

// weeklyRange adds every slot from..to (inclusive) on day for the worker.
func (m *memStore) weeklyRange(workerID int64, day int, from, to slots.Slot) {
	span, err := slots.ParseRange(string(from) + "-" + string(to))
	if err != nil {
		panic(err)
	}
	for _, s := range span {
		m.weekly = append(m.weekly, model.WeeklySlot{WorkerID: workerID, DayOfWeek: day, Slot: s})
	}
}

func (m *memStore) reserve(workerID int64, date string, start slots.Slot, minutes int) {
	m.reservations = append(m.reservations, model.Reservation{
		ID:              int64(len(m.reservations) + 1),
		TenantID:        1,
		WorkerID:        workerID,
		Date:            mustDate(date),
		TimeSlot:        start,
		DurationMinutes: minutes,
	})
}

func starts(offers []Offer, workerID int64) []slots.Slot {
	var out []slots.Slot
	for _, o := range offers {
		if o.WorkerID == workerID {
			out = append(out, o.Start)
		}
	}
	return out
}
