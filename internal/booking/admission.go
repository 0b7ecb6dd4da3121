// Package booking admits reservations.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"kartoteka/internal/availability"
	"kartoteka/internal/events"
	"kartoteka/internal/metrics"
	"kartoteka/internal/model"
	"kartoteka/internal/slots"
)

// ErrBusy is returned when the worker's reservation book could not be locked in time.
var ErrBusy = errors.New("reservation book busy")

// Locker serializes admissions for one key.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Tx is the reservation book inside one storage transaction.
type Tx interface {
	ListReservations(ctx context.Context, tenantID int64, date time.Time) ([]model.Reservation, error)
	InsertReservation(ctx context.Context, r *model.Reservation) error
}

// Store reads the roster and runs reservation transactions. A non-nil error from
// fn rolls the transaction back.
type Store interface {
	availability.ScheduleStore
	InReservationTx(ctx context.Context, fn func(tx Tx) error) error
}

// Client is the contact of the person booking.
type Client struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// Request is a reservation attempt for one worker, date and start slot.
type Request struct {
	TenantID   int64
	Date       string
	WorkerID   int64
	Start      string
	ServiceIDs []int64
	OptionKeys []string
	Client     Client
}

type Service struct {
	services availability.ServiceSource
	store    Store
	resolver *availability.Resolver
	locker   Locker
	events   EventPublisher
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(services availability.ServiceSource, store Store, locker Locker, events EventPublisher, logger *zerolog.Logger) *Service {
	return &Service{
		services: services,
		store:    store,
		resolver: availability.NewResolver(store),
		locker:   locker,
		events:   events,
		logger:   logger.With().Str("component", "booking").Logger(),
		now:      time.Now,
	}
}

// LockKey identifies the critical section of one worker's day.
func LockKey(tenantID, workerID int64, date time.Time) string {
	return fmt.Sprintf("reservation:%d:%d:%s", tenantID, workerID, slots.FormatDate(date))
}

// Admit validates the request against the current catalog, roster and
// reservations and stores the reservation. Earlier availability answers are not
// trusted: everything is recomputed under the worker's day lock.
func (s *Service) Admit(ctx context.Context, req Request) (*model.Reservation, error) {
	date, err := availability.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	demand, err := availability.ResolveDemand(ctx, s.services, req.TenantID, availability.DemandRequest{
		ServiceIDs: req.ServiceIDs,
		OptionKeys: req.OptionKeys,
	})
	if err != nil {
		return nil, err
	}
	start, err := slots.Parse(req.Start)
	if err != nil {
		return nil, s.conflict(req, fmt.Errorf("%w: %v", availability.ErrSlotUnavailable, err))
	}
	startIdx, _ := slots.Index(start)

	release, err := s.locker.Acquire(ctx, LockKey(req.TenantID, req.WorkerID, date))
	if err != nil {
		metrics.IncAdmission("busy")
		return nil, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer release()

	roster, err := s.resolver.Resolve(ctx, availability.ResolveQuery{
		TenantID:   req.TenantID,
		Date:       date,
		ServiceIDs: demand.ServiceIDs(),
		WorkerIDs:  []int64{req.WorkerID},
	})
	if err != nil {
		return nil, s.failure(req, err)
	}
	plan, ok := roster.Plan(req.WorkerID)
	if !ok {
		return nil, s.conflict(req, fmt.Errorf("%w: worker %d", availability.ErrWorkerIneligible, req.WorkerID))
	}

	r := &model.Reservation{
		Reference:       uuid.NewString(),
		TenantID:        req.TenantID,
		WorkerID:        req.WorkerID,
		ServiceID:       demand.Primary().ID,
		Date:            date,
		TimeSlot:        start,
		DurationMinutes: demand.DurationMinutes,
		ClientName:      strings.TrimSpace(req.Client.Name),
		ClientPhone:     strings.TrimSpace(req.Client.Phone),
		ClientEmail:     strings.TrimSpace(req.Client.Email),
		Note:            Annotation(demand),
		CreatedAt:       s.now(),
	}

	err = s.store.InReservationTx(ctx, func(tx Tx) error {
		existing, err := tx.ListReservations(ctx, req.TenantID, date)
		if err != nil {
			return fmt.Errorf("list reservations: %w", err)
		}
		if err := availability.NewOccupancy(existing).Fits(plan, startIdx, demand.RequiredSlots); err != nil {
			return err
		}
		if err := tx.InsertReservation(ctx, r); err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, availability.ErrSlotUnavailable) {
			return nil, s.conflict(req, err)
		}
		return nil, s.failure(req, err)
	}

	metrics.IncAdmission("admitted")
	s.logger.Info().
		Int64("tenant_id", r.TenantID).
		Int64("worker_id", r.WorkerID).
		Str("date", req.Date).
		Str("slot", string(r.TimeSlot)).
		Int("duration_minutes", r.DurationMinutes).
		Int64("reservation_id", r.ID).
		Msg("reservation admitted")

	if s.events != nil {
		if err := s.events.PublishJSON(events.TypeReservationCreated, events.ReservationCreated{
			ReservationID:   r.ID,
			Reference:       r.Reference,
			TenantID:        r.TenantID,
			WorkerID:        r.WorkerID,
			ServiceID:       r.ServiceID,
			Date:            slots.FormatDate(r.Date),
			Start:           string(r.TimeSlot),
			DurationMinutes: r.DurationMinutes,
		}); err != nil {
			s.logger.Warn().Err(err).Int64("reservation_id", r.ID).Msg("publish reservation event")
		}
	}
	return r, nil
}

func (s *Service) conflict(req Request, err error) error {
	metrics.IncAdmission("conflict")
	s.logger.Warn().
		Err(err).
		Int64("tenant_id", req.TenantID).
		Int64("worker_id", req.WorkerID).
		Str("date", req.Date).
		Str("slot", req.Start).
		Msg("reservation rejected")
	return err
}

func (s *Service) failure(req Request, err error) error {
	metrics.IncAdmission("error")
	s.logger.Error().
		Err(err).
		Int64("tenant_id", req.TenantID).
		Int64("worker_id", req.WorkerID).
		Str("date", req.Date).
		Msg("reservation failed")
	return err
}

// Annotation lists the additional services and the chosen options of a demand.
// It is empty for a single service without options.
func Annotation(d *availability.Demand) string {
	var parts []string
	if len(d.Services) > 1 {
		names := make([]string, 0, len(d.Services)-1)
		for _, svc := range d.Services[1:] {
			names = append(names, svc.Name)
		}
		parts = append(parts, "Also: "+strings.Join(names, ", "))
	}
	if len(d.Options) > 0 {
		opts := make([]string, 0, len(d.Options))
		for _, o := range d.Options {
			opts = append(opts, o.FieldLabel+": "+o.Label)
		}
		parts = append(parts, "Options: "+strings.Join(opts, ", "))
	}
	return strings.Join(parts, "; ")
}
