package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"kartoteka/internal/metrics"
	"kartoteka/internal/model"
	"kartoteka/internal/slots"
)

// ReservationSource reads the reservations already held on a date.
type ReservationSource interface {
	ListReservations(ctx context.Context, tenantID int64, date time.Time) ([]model.Reservation, error)
}

// Offer is a start slot at which a worker can host the requested demand.
type Offer struct {
	WorkerID   int64        `json:"worker_id"`
	WorkerName string       `json:"worker_name"`
	Start      slots.Slot   `json:"start"`
	Slots      []slots.Slot `json:"slots"`
}

// BaseCell is one slot of a worker's calendar for display.
type BaseCell struct {
	WorkerID   int64      `json:"worker_id"`
	WorkerName string     `json:"worker_name"`
	Slot       slots.Slot `json:"slot"`
	Reserved   bool       `json:"reserved"`
}

// Query is an availability request.
type Query struct {
	TenantID   int64
	Date       string
	ServiceIDs []int64
	OptionKeys []string
}

// Result is the answer to an availability request. An empty offer list means
// nothing is free; it is not an error.
type Result struct {
	Date   time.Time
	Demand *Demand
	Offers []Offer
	Grid   []BaseCell
}

type span struct {
	start, end int
}

type workerLoad struct {
	taken []bool
	spans []span
}

// Occupancy indexes the occupied slot ranges of a date per worker.
type Occupancy struct {
	byWorker map[int64]*workerLoad
}

// NewOccupancy indexes reservations by worker. Reservations starting off the grid
// are ignored.
func NewOccupancy(reservations []model.Reservation) *Occupancy {
	o := &Occupancy{byWorker: make(map[int64]*workerLoad)}
	for i := range reservations {
		r := &reservations[i]
		start, end, ok := r.SlotRange()
		if !ok {
			continue
		}
		load := o.byWorker[r.WorkerID]
		if load == nil {
			load = &workerLoad{taken: make([]bool, slots.Len())}
			o.byWorker[r.WorkerID] = load
		}
		load.spans = append(load.spans, span{start: start, end: end})
		for j := start; j < end; j++ {
			load.taken[j] = true
		}
	}
	return o
}

// Reserved reports whether the slot at ordinal i is held by a reservation of the worker.
func (o *Occupancy) Reserved(workerID int64, i int) bool {
	load := o.byWorker[workerID]
	return load != nil && i >= 0 && i < len(load.taken) && load.taken[i]
}

// Fits checks that count slots from ordinal start can be booked for the plan's
// worker. It returns an error wrapping ErrSlotUnavailable otherwise.
//
// When count > 1 the range may also not leave exactly one free slot between
// itself and an existing reservation. Only the new range's size decides this;
// the neighbour's size does not matter.
func (o *Occupancy) Fits(plan *DayPlan, start, count int) error {
	end := start + count
	if start < 0 || end > slots.Len() {
		return fmt.Errorf("%w: runs past the end of the day", ErrSlotUnavailable)
	}
	if !plan.Covers(start, count) {
		return fmt.Errorf("%w: outside working hours", ErrSlotUnavailable)
	}

	load := o.byWorker[plan.WorkerID]
	if load == nil {
		return nil
	}
	for _, s := range load.spans {
		if start < s.end && s.start < end {
			return fmt.Errorf("%w: overlaps a reservation", ErrSlotUnavailable)
		}
		if count == 1 {
			continue
		}
		if start == s.end+1 && !load.taken[s.end] {
			return fmt.Errorf("%w: leaves a single free slot before", ErrSlotUnavailable)
		}
		if end+1 == s.start && !load.taken[end] {
			return fmt.Errorf("%w: leaves a single free slot after", ErrSlotUnavailable)
		}
	}
	return nil
}

// Calculator answers availability queries.
type Calculator struct {
	services     ServiceSource
	resolver     *Resolver
	reservations ReservationSource
	logger       zerolog.Logger
}

func NewCalculator(services ServiceSource, schedule ScheduleStore, reservations ReservationSource, logger *zerolog.Logger) *Calculator {
	return &Calculator{
		services:     services,
		resolver:     NewResolver(schedule),
		reservations: reservations,
		logger:       logger.With().Str("component", "availability").Logger(),
	}
}

// Query computes every (worker, start) pair that can host the requested services
// on the date, plus the display grid of all workers able to perform them.
func (c *Calculator) Query(ctx context.Context, q Query) (res *Result, err error) {
	defer func() {
		switch {
		case err == nil && len(res.Offers) == 0:
			metrics.IncAvailabilityQuery("empty")
		case err == nil:
			metrics.IncAvailabilityQuery("offers")
		case ErrorCode(err) != "":
			metrics.IncAvailabilityQuery("rejected")
		default:
			metrics.IncAvailabilityQuery("error")
		}
	}()

	date, err := ParseDate(q.Date)
	if err != nil {
		return nil, err
	}
	demand, err := ResolveDemand(ctx, c.services, q.TenantID, DemandRequest{
		ServiceIDs: q.ServiceIDs,
		OptionKeys: q.OptionKeys,
	})
	if err != nil {
		return nil, err
	}

	roster, err := c.resolver.Resolve(ctx, ResolveQuery{
		TenantID:   q.TenantID,
		Date:       date,
		ServiceIDs: demand.ServiceIDs(),
	})
	if err != nil {
		return nil, err
	}

	reservations, err := c.reservations.ListReservations(ctx, q.TenantID, date)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	occ := NewOccupancy(reservations)

	res = &Result{
		Date:   date,
		Demand: demand,
		Offers: Offers(roster, occ, demand.RequiredSlots),
		Grid:   BaseGrid(roster, occ),
	}

	c.logger.Debug().
		Int64("tenant_id", q.TenantID).
		Str("date", q.Date).
		Int("required_slots", demand.RequiredSlots).
		Int("workers", roster.Len()).
		Int("offers", len(res.Offers)).
		Msg("availability computed")
	return res, nil
}

// Offers lists every valid start for count slots, ordered by slot, then worker
// name, then worker id.
func Offers(roster *Roster, occ *Occupancy, count int) []Offer {
	type indexed struct {
		start int
		offer Offer
	}
	var found []indexed
	for _, plan := range roster.Plans() {
		for start := 0; start+count <= slots.Len(); start++ {
			if occ.Fits(plan, start, count) != nil {
				continue
			}
			span, _ := slots.Span(mustAt(start), count)
			found = append(found, indexed{start: start, offer: Offer{
				WorkerID:   plan.WorkerID,
				WorkerName: plan.WorkerName,
				Start:      span[0],
				Slots:      span,
			}})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.start != b.start {
			return a.start < b.start
		}
		if a.offer.WorkerName != b.offer.WorkerName {
			return a.offer.WorkerName < b.offer.WorkerName
		}
		return a.offer.WorkerID < b.offer.WorkerID
	})

	offers := make([]Offer, len(found))
	for i, f := range found {
		offers[i] = f.offer
	}
	return offers
}

// BaseGrid lists every allowed slot of every worker with its reserved flag.
func BaseGrid(roster *Roster, occ *Occupancy) []BaseCell {
	var cells []BaseCell
	for _, plan := range roster.Plans() {
		for i := 0; i < slots.Len(); i++ {
			if !plan.Allows(i) {
				continue
			}
			cells = append(cells, BaseCell{
				WorkerID:   plan.WorkerID,
				WorkerName: plan.WorkerName,
				Slot:       mustAt(i),
				Reserved:   occ.Reserved(plan.WorkerID, i),
			})
		}
	}
	return cells
}

func mustAt(i int) slots.Slot {
	s, ok := slots.At(i)
	if !ok {
		panic(fmt.Sprintf("slot ordinal %d out of range", i))
	}
	return s
}
