package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"kartoteka/internal/model"
	"kartoteka/internal/slots"
)

// ScheduleStore reads the roster and its configuration for one tenant.
type ScheduleStore interface {
	ListActiveWorkers(ctx context.Context, tenantID int64) ([]model.Worker, error)
	ListWeeklySlots(ctx context.Context, tenantID int64, dayOfWeek int) ([]model.WeeklySlot, error)
	ListWorkerServices(ctx context.Context, tenantID int64) ([]model.WorkerService, error)
	ListDayOverrides(ctx context.Context, tenantID int64, date time.Time) ([]model.DayOverride, error)
}

// Source tells where a day plan came from.
type Source int

const (
	// SourceWeekly means the worker's recurring default applies.
	SourceWeekly Source = iota
	// SourceOverride means a date override replaced the default entirely.
	SourceOverride
)

func (s Source) String() string {
	if s == SourceOverride {
		return "override"
	}
	return "weekly"
}

// ServiceRestriction is the set of services a worker performs on a date.
// An unconfigured restriction permits everything.
type ServiceRestriction struct {
	Configured bool
	Allowed    map[int64]struct{}
}

// Permits reports whether every id is allowed.
func (r ServiceRestriction) Permits(ids []int64) bool {
	if !r.Configured {
		return true
	}
	for _, id := range ids {
		if _, ok := r.Allowed[id]; !ok {
			return false
		}
	}
	return true
}

// DayPlan is one worker's effective availability for one date.
type DayPlan struct {
	WorkerID   int64
	WorkerName string
	Source     Source
	Services   ServiceRestriction
	// allowed is indexed by grid ordinal.
	allowed []bool
}

// Allows reports whether the slot at ordinal i is in the worker's set.
func (p *DayPlan) Allows(i int) bool {
	return i >= 0 && i < len(p.allowed) && p.allowed[i]
}

// Covers reports whether count consecutive slots from ordinal start are all allowed.
func (p *DayPlan) Covers(start, count int) bool {
	if count <= 0 || start < 0 || start+count > len(p.allowed) {
		return false
	}
	for i := start; i < start+count; i++ {
		if !p.allowed[i] {
			return false
		}
	}
	return true
}

// Slots returns the allowed slots in grid order.
func (p *DayPlan) Slots() []slots.Slot {
	var out []slots.Slot
	for i, ok := range p.allowed {
		if ok {
			s, _ := slots.At(i)
			out = append(out, s)
		}
	}
	return out
}

func newPlan(w model.Worker, src Source) *DayPlan {
	return &DayPlan{
		WorkerID:   w.ID,
		WorkerName: w.Name,
		Source:     src,
		allowed:    make([]bool, slots.Len()),
	}
}

func (p *DayPlan) allow(s slots.Slot) {
	if i, ok := slots.Index(s); ok {
		p.allowed[i] = true
	}
}

// Roster holds the day plans of all eligible workers, indexed by worker id.
type Roster struct {
	Date  time.Time
	plans []*DayPlan
	index map[int64]int
}

// Plans returns plans ordered by worker name, then id.
func (r *Roster) Plans() []*DayPlan {
	return r.plans
}

// Plan returns the plan of one worker.
func (r *Roster) Plan(workerID int64) (*DayPlan, bool) {
	i, ok := r.index[workerID]
	if !ok {
		return nil, false
	}
	return r.plans[i], true
}

// Len returns the number of eligible workers.
func (r *Roster) Len() int {
	return len(r.plans)
}

// ResolveQuery selects the workers and services a roster is built for.
type ResolveQuery struct {
	TenantID   int64
	Date       time.Time
	ServiceIDs []int64
	// WorkerIDs limits the roster when non-empty.
	WorkerIDs []int64
}

// Resolver builds per-date worker availability.
type Resolver struct {
	store ScheduleStore
}

func NewResolver(store ScheduleStore) *Resolver {
	return &Resolver{store: store}
}

// ParseDate parses a YYYY-MM-DD date, reporting ErrInvalidDate on failure.
func ParseDate(s string) (time.Time, error) {
	d, err := slots.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// Resolve returns the plans of every active worker able to perform all requested
// services on the date. A date override replaces the weekly default of its worker.
func (r *Resolver) Resolve(ctx context.Context, q ResolveQuery) (*Roster, error) {
	if q.Date.IsZero() {
		return nil, ErrInvalidDate
	}
	day := slots.DayOfWeek(q.Date)

	workers, err := r.store.ListActiveWorkers(ctx, q.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	weekly, err := r.store.ListWeeklySlots(ctx, q.TenantID, day)
	if err != nil {
		return nil, fmt.Errorf("list weekly slots: %w", err)
	}
	links, err := r.store.ListWorkerServices(ctx, q.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list worker services: %w", err)
	}
	overrides, err := r.store.ListDayOverrides(ctx, q.TenantID, q.Date)
	if err != nil {
		return nil, fmt.Errorf("list day overrides: %w", err)
	}

	var only map[int64]struct{}
	if len(q.WorkerIDs) > 0 {
		only = make(map[int64]struct{}, len(q.WorkerIDs))
		for _, id := range q.WorkerIDs {
			only[id] = struct{}{}
		}
	}

	overrideOf := make(map[int64]*model.DayOverride, len(overrides))
	for i := range overrides {
		overrideOf[overrides[i].WorkerID] = &overrides[i]
	}

	plans := make(map[int64]*DayPlan, len(workers))
	for _, w := range workers {
		if only != nil {
			if _, ok := only[w.ID]; !ok {
				continue
			}
		}
		if o, ok := overrideOf[w.ID]; ok {
			p := newPlan(w, SourceOverride)
			for _, s := range o.Slots {
				p.allow(s)
			}
			p.Services = restriction(o.ServicesConfigured, o.ServiceIDs)
			plans[w.ID] = p
			continue
		}
		p := newPlan(w, SourceWeekly)
		p.Services = ServiceRestriction{Configured: w.ServicesConfigured, Allowed: map[int64]struct{}{}}
		plans[w.ID] = p
	}

	for _, ws := range weekly {
		if p, ok := plans[ws.WorkerID]; ok && p.Source == SourceWeekly {
			p.allow(ws.Slot)
		}
	}
	for _, l := range links {
		if p, ok := plans[l.WorkerID]; ok && p.Source == SourceWeekly && p.Services.Configured {
			p.Services.Allowed[l.ServiceID] = struct{}{}
		}
	}

	roster := &Roster{Date: q.Date, index: make(map[int64]int, len(plans))}
	for _, p := range plans {
		if p.Services.Permits(q.ServiceIDs) {
			roster.plans = append(roster.plans, p)
		}
	}
	sort.Slice(roster.plans, func(i, j int) bool {
		a, b := roster.plans[i], roster.plans[j]
		if a.WorkerName != b.WorkerName {
			return a.WorkerName < b.WorkerName
		}
		return a.WorkerID < b.WorkerID
	})
	for i, p := range roster.plans {
		roster.index[p.WorkerID] = i
	}
	return roster, nil
}

func restriction(configured bool, ids []int64) ServiceRestriction {
	r := ServiceRestriction{Configured: configured, Allowed: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		r.Allowed[id] = struct{}{}
	}
	return r
}
