package availability

import (
	"context"
	"fmt"

	"kartoteka/internal/model"
	"kartoteka/internal/slots"
)

// ServiceSource reads the active service catalog of a tenant.
type ServiceSource interface {
	ListActiveServices(ctx context.Context, tenantID int64) ([]model.Service, error)
}

// DemandRequest is the caller's service selection.
type DemandRequest struct {
	ServiceIDs []int64
	// OptionKeys are "field::option" keys. They only apply when exactly one
	// service is selected.
	OptionKeys []string
}

// Demand is a validated service selection with its bookable duration.
type Demand struct {
	DurationMinutes int
	RequiredSlots   int
	Services        []model.Service
	Options         []model.ResolvedOption
}

// Primary returns the first selected service.
func (d *Demand) Primary() model.Service {
	return d.Services[0]
}

// ServiceIDs returns the ids of the selected services in request order.
func (d *Demand) ServiceIDs() []int64 {
	ids := make([]int64, len(d.Services))
	for i, s := range d.Services {
		ids[i] = s.ID
	}
	return ids
}

// ResolveDemand validates a selection against the active catalog and computes
// how many consecutive slots it needs.
func ResolveDemand(ctx context.Context, src ServiceSource, tenantID int64, req DemandRequest) (*Demand, error) {
	ids := dedupe(req.ServiceIDs)
	if len(ids) == 0 {
		return nil, ErrNoServiceSelected
	}

	catalog, err := src.ListActiveServices(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}

	byID := make(map[int64]int, len(catalog))
	children := make(map[int64]int)
	for i := range catalog {
		byID[catalog[i].ID] = i
		if p := catalog[i].ParentID; p != nil {
			children[*p]++
		}
	}

	selected := make([]model.Service, 0, len(ids))
	for _, id := range ids {
		i, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrInvalidService, id)
		}
		selected = append(selected, catalog[i])
	}
	for _, s := range selected {
		if children[s.ID] > 0 {
			return nil, fmt.Errorf("%w: %q", ErrServiceHasSubservices, s.Name)
		}
	}

	d := &Demand{Services: selected}
	for _, s := range selected {
		d.DurationMinutes += s.DurationMinutes
	}

	if len(selected) == 1 && len(req.OptionKeys) > 0 {
		svc := selected[0]
		optionMinutes := 0
		for _, key := range dedupeStrings(req.OptionKeys) {
			opt, ok := svc.ResolveOption(key)
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrInvalidOption, key)
			}
			d.Options = append(d.Options, opt)
			optionMinutes += opt.DurationMinutes
		}
		if optionMinutes > 0 {
			d.DurationMinutes = optionMinutes
		}
	}

	if d.DurationMinutes <= 0 {
		return nil, ErrNoBookableDuration
	}
	d.RequiredSlots = slots.RequiredSlotCount(d.DurationMinutes)
	return d, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func dedupeStrings(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok || k == "" {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
