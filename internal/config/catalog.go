package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"kartoteka/internal/model"
	"kartoteka/internal/slots"
)

// ServiceConfig is one catalog service.
type ServiceConfig struct {
	ID              int64               `yaml:"id"`
	Name            string              `yaml:"name"`
	DurationMinutes int                 `yaml:"duration_minutes"`
	ParentID        *int64              `yaml:"parent_id,omitempty"`
	Price           string              `yaml:"price"`
	Inactive        bool                `yaml:"inactive"`
	Options         []OptionFieldConfig `yaml:"options,omitempty"`
}

// OptionFieldConfig is one question of a service form.
type OptionFieldConfig struct {
	Key     string         `yaml:"key"`
	Label   string         `yaml:"label"`
	Options []OptionConfig `yaml:"options"`
}

// OptionConfig is one answer of a service form question.
type OptionConfig struct {
	Key             string `yaml:"key"`
	Label           string `yaml:"label"`
	DurationMinutes int    `yaml:"duration_minutes"`
	Price           string `yaml:"price"`
}

// WorkerConfig is one staff member. A present services list, even an empty one,
// restricts the worker to those services.
type WorkerConfig struct {
	ID       int64               `yaml:"id"`
	Name     string              `yaml:"name"`
	Inactive bool                `yaml:"inactive"`
	Services []int64             `yaml:"services"`
	Schedule map[string][]string `yaml:"schedule"` // "mon": ["09:00-12:00", "14:00"]
}

// OverrideConfig replaces a worker's weekly schedule on one date.
type OverrideConfig struct {
	WorkerID int64    `yaml:"worker_id"`
	Date     string   `yaml:"date"`  // "2026-01-01"
	Slots    []string `yaml:"slots"` // empty means day off
	Services []int64  `yaml:"services"`
	Reason   string   `yaml:"reason"`
}

// ExpenseConfig is a ledger entry.
type ExpenseConfig struct {
	ID        int64  `yaml:"id"`
	Title     string `yaml:"title"`
	Amount    string `yaml:"amount"`
	Date      string `yaml:"date"`
	Recurring string `yaml:"recurring"`
}

// TenantConfig is everything configured for one tenant.
type TenantConfig struct {
	ID        int64            `yaml:"id"`
	Name      string           `yaml:"name"`
	Services  []ServiceConfig  `yaml:"services"`
	Workers   []WorkerConfig   `yaml:"workers"`
	Overrides []OverrideConfig `yaml:"overrides"`
	Expenses  []ExpenseConfig  `yaml:"expenses"`
}

// CatalogConfig is the root of catalog.yaml.
type CatalogConfig struct {
	Tenants []TenantConfig `yaml:"tenants"`
}

// TenantCatalog is a validated tenant converted to model types.
type TenantCatalog struct {
	TenantID       int64
	Name           string
	Services       []model.Service
	Workers        []model.Worker
	Weekly         []model.WeeklySlot
	WorkerServices []model.WorkerService
	Overrides      []model.DayOverride
	Expenses       []model.Expense
}

// Catalog is a loaded catalog file.
type Catalog struct {
	Tenants []TenantCatalog
}

// TenantIDs lists the configured tenants.
func (c *Catalog) TenantIDs() []int64 {
	ids := make([]int64, len(c.Tenants))
	for i, t := range c.Tenants {
		ids[i] = t.TenantID
	}
	return ids
}

var dayNames = map[string]int{
	"mon": 0, "monday": 0,
	"tue": 1, "tuesday": 1,
	"wed": 2, "wednesday": 2,
	"thu": 3, "thursday": 3,
	"fri": 4, "friday": 4,
	"sat": 5, "saturday": 5,
	"sun": 6, "sunday": 6,
}

// ParseDay maps a day name to 0 (Monday) .. 6 (Sunday).
func ParseDay(name string) (int, bool) {
	d, ok := dayNames[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// LoadCatalog loads and validates the catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		path = "configs/catalog.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var cfg CatalogConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	cat, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	return cat, nil
}

// Validate checks the configuration for errors.
func (c *CatalogConfig) Validate() error {
	_, err := c.Build()
	return err
}

// Build validates the configuration and converts it to model types.
func (c *CatalogConfig) Build() (*Catalog, error) {
	if len(c.Tenants) == 0 {
		return nil, fmt.Errorf("no tenants defined")
	}

	seen := make(map[int64]bool)
	cat := &Catalog{}
	for i := range c.Tenants {
		t := &c.Tenants[i]
		if t.ID <= 0 {
			return nil, fmt.Errorf("tenant[%d]: id must be positive, got %d", i, t.ID)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("tenant[%d]: duplicate id %d", i, t.ID)
		}
		seen[t.ID] = true

		tc, err := t.build(fmt.Sprintf("tenant[%d]", i))
		if err != nil {
			return nil, err
		}
		cat.Tenants = append(cat.Tenants, *tc)
	}
	return cat, nil
}

func (t *TenantConfig) build(prefix string) (*TenantCatalog, error) {
	tc := &TenantCatalog{TenantID: t.ID, Name: t.Name}

	services, err := t.buildServices(prefix)
	if err != nil {
		return nil, err
	}
	tc.Services = services
	known := make(map[int64]bool, len(services))
	for _, s := range services {
		known[s.ID] = true
	}

	workers := make(map[int64]bool, len(t.Workers))
	for i, w := range t.Workers {
		p := fmt.Sprintf("%s.workers[%d]", prefix, i)
		if w.ID <= 0 {
			return nil, fmt.Errorf("%s: id must be positive, got %d", p, w.ID)
		}
		if workers[w.ID] {
			return nil, fmt.Errorf("%s: duplicate id %d", p, w.ID)
		}
		workers[w.ID] = true
		if w.Name == "" {
			return nil, fmt.Errorf("%s: name is required", p)
		}

		tc.Workers = append(tc.Workers, model.Worker{
			ID:                 w.ID,
			TenantID:           t.ID,
			Name:               w.Name,
			ServicesConfigured: w.Services != nil,
			IsActive:           !w.Inactive,
		})
		for _, id := range w.Services {
			if !known[id] {
				return nil, fmt.Errorf("%s: unknown service %d", p, id)
			}
			tc.WorkerServices = append(tc.WorkerServices, model.WorkerService{WorkerID: w.ID, ServiceID: id})
		}

		days := make([]string, 0, len(w.Schedule))
		for day := range w.Schedule {
			days = append(days, day)
		}
		sort.Strings(days)
		for _, day := range days {
			dow, ok := ParseDay(day)
			if !ok {
				return nil, fmt.Errorf("%s.schedule: unknown day %q", p, day)
			}
			list, err := expandSlots(w.Schedule[day])
			if err != nil {
				return nil, fmt.Errorf("%s.schedule.%s: %w", p, day, err)
			}
			for _, s := range list {
				tc.Weekly = append(tc.Weekly, model.WeeklySlot{WorkerID: w.ID, DayOfWeek: dow, Slot: s})
			}
		}
	}

	overridden := make(map[string]bool)
	for i, o := range t.Overrides {
		p := fmt.Sprintf("%s.overrides[%d]", prefix, i)
		if !workers[o.WorkerID] {
			return nil, fmt.Errorf("%s: unknown worker %d", p, o.WorkerID)
		}
		date, err := slots.ParseDate(o.Date)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid date format '%s', expected YYYY-MM-DD", p, o.Date)
		}
		key := fmt.Sprintf("%d/%s", o.WorkerID, o.Date)
		if overridden[key] {
			return nil, fmt.Errorf("%s: duplicate override for worker %d on %s", p, o.WorkerID, o.Date)
		}
		overridden[key] = true

		list, err := expandSlots(o.Slots)
		if err != nil {
			return nil, fmt.Errorf("%s.slots: %w", p, err)
		}
		for _, id := range o.Services {
			if !known[id] {
				return nil, fmt.Errorf("%s: unknown service %d", p, id)
			}
		}
		tc.Overrides = append(tc.Overrides, model.DayOverride{
			TenantID:           t.ID,
			WorkerID:           o.WorkerID,
			Date:               date,
			Slots:              list,
			ServiceIDs:         o.Services,
			ServicesConfigured: o.Services != nil,
			Reason:             o.Reason,
		})
	}

	expenses := make(map[int64]bool, len(t.Expenses))
	for i, e := range t.Expenses {
		p := fmt.Sprintf("%s.expenses[%d]", prefix, i)
		if e.ID <= 0 {
			return nil, fmt.Errorf("%s: id must be positive, got %d", p, e.ID)
		}
		if expenses[e.ID] {
			return nil, fmt.Errorf("%s: duplicate id %d", p, e.ID)
		}
		expenses[e.ID] = true

		amount, err := decimal.NewFromString(e.Amount)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid amount %q", p, e.Amount)
		}
		date, err := slots.ParseDate(e.Date)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid date format '%s', expected YYYY-MM-DD", p, e.Date)
		}
		rt, err := model.ParseRecurringType(e.Recurring)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		tc.Expenses = append(tc.Expenses, model.Expense{
			ID:            e.ID,
			TenantID:      t.ID,
			Title:         e.Title,
			Amount:        amount,
			Date:          date,
			RecurringType: rt,
		})
	}

	return tc, nil
}

func (t *TenantConfig) buildServices(prefix string) ([]model.Service, error) {
	ids := make(map[int64]bool, len(t.Services))
	for i, s := range t.Services {
		p := fmt.Sprintf("%s.services[%d]", prefix, i)
		if s.ID <= 0 {
			return nil, fmt.Errorf("%s: id must be positive, got %d", p, s.ID)
		}
		if ids[s.ID] {
			return nil, fmt.Errorf("%s: duplicate id %d", p, s.ID)
		}
		ids[s.ID] = true
	}

	out := make([]model.Service, 0, len(t.Services))
	for i, s := range t.Services {
		p := fmt.Sprintf("%s.services[%d]", prefix, i)
		if s.Name == "" {
			return nil, fmt.Errorf("%s: name is required", p)
		}
		if err := model.ValidateDuration(s.DurationMinutes); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		if s.ParentID != nil && (*s.ParentID == s.ID || !ids[*s.ParentID]) {
			return nil, fmt.Errorf("%s: invalid parent_id %d", p, *s.ParentID)
		}
		price, err := parsePrice(s.Price)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		fields, err := buildOptions(s.Options)
		if err != nil {
			return nil, fmt.Errorf("%s.options: %w", p, err)
		}
		out = append(out, model.Service{
			ID:              s.ID,
			TenantID:        t.ID,
			Name:            s.Name,
			DurationMinutes: s.DurationMinutes,
			ParentID:        s.ParentID,
			Price:           price,
			Options:         fields,
			IsActive:        !s.Inactive,
		})
	}
	return out, nil
}

func buildOptions(in []OptionFieldConfig) ([]model.OptionField, error) {
	var out []model.OptionField
	fieldKeys := make(map[string]bool, len(in))
	for i, f := range in {
		if err := checkKey(f.Key); err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		if fieldKeys[f.Key] {
			return nil, fmt.Errorf("[%d]: duplicate key %q", i, f.Key)
		}
		fieldKeys[f.Key] = true

		field := model.OptionField{Key: f.Key, Label: f.Label}
		optionKeys := make(map[string]bool, len(f.Options))
		for j, o := range f.Options {
			if err := checkKey(o.Key); err != nil {
				return nil, fmt.Errorf("[%d].options[%d]: %w", i, j, err)
			}
			if optionKeys[o.Key] {
				return nil, fmt.Errorf("[%d].options[%d]: duplicate key %q", i, j, o.Key)
			}
			optionKeys[o.Key] = true
			if err := model.ValidateDuration(o.DurationMinutes); err != nil {
				return nil, fmt.Errorf("[%d].options[%d]: %w", i, j, err)
			}
			price, err := parsePrice(o.Price)
			if err != nil {
				return nil, fmt.Errorf("[%d].options[%d]: %w", i, j, err)
			}
			field.Options = append(field.Options, model.Option{
				Key:             o.Key,
				Label:           o.Label,
				DurationMinutes: o.DurationMinutes,
				Price:           price,
			})
		}
		out = append(out, field)
	}
	return out, nil
}

func checkKey(k string) error {
	if k == "" {
		return fmt.Errorf("key is required")
	}
	if strings.Contains(k, model.OptionKeySeparator) {
		return fmt.Errorf("key %q must not contain %q", k, model.OptionKeySeparator)
	}
	return nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	p, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q", s)
	}
	if p.IsNegative() {
		return decimal.Zero, fmt.Errorf("price %s cannot be negative", s)
	}
	return p, nil
}

func expandSlots(entries []string) ([]slots.Slot, error) {
	var out []slots.Slot
	seen := make(map[slots.Slot]bool)
	for _, e := range entries {
		list, err := slots.ParseRange(e)
		if err != nil {
			return nil, err
		}
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out, nil
}

// String returns a summary of the catalog.
func (c *Catalog) String() string {
	var services, workers, expenses int
	for _, t := range c.Tenants {
		services += len(t.Services)
		workers += len(t.Workers)
		expenses += len(t.Expenses)
	}
	return fmt.Sprintf("Catalog: %d tenants, %d services, %d workers, %d expenses",
		len(c.Tenants), services, workers, expenses)
}
