package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OptionKeySeparator joins an option field key and an option key: "length::long".
const OptionKeySeparator = "::"

// Service is a bookable (or grouping) service of a tenant. Services form a tree via ParentID.
type Service struct {
	ID              int64           `json:"id"`
	TenantID        int64           `json:"tenant_id"`
	Name            string          `json:"name"`
	DurationMinutes int             `json:"duration_minutes"`
	ParentID        *int64          `json:"parent_id,omitempty"`
	Price           decimal.Decimal `json:"price"`
	Options         []OptionField   `json:"options,omitempty"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
}

// OptionField is one question of a service form, e.g. "hair length".
type OptionField struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Options []Option `json:"options"`
}

// Option is a selectable answer of an OptionField.
type Option struct {
	Key             string          `json:"key"`
	Label           string          `json:"label"`
	DurationMinutes int             `json:"duration_minutes"`
	Price           decimal.Decimal `json:"price"`
}

// ResolvedOption is an option selected through its "field::option" key.
type ResolvedOption struct {
	Key             string          `json:"key"`
	FieldLabel      string          `json:"field_label"`
	Label           string          `json:"label"`
	DurationMinutes int             `json:"duration_minutes"`
	Price           decimal.Decimal `json:"price"`
}

// ResolveOption looks up a "field::option" key in the service form.
func (s *Service) ResolveOption(key string) (ResolvedOption, bool) {
	fieldKey, optionKey, found := strings.Cut(key, OptionKeySeparator)
	if !found || fieldKey == "" || optionKey == "" {
		return ResolvedOption{}, false
	}
	for _, f := range s.Options {
		if f.Key != fieldKey {
			continue
		}
		for _, o := range f.Options {
			if o.Key == optionKey {
				return ResolvedOption{
					Key:             key,
					FieldLabel:      f.Label,
					Label:           o.Label,
					DurationMinutes: o.DurationMinutes,
					Price:           o.Price,
				}, true
			}
		}
	}
	return ResolvedOption{}, false
}

// ValidateDuration checks that minutes is 0 or a multiple of 15 between 15 and 360.
func ValidateDuration(minutes int) error {
	if minutes == 0 {
		return nil
	}
	if minutes < 15 || minutes > 360 || minutes%15 != 0 {
		return fmt.Errorf("duration %d must be 0 or a multiple of 15 between 15 and 360", minutes)
	}
	return nil
}
