package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RecurringType is the recurrence vocabulary of ledger entries.
type RecurringType string

const (
	RecurringNone      RecurringType = "none"
	RecurringWeekly    RecurringType = "weekly"
	RecurringMonthly   RecurringType = "monthly"
	RecurringQuarterly RecurringType = "quarterly"
	RecurringYearly    RecurringType = "yearly"
)

// ParseRecurringType validates a recurrence name. Empty means none.
func ParseRecurringType(s string) (RecurringType, error) {
	switch RecurringType(s) {
	case "", RecurringNone:
		return RecurringNone, nil
	case RecurringWeekly, RecurringMonthly, RecurringQuarterly, RecurringYearly:
		return RecurringType(s), nil
	}
	return "", fmt.Errorf("unknown recurring type %q", s)
}

// Expense is a ledger entry. A recurring entry stands for all of its future
// occurrences; occurrences are computed on read and never stored.
type Expense struct {
	ID            int64           `json:"id"`
	TenantID      int64           `json:"tenant_id"`
	Title         string          `json:"title"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	RecurringType RecurringType   `json:"recurring_type"`
	CreatedAt     time.Time       `json:"created_at"`
}
