package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"kartoteka/internal/export"
	"kartoteka/internal/model"
	"kartoteka/internal/slots"
)

// DefaultMaxRangeDays caps query windows when no limit is configured.
const DefaultMaxRangeDays = 366

var (
	ErrInvalidRange = errors.New("invalid date range")
	ErrRangeTooLong = errors.New("date range too long")
)

// ExpenseSource reads the stored ledger entries of a tenant dated on or before upTo.
type ExpenseSource interface {
	ListExpenses(ctx context.Context, tenantID int64, upTo time.Time) ([]model.Expense, error)
}

// Window is a tenant's expanded ledger over [From, To].
type Window struct {
	From    time.Time
	To      time.Time
	Entries []model.Expense
	Total   decimal.Decimal
}

type Service struct {
	store        ExpenseSource
	maxRangeDays int
	logger       zerolog.Logger
}

func NewService(store ExpenseSource, maxRangeDays int, logger *zerolog.Logger) *Service {
	if maxRangeDays <= 0 {
		maxRangeDays = DefaultMaxRangeDays
	}
	return &Service{
		store:        store,
		maxRangeDays: maxRangeDays,
		logger:       logger.With().Str("component", "ledger").Logger(),
	}
}

// ParseRange parses and checks a YYYY-MM-DD window.
func (s *Service) ParseRange(from, to string) (time.Time, time.Time, error) {
	f, err := slots.ParseDate(from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from %q", ErrInvalidRange, from)
	}
	t, err := slots.ParseDate(to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to %q", ErrInvalidRange, to)
	}
	if t.Before(f) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s is before %s", ErrInvalidRange, to, from)
	}
	if days := int(t.Sub(f).Hours()/24) + 1; days > s.maxRangeDays {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %d days, at most %d", ErrRangeTooLong, days, s.maxRangeDays)
	}
	return f, t, nil
}

// Window expands every entry of the tenant over [from, to], newest first.
func (s *Service) Window(ctx context.Context, tenantID int64, from, to time.Time) (*Window, error) {
	entries, err := s.store.ListExpenses(ctx, tenantID, to)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	w := &Window{From: from, To: to, Entries: ExpandAll(entries, from, to), Total: decimal.Zero}
	for _, e := range w.Entries {
		w.Total = w.Total.Add(e.Amount)
	}

	s.logger.Debug().
		Int64("tenant_id", tenantID).
		Str("from", slots.FormatDate(from)).
		Str("to", slots.FormatDate(to)).
		Int("stored", len(entries)).
		Int("occurrences", len(w.Entries)).
		Msg("ledger expanded")
	return w, nil
}

// MonthBounds returns the first and last day of the YYYY-MM month.
func MonthBounds(month string) (time.Time, time.Time, error) {
	first, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: month %q", ErrInvalidRange, month)
	}
	return first, first.AddDate(0, 1, -1), nil
}

// ExportMonth writes the month's expanded ledger as an xlsx workbook.
func (s *Service) ExportMonth(ctx context.Context, tenantID int64, month string, out io.Writer) error {
	from, to, err := MonthBounds(month)
	if err != nil {
		return err
	}
	w, err := s.Window(ctx, tenantID, from, to)
	if err != nil {
		return err
	}

	book := export.NewWorkbook()
	defer book.Close()

	if err := book.AddSheet(month); err != nil {
		return err
	}
	if err := book.WriteHeader([]string{"Date", "Title", "Amount", "Recurrence"}); err != nil {
		return err
	}
	for _, e := range w.Entries {
		amount, _ := e.Amount.Float64()
		if err := book.WriteRow([]interface{}{slots.FormatDate(e.Date), e.Title, amount, string(e.RecurringType)}); err != nil {
			return err
		}
	}
	total, _ := w.Total.Float64()
	if err := book.WriteRow([]interface{}{"", "Total", total, ""}); err != nil {
		return err
	}
	return book.Save(out)
}
