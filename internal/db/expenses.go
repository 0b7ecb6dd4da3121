package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"kartoteka/internal/model"
	"kartoteka/internal/slots"
)

// ListExpenses returns the ledger entries of a tenant dated on or before upTo.
func (db *DB) ListExpenses(ctx context.Context, tenantID int64, upTo time.Time) ([]model.Expense, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, title, amount, date, recurring_type, created_at
		FROM expenses
		WHERE tenant_id = ? AND date <= ?
		ORDER BY date DESC, id DESC`, tenantID, slots.FormatDate(upTo))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Expense
	for rows.Next() {
		var (
			e         model.Expense
			amount    string
			day       string
			recurring string
			createdAt sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Title, &amount, &day, &recurring, &createdAt); err != nil {
			return nil, err
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("expense %d amount: %w", e.ID, err)
		}
		if e.Date, err = slots.ParseDate(day); err != nil {
			return nil, fmt.Errorf("expense %d date: %w", e.ID, err)
		}
		if e.RecurringType, err = model.ParseRecurringType(recurring); err != nil {
			return nil, fmt.Errorf("expense %d: %w", e.ID, err)
		}
		if createdAt.Valid {
			e.CreatedAt = createdAt.Time
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
