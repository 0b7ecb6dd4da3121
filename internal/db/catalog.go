package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"kartoteka/internal/model"
	"kartoteka/internal/slots"
)

// ListActiveServices returns the active services of a tenant ordered by id.
func (db *DB) ListActiveServices(ctx context.Context, tenantID int64) ([]model.Service, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, name, duration_minutes, parent_id, price, options, is_active, created_at
		FROM services
		WHERE tenant_id = ? AND is_active = 1
		ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var (
			s         model.Service
			parentID  sql.NullInt64
			price     string
			options   string
			createdAt sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Name, &s.DurationMinutes, &parentID, &price, &options, &s.IsActive, &createdAt); err != nil {
			return nil, err
		}
		if parentID.Valid {
			pid := parentID.Int64
			s.ParentID = &pid
		}
		if s.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("service %d price: %w", s.ID, err)
		}
		if options != "" {
			if err := json.Unmarshal([]byte(options), &s.Options); err != nil {
				return nil, fmt.Errorf("service %d options: %w", s.ID, err)
			}
		}
		if createdAt.Valid {
			s.CreatedAt = createdAt.Time
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListActiveWorkers returns the active workers of a tenant.
func (db *DB) ListActiveWorkers(ctx context.Context, tenantID int64) ([]model.Worker, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, name, services_configured, is_active, created_at
		FROM workers
		WHERE tenant_id = ? AND is_active = 1
		ORDER BY name, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Worker
	for rows.Next() {
		var (
			w         model.Worker
			createdAt sql.NullTime
		)
		if err := rows.Scan(&w.ID, &w.TenantID, &w.Name, &w.ServicesConfigured, &w.IsActive, &createdAt); err != nil {
			return nil, err
		}
		if createdAt.Valid {
			w.CreatedAt = createdAt.Time
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListWeeklySlots returns the weekly default rows of one weekday.
func (db *DB) ListWeeklySlots(ctx context.Context, tenantID int64, dayOfWeek int) ([]model.WeeklySlot, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT worker_id, day_of_week, slot
		FROM worker_weekly_slots
		WHERE tenant_id = ? AND day_of_week = ?
		ORDER BY worker_id, slot`, tenantID, dayOfWeek)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WeeklySlot
	for rows.Next() {
		var ws model.WeeklySlot
		if err := rows.Scan(&ws.WorkerID, &ws.DayOfWeek, &ws.Slot); err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

// ListWorkerServices returns every worker/service link of a tenant.
func (db *DB) ListWorkerServices(ctx context.Context, tenantID int64) ([]model.WorkerService, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT worker_id, service_id
		FROM worker_services
		WHERE tenant_id = ?
		ORDER BY worker_id, service_id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WorkerService
	for rows.Next() {
		var ws model.WorkerService
		if err := rows.Scan(&ws.WorkerID, &ws.ServiceID); err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

// ListDayOverrides returns the overrides of a tenant for one date.
func (db *DB) ListDayOverrides(ctx context.Context, tenantID int64, date time.Time) ([]model.DayOverride, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, worker_id, date, slots, service_ids, services_configured, reason, created_at, updated_at
		FROM day_overrides
		WHERE tenant_id = ? AND date = ?
		ORDER BY worker_id`, tenantID, slots.FormatDate(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DayOverride
	for rows.Next() {
		var (
			o         model.DayOverride
			day       string
			slotsJSON string
			svcJSON   string
			reason    sql.NullString
			createdAt sql.NullTime
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&o.ID, &o.TenantID, &o.WorkerID, &day, &slotsJSON, &svcJSON, &o.ServicesConfigured, &reason, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if o.Date, err = slots.ParseDate(day); err != nil {
			return nil, fmt.Errorf("override %d date: %w", o.ID, err)
		}
		if err := json.Unmarshal([]byte(slotsJSON), &o.Slots); err != nil {
			return nil, fmt.Errorf("override %d slots: %w", o.ID, err)
		}
		if err := json.Unmarshal([]byte(svcJSON), &o.ServiceIDs); err != nil {
			return nil, fmt.Errorf("override %d services: %w", o.ID, err)
		}
		o.Reason = reason.String
		if createdAt.Valid {
			o.CreatedAt = createdAt.Time
		}
		if updatedAt.Valid {
			o.UpdatedAt = updatedAt.Time
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
