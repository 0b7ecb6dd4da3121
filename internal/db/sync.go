package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"kartoteka/internal/config"
	"kartoteka/internal/model"
	"kartoteka/internal/slots"
)

// SyncCatalog applies catalog.yaml to the database. Services and workers are
// upserted and the ones missing from the file are marked inactive. Weekly slots,
// worker/service links and day overrides are replaced. Ledger entries are
// upserted and the ones missing from the file are removed. Reservations are
// never touched.
func (db *DB) SyncCatalog(ctx context.Context, cat *config.Catalog) error {
	if cat == nil {
		return fmt.Errorf("catalog is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	for i := range cat.Tenants {
		t := &cat.Tenants[i]
		if err := syncTenant(ctx, tx, t, now); err != nil {
			return fmt.Errorf("sync tenant %d: %w", t.TenantID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	db.logger.Info().Int("tenants", len(cat.Tenants)).Msg("catalog synced")
	return nil
}

func syncTenant(ctx context.Context, tx *sql.Tx, t *config.TenantCatalog, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tenants (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at`,
		t.TenantID, t.Name, now, now,
	); err != nil {
		return fmt.Errorf("upsert tenant: %w", err)
	}

	serviceIDs := make([]int64, 0, len(t.Services))
	for _, s := range t.Services {
		options, err := json.Marshal(nonNilOptions(s.Options))
		if err != nil {
			return fmt.Errorf("encode service %d options: %w", s.ID, err)
		}
		var parentID interface{}
		if s.ParentID != nil {
			parentID = *s.ParentID
		}
		// Preserve created_at if the service already exists.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO services (tenant_id, id, name, duration_minutes, parent_id, price, options, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, COALESCE((SELECT created_at FROM services WHERE tenant_id = ? AND id = ?), ?), ?)
			ON CONFLICT(tenant_id, id) DO UPDATE SET
				name = excluded.name,
				duration_minutes = excluded.duration_minutes,
				parent_id = excluded.parent_id,
				price = excluded.price,
				options = excluded.options,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at`,
			t.TenantID, s.ID, s.Name, s.DurationMinutes, parentID, s.Price.String(), string(options), s.IsActive,
			t.TenantID, s.ID, now, now,
		); err != nil {
			return fmt.Errorf("sync service %d: %w", s.ID, err)
		}
		serviceIDs = append(serviceIDs, s.ID)
	}
	if err := deactivateMissing(ctx, tx, "services", t.TenantID, serviceIDs, now); err != nil {
		return err
	}

	workerIDs := make([]int64, 0, len(t.Workers))
	for _, w := range t.Workers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO workers (tenant_id, id, name, services_configured, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, COALESCE((SELECT created_at FROM workers WHERE tenant_id = ? AND id = ?), ?), ?)
			ON CONFLICT(tenant_id, id) DO UPDATE SET
				name = excluded.name,
				services_configured = excluded.services_configured,
				is_active = excluded.is_active,
				updated_at = excluded.updated_at`,
			t.TenantID, w.ID, w.Name, w.ServicesConfigured, w.IsActive,
			t.TenantID, w.ID, now, now,
		); err != nil {
			return fmt.Errorf("sync worker %d: %w", w.ID, err)
		}
		workerIDs = append(workerIDs, w.ID)
	}
	if err := deactivateMissing(ctx, tx, "workers", t.TenantID, workerIDs, now); err != nil {
		return err
	}

	if err := replaceSchedules(ctx, tx, t, now); err != nil {
		return err
	}
	return syncExpenses(ctx, tx, t, now)
}

// deactivateMissing marks rows of table whose id is not in keep inactive.
func deactivateMissing(ctx context.Context, tx *sql.Tx, table string, tenantID int64, keep []int64, now time.Time) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE tenant_id = ? AND is_active = 1`, table), tenantID)
	if err != nil {
		return err
	}
	seen := make(map[int64]struct{}, len(keep))
	for _, id := range keep {
		seen[id] = struct{}{}
	}
	var missing []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range missing {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET is_active = 0, updated_at = ? WHERE tenant_id = ? AND id = ?`, table),
			now, tenantID, id,
		); err != nil {
			return fmt.Errorf("deactivate %s %d: %w", table, id, err)
		}
	}
	return nil
}

func replaceSchedules(ctx context.Context, tx *sql.Tx, t *config.TenantCatalog, now time.Time) error {
	for _, table := range []string{"worker_weekly_slots", "worker_services", "day_overrides"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = ?`, table), t.TenantID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, ws := range t.Weekly {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO worker_weekly_slots (tenant_id, worker_id, day_of_week, slot)
			VALUES (?, ?, ?, ?)`,
			t.TenantID, ws.WorkerID, ws.DayOfWeek, string(ws.Slot),
		); err != nil {
			return fmt.Errorf("insert weekly slot: %w", err)
		}
	}

	for _, link := range t.WorkerServices {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO worker_services (tenant_id, worker_id, service_id)
			VALUES (?, ?, ?)`,
			t.TenantID, link.WorkerID, link.ServiceID,
		); err != nil {
			return fmt.Errorf("insert worker service: %w", err)
		}
	}

	for _, o := range t.Overrides {
		slotsJSON, err := json.Marshal(nonNilSlots(o.Slots))
		if err != nil {
			return err
		}
		servicesJSON, err := json.Marshal(nonNilIDs(o.ServiceIDs))
		if err != nil {
			return err
		}
		var reason sql.NullString
		if o.Reason != "" {
			reason = sql.NullString{String: o.Reason, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO day_overrides (tenant_id, worker_id, date, slots, service_ids, services_configured, reason, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.TenantID, o.WorkerID, slots.FormatDate(o.Date), string(slotsJSON), string(servicesJSON),
			o.ServicesConfigured, reason, now, now,
		); err != nil {
			return fmt.Errorf("insert override for worker %d on %s: %w", o.WorkerID, slots.FormatDate(o.Date), err)
		}
	}
	return nil
}

func syncExpenses(ctx context.Context, tx *sql.Tx, t *config.TenantCatalog, now time.Time) error {
	keep := make(map[int64]struct{}, len(t.Expenses))
	for _, e := range t.Expenses {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO expenses (tenant_id, id, title, amount, date, recurring_type, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(tenant_id, id) DO UPDATE SET
				title = excluded.title,
				amount = excluded.amount,
				date = excluded.date,
				recurring_type = excluded.recurring_type`,
			t.TenantID, e.ID, e.Title, e.Amount.String(), slots.FormatDate(e.Date), string(e.RecurringType), now,
		); err != nil {
			return fmt.Errorf("sync expense %d: %w", e.ID, err)
		}
		keep[e.ID] = struct{}{}
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM expenses WHERE tenant_id = ?`, t.TenantID)
	if err != nil {
		return err
	}
	var stale []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE tenant_id = ? AND id = ?`, t.TenantID, id); err != nil {
			return fmt.Errorf("delete expense %d: %w", id, err)
		}
	}
	return nil
}

func nonNilOptions(in []model.OptionField) []model.OptionField {
	if in == nil {
		return []model.OptionField{}
	}
	return in
}

func nonNilSlots(in []slots.Slot) []slots.Slot {
	if in == nil {
		return []slots.Slot{}
	}
	return in
}

func nonNilIDs(in []int64) []int64 {
	if in == nil {
		return []int64{}
	}
	return in
}
