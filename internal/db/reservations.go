package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"kartoteka/internal/booking"
	"kartoteka/internal/model"
	"kartoteka/internal/slots"
)

// ErrReservationOverlap is returned when the storage trigger rejects an insert
// that intersects a stored reservation. It is a storage failure, not a domain
// conflict: admission checks overlap before inserting.
var ErrReservationOverlap = errors.New("reservation overlaps an existing reservation")

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// ListReservations returns the reservations of a tenant on one date.
func (db *DB) ListReservations(ctx context.Context, tenantID int64, date time.Time) ([]model.Reservation, error) {
	return listReservations(ctx, db, tenantID, date)
}

// InReservationTx runs fn in one write transaction. The transaction is
// committed only when fn returns nil.
func (db *DB) InReservationTx(ctx context.Context, fn func(tx booking.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&reservationTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type reservationTx struct {
	tx *sql.Tx
}

func (t *reservationTx) ListReservations(ctx context.Context, tenantID int64, date time.Time) ([]model.Reservation, error) {
	return listReservations(ctx, t.tx, tenantID, date)
}

func (t *reservationTx) InsertReservation(ctx context.Context, r *model.Reservation) error {
	idx, ok := slots.Index(r.TimeSlot)
	if !ok {
		return fmt.Errorf("slot %q is not on the grid", r.TimeSlot)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO reservations (
			reference, tenant_id, worker_id, service_id, date, time_slot,
			slot_index, slot_count, duration_minutes,
			client_name, client_phone, client_email, note, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Reference, r.TenantID, r.WorkerID, r.ServiceID, slots.FormatDate(r.Date), string(r.TimeSlot),
		idx, r.SlotCount(), r.DurationMinutes,
		r.ClientName, r.ClientPhone, r.ClientEmail, r.Note, r.CreatedAt,
	)
	if err != nil {
		if isOverlap(err) {
			return fmt.Errorf("%w: %v", ErrReservationOverlap, err)
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

func isOverlap(err error) bool {
	var sqlErr sqlite3.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	return sqlErr.ExtendedCode == sqlite3.ErrConstraintTrigger
}

func listReservations(ctx context.Context, q queryer, tenantID int64, date time.Time) ([]model.Reservation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, reference, tenant_id, worker_id, service_id, date, time_slot, duration_minutes,
		       client_name, client_phone, client_email, note, created_at
		FROM reservations
		WHERE tenant_id = ? AND date = ?
		ORDER BY worker_id, slot_index`, tenantID, slots.FormatDate(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		var (
			r         model.Reservation
			day       string
			slot      string
			name      sql.NullString
			phone     sql.NullString
			email     sql.NullString
			note      sql.NullString
			createdAt sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Reference, &r.TenantID, &r.WorkerID, &r.ServiceID, &day, &slot, &r.DurationMinutes,
			&name, &phone, &email, &note, &createdAt); err != nil {
			return nil, err
		}
		if r.Date, err = slots.ParseDate(day); err != nil {
			return nil, fmt.Errorf("reservation %d date: %w", r.ID, err)
		}
		r.TimeSlot = slots.Slot(slot)
		r.ClientName = name.String
		r.ClientPhone = phone.String
		r.ClientEmail = email.String
		r.Note = note.String
		if createdAt.Valid {
			r.CreatedAt = createdAt.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
