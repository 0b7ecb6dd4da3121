// Package db is the sqlite persistence of catalogs, reservations and the ledger.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps sql.DB.
type DB struct {
	*sql.DB
	path   string
	logger zerolog.Logger
}

// Open opens the database at path and runs migrations.
func Open(path string, logger *zerolog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL with a busy timeout; write transactions take the lock at BEGIN.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := migrate(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	db := &DB{DB: sqlDB, path: path, logger: logger.With().Str("component", "db").Logger()}
	db.logger.Info().Str("path", path).Msg("database initialized")
	return db, nil
}

func migrate(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS services (
			tenant_id INTEGER NOT NULL,
			id INTEGER NOT NULL,
			name TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL DEFAULT 0,
			parent_id INTEGER,
			price TEXT NOT NULL DEFAULT '0',
			options TEXT NOT NULL DEFAULT '[]',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (tenant_id, id),
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,

		`CREATE TABLE IF NOT EXISTS workers (
			tenant_id INTEGER NOT NULL,
			id INTEGER NOT NULL,
			name TEXT NOT NULL,
			services_configured BOOLEAN NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (tenant_id, id),
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,

		`CREATE TABLE IF NOT EXISTS worker_weekly_slots (
			tenant_id INTEGER NOT NULL,
			worker_id INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
			slot TEXT NOT NULL,
			PRIMARY KEY (tenant_id, worker_id, day_of_week, slot)
		)`,

		`CREATE TABLE IF NOT EXISTS worker_services (
			tenant_id INTEGER NOT NULL,
			worker_id INTEGER NOT NULL,
			service_id INTEGER NOT NULL,
			PRIMARY KEY (tenant_id, worker_id, service_id)
		)`,

		`CREATE TABLE IF NOT EXISTS day_overrides (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			worker_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			slots TEXT NOT NULL DEFAULT '[]',
			service_ids TEXT NOT NULL DEFAULT '[]',
			services_configured BOOLEAN NOT NULL DEFAULT 0,
			reason TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (tenant_id, worker_id, date)
		)`,

		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reference TEXT NOT NULL UNIQUE,
			tenant_id INTEGER NOT NULL,
			worker_id INTEGER NOT NULL,
			service_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			time_slot TEXT NOT NULL,
			slot_index INTEGER NOT NULL,
			slot_count INTEGER NOT NULL CHECK (slot_count > 0),
			duration_minutes INTEGER NOT NULL DEFAULT 0,
			client_name TEXT,
			client_phone TEXT,
			client_email TEXT,
			note TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// No two reservations of one worker and date may share a slot.
		`CREATE TRIGGER IF NOT EXISTS reservations_no_overlap
		BEFORE INSERT ON reservations
		FOR EACH ROW
		WHEN EXISTS (
			SELECT 1 FROM reservations r
			WHERE r.tenant_id = NEW.tenant_id
			  AND r.worker_id = NEW.worker_id
			  AND r.date = NEW.date
			  AND r.slot_index < NEW.slot_index + NEW.slot_count
			  AND NEW.slot_index < r.slot_index + r.slot_count
		)
		BEGIN
			SELECT RAISE(ABORT, 'reservation overlaps an existing reservation');
		END`,

		`CREATE TABLE IF NOT EXISTS expenses (
			tenant_id INTEGER NOT NULL,
			id INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			amount TEXT NOT NULL,
			date TEXT NOT NULL,
			recurring_type TEXT NOT NULL DEFAULT 'none',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (tenant_id, id)
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_services_active ON services(tenant_id, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_weekly_day ON worker_weekly_slots(tenant_id, day_of_week)`,
		`CREATE INDEX IF NOT EXISTS idx_overrides_date ON day_overrides(tenant_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_day ON reservations(tenant_id, date, worker_id)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(tenant_id, date)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// Ready pings the database.
func (db *DB) Ready(ctx context.Context) error {
	return db.PingContext(ctx)
}
