package db

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kartoteka/internal/availability"
	"kartoteka/internal/booking"
	"kartoteka/internal/config"
	"kartoteka/internal/lock"
	"kartoteka/internal/model"
	"kartoteka/internal/slots"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func syncedDB(t *testing.T) (*DB, *config.Catalog) {
	t.Helper()
	db := newTestDB(t)
	cat, err := config.LoadCatalog("../config/testdata/catalog.yaml")
	require.NoError(t, err)
	require.NoError(t, db.SyncCatalog(context.Background(), cat))
	return db, cat
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := slots.ParseDate(s)
	require.NoError(t, err)
	return d
}

func insert(ctx context.Context, db *DB, r model.Reservation) error {
	return db.InReservationTx(ctx, func(tx booking.Tx) error {
		return tx.InsertReservation(ctx, &r)
	})
}

func TestOpen_Migrations(t *testing.T) {
	db := newTestDB(t)

	for _, table := range []string{"tenants", "services", "workers", "worker_weekly_slots", "worker_services", "day_overrides", "reservations", "expenses"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
	assert.NoError(t, db.Ready(context.Background()))

	// Reopening runs the migrations again without error.
	logger := zerolog.Nop()
	again, err := Open(db.path, &logger)
	require.NoError(t, err)
	_ = again.Close()
}

func TestSyncCatalog_Reads(t *testing.T) {
	db, _ := syncedDB(t)
	ctx := context.Background()

	services, err := db.ListActiveServices(ctx, 1)
	require.NoError(t, err)
	require.Len(t, services, 3)
	assert.Equal(t, "Haircut", services[0].Name)
	assert.True(t, decimal.RequireFromString("35").Equal(services[0].Price))
	require.Len(t, services[0].Options, 1)
	assert.Len(t, services[0].Options[0].Options, 2)
	require.NotNil(t, services[2].ParentID)
	assert.Equal(t, int64(2), *services[2].ParentID)

	workers, err := db.ListActiveWorkers(ctx, 1)
	require.NoError(t, err)
	require.Len(t, workers, 3)
	assert.Equal(t, "Anna", workers[0].Name)
	assert.False(t, workers[0].ServicesConfigured)
	assert.True(t, workers[2].ServicesConfigured)

	monday, err := db.ListWeeklySlots(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, monday, 8)

	links, err := db.ListWorkerServices(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []model.WorkerService{{WorkerID: 2, ServiceID: 1}}, links)

	off, err := db.ListDayOverrides(ctx, 1, day(t, "2024-01-01"))
	require.NoError(t, err)
	require.Len(t, off, 1)
	assert.Empty(t, off[0].Slots)
	assert.False(t, off[0].ServicesConfigured)
	assert.Equal(t, "holiday", off[0].Reason)

	custom, err := db.ListDayOverrides(ctx, 1, day(t, "2024-01-02"))
	require.NoError(t, err)
	require.Len(t, custom, 1)
	assert.Equal(t, []slots.Slot{"15:00", "15:30"}, custom[0].Slots)
	assert.Equal(t, []int64{1, 3}, custom[0].ServiceIDs)
	assert.True(t, custom[0].ServicesConfigured)

	other, err := db.ListActiveServices(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSyncCatalog_Resync(t *testing.T) {
	db, cat := syncedDB(t)
	ctx := context.Background()

	tenant := &cat.Tenants[0]
	tenant.Workers = tenant.Workers[:2]
	tenant.Expenses = tenant.Expenses[:1]
	tenant.Expenses[0].Amount = decimal.RequireFromString("1300")
	tenant.Overrides = nil
	require.NoError(t, db.SyncCatalog(ctx, cat))

	workers, err := db.ListActiveWorkers(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, workers, 2)

	// Deactivated workers are kept for reservation history.
	var total int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM workers WHERE tenant_id = 1`).Scan(&total))
	assert.Equal(t, 3, total)

	overrides, err := db.ListDayOverrides(ctx, 1, day(t, "2024-01-01"))
	require.NoError(t, err)
	assert.Empty(t, overrides)

	expenses, err := db.ListExpenses(ctx, 1, day(t, "2030-01-01"))
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.True(t, decimal.RequireFromString("1300").Equal(expenses[0].Amount))

	assert.Error(t, db.SyncCatalog(ctx, nil))
}

func TestListExpenses(t *testing.T) {
	db, _ := syncedDB(t)
	ctx := context.Background()

	january, err := db.ListExpenses(ctx, 1, day(t, "2024-01-31"))
	require.NoError(t, err)
	require.Len(t, january, 1)
	assert.Equal(t, "Rent", january[0].Title)
	assert.Equal(t, model.RecurringMonthly, january[0].RecurringType)
	assert.False(t, january[0].CreatedAt.IsZero())

	all, err := db.ListExpenses(ctx, 1, day(t, "2024-12-31"))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Towels", all[0].Title)
	assert.Equal(t, model.RecurringNone, all[0].RecurringType)
	assert.True(t, decimal.RequireFromString("80.5").Equal(all[0].Amount))
}

func TestReservations_TriggerRejectsOverlap(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := day(t, "2024-01-08")

	base := model.Reservation{TenantID: 1, WorkerID: 1, ServiceID: 1, Date: date}

	first := base
	first.Reference = "a"
	first.TimeSlot = "10:00"
	first.DurationMinutes = 60
	require.NoError(t, insert(ctx, db, first))

	overlapping := base
	overlapping.Reference = "b"
	overlapping.TimeSlot = "10:30"
	err := insert(ctx, db, overlapping)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReservationOverlap))
	assert.False(t, errors.Is(err, availability.ErrSlotUnavailable))

	adjacent := base
	adjacent.Reference = "c"
	adjacent.TimeSlot = "11:00"
	require.NoError(t, insert(ctx, db, adjacent))

	otherWorker := base
	otherWorker.Reference = "d"
	otherWorker.WorkerID = 2
	otherWorker.TimeSlot = "10:00"
	require.NoError(t, insert(ctx, db, otherWorker))

	stored, err := db.ListReservations(ctx, 1, date)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, slots.Slot("10:00"), stored[0].TimeSlot)
	assert.Equal(t, 60, stored[0].DurationMinutes)
	assert.Equal(t, slots.Slot("11:00"), stored[1].TimeSlot)
	assert.Equal(t, 1, stored[1].SlotCount())
	assert.True(t, stored[0].Date.Equal(date))
}

func TestInReservationTx_Rollback(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := day(t, "2024-01-08")
	boom := errors.New("boom")

	err := db.InReservationTx(ctx, func(tx booking.Tx) error {
		r := &model.Reservation{Reference: "x", TenantID: 1, WorkerID: 1, ServiceID: 1, Date: date, TimeSlot: "09:00"}
		if err := tx.InsertReservation(ctx, r); err != nil {
			return err
		}
		assert.NotZero(t, r.ID)

		inside, err := tx.ListReservations(ctx, 1, date)
		require.NoError(t, err)
		assert.Len(t, inside, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := db.ListReservations(ctx, 1, date)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestInsertReservation_OffGrid(t *testing.T) {
	db := newTestDB(t)
	err := insert(context.Background(), db, model.Reservation{Reference: "x", TenantID: 1, WorkerID: 1, Date: day(t, "2024-01-08"), TimeSlot: "06:00"})
	assert.Error(t, err)
}

func TestAdmission_EndToEnd(t *testing.T) {
	db, _ := syncedDB(t)
	ctx := context.Background()
	logger := zerolog.Nop()
	svc := booking.NewService(db, db, lock.NewLocal(), nil, &logger)

	r, err := svc.Admit(ctx, booking.Request{
		TenantID:   1,
		Date:       "2024-01-08",
		WorkerID:   1,
		Start:      "09:00",
		ServiceIDs: []int64{1},
		OptionKeys: []string{"length::long"},
		Client:     booking.Client{Name: "Eva", Phone: "+100"},
	})
	require.NoError(t, err)
	assert.NotZero(t, r.ID)
	assert.Equal(t, 90, r.DurationMinutes)

	stored, err := db.ListReservations(ctx, 1, day(t, "2024-01-08"))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, r.Reference, stored[0].Reference)
	assert.Equal(t, "Eva", stored[0].ClientName)
	assert.Contains(t, stored[0].Note, "Long")

	// The worker is off on the override date.
	_, err = svc.Admit(ctx, booking.Request{TenantID: 1, Date: "2024-01-01", WorkerID: 1, Start: "09:00", ServiceIDs: []int64{1}})
	assert.ErrorIs(t, err, availability.ErrSlotUnavailable)

	// Boris is not configured for Colouring.
	_, err = svc.Admit(ctx, booking.Request{TenantID: 1, Date: "2024-01-09", WorkerID: 2, Start: "10:00", ServiceIDs: []int64{3}})
	assert.ErrorIs(t, err, availability.ErrWorkerIneligible)
}

func TestAdmission_ConcurrentSameSlot(t *testing.T) {
	db, _ := syncedDB(t)
	ctx := context.Background()
	logger := zerolog.Nop()
	svc := booking.NewService(db, db, lock.NewLocal(), nil, &logger)

	const attempts = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		rejected int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Admit(ctx, booking.Request{
				TenantID:   1,
				Date:       "2024-01-15",
				WorkerID:   1,
				Start:      "10:00",
				ServiceIDs: []int64{1},
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted++
			} else if errors.Is(err, availability.ErrSlotUnavailable) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
	assert.Equal(t, attempts-1, rejected)

	stored, err := db.ListReservations(ctx, 1, day(t, "2024-01-15"))
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestBackup(t *testing.T) {
	db, _ := syncedDB(t)
	dir := filepath.Join(t.TempDir(), "backups")

	dest := filepath.Join(dir, "kartoteka_20240101_000000.db")
	require.NoError(t, db.Backup(dest))
	_, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Error(t, db.Backup(dest), "existing backups are not overwritten")

	old := filepath.Join(dir, "kartoteka_20200101_000000.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o600))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "notes.txt"), past, past))

	deleted, err := db.CleanupBackups(dir, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	_, err = os.Stat(dest)
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)
}

func TestExportAudit(t *testing.T) {
	db, _ := syncedDB(t)
	ctx := context.Background()

	columns, rows, err := db.TableData(ctx, "workers", 1)
	require.NoError(t, err)
	assert.Contains(t, columns, "name")
	assert.Len(t, rows, 3)

	_, _, err = db.TableData(ctx, "sqlite_master", 1)
	assert.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, db.ExportAudit(ctx, 1, &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("PK")))
}
