package booking

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kartoteka/internal/availability"
	"kartoteka/internal/events"
	"kartoteka/internal/lock"
	"kartoteka/internal/model"
	"kartoteka/internal/slots"
)

// 2024-01-02 is a Tuesday.
const tuesday = "2024-01-02"

type fakeStore struct {
	mu           sync.Mutex
	services     []model.Service
	workers      []model.Worker
	weekly       []model.WeeklySlot
	links        []model.WorkerService
	reservations []model.Reservation
	insertErr    error
	nextID       int64
}

func (f *fakeStore) ListActiveServices(context.Context, int64) ([]model.Service, error) {
	return f.services, nil
}

func (f *fakeStore) ListActiveWorkers(context.Context, int64) ([]model.Worker, error) {
	return f.workers, nil
}

func (f *fakeStore) ListWeeklySlots(_ context.Context, _ int64, day int) ([]model.WeeklySlot, error) {
	var out []model.WeeklySlot
	for _, ws := range f.weekly {
		if ws.DayOfWeek == day {
			out = append(out, ws)
		}
	}
	return out, nil
}

func (f *fakeStore) ListWorkerServices(context.Context, int64) ([]model.WorkerService, error) {
	return f.links, nil
}

func (f *fakeStore) ListDayOverrides(context.Context, int64, time.Time) ([]model.DayOverride, error) {
	return nil, nil
}

// InReservationTx does not serialize callers; the locker must.
func (f *fakeStore) InReservationTx(_ context.Context, fn func(tx Tx) error) error {
	tx := &fakeTx{store: f}
	if err := fn(tx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reservations = append(f.reservations, tx.pending...)
	return nil
}

func (f *fakeStore) snapshot() []model.Reservation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Reservation(nil), f.reservations...)
}

type fakeTx struct {
	store   *fakeStore
	pending []model.Reservation
}

func (t *fakeTx) ListReservations(_ context.Context, _ int64, date time.Time) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, r := range t.store.snapshot() {
		if r.Date.Equal(date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *fakeTx) InsertReservation(_ context.Context, r *model.Reservation) error {
	if t.store.insertErr != nil {
		return t.store.insertErr
	}
	// Widen the window between check and commit.
	time.Sleep(time.Millisecond)
	t.store.mu.Lock()
	t.store.nextID++
	r.ID = t.store.nextID
	t.store.mu.Unlock()
	t.pending = append(t.pending, *r)
	return nil
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

type failingLocker struct{}

func (failingLocker) Acquire(context.Context, string) (func(), error) {
	return nil, lock.ErrTimeout
}

func newStore() *fakeStore {
	massage := model.Service{ID: 1, Name: "Massage", DurationMinutes: 60, IsActive: true, Price: decimal.NewFromInt(50)}
	trim := model.Service{ID: 2, Name: "Trim", DurationMinutes: 30, IsActive: true}
	massage.Options = []model.OptionField{{
		Key:   "oil",
		Label: "Oil",
		Options: []model.Option{
			{Key: "lavender", Label: "Lavender", DurationMinutes: 90},
		},
	}}
	anna := model.Worker{ID: 1, Name: "Anna", IsActive: true}
	boris := model.Worker{ID: 2, Name: "Boris", IsActive: true, ServicesConfigured: true}

	store := &fakeStore{
		services: []model.Service{massage, trim},
		workers:  []model.Worker{anna, boris},
		links:    []model.WorkerService{{WorkerID: 2, ServiceID: 2}},
	}
	grid := slots.Grid()
	for _, w := range []int64{1, 2} {
		for _, s := range grid[4:12] { // 09:00 - 12:30
			store.weekly = append(store.weekly, model.WeeklySlot{WorkerID: w, DayOfWeek: 1, Slot: s})
		}
	}
	return store
}

func newService(store *fakeStore, locker Locker, pub EventPublisher) *Service {
	logger := zerolog.New(io.Discard)
	return NewService(store, store, locker, pub, &logger)
}

func request(start string, ids ...int64) Request {
	return Request{
		TenantID:   1,
		Date:       tuesday,
		WorkerID:   1,
		Start:      start,
		ServiceIDs: ids,
		Client:     Client{Name: " Jane ", Phone: "+100"},
	}
}

func TestAdmit_Success(t *testing.T) {
	store := newStore()
	pub := new(mockPublisher)
	pub.On("PublishJSON", events.TypeReservationCreated, mock.MatchedBy(func(p events.ReservationCreated) bool {
		return p.ReservationID == 1 && p.Start == "09:00" && p.DurationMinutes == 90 && p.Date == tuesday
	})).Return(nil).Once()

	svc := newService(store, lock.NewLocal(), pub)
	r, err := svc.Admit(context.Background(), request("9:00", 1, 2))
	require.NoError(t, err)

	assert.Equal(t, int64(1), r.ID)
	assert.NotEmpty(t, r.Reference)
	assert.Equal(t, int64(1), r.ServiceID)
	assert.Equal(t, 90, r.DurationMinutes)
	assert.Equal(t, slots.Slot("09:00"), r.TimeSlot)
	assert.Equal(t, "Jane", r.ClientName)
	assert.Equal(t, "Also: Trim", r.Note)
	assert.Len(t, store.snapshot(), 1)
	pub.AssertExpectations(t)
}

func TestAdmit_PublishFailureKeepsReservation(t *testing.T) {
	store := newStore()
	pub := new(mockPublisher)
	pub.On("PublishJSON", mock.Anything, mock.Anything).Return(errors.New("bus down"))

	r, err := newService(store, lock.NewLocal(), pub).Admit(context.Background(), request("09:00", 2))
	require.NoError(t, err)
	assert.Equal(t, "", r.Note)
	assert.Len(t, store.snapshot(), 1)
}

func TestAdmit_Conflicts(t *testing.T) {
	store := newStore()
	svc := newService(store, lock.NewLocal(), nil)
	ctx := context.Background()

	_, err := svc.Admit(ctx, request("10:00", 1))
	require.NoError(t, err) // 10:00, 10:30

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"overlap", request("10:30", 1), availability.ErrSlotUnavailable},
		{"before opening", request("08:30", 1), availability.ErrSlotUnavailable},
		{"gap after", request("11:30", 1), availability.ErrSlotUnavailable},
		{"outside hours", request("12:30", 1), availability.ErrSlotUnavailable},
		{"off grid", request("10:15", 2), availability.ErrSlotUnavailable},
		{"past end of day", request("19:00", 1), availability.ErrSlotUnavailable},
		{"restricted worker", Request{TenantID: 1, Date: tuesday, WorkerID: 2, Start: "09:00", ServiceIDs: []int64{1}}, availability.ErrWorkerIneligible},
		{"unknown worker", Request{TenantID: 1, Date: tuesday, WorkerID: 9, Start: "09:00", ServiceIDs: []int64{2}}, availability.ErrWorkerIneligible},
		{"bad date", Request{TenantID: 1, Date: "02.01.2024", WorkerID: 1, Start: "09:00", ServiceIDs: []int64{2}}, availability.ErrInvalidDate},
		{"bad option", Request{TenantID: 1, Date: tuesday, WorkerID: 1, Start: "09:00", ServiceIDs: []int64{1}, OptionKeys: []string{"oil::olive"}}, availability.ErrInvalidOption},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Admit(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// A single-slot booking may sit next to the gap.
	_, err = svc.Admit(ctx, request("11:30", 2))
	assert.NoError(t, err)
	assert.Len(t, store.snapshot(), 2)
}

func TestAdmit_OptionDurationAndNote(t *testing.T) {
	store := newStore()
	req := request("09:00", 1)
	req.OptionKeys = []string{"oil::lavender"}

	r, err := newService(store, lock.NewLocal(), nil).Admit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 90, r.DurationMinutes)
	assert.Equal(t, "Options: Oil: Lavender", r.Note)
}

func TestAdmit_StorageErrorIsNotAConflict(t *testing.T) {
	store := newStore()
	store.insertErr = errors.New("disk full")

	_, err := newService(store, lock.NewLocal(), nil).Admit(context.Background(), request("09:00", 1))
	require.Error(t, err)
	assert.Empty(t, availability.ErrorCode(err))
	assert.Empty(t, store.snapshot())
}

func TestAdmit_LockUnavailable(t *testing.T) {
	store := newStore()
	_, err := newService(store, failingLocker{}, nil).Admit(context.Background(), request("09:00", 1))
	assert.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, store.snapshot())
}

func TestAdmit_ConcurrentSameSlot(t *testing.T) {
	store := newStore()
	svc := newService(store, lock.NewLocal(), nil)

	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Admit(context.Background(), request("10:00", 1))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, availability.ErrSlotUnavailable)
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, store.snapshot(), 1)
}

// Any sequence of admissions leaves the book free of overlaps and, around
// multi-slot reservations, of lonely single gaps.
func TestAdmit_SequenceKeepsBookConsistent(t *testing.T) {
	store := newStore()
	svc := newService(store, lock.NewLocal(), nil)
	for _, start := range []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30", "12:00", "12:30"} {
		for _, id := range []int64{1, 2} {
			_, _ = svc.Admit(context.Background(), request(start, id))
		}
	}

	book := store.snapshot()
	require.NotEmpty(t, book)
	for i := range book {
		for j := i + 1; j < len(book); j++ {
			assert.False(t, book[i].OverlapsWith(&book[j]), "%s and %s", book[i].TimeSlot, book[j].TimeSlot)
		}
	}
}

func TestAnnotation(t *testing.T) {
	d := &availability.Demand{
		Services: []model.Service{{Name: "Haircut"}, {Name: "Wash"}, {Name: "Styling"}},
	}
	assert.Equal(t, "Also: Wash, Styling", Annotation(d))

	d = &availability.Demand{
		Services: []model.Service{{Name: "Haircut"}},
		Options:  []model.ResolvedOption{{FieldLabel: "Length", Label: "Long"}, {FieldLabel: "Wash", Label: "Yes"}},
	}
	assert.Equal(t, "Options: Length: Long, Wash: Yes", Annotation(d))
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "reservation:3:7:2024-01-02", LockKey(3, 7, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
}
