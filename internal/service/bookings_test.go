package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"studiotblack/internal/events"
	"studiotblack/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListServices(ctx context.Context) ([]model.Service, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Service), args.Error(1)
}
func (m *mockStore) ListProfessionals(ctx context.Context) ([]model.Professional, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Professional), args.Error(1)
}
func (m *mockStore) GetService(ctx context.Context, id string) (*model.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Service), args.Error(1)
}
func (m *mockStore) OccupiedSlots(ctx context.Context, pro, date string) ([]string, error) {
	args := m.Called(ctx, pro, date)
	return args.Get(0).([]string), args.Error(1)
}
func (m *mockStore) CreateBooking(ctx context.Context, nb model.NewBooking) (*model.Booking, error) {
	args := m.Called(ctx, nb)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}
func (m *mockStore) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}
func (m *mockStore) ListUserBookings(ctx context.Context, userID string) ([]model.Booking, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]model.Booking), args.Error(1)
}
func (m *mockStore) ListBookingsBetween(ctx context.Context, from, to string) ([]model.Booking, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).([]model.Booking), args.Error(1)
}
func (m *mockStore) CancelBooking(ctx context.Context, id string) (*model.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}
func (m *mockStore) UpdateBookingStatus(ctx context.Context, id string, s model.BookingStatus) (*model.Booking, error) {
	args := m.Called(ctx, id, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}
func (m *mockStore) CountBookingsByStatus(ctx context.Context, from, to string) (map[model.BookingStatus]int, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(map[model.BookingStatus]int), args.Error(1)
}

type fakeAccess struct {
	blocked  map[string]bool
	managers map[string]bool
}

func (f fakeAccess) CheckCustomer(_ context.Context, userID string) error {
	if f.blocked[userID] {
		return errors.New("blocked")
	}
	return nil
}

func (f fakeAccess) IsManager(userID string) bool { return f.managers[userID] }

type fakeReminders struct{ cancelled []string }

func (f *fakeReminders) CancelForBooking(_ context.Context, id string) (int64, error) {
	f.cancelled = append(f.cancelled, id)
	return 2, nil
}

type harness struct {
	store     *mockStore
	reminders *fakeReminders
	published []string
	svc       *Bookings
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	logger := zerolog.New(io.Discard)
	h := &harness{store: new(mockStore), reminders: &fakeReminders{}}
	bus := events.NewBus(&logger)
	bus.Subscribe(func(_ context.Context, e events.Event) error {
		h.published = append(h.published, e.Type)
		return nil
	}, events.BookingTypes...)
	h.svc = NewBookings(Deps{
		Store:     h.store,
		Reminders: h.reminders,
		Events:    bus,
		Access:    fakeAccess{blocked: map[string]bool{"tg:9": true}, managers: map[string]bool{"tg:1": true}},
		Logger:    &logger,
	}, opts)
	return h
}

func validNew() model.NewBooking {
	return model.NewBooking{
		UserID: "tg:5", ProfessionalID: "thiago", ServiceID: "corte",
		Date: "2024-07-08", Time: "10:00", TotalPrice: 45, IdempotencyKey: "k1",
	}
}

func TestCreateBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("Stored", func(t *testing.T) {
		h := newHarness(t, Options{})
		nb := validNew()
		h.store.On("GetService", ctx, "corte").Return(&model.Service{ID: "corte"}, nil)
		h.store.On("CreateBooking", ctx, nb).Return(&model.Booking{ID: "b1", UserID: nb.UserID, Status: model.StatusScheduled}, nil)

		b, err := h.svc.CreateBooking(ctx, nb)
		require.NoError(t, err)
		assert.Equal(t, "b1", b.ID)
		assert.Equal(t, []string{events.BookingCreated}, h.published)
		h.store.AssertExpectations(t)
	})

	t.Run("Invalid", func(t *testing.T) {
		h := newHarness(t, Options{})
		nb := validNew()
		nb.Time = "10h"
		_, err := h.svc.CreateBooking(ctx, nb)
		var fe model.FieldErrors
		require.True(t, errors.As(err, &fe))
		h.store.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
	})

	t.Run("UnknownService", func(t *testing.T) {
		h := newHarness(t, Options{})
		h.store.On("GetService", ctx, "corte").Return(nil, model.ErrNotFound)
		_, err := h.svc.CreateBooking(ctx, validNew())
		var fe model.FieldErrors
		require.True(t, errors.As(err, &fe))
	})

	t.Run("Blocked", func(t *testing.T) {
		h := newHarness(t, Options{})
		nb := validNew()
		nb.UserID = "tg:9"
		_, err := h.svc.CreateBooking(ctx, nb)
		assert.EqualError(t, err, "blocked")
		assert.Empty(t, h.published)
	})

	t.Run("SlotTaken", func(t *testing.T) {
		h := newHarness(t, Options{})
		nb := validNew()
		h.store.On("GetService", ctx, "corte").Return(&model.Service{ID: "corte"}, nil)
		h.store.On("CreateBooking", ctx, nb).Return(nil, model.Public("taken", model.ErrSlotTaken))
		_, err := h.svc.CreateBooking(ctx, nb)
		assert.ErrorIs(t, err, model.ErrSlotTaken)
		assert.Empty(t, h.published)
	})
}

func TestCancelBooking(t *testing.T) {
	ctx := context.Background()
	owned := &model.Booking{ID: "b1", UserID: "tg:5", Status: model.StatusScheduled}
	cancelled := &model.Booking{ID: "b1", UserID: "tg:5", Status: model.StatusCancelled}

	tests := []struct {
		name          string
		by            string
		opts          Options
		storeErr      error
		wantErr       error
		wantCancelled []string
	}{
		{name: "Owner", by: "tg:5", opts: Options{CancelReminders: true}, wantCancelled: []string{"b1"}},
		{name: "OwnerKeepsReminders", by: "tg:5", opts: Options{CancelReminders: false}},
		{name: "Manager", by: "tg:1", opts: Options{CancelReminders: true}, wantCancelled: []string{"b1"}},
		{name: "Stranger", by: "tg:7", wantErr: model.ErrForbidden},
		{name: "AlreadyDone", by: "tg:5", storeErr: model.ErrNotCancellable, wantErr: model.ErrNotCancellable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.opts)
			h.store.On("GetBooking", ctx, "b1").Return(owned, nil)
			if tt.storeErr != nil {
				h.store.On("CancelBooking", ctx, "b1").Return(owned, tt.storeErr)
			} else {
				h.store.On("CancelBooking", ctx, "b1").Return(cancelled, nil)
			}

			b, err := h.svc.CancelBooking(ctx, "b1", tt.by)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, h.published)
				assert.Empty(t, h.reminders.cancelled)
				if errors.Is(tt.wantErr, model.ErrNotCancellable) {
					var pe *model.PublicError
					require.True(t, errors.As(err, &pe))
					assert.Equal(t, NotCancellableMessage, pe.UserMessage())
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.StatusCancelled, b.Status)
			assert.Equal(t, []string{events.BookingCancelled}, h.published)
			assert.Equal(t, tt.wantCancelled, h.reminders.cancelled)
		})
	}
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{CancelReminders: true})

	_, err := h.svc.UpdateStatus(ctx, "b1", model.StatusCompleted, "tg:5")
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = h.svc.UpdateStatus(ctx, "b1", model.StatusScheduled, "tg:1")
	assert.Error(t, err)

	h.store.On("UpdateBookingStatus", ctx, "b1", model.StatusCompleted).
		Return(&model.Booking{ID: "b1", Status: model.StatusCompleted}, nil)
	b, err := h.svc.UpdateStatus(ctx, "b1", model.StatusCompleted, "tg:1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, b.Status)
	assert.Empty(t, h.reminders.cancelled)

	h.store.On("UpdateBookingStatus", ctx, "b2", model.StatusNoShow).
		Return(&model.Booking{ID: "b2", Status: model.StatusNoShow}, nil)
	_, err = h.svc.UpdateStatus(ctx, "b2", model.StatusNoShow, "tg:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b2"}, h.reminders.cancelled)
	assert.Equal(t, []string{events.BookingStatusChanged, events.BookingStatusChanged}, h.published)
}

func TestUpcomingAndProfessionals(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})

	h.store.On("ListUserBookings", ctx, "tg:5").Return([]model.Booking{
		{ID: "future2", Date: "2024-07-20", Status: model.StatusConfirmed},
		{ID: "future1", Date: "2024-07-10", Status: model.StatusScheduled},
		{ID: "cancelled", Date: "2024-07-09", Status: model.StatusCancelled},
		{ID: "past", Date: "2024-07-01", Status: model.StatusCompleted},
	}, nil)
	up, err := h.svc.UpcomingUserBookings(ctx, "tg:5", "2024-07-08")
	require.NoError(t, err)
	require.Len(t, up, 2)
	assert.Equal(t, "future1", up[0].ID)
	assert.Equal(t, "future2", up[1].ID)

	h.store.On("ListProfessionals", ctx).Return([]model.Professional{
		{ID: "a", Services: []string{"corte"}},
		{ID: "b", Services: []string{"corte"}, ShowInBooking: model.Bool(false)},
		{ID: "c"},
		{ID: "d", Services: []string{"barba"}},
	}, nil)
	pros, err := h.svc.ProfessionalsFor(ctx, "corte")
	require.NoError(t, err)
	require.Len(t, pros, 1)
	assert.Equal(t, "a", pros[0].ID)
}

type fakePending struct{ n int64 }

func (f fakePending) PendingCount(context.Context) (int64, error) { return f.n, nil }

func TestDashboard(t *testing.T) {
	h := newHarness(t, Options{})
	day := time.Date(2024, 7, 8, 12, 0, 0, 0, time.UTC)

	h.store.On("ListBookingsBetween", mock.Anything, "2024-07-08", "2024-07-08").Return([]model.Booking{
		{ID: "b1", Status: model.StatusConfirmed, TotalPrice: 45},
		{ID: "b2", Status: model.StatusCancelled, TotalPrice: 30},
		{ID: "b3", Status: model.StatusCompleted, TotalPrice: 60},
	}, nil)
	h.store.On("CountBookingsByStatus", mock.Anything, "2024-07-01", "2024-07-31").
		Return(map[model.BookingStatus]int{model.StatusCompleted: 12, model.StatusCancelled: 2}, nil)
	h.store.On("ListServices", mock.Anything).Return([]model.Service{{ID: "corte"}, {ID: "barba"}}, nil)
	h.store.On("ListProfessionals", mock.Anything).Return([]model.Professional{{ID: "thiago"}}, nil)

	d, err := h.svc.Dashboard(context.Background(), day, fakePending{n: 4})
	require.NoError(t, err)
	assert.Equal(t, "2024-07-08", d.Date)
	assert.Len(t, d.Today, 3)
	assert.InDelta(t, 105.0, d.TodayRevenue, 0.001)
	assert.Equal(t, 12, d.MonthByStatus[model.StatusCompleted])
	assert.Equal(t, 2, d.Services)
	assert.Equal(t, 1, d.Professionals)
	assert.Equal(t, int64(4), d.PendingReminders)

	h2 := newHarness(t, Options{})
	h2.store.On("ListBookingsBetween", mock.Anything, mock.Anything, mock.Anything).Return([]model.Booking(nil), errors.New("boom"))
	h2.store.On("CountBookingsByStatus", mock.Anything, mock.Anything, mock.Anything).Return(map[model.BookingStatus]int{}, nil)
	h2.store.On("ListServices", mock.Anything).Return([]model.Service{}, nil)
	h2.store.On("ListProfessionals", mock.Anything).Return([]model.Professional{}, nil)
	_, err = h2.svc.Dashboard(context.Background(), day, nil)
	assert.ErrorContains(t, err, "boom")
}
