package booking

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"studiotblack/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) ListServices(ctx context.Context) ([]model.Service, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Service), args.Error(1)
}

func (m *mockBackend) ListProfessionals(ctx context.Context) ([]model.Professional, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Professional), args.Error(1)
}

func (m *mockBackend) OccupiedSlots(ctx context.Context, professionalID, date string) ([]string, error) {
	args := m.Called(ctx, professionalID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockBackend) CreateBooking(ctx context.Context, nb model.NewBooking) (*model.Booking, error) {
	args := m.Called(ctx, nb)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) ScheduleBooking(ctx context.Context, b model.Booking) error {
	return m.Called(ctx, b).Error(0)
}

var corte = model.Service{ID: "1", Name: "Corte", DurationMin: 30, Price: 40, Active: true}

func barbers() []model.Professional {
	return []model.Professional{
		{ID: "1", Name: "Rafa", Active: true, Services: []string{"3"}},
		{ID: "2", Name: "Tiago", Active: true, Services: []string{"1", "3"}},
		{ID: "3", Name: "Sem lista", Active: true},
		{ID: "4", Name: "Oculto", Active: true, Services: []string{"1"}, ShowInBooking: model.Bool(false)},
	}
}

func newTestFlow(t *testing.T, be *mockBackend, ns NotificationScheduler) *Flow {
	t.Helper()
	logger := zerolog.New(io.Discard)
	deps := Deps{Directory: be, Schedule: be, Bookings: be, Notifications: ns, Logger: &logger}
	return NewFlow(deps, Options{Location: time.UTC})
}

// toSummary drives a flow to the summary step with 11:00 on 2024-07-10.
func toSummary(t *testing.T, f *Flow, be *mockBackend) {
	t.Helper()
	ctx := context.Background()
	be.On("ListProfessionals", mock.Anything).Return(barbers(), nil).Maybe()
	be.On("OccupiedSlots", mock.Anything, "2", "2024-07-10").Return([]string{"09:00", "10:00"}, nil).Maybe()

	require.NoError(t, f.SelectService(ctx, corte))
	require.NoError(t, f.SelectProfessional("2"))
	_, err := f.ChangeDate(ctx, "2024-07-10")
	require.NoError(t, err)
	require.NoError(t, f.SelectTime("11:00"))
}

func TestFlowExampleScenario(t *testing.T) {
	ctx := context.Background()
	be := new(mockBackend)
	ns := new(mockScheduler)
	f := newTestFlow(t, be, ns)

	be.On("ListProfessionals", mock.Anything).Return(barbers(), nil).Once()
	require.NoError(t, f.SelectService(ctx, corte))

	step, ok := f.Step().(ProfessionalStep)
	require.True(t, ok)
	require.Len(t, step.Professionals, 1)
	assert.Equal(t, "2", step.Professionals[0].ID)

	require.NoError(t, f.SelectProfessional("2"))
	assert.Equal(t, StepDateTime, f.Step().Name())

	be.On("OccupiedSlots", mock.Anything, "2", "2024-07-10").Return([]string{"09:00", "10:00"}, nil).Once()
	available, err := f.ChangeDate(ctx, "2024-07-10")
	require.NoError(t, err)
	require.NotEmpty(t, available)
	assert.Equal(t, "11:00", available[0])
	assert.NotContains(t, available, "09:00")
	assert.NotContains(t, available, "10:00")
	assert.Len(t, available, 9)

	require.NoError(t, f.SelectTime("11:00"))
	assert.Equal(t, StepSummary, f.Step().Name())

	require.NoError(t, f.SetPreferences(true, "sem conversa"))
	key := f.IdempotencyKey()

	created := &model.Booking{ID: "b-1", UserID: "tg:42", ProfessionalID: "2", ServiceID: "1", Date: "2024-07-10", Time: "11:00", Status: model.StatusScheduled, TotalPrice: 40}
	be.On("CreateBooking", mock.Anything, mock.MatchedBy(func(nb model.NewBooking) bool {
		return nb.UserID == "tg:42" &&
			nb.ProfessionalID == "2" &&
			nb.ServiceID == "1" &&
			nb.Date == "2024-07-10" &&
			nb.Time == "11:00" &&
			nb.TotalPrice == 40 &&
			nb.Notes == "Serviço: Corte | Atendimento silencioso: Sim | Observações: sem conversa" &&
			nb.PaymentMethod == "local" &&
			nb.PaymentStatus == "pending" &&
			nb.IdempotencyKey == key
	})).Return(created, nil).Once()
	ns.On("ScheduleBooking", mock.Anything, *created).Return(nil).Once()

	var completed []model.Booking
	f.OnComplete(func(b model.Booking) { completed = append(completed, b) })

	got, err := f.Confirm(ctx, "tg:42")
	require.NoError(t, err)
	assert.Equal(t, "b-1", got.ID)
	require.Len(t, completed, 1)
	assert.Equal(t, "b-1", completed[0].ID)

	sub, ok := f.Step().(SubmittedStep)
	require.True(t, ok)
	assert.Equal(t, "b-1", sub.Booking.ID)

	be.AssertNumberOfCalls(t, "CreateBooking", 1)
	ns.AssertNumberOfCalls(t, "ScheduleBooking", 1)
	be.AssertExpectations(t)
	ns.AssertExpectations(t)
}

func TestFlowConfirmValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingProfessional", func(t *testing.T) {
		be := new(mockBackend)
		f := newTestFlow(t, be, nil)
		be.On("ListProfessionals", mock.Anything).Return(barbers(), nil)
		require.NoError(t, f.SelectService(ctx, corte))
		before := f.Step()

		_, err := f.Confirm(ctx, "tg:42")

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Missing, "professional_id")
		assert.Contains(t, verr.Missing, "date")
		assert.Contains(t, verr.Missing, "time")
		assert.NotContains(t, verr.Missing, "service_id")
		assert.Equal(t, before, f.Step())
		be.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
	})

	t.Run("EmptyFlow", func(t *testing.T) {
		be := new(mockBackend)
		f := newTestFlow(t, be, nil)

		_, err := f.Confirm(ctx, "")

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"user_id", "professional_id", "service_id", "date", "time"}, verr.Missing)
		assert.Equal(t, StepProfessional, f.Step().Name())
		be.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
	})

	t.Run("MissingUser", func(t *testing.T) {
		be := new(mockBackend)
		f := newTestFlow(t, be, nil)
		toSummary(t, f, be)

		_, err := f.Confirm(ctx, "")

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"user_id"}, verr.Missing)
		assert.Equal(t, StepSummary, f.Step().Name())
		be.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
	})
}

func TestFlowServiceWithoutProfessionals(t *testing.T) {
	ctx := context.Background()
	be := new(mockBackend)
	f := newTestFlow(t, be, nil)
	be.On("ListProfessionals", mock.Anything).Return(barbers(), nil)

	require.NoError(t, f.SelectService(ctx, model.Service{ID: "9", Name: "Barba", Active: true}))

	step := f.Step().(ProfessionalStep)
	assert.Empty(t, step.Professionals)

	for _, id := range []string{"1", "2", "3", "4"} {
		err := f.SelectProfessional(id)
		assert.ErrorIs(t, err, ErrUnknownProfessional)
	}
	assert.Equal(t, StepProfessional, f.Step().Name())
}

func TestFlowSelectServiceFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	be := new(mockBackend)
	f := newTestFlow(t, be, nil)
	toSummary(t, f, be)
	before := f.Step()

	be.ExpectedCalls = nil
	be.On("ListProfessionals", mock.Anything).Return(nil, errors.New("connection reset"))

	err := f.SelectService(ctx, corte)

	var rerr *RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, GenericFailureMessage, rerr.Message)
	assert.Equal(t, before, f.Step())
}

func TestFlowSelectServiceByID(t *testing.T) {
	ctx := context.Background()
	be := new(mockBackend)
	f := newTestFlow(t, be, nil)
	inactive := model.Service{ID: "5", Name: "Antigo"}
	be.On("ListServices", mock.Anything).Return([]model.Service{corte, inactive}, nil)
	be.On("ListProfessionals", mock.Anything).Return(barbers(), nil)

	require.NoError(t, f.SelectServiceByID(ctx, "1"))
	assert.Equal(t, "1", f.Step().(ProfessionalStep).Service.ID)

	assert.ErrorIs(t, f.SelectServiceByID(ctx, "5"), ErrUnknownService)
	assert.ErrorIs(t, f.SelectServiceByID(ctx, "42"), ErrUnknownService)
}

func TestFlowDateChangeClearsTime(t *testing.T) {
	ctx := context.Background()
	be := new(mockBackend)
	f := newTestFlow(t, be, nil)
	toSummary(t, f, be)

	be.On("OccupiedSlots", mock.Anything, "2", "2024-07-11").Return([]string{"11:00"}, nil).Once()
	available, err := f.ChangeDate(ctx, "2024-07-11")
	require.NoError(t, err)
	assert.NotContains(t, available, "11:00")

	step, ok := f.Step().(DateTimeStep)
	require.True(t, ok, "date change must leave the summary step")
	assert.Equal(t, "2024-07-11", step.Date)
	assert.Equal(t, "2", step.Professional.ID)

	_, err = f.Confirm(ctx, "tg:42")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"time"}, verr.Missing)
}

func TestFlowBack(t *testing.T) {
	t.Run("FromSummaryClearsOnlyTime", func(t *testing.T) {
		be := new(mockBackend)
		f := newTestFlow(t, be, nil)
		toSummary(t, f, be)

		require.NoError(t, f.Back())

		step, ok := f.Step().(DateTimeStep)
		require.True(t, ok)
		assert.Equal(t, "2", step.Professional.ID)
		assert.Equal(t, "2024-07-10", step.Date)
		assert.Contains(t, step.Available, "11:00")
		assert.Equal(t, []string{"time"}, mustMissing(t, f))
	})

	t.Run("FromDateTimeClearsProfessionalDateAndTime", func(t *testing.T) {
		be := new(mockBackend)
		f := newTestFlow(t, be, nil)
		toSummary(t, f, be)

		require.NoError(t, f.Back())
		require.NoError(t, f.Back())

		step, ok := f.Step().(ProfessionalStep)
		require.True(t, ok)
		require.NotNil(t, step.Service)
		assert.Equal(t, "1", step.Service.ID)
		assert.Len(t, step.Professionals, 1)
		assert.Equal(t, []string{"professional_id", "date", "time"}, mustMissing(t, f))
	})

	t.Run("FromProfessionalIsIllegal", func(t *testing.T) {
		f := newTestFlow(t, new(mockBackend), nil)
		assert.ErrorIs(t, f.Back(), ErrIllegalTransition)
		assert.Equal(t, StepProfessional, f.Step().Name())
	})
}

func mustMissing(t *testing.T, f *Flow) []string {
	t.Helper()
	_, err := f.Confirm(context.Background(), "tg:42")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Missing
}

func TestFlowSelectTimeRules(t *testing.T) {
	ctx := context.Background()
	be := new(mockBackend)
	f := newTestFlow(t, be, nil)
	be.On("ListProfessionals", mock.Anything).Return(barbers(), nil)
	be.On("OccupiedSlots", mock.Anything, "2", "2024-07-10").Return([]string{"09:00"}, nil)

	require.NoError(t, f.SelectService(ctx, corte))
	require.NoError(t, f.SelectProfessional("2"))

	assert.ErrorIs(t, f.SelectTime("11:00"), ErrDateNotSelected)

	_, err := f.ChangeDate(ctx, "10/07/2024")
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = f.ChangeDate(ctx, "2024-07-10")
	require.NoError(t, err)
	assert.ErrorIs(t, f.SelectTime("09:00"), ErrSlotUnavailable)
	assert.ErrorIs(t, f.SelectTime("07:00"), ErrSlotUnavailable)
	require.NoError(t, f.SelectTime("11:00:00"))
	assert.Equal(t, "11:00", f.Step().(SummaryStep).Time)
}

func TestFlowSlotFetchFailure(t *testing.T) {
	ctx := context.Background()
	be := new(mockBackend)
	f := newTestFlow(t, be, nil)
	be.On("ListProfessionals", mock.Anything).Return(barbers(), nil)
	be.On("OccupiedSlots", mock.Anything, "2", "2024-07-10").Return(nil, errors.New("timeout"))

	require.NoError(t, f.SelectService(ctx, corte))
	require.NoError(t, f.SelectProfessional("2"))

	_, err := f.ChangeDate(ctx, "2024-07-10")
	var rerr *RemoteError
	require.ErrorAs(t, err, &rerr)

	step := f.Step().(DateTimeStep)
	assert.False(t, step.Loading)
	assert.True(t, step.Failed)
	assert.Empty(t, step.Available)

	be.On("OccupiedSlots", mock.Anything, "2", "2024-07-11").Return([]string{}, nil)
	_, err = f.ChangeDate(ctx, "2024-07-11")
	require.NoError(t, err)
	step = f.Step().(DateTimeStep)
	assert.False(t, step.Failed)
	assert.NotEmpty(t, step.Available)
}

type gatedSchedule struct {
	mu      sync.Mutex
	entered chan string
	gates   map[string]chan []string
}

func newGatedSchedule(dates ...string) *gatedSchedule {
	g := &gatedSchedule{entered: make(chan string, len(dates)), gates: make(map[string]chan []string)}
	for _, d := range dates {
		g.gates[d] = make(chan []string, 1)
	}
	return g
}

func (g *gatedSchedule) OccupiedSlots(_ context.Context, _, date string) ([]string, error) {
	g.mu.Lock()
	gate := g.gates[date]
	g.mu.Unlock()
	g.entered <- date
	return <-gate, nil
}

func TestFlowDiscardsSupersededSlotFetch(t *testing.T) {
	ctx := context.Background()
	be := new(mockBackend)
	be.On("ListProfessionals", mock.Anything).Return(barbers(), nil)
	sched := newGatedSchedule("2024-07-10", "2024-07-11")
	logger := zerolog.New(io.Discard)
	f := NewFlow(Deps{Directory: be, Schedule: sched, Bookings: be, Logger: &logger}, Options{Location: time.UTC})

	require.NoError(t, f.SelectService(ctx, corte))
	require.NoError(t, f.SelectProfessional("2"))

	type result struct {
		slots []string
		err   error
	}
	first := make(chan result, 1)
	second := make(chan result, 1)

	go func() {
		s, err := f.ChangeDate(ctx, "2024-07-10")
		first <- result{s, err}
	}()
	require.Equal(t, "2024-07-10", <-sched.entered)

	go func() {
		s, err := f.ChangeDate(ctx, "2024-07-11")
		second <- result{s, err}
	}()
	require.Equal(t, "2024-07-11", <-sched.entered)

	sched.gates["2024-07-11"] <- []string{"19:00"}
	newer := <-second
	require.NoError(t, newer.err)

	sched.gates["2024-07-10"] <- []string{"09:00", "10:00", "11:00"}
	older := <-first
	assert.ErrorIs(t, older.err, ErrStaleSlots)

	step := f.Step().(DateTimeStep)
	assert.Equal(t, "2024-07-11", step.Date)
	assert.Equal(t, newer.slots, step.Available)
	assert.Contains(t, step.Available, "09:00")
	assert.NotContains(t, step.Available, "19:00")
	assert.False(t, step.Loading)
}

func TestFlowRemoteFailureMessage(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"AccessorMessage", model.Public("Este horário acabou de ser reservado.", model.ErrSlotTaken), "Este horário acabou de ser reservado."},
		{"GenericFallback", errors.New("dial tcp: i/o timeout"), GenericFailureMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := new(mockBackend)
			ns := new(mockScheduler)
			f := newTestFlow(t, be, ns)
			toSummary(t, f, be)
			be.On("CreateBooking", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			called := false
			f.OnComplete(func(model.Booking) { called = true })

			_, err := f.Confirm(ctx, "tg:42")

			var rerr *RemoteError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, tt.message, rerr.Message)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, StepSummary, f.Step().Name())
			assert.False(t, called)
			ns.AssertNotCalled(t, "ScheduleBooking", mock.Anything, mock.Anything)
		})
	}
}

func TestFlowNotificationFailureIsNotSurfaced(t *testing.T) {
	ctx := context.Background()
	be := new(mockBackend)
	ns := new(mockScheduler)
	f := newTestFlow(t, be, ns)
	toSummary(t, f, be)

	created := &model.Booking{ID: "b-7", Status: model.StatusScheduled}
	be.On("CreateBooking", mock.Anything, mock.Anything).Return(created, nil).Once()
	ns.On("ScheduleBooking", mock.Anything, *created).Return(errors.New("push unavailable")).Once()

	got, err := f.Confirm(ctx, "tg:42")
	require.NoError(t, err)
	assert.Equal(t, "b-7", got.ID)
	assert.Equal(t, StepSubmitted, f.Step().Name())
}

type blockingBookings struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (b *blockingBookings) CreateBooking(_ context.Context, nb model.NewBooking) (*model.Booking, error) {
	b.calls.Add(1)
	close(b.started)
	<-b.release
	return &model.Booking{ID: "b-1", UserID: nb.UserID, Status: model.StatusScheduled, IdempotencyKey: nb.IdempotencyKey}, nil
}

func TestFlowDuplicateSubmission(t *testing.T) {
	ctx := context.Background()
	be := new(mockBackend)
	bb := &blockingBookings{started: make(chan struct{}), release: make(chan struct{})}
	logger := zerolog.New(io.Discard)
	f := NewFlow(Deps{Directory: be, Schedule: be, Bookings: bb, Logger: &logger}, Options{Location: time.UTC})
	toSummary(t, f, be)

	done := make(chan error, 1)
	go func() {
		_, err := f.Confirm(ctx, "tg:42")
		done <- err
	}()
	<-bb.started

	_, err := f.Confirm(ctx, "tg:42")
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.ErrorIs(t, f.Back(), ErrSubmissionInFlight)
	assert.ErrorIs(t, f.SetPreferences(true, ""), ErrSubmissionInFlight)

	close(bb.release)
	require.NoError(t, <-done)

	_, err = f.Confirm(ctx, "tg:42")
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.ErrorIs(t, f.SelectService(ctx, corte), ErrAlreadySubmitted)
	assert.Equal(t, int32(1), bb.calls.Load())
}

func TestFlowReset(t *testing.T) {
	ctx := context.Background()
	be := new(mockBackend)
	f := newTestFlow(t, be, nil)
	toSummary(t, f, be)
	require.NoError(t, f.SetPreferences(true, "nota"))
	be.On("CreateBooking", mock.Anything, mock.Anything).Return(&model.Booking{ID: "b-1"}, nil).Once()
	_, err := f.Confirm(ctx, "tg:42")
	require.NoError(t, err)
	key := f.IdempotencyKey()

	require.NoError(t, f.Reset())

	assert.Equal(t, ProfessionalStep{}, f.Step())
	silent, notes := f.Preferences()
	assert.False(t, silent)
	assert.Empty(t, notes)
	assert.NotEqual(t, key, f.IdempotencyKey())
	assert.NotEmpty(t, f.IdempotencyKey())
}

func TestFlowSlotFilters(t *testing.T) {
	ctx := context.Background()
	wednesday := "2024-07-10"

	t.Run("MinAdvance", func(t *testing.T) {
		be := new(mockBackend)
		be.On("ListProfessionals", mock.Anything).Return(barbers(), nil)
		be.On("OccupiedSlots", mock.Anything, "2", wednesday).Return([]string{}, nil)
		now := time.Date(2024, 7, 10, 12, 30, 0, 0, time.UTC)
		f := NewFlow(Deps{Directory: be, Schedule: be, Bookings: be}, Options{
			Location:   time.UTC,
			MinAdvance: time.Hour,
			Now:        func() time.Time { return now },
		})
		require.NoError(t, f.SelectService(ctx, corte))
		require.NoError(t, f.SelectProfessional("2"))

		available, err := f.ChangeDate(ctx, wednesday)
		require.NoError(t, err)
		assert.Equal(t, []string{"14:00", "15:00", "16:00", "17:00", "18:00", "19:00"}, available)
	})

	t.Run("WorkingHours", func(t *testing.T) {
		pros := barbers()
		hours, err := model.ParseWorkingHours("Seg-Sex: 10h às 13h")
		require.NoError(t, err)
		pros[1].WorkingHours = hours

		be := new(mockBackend)
		be.On("ListProfessionals", mock.Anything).Return(pros, nil)
		be.On("OccupiedSlots", mock.Anything, "2", mock.Anything).Return([]string{"11:00"}, nil)
		f := NewFlow(Deps{Directory: be, Schedule: be, Bookings: be}, Options{
			Location:            time.UTC,
			RespectWorkingHours: true,
		})
		require.NoError(t, f.SelectService(ctx, corte))
		require.NoError(t, f.SelectProfessional("2"))

		available, err := f.ChangeDate(ctx, wednesday)
		require.NoError(t, err)
		assert.Equal(t, []string{"10:00", "12:00"}, available)

		available, err = f.ChangeDate(ctx, "2024-07-14")
		require.NoError(t, err)
		assert.Empty(t, available)
	})
}

func TestFlowAvailableIsSubsetOfCandidates(t *testing.T) {
	ctx := context.Background()
	occupiedSets := [][]string{
		nil,
		{"09:00", "09:00", "10:00"},
		{"9:00:00", "23:00", "garbage"},
		{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00", "17:00", "18:00", "19:00"},
	}
	for _, occupied := range occupiedSets {
		be := new(mockBackend)
		be.On("ListProfessionals", mock.Anything).Return(barbers(), nil)
		be.On("OccupiedSlots", mock.Anything, "2", "2024-07-10").Return(occupied, nil)
		f := newTestFlow(t, be, nil)
		require.NoError(t, f.SelectService(ctx, corte))
		require.NoError(t, f.SelectProfessional("2"))

		available, err := f.ChangeDate(ctx, "2024-07-10")
		require.NoError(t, err)

		seen := map[string]bool{}
		for _, s := range available {
			assert.Contains(t, f.Candidates(), s)
			assert.False(t, seen[s], "duplicate slot %s", s)
			seen[s] = true
		}
		for _, o := range occupied {
			assert.NotContains(t, available, o)
		}
	}
}
