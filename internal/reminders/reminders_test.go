package reminders

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"studiotblack/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo implements Repository for testing.
type memRepo struct {
	mu        sync.Mutex
	reminders map[int64]*Reminder
	nextID    int64
}

func newMemRepo() *memRepo {
	return &memRepo{reminders: make(map[int64]*Reminder), nextID: 1}
}

func (m *memRepo) CreateReminder(_ context.Context, r *Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reminders {
		if existing.BookingID == r.BookingID && existing.Kind == r.Kind {
			return ErrDuplicate
		}
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	r.ID = m.nextID
	m.nextID++
	cp := *r
	m.reminders[r.ID] = &cp
	return nil
}

func (m *memRepo) UpdateReminder(_ context.Context, r *Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.reminders[r.ID] = &cp
	return nil
}

func (m *memRepo) match(r *Reminder, f Filter) bool {
	if len(f.Status) > 0 {
		found := false
		for _, s := range f.Status {
			if r.Status == s {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	if f.DueBefore != nil && r.DeliverAt.After(*f.DueBefore) {
		return false
	}
	if f.UpdatedBefore != nil && !r.UpdatedAt.Before(*f.UpdatedBefore) {
		return false
	}
	if f.BookingID != "" && r.BookingID != f.BookingID {
		return false
	}
	return true
}

func (m *memRepo) FindReminders(_ context.Context, f Filter) ([]Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reminder
	for _, r := range m.reminders {
		if m.match(r, f) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) TryAcquireReminder(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reminders[id]
	if !ok || r.Status != StatusPending {
		return false, nil
	}
	r.Status = StatusProcessing
	return true, nil
}

func (m *memRepo) ReleaseReminder(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reminders[id]; ok && r.Status == StatusProcessing {
		r.Status = StatusPending
	}
	return nil
}

func (m *memRepo) DeleteReminders(_ context.Context, f Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.reminders {
		if m.match(r, f) {
			delete(m.reminders, id)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) CancelBookingReminders(_ context.Context, bookingID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.reminders {
		if r.BookingID == bookingID && r.Status == StatusPending {
			r.Status = StatusCancelled
			n++
		}
	}
	return n, nil
}

func (m *memRepo) CountPendingReminders(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.reminders {
		if r.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) byKind(bookingID string, kind Kind) *Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reminders {
		if r.BookingID == bookingID && r.Kind == kind {
			cp := *r
			return &cp
		}
	}
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	errs []error
	sent []Notification
}

func (n *fakeNotifier) Send(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.errs) > 0 {
		err := n.errs[0]
		n.errs = n.errs[1:]
		if err != nil {
			return err
		}
	}
	n.sent = append(n.sent, msg)
	return nil
}

type fakeSettings map[string]*model.UserSettings

func (f fakeSettings) GetUserSettings(_ context.Context, userID string) (*model.UserSettings, error) {
	if s, ok := f[userID]; ok {
		return s, nil
	}
	return &model.UserSettings{UserID: userID, RemindersEnabled: true}, nil
}

type fakeDirectory struct{}

func (fakeDirectory) ListServices(context.Context) ([]model.Service, error) {
	return []model.Service{{ID: "1", Name: "Corte", Active: true}}, nil
}

func (fakeDirectory) ListProfessionals(context.Context) ([]model.Professional, error) {
	return []model.Professional{{ID: "2", Name: "Thiago"}}, nil
}

var testNow = time.Date(2024, 7, 8, 9, 0, 0, 0, time.UTC)

type harness struct {
	svc    *Service
	repo   *memRepo
	notify *fakeNotifier
	sleeps []time.Duration
}

func newHarness(t *testing.T, settings fakeSettings) *harness {
	t.Helper()
	h := &harness{repo: newMemRepo(), notify: &fakeNotifier{}}
	logger := zerolog.New(io.Discard)
	h.svc = NewService(Config{Location: time.UTC, RatePerSecond: 1000, Burst: 1000}, Deps{
		Repo:      h.repo,
		Settings:  settings,
		Directory: fakeDirectory{},
		Notifier:  h.notify,
		Logger:    &logger,
	})
	h.svc.now = func() time.Time { return testNow }
	var mu sync.Mutex
	h.svc.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	return h
}

func testBooking(id, date, hhmm string) model.Booking {
	return model.Booking{ID: id, UserID: "tg:1", ProfessionalID: "2", ServiceID: "1", Date: date, Time: hhmm}
}

func TestBeforeKind(t *testing.T) {
	assert.Equal(t, Kind("before_24h"), BeforeKind(24*time.Hour))
	assert.Equal(t, Kind("before_90m"), BeforeKind(90*time.Minute))
}

func TestScheduleBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("ConfirmedPlusTwoReminders", func(t *testing.T) {
		h := newHarness(t, nil)
		b := testBooking("b1", "2024-07-10", "11:00")
		require.NoError(t, h.svc.ScheduleBooking(ctx, b))

		all, _ := h.repo.FindReminders(ctx, Filter{})
		require.Len(t, all, 3)

		confirmed := h.repo.byKind("b1", KindConfirmed)
		require.NotNil(t, confirmed)
		assert.Equal(t, testNow, confirmed.DeliverAt)
		assert.Equal(t, "Corte com Thiago em 10/07 às 11:00.", confirmed.Body)
		assert.Equal(t, "b1", confirmed.Payload["booking_id"])

		day := h.repo.byKind("b1", BeforeKind(24*time.Hour))
		require.NotNil(t, day)
		assert.Equal(t, time.Date(2024, 7, 9, 11, 0, 0, 0, time.UTC), day.DeliverAt)
		assert.Contains(t, day.Body, "Faltam 24 horas")

		hour := h.repo.byKind("b1", BeforeKind(time.Hour))
		require.NotNil(t, hour)
		assert.Equal(t, time.Date(2024, 7, 10, 10, 0, 0, 0, time.UTC), hour.DeliverAt)

		require.NoError(t, h.svc.ScheduleBooking(ctx, b))
		all, _ = h.repo.FindReminders(ctx, Filter{})
		assert.Len(t, all, 3)
	})

	t.Run("SkipsPastOffsets", func(t *testing.T) {
		h := newHarness(t, nil)
		require.NoError(t, h.svc.ScheduleBooking(ctx, testBooking("b2", "2024-07-08", "11:00")))
		all, _ := h.repo.FindReminders(ctx, Filter{})
		require.Len(t, all, 2)
		assert.Nil(t, h.repo.byKind("b2", BeforeKind(24*time.Hour)))
	})

	t.Run("UserDisabledReminders", func(t *testing.T) {
		h := newHarness(t, fakeSettings{"tg:1": {UserID: "tg:1", RemindersEnabled: false}})
		require.NoError(t, h.svc.ScheduleBooking(ctx, testBooking("b3", "2024-07-10", "11:00")))
		all, _ := h.repo.FindReminders(ctx, Filter{})
		require.Len(t, all, 1)
		assert.Equal(t, KindConfirmed, all[0].Kind)
	})

	t.Run("UserOffsetOverride", func(t *testing.T) {
		h := newHarness(t, fakeSettings{"tg:1": {UserID: "tg:1", RemindersEnabled: true, ReminderHoursBefore: 3}})
		require.NoError(t, h.svc.ScheduleBooking(ctx, testBooking("b4", "2024-07-10", "11:00")))
		all, _ := h.repo.FindReminders(ctx, Filter{})
		require.Len(t, all, 2)
		assert.NotNil(t, h.repo.byKind("b4", BeforeKind(3*time.Hour)))
	})

	t.Run("InvalidDate", func(t *testing.T) {
		h := newHarness(t, nil)
		assert.Error(t, h.svc.ScheduleBooking(ctx, testBooking("b5", "10/07/2024", "11:00")))
	})
}

func TestCancelForBooking(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.svc.ScheduleBooking(ctx, testBooking("b1", "2024-07-10", "11:00")))

	n, err := h.svc.CancelForBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	handled, err := h.svc.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, handled)
	assert.Empty(t, h.notify.sent)
}

func TestDispatchDue(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name       string
		errs       []error
		wantStatus Status
		wantError  string
		wantSleeps []time.Duration
		wantSent   int
	}{
		{"Delivered", nil, StatusSent, "", nil, 1},
		{"RetriedThenDelivered", []error{errors.New("timeout"), errors.New("timeout")}, StatusSent, "", []time.Duration{time.Second, 5 * time.Second}, 1},
		{"RateLimited", []error{&SendError{Code: 429, RetryAfter: 2 * time.Second}}, StatusSent, "", []time.Duration{2 * time.Second}, 1},
		{"UserBlocked", []error{&SendError{Code: 403, Message: "Forbidden"}}, StatusFailed, "user_blocked", nil, 0},
		{"BadRequest", []error{&SendError{Code: 400}}, StatusFailed, "bad_request", nil, 0},
		{
			"MaxRetries",
			[]error{errors.New("a"), errors.New("b"), errors.New("c"), errors.New("d")},
			StatusFailed, "max_retries_exceeded",
			[]time.Duration{time.Second, 5 * time.Second, 30 * time.Second}, 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.notify.errs = tt.errs
			require.NoError(t, h.svc.ScheduleBooking(ctx, testBooking("b1", "2024-07-10", "11:00")))

			handled, err := h.svc.DispatchDue(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, handled)

			r := h.repo.byKind("b1", KindConfirmed)
			require.NotNil(t, r)
			assert.Equal(t, tt.wantStatus, r.Status)
			assert.Equal(t, tt.wantError, r.LastError)
			assert.Equal(t, tt.wantSleeps, h.sleeps)
			assert.Len(t, h.notify.sent, tt.wantSent)
			if tt.wantStatus == StatusSent {
				require.NotNil(t, r.SentAt)
				assert.Equal(t, "Agendamento confirmado ✂️", h.notify.sent[0].Title)
			}

			day := h.repo.byKind("b1", BeforeKind(24*time.Hour))
			assert.Equal(t, StatusPending, day.Status)
		})
	}
}

func TestDispatchCancelsWhenUserOptsOut(t *testing.T) {
	ctx := context.Background()
	settings := fakeSettings{}
	h := newHarness(t, settings)
	require.NoError(t, h.svc.ScheduleBooking(ctx, testBooking("b1", "2024-07-08", "11:00")))

	settings["tg:1"] = &model.UserSettings{UserID: "tg:1", RemindersEnabled: false}
	later := testNow.Add(time.Hour)
	h.svc.now = func() time.Time { return later }

	handled, err := h.svc.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, handled)

	require.Len(t, h.notify.sent, 1)
	assert.Equal(t, StatusSent, h.repo.byKind("b1", KindConfirmed).Status)
	assert.Equal(t, StatusCancelled, h.repo.byKind("b1", BeforeKind(time.Hour)).Status)
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	old := &Reminder{BookingID: "old", Kind: KindConfirmed, Status: StatusSent, UpdatedAt: testNow.Add(-30 * 24 * time.Hour)}
	recent := &Reminder{BookingID: "new", Kind: KindConfirmed, Status: StatusSent, UpdatedAt: testNow}
	pending := &Reminder{BookingID: "pending", Kind: KindConfirmed, UpdatedAt: testNow.Add(-30 * 24 * time.Hour)}
	for _, r := range []*Reminder{old, recent, pending} {
		require.NoError(t, h.repo.CreateReminder(ctx, r))
	}

	n, err := h.svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Nil(t, h.repo.byKind("old", KindConfirmed))
	assert.NotNil(t, h.repo.byKind("pending", KindConfirmed))
}

func TestServiceStartStop(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.cfg.PollInterval = 10 * time.Millisecond
	ctx := context.Background()
	require.NoError(t, h.svc.ScheduleBooking(ctx, testBooking("b1", "2024-07-10", "11:00")))

	h.svc.Start(ctx)
	h.svc.Start(ctx)
	assert.True(t, h.svc.IsRunning())

	assert.Eventually(t, func() bool {
		r := h.repo.byKind("b1", KindConfirmed)
		return r != nil && r.Status == StatusSent
	}, time.Second, 10*time.Millisecond)

	h.svc.Stop()
	assert.False(t, h.svc.IsRunning())
	h.svc.Stop()
}
