package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"studiotblack/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type sentDocument struct {
	filename string
	data     []byte
	caption  string
}

type fakeSender struct {
	mu   sync.Mutex
	docs []sentDocument
	err  error
	sent chan struct{}
}

func (f *fakeSender) SendDocument(_ context.Context, filename string, data []byte, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, sentDocument{filename, data, caption})
	if f.sent != nil {
		f.sent <- struct{}{}
	}
	return nil
}

type fakeCleaner struct {
	mu      sync.Mutex
	cutoffs []string
}

func (f *fakeCleaner) DeleteBookingsBefore(_ context.Context, date string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, date)
	return 3, nil
}

// fakeClock hands out timers that fire only when the test ticks them.
type fakeClock struct {
	now   time.Time
	waits chan time.Duration
	fire  chan time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, waits: make(chan time.Duration, 4), fire: make(chan time.Time)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.waits <- d
	return c.fire
}

func TestNextRun(t *testing.T) {
	tests := []struct {
		now, want time.Time
	}{
		{time.Date(2030, 1, 15, 10, 0, 0, 0, time.UTC), time.Date(2030, 2, 1, 0, 1, 0, 0, time.UTC)},
		{time.Date(2030, 12, 31, 23, 59, 0, 0, time.UTC), time.Date(2031, 1, 1, 0, 1, 0, 0, time.UTC)},
		{time.Date(2030, 3, 1, 0, 1, 0, 0, time.UTC), time.Date(2030, 4, 1, 0, 1, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextRun(tt.now), tt.now.String())
	}
}

func TestSchedulerRunOnce(t *testing.T) {
	logger := zerolog.New(io.Discard)
	src := &fakeSource{bookings: []model.Booking{
		{Date: "2029-12-20", Time: "10:00", UserID: "tg:1", ProfessionalID: "p1", ServiceID: "1", Status: model.StatusCompleted, TotalPrice: 40},
	}}
	sender := &fakeSender{}
	cleaner := &fakeCleaner{}
	clock := newFakeClock(time.Date(2030, 1, 1, 0, 1, 0, 0, time.UTC))

	s := NewScheduler(SchedulerConfig{
		Location:  time.UTC,
		Retention: 90 * 24 * time.Hour,
		Now:       clock.Now,
	}, src, sender, cleaner, &logger)

	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, "2029-12-01", src.from)
	assert.Equal(t, "2029-12-31", src.to)
	require.Len(t, sender.docs, 1)
	doc := sender.docs[0]
	assert.Equal(t, "agendamentos_Dezembro_2029.xlsx", doc.filename)
	assert.Contains(t, doc.caption, "Dezembro 2029")
	assert.Contains(t, doc.caption, "1 agendamentos")

	f, err := excelize.OpenReader(bytes.NewReader(doc.data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Agendamentos", "Resumo"}, f.GetSheetList())

	assert.Equal(t, []string{"2029-10-03"}, cleaner.cutoffs)
}

func TestSchedulerKeepsDataWhenExportFails(t *testing.T) {
	logger := zerolog.New(io.Discard)
	cleaner := &fakeCleaner{}
	clock := newFakeClock(time.Date(2030, 1, 1, 0, 1, 0, 0, time.UTC))
	cfg := SchedulerConfig{Location: time.UTC, Retention: 90 * 24 * time.Hour, Now: clock.Now}

	s := NewScheduler(cfg, &fakeSource{}, &fakeSender{err: errors.New("chat not found")}, cleaner, &logger)
	assert.ErrorContains(t, s.RunOnce(context.Background()), "chat not found")
	assert.Empty(t, cleaner.cutoffs)

	s = NewScheduler(cfg, &fakeSource{err: errors.New("db closed")}, &fakeSender{}, cleaner, &logger)
	assert.ErrorContains(t, s.RunOnce(context.Background()), "db closed")
	assert.Empty(t, cleaner.cutoffs)
}

func TestSchedulerNoRetentionSkipsCleanup(t *testing.T) {
	logger := zerolog.New(io.Discard)
	cleaner := &fakeCleaner{}
	clock := newFakeClock(time.Date(2030, 1, 1, 0, 1, 0, 0, time.UTC))

	s := NewScheduler(SchedulerConfig{Location: time.UTC, Now: clock.Now}, &fakeSource{}, &fakeSender{}, cleaner, &logger)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Empty(t, cleaner.cutoffs)
}

func TestSchedulerLoop(t *testing.T) {
	logger := zerolog.New(io.Discard)
	sender := &fakeSender{sent: make(chan struct{}, 1)}
	clock := newFakeClock(time.Date(2030, 1, 31, 23, 0, 0, 0, time.UTC))

	s := NewScheduler(SchedulerConfig{
		Location: time.UTC,
		Now:      clock.Now,
		After:    clock.After,
	}, &fakeSource{}, sender, nil, &logger)

	s.Start(context.Background())
	assert.Equal(t, time.Hour+time.Minute, <-clock.waits)

	clock.fire <- clock.now
	select {
	case <-sender.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("report was not sent")
	}
	<-clock.waits

	s.Stop()
	s.Stop()
	require.Len(t, sender.docs, 1)
	assert.Equal(t, "agendamentos_Dezembro_2029.xlsx", sender.docs[0].filename)
}

func TestSchedulerExportOnStart(t *testing.T) {
	logger := zerolog.New(io.Discard)
	sender := &fakeSender{sent: make(chan struct{}, 1)}
	clock := newFakeClock(time.Date(2030, 3, 10, 12, 0, 0, 0, time.UTC))

	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(SchedulerConfig{
		Location:      time.UTC,
		ExportOnStart: true,
		Now:           clock.Now,
		After:         clock.After,
	}, &fakeSource{}, sender, nil, &logger)
	s.Start(ctx)

	<-sender.sent
	<-clock.waits
	cancel()
	s.Stop()
	assert.Equal(t, "agendamentos_Fevereiro_2030.xlsx", sender.docs[0].filename)
}
