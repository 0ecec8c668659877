package sheets

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"studiotblack/internal/events"
	"studiotblack/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient stores rows in memory; rows[0] is spreadsheet row 1.
type fakeClient struct {
	mu        sync.Mutex
	rows      [][]any
	reads     int
	updateErr error
}

func (f *fakeClient) ReadColumn(_ context.Context, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	out := make([]string, len(f.rows))
	for i, r := range f.rows {
		if len(r) > 0 {
			out[i], _ = r[0].(string)
		}
	}
	return out, nil
}

func (f *fakeClient) UpdateRow(_ context.Context, row int, values []any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	for len(f.rows) < row {
		f.rows = append(f.rows, nil)
	}
	f.rows[row-1] = values
	return nil
}

func (f *fakeClient) AppendRow(_ context.Context, values []any) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, values)
	return len(f.rows), nil
}

func newTestMirror(client Client) *Mirror {
	logger := zerolog.New(io.Discard)
	return NewMirror(client, 4, &logger)
}

func TestBookingRowValues(t *testing.T) {
	b := &model.Booking{
		ID: "b1", Date: "2024-12-25", Time: "10:00", UserID: "tg:1",
		ProfessionalID: "p1", ServiceID: "s1", Status: model.StatusConfirmed,
		TotalPrice: 45, Notes: "Atendimento silencioso",
		UpdatedAt: time.Date(2024, 12, 21, 11, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, []any{
		"b1", "2024-12-25", "10:00", "tg:1", "p1", "s1", "confirmed", 45.0,
		"Atendimento silencioso", "2024-12-21 11:00:00",
	}, bookingRowValues(b))
	assert.Len(t, Header, len(bookingRowValues(b)))
}

func TestMirrorUpsert(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{}
	m := newTestMirror(client)

	require.NoError(t, m.EnsureHeader(ctx))
	require.NoError(t, m.EnsureHeader(ctx))
	require.Len(t, client.rows, 1)

	require.NoError(t, m.Upsert(ctx, model.Booking{ID: "b1", Status: model.StatusScheduled}))
	require.NoError(t, m.Upsert(ctx, model.Booking{ID: "b2", Status: model.StatusScheduled}))
	require.Len(t, client.rows, 3)

	reads := client.reads
	require.NoError(t, m.Upsert(ctx, model.Booking{ID: "b1", Status: model.StatusCancelled}))
	assert.Equal(t, reads, client.reads)
	require.Len(t, client.rows, 3)
	assert.Equal(t, "cancelled", client.rows[1][6])

	m.ClearCache()
	require.NoError(t, m.Upsert(ctx, model.Booking{ID: "b2", Status: model.StatusCompleted}))
	assert.Equal(t, reads+1, client.reads)
	assert.Equal(t, "completed", client.rows[2][6])

	row, ok := m.getCachedRow("b1")
	assert.True(t, ok)
	assert.Equal(t, 2, row)

	client.updateErr = errors.New("quota")
	assert.Error(t, m.Upsert(ctx, model.Booking{ID: "b1"}))
	_, ok = m.getCachedRow("b1")
	assert.False(t, ok)
}

func TestMirrorHandleQueues(t *testing.T) {
	client := &fakeClient{}
	m := newTestMirror(client)

	ev, err := events.NewBookingEvent(events.BookingCreated, model.Booking{ID: "b1"})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, m.Handle(context.Background(), ev))
	}
	assert.Error(t, m.Handle(context.Background(), ev))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Start(ctx)
	m.Wait()

	assert.Len(t, client.rows, 1)
	assert.Empty(t, m.queue)
}

func TestRowOfRange(t *testing.T) {
	assert.Equal(t, 5, rowOfRange("Agendamentos!A5:J5"))
	assert.Equal(t, 12, rowOfRange("A12"))
	assert.Equal(t, 0, rowOfRange("Agendamentos!A:A"))
}
