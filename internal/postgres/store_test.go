package postgres

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"studiotblack/internal/model"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfessionalRowToModel(t *testing.T) {
	avatar := "https://cdn/thiago.png"
	tests := []struct {
		name     string
		row      professionalRow
		wantDays int
		wantErr  bool
		check    func(t *testing.T, p model.Professional)
	}{
		{
			name: "ListShape",
			row: professionalRow{
				ID: "p1", Name: "Thiago", AvatarURL: &avatar, IsActive: true,
				WorkingHours: []byte(`["Seg-Sex: 09:00-18:00", "Sábado: 09:00-14:00"]`),
				Services:     []string{"corte"},
			},
			wantDays: 6,
			check: func(t *testing.T, p model.Professional) {
				assert.Equal(t, avatar, p.AvatarURL)
				assert.True(t, p.Visible())
				assert.True(t, p.Offers("corte"))
			},
		},
		{
			name: "MapShape",
			row: professionalRow{
				ID: "p2", Name: "Bruno", ShowInBooking: model.Bool(false),
				WorkingHours: []byte(`{"monday": "10:00-19:00", "sunday": null}`),
			},
			wantDays: 1,
			check: func(t *testing.T, p model.Professional) {
				assert.False(t, p.Visible())
				assert.Nil(t, p.Services)
				assert.False(t, p.Offers("corte"))
			},
		},
		{
			name:     "NullHours",
			row:      professionalRow{ID: "p3", Name: "Caio"},
			wantDays: 0,
		},
		{
			name:    "Garbage",
			row:     professionalRow{ID: "p4", WorkingHours: []byte(`{"monday": 42}`)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.row.toModel()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, p.WorkingHours, tt.wantDays)
			if tt.check != nil {
				tt.check(t, p)
			}
		})
	}
}

func TestBookingRowToModel(t *testing.T) {
	key := "k1"
	r := bookingRow{
		ID: "b1", ClientID: "u1", ProfessionalID: "p1", ServiceID: "s1",
		BookingDate: "2024-07-08", BookingTime: "10:00", Status: "confirmed",
		TotalPrice: 45, IdempotencyKey: &key,
	}
	b := r.toModel()
	assert.Equal(t, "u1", b.UserID)
	assert.Equal(t, "2024-07-08", b.Date)
	assert.Equal(t, model.StatusConfirmed, b.Status)
	assert.Equal(t, "k1", b.IdempotencyKey)

	r.IdempotencyKey = nil
	assert.Empty(t, r.toModel().IdempotencyKey)
}

func TestServiceRowToModel(t *testing.T) {
	desc := "Corte na tesoura"
	svc := serviceRow{ID: "s1", Name: "Corte", Description: &desc, Duration: 40, Price: 45, IsActive: true}.toModel()
	assert.Equal(t, 40, svc.DurationMin)
	assert.Equal(t, desc, svc.Description)
	assert.Empty(t, svc.Category)
	assert.True(t, svc.Active)
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	_ = godotenv.Load("../../.env")
	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}
	logger := zerolog.New(io.Discard)
	ctx := context.Background()
	st, err := Open(ctx, url, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))
	return st
}

func TestStoreBookings(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	suffix := uuid.NewString()[:8]
	svcID, proID := "svc-"+suffix, "pro-"+suffix
	_, err := st.pool.Exec(ctx, `INSERT INTO services (id, name, duration, price) VALUES ($1, 'Corte', 40, 45)`, svcID)
	require.NoError(t, err)
	_, err = st.pool.Exec(ctx, `
		INSERT INTO professionals (id, name, working_hours, services)
		VALUES ($1, 'Thiago', '["Seg-Sex: 09:00-18:00"]', ARRAY[$2])`, proID, svcID)
	require.NoError(t, err)

	pros, err := st.ListProfessionals(ctx)
	require.NoError(t, err)
	var found bool
	for _, p := range pros {
		if p.ID == proID {
			found = true
			assert.True(t, p.Offers(svcID))
			assert.NotEmpty(t, p.WorkingHours.On(time.Monday))
		}
	}
	assert.True(t, found)

	date := time.Now().AddDate(0, 0, 3).Format(model.DateLayout)
	nb := model.NewBooking{
		UserID: "u-" + suffix, ProfessionalID: proID, ServiceID: svcID,
		Date: date, Time: "10:00", TotalPrice: 45, IdempotencyKey: uuid.NewString(),
	}
	created, err := st.CreateBooking(ctx, nb)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, created.Status)
	assert.Equal(t, "10:00", created.Time)

	replay, err := st.CreateBooking(ctx, nb)
	require.NoError(t, err)
	assert.Equal(t, created.ID, replay.ID)

	nb.IdempotencyKey = uuid.NewString()
	_, err = st.CreateBooking(ctx, nb)
	assert.True(t, errors.Is(err, model.ErrSlotTaken))

	occupied, err := st.OccupiedSlots(ctx, proID, date)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00"}, occupied)

	cancelled, err := st.CancelBooking(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	_, err = st.CancelBooking(ctx, created.ID)
	assert.ErrorIs(t, err, model.ErrNotCancellable)

	occupied, err = st.OccupiedSlots(ctx, proID, date)
	require.NoError(t, err)
	assert.Empty(t, occupied)
}
