package report

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"studiotblack/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeSource struct {
	from, to string
	bookings []model.Booking
	err      error
}

func (f *fakeSource) ListBookingsBetween(_ context.Context, from, to string) ([]model.Booking, error) {
	f.from, f.to = from, to
	return f.bookings, f.err
}

func (f *fakeSource) ListServices(context.Context) ([]model.Service, error) {
	return []model.Service{{ID: "1", Name: "Corte"}, {ID: "2", Name: "Barba"}}, nil
}

func (f *fakeSource) ListProfessionals(context.Context) ([]model.Professional, error) {
	return []model.Professional{{ID: "p1", Name: "Thiago"}, {ID: "p2", Name: "Rafael"}}, nil
}

func TestBuildMonthly(t *testing.T) {
	src := &fakeSource{bookings: []model.Booking{
		{Date: "2024-02-05", Time: "10:00", UserID: "tg:1", ProfessionalID: "p1", ServiceID: "1", Status: model.StatusCompleted, TotalPrice: 45},
		{Date: "2024-02-06", Time: "11:00", UserID: "tg:2", ProfessionalID: "p1", ServiceID: "2", Status: model.StatusCancelled, TotalPrice: 35},
		{Date: "2024-02-07", Time: "09:00", UserID: "tg:3", ProfessionalID: "p2", ServiceID: "2", Status: model.StatusCompleted, TotalPrice: 35},
		{Date: "2024-02-08", Time: "09:00", UserID: "tg:4", ProfessionalID: "gone", ServiceID: "9", Status: model.StatusScheduled, TotalPrice: 20},
	}}

	month := time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)
	rep, err := BuildMonthly(context.Background(), src, month)
	require.NoError(t, err)

	assert.Equal(t, "2024-02-01", src.from)
	assert.Equal(t, "2024-02-29", src.to)
	assert.Equal(t, "agendamentos_Fevereiro_2024.xlsx", rep.Filename)
	assert.Equal(t, 4, rep.Bookings)

	f, err := excelize.OpenReader(bytes.NewReader(rep.Data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Agendamentos", "Resumo"}, f.GetSheetList())

	rows, err := f.GetRows("Agendamentos")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Data", rows[0][0])
	assert.Equal(t, []string{"2024-02-05", "10:00", "tg:1", "Thiago", "Corte", "Concluído", "45"}, rows[1][:7])
	assert.Equal(t, "gone", rows[4][3])

	summary, err := f.GetRows("Resumo")
	require.NoError(t, err)
	require.Len(t, summary, 5)
	assert.Equal(t, []string{"Rafael", "1", "1", "0", "35"}, summary[1])
	assert.Equal(t, []string{"Thiago", "2", "1", "1", "45"}, summary[2])
	assert.Equal(t, []string{"gone", "1", "0", "0", "0"}, summary[3])
	assert.Equal(t, []string{"Total", "4", "2", "1", "80"}, summary[4])
}

func TestBuildMonthlyError(t *testing.T) {
	_, err := BuildMonthly(context.Background(), &fakeSource{err: errors.New("db down")}, time.Now())
	assert.ErrorContains(t, err, "db down")
}

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2024-07", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.July, m.Month())

	_, err = ParseMonth("07/2024", time.UTC)
	assert.Error(t, err)
}
