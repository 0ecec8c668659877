package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestOfferingService(t *testing.T) {
	all := []Professional{
		{ID: "1", Name: "Tiago", Services: []string{"2"}},
		{ID: "2", Name: "Bruno", Services: []string{"1", "2"}},
		{ID: "3", Name: "Caio"},
		{ID: "4", Name: "Davi", Services: []string{"1"}, ShowInBooking: Bool(false)},
		{ID: "5", Name: "Enzo", Services: []string{"1"}, ShowInBooking: Bool(true)},
	}

	got := OfferingService(all, "1")
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "5", got[1].ID)

	assert.Empty(t, OfferingService(all, "99"))
}

func TestBookingStatus(t *testing.T) {
	assert.True(t, StatusScheduled.Valid())
	assert.False(t, BookingStatus("pending").Valid())
	assert.True(t, StatusConfirmed.Cancellable())
	assert.False(t, StatusCompleted.Cancellable())
	assert.False(t, StatusCancelled.Active())
	assert.True(t, StatusInProgress.Active())
}

func TestCombineDateTime(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	got, err := CombineDateTime("2024-07-10", "11:00", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 7, 10, 11, 0, 0, 0, loc), got)

	_, err = CombineDateTime("10/07/2024", "11:00", loc)
	assert.Error(t, err)
}

func TestParseWorkingHours(t *testing.T) {
	nineToSix := []Interval{{Start: "09:00", End: "18:00"}}

	tests := []struct {
		name  string
		input string
		check func(t *testing.T, w WorkingHours)
	}{
		{
			name:  "list of plain ranges applies to every day",
			input: `["09:00-18:00"]`,
			check: func(t *testing.T, w WorkingHours) {
				assert.Len(t, w, 7)
				assert.Equal(t, nineToSix, w.On(time.Sunday))
			},
		},
		{
			name:  "portuguese lines with day ranges",
			input: `["Segunda a Sexta: 9h às 18h", "Sábado: 9h às 13h", "Domingo: Fechado"]`,
			check: func(t *testing.T, w WorkingHours) {
				assert.Equal(t, nineToSix, w.On(time.Monday))
				assert.Equal(t, nineToSix, w.On(time.Friday))
				assert.Equal(t, []Interval{{Start: "09:00", End: "13:00"}}, w.On(time.Saturday))
				assert.Empty(t, w.On(time.Sunday))
			},
		},
		{
			name:  "abbreviated days with split shift",
			input: `["Seg-Qua 09:00-12:00, 13:00-18:00"]`,
			check: func(t *testing.T, w WorkingHours) {
				assert.Equal(t, []Interval{{"09:00", "12:00"}, {"13:00", "18:00"}}, w.On(time.Tuesday))
				assert.Empty(t, w.On(time.Thursday))
			},
		},
		{
			name:  "day keyed map with mixed values",
			input: `{"monday": "09:00-18:00", "tue": ["09:00-12:00", "14:00-18:00"], "wednesday": {"start": "10:00", "end": "19:00"}, "sunday": null, "saturday": "fechado"}`,
			check: func(t *testing.T, w WorkingHours) {
				assert.Equal(t, nineToSix, w.On(time.Monday))
				assert.Len(t, w.On(time.Tuesday), 2)
				assert.Equal(t, []Interval{{"10:00", "19:00"}}, w.On(time.Wednesday))
				assert.Empty(t, w.On(time.Sunday))
				assert.Empty(t, w.On(time.Saturday))
			},
		},
		{
			name:  "list of day objects",
			input: `[{"day": 1, "start": "9", "end": "17h30"}, {"dia": "sex", "inicio": "08:00", "fim": "12:00"}]`,
			check: func(t *testing.T, w WorkingHours) {
				assert.Equal(t, []Interval{{"09:00", "17:30"}}, w.On(time.Monday))
				assert.Equal(t, []Interval{{"08:00", "12:00"}}, w.On(time.Friday))
			},
		},
		{
			name:  "null column",
			input: `null`,
			check: func(t *testing.T, w WorkingHours) {
				assert.Empty(t, w)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := DecodeWorkingHours([]byte(tt.input))
			require.NoError(t, err)
			tt.check(t, w)
		})
	}
}

func TestParseWorkingHoursErrors(t *testing.T) {
	for _, input := range []string{
		`["Funday: 09:00-18:00"]`,
		`["18:00-09:00"]`,
		`{"mon": "25:00-26:00"}`,
		`{"mon": true}`,
		`42`,
	} {
		_, err := DecodeWorkingHours([]byte(input))
		assert.True(t, errors.Is(err, ErrInvalidWorkingHours), "input %s: %v", input, err)
	}
}

func TestWorkingHoursCanonicalRoundTrip(t *testing.T) {
	w, err := ParseWorkingHours([]any{"Seg-Sex: 09:00-18:00"})
	require.NoError(t, err)

	data, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"mon":[{"start":"09:00","end":"18:00"}],
		"tue":[{"start":"09:00","end":"18:00"}],
		"wed":[{"start":"09:00","end":"18:00"}],
		"thu":[{"start":"09:00","end":"18:00"}],
		"fri":[{"start":"09:00","end":"18:00"}]
	}`, string(data))

	var back WorkingHours
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, w, back)
	assert.Equal(t, []string{"Seg 09:00-18:00", "Ter 09:00-18:00", "Qua 09:00-18:00", "Qui 09:00-18:00", "Sex 09:00-18:00"}, back.Lines())
}

func TestParseWorkingHoursFromYAML(t *testing.T) {
	var raw any
	require.NoError(t, yaml.Unmarshal([]byte("seg-sex: '09:00-19:00'\nsab: ['09:00-14:00']\n"), &raw))

	w, err := ParseWorkingHours(raw)
	require.NoError(t, err)
	assert.True(t, w.Covers(time.Thursday, "18:30"))
	assert.False(t, w.Covers(time.Saturday, "14:00"))
	assert.False(t, w.Covers(time.Sunday, "10:00"))
}

func TestValidateNewBooking(t *testing.T) {
	ok := NewBooking{UserID: "u", ProfessionalID: "2", ServiceID: "1", Date: "2024-07-10", Time: "11:00", TotalPrice: 40}
	assert.NoError(t, Validate(ok))

	bad := ok
	bad.Time = "11h"
	bad.ProfessionalID = ""
	err := Validate(bad)
	var fields FieldErrors
	require.ErrorAs(t, err, &fields)
	assert.Len(t, fields, 2)
	assert.Contains(t, err.Error(), "ProfessionalID: is required")
	assert.Contains(t, err.Error(), "Time: must be HH:MM")
}

func TestTelegramUserID(t *testing.T) {
	id := TelegramUserID(12345)
	assert.Equal(t, "tg:12345", id)

	chat, ok := TelegramChatID(id)
	assert.True(t, ok)
	assert.Equal(t, int64(12345), chat)

	_, ok = TelegramChatID("b1c9-uuid")
	assert.False(t, ok)
}
