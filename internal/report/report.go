// Package report builds the monthly bookings workbook sent to managers.
package report

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"studiotblack/internal/model"
)

// Source provides the data exported in a report.
type Source interface {
	ListBookingsBetween(ctx context.Context, from, to string) ([]model.Booking, error)
	ListServices(ctx context.Context) ([]model.Service, error)
	ListProfessionals(ctx context.Context) ([]model.Professional, error)
}

var monthNames = map[time.Month]string{
	time.January:   "Janeiro",
	time.February:  "Fevereiro",
	time.March:     "Março",
	time.April:     "Abril",
	time.May:       "Maio",
	time.June:      "Junho",
	time.July:      "Julho",
	time.August:    "Agosto",
	time.September: "Setembro",
	time.October:   "Outubro",
	time.November:  "Novembro",
	time.December:  "Dezembro",
}

// MonthName returns the Portuguese name of m.
func MonthName(m time.Month) string {
	return monthNames[m]
}

var statusLabels = map[model.BookingStatus]string{
	model.StatusScheduled:  "Agendado",
	model.StatusConfirmed:  "Confirmado",
	model.StatusInProgress: "Em atendimento",
	model.StatusCompleted:  "Concluído",
	model.StatusCancelled:  "Cancelado",
	model.StatusNoShow:     "Não compareceu",
}

// StatusLabel returns the Portuguese label of s.
func StatusLabel(s model.BookingStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Monthly is a generated workbook.
type Monthly struct {
	Filename string
	Data     []byte
	Bookings int
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation("2006-01", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM", s)
	}
	return t, nil
}

// BuildMonthly exports every booking dated in month's calendar month: one
// sheet with the bookings and one summary per professional.
func BuildMonthly(ctx context.Context, src Source, month time.Time) (*Monthly, error) {
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, month.Location())
	last := first.AddDate(0, 1, -1)

	bookings, err := src.ListBookingsBetween(ctx, first.Format(model.DateLayout), last.Format(model.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	services, err := src.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	pros, err := src.ListProfessionals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load professionals: %w", err)
	}

	svcNames := make(map[string]string, len(services))
	for _, s := range services {
		svcNames[s.ID] = s.Name
	}
	proNames := make(map[string]string, len(pros))
	for _, p := range pros {
		proNames[p.ID] = p.Name
	}
	name := func(m map[string]string, id string) string {
		if n, ok := m[id]; ok {
			return n
		}
		return id
	}

	w := newSheetWriter()
	defer w.close()

	if err := w.addSheet("Agendamentos"); err != nil {
		return nil, err
	}
	if err := w.writeHeader([]string{"Data", "Horário", "Cliente", "Profissional", "Serviço", "Status", "Valor (R$)", "Pagamento", "Observações"}); err != nil {
		return nil, err
	}
	w.setWidths(12, 9, 18, 20, 22, 16, 11, 12, 40)

	type summary struct {
		total, completed, cancelled int
		revenue                     float64
	}
	perPro := map[string]*summary{}

	for _, b := range bookings {
		row := []any{
			b.Date, b.Time, b.UserID,
			name(proNames, b.ProfessionalID), name(svcNames, b.ServiceID),
			StatusLabel(b.Status), b.TotalPrice, b.PaymentStatus, b.Notes,
		}
		if err := w.writeRow(row); err != nil {
			return nil, err
		}

		s := perPro[b.ProfessionalID]
		if s == nil {
			s = &summary{}
			perPro[b.ProfessionalID] = s
		}
		s.total++
		switch b.Status {
		case model.StatusCompleted:
			s.completed++
			s.revenue += b.TotalPrice
		case model.StatusCancelled, model.StatusNoShow:
			s.cancelled++
		}
	}

	if err := w.addSheet("Resumo"); err != nil {
		return nil, err
	}
	if err := w.writeHeader([]string{"Profissional", "Agendamentos", "Concluídos", "Cancelados/Faltas", "Faturamento (R$)"}); err != nil {
		return nil, err
	}
	w.setWidths(20, 14, 12, 18, 16)

	ids := make([]string, 0, len(perPro))
	for id := range perPro {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return name(proNames, ids[i]) < name(proNames, ids[j]) })

	var grand summary
	for _, id := range ids {
		s := perPro[id]
		if err := w.writeRow([]any{name(proNames, id), s.total, s.completed, s.cancelled, s.revenue}); err != nil {
			return nil, err
		}
		grand.total += s.total
		grand.completed += s.completed
		grand.cancelled += s.cancelled
		grand.revenue += s.revenue
	}
	if err := w.writeRow([]any{"Total", grand.total, grand.completed, grand.cancelled, grand.revenue}); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := w.save(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return &Monthly{
		Filename: fmt.Sprintf("agendamentos_%s_%d.xlsx", monthNames[first.Month()], first.Year()),
		Data:     buf.Bytes(),
		Bookings: len(bookings),
	}, nil
}
