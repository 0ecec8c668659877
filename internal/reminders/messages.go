package reminders

import (
	"context"
	"fmt"
	"time"

	"studiotblack/internal/model"
)

// Directory resolves service and professional names for message text.
type Directory interface {
	ListServices(ctx context.Context) ([]model.Service, error)
	ListProfessionals(ctx context.Context) ([]model.Professional, error)
}

type names struct {
	service      string
	professional string
}

func (s *Service) lookupNames(ctx context.Context, b model.Booking) names {
	n := names{service: "Atendimento", professional: "seu barbeiro"}
	if s.directory == nil {
		return n
	}
	if services, err := s.directory.ListServices(ctx); err == nil {
		for _, svc := range services {
			if svc.ID == b.ServiceID {
				n.service = svc.Name
			}
		}
	}
	if pros, err := s.directory.ListProfessionals(ctx); err == nil {
		for _, p := range pros {
			if p.ID == b.ProfessionalID {
				n.professional = p.Name
			}
		}
	}
	return n
}

func payload(b model.Booking, kind Kind) map[string]string {
	return map[string]string{
		"type":       "booking",
		"kind":       string(kind),
		"booking_id": b.ID,
		"date":       b.Date,
		"time":       b.Time,
	}
}

func confirmedReminder(b model.Booking, n names, start, now time.Time) Reminder {
	return Reminder{
		BookingID: b.ID,
		UserID:    b.UserID,
		Kind:      KindConfirmed,
		Title:     "Agendamento confirmado ✂️",
		Body:      fmt.Sprintf("%s com %s em %s às %s.", n.service, n.professional, start.Format("02/01"), b.Time),
		Payload:   payload(b, KindConfirmed),
		DeliverAt: now,
	}
}

func beforeReminder(b model.Booking, n names, start time.Time, offset time.Duration) Reminder {
	kind := BeforeKind(offset)
	return Reminder{
		BookingID: b.ID,
		UserID:    b.UserID,
		Kind:      kind,
		Title:     "Lembrete do seu horário",
		Body: fmt.Sprintf("Faltam %s: %s com %s em %s às %s.",
			humanOffset(offset), n.service, n.professional, start.Format("02/01"), b.Time),
		Payload:   payload(b, kind),
		DeliverAt: start.Add(-offset),
	}
}

func humanOffset(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hora"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d horas", int(d/time.Hour))
	case d == time.Minute:
		return "1 minuto"
	default:
		return fmt.Sprintf("%d minutos", int(d/time.Minute))
	}
}
