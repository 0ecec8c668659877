package model

import "slices"

// Service is a bookable barbershop service.
type Service struct {
	ID          string  `json:"id" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description,omitempty"`
	DurationMin int     `json:"duration_min" validate:"gte=0"`
	Price       float64 `json:"price" validate:"gte=0"`
	Category    string  `json:"category,omitempty"`
	Active      bool    `json:"active"`
}

// Professional is a barber that can be selected for a booking.
//
// ShowInBooking is a pointer because rows without the column must stay
// visible; only an explicit false hides the professional. Services is nil
// when the row carries no services list at all.
type Professional struct {
	ID            string       `json:"id" validate:"required"`
	Name          string       `json:"name" validate:"required"`
	AvatarURL     string       `json:"avatar_url,omitempty"`
	Specialties   []string     `json:"specialties,omitempty"`
	WorkingHours  WorkingHours `json:"working_hours"`
	Active        bool         `json:"active"`
	ShowInBooking *bool        `json:"show_in_booking,omitempty"`
	Services      []string     `json:"services,omitempty"`
}

// Visible reports whether the professional may be offered in booking.
func (p *Professional) Visible() bool {
	return p.ShowInBooking == nil || *p.ShowInBooking
}

// Offers reports whether the professional lists serviceID. A professional
// without a services list offers nothing.
func (p *Professional) Offers(serviceID string) bool {
	if p.Services == nil {
		return false
	}
	return slices.Contains(p.Services, serviceID)
}

// OfferingService filters professionals to those visible in booking that
// offer serviceID, keeping the input order.
func OfferingService(all []Professional, serviceID string) []Professional {
	out := make([]Professional, 0, len(all))
	for i := range all {
		if all[i].Visible() && all[i].Offers(serviceID) {
			out = append(out, all[i])
		}
	}
	return out
}

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
