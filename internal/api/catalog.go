package api

import (
	"net/http"
	"time"

	"studiotblack/internal/booking"
	"studiotblack/internal/model"

	"github.com/julienschmidt/httprouter"
)

// handleServices lists the active services.
// GET /api/v1/services
func (s *HTTPServer) handleServices(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	services, err := s.deps.Bookings.ListServices(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, services)
}

// handleProfessionals lists visible professionals, optionally only those
// offering service_id.
// GET /api/v1/professionals?service_id=
func (s *HTTPServer) handleProfessionals(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var (
		pros []model.Professional
		err  error
	)
	if serviceID := r.URL.Query().Get("service_id"); serviceID != "" {
		pros, err = s.deps.Bookings.ProfessionalsFor(r.Context(), serviceID)
	} else {
		var all []model.Professional
		all, err = s.deps.Bookings.ListProfessionals(r.Context())
		for _, p := range all {
			if p.Visible() {
				pros = append(pros, p)
			}
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if pros == nil {
		pros = []model.Professional{}
	}
	writeData(w, http.StatusOK, pros)
}

type slotsResponse struct {
	ProfessionalID string   `json:"professional_id"`
	Date           string   `json:"date"`
	Available      []string `json:"available"`
}

// handleSlots returns the free times of a professional on a date.
// GET /api/v1/slots?professional_id=&date=YYYY-MM-DD
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	proID, date := q.Get("professional_id"), q.Get("date")
	if proID == "" || date == "" {
		writeMessage(w, http.StatusBadRequest, "professional_id and date are required")
		return
	}
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	pros, err := s.deps.Bookings.ListProfessionals(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var pro *model.Professional
	for i := range pros {
		if pros[i].ID == proID {
			pro = &pros[i]
			break
		}
	}
	if pro == nil {
		writeError(w, r, model.ErrNotFound)
		return
	}

	occupied, err := s.deps.Bookings.OccupiedSlots(r.Context(), proID, date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	available := booking.AvailableSlots(s.cfg.FlowOptions, date, *pro, occupied)
	if available == nil {
		available = []string{}
	}
	writeData(w, http.StatusOK, slotsResponse{ProfessionalID: proID, Date: date, Available: available})
}
