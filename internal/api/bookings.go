package api

import (
	"net/http"

	"studiotblack/internal/model"

	"github.com/julienschmidt/httprouter"
)

type deviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

type settingsRequest struct {
	RemindersEnabled    bool `json:"reminders_enabled"`
	ReminderHoursBefore int  `json:"reminder_hours_before"`
}

// handleMyBookings lists the caller's bookings; ?upcoming=true keeps only
// active bookings from today on.
// GET /api/v1/bookings
func (s *HTTPServer) handleMyBookings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	userID := identityFrom(ctx).UserID

	var (
		list []model.Booking
		err  error
	)
	if r.URL.Query().Get("upcoming") == "true" {
		list, err = s.deps.Bookings.UpcomingUserBookings(ctx, userID, s.today())
	} else {
		list, err = s.deps.Bookings.ListUserBookings(ctx, userID)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Booking{}
	}
	writeData(w, http.StatusOK, list)
}

// handleCancelBooking cancels one of the caller's bookings.
// POST /api/v1/bookings/:id/cancel
func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	b, err := s.deps.Bookings.CancelBooking(r.Context(), ps.ByName("id"), identityFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, b)
}

// handleRegisterDevice stores a push token for the caller.
// POST /api/v1/devices
func (s *HTTPServer) handleRegisterDevice(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req deviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Token == "" {
		writeMessage(w, http.StatusBadRequest, "token is required")
		return
	}
	d := model.Device{UserID: identityFrom(r.Context()).UserID, Token: req.Token, Platform: req.Platform}
	if err := s.deps.Devices.RegisterDevice(r.Context(), d); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/v1/devices/:token
func (s *HTTPServer) handleDeleteDevice(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := s.deps.Devices.DeleteDevice(r.Context(), ps.ByName("token")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/settings
func (s *HTTPServer) handleGetSettings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	st, err := s.deps.Settings.GetUserSettings(r.Context(), identityFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, st)
}

// PUT /api/v1/settings
func (s *HTTPServer) handlePutSettings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req settingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ReminderHoursBefore < 0 || req.ReminderHoursBefore > 72 {
		writeError(w, r, model.FieldErrors{{Field: "reminder_hours_before", Message: "must be between 0 and 72"}})
		return
	}
	ctx := r.Context()
	userID := identityFrom(ctx).UserID
	if err := s.deps.Settings.UpsertUserSettings(ctx, userID, req.RemindersEnabled, req.ReminderHoursBefore); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.deps.Settings.GetUserSettings(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, st)
}
