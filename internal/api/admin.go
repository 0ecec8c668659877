package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"studiotblack/internal/model"
	"studiotblack/internal/report"

	"github.com/julienschmidt/httprouter"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type statusRequest struct {
	Status model.BookingStatus `json:"status"`
}

// handleDashboard summarises a day, today by default.
// GET /api/v1/admin/dashboard?date=YYYY-MM-DD
func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	day := s.cfg.Now().In(s.cfg.Location)
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.ParseInLocation(model.DateLayout, d, s.cfg.Location)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
			return
		}
		day = parsed
	}

	dash, err := s.deps.Bookings.Dashboard(r.Context(), day, s.deps.Pending)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, dash)
}

// handleExport downloads the monthly workbook, the current month by default.
// GET /api/v1/admin/export?month=YYYY-MM
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	month := s.cfg.Now().In(s.cfg.Location)
	if m := r.URL.Query().Get("month"); m != "" {
		parsed, err := report.ParseMonth(m, s.cfg.Location)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		month = parsed
	}

	rep, err := report.BuildMonthly(r.Context(), s.deps.Bookings, month)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rep.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(rep.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rep.Data)
}

// handleUpdateStatus moves a booking to another status.
// PATCH /api/v1/admin/bookings/:id/status
func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	b, err := s.deps.Bookings.UpdateStatus(r.Context(), ps.ByName("id"), req.Status, identityFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, b)
}
