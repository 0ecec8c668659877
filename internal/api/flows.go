package api

import (
	"context"
	"errors"
	"net/http"

	"studiotblack/internal/booking"
	"studiotblack/internal/model"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

// flowView is the JSON form of a wizard session.
type flowView struct {
	ID string `json:"id"`
	booking.Snapshot
}

type serviceRequest struct {
	ServiceID string `json:"service_id"`
}

type professionalRequest struct {
	ProfessionalID string `json:"professional_id"`
}

type dateRequest struct {
	Date string `json:"date"`
}

type timeRequest struct {
	Time string `json:"time"`
}

type preferencesRequest struct {
	Silent bool   `json:"silent"`
	Notes  string `json:"notes"`
}

// Flows are keyed by owner so one user can never reach another's session.
func flowKey(userID, flowID string) string {
	return "api:" + userID + ":" + flowID
}

// handleCreateFlow starts a new booking wizard.
// POST /api/v1/flows
func (s *HTTPServer) handleCreateFlow(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	user := identityFrom(ctx)
	if s.deps.Access != nil {
		if err := s.deps.Access.CheckCustomer(ctx, user.UserID); err != nil {
			writeError(w, r, err)
			return
		}
	}

	id := uuid.NewString()
	key := flowKey(user.UserID, id)
	f := s.deps.Sessions.GetOrCreate(ctx, key)
	s.saveFlow(ctx, key)
	writeData(w, http.StatusCreated, flowView{ID: id, Snapshot: f.Snapshot()})
}

// handleGetFlow returns the current state of a wizard.
// GET /api/v1/flows/:id
func (s *HTTPServer) handleGetFlow(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	f, ok := s.deps.Sessions.Get(r.Context(), flowKey(identityFrom(r.Context()).UserID, id))
	if !ok {
		writeError(w, r, model.ErrNotFound)
		return
	}
	writeData(w, http.StatusOK, flowView{ID: id, Snapshot: f.Snapshot()})
}

// handleDeleteFlow dismisses a wizard.
// DELETE /api/v1/flows/:id
func (s *HTTPServer) handleDeleteFlow(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	key := flowKey(identityFrom(r.Context()).UserID, ps.ByName("id"))
	if _, ok := s.deps.Sessions.Get(r.Context(), key); !ok {
		writeError(w, r, model.ErrNotFound)
		return
	}
	s.deps.Sessions.Delete(r.Context(), key)
	w.WriteHeader(http.StatusNoContent)
}

// handleFlowAction applies one wizard event. A confirmed flow answers with
// the created booking.
// POST /api/v1/flows/:id/{service,professional,date,refresh,time,back,preferences,reset,confirm}
func (s *HTTPServer) handleFlowAction(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	user := identityFrom(ctx)
	id := ps.ByName("id")
	key := flowKey(user.UserID, id)

	f, ok := s.deps.Sessions.Get(ctx, key)
	if !ok {
		writeError(w, r, model.ErrNotFound)
		return
	}

	var err error
	switch ps.ByName("action") {
	case "service":
		var req serviceRequest
		if err = decodeJSON(w, r, &req); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		err = f.SelectServiceByID(ctx, req.ServiceID)
	case "professional":
		var req professionalRequest
		if err = decodeJSON(w, r, &req); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		err = f.SelectProfessional(req.ProfessionalID)
	case "date":
		var req dateRequest
		if err = decodeJSON(w, r, &req); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		_, err = f.ChangeDate(ctx, req.Date)
	case "refresh":
		_, err = f.RefreshSlots(ctx)
	case "time":
		var req timeRequest
		if err = decodeJSON(w, r, &req); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		err = f.SelectTime(req.Time)
	case "back":
		err = f.Back()
	case "preferences":
		var req preferencesRequest
		if err = decodeJSON(w, r, &req); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		err = f.SetPreferences(req.Silent, req.Notes)
	case "reset":
		err = f.Reset()
	case "confirm":
		created, cErr := f.Confirm(ctx, user.UserID)
		if errors.Is(cErr, model.ErrSlotTaken) && f.Back() == nil {
			if _, rErr := f.RefreshSlots(ctx); rErr != nil {
				s.logger.Warn().Err(rErr).Str("session", key).Msg("failed to refresh slots after conflict")
			}
		}
		s.saveFlow(ctx, key)
		if cErr != nil {
			writeError(w, r, cErr)
			return
		}
		writeData(w, http.StatusCreated, created)
		return
	default:
		writeError(w, r, model.ErrNotFound)
		return
	}

	s.saveFlow(ctx, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, flowView{ID: id, Snapshot: f.Snapshot()})
}

func (s *HTTPServer) saveFlow(ctx context.Context, key string) {
	if err := s.deps.Sessions.Save(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("session", key).Msg("failed to save flow")
	}
}
