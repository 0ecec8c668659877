package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"studiotblack/internal/access"
	"studiotblack/internal/booking"
	"studiotblack/internal/model"

	"github.com/rs/zerolog"
)

type errorResponse struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

type dataResponse struct {
	Data any `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, dataResponse{Data: v})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type userMessager interface {
	UserMessage() string
}

// writeError maps domain errors to HTTP statuses. Unknown errors are logged
// and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classify(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, errorResponse) {
	var (
		denied *access.DeniedError
		fields model.FieldErrors
		verr   *booking.ValidationError
		remote *booking.RemoteError
	)

	switch {
	case errors.As(err, &denied):
		return http.StatusForbidden, errorResponse{Error: denied.Reason}
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, errorResponse{Error: "forbidden"}
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "not found"}
	case errors.As(err, &fields):
		return http.StatusUnprocessableEntity, errorResponse{
			Error:   "validation failed",
			Details: map[string]any{"fields": fields},
		}
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, errorResponse{
			Error:   "missing required fields",
			Details: map[string]any{"missing": verr.Missing},
		}
	case errors.Is(err, model.ErrSlotTaken),
		errors.Is(err, model.ErrNotCancellable),
		errors.Is(err, booking.ErrSubmissionInFlight),
		errors.Is(err, booking.ErrAlreadySubmitted),
		errors.Is(err, booking.ErrStaleSlots),
		errors.Is(err, booking.ErrIllegalTransition):
		return http.StatusConflict, errorResponse{Error: messageOf(err)}
	case errors.Is(err, booking.ErrUnknownService),
		errors.Is(err, booking.ErrUnknownProfessional),
		errors.Is(err, booking.ErrInvalidDate),
		errors.Is(err, booking.ErrSlotUnavailable),
		errors.Is(err, booking.ErrDateNotSelected),
		errors.Is(err, booking.ErrServiceNotSelected):
		return http.StatusBadRequest, errorResponse{Error: err.Error()}
	case errors.As(err, &remote):
		return http.StatusBadGateway, errorResponse{Error: remote.Message}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
	}
}

// messageOf prefers a customer-facing message carried by err.
func messageOf(err error) string {
	var remote *booking.RemoteError
	if errors.As(err, &remote) && remote.Message != booking.GenericFailureMessage {
		return remote.Message
	}
	var um userMessager
	if errors.As(err, &um) && um.UserMessage() != "" {
		return um.UserMessage()
	}
	return err.Error()
}

// decodeJSON reads a JSON body into v and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
