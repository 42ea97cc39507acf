package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/hlog"

	"github.com/kozaktomas/facegate/internal/session"
	"github.com/kozaktomas/facegate/internal/store"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// maxBodyBytes caps JSON bodies; image uploads have their own limit.
const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps a core error to its HTTP status.
func statusFor(kind session.ErrorKind) int {
	switch kind {
	case session.ErrKindNone:
		return http.StatusOK
	case session.ErrKindInvalidInput:
		return http.StatusBadRequest
	case session.ErrKindDuplicateName, session.ErrKindAlreadyIn, session.ErrKindNotIn:
		return http.StatusConflict
	case session.ErrKindNotFound:
		return http.StatusNotFound
	case session.ErrKindDimensionMismatch, session.ErrKindCapture:
		return http.StatusUnprocessableEntity
	case session.ErrKindCaptureUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondCoreError classifies err and writes it. Server-side failures are logged
// and reported without their internals.
func respondCoreError(w http.ResponseWriter, r *http.Request, err error) {
	kind := session.Classify(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("kind", kind.String()).Msg("request failed")
		if kind == session.ErrKindPersistence {
			respondError(w, status, store.ErrPersistence.Error())
			return
		}
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}

// decodeJSON reads a size-limited JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errInvalidRequestBody
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

type eventResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	CheckInAt  time.Time  `json:"check_in_at"`
	CheckOutAt *time.Time `json:"check_out_at,omitempty"`
}

func toEventResponse(ev store.AttendanceEvent) eventResponse {
	return eventResponse{
		ID:         ev.ID,
		Name:       ev.MemberName,
		CheckInAt:  ev.CheckInAt,
		CheckOutAt: ev.CheckOutAt,
	}
}

func toEventResponses(events []store.AttendanceEvent) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventResponse(ev))
	}
	return out
}

type outcomeResponse struct {
	Outcome  string         `json:"outcome"`
	Name     string         `json:"name,omitempty"`
	Distance *float64       `json:"distance,omitempty"`
	Event    *eventResponse `json:"event,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// respondOutcome writes an orchestrator outcome with the status of its kind.
// withDistance is set by identification, the only path that measures one.
func respondOutcome(w http.ResponseWriter, r *http.Request, out session.Outcome, okStatus int, withDistance bool) {
	if out.Kind == session.Failed {
		respondCoreError(w, r, out.Err)
		return
	}

	resp := outcomeResponse{Outcome: out.Kind.String(), Name: out.Name}
	if out.Event.ID != "" {
		ev := toEventResponse(out.Event)
		resp.Event = &ev
	}
	if withDistance && out.Name != "" {
		d := out.Distance
		resp.Distance = &d
	}

	status := okStatus
	switch out.Kind {
	case session.AlreadyPresent:
		status = http.StatusConflict
	case session.Unrecognized:
		status = http.StatusNotFound
	}
	respondJSON(w, status, resp)
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
