package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facegate/internal/session"
)

// AttendanceHandler serves the explicit check-in and check-out paths.
type AttendanceHandler struct {
	orch *session.Orchestrator
}

// NewAttendanceHandler creates an attendance handler.
func NewAttendanceHandler(orch *session.Orchestrator) *AttendanceHandler {
	return &AttendanceHandler{orch: orch}
}

// Status lists the open sessions, i.e. who is in the gym right now.
func (h *AttendanceHandler) Status(w http.ResponseWriter, r *http.Request) {
	open := h.orch.Ledger().OpenSessions()
	respondJSON(w, http.StatusOK, map[string]any{
		"count":    len(open),
		"sessions": toEventResponses(open),
	})
}

// History returns the state and all sessions of one member.
func (h *AttendanceHandler) History(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ledger := h.orch.Ledger()

	resp := map[string]any{
		"name":    name,
		"in":      ledger.IsIn(name),
		"history": toEventResponses(ledger.History(name)),
	}
	if ev, ok := ledger.OpenSession(name); ok {
		resp["open_session"] = toEventResponse(ev)
	}
	respondJSON(w, http.StatusOK, resp)
}

// CheckIn opens a session for an enrolled member by name.
func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	out := h.orch.CheckIn(r.Context(), chi.URLParam(r, "name"))
	respondOutcome(w, r, out, http.StatusCreated, false)
}

// CheckOut closes the member's open session.
func (h *AttendanceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	out := h.orch.CheckOut(r.Context(), chi.URLParam(r, "name"))
	respondOutcome(w, r, out, http.StatusOK, false)
}
