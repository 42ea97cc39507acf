package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/kozaktomas/facegate/internal/biometric"
	"github.com/kozaktomas/facegate/internal/metrics"
	"github.com/kozaktomas/facegate/internal/registry"
	"github.com/kozaktomas/facegate/internal/store"
)

// MembersHandler serves the member registry.
type MembersHandler struct {
	registry *registry.Registry
}

// NewMembersHandler creates a members handler.
func NewMembersHandler(reg *registry.Registry) *MembersHandler {
	return &MembersHandler{registry: reg}
}

type profileRequest struct {
	BirthDate string `json:"birth_date" validate:"omitempty,max=32"`
	Phone     string `json:"phone" validate:"omitempty,max=32"`
	Goal      string `json:"goal" validate:"omitempty,max=200"`
}

func (p profileRequest) profile() store.Profile {
	return store.Profile{BirthDate: p.BirthDate, Phone: p.Phone, Goal: p.Goal}
}

type enrollRequest struct {
	Name     string    `json:"name" validate:"required,max=100"`
	Encoding []float64 `json:"encoding" validate:"required,min=1"`
	profileRequest
}

type memberResponse struct {
	Name       string        `json:"name"`
	Profile    store.Profile `json:"profile"`
	EnrolledAt time.Time     `json:"enrolled_at"`
	Dim        int           `json:"dim"`
	Encoding   []float64     `json:"encoding,omitempty"`
}

func toMemberResponse(m store.Member, withEncoding bool) memberResponse {
	resp := memberResponse{
		Name:       m.Name,
		Profile:    m.Profile,
		EnrolledAt: m.EnrolledAt,
		Dim:        m.Encoding.Dim(),
	}
	if withEncoding {
		resp.Encoding = m.Encoding
	}
	return resp
}

// List returns members in enrollment order, filtered by ?q= when given.
func (h *MembersHandler) List(w http.ResponseWriter, r *http.Request) {
	var members []store.Member
	if q := r.URL.Query().Get("q"); q != "" {
		members = h.registry.Search(q)
	} else {
		for m := range h.registry.All() {
			members = append(members, m)
		}
	}

	resp := make([]memberResponse, 0, len(members))
	for _, m := range members {
		resp = append(resp, toMemberResponse(m, false))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":   len(resp),
		"dim":     h.registry.Dim(),
		"members": resp,
	})
}

// Create enrolls a member.
func (h *MembersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	if err := h.registry.Enroll(r.Context(), req.Name, biometric.Encoding(req.Encoding), req.profile()); err != nil {
		respondCoreError(w, r, err)
		return
	}
	metrics.MembersEnrolled.Set(float64(h.registry.Len()))
	hlog.FromRequest(r).Info().Str("member", sanitizeForLog(req.Name)).Msg("member enrolled")

	m, _ := h.registry.Get(req.Name)
	respondJSON(w, http.StatusCreated, toMemberResponse(m, false))
}

// Get returns one member, with its encoding when ?encoding=true.
func (h *MembersHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	m, ok := h.registry.Get(name)
	if !ok {
		respondError(w, http.StatusNotFound, "member not found")
		return
	}
	respondJSON(w, http.StatusOK, toMemberResponse(m, r.URL.Query().Get("encoding") == "true"))
}

// Update replaces a member's profile.
func (h *MembersHandler) Update(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.registry.UpdateProfile(r.Context(), name, req.profile()); err != nil {
		respondCoreError(w, r, err)
		return
	}
	m, _ := h.registry.Get(name)
	respondJSON(w, http.StatusOK, toMemberResponse(m, false))
}

// Delete removes a member. Attendance history is kept.
func (h *MembersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.registry.Remove(r.Context(), name); err != nil {
		respondCoreError(w, r, err)
		return
	}
	metrics.MembersEnrolled.Set(float64(h.registry.Len()))
	hlog.FromRequest(r).Info().Str("member", sanitizeForLog(name)).Msg("member removed")
	w.WriteHeader(http.StatusNoContent)
}
