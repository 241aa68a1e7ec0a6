package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gramseva/complaint-portal/internal/complaint/domain"
	"github.com/gramseva/complaint-portal/internal/complaint/service"
	"github.com/gramseva/complaint-portal/internal/shared/auth"
	"github.com/gramseva/complaint-portal/internal/shared/errors"
	"github.com/gramseva/complaint-portal/internal/shared/types"
)

type CreateTechnicianRequest struct {
	UserID         types.ID          `json:"user_id"`
	Name           string            `json:"name"`
	Phone          string            `json:"phone"`
	Specialization []domain.Category `json:"specialization"`
	Location       *types.GeoPoint   `json:"location,omitempty"`
}

type UpdateTechnicianRequest struct {
	Name           *string           `json:"name,omitempty"`
	Phone          *string           `json:"phone,omitempty"`
	Specialization []domain.Category `json:"specialization,omitempty"`
	IsAvailable    *bool             `json:"is_available,omitempty"`
	Location       *types.GeoPoint   `json:"location,omitempty"`
}

func (h *Handler) ListTechnicians(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var filter domain.TechnicianFilter
	q := r.URL.Query()
	if v := q.Get("specialization"); v != "" {
		c := domain.Category(v)
		if !c.IsValid() {
			writeError(w, errors.Validation("invalid filter", map[string]string{"specialization": "unknown category"}))
			return
		}
		filter.Specialization = &c
	}
	if v := q.Get("is_available"); v != "" {
		available := v == "true"
		filter.IsAvailable = &available
	}

	technicians, total, err := h.svc.ListTechnicians(r.Context(), filter, page)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  technicians,
		"total": total,
		"page":  page.Page,
		"limit": page.Limit,
	})
}

func (h *Handler) CreateTechnician(w http.ResponseWriter, r *http.Request) {
	var req CreateTechnicianRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.UserID.IsZero() {
		writeError(w, errors.Validation("invalid technician", map[string]string{"user_id": "is required"}))
		return
	}

	t, err := h.svc.CreateTechnician(r.Context(), service.CreateTechnicianInput{
		UserID:         req.UserID,
		Name:           req.Name,
		Phone:          req.Phone,
		Specialization: req.Specialization,
		Location:       req.Location,
	}, actorOf(auth.GetUser(r.Context())))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) GetTechnician(w http.ResponseWriter, r *http.Request) {
	id, _, ok := h.technicianAccess(w, r)
	if !ok {
		return
	}

	detail, err := h.svc.GetTechnician(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) UpdateTechnician(w http.ResponseWriter, r *http.Request) {
	id, user, ok := h.technicianAccess(w, r)
	if !ok {
		return
	}

	var req UpdateTechnicianRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	in := service.UpdateTechnicianInput{
		IsAvailable: req.IsAvailable,
		Location:    req.Location,
	}
	if user.IsAdmin() {
		in.Name = req.Name
		in.Phone = req.Phone
		in.Specialization = req.Specialization
	} else if req.Name != nil || req.Phone != nil || req.Specialization != nil {
		writeError(w, errors.Forbidden("technicians may only change availability and location"))
		return
	}

	t, err := h.svc.UpdateTechnician(r.Context(), id, in, actorOf(user))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTechnician(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "technicianID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid technician ID"))
		return
	}

	if err := h.svc.DeleteTechnician(r.Context(), id, actorOf(auth.GetUser(r.Context()))); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ReconcileWorkload(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "technicianID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid technician ID"))
		return
	}

	t, err := h.svc.ReconcileWorkload(r.Context(), id, actorOf(auth.GetUser(r.Context())))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) TechnicianStats(w http.ResponseWriter, r *http.Request) {
	id, _, ok := h.technicianAccess(w, r)
	if !ok {
		return
	}

	filter, err := parseComplaintFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := h.reports.TechnicianStats(r.Context(), id, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req types.GeoPoint
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	t, err := h.svc.UpdateTechnicianLocation(r.Context(), user.ID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// technicianAccess parses the technician in the URL. Technicians may only
// reach their own profile.
func (h *Handler) technicianAccess(w http.ResponseWriter, r *http.Request) (types.ID, *auth.User, bool) {
	user := requireUser(w, r)
	if user == nil {
		return "", nil, false
	}

	id, err := types.ParseID(chi.URLParam(r, "technicianID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid technician ID"))
		return "", nil, false
	}

	if !user.IsAdmin() {
		own, err := h.svc.GetTechnicianByUser(r.Context(), user.ID)
		if err != nil {
			writeError(w, err)
			return "", nil, false
		}
		if own.ID != id {
			writeError(w, errors.Forbidden("access denied"))
			return "", nil, false
		}
	}

	return id, user, true
}
