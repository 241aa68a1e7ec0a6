package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gramseva/complaint-portal/internal/complaint/domain"
	"github.com/gramseva/complaint-portal/internal/complaint/service"
	"github.com/gramseva/complaint-portal/internal/shared/auth"
	"github.com/gramseva/complaint-portal/internal/shared/errors"
	"github.com/gramseva/complaint-portal/internal/shared/types"
)

// --- Request/Response types ---

type CreateComplaintRequest struct {
	Category     domain.Category `json:"category"`
	Description  string          `json:"description"`
	Location     types.Location  `json:"location"`
	CitizenPhone string          `json:"citizen_phone,omitempty"`
	CitizenName  string          `json:"citizen_name,omitempty"`
	Priority     domain.Priority `json:"priority,omitempty"`
	Images       []domain.Image  `json:"images,omitempty"`
}

type AdvanceStatusRequest struct {
	Status domain.Status `json:"status"`
	Notes  string        `json:"notes,omitempty"`
}

type AssignComplaintRequest struct {
	TechnicianID            types.ID         `json:"technician_id"`
	EstimatedResolutionTime *time.Time       `json:"estimated_resolution_time,omitempty"`
	Priority                *domain.Priority `json:"priority,omitempty"`
}

type ResolveComplaintRequest struct {
	ResolutionNotes  string         `json:"resolution_notes"`
	ResolutionImages []domain.Image `json:"resolution_images,omitempty"`
}

type AddNoteRequest struct {
	Note string `json:"note"`
}

// TrackingView is what an unauthenticated caller may see of a complaint
type TrackingView struct {
	ComplaintID             string          `json:"complaint_id"`
	Category                domain.Category `json:"category"`
	Status                  domain.Status   `json:"status"`
	Priority                domain.Priority `json:"priority"`
	CreatedAt               time.Time       `json:"created_at"`
	EstimatedResolutionTime *time.Time      `json:"estimated_resolution_time,omitempty"`
	ResolvedAt              *time.Time      `json:"resolved_at,omitempty"`
	History                 []TrackingStep  `json:"history"`
}

type TrackingStep struct {
	Status    domain.Status `json:"status"`
	ChangedAt time.Time     `json:"changed_at"`
}

// --- Handlers ---

func (h *Handler) CreateComplaint(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req CreateComplaintRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	in := domain.NewComplaintInput{
		Category:     req.Category,
		Description:  req.Description,
		Location:     req.Location,
		CitizenPhone: req.CitizenPhone,
		CitizenName:  req.CitizenName,
		Priority:     req.Priority,
		Images:       req.Images,
	}
	// citizens always file under their own verified number
	if user.Role == auth.RoleCitizen {
		in.CitizenPhone = user.Phone
	}

	c, err := h.svc.CreateComplaint(r.Context(), in, actorOf(user))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) ListComplaints(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	filter, err := parseComplaintFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := parsePage(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.scopeFilter(r, user, &filter); err != nil {
		writeError(w, err)
		return
	}

	complaints, total, err := h.svc.ListComplaints(r.Context(), filter, page)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  complaints,
		"total": total,
		"page":  page.Page,
		"limit": page.Limit,
	})
}

func (h *Handler) GetComplaint(w http.ResponseWriter, r *http.Request) {
	c, _, ok := h.loadComplaint(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	c, user, ok := h.loadComplaint(w, r)
	if !ok {
		return
	}

	var req AdvanceStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !req.Status.IsValid() {
		writeError(w, errors.Validation("invalid status", map[string]string{"status": "unknown status"}))
		return
	}
	// assignment carries a technician and goes through the assign route
	if req.Status == domain.StatusAssigned && !user.IsAdmin() {
		writeError(w, errors.Forbidden("only administrators can assign complaints"))
		return
	}

	updated, err := h.svc.AdvanceStatus(r.Context(), c.ID.String(), req.Status, req.Notes, actorOf(user))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) AssignComplaint(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req AssignComplaintRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.TechnicianID.IsZero() {
		writeError(w, errors.Validation("invalid assignment", map[string]string{"technician_id": "is required"}))
		return
	}

	c, err := h.svc.AssignComplaint(r.Context(), chi.URLParam(r, "complaintID"), req.TechnicianID, domain.AssignOptions{
		EstimatedResolutionTime: req.EstimatedResolutionTime,
		Priority:                req.Priority,
	}, actorOf(user))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ResolveComplaint(w http.ResponseWriter, r *http.Request) {
	c, user, ok := h.loadComplaint(w, r)
	if !ok {
		return
	}

	var req ResolveComplaintRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.svc.ResolveComplaint(r.Context(), c.ID.String(), service.ResolveInput{
		Notes:  req.ResolutionNotes,
		Images: req.ResolutionImages,
	}, actorOf(user))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	user := requireUser(w, r)
	if user == nil {
		return
	}

	var req AddNoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.svc.AddInternalNote(r.Context(), chi.URLParam(r, "complaintID"), req.Note, actorOf(user))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ComplaintStats(w http.ResponseWriter, r *http.Request) {
	filter, err := parseComplaintFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	stats, err := h.reports.Stats(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) TrackComplaint(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "complaintID")
	if !domain.IsComplaintCode(code) {
		writeError(w, errors.NotFound("complaint", code))
		return
	}

	c, err := h.svc.GetComplaint(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}

	view := TrackingView{
		ComplaintID:             c.ComplaintID,
		Category:                c.Category,
		Status:                  c.Status,
		Priority:                c.Priority,
		CreatedAt:               c.CreatedAt,
		EstimatedResolutionTime: c.EstimatedResolutionTime,
		ResolvedAt:              c.ResolvedAt,
		History:                 make([]TrackingStep, 0, len(c.StatusHistory)),
	}
	for _, step := range c.StatusHistory {
		view.History = append(view.History, TrackingStep{Status: step.Status, ChangedAt: step.ChangedAt})
	}

	writeJSON(w, http.StatusOK, view)
}

// --- Access control ---

// scopeFilter narrows a listing to what the caller may see
func (h *Handler) scopeFilter(r *http.Request, user *auth.User, filter *domain.ComplaintFilter) error {
	switch user.Role {
	case auth.RoleAdmin:
		return nil
	case auth.RoleCitizen:
		if user.Phone == "" {
			return errors.Forbidden("citizen account has no phone number")
		}
		filter.CitizenPhone = types.NormalizePhone(user.Phone)
		return nil
	case auth.RoleTechnician:
		tech, err := h.svc.GetTechnicianByUser(r.Context(), user.ID)
		if err != nil {
			return err
		}
		filter.AssignedTo = &tech.ID
		return nil
	}
	return errors.Forbidden("insufficient permissions")
}

// loadComplaint fetches the complaint named in the URL and checks the
// caller may act on it. Citizens reach only their own complaints and
// technicians only the ones assigned to them.
func (h *Handler) loadComplaint(w http.ResponseWriter, r *http.Request) (*domain.Complaint, *auth.User, bool) {
	user := requireUser(w, r)
	if user == nil {
		return nil, nil, false
	}

	c, err := h.svc.GetComplaint(r.Context(), chi.URLParam(r, "complaintID"))
	if err != nil {
		writeError(w, err)
		return nil, nil, false
	}

	switch user.Role {
	case auth.RoleAdmin:
	case auth.RoleCitizen:
		if c.CitizenPhone != types.NormalizePhone(user.Phone) {
			writeError(w, errors.Forbidden("access denied"))
			return nil, nil, false
		}
	case auth.RoleTechnician:
		tech, err := h.svc.GetTechnicianByUser(r.Context(), user.ID)
		if err != nil {
			writeError(w, err)
			return nil, nil, false
		}
		if !c.IsAssignedTo(tech.ID) {
			writeError(w, errors.Forbidden("complaint is not assigned to you"))
			return nil, nil, false
		}
	default:
		writeError(w, errors.Forbidden("insufficient permissions"))
		return nil, nil, false
	}

	return c, user, true
}
