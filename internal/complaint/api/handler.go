package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gramseva/complaint-portal/internal/complaint/domain"
	"github.com/gramseva/complaint-portal/internal/complaint/report"
	"github.com/gramseva/complaint-portal/internal/complaint/service"
	"github.com/gramseva/complaint-portal/internal/shared/auth"
	"github.com/gramseva/complaint-portal/internal/shared/errors"
	"github.com/gramseva/complaint-portal/internal/shared/middleware"
	"github.com/gramseva/complaint-portal/internal/shared/types"
)

// Handler provides HTTP handlers for complaints, technicians and reports
type Handler struct {
	svc     *service.Service
	reports *report.Aggregator
	limiter *middleware.IPRateLimiter
}

// NewHandler creates a new complaint portal handler. limiter guards the
// public tracking and submission routes and may be nil.
func NewHandler(svc *service.Service, reports *report.Aggregator, limiter *middleware.IPRateLimiter) *Handler {
	return &Handler{svc: svc, reports: reports, limiter: limiter}
}

// ComplaintRoutes registers the complaint routes. Callers mount it behind
// auth.Middleware.
func (h *Handler) ComplaintRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListComplaints)
	r.With(h.rateLimit, auth.RequireRoles(auth.RoleCitizen, auth.RoleAdmin)).Post("/", h.CreateComplaint)
	r.With(auth.RequireRoles(auth.RoleAdmin)).Get("/stats/overview", h.ComplaintStats)

	r.Route("/{complaintID}", func(r chi.Router) {
		r.Get("/", h.GetComplaint)
		r.With(auth.RequireRoles(auth.RoleAdmin, auth.RoleTechnician)).Patch("/status", h.AdvanceStatus)
		r.With(auth.RequireRoles(auth.RoleAdmin)).Post("/assign", h.AssignComplaint)
		r.With(auth.RequireRoles(auth.RoleAdmin, auth.RoleTechnician)).Post("/resolve", h.ResolveComplaint)
		r.With(auth.RequireRoles(auth.RoleAdmin)).Post("/notes", h.AddNote)
	})

	return r
}

// TechnicianRoutes registers the technician routes
func (h *Handler) TechnicianRoutes() chi.Router {
	r := chi.NewRouter()

	r.With(auth.RequireRoles(auth.RoleAdmin)).Get("/", h.ListTechnicians)
	r.With(auth.RequireRoles(auth.RoleAdmin)).Post("/", h.CreateTechnician)
	r.With(auth.RequireRoles(auth.RoleTechnician)).Post("/location", h.UpdateLocation)

	r.Route("/{technicianID}", func(r chi.Router) {
		r.Use(auth.RequireRoles(auth.RoleAdmin, auth.RoleTechnician))
		r.Get("/", h.GetTechnician)
		r.Put("/", h.UpdateTechnician)
		r.With(auth.RequireRoles(auth.RoleAdmin)).Delete("/", h.DeleteTechnician)
		r.With(auth.RequireRoles(auth.RoleAdmin)).Post("/reconcile", h.ReconcileWorkload)
		r.Get("/stats", h.TechnicianStats)
	})

	return r
}

// ReportRoutes registers the admin reporting routes
func (h *Handler) ReportRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireRoles(auth.RoleAdmin))

	r.Get("/monthly", h.MonthlyReport)
	r.Get("/dashboard", h.Dashboard)

	return r
}

// TrackRoutes registers the unauthenticated tracking route
func (h *Handler) TrackRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.rateLimit)

	r.Get("/{complaintID}", h.TrackComplaint)

	return r
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	return h.limiter.Middleware(next)
}

// --- Helpers ---

func actorOf(user *auth.User) service.Actor {
	if user == nil {
		return service.SystemActor
	}
	return service.Actor{ID: user.ID, Role: user.Role}
}

func requireUser(w http.ResponseWriter, r *http.Request) *auth.User {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
	}
	return user
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.BadRequest("invalid request body")
	}
	return nil
}

func parsePage(r *http.Request) (domain.Page, error) {
	q := r.URL.Query()
	page := domain.Page{SortBy: q.Get("sort_by"), SortDesc: true}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, errors.BadRequest("invalid page")
		}
		page.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, errors.BadRequest("invalid limit")
		}
		page.Limit = n
	}
	switch strings.ToLower(q.Get("sort_order")) {
	case "", "desc":
	case "asc":
		page.SortDesc = false
	default:
		return page, errors.BadRequest("sort_order must be asc or desc")
	}

	return page.Normalize(), nil
}

// parseComplaintFilter reads the shared complaint filter query parameters
func parseComplaintFilter(r *http.Request) (domain.ComplaintFilter, error) {
	q := r.URL.Query()
	var f domain.ComplaintFilter
	details := map[string]string{}

	if v := q.Get("status"); v != "" {
		s := domain.Status(v)
		if !s.IsValid() {
			details["status"] = "unknown status"
		}
		f.Status = &s
	}
	if v := q.Get("category"); v != "" {
		c := domain.Category(v)
		if !c.IsValid() {
			details["category"] = "unknown category"
		}
		f.Category = &c
	}
	if v := q.Get("priority"); v != "" {
		p := domain.Priority(v)
		if !p.IsValid() {
			details["priority"] = "unknown priority"
		}
		f.Priority = &p
	}
	if v := q.Get("technician_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			details["technician_id"] = "invalid id"
		}
		f.AssignedTo = &id
	}
	if v := q.Get("start_date"); v != "" {
		t, err := parseDate(v, false)
		if err != nil {
			details["start_date"] = "expected YYYY-MM-DD or RFC 3339"
		}
		f.CreatedFrom = &t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := parseDate(v, true)
		if err != nil {
			details["end_date"] = "expected YYYY-MM-DD or RFC 3339"
		}
		f.CreatedTo = &t
	}
	f.CitizenPhone = types.NormalizePhone(q.Get("citizen_phone"))

	if len(details) > 0 {
		return f, errors.Validation("invalid filter", details)
	}
	return f, nil
}

// parseDate accepts a bare date, which covers the whole day when endOfDay is set
func parseDate(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.Local)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) || appErr.Code == "INTERNAL_ERROR" {
		log.Printf("api: %v", err)
		appErr = errors.Internal(err)
	}

	writeJSON(w, appErr.HTTPStatus, map[string]any{
		"error":   appErr.Message,
		"code":    appErr.Code,
		"details": appErr.Details,
	})
}
