package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gramseva/complaint-portal/internal/complaint/domain"
	"github.com/gramseva/complaint-portal/internal/complaint/infrastructure"
	"github.com/gramseva/complaint-portal/internal/complaint/report"
	"github.com/gramseva/complaint-portal/internal/complaint/service"
	"github.com/gramseva/complaint-portal/internal/shared/auth"
	"github.com/gramseva/complaint-portal/internal/shared/config"
	apperrors "github.com/gramseva/complaint-portal/internal/shared/errors"
	"github.com/gramseva/complaint-portal/internal/shared/middleware"
	"github.com/gramseva/complaint-portal/internal/shared/types"
)

var testAuth = config.AuthConfig{JWTSecret: "test-secret", Issuer: "complaint-portal-test"}

type testServer struct {
	t      *testing.T
	router chi.Router
	svc    *service.Service

	admin   *auth.User
	citizen *auth.User
	phones  int
}

func newTestServer(t *testing.T, limiter *middleware.IPRateLimiter) *testServer {
	t.Helper()
	now := func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC) }

	complaints := infrastructure.NewMemoryComplaintRepository()
	technicians := infrastructure.NewMemoryTechnicianRepository()
	svc := service.NewService(complaints, technicians, service.WithClock(now), service.WithLocation(time.UTC))
	reports := report.NewAggregator(complaints, technicians, report.WithClock(now), report.WithLocation(time.UTC))
	h := NewHandler(svc, reports, limiter)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/track", h.TrackRoutes())
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(testAuth))
			r.Mount("/complaints", h.ComplaintRoutes())
			r.Mount("/technicians", h.TechnicianRoutes())
			r.Mount("/reports", h.ReportRoutes())
		})
	})

	return &testServer{
		t:       t,
		router:  r,
		svc:     svc,
		admin:   &auth.User{ID: types.NewID(), Role: auth.RoleAdmin},
		citizen: &auth.User{ID: types.NewID(), Role: auth.RoleCitizen, Phone: "9876543210"},
	}
}

func (s *testServer) do(method, path string, user *auth.User, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		token, err := auth.IssueToken(testAuth, *user, time.Hour)
		if err != nil {
			s.t.Fatalf("Failed to issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("Expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func (s *testServer) fileComplaint(user *auth.User, category domain.Category) domain.Complaint {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/v1/complaints", user, CreateComplaintRequest{
		Category:     category,
		Description:  "Water leaking from main line",
		Location:     types.Location{Latitude: 19.07, Longitude: 72.87, Address: "Ward 12"},
		CitizenPhone: "9123456789",
	})
	expectStatus(s.t, rec, http.StatusCreated)
	return decode[domain.Complaint](s.t, rec)
}

func (s *testServer) technician(name string, specs ...domain.Category) (*auth.User, *domain.Technician) {
	s.t.Helper()
	user := &auth.User{ID: types.NewID(), Role: auth.RoleTechnician}
	s.phones++
	tech, err := s.svc.CreateTechnician(context.Background(), service.CreateTechnicianInput{
		UserID:         user.ID,
		Name:           name,
		Phone:          fmt.Sprintf("98%08d", s.phones),
		Specialization: specs,
	}, service.SystemActor)
	if err != nil {
		s.t.Fatalf("Failed to create technician: %v", err)
	}
	return user, tech
}

func TestCreateComplaintUsesCitizenPhone(t *testing.T) {
	s := newTestServer(t, nil)

	c := s.fileComplaint(s.citizen, domain.CategoryWater)

	if c.CitizenPhone != s.citizen.Phone {
		t.Errorf("Expected phone %s, got %s", s.citizen.Phone, c.CitizenPhone)
	}
	if c.ComplaintID != "CMP240300001" {
		t.Errorf("Expected CMP240300001, got %s", c.ComplaintID)
	}
	if c.Status != domain.StatusSubmitted {
		t.Errorf("Expected submitted, got %s", c.Status)
	}
}

func TestCreateComplaintValidation(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(http.MethodPost, "/api/v1/complaints", s.admin, CreateComplaintRequest{
		Category:     "parking",
		Description:  "",
		CitizenPhone: "12345",
	})
	expectStatus(t, rec, http.StatusBadRequest)

	body := decode[map[string]any](t, rec)
	if body["code"] != "VALIDATION_ERROR" {
		t.Errorf("Expected VALIDATION_ERROR, got %v", body["code"])
	}
	details, _ := body["details"].(map[string]any)
	for _, field := range []string{"category", "description", "citizen_phone"} {
		if _, ok := details[field]; !ok {
			t.Errorf("Expected detail for %s, got %v", field, details)
		}
	}
}

func TestRequiresAuthentication(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"list complaints", http.MethodGet, "/api/v1/complaints"},
		{"create complaint", http.MethodPost, "/api/v1/complaints"},
		{"dashboard", http.MethodGet, "/api/v1/reports/dashboard"},
		{"technicians", http.MethodGet, "/api/v1/technicians"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, nil, nil)
			expectStatus(t, rec, http.StatusUnauthorized)
		})
	}
}

func TestRoleRestrictions(t *testing.T) {
	s := newTestServer(t, nil)
	techUser, _ := s.technician("Ravi", domain.CategoryWater)
	c := s.fileComplaint(s.citizen, domain.CategoryWater)

	tests := []struct {
		name   string
		method string
		path   string
		user   *auth.User
		body   any
	}{
		{"citizen cannot assign", http.MethodPost, "/api/v1/complaints/" + c.ID.String() + "/assign", s.citizen, AssignComplaintRequest{TechnicianID: types.NewID()}},
		{"citizen cannot read dashboard", http.MethodGet, "/api/v1/reports/dashboard", s.citizen, nil},
		{"technician cannot create complaint", http.MethodPost, "/api/v1/complaints", techUser, CreateComplaintRequest{}},
		{"technician cannot add notes", http.MethodPost, "/api/v1/complaints/" + c.ID.String() + "/notes", techUser, AddNoteRequest{Note: "x"}},
		{"citizen cannot list technicians", http.MethodGet, "/api/v1/technicians", s.citizen, nil},
		{"citizen cannot read stats", http.MethodGet, "/api/v1/complaints/stats/overview", s.citizen, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.user, tt.body)
			expectStatus(t, rec, http.StatusForbidden)
		})
	}
}

func TestListComplaintsScopedByRole(t *testing.T) {
	s := newTestServer(t, nil)
	techUser, tech := s.technician("Ravi", domain.CategoryWater, domain.CategoryRoads)

	mine := s.fileComplaint(s.citizen, domain.CategoryWater)
	other := s.fileComplaint(s.admin, domain.CategoryRoads)
	s.fileComplaint(s.admin, domain.CategoryDrainage)

	rec := s.do(http.MethodPost, "/api/v1/complaints/"+other.ComplaintID+"/assign", s.admin, AssignComplaintRequest{TechnicianID: tech.ID})
	expectStatus(t, rec, http.StatusOK)

	type listResponse struct {
		Data  []domain.Complaint `json:"data"`
		Total int                `json:"total"`
	}

	t.Run("citizen", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/v1/complaints", s.citizen, nil)
		expectStatus(t, rec, http.StatusOK)
		resp := decode[listResponse](t, rec)
		if resp.Total != 1 || resp.Data[0].ID != mine.ID {
			t.Errorf("Expected only own complaint, got %+v", resp)
		}
	})

	t.Run("technician", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/v1/complaints", techUser, nil)
		expectStatus(t, rec, http.StatusOK)
		resp := decode[listResponse](t, rec)
		if resp.Total != 1 || resp.Data[0].ID != other.ID {
			t.Errorf("Expected only assigned complaint, got %+v", resp)
		}
	})

	t.Run("admin with filter", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/v1/complaints?status=submitted&limit=1", s.admin, nil)
		expectStatus(t, rec, http.StatusOK)
		resp := decode[listResponse](t, rec)
		if resp.Total != 2 || len(resp.Data) != 1 {
			t.Errorf("Expected 2 total and 1 on the page, got %d and %d", resp.Total, len(resp.Data))
		}
	})

	t.Run("invalid filter", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/v1/complaints?status=closed", s.admin, nil)
		expectStatus(t, rec, http.StatusBadRequest)
	})
}

func TestCitizenCannotReadOthersComplaint(t *testing.T) {
	s := newTestServer(t, nil)
	c := s.fileComplaint(s.admin, domain.CategoryWater)

	rec := s.do(http.MethodGet, "/api/v1/complaints/"+c.ID.String(), s.citizen, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = s.do(http.MethodGet, "/api/v1/complaints/"+c.ComplaintID, s.admin, nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestAssignAndResolveFlow(t *testing.T) {
	s := newTestServer(t, nil)
	techUser, tech := s.technician("Ravi", domain.CategoryWater)
	otherUser, _ := s.technician("Asha Kulkarni", domain.CategoryWater)
	c := s.fileComplaint(s.citizen, domain.CategoryWater)
	base := "/api/v1/complaints/" + c.ComplaintID

	rec := s.do(http.MethodPost, base+"/assign", s.admin, AssignComplaintRequest{TechnicianID: tech.ID})
	expectStatus(t, rec, http.StatusOK)
	assigned := decode[domain.Complaint](t, rec)
	if assigned.Status != domain.StatusAssigned {
		t.Fatalf("Expected assigned, got %s", assigned.Status)
	}

	rec = s.do(http.MethodPatch, base+"/status", otherUser, AdvanceStatusRequest{Status: domain.StatusInProgress})
	expectStatus(t, rec, http.StatusForbidden)

	rec = s.do(http.MethodPatch, base+"/status", techUser, AdvanceStatusRequest{Status: domain.StatusAssigned})
	expectStatus(t, rec, http.StatusForbidden)

	rec = s.do(http.MethodPatch, base+"/status", techUser, AdvanceStatusRequest{Status: domain.StatusInProgress, Notes: "on site"})
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(http.MethodPost, base+"/resolve", techUser, ResolveComplaintRequest{ResolutionNotes: "pipe replaced"})
	expectStatus(t, rec, http.StatusOK)
	resolved := decode[domain.Complaint](t, rec)
	if resolved.Status != domain.StatusResolved {
		t.Errorf("Expected resolved, got %s", resolved.Status)
	}
	if resolved.ResolutionNotes != "pipe replaced" {
		t.Errorf("Expected resolution notes, got %q", resolved.ResolutionNotes)
	}

	rec = s.do(http.MethodGet, "/api/v1/technicians/"+tech.ID.String(), techUser, nil)
	expectStatus(t, rec, http.StatusOK)
	detail := decode[domain.Technician](t, rec)
	if detail.ActiveComplaints != 0 || detail.ResolvedCount != 1 {
		t.Errorf("Expected ledger 0 active and 1 resolved, got %d and %d", detail.ActiveComplaints, detail.ResolvedCount)
	}

	rec = s.do(http.MethodPatch, base+"/status", s.admin, AdvanceStatusRequest{Status: domain.StatusRejected})
	expectStatus(t, rec, http.StatusConflict)
	if body := decode[map[string]any](t, rec); body["code"] != "INVALID_TRANSITION" {
		t.Errorf("Expected INVALID_TRANSITION, got %v", body["code"])
	}
}

func TestAssignSpecializationMismatch(t *testing.T) {
	s := newTestServer(t, nil)
	_, tech := s.technician("Ravi", domain.CategoryElectricity)
	c := s.fileComplaint(s.citizen, domain.CategoryWater)

	rec := s.do(http.MethodPost, "/api/v1/complaints/"+c.ID.String()+"/assign", s.admin, AssignComplaintRequest{TechnicianID: tech.ID})
	expectStatus(t, rec, http.StatusBadRequest)

	body := decode[map[string]any](t, rec)
	if body["code"] != "SPECIALIZATION_MISMATCH" {
		t.Errorf("Expected SPECIALIZATION_MISMATCH, got %v", body["code"])
	}
}

func TestDeleteTechnicianWithActiveWork(t *testing.T) {
	s := newTestServer(t, nil)
	_, tech := s.technician("Ravi", domain.CategoryWater)
	c := s.fileComplaint(s.citizen, domain.CategoryWater)

	rec := s.do(http.MethodPost, "/api/v1/complaints/"+c.ID.String()+"/assign", s.admin, AssignComplaintRequest{TechnicianID: tech.ID})
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(http.MethodDelete, "/api/v1/technicians/"+tech.ID.String(), s.admin, nil)
	expectStatus(t, rec, http.StatusConflict)
	if body := decode[map[string]any](t, rec); body["code"] != "HAS_ACTIVE_WORK" {
		t.Errorf("Expected HAS_ACTIVE_WORK, got %v", body["code"])
	}

	rec = s.do(http.MethodPatch, "/api/v1/complaints/"+c.ID.String()+"/status", s.admin, AdvanceStatusRequest{Status: domain.StatusRejected})
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(http.MethodDelete, "/api/v1/technicians/"+tech.ID.String(), s.admin, nil)
	expectStatus(t, rec, http.StatusNoContent)
}

func TestReconcileWorkload(t *testing.T) {
	s := newTestServer(t, nil)
	techUser, tech := s.technician("Ravi", domain.CategoryWater)
	c := s.fileComplaint(s.citizen, domain.CategoryWater)

	rec := s.do(http.MethodPost, "/api/v1/complaints/"+c.ID.String()+"/assign", s.admin, AssignComplaintRequest{TechnicianID: tech.ID})
	expectStatus(t, rec, http.StatusOK)

	path := "/api/v1/technicians/" + tech.ID.String() + "/reconcile"
	rec = s.do(http.MethodPost, path, techUser, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = s.do(http.MethodPost, path, s.admin, nil)
	expectStatus(t, rec, http.StatusOK)
	got := decode[domain.Technician](t, rec)
	if got.ActiveComplaints != 1 {
		t.Errorf("Expected 1 active after reconcile, got %d", got.ActiveComplaints)
	}

	rec = s.do(http.MethodPost, "/api/v1/technicians/"+types.NewID().String()+"/reconcile", s.admin, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestTechnicianSelfService(t *testing.T) {
	s := newTestServer(t, nil)
	techUser, tech := s.technician("Ravi", domain.CategoryWater)
	_, other := s.technician("Asha Kulkarni", domain.CategoryWater)

	available := false
	rec := s.do(http.MethodPut, "/api/v1/technicians/"+tech.ID.String(), techUser, UpdateTechnicianRequest{IsAvailable: &available})
	expectStatus(t, rec, http.StatusOK)
	if updated := decode[domain.Technician](t, rec); updated.IsAvailable {
		t.Error("Expected technician to be unavailable")
	}

	name := "Someone Else"
	rec = s.do(http.MethodPut, "/api/v1/technicians/"+tech.ID.String(), techUser, UpdateTechnicianRequest{Name: &name})
	expectStatus(t, rec, http.StatusForbidden)

	rec = s.do(http.MethodGet, "/api/v1/technicians/"+other.ID.String(), techUser, nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = s.do(http.MethodPost, "/api/v1/technicians/location", techUser, types.GeoPoint{Latitude: 18.52, Longitude: 73.85})
	expectStatus(t, rec, http.StatusOK)
	if updated := decode[domain.Technician](t, rec); updated.Location == nil || updated.Location.Latitude != 18.52 {
		t.Errorf("Expected location to be stored, got %+v", updated.Location)
	}

	rec = s.do(http.MethodGet, "/api/v1/technicians/"+tech.ID.String()+"/stats", techUser, nil)
	expectStatus(t, rec, http.StatusOK)
	stats := decode[report.TechnicianStats](t, rec)
	if stats.Technician.ID != tech.ID {
		t.Errorf("Expected stats for %s, got %s", tech.ID, stats.Technician.ID)
	}
}

func TestCreateTechnicianDuplicatePhone(t *testing.T) {
	s := newTestServer(t, nil)
	req := CreateTechnicianRequest{
		UserID:         types.NewID(),
		Name:           "Ravi",
		Phone:          "9811111111",
		Specialization: []domain.Category{domain.CategoryWater},
	}

	rec := s.do(http.MethodPost, "/api/v1/technicians", s.admin, req)
	expectStatus(t, rec, http.StatusCreated)

	req.UserID = types.NewID()
	rec = s.do(http.MethodPost, "/api/v1/technicians", s.admin, req)
	expectStatus(t, rec, http.StatusConflict)
}

func TestTrackComplaint(t *testing.T) {
	s := newTestServer(t, nil)
	c := s.fileComplaint(s.citizen, domain.CategoryWater)

	rec := s.do(http.MethodGet, "/api/v1/track/"+c.ComplaintID, nil, nil)
	expectStatus(t, rec, http.StatusOK)

	if strings.Contains(rec.Body.String(), s.citizen.Phone) {
		t.Error("Expected tracking view to hide the citizen phone")
	}
	view := decode[TrackingView](t, rec)
	if view.Status != domain.StatusSubmitted || len(view.History) != 1 {
		t.Errorf("Unexpected tracking view: %+v", view)
	}

	tests := []string{"CMP999900001", c.ID.String(), "nonsense"}
	for _, ref := range tests {
		t.Run(ref, func(t *testing.T) {
			rec := s.do(http.MethodGet, "/api/v1/track/"+ref, nil, nil)
			expectStatus(t, rec, http.StatusNotFound)
		})
	}
}

func TestTrackRateLimited(t *testing.T) {
	s := newTestServer(t, middleware.NewIPRateLimiter(1, 1))

	rec := s.do(http.MethodGet, "/api/v1/track/CMP240300001", nil, nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec = s.do(http.MethodGet, "/api/v1/track/CMP240300001", nil, nil)
	expectStatus(t, rec, http.StatusTooManyRequests)
}

func TestReports(t *testing.T) {
	s := newTestServer(t, nil)
	s.fileComplaint(s.citizen, domain.CategoryWater)
	s.fileComplaint(s.citizen, domain.CategoryRoads)

	t.Run("monthly", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/v1/reports/monthly?month=3&year=2024", s.admin, nil)
		expectStatus(t, rec, http.StatusOK)
		rep := decode[report.MonthlyReport](t, rec)
		if rep.Summary.TotalComplaints != 2 {
			t.Errorf("Expected 2 complaints, got %d", rep.Summary.TotalComplaints)
		}
	})

	t.Run("monthly defaults to current month", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/v1/reports/monthly", s.admin, nil)
		expectStatus(t, rec, http.StatusOK)
		rep := decode[report.MonthlyReport](t, rec)
		if rep.Period.Month != 3 || rep.Period.Year != 2024 {
			t.Errorf("Expected 3/2024, got %d/%d", rep.Period.Month, rep.Period.Year)
		}
	})

	t.Run("invalid month", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/v1/reports/monthly?month=13&year=2024", s.admin, nil)
		expectStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("dashboard", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/v1/reports/dashboard", s.admin, nil)
		expectStatus(t, rec, http.StatusOK)
		o := decode[report.Overview](t, rec)
		if o.TotalComplaints != 2 || o.PendingComplaints != 2 {
			t.Errorf("Unexpected overview: %+v", o)
		}
	})

	t.Run("stats overview", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/v1/complaints/stats/overview?category=water", s.admin, nil)
		expectStatus(t, rec, http.StatusOK)
		stats := decode[report.Stats](t, rec)
		if stats.Total != 1 {
			t.Errorf("Expected 1, got %d", stats.Total)
		}
	})
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"app error", apperrors.NotFound("complaint", "x"), http.StatusNotFound, "NOT_FOUND", "complaint not found"},
		{"plain error", fmt.Errorf("dial tcp: connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"},
		{"wrapped internal", apperrors.Wrap(fmt.Errorf("disk full"), "failed to update complaint"), http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"},
		{"sequence exhausted", apperrors.SequenceExhausted(99999), http.StatusInsufficientStorage, "SEQUENCE_EXHAUSTED", "complaint sequence exhausted after 99999 complaints"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)
			expectStatus(t, rec, tt.status)

			body := decode[map[string]any](t, rec)
			if body["code"] != tt.code {
				t.Errorf("Expected code %s, got %v", tt.code, body["code"])
			}
			if body["error"] != tt.message {
				t.Errorf("Expected message %q, got %v", tt.message, body["error"])
			}
		})
	}
}
