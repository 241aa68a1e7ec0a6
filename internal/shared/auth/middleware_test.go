package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gramseva/complaint-portal/internal/shared/config"
	"github.com/gramseva/complaint-portal/internal/shared/types"
)

var testAuth = config.AuthConfig{JWTSecret: "test-secret", Issuer: "complaint-portal"}

func okHandler(w http.ResponseWriter, r *http.Request) {
	user := GetUser(r.Context())
	w.Header().Set("X-User-Role", user.Role)
	w.WriteHeader(http.StatusOK)
}

func TestMiddleware(t *testing.T) {
	userID := types.NewID()
	valid, err := IssueToken(testAuth, User{ID: userID, Role: RoleTechnician}, time.Hour)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	expired, _ := IssueToken(testAuth, User{ID: userID, Role: RoleTechnician}, -time.Hour)
	foreign, _ := IssueToken(config.AuthConfig{JWTSecret: "other", Issuer: testAuth.Issuer}, User{ID: userID, Role: RoleAdmin}, time.Hour)
	noRole, _ := IssueToken(testAuth, User{ID: userID, Role: "superuser"}, time.Hour)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + valid, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + foreign, http.StatusUnauthorized},
		{"unknown role", "Bearer " + noRole, http.StatusUnauthorized},
	}

	handler := Middleware(testAuth)(http.HandlerFunc(okHandler))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, rec.Code)
			}
			if tt.status == http.StatusOK && rec.Header().Get("X-User-Role") != RoleTechnician {
				t.Errorf("Expected technician role, got %q", rec.Header().Get("X-User-Role"))
			}
		})
	}
}

func TestRequireRoles(t *testing.T) {
	handler := RequireRoles(RoleAdmin, RoleTechnician)(http.HandlerFunc(okHandler))

	tests := []struct {
		name   string
		user   *User
		status int
	}{
		{"admin", &User{ID: types.NewID(), Role: RoleAdmin}, http.StatusOK},
		{"technician", &User{ID: types.NewID(), Role: RoleTechnician}, http.StatusOK},
		{"citizen", &User{ID: types.NewID(), Role: RoleCitizen}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.user != nil {
				req = req.WithContext(WithUser(req.Context(), tt.user))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, rec.Code)
			}
		})
	}
}
