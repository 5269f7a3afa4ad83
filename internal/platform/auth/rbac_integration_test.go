package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

// helper creates an echo context with the given roles set on the request context.
func newContextWithRoles(method, path string, roles []string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	ctx := context.WithValue(req.Context(), UserRolesKey, roles)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

var okHandler = func(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// TestRequireRole_AdminAccessesAll verifies that the admin role can access any
// role-protected endpoint regardless of which roles are listed.
func TestRequireRole_AdminAccessesAll(t *testing.T) {
	domainRoles := [][]string{
		{"physician", "nurse"},
		{"pharmacist"},
		{"physician", "nurse", "pharmacist"},
		{"clinical_reviewer"},
		{"physician"},
	}

	for _, roles := range domainRoles {
		c, _ := newContextWithRoles(http.MethodGet, "/", []string{"admin"})
		mw := RequireRole(roles...)
		err := mw(okHandler)(c)
		if err != nil {
			t.Errorf("admin should access endpoint requiring %v, got error: %v", roles, err)
		}
	}
}

// TestRequireRole_PhysicianRunsConflictChecks verifies that a physician can
// access the conflict detection endpoints which list "physician" as permitted.
func TestRequireRole_PhysicianRunsConflictChecks(t *testing.T) {
	conflictRoles := []string{"admin", "physician", "nurse", "pharmacist"}

	c, _ := newContextWithRoles(http.MethodPost, "/conflicts/check", []string{"physician"})
	mw := RequireRole(conflictRoles...)
	err := mw(okHandler)(c)
	if err != nil {
		t.Errorf("physician should run conflict checks, got error: %v", err)
	}

	// Listing past conflict results uses the same gate
	c, _ = newContextWithRoles(http.MethodGet, "/conflicts", []string{"physician"})
	mw = RequireRole(conflictRoles...)
	err = mw(okHandler)(c)
	if err != nil {
		t.Errorf("physician should list conflict results, got error: %v", err)
	}
}

// TestRequireRole_NurseRunsEmergencyChecks verifies that a nurse can access
// the emergency safety endpoints.
func TestRequireRole_NurseRunsEmergencyChecks(t *testing.T) {
	c, _ := newContextWithRoles(http.MethodPost, "/emergency/check", []string{"nurse"})
	mw := RequireRole("admin", "physician", "nurse", "pharmacist")
	err := mw(okHandler)(c)
	if err != nil {
		t.Errorf("nurse should run emergency checks, got error: %v", err)
	}

	// Oversight review: admin, physician, clinical_reviewer (nurse NOT included)
	c, _ = newContextWithRoles(http.MethodPut, "/oversight/alerts/abc/review", []string{"nurse"})
	mw = RequireRole("admin", "physician", "clinical_reviewer")
	err = mw(okHandler)(c)
	if err == nil {
		t.Error("nurse should NOT review oversight alerts")
	}
}

// TestRequireRole_PharmacistReadsCatalog verifies that a pharmacist can access
// the interaction catalog endpoints.
func TestRequireRole_PharmacistReadsCatalog(t *testing.T) {
	// Catalog read: admin, physician, nurse, pharmacist
	c, _ := newContextWithRoles(http.MethodGet, "/catalog/interactions", []string{"pharmacist"})
	mw := RequireRole("admin", "physician", "nurse", "pharmacist")
	err := mw(okHandler)(c)
	if err != nil {
		t.Errorf("pharmacist should read the catalog, got error: %v", err)
	}

	// Emergency check: pharmacist included
	c, _ = newContextWithRoles(http.MethodPost, "/emergency/check", []string{"pharmacist"})
	mw = RequireRole("admin", "physician", "nurse", "pharmacist")
	err = mw(okHandler)(c)
	if err != nil {
		t.Errorf("pharmacist should run emergency checks, got error: %v", err)
	}
}

// TestRequireRole_ReviewerHandlesOversight verifies that a clinical reviewer
// can work the oversight alert queue.
func TestRequireRole_ReviewerHandlesOversight(t *testing.T) {
	// Oversight read: admin, physician, clinical_reviewer
	c, _ := newContextWithRoles(http.MethodGet, "/oversight/alerts", []string{"clinical_reviewer"})
	mw := RequireRole("admin", "physician", "clinical_reviewer")
	err := mw(okHandler)(c)
	if err != nil {
		t.Errorf("clinical_reviewer should read oversight alerts, got error: %v", err)
	}

	// Oversight review write: same gate
	c, _ = newContextWithRoles(http.MethodPut, "/oversight/alerts/abc/review", []string{"clinical_reviewer"})
	mw = RequireRole("admin", "physician", "clinical_reviewer")
	err = mw(okHandler)(c)
	if err != nil {
		t.Errorf("clinical_reviewer should review oversight alerts, got error: %v", err)
	}
}

// TestRequireRole_PharmacistDeniedOversight verifies that a pharmacist cannot
// work the oversight review queue.
func TestRequireRole_PharmacistDeniedOversight(t *testing.T) {
	// Oversight review: admin, physician, clinical_reviewer -- pharmacist NOT included
	c, _ := newContextWithRoles(http.MethodPut, "/oversight/alerts/abc/review", []string{"pharmacist"})
	mw := RequireRole("admin", "physician", "clinical_reviewer")
	err := mw(okHandler)(c)
	if err == nil {
		t.Error("pharmacist should NOT review oversight alerts")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403 Forbidden, got %d", httpErr.Code)
	}
}

// TestRequireRole_ClinicianDeniedAuditLog verifies that clinical roles cannot
// read the audit trail, which is admin-only.
func TestRequireRole_ClinicianDeniedAuditLog(t *testing.T) {
	for _, role := range []string{"physician", "nurse", "pharmacist", "clinical_reviewer"} {
		c, _ := newContextWithRoles(http.MethodGet, "/audit/decisions", []string{role})
		mw := RequireRole("admin")
		err := mw(okHandler)(c)
		if err == nil {
			t.Errorf("%s should NOT read the audit trail", role)
			continue
		}
		httpErr, ok := err.(*echo.HTTPError)
		if !ok {
			t.Fatalf("expected echo.HTTPError, got %T", err)
		}
		if httpErr.Code != http.StatusForbidden {
			t.Errorf("expected 403 Forbidden for %s, got %d", role, httpErr.Code)
		}
	}
}

// TestRequireRole_NoRoleDenied verifies that a request with no roles is denied
// access to any role-protected endpoint.
func TestRequireRole_NoRoleDenied(t *testing.T) {
	// Empty roles slice
	c, _ := newContextWithRoles(http.MethodGet, "/conflicts", []string{})
	mw := RequireRole("admin", "physician", "nurse")
	err := mw(okHandler)(c)
	if err == nil {
		t.Error("empty roles should be denied")
	}

	// Nil roles (no context value)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/conflicts", nil)
	rec := httptest.NewRecorder()
	c = e.NewContext(req, rec)
	err = mw(okHandler)(c)
	if err == nil {
		t.Error("nil roles should be denied")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403 Forbidden, got %d", httpErr.Code)
	}
}
