package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearledger/gatekeeper/pkg/audit"
	"github.com/clearledger/gatekeeper/pkg/entitlement"
	"github.com/clearledger/gatekeeper/pkg/gate"
	"github.com/clearledger/gatekeeper/pkg/registry"
)

type stubEntitlements struct {
	status entitlement.EffectiveStatus
}

func (s *stubEntitlements) ResolveModule(ctx context.Context, orgID int64, moduleKey string) (entitlement.ModuleStatus, error) {
	return entitlement.ModuleStatus{ModuleKey: moduleKey, Status: s.status}, nil
}

func (s *stubEntitlements) ResolveSubmodule(ctx context.Context, orgID int64, submoduleKey string) (bool, error) {
	return true, nil
}

type stubPermissions struct {
	granted bool
}

func (s *stubPermissions) HasPermission(ctx context.Context, userID, orgID int64, permission string) (bool, error) {
	return s.granted, nil
}

type nopAuditLog struct{}

func (nopAuditLog) Record(ctx context.Context, event *audit.Event) error { return nil }

func requestWithIdentity(identity *Identity) *http.Request {
	req := httptest.NewRequest("GET", "/protected", nil)
	ctx := context.WithValue(req.Context(), IdentityKey, identity)
	return req.WithContext(ctx)
}

func TestRequireAccessPassesGrantToHandler(t *testing.T) {
	g := gate.NewGate(&stubEntitlements{status: entitlement.EffectiveEnabled}, &stubPermissions{granted: true}, nopAuditLog{}, logrus.New())

	var sawGrant *gate.Grant
	handler := RequireAccess(g, logrus.New(), registry.ModuleCRM, "", "crm.read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawGrant, _ = GrantFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithIdentity(&Identity{UserID: 10, OrganizationID: 1}))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, sawGrant)
	assert.Equal(t, int64(1), sawGrant.OrganizationID)
}

func TestRequireAccessEntitlementDeniedShape(t *testing.T) {
	g := gate.NewGate(&stubEntitlements{status: entitlement.EffectiveTrialExpired}, &stubPermissions{granted: true}, nopAuditLog{}, logrus.New())

	handler := RequireAccess(g, logrus.New(), registry.ModuleCRM, "", "crm.read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithIdentity(&Identity{UserID: 10, OrganizationID: 1}))

	require.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "entitlement_denied", body["error_type"])
	assert.Equal(t, registry.ModuleCRM, body["module_key"])
	assert.Equal(t, string(entitlement.EffectiveTrialExpired), body["status"])
}

func TestRequireAccessPermissionDeniedShape(t *testing.T) {
	g := gate.NewGate(&stubEntitlements{status: entitlement.EffectiveEnabled}, &stubPermissions{granted: false}, nopAuditLog{}, logrus.New())

	handler := RequireAccess(g, logrus.New(), registry.ModuleCRM, "", "crm.delete")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithIdentity(&Identity{UserID: 10, OrganizationID: 1}))

	require.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "permission_denied", body["error_type"])
	assert.Equal(t, "crm.delete", body["permission"])
}

func TestRequireAccessWithoutIdentity(t *testing.T) {
	g := gate.NewGate(&stubEntitlements{status: entitlement.EffectiveEnabled}, &stubPermissions{granted: true}, nopAuditLog{}, logrus.New())

	handler := RequireAccess(g, logrus.New(), registry.ModuleCRM, "", "crm.read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/protected", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestIDAssignsAndHonorsHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-abc", seen)
	assert.Equal(t, "req-abc", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}
