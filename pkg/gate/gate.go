// Package gate is the unified access decision point. Every protected
// operation passes through Authorize, which evaluates the organization's
// entitlement before the caller's permission. The ordering is fixed: a user in
// an unentitled organization receives an entitlement denial even when their
// role would also fail the permission check, so responses never leak role
// configuration for modules the organization is not licensed for.
package gate

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/clearledger/gatekeeper/pkg/audit"
	"github.com/clearledger/gatekeeper/pkg/entitlement"
	"github.com/clearledger/gatekeeper/pkg/registry"
)

// CheckRequest describes one access check.
type CheckRequest struct {
	UserID       int64
	OrgID        int64
	SuperAdmin   bool
	ModuleKey    string
	SubmoduleKey string
	Permission   string
	RequestID    string
}

// Grant is the positive result of an access check.
type Grant struct {
	UserID         int64
	OrganizationID int64
	ModuleKey      string
	Bypassed       bool
}

// EntitlementResolver is the entitlement side of the gate.
type EntitlementResolver interface {
	ResolveModule(ctx context.Context, orgID int64, moduleKey string) (entitlement.ModuleStatus, error)
	ResolveSubmodule(ctx context.Context, orgID int64, submoduleKey string) (bool, error)
}

// PermissionChecker is the RBAC side of the gate.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, orgID int64, permission string) (bool, error)
}

// Gate combines entitlement resolution and permission resolution into a
// single decision point.
type Gate struct {
	entitlements EntitlementResolver
	roles        PermissionChecker
	auditLog     audit.Logger
	log          *logrus.Logger
}

// NewGate creates the access gate.
func NewGate(entitlements EntitlementResolver, roles PermissionChecker, auditLog audit.Logger, log *logrus.Logger) *Gate {
	return &Gate{
		entitlements: entitlements,
		roles:        roles,
		auditLog:     auditLog,
		log:          log,
	}
}

// Authorize evaluates an access check. Super-admins bypass both stages, and
// every bypass is written to the audit log. For everyone else the entitlement
// stage runs first and a denial there short-circuits the permission stage.
// Modules exempt from entitlement (always-on and platform modules) skip the
// entitlement stage but still require the permission.
func (g *Gate) Authorize(ctx context.Context, req CheckRequest) (*Grant, error) {
	if req.SuperAdmin {
		if err := g.auditLog.Record(ctx, &audit.Event{
			OrganizationID: req.OrgID,
			EventType:      audit.EventTypeAuthzBypass,
			ModuleKey:      req.ModuleKey,
			ActorID:        &req.UserID,
			RequestID:      req.RequestID,
		}); err != nil {
			return nil, err
		}
		decisionCounter.WithLabelValues(decisionBypass, req.ModuleKey).Inc()
		return &Grant{UserID: req.UserID, OrganizationID: req.OrgID, ModuleKey: req.ModuleKey, Bypassed: true}, nil
	}

	if err := g.checkEntitlement(ctx, req); err != nil {
		if IsEntitlementDenied(err) {
			decisionCounter.WithLabelValues(decisionDeniedEntitlement, req.ModuleKey).Inc()
			g.recordDenial(ctx, req, "entitlement")
		}
		return nil, err
	}

	if req.Permission != "" {
		ok, err := g.roles.HasPermission(ctx, req.UserID, req.OrgID, req.Permission)
		if err != nil {
			return nil, err
		}
		if !ok {
			decisionCounter.WithLabelValues(decisionDeniedPermission, req.ModuleKey).Inc()
			g.recordDenial(ctx, req, "permission")
			return nil, &PermissionDeniedError{
				Permission: req.Permission,
				Reason:     "not granted by any assigned role",
			}
		}
	}

	decisionCounter.WithLabelValues(decisionGranted, req.ModuleKey).Inc()
	return &Grant{UserID: req.UserID, OrganizationID: req.OrgID, ModuleKey: req.ModuleKey}, nil
}

func (g *Gate) checkEntitlement(ctx context.Context, req CheckRequest) error {
	if registry.AlwaysOnModules()[req.ModuleKey] || registry.RBACOnlyModules()[req.ModuleKey] {
		return nil
	}

	status, err := g.entitlements.ResolveModule(ctx, req.OrgID, req.ModuleKey)
	if err != nil {
		return err
	}
	if !status.Status.Enabled() {
		reason := "module not enabled for organization"
		if status.Status == entitlement.EffectiveTrialExpired {
			reason = "trial period has expired"
		}
		return &EntitlementDeniedError{
			ModuleKey: req.ModuleKey,
			Status:    status.Status,
			Reason:    reason,
		}
	}

	if req.SubmoduleKey != "" {
		enabled, err := g.entitlements.ResolveSubmodule(ctx, req.OrgID, req.SubmoduleKey)
		if err != nil {
			return err
		}
		if !enabled {
			return &EntitlementDeniedError{
				ModuleKey:    req.ModuleKey,
				SubmoduleKey: req.SubmoduleKey,
				Status:       status.Status,
				Reason:       "submodule not enabled for organization",
			}
		}
	}

	return nil
}

func (g *Gate) recordDenial(ctx context.Context, req CheckRequest, stage string) {
	if err := g.auditLog.Record(ctx, &audit.Event{
		OrganizationID: req.OrgID,
		EventType:      audit.EventTypeAuthzDenied,
		ModuleKey:      req.ModuleKey,
		ActorID:        &req.UserID,
		Reason:         stage,
		RequestID:      req.RequestID,
	}); err != nil {
		g.log.WithError(err).Warn("failed to record denial event")
	}
}
