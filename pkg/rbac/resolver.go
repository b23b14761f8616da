package rbac

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/clearledger/gatekeeper/pkg/permissions"
)

// Resolver computes a user's effective permission set from their role
// assignments.
type Resolver struct {
	store      *Store
	normalizer *permissions.Normalizer
	log        *logrus.Logger
}

// NewResolver creates an RBAC resolver.
func NewResolver(store *Store, normalizer *permissions.Normalizer, log *logrus.Logger) *Resolver {
	return &Resolver{store: store, normalizer: normalizer, log: log}
}

// ResolvePermissions returns the union of permissions granted by all of the
// user's active roles in the organization, expanded through the permission
// hierarchy. Multiple roles never subtract from each other: the result is
// monotone in the set of grants.
func (r *Resolver) ResolvePermissions(ctx context.Context, userID, orgID int64) (permissions.Set, error) {
	grants, err := r.store.GetUserRoleGrants(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}

	granted := permissions.NewSet()
	for _, grant := range grants {
		for _, assignment := range grant.Assignments {
			for _, suffix := range assignment.AccessLevel.PermissionSuffixes() {
				granted.Add(assignment.ModuleKey + "." + suffix)
			}
		}
	}

	return r.normalizer.Expand(granted), nil
}

// HasPermission reports whether the user holds the named permission in the
// organization. The name is normalized before lookup, so legacy aliases and
// colon-separated spellings resolve to the same canonical permission.
func (r *Resolver) HasPermission(ctx context.Context, userID, orgID int64, permission string) (bool, error) {
	resolved, err := r.ResolvePermissions(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	return resolved.Has(r.normalizer.Normalize(permission)), nil
}

// ResolveApprover returns the manager designated to approve the user's
// requests within a module. The second return is false when no manager is
// assigned for that module; callers decide whether that is a configuration
// error.
func (r *Resolver) ResolveApprover(ctx context.Context, userID, orgID int64, moduleKey string) (int64, bool, error) {
	grants, err := r.store.GetUserRoleGrants(ctx, userID, orgID)
	if err != nil {
		return 0, false, err
	}

	for _, grant := range grants {
		if managerID, ok := grant.ManagerAssignments[moduleKey]; ok && managerID > 0 {
			return managerID, true, nil
		}
	}

	r.log.WithFields(logrus.Fields{
		"user_id":         userID,
		"organization_id": orgID,
		"module_key":      moduleKey,
	}).Warn("no approver assigned for module")
	return 0, false, nil
}
