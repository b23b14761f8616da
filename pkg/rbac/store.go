package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clearledger/gatekeeper/pkg/registry"
)

// Store handles RBAC data persistence.
type Store struct {
	db      *sql.DB
	catalog *registry.Catalog
}

// NewStore creates a new RBAC store.
func NewStore(db *sql.DB, catalog *registry.Catalog) *Store {
	return &Store{db: db, catalog: catalog}
}

// CreateRole creates a new organization role.
func (s *Store) CreateRole(ctx context.Context, role *OrganizationRole) error {
	if role.HierarchyLevel < LevelManagement || role.HierarchyLevel > LevelExecutive {
		return fmt.Errorf("invalid hierarchy level: %d", role.HierarchyLevel)
	}

	query := `
		INSERT INTO org_roles (organization_id, name, hierarchy_level, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		role.OrganizationID,
		role.Name,
		role.HierarchyLevel,
		role.IsActive,
		now,
		now,
	).Scan(&role.ID)

	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRole retrieves a role by ID scoped to an organization.
func (s *Store) GetRole(ctx context.Context, orgID, roleID int64) (*OrganizationRole, error) {
	query := `
		SELECT id, organization_id, name, hierarchy_level, is_active, created_at, updated_at
		FROM org_roles
		WHERE id = $1 AND organization_id = $2
	`

	var role OrganizationRole
	err := s.db.QueryRowContext(ctx, query, roleID, orgID).Scan(
		&role.ID,
		&role.OrganizationID,
		&role.Name,
		&role.HierarchyLevel,
		&role.IsActive,
		&role.CreatedAt,
		&role.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role not found: %d", roleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return &role, nil
}

// ListRoles lists roles for an organization.
func (s *Store) ListRoles(ctx context.Context, orgID int64, includeInactive bool) ([]OrganizationRole, error) {
	query := `
		SELECT id, organization_id, name, hierarchy_level, is_active, created_at, updated_at
		FROM org_roles
		WHERE organization_id = $1 AND (is_active OR $2)
		ORDER BY hierarchy_level ASC, name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, orgID, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []OrganizationRole
	for rows.Next() {
		var role OrganizationRole
		if err := rows.Scan(&role.ID, &role.OrganizationID, &role.Name, &role.HierarchyLevel, &role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// DeactivateRole soft-deletes a role, preserving historical assignments.
func (s *Store) DeactivateRole(ctx context.Context, orgID, roleID int64) error {
	query := `UPDATE org_roles SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND organization_id = $2`

	result, err := s.db.ExecContext(ctx, query, roleID, orgID)
	if err != nil {
		return fmt.Errorf("failed to deactivate role: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to deactivate role: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("role not found: %d", roleID)
	}
	return nil
}

// AssignModule grants a role an access level within a module, replacing any
// previous assignment for that module.
func (s *Store) AssignModule(ctx context.Context, assignment *RoleModuleAssignment) error {
	if !assignment.AccessLevel.Valid() {
		return fmt.Errorf("invalid access level: %s", assignment.AccessLevel)
	}
	if _, ok := s.catalog.Module(assignment.ModuleKey); !ok {
		return fmt.Errorf("unknown module key: %s", assignment.ModuleKey)
	}

	query := `
		INSERT INTO role_module_assignments (role_id, module_key, access_level, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (role_id, module_key)
		DO UPDATE SET access_level = EXCLUDED.access_level
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		assignment.RoleID,
		assignment.ModuleKey,
		assignment.AccessLevel,
		now,
	).Scan(&assignment.ID)

	if err != nil {
		return fmt.Errorf("failed to assign module to role: %w", err)
	}

	assignment.CreatedAt = now
	return nil
}

// GetRoleModuleAssignments returns a role's module assignments.
func (s *Store) GetRoleModuleAssignments(ctx context.Context, roleID int64) ([]RoleModuleAssignment, error) {
	query := `
		SELECT id, role_id, module_key, access_level, created_at
		FROM role_module_assignments
		WHERE role_id = $1
		ORDER BY module_key ASC
	`

	rows, err := s.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role module assignments: %w", err)
	}
	defer rows.Close()

	var assignments []RoleModuleAssignment
	for rows.Next() {
		var a RoleModuleAssignment
		if err := rows.Scan(&a.ID, &a.RoleID, &a.ModuleKey, &a.AccessLevel, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role module assignment: %w", err)
		}
		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}

// AssignUser assigns a role to a user within an organization. Manager
// assignments are validated here, at write time, so a dangling module key or
// missing approver id is a configuration-time failure rather than a voucher
// submission failure.
func (s *Store) AssignUser(ctx context.Context, userRole *UserOrganizationRole) error {
	for moduleKey, managerID := range userRole.ManagerAssignments {
		if _, ok := s.catalog.Module(moduleKey); !ok {
			return fmt.Errorf("manager assignment references unknown module: %s", moduleKey)
		}
		if managerID <= 0 {
			return fmt.Errorf("manager assignment for module %s has invalid user id: %d", moduleKey, managerID)
		}
	}

	managerJSON, err := json.Marshal(userRole.ManagerAssignments)
	if err != nil {
		return fmt.Errorf("failed to marshal manager assignments: %w", err)
	}

	query := `
		INSERT INTO user_org_roles (user_id, organization_id, role_id, manager_assignments, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, organization_id, role_id)
		DO UPDATE SET manager_assignments = EXCLUDED.manager_assignments, granted_by = EXCLUDED.granted_by
		RETURNING id
	`

	now := time.Now()
	err = s.db.QueryRowContext(ctx, query,
		userRole.UserID,
		userRole.OrganizationID,
		userRole.RoleID,
		string(managerJSON),
		userRole.GrantedBy,
		now,
	).Scan(&userRole.ID)

	if err != nil {
		return fmt.Errorf("failed to assign role to user: %w", err)
	}

	userRole.GrantedAt = now
	return nil
}

// RevokeUser removes a role assignment from a user.
func (s *Store) RevokeUser(ctx context.Context, userID, orgID, roleID int64) error {
	query := `DELETE FROM user_org_roles WHERE user_id = $1 AND organization_id = $2 AND role_id = $3`
	if _, err := s.db.ExecContext(ctx, query, userID, orgID, roleID); err != nil {
		return fmt.Errorf("failed to revoke role from user: %w", err)
	}
	return nil
}

// GetUserRoleGrants returns a user's active role assignments for an
// organization, each joined with the role row and its module assignments.
func (s *Store) GetUserRoleGrants(ctx context.Context, userID, orgID int64) ([]UserRoleGrant, error) {
	query := `
		SELECT r.id, r.organization_id, r.name, r.hierarchy_level, r.is_active, r.created_at, r.updated_at,
		       ur.manager_assignments
		FROM user_org_roles ur
		JOIN org_roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1 AND ur.organization_id = $2 AND r.is_active
		ORDER BY r.hierarchy_level ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	defer rows.Close()

	var grants []UserRoleGrant
	for rows.Next() {
		var grant UserRoleGrant
		var managerJSON []byte
		if err := rows.Scan(
			&grant.Role.ID,
			&grant.Role.OrganizationID,
			&grant.Role.Name,
			&grant.Role.HierarchyLevel,
			&grant.Role.IsActive,
			&grant.Role.CreatedAt,
			&grant.Role.UpdatedAt,
			&managerJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user role: %w", err)
		}

		if len(managerJSON) > 0 {
			if err := json.Unmarshal(managerJSON, &grant.ManagerAssignments); err != nil {
				return nil, fmt.Errorf("failed to unmarshal manager assignments: %w", err)
			}
		}

		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range grants {
		assignments, err := s.GetRoleModuleAssignments(ctx, grants[i].Role.ID)
		if err != nil {
			return nil, err
		}
		grants[i].Assignments = assignments
	}

	return grants, nil
}

// SeedBuiltInRoles creates the default role templates for an organization if
// it has no roles yet. Templates span every module in the catalog.
func (s *Store) SeedBuiltInRoles(ctx context.Context, orgID int64) error {
	existing, err := s.ListRoles(ctx, orgID, true)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	for _, template := range BuiltInRoleTemplates(s.catalog.ModuleKeys()) {
		role := &OrganizationRole{
			OrganizationID: orgID,
			Name:           template.Name,
			HierarchyLevel: template.HierarchyLevel,
			IsActive:       true,
		}
		if err := s.CreateRole(ctx, role); err != nil {
			return fmt.Errorf("failed to seed role %s: %w", template.Name, err)
		}

		for moduleKey, level := range template.ModuleAccess {
			assignment := &RoleModuleAssignment{
				RoleID:      role.ID,
				ModuleKey:   moduleKey,
				AccessLevel: level,
			}
			if err := s.AssignModule(ctx, assignment); err != nil {
				return fmt.Errorf("failed to seed assignment %s/%s: %w", template.Name, moduleKey, err)
			}
		}
	}

	return nil
}
