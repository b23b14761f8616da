package rbac

import (
	"time"
)

// AccessLevel defines what a role may do within a module, independent of the
// organization's entitlement status. The set is closed: levels map to
// permission suffixes through a static table, never derived dynamically.
type AccessLevel string

const (
	AccessFull     AccessLevel = "full"
	AccessLimited  AccessLevel = "limited"
	AccessViewOnly AccessLevel = "view_only"
)

// Valid reports whether the access level is a known value.
func (l AccessLevel) Valid() bool {
	switch l {
	case AccessFull, AccessLimited, AccessViewOnly:
		return true
	}
	return false
}

// accessLevelSuffixes is the fixed mapping from access level to the
// permission action suffixes it grants.
var accessLevelSuffixes = map[AccessLevel][]string{
	AccessFull:     {"create", "read", "update", "delete"},
	AccessLimited:  {"read", "update"},
	AccessViewOnly: {"read"},
}

// PermissionSuffixes returns the action suffixes granted by the level.
func (l AccessLevel) PermissionSuffixes() []string {
	return accessLevelSuffixes[l]
}

// Role hierarchy levels. Lower numbers outrank higher ones.
const (
	LevelManagement = 1
	LevelManager    = 2
	LevelExecutive  = 3
)

// OrganizationRole is an organization-scoped role. Roles are deactivated,
// never deleted, so historical assignments keep their referent.
type OrganizationRole struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	HierarchyLevel int       `json:"hierarchy_level"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RoleModuleAssignment grants a role an access level within one module.
type RoleModuleAssignment struct {
	ID          int64       `json:"id"`
	RoleID      int64       `json:"role_id"`
	ModuleKey   string      `json:"module_key"`
	AccessLevel AccessLevel `json:"access_level"`
	CreatedAt   time.Time   `json:"created_at"`
}

// UserOrganizationRole assigns a role to a user within an organization.
// ManagerAssignments maps module key to the manager an Executive reports to
// within that module; it drives approval routing and is validated at write
// time so a broken assignment surfaces at role configuration, not at voucher
// submission.
type UserOrganizationRole struct {
	ID                 int64            `json:"id"`
	UserID             int64            `json:"user_id"`
	OrganizationID     int64            `json:"organization_id"`
	RoleID             int64            `json:"role_id"`
	ManagerAssignments map[string]int64 `json:"manager_assignments,omitempty"`
	GrantedBy          *int64           `json:"granted_by,omitempty"`
	GrantedAt          time.Time        `json:"granted_at"`
}

// UserRoleGrant is a user's role assignment joined with the role row and its
// module assignments, as returned by the store.
type UserRoleGrant struct {
	Role               OrganizationRole
	Assignments        []RoleModuleAssignment
	ManagerAssignments map[string]int64
}

// RoleTemplate seeds a new organization's default roles.
type RoleTemplate struct {
	Name           string
	HierarchyLevel int
	ModuleAccess   map[string]AccessLevel
}

// BuiltInRoleTemplates returns the default Management/Manager/Executive role
// templates applied to the given module keys.
func BuiltInRoleTemplates(moduleKeys []string) []RoleTemplate {
	management := make(map[string]AccessLevel, len(moduleKeys))
	manager := make(map[string]AccessLevel, len(moduleKeys))
	executive := make(map[string]AccessLevel, len(moduleKeys))
	for _, key := range moduleKeys {
		management[key] = AccessFull
		manager[key] = AccessLimited
		executive[key] = AccessViewOnly
	}

	return []RoleTemplate{
		{Name: "Management", HierarchyLevel: LevelManagement, ModuleAccess: management},
		{Name: "Manager", HierarchyLevel: LevelManager, ModuleAccess: manager},
		{Name: "Executive", HierarchyLevel: LevelExecutive, ModuleAccess: executive},
	}
}
