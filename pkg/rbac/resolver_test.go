package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearledger/gatekeeper/pkg/permissions"
	"github.com/clearledger/gatekeeper/pkg/registry"
)

func newTestResolver(t *testing.T) (*Resolver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	catalog := registry.NewCatalog(registry.BuiltInModules(), registry.BuiltInSubmodules())
	normalizer, err := permissions.NewDefaultNormalizer()
	require.NoError(t, err)

	store := NewStore(db, catalog)
	return NewResolver(store, normalizer, logrus.New()), mock
}

func grantRows(t *testing.T, roles ...OrganizationRole) *sqlmock.Rows {
	t.Helper()
	rows := sqlmock.NewRows([]string{"id", "organization_id", "name", "hierarchy_level", "is_active", "created_at", "updated_at", "manager_assignments"})
	now := time.Now()
	for _, r := range roles {
		rows.AddRow(r.ID, r.OrganizationID, r.Name, r.HierarchyLevel, true, now, now, []byte(`{}`))
	}
	return rows
}

func assignmentRows(assignments ...RoleModuleAssignment) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "role_id", "module_key", "access_level", "created_at"})
	now := time.Now()
	for i, a := range assignments {
		rows.AddRow(int64(i+1), a.RoleID, a.ModuleKey, string(a.AccessLevel), now)
	}
	return rows
}

func TestResolvePermissionsMapsAccessLevels(t *testing.T) {
	resolver, mock := newTestResolver(t)

	mock.ExpectQuery(`FROM user_org_roles ur`).
		WithArgs(int64(10), int64(1)).
		WillReturnRows(grantRows(t, OrganizationRole{ID: 5, OrganizationID: 1, Name: "Manager", HierarchyLevel: LevelManager}))
	mock.ExpectQuery(`FROM role_module_assignments`).
		WithArgs(int64(5)).
		WillReturnRows(assignmentRows(
			RoleModuleAssignment{RoleID: 5, ModuleKey: registry.ModuleCRM, AccessLevel: AccessFull},
			RoleModuleAssignment{RoleID: 5, ModuleKey: registry.ModuleInventory, AccessLevel: AccessViewOnly},
		))

	resolved, err := resolver.ResolvePermissions(context.Background(), 10, 1)
	require.NoError(t, err)

	assert.True(t, resolved.Has("crm.create"))
	assert.True(t, resolved.Has("crm.read"))
	assert.True(t, resolved.Has("crm.update"))
	assert.True(t, resolved.Has("crm.delete"))
	assert.True(t, resolved.Has("inventory.read"))
	assert.False(t, resolved.Has("inventory.update"))
	assert.False(t, resolved.Has("inventory.delete"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolvePermissionsUnionsAcrossRoles(t *testing.T) {
	resolver, mock := newTestResolver(t)

	mock.ExpectQuery(`FROM user_org_roles ur`).
		WithArgs(int64(10), int64(1)).
		WillReturnRows(grantRows(t,
			OrganizationRole{ID: 5, OrganizationID: 1, Name: "Viewer", HierarchyLevel: LevelExecutive},
			OrganizationRole{ID: 6, OrganizationID: 1, Name: "Editor", HierarchyLevel: LevelManager},
		))
	mock.ExpectQuery(`FROM role_module_assignments`).
		WithArgs(int64(5)).
		WillReturnRows(assignmentRows(RoleModuleAssignment{RoleID: 5, ModuleKey: registry.ModuleCRM, AccessLevel: AccessViewOnly}))
	mock.ExpectQuery(`FROM role_module_assignments`).
		WithArgs(int64(6)).
		WillReturnRows(assignmentRows(RoleModuleAssignment{RoleID: 6, ModuleKey: registry.ModuleCRM, AccessLevel: AccessLimited}))

	resolved, err := resolver.ResolvePermissions(context.Background(), 10, 1)
	require.NoError(t, err)

	// Union only: the weaker role never subtracts from the stronger one.
	assert.True(t, resolved.Has("crm.read"))
	assert.True(t, resolved.Has("crm.update"))
	assert.False(t, resolved.Has("crm.delete"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHasPermissionNormalizesLegacySpelling(t *testing.T) {
	resolver, mock := newTestResolver(t)

	mock.ExpectQuery(`FROM user_org_roles ur`).
		WithArgs(int64(10), int64(1)).
		WillReturnRows(grantRows(t, OrganizationRole{ID: 5, OrganizationID: 1, Name: "Management", HierarchyLevel: LevelManagement}))
	mock.ExpectQuery(`FROM role_module_assignments`).
		WithArgs(int64(5)).
		WillReturnRows(assignmentRows(RoleModuleAssignment{RoleID: 5, ModuleKey: registry.ModuleVouchers, AccessLevel: AccessFull}))

	ok, err := resolver.HasPermission(context.Background(), 10, 1, "vouchers:create")
	require.NoError(t, err)
	assert.True(t, ok, "colon spelling must resolve to the canonical permission")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHasPermissionDeniesUngranted(t *testing.T) {
	resolver, mock := newTestResolver(t)

	mock.ExpectQuery(`FROM user_org_roles ur`).
		WithArgs(int64(10), int64(1)).
		WillReturnRows(grantRows(t))

	ok, err := resolver.HasPermission(context.Background(), 10, 1, "crm.read")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveApprover(t *testing.T) {
	resolver, mock := newTestResolver(t)

	rows := sqlmock.NewRows([]string{"id", "organization_id", "name", "hierarchy_level", "is_active", "created_at", "updated_at", "manager_assignments"})
	now := time.Now()
	rows.AddRow(int64(5), int64(1), "Executive", LevelExecutive, true, now, now, []byte(`{"vouchers": 77}`))

	mock.ExpectQuery(`FROM user_org_roles ur`).
		WithArgs(int64(10), int64(1)).
		WillReturnRows(rows)
	mock.ExpectQuery(`FROM role_module_assignments`).
		WithArgs(int64(5)).
		WillReturnRows(assignmentRows())

	approverID, found, err := resolver.ResolveApprover(context.Background(), 10, 1, registry.ModuleVouchers)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(77), approverID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveApproverMissing(t *testing.T) {
	resolver, mock := newTestResolver(t)

	mock.ExpectQuery(`FROM user_org_roles ur`).
		WithArgs(int64(10), int64(1)).
		WillReturnRows(grantRows(t, OrganizationRole{ID: 5, OrganizationID: 1, Name: "Executive", HierarchyLevel: LevelExecutive}))
	mock.ExpectQuery(`FROM role_module_assignments`).
		WithArgs(int64(5)).
		WillReturnRows(assignmentRows())

	_, found, err := resolver.ResolveApprover(context.Background(), 10, 1, registry.ModuleVouchers)
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessLevelSuffixes(t *testing.T) {
	assert.ElementsMatch(t, []string{"create", "read", "update", "delete"}, AccessFull.PermissionSuffixes())
	assert.ElementsMatch(t, []string{"read", "update"}, AccessLimited.PermissionSuffixes())
	assert.ElementsMatch(t, []string{"read"}, AccessViewOnly.PermissionSuffixes())
	assert.Empty(t, AccessLevel("bogus").PermissionSuffixes())
}
