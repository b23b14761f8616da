package rbac

import (
	"context"
	"database/sql"

	"github.com/sirupsen/logrus"

	"github.com/clearledger/gatekeeper/pkg/storage"
)

// GetMigrations returns all RBAC migrations.
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create org_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_roles (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL,
					name VARCHAR(255) NOT NULL,
					hierarchy_level INT NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(organization_id, name)
				);

				CREATE INDEX idx_org_roles_org ON org_roles(organization_id);
			`,
		},
		{
			Version:     2,
			Description: "Create role_module_assignments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_module_assignments (
					id BIGSERIAL PRIMARY KEY,
					role_id BIGINT NOT NULL REFERENCES org_roles(id),
					module_key VARCHAR(100) NOT NULL REFERENCES modules(key),
					access_level VARCHAR(50) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(role_id, module_key)
				);
			`,
		},
		{
			Version:     3,
			Description: "Create user_org_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_org_roles (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL,
					organization_id BIGINT NOT NULL,
					role_id BIGINT NOT NULL REFERENCES org_roles(id),
					manager_assignments JSONB NOT NULL DEFAULT '{}',
					granted_by BIGINT,
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(user_id, organization_id, role_id)
				);

				CREATE INDEX idx_user_org_roles_user ON user_org_roles(user_id, organization_id);
			`,
		},
	}
}

// RunMigrations executes all pending RBAC migrations.
func RunMigrations(ctx context.Context, db *sql.DB, log *logrus.Logger) error {
	return storage.RunMigrations(ctx, db, "rbac_migrations", GetMigrations(), log)
}
