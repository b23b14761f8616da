package entitlement

import (
	"context"
	"database/sql"

	"github.com/sirupsen/logrus"

	"github.com/clearledger/gatekeeper/pkg/storage"
)

// GetMigrations returns all entitlement migrations.
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create org_entitlements table",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_entitlements (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL,
					module_key VARCHAR(100) NOT NULL REFERENCES modules(key),
					status VARCHAR(50) NOT NULL,
					trial_expires_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(organization_id, module_key)
				);

				CREATE INDEX idx_org_entitlements_org ON org_entitlements(organization_id);
			`,
		},
		{
			Version:     2,
			Description: "Create org_subentitlements table",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_subentitlements (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL,
					submodule_key VARCHAR(100) NOT NULL,
					enabled BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(organization_id, submodule_key)
				);

				CREATE INDEX idx_org_subentitlements_org ON org_subentitlements(organization_id);
			`,
		},
		{
			Version:     3,
			Description: "Create org_legacy_modules table",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_legacy_modules (
					organization_id BIGINT PRIMARY KEY,
					enabled_modules JSONB NOT NULL DEFAULT '{}',
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
	}
}

// RunMigrations executes all pending entitlement migrations.
func RunMigrations(ctx context.Context, db *sql.DB, log *logrus.Logger) error {
	return storage.RunMigrations(ctx, db, "entitlement_migrations", GetMigrations(), log)
}
