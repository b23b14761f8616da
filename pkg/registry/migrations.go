package registry

import (
	"context"
	"database/sql"

	"github.com/sirupsen/logrus"

	"github.com/clearledger/gatekeeper/pkg/storage"
)

// GetMigrations returns all registry migrations.
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create modules table",
			SQL: `
				CREATE TABLE IF NOT EXISTS modules (
					id BIGSERIAL PRIMARY KEY,
					key VARCHAR(100) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					parent_key VARCHAR(100) NOT NULL DEFAULT '',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_modules_is_active ON modules(is_active);
			`,
		},
		{
			Version:     2,
			Description: "Create submodules table",
			SQL: `
				CREATE TABLE IF NOT EXISTS submodules (
					id BIGSERIAL PRIMARY KEY,
					module_key VARCHAR(100) NOT NULL REFERENCES modules(key) ON DELETE CASCADE,
					key VARCHAR(100) NOT NULL,
					display_name VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(module_key, key)
				);

				CREATE INDEX idx_submodules_module_key ON submodules(module_key);
			`,
		},
	}
}

// RunMigrations executes all pending registry migrations.
func RunMigrations(ctx context.Context, db *sql.DB, log *logrus.Logger) error {
	return storage.RunMigrations(ctx, db, "registry_migrations", GetMigrations(), log)
}
