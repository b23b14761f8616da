package approval

import (
	"context"
	"database/sql"

	"github.com/sirupsen/logrus"

	"github.com/clearledger/gatekeeper/pkg/storage"
)

// GetMigrations returns all approval workflow migrations.
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create org_approval_settings table",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_approval_settings (
					organization_id BIGINT PRIMARY KEY,
					model VARCHAR(50) NOT NULL DEFAULT 'none',
					auto_approve_threshold NUMERIC(20, 4) NOT NULL DEFAULT 0,
					level_2_approvers BIGINT[] NOT NULL DEFAULT '{}',
					escalation_timeout_hours INT NOT NULL DEFAULT 0,
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create voucher_approvals table",
			SQL: `
				CREATE TABLE IF NOT EXISTS voucher_approvals (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL,
					voucher_ref VARCHAR(255) NOT NULL,
					submitter_id BIGINT NOT NULL,
					amount NUMERIC(20, 4) NOT NULL,
					status VARCHAR(50) NOT NULL,
					model VARCHAR(50) NOT NULL,
					threshold NUMERIC(20, 4) NOT NULL DEFAULT 0,
					level_2_approvers BIGINT[] NOT NULL DEFAULT '{}',
					current_approver_id BIGINT NOT NULL DEFAULT 0,
					escalation_timeout_hours INT NOT NULL DEFAULT 0,
					rejection_comment TEXT,
					state_entered_at TIMESTAMP NOT NULL DEFAULT NOW(),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_voucher_approvals_org ON voucher_approvals(organization_id);
				CREATE INDEX idx_voucher_approvals_status ON voucher_approvals(status, state_entered_at);
			`,
		},
	}
}

// RunMigrations executes all pending approval migrations.
func RunMigrations(ctx context.Context, db *sql.DB, log *logrus.Logger) error {
	return storage.RunMigrations(ctx, db, "approval_migrations", GetMigrations(), log)
}
