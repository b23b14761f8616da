package approval

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Store handles approval workflow persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new approval store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetSettings retrieves an organization's approval settings. Returns nil when
// the organization has none configured.
func (s *Store) GetSettings(ctx context.Context, orgID int64) (*Settings, error) {
	query := `
		SELECT organization_id, model, auto_approve_threshold, level_2_approvers, escalation_timeout_hours, updated_at
		FROM org_approval_settings
		WHERE organization_id = $1
	`

	var settings Settings
	var approvers pq.Int64Array
	err := s.db.QueryRowContext(ctx, query, orgID).Scan(
		&settings.OrganizationID,
		&settings.Model,
		&settings.AutoApproveThreshold,
		&approvers,
		&settings.EscalationTimeoutHours,
		&settings.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval settings: %w", err)
	}

	settings.Level2Approvers = []int64(approvers)
	return &settings, nil
}

// SetSettings upserts an organization's approval settings.
func (s *Store) SetSettings(ctx context.Context, settings *Settings) error {
	if !settings.Model.Valid() {
		return fmt.Errorf("invalid approval model: %s", settings.Model)
	}
	if settings.AutoApproveThreshold.IsNegative() {
		return fmt.Errorf("auto-approve threshold cannot be negative")
	}

	query := `
		INSERT INTO org_approval_settings (organization_id, model, auto_approve_threshold, level_2_approvers, escalation_timeout_hours, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (organization_id)
		DO UPDATE SET model = EXCLUDED.model,
		              auto_approve_threshold = EXCLUDED.auto_approve_threshold,
		              level_2_approvers = EXCLUDED.level_2_approvers,
		              escalation_timeout_hours = EXCLUDED.escalation_timeout_hours,
		              updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		settings.OrganizationID,
		settings.Model,
		settings.AutoApproveThreshold,
		pq.Array(settings.Level2Approvers),
		settings.EscalationTimeoutHours,
	)
	if err != nil {
		return fmt.Errorf("failed to set approval settings: %w", err)
	}
	return nil
}

// CreateVoucher inserts a new voucher approval row.
func (s *Store) CreateVoucher(ctx context.Context, v *VoucherApproval) error {
	query := `
		INSERT INTO voucher_approvals (
			organization_id, voucher_ref, submitter_id, amount, status,
			model, threshold, level_2_approvers, current_approver_id,
			escalation_timeout_hours, state_entered_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11, $11)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		v.OrganizationID,
		v.VoucherRef,
		v.SubmitterID,
		v.Amount,
		v.Status,
		v.Model,
		v.Threshold,
		pq.Array(v.Level2Approvers),
		v.CurrentApproverID,
		v.EscalationTimeoutHours,
		now,
	).Scan(&v.ID)

	if err != nil {
		return fmt.Errorf("failed to create voucher approval: %w", err)
	}

	v.StateEnteredAt = now
	v.CreatedAt = now
	v.UpdatedAt = now
	return nil
}

// GetVoucher retrieves a voucher approval by ID scoped to an organization.
func (s *Store) GetVoucher(ctx context.Context, orgID, voucherID int64) (*VoucherApproval, error) {
	query := `
		SELECT id, organization_id, voucher_ref, submitter_id, amount, status,
		       model, threshold, level_2_approvers, current_approver_id,
		       escalation_timeout_hours, rejection_comment, state_entered_at,
		       created_at, updated_at
		FROM voucher_approvals
		WHERE id = $1 AND organization_id = $2
	`

	row := s.db.QueryRowContext(ctx, query, voucherID, orgID)
	v, err := scanVoucher(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("voucher approval not found: %d", voucherID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voucher approval: %w", err)
	}
	return v, nil
}

// Transition moves a voucher to a new status if and only if it is still in
// the expected status. A zero row count means another actor won the race and
// the caller receives a ConflictError.
func (s *Store) Transition(ctx context.Context, voucherID int64, expected, next Status, approverID int64, comment string) error {
	query := `
		UPDATE voucher_approvals
		SET status = $1,
		    current_approver_id = $2,
		    rejection_comment = $3,
		    state_entered_at = NOW(),
		    updated_at = NOW()
		WHERE id = $4 AND status = $5
	`

	result, err := s.db.ExecContext(ctx, query, next, approverID, comment, voucherID, expected)
	if err != nil {
		return fmt.Errorf("failed to transition voucher %d: %w", voucherID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to transition voucher %d: %w", voucherID, err)
	}
	if affected == 0 {
		return &ConflictError{VoucherID: voucherID, Expected: expected}
	}
	return nil
}

// Reassign changes the current approver of a voucher without changing its
// status. The state clock restarts so the new approver gets a full escalation
// window.
func (s *Store) Reassign(ctx context.Context, voucherID int64, expected Status, newApproverID int64) error {
	query := `
		UPDATE voucher_approvals
		SET current_approver_id = $1, state_entered_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, newApproverID, voucherID, expected)
	if err != nil {
		return fmt.Errorf("failed to reassign voucher %d: %w", voucherID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to reassign voucher %d: %w", voucherID, err)
	}
	if affected == 0 {
		return &ConflictError{VoucherID: voucherID, Expected: expected}
	}
	return nil
}

// ListPendingForApprover lists vouchers waiting on a specific approver.
func (s *Store) ListPendingForApprover(ctx context.Context, orgID, approverID int64) ([]VoucherApproval, error) {
	query := `
		SELECT id, organization_id, voucher_ref, submitter_id, amount, status,
		       model, threshold, level_2_approvers, current_approver_id,
		       escalation_timeout_hours, rejection_comment, state_entered_at,
		       created_at, updated_at
		FROM voucher_approvals
		WHERE organization_id = $1
		  AND status IN ('pending', 'level_1_approved')
		  AND (current_approver_id = $2 OR (current_approver_id = $3 AND $2 = ANY(level_2_approvers)))
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, orgID, approverID, AnyLevel2Approver)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending vouchers: %w", err)
	}
	defer rows.Close()

	return collectVouchers(rows)
}

// EscalationCandidates lists non-terminal vouchers that have sat in their
// current state longer than the escalation timeout snapshotted on the voucher
// at submission. Settings edits after submission do not move the deadline.
func (s *Store) EscalationCandidates(ctx context.Context, now time.Time) ([]VoucherApproval, error) {
	query := `
		SELECT id, organization_id, voucher_ref, submitter_id, amount, status,
		       model, threshold, level_2_approvers, current_approver_id,
		       escalation_timeout_hours, rejection_comment, state_entered_at,
		       created_at, updated_at
		FROM voucher_approvals
		WHERE status IN ('pending', 'level_1_approved')
		  AND escalation_timeout_hours > 0
		  AND state_entered_at < $1::timestamp - (escalation_timeout_hours || ' hours')::interval
		ORDER BY state_entered_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalation candidates: %w", err)
	}
	defer rows.Close()

	return collectVouchers(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVoucher(row rowScanner) (*VoucherApproval, error) {
	var v VoucherApproval
	var approvers pq.Int64Array
	var comment sql.NullString
	var amount, threshold string

	err := row.Scan(
		&v.ID,
		&v.OrganizationID,
		&v.VoucherRef,
		&v.SubmitterID,
		&amount,
		&v.Status,
		&v.Model,
		&threshold,
		&approvers,
		&v.CurrentApproverID,
		&v.EscalationTimeoutHours,
		&comment,
		&v.StateEnteredAt,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid voucher amount %q: %w", amount, err)
	}
	v.Threshold, err = decimal.NewFromString(threshold)
	if err != nil {
		return nil, fmt.Errorf("invalid voucher threshold %q: %w", threshold, err)
	}
	v.Level2Approvers = []int64(approvers)
	v.RejectionComment = comment.String
	return &v, nil
}

func collectVouchers(rows *sql.Rows) ([]VoucherApproval, error) {
	var vouchers []VoucherApproval
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voucher approval: %w", err)
		}
		vouchers = append(vouchers, *v)
	}
	return vouchers, rows.Err()
}
