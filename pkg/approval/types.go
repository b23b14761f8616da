package approval

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Model selects how many approval levels a voucher passes through.
type Model string

const (
	ModelNone   Model = "none"
	ModelLevel1 Model = "level_1"
	ModelLevel2 Model = "level_2"
)

// Valid reports whether the model is a known value.
func (m Model) Valid() bool {
	switch m {
	case ModelNone, ModelLevel1, ModelLevel2:
		return true
	}
	return false
}

// Status is the approval state of a voucher. Transitions are guarded by
// compare-and-set against the expected current status, so two concurrent
// actors can never both advance the same voucher.
type Status string

const (
	StatusPending        Status = "pending"
	StatusLevel1Approved Status = "level_1_approved"
	StatusLevel2Approved Status = "level_2_approved"
	StatusRejected       Status = "rejected"
	StatusAutoApproved   Status = "auto_approved"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal(model Model) bool {
	switch s {
	case StatusRejected, StatusAutoApproved, StatusLevel2Approved:
		return true
	case StatusLevel1Approved:
		return model != ModelLevel2
	}
	return false
}

// AnyLevel2Approver marks a voucher waiting on any configured level-2
// approver rather than a specific user.
const AnyLevel2Approver int64 = -1

// Settings is an organization's voucher approval configuration.
type Settings struct {
	OrganizationID         int64           `json:"organization_id"`
	Model                  Model           `json:"model"`
	AutoApproveThreshold   decimal.Decimal `json:"auto_approve_threshold"`
	Level2Approvers        []int64         `json:"level_2_approvers"`
	EscalationTimeoutHours int             `json:"escalation_timeout_hours"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// VoucherApproval tracks one voucher through the approval workflow. The
// organization's settings, escalation timeout included, are snapshotted at
// submission, so a later settings change never reroutes an in-flight voucher
// or shifts its escalation clock.
type VoucherApproval struct {
	ID                     int64           `json:"id"`
	OrganizationID         int64           `json:"organization_id"`
	VoucherRef             string          `json:"voucher_ref"`
	SubmitterID            int64           `json:"submitter_id"`
	Amount                 decimal.Decimal `json:"amount"`
	Status                 Status          `json:"status"`
	Model                  Model           `json:"model"`
	Threshold              decimal.Decimal `json:"threshold"`
	Level2Approvers        []int64         `json:"level_2_approvers,omitempty"`
	CurrentApproverID      int64           `json:"current_approver_id,omitempty"`
	EscalationTimeoutHours int             `json:"escalation_timeout_hours,omitempty"`
	RejectionComment       string          `json:"rejection_comment,omitempty"`
	StateEnteredAt         time.Time       `json:"state_entered_at"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// ConfigurationError indicates the approval workflow cannot proceed because
// the organization's role or settings configuration is incomplete. Submission
// fails closed rather than silently auto-approving.
type ConfigurationError struct {
	OrganizationID int64
	Detail         string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("approval configuration error for organization %d: %s", e.OrganizationID, e.Detail)
}

// IsConfigurationError checks if an error is an approval configuration error.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// ConflictError indicates a transition lost a compare-and-set race: the
// voucher was no longer in the expected status when the update ran.
type ConflictError struct {
	VoucherID int64
	Expected  Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("voucher %d is no longer %s", e.VoucherID, e.Expected)
}

// IsConflict checks if an error is a transition conflict.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}
