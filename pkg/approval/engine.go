// Package approval implements the voucher approval workflow: a small state
// machine with organization-configurable depth, amount-based auto-approval,
// and manager routing derived from role assignments.
package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/clearledger/gatekeeper/pkg/audit"
	"github.com/clearledger/gatekeeper/pkg/gate"
	"github.com/clearledger/gatekeeper/pkg/registry"
)

// Synthetic permissions for approval transitions. Acting on a voucher one is
// not routed to is a permission denial, indistinguishable in shape from any
// other denied permission.
const (
	PermApproveLevel1 = "vouchers.approve.level_1"
	PermApproveLevel2 = "vouchers.approve.level_2"
)

// ApproverResolver looks up the manager designated to approve a user's
// requests within a module.
type ApproverResolver interface {
	ResolveApprover(ctx context.Context, userID, orgID int64, moduleKey string) (int64, bool, error)
}

// Engine drives voucher approvals through their state machine.
type Engine struct {
	store    *Store
	roles    ApproverResolver
	auditLog audit.Logger
	log      *logrus.Logger
}

// NewEngine creates an approval engine.
func NewEngine(store *Store, roles ApproverResolver, auditLog audit.Logger, log *logrus.Logger) *Engine {
	return &Engine{store: store, roles: roles, auditLog: auditLog, log: log}
}

// Submit enters a voucher into the approval workflow. The organization's
// settings are snapshotted onto the voucher row at this moment. A voucher
// auto-approves when the model is none or the amount is within the threshold.
// Otherwise routing requires a manager assignment for the vouchers module;
// when none exists submission fails with a ConfigurationError instead of
// silently approving.
func (e *Engine) Submit(ctx context.Context, orgID, submitterID int64, voucherRef string, amount decimal.Decimal, requestID string) (*VoucherApproval, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("voucher amount cannot be negative")
	}

	settings, err := e.store.GetSettings(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = &Settings{OrganizationID: orgID, Model: ModelNone}
	}

	voucher := &VoucherApproval{
		OrganizationID:         orgID,
		VoucherRef:             voucherRef,
		SubmitterID:            submitterID,
		Amount:                 amount,
		Model:                  settings.Model,
		Threshold:              settings.AutoApproveThreshold,
		Level2Approvers:        settings.Level2Approvers,
		EscalationTimeoutHours: settings.EscalationTimeoutHours,
	}

	autoApprove := settings.Model == ModelNone || amount.LessThanOrEqual(settings.AutoApproveThreshold)

	if autoApprove {
		voucher.Status = StatusAutoApproved
	} else {
		approverID, ok, err := e.roles.ResolveApprover(ctx, submitterID, orgID, registry.ModuleVouchers)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &ConfigurationError{
				OrganizationID: orgID,
				Detail:         fmt.Sprintf("no approver assigned for user %d in module %s", submitterID, registry.ModuleVouchers),
			}
		}
		voucher.Status = StatusPending
		voucher.CurrentApproverID = approverID
	}

	if err := e.store.CreateVoucher(ctx, voucher); err != nil {
		return nil, err
	}

	if err := e.auditLog.Record(ctx, &audit.Event{
		OrganizationID: orgID,
		EventType:      audit.EventTypeApprovalSubmit,
		ModuleKey:      registry.ModuleVouchers,
		NewStatus:      string(voucher.Status),
		ActorID:        &submitterID,
		RequestID:      requestID,
	}); err != nil {
		return nil, err
	}

	return voucher, nil
}

// ApproveLevel1 records the first-level approval. Only the voucher's current
// approver may act. Under the level_1 model this completes the workflow;
// under level_2 the voucher advances to wait on any configured level-2
// approver.
func (e *Engine) ApproveLevel1(ctx context.Context, orgID, voucherID, actorID int64, requestID string) (*VoucherApproval, error) {
	voucher, err := e.store.GetVoucher(ctx, orgID, voucherID)
	if err != nil {
		return nil, err
	}
	if voucher.Status != StatusPending {
		return nil, &ConflictError{VoucherID: voucherID, Expected: StatusPending}
	}
	if actorID != voucher.CurrentApproverID {
		return nil, &gate.PermissionDeniedError{
			Permission: PermApproveLevel1,
			Reason:     fmt.Sprintf("user %d is not the designated approver for voucher %d", actorID, voucherID),
		}
	}

	nextApprover := int64(0)
	if voucher.Model == ModelLevel2 {
		if len(voucher.Level2Approvers) == 0 {
			return nil, &ConfigurationError{
				OrganizationID: orgID,
				Detail:         fmt.Sprintf("voucher %d requires level-2 approval but no level-2 approvers were configured at submission", voucherID),
			}
		}
		nextApprover = AnyLevel2Approver
	}

	if err := e.store.Transition(ctx, voucherID, StatusPending, StatusLevel1Approved, nextApprover, ""); err != nil {
		return nil, err
	}

	return e.finish(ctx, orgID, voucherID, actorID, audit.EventTypeApprovalApprove, requestID)
}

// ApproveLevel2 records the second-level approval. The actor must be one of
// the level-2 approvers snapshotted at submission, and the voucher must have
// passed level 1 first.
func (e *Engine) ApproveLevel2(ctx context.Context, orgID, voucherID, actorID int64, requestID string) (*VoucherApproval, error) {
	voucher, err := e.store.GetVoucher(ctx, orgID, voucherID)
	if err != nil {
		return nil, err
	}
	if voucher.Model != ModelLevel2 {
		return nil, fmt.Errorf("voucher %d does not use two-level approval", voucherID)
	}
	if voucher.Status != StatusLevel1Approved {
		return nil, &ConflictError{VoucherID: voucherID, Expected: StatusLevel1Approved}
	}
	if !containsApprover(voucher.Level2Approvers, actorID) {
		return nil, &gate.PermissionDeniedError{
			Permission: PermApproveLevel2,
			Reason:     fmt.Sprintf("user %d is not a level-2 approver for voucher %d", actorID, voucherID),
		}
	}

	if err := e.store.Transition(ctx, voucherID, StatusLevel1Approved, StatusLevel2Approved, 0, ""); err != nil {
		return nil, err
	}

	return e.finish(ctx, orgID, voucherID, actorID, audit.EventTypeApprovalApprove, requestID)
}

// Reject moves a non-terminal voucher to rejected. A rejection always carries
// a comment, and only the approver the voucher is currently waiting on may
// reject it.
func (e *Engine) Reject(ctx context.Context, orgID, voucherID, actorID int64, comment, requestID string) (*VoucherApproval, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, fmt.Errorf("rejection requires a comment")
	}

	voucher, err := e.store.GetVoucher(ctx, orgID, voucherID)
	if err != nil {
		return nil, err
	}

	switch voucher.Status {
	case StatusPending:
		if actorID != voucher.CurrentApproverID {
			return nil, &gate.PermissionDeniedError{
				Permission: PermApproveLevel1,
				Reason:     fmt.Sprintf("user %d is not the designated approver for voucher %d", actorID, voucherID),
			}
		}
	case StatusLevel1Approved:
		if voucher.Model != ModelLevel2 || !containsApprover(voucher.Level2Approvers, actorID) {
			return nil, &gate.PermissionDeniedError{
				Permission: PermApproveLevel2,
				Reason:     fmt.Sprintf("user %d is not a level-2 approver for voucher %d", actorID, voucherID),
			}
		}
	default:
		return nil, &ConflictError{VoucherID: voucherID, Expected: voucher.Status}
	}

	if err := e.store.Transition(ctx, voucherID, voucher.Status, StatusRejected, 0, comment); err != nil {
		return nil, err
	}

	return e.finish(ctx, orgID, voucherID, actorID, audit.EventTypeApprovalReject, requestID)
}

// Reassign hands a pending voucher to a different approver, restarting its
// escalation clock.
func (e *Engine) Reassign(ctx context.Context, orgID, voucherID, actorID, newApproverID int64, requestID string) (*VoucherApproval, error) {
	voucher, err := e.store.GetVoucher(ctx, orgID, voucherID)
	if err != nil {
		return nil, err
	}
	if voucher.Status != StatusPending {
		return nil, &ConflictError{VoucherID: voucherID, Expected: StatusPending}
	}
	if newApproverID <= 0 {
		return nil, fmt.Errorf("invalid approver id: %d", newApproverID)
	}

	if err := e.store.Reassign(ctx, voucherID, StatusPending, newApproverID); err != nil {
		return nil, err
	}

	return e.finish(ctx, orgID, voucherID, actorID, audit.EventTypeApprovalEscalate, requestID)
}

// ScanEscalations finds vouchers that have exceeded the escalation timeout
// snapshotted at submission and logs each candidate. Runs from the scheduler.
func (e *Engine) ScanEscalations(ctx context.Context, now time.Time) ([]VoucherApproval, error) {
	candidates, err := e.store.EscalationCandidates(ctx, now)
	if err != nil {
		return nil, err
	}

	for _, v := range candidates {
		e.log.WithFields(logrus.Fields{
			"voucher_id":      v.ID,
			"organization_id": v.OrganizationID,
			"status":          v.Status,
			"waiting_since":   v.StateEnteredAt,
		}).Warn("voucher approval exceeded escalation timeout")

		if err := e.auditLog.Record(ctx, &audit.Event{
			OrganizationID: v.OrganizationID,
			EventType:      audit.EventTypeApprovalEscalate,
			ModuleKey:      registry.ModuleVouchers,
			OldStatus:      string(v.Status),
			RequestID:      fmt.Sprintf("escalation-scan-%d", v.ID),
		}); err != nil {
			return nil, err
		}
	}

	return candidates, nil
}

func (e *Engine) finish(ctx context.Context, orgID, voucherID, actorID int64, eventType audit.EventType, requestID string) (*VoucherApproval, error) {
	voucher, err := e.store.GetVoucher(ctx, orgID, voucherID)
	if err != nil {
		return nil, err
	}

	if err := e.auditLog.Record(ctx, &audit.Event{
		OrganizationID: orgID,
		EventType:      eventType,
		ModuleKey:      registry.ModuleVouchers,
		NewStatus:      string(voucher.Status),
		ActorID:        &actorID,
		RequestID:      requestID,
	}); err != nil {
		return nil, err
	}

	return voucher, nil
}

func containsApprover(approvers []int64, userID int64) bool {
	for _, id := range approvers {
		if id == userID {
			return true
		}
	}
	return false
}
