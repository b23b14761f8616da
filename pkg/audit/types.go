package audit

import (
	"time"
)

// EventType represents the category of audit event.
type EventType string

const (
	// Entitlement lifecycle events
	EventTypeEntitlementChange        EventType = "entitlement.status_change"
	EventTypeEntitlementAutoMigration EventType = "entitlement.auto_migration"

	// Authorization events
	EventTypeAuthzBypass EventType = "authz.superadmin_bypass"
	EventTypeAuthzDenied EventType = "authz.access_denied"

	// Approval workflow events
	EventTypeApprovalSubmit   EventType = "approval.submit"
	EventTypeApprovalApprove  EventType = "approval.approve"
	EventTypeApprovalReject   EventType = "approval.reject"
	EventTypeApprovalEscalate EventType = "approval.escalate"
)

// Reasons recorded on entitlement events.
const (
	ReasonAutoMigration = "auto_migration"
	ReasonAdminUpdate   = "admin_update"
)

// Event is a single append-only audit log entry. Rows are write-once: they
// are never mutated or deleted, and exist purely for audit replay.
type Event struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	EventType      EventType `json:"event_type"`
	ModuleKey      string    `json:"module_key,omitempty"`
	OldStatus      string    `json:"old_status,omitempty"`
	NewStatus      string    `json:"new_status,omitempty"`
	ActorID        *int64    `json:"actor_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Filter narrows event queries.
type Filter struct {
	OrganizationID int64
	EventTypes     []EventType
	ModuleKey      string
	Since          *time.Time
	Limit          int
}
