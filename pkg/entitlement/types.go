package entitlement

import (
	"time"
)

// Status is the stored entitlement status of a module for an organization.
type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
	StatusTrial    Status = "trial"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusEnabled, StatusDisabled, StatusTrial:
		return true
	}
	return false
}

// EffectiveStatus is the computed status at request time. Trial expiry is
// evaluated against the stored expiry timestamp on every read; an expired
// trial evaluates as disabled without mutating the stored row.
type EffectiveStatus string

const (
	EffectiveEnabled      EffectiveStatus = "enabled"
	EffectiveDisabled     EffectiveStatus = "disabled"
	EffectiveTrialActive  EffectiveStatus = "trial_active"
	EffectiveTrialExpired EffectiveStatus = "trial_expired"
)

// Enabled reports whether the effective status grants access.
func (s EffectiveStatus) Enabled() bool {
	return s == EffectiveEnabled || s == EffectiveTrialActive
}

// OrgEntitlement is one (organization, module) licensing row. Rows are never
// hard-deleted, only transitioned between statuses.
type OrgEntitlement struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	ModuleKey      string     `json:"module_key"`
	Status         Status     `json:"status"`
	TrialExpiresAt *time.Time `json:"trial_expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Effective computes the entitlement's effective status at the given time.
func (e *OrgEntitlement) Effective(now time.Time) EffectiveStatus {
	switch e.Status {
	case StatusEnabled:
		return EffectiveEnabled
	case StatusTrial:
		if e.TrialExpiresAt != nil && e.TrialExpiresAt.After(now) {
			return EffectiveTrialActive
		}
		return EffectiveTrialExpired
	default:
		return EffectiveDisabled
	}
}

// OrgSubentitlement is one (organization, submodule) row. An absent row means
// the submodule inherits the parent module's status.
type OrgSubentitlement struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	SubmoduleKey   string    `json:"submodule_key"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Snapshot is the cached per-organization entitlement state. It stores raw
// rows, not computed statuses, so trial expiry stays a read-time computation
// even for cache hits. Snapshots are replaced whole; readers never observe a
// partially updated one.
type Snapshot struct {
	OrganizationID int64                     `json:"organization_id"`
	Modules        map[string]OrgEntitlement `json:"modules"`
	Submodules     map[string]bool           `json:"submodules"`
	LoadedAt       time.Time                 `json:"loaded_at"`
}

// ModuleStatus is the resolved status of one module for an organization,
// exposed to menu-rendering and other read-side collaborators.
type ModuleStatus struct {
	ModuleKey      string          `json:"module_key"`
	Status         EffectiveStatus `json:"status"`
	TrialExpiresAt *time.Time      `json:"trial_expires_at,omitempty"`
}

// EffectiveEntitlements is the full resolved view for an organization.
type EffectiveEntitlements struct {
	OrganizationID int64                   `json:"organization_id"`
	Modules        map[string]ModuleStatus `json:"modules"`
	Submodules     map[string]bool         `json:"submodules"`
}

// ModuleSelection is one desired module state in an administrative update.
type ModuleSelection struct {
	Status         Status     `json:"status"`
	TrialExpiresAt *time.Time `json:"trial_expires_at,omitempty"`
}
