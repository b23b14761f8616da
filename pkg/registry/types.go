package registry

import (
	"time"
)

// Module represents a billable product module (e.g. "crm", "inventory").
// ParentKey is set for child bundles sold as part of another module; an
// organization without an explicit entitlement row for a child bundle
// inherits the parent's status.
type Module struct {
	ID          int64     `json:"id"`
	Key         string    `json:"key"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	ParentKey   string    `json:"parent_key,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Submodule represents a feature area owned by exactly one module. Its key is
// unique within the owning module.
type Submodule struct {
	ID          int64     `json:"id"`
	ModuleKey   string    `json:"module_key"`
	Key         string    `json:"key"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Well-known module keys.
const (
	ModuleCRM         = "crm"
	ModuleInventory   = "inventory"
	ModuleFinance     = "finance"
	ModuleVouchers    = "vouchers"
	ModuleHR          = "hr"
	ModuleServiceDesk = "servicedesk"
	ModuleDashboard   = "dashboard"
	ModuleSettings    = "settings"
	ModuleAdmin       = "admin"
	ModuleReports     = "reports"
)

// AlwaysOnModules are not sellable units and always report enabled.
func AlwaysOnModules() map[string]bool {
	return map[string]bool{
		ModuleDashboard: true,
		ModuleSettings:  true,
	}
}

// RBACOnlyModules are treated as entitled for every organization; access to
// them is gated purely by user permissions.
func RBACOnlyModules() map[string]bool {
	return map[string]bool{
		ModuleAdmin:   true,
		ModuleReports: true,
	}
}
