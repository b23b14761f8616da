package gate

import (
	"errors"
	"fmt"

	"github.com/clearledger/gatekeeper/pkg/entitlement"
)

// EntitlementDeniedError indicates the organization is not licensed for the
// requested module or submodule. It is returned before any permission check
// runs, so its presence never reveals role configuration.
type EntitlementDeniedError struct {
	ModuleKey    string                      `json:"module_key"`
	SubmoduleKey string                      `json:"submodule_key,omitempty"`
	Status       entitlement.EffectiveStatus `json:"status"`
	Reason       string                      `json:"reason"`
}

func (e *EntitlementDeniedError) Error() string {
	if e.SubmoduleKey != "" {
		return fmt.Sprintf("submodule %s of module %s is not enabled: %s", e.SubmoduleKey, e.ModuleKey, e.Reason)
	}
	return fmt.Sprintf("module %s is not enabled (status %s): %s", e.ModuleKey, e.Status, e.Reason)
}

// IsEntitlementDenied checks if an error is an entitlement denial.
func IsEntitlementDenied(err error) bool {
	var target *EntitlementDeniedError
	return errors.As(err, &target)
}

// PermissionDeniedError indicates the user's roles do not grant the requested
// permission. The organization's entitlement already passed when this is
// returned.
type PermissionDeniedError struct {
	Permission string `json:"permission"`
	Reason     string `json:"reason"`
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission %s denied: %s", e.Permission, e.Reason)
}

// IsPermissionDenied checks if an error is a permission denial.
func IsPermissionDenied(err error) bool {
	var target *PermissionDeniedError
	return errors.As(err, &target)
}
