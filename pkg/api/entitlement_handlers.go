package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/clearledger/gatekeeper/pkg/entitlement"
	"github.com/clearledger/gatekeeper/pkg/middleware"
)

// EntitlementHandlers handles entitlement-related HTTP requests
type EntitlementHandlers struct {
	resolver *entitlement.Resolver
}

// NewEntitlementHandlers creates a new EntitlementHandlers
func NewEntitlementHandlers(resolver *entitlement.Resolver) *EntitlementHandlers {
	return &EntitlementHandlers{resolver: resolver}
}

// RegisterRoutes registers entitlement routes
func (h *EntitlementHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/entitlements", h.GetEntitlements).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/entitlements/{module_key}", h.GetModuleStatus).Methods("GET")
}

// GetEntitlements returns the organization's full resolved entitlement view
func (h *EntitlementHandlers) GetEntitlements(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	result, err := h.resolver.EffectiveEntitlements(r.Context(), orgID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetModuleStatus returns the effective status of one module
func (h *EntitlementHandlers) GetModuleStatus(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	status, err := h.resolver.ResolveModule(r.Context(), orgID, mux.Vars(r)["module_key"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// orgFromRequest parses the org_id path variable and verifies the caller
// belongs to that organization. Super-admins may act across organizations.
func orgFromRequest(w http.ResponseWriter, r *http.Request) (int64, bool) {
	orgID, err := strconv.ParseInt(mux.Vars(r)["org_id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid organization ID", http.StatusBadRequest)
		return 0, false
	}

	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return 0, false
	}
	if !identity.SuperAdmin && identity.OrganizationID != orgID {
		http.Error(w, "Organization mismatch", http.StatusForbidden)
		return 0, false
	}

	return orgID, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
