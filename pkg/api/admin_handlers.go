package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/clearledger/gatekeeper/pkg/entitlement"
	"github.com/clearledger/gatekeeper/pkg/middleware"
)

// AdminHandlers handles administrative entitlement updates
type AdminHandlers struct {
	resolver *entitlement.Resolver
}

// NewAdminHandlers creates a new AdminHandlers
func NewAdminHandlers(resolver *entitlement.Resolver) *AdminHandlers {
	return &AdminHandlers{resolver: resolver}
}

// RegisterRoutes registers admin routes
func (h *AdminHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/entitlements", h.UpdateEntitlements).Methods("PUT")
	router.HandleFunc("/orgs/{org_id}/submodules/{submodule_key}", h.SetSubmodule).Methods("PUT")
}

// UpdateEntitlementsRequest is the full desired module map for an organization
type UpdateEntitlementsRequest struct {
	Modules map[string]entitlement.ModuleSelection `json:"modules"`
}

// UpdateEntitlements applies a full module selection to an organization
func (h *AdminHandlers) UpdateEntitlements(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	identity, _ := middleware.IdentityFromContext(r.Context())

	var req UpdateEntitlementsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Modules) == 0 {
		http.Error(w, "Request must include at least one module", http.StatusBadRequest)
		return
	}

	requestID := middleware.RequestIDFromContext(r.Context())
	if err := h.resolver.ApplyModuleSelection(r.Context(), orgID, req.Modules, identity.UserID, requestID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.resolver.EffectiveEntitlements(r.Context(), orgID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// SetSubmoduleRequest toggles one submodule
type SetSubmoduleRequest struct {
	Enabled bool `json:"enabled"`
}

// SetSubmodule toggles a submodule for an organization
func (h *AdminHandlers) SetSubmodule(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	identity, _ := middleware.IdentityFromContext(r.Context())

	var req SetSubmoduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	requestID := middleware.RequestIDFromContext(r.Context())
	submoduleKey := mux.Vars(r)["submodule_key"]
	if err := h.resolver.SetSubmoduleEnabled(r.Context(), orgID, submoduleKey, req.Enabled, identity.UserID, requestID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
