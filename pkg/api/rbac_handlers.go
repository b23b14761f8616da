package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/clearledger/gatekeeper/pkg/middleware"
	"github.com/clearledger/gatekeeper/pkg/rbac"
)

// RBACHandlers handles role and permission HTTP requests
type RBACHandlers struct {
	store    *rbac.Store
	resolver *rbac.Resolver
}

// NewRBACHandlers creates a new RBACHandlers
func NewRBACHandlers(store *rbac.Store, resolver *rbac.Resolver) *RBACHandlers {
	return &RBACHandlers{store: store, resolver: resolver}
}

// RegisterReadRoutes registers the permission lookup routes. These stay
// outside the admin gate so services can resolve any user's effective
// permissions.
func (h *RBACHandlers) RegisterReadRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/users/{user_id}/permissions", h.GetUserPermissions).Methods("GET")
}

// RegisterAdminRoutes registers the role management routes.
func (h *RBACHandlers) RegisterAdminRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/orgs/{org_id}/roles/seed", h.SeedRoles).Methods("POST")
	router.HandleFunc("/orgs/{org_id}/roles/{role_id}", h.DeactivateRole).Methods("DELETE")
	router.HandleFunc("/orgs/{org_id}/roles/{role_id}/modules", h.AssignModule).Methods("PUT")
	router.HandleFunc("/orgs/{org_id}/users/{user_id}/roles", h.AssignUser).Methods("PUT")
}

// CreateRole creates an organization role
func (h *RBACHandlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	var role rbac.OrganizationRole
	if err := json.NewDecoder(r.Body).Decode(&role); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	role.OrganizationID = orgID
	role.IsActive = true

	if err := h.store.CreateRole(r.Context(), &role); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, role)
}

// SeedRoles creates the default role templates for an organization that has
// none yet
func (h *RBACHandlers) SeedRoles(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.store.SeedBuiltInRoles(r.Context(), orgID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	roles, err := h.store.ListRoles(r.Context(), orgID, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, roles)
}

// ListRoles lists an organization's roles
func (h *RBACHandlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	roles, err := h.store.ListRoles(r.Context(), orgID, includeInactive)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, roles)
}

// DeactivateRole soft-deletes a role
func (h *RBACHandlers) DeactivateRole(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	roleID, err := strconv.ParseInt(mux.Vars(r)["role_id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid role ID", http.StatusBadRequest)
		return
	}

	if err := h.store.DeactivateRole(r.Context(), orgID, roleID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AssignModule sets a role's access level within a module
func (h *RBACHandlers) AssignModule(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	roleID, err := strconv.ParseInt(mux.Vars(r)["role_id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid role ID", http.StatusBadRequest)
		return
	}
	if _, err := h.store.GetRole(r.Context(), orgID, roleID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	var assignment rbac.RoleModuleAssignment
	if err := json.NewDecoder(r.Body).Decode(&assignment); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	assignment.RoleID = roleID

	if err := h.store.AssignModule(r.Context(), &assignment); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, assignment)
}

// AssignUser assigns a role to a user
func (h *RBACHandlers) AssignUser(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	userID, err := strconv.ParseInt(mux.Vars(r)["user_id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var userRole rbac.UserOrganizationRole
	if err := json.NewDecoder(r.Body).Decode(&userRole); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	userRole.UserID = userID
	userRole.OrganizationID = orgID

	identity, _ := middleware.IdentityFromContext(r.Context())
	userRole.GrantedBy = &identity.UserID

	if err := h.store.AssignUser(r.Context(), &userRole); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, userRole)
}

// UserPermissionsResponse is a user's resolved permission list
type UserPermissionsResponse struct {
	UserID         int64    `json:"user_id"`
	OrganizationID int64    `json:"organization_id"`
	Permissions    []string `json:"permissions"`
}

// GetUserPermissions returns a user's effective permissions
func (h *RBACHandlers) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	userID, err := strconv.ParseInt(mux.Vars(r)["user_id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	resolved, err := h.resolver.ResolvePermissions(r.Context(), userID, orgID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, UserPermissionsResponse{
		UserID:         userID,
		OrganizationID: orgID,
		Permissions:    resolved.List(),
	})
}
