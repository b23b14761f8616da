package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/clearledger/gatekeeper/pkg/approval"
	"github.com/clearledger/gatekeeper/pkg/gate"
	"github.com/clearledger/gatekeeper/pkg/middleware"
)

// ApprovalHandlers handles voucher approval HTTP requests
type ApprovalHandlers struct {
	engine *approval.Engine
	store  *approval.Store
}

// NewApprovalHandlers creates a new ApprovalHandlers
func NewApprovalHandlers(engine *approval.Engine, store *approval.Store) *ApprovalHandlers {
	return &ApprovalHandlers{engine: engine, store: store}
}

// RegisterRoutes registers approval routes
func (h *ApprovalHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/approval-settings", h.GetSettings).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/vouchers", h.Submit).Methods("POST")
	// Registered before the {voucher_id} route so "pending" is not parsed
	// as a voucher ID.
	router.HandleFunc("/orgs/{org_id}/vouchers/pending", h.ListPending).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/vouchers/{voucher_id}", h.GetVoucher).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/vouchers/{voucher_id}/approve", h.Approve).Methods("POST")
	router.HandleFunc("/orgs/{org_id}/vouchers/{voucher_id}/reject", h.Reject).Methods("POST")
	router.HandleFunc("/orgs/{org_id}/vouchers/{voucher_id}/reassign", h.Reassign).Methods("POST")
}

// RegisterAdminRoutes registers approval routes that change organization
// configuration. These go on the admin-gated subrouter, not the voucher one.
func (h *ApprovalHandlers) RegisterAdminRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/approval-settings", h.SetSettings).Methods("PUT")
}

// GetSettings returns the organization's approval settings
func (h *ApprovalHandlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	settings, err := h.store.GetSettings(r.Context(), orgID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if settings == nil {
		settings = &approval.Settings{OrganizationID: orgID, Model: approval.ModelNone}
	}

	writeJSON(w, http.StatusOK, settings)
}

// SetSettings updates the organization's approval settings
func (h *ApprovalHandlers) SetSettings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	var settings approval.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	settings.OrganizationID = orgID

	if err := h.store.SetSettings(r.Context(), &settings); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

// SubmitVoucherRequest enters a voucher into the approval workflow
type SubmitVoucherRequest struct {
	VoucherRef string          `json:"voucher_ref"`
	Amount     decimal.Decimal `json:"amount"`
}

// Submit submits a voucher for approval
func (h *ApprovalHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	identity, _ := middleware.IdentityFromContext(r.Context())

	var req SubmitVoucherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.VoucherRef == "" {
		http.Error(w, "voucher_ref is required", http.StatusBadRequest)
		return
	}

	requestID := middleware.RequestIDFromContext(r.Context())
	voucher, err := h.engine.Submit(r.Context(), orgID, identity.UserID, req.VoucherRef, req.Amount, requestID)
	if err != nil {
		writeApprovalError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, voucher)
}

// GetVoucher returns a voucher approval
func (h *ApprovalHandlers) GetVoucher(w http.ResponseWriter, r *http.Request) {
	orgID, voucherID, ok := voucherFromRequest(w, r)
	if !ok {
		return
	}

	voucher, err := h.store.GetVoucher(r.Context(), orgID, voucherID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, voucher)
}

// ApproveRequest selects which approval level to record
type ApproveRequest struct {
	Level int `json:"level"`
}

// Approve records a level-1 or level-2 approval
func (h *ApprovalHandlers) Approve(w http.ResponseWriter, r *http.Request) {
	orgID, voucherID, ok := voucherFromRequest(w, r)
	if !ok {
		return
	}
	identity, _ := middleware.IdentityFromContext(r.Context())

	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	requestID := middleware.RequestIDFromContext(r.Context())
	var voucher *approval.VoucherApproval
	var err error
	switch req.Level {
	case 1:
		voucher, err = h.engine.ApproveLevel1(r.Context(), orgID, voucherID, identity.UserID, requestID)
	case 2:
		voucher, err = h.engine.ApproveLevel2(r.Context(), orgID, voucherID, identity.UserID, requestID)
	default:
		http.Error(w, "level must be 1 or 2", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeApprovalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, voucher)
}

// RejectRequest carries the mandatory rejection comment
type RejectRequest struct {
	Comment string `json:"comment"`
}

// Reject rejects a voucher with a comment
func (h *ApprovalHandlers) Reject(w http.ResponseWriter, r *http.Request) {
	orgID, voucherID, ok := voucherFromRequest(w, r)
	if !ok {
		return
	}
	identity, _ := middleware.IdentityFromContext(r.Context())

	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	requestID := middleware.RequestIDFromContext(r.Context())
	voucher, err := h.engine.Reject(r.Context(), orgID, voucherID, identity.UserID, req.Comment, requestID)
	if err != nil {
		writeApprovalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, voucher)
}

// ReassignRequest names the new approver
type ReassignRequest struct {
	ApproverID int64 `json:"approver_id"`
}

// Reassign hands a pending voucher to a different approver
func (h *ApprovalHandlers) Reassign(w http.ResponseWriter, r *http.Request) {
	orgID, voucherID, ok := voucherFromRequest(w, r)
	if !ok {
		return
	}
	identity, _ := middleware.IdentityFromContext(r.Context())

	var req ReassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	requestID := middleware.RequestIDFromContext(r.Context())
	voucher, err := h.engine.Reassign(r.Context(), orgID, voucherID, identity.UserID, req.ApproverID, requestID)
	if err != nil {
		writeApprovalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, voucher)
}

// ListPending lists vouchers waiting on the authenticated approver
func (h *ApprovalHandlers) ListPending(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}
	identity, _ := middleware.IdentityFromContext(r.Context())

	vouchers, err := h.store.ListPendingForApprover(r.Context(), orgID, identity.UserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, vouchers)
}

func voucherFromRequest(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return 0, 0, false
	}
	voucherID, err := strconv.ParseInt(mux.Vars(r)["voucher_id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid voucher ID", http.StatusBadRequest)
		return 0, 0, false
	}
	return orgID, voucherID, true
}

func writeApprovalError(w http.ResponseWriter, err error) {
	var denied *gate.PermissionDeniedError
	switch {
	case errors.As(err, &denied):
		// Acting on a voucher one is not routed to is a 403 with the
		// same discriminated body the gate middleware produces.
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error_type": "permission_denied",
			"permission": denied.Permission,
			"reason":     denied.Reason,
			"message":    denied.Error(),
		})
	case approval.IsConfigurationError(err):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case approval.IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
