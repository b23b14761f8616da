package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/clearledger/gatekeeper/pkg/audit"
)

// AuditHandlers handles audit event queries
type AuditHandlers struct {
	auditLog *audit.DBLogger
}

// NewAuditHandlers creates a new AuditHandlers
func NewAuditHandlers(auditLog *audit.DBLogger) *AuditHandlers {
	return &AuditHandlers{auditLog: auditLog}
}

// RegisterRoutes registers audit routes
func (h *AuditHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/events", h.ListEvents).Methods("GET")
}

// ListEvents returns an organization's audit events, newest first
func (h *AuditHandlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromRequest(w, r)
	if !ok {
		return
	}

	filter := audit.Filter{OrganizationID: orgID}

	query := r.URL.Query()
	if eventType := query.Get("event_type"); eventType != "" {
		filter.EventTypes = []audit.EventType{audit.EventType(eventType)}
	}
	if moduleKey := query.Get("module_key"); moduleKey != "" {
		filter.ModuleKey = moduleKey
	}
	if sinceStr := query.Get("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			http.Error(w, "Invalid since timestamp", http.StatusBadRequest)
			return
		}
		filter.Since = &since
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	events, err := h.auditLog.List(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}
