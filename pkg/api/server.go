package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/clearledger/gatekeeper/pkg/approval"
	"github.com/clearledger/gatekeeper/pkg/audit"
	"github.com/clearledger/gatekeeper/pkg/entitlement"
	"github.com/clearledger/gatekeeper/pkg/gate"
	"github.com/clearledger/gatekeeper/pkg/middleware"
	"github.com/clearledger/gatekeeper/pkg/rbac"
	"github.com/clearledger/gatekeeper/pkg/registry"
)

// Server is the authorization service HTTP API
type Server struct {
	router *mux.Router
	log    *logrus.Logger
}

// Dependencies carries the wired service components into the server
type Dependencies struct {
	Gate          *gate.Gate
	Entitlements  *entitlement.Resolver
	RBACStore     *rbac.Store
	RBACResolver  *rbac.Resolver
	Approvals     *approval.Engine
	ApprovalStore *approval.Store
	AuditLog      *audit.DBLogger
	JWTSecret     string
}

// NewServer creates the API server and wires all routes
func NewServer(deps Dependencies, log *logrus.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		log:    log,
	}

	s.router.HandleFunc("/health", s.health).Methods("GET")

	// Subrouters share the /api/v1 prefix but carry different gate
	// middleware; mux keeps scanning routes until one matches fully.
	subrouter := func() *mux.Router {
		sub := s.router.PathPrefix("/api/v1").Subrouter()
		sub.Use(middleware.RequestID)
		sub.Use(middleware.Authenticate(deps.JWTSecret))
		return sub
	}

	// Read-side routes: entitlement views and permission lookups stay
	// ungated so menu rendering can show disabled modules.
	reads := subrouter()
	rbacHandlers := NewRBACHandlers(deps.RBACStore, deps.RBACResolver)
	NewEntitlementHandlers(deps.Entitlements).RegisterRoutes(reads)
	rbacHandlers.RegisterReadRoutes(reads)

	// Administrative writes and the audit trail require the admin module
	// permission.
	approvalHandlers := NewApprovalHandlers(deps.Approvals, deps.ApprovalStore)
	admin := subrouter()
	admin.Use(middleware.RequireAccess(deps.Gate, log, registry.ModuleAdmin, "", "admin.update"))
	NewAdminHandlers(deps.Entitlements).RegisterRoutes(admin)
	rbacHandlers.RegisterAdminRoutes(admin)
	approvalHandlers.RegisterAdminRoutes(admin)

	auditRoutes := subrouter()
	auditRoutes.Use(middleware.RequireAccess(deps.Gate, log, registry.ModuleAdmin, "", "admin.read"))
	NewAuditHandlers(deps.AuditLog).RegisterRoutes(auditRoutes)

	// Voucher routes pass through the full gate: entitlement on the
	// vouchers module first, then the voucher permission. The engine
	// applies its own designated-approver checks on top.
	vouchers := subrouter()
	vouchers.Use(middleware.RequireAccess(deps.Gate, log, registry.ModuleVouchers, "", "vouchers.read"))
	approvalHandlers.RegisterRoutes(vouchers)

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router for tests
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
