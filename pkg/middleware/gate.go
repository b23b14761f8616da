package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clearledger/gatekeeper/pkg/gate"
)

const (
	// GrantKey is the context key for the access grant
	GrantKey AuthContextKey = "grant"

	// RequestIDKey is the context key for the request ID
	RequestIDKey AuthContextKey = "request_id"
)

// deniedResponse is the JSON body returned on a 403. The error_type
// discriminator tells clients whether to render an upgrade prompt
// (entitlement) or an access message (permission).
type deniedResponse struct {
	ErrorType    string `json:"error_type"`
	Message      string `json:"message"`
	ModuleKey    string `json:"module_key,omitempty"`
	SubmoduleKey string `json:"submodule_key,omitempty"`
	Status       string `json:"status,omitempty"`
	Permission   string `json:"permission,omitempty"`
}

// RequestID assigns each request an id for audit correlation, honoring an
// existing X-Request-ID header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAccess gates a route on the unified access check. The organization
// comes from the authenticated identity, so Authenticate must run first.
func RequireAccess(g *gate.Gate, log *logrus.Logger, moduleKey, submoduleKey, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "Not authenticated", http.StatusUnauthorized)
				return
			}

			grant, err := g.Authorize(r.Context(), gate.CheckRequest{
				UserID:       identity.UserID,
				OrgID:        identity.OrganizationID,
				SuperAdmin:   identity.SuperAdmin,
				ModuleKey:    moduleKey,
				SubmoduleKey: submoduleKey,
				Permission:   permission,
				RequestID:    RequestIDFromContext(r.Context()),
			})
			if err != nil {
				writeDecision(w, log, err)
				return
			}

			ctx := context.WithValue(r.Context(), GrantKey, grant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GrantFromContext returns the access grant placed by RequireAccess.
func GrantFromContext(ctx context.Context) (*gate.Grant, bool) {
	grant, ok := ctx.Value(GrantKey).(*gate.Grant)
	return grant, ok
}

// RequestIDFromContext returns the request id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}

func writeDecision(w http.ResponseWriter, log *logrus.Logger, err error) {
	var resp deniedResponse
	switch e := err.(type) {
	case *gate.EntitlementDeniedError:
		resp = deniedResponse{
			ErrorType:    "entitlement_denied",
			Message:      e.Error(),
			ModuleKey:    e.ModuleKey,
			SubmoduleKey: e.SubmoduleKey,
			Status:       string(e.Status),
		}
	case *gate.PermissionDeniedError:
		resp = deniedResponse{
			ErrorType:  "permission_denied",
			Message:    e.Error(),
			Permission: e.Permission,
		}
	default:
		log.WithError(err).Error("access check failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	json.NewEncoder(w).Encode(resp)
}
