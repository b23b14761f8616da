package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AuthContextKey is the key type for authentication context values
type AuthContextKey string

const (
	// IdentityKey is the context key for the authenticated identity
	IdentityKey AuthContextKey = "identity"
)

// Identity is the authenticated caller extracted from the bearer token.
type Identity struct {
	UserID         int64
	OrganizationID int64
	SuperAdmin     bool
}

// Claims are the JWT claims the service understands.
type Claims struct {
	UserID         int64 `json:"user_id"`
	OrganizationID int64 `json:"organization_id"`
	SuperAdmin     bool  `json:"super_admin"`
	jwt.RegisteredClaims
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(*Identity)
	return identity, ok
}

// Authenticate verifies the Authorization bearer token and injects the
// caller's identity into the request context. Requests without a valid token
// are rejected before reaching any handler.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "Missing bearer token", http.StatusUnauthorized)
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			if claims.UserID <= 0 || claims.OrganizationID <= 0 {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			identity := &Identity{
				UserID:         claims.UserID,
				OrganizationID: claims.OrganizationID,
				SuperAdmin:     claims.SuperAdmin,
			}
			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
