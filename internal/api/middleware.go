package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// Identity resolves the caller's stable user handle for a request.
// Authentication mechanics live outside this service; the default
// implementation trusts the gateway's identity headers.
type Identity interface {
	Resolve(r *http.Request) (*User, error)
}

// HeaderIdentity reads the identity the gateway attached to the request
type HeaderIdentity struct{}

// Resolve returns the user from X-User-ID / X-User-Name headers
func (HeaderIdentity) Resolve(r *http.Request) (*User, error) {
	id := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if id == "" {
		return nil, nil
	}

	name := strings.TrimSpace(r.Header.Get("X-User-Name"))
	if name == "" {
		name = id
	}

	return &User{ID: id, DisplayName: name}, nil
}

// AuthMiddleware attaches the resolved identity to each request
type AuthMiddleware struct {
	identity Identity
	adminKey string
}

// NewAuthMiddleware creates auth middleware with the given identity provider
func NewAuthMiddleware(identity Identity, adminKey string) *AuthMiddleware {
	return &AuthMiddleware{
		identity: identity,
		adminKey: adminKey,
	}
}

// Authenticate resolves the caller and rejects requests without identity
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.identity.Resolve(r)
		if err != nil {
			slog.Error("identity resolution failed", "error", err, "remote_addr", r.RemoteAddr)
			respondError(w, http.StatusInternalServerError, "auth_error", "internal server error")
			return
		}

		if user == nil {
			respondError(w, http.StatusUnauthorized, "unauthenticated", "user identity required")
			return
		}

		ctx := ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates the maintenance endpoints behind the admin key.
// With no key configured the endpoints are disabled outright.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.adminKey == "" {
			respondError(w, http.StatusForbidden, "admin_disabled", "admin endpoints are not enabled")
			return
		}

		key := extractAPIKey(r)
		if subtle.ConstantTimeCompare([]byte(key), []byte(m.adminKey)) != 1 {
			slog.Warn("invalid admin key attempt", "remote_addr", r.RemoteAddr)
			respondError(w, http.StatusUnauthorized, "invalid_admin_key", "the provided admin key is not valid")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractAPIKey extracts the key from Authorization or X-API-Key headers
func extractAPIKey(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		return authHeader
	}

	return r.Header.Get("X-API-Key")
}
