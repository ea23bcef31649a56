package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/ukydev/fleet-tracker/internal/auth"
	"github.com/ukydev/fleet-tracker/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	UserContextKey contextKey = "user"
)

// Accounts reports whether any user account exists.
type Accounts interface {
	HasUsers(ctx context.Context) (bool, error)
}

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	authService *auth.Service
	accounts    Accounts
	locked      atomic.Bool
}

// NewAuthMiddleware creates a new authentication middleware. Until accounts
// holds a user, data routes accept anonymous requests. A nil accounts keeps
// them open.
func NewAuthMiddleware(authService *auth.Service, accounts Accounts) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		accounts:    accounts,
	}
}

// open reports whether anonymous requests are still allowed. Accounts are
// never removed, so a locked middleware stays locked. Lookup errors lock the
// request.
func (m *AuthMiddleware) open(ctx context.Context) bool {
	if m.accounts == nil {
		return true
	}
	if m.locked.Load() {
		return false
	}
	exists, err := m.accounts.HasUsers(ctx)
	if err != nil {
		return false
	}
	if exists {
		m.locked.Store(true)
	}
	return !exists
}

// OptionalAuth attaches the user's claims when the request carries a valid
// bearer token. Requests without one, or with a bad one, pass anonymously.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, err := m.authService.ValidateToken(bearer(r)); err == nil {
			r = r.WithContext(WithUser(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects requests that reached it without user claims.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUserFromContext(r.Context()); !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PermitAction lets anonymous requests through while no account exists and
// otherwise applies RequirePermission.
func (m *AuthMiddleware) PermitAction(action string) func(http.Handler) http.Handler {
	check := m.RequirePermission(action)
	return func(next http.Handler) http.Handler {
		guarded := check(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := GetUserFromContext(r.Context()); !ok && m.open(r.Context()) {
				next.ServeHTTP(w, r)
				return
			}
			guarded.ServeHTTP(w, r)
		})
	}
}

// RequirePermission middleware checks if the user has the required permission
func (m *AuthMiddleware) RequirePermission(requiredAction string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserFromContext(r.Context())
			if !ok {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			user := &models.User{Role: claims.Role}
			if !user.HasPermission(requiredAction) {
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(ctx context.Context) (*models.Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*models.Claims)
	return claims, ok
}

// WithUser returns ctx carrying claims, as OptionalAuth does.
func WithUser(ctx context.Context, claims *models.Claims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

// bearer returns the Authorization header. Browsers cannot set headers on
// websocket upgrades, so those may pass the token as a query parameter.
func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return h
	}
	if token := r.URL.Query().Get("token"); token != "" && strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return "Bearer " + token
	}
	return ""
}
