package middleware

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/lowtide/lowtide/pkg/auth"
	"github.com/lowtide/lowtide/pkg/contextkeys"
)

// AuthMiddleware authenticates requests against the API keyring.
type AuthMiddleware struct {
	keyring  *auth.Keyring
	audit    *auth.AuditTrail
	optional bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware. The audit
// trail may be nil.
func NewAuthMiddleware(keyring *auth.Keyring, audit *auth.AuditTrail, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		keyring:  keyring,
		audit:    audit,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <key>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.unauthorizedResponse(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.unauthorizedResponse(w, "invalid authorization header format")
			return
		}

		identity, err := m.keyring.Resolve(parts[1])
		if err != nil {
			if m.audit != nil {
				m.audit.RecordRequest(r, "", auth.ActionAuthFailure, r.URL.Path, auth.StatusFailure, err.Error())
			}
			m.unauthorizedResponse(w, "invalid or revoked API key")
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) unauthorizedResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

// GetIdentity extracts the authenticated caller from a request.
func GetIdentity(r *http.Request) *auth.Identity {
	v := r.Context().Value(contextkeys.IdentityKey)
	if v == nil {
		return nil
	}
	identity, ok := v.(*auth.Identity)
	if !ok {
		return nil
	}
	return identity
}

// RequireOperator creates middleware that only admits operator keys.
func RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := GetIdentity(r)
		if identity == nil {
			forbiddenResponse(w, "authentication required")
			return
		}
		if !identity.IsOperator() {
			forbiddenResponse(w, "operator role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSelfOrOperator creates middleware that admits the subscriber
// named by the given route variable, or any operator.
func RequireSelfOrOperator(subscriberVar string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r)
			if identity == nil {
				forbiddenResponse(w, "authentication required")
				return
			}

			subscriber := mux.Vars(r)[subscriberVar]
			if !identity.CanActFor(subscriber) {
				forbiddenResponse(w, "cannot act for another subscriber")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func forbiddenResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
