package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-identity-server/rbac"
	"github.com/jrsteele09/go-identity-server/token"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyToken stores the verified access token
const ContextKeyToken ContextKey = "token"

// VerifiedToken returns the access token RequireAuth verified.
func VerifiedToken(ctx context.Context) (*token.Verified, bool) {
	v, ok := ctx.Value(ContextKeyToken).(*token.Verified)
	return v, ok
}

// RequireAuth validates a Bearer access token issued to a user of the
// tenant named in the path.
func (s *Server) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
			writeJSONError(w, "unauthorized", "missing or malformed bearer token", http.StatusUnauthorized)
			return
		}
		verified, err := s.services.Auth.Tokens.Verify(r.Context(), parts[1])
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeJSONError(w, "invalid_token", err.Error(), http.StatusUnauthorized)
			return
		}
		if tenantID := r.PathValue("tenant"); tenantID != "" && tenantID != verified.TenantID {
			writeJSONError(w, "forbidden", "token was issued by another tenant", http.StatusForbidden)
			return
		}
		if verified.Subject == verified.ClientID {
			writeJSONError(w, "forbidden", "token was not issued to a user", http.StatusForbidden)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ContextKeyToken, verified)))
	}
}

// RequireUserAccess lets the user named in the path act on their own
// account. Anyone else needs perm. Chain it after RequireAuth.
func (s *Server) RequireUserAccess(perm rbac.Permission) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			verified, ok := VerifiedToken(r.Context())
			if !ok {
				writeJSONError(w, "unauthorized", "no verified token", http.StatusUnauthorized)
				return
			}
			if verified.Subject == r.PathValue("user") {
				next(w, r)
				return
			}
			perms, err := s.services.Permissions.Resolve(r.Context(), verified.TenantID, verified.Subject, rbac.Global())
			if err != nil {
				writeError(w, r, err)
				return
			}
			if !perms.Has(perm) {
				log.Info().
					Str("tenant_id", verified.TenantID).
					Str("subject", verified.Subject).
					Str("permission", string(perm)).
					Str("path", r.URL.Path).
					Msg("permission denied")
				writeJSONError(w, "forbidden", "missing permission "+string(perm), http.StatusForbidden)
				return
			}
			next(w, r)
		}
	}
}
