package server

import (
	stderrors "errors"
	"mime"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/oauth2"
	"github.com/rs/zerolog/log"
)

type tokenForm struct {
	TenantID     string `json:"tenant_id"`
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	CodeVerifier string `json:"code_verifier"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// parseTokenForm accepts the form encoding OAuth2 mandates and JSON. Client
// credentials may also arrive as HTTP Basic auth.
func parseTokenForm(w http.ResponseWriter, r *http.Request) (tokenForm, error) {
	var f tokenForm
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := decodeJSON(w, r, &f); err != nil {
			return f, err
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return f, apperrors.WithKind(apperrors.KindInvalid, err, "failed to parse form data")
		}
		f = tokenForm{
			TenantID:     r.FormValue("tenant_id"),
			GrantType:    r.FormValue("grant_type"),
			ClientID:     r.FormValue("client_id"),
			ClientSecret: r.FormValue("client_secret"),
			Code:         r.FormValue("code"),
			RedirectURI:  r.FormValue("redirect_uri"),
			CodeVerifier: r.FormValue("code_verifier"),
			RefreshToken: r.FormValue("refresh_token"),
			Scope:        r.FormValue("scope"),
		}
	}
	if id, secret, ok := r.BasicAuth(); ok && f.ClientID == "" {
		f.ClientID, f.ClientSecret = id, secret
	}
	if f.TenantID == "" {
		f.TenantID = r.URL.Query().Get("tenant_id")
	}
	return f, nil
}

// Token exchanges an authorization code, a refresh token or client
// credentials for tokens.
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseTokenForm(w, r)
		if err != nil {
			writeJSONError(w, "invalid_request", err.Error(), http.StatusBadRequest)
			return
		}
		grant := oauth2.GrantType(f.GrantType)
		switch grant {
		case oauth2.AuthorizationCodeGrant, oauth2.RefreshTokenCodeGrant, oauth2.ClientCredentialsCodeGrant:
		default:
			writeJSONError(w, "unsupported_grant_type", "unsupported grant type "+f.GrantType, http.StatusBadRequest)
			return
		}

		resp, err := s.services.Auth.Token(r.Context(), f.TenantID, oauth2.TokenRequest{
			GrantType:    grant,
			ClientID:     f.ClientID,
			ClientSecret: f.ClientSecret,
			Code:         f.Code,
			RedirectURI:  f.RedirectURI,
			CodeVerifier: f.CodeVerifier,
			RefreshToken: f.RefreshToken,
			Scope:        f.Scope,
		})
		if err != nil {
			code, status := oauthError(err)
			if status == http.StatusInternalServerError {
				log.Err(err).Str("grant_type", f.GrantType).Msg("token request failed")
				writeJSONError(w, code, "internal error", status)
				return
			}
			writeJSONError(w, code, err.Error(), status)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// oauthError maps an error to an RFC 6749 §5.2 error code.
func oauthError(err error) (string, int) {
	switch {
	case sameError(err, oauth2.ErrUnauthorizedGrant):
		return "unauthorized_client", http.StatusBadRequest
	case sameError(err, oauth2.ErrInvalidScope):
		return "invalid_scope", http.StatusBadRequest
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindInvalidCredential:
		return "invalid_client", http.StatusUnauthorized
	case apperrors.KindStorage:
		return "server_error", http.StatusInternalServerError
	}
	return "invalid_grant", http.StatusBadRequest
}

// sameError reports whether target itself, not just an error of its kind,
// is in err's chain.
func sameError(err, target error) bool {
	for ; err != nil; err = stderrors.Unwrap(err) {
		if err == target {
			return true
		}
	}
	return false
}

// UserInfo returns the claims of the user a bearer token was issued to.
func (s *Server) UserInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeJSONError(w, "invalid_token", "missing or malformed bearer token", http.StatusUnauthorized)
			return
		}
		info, err := s.services.Auth.UserInfo(r.Context(), parts[1])
		if err != nil {
			if apperrors.KindOf(err) == apperrors.KindStorage {
				writeError(w, r, err)
				return
			}
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeJSONError(w, "invalid_token", err.Error(), http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

type logoutRequest struct {
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"session_id"`
}

// Logout ends a session and revokes its refresh tokens.
func (s *Server) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req logoutRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if req.TenantID == "" || req.SessionID == "" {
			writeError(w, r, apperrors.New(apperrors.KindInvalid, "tenant_id and session_id are required"))
			return
		}
		if err := s.services.Auth.Logout(r.Context(), req.TenantID, req.SessionID); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
