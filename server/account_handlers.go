package server

import (
	"net/http"
	"time"

	"github.com/jrsteele09/go-identity-server/accounts"
	"github.com/jrsteele09/go-identity-server/codes"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/rbac"
	"github.com/jrsteele09/go-identity-server/users"
)

type permissionsResponse struct {
	TenantID     string   `json:"tenant_id"`
	UserID       string   `json:"user_id"`
	Organization string   `json:"organization,omitempty"`
	Permissions  []string `json:"permissions"`
}

// UserPermissions returns the effective permissions of a user, globally or
// within the organization named by the query.
func (s *Server) UserPermissions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, userID := r.PathValue("tenant"), r.PathValue("user")
		org := r.URL.Query().Get("organization")
		perms, err := s.services.Permissions.Resolve(r.Context(), tenantID, userID, rbac.ScopeFromOrganization(org))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, permissionsResponse{
			TenantID:     tenantID,
			UserID:       userID,
			Organization: org,
			Permissions:  perms.Sorted(),
		})
	}
}

type identitiesResponse struct {
	UserID     string           `json:"user_id"`
	Identities []users.Identity `json:"identities"`
}

// UnlinkIdentity removes a secondary identity. The identity that
// authenticated the caller's session, or the session named by session_id,
// cannot be removed.
func (s *Server) UnlinkIdentity() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := accounts.UnlinkRequest{
			TenantID: r.PathValue("tenant"),
			UserID:   r.PathValue("user"),
			Identity: users.IdentityRef{Provider: r.PathValue("provider"), SubjectID: r.PathValue("subject")},
		}
		sessionID := r.URL.Query().Get("session_id")
		if v, ok := VerifiedToken(r.Context()); ok && sessionID == "" && v.Subject == req.UserID && v.ImpersonatorID == "" {
			sessionID = v.SessionID
		}
		if sessionID != "" {
			session, err := s.services.Auth.Sessions.GetActive(r.Context(), req.TenantID, sessionID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if session.UserID != req.UserID {
				writeError(w, r, apperrors.New(apperrors.KindMismatch, "session belongs to another user"))
				return
			}
			req.CurrentIdentity = session.Identity
		}
		user, err := s.services.Accounts.UnlinkIdentity(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, identitiesResponse{UserID: user.ID, Identities: user.Identities})
	}
}

type emailChangeRequest struct {
	NewEmail string `json:"new_email"`
}

type emailChangeResponse struct {
	RequestID string    `json:"request_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RequestEmailChange sends a verification code to the new address.
func (s *Server) RequestEmailChange() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req emailChangeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		change, err := s.services.Accounts.RequestEmailChange(r.Context(), r.PathValue("tenant"), r.PathValue("user"), req.NewEmail)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, emailChangeResponse{RequestID: change.RequestID, ExpiresAt: change.ExpiresAt})
	}
}

type confirmEmailChangeRequest struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
}

type emailResponse struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// ConfirmEmailChange redeems the request id and verification code together.
func (s *Server) ConfirmEmailChange() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmEmailChangeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		user, err := s.services.Accounts.ConfirmEmailChange(r.Context(), r.PathValue("tenant"), req.RequestID, req.Code)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, emailResponse{UserID: user.ID, Email: user.Email, EmailVerified: user.EmailVerified})
	}
}

// SendEmailVerification sends a code proving ownership of the user's email.
func (s *Server) SendEmailVerification() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.services.Accounts.SendEmailVerification(r.Context(), r.PathValue("tenant"), r.PathValue("user")); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

type redeemCodeRequest struct {
	TenantID string     `json:"tenant_id"`
	Type     codes.Type `json:"type"`
	Code     string     `json:"code"`
	Subject  string     `json:"subject"`
}

type redeemCodeResponse struct {
	Subject       string `json:"subject"`
	EmailVerified bool   `json:"email_verified,omitempty"`
}

// RedeemCode redeems a standalone code bound to subject. Authorization codes
// and email change pairs have their own endpoints.
func (s *Server) RedeemCode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req redeemCodeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if req.TenantID == "" || req.Code == "" || req.Subject == "" {
			writeError(w, r, apperrors.New(apperrors.KindInvalid, "tenant_id, code and subject are required"))
			return
		}

		switch req.Type {
		case codes.TypeEmailVerification:
			user, err := s.services.Accounts.VerifyEmail(r.Context(), req.TenantID, req.Subject, req.Code)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, redeemCodeResponse{Subject: user.ID, EmailVerified: user.EmailVerified})
		case codes.TypeOTP:
			code, err := s.services.Codes.Redeem(r.Context(), codes.RedeemRequest{
				TenantID: req.TenantID,
				Type:     req.Type,
				Value:    req.Code,
				Subject:  req.Subject,
			})
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, redeemCodeResponse{Subject: code.Subject})
		default:
			writeError(w, r, apperrors.Newf(apperrors.KindInvalid, "codes of type %q cannot be redeemed here", req.Type))
		}
	}
}
