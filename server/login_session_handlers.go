package server

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-identity-server/auth"
	"github.com/jrsteele09/go-identity-server/connections"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/internal/utils"
	"github.com/jrsteele09/go-identity-server/loginsessions"
	"github.com/jrsteele09/go-identity-server/oauth2"
	"github.com/jrsteele09/go-identity-server/sessions"
	"github.com/pkg/errors"
)

// beginRequest carries the authorization request parameters. MaxAge is in
// seconds.
type beginRequest struct {
	TenantID            string `json:"tenant_id"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	ResponseType        string `json:"response_type"`
	ResponseMode        string `json:"response_mode"`
	Scope               string `json:"scope"`
	Nonce               string `json:"nonce"`
	State               string `json:"state"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
	Organization        string `json:"organization"`
	Prompt              string `json:"prompt"`
	MaxAge              *int64 `json:"max_age"`
	ACRValues           string `json:"acr_values"`
	LoginHint           string `json:"login_hint"`
}

func (b beginRequest) params() loginsessions.AuthParams {
	p := loginsessions.AuthParams{
		ClientID:            b.ClientID,
		RedirectURI:         b.RedirectURI,
		ResponseType:        oauth2.ResponseType(b.ResponseType),
		ResponseMode:        oauth2.ResponseModeType(b.ResponseMode),
		Scope:               b.Scope,
		Nonce:               b.Nonce,
		State:               b.State,
		CodeChallenge:       b.CodeChallenge,
		CodeChallengeMethod: oauth2.CodeMethodType(b.CodeChallengeMethod),
		Organization:        b.Organization,
		Prompt:              b.Prompt,
		ACRValues:           b.ACRValues,
		LoginHint:           b.LoginHint,
	}
	if b.MaxAge != nil {
		p.MaxAge = utils.Ptr(time.Duration(*b.MaxAge) * time.Second)
	}
	return p
}

type beginResponse struct {
	TenantID       string               `json:"tenant_id"`
	LoginSessionID string               `json:"login_session_id"`
	CSRFToken      string               `json:"csrf_token"`
	ExpiresAt      time.Time            `json:"expires_at"`
	Connections    []connections.Option `json:"connections"`
}

// BeginLoginSession validates an authorization request and opens a login
// session for it.
func (s *Server) BeginLoginSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req beginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := s.services.Auth.Begin(r.Context(), auth.BeginRequest{TenantID: req.TenantID, Params: req.params()})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, beginResponse{
			TenantID:       res.TenantID,
			LoginSessionID: res.LoginSessionID,
			CSRFToken:      res.CSRFToken,
			ExpiresAt:      res.ExpiresAt,
			Connections:    res.Connections,
		})
	}
}

type loginSessionResponse struct {
	TenantID       string              `json:"tenant_id"`
	LoginSessionID string              `json:"login_session_id"`
	State          loginsessions.State `json:"state"`
	Step           loginsessions.Step  `json:"step"`
	FailureReason  string              `json:"failure_reason,omitempty"`
	ConnectionID   string              `json:"connection_id,omitempty"`
	SessionID      string              `json:"session_id,omitempty"`
	Attempts       int                 `json:"attempts"`
	ExpiresAt      time.Time           `json:"expires_at"`
}

// GetLoginSession reports where a login session stands.
func (s *Server) GetLoginSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ls, err := s.services.Auth.Get(r.Context(), r.URL.Query().Get("tenant_id"), r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, loginSessionResponse{
			TenantID:       ls.TenantID,
			LoginSessionID: ls.ID,
			State:          ls.State,
			Step:           ls.StateData.Step,
			FailureReason:  ls.FailureReason,
			ConnectionID:   ls.StateData.ConnectionID,
			SessionID:      ls.SessionID,
			Attempts:       ls.StateData.Attempts,
			ExpiresAt:      ls.ExpiresAt,
		})
	}
}

// stepRequest is the wire form of every login step. Type selects which
// fields apply.
type stepRequest struct {
	TenantID  string `json:"tenant_id"`
	CSRFToken string `json:"csrf_token"`
	Type      string `json:"type"`

	Identifier   string `json:"identifier,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
	Password     string `json:"password,omitempty"`
	Code         string `json:"code,omitempty"`
	Confirm      bool   `json:"confirm,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	TargetUserID string `json:"target_user_id,omitempty"`

	// federated
	UpstreamCode string `json:"upstream_code,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	Nonce        string `json:"nonce,omitempty"`
}

func (s *Server) stepPayload(r *http.Request, req stepRequest) (auth.StepPayload, error) {
	switch req.Type {
	case "identifier":
		return auth.IdentifierStep{Identifier: req.Identifier, ConnectionID: req.ConnectionID}, nil
	case "password":
		return auth.PasswordStep{Password: req.Password}, nil
	case "code":
		return auth.CodeStep{Code: req.Code}, nil
	case "resend_code":
		return auth.ResendCodeStep{}, nil
	case "link":
		return auth.LinkStep{Confirm: req.Confirm, Password: req.Password}, nil
	case "impersonate":
		return auth.ImpersonateStep{SessionID: req.SessionID, TargetUserID: req.TargetUserID}, nil
	case "continue_session":
		return auth.ContinueSessionStep{SessionID: req.SessionID}, nil
	case "federated":
		provider, ok := s.federation[req.ConnectionID]
		if !ok {
			return nil, apperrors.Newf(apperrors.KindInvalid, "no upstream provider for connection %q", req.ConnectionID)
		}
		result, err := provider.Exchange(r.Context(), req.UpstreamCode, req.CodeVerifier, req.Nonce)
		if err != nil {
			return nil, errors.Wrap(err, "[Server.stepPayload] upstream exchange")
		}
		return auth.FederatedStep{ConnectionID: req.ConnectionID, Result: *result}, nil
	}
	return auth.UnknownStep{Name: req.Type}, nil
}

type authorizationResponse struct {
	RedirectURI  string                  `json:"redirect_uri"`
	RedirectTo   string                  `json:"redirect_to,omitempty"`
	ResponseMode oauth2.ResponseModeType `json:"response_mode,omitempty"`
	State        string                  `json:"state,omitempty"`
	SessionID    string                  `json:"session_id"`
	Code         string                  `json:"code,omitempty"`
	Tokens       *oauth2.TokenResponse   `json:"tokens,omitempty"`
}

type stepResponse struct {
	LoginSessionID string                 `json:"login_session_id"`
	State          loginsessions.State    `json:"state"`
	Step           loginsessions.Step     `json:"step"`
	Authorization  *authorizationResponse `json:"authorization,omitempty"`
}

// SubmitStep applies one step to a login session.
func (s *Server) SubmitStep() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req stepRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		payload, err := s.stepPayload(r, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		res, err := s.services.Auth.Step(r.Context(), auth.StepRequest{
			TenantID:       req.TenantID,
			LoginSessionID: r.PathValue("id"),
			CSRFToken:      req.CSRFToken,
			Payload:        payload,
			Device:         deviceOf(r),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		resp := stepResponse{LoginSessionID: res.LoginSessionID, State: res.State, Step: res.Step}
		if a := res.Authorization; a != nil {
			resp.Authorization = &authorizationResponse{
				RedirectURI:  a.RedirectURI,
				RedirectTo:   redirectLocation(a),
				ResponseMode: a.ResponseMode,
				State:        a.State,
				SessionID:    a.SessionID,
				Code:         a.Code,
				Tokens:       a.Tokens,
			}
			w.Header().Set("Cache-Control", "no-store")
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func deviceOf(r *http.Request) sessions.Device {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return sessions.Device{UserAgent: r.UserAgent(), IP: ip}
}

// redirectLocation builds the URL the user agent is sent to. form_post has
// no location; the caller posts the fields itself.
func redirectLocation(a *auth.Authorization) string {
	u, err := url.Parse(a.RedirectURI)
	if err != nil || a.ResponseMode == oauth2.FormPostResponseMode {
		return ""
	}
	params := url.Values{}
	if a.Code != "" {
		params.Set("code", a.Code)
	}
	if t := a.Tokens; t != nil {
		if t.AccessToken != nil {
			params.Set("access_token", *t.AccessToken)
			params.Set("token_type", t.TokenType)
			params.Set("expires_in", strconv.Itoa(t.ExpiresIn))
		}
		if idToken := utils.Value(t.IdToken); idToken != "" {
			params.Set("id_token", idToken)
		}
	}
	if a.State != "" {
		params.Set("state", a.State)
	}

	mode := a.ResponseMode
	if mode == "" {
		mode = oauth2.QueryResponseMode
		if a.Tokens != nil {
			mode = oauth2.FragmentResponseMode
		}
	}
	if mode == oauth2.FragmentResponseMode {
		u.Fragment = params.Encode()
		return u.String()
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String()
}
