// Package auth runs login sessions: it validates authorization requests,
// drives each login through its steps and hands completed logins to the
// session manager.
package auth

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-server/codes"
	"github.com/jrsteele09/go-identity-server/connections"
	"github.com/jrsteele09/go-identity-server/credentials"
	"github.com/jrsteele09/go-identity-server/delivery"
	"github.com/jrsteele09/go-identity-server/internal/audit"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/internal/metrics"
	"github.com/jrsteele09/go-identity-server/internal/utils"
	"github.com/jrsteele09/go-identity-server/loginsessions"
	"github.com/jrsteele09/go-identity-server/oauth2"
	"github.com/jrsteele09/go-identity-server/rbac"
	"github.com/jrsteele09/go-identity-server/resolver"
	"github.com/jrsteele09/go-identity-server/sessions"
	"github.com/jrsteele09/go-identity-server/token"
	"github.com/jrsteele09/go-identity-server/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	csrfTokenBytes = 32

	payloadLoginSessionID = "login_session_id"
	payloadSessionID      = "session_id"

	authMethodPassword      = "pwd"
	authMethodOTP           = "otp"
	authMethodFederated     = "fed"
	authMethodImpersonation = "impersonation"
	authMethodSSO           = "sso"
)

// Dependencies are the collaborators of the Service.
type Dependencies struct {
	Repos       Repos
	Resolver    *resolver.Resolver
	Credentials *credentials.Store
	Codes       *codes.Engine
	Sessions    *sessions.Manager
	Tokens      *token.Manager
	Permissions rbac.PermissionResolver
	Sender      delivery.Sender
	Reporter    audit.Reporter
}

// Service drives login sessions and the token endpoint.
type Service struct {
	Dependencies
	validator       *Validator
	logger          zerolog.Logger
	nowTime         func() time.Time
	loginSessionTTL time.Duration
	otpTTL          time.Duration
	authCodeTTL     time.Duration
	maxAttempts     int
	requirePKCE     bool
}

type ServiceOption func(*Service)

func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTimeouts sets the lifetimes of login sessions, one-time login codes
// and authorization codes.
func WithTimeouts(loginSession, otp, authCode time.Duration) ServiceOption {
	return func(s *Service) {
		s.loginSessionTTL = loginSession
		s.otpTTL = otp
		s.authCodeTTL = authCode
	}
}

// WithMaxStepAttempts sets how many failed password or code attempts a
// login session tolerates before it fails.
func WithMaxStepAttempts(n int) ServiceOption {
	return func(s *Service) {
		s.maxAttempts = n
	}
}

// WithRequirePKCE makes PKCE mandatory for confidential clients too.
func WithRequirePKCE(required bool) ServiceOption {
	return func(s *Service) {
		s.requirePKCE = required
	}
}

func NewService(deps Dependencies, options ...ServiceOption) (*Service, error) {
	switch {
	case deps.Repos.Users == nil:
		return nil, errors.New("[auth.NewService] Users repo is required")
	case deps.Repos.LoginSessions == nil:
		return nil, errors.New("[auth.NewService] LoginSessions repo is required")
	case deps.Repos.Organizations == nil:
		return nil, errors.New("[auth.NewService] Organizations repo is required")
	case deps.Resolver == nil:
		return nil, errors.New("[auth.NewService] resolver is required")
	case deps.Credentials == nil:
		return nil, errors.New("[auth.NewService] credential store is required")
	case deps.Codes == nil:
		return nil, errors.New("[auth.NewService] code engine is required")
	case deps.Sessions == nil:
		return nil, errors.New("[auth.NewService] session manager is required")
	case deps.Tokens == nil:
		return nil, errors.New("[auth.NewService] token manager is required")
	case deps.Permissions == nil:
		return nil, errors.New("[auth.NewService] permission resolver is required")
	case deps.Sender == nil:
		return nil, errors.New("[auth.NewService] sender is required")
	}
	if deps.Reporter == nil {
		deps.Reporter = audit.Nop{}
	}
	s := &Service{
		Dependencies:    deps,
		validator:       NewValidator(),
		logger:          zerolog.Nop(),
		nowTime:         time.Now,
		loginSessionTTL: 30 * time.Minute,
		otpTTL:          5 * time.Minute,
		authCodeTTL:     time.Minute,
		maxAttempts:     5,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

type BeginRequest struct {
	// TenantID is optional; without it the tenant is the client's.
	TenantID string
	Params   loginsessions.AuthParams
}

type BeginResult struct {
	TenantID       string
	LoginSessionID string
	CSRFToken      string
	ExpiresAt      time.Time
	Connections    []connections.Option
}

// Begin validates an authorization request and opens a pending login session
// for it.
func (s *Service) Begin(ctx context.Context, req BeginRequest) (*BeginResult, error) {
	cc, err := s.Resolver.Resolve(ctx, req.Params.ClientID, req.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Begin]")
	}
	params := req.Params
	normaliseParameters(&params)
	if err := s.validator.validateParametersWithClient(&params, cc.Client, s.requirePKCE); err != nil {
		return nil, err
	}
	if params.Organization != "" {
		if _, err := s.Repos.Organizations.GetOrganization(ctx, cc.Tenant.ID, params.Organization); err != nil {
			return nil, errors.Wrap(err, "[Service.Begin] GetOrganization")
		}
	}

	csrf, err := utils.RandomURLToken(csrfTokenBytes)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Begin] csrf")
	}
	now := s.nowTime()
	ls := &loginsessions.LoginSession{
		ID:         uuid.New().String(),
		TenantID:   cc.Tenant.ID,
		AuthParams: params,
		State:      loginsessions.StatePending,
		StateData:  loginsessions.StateData{Step: loginsessions.StepIdentifier},
		CSRFToken:  csrf,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(s.loginSessionTTL),
	}
	if params.LoginHint != "" {
		ls.StateData.Identifier = NormaliseIdentifier(params.LoginHint)
	}
	if err := s.Repos.LoginSessions.Create(ctx, ls); err != nil {
		return nil, errors.Wrap(err, "[Service.Begin] Create")
	}
	metrics.RecordTransition(string(loginsessions.StatePending), "")
	return &BeginResult{
		TenantID:       ls.TenantID,
		LoginSessionID: ls.ID,
		CSRFToken:      csrf,
		ExpiresAt:      ls.ExpiresAt,
		Connections:    cc.Options(),
	}, nil
}

type StepRequest struct {
	TenantID       string
	LoginSessionID string
	CSRFToken      string
	Payload        StepPayload
	Device         sessions.Device
}

// StepResult describes the login session after a step. Authorization is set
// once the login has completed.
type StepResult struct {
	LoginSessionID string
	State          loginsessions.State
	Step           loginsessions.Step
	Authorization  *Authorization
}

// Authorization is what the client receives at its redirect URI.
type Authorization struct {
	RedirectURI  string
	ResponseMode oauth2.ResponseModeType
	State        string
	SessionID    string
	Code         string                // response_type=code
	Tokens       *oauth2.TokenResponse // direct response types
}

// stepContext carries what a step handler works with.
type stepContext struct {
	cc  *resolver.ClientContext
	ls  *loginsessions.LoginSession
	now time.Time
}

// Step applies one input to a pending login session. A step either leaves
// the session as it was and returns an error, or moves it forward and
// persists it with a version check so concurrent submissions cannot both
// succeed.
func (s *Service) Step(ctx context.Context, req StepRequest) (*StepResult, error) {
	ls, err := s.Repos.LoginSessions.Get(ctx, req.TenantID, req.LoginSessionID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Step] Get")
	}
	if subtle.ConstantTimeCompare([]byte(req.CSRFToken), []byte(ls.CSRFToken)) != 1 {
		return nil, ErrCSRFMismatch
	}

	now := s.nowTime()
	if ls.State == loginsessions.StatePending && ls.EffectiveState(now) == loginsessions.StateExpired {
		s.expire(ctx, ls, now)
		return nil, loginsessions.ErrExpired
	}
	if ls.State.Terminal() {
		return nil, s.terminalError(ctx, ls, req.Payload)
	}

	cc, err := s.Resolver.Resolve(ctx, ls.AuthParams.ClientID, ls.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Step]")
	}
	sc := &stepContext{cc: cc, ls: ls, now: now}

	var changed bool
	switch p := req.Payload.(type) {
	case IdentifierStep:
		changed, err = s.identifierStep(ctx, sc, p)
	case PasswordStep:
		changed, err = s.passwordStep(ctx, sc, p)
	case CodeStep:
		changed, err = s.codeStep(ctx, sc, p)
	case ResendCodeStep:
		changed, err = s.resendCodeStep(ctx, sc)
	case FederatedStep:
		changed, err = s.federatedStep(ctx, sc, p)
	case LinkStep:
		changed, err = s.linkStep(ctx, sc, p)
	case ImpersonateStep:
		changed, err = s.impersonateStep(ctx, sc, p)
	case ContinueSessionStep:
		changed, err = s.continueSessionStep(ctx, sc, p)
	default:
		return nil, ErrUnknownStep
	}
	if !changed {
		if err != nil {
			s.logStepFailure(ls, req.Payload, err)
		}
		return nil, err
	}

	ls.UpdatedAt = now
	if uerr := s.Repos.LoginSessions.Update(ctx, ls); uerr != nil {
		return nil, errors.Wrap(uerr, "[Service.Step] Update")
	}
	if ls.State.Terminal() {
		metrics.RecordTransition(string(ls.State), ls.StateData.AuthMethod)
	}
	if err != nil {
		s.logStepFailure(ls, req.Payload, err)
		return nil, err
	}

	result := &StepResult{LoginSessionID: ls.ID, State: ls.State, Step: ls.StateData.Step}
	if ls.State == loginsessions.StateCompleted {
		result.Authorization, err = s.finish(ctx, cc, ls, req.Device)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Get returns a login session with expiry applied.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*loginsessions.LoginSession, error) {
	ls, err := s.Repos.LoginSessions.Get(ctx, tenantID, id)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Get]")
	}
	now := s.nowTime()
	if ls.State == loginsessions.StatePending && ls.EffectiveState(now) == loginsessions.StateExpired {
		s.expire(ctx, ls, now)
		ls.State = loginsessions.StateExpired
	}
	return ls, nil
}

// SweepExpired marks every overdue pending login session expired and purges
// expired codes.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.nowTime()
	n, err := s.Repos.LoginSessions.ExpirePending(ctx, now)
	if err != nil {
		return 0, errors.Wrap(err, "[Service.SweepExpired] ExpirePending")
	}
	metrics.RecordSweep(n)
	if _, err := s.Codes.Purge(ctx, now); err != nil {
		return n, errors.Wrap(err, "[Service.SweepExpired]")
	}
	return n, nil
}

// expire records a lazily detected expiry. Losing the write to a concurrent
// update is fine: the row is expired either way once read again.
func (s *Service) expire(ctx context.Context, ls *loginsessions.LoginSession, now time.Time) {
	if err := ls.Transition(loginsessions.StateExpired, "", now); err != nil {
		return
	}
	if err := s.Repos.LoginSessions.Update(ctx, ls); err != nil {
		s.logger.Debug().Err(err).Str("login_session_id", ls.ID).Msg("recording lazy expiry")
		return
	}
	metrics.RecordTransition(string(loginsessions.StateExpired), "")
}

// terminalError reports why a step cannot run on a finished login session.
// A code resubmitted after completion reports the code's own status.
func (s *Service) terminalError(ctx context.Context, ls *loginsessions.LoginSession, payload StepPayload) error {
	if p, ok := payload.(CodeStep); ok && ls.State == loginsessions.StateCompleted {
		err := s.Codes.Check(ctx, codes.RedeemRequest{
			TenantID: ls.TenantID,
			Type:     codes.TypeOTP,
			Value:    strings.TrimSpace(p.Code),
			Subject:  loginCodeSubject(ls.ID, ls.StateData.Identifier),
		})
		if err != nil {
			return err
		}
	}
	return loginsessions.ErrorForState(ls.State)
}

// failedAttempt counts a rejected credential and fails the session once the
// limit is reached. The session is always changed.
func (s *Service) failedAttempt(ctx context.Context, sc *stepContext, detail string) {
	sc.ls.StateData.Attempts++
	s.Reporter.Report(ctx, audit.Event{
		Type:      audit.EventLoginFailed,
		TenantID:  sc.ls.TenantID,
		UserID:    sc.ls.StateData.UserID,
		ClientID:  sc.ls.AuthParams.ClientID,
		SessionID: sc.ls.ID,
		Detail:    detail,
		At:        sc.now,
	})
	if sc.ls.StateData.Attempts >= s.maxAttempts {
		_ = sc.ls.Transition(loginsessions.StateFailed, loginsessions.FailureTooManyAttempts, sc.now)
	}
}

// fail moves the session to failed with a reason.
func (s *Service) fail(ctx context.Context, sc *stepContext, reason string) {
	_ = sc.ls.Transition(loginsessions.StateFailed, reason, sc.now)
	s.Reporter.Report(ctx, audit.Event{
		Type:      audit.EventLoginFailed,
		TenantID:  sc.ls.TenantID,
		UserID:    sc.ls.StateData.UserID,
		ClientID:  sc.ls.AuthParams.ClientID,
		SessionID: sc.ls.ID,
		Detail:    reason,
		At:        sc.now,
	})
}

// authenticated records the subject and completes the session.
func (s *Service) authenticated(sc *stepContext, user *users.User, method string, identity users.IdentityRef) {
	sc.ls.UserID = user.ID
	sc.ls.StateData.UserID = user.ID
	sc.ls.StateData.AuthMethod = method
	sc.ls.StateData.Identity = identity
	sc.ls.StateData.Step = loginsessions.StepDone
	sc.ls.StateData.LinkCandidate = nil
	_ = sc.ls.Transition(loginsessions.StateCompleted, "", sc.now)
}

// finish turns a completed login session into a session and the response
// for the client.
func (s *Service) finish(ctx context.Context, cc *resolver.ClientContext, ls *loginsessions.LoginSession, device sessions.Device) (*Authorization, error) {
	completion, err := s.Sessions.Complete(ctx, ls, cc.Client, device)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Step] Complete")
	}
	session := completion.Session
	if err := s.Repos.LoginSessions.AttachSession(ctx, ls.TenantID, ls.ID, session.ID); err != nil {
		return nil, errors.Wrap(err, "[Service.Step] AttachSession")
	}
	ls.SessionID = session.ID

	authz := &Authorization{
		RedirectURI:  ls.AuthParams.RedirectURI,
		ResponseMode: ls.AuthParams.ResponseMode,
		State:        ls.AuthParams.State,
		SessionID:    session.ID,
	}
	if !ls.AuthParams.ResponseType.IsDirect() {
		issued, err := s.Codes.Issue(ctx, codes.IssueRequest{
			TenantID:      ls.TenantID,
			Type:          codes.TypeAuthorization,
			Subject:       cc.Client.ID,
			TTL:           s.authCodeTTL,
			CorrelationID: ls.ID,
			Payload: map[string]string{
				payloadLoginSessionID: ls.ID,
				payloadSessionID:      session.ID,
			},
		})
		if err != nil {
			return nil, errors.Wrap(err, "[Service.Step] authorization code")
		}
		authz.Code = issued.Value
		return authz, nil
	}

	user, err := s.Repos.Users.GetByID(ctx, ls.TenantID, ls.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Step] GetByID")
	}
	grant := tokenGrant{
		tenantID:     ls.TenantID,
		client:       cc.Client,
		user:         user,
		session:      session,
		scope:        ls.AuthParams.Scope,
		organization: ls.AuthParams.Organization,
		nonce:        ls.AuthParams.Nonce,
		accessToken:  ls.AuthParams.ResponseType != oauth2.IDTokenResponseType,
		idToken:      ls.AuthParams.ResponseType != oauth2.TokenResponseType,
	}
	if completion.Refresh != nil {
		grant.refreshToken = completion.Refresh.Value
	}
	authz.Tokens, err = s.issueTokens(ctx, grant)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Step]")
	}
	return authz, nil
}

func (s *Service) logStepFailure(ls *loginsessions.LoginSession, payload StepPayload, err error) {
	event := s.logger.Info()
	if apperrors.KindOf(err) == apperrors.KindStorage {
		event = s.logger.Error()
	}
	name := "nil"
	if payload != nil {
		name = payload.stepName()
	}
	event.Err(err).
		Str("tenant_id", ls.TenantID).
		Str("login_session_id", ls.ID).
		Str("step", name).
		Str("state", string(ls.State)).
		Int("attempts", ls.StateData.Attempts).
		Msg("login step rejected")
}
