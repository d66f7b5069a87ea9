package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-identity-server/auth"
	"github.com/jrsteele09/go-identity-server/clients"
	fakeclientrepo "github.com/jrsteele09/go-identity-server/clients/fakerepo"
	"github.com/jrsteele09/go-identity-server/codes"
	fakecoderepo "github.com/jrsteele09/go-identity-server/codes/repofake"
	"github.com/jrsteele09/go-identity-server/connections"
	fakeconnectionrepo "github.com/jrsteele09/go-identity-server/connections/repofake"
	"github.com/jrsteele09/go-identity-server/credentials"
	fakecredentialrepo "github.com/jrsteele09/go-identity-server/credentials/repofake"
	"github.com/jrsteele09/go-identity-server/delivery"
	"github.com/jrsteele09/go-identity-server/federation"
	"github.com/jrsteele09/go-identity-server/internal/audit"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/loginsessions"
	fakeloginsessionrepo "github.com/jrsteele09/go-identity-server/loginsessions/repofake"
	"github.com/jrsteele09/go-identity-server/oauth2"
	"github.com/jrsteele09/go-identity-server/rbac"
	fakerbacrepo "github.com/jrsteele09/go-identity-server/rbac/repofake"
	"github.com/jrsteele09/go-identity-server/resolver"
	"github.com/jrsteele09/go-identity-server/sessions"
	fakesessionrepo "github.com/jrsteele09/go-identity-server/sessions/repofake"
	"github.com/jrsteele09/go-identity-server/tenants"
	tenantrepofakes "github.com/jrsteele09/go-identity-server/tenants/repofakes"
	"github.com/jrsteele09/go-identity-server/token"
	"github.com/jrsteele09/go-identity-server/token/refresh"
	refreshrepofake "github.com/jrsteele09/go-identity-server/token/refresh/repofake"
	"github.com/jrsteele09/go-identity-server/users"
	fakeuserrepo "github.com/jrsteele09/go-identity-server/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	secretStr         = "test-signing-secret"
	issuer            = "https://tenant-1.auth.example.com"
	audience          = "api"
	testTenantID      = "tenant-1"
	testClientID      = "web"
	testClientSecret  = "web-secret"
	publicClientID    = "spa"
	portalClientID    = "portal"
	serviceClientID   = "reporting"
	serviceSecret     = "reporting-secret"
	testUserEmail     = "john.doe@example.com"
	testUserPassword  = "Password123"
	testRedirectURI   = "http://localhost:3000/callback"
	testState         = "random-state-value"
	testCodeChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	testCodeVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testNonce         = "random-nonce-value"
)

type testFixture struct {
	service     *auth.Service
	userRepo    *fakeuserrepo.FakeUserRepo
	loginRepo   *fakeloginsessionrepo.FakeLoginSessionRepo
	sessionRepo *fakesessionrepo.FakeSessionRepo
	rbacRepo    *fakerbacrepo.FakeRBACRepo
	credentials *credentials.Store
	tokens      *token.Manager
	sender      *delivery.Recorder
	recorder    *audit.Recorder
	now         time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	ctx := context.Background()
	f := &testFixture{
		userRepo:    fakeuserrepo.NewFakeUserRepo(),
		loginRepo:   fakeloginsessionrepo.NewFakeLoginSessionRepo(),
		sessionRepo: fakesessionrepo.NewFakeSessionRepo(),
		rbacRepo:    fakerbacrepo.NewFakeRBACRepo(),
		sender:      &delivery.Recorder{},
		recorder:    &audit.Recorder{},
		now:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	nowFunc := func() time.Time { return f.now }

	tenantRepo := tenantrepofakes.NewFakeTenantRepo()
	require.NoError(t, tenantRepo.Upsert(ctx, &tenants.Tenant{
		ID:            testTenantID,
		Name:          "Tenant One",
		Issuer:        issuer,
		Audience:      audience,
		SigningSecret: secretStr,
	}))

	clientRepo := fakeclientrepo.NewFakeClientRepo()
	for _, c := range []*clients.Client{
		{
			ID:           testClientID,
			TenantID:     testTenantID,
			Type:         clients.ClientTypeConfidential,
			Secret:       testClientSecret,
			RedirectURIs: []string{testRedirectURI},
			GrantTypes:   []oauth2.GrantType{oauth2.AuthorizationCodeGrant, oauth2.RefreshTokenCodeGrant, oauth2.ImplicitGrant},
			Scopes:       []string{"openid", "profile", "email", "offline_access"},
			RefreshToken: clients.RefreshTokenPolicy{Rotating: true},
		},
		{
			ID:            publicClientID,
			TenantID:      testTenantID,
			Type:          clients.ClientTypePublic,
			RedirectURIs:  []string{testRedirectURI},
			GrantTypes:    []oauth2.GrantType{oauth2.AuthorizationCodeGrant},
			Scopes:        []string{"openid", "email"},
			ConnectionIDs: []string{"email", "sms"},
		},
		{
			ID:           portalClientID,
			TenantID:     testTenantID,
			Type:         clients.ClientTypeConfidential,
			Secret:       "portal-secret",
			RedirectURIs: []string{testRedirectURI},
			GrantTypes:   []oauth2.GrantType{oauth2.AuthorizationCodeGrant},
			Scopes:       []string{"openid", "email"},
		},
		{
			ID:         serviceClientID,
			TenantID:   testTenantID,
			Type:       clients.ClientTypeConfidential,
			Secret:     serviceSecret,
			GrantTypes: []oauth2.GrantType{oauth2.ClientCredentialsCodeGrant},
			Scopes:     []string{"reports:read"},
		},
	} {
		require.NoError(t, clientRepo.Upsert(ctx, c))
	}

	connectionRepo := fakeconnectionrepo.NewFakeConnectionRepo()
	for _, c := range []*connections.Connection{
		{ID: "db", TenantID: testTenantID, Name: "Username-Password", Kind: connections.KindPassword},
		{ID: "email", TenantID: testTenantID, Name: "Email code", Kind: connections.KindEmail},
		{ID: "sms", TenantID: testTenantID, Name: "SMS code", Kind: connections.KindSMS},
		{ID: "google", TenantID: testTenantID, Name: "Google", Kind: "google-oauth2"},
	} {
		require.NoError(t, connectionRepo.Upsert(ctx, c))
	}

	res, err := resolver.New(clientRepo, tenantRepo, connectionRepo)
	require.NoError(t, err)

	f.credentials, err = credentials.NewStore(fakecredentialrepo.NewFakeCredentialRepo(), credentials.WithNowTime(nowFunc))
	require.NoError(t, err)

	engine, err := codes.NewEngine(fakecoderepo.NewFakeCodeRepo(), codes.WithNowTime(nowFunc))
	require.NoError(t, err)

	refreshManager, err := refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), f.recorder, refresh.WithNowTime(nowFunc))
	require.NoError(t, err)
	sessionManager, err := sessions.NewManager(f.sessionRepo, refreshManager, f.recorder, sessions.WithNowTime(nowFunc))
	require.NoError(t, err)

	f.tokens, err = token.New(tenantRepo, token.WithNowFunc(nowFunc))
	require.NoError(t, err)

	permissions, err := rbac.NewResolver(f.rbacRepo)
	require.NoError(t, err)

	f.service, err = auth.NewService(auth.Dependencies{
		Repos:       auth.Repos{Users: f.userRepo, LoginSessions: f.loginRepo, Organizations: f.rbacRepo},
		Resolver:    res,
		Credentials: f.credentials,
		Codes:       engine,
		Sessions:    sessionManager,
		Tokens:      f.tokens,
		Permissions: permissions,
		Sender:      f.sender,
		Reporter:    f.recorder,
	}, auth.WithNowTime(nowFunc), auth.WithMaxStepAttempts(3))
	require.NoError(t, err)
	return f
}

func (f *testFixture) seedUser(t *testing.T, email, password string) *users.User {
	t.Helper()
	ctx := context.Background()
	user := &users.User{
		TenantID:      testTenantID,
		Email:         email,
		EmailVerified: true,
		FirstName:     "John",
		LastName:      "Doe",
		CreatedAt:     f.now,
	}
	user.AddIdentity(users.Identity{ConnectionID: "db", Provider: connections.KindPassword, SubjectID: email})
	require.NoError(t, f.userRepo.Upsert(ctx, user))
	if password != "" {
		require.NoError(t, f.credentials.SetPassword(ctx, testTenantID, user.ID, password))
	}
	return user
}

type login struct {
	id   string
	csrf string
}

func (f *testFixture) begin(t *testing.T, clientID string, mutate func(*loginsessions.AuthParams)) login {
	t.Helper()
	params := loginsessions.AuthParams{
		ClientID:            clientID,
		RedirectURI:         testRedirectURI,
		ResponseType:        oauth2.CodeResponseType,
		Scope:               "openid email",
		State:               testState,
		CodeChallenge:       testCodeChallenge,
		CodeChallengeMethod: oauth2.CodeMethodTypeS256,
	}
	if mutate != nil {
		mutate(&params)
	}
	res, err := f.service.Begin(context.Background(), auth.BeginRequest{TenantID: testTenantID, Params: params})
	require.NoError(t, err)
	return login{id: res.LoginSessionID, csrf: res.CSRFToken}
}

func (f *testFixture) step(l login, payload auth.StepPayload) (*auth.StepResult, error) {
	return f.service.Step(context.Background(), auth.StepRequest{
		TenantID:       testTenantID,
		LoginSessionID: l.id,
		CSRFToken:      l.csrf,
		Payload:        payload,
	})
}

func (f *testFixture) loadLogin(t *testing.T, l login) *loginsessions.LoginSession {
	t.Helper()
	ls, err := f.loginRepo.Get(context.Background(), testTenantID, l.id)
	require.NoError(t, err)
	return ls
}

// passwordLogin runs a full password login and returns the completed step.
func (f *testFixture) passwordLogin(t *testing.T, clientID, email, password string, mutate func(*loginsessions.AuthParams)) *auth.StepResult {
	t.Helper()
	l := f.begin(t, clientID, mutate)
	_, err := f.step(l, auth.IdentifierStep{Identifier: email})
	require.NoError(t, err)
	res, err := f.step(l, auth.PasswordStep{Password: password})
	require.NoError(t, err)
	require.Equal(t, loginsessions.StateCompleted, res.State)
	require.NotNil(t, res.Authorization)
	return res
}

func (f *testFixture) exchange(code, clientID, secret string) (*oauth2.TokenResponse, error) {
	return f.service.Exchange(context.Background(), auth.ExchangeRequest{
		TenantID:     testTenantID,
		ClientID:     clientID,
		ClientSecret: secret,
		Code:         code,
		RedirectURI:  testRedirectURI,
		CodeVerifier: testCodeVerifier,
	})
}

func TestBeginValidatesAgainstClient(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*loginsessions.AuthParams)
		wantErr error
	}{
		{"unregistered redirect", func(p *loginsessions.AuthParams) { p.RedirectURI = "http://evil.example.com/cb" }, oauth2.ErrInvalidRedirectURI},
		{"unsupported response type", func(p *loginsessions.AuthParams) { p.ResponseType = "code token" }, oauth2.ErrInvalidResponseType},
		{"scope not allowed", func(p *loginsessions.AuthParams) { p.Scope = "openid admin" }, oauth2.ErrInvalidScope},
		{"direct response without nonce", func(p *loginsessions.AuthParams) { p.ResponseType = oauth2.IDTokenTokenResponseType }, auth.ErrNonceRequired},
		{"unknown prompt", func(p *loginsessions.AuthParams) { p.Prompt = "sometimes" }, auth.ErrInvalidPrompt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := loginsessions.AuthParams{
				ClientID:            testClientID,
				RedirectURI:         testRedirectURI,
				Scope:               "openid",
				State:               testState,
				CodeChallenge:       testCodeChallenge,
				CodeChallengeMethod: oauth2.CodeMethodTypeS256,
			}
			tt.mutate(&params)
			_, err := f.service.Begin(ctx, auth.BeginRequest{TenantID: testTenantID, Params: params})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("public client needs PKCE", func(t *testing.T) {
		_, err := f.service.Begin(ctx, auth.BeginRequest{TenantID: testTenantID, Params: loginsessions.AuthParams{
			ClientID:    publicClientID,
			RedirectURI: testRedirectURI,
			Scope:       "openid",
		}})
		require.ErrorIs(t, err, oauth2.ErrPKCERequired)
	})

	t.Run("offers the client's connections", func(t *testing.T) {
		res, err := f.service.Begin(ctx, auth.BeginRequest{Params: loginsessions.AuthParams{
			ClientID:            publicClientID,
			RedirectURI:         testRedirectURI,
			Scope:               "openid",
			CodeChallenge:       testCodeChallenge,
			CodeChallengeMethod: oauth2.CodeMethodTypeS256,
		}})
		require.NoError(t, err)
		require.Len(t, res.Connections, 2)
		require.Equal(t, "email", res.Connections[0].ConnectionID)
		require.NotEmpty(t, res.CSRFToken)
		require.Equal(t, f.now.Add(30*time.Minute), res.ExpiresAt)

		ls, err := f.loginRepo.Get(ctx, testTenantID, res.LoginSessionID)
		require.NoError(t, err)
		require.Equal(t, loginsessions.StatePending, ls.State)
		require.Equal(t, loginsessions.StepIdentifier, ls.StateData.Step)
	})
}

func TestBeginRejectsUnknownOrganization(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.service.Begin(ctx, auth.BeginRequest{TenantID: testTenantID, Params: loginsessions.AuthParams{
		ClientID:            testClientID,
		RedirectURI:         testRedirectURI,
		Scope:               "openid",
		CodeChallenge:       testCodeChallenge,
		CodeChallengeMethod: oauth2.CodeMethodTypeS256,
		Organization:        "ghost",
	}})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	n, err := f.loginRepo.ExpirePending(ctx, f.now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Zero(t, n, "no login session is opened")
}

func TestOrganizationLoginCarriesScopedPermissions(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, testUserEmail, testUserPassword)

	require.NoError(t, f.rbacRepo.UpsertOrganization(ctx, rbac.Organization{ID: "o1", TenantID: testTenantID, Name: "o1"}))
	require.NoError(t, f.rbacRepo.Grant(ctx, rbac.PermissionGrant{
		TenantID:   testTenantID,
		UserID:     user.ID,
		Permission: rbac.PermissionReadUsers,
		Scope:      rbac.InOrganization("o1"),
	}))

	res := f.passwordLogin(t, testClientID, testUserEmail, testUserPassword, func(p *loginsessions.AuthParams) {
		p.Organization = "o1"
		p.Scope = "openid offline_access"
	})
	tokens, err := f.exchange(res.Authorization.Code, testClientID, testClientSecret)
	require.NoError(t, err)
	require.NotNil(t, tokens.RefreshToken)

	verified, err := f.tokens.Verify(ctx, *tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "o1", verified.Organization)
	require.Contains(t, verified.Permissions, string(rbac.PermissionReadUsers))
}

func TestPasswordLoginAndExchange(t *testing.T) {
	f := setupTestFixture(t)
	user := f.seedUser(t, testUserEmail, testUserPassword)

	l := f.begin(t, testClientID, func(p *loginsessions.AuthParams) {
		p.Scope = "openid email offline_access"
		p.Nonce = testNonce
	})
	res, err := f.step(l, auth.IdentifierStep{Identifier: "  John.Doe@Example.com "})
	require.NoError(t, err)
	require.Equal(t, loginsessions.StepAwaitingPassword, res.Step)

	_, err = f.step(l, auth.PasswordStep{Password: "WrongPassword1"})
	require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	ls := f.loadLogin(t, l)
	require.Equal(t, loginsessions.StatePending, ls.State)
	require.Equal(t, 1, ls.StateData.Attempts)

	res, err = f.step(l, auth.PasswordStep{Password: testUserPassword})
	require.NoError(t, err)
	require.Equal(t, loginsessions.StateCompleted, res.State)
	authz := res.Authorization
	require.NotEmpty(t, authz.Code)
	require.Equal(t, testState, authz.State)
	require.Equal(t, testRedirectURI, authz.RedirectURI)
	require.Equal(t, oauth2.QueryResponseMode, authz.ResponseMode)

	ls = f.loadLogin(t, l)
	require.Equal(t, user.ID, ls.UserID)
	require.Equal(t, authz.SessionID, ls.SessionID)

	tokens, err := f.exchange(authz.Code, testClientID, testClientSecret)
	require.NoError(t, err)
	require.NotNil(t, tokens.AccessToken)
	require.NotNil(t, tokens.IdToken)
	require.NotNil(t, tokens.RefreshToken)
	require.Equal(t, "Bearer", tokens.TokenType)
	require.Equal(t, 3600, tokens.ExpiresIn)

	verified, err := f.tokens.Verify(context.Background(), *tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, verified.Subject)
	require.Equal(t, authz.SessionID, verified.SessionID)

	stored, err := f.userRepo.GetByID(context.Background(), testTenantID, user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.LoginCount)

	_, err = f.exchange(authz.Code, testClientID, testClientSecret)
	require.ErrorIs(t, err, apperrors.ErrAlreadyUsed)
}

func TestExchangeRejectsWrongClientAndVerifier(t *testing.T) {
	f := setupTestFixture(t)
	f.seedUser(t, testUserEmail, testUserPassword)
	ctx := context.Background()

	res := f.passwordLogin(t, testClientID, testUserEmail, testUserPassword, nil)
	_, err := f.exchange(res.Authorization.Code, testClientID, "wrong-secret")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredential)

	res = f.passwordLogin(t, testClientID, testUserEmail, testUserPassword, nil)
	_, err = f.exchange(res.Authorization.Code, portalClientID, "portal-secret")
	require.ErrorIs(t, err, apperrors.ErrMismatch, "codes are bound to the client they were issued to")

	res = f.passwordLogin(t, testClientID, testUserEmail, testUserPassword, nil)
	_, err = f.service.Exchange(ctx, auth.ExchangeRequest{
		TenantID:     testTenantID,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		Code:         res.Authorization.Code,
		RedirectURI:  testRedirectURI,
		CodeVerifier: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	})
	require.ErrorIs(t, err, auth.ErrPKCEMismatch)

	res = f.passwordLogin(t, testClientID, testUserEmail, testUserPassword, nil)
	_, err = f.service.Exchange(ctx, auth.ExchangeRequest{
		TenantID:     testTenantID,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		Code:         res.Authorization.Code,
		RedirectURI:  "http://localhost:3000/other",
		CodeVerifier: testCodeVerifier,
	})
	require.ErrorIs(t, err, auth.ErrRedirectMismatch)

	res = f.passwordLogin(t, testClientID, testUserEmail, testUserPassword, nil)
	f.now = f.now.Add(2 * time.Minute)
	_, err = f.exchange(res.Authorization.Code, testClientID, testClientSecret)
	require.ErrorIs(t, err, apperrors.ErrExpired)
}

func TestPasswordAttemptsExhausted(t *testing.T) {
	f := setupTestFixture(t)
	f.seedUser(t, testUserEmail, testUserPassword)

	l := f.begin(t, testClientID, nil)
	_, err := f.step(l, auth.IdentifierStep{Identifier: testUserEmail})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.step(l, auth.PasswordStep{Password: "WrongPassword1"})
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	}
	ls := f.loadLogin(t, l)
	require.Equal(t, loginsessions.StateFailed, ls.State)
	require.Equal(t, loginsessions.FailureTooManyAttempts, ls.FailureReason)
	require.Len(t, f.recorder.OfType(audit.EventLoginFailed), 3)

	_, err = f.step(l, auth.PasswordStep{Password: testUserPassword})
	require.ErrorIs(t, err, loginsessions.ErrTerminal)
	require.Equal(t, ls.Version, f.loadLogin(t, l).Version, "terminal sessions never change")
}

func TestUnknownIdentifierCountsAsFailedAttempt(t *testing.T) {
	f := setupTestFixture(t)

	l := f.begin(t, testClientID, nil)
	_, err := f.step(l, auth.IdentifierStep{Identifier: "nobody@example.com"})
	require.NoError(t, err)
	_, err = f.step(l, auth.PasswordStep{Password: testUserPassword})
	require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	require.Equal(t, 1, f.loadLogin(t, l).StateData.Attempts)
}

func TestBlockedUserFailsLogin(t *testing.T) {
	f := setupTestFixture(t)
	user := f.seedUser(t, testUserEmail, testUserPassword)
	user.Blocked = true
	require.NoError(t, f.userRepo.Upsert(context.Background(), user))

	l := f.begin(t, testClientID, nil)
	_, err := f.step(l, auth.IdentifierStep{Identifier: testUserEmail})
	require.NoError(t, err)
	_, err = f.step(l, auth.PasswordStep{Password: testUserPassword})
	require.ErrorIs(t, err, auth.ErrUserBlocked)

	ls := f.loadLogin(t, l)
	require.Equal(t, loginsessions.StateFailed, ls.State)
	require.Equal(t, loginsessions.FailureUserBlocked, ls.FailureReason)
}

func TestEmailCodeLoginScenario(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	l := f.begin(t, publicClientID, nil)
	res, err := f.step(l, auth.IdentifierStep{Identifier: "Ana@Example.com"})
	require.NoError(t, err)
	require.Equal(t, loginsessions.StepAwaitingCode, res.Step)

	msg, ok := f.sender.Last()
	require.True(t, ok)
	require.Equal(t, "ana@example.com", msg.To)
	require.Equal(t, delivery.ChannelEmail, msg.Channel)
	require.Equal(t, delivery.PurposeLogin, msg.Purpose)
	require.Len(t, msg.Code, 6)

	_, err = f.step(l, auth.CodeStep{Code: "not-a-code"})
	require.ErrorIs(t, err, apperrors.ErrInvalid)
	require.Equal(t, 1, f.loadLogin(t, l).StateData.Attempts)

	res, err = f.step(l, auth.CodeStep{Code: msg.Code})
	require.NoError(t, err)
	require.Equal(t, loginsessions.StateCompleted, res.State)

	user, err := f.userRepo.GetByEmail(ctx, testTenantID, "ana@example.com")
	require.NoError(t, err)
	require.True(t, user.EmailVerified)
	require.Len(t, user.Identities, 1)
	require.Equal(t, connections.KindEmail, user.Identities[0].Provider)
	require.True(t, user.Identities[0].Primary)

	// a replayed code reports the code's own status
	_, err = f.step(l, auth.CodeStep{Code: msg.Code})
	require.ErrorIs(t, err, apperrors.ErrAlreadyUsed)

	tokens, err := f.exchange(res.Authorization.Code, publicClientID, "")
	require.NoError(t, err)
	require.NotNil(t, tokens.AccessToken)
	require.NotNil(t, tokens.IdToken)
	require.Nil(t, tokens.RefreshToken, "the public client may not use refresh tokens")
}

func TestSMSCodeLoginProvisionsPhoneUser(t *testing.T) {
	f := setupTestFixture(t)

	l := f.begin(t, publicClientID, nil)
	_, err := f.step(l, auth.IdentifierStep{Identifier: "+44 7700 900123"})
	require.NoError(t, err)
	msg, ok := f.sender.Last()
	require.True(t, ok)
	require.Equal(t, delivery.ChannelSMS, msg.Channel)
	require.Equal(t, "+447700900123", msg.To)

	_, err = f.step(l, auth.CodeStep{Code: msg.Code})
	require.NoError(t, err)

	user, err := f.userRepo.GetByPhone(context.Background(), testTenantID, "+447700900123")
	require.NoError(t, err)
	require.True(t, user.PhoneVerified)
}

func TestExpiredCodeCanBeResent(t *testing.T) {
	f := setupTestFixture(t)

	l := f.begin(t, publicClientID, nil)
	_, err := f.step(l, auth.IdentifierStep{Identifier: "ana@example.com"})
	require.NoError(t, err)
	first, _ := f.sender.Last()
	before := f.loadLogin(t, l)

	f.now = f.now.Add(6 * time.Minute)
	_, err = f.step(l, auth.CodeStep{Code: first.Code})
	require.ErrorIs(t, err, apperrors.ErrExpired)
	after := f.loadLogin(t, l)
	require.Equal(t, before.Version, after.Version)
	require.Equal(t, loginsessions.StepAwaitingCode, after.StateData.Step)

	_, err = f.step(l, auth.ResendCodeStep{})
	require.NoError(t, err)
	require.Len(t, f.sender.Messages(), 2)
	second, _ := f.sender.Last()

	res, err := f.step(l, auth.CodeStep{Code: second.Code})
	require.NoError(t, err)
	require.Equal(t, loginsessions.StateCompleted, res.State)
}

func TestLoginCodeIsBoundToItsLoginSession(t *testing.T) {
	f := setupTestFixture(t)

	first := f.begin(t, publicClientID, nil)
	_, err := f.step(first, auth.IdentifierStep{Identifier: "ana@example.com"})
	require.NoError(t, err)
	firstMsg, _ := f.sender.Last()

	second := f.begin(t, publicClientID, nil)
	_, err = f.step(second, auth.IdentifierStep{Identifier: "ana@example.com"})
	require.NoError(t, err)
	secondMsg, _ := f.sender.Last()

	_, err = f.step(second, auth.CodeStep{Code: firstMsg.Code})
	require.ErrorIs(t, err, apperrors.ErrInvalid)
	ls := f.loadLogin(t, second)
	require.Equal(t, loginsessions.StatePending, ls.State)
	require.Equal(t, 1, ls.StateData.Attempts)

	// the code was not burnt by the other session
	res, err := f.step(first, auth.CodeStep{Code: firstMsg.Code})
	require.NoError(t, err)
	require.Equal(t, loginsessions.StateCompleted, res.State)

	res, err = f.step(second, auth.CodeStep{Code: secondMsg.Code})
	require.NoError(t, err)
	require.Equal(t, loginsessions.StateCompleted, res.State)
}

func TestResentCodeSupersedesEarlierCode(t *testing.T) {
	f := setupTestFixture(t)

	l := f.begin(t, publicClientID, nil)
	_, err := f.step(l, auth.IdentifierStep{Identifier: "ana@example.com"})
	require.NoError(t, err)
	first, _ := f.sender.Last()

	_, err = f.step(l, auth.ResendCodeStep{})
	require.NoError(t, err)
	second, _ := f.sender.Last()
	require.NotEqual(t, first.Code, second.Code)

	_, err = f.step(l, auth.CodeStep{Code: first.Code})
	require.ErrorIs(t, err, apperrors.ErrInvalid)
	require.Equal(t, 1, f.loadLogin(t, l).StateData.Attempts)

	res, err := f.step(l, auth.CodeStep{Code: second.Code})
	require.NoError(t, err)
	require.Equal(t, loginsessions.StateCompleted, res.State)
}

func TestDeliveryFailureLeavesSessionUnchanged(t *testing.T) {
	f := setupTestFixture(t)
	l := f.begin(t, publicClientID, nil)
	before := f.loadLogin(t, l)

	f.sender.SetErr(context.DeadlineExceeded)
	_, err := f.step(l, auth.IdentifierStep{Identifier: "ana@example.com"})
	require.ErrorIs(t, err, apperrors.ErrDeliveryFailed)
	require.True(t, apperrors.Retryable(err))

	after := f.loadLogin(t, l)
	require.Equal(t, before.Version, after.Version)
	require.Equal(t, loginsessions.StepIdentifier, after.StateData.Step)

	f.sender.SetErr(nil)
	res, err := f.step(l, auth.IdentifierStep{Identifier: "ana@example.com"})
	require.NoError(t, err)
	require.Equal(t, loginsessions.StepAwaitingCode, res.Step)
}

func TestCSRFMismatch(t *testing.T) {
	f := setupTestFixture(t)
	l := f.begin(t, testClientID, nil)

	_, err := f.step(login{id: l.id, csrf: "forged"}, auth.IdentifierStep{Identifier: testUserEmail})
	require.ErrorIs(t, err, auth.ErrCSRFMismatch)
	require.Equal(t, loginsessions.StepIdentifier, f.loadLogin(t, l).StateData.Step)
}

func TestUnknownStepIsRejected(t *testing.T) {
	f := setupTestFixture(t)
	l := f.begin(t, testClientID, nil)
	before := f.loadLogin(t, l)

	_, err := f.step(l, auth.UnknownStep{Name: "webauthn"})
	require.ErrorIs(t, err, auth.ErrUnknownStep)
	require.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))

	_, err = f.step(l, auth.PasswordStep{Password: testUserPassword})
	require.ErrorIs(t, err, auth.ErrUnexpectedStep)
	require.Equal(t, before.Version, f.loadLogin(t, l).Version)
}

func TestLazyExpiry(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	l := f.begin(t, testClientID, nil)

	f.now = f.now.Add(31 * time.Minute)
	ls, err := f.service.Get(ctx, testTenantID, l.id)
	require.NoError(t, err)
	require.Equal(t, loginsessions.StateExpired, ls.State)
	require.Equal(t, loginsessions.StateExpired, f.loadLogin(t, l).State, "expiry is persisted on read")

	_, err = f.step(l, auth.IdentifierStep{Identifier: testUserEmail})
	require.ErrorIs(t, err, loginsessions.ErrExpired)
}

func TestStepOnOverdueSessionExpiresIt(t *testing.T) {
	f := setupTestFixture(t)
	l := f.begin(t, testClientID, nil)

	f.now = f.now.Add(30 * time.Minute)
	_, err := f.step(l, auth.IdentifierStep{Identifier: testUserEmail})
	require.ErrorIs(t, err, apperrors.ErrExpired)
	require.Equal(t, loginsessions.StateExpired, f.loadLogin(t, l).State)
}

func TestSweepExpired(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.seedUser(t, testUserEmail, testUserPassword)

	stale1 := f.begin(t, testClientID, nil)
	stale2 := f.begin(t, testClientID, nil)
	f.passwordLogin(t, testClientID, testUserEmail, testUserPassword, nil)

	f.now = f.now.Add(time.Hour)
	n, err := f.service.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, loginsessions.StateExpired, f.loadLogin(t, stale1).State)
	require.Equal(t, loginsessions.StateExpired, f.loadLogin(t, stale2).State)

	n, err = f.service.SweepExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestConcurrentDoubleSubmitHasOneWinner(t *testing.T) {
	f := setupTestFixture(t)
	f.seedUser(t, testUserEmail, testUserPassword)

	l := f.begin(t, testClientID, nil)
	_, err := f.step(l, auth.IdentifierStep{Identifier: testUserEmail})
	require.NoError(t, err)

	const submitters = 8
	var (
		wg      sync.WaitGroup
		results = make([]error, submitters)
	)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.step(l, auth.PasswordStep{Password: testUserPassword})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		require.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))
	}
	require.Equal(t, 1, successes)

	sessionsForUser, err := f.sessionRepo.ListByUser(context.Background(), testTenantID, f.loadLogin(t, l).UserID)
	require.NoError(t, err)
	require.Len(t, sessionsForUser, 1)
}

func googleResult(email string, verified bool) federation.Result {
	return federation.Result{
		Provider:  "google-oauth2",
		SubjectID: "google-123",
		Profile: federation.Profile{
			Email:         email,
			EmailVerified: verified,
			GivenName:     "John",
			FamilyName:    "Doe",
		},
	}
}

func TestFederatedLoginProvisionsUser(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	l := f.begin(t, testClientID, nil)
	res, err := f.step(l, auth.FederatedStep{ConnectionID: "google", Result: googleResult("new@example.com", true)})
	require.NoError(t, err)
	require.Equal(t, loginsessions.StateCompleted, res.State)

	user, err := f.userRepo.GetByIdentity(ctx, testTenantID, users.IdentityRef{Provider: "google-oauth2", SubjectID: "google-123"})
	require.NoError(t, err)
	require.Equal(t, "new@example.com", user.Email)
	require.True(t, user.Identities[0].Social)

	// the same identity logs straight back in
	l = f.begin(t, testClientID, nil)
	res, err = f.step(l, auth.FederatedStep{ConnectionID: "google", Result: googleResult("new@example.com", true)})
	require.NoError(t, err)
	require.Equal(t, user.ID, f.loadLogin(t, l).UserID)
	require.Equal(t, "fed", f.loadLogin(t, l).StateData.AuthMethod)
}

func TestFederatedLoginRequiresEnabledConnection(t *testing.T) {
	f := setupTestFixture(t)
	l := f.begin(t, publicClientID, nil)

	_, err := f.step(l, auth.FederatedStep{ConnectionID: "google", Result: googleResult("new@example.com", true)})
	require.ErrorIs(t, err, auth.ErrConnectionNotEnabled)
}

func TestAccountLinkConfirm(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	existing := f.seedUser(t, testUserEmail, testUserPassword)

	l := f.begin(t, testClientID, nil)
	res, err := f.step(l, auth.FederatedStep{ConnectionID: "google", Result: googleResult(testUserEmail, true)})
	require.NoError(t, err)
	require.Equal(t, loginsessions.StatePending, res.State)
	require.Equal(t, loginsessions.StepAwaitingLinkConfirmation, res.Step)

	_, err = f.step(l, auth.LinkStep{Confirm: true, Password: "WrongPassword1"})
	require.ErrorIs(t, err, apperrors.ErrInvalidCredential)

	res, err = f.step(l, auth.LinkStep{Confirm: true, Password: testUserPassword})
	require.NoError(t, err)
	require.Equal(t, loginsessions.StateCompleted, res.State)

	user, err := f.userRepo.GetByID(ctx, testTenantID, existing.ID)
	require.NoError(t, err)
	require.Len(t, user.Identities, 2)
	linked, ok := user.FindIdentity(users.IdentityRef{Provider: "google-oauth2", SubjectID: "google-123"})
	require.True(t, ok)
	require.False(t, linked.Primary)
}

func TestAccountLinkDecline(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	existing := f.seedUser(t, testUserEmail, testUserPassword)

	l := f.begin(t, testClientID, nil)
	_, err := f.step(l, auth.FederatedStep{ConnectionID: "google", Result: googleResult(testUserEmail, true)})
	require.NoError(t, err)

	res, err := f.step(l, auth.LinkStep{Confirm: false})
	require.NoError(t, err)
	require.Equal(t, loginsessions.StateCompleted, res.State)

	created, err := f.userRepo.GetByIdentity(ctx, testTenantID, users.IdentityRef{Provider: "google-oauth2", SubjectID: "google-123"})
	require.NoError(t, err)
	require.NotEqual(t, existing.ID, created.ID)
	require.Empty(t, created.Email)

	unchanged, err := f.userRepo.GetByID(ctx, testTenantID, existing.ID)
	require.NoError(t, err)
	require.Len(t, unchanged.Identities, 1)
}

func TestAccountLinkWithoutPasswordFails(t *testing.T) {
	f := setupTestFixture(t)
	f.seedUser(t, testUserEmail, "")

	l := f.begin(t, testClientID, nil)
	_, err := f.step(l, auth.FederatedStep{ConnectionID: "google", Result: googleResult(testUserEmail, true)})
	require.NoError(t, err)

	_, err = f.step(l, auth.LinkStep{Confirm: true, Password: testUserPassword})
	require.ErrorIs(t, err, auth.ErrUnlinkableAccount)
	ls := f.loadLogin(t, l)
	require.Equal(t, loginsessions.StateFailed, ls.State)
	require.Equal(t, loginsessions.FailureUnlinkableAccount, ls.FailureReason)
}

func TestUnverifiedFederatedEmailDoesNotLink(t *testing.T) {
	f := setupTestFixture(t)
	f.seedUser(t, testUserEmail, testUserPassword)

	l := f.begin(t, testClientID, nil)
	res, err := f.step(l, auth.FederatedStep{ConnectionID: "google", Result: googleResult(testUserEmail, false)})
	require.NoError(t, err)
	require.Equal(t, loginsessions.StateCompleted, res.State)

	created, err := f.userRepo.GetByIdentity(context.Background(), testTenantID, users.IdentityRef{Provider: "google-oauth2", SubjectID: "google-123"})
	require.NoError(t, err)
	require.Empty(t, created.Email, "an address owned by another user is not copied")
}

func (f *testFixture) grantImpersonation(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.rbacRepo.UpsertRole(ctx, rbac.Role{
		ID:          "support",
		TenantID:    testTenantID,
		Name:        "Support",
		Permissions: []rbac.Permission{rbac.PermissionImpersonate, rbac.PermissionReadUsers},
	}))
	require.NoError(t, f.rbacRepo.Assign(ctx, rbac.RoleAssignment{
		TenantID: testTenantID,
		UserID:   userID,
		RoleID:   "support",
		Scope:    rbac.Global(),
	}))
}

func TestImpersonation(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	admin := f.seedUser(t, "admin@example.com", testUserPassword)
	target := f.seedUser(t, testUserEmail, testUserPassword)
	f.grantImpersonation(t, admin.ID)

	adminLogin := f.passwordLogin(t, testClientID, "admin@example.com", testUserPassword, nil)

	l := f.begin(t, testClientID, nil)
	res, err := f.step(l, auth.ImpersonateStep{SessionID: adminLogin.Authorization.SessionID, TargetUserID: target.ID})
	require.NoError(t, err)
	require.Equal(t, loginsessions.StateCompleted, res.State)

	s, err := f.sessionRepo.Get(ctx, testTenantID, res.Authorization.SessionID)
	require.NoError(t, err)
	require.Equal(t, target.ID, s.UserID)
	require.Equal(t, admin.ID, s.ImpersonatorID)
	require.Len(t, f.recorder.OfType(audit.EventImpersonation), 1)

	tokens, err := f.exchange(res.Authorization.Code, testClientID, testClientSecret)
	require.NoError(t, err)
	verified, err := f.tokens.Verify(ctx, *tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, target.ID, verified.Subject)
	require.Equal(t, admin.ID, verified.ImpersonatorID)
}

func TestImpersonationDenied(t *testing.T) {
	f := setupTestFixture(t)
	admin := f.seedUser(t, "admin@example.com", testUserPassword)
	user := f.seedUser(t, testUserEmail, testUserPassword)
	f.grantImpersonation(t, admin.ID)

	userLogin := f.passwordLogin(t, testClientID, testUserEmail, testUserPassword, nil)
	l := f.begin(t, testClientID, nil)

	_, err := f.step(l, auth.ImpersonateStep{SessionID: userLogin.Authorization.SessionID, TargetUserID: admin.ID})
	require.ErrorIs(t, err, auth.ErrImpersonationDenied)
	require.Equal(t, loginsessions.StatePending, f.loadLogin(t, l).State)

	adminLogin := f.passwordLogin(t, testClientID, "admin@example.com", testUserPassword, nil)
	require.NoError(t, f.service.Logout(context.Background(), testTenantID, adminLogin.Authorization.SessionID))
	_, err = f.step(l, auth.ImpersonateStep{SessionID: adminLogin.Authorization.SessionID, TargetUserID: user.ID})
	require.ErrorIs(t, err, sessions.ErrInactive)
}

func TestImpersonationIgnoresOrganizationScopedGrant(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	admin := f.seedUser(t, "admin@example.com", testUserPassword)
	target := f.seedUser(t, testUserEmail, testUserPassword)

	require.NoError(t, f.rbacRepo.UpsertOrganization(ctx, rbac.Organization{ID: "o1", TenantID: testTenantID, Name: "o1"}))
	require.NoError(t, f.rbacRepo.Grant(ctx, rbac.PermissionGrant{
		TenantID:   testTenantID,
		UserID:     admin.ID,
		Permission: rbac.PermissionImpersonate,
		Scope:      rbac.InOrganization("o1"),
	}))

	adminLogin := f.passwordLogin(t, testClientID, "admin@example.com", testUserPassword, nil)
	l := f.begin(t, testClientID, func(p *loginsessions.AuthParams) { p.Organization = "o1" })

	_, err := f.step(l, auth.ImpersonateStep{SessionID: adminLogin.Authorization.SessionID, TargetUserID: target.ID})
	require.ErrorIs(t, err, auth.ErrImpersonationDenied)
	require.Equal(t, loginsessions.StatePending, f.loadLogin(t, l).State)
	require.Empty(t, f.recorder.OfType(audit.EventImpersonation))
}

func TestContinueSessionJoinsClientList(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, testUserEmail, testUserPassword)

	first := f.passwordLogin(t, testClientID, testUserEmail, testUserPassword, nil)
	sessionID := first.Authorization.SessionID

	l := f.begin(t, portalClientID, nil)
	res, err := f.step(l, auth.ContinueSessionStep{SessionID: sessionID})
	require.NoError(t, err)
	require.Equal(t, loginsessions.StateCompleted, res.State)
	require.Equal(t, sessionID, res.Authorization.SessionID)

	s, err := f.sessionRepo.Get(ctx, testTenantID, sessionID)
	require.NoError(t, err)
	require.Equal(t, []string{testClientID, portalClientID}, s.Clients)
	require.Equal(t, user.ID, s.UserID)

	tokens, err := f.exchange(res.Authorization.Code, portalClientID, "portal-secret")
	require.NoError(t, err)
	require.NotNil(t, tokens.IdToken)
}

func TestContinueSessionRequiresInteractiveLogin(t *testing.T) {
	f := setupTestFixture(t)
	f.seedUser(t, testUserEmail, testUserPassword)
	first := f.passwordLogin(t, testClientID, testUserEmail, testUserPassword, nil)
	sessionID := first.Authorization.SessionID

	l := f.begin(t, portalClientID, func(p *loginsessions.AuthParams) { p.Prompt = auth.PromptLogin })
	_, err := f.step(l, auth.ContinueSessionStep{SessionID: sessionID})
	require.ErrorIs(t, err, auth.ErrLoginRequired)
	require.Equal(t, loginsessions.StatePending, f.loadLogin(t, l).State)

	maxAge := time.Minute
	l = f.begin(t, portalClientID, func(p *loginsessions.AuthParams) { p.MaxAge = &maxAge })
	f.now = f.now.Add(5 * time.Minute)
	_, err = f.step(l, auth.ContinueSessionStep{SessionID: sessionID})
	require.ErrorIs(t, err, auth.ErrLoginRequired)
}

func TestRefreshRotationAndReuse(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, testUserEmail, testUserPassword)

	res := f.passwordLogin(t, testClientID, testUserEmail, testUserPassword, func(p *loginsessions.AuthParams) {
		p.Scope = "openid offline_access"
	})
	tokens, err := f.exchange(res.Authorization.Code, testClientID, testClientSecret)
	require.NoError(t, err)
	require.NotNil(t, tokens.RefreshToken)
	first := *tokens.RefreshToken

	// a role granted after login shows up on refresh
	f.grantImpersonation(t, user.ID)

	refreshed, err := f.service.Token(ctx, testTenantID, oauth2.TokenRequest{
		GrantType:    oauth2.RefreshTokenCodeGrant,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RefreshToken: first,
	})
	require.NoError(t, err)
	require.NotNil(t, refreshed.RefreshToken)
	require.NotEqual(t, first, *refreshed.RefreshToken)
	verified, err := f.tokens.Verify(ctx, *refreshed.AccessToken)
	require.NoError(t, err)
	require.Contains(t, verified.Permissions, string(rbac.PermissionImpersonate))

	_, err = f.service.Refresh(ctx, auth.RefreshRequest{
		TenantID:     testTenantID,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RefreshToken: first,
	})
	require.ErrorIs(t, err, apperrors.ErrSuperseded)
	require.Len(t, f.recorder.OfType(audit.EventRefreshTokenReuse), 1)

	s, err := f.sessionRepo.Get(ctx, testTenantID, res.Authorization.SessionID)
	require.NoError(t, err)
	require.NotNil(t, s.RevokedAt, "reuse revokes the whole session")

	_, err = f.service.Refresh(ctx, auth.RefreshRequest{
		TenantID:     testTenantID,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RefreshToken: *refreshed.RefreshToken,
	})
	require.Error(t, err)
}

func TestDirectTokenResponse(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, testUserEmail, testUserPassword)

	res := f.passwordLogin(t, testClientID, testUserEmail, testUserPassword, func(p *loginsessions.AuthParams) {
		p.ResponseType = oauth2.IDTokenTokenResponseType
		p.Nonce = testNonce
		p.Scope = "openid offline_access"
		p.CodeChallenge = ""
		p.CodeChallengeMethod = ""
	})
	authz := res.Authorization
	require.Empty(t, authz.Code)
	require.Equal(t, oauth2.FragmentResponseMode, authz.ResponseMode)
	require.NotNil(t, authz.Tokens)
	require.NotNil(t, authz.Tokens.AccessToken)
	require.NotNil(t, authz.Tokens.IdToken)
	require.NotNil(t, authz.Tokens.RefreshToken)

	info, err := f.service.UserInfo(ctx, *authz.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, info["sub"])
	require.Equal(t, testUserEmail, info["email"])
}

func TestClientCredentials(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	tokens, err := f.service.Token(ctx, "", oauth2.TokenRequest{
		GrantType:    oauth2.ClientCredentialsCodeGrant,
		ClientID:     serviceClientID,
		ClientSecret: serviceSecret,
		Scope:        "reports:read",
	})
	require.NoError(t, err)
	require.Nil(t, tokens.IdToken)
	require.Nil(t, tokens.RefreshToken)

	verified, err := f.tokens.Verify(ctx, *tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, serviceClientID, verified.Subject)

	_, err = f.service.UserInfo(ctx, *tokens.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrInvalid)

	_, err = f.service.Token(ctx, "", oauth2.TokenRequest{
		GrantType:    oauth2.ClientCredentialsCodeGrant,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
	})
	require.ErrorIs(t, err, oauth2.ErrUnauthorizedGrant)

	_, err = f.service.Token(ctx, "", oauth2.TokenRequest{GrantType: "password", ClientID: serviceClientID})
	require.ErrorIs(t, err, apperrors.ErrInvalid)
}
