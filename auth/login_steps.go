package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-server/codes"
	"github.com/jrsteele09/go-identity-server/connections"
	"github.com/jrsteele09/go-identity-server/credentials"
	"github.com/jrsteele09/go-identity-server/delivery"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/loginsessions"
	"github.com/jrsteele09/go-identity-server/rbac"
	"github.com/jrsteele09/go-identity-server/users"
	"github.com/pkg/errors"
)

// Each handler returns whether it changed the login session. A handler that
// returns false has left it untouched, whatever the error.

func (s *Service) identifierStep(ctx context.Context, sc *stepContext, p IdentifierStep) (bool, error) {
	if !identifierAccepted(sc.ls.StateData.Step) {
		return false, ErrUnexpectedStep
	}
	identifier := NormaliseIdentifier(p.Identifier)
	if identifier == "" {
		return false, apperrors.New(apperrors.KindInvalid, "identifier is required")
	}
	conn, err := IdentifierConnection(sc.cc.Connections, p.ConnectionID, identifier)
	if err != nil {
		return false, err
	}

	switch st := conn.Strategy().(type) {
	case connections.PasswordStrategy:
		sc.ls.StateData.Step = loginsessions.StepAwaitingPassword
	case connections.EmailCodeStrategy, connections.SMSCodeStrategy:
		code, err := s.sendLoginCode(ctx, sc, identifier, channelFor(st))
		if err != nil {
			return false, err
		}
		sc.ls.StateData.Step = loginsessions.StepAwaitingCode
		sc.ls.StateData.CodeID = code.ID
		sc.ls.StateData.CodeExpiresAt = &code.ExpiresAt
	case connections.FederatedStrategy:
		return false, apperrors.Newf(apperrors.KindInvalid, "connection %q authenticates upstream", conn.ID)
	default:
		return false, ErrUnsupportedStrategy
	}
	sc.ls.StateData.ConnectionID = conn.ID
	sc.ls.StateData.Identifier = identifier
	sc.ls.StateData.Attempts = 0
	return true, nil
}

func identifierAccepted(step loginsessions.Step) bool {
	switch step {
	case loginsessions.StepIdentifier, loginsessions.StepAwaitingPassword, loginsessions.StepAwaitingCode:
		return true
	}
	return false
}

func channelFor(st connections.Strategy) delivery.Channel {
	if _, ok := st.(connections.SMSCodeStrategy); ok {
		return delivery.ChannelSMS
	}
	return delivery.ChannelEmail
}

// sendLoginCode issues an OTP bound to the login session and identifier and
// delivers it. The caller records the code id in the login session, which
// makes it the only code the session accepts. A delivery failure is
// retryable and leaves the login session as it was.
func (s *Service) sendLoginCode(ctx context.Context, sc *stepContext, identifier string, channel delivery.Channel) (*codes.Code, error) {
	issued, err := s.Codes.Issue(ctx, codes.IssueRequest{
		TenantID: sc.ls.TenantID,
		Type:     codes.TypeOTP,
		Subject:  loginCodeSubject(sc.ls.ID, identifier),
		TTL:      s.otpTTL,
		Payload:  map[string]string{payloadLoginSessionID: sc.ls.ID},
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Step] issue code")
	}
	err = s.Sender.SendCode(ctx, delivery.Message{
		TenantID:  sc.ls.TenantID,
		Channel:   channel,
		To:        identifier,
		Code:      issued.Value,
		Purpose:   delivery.PurposeLogin,
		ExpiresAt: issued.Code.ExpiresAt,
	})
	if err != nil {
		return nil, apperrors.WithKind(apperrors.KindDeliveryFailed, err, "sending login code")
	}
	return &issued.Code, nil
}

func loginCodeSubject(loginSessionID, identifier string) string {
	return loginSessionID + "\x00" + identifier
}

func (s *Service) passwordStep(ctx context.Context, sc *stepContext, p PasswordStep) (bool, error) {
	if sc.ls.StateData.Step != loginsessions.StepAwaitingPassword {
		return false, ErrUnexpectedStep
	}
	user, err := s.userByIdentifier(ctx, sc.ls.TenantID, sc.ls.StateData.Identifier)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		s.failedAttempt(ctx, sc, "unknown identifier")
		return true, apperrors.ErrInvalidCredential
	}
	if err != nil {
		return false, err
	}
	sc.ls.StateData.UserID = user.ID

	err = s.Credentials.Verify(ctx, sc.ls.TenantID, user.ID, p.Password)
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidCredential), apperrors.Is(err, credentials.ErrNoPassword):
		s.failedAttempt(ctx, sc, "bad password")
		return true, apperrors.ErrInvalidCredential
	case err != nil:
		return false, err
	}
	if user.Blocked {
		s.fail(ctx, sc, loginsessions.FailureUserBlocked)
		return true, ErrUserBlocked
	}

	identity := users.IdentityRef{Provider: connections.KindPassword, SubjectID: sc.ls.StateData.Identifier}
	if id, ok := user.PrimaryIdentity(); ok && id.Provider == connections.KindPassword {
		identity = id.Ref()
	}
	if err := s.recordLogin(ctx, sc, user); err != nil {
		return false, err
	}
	s.authenticated(sc, user, authMethodPassword, identity)
	return true, nil
}

func (s *Service) codeStep(ctx context.Context, sc *stepContext, p CodeStep) (bool, error) {
	if sc.ls.StateData.Step != loginsessions.StepAwaitingCode {
		return false, ErrUnexpectedStep
	}
	identifier := sc.ls.StateData.Identifier
	value := strings.TrimSpace(p.Code)
	// codes sent earlier or to another login session are never consumed here
	if codes.IDFor(sc.ls.TenantID, codes.TypeOTP, value) != sc.ls.StateData.CodeID {
		s.failedAttempt(ctx, sc, "bad code")
		return true, codes.ErrInvalidCode
	}
	_, err := s.Codes.Redeem(ctx, codes.RedeemRequest{
		TenantID: sc.ls.TenantID,
		Type:     codes.TypeOTP,
		Value:    value,
		Subject:  loginCodeSubject(sc.ls.ID, identifier),
	})
	switch apperrors.KindOf(err) {
	case "":
	case apperrors.KindInvalid, apperrors.KindMismatch:
		s.failedAttempt(ctx, sc, "bad code")
		return true, err
	default:
		// expired codes may be resent; used codes and storage failures
		// leave the session alone
		return false, err
	}

	conn, ok := sc.cc.Connection(sc.ls.StateData.ConnectionID)
	if !ok {
		return false, ErrConnectionNotEnabled
	}
	provider := conn.Strategy().Name()
	user, err := s.userByIdentifier(ctx, sc.ls.TenantID, identifier)
	switch {
	case apperrors.Is(err, apperrors.ErrNotFound):
		user = &users.User{TenantID: sc.ls.TenantID, CreatedAt: sc.now}
		setVerifiedIdentifier(user, identifier)
		user.AddIdentity(users.Identity{ConnectionID: conn.ID, Provider: provider, SubjectID: identifier, LinkedAt: sc.now})
	case err != nil:
		return false, err
	case user.Blocked:
		s.fail(ctx, sc, loginsessions.FailureUserBlocked)
		return true, ErrUserBlocked
	default:
		setVerifiedIdentifier(user, identifier)
		if _, ok := user.FindIdentity(users.IdentityRef{Provider: provider, SubjectID: identifier}); !ok {
			user.AddIdentity(users.Identity{ConnectionID: conn.ID, Provider: provider, SubjectID: identifier, LinkedAt: sc.now})
		}
	}
	if err := s.recordLogin(ctx, sc, user); err != nil {
		return false, err
	}
	s.authenticated(sc, user, authMethodOTP, users.IdentityRef{Provider: provider, SubjectID: identifier})
	return true, nil
}

func (s *Service) resendCodeStep(ctx context.Context, sc *stepContext) (bool, error) {
	if sc.ls.StateData.Step != loginsessions.StepAwaitingCode {
		return false, ErrUnexpectedStep
	}
	conn, ok := sc.cc.Connection(sc.ls.StateData.ConnectionID)
	if !ok {
		return false, ErrConnectionNotEnabled
	}
	code, err := s.sendLoginCode(ctx, sc, sc.ls.StateData.Identifier, channelFor(conn.Strategy()))
	if err != nil {
		return false, err
	}
	sc.ls.StateData.CodeID = code.ID
	sc.ls.StateData.CodeExpiresAt = &code.ExpiresAt
	return true, nil
}

func (s *Service) federatedStep(ctx context.Context, sc *stepContext, p FederatedStep) (bool, error) {
	if !identifierAccepted(sc.ls.StateData.Step) {
		return false, ErrUnexpectedStep
	}
	conn, ok := sc.cc.Connection(p.ConnectionID)
	if !ok {
		return false, ErrConnectionNotEnabled
	}
	st, ok := conn.Strategy().(connections.FederatedStrategy)
	if !ok {
		return false, apperrors.Newf(apperrors.KindInvalid, "connection %q is not federated", conn.ID)
	}
	if p.Result.SubjectID == "" {
		return false, apperrors.New(apperrors.KindInvalid, "federated subject is required")
	}
	identity := users.Identity{
		ConnectionID: conn.ID,
		Provider:     st.Provider,
		SubjectID:    p.Result.SubjectID,
		Social:       true,
		ProfileData:  profileData(p.Result.Profile.Email, p.Result.Profile.Name, p.Result.Profile.Picture),
		LinkedAt:     sc.now,
	}
	sc.ls.StateData.ConnectionID = conn.ID

	user, err := s.Repos.Users.GetByIdentity(ctx, sc.ls.TenantID, identity.Ref())
	switch {
	case err == nil:
		if user.Blocked {
			s.fail(ctx, sc, loginsessions.FailureUserBlocked)
			return true, ErrUserBlocked
		}
		if err := s.recordLogin(ctx, sc, user); err != nil {
			return false, err
		}
		s.authenticated(sc, user, authMethodFederated, identity.Ref())
		return true, nil
	case !apperrors.Is(err, apperrors.ErrNotFound):
		return false, errors.Wrap(err, "[Service.Step] GetByIdentity")
	}

	email := users.NormaliseEmail(p.Result.Profile.Email)
	if email != "" && p.Result.Profile.EmailVerified {
		existing, err := s.Repos.Users.GetByEmail(ctx, sc.ls.TenantID, email)
		switch {
		case err == nil:
			sc.ls.StateData.Step = loginsessions.StepAwaitingLinkConfirmation
			sc.ls.StateData.UserID = existing.ID
			sc.ls.StateData.LinkCandidate = &loginsessions.LinkCandidate{UserID: existing.ID, Identity: identity}
			return true, nil
		case !apperrors.Is(err, apperrors.ErrNotFound):
			return false, errors.Wrap(err, "[Service.Step] GetByEmail")
		}
	}

	user = &users.User{
		TenantID:  sc.ls.TenantID,
		FirstName: p.Result.Profile.GivenName,
		LastName:  p.Result.Profile.FamilyName,
		Picture:   p.Result.Profile.Picture,
		CreatedAt: sc.now,
	}
	if email != "" {
		if _, err := s.Repos.Users.GetByEmail(ctx, sc.ls.TenantID, email); apperrors.Is(err, apperrors.ErrNotFound) {
			user.Email = email
			user.EmailVerified = p.Result.Profile.EmailVerified
		}
	}
	user.AddIdentity(identity)
	if err := s.recordLogin(ctx, sc, user); err != nil {
		return false, err
	}
	s.authenticated(sc, user, authMethodFederated, identity.Ref())
	return true, nil
}

func (s *Service) linkStep(ctx context.Context, sc *stepContext, p LinkStep) (bool, error) {
	candidate := sc.ls.StateData.LinkCandidate
	if sc.ls.StateData.Step != loginsessions.StepAwaitingLinkConfirmation || candidate == nil {
		return false, ErrUnexpectedStep
	}

	if !p.Confirm {
		user := &users.User{TenantID: sc.ls.TenantID, CreatedAt: sc.now}
		user.AddIdentity(candidate.Identity)
		if err := s.recordLogin(ctx, sc, user); err != nil {
			return false, err
		}
		s.authenticated(sc, user, authMethodFederated, candidate.Identity.Ref())
		return true, nil
	}

	existing, err := s.Repos.Users.GetByID(ctx, sc.ls.TenantID, candidate.UserID)
	if err != nil {
		return false, errors.Wrap(err, "[Service.Step] GetByID")
	}
	hasPassword, err := s.Credentials.HasPassword(ctx, sc.ls.TenantID, existing.ID)
	if err != nil {
		return false, err
	}
	if !hasPassword {
		s.fail(ctx, sc, loginsessions.FailureUnlinkableAccount)
		return true, ErrUnlinkableAccount
	}
	err = s.Credentials.Verify(ctx, sc.ls.TenantID, existing.ID, p.Password)
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidCredential):
		s.failedAttempt(ctx, sc, "bad password confirming link")
		return true, apperrors.ErrInvalidCredential
	case err != nil:
		return false, err
	}
	if existing.Blocked {
		s.fail(ctx, sc, loginsessions.FailureUserBlocked)
		return true, ErrUserBlocked
	}
	existing.AddIdentity(candidate.Identity)
	if err := s.recordLogin(ctx, sc, existing); err != nil {
		return false, err
	}
	s.authenticated(sc, existing, authMethodFederated, candidate.Identity.Ref())
	return true, nil
}

func (s *Service) impersonateStep(ctx context.Context, sc *stepContext, p ImpersonateStep) (bool, error) {
	if p.SessionID == "" || p.TargetUserID == "" {
		return false, apperrors.New(apperrors.KindInvalid, "session and target user are required")
	}
	session, err := s.Sessions.GetActive(ctx, sc.ls.TenantID, p.SessionID)
	if err != nil {
		return false, err
	}
	if session.UserID == p.TargetUserID {
		return false, apperrors.New(apperrors.KindInvalid, "cannot impersonate yourself")
	}
	if session.ImpersonatorID != "" {
		return false, ErrImpersonationDenied
	}
	perms, err := s.Permissions.Resolve(ctx, sc.ls.TenantID, session.UserID, rbac.Global())
	if err != nil {
		return false, errors.Wrap(err, "[Service.Step] permissions")
	}
	if !perms.Has(rbac.PermissionImpersonate) {
		return false, ErrImpersonationDenied
	}
	target, err := s.Repos.Users.GetByID(ctx, sc.ls.TenantID, p.TargetUserID)
	if err != nil {
		return false, errors.Wrap(err, "[Service.Step] GetByID")
	}
	if target.Blocked {
		return false, ErrUserBlocked
	}
	sc.ls.StateData.ImpersonatorID = session.UserID
	s.authenticated(sc, target, authMethodImpersonation, users.IdentityRef{})
	return true, nil
}

func (s *Service) continueSessionStep(ctx context.Context, sc *stepContext, p ContinueSessionStep) (bool, error) {
	if promptsLogin(sc.ls.AuthParams) {
		return false, ErrLoginRequired
	}
	session, err := s.Sessions.GetActive(ctx, sc.ls.TenantID, p.SessionID)
	if err != nil {
		return false, err
	}
	if maxAge := sc.ls.AuthParams.MaxAge; maxAge != nil && sc.now.Sub(session.AuthenticatedAt) > *maxAge {
		return false, ErrLoginRequired
	}
	user, err := s.Repos.Users.GetByID(ctx, sc.ls.TenantID, session.UserID)
	if err != nil {
		return false, errors.Wrap(err, "[Service.Step] GetByID")
	}
	if user.Blocked {
		return false, ErrUserBlocked
	}
	sc.ls.StateData.SSOSessionID = session.ID
	sc.ls.StateData.ImpersonatorID = session.ImpersonatorID
	s.authenticated(sc, user, authMethodSSO, session.Identity)
	return true, nil
}

func (s *Service) userByIdentifier(ctx context.Context, tenantID, identifier string) (*users.User, error) {
	var (
		user *users.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.Repos.Users.GetByEmail(ctx, tenantID, identifier)
	} else {
		user, err = s.Repos.Users.GetByPhone(ctx, tenantID, identifier)
	}
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, errors.Wrap(err, "[Service.Step] user lookup")
	}
	return user, err
}

func (s *Service) recordLogin(ctx context.Context, sc *stepContext, user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.RecordLogin(sc.now)
	if err := s.Repos.Users.Upsert(ctx, user); err != nil {
		return errors.Wrap(err, "[Service.Step] Upsert user")
	}
	return nil
}

func setVerifiedIdentifier(user *users.User, identifier string) {
	if strings.Contains(identifier, "@") {
		user.Email = identifier
		user.EmailVerified = true
		return
	}
	user.PhoneNumber = identifier
	user.PhoneVerified = true
}

func profileData(email, name, picture string) map[string]any {
	data := map[string]any{}
	if email != "" {
		data["email"] = email
	}
	if name != "" {
		data["name"] = name
	}
	if picture != "" {
		data["picture"] = picture
	}
	if len(data) == 0 {
		return nil
	}
	return data
}
