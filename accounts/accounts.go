// Package accounts implements self-service operations on an existing user:
// linking and unlinking identities, changing and verifying the email address.
package accounts

import (
	"context"
	"time"

	"github.com/jrsteele09/go-identity-server/codes"
	"github.com/jrsteele09/go-identity-server/delivery"
	"github.com/jrsteele09/go-identity-server/internal/audit"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const payloadEmail = "email"

var (
	ErrEmailInUse      = apperrors.New(apperrors.KindMismatch, "email address belongs to another user")
	ErrNoEmail         = apperrors.New(apperrors.KindInvalidState, "user has no email address")
	ErrAlreadyVerified = apperrors.New(apperrors.KindInvalidState, "email address is already verified")
)

type Service struct {
	users           users.UserRepo
	codes           *codes.Engine
	sender          delivery.Sender
	reporter        audit.Reporter
	logger          zerolog.Logger
	nowTime         func() time.Time
	verificationTTL time.Duration
}

type ServiceOption func(*Service)

func WithNowTime(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = now
	}
}

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithEmailVerificationTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.verificationTTL = ttl
	}
}

func NewService(userRepo users.UserRepo, engine *codes.Engine, sender delivery.Sender, reporter audit.Reporter, options ...ServiceOption) (*Service, error) {
	if userRepo == nil {
		return nil, errors.New("[accounts.NewService] user repo is required")
	}
	if engine == nil {
		return nil, errors.New("[accounts.NewService] code engine is required")
	}
	if sender == nil {
		return nil, errors.New("[accounts.NewService] sender is required")
	}
	if reporter == nil {
		return nil, errors.New("[accounts.NewService] reporter is required")
	}
	s := &Service{
		users:           userRepo,
		codes:           engine,
		sender:          sender,
		reporter:        reporter,
		logger:          zerolog.Nop(),
		nowTime:         time.Now,
		verificationTTL: 24 * time.Hour,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

type UnlinkRequest struct {
	TenantID string
	UserID   string
	Identity users.IdentityRef
	// CurrentIdentity is the identity that authenticated the caller's session.
	CurrentIdentity users.IdentityRef
}

// UnlinkIdentity removes a secondary identity from a user.
func (s *Service) UnlinkIdentity(ctx context.Context, req UnlinkRequest) (*users.User, error) {
	user, err := s.users.GetByID(ctx, req.TenantID, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.UnlinkIdentity] GetByID")
	}
	if err := user.Unlink(req.Identity, req.CurrentIdentity); err != nil {
		return nil, err
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, errors.Wrap(err, "[Service.UnlinkIdentity] Upsert")
	}
	s.reporter.Report(ctx, audit.Event{
		Type:     audit.EventIdentityUnlinked,
		TenantID: req.TenantID,
		UserID:   req.UserID,
		Detail:   req.Identity.Provider + "|" + req.Identity.SubjectID,
		At:       s.nowTime(),
	})
	return user, nil
}

// LinkIdentity adds a secondary identity to a user. An identity already
// owned by another user of the tenant is rejected.
func (s *Service) LinkIdentity(ctx context.Context, tenantID, userID string, identity users.Identity) (*users.User, error) {
	owner, err := s.users.GetByIdentity(ctx, tenantID, identity.Ref())
	switch {
	case err == nil && owner.ID != userID:
		return nil, users.ErrIdentityAlreadyUsed
	case err == nil:
		return owner, nil
	case !apperrors.Is(err, apperrors.ErrNotFound):
		return nil, errors.Wrap(err, "[Service.LinkIdentity] GetByIdentity")
	}

	user, err := s.users.GetByID(ctx, tenantID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.LinkIdentity] GetByID")
	}
	if identity.LinkedAt.IsZero() {
		identity.LinkedAt = s.nowTime()
	}
	user.AddIdentity(identity)
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, errors.Wrap(err, "[Service.LinkIdentity] Upsert")
	}
	return user, nil
}

// EmailChangeRequest is returned to the caller who asked for the change. The
// verification code only goes to the new address.
type EmailChangeRequest struct {
	RequestID string
	ExpiresAt time.Time
}

// RequestEmailChange issues the correlated code pair and sends the
// verification code to the new address.
func (s *Service) RequestEmailChange(ctx context.Context, tenantID, userID, newEmail string) (*EmailChangeRequest, error) {
	newEmail = users.NormaliseEmail(newEmail)
	if newEmail == "" {
		return nil, apperrors.New(apperrors.KindInvalid, "new email is required")
	}
	user, err := s.users.GetByID(ctx, tenantID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.RequestEmailChange] GetByID")
	}
	if user.Email == newEmail {
		return nil, apperrors.New(apperrors.KindInvalid, "new email matches the current email")
	}
	if err := s.emailAvailable(ctx, tenantID, userID, newEmail); err != nil {
		return nil, err
	}

	change, err := s.codes.IssueEmailChange(ctx, tenantID, userID, newEmail)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.RequestEmailChange]")
	}
	err = s.sender.SendCode(ctx, delivery.Message{
		TenantID:  tenantID,
		Channel:   delivery.ChannelEmail,
		To:        newEmail,
		Code:      change.VerificationCode,
		Purpose:   delivery.PurposeEmailChange,
		ExpiresAt: change.ExpiresAt,
	})
	if err != nil {
		return nil, apperrors.WithKind(apperrors.KindDeliveryFailed, err, "sending email change code")
	}
	return &EmailChangeRequest{RequestID: change.RequestID, ExpiresAt: change.ExpiresAt}, nil
}

// ConfirmEmailChange consumes the request and its verification code and
// makes the new address the user's verified email.
func (s *Service) ConfirmEmailChange(ctx context.Context, tenantID, requestID, code string) (*users.User, error) {
	request, err := s.codes.RedeemEmailChange(ctx, tenantID, requestID, code)
	if apperrors.Is(err, codes.ErrPartiallyConsumed) {
		s.reporter.Report(ctx, audit.Event{
			Type:     audit.EventPartialConsumption,
			TenantID: tenantID,
			Detail:   "email change codes found partially consumed",
			At:       s.nowTime(),
		})
		s.logger.Error().Str("tenant_id", tenantID).Msg("email change codes partially consumed")
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ConfirmEmailChange]")
	}

	user, err := s.users.GetByID(ctx, tenantID, request.Subject)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ConfirmEmailChange] GetByID")
	}
	newEmail := codes.NewEmail(request)
	if err := s.emailAvailable(ctx, tenantID, user.ID, newEmail); err != nil {
		return nil, err
	}
	previous := user.Email
	user.Email = newEmail
	user.EmailVerified = true
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, errors.Wrap(err, "[Service.ConfirmEmailChange] Upsert")
	}
	s.reporter.Report(ctx, audit.Event{
		Type:     audit.EventEmailChanged,
		TenantID: tenantID,
		UserID:   user.ID,
		Detail:   "changed from " + previous,
		At:       s.nowTime(),
	})
	return user, nil
}

// SendEmailVerification sends a code proving ownership of the user's
// current email address.
func (s *Service) SendEmailVerification(ctx context.Context, tenantID, userID string) error {
	user, err := s.users.GetByID(ctx, tenantID, userID)
	if err != nil {
		return errors.Wrap(err, "[Service.SendEmailVerification] GetByID")
	}
	if user.Email == "" {
		return ErrNoEmail
	}
	if user.EmailVerified {
		return ErrAlreadyVerified
	}
	issued, err := s.codes.Issue(ctx, codes.IssueRequest{
		TenantID: tenantID,
		Type:     codes.TypeEmailVerification,
		Subject:  userID,
		TTL:      s.verificationTTL,
		Payload:  map[string]string{payloadEmail: user.Email},
	})
	if err != nil {
		return errors.Wrap(err, "[Service.SendEmailVerification]")
	}
	err = s.sender.SendCode(ctx, delivery.Message{
		TenantID:  tenantID,
		Channel:   delivery.ChannelEmail,
		To:        user.Email,
		Code:      issued.Value,
		Purpose:   delivery.PurposeEmailVerification,
		ExpiresAt: issued.Code.ExpiresAt,
	})
	if err != nil {
		return apperrors.WithKind(apperrors.KindDeliveryFailed, err, "sending email verification code")
	}
	return nil
}

// VerifyEmail redeems an email verification code. The code only verifies
// the address it was sent to.
func (s *Service) VerifyEmail(ctx context.Context, tenantID, userID, code string) (*users.User, error) {
	redeemed, err := s.codes.Redeem(ctx, codes.RedeemRequest{
		TenantID: tenantID,
		Type:     codes.TypeEmailVerification,
		Value:    code,
		Subject:  userID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyEmail]")
	}
	user, err := s.users.GetByID(ctx, tenantID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyEmail] GetByID")
	}
	if redeemed.Payload[payloadEmail] != user.Email {
		return nil, apperrors.New(apperrors.KindMismatch, "email address changed since the code was sent")
	}
	user.EmailVerified = true
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, errors.Wrap(err, "[Service.VerifyEmail] Upsert")
	}
	return user, nil
}

func (s *Service) emailAvailable(ctx context.Context, tenantID, userID, email string) error {
	existing, err := s.users.GetByEmail(ctx, tenantID, email)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "[Service] GetByEmail")
	}
	if existing.ID != userID {
		return ErrEmailInUse
	}
	return nil
}
