package codes

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/internal/metrics"
	"github.com/jrsteele09/go-identity-server/internal/utils"
	"github.com/pkg/errors"
)

const (
	numericCodeLength     = 6
	opaqueCodeLength      = 32
	maxIssueAttempts      = 5
	payloadNewEmail       = "new_email"
	defaultEmailChangeTTL = time.Hour
)

// Engine issues and redeems codes on top of a Repo.
type Engine struct {
	repo           Repo
	nowTime        func() time.Time
	emailChangeTTL time.Duration
	generate       func(Type) (string, error)
}

type EngineOption func(*Engine)

func WithNowTime(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.nowTime = now
	}
}

func WithEmailChangeTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) {
		e.emailChangeTTL = ttl
	}
}

// WithGenerator replaces the value generator. Used in tests to force collisions.
func WithGenerator(generate func(Type) (string, error)) EngineOption {
	return func(e *Engine) {
		e.generate = generate
	}
}

func NewEngine(repo Repo, options ...EngineOption) (*Engine, error) {
	if repo == nil {
		return nil, errors.New("[codes.NewEngine] repo is required")
	}
	e := &Engine{
		repo:           repo,
		nowTime:        time.Now,
		emailChangeTTL: defaultEmailChangeTTL,
		generate:       generateValue,
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

func generateValue(t Type) (string, error) {
	if t.Numeric() {
		return utils.RandomDigits(numericCodeLength)
	}
	return utils.RandomURLToken(opaqueCodeLength)
}

// IDFor derives the storage id of a code value.
func IDFor(tenantID string, t Type, value string) string {
	return utils.SHA256Hex(tenantID + "\x00" + string(t) + "\x00" + value)
}

type IssueRequest struct {
	TenantID      string
	Type          Type
	Subject       string
	TTL           time.Duration
	CorrelationID string
	Payload       map[string]string
}

// Issued carries the code value, which is only available at issue time.
type Issued struct {
	Value string
	Code  Code
}

// Issue creates a new code bound to a subject.
func (e *Engine) Issue(ctx context.Context, req IssueRequest) (*Issued, error) {
	if req.TenantID == "" || req.Type == "" || req.Subject == "" {
		return nil, apperrors.New(apperrors.KindInvalid, "tenant, type and subject are required")
	}
	if req.TTL <= 0 {
		return nil, apperrors.New(apperrors.KindInvalid, "ttl must be positive")
	}
	now := e.nowTime()
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		value, err := e.generate(req.Type)
		if err != nil {
			return nil, errors.Wrap(err, "[Engine.Issue] generate")
		}
		code := Code{
			TenantID:      req.TenantID,
			ID:            IDFor(req.TenantID, req.Type, value),
			Type:          req.Type,
			Subject:       req.Subject,
			CorrelationID: req.CorrelationID,
			Payload:       req.Payload,
			CreatedAt:     now,
			ExpiresAt:     now.Add(req.TTL),
		}
		err = e.repo.Insert(ctx, code)
		if apperrors.Is(err, ErrCodeExists) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "[Engine.Issue] Insert")
		}
		return &Issued{Value: value, Code: code}, nil
	}
	return nil, errors.Wrap(ErrCodeExists, "[Engine.Issue] could not allocate a unique code")
}

type RedeemRequest struct {
	TenantID string
	Type     Type
	Value    string
	// Subject, when set, must match the subject the code was issued to.
	Subject string
}

func (r RedeemRequest) ref() Ref {
	return Ref{Type: r.Type, ID: IDFor(r.TenantID, r.Type, r.Value)}
}

// Redeem consumes a code. Exactly one of any number of concurrent redemptions
// of the same code succeeds.
func (e *Engine) Redeem(ctx context.Context, req RedeemRequest) (*Code, error) {
	if req.Value == "" {
		return nil, ErrInvalidCode
	}
	code, err := e.repo.Consume(ctx, req.TenantID, req.ref(), req.Subject, e.nowTime())
	metrics.RecordCodeRedemption(string(req.Type), resultLabel(err))
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.Redeem]")
	}
	return code, nil
}

// Check reports what Redeem would return without consuming the code.
func (e *Engine) Check(ctx context.Context, req RedeemRequest) error {
	if req.Value == "" {
		return ErrInvalidCode
	}
	code, err := e.repo.Get(ctx, req.TenantID, req.ref())
	if err != nil {
		return errors.Wrap(err, "[Engine.Check] Get")
	}
	if code.CorrelationID != "" && code.Type == TypeEmailChangeVerification {
		request, err := e.repo.Get(ctx, req.TenantID, Ref{Type: TypeEmailChangeRequest, ID: code.CorrelationID})
		if err != nil && !apperrors.Is(err, ErrInvalidCode) {
			return errors.Wrap(err, "[Engine.Check] Get request")
		}
		if request != nil && request.Used() != code.Used() {
			return ErrPartiallyConsumed
		}
	}
	return code.Check(req.Subject, e.nowTime())
}

// EmailChange is the pair of values issued for an email change.
type EmailChange struct {
	RequestID        string
	VerificationCode string
	ExpiresAt        time.Time
}

// IssueEmailChange issues a change-request id and a verification code bound
// to the same user. The verification code is what gets sent to the new address.
func (e *Engine) IssueEmailChange(ctx context.Context, tenantID, userID, newEmail string) (*EmailChange, error) {
	if newEmail == "" {
		return nil, apperrors.New(apperrors.KindInvalid, "new email is required")
	}
	request, err := e.Issue(ctx, IssueRequest{
		TenantID: tenantID,
		Type:     TypeEmailChangeRequest,
		Subject:  userID,
		TTL:      e.emailChangeTTL,
		Payload:  map[string]string{payloadNewEmail: newEmail},
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.IssueEmailChange] request")
	}
	verification, err := e.Issue(ctx, IssueRequest{
		TenantID:      tenantID,
		Type:          TypeEmailChangeVerification,
		Subject:       userID,
		TTL:           e.emailChangeTTL,
		CorrelationID: request.Code.ID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.IssueEmailChange] verification")
	}
	return &EmailChange{
		RequestID:        request.Value,
		VerificationCode: verification.Value,
		ExpiresAt:        request.Code.ExpiresAt,
	}, nil
}

// RedeemEmailChange consumes both codes together and returns the request,
// whose subject is the user and whose payload holds the new email.
func (e *Engine) RedeemEmailChange(ctx context.Context, tenantID, requestID, verificationCode string) (*Code, error) {
	if verificationCode == "" {
		return nil, ErrInvalidCode
	}
	requestRef := Ref{Type: TypeEmailChangeRequest}
	if requestID != "" {
		requestRef.ID = IDFor(tenantID, TypeEmailChangeRequest, requestID)
	}
	verificationRef := Ref{
		Type: TypeEmailChangeVerification,
		ID:   IDFor(tenantID, TypeEmailChangeVerification, verificationCode),
	}
	request, _, err := e.repo.ConsumePair(ctx, tenantID, requestRef, verificationRef, e.nowTime())
	metrics.RecordCodeRedemption(string(TypeEmailChangeVerification), resultLabel(err))
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.RedeemEmailChange]")
	}
	return request, nil
}

// NewEmail returns the requested address of an email change request.
func NewEmail(request *Code) string {
	return request.Payload[payloadNewEmail]
}

// Purge removes codes that expired before the cutoff.
func (e *Engine) Purge(ctx context.Context, before time.Time) (int, error) {
	n, err := e.repo.DeleteExpired(ctx, before)
	return n, errors.Wrap(err, "[Engine.Purge]")
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperrors.KindOf(err))
}
