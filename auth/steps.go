package auth

import "github.com/jrsteele09/go-identity-server/federation"

// StepPayload is the closed set of inputs a login session accepts. Dispatch
// happens on the concrete type.
type StepPayload interface {
	stepName() string
}

// IdentifierStep presents an email, phone number or username. ConnectionID
// optionally names the connection to use.
type IdentifierStep struct {
	Identifier   string
	ConnectionID string
}

type PasswordStep struct {
	Password string
}

// CodeStep submits a one-time code sent to the identifier.
type CodeStep struct {
	Code string
}

type ResendCodeStep struct{}

// FederatedStep hands over an identity an upstream provider has already
// verified.
type FederatedStep struct {
	ConnectionID string
	Result       federation.Result
}

// LinkStep answers the account-linking prompt. Confirm links the upstream
// identity to the existing account and requires its password; declining
// continues as a new user.
type LinkStep struct {
	Confirm  bool
	Password string
}

// ImpersonateStep completes the login as TargetUserID on behalf of the
// holder of SessionID.
type ImpersonateStep struct {
	SessionID    string
	TargetUserID string
}

// ContinueSessionStep completes the login from an existing session.
type ContinueSessionStep struct {
	SessionID string
}

// UnknownStep is a payload this server does not understand.
type UnknownStep struct {
	Name string
}

func (IdentifierStep) stepName() string      { return "identifier" }
func (PasswordStep) stepName() string        { return "password" }
func (CodeStep) stepName() string            { return "code" }
func (ResendCodeStep) stepName() string      { return "resend_code" }
func (FederatedStep) stepName() string       { return "federated" }
func (LinkStep) stepName() string            { return "link" }
func (ImpersonateStep) stepName() string     { return "impersonate" }
func (ContinueSessionStep) stepName() string { return "continue_session" }
func (s UnknownStep) stepName() string       { return s.Name }
