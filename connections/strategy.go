package connections

import "strings"

// Stored kinds.
const (
	KindPassword = "password"
	KindEmail    = "email"
	KindSMS      = "sms"
	KindOIDC     = "oidc"
)

var federatedKinds = map[string]struct{}{
	KindOIDC:          {},
	"google-oauth2":   {},
	"github":          {},
	"apple":           {},
	"facebook":        {},
	"windowslive":     {},
	"linkedin":        {},
	"saml":            {},
	"oauth2":          {},
	"microsoft-entra": {},
}

// Strategy is the closed set of authentication strategies. Dispatch with a
// type switch; UnknownStrategy covers kinds this server does not implement.
type Strategy interface {
	Name() string
	strategy()
}

type PasswordStrategy struct{}

type EmailCodeStrategy struct{}

type SMSCodeStrategy struct{}

// FederatedStrategy delegates authentication to an upstream provider.
type FederatedStrategy struct {
	Provider string
}

// UnknownStrategy is a stored kind with no implementation.
type UnknownStrategy struct {
	Kind string
}

func (PasswordStrategy) Name() string    { return KindPassword }
func (EmailCodeStrategy) Name() string   { return KindEmail }
func (SMSCodeStrategy) Name() string     { return KindSMS }
func (s FederatedStrategy) Name() string { return s.Provider }
func (s UnknownStrategy) Name() string   { return s.Kind }

func (PasswordStrategy) strategy()  {}
func (EmailCodeStrategy) strategy() {}
func (SMSCodeStrategy) strategy()   {}
func (FederatedStrategy) strategy() {}
func (UnknownStrategy) strategy()   {}

// ParseStrategy maps a stored kind onto its strategy.
func ParseStrategy(kind string) Strategy {
	k := strings.ToLower(strings.TrimSpace(kind))
	switch k {
	case KindPassword, "auth0", "database":
		return PasswordStrategy{}
	case KindEmail:
		return EmailCodeStrategy{}
	case KindSMS:
		return SMSCodeStrategy{}
	}
	if _, ok := federatedKinds[k]; ok {
		return FederatedStrategy{Provider: k}
	}
	return UnknownStrategy{Kind: kind}
}

// IsFederated reports whether s is an upstream provider strategy.
func IsFederated(s Strategy) bool {
	_, ok := s.(FederatedStrategy)
	return ok
}
