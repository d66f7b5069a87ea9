package token

import (
	"github.com/jrsteele09/go-identity-server/internal/utils"
	"github.com/jrsteele09/go-identity-server/tenants"
	"github.com/pkg/errors"
)

const signingSecretBytes = 32

// GenerateSigningSecret returns a fresh random secret for a tenant signer.
func GenerateSigningSecret() (string, error) {
	secret, err := utils.RandomHex(signingSecretBytes)
	if err != nil {
		return "", errors.Wrap(err, "failed to generate signing secret")
	}
	return secret, nil
}

// SignerForTenant builds the signer for a tenant from its stored secret.
func SignerForTenant(tenant *tenants.Tenant) (Signer, error) {
	if tenant.SigningSecret == "" {
		return nil, errors.Errorf("tenant %s has no signing secret", tenant.ID)
	}
	return NewHMACSigner(tenant.SigningSecret), nil
}
