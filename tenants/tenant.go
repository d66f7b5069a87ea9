package tenants

// Tenant represents an isolated organisation with its own issuer, audience and
// signing secret. Every other entity is scoped to exactly one tenant.
type Tenant struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Domain        string `json:"domain"`
	Issuer        string `json:"issuer"`   // Token issuer (e.g., "https://tenant-a.auth.example.com")
	Audience      string `json:"audience"` // Default resource server audience
	SigningSecret string `json:"-"`        // HMAC secret used by the default signer
}
