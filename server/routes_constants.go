package server

// Route path constants
const (
	// Login sessions
	RouteLoginSessions    = "/login-sessions"
	RouteLoginSession     = "/login-sessions/{id}"
	RouteLoginSessionStep = "/login-sessions/{id}/steps"

	// Single-use codes
	RouteCodesRedeem = "/codes/redeem"

	// OAuth2 / OIDC
	RouteOAuth2Token  = "/oauth2/token"
	RouteOAuth2Logout = "/oauth2/logout"
	RouteUserInfo     = "/userinfo"

	// Accounts
	RouteUserPermissions    = "/tenants/{tenant}/users/{user}/permissions"
	RouteUserIdentity       = "/tenants/{tenant}/users/{user}/identities/{provider}/{subject}"
	RouteEmailChange        = "/tenants/{tenant}/users/{user}/email-change"
	RouteEmailChangeConfirm = "/tenants/{tenant}/email-change/confirm"
	RouteEmailVerification  = "/tenants/{tenant}/users/{user}/email-verification"

	RouteMetrics = "/metrics"
	RouteHealth  = "/healthz"
)
