package server

import (
	"net/http"

	"github.com/jrsteele09/go-identity-server/rbac"
)

func (s *Server) initRoutes() {
	api := func(h http.HandlerFunc) http.HandlerFunc {
		return ChainMiddleware(h, s.APIMiddleware()...)
	}

	// Login sessions
	s.RegisterRouteHandler("POST "+RouteLoginSessions, api(s.BeginLoginSession()))
	s.RegisterRouteHandler("GET "+RouteLoginSession, api(s.GetLoginSession()))
	s.RegisterRouteHandler("POST "+RouteLoginSessionStep, api(s.SubmitStep()))

	s.RegisterRouteHandler("POST "+RouteCodesRedeem, api(s.RedeemCode()))

	// OAuth2 / OIDC
	s.RegisterRouteHandler("POST "+RouteOAuth2Token, ChainMiddleware(s.Token(), s.APIMiddleware(s.NoStoreMiddleware)...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Logout, api(s.Logout()))
	s.RegisterRouteHandler("GET "+RouteUserInfo, api(s.UserInfo()))

	// Accounts, for the user themselves or holders of the permission
	account := func(h http.HandlerFunc, perm rbac.Permission) http.HandlerFunc {
		return ChainMiddleware(h, s.APIMiddleware(s.RequireAuth, s.RequireUserAccess(perm))...)
	}
	s.RegisterRouteHandler("GET "+RouteUserPermissions, account(s.UserPermissions(), rbac.PermissionReadUsers))
	s.RegisterRouteHandler("DELETE "+RouteUserIdentity, account(s.UnlinkIdentity(), rbac.PermissionManageUsers))
	s.RegisterRouteHandler("POST "+RouteEmailChange, account(s.RequestEmailChange(), rbac.PermissionManageUsers))
	s.RegisterRouteHandler("POST "+RouteEmailVerification, account(s.SendEmailVerification(), rbac.PermissionManageUsers))
	// the code pair is the proof
	s.RegisterRouteHandler("POST "+RouteEmailChangeConfirm, api(s.ConfirmEmailChange()))

	// CORS preflight for every route
	s.RegisterRouteHandler("OPTIONS /", api(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	s.RegisterRouteHandler("GET "+RouteMetrics, ChainMiddleware(s.metrics.ServeHTTP, s.RecoverMiddleware, s.CompressionMiddleware))
	s.RegisterRouteFunc("GET "+RouteHealth, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}
