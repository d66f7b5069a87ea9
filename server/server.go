// Package server exposes the identity provider core as a JSON API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-identity-server/accounts"
	"github.com/jrsteele09/go-identity-server/auth"
	"github.com/jrsteele09/go-identity-server/codes"
	"github.com/jrsteele09/go-identity-server/federation"
	"github.com/jrsteele09/go-identity-server/internal/config"
	"github.com/jrsteele09/go-identity-server/rbac"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// FederatedExchanger turns an upstream authorization code into a verified
// identity. federation.OIDCProvider implements it.
type FederatedExchanger interface {
	Exchange(ctx context.Context, code, codeVerifier, nonce string) (*federation.Result, error)
}

var _ FederatedExchanger = (*federation.OIDCProvider)(nil)

// Services are what the handlers call into.
type Services struct {
	Auth        *auth.Service
	Accounts    *accounts.Service
	Codes       *codes.Engine
	Permissions rbac.PermissionResolver
}

type Server struct {
	env        string // Environment (e.g., "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	config     config.Config
	services   Services
	federation map[string]FederatedExchanger // by connection id
	metrics    http.Handler
}

type Option func(*Server)

// WithFederatedProvider registers the upstream provider behind a federated
// connection.
func WithFederatedProvider(connectionID string, provider FederatedExchanger) Option {
	return func(s *Server) {
		s.federation[connectionID] = provider
	}
}

// WithMetricsHandler replaces the default Prometheus handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

func New(cfg config.Config, services Services, options ...Option) (*Server, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("[server.New] config is required")
	case services.Auth == nil:
		return nil, errors.New("[server.New] auth service is required")
	case services.Accounts == nil:
		return nil, errors.New("[server.New] accounts service is required")
	case services.Codes == nil:
		return nil, errors.New("[server.New] code engine is required")
	case services.Permissions == nil:
		return nil, errors.New("[server.New] permission resolver is required")
	}

	s := &Server{
		env:        cfg.GetEnv(),
		mux:        http.NewServeMux(),
		config:     cfg,
		services:   services,
		federation: make(map[string]FederatedExchanger),
		metrics:    promhttp.Handler(),
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Debug().Msgf("[%s%s%s] %s", color, paddedMethod, ResetColor, path)
}
