package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-identity-server/accounts"
	"github.com/jrsteele09/go-identity-server/auth"
	fakeclientrepo "github.com/jrsteele09/go-identity-server/clients/fakerepo"
	"github.com/jrsteele09/go-identity-server/codes"
	coderedisrepo "github.com/jrsteele09/go-identity-server/codes/redisrepo"
	fakecoderepo "github.com/jrsteele09/go-identity-server/codes/repofake"
	"github.com/jrsteele09/go-identity-server/connections"
	fakeconnectionrepo "github.com/jrsteele09/go-identity-server/connections/repofake"
	"github.com/jrsteele09/go-identity-server/credentials"
	fakecredentialrepo "github.com/jrsteele09/go-identity-server/credentials/repofake"
	"github.com/jrsteele09/go-identity-server/delivery"
	"github.com/jrsteele09/go-identity-server/federation"
	"github.com/jrsteele09/go-identity-server/internal/audit"
	"github.com/jrsteele09/go-identity-server/internal/config"
	"github.com/jrsteele09/go-identity-server/loginsessions"
	fakeloginsessionrepo "github.com/jrsteele09/go-identity-server/loginsessions/repofake"
	"github.com/jrsteele09/go-identity-server/loginsessions/sqlitestore"
	"github.com/jrsteele09/go-identity-server/rbac"
	fakerbacrepo "github.com/jrsteele09/go-identity-server/rbac/repofake"
	"github.com/jrsteele09/go-identity-server/resolver"
	"github.com/jrsteele09/go-identity-server/server"
	"github.com/jrsteele09/go-identity-server/sessions"
	fakesessionrepo "github.com/jrsteele09/go-identity-server/sessions/repofake"
	tenantrepofakes "github.com/jrsteele09/go-identity-server/tenants/repofakes"
	"github.com/jrsteele09/go-identity-server/token"
	"github.com/jrsteele09/go-identity-server/token/refresh"
	refreshredisrepo "github.com/jrsteele09/go-identity-server/token/refresh/redisrepo"
	refreshrepofake "github.com/jrsteele09/go-identity-server/token/refresh/repofake"
	fakeuserrepo "github.com/jrsteele09/go-identity-server/users/repofake"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	if level, err := zerolog.ParseLevel(c.GetLogLevel()); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := wire(ctx, c)
	if err != nil {
		return err
	}
	defer app.close()

	go app.sweep(ctx, c.GetSweepInterval())

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := listenAndServe(httpServer); err != nil {
			log.Error().Err(err).Msg("listener stopped")
		}
	}()
	waitForStopSignal()
	cancel()
	return shutdown(httpServer)
}

type application struct {
	handler http.Handler
	auth    *auth.Service
	codes   *codes.Engine
	closers []func() error
}

// wire builds the stores and services. Redis and SQLite back the durable
// stores when configured; everything else is held in memory.
func wire(ctx context.Context, c config.Config) (*application, error) {
	app := &application{}

	codeRepo, refreshRepo, err := app.redisStores(ctx, c)
	if err != nil {
		return nil, err
	}
	loginRepo, err := app.loginSessionStore(c)
	if err != nil {
		return nil, err
	}

	tenantRepo := tenantrepofakes.NewFakeTenantRepo()
	clientRepo := fakeclientrepo.NewFakeClientRepo()
	connectionRepo := fakeconnectionrepo.NewFakeConnectionRepo()
	userRepo := fakeuserrepo.NewFakeUserRepo()
	rbacRepo := fakerbacrepo.NewFakeRBACRepo()
	reporter := audit.NewLogReporter(log.Logger)
	sender := delivery.NewLogSender(log.Logger)

	res, err := resolver.New(clientRepo, tenantRepo, connectionRepo)
	if err != nil {
		return nil, err
	}
	credentialStore, err := credentials.NewStore(fakecredentialrepo.NewFakeCredentialRepo(),
		credentials.WithHistoryDepth(c.GetPasswordHistoryDepth()))
	if err != nil {
		return nil, err
	}
	app.codes, err = codes.NewEngine(codeRepo, codes.WithEmailChangeTTL(c.GetEmailChangeTimeout()))
	if err != nil {
		return nil, err
	}
	refreshManager, err := refresh.NewManager(refreshRepo, reporter,
		refresh.WithDefaultLifetimes(c.GetDefaultRefreshTokenExpiry(), c.GetDefaultRefreshTokenIdleExpiry()))
	if err != nil {
		return nil, err
	}
	sessionManager, err := sessions.NewManager(fakesessionrepo.NewFakeSessionRepo(), refreshManager, reporter,
		sessions.WithLifetimes(c.GetSessionLifetime(), c.GetSessionIdleTimeout()))
	if err != nil {
		return nil, err
	}
	tokens, err := token.New(tenantRepo, token.WithTokenExpiry(c.GetDefaultAccessTokenExpiry(), c.GetDefaultIDTokenExpiry()))
	if err != nil {
		return nil, err
	}
	direct, err := rbac.NewResolver(rbacRepo)
	if err != nil {
		return nil, err
	}
	permissions, err := rbac.NewCachedResolver(direct, c.GetPermissionCacheSize(), c.GetPermissionCacheTTL())
	if err != nil {
		return nil, err
	}

	app.auth, err = auth.NewService(auth.Dependencies{
		Repos:       auth.Repos{Users: userRepo, LoginSessions: loginRepo, Organizations: rbacRepo},
		Resolver:    res,
		Credentials: credentialStore,
		Codes:       app.codes,
		Sessions:    sessionManager,
		Tokens:      tokens,
		Permissions: permissions,
		Sender:      sender,
		Reporter:    reporter,
	},
		auth.WithLogger(log.Logger),
		auth.WithTimeouts(c.GetLoginSessionTimeout(), c.GetOTPTimeout(), c.GetAuthCodeTimeout()),
		auth.WithMaxStepAttempts(c.GetMaxStepAttempts()),
		auth.WithRequirePKCE(c.GetRequirePKCE()),
	)
	if err != nil {
		return nil, err
	}
	accountService, err := accounts.NewService(userRepo, app.codes, sender, reporter,
		accounts.WithLogger(log.Logger),
		accounts.WithEmailVerificationTTL(c.GetEmailVerificationTimeout()))
	if err != nil {
		return nil, err
	}

	summary, err := server.InitialiseSystem(ctx, c, server.SystemRepos{
		Tenants:     tenantRepo,
		Clients:     clientRepo,
		Connections: connectionRepo,
		Users:       userRepo,
		RBAC:        rbac.NewInvalidatingRepo(rbacRepo, permissions),
		Credentials: credentialStore,
	})
	if err != nil {
		return nil, err
	}

	var options []server.Option
	if c.GetFederationIssuerURL() != "" {
		provider, err := federatedProvider(ctx, c, summary.Tenant.ID, connectionRepo)
		if err != nil {
			return nil, err
		}
		options = append(options, server.WithFederatedProvider(c.GetFederationConnectionID(), provider))
	}

	app.handler, err = server.New(c, server.Services{
		Auth:        app.auth,
		Accounts:    accountService,
		Codes:       app.codes,
		Permissions: permissions,
	}, options...)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (a *application) redisStores(ctx context.Context, c config.Config) (codes.Repo, refresh.Repo, error) {
	if c.GetRedisAddr() == "" {
		log.Warn().Msg("REDIS_ADDR not set, codes and refresh tokens are kept in memory")
		return fakecoderepo.NewFakeCodeRepo(), refreshrepofake.NewFakeRefreshTokenRepo(), nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{c.GetRedisAddr()},
		Password: c.GetRedisPassword(),
		DB:       c.GetRedisDB(),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", c.GetRedisAddr(), err)
	}
	a.closers = append(a.closers, client.Close)
	log.Info().Str("addr", c.GetRedisAddr()).Msg("using redis for codes and refresh tokens")
	return coderedisrepo.New(client, c.GetRedisKeyPrefix()), refreshredisrepo.New(client, c.GetRedisKeyPrefix()), nil
}

func (a *application) loginSessionStore(c config.Config) (loginsessions.Repo, error) {
	if c.GetSQLitePath() == "" {
		return fakeloginsessionrepo.NewFakeLoginSessionRepo(), nil
	}
	store, err := sqlitestore.Open(c.GetSQLitePath())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	log.Info().Str("path", c.GetSQLitePath()).Msg("using sqlite for login sessions")
	return store, nil
}

// federatedProvider registers the configured upstream issuer as a
// connection of the system tenant.
func federatedProvider(ctx context.Context, c config.Config, tenantID string, repo connections.Repo) (*federation.OIDCProvider, error) {
	provider, err := federation.NewOIDCProvider(ctx, federation.ProviderConfig{
		Name:         connections.KindOIDC,
		IssuerURL:    c.GetFederationIssuerURL(),
		ClientID:     c.GetFederationClientID(),
		ClientSecret: c.GetFederationClientSecret(),
		RedirectURL:  c.GetFederationRedirectURL(),
		Scopes:       c.GetFederationScopes(),
	})
	if err != nil {
		return nil, err
	}
	if err := repo.Upsert(ctx, &connections.Connection{
		ID:          c.GetFederationConnectionID(),
		TenantID:    tenantID,
		Name:        c.GetFederationConnectionID(),
		DisplayName: "Single sign-on",
		Kind:        connections.KindOIDC,
	}); err != nil {
		return nil, err
	}
	log.Info().Str("issuer", c.GetFederationIssuerURL()).Str("connection_id", c.GetFederationConnectionID()).Msg("federated provider registered")
	return provider, nil
}

// sweep expires overdue login sessions and purges dead codes until ctx ends.
func (a *application) sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := a.auth.SweepExpired(ctx)
			if err != nil {
				log.Err(err).Msg("login session sweep failed")
			} else if n > 0 {
				log.Debug().Int("expired", n).Msg("login sessions swept")
			}
			if _, err := a.codes.Purge(ctx, now); err != nil {
				log.Err(err).Msg("code purge failed")
			}
		}
	}
}

func (a *application) close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			log.Err(err).Msg("closing store")
		}
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
