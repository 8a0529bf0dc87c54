package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gavault/internal/analytics"
	"gavault/internal/identity"
	"gavault/internal/oauth"
	"gavault/internal/plan"
	"gavault/internal/usage"
	"gavault/internal/vault"
	"gavault/pkg/logging"
)

const (
	// DefaultOAuthRateLimit is the default number of plugin OAuth requests
	// per IP per minute.
	DefaultOAuthRateLimit = 30

	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultWriteTimeout is the default timeout for writing responses.
	DefaultWriteTimeout = 60 * time.Second
	// DefaultIdleTimeout is the default idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second

	maxRequestBody = 64 << 10
)

// TokenSource hands out fresh access tokens.
type TokenSource interface {
	AccessToken(ctx context.Context, id identity.Identity) (string, error)
}

// CredentialVault is the part of the vault the HTTP surface needs. It never
// yields plaintext tokens.
type CredentialVault interface {
	Inspect(ctx context.Context, id identity.Identity) (vault.Status, error)
	Delete(ctx context.Context, id identity.Identity) error
}

// Options configures a Server.
type Options struct {
	Resolver *identity.Resolver
	OAuth    *oauth.Handler
	Vault    CredentialVault
	Tokens   TokenSource
	Guard    *usage.Guard
	Plans    *plan.Table
	Tiers    plan.Resolver
	Reporter analytics.Reporter
	Gatherer prometheus.Gatherer
	Clock    quartz.Clock

	// UpgradeURL is returned with RATE_LIMITED responses.
	UpgradeURL string
	// OAuthRateLimit is the per-IP request budget per minute on the plugin
	// OAuth endpoints. Zero uses DefaultOAuthRateLimit.
	OAuthRateLimit int
}

// Server is the gavault HTTP surface.
type Server struct {
	resolver   *identity.Resolver
	oauth      *oauth.Handler
	vault      CredentialVault
	tokens     TokenSource
	guard      *usage.Guard
	plans      *plan.Table
	tiers      plan.Resolver
	reporter   analytics.Reporter
	gatherer   prometheus.Gatherer
	clock      quartz.Clock
	upgradeURL string
	oauthLimit int

	router http.Handler
}

// New creates a Server and builds its routes.
func New(opts Options) (*Server, error) {
	var missing []error
	if opts.Resolver == nil {
		missing = append(missing, errors.New("identity resolver is required"))
	}
	if opts.OAuth == nil {
		missing = append(missing, errors.New("oauth handler is required"))
	}
	if opts.Vault == nil {
		missing = append(missing, errors.New("vault is required"))
	}
	if opts.Tokens == nil {
		missing = append(missing, errors.New("token source is required"))
	}
	if opts.Guard == nil {
		missing = append(missing, errors.New("usage guard is required"))
	}
	if opts.Plans == nil || opts.Tiers == nil {
		missing = append(missing, errors.New("plan table and tier resolver are required"))
	}
	if opts.Reporter == nil {
		missing = append(missing, errors.New("analytics reporter is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.OAuthRateLimit <= 0 {
		opts.OAuthRateLimit = DefaultOAuthRateLimit
	}

	s := &Server{
		resolver:   opts.Resolver,
		oauth:      opts.OAuth,
		vault:      opts.Vault,
		tokens:     opts.Tokens,
		guard:      opts.Guard,
		plans:      opts.Plans,
		tiers:      opts.Tiers,
		reporter:   opts.Reporter,
		gatherer:   opts.Gatherer,
		clock:      opts.Clock,
		upgradeURL: opts.UpgradeURL,
		oauthLimit: opts.OAuthRateLimit,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(s.resolver.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/start", s.oauth.StartWeb)
		r.Get("/google/callback", s.oauth.Callback)
		r.Post("/disconnect", s.handleDisconnect)
	})

	r.Route("/oauth", func(r chi.Router) {
		r.Use(httprate.Limit(
			s.oauthLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				logging.Warn("HTTP", "OAuth rate limit exceeded on %s", r.URL.Path)
				writeJSON(w, http.StatusTooManyRequests, oauth.ErrorResponse{
					Error:            oauth.ErrCodeTemporarilyUnavailable,
					ErrorDescription: "too many requests",
				})
			}),
		))
		r.Get("/authorize", s.oauth.Authorize)
		r.Post("/token", s.oauth.Token)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NoCache)
		r.Get("/connection", s.handleConnection)
		r.Get("/usage", s.handleUsage)
		r.Get("/properties", s.handleProperties)
		r.Post("/report", s.handleReport)
	})

	return r
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		// Requests outlive ctx so Shutdown can drain them.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logging.Info("HTTP", "Listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		return fmt.Errorf("http server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logging.Info("HTTP", "Server stopped")
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}
