package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/coder/quartz"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"gavault/internal/analytics"
	"gavault/internal/authcode"
	"gavault/internal/cipher"
	"gavault/internal/config"
	"gavault/internal/identity"
	"gavault/internal/kv"
	"gavault/internal/metrics"
	"gavault/internal/oauth"
	"gavault/internal/plan"
	"gavault/internal/refresh"
	"gavault/internal/server"
	"gavault/internal/usage"
	"gavault/internal/vault"
	"gavault/pkg/logging"
)

// outboundTimeout bounds every call to Google.
const outboundTimeout = 30 * time.Second

// Application represents the main application structure that bootstraps and
// runs gavault.
//
// The Application follows a two-phase initialization pattern:
//  1. Bootstrap phase: load configuration, initialize logging, build components
//  2. Execution phase: serve HTTP and watch the config file
type Application struct {
	cfg        *config.Config
	configPath string
	store      kv.Store
	plans      *plan.Table
	server     *server.Server
}

// NewApplication loads and validates the configuration, initializes logging
// and builds every component.
func NewApplication(appCfg *Config) (*Application, error) {
	cfg, err := config.Load(appCfg.ConfigPath, appCfg.Lookup)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if appCfg.Debug {
		level = logging.LevelDebug
	}
	logging.Init(level, cfg.Logging.Format, os.Stderr)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := newStore(cfg.Storage)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to create key-value store")
		return nil, err
	}

	app, err := build(cfg, store, quartz.NewReal(), prometheus.NewRegistry())
	if err != nil {
		closeStore(store)
		return nil, err
	}
	app.configPath = appCfg.ConfigPath
	return app, nil
}

// build wires the components on top of store.
func build(cfg *config.Config, store kv.Store, clock quartz.Clock, registry *prometheus.Registry) (*Application, error) {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)
	keys := kv.NewKeys(cfg.Storage.KeyPrefix)

	key, err := cipher.ParseKey(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	c, err := cipher.New(key)
	if err != nil {
		return nil, err
	}

	v, err := vault.New(vault.Options{Store: store, Keys: keys, Cipher: c, Clock: clock, Metrics: m})
	if err != nil {
		return nil, err
	}

	googleHTTP := &http.Client{
		Transport: oauth.NewInstrumentedTransport("google", m, nil),
		Timeout:   outboundTimeout,
	}

	engine, err := refresh.New(refresh.Options{
		Vault:    v,
		Provider: refresh.NewHTTPProvider(cfg.Google.TokenURL, cfg.Google.ClientID, cfg.Google.ClientSecret, googleHTTP),
		Store:    store,
		Keys:     keys,
		Clock:    clock,
		Metrics:  m,
		Config: refresh.Config{
			ExpiryMargin: cfg.Refresh.ExpiryMargin,
			Timeout:      cfg.Refresh.Timeout,
			LockTTL:      cfg.Refresh.LockTTL,
		},
	})
	if err != nil {
		return nil, err
	}

	broker, err := authcode.New(authcode.Options{Store: store, Keys: keys, Clock: clock, Metrics: m, TTL: cfg.Plugin.CodeTTL})
	if err != nil {
		return nil, err
	}

	guard, err := usage.New(usage.Options{Store: store, Keys: keys, Clock: clock, Metrics: m})
	if err != nil {
		return nil, err
	}
	if guard.Consistency() != usage.Exact {
		logging.Warn("Bootstrap", "Store has no atomic counter; usage limits are best effort")
	}

	table, err := plan.NewTable(cfg.Plans.DefaultTier, toLimits(cfg.Plans.Tiers))
	if err != nil {
		return nil, err
	}

	signer, err := identity.NewSigner([]byte(cfg.Plugin.SigningKey), cfg.Plugin.ClientID, cfg.Plugin.TokenTTL, clock)
	if err != nil {
		return nil, err
	}
	resolver := identity.NewResolver(cfg.Server.CookieName, signer)

	oauthCfg := oauth.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: oauth.NewRedactedToken(cfg.Google.ClientSecret),
		RedirectURL:  cfg.GoogleRedirectURL(),
		Scopes:       cfg.Google.Scopes,
	}
	if cfg.Google.AuthURL != "" || cfg.Google.TokenURL != "" {
		oauthCfg.Endpoint = oauth2.Endpoint{
			AuthURL:   cfg.Google.AuthURL,
			TokenURL:  cfg.Google.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		}
	}

	handler := oauth.NewHandler(oauth.HandlerOptions{
		Connector:       oauth.NewClient(oauthCfg, googleHTTP, clock),
		Vault:           v,
		States:          oauth.NewStateStore(store, keys, clock),
		Codes:           broker,
		Tokens:          signer,
		Client:          identity.NewClientCredentials(cfg.Plugin.ClientID, cfg.Plugin.ClientSecret),
		CookieName:      resolver.CookieName(),
		SecureCookies:   cfg.Server.SecureCookies,
		RedirectURIs:    cfg.Plugin.RedirectURIs,
		AfterConnectURL: cfg.Server.AfterConnectURL,
	})

	srv, err := server.New(server.Options{
		Resolver: resolver,
		OAuth:    handler,
		Vault:    v,
		Tokens:   engine,
		Guard:    guard,
		Plans:    table,
		Tiers:    plan.NewKVResolver(store, keys, table),
		Reporter: analytics.NewGoogleReporter(analytics.GoogleConfig{
			AdminEndpoint: cfg.Google.AdminEndpoint,
			DataEndpoint:  cfg.Google.DataEndpoint,
			HTTPClient:    &http.Client{Timeout: outboundTimeout},
		}),
		Gatherer:       registry,
		Clock:          clock,
		UpgradeURL:     cfg.Server.UpgradeURL,
		OAuthRateLimit: cfg.Server.OAuthRateLimit,
	})
	if err != nil {
		return nil, err
	}

	return &Application{cfg: cfg, store: store, plans: table, server: srv}, nil
}

func toLimits(tiers map[string]map[string]int64) map[string]plan.Limits {
	out := make(map[string]plan.Limits, len(tiers))
	for tier, limits := range tiers {
		out[tier] = plan.Limits(limits)
	}
	return out
}

// Handler returns the HTTP handler of the application.
func (a *Application) Handler() http.Handler {
	return a.server.Handler()
}

// Run serves HTTP until ctx is done. When a config file is in use, plan
// changes in it are applied without a restart.
func (a *Application) Run(ctx context.Context) error {
	defer closeStore(a.store)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.Server.ListenAddr, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Serve(ctx, ln)
	})
	if a.configPath != "" {
		g.Go(func() error {
			// Plan reload is optional; the server keeps running without it.
			if err := config.Watch(ctx, a.configPath, a.applyPlans); err != nil {
				logging.Warn("Bootstrap", "Plan reload disabled: %v", err)
			}
			return nil
		})
	}

	notifySystemd(daemon.SdNotifyReady)
	logging.Info("Bootstrap", "gavault is ready on %s (public URL %s)", ln.Addr(), a.cfg.Server.PublicURL)

	err = g.Wait()
	notifySystemd(daemon.SdNotifyStopping)
	return err
}

func (a *Application) applyPlans(plans config.PlansConfig) {
	if err := a.plans.Replace(plans.DefaultTier, toLimits(plans.Tiers)); err != nil {
		logging.Warn("Bootstrap", "Rejected plan reload: %v", err)
		return
	}
	logging.Info("Bootstrap", "Plan limits updated (default tier %s)", plans.DefaultTier)
}

func notifySystemd(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logging.Debug("Bootstrap", "Failed to notify systemd: %v", err)
		return
	}
	if sent {
		logging.Debug("Bootstrap", "Notified systemd: %s", state)
	}
}

func closeStore(store kv.Store) {
	closer, ok := store.(kv.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn("Bootstrap", "Failed to close store: %v", err)
	}
}
