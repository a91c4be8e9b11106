// Package gateway wires the proxy pool, the rotation state machine and the
// forwarding layer into the HTTP surface of the service.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/avproxygw/internal/auth"
	"github.com/vyrodovalexey/avproxygw/internal/config"
	"github.com/vyrodovalexey/avproxygw/internal/health"
	"github.com/vyrodovalexey/avproxygw/internal/middleware"
	"github.com/vyrodovalexey/avproxygw/internal/observability"
	"github.com/vyrodovalexey/avproxygw/internal/pool"
	"github.com/vyrodovalexey/avproxygw/internal/proxy"
	"github.com/vyrodovalexey/avproxygw/internal/rotation"
	"github.com/vyrodovalexey/avproxygw/internal/routing"
)

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions.
var ginModeOnce sync.Once

// Gateway owns the process-wide pool, the per-identity rotation state and the
// HTTP server that exposes them.
type Gateway struct {
	cfg       *config.Config
	logger    *zap.Logger
	pool      *pool.Pool
	store     *rotation.Store
	selector  *rotation.Selector
	router    *routing.Router
	forwarder *proxy.Forwarder
	resolver  auth.IdentityResolver
	adminAuth *auth.AdminAuthenticator
	metrics   *observability.Metrics
	checker   *health.Checker

	refresher   *pool.Refresher
	fileWatcher *config.FileWatcher
	rateLimiter *middleware.RateLimiter

	clock   rotation.Clock
	version string

	httpServer *http.Server
	mu         sync.Mutex
	running    bool
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithClock sets the clock used by the rotation core. Tests inject a fake
// clock here.
func WithClock(c rotation.Clock) Option {
	return func(g *Gateway) {
		g.clock = c
	}
}

// WithIdentityResolver replaces the default BasicResolver.
func WithIdentityResolver(r auth.IdentityResolver) Option {
	return func(g *Gateway) {
		g.resolver = r
	}
}

// WithVersion sets the version string reported by the health endpoints.
func WithVersion(v string) Option {
	return func(g *Gateway) {
		g.version = v
	}
}

// New creates a gateway from configuration. The pool is seeded from the
// static list, the proxies file and the remote source, in that order; a
// malformed static list is a startup failure.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, config.ErrInvalidConfig
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Gateway{
		cfg:     cfg,
		logger:  logger,
		clock:   rotation.RealClock(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(g)
	}

	g.pool = pool.New(pool.WithLogger(logger.Named("pool")))
	g.store = rotation.NewStore(
		rotation.WithClock(g.clock),
		rotation.WithCooldown(cfg.Rotation.Cooldown.Duration()),
		rotation.WithSettleDelay(cfg.Rotation.SettleDelay.Duration()),
		rotation.WithLedgerCap(cfg.Rotation.LedgerCap),
		rotation.WithStoreLogger(logger.Named("rotation")),
	)
	g.selector = rotation.NewSelector(g.pool, g.store, logger.Named("selector"))
	g.router = routing.New(g.selector, g.clock, logger.Named("routing"))

	if g.resolver == nil {
		g.resolver = auth.NewBasicResolver()
	}
	g.adminAuth = auth.NewAdminAuthenticator(cfg.Admin.Token)
	g.metrics = observability.NewMetrics("proxygw")

	g.checker = health.NewChecker(g.version)
	g.checker.AddReadinessCheck("pool", func() bool {
		return g.pool.Len() > 0
	})

	var transport http.RoundTripper = http.DefaultTransport
	if cfg.Breaker.Enabled {
		transport = proxy.NewBreakerTransport(
			transport,
			cfg.Breaker.Threshold,
			cfg.Breaker.Timeout.Duration(),
			logger.Named("breaker"),
		)
	}
	g.forwarder = proxy.NewForwarder(
		proxy.WithTransport(transport),
		proxy.WithForwarderLogger(logger.Named("forwarder")),
		proxy.WithResultCallback(g.metrics.RecordForward),
	)

	if err := g.seedPool(); err != nil {
		return nil, err
	}

	return g, nil
}

// seedPool loads the initial pool contents from the configured sources.
func (g *Gateway) seedPool() error {
	if g.cfg.Pool.Static != "" {
		descriptors, err := pool.ParseList(g.cfg.Pool.Static)
		if err != nil {
			return fmt.Errorf("failed to parse static proxy list: %w", err)
		}
		for _, d := range descriptors {
			if err := g.pool.Add(d); err != nil {
				return fmt.Errorf("failed to seed pool: %w", err)
			}
		}
	}

	if g.cfg.Pool.File != "" {
		if err := g.loadProxiesFile(g.cfg.Pool.File); err != nil {
			return err
		}
	}

	if g.cfg.Pool.RemoteURL != "" {
		fetcher := pool.NewFetcher(g.cfg.Pool.RemoteURL)
		descriptors, err := fetcher.Fetch(context.Background())
		if err != nil {
			// A down remote source at startup is survivable when another
			// source seeded the pool.
			g.logger.Warn("initial remote pool fetch failed", zap.Error(err))
		} else if len(descriptors) > 0 {
			g.pool.Replace(descriptors)
		}

		if interval := g.cfg.Pool.RefreshInterval.Duration(); interval > 0 {
			g.refresher = pool.NewRefresher(g.pool, fetcher, interval, g.logger.Named("refresher"))
		}
	}

	g.metrics.SetPoolSize(g.pool.Len())
	return nil
}

// loadProxiesFile replaces the pool from the proxy list file, one
// host:port:user:pass entry per line.
func (g *Gateway) loadProxiesFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return fmt.Errorf("failed to read proxy list file: %w", err)
	}

	descriptors, err := pool.ParseList(strings.ReplaceAll(string(data), "\n", ","))
	if err != nil {
		return fmt.Errorf("failed to parse proxy list file: %w", err)
	}

	g.pool.Replace(descriptors)
	g.metrics.SetPoolSize(g.pool.Len())
	return nil
}

// Handler builds the full HTTP handler: the gin-routed control surface plus
// the catch-all forwarding path, wrapped in the ambient middleware chain.
// The execution order (outermost first): Recovery -> RequestID -> Logging ->
// RateLimit -> routes.
func (g *Gateway) Handler() http.Handler {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	engine := gin.New()
	g.registerRoutes(engine)

	var h http.Handler = engine

	if g.cfg.RateLimit.Enabled {
		g.rateLimiter = middleware.NewRateLimiter(
			g.cfg.RateLimit.RequestsPerSecond,
			g.cfg.RateLimit.Burst,
			g.logger.Named("ratelimit"),
		)
		g.rateLimiter.StartAutoCleanup()
		h = middleware.RateLimit(g.rateLimiter)(h)
	}

	h = middleware.Logging(g.logger)(h)
	h = middleware.RequestID()(h)
	h = middleware.Recovery(g.logger)(h)

	return h
}

// Start starts the HTTP server and the background loops. It blocks until the
// server stops.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return fmt.Errorf("gateway already running")
	}

	addr := fmt.Sprintf("%s:%d", g.cfg.Server.Address, g.cfg.Server.Port)
	g.httpServer = &http.Server{
		Addr:         addr,
		Handler:      g.Handler(),
		ReadTimeout:  g.cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: g.cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  g.cfg.Server.IdleTimeout.Duration(),
	}
	g.running = true
	g.mu.Unlock()

	g.store.StartSweeper()
	if g.refresher != nil {
		g.refresher.Start()
	}
	if g.cfg.Pool.File != "" {
		watcher, err := config.NewFileWatcher(
			g.cfg.Pool.File,
			func(path string) {
				if err := g.loadProxiesFile(path); err != nil {
					g.logger.Warn("proxy list reload failed, keeping previous pool", zap.Error(err))
				}
			},
			config.WithWatcherLogger(g.logger.Named("watcher")),
		)
		if err != nil {
			g.logger.Warn("failed to watch proxy list file", zap.Error(err))
		} else if err := watcher.Start(); err != nil {
			g.logger.Warn("failed to start proxy list watcher", zap.Error(err))
		} else {
			g.fileWatcher = watcher
		}
	}

	g.logger.Info("starting gateway",
		zap.String("address", addr),
		zap.Int("pool_size", g.pool.Len()),
		zap.Bool("admin_enabled", g.adminAuth.Enabled()),
		zap.Duration("cooldown", g.store.Cooldown()),
	)

	err := g.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		g.mu.Lock()
		g.running = false
		g.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop shuts the gateway down gracefully.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return nil
	}
	g.running = false
	g.mu.Unlock()

	g.logger.Info("stopping gateway")

	g.store.Stop()
	if g.refresher != nil {
		g.refresher.Stop()
	}
	if g.fileWatcher != nil {
		_ = g.fileWatcher.Stop()
	}
	if g.rateLimiter != nil {
		g.rateLimiter.Stop()
	}

	if err := g.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	g.logger.Info("gateway stopped")
	return nil
}

// Pool returns the gateway's proxy pool.
func (g *Gateway) Pool() *pool.Pool {
	return g.pool
}

// Selector returns the gateway's rotation selector.
func (g *Gateway) Selector() *rotation.Selector {
	return g.selector
}
