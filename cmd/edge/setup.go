package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/aelexs/edge-session-gateway/internal/config"
	"github.com/aelexs/edge-session-gateway/internal/domain"
	"github.com/aelexs/edge-session-gateway/internal/edge/adapter"
	"github.com/aelexs/edge-session-gateway/internal/edge/app"
	"github.com/aelexs/edge-session-gateway/internal/edge/port"
	"github.com/aelexs/edge-session-gateway/internal/policy"
	redisclient "github.com/aelexs/edge-session-gateway/internal/redis"
	"github.com/aelexs/edge-session-gateway/internal/server"
	"github.com/aelexs/edge-session-gateway/internal/session"
)

// Demo identity seeded into the in-process backend in local development.
const (
	devUsername = "dev@example.com"
	devPassword = "devpass"
	devSubject  = "user-dev-001"
)

// Development signing keys. Production requires SESSION_SECRET from the
// deployment environment; config validation rejects its absence there.
var (
	devCookieKey  = []byte("local-dev-cookie-key-32-bytes-ok")
	devBackendKey = []byte("local-dev-minter-key-32-bytes-ok")
)

// setup is the edge service composition root. It creates the session
// codec, route policy, Redis adapters, the auth backend, and mounts the
// auth endpoints and the session pipeline onto the server mux.
func setup(ctx context.Context, deps server.SetupDeps) (server.CleanupFunc, error) {
	cfg := deps.Config
	logger := deps.Logger

	clock := domain.RealClock{}

	// 1. Session codec and cookie transport.
	codec, err := session.NewCodec(cookieKey(cfg, logger))
	if err != nil {
		return nil, fmt.Errorf("create session codec: %w", err)
	}
	transport := session.NewTransport(codec, session.CookieConfig{
		Name:   cfg.Session.Cookie,
		Secure: cfg.Session.Secure,
		MaxAge: cfg.Session.TTL,
	})

	// 2. Route policy.
	pol, err := loadPolicy(cfg, logger)
	if err != nil {
		return nil, err
	}

	// 3. Redis-backed denylist and rate limiter (optional outside prod).
	var (
		redisClient *redisclient.Client
		denylist    app.Denylist
		rateLimiter app.RateLimiter
	)
	if cfg.Redis.Addr != "" {
		redisClient = redisclient.NewClient(redisclient.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			ReadTimeout:  cfg.Redis.Timeout,
			WriteTimeout: cfg.Redis.Timeout,
		})
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.Timeout)
		if err := redisClient.Ping(pingCtx); err != nil {
			logger.Warn("redis unreachable at startup, denylist and rate limits degraded until it recovers",
				slog.String("addr", cfg.Redis.Addr),
				slog.String("error", err.Error()),
			)
		}
		cancel()
		denylist = adapter.NewDenylist(redisClient.RDB)
		rateLimiter = adapter.NewRateLimiter(redisClient.RDB)
	} else {
		logger.Warn("redis not configured, logout denylist and rate limits disabled")
	}

	// 4. Auth backend (environment-dependent).
	backend := createBackend(cfg, clock, logger)

	// 5. Edge service.
	svc := app.NewService(app.ServiceConfig{
		Backend:     backend,
		Denylist:    denylist,
		RateLimiter: rateLimiter,
		Clock:       clock,
		Logger:      logger,
	})

	// 6. HTTP surface: auth endpoints beside the pipeline, the pipeline
	// in front of everything else.
	authHandler := port.NewAuthHandler(port.AuthHandlerConfig{
		Service:   svc,
		Transport: transport,
		Clock:     clock,
		LoginPath: cfg.Edge.Login,
		Logger:    logger,
	})
	authHandler.Register(deps.Mux)

	upstream, err := createUpstream(cfg, logger)
	if err != nil {
		return nil, err
	}

	pipeline := port.NewPipeline(port.PipelineConfig{
		Service:   svc,
		Transport: transport,
		Policy:    pol,
		Clock:     clock,
		Skew:      cfg.Session.Skew,
		Logger:    logger,
	})
	deps.Mux.Handle("/", pipeline.Wrap(upstream))

	logger.InfoContext(ctx, "edge session gateway initialized",
		slog.Int("policy_rules", pol.Len()),
		slog.Bool("redis", redisClient != nil),
	)

	cleanup := func(_ context.Context) error {
		if redisClient != nil {
			return redisClient.Close()
		}
		return nil
	}
	return cleanup, nil
}

// cookieKey returns the session cookie signing key.
// Local: a compiled development key. Elsewhere: SESSION_SECRET, whose
// presence config validation already enforced.
func cookieKey(cfg *config.Config, logger *slog.Logger) domain.SecretBytes {
	if !cfg.Session.Secret.IsEmpty() {
		return domain.SecretBytes(cfg.Session.Secret.Expose())
	}
	logger.Warn("SESSION_SECRET not set, using the built-in development key")
	return devCookieKey
}

// loadPolicy returns the route policy. A configured file always wins and
// a broken one is fatal; only local runs without one, wide open.
func loadPolicy(cfg *config.Config, logger *slog.Logger) (*policy.Policy, error) {
	if cfg.Policy.File != "" {
		pol, err := policy.Load(cfg.Policy.File, cfg.Edge.Login)
		if err != nil {
			return nil, fmt.Errorf("load route policy: %w", err)
		}
		return pol, nil
	}

	logger.Warn("no policy file configured, every route is public")
	return policy.Default(cfg.Edge.Login), nil
}

// createBackend returns the auth backend for the environment.
// Local without BACKEND_URL: an in-process backend seeded with a demo
// user (no external dependency). Anything else: the HTTP auth API.
func createBackend(cfg *config.Config, clock domain.Clock, logger *slog.Logger) app.Backend {
	if cfg.IsLocal() && cfg.Backend.URL == "" {
		backend := adapter.NewMemoryBackend(adapter.MemoryBackendConfig{
			SignKey: devBackendKey,
			Clock:   clock,
		})
		backend.AddUser(devUsername, devPassword, devSubject)
		logger.Info("using in-process auth backend for local development",
			slog.String("username", devUsername))
		return backend
	}

	return adapter.NewAuthAPI(adapter.AuthAPIConfig{
		BaseURL: cfg.Backend.URL,
		Key:     cfg.Backend.Key,
		Timeout: cfg.Backend.Timeout,
		Clock:   clock,
	})
}

// createUpstream returns the handler the pipeline fronts.
// Local without EDGE_UPSTREAM: a built-in page rendering the session
// state, so the full login loop works with zero dependencies.
func createUpstream(cfg *config.Config, logger *slog.Logger) (http.Handler, error) {
	if cfg.Edge.Upstream == "" {
		logger.Info("no upstream configured, serving the built-in demo page")
		return demoUpstream(), nil
	}

	target, err := url.Parse(cfg.Edge.Upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url %q: %w", cfg.Edge.Upstream, err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("upstream request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		w.WriteHeader(http.StatusBadGateway)
	}
	return proxy, nil
}

// demoUpstream renders what a proxied app would see, through the
// read-only session view the pipeline injects.
func demoUpstream() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		store, ok := session.FromContext(r.Context())
		if !ok || !store.Authenticated() {
			fmt.Fprintf(w, "anonymous request to %s\n", r.URL.Path)
			return
		}
		subject, _ := store.Subject()
		fmt.Fprintf(w, "authenticated as %s: %s\n", subject, r.URL.Path)
	})
}
