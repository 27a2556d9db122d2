package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-checkout/internal/cart"
	"github.com/noah-isme/storefront-checkout/internal/catalog"
	"github.com/noah-isme/storefront-checkout/internal/checkout"
	"github.com/noah-isme/storefront-checkout/internal/coins"
	"github.com/noah-isme/storefront-checkout/internal/common"
	"github.com/noah-isme/storefront-checkout/internal/config"
	"github.com/noah-isme/storefront-checkout/internal/coupon"
	"github.com/noah-isme/storefront-checkout/internal/events"
	"github.com/noah-isme/storefront-checkout/internal/health"
	"github.com/noah-isme/storefront-checkout/internal/lock"
	"github.com/noah-isme/storefront-checkout/internal/obs"
	"github.com/noah-isme/storefront-checkout/internal/order"
	"github.com/noah-isme/storefront-checkout/internal/payment"
	"github.com/noah-isme/storefront-checkout/internal/ratelimit"
	"github.com/noah-isme/storefront-checkout/internal/remote"
	"github.com/noah-isme/storefront-checkout/internal/resilience"
	"github.com/noah-isme/storefront-checkout/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.ServiceName).With().Str("env", cfg.AppEnv).Logger()
	zerolog.DefaultContextLogger = &logger

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, prometheus.DefaultRegisterer)
	if err := resilience.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		logger.Fatal().Err(err).Msg("register breaker metrics")
	}
	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, nil, prometheus.DefaultRegisterer)

	shutdownTracer, err := obs.InitTracer(context.Background(), obs.TracingConfig{
		ServiceName:   cfg.ServiceName,
		Environment:   cfg.AppEnv,
		Endpoint:      cfg.OTLPEndpoint,
		SamplingRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise tracing")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	redisClient := mustRedis(cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	httpClient := remote.NewHTTPClient(cfg.UpstreamTimeout)
	collaborator := func(baseURL, target string) *remote.Client {
		c := remote.New(baseURL, target, httpClient, cfg.UpstreamMaxAttempts)
		c.HTTP.Breaker.WithLogger(logger)
		if cfg.ServiceToken != "" {
			c.Header = http.Header{"Authorization": []string{"Bearer " + cfg.ServiceToken}}
		}
		return c
	}

	catalogBase, catalogPath, err := splitURL(cfg.CatalogCSVURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse catalog csv url")
	}
	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Source: catalog.HTTPSource{Client: collaborator(catalogBase, "catalog-export"), Path: catalogPath},
		Cache:  catalog.NewRedisCache(redisClient, "checkout:"),
		TTL:    cfg.CatalogCacheTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}

	var provider payment.Provider
	if cfg.RazorpayEnabled() {
		provider = payment.NewRazorpay(cfg.RazorpayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret, httpClient, cfg.UpstreamMaxAttempts)
	} else {
		logger.Warn().Msg("razorpay credentials missing, gateway charges will fail and leave orders pending payment")
	}

	notifiers := []events.Notifier{events.LogNotifier{Logger: logger}}
	if cfg.EventWebhookURL != "" {
		if err := events.ValidateWebhookURL(cfg.EventWebhookURL); err != nil {
			logger.Fatal().Err(err).Msg("event webhook url")
		}
		hook := remote.New(cfg.EventWebhookURL, "event-webhook", httpClient, cfg.UpstreamMaxAttempts)
		notifiers = append(notifiers, events.WebhookNotifier{
			HTTP:      &hook.HTTP,
			URL:       cfg.EventWebhookURL,
			Secret:    cfg.EventWebhookSecret,
			Topics:    events.DefaultTopics(),
			Replay:    redisClient,
			ReplayTTL: cfg.IdempotencyTTL,
		})
	}
	bus := &events.Bus{Notifiers: notifiers}

	checkoutSvc := &checkout.Service{
		Store:         checkout.NewRedisStore(redisClient, cfg.CheckoutSessionTTL),
		Locks:         lock.Locker{R: redisClient, Prefix: "checkout:lock:", TTL: cfg.SessionLockTTL},
		Carts:         cart.Client{Remote: collaborator(cfg.CartServiceURL, "cart-service")},
		Coupons:       coupon.Client{Remote: collaborator(cfg.CouponServiceURL, "coupon-service")},
		Wallet:        coins.WalletClient{Remote: collaborator(cfg.WalletServiceURL, "wallet-service")},
		Catalog:       catalogSvc,
		GatewayConfig: payment.ConfigClient{Remote: collaborator(cfg.GatewayConfigURL, "gateway-config")},
		Orders:        order.Client{Remote: collaborator(cfg.OrderServiceURL, "order-service")},
		Payments:      &payment.Service{Provider: provider, Currency: cfg.CurrencyCode},
		Events:        bus,
		Logger:        logger,
		Currency:      cfg.CurrencyCode,
	}

	couponLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "checkout:rl:"},
		Config:  ratelimit.Config{Key: ratelimit.ByUser("coupon"), Window: cfg.CouponRateWindow, Max: cfg.CouponRateLimit},
		OnError: func(err error) { logger.Warn().Err(err).Msg("coupon rate limiter unavailable") },
	}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	checkoutHandler := &checkout.Handler{
		Svc:         checkoutSvc,
		CouponLimit: couponLimit.Middleware,
		Idempotency: idem.Middleware,
	}

	healthHandler := health.Handler{
		Probes:  map[string]health.Probe{"redis": health.RedisProbe{Client: redisClient}},
		Timeout: 300 * time.Millisecond,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.Tracing("checkout-api"))
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(common.UserFromHeader)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", common.UserIDHeader},
		ExposedHeaders:   []string{"X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	if envBool("OBS_ENABLE_PPROF", false) {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), os.Getenv("PPROF_BASIC_AUTH_USER"), os.Getenv("PPROF_BASIC_AUTH_PASS")))
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1/checkout", func(c chi.Router) {
		c.Use(common.RequireUser)
		c.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
		checkoutHandler.Routes(c)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func mustRedis(cfg *config.Config, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

// splitURL separates a full export URL into the collaborator base and path.
func splitURL(raw string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", errors.New("absolute url required")
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return u.Scheme + "://" + u.Host, path, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
