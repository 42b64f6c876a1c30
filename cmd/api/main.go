package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/backend-giftshop/internal/analytics"
	"github.com/noah-isme/backend-giftshop/internal/app"
	"github.com/noah-isme/backend-giftshop/internal/cache"
	"github.com/noah-isme/backend-giftshop/internal/catalog"
	"github.com/noah-isme/backend-giftshop/internal/checkout"
	"github.com/noah-isme/backend-giftshop/internal/common"
	"github.com/noah-isme/backend-giftshop/internal/config"
	"github.com/noah-isme/backend-giftshop/internal/content"
	"github.com/noah-isme/backend-giftshop/internal/currency"
	"github.com/noah-isme/backend-giftshop/internal/db"
	"github.com/noah-isme/backend-giftshop/internal/events"
	"github.com/noah-isme/backend-giftshop/internal/feed"
	"github.com/noah-isme/backend-giftshop/internal/health"
	"github.com/noah-isme/backend-giftshop/internal/inquiry"
	"github.com/noah-isme/backend-giftshop/internal/lock"
	"github.com/noah-isme/backend-giftshop/internal/obs"
	"github.com/noah-isme/backend-giftshop/internal/payment"
	"github.com/noah-isme/backend-giftshop/internal/ratelimit"
	"github.com/noah-isme/backend-giftshop/internal/reviews"
	"github.com/noah-isme/backend-giftshop/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "giftshop")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "giftshop-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.MigrateOnStart {
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL, "giftshop-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisClient, err := app.NewRedis(ctx, cfg.RedisURL, metricsEnabled, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	taskClient := app.NewTaskClient(redisClient)
	sinks, closeSinks, err := app.BuildSinks(cfg, app.Dependencies{Redis: redisClient, Tasks: taskClient, Logger: logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise analytics sinks")
	}
	defer func() {
		if err := closeSinks(); err != nil {
			logger.Error().Err(err).Msg("close analytics sinks")
		}
	}()
	bus := &events.Bus{Sinks: sinks, Logger: logger}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Queries:      &catalog.PGStore{DB: pool},
		Cache:        cache.NewLayered("catalog", redisClient, cfg.CatalogCacheTTL, cfg.CatalogLocalCache),
		Converter:    currency.BGNToEUR(),
		Normalizers:  []catalog.Normalizer{inquiry.EnsureDefaults},
		DefaultLimit: cfg.CatalogDefaultLimit,
		MaxLimit:     cfg.CatalogMaxLimit,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.Handler{Service: catalogService}

	mailer := common.LogEmailSender{Logger: logger}
	if cfg.InquiryRecipient() == "" {
		logger.Warn().Msg("no inquiry recipient configured; inquiries will be rejected")
	}
	inquiryHandler := &inquiry.Handler{Svc: &inquiry.Service{
		Products:  catalogService,
		Mailer:    mailer,
		Recipient: cfg.InquiryRecipient(),
		Logger:    logger,
	}}

	reviewHandler := &reviews.Handler{Svc: &reviews.Service{
		Store:    &reviews.PGStore{DB: pool},
		Products: catalogService,
	}}

	contentHandler := &content.Handler{Svc: &content.Service{
		Store: &content.PGStore{DB: pool},
		Cache: cache.NewLayered("content", redisClient, cfg.ContentCacheTTL, 16),
	}}

	feedHandler := &feed.Handler{Source: catalogService, BaseURL: cfg.PublicBaseURL, Logger: logger}

	gateway, err := app.NewGateway(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise payment gateway")
	}
	if gateway == nil {
		logger.Warn().Msg("stripe secret key missing; checkout is disabled")
	}
	checkoutHandler := &checkout.Handler{Svc: &checkout.Service{
		Catalog:   catalogService,
		Payments:  payment.NewService(gateway, logger),
		Locker:    lock.Locker{R: redisClient, RetryBackoff: 50 * time.Millisecond, Wait: cfg.CheckoutLockWait},
		LockTTL:   cfg.CheckoutLockTTL,
		Discounts: cfg.CheckoutDiscountCodes,
		Events:    bus,
		Logger:    logger,
	}}
	stripeWebhook := payment.Webhook{
		Secret:    cfg.StripeWebhookSecret,
		Replay:    redisClient,
		ReplayTTL: cfg.IdempotencyTTL,
		Events:    bus,
		Orders:    payment.OrderMailer{Mailer: mailer, AdminTo: cfg.AdminEmail},
		Logger:    logger,
	}

	analyticsHandler := &analytics.Handler{Events: bus, Logger: logger}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	limiterStore, err := app.NewLimiterStore(redisClient, "rl:analytics")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise limiter store")
	}
	analyticsLimiter, err := ratelimit.NewFixedWindow(limiterStore, cfg.AnalyticsRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse analytics rate limit")
	}
	analyticsRate := ratelimit.Handler{
		Limiter: analyticsLimiter,
		Key:     ratelimit.ByClientIP("analytics"),
		Logger:  logger,
	}
	formRate := func(scope string) func(http.Handler) http.Handler {
		return ratelimit.Handler{
			Limiter: ratelimit.SlidingWindow{Client: redisClient, Prefix: "rl:", Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
			Key:     ratelimit.ByClientIP(scope),
			Logger:  logger.With().Str("scope", scope).Logger(),
		}.Middleware
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.HSTSEnabled}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{Checks: []health.Check{
		{Name: "db", Timeout: envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500), Probe: pool.Ping},
		{Name: "redis", Timeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300), Probe: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}},
	}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Get("/feeds/products.csv", feedHandler.Products)

	// Stripe signs the raw payload, so the webhook sits outside the body limit.
	r.Post("/api/v1/webhooks/stripe", stripeWebhook.Handle)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

		v.Get("/categories", catalogHandler.Categories)
		v.Get("/products", catalogHandler.Products)
		v.Route("/products/{slug}", func(p chi.Router) {
			p.Get("/", catalogHandler.ProductDetail)
			p.With(formRate("inquiry")).Post("/inquiries", inquiryHandler.Submit)
			p.Get("/reviews", reviewHandler.List)
			p.With(formRate("reviews")).Post("/reviews", reviewHandler.Create)
		})
		v.Get("/reviews/featured", reviewHandler.Featured)

		v.Route("/content", func(c chi.Router) {
			c.Get("/banner", contentHandler.Banner)
			c.Get("/promotion", contentHandler.Promotion)
		})

		v.With(idem.Middleware).Post("/checkout/payment-intent", checkoutHandler.PaymentIntent)
		v.With(analyticsRate.Middleware).Post("/analytics/events", analyticsHandler.Track)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
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

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
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
