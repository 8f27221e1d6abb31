package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/noah-isme/backend-dansa/internal/app"
	"github.com/noah-isme/backend-dansa/internal/auth"
	"github.com/noah-isme/backend-dansa/internal/basket"
	"github.com/noah-isme/backend-dansa/internal/catalog"
	"github.com/noah-isme/backend-dansa/internal/checkout"
	"github.com/noah-isme/backend-dansa/internal/common"
	"github.com/noah-isme/backend-dansa/internal/config"
	"github.com/noah-isme/backend-dansa/internal/events"
	"github.com/noah-isme/backend-dansa/internal/health"
	"github.com/noah-isme/backend-dansa/internal/lock"
	"github.com/noah-isme/backend-dansa/internal/notify"
	"github.com/noah-isme/backend-dansa/internal/obs"
	"github.com/noah-isme/backend-dansa/internal/order"
	"github.com/noah-isme/backend-dansa/internal/payment"
	"github.com/noah-isme/backend-dansa/internal/promo"
	"github.com/noah-isme/backend-dansa/internal/ratelimit"
	"github.com/noah-isme/backend-dansa/internal/resilience"
	"github.com/noah-isme/backend-dansa/internal/security"
)

func main() {
	cfg := config.MustLoad()

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "dansa")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.MustRegisterMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName: "dansa-api",
			Endpoint:    envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Environment: cfg.AppEnv,
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	deps, err := app.Build(ctx, cfg, logger, app.Options{
		InstrumentRedis: tracingEnabled,
		ApplicationName: "dansa-api",
	})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("build dependencies")
	}
	defer deps.Close()

	if err := app.RunMigrations(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	catalogHTTP := resilience.HTTPClient{
		Client:      &http.Client{},
		Breaker:     resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRate, cfg.CircuitOpenFor).WithTarget("catalog").WithLogger(logger),
		BaseBackoff: cfg.RetryBase,
		MaxAttempts: cfg.RetryMaxAttempts,
		Jitter:      cfg.RetryJitterPercent,
		Timeout:     cfg.OutboundTimeout,
		Target:      "catalog",
		Logger:      &logger,
	}
	catalogClient := &catalog.GraphQLClient{
		HTTP:    catalogHTTP,
		BaseURL: cfg.CatalogURL,
		Token:   cfg.CatalogToken,
	}
	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Client: catalogClient,
		Cache:  catalog.NewCache(deps.Redis, cfg.CatalogCacheTTL),
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := &catalog.Handler{Service: catalogSvc}

	baskets := &basket.Service{
		Store:           basket.Store{R: deps.Redis, TTL: cfg.BasketTTL},
		Catalog:         catalogSvc,
		Locker:          lock.Locker{R: deps.Redis, RetryBackoff: cfg.LockRetryBackoff},
		LockTTL:         cfg.LockTTL,
		RegistrationFee: cfg.RegistrationFee,
		Currency:        cfg.Currency,
		Logger:          logger,
	}
	basketHandler := &basket.Handler{Svc: baskets, Validate: deps.Validator}

	promoSvc := &promo.Service{Baskets: baskets, Catalog: catalogSvc, Logger: logger}
	promoHandler := &promo.Handler{Svc: promoSvc, Validate: deps.Validator}

	authSvc, err := auth.NewService(auth.Config{
		Store:           auth.NewStore(deps.DB),
		Secret:          cfg.JWTSecret,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authMiddleware := auth.Middleware{Service: authSvc}

	mailer := common.NopEmailSender{}
	emailNotifier := notify.EmailNotifier{
		Mail:    mailer,
		Enabled: envBool("NOTIFY_EMAIL_ENABLED", false),
	}
	bus := &events.Bus{
		Store:     events.NewStore(deps.DB),
		Notifiers: []events.Notifier{emailNotifier},
	}
	authHandler := &auth.Handler{
		Svc:      authSvc,
		Validate: deps.Validator,
		Events:   bus,
		Email:    mailer,
		BaseURL:  envOrDefault("PUBLIC_BASE_URL", ""),
	}

	stripeHTTP := resilience.HTTPClient{
		Client:      &http.Client{},
		Breaker:     resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRate, cfg.CircuitOpenFor).WithTarget("stripe").WithLogger(logger),
		BaseBackoff: cfg.RetryBase,
		MaxAttempts: cfg.RetryMaxAttempts,
		Jitter:      cfg.RetryJitterPercent,
		Timeout:     cfg.OutboundTimeout,
		Target:      "stripe",
		Logger:      &logger,
	}
	gateway := &payment.Stripe{
		HTTP:      stripeHTTP,
		BaseURL:   cfg.StripeBaseURL,
		SecretKey: cfg.StripeSecretKey,
	}

	orderSvc := &order.Service{
		Store:    order.NewStore(deps.DB),
		Events:   bus,
		Notifier: &notify.Enqueuer{Client: deps.TaskClient, Logger: logger},
		Logger:   logger,
	}
	orderHandler := &order.Handler{Svc: orderSvc}

	customers := &payment.Customers{
		Store:   authSvc,
		Gateway: gateway,
		Users:   authSvc,
		Logger:  logger,
	}

	checkoutSvc := &checkout.Service{
		Baskets:   baskets,
		Gateway:   gateway,
		Placer:    orderSvc,
		Events:    bus,
		Customers: customers,
		Currency:  cfg.Currency,
		Logger:    logger,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc, Validate: deps.Validator}

	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}
	basketWriteLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: deps.Redis},
		Config: ratelimit.Config{
			Key: func(r *http.Request) string {
				if owner, ok := basket.OwnerID(r); ok {
					return "rl:basket:" + owner
				}
				return "rl:basket:ip:" + common.ClientIP(r)
			},
			Window: cfg.BasketWriteWindow,
			Max:    cfg.BasketWriteMax,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("basket rate limit") },
	}
	authLimit := limiterstdlib.NewMiddleware(deps.AuthLimiter())

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true}.Middleware)
	r.Use(security.BodyLimit{Max: 1 << 20}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", auth.SessionHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(authMiddleware.Authenticate)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: deps.DB, redis: deps.Redis},
		DBTimeout:    500 * time.Millisecond,
		RedisTimeout: 300 * time.Millisecond,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/v1", func(v chi.Router) {
		v.Get("/courses", catalogHandler.Courses)
		v.Get("/courses/{id}", catalogHandler.CourseDetail)

		v.Route("/auth", func(a chi.Router) {
			a.Use(authLimit.Handler)
			a.Post("/register", authHandler.Register)
			a.Post("/login", authHandler.Login)
			a.Post("/refresh", authHandler.Refresh)
			a.Post("/logout", authHandler.Logout)
			a.Post("/forgot", authHandler.Forgot)
			a.Post("/reset", authHandler.Reset)
			a.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
		})

		v.Route("/basket", func(b chi.Router) {
			b.Get("/", basketHandler.Get)
			b.Group(func(g chi.Router) {
				g.Use(basketWriteLimit.Middleware)
				g.Post("/items", basketHandler.AddItem)
				g.Delete("/items/{kind}/{id}", basketHandler.RemoveItem)
				g.Post("/fees", basketHandler.SetFee)
				g.Delete("/", basketHandler.Clear)
				g.Post("/promo", promoHandler.Apply)
				g.Delete("/promo", promoHandler.Remove)
				g.Post("/credit", promoHandler.Credit)
			})
		})

		// checkout is where a guest becomes a customer: orders need a user
		// row, so the whole flow sits behind authentication
		v.Route("/checkout", func(c chi.Router) {
			c.Use(authMiddleware.RequireAuth)
			c.Post("/", checkoutHandler.Start)
			c.Get("/", checkoutHandler.State)
			c.Delete("/", checkoutHandler.Reset)
			c.Post("/steps/next", checkoutHandler.NextStep)
			c.Post("/steps/previous", checkoutHandler.PreviousStep)
			c.Post("/payment-method", checkoutHandler.SelectMethod)
			c.Post("/billing", checkoutHandler.SetBilling)
			c.Post("/payment-methods", checkoutHandler.CreateCard)
			c.With(idem.Middleware).Post("/pay", checkoutHandler.Pay)
			c.Post("/3ds", checkoutHandler.Complete3DS)
		})

		v.Group(func(protected chi.Router) {
			protected.Use(authMiddleware.RequireAuth)
			protected.Get("/orders", orderHandler.List)
			protected.Get("/orders/{id}", orderHandler.Get)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	health.SetReady(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
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
