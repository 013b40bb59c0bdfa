package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-patungan/internal/common"
	"github.com/noah-isme/backend-patungan/internal/config"
	"github.com/noah-isme/backend-patungan/internal/health"
	"github.com/noah-isme/backend-patungan/internal/lock"
	"github.com/noah-isme/backend-patungan/internal/obs"
	"github.com/noah-isme/backend-patungan/internal/payment"
	"github.com/noah-isme/backend-patungan/internal/ratelimit"
	"github.com/noah-isme/backend-patungan/internal/realtime"
	"github.com/noah-isme/backend-patungan/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName: "patungan-api",
			Environment: cfg.AppEnv,
			Endpoint:    cfg.OTLPEndpoint,
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("ping redis")
		}
		defer func() { _ = redisClient.Close() }()
	} else {
		logger.Warn().Msg("REDIS_URL not set: realtime, rate limiting and replay protection disabled")
	}

	var store session.Store
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect database")
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("ping database")
		}
		pgStore := session.NewPostgresStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("ensure schema")
		}
		store = pgStore
	} else {
		logger.Warn().Msg("DATABASE_URL not set: sessions held in memory")
		store = session.NewMemoryStore()
	}

	locks := lock.NewKeyed()
	bus := &realtime.Bus{Redis: redisClient, Logger: logger}
	validate := validator.New()

	sessionSvc := &session.Service{
		Store:         store,
		Locks:         locks,
		Events:        bus,
		Logger:        logger,
		PublicBaseURL: cfg.PublicBaseURL,
	}
	sessionHandler := &session.Handler{Svc: sessionSvc, Validate: validate}

	providers := map[string]payment.Provider{
		"mock": payment.MockProvider{},
	}
	if cfg.StripeSecretKey != "" {
		providers["stripe"] = payment.StripeProvider{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
		}
	}
	activeProvider := providers[cfg.PaymentProvider]
	if activeProvider == nil {
		logger.Warn().Str("provider", cfg.PaymentProvider).Msg("unknown payment provider, falling back to mock")
		activeProvider = providers["mock"]
	}
	paymentSvc := &payment.Service{
		Store:    store,
		Locks:    locks,
		Provider: activeProvider,
		Events:   bus,
		Logger:   logger,
	}
	paymentHandler := &payment.Handler{Svc: paymentSvc, Validate: validate}
	webhookHandler := payment.Webhook{
		Providers: providers,
		Svc:       paymentSvc,
		ReplayTTL: cfg.WebhookReplayTTL,
	}
	if redisClient != nil {
		webhookHandler.Replay = redisClient
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	joinLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("join"),
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("rate limiter unavailable") },
	}
	createLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:"},
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP("create"),
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("rate limiter unavailable") },
	}

	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.Tracing)
	}
	r.Use(httpMetrics.Instrument)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	healthHandler := health.Handler{
		Store: storeProbe(pool),
		Redis: redisProbe(redisClient),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/sessions", func(s chi.Router) {
			s.With(createLimit.Middleware, idem.Middleware).Post("/", sessionHandler.Create)
			s.Route("/{id}", func(child chi.Router) {
				child.Get("/", sessionHandler.Get)
				child.Get("/qr", sessionHandler.QR)
				child.With(joinLimit.Middleware, idem.Middleware).Post("/join", sessionHandler.Join)
				child.Put("/calculate", sessionHandler.Calculate)
				child.Put("/calculate/custom", sessionHandler.CalculateCustom)
				child.Get("/status", sessionHandler.Status)
				child.Post("/cancel", sessionHandler.Cancel)
				child.With(idem.Middleware).Post("/payments", paymentHandler.Attempt)
			})
		})
		v.Post("/webhooks/payment/{provider}", webhookHandler.Handle)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func storeProbe(pool *pgxpool.Pool) health.Probe {
	if pool == nil {
		return func(context.Context) error { return nil }
	}
	return func(ctx context.Context) error { return pool.Ping(ctx) }
}

func redisProbe(client *redis.Client) health.Probe {
	if client == nil {
		return nil
	}
	return func(ctx context.Context) error { return client.Ping(ctx).Err() }
}
