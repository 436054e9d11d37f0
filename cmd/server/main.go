package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/actiontracker/tracker-server-go/internal/config"
	"github.com/actiontracker/tracker-server-go/internal/database"
	"github.com/actiontracker/tracker-server-go/internal/handler"
	"github.com/actiontracker/tracker-server-go/internal/jobs"
	"github.com/actiontracker/tracker-server-go/internal/mail"
	"github.com/actiontracker/tracker-server-go/internal/metrics"
	"github.com/actiontracker/tracker-server-go/internal/middleware"
	"github.com/actiontracker/tracker-server-go/internal/model"
	"github.com/actiontracker/tracker-server-go/internal/redis"
	"github.com/actiontracker/tracker-server-go/internal/repository"
	"github.com/actiontracker/tracker-server-go/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != "" || os.Getenv("APP_ENV") == "production"
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	if cfg.RunMigrations {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	var (
		redisClient *redis.Client
		locker      redis.Locker = redis.NoopLocker{}
		limiter     middleware.Limiter
	)
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL, config.DBPingTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		locker = redisClient.SessionLocker(config.SessionLockTTL, config.SessionLockWait, config.SessionLockBackoff)
		limiter = middleware.NewRedisRateLimiter(redisClient.Client)
		log.Info().Msg("redis connected")
	} else {
		limiter = middleware.NewMemoryRateLimiter()
		log.Warn().Msg("REDIS_URL not set: session lock disabled, rate limit is per process")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(registry)

	userRepo := repository.NewUserRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)
	binnacleRepo := repository.NewBinnacleRepository(db.DB)
	emailQueueRepo := repository.NewEmailQueueRepository(db.DB)
	errorLogRepo := repository.NewErrorLogRepository(db.DB)

	sender := mail.NewSMTPSender(cfg.Mail, config.SMTPTimeout)

	errorLogService := service.NewErrorLogService(errorLogRepo, userRepo)
	notificationService := service.NewNotificationService(emailQueueRepo)
	webhookService := service.NewWebhookService(service.WebhookServiceDeps{
		DB:            db,
		Users:         userRepo,
		Sessions:      sessionRepo,
		Binnacles:     binnacleRepo,
		Notifications: notificationService,
		ErrorLogs:     errorLogService,
		Locker:        locker,
		Reconciler:    service.NewReconciler(cfg.OvertimeThreshold()),
		Metrics:       recorder,
	})
	reviewService := service.NewReviewService(db, sessionRepo, binnacleRepo)
	reportService := service.NewReportService(userRepo, sessionRepo, notificationService, errorLogService, recorder)

	webhookSecrets := map[model.EventKind]string{
		model.EventStart:        cfg.Webhook.Start,
		model.EventEnd:          cfg.Webhook.End,
		model.EventEdit:         cfg.Webhook.Edit,
		model.EventDelete:       cfg.Webhook.Delete,
		model.EventManualCreate: cfg.Webhook.ManualCreate,
	}
	signatureGuard := func(kind model.EventKind) func(http.Handler) http.Handler {
		return middleware.NewClockifySignatureMiddleware(kind, webhookSecrets[kind], errorLogService).Handler
	}
	tokenAuthMiddleware := middleware.NewTokenAuthMiddleware(cfg.SecretToken, errorLogService)
	webhookRateLimit := middleware.NewIPRateLimitMiddleware(limiter, config.WebhookRateLimitPerMin, config.RateLimitWindow, "webhook")
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(config.MaxBodySize)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	webhookHandler := handler.NewWebhookHandler(webhookService, errorLogService)
	reviewHandler := handler.NewReviewHandler(reviewService, errorLogService)
	reportHandler := handler.NewReportHandler(reportService, errorLogService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", handler.NewHealthHandler(db).ServeHTTP)
	r.Handle("/metrics", metrics.Handler(registry))

	r.Route("/api-clockify", func(r chi.Router) {
		r.Route("/webhook", func(r chi.Router) {
			r.Use(webhookRateLimit.Handler)
			r.Mount("/", webhookHandler.Routes(signatureGuard))
		})

		r.Group(func(r chi.Router) {
			r.Use(tokenAuthMiddleware.Handler)
			r.Post("/sessions/{externalId}/review", reviewHandler.Review)
			r.Mount("/session-report", reportHandler.Routes())
		})
	})

	deliveryWorker := jobs.NewDeliveryWorker(emailQueueRepo, sender, errorLogService, recorder, jobs.DeliveryOptions{
		Interval:    cfg.EmailProcessInterval(),
		BatchSize:   cfg.EmailBatchSize,
		MaxRetries:  cfg.EmailMaxRetries,
		SendTimeout: config.SMTPTimeout,
	})
	overtimeMonitor := jobs.NewOvertimeMonitor(jobs.OvertimeMonitorDeps{
		DB:        db,
		Sessions:  sessionRepo,
		Binnacles: binnacleRepo,
		Users:     userRepo,
		Sender:    sender,
		ErrorLogs: errorLogService,
		Metrics:   recorder,
	}, cfg.OvertimeThreshold(), cfg.OvertimeCheckInterval())
	reportScheduler, err := jobs.NewReportScheduler(reportService, cfg.WeeklyReportCron, cfg.MonthlyReportCron)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid report schedule")
	}

	deliveryWorker.Start()
	overtimeMonitor.Start()
	reportScheduler.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	reportScheduler.Stop()
	overtimeMonitor.Stop()
	deliveryWorker.Stop()

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis")
		}
	}
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
