package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/go-resty/resty/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/leadcapture/cmd/mainconfig"
	"github.com/wolfman30/leadcapture/internal/api/router"
	"github.com/wolfman30/leadcapture/internal/compliance"
	appconfig "github.com/wolfman30/leadcapture/internal/config"
	"github.com/wolfman30/leadcapture/internal/dispatch"
	"github.com/wolfman30/leadcapture/internal/eligibility"
	httpmiddleware "github.com/wolfman30/leadcapture/internal/http/middleware"
	"github.com/wolfman30/leadcapture/internal/httpclient"
	"github.com/wolfman30/leadcapture/internal/intake"
	"github.com/wolfman30/leadcapture/internal/leads"
	"github.com/wolfman30/leadcapture/internal/notify"
	"github.com/wolfman30/leadcapture/internal/observability/metrics"
	"github.com/wolfman30/leadcapture/internal/session"
	"github.com/wolfman30/leadcapture/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting leadcapture API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	metricsHandler, intakeMetrics := setupMetrics()

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}
	sqlDB := connectSQL(cfg.DatabaseURL, logger)
	if sqlDB != nil {
		defer func() { _ = sqlDB.Close() }()
	}

	var leadsRepo leads.Repository = leads.NewInMemoryRepository()
	if pool != nil {
		leadsRepo = leads.NewPostgresRepository(pool)
	}

	var eligibilityStore eligibility.Store = eligibility.NewMemoryStore()
	var auditHandler *compliance.AuditHandler
	var recorder compliance.DecisionRecorder
	if sqlDB != nil {
		eligibilityStore = eligibility.NewPostgresStore(sqlDB)
		audit := compliance.NewAuditService(sqlDB.DB)
		recorder = audit
		auditHandler = compliance.NewAuditHandler(audit, logger)
	}

	var sessions session.Store = session.NewMemoryStore()
	if redisClient := mainconfig.BuildRedisClient(ctx, cfg, logger, true); redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		sessions = session.NewRedisStore(redisClient, cfg.SessionTTL)
		logger.Info("redis session store enabled", "addr", cfg.RedisAddr)
	}

	client := httpclient.New(httpclient.Config{Timeout: cfg.OutboundTimeout})

	gateway, err := buildGateway(cfg, client, recorder, intakeMetrics, logger)
	if err != nil {
		logger.Error("failed to build compliance gateway", "error", err)
		os.Exit(1)
	}

	dispatcher := dispatch.New(dispatch.Config{
		Client:      client,
		URL:         cfg.WebhookURL,
		Auth:        cfg.WebhookAuth,
		MaxAttempts: cfg.WebhookMaxAttempts,
		Backoff:     cfg.WebhookBackoff,
		Marker:      leadsRepo,
		Metrics:     intakeMetrics,
		Logger:      logger,
	})

	intakeCfg := intake.Config{
		Repo:       leadsRepo,
		Gateway:    gateway,
		Dispatcher: dispatcher,
		Chat:       notify.NewDiscord(client, cfg.DiscordWebhookURL, intakeMetrics, logger),
		Sessions:   sessions,
		Metrics:    intakeMetrics,
		Logger:     logger,
	}
	if alerts := notify.NewLeadAlerts(buildEmailSender(ctx, cfg, logger), cfg.LeadAlertRecipients, logger); alerts.Enabled() {
		intakeCfg.Alerts = alerts
	}
	if cfg.WhatsAppAPIKey != "" && cfg.WhatsAppFromNumber != "" {
		intakeCfg.Messages = notify.NewWhatsApp(client, notify.WhatsAppConfig{
			URL:         cfg.WhatsAppAPIURL,
			APIKey:      cfg.WhatsAppAPIKey,
			FromNumber:  cfg.WhatsAppFromNumber,
			CountryCode: cfg.WhatsAppCountryCode,
		}, intakeMetrics, logger)
	}
	intakeService := intake.NewService(intakeCfg)

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer limiter.Stop()

	r := router.New(&router.Config{
		Logger:        logger,
		LeadsHandler:  leads.NewHandler(leadsRepo, logger),
		IntakeHandler: intake.NewHandler(intakeService, logger),
		EligibilityHandler: eligibility.NewHandler(eligibility.HandlerConfig{
			Store:         eligibilityStore,
			Logger:        logger,
			Metrics:       intakeMetrics,
			ListingPrefix: cfg.EligibilityListingPrefix,
		}),
		AuditHandler:       auditHandler,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		MetricsHandler:     metricsHandler,
		HealthCheck:        healthCheck(pool, sqlDB),
	})
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set, admin routes are unauthenticated")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (http.Handler, *metrics.IntakeMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewIntakeMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

func connectPostgresPool(ctx context.Context, url string, logger *logging.Logger) *pgxpool.Pool {
	if url == "" {
		logger.Warn("DATABASE_URL not set, leads are kept in memory")
		return nil
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		os.Exit(1)
	}
	return pool
}

func connectSQL(url string, logger *logging.Logger) *sqlx.DB {
	if url == "" {
		return nil
	}
	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		logger.Error("failed to connect sql database", "error", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db
}

// buildGateway leaves a check disabled when its endpoint is not configured.
func buildGateway(cfg *appconfig.Config, client *resty.Client, recorder compliance.DecisionRecorder, m *metrics.IntakeMetrics, logger *logging.Logger) (*compliance.Gateway, error) {
	labels := compliance.DefaultLabels()
	if cfg.FormLabelsFile != "" {
		loaded, err := compliance.LoadLabels(cfg.FormLabelsFile)
		if err != nil {
			return nil, err
		}
		labels = loaded
	}

	gwCfg := compliance.GatewayConfig{
		Labels:           labels,
		Recorder:         recorder,
		DefaultSourceURL: cfg.DefaultSourceURL,
		Metrics:          m,
		Logger:           logger,
	}
	if cfg.ContentModeratorURL != "" {
		gwCfg.Moderator = compliance.NewModerationClient(client, cfg.ContentModeratorURL, cfg.ContentModeratorKey)
	}
	if cfg.DNCCheckURL != "" {
		gwCfg.DNC = compliance.NewDNCClient(client, cfg.DNCCheckURL)
	}
	if cfg.IPEchoURL != "" {
		// The echo lookup is idempotent, so resty may retry it.
		echo := httpclient.New(httpclient.Config{Timeout: cfg.OutboundTimeout, Retries: 2})
		gwCfg.IP = compliance.NewIPEchoClient(echo, cfg.IPEchoURL)
	}
	if cfg.FrequencyURL != "" {
		gwCfg.Frequency = compliance.NewFrequencyClient(client, cfg.FrequencyURL, cfg.FrequencyAuth)
	}
	return compliance.NewGateway(gwCfg), nil
}

// buildEmailSender returns nil when email alerts are disabled.
func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("sendgrid selected without SENDGRID_API_KEY, email alerts disabled")
	case "ses":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config, email alerts disabled", "error", err)
			return nil
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
	case "stub":
		return notify.NewStubEmailSender(logger)
	}
	return nil
}

func healthCheck(pool *pgxpool.Pool, db *sqlx.DB) func(ctx context.Context) error {
	if pool == nil && db == nil {
		return nil
	}
	return func(ctx context.Context) error {
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("postgres pool: %w", err)
			}
		}
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("sql db: %w", err)
			}
		}
		return nil
	}
}
