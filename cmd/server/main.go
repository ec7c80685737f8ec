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

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/irfndi/gatekeeper/internal/api"
	"github.com/irfndi/gatekeeper/internal/authority"
	"github.com/irfndi/gatekeeper/internal/config"
	"github.com/irfndi/gatekeeper/internal/database"
	"github.com/irfndi/gatekeeper/internal/events"
	"github.com/irfndi/gatekeeper/internal/logging"
	"github.com/irfndi/gatekeeper/internal/middleware"
	"github.com/irfndi/gatekeeper/internal/models"
	"github.com/irfndi/gatekeeper/internal/moderation"
	"github.com/irfndi/gatekeeper/internal/ratelimit"
	"github.com/irfndi/gatekeeper/internal/registry"
	"github.com/irfndi/gatekeeper/internal/uniqueness"
	"github.com/irfndi/gatekeeper/internal/utils"
	"github.com/irfndi/gatekeeper/internal/verification"
	"go.uber.org/zap"
)

const serviceName = "gatekeeper"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration, opens storage, serves HTTP and blocks until
// SIGINT or SIGTERM.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	stdLogger := logging.NewStandardLogger(cfg.LogLevel, cfg.Environment)
	logger := stdLogger.WithService(serviceName)
	defer func() { _ = logger.Sync() }()

	if cfg.Telemetry.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Telemetry.SentryDSN,
			Environment:      cfg.Environment,
			Release:          serviceName + "@" + version,
			EnableTracing:    true,
			TracesSampleRate: cfg.Telemetry.TracesSampleRate,
		}); err != nil {
			logger.Warn("Failed to initialize Sentry", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDatabaseConnectionWithContext(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			stdLogger.WithError(err).Error("Failed to close database connection")
		}
	}()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	var redisClient *database.RedisClient
	if cfg.Redis.Enabled {
		redisClient, err = database.NewRedisConnection(cfg.Redis, stdLogger.WithComponent("redis"))
		if err != nil {
			if cfg.Limits.Store == "redis" {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			logger.Warn("Redis unavailable, continuing without it", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	app, err := wire(cfg, db, redisClient, stdLogger)
	if err != nil {
		return err
	}
	defer app.close()

	router := gin.New()
	router.Use(middleware.Telemetry())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(stdLogger.WithComponent("http")))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	api.SetupRoutes(router, app.deps)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		stdLogger.LogStartup(serviceName, version, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		stdLogger.LogShutdown(serviceName, sig.String())
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

type application struct {
	deps  api.Dependencies
	close func()
}

// wire builds the services behind the routes. redisClient may be nil.
func wire(cfg *config.Config, db database.Database, redisClient *database.RedisClient, stdLogger *logging.StandardLogger) (*application, error) {
	loc, err := cfg.Limits.Location()
	if err != nil {
		return nil, fmt.Errorf("limits.timezone: %w", err)
	}

	store, err := newLimitStore(cfg, db, redisClient)
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.New(store, map[models.ActionKind]int{
		models.ActionBlock:  cfg.Limits.Block,
		models.ActionReport: cfg.Limits.Report,
	}, ratelimit.WithLocation(loc), ratelimit.WithLogger(stdLogger.WithComponent("ratelimit")))

	client := authority.NewClient(cfg.Authority.BaseURL,
		authority.WithTimeout(cfg.Authority.Timeout),
		authority.WithAPIKey(cfg.Authority.APIKey),
		authority.WithLogger(stdLogger.WithComponent("authority")),
	)

	var sink events.Sink = events.Discard{}
	if redisClient != nil {
		sink = events.NewPublisher(redisClient.Client, stdLogger.WithComponent("events"))
	}

	formLogger := stdLogger.WithComponent("uniqueness")
	newForm := func() *uniqueness.Form {
		return uniqueness.NewForm(client, client,
			uniqueness.WithDelay(cfg.Checker.DebounceDelay),
			uniqueness.WithTTL(cfg.Checker.CacheTTL),
			uniqueness.WithMinLength(uniqueness.FieldUsername, cfg.Checker.UsernameMinLength),
			uniqueness.WithMinLength(uniqueness.FieldPhone, cfg.Checker.PhoneMinLength),
			uniqueness.WithLogger(formLogger),
		)
	}
	forms := registry.New[*uniqueness.Form]("forms", cfg.Checker.FormIdleTimeout,
		registry.WithLogger(stdLogger.WithComponent("forms")))

	verifications := verification.NewRegistry(
		verification.Deps{Phones: client, OTP: client},
		cfg.Verification.SessionIdleTimeout,
		stdLogger.WithComponent("verification"),
		verification.WithOnVerified(func(userID, phone string) {
			stdLogger.LogBusinessEvent("phone_verified", map[string]interface{}{
				"user_id": userID,
				"phone":   utils.MaskPhone(phone),
			})
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			err := sink.Emit(ctx, events.TypePhoneVerified, userID, events.VerifiedPayload{
				PhoneMasked:      utils.MaskPhone(phone),
				PhoneFingerprint: utils.Fingerprint(phone),
			})
			if err != nil {
				stdLogger.WithUserID(userID).Warn("Failed to publish verification event", zap.Error(err))
			}
		}),
	)

	guard := moderation.NewGuard(limiter, client, stdLogger.WithComponent("moderation"), moderation.WithEvents(sink))

	throttle := middleware.DefaultThrottleConfig()
	if cfg.Server.RequestsPerMinute > 0 {
		throttle.Requests = cfg.Server.RequestsPerMinute
	}

	deps := api.Dependencies{
		DB:            db,
		Forms:         forms,
		NewForm:       newForm,
		Verifications: verifications,
		Limiter:       limiter,
		Guard:         guard,
		Auth: middleware.AuthConfig{
			Secret: []byte(cfg.Auth.JWTSecret),
			Issuer: cfg.Auth.Issuer,
		},
		Throttle: throttle,
		Version:  version,
		Logger:   stdLogger.Logger(),
	}
	// A nil *RedisClient must not become a non-nil HealthChecker.
	if redisClient != nil {
		deps.Redis = redisClient
		deps.RedisClient = redisClient.Client
	}

	return &application{
		deps: deps,
		close: func() {
			forms.Close()
			verifications.Close()
		},
	}, nil
}

func newLimitStore(cfg *config.Config, db database.Database, redisClient *database.RedisClient) (ratelimit.Store, error) {
	switch cfg.Limits.Store {
	case "memory":
		return ratelimit.NewMemoryStore(), nil
	case "redis":
		if redisClient == nil {
			return nil, errors.New("limits.store is redis but no redis connection is available")
		}
		return ratelimit.NewRedisStore(redisClient.Client, cfg.Limits.RedisTTL), nil
	case "sql", "":
		return ratelimit.NewSQLStore(db, database.DetectDBType(cfg.Database.Driver)), nil
	default:
		return nil, fmt.Errorf("unknown limits.store %q", cfg.Limits.Store)
	}
}
