package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bimmatch/guard/internal/background"
	"github.com/bimmatch/guard/internal/clock"
	"github.com/bimmatch/guard/internal/config"
	"github.com/bimmatch/guard/internal/database"
	"github.com/bimmatch/guard/internal/handlers"
	middlewareCustom "github.com/bimmatch/guard/internal/middleware"
	"github.com/bimmatch/guard/internal/ratelimit"
	"github.com/bimmatch/guard/internal/repositories"
	"github.com/bimmatch/guard/internal/routes"
	"github.com/bimmatch/guard/internal/services"
	"github.com/bimmatch/guard/internal/session"
	"github.com/bimmatch/guard/internal/upload"
	pkghttp "github.com/bimmatch/guard/pkg/http"
	pkglogger "github.com/bimmatch/guard/pkg/logger"
)

// documentStore is what every backend offers to the services and the health check
type documentStore interface {
	services.DocumentStore
	handlers.HealthChecker
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store", cfg.Store.Type),
	)

	// Initialize the document store
	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open document store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	clk := clock.New()
	auditLogger := pkglogger.NewAuditLogger(logger)
	ipConfig := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)

	policies, err := ratelimit.NewPolicySet(cfg.RateLimit.Overrides)
	if err != nil {
		logger.Error("invalid rate limit policies", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	rateLimitService := services.NewRateLimitService(store, policies, clk, logger, auditLogger)
	sessionService := services.NewSessionService(store, clk, session.Config{
		InactivityTimeout: cfg.Session.InactivityTimeout,
		WarningGrace:      cfg.Session.WarningGrace,
		AuthRoutes:        cfg.Session.AuthRoutes,
	}, cfg.Session.Retention, logger, auditLogger)
	uploadGate := ratelimit.NewEphemeralLimiter(clk)

	filePolicy := upload.NewPolicy(nil)
	if filePolicy.MaxBytes() >= cfg.Server.MaxUploadBytes {
		logger.Warn("MAX_UPLOAD_BYTES leaves no room for the largest category, those uploads will get 413",
			slog.Int64("max_upload_bytes", cfg.Server.MaxUploadBytes),
			slog.Int64("largest_ceiling", filePolicy.MaxBytes()),
		)
	}

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(sessionService, uploadGate, logger, cfg.Session.SweepInterval)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(store, logger)
	rateLimitHandler := handlers.NewRateLimitHandler(rateLimitService, ipConfig, auditLogger, logger)
	sessionHandler := handlers.NewSessionHandler(sessionService, logger)
	uploadHandler := handlers.NewUploadHandler(uploadGate, cfg.RateLimit.UploadSoftGate, rateLimitService, filePolicy, cfg.Server.MaxUploadBytes, ipConfig, logger)

	if cfg.Admin.Token == "" {
		logger.Warn("ADMIN_TOKEN not set, admin routes are disabled")
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router,
		routes.Config{
			AdminToken:          cfg.Admin.Token,
			IPRequestsPerMinute: cfg.RateLimit.IPRequestsPerMinute,
			IPConfig:            ipConfig,
			Logger:              logger,
		},
		rateLimitService,
		healthHandler,
		rateLimitHandler,
		sessionHandler,
		uploadHandler,
	)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// No timer may fire a forced logout against a store that is closing
	sessionService.StopAll()

	logger.Info("server stopped gracefully")
}

// openStore builds the configured backend and returns a func that releases it
func openStore(cfg *config.Config, logger *slog.Logger) (documentStore, func(), error) {
	switch cfg.Store.Type {
	case config.StorePostgres:
		db, err := database.NewConnection(&cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return repositories.NewPostgresStore(db), db.Close, nil

	case config.StoreRedis:
		client, err := database.NewRedisClient(&cfg.Redis, logger)
		if err != nil {
			return nil, nil, err
		}
		return repositories.NewRedisStore(client, cfg.Redis.KeyPrefix), func() { _ = client.Close() }, nil

	default:
		logger.Warn("using in-memory store, rate limits and sessions will not survive a restart")
		return repositories.NewMemoryStore(), func() {}, nil
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
