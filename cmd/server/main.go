// Package main is the entry point for the Remap backend server binary. It
// dispatches three subcommands — serve, migrate, and version — via a simple
// switch on os.Args so the binary's full CLI surface is readable in one place
// without requiring a cobra dependency. The serve command runs auto-migration
// on startup so freshly deployed containers never need a separate migration
// step.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/remap-keys/remap-backend/internal/api"
	admincmd "github.com/remap-keys/remap-backend/internal/command/admin"
	"github.com/remap-keys/remap-backend/internal/command/host"
	"github.com/remap-keys/remap-backend/internal/command/keyboards"
	"github.com/remap-keys/remap-backend/internal/command/workbench"
	"github.com/remap-keys/remap-backend/internal/config"
	"github.com/remap-keys/remap-backend/internal/db"
	"github.com/remap-keys/remap-backend/internal/db/repositories"
	"github.com/remap-keys/remap-backend/internal/gateway"
	"github.com/remap-keys/remap-backend/internal/identity"
	"github.com/remap-keys/remap-backend/internal/middleware"
	"github.com/remap-keys/remap-backend/internal/notify"
	"github.com/remap-keys/remap-backend/internal/review"
	"github.com/remap-keys/remap-backend/internal/rpc"
	"github.com/remap-keys/remap-backend/internal/safego"
	"github.com/remap-keys/remap-backend/internal/taskqueue"
	"github.com/remap-keys/remap-backend/internal/telemetry"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "version":
		fmt.Printf("Remap Backend v%s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	// Install the structured logger before anything else logs.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	database, err := db.Connect(cfg.Database.DSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	slog.Info("Connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	if err := db.RunMigrations(database.DB, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database migrations completed")

	definitionRepo := repositories.NewDefinitionRepository(database)
	orgRepo := repositories.NewOrganizationRepository(database)
	taskRepo := repositories.NewBuildTaskRepository(database)
	purchaseRepo := repositories.NewPurchaseRepository(database)
	operationLogRepo := repositories.NewOperationLogRepository(database)
	administratorRepo := repositories.NewAdministratorRepository(database)

	idp := identity.NewHTTPProvider(cfg.Identity.BaseURL, cfg.Identity.Token, cfg.Identity.Timeout)

	notifier := notify.NewNotifier(
		cfg.Notifications.DiscordWebhookURL,
		cfg.Notifications.GASURL,
		cfg.Notifications.AdminBaseURL,
		[]byte(cfg.Auth.JWTSecret),
		cfg.Notifications.Timeout,
	)

	paypal, err := gateway.NewClient(cfg.Paypal.Environment, cfg.Paypal.ClientID, cfg.Paypal.ClientSecret, cfg.Paypal.Timeout)
	if err != nil {
		return fmt.Errorf("failed to create payment gateway client: %w", err)
	}

	queue := taskqueue.NewClient(
		cfg.TaskQueue.URL,
		cfg.TaskQueue.BuildServerURL,
		cfg.TaskQueue.ServiceAccountEmail,
		cfg.TaskQueue.Timeout,
	)

	// Redis backs the review dedup lock and the rate limiter when enabled;
	// both degrade to in-process implementations without it.
	var locker review.Locker = review.NewMemoryLocker()
	var limiter middleware.Limiter = middleware.NewLocalLimiter(
		cfg.Security.RateLimiting.RequestsPerMinute, cfg.Security.RateLimiting.Burst)
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		locker = review.NewRedisLocker(redisClient)
		limiter = middleware.NewRedisLimiter(redisClient,
			cfg.Security.RateLimiting.RequestsPerMinute, cfg.Security.RateLimiting.Burst)
		slog.Info("Redis enabled", "address", cfg.Redis.Address)
	}

	reviewWorkflow := review.NewWorkflow(definitionRepo, idp, notifier, locker)

	dispatcher := rpc.NewDispatcher()
	admincmd.NewCommands(definitionRepo, orgRepo, idp, notifier).Register(dispatcher, administratorRepo)
	keyboards.NewCommands(definitionRepo, orgRepo, operationLogRepo, taskRepo, queue,
		func(err error) bool { return errors.Is(err, repositories.ErrUnfinishedTaskExists) }).Register(dispatcher)
	host.NewCommands(orgRepo, idp).Register(dispatcher, orgRepo)
	workbench.NewCommands(purchaseRepo, paypal,
		func(err error) bool { return errors.Is(err, repositories.ErrStatusMismatch) }).Register(dispatcher)
	slog.Info("Registered commands", "count", len(dispatcher.Commands()))

	var verifier middleware.TokenVerifier
	if cfg.Auth.OIDC.Enabled {
		verifier, err = middleware.NewOIDCVerifier(context.Background(), cfg.Auth.OIDC)
		if err != nil {
			return fmt.Errorf("failed to initialize OIDC verifier: %w", err)
		}
		slog.Info("OIDC token verification enabled", "issuer", cfg.Auth.OIDC.IssuerURL)
	} else {
		verifier = middleware.NewHS256Verifier(cfg.Auth.JWTSecret)
	}

	// Metrics are served on a dedicated port so the scrape path never goes
	// through the public ingress or the rate limiter.
	if cfg.Telemetry.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.PrometheusPort)
		safego.Go(func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("Starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server error", "error", err)
			}
		})
	}

	router := api.NewRouter(api.Dependencies{
		Config:     cfg,
		DB:         database,
		Dispatcher: dispatcher,
		Verifier:   verifier,
		Limiter:    limiter,
		Review:     reviewWorkflow,
		Notifier:   notifier,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	safego.Go(func() {
		slog.Info("Starting server", "addr", addr, "baseUrl", cfg.Server.BaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server stopped gracefully")
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.DSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("Running migrations", "direction", direction)
	if err := db.RunMigrations(database.DB, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("Migration completed")
	return nil
}
