// Wayfarer Core - Trip Planner Backend
//
// This is the main entry point for the Wayfarer backend service. It wires
// the authentication and session-security subsystem behind the HTTP API:
// credential verification with brute-force lockout, JWT access token
// issuance, and refresh-token rotation with reuse detection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/wayfarer-app/wayfarer-core/migrations"

	"github.com/wayfarer-app/wayfarer-core/internal/api"
	"github.com/wayfarer-app/wayfarer-core/internal/audit"
	"github.com/wayfarer-app/wayfarer-core/internal/auth"
	"github.com/wayfarer-app/wayfarer-core/internal/infrastructure/config"
	"github.com/wayfarer-app/wayfarer-core/internal/infrastructure/database"
	"github.com/wayfarer-app/wayfarer-core/internal/infrastructure/logging"
	"github.com/wayfarer-app/wayfarer-core/internal/infrastructure/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Wayfarer Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Wire the auth service
	accounts := auth.NewAccountRepository(db.DB)
	tokens := auth.NewTokenRepository(db.DB)

	codec := auth.NewTokenCodec(auth.CodecConfig{
		Secret:     cfg.Auth.JWT.Secret,
		Issuer:     cfg.Auth.JWT.Issuer,
		Audience:   cfg.Auth.JWT.Audience,
		AccessTTL:  cfg.Auth.AccessTokenTTL(),
		RefreshTTL: cfg.Auth.RefreshTokenTTL(),
	}, auth.SystemClock)

	lockout := auth.NewLockout(accounts, auth.LockoutConfig{
		Threshold: cfg.Auth.Lockout.Threshold,
		Duration:  cfg.Auth.LockoutDuration(),
	}, auth.SystemClock)

	authSvc, err := auth.NewService(accounts, tokens, codec, lockout, auth.SystemClock,
		log.With("component", "auth").Logger)
	if err != nil {
		return fmt.Errorf("creating auth service: %w", err)
	}
	log.Info("auth service initialised",
		"access_ttl", cfg.Auth.AccessTokenTTL().String(),
		"refresh_ttl", cfg.Auth.RefreshTokenTTL().String(),
		"lockout_threshold", cfg.Auth.Lockout.Threshold,
	)

	// Audit trail
	auditRepo := audit.NewSQLiteRepository(db.DB)
	authSvc.SetAudit(audit.NewTrail(auditRepo, log.With("component", "audit").Logger))

	// Connect to telemetry backend (optional)
	var telemetryClient *telemetry.Client
	if cfg.Telemetry.Enabled {
		telemetryClient, err = telemetry.Connect(cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting telemetry: %w", err)
		}
		defer func() {
			log.Info("closing telemetry connection")
			if closeErr := telemetryClient.Close(); closeErr != nil {
				log.Error("error closing telemetry", "error", closeErr)
			}
		}()
		telemetryClient.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
		authSvc.SetTelemetry(telemetryClient)
		log.Info("telemetry connected",
			"url", cfg.Telemetry.URL,
			"org", cfg.Telemetry.Org,
			"bucket", cfg.Telemetry.Bucket,
		)
	} else {
		log.Info("telemetry disabled")
	}

	// Start the HTTP API
	var metrics api.RequestRecorder
	if telemetryClient != nil {
		metrics = telemetryClient
	}
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		Logger:    log.With("component", "api"),
		Auth:      authSvc,
		Codec:     codec,
		AuditRepo: auditRepo,
		DB:        db,
		Metrics:   metrics,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Periodically purge expired refresh tokens
	go sweepTokensLoop(ctx, authSvc, cfg.Auth.SweepTokensEvery(), log)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, telemetryClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Telemetry (if enabled)
	// 3. Database

	log.Info("Wayfarer Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses WAYFARER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WAYFARER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// sweepTokensLoop periodically deletes expired refresh token rows until
// the context is cancelled.
func sweepTokensLoop(ctx context.Context, svc *auth.Service, interval time.Duration, log *logging.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := svc.SweepExpiredTokens(ctx)
			if err != nil {
				log.Error("token sweep failed", "error", err)
				continue
			}
			if deleted > 0 {
				log.Info("expired refresh tokens purged", "count", deleted)
			}
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// The telemetry client may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, telemetryClient *telemetry.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if telemetryClient != nil {
		if err := telemetryClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}

	return nil
}
