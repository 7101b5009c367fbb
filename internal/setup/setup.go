// Package setup wires configuration, logging, tracing and storage together
// for the command line entry points.
package setup

import (
	"context"
	"fmt"
	"log"

	"github.com/onlyrealroles/ghostscore/internal/database"
	"github.com/onlyrealroles/ghostscore/internal/database/migrations"
	"github.com/onlyrealroles/ghostscore/internal/redis"
	"github.com/onlyrealroles/ghostscore/internal/setup/config"
	"github.com/onlyrealroles/ghostscore/internal/setup/telemetry"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// Options selects the optional parts of the application.
type Options struct {
	// SkipDatabase leaves DB nil, for the in-memory dry-run mode.
	SkipDatabase bool
	// MetricsAddr serves Prometheus metrics when non-empty.
	MetricsAddr string
}

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config          *config.Config     // Application configuration
	Logger          *zap.Logger        // Main application logger
	DBLogger        *zap.Logger        // Database-specific logger
	DB              database.Client    // Database connection pool, nil with SkipDatabase
	RedisManager    *redis.Manager     // Redis connection manager
	LogManager      *telemetry.Manager // Log management system
	shutdownTracing func(context.Context) error
	pprofServer     *httpServer
	metricsServer   *httpServer
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, serviceType telemetry.ServiceType, logDir string, opts Options) (*App, error) {
	// Load app configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logManager := telemetry.NewManager(serviceType, logDir, &cfg.Common.Debug)

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		return nil, err
	}

	shutdownTracing := telemetry.ConfigureTracing(&cfg.Common.Telemetry, serviceType, logger)

	// Redis manager provides connection pools for the queue and worker status
	redisManager := redis.NewManager(&cfg.Common.Redis, logger)

	// Initialize database with migration check
	var db database.Client
	if !opts.SkipDatabase {
		db, err = checkAndRunMigrations(ctx, &cfg.Common, dbLogger)
		if err != nil {
			return nil, err
		}
	}

	app := &App{
		Config:          cfg,
		Logger:          logger,
		DBLogger:        dbLogger.Named("database"),
		DB:              db,
		RedisManager:    redisManager,
		LogManager:      logManager,
		shutdownTracing: shutdownTracing,
	}

	// Start pprof server if enabled
	if cfg.Common.Debug.EnablePprof {
		srv, err := startPprofServer(cfg.Common.Debug.PprofPort, logger)
		if err != nil {
			logger.Error("Failed to start pprof server", zap.Error(err))
		} else {
			app.pprofServer = srv

			logger.Warn("pprof debugging endpoint enabled - this should not be used in production!")
		}
	}

	if opts.MetricsAddr != "" {
		srv, err := startMetricsServer(opts.MetricsAddr, logger)
		if err != nil {
			app.Cleanup(ctx)
			return nil, err
		}
		app.metricsServer = srv
	}

	return app, nil
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(ctx context.Context) {
	for _, server := range []*httpServer{s.metricsServer, s.pprofServer} {
		if server == nil {
			continue
		}
		if err := server.srv.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
		server.listener.Close()
	}

	// Close database connections
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Printf("Failed to close database connection: %v", err)
		}
	}

	// Close Redis connections after the components using them
	s.RedisManager.Close()

	// Flush spans before the logger goes away
	if err := s.shutdownTracing(ctx); err != nil {
		log.Printf("Failed to shutdown tracing: %v", err)
	}

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}
}

// checkAndRunMigrations runs database migrations if needed.
func checkAndRunMigrations(ctx context.Context, cfg *config.CommonConfig, dbLogger *zap.Logger) (database.Client, error) {
	tempDB, err := database.NewConnection(ctx, &cfg.PostgreSQL, &cfg.Retry, dbLogger, false)
	if err != nil {
		return nil, err
	}

	migrator := migrate.NewMigrator(tempDB.DB(), migrations.Migrations)

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		tempDB.Close()
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}

	var db database.Client

	unapplied := ms.Unapplied()
	if len(unapplied) > 0 {
		log.Println("Database migrations are pending. Would you like to run them now? (y/N)")

		var response string

		_, _ = fmt.Scanln(&response)

		if response == "y" || response == "Y" {
			tempDB.Close()

			db, err = database.NewConnection(ctx, &cfg.PostgreSQL, &cfg.Retry, dbLogger, true)
		} else {
			log.Fatalf("Closing program due to incomplete migrations")
		}
	} else {
		db = tempDB
	}

	return db, err
}
