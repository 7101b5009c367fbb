package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/onlyrealroles/ghostscore/cmd/db/commands"
	"github.com/onlyrealroles/ghostscore/internal/database"
	"github.com/onlyrealroles/ghostscore/internal/database/migrations"
	"github.com/onlyrealroles/ghostscore/internal/setup"
	"github.com/onlyrealroles/ghostscore/internal/setup/config"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	// Setup dependencies
	deps, err := setupDependencies()
	if err != nil {
		return fmt.Errorf("failed to setup dependencies: %w", err)
	}
	defer deps.DB.Close()

	app := &cli.Command{
		Name:  "db",
		Usage: "Database management tool",
		Commands: slices.Concat(
			commands.MigrationCommands(deps),
			commands.AuditCommands(deps),
			commands.InspectCommands(deps),
		),
	}

	return app.Run(context.Background(), os.Args)
}

// setupDependencies initializes the database connection, migrator and badge rules.
func setupDependencies() (*commands.CLIDependencies, error) {
	// Load full configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Create development logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	badges, err := setup.BadgeEngine(&cfg.Worker.Badges)
	if err != nil {
		return nil, err
	}

	// Connect to database
	db, err := database.NewConnection(context.Background(), &cfg.Common.PostgreSQL, &cfg.Common.Retry, logger, false)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Create migrator using database connection and migrations
	migrator := migrate.NewMigrator(db.DB(), migrations.Migrations)

	return &commands.CLIDependencies{
		DB:       db,
		Migrator: migrator,
		Badges:   badges,
		Logger:   logger,
	}, nil
}
