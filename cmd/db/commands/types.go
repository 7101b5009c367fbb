package commands

import (
	"errors"

	"github.com/onlyrealroles/ghostscore/internal/badge"
	"github.com/onlyrealroles/ghostscore/internal/database"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

var (
	ErrNameRequired  = errors.New("NAME argument required")
	ErrOwnerRequired = errors.New("OWNER argument required")
	ErrPostRequired  = errors.New("POST argument required")
	ErrReportArgs    = errors.New("REPORT and OWNER arguments required")
)

// CLIDependencies holds the common dependencies needed by CLI commands.
type CLIDependencies struct {
	DB       database.Client
	Migrator *migrate.Migrator
	Badges   *badge.Engine
	Logger   *zap.Logger
}
