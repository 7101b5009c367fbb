package setup

import (
	"fmt"

	"github.com/onlyrealroles/ghostscore/internal/badge"
	"github.com/onlyrealroles/ghostscore/internal/database/dbretry"
	"github.com/onlyrealroles/ghostscore/internal/database/memory"
	"github.com/onlyrealroles/ghostscore/internal/engine"
	"github.com/onlyrealroles/ghostscore/internal/setup/config"
)

// BadgeEngine builds the badge rules. Configured point badges replace the
// default ladder.
func BadgeEngine(cfg *config.Badges) (*badge.Engine, error) {
	if len(cfg.Points) == 0 {
		return badge.NewDefaultEngine(nil), nil
	}

	thresholds := make([]badge.Threshold, 0, len(cfg.Points))
	for _, p := range cfg.Points {
		thresholds = append(thresholds, badge.Threshold{Score: p.Score, Badge: p.Badge})
	}

	thresholds, err := badge.ValidateThresholds(thresholds)
	if err != nil {
		return nil, fmt.Errorf("invalid badge config: %w", err)
	}

	return badge.NewDefaultEngine(thresholds), nil
}

// Store returns the Postgres store, or a fresh in-memory one when the app was
// started without a database.
func (s *App) Store() engine.Store {
	if s.DB == nil {
		return memory.New(dbretry.PolicyFromConfig(&s.Config.Common.Retry))
	}

	return s.DB.Store()
}
