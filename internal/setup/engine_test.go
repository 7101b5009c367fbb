package setup_test

import (
	"testing"

	"github.com/onlyrealroles/ghostscore/internal/badge"
	"github.com/onlyrealroles/ghostscore/internal/setup"
	"github.com/onlyrealroles/ghostscore/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgeEngine(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		engine, err := setup.BadgeEngine(&config.Badges{})
		require.NoError(t, err)

		earned := engine.Evaluate(badge.Snapshot{Score: 9}, badge.Snapshot{Score: 10})
		assert.Equal(t, []string{"Whisp Whisperer"}, earned)
	})

	t.Run("override", func(t *testing.T) {
		t.Parallel()

		engine, err := setup.BadgeEngine(&config.Badges{Points: []config.PointBadge{
			{Score: 3, Badge: "Triple Take"},
			{Score: 1, Badge: "First Light"},
		}})
		require.NoError(t, err)

		earned := engine.Evaluate(badge.Snapshot{}, badge.Snapshot{Score: 10})
		assert.Equal(t, []string{"First Light", "Triple Take"}, earned)
	})

	t.Run("duplicate", func(t *testing.T) {
		t.Parallel()

		_, err := setup.BadgeEngine(&config.Badges{Points: []config.PointBadge{
			{Score: 3, Badge: "a"},
			{Score: 3, Badge: "b"},
		}})
		require.ErrorIs(t, err, badge.ErrDuplicateThreshold)
	})
}
