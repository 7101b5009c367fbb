package badge_test

import (
	"testing"

	"github.com/onlyrealroles/ghostscore/internal/badge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRule(t *testing.T) {
	t.Parallel()

	rule := badge.EventRule{Counter: badge.CounterApprovals, Boundary: 5, Badge: badge.FiveApprovals}

	assert.Equal(t, []string{badge.FiveApprovals},
		rule.Evaluate(badge.Snapshot{ApprovalsCount: 4}, badge.Snapshot{ApprovalsCount: 5}))
	assert.Empty(t, rule.Evaluate(badge.Snapshot{ApprovalsCount: 5}, badge.Snapshot{ApprovalsCount: 6}))
	assert.Empty(t, rule.Evaluate(badge.Snapshot{ApprovalsCount: 5}, badge.Snapshot{ApprovalsCount: 4}))
	assert.Empty(t, rule.Evaluate(badge.Snapshot{ApprovalsCount: 3}, badge.Snapshot{ApprovalsCount: 4}))
}

func TestThresholdRule(t *testing.T) {
	t.Parallel()

	rule := badge.ThresholdRule{Thresholds: badge.DefaultThresholds()}

	t.Run("single crossing", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []string{"Wraith Wrecker"},
			rule.Evaluate(badge.Snapshot{Score: 49}, badge.Snapshot{Score: 50}))
	})

	t.Run("already above", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, rule.Evaluate(badge.Snapshot{Score: 50}, badge.Snapshot{Score: 51}))
	})

	t.Run("downward never fires", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, rule.Evaluate(badge.Snapshot{Score: 50}, badge.Snapshot{Score: 49}))
	})

	t.Run("multiple crossings", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []string{"Whisp Whisperer", "Soul Saver", "Wraith Wrecker"},
			rule.Evaluate(badge.Snapshot{Score: 0}, badge.Snapshot{Score: 60}))
	})
}

func TestDefaultEngine(t *testing.T) {
	t.Parallel()

	engine := badge.NewDefaultEngine(nil)

	earned := engine.Evaluate(
		badge.Snapshot{Score: 9, ReportsCount: 0, ApprovalsCount: 4},
		badge.Snapshot{Score: 10, ReportsCount: 1, ApprovalsCount: 5},
	)
	assert.Equal(t, []string{badge.FirstReport, badge.FiveApprovals, "Whisp Whisperer"}, earned)

	assert.Empty(t, engine.Evaluate(
		badge.Snapshot{Score: 10, ReportsCount: 1, ApprovalsCount: 5},
		badge.Snapshot{Score: 10, ReportsCount: 2, ApprovalsCount: 5},
	))
}

func TestUnion(t *testing.T) {
	t.Parallel()

	existing := []string{"Revealer", "Soul Saver"}
	result := badge.Union(existing, "Soul Saver", "Wraith Wrecker", "", "Wraith Wrecker")

	assert.Equal(t, []string{"Revealer", "Soul Saver", "Wraith Wrecker"}, result)
	assert.Equal(t, []string{"Revealer", "Soul Saver"}, existing, "input must not be modified")
	assert.Empty(t, badge.Union(nil))
}

func TestValidateThresholds(t *testing.T) {
	t.Parallel()

	sorted, err := badge.ValidateThresholds([]badge.Threshold{
		{Score: 100, Badge: "b"},
		{Score: 10, Badge: "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), sorted[0].Score)

	_, err = badge.ValidateThresholds([]badge.Threshold{{Score: 0, Badge: "a"}})
	require.ErrorIs(t, err, badge.ErrInvalidThreshold)

	_, err = badge.ValidateThresholds([]badge.Threshold{{Score: 5, Badge: "a"}, {Score: 5, Badge: "b"}})
	require.ErrorIs(t, err, badge.ErrDuplicateThreshold)

	_, err = badge.ValidateThresholds([]badge.Threshold{{Score: 5}})
	require.ErrorIs(t, err, badge.ErrEmptyBadgeName)
}
