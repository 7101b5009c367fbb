package vote_test

import (
	"encoding/json"
	"testing"

	"github.com/onlyrealroles/ghostscore/internal/database/types/enum"
	"github.com/onlyrealroles/ghostscore/internal/vote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  vote.Raw
		want enum.VoteValue
	}{
		{name: "absent", raw: vote.Absent(), want: enum.VoteValueUnset},
		{name: "code valid", raw: vote.Code(1), want: enum.VoteValueValid},
		{name: "code needs more", raw: vote.Code(0), want: enum.VoteValueNeedsMore},
		{name: "code invalid", raw: vote.Code(-1), want: enum.VoteValueInvalid},
		{name: "unknown code", raw: vote.Code(7), want: enum.VoteValueUnset},
		{name: "token valid", raw: vote.Token("valid"), want: enum.VoteValueValid},
		{name: "token needs more", raw: vote.Token("needs_more"), want: enum.VoteValueNeedsMore},
		{name: "token invalid", raw: vote.Token("invalid"), want: enum.VoteValueInvalid},
		{name: "token wrong case", raw: vote.Token("Valid"), want: enum.VoteValueUnset},
		{name: "numeric string", raw: vote.Token("1"), want: enum.VoteValueUnset},
		{name: "fractional", raw: vote.FromAny(0.5), want: enum.VoteValueUnset},
		{name: "bool", raw: vote.FromAny(true), want: enum.VoteValueUnset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, vote.Normalize(tt.raw))
		})
	}
}

func TestRawUnmarshalJSON(t *testing.T) {
	t.Parallel()

	var doc struct {
		Value vote.Raw `json:"value"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"value": 1}`), &doc))
	assert.Equal(t, enum.VoteValueValid, vote.Normalize(doc.Value))

	doc.Value = vote.Absent()
	require.NoError(t, json.Unmarshal([]byte(`{"value": "needs_more"}`), &doc))
	assert.Equal(t, enum.VoteValueNeedsMore, vote.Normalize(doc.Value))

	doc.Value = vote.Absent()
	require.NoError(t, json.Unmarshal([]byte(`{"value": {"nested": true}}`), &doc))
	assert.Equal(t, enum.VoteValueUnset, vote.Normalize(doc.Value))
	assert.False(t, doc.Value.IsAbsent())

	doc.Value = vote.Absent()
	require.NoError(t, json.Unmarshal([]byte(`{}`), &doc))
	assert.True(t, doc.Value.IsAbsent())
}

func TestFromDocument(t *testing.T) {
	t.Parallel()

	assert.True(t, vote.FromDocument(nil).IsAbsent())
	assert.Equal(t, enum.VoteValueInvalid, vote.Normalize(vote.FromDocument(map[string]any{"value": float64(-1)})))
	assert.Equal(t, enum.VoteValueValid, vote.Normalize(vote.FromDocument(map[string]any{"value": json.Number("1")})))
}

func TestNominalDelta(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(1), vote.NominalDelta(enum.VoteValueUnset, enum.VoteValueValid))
	assert.Equal(t, int64(-1), vote.NominalDelta(enum.VoteValueValid, enum.VoteValueNeedsMore))
	assert.Equal(t, int64(0), vote.NominalDelta(enum.VoteValueInvalid, enum.VoteValueNeedsMore))
	assert.Equal(t, int64(0), vote.NominalDelta(enum.VoteValueValid, enum.VoteValueValid))
}

func TestDirectionDeltas(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		before, after vote.Raw
		up, down      int64
	}{
		{name: "new upvote", before: vote.Absent(), after: vote.Code(1), up: 1},
		{name: "new downvote", before: vote.Absent(), after: vote.Code(-1), down: 1},
		{name: "flip up to down", before: vote.Code(1), after: vote.Code(-1), up: -1, down: 1},
		{name: "retract downvote", before: vote.Code(-1), after: vote.Absent(), down: -1},
		{name: "neutral to neutral", before: vote.Code(0), after: vote.Absent()},
		{name: "tokens are neutral", before: vote.Absent(), after: vote.Token("valid")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			up, down := vote.DirectionDeltas(tt.before, tt.after)
			assert.Equal(t, tt.up, up)
			assert.Equal(t, tt.down, down)
		})
	}
}
