package vote

import "github.com/onlyrealroles/ghostscore/internal/database/types/enum"

// Normalize maps a raw vote field to its semantic value.
// It never fails: anything it does not recognise becomes VoteValueUnset.
func Normalize(r Raw) enum.VoteValue {
	switch r.kind {
	case rawCode:
		switch r.code {
		case 1:
			return enum.VoteValueValid
		case 0:
			return enum.VoteValueNeedsMore
		case -1:
			return enum.VoteValueInvalid
		}
	case rawToken:
		switch r.token {
		case "valid":
			return enum.VoteValueValid
		case "needs_more":
			return enum.VoteValueNeedsMore
		case "invalid":
			return enum.VoteValueInvalid
		}
	case rawAbsent, rawOther:
	}

	return enum.VoteValueUnset
}

// Contribution is 1 when the value counts toward the owner's score, 0 otherwise.
func Contribution(v enum.VoteValue) int64 {
	if v == enum.VoteValueValid {
		return 1
	}
	return 0
}

// NominalDelta is the score change implied by a before/after pair,
// before any ledger suppression.
func NominalDelta(before, after enum.VoteValue) int64 {
	return Contribution(after) - Contribution(before)
}

// Direction classifies a raw post vote as up (+1), down (-1) or neutral (0).
// Only integer codes count; post votes have no string tokens.
func Direction(r Raw) int64 {
	if r.kind != rawCode {
		return 0
	}

	switch r.code {
	case 1:
		return 1
	case -1:
		return -1
	default:
		return 0
	}
}

// DirectionDeltas returns the up and down counter changes for a post vote write.
func DirectionDeltas(before, after Raw) (up, down int64) {
	oldDir, newDir := Direction(before), Direction(after)

	up = boolToInt(newDir == 1) - boolToInt(oldDir == 1)
	down = boolToInt(newDir == -1) - boolToInt(oldDir == -1)
	return up, down
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
