package enum

// VoteValue is the semantic classification of a raw vote field.
//
//go:generate go tool enumer -type=VoteValue -trimprefix=VoteValue -transform=snake
type VoteValue int

const (
	// VoteValueUnset covers a missing vote and any value we do not recognise.
	VoteValueUnset VoteValue = iota
	// VoteValueValid marks the report as a genuine sighting.
	VoteValueValid
	// VoteValueNeedsMore asks the author for more evidence.
	VoteValueNeedsMore
	// VoteValueInvalid rejects the report.
	VoteValueInvalid
)
