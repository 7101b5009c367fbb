package engine

import "github.com/onlyrealroles/ghostscore/internal/vote"

// Kind names the notification an engine call handles.
type Kind string

const (
	KindReportCreated Kind = "report_created"
	KindReportVote    Kind = "report_vote"
	KindPostVote      Kind = "post_vote"
)

// Outcome describes what handling a notification did.
type Outcome string

const (
	// OutcomeApplied means counters were changed and committed.
	OutcomeApplied Outcome = "applied"
	// OutcomeNoChange means the ledger already reflected the vote.
	OutcomeNoChange Outcome = "no_change"
	// OutcomeSkippedUnchanged means before and after were equivalent; no store access happened.
	OutcomeSkippedUnchanged Outcome = "skipped_unchanged"
	// OutcomeSkippedNoDelta means the transition did not cross valid and not valid; no store access happened.
	OutcomeSkippedNoDelta Outcome = "skipped_no_delta"
	// OutcomeSkippedMissingReference means the report or its owner no longer exists.
	OutcomeSkippedMissingReference Outcome = "skipped_missing_reference"
	// OutcomeSkippedSelfVote means the voter owns the report.
	OutcomeSkippedSelfVote Outcome = "skipped_self_vote"
	// OutcomeFailed is only used for metrics; callers get the error instead.
	OutcomeFailed Outcome = "failed"
)

// ReportCreated is delivered once per new ghost report.
type ReportCreated struct {
	ReportID string
	OwnerID  string
}

// ReportVoteWritten is delivered on create, update or delete of a vote on a
// report. A missing document on either side is an absent raw value.
type ReportVoteWritten struct {
	ReportID string
	VoterID  string
	Before   vote.Raw
	After    vote.Raw
}

// PostVoteWritten is delivered on create, update or delete of a vote on a network post.
type PostVoteWritten struct {
	PostID  string
	VoterID string
	Before  vote.Raw
	After   vote.Raw
}
