package trigger

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/onlyrealroles/ghostscore/internal/engine"
	"github.com/onlyrealroles/ghostscore/internal/vote"
	"go.uber.org/zap"
)

// ownerField is the report document field that holds the owner's user ID.
const ownerField = "uid"

// Handler is the part of the engine the dispatcher calls.
type Handler interface {
	ReportCreated(ctx context.Context, ev engine.ReportCreated) (engine.Outcome, error)
	ReportVoteWritten(ctx context.Context, ev engine.ReportVoteWritten) (engine.Outcome, error)
	PostVoteWritten(ctx context.Context, ev engine.PostVoteWritten) (engine.Outcome, error)
}

// Dispatcher decodes notifications and routes them to the engine.
type Dispatcher struct {
	handler Handler
	logger  *zap.Logger
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(handler Handler, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handler: handler,
		logger:  logger.Named("dispatcher"),
	}
}

// Dispatch handles a single notification.
func (d *Dispatcher) Dispatch(ctx context.Context, n *Notification) (engine.Outcome, error) {
	switch n.Kind {
	case KindSubjectCreated:
		reportID, err := n.Param(ParamReportID)
		if err != nil {
			return "", err
		}

		return d.handler.ReportCreated(ctx, engine.ReportCreated{
			ReportID: reportID,
			OwnerID:  ownerOf(decodeDocument(n.After)),
		})

	case KindSubjectVoteWritten:
		reportID, err := n.Param(ParamReportID)
		if err != nil {
			return "", err
		}
		voterID, err := n.Param(ParamVoterID)
		if err != nil {
			return "", err
		}

		return d.handler.ReportVoteWritten(ctx, engine.ReportVoteWritten{
			ReportID: reportID,
			VoterID:  voterID,
			Before:   voteValue(n.Before),
			After:    voteValue(n.After),
		})

	case KindPostVoteWritten:
		postID, err := n.Param(ParamPostID)
		if err != nil {
			return "", err
		}

		return d.handler.PostVoteWritten(ctx, engine.PostVoteWritten{
			PostID:  postID,
			VoterID: n.Params[ParamUserID],
			Before:  voteValue(n.Before),
			After:   voteValue(n.After),
		})

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, n.Kind)
	}
}

// decodeDocument returns nil for an absent document. A body that is not a JSON
// object is treated as a present document with no fields.
func decodeDocument(raw []byte) map[string]any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var doc map[string]any
	if err := sonic.Unmarshal(raw, &doc); err != nil || doc == nil {
		return map[string]any{}
	}
	return doc
}

func voteValue(raw []byte) vote.Raw {
	return vote.FromDocument(decodeDocument(raw))
}

func ownerOf(doc map[string]any) string {
	owner, _ := doc[ownerField].(string)
	return owner
}
