package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/onlyrealroles/ghostscore/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// PostModel handles database operations for network post counters.
type PostModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewPost creates a PostModel with database access.
func NewPost(db *bun.DB, logger *zap.Logger) *PostModel {
	return &PostModel{
		db:     db,
		logger: logger.Named("db_post"),
	}
}

// IncrementVotes adds to a post's up and down counters in a single statement.
func (r *PostModel) IncrementVotes(ctx context.Context, postID string, up, down int64) error {
	post := &types.NetworkPost{
		ID:        postID,
		VotesUp:   up,
		VotesDown: down,
		UpdatedAt: time.Now(),
	}

	_, err := r.db.NewInsert().
		Model(post).
		On("CONFLICT (id) DO UPDATE").
		Set("votes_up = network_post.votes_up + EXCLUDED.votes_up").
		Set("votes_down = network_post.votes_down + EXCLUDED.votes_down").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to increment post votes: %w (postID=%s)", err, postID)
	}

	r.logger.Debug("Incremented post votes",
		zap.String("postID", postID),
		zap.Int64("up", up),
		zap.Int64("down", down))

	return nil
}

// GetPost retrieves a post's counters. A post that was never voted on has zero counters.
func (r *PostModel) GetPost(ctx context.Context, postID string) (*types.NetworkPost, error) {
	var post types.NetworkPost

	err := r.db.NewSelect().
		Model(&post).
		Where("id = ?", postID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &types.NetworkPost{ID: postID}, nil
		}
		return nil, fmt.Errorf("failed to get post: %w (postID=%s)", err, postID)
	}

	return &post, nil
}
