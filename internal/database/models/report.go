package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/onlyrealroles/ghostscore/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ErrReportNotFound is returned when a ghost report does not exist.
var ErrReportNotFound = errors.New("ghost report not found")

// ReportModel handles database operations for ghost reports.
type ReportModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewReport creates a ReportModel with database access.
func NewReport(db *bun.DB, logger *zap.Logger) *ReportModel {
	return &ReportModel{
		db:     db,
		logger: logger.Named("db_report"),
	}
}

// GetGhostReport retrieves a report by its ID.
func (r *ReportModel) GetGhostReport(ctx context.Context, reportID string) (*types.GhostReport, error) {
	var report types.GhostReport

	err := r.db.NewSelect().
		Model(&report).
		Where("id = ?", reportID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to get ghost report: %w (reportID=%s)", err, reportID)
	}

	return &report, nil
}

// CreateGhostReport inserts a report unless one with the same ID exists. An
// existing report keeps its owner.
func (r *ReportModel) CreateGhostReport(ctx context.Context, report *types.GhostReport) error {
	result, err := r.db.NewInsert().
		Model(report).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create ghost report: %w (reportID=%s)", err, report.ID)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		r.logger.Debug("Ghost report already exists", zap.String("reportID", report.ID))
	}

	return nil
}

// SaveGhostReport inserts a report or updates its owner.
func (r *ReportModel) SaveGhostReport(ctx context.Context, report *types.GhostReport) error {
	_, err := r.db.NewInsert().
		Model(report).
		On("CONFLICT (id) DO UPDATE").
		Set("uid = EXCLUDED.uid").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save ghost report: %w (reportID=%s)", err, report.ID)
	}

	r.logger.Debug("Saved ghost report",
		zap.String("reportID", report.ID),
		zap.String("ownerID", report.OwnerID))

	return nil
}
