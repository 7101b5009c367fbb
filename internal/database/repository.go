package database

import (
	"github.com/onlyrealroles/ghostscore/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	report    *models.ReportModel
	ledger    *models.LedgerModel
	aggregate *models.AggregateModel
	post      *models.PostModel
	audit     *models.AuditModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		report:    models.NewReport(db, logger),
		ledger:    models.NewLedger(db, logger),
		aggregate: models.NewAggregate(db, logger),
		post:      models.NewPost(db, logger),
		audit:     models.NewAudit(db, logger),
	}
}

// Report returns the ghost report model repository.
func (r *Repository) Report() *models.ReportModel {
	return r.report
}

// Ledger returns the point ledger model repository.
func (r *Repository) Ledger() *models.LedgerModel {
	return r.ledger
}

// Aggregate returns the owner aggregate model repository.
func (r *Repository) Aggregate() *models.AggregateModel {
	return r.aggregate
}

// Post returns the network post model repository.
func (r *Repository) Post() *models.PostModel {
	return r.post
}

// Audit returns the audit model repository.
func (r *Repository) Audit() *models.AuditModel {
	return r.audit
}
