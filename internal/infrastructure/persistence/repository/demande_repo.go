package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/workflow"
	"github.com/garyjia/demande-workflow/internal/infrastructure/persistence/sqlite"
)

const demandeColumns = `id, number, type, status, previous_status, creator_id, project_id,
	rejection_count, delivery_assignee_id, comment, desired_date, planned_budget, total_cost,
	created_at, modified_at, submitted_at, preparation_entered_at, financial_engagement_at, closed_at`

// DemandeRepository implements port.DemandeRepository
type DemandeRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewDemandeRepository creates a new demande repository
func NewDemandeRepository(db *sqlite.DB, logger *zap.Logger) port.DemandeRepository {
	return &DemandeRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new demande
func (r *DemandeRepository) Create(ctx context.Context, d *entity.Demande) error {
	query := `INSERT INTO demandes (` + demandeColumns + `) VALUES (` + placeholders(19) + `)`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		d.ID,
		d.Number,
		d.Type,
		d.Status,
		d.PreviousStatus,
		d.CreatorID,
		d.ProjectID,
		d.RejectionCount,
		d.DeliveryAssigneeID,
		d.Comment,
		nullTimeValue(d.DesiredDate),
		d.PlannedBudget,
		d.TotalCost,
		timeValue(d.CreatedAt),
		timeValue(d.ModifiedAt),
		nullTimeValue(d.SubmittedAt),
		nullTimeValue(d.PreparationEnteredAt),
		nullTimeValue(d.FinancialEngagementAt),
		nullTimeValue(d.ClosedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create demande", zap.String("demande_id", d.ID), zap.Error(err))
		return fmt.Errorf("failed to create demande: %w", err)
	}
	return nil
}

// GetByID retrieves a demande without its items
func (r *DemandeRepository) GetByID(ctx context.Context, id string) (*entity.Demande, error) {
	query := `SELECT ` + demandeColumns + ` FROM demandes WHERE id = ?`

	d, err := scanDemande(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get demande by ID", zap.String("demande_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get demande: %w", err)
	}
	return d, nil
}

// Update rewrites every mutable column
func (r *DemandeRepository) Update(ctx context.Context, d *entity.Demande) error {
	query := `
		UPDATE demandes SET
			number = ?, status = ?, previous_status = ?, project_id = ?, rejection_count = ?,
			delivery_assignee_id = ?, comment = ?, desired_date = ?, planned_budget = ?, total_cost = ?,
			modified_at = ?, submitted_at = ?, preparation_entered_at = ?, financial_engagement_at = ?, closed_at = ?
		WHERE id = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		d.Number,
		d.Status,
		d.PreviousStatus,
		d.ProjectID,
		d.RejectionCount,
		d.DeliveryAssigneeID,
		d.Comment,
		nullTimeValue(d.DesiredDate),
		d.PlannedBudget,
		d.TotalCost,
		timeValue(d.ModifiedAt),
		nullTimeValue(d.SubmittedAt),
		nullTimeValue(d.PreparationEnteredAt),
		nullTimeValue(d.FinancialEngagementAt),
		nullTimeValue(d.ClosedAt),
		d.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update demande", zap.String("demande_id", d.ID), zap.Error(err))
		return fmt.Errorf("failed to update demande: %w", err)
	}
	return requireRow(result, "demande", d.ID)
}

// Delete removes a demande; items, deliveries and history cascade
func (r *DemandeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM demandes WHERE id = ?`, id); err != nil {
		r.logger.Error("Failed to delete demande", zap.String("demande_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete demande: %w", err)
	}
	return nil
}

// List returns demandes matching filter, newest first
func (r *DemandeRepository) List(ctx context.Context, filter port.DemandeFilter) ([]*entity.Demande, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.CreatorID != "" {
		where = append(where, "creator_id = ?")
		args = append(args, filter.CreatorID)
	}
	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}

	query := `SELECT ` + demandeColumns + ` FROM demandes`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, filter.Offset)

	return r.query(ctx, "list demandes", query, args...)
}

// ListStale returns demandes left in one of statuses since before the cutoff, oldest first
func (r *DemandeRepository) ListStale(ctx context.Context, statuses []workflow.State, before time.Time, limit int) ([]*entity.Demande, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]interface{}, 0, len(statuses)+2)
	for _, s := range statuses {
		args = append(args, s)
	}
	if limit <= 0 {
		limit = -1
	}
	args = append(args, timeValue(before), limit)

	query := `SELECT ` + demandeColumns + ` FROM demandes
		WHERE status IN (` + placeholders(len(statuses)) + `) AND modified_at < ?
		ORDER BY modified_at ASC LIMIT ?`

	return r.query(ctx, "list stale demandes", query, args...)
}

func (r *DemandeRepository) query(ctx context.Context, what, query string, args ...interface{}) ([]*entity.Demande, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+what, zap.Error(err))
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}
	defer rows.Close()

	var out []*entity.Demande
	for rows.Next() {
		d, err := scanDemande(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan demande: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDemande(s scanner) (*entity.Demande, error) {
	var d entity.Demande
	var desired, submitted, preparation, engagement, closedAt sql.NullTime
	err := s.Scan(
		&d.ID,
		&d.Number,
		&d.Type,
		&d.Status,
		&d.PreviousStatus,
		&d.CreatorID,
		&d.ProjectID,
		&d.RejectionCount,
		&d.DeliveryAssigneeID,
		&d.Comment,
		&desired,
		&d.PlannedBudget,
		&d.TotalCost,
		&d.CreatedAt,
		&d.ModifiedAt,
		&submitted,
		&preparation,
		&engagement,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.ModifiedAt = d.ModifiedAt.UTC()
	d.DesiredDate = timePtr(desired)
	d.SubmittedAt = timePtr(submitted)
	d.PreparationEnteredAt = timePtr(preparation)
	d.FinancialEngagementAt = timePtr(engagement)
	d.ClosedAt = timePtr(closedAt)
	return &d, nil
}

// requireRow turns an update that touched nothing into a NOT_FOUND error
func requireRow(result sql.Result, what, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return workflow.NewError(workflow.KindNotFound, "%s %s not found", what, id)
	}
	return nil
}

var _ port.DemandeRepository = (*DemandeRepository)(nil)
