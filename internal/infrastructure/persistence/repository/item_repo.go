package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/workflow"
	"github.com/garyjia/demande-workflow/internal/infrastructure/persistence/sqlite"
)

// ItemRepository implements port.ItemRepository
type ItemRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewItemRepository creates a new demande item repository
func NewItemRepository(db *sqlite.DB, logger *zap.Logger) port.ItemRepository {
	return &ItemRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new item
func (r *ItemRepository) Create(ctx context.Context, item *entity.DemandeItem) error {
	query := `
		INSERT INTO demande_items (
			id, demande_id, article_id, quantity_requested, quantity_validated,
			quantity_delivered, unit_price, comment, position, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		item.ID,
		item.DemandeID,
		item.ArticleID,
		item.QuantityRequested,
		nullInt64Value(item.QuantityValidated),
		item.QuantityDelivered,
		item.UnitPrice,
		item.Comment,
		item.Position,
		timeValue(item.CreatedAt),
		timeValue(item.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create demande item", zap.String("demande_id", item.DemandeID), zap.Error(err))
		return fmt.Errorf("failed to create demande item: %w", err)
	}
	return nil
}

// GetByDemandeID retrieves the items of a demande in display order
func (r *ItemRepository) GetByDemandeID(ctx context.Context, demandeID string) ([]*entity.DemandeItem, error) {
	query := `
		SELECT id, demande_id, article_id, quantity_requested, quantity_validated,
			quantity_delivered, unit_price, comment, position, created_at, updated_at
		FROM demande_items
		WHERE demande_id = ?
		ORDER BY position ASC, created_at ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, demandeID)
	if err != nil {
		r.logger.Error("Failed to get demande items", zap.String("demande_id", demandeID), zap.Error(err))
		return nil, fmt.Errorf("failed to get demande items: %w", err)
	}
	defer rows.Close()

	var items []*entity.DemandeItem
	for rows.Next() {
		var item entity.DemandeItem
		var validated sql.NullInt64
		err := rows.Scan(
			&item.ID,
			&item.DemandeID,
			&item.ArticleID,
			&item.QuantityRequested,
			&validated,
			&item.QuantityDelivered,
			&item.UnitPrice,
			&item.Comment,
			&item.Position,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan demande item: %w", err)
		}
		item.QuantityValidated = int64Ptr(validated)
		item.CreatedAt = item.CreatedAt.UTC()
		item.UpdatedAt = item.UpdatedAt.UTC()
		items = append(items, &item)
	}

	return items, rows.Err()
}

// Update rewrites the editable columns. The delivered quantity only moves through IncrementDelivered.
func (r *ItemRepository) Update(ctx context.Context, item *entity.DemandeItem) error {
	query := `
		UPDATE demande_items SET
			article_id = ?, quantity_requested = ?, quantity_validated = ?,
			unit_price = ?, comment = ?, position = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		item.ArticleID,
		item.QuantityRequested,
		nullInt64Value(item.QuantityValidated),
		item.UnitPrice,
		item.Comment,
		item.Position,
		timeValue(item.UpdatedAt),
		item.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update demande item", zap.String("item_id", item.ID), zap.Error(err))
		return fmt.Errorf("failed to update demande item: %w", err)
	}
	return requireRow(result, "item", item.ID)
}

// Delete removes an item
func (r *ItemRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM demande_items WHERE id = ?`, id); err != nil {
		r.logger.Error("Failed to delete demande item", zap.String("item_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete demande item: %w", err)
	}
	return nil
}

// IncrementDelivered adds qty in one guarded statement so concurrent batches cannot overshoot the target
func (r *ItemRepository) IncrementDelivered(ctx context.Context, itemID string, qty int64, at time.Time) error {
	query := `
		UPDATE demande_items
		SET quantity_delivered = quantity_delivered + ?, updated_at = ?
		WHERE id = ? AND quantity_delivered + ? <= COALESCE(quantity_validated, quantity_requested)
	`

	exec := r.db.Executor(ctx)
	result, err := exec.ExecContext(ctx, query, qty, timeValue(at), itemID, qty)
	if err != nil {
		r.logger.Error("Failed to increment delivered quantity", zap.String("item_id", itemID), zap.Error(err))
		return fmt.Errorf("failed to increment delivered quantity: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var delivered, target int64
	err = exec.QueryRowContext(ctx,
		`SELECT quantity_delivered, COALESCE(quantity_validated, quantity_requested) FROM demande_items WHERE id = ?`,
		itemID,
	).Scan(&delivered, &target)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.NewError(workflow.KindNotFound, "item %s not found", itemID)
	}
	if err != nil {
		return fmt.Errorf("failed to load item %s: %w", itemID, err)
	}
	return workflow.NewError(workflow.KindOverDelivery,
		"item %s has %d of %d delivered, %d more would exceed it", itemID, delivered, target, qty)
}

// SetUnitPrice records the unit price of an item
func (r *ItemRepository) SetUnitPrice(ctx context.Context, itemID string, price decimal.Decimal, at time.Time) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`UPDATE demande_items SET unit_price = ?, updated_at = ? WHERE id = ?`,
		price.String(), timeValue(at), itemID,
	)
	if err != nil {
		r.logger.Error("Failed to set unit price", zap.String("item_id", itemID), zap.Error(err))
		return fmt.Errorf("failed to set unit price: %w", err)
	}
	return requireRow(result, "item", itemID)
}

var _ port.ItemRepository = (*ItemRepository)(nil)
