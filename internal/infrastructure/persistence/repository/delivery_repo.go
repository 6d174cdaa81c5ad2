package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/infrastructure/persistence/sqlite"
)

// DeliveryRepository implements port.DeliveryRepository
type DeliveryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewDeliveryRepository creates a new delivery repository
func NewDeliveryRepository(db *sqlite.DB, logger *zap.Logger) port.DeliveryRepository {
	return &DeliveryRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a delivery and its lines in one transaction
func (r *DeliveryRepository) Create(ctx context.Context, d *entity.Delivery) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		exec := r.db.Executor(ctx)

		_, err := exec.ExecContext(ctx, `
			INSERT INTO deliveries (id, demande_id, prepared_by_id, status, created_at, received_at, received_by_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.DemandeID, d.PreparedByID, d.Status, timeValue(d.CreatedAt),
			nullTimeValue(d.ReceivedAt), d.ReceivedByID,
		)
		if err != nil {
			r.logger.Error("Failed to create delivery", zap.String("demande_id", d.DemandeID), zap.Error(err))
			return fmt.Errorf("failed to create delivery: %w", err)
		}

		for _, line := range d.Lines {
			line.DeliveryID = d.ID
			result, err := exec.ExecContext(ctx,
				`INSERT INTO delivery_lines (delivery_id, item_id, quantity) VALUES (?, ?, ?)`,
				line.DeliveryID, line.ItemID, line.Quantity,
			)
			if err != nil {
				return fmt.Errorf("failed to create delivery line: %w", err)
			}
			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}
			line.ID = id
		}
		return nil
	})
}

// GetByDemandeID retrieves the deliveries of a demande with their lines, oldest first
func (r *DeliveryRepository) GetByDemandeID(ctx context.Context, demandeID string) ([]*entity.Delivery, error) {
	exec := r.db.Executor(ctx)

	rows, err := exec.QueryContext(ctx, `
		SELECT id, demande_id, prepared_by_id, status, created_at, received_at, received_by_id
		FROM deliveries
		WHERE demande_id = ?
		ORDER BY created_at ASC, id ASC`, demandeID)
	if err != nil {
		r.logger.Error("Failed to get deliveries", zap.String("demande_id", demandeID), zap.Error(err))
		return nil, fmt.Errorf("failed to get deliveries: %w", err)
	}

	var deliveries []*entity.Delivery
	byID := make(map[string]*entity.Delivery)
	for rows.Next() {
		var d entity.Delivery
		var receivedAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.DemandeID, &d.PreparedByID, &d.Status, &d.CreatedAt, &receivedAt, &d.ReceivedByID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.CreatedAt = d.CreatedAt.UTC()
		d.ReceivedAt = timePtr(receivedAt)
		deliveries = append(deliveries, &d)
		byID[d.ID] = &d
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(deliveries) == 0 {
		return nil, nil
	}

	lines, err := exec.QueryContext(ctx, `
		SELECT l.id, l.delivery_id, l.item_id, l.quantity
		FROM delivery_lines l
		JOIN deliveries d ON d.id = l.delivery_id
		WHERE d.demande_id = ?
		ORDER BY l.id ASC`, demandeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery lines: %w", err)
	}
	defer lines.Close()

	for lines.Next() {
		var line entity.DeliveryLine
		if err := lines.Scan(&line.ID, &line.DeliveryID, &line.ItemID, &line.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan delivery line: %w", err)
		}
		if d, ok := byID[line.DeliveryID]; ok {
			d.Lines = append(d.Lines, &line)
		}
	}

	return deliveries, lines.Err()
}

// MarkReceived stamps every prepared delivery of a demande as received
func (r *DeliveryRepository) MarkReceived(ctx context.Context, demandeID, receiverID string, at time.Time) error {
	_, err := r.db.Executor(ctx).ExecContext(ctx, `
		UPDATE deliveries SET status = ?, received_at = ?, received_by_id = ?
		WHERE demande_id = ? AND status = ?`,
		entity.DeliveryStatusReceived, timeValue(at), receiverID, demandeID, entity.DeliveryStatusPrepared,
	)
	if err != nil {
		r.logger.Error("Failed to mark deliveries received", zap.String("demande_id", demandeID), zap.Error(err))
		return fmt.Errorf("failed to mark deliveries received: %w", err)
	}
	return nil
}

var _ port.DeliveryRepository = (*DeliveryRepository)(nil)
