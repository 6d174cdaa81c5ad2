package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/infrastructure/persistence/sqlite"
)

const historyColumns = "id, demande_id, actor_id, action, previous_status, new_status, comment, timestamp"

// HistoryRepository stores the append-only audit trail of workflow actions
type HistoryRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

func NewHistoryRepository(db *sqlite.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{db: db, logger: logger}
}

// Create appends entry and sets its ID
func (r *HistoryRepository) Create(ctx context.Context, entry *entity.HistoryEntry) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO demande_history (demande_id, actor_id, action, previous_status, new_status, comment, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.DemandeID, entry.ActorID, entry.Action, entry.PreviousStatus, entry.NewStatus, entry.Comment,
		timeValue(entry.Timestamp),
	)
	if err != nil {
		r.logger.Error("Failed to append history", zap.String("demande_id", entry.DemandeID),
			zap.String("action", entry.Action), zap.Error(err))
		return fmt.Errorf("failed to append history: %w", err)
	}
	if entry.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	return nil
}

// GetByDemandeID lists the trail oldest first. Insertion order is the
// tie-breaker for entries written in the same transaction.
func (r *HistoryRepository) GetByDemandeID(ctx context.Context, demandeID string) ([]*entity.HistoryEntry, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx,
		"SELECT "+historyColumns+" FROM demande_history WHERE demande_id = ? ORDER BY id", demandeID)
	if err != nil {
		r.logger.Error("Failed to read history", zap.String("demande_id", demandeID), zap.Error(err))
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer rows.Close()

	var trail []*entity.HistoryEntry
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		trail = append(trail, h)
	}
	return trail, rows.Err()
}

func scanHistory(s scanner) (*entity.HistoryEntry, error) {
	var h entity.HistoryEntry
	if err := s.Scan(&h.ID, &h.DemandeID, &h.ActorID, &h.Action, &h.PreviousStatus, &h.NewStatus, &h.Comment, &h.Timestamp); err != nil {
		return nil, fmt.Errorf("failed to scan history entry: %w", err)
	}
	h.Timestamp = h.Timestamp.UTC()
	return &h, nil
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)
