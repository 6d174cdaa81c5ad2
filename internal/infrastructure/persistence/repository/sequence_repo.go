package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/domain/workflow"
	"github.com/garyjia/demande-workflow/internal/infrastructure/persistence/sqlite"
)

// SequenceRepository implements port.SequenceRepository on demande_sequences
type SequenceRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository(db *sqlite.DB, logger *zap.Logger) port.SequenceRepository {
	return &SequenceRepository{
		db:     db,
		logger: logger,
	}
}

// Next increments and returns the counter in a single upsert
func (r *SequenceRepository) Next(ctx context.Context, t workflow.RequestType, year int) (int, error) {
	query := `
		INSERT INTO demande_sequences (type, year, value) VALUES (?, ?, 1)
		ON CONFLICT(type, year) DO UPDATE SET value = value + 1
		RETURNING value
	`

	var value int
	if err := r.db.Executor(ctx).QueryRowContext(ctx, query, t, year).Scan(&value); err != nil {
		r.logger.Error("Failed to allocate sequence", zap.String("type", t.String()), zap.Int("year", year), zap.Error(err))
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	return value, nil
}

var _ port.SequenceRepository = (*SequenceRepository)(nil)
