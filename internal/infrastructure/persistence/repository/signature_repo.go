package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/infrastructure/persistence/sqlite"
)

// SignatureRepository implements port.SignatureRepository
type SignatureRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewSignatureRepository creates a new validation signature repository
func NewSignatureRepository(db *sqlite.DB, logger *zap.Logger) port.SignatureRepository {
	return &SignatureRepository{
		db:     db,
		logger: logger,
	}
}

func (r *SignatureRepository) Create(ctx context.Context, sig *entity.ValidationSignature) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO validation_signatures (demande_id, actor_id, role, status, comment, token, signed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sig.DemandeID, sig.ActorID, sig.Role, sig.Status, sig.Comment, sig.Token, timeValue(sig.SignedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create signature", zap.String("demande_id", sig.DemandeID), zap.Error(err))
		return fmt.Errorf("failed to create signature: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	sig.ID = id
	return nil
}

func (r *SignatureRepository) GetByDemandeID(ctx context.Context, demandeID string) ([]*entity.ValidationSignature, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT id, demande_id, actor_id, role, status, comment, token, signed_at
		FROM validation_signatures
		WHERE demande_id = ?
		ORDER BY id ASC`, demandeID)
	if err != nil {
		r.logger.Error("Failed to get signatures", zap.String("demande_id", demandeID), zap.Error(err))
		return nil, fmt.Errorf("failed to get signatures: %w", err)
	}
	defer rows.Close()

	var sigs []*entity.ValidationSignature
	for rows.Next() {
		var s entity.ValidationSignature
		if err := rows.Scan(&s.ID, &s.DemandeID, &s.ActorID, &s.Role, &s.Status, &s.Comment, &s.Token, &s.SignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan signature: %w", err)
		}
		s.SignedAt = s.SignedAt.UTC()
		sigs = append(sigs, &s)
	}
	return sigs, rows.Err()
}

var _ port.SignatureRepository = (*SignatureRepository)(nil)
