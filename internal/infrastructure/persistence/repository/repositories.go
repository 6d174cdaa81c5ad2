package repository

import (
	"go.uber.org/zap"

	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/infrastructure/persistence/sqlite"
)

// NewRepositories builds every SQLite-backed repository on db
func NewRepositories(db *sqlite.DB, logger *zap.Logger) port.Repositories {
	return port.Repositories{
		Demandes:   NewDemandeRepository(db, logger),
		Items:      NewItemRepository(db, logger),
		Deliveries: NewDeliveryRepository(db, logger),
		History:    NewHistoryRepository(db, logger),
		Signatures: NewSignatureRepository(db, logger),
		Sequences:  NewSequenceRepository(db, logger),
		Users:      NewUserRepository(db, logger),
	}
}
