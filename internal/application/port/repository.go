package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/workflow"
)

// DemandeFilter narrows List results. Zero values match everything.
type DemandeFilter struct {
	Status    workflow.State
	Type      workflow.RequestType
	CreatorID string
	ProjectID string
	Limit     int
	Offset    int
}

// DemandeRepository defines persistence operations for Demande.
// GetByID returns (nil, nil) when the demande does not exist; Items are not loaded.
type DemandeRepository interface {
	Create(ctx context.Context, d *entity.Demande) error
	GetByID(ctx context.Context, id string) (*entity.Demande, error)
	Update(ctx context.Context, d *entity.Demande) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter DemandeFilter) ([]*entity.Demande, error)
	// ListStale returns demandes sitting in one of statuses since before the cutoff
	ListStale(ctx context.Context, statuses []workflow.State, before time.Time, limit int) ([]*entity.Demande, error)
}

// ItemRepository defines persistence operations for DemandeItem
type ItemRepository interface {
	Create(ctx context.Context, item *entity.DemandeItem) error
	GetByDemandeID(ctx context.Context, demandeID string) ([]*entity.DemandeItem, error)
	Update(ctx context.Context, item *entity.DemandeItem) error
	Delete(ctx context.Context, id string) error
	// IncrementDelivered adds qty to the delivered quantity in a single guarded statement.
	// It fails with an OVER_DELIVERY error when the result would exceed the target quantity.
	IncrementDelivered(ctx context.Context, itemID string, qty int64, at time.Time) error
	SetUnitPrice(ctx context.Context, itemID string, price decimal.Decimal, at time.Time) error
}

// DeliveryRepository defines persistence operations for Delivery and its lines
type DeliveryRepository interface {
	Create(ctx context.Context, d *entity.Delivery) error
	GetByDemandeID(ctx context.Context, demandeID string) ([]*entity.Delivery, error)
	// MarkReceived stamps every prepared delivery of a demande as received
	MarkReceived(ctx context.Context, demandeID, receiverID string, at time.Time) error
}

// HistoryRepository defines persistence operations for HistoryEntry
type HistoryRepository interface {
	Create(ctx context.Context, entry *entity.HistoryEntry) error
	GetByDemandeID(ctx context.Context, demandeID string) ([]*entity.HistoryEntry, error)
}

// SignatureRepository defines persistence operations for ValidationSignature
type SignatureRepository interface {
	Create(ctx context.Context, sig *entity.ValidationSignature) error
	GetByDemandeID(ctx context.Context, demandeID string) ([]*entity.ValidationSignature, error)
}

// SequenceRepository hands out demande numbers
type SequenceRepository interface {
	// Next atomically increments and returns the sequence of a request type for a year, starting at 1
	Next(ctx context.Context, t workflow.RequestType, year int) (int, error)
}

// UserDirectory resolves the role of any user id.
// GetByID returns (nil, nil) for unknown users.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
	ListByRole(ctx context.Context, role workflow.Role) ([]*entity.User, error)
}

// UserRepository is the writable side of the directory
type UserRepository interface {
	UserDirectory
	Upsert(ctx context.Context, u *entity.User) error
	List(ctx context.Context) ([]*entity.User, error)
}

// TransactionManager defines transaction operations
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repositories bundles every repository used by the application layer
type Repositories struct {
	Demandes   DemandeRepository
	Items      ItemRepository
	Deliveries DeliveryRepository
	History    HistoryRepository
	Signatures SignatureRepository
	Sequences  SequenceRepository
	Users      UserRepository
}
