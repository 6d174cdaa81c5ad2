package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/demande-workflow/internal/application/dispatcher"
	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/event"
	"github.com/garyjia/demande-workflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DraftItem is one article line of a new draft
type DraftItem struct {
	ArticleID string `json:"article_id"`
	Quantity  int64  `json:"quantity"`
	Comment   string `json:"comment"`
}

// Validate checks the item line
func (i DraftItem) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.ArticleID, validation.Required, validation.Length(1, 64)),
		validation.Field(&i.Quantity, validation.Required, validation.Min(int64(1))),
	)
}

// CreateDraftInput carries everything needed to open a demande
type CreateDraftInput struct {
	CreatorID     string               `json:"-"`
	Type          workflow.RequestType `json:"type"`
	ProjectID     string               `json:"project_id"`
	Comment       string               `json:"comment"`
	DesiredDate   *time.Time           `json:"desired_date"`
	PlannedBudget *decimal.Decimal     `json:"planned_budget"`
	Items         []DraftItem          `json:"items"`
}

// Validate checks the draft payload
func (in CreateDraftInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.CreatorID, validation.Required),
		validation.Field(&in.Type, validation.Required, validation.In(workflow.TypeMaterial, workflow.TypeTooling)),
		validation.Field(&in.ProjectID, validation.Required),
		validation.Field(&in.Items, validation.Required),
		validation.Field(&in.PlannedBudget, validation.By(nonNegative)),
	)
}

func nonNegative(value interface{}) error {
	d, ok := value.(*decimal.Decimal)
	if !ok || d == nil {
		return nil
	}
	if d.IsNegative() {
		return validation.NewError("validation_negative", "must not be negative")
	}
	return nil
}

// DemandeService covers draft creation and the read side of demandes
type DemandeService interface {
	CreateDraft(ctx context.Context, in CreateDraftInput) (*entity.Demande, error)
	DeleteDraft(ctx context.Context, demandeID, actorID string) error
	Get(ctx context.Context, demandeID string) (*entity.Demande, error)
	List(ctx context.Context, filter port.DemandeFilter) ([]*entity.Demande, error)
	History(ctx context.Context, demandeID string) ([]*entity.HistoryEntry, error)
	Signatures(ctx context.Context, demandeID string) ([]*entity.ValidationSignature, error)
	Deliveries(ctx context.Context, demandeID string) ([]*entity.Delivery, error)
}

type demandeServiceImpl struct {
	repos      port.Repositories
	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	logger     Logger
	now        func() time.Time
}

// NewDemandeService creates a new DemandeService. disp may be nil.
func NewDemandeService(
	repos port.Repositories,
	txManager port.TransactionManager,
	disp dispatcher.Dispatcher,
	logger Logger,
) DemandeService {
	return &demandeServiceImpl{
		repos:      repos,
		txManager:  txManager,
		dispatcher: disp,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateDraft stores a new draft with its items. The number is assigned on submit.
func (s *demandeServiceImpl) CreateDraft(ctx context.Context, in CreateDraftInput) (*entity.Demande, error) {
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if err := in.Validate(); err != nil {
		return nil, workflow.NewError(workflow.KindValidationFailed, "%s", err.Error())
	}

	now := s.now()
	d := &entity.Demande{
		ID:          uuid.NewString(),
		Type:        in.Type,
		Status:      workflow.StateDraft,
		CreatorID:   in.CreatorID,
		ProjectID:   in.ProjectID,
		Comment:     strings.TrimSpace(in.Comment),
		DesiredDate: in.DesiredDate,
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	if in.PlannedBudget != nil {
		d.PlannedBudget = decimal.NewNullDecimal(*in.PlannedBudget)
	}
	for i, line := range in.Items {
		d.Items = append(d.Items, &entity.DemandeItem{
			ID:                uuid.NewString(),
			DemandeID:         d.ID,
			ArticleID:         strings.TrimSpace(line.ArticleID),
			QuantityRequested: line.Quantity,
			Comment:           strings.TrimSpace(line.Comment),
			Position:          i,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		creator, err := s.repos.Users.GetByID(txCtx, in.CreatorID)
		if err != nil {
			return fmt.Errorf("failed to load creator: %w", err)
		}
		if creator == nil {
			return workflow.NewError(workflow.KindPermissionDenied, "unknown user %s", in.CreatorID)
		}

		if err := s.repos.Demandes.Create(txCtx, d); err != nil {
			return err
		}
		for _, item := range d.Items {
			if err := s.repos.Items.Create(txCtx, item); err != nil {
				return err
			}
		}
		return s.repos.History.Create(txCtx, &entity.HistoryEntry{
			DemandeID: d.ID,
			ActorID:   creator.ID,
			Action:    entity.ActionCreate,
			NewStatus: workflow.StateDraft,
			Timestamp: now,
		})
	})
	if err != nil {
		if workflow.KindOf(err) == "" {
			s.logger.Error("Failed to create draft", "creator_id", in.CreatorID, "error", err)
		}
		return nil, err
	}

	s.logger.Info("Draft created", "demande_id", d.ID, "type", d.Type, "items", len(d.Items))

	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeDemandeCreated, d.ID, map[string]interface{}{
			event.KeyRequestType: d.Type.String(),
			event.KeyCreatorID:   d.CreatorID,
			event.KeyActorID:     d.CreatorID,
		}))
	}
	return d, nil
}

// DeleteDraft removes a draft that was never submitted
func (s *demandeServiceImpl) DeleteDraft(ctx context.Context, demandeID, actorID string) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		d, err := s.load(txCtx, demandeID)
		if err != nil {
			return err
		}
		actor, err := s.repos.Users.GetByID(txCtx, actorID)
		if err != nil {
			return fmt.Errorf("failed to load actor: %w", err)
		}
		if actor == nil || (actor.ID != d.CreatorID && !actor.Role.IsSuperadmin()) {
			return workflow.NewError(workflow.KindPermissionDenied, "only the creator may delete a draft")
		}
		if !d.IsDraft() {
			return workflow.NewError(workflow.KindInvalidTransition, "only drafts can be deleted, demande is %s", d.Status)
		}
		if err := s.repos.Demandes.Delete(txCtx, demandeID); err != nil {
			return err
		}
		s.logger.Info("Draft deleted", "demande_id", demandeID, "actor_id", actorID)
		return nil
	})
}

// Get returns a demande with its items
func (s *demandeServiceImpl) Get(ctx context.Context, demandeID string) (*entity.Demande, error) {
	d, err := s.load(ctx, demandeID)
	if err != nil {
		return nil, err
	}
	items, err := s.repos.Items.GetByDemandeID(ctx, demandeID)
	if err != nil {
		return nil, fmt.Errorf("get items: %w", err)
	}
	d.Items = items
	return d, nil
}

// List returns demandes without their items
func (s *demandeServiceImpl) List(ctx context.Context, filter port.DemandeFilter) ([]*entity.Demande, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repos.Demandes.List(ctx, filter)
}

func (s *demandeServiceImpl) History(ctx context.Context, demandeID string) ([]*entity.HistoryEntry, error) {
	if _, err := s.load(ctx, demandeID); err != nil {
		return nil, err
	}
	return s.repos.History.GetByDemandeID(ctx, demandeID)
}

func (s *demandeServiceImpl) Signatures(ctx context.Context, demandeID string) ([]*entity.ValidationSignature, error) {
	if _, err := s.load(ctx, demandeID); err != nil {
		return nil, err
	}
	return s.repos.Signatures.GetByDemandeID(ctx, demandeID)
}

func (s *demandeServiceImpl) Deliveries(ctx context.Context, demandeID string) ([]*entity.Delivery, error) {
	if _, err := s.load(ctx, demandeID); err != nil {
		return nil, err
	}
	return s.repos.Deliveries.GetByDemandeID(ctx, demandeID)
}

func (s *demandeServiceImpl) load(ctx context.Context, demandeID string) (*entity.Demande, error) {
	d, err := s.repos.Demandes.GetByID(ctx, demandeID)
	if err != nil {
		return nil, fmt.Errorf("get demande: %w", err)
	}
	if d == nil {
		return nil, workflow.NewError(workflow.KindNotFound, "demande %s not found", demandeID)
	}
	return d, nil
}
