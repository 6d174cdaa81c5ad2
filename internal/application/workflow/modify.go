package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/demande-workflow/internal/domain/costing"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/event"
	domainwf "github.com/garyjia/demande-workflow/internal/domain/workflow"
)

// Validate checks a new item line
func (n NewItem) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.ArticleID, validation.Required),
		validation.Field(&n.Quantity, validation.Required, validation.Min(int64(1))),
	)
}

// Modify applies a partial update without changing status
func (e *engineImpl) Modify(ctx context.Context, demandeID, actorID string, mod Modification) (*entity.Demande, error) {
	return e.run(ctx, demandeID, actorID, "modify", func(ac *actionContext) error {
		if mod.IsEmpty() {
			return domainwf.NewError(domainwf.KindValidationFailed, "modification changes nothing")
		}
		if err := e.applyModification(ac, mod); err != nil {
			return err
		}
		status := ac.demande.Status
		if err := e.record(ac, entity.ActionModify, status, status, ""); err != nil {
			return err
		}
		ac.emit(event.TypeDemandeModified, nil)
		return nil
	})
}

// modificationRights resolves what the actor may change and whether quantity edits
// rewrite the requested quantity (owner edits) or the validated one (validator edits)
func modificationRights(ac *actionContext) (domainwf.Scope, bool, error) {
	d := ac.demande
	role := ac.actor.Role

	switch {
	case d.Status == domainwf.StateDraft:
		if ac.isCreator() || ac.isSuperadmin() {
			return domainwf.FullScope, true, nil
		}
	case d.Status == domainwf.StateRejected:
		if ac.isCreator() {
			return domainwf.FullScope, true, nil
		}
		if ac.isSuperadmin() || holdsRejected(ac) {
			return domainwf.ModificationScope(role, d.PreviousStatus), false, nil
		}
	case ac.def.Contains(d.Status) || d.Status == domainwf.StatePendingReception || d.Status == domainwf.StatePendingDelivery:
		if domainwf.CanAct(role, d.Status) {
			return domainwf.ModificationScope(role, d.Status), false, nil
		}
	default:
		return domainwf.Scope{}, false, domainwf.NewError(domainwf.KindInvalidTransition,
			"demande cannot be modified while %s", d.Status)
	}

	return domainwf.Scope{}, false, domainwf.NewError(domainwf.KindPermissionDenied,
		"role %s cannot modify this demande while %s", role, d.Status)
}

// applyModification checks the scope and writes the changes through the repositories
func (e *engineImpl) applyModification(ac *actionContext, mod Modification) error {
	scope, ownerEdit, err := modificationRights(ac)
	if err != nil {
		return err
	}
	if !scope.Allows(mod.Required()) {
		return domainwf.NewError(domainwf.KindPermissionDenied,
			"role %s may not change %s", ac.actor.Role, describeOutOfScope(scope, mod.Required()))
	}

	d := ac.demande
	// after preparation every item is fully delivered; quantities are settled
	settled := d.Status == domainwf.StatePendingReception || d.Status == domainwf.StatePendingDelivery
	if settled && len(mod.AddItems) > 0 {
		return domainwf.NewError(domainwf.KindValidationFailed, "items cannot be added once preparation is done")
	}

	byID := make(map[string]*entity.DemandeItem, len(ac.items))
	for _, item := range ac.items {
		byID[item.ID] = item
	}

	removed := make(map[string]bool)
	for _, change := range mod.Items {
		item, ok := byID[change.ItemID]
		if !ok {
			return domainwf.NewError(domainwf.KindNotFound, "item %s is not part of this demande", change.ItemID)
		}

		if change.Remove {
			if item.QuantityDelivered > 0 {
				return domainwf.NewError(domainwf.KindValidationFailed, "item %s already has deliveries", item.ID)
			}
			removed[item.ID] = true
			continue
		}

		if change.Quantity != nil {
			q := *change.Quantity
			if q <= 0 {
				return domainwf.NewError(domainwf.KindValidationFailed, "quantity for item %s must be positive", item.ID)
			}
			if q < item.QuantityDelivered {
				return domainwf.NewError(domainwf.KindValidationFailed,
					"quantity for item %s cannot go below the %d already delivered", item.ID, item.QuantityDelivered)
			}
			if settled && q > item.QuantityDelivered {
				return domainwf.NewError(domainwf.KindValidationFailed,
					"quantity for item %s cannot exceed the %d delivered once preparation is done", item.ID, item.QuantityDelivered)
			}
			if ownerEdit {
				item.QuantityRequested = q
				item.QuantityValidated = nil
			} else {
				item.QuantityValidated = &q
			}
		}
		if change.ArticleID != nil {
			article := strings.TrimSpace(*change.ArticleID)
			if article == "" {
				return domainwf.NewError(domainwf.KindValidationFailed, "article of item %s cannot be empty", item.ID)
			}
			if item.QuantityDelivered > 0 {
				return domainwf.NewError(domainwf.KindValidationFailed, "item %s already has deliveries", item.ID)
			}
			item.ArticleID = article
		}
		if change.Comment != nil {
			item.Comment = strings.TrimSpace(*change.Comment)
		}
		item.UpdatedAt = ac.now

		if err := e.repos.Items.Update(ac.ctx, item); err != nil {
			return fmt.Errorf("failed to update item: %w", err)
		}
	}

	kept := make([]*entity.DemandeItem, 0, len(ac.items)+len(mod.AddItems))
	for _, item := range ac.items {
		if !removed[item.ID] {
			kept = append(kept, item)
			continue
		}
		if err := e.repos.Items.Delete(ac.ctx, item.ID); err != nil {
			return fmt.Errorf("failed to delete item: %w", err)
		}
	}

	nextPosition := 0
	for _, item := range kept {
		if item.Position >= nextPosition {
			nextPosition = item.Position + 1
		}
	}
	for _, add := range mod.AddItems {
		if err := add.Validate(); err != nil {
			return validationError(err)
		}
		item := &entity.DemandeItem{
			ID:                uuid.NewString(),
			DemandeID:         d.ID,
			ArticleID:         strings.TrimSpace(add.ArticleID),
			QuantityRequested: add.Quantity,
			Comment:           strings.TrimSpace(add.Comment),
			Position:          nextPosition,
			CreatedAt:         ac.now,
			UpdatedAt:         ac.now,
		}
		if !ownerEdit {
			q := add.Quantity
			item.QuantityValidated = &q
		}
		if err := e.repos.Items.Create(ac.ctx, item); err != nil {
			return fmt.Errorf("failed to create item: %w", err)
		}
		nextPosition++
		kept = append(kept, item)
	}

	if len(kept) == 0 {
		return domainwf.NewError(domainwf.KindValidationFailed, "a demande needs at least one item")
	}
	ac.items = kept

	if mod.Comment != nil {
		d.Comment = strings.TrimSpace(*mod.Comment)
	}
	if mod.DesiredDate != nil {
		at := *mod.DesiredDate
		d.DesiredDate = &at
	}
	if mod.PlannedBudget != nil {
		if mod.PlannedBudget.IsNegative() {
			return domainwf.NewError(domainwf.KindValidationFailed, "planned budget must not be negative")
		}
		d.PlannedBudget = decimal.NewNullDecimal(*mod.PlannedBudget)
	}

	costing.Apply(d, ac.items, ac.now)
	return nil
}

func describeOutOfScope(have, want domainwf.Scope) string {
	var fields []string
	if want.Quantities && !have.Quantities {
		fields = append(fields, "quantities")
	}
	if want.Articles && !have.Articles {
		fields = append(fields, "articles")
	}
	if want.Comments && !have.Comments {
		fields = append(fields, "comments")
	}
	if want.DesiredDate && !have.DesiredDate {
		fields = append(fields, "desired date")
	}
	if want.Budget && !have.Budget {
		fields = append(fields, "planned budget")
	}
	return strings.Join(fields, ", ")
}

// validationError converts ozzo validation errors into a VALIDATION_FAILED error
func validationError(err error) error {
	var errs validation.Errors
	if errors.As(err, &errs) {
		return domainwf.NewError(domainwf.KindValidationFailed, "%s", errs.Error())
	}
	return domainwf.NewError(domainwf.KindValidationFailed, "%s", err.Error())
}
