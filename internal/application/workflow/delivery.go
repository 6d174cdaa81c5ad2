package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/garyjia/demande-workflow/internal/domain/costing"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/event"
	"github.com/garyjia/demande-workflow/internal/domain/reconciliation"
	domainwf "github.com/garyjia/demande-workflow/internal/domain/workflow"
)

// pricingStates are the steps where unit prices are entered
var pricingStates = map[domainwf.State]bool{
	domainwf.StatePendingAppro:                 true,
	domainwf.StatePendingPreparationLogistique: true,
}

// RecordDelivery books one preparation batch. Delivered quantities are incremented
// atomically per item; once every item is complete the demande moves to reception.
func (e *engineImpl) RecordDelivery(ctx context.Context, demandeID, actorID string, in DeliveryInput) (*DeliveryResult, error) {
	var result *DeliveryResult

	d, err := e.run(ctx, demandeID, actorID, ActionPrepare, func(ac *actionContext) error {
		d := ac.demande
		if d.Status != ac.def.Preparation {
			return domainwf.NewError(domainwf.KindInvalidTransition,
				"deliveries are recorded at %s, demande is %s", ac.def.Preparation, d.Status)
		}
		if err := requireAct(ac); err != nil {
			return err
		}
		if err := reconciliation.ValidateLines(ac.items, in.Lines); err != nil {
			return err
		}
		if in.AssigneeID != "" {
			if err := e.checkAssignee(ac, in.AssigneeID); err != nil {
				return err
			}
		}

		delivery := &entity.Delivery{
			ID:           uuid.NewString(),
			DemandeID:    d.ID,
			PreparedByID: ac.actor.ID,
			Status:       entity.DeliveryStatusPrepared,
			CreatedAt:    ac.now,
		}
		for _, line := range in.Lines {
			delivery.Lines = append(delivery.Lines, &entity.DeliveryLine{
				DeliveryID: delivery.ID,
				ItemID:     line.ItemID,
				Quantity:   line.Quantity,
			})
		}
		if err := e.repos.Deliveries.Create(ac.ctx, delivery); err != nil {
			return fmt.Errorf("failed to create delivery: %w", err)
		}

		byID := make(map[string]*entity.DemandeItem, len(ac.items))
		for _, item := range ac.items {
			byID[item.ID] = item
		}
		for _, line := range in.Lines {
			if err := e.repos.Items.IncrementDelivered(ac.ctx, line.ItemID, line.Quantity, ac.now); err != nil {
				return err
			}
			byID[line.ItemID].QuantityDelivered += line.Quantity
			byID[line.ItemID].UpdatedAt = ac.now
		}
		costing.Apply(d, ac.items, ac.now)

		complete := reconciliation.IsComplete(ac.items)
		ac.emit(event.TypeDeliveryRecorded, map[string]interface{}{
			event.KeyDeliveryID: delivery.ID,
			event.KeyComplete:   complete,
		})

		if !complete {
			if err := e.record(ac, entity.ActionPrepare, d.Status, d.Status, ""); err != nil {
				return err
			}
		} else {
			step := d.Status
			if in.AssigneeID != "" {
				d.DeliveryAssigneeID = in.AssigneeID
			}
			if err := e.transition(ac, domainwf.TriggerPrepare, entity.ActionPrepare, "", MachineInput{Complete: true}); err != nil {
				return err
			}
			if err := e.sign(ac, step, ""); err != nil {
				return err
			}
		}

		result = &DeliveryResult{
			Delivery:  delivery,
			Complete:  complete,
			Remaining: reconciliation.Remaining(ac.items),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Demande = d
	return result, nil
}

// checkAssignee verifies the proposed driver exists and holds the delivery role
func (e *engineImpl) checkAssignee(ac *actionContext, assigneeID string) error {
	u, err := e.repos.Users.GetByID(ac.ctx, assigneeID)
	if err != nil {
		return fmt.Errorf("failed to load assignee: %w", err)
	}
	if u == nil {
		return domainwf.NewError(domainwf.KindNotFound, "assignee %s not found", assigneeID)
	}
	if u.Role != domainwf.RoleResponsableLivreur {
		return domainwf.NewError(domainwf.KindValidationFailed, "assignee %s is not a delivery driver", assigneeID)
	}
	return nil
}

// SetPrices records unit prices and recomputes the remaining total cost
func (e *engineImpl) SetPrices(ctx context.Context, demandeID, actorID string, prices []PriceInput) (*PricingResult, error) {
	d, err := e.run(ctx, demandeID, actorID, "set_prices", func(ac *actionContext) error {
		d := ac.demande
		if !pricingStates[d.Status] || !ac.def.Contains(d.Status) {
			return domainwf.NewError(domainwf.KindInvalidTransition, "prices cannot be set while demande is %s", d.Status)
		}
		if err := requireAct(ac); err != nil {
			return err
		}
		if len(prices) == 0 {
			return domainwf.NewError(domainwf.KindValidationFailed, "no prices given")
		}

		byID := make(map[string]*entity.DemandeItem, len(ac.items))
		for _, item := range ac.items {
			byID[item.ID] = item
		}
		for _, p := range prices {
			item, ok := byID[p.ItemID]
			if !ok {
				return domainwf.NewError(domainwf.KindNotFound, "item %s is not part of this demande", p.ItemID)
			}
			if p.UnitPrice.IsNegative() {
				return domainwf.NewError(domainwf.KindValidationFailed, "unit price of item %s cannot be negative", p.ItemID)
			}
			if err := e.repos.Items.SetUnitPrice(ac.ctx, p.ItemID, p.UnitPrice, ac.now); err != nil {
				return fmt.Errorf("failed to set unit price: %w", err)
			}
			item.UnitPrice.Decimal = p.UnitPrice
			item.UnitPrice.Valid = true
			item.UpdatedAt = ac.now
		}

		costing.Apply(d, ac.items, ac.now)
		if err := e.record(ac, entity.ActionSetPrices, d.Status, d.Status, ""); err != nil {
			return err
		}

		ac.emit(event.TypeDemandePriced, map[string]interface{}{
			event.KeyTotalCost:      d.TotalCost.Decimal.String(),
			event.KeyBudgetExceeded: d.BudgetExceeded(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &PricingResult{Demande: d, BudgetExceeded: d.BudgetExceeded()}, nil
}
