// Package reconciliation checks delivery lines against the quantities still owed on a demande.
package reconciliation

import (
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/workflow"
)

// Line is one requested delivery quantity for an item
type Line struct {
	ItemID   string `json:"item_id"`
	Quantity int64  `json:"quantity"`
}

// ValidateLines checks a delivery batch before anything is written.
// Lines for the same item are summed, so a batch can never overshoot in two halves.
func ValidateLines(items []*entity.DemandeItem, lines []Line) error {
	if len(lines) == 0 {
		return workflow.NewError(workflow.KindValidationFailed, "delivery has no lines")
	}

	byID := make(map[string]*entity.DemandeItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	batch := make(map[string]int64)
	for _, line := range lines {
		item, ok := byID[line.ItemID]
		if !ok {
			return workflow.NewError(workflow.KindNotFound, "item %s is not part of this demande", line.ItemID)
		}
		if line.Quantity <= 0 {
			return workflow.NewError(workflow.KindValidationFailed, "quantity for item %s must be positive", line.ItemID)
		}
		batch[line.ItemID] += line.Quantity
		if item.QuantityDelivered+batch[line.ItemID] > item.TargetQuantity() {
			return workflow.NewError(workflow.KindOverDelivery,
				"item %s: %d delivered + %d requested exceeds %d",
				line.ItemID, item.QuantityDelivered, batch[line.ItemID], item.TargetQuantity())
		}
	}
	return nil
}

// IsComplete is true when every item is fully delivered. An empty demande is never complete.
func IsComplete(items []*entity.DemandeItem) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !item.IsComplete() {
			return false
		}
	}
	return true
}

// Remaining returns the quantity still owed per item id
func Remaining(items []*entity.DemandeItem) map[string]int64 {
	out := make(map[string]int64, len(items))
	for _, item := range items {
		out[item.ID] = item.Remaining()
	}
	return out
}
