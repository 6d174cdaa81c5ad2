// Package costing computes the remaining cost of a demande from its priced items.
package costing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/demande-workflow/internal/domain/entity"
)

// RemainingCost is unitPrice × max(0, target − delivered). Unpriced items cost nothing.
func RemainingCost(item *entity.DemandeItem) decimal.Decimal {
	if !item.UnitPrice.Valid {
		return decimal.Zero
	}
	return item.UnitPrice.Decimal.Mul(decimal.NewFromInt(item.Remaining()))
}

// Total sums the remaining cost of priced items. It is null while no item has a price.
func Total(items []*entity.DemandeItem) decimal.NullDecimal {
	total := decimal.Zero
	priced := false
	for _, item := range items {
		if !item.UnitPrice.Valid {
			continue
		}
		priced = true
		total = total.Add(RemainingCost(item))
	}
	if !priced {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(total)
}

// Apply recomputes the demande total from its items. The financial engagement date is
// stamped the first time the total becomes known and never moves afterwards.
func Apply(d *entity.Demande, items []*entity.DemandeItem, now time.Time) {
	d.TotalCost = Total(items)
	if d.TotalCost.Valid && d.FinancialEngagementAt == nil {
		at := now
		d.FinancialEngagementAt = &at
	}
}
