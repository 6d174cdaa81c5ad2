package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// DemandeItem is one requested article line.
// QuantityValidated stays nil until a validator adjusts the quantity.
type DemandeItem struct {
	ID                string              `json:"id"`
	DemandeID         string              `json:"demande_id"`
	ArticleID         string              `json:"article_id"`
	QuantityRequested int64               `json:"quantity_requested"`
	QuantityValidated *int64              `json:"quantity_validated,omitempty"`
	QuantityDelivered int64               `json:"quantity_delivered"`
	UnitPrice         decimal.NullDecimal `json:"unit_price"`
	Comment           string              `json:"comment,omitempty"`
	Position          int                 `json:"position"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// TargetQuantity is the quantity deliveries must reach: validated, or requested when never adjusted
func (i *DemandeItem) TargetQuantity() int64 {
	if i.QuantityValidated != nil {
		return *i.QuantityValidated
	}
	return i.QuantityRequested
}

// Remaining returns the quantity still to deliver, never negative
func (i *DemandeItem) Remaining() int64 {
	r := i.TargetQuantity() - i.QuantityDelivered
	if r < 0 {
		return 0
	}
	return r
}

// IsComplete returns true once deliveries cover the target quantity
func (i *DemandeItem) IsComplete() bool {
	return i.QuantityDelivered >= i.TargetQuantity()
}

// Clone returns a copy that shares no pointers with i
func (i *DemandeItem) Clone() *DemandeItem {
	if i == nil {
		return nil
	}
	c := *i
	if i.QuantityValidated != nil {
		v := *i.QuantityValidated
		c.QuantityValidated = &v
	}
	return &c
}
