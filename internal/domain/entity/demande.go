package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/demande-workflow/internal/domain/workflow"
)

// Demande is a material or tooling request travelling through the approval chain
type Demande struct {
	ID                    string               `json:"id"`
	Number                string               `json:"number,omitempty"` // DA-M-2025-0001, assigned on submit
	Type                  workflow.RequestType `json:"type"`
	Status                workflow.State       `json:"status"`
	PreviousStatus        workflow.State       `json:"previous_status,omitempty"` // set only while rejected
	CreatorID             string               `json:"creator_id"`
	ProjectID             string               `json:"project_id"`
	RejectionCount        int                  `json:"rejection_count"`
	DeliveryAssigneeID    string               `json:"delivery_assignee_id,omitempty"`
	Comment               string               `json:"comment,omitempty"`
	DesiredDate           *time.Time           `json:"desired_date,omitempty"`
	PlannedBudget         decimal.NullDecimal  `json:"planned_budget"`
	TotalCost             decimal.NullDecimal  `json:"total_cost"`
	CreatedAt             time.Time            `json:"created_at"`
	ModifiedAt            time.Time            `json:"modified_at"`
	SubmittedAt           *time.Time           `json:"submitted_at,omitempty"`
	PreparationEnteredAt  *time.Time           `json:"preparation_entered_at,omitempty"`
	FinancialEngagementAt *time.Time           `json:"financial_engagement_at,omitempty"`
	ClosedAt              *time.Time           `json:"closed_at,omitempty"`

	Items []*DemandeItem `json:"items,omitempty"`
}

// IsRejected returns true if the demande waits for a correction
func (d *Demande) IsRejected() bool {
	return d.Status == workflow.StateRejected
}

// IsDraft returns true if the demande has not been submitted yet
func (d *Demande) IsDraft() bool {
	return d.Status == workflow.StateDraft
}

// BudgetExceeded reports whether a known total cost goes over the planned budget
func (d *Demande) BudgetExceeded() bool {
	if !d.PlannedBudget.Valid || !d.TotalCost.Valid {
		return false
	}
	return d.TotalCost.Decimal.GreaterThan(d.PlannedBudget.Decimal)
}

// Clone returns a deep copy, items included
func (d *Demande) Clone() *Demande {
	if d == nil {
		return nil
	}
	c := *d
	c.DesiredDate = cloneTime(d.DesiredDate)
	c.SubmittedAt = cloneTime(d.SubmittedAt)
	c.PreparationEnteredAt = cloneTime(d.PreparationEnteredAt)
	c.FinancialEngagementAt = cloneTime(d.FinancialEngagementAt)
	c.ClosedAt = cloneTime(d.ClosedAt)
	if d.Items != nil {
		c.Items = make([]*DemandeItem, len(d.Items))
		for i, it := range d.Items {
			c.Items[i] = it.Clone()
		}
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
