// Package workflow executes demande actions: it checks permissions, fires the demande
// state machine and persists status, history, signatures and quantities in one transaction.
package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/reconciliation"
	domainwf "github.com/garyjia/demande-workflow/internal/domain/workflow"
)

// Action is a user-facing workflow action
type Action string

const (
	ActionSubmit   Action = "submit"
	ActionValidate Action = "validate"
	ActionReject   Action = "reject"
	ActionResubmit Action = "resubmit"
	ActionPrepare  Action = "prepare"
	ActionReceive  Action = "receive"
	ActionDeliver  Action = "deliver"
	ActionConfirm  Action = "confirm"
	ActionClose    Action = "close"
	ActionArchive  Action = "archive"
	ActionSendBack Action = "send_back"
)

var validActions = map[Action]bool{
	ActionSubmit:   true,
	ActionValidate: true,
	ActionReject:   true,
	ActionResubmit: true,
	ActionPrepare:  true,
	ActionReceive:  true,
	ActionDeliver:  true,
	ActionConfirm:  true,
	ActionClose:    true,
	ActionArchive:  true,
	ActionSendBack: true,
}

// ParseAction converts a raw action name
func ParseAction(raw string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	if !validActions[a] {
		return "", domainwf.NewError(domainwf.KindValidationFailed, "unknown action %q", raw)
	}
	return a, nil
}

// ItemChange edits an existing item. Nil fields are left untouched.
type ItemChange struct {
	ItemID    string  `json:"item_id"`
	Quantity  *int64  `json:"quantity,omitempty"`
	ArticleID *string `json:"article_id,omitempty"`
	Comment   *string `json:"comment,omitempty"`
	Remove    bool    `json:"remove,omitempty"`
}

// NewItem adds an article line to a demande
type NewItem struct {
	ArticleID string `json:"article_id"`
	Quantity  int64  `json:"quantity"`
	Comment   string `json:"comment,omitempty"`
}

// Modification is a partial update of a demande. Every field it touches must be
// inside the actor's modification scope.
type Modification struct {
	Items       []ItemChange `json:"items,omitempty"`
	AddItems    []NewItem    `json:"add_items,omitempty"`
	Comment     *string      `json:"comment,omitempty"`
	DesiredDate *time.Time   `json:"desired_date,omitempty"`

	// PlannedBudget replaces the budget the total cost is compared against
	PlannedBudget *decimal.Decimal `json:"planned_budget,omitempty"`
}

// Required returns the capabilities the modification needs
func (m Modification) Required() domainwf.Scope {
	var s domainwf.Scope
	if len(m.AddItems) > 0 {
		s.Articles = true
	}
	for _, c := range m.Items {
		if c.Quantity != nil {
			s.Quantities = true
		}
		if c.ArticleID != nil || c.Remove {
			s.Articles = true
		}
		if c.Comment != nil {
			s.Comments = true
		}
	}
	if m.Comment != nil {
		s.Comments = true
	}
	if m.DesiredDate != nil {
		s.DesiredDate = true
	}
	if m.PlannedBudget != nil {
		s.Budget = true
	}
	return s
}

// IsEmpty reports whether the modification changes nothing
func (m Modification) IsEmpty() bool {
	return m.Required().IsEmpty()
}

// DeliveryInput is one preparation batch
type DeliveryInput struct {
	Lines []reconciliation.Line `json:"lines"`
	// AssigneeID is the delivery driver stamped on the demande when preparation completes
	AssigneeID string `json:"assignee_id,omitempty"`
}

// DeliveryResult reports the outcome of RecordDelivery
type DeliveryResult struct {
	Demande   *entity.Demande  `json:"demande"`
	Delivery  *entity.Delivery `json:"delivery"`
	Complete  bool             `json:"complete"`
	Remaining map[string]int64 `json:"remaining"`
}

// PriceInput sets the unit price of one item
type PriceInput struct {
	ItemID    string          `json:"item_id"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// PricingResult reports the outcome of SetPrices
type PricingResult struct {
	Demande        *entity.Demande `json:"demande"`
	BudgetExceeded bool            `json:"budget_exceeded"`
}

// ActionInput carries the optional arguments of Act
type ActionInput struct {
	Comment      string                `json:"comment,omitempty"`
	Modification *Modification         `json:"modification,omitempty"`
	Lines        []reconciliation.Line `json:"lines,omitempty"`
	AssigneeID   string                `json:"assignee_id,omitempty"`
}

// ActionResult is returned by Act. Delivery is set only for the prepare action.
type ActionResult struct {
	Demande  *entity.Demande `json:"demande"`
	Delivery *DeliveryResult `json:"delivery,omitempty"`
}

// Engine executes workflow actions on demandes. Every method runs in a single
// transaction and returns a *domainwf.Error on business failures.
type Engine interface {
	Submit(ctx context.Context, demandeID, actorID string) (*entity.Demande, error)
	Validate(ctx context.Context, demandeID, actorID, comment string) (*entity.Demande, error)
	Reject(ctx context.Context, demandeID, actorID, comment string) (*entity.Demande, error)
	Modify(ctx context.Context, demandeID, actorID string, mod Modification) (*entity.Demande, error)
	// Resubmit restores a rejected demande to the exact status it was rejected from
	Resubmit(ctx context.Context, demandeID, actorID string, mod *Modification, comment string) (*entity.Demande, error)
	Receive(ctx context.Context, demandeID, actorID, comment string) (*entity.Demande, error)
	Deliver(ctx context.Context, demandeID, actorID, comment string) (*entity.Demande, error)
	Confirm(ctx context.Context, demandeID, actorID, comment string) (*entity.Demande, error)
	Close(ctx context.Context, demandeID, actorID, comment string) (*entity.Demande, error)
	Archive(ctx context.Context, demandeID, actorID, comment string) (*entity.Demande, error)
	// SendBack is a superadmin repair moving a demande one step back along its chain
	SendBack(ctx context.Context, demandeID, actorID, comment string) (*entity.Demande, error)
	RecordDelivery(ctx context.Context, demandeID, actorID string, in DeliveryInput) (*DeliveryResult, error)
	SetPrices(ctx context.Context, demandeID, actorID string, prices []PriceInput) (*PricingResult, error)

	// Act dispatches a named action to the matching method
	Act(ctx context.Context, demandeID, actorID string, action Action, in ActionInput) (*ActionResult, error)
}
