package entity

import (
	"time"

	"github.com/garyjia/demande-workflow/internal/domain/workflow"
)

// History action constants
const (
	ActionCreate    = "create"
	ActionSubmit    = "submit"
	ActionValidate  = "validate"
	ActionReject    = "reject"
	ActionResubmit  = "resubmit"
	ActionModify    = "modify"
	ActionPrepare   = "prepare"
	ActionSetPrices = "set_prices"
	ActionReceive   = "receive"
	ActionDeliver   = "deliver"
	ActionConfirm   = "confirm"
	ActionClose     = "close"
	ActionArchive   = "archive"
	ActionSendBack  = "send_back"
)

// HistoryEntry is an append-only audit record of every action on a demande
type HistoryEntry struct {
	ID             int64          `json:"id"`
	DemandeID      string         `json:"demande_id"`
	ActorID        string         `json:"actor_id"`
	Action         string         `json:"action"`
	PreviousStatus workflow.State `json:"previous_status"`
	NewStatus      workflow.State `json:"new_status"`
	Comment        string         `json:"comment,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// ValidationSignature proves that an approval step was actually executed
type ValidationSignature struct {
	ID        int64          `json:"id"`
	DemandeID string         `json:"demande_id"`
	ActorID   string         `json:"actor_id"`
	Role      workflow.Role  `json:"role"`
	Status    workflow.State `json:"status"` // step that was signed
	Comment   string         `json:"comment,omitempty"`
	Token     string         `json:"token"`
	SignedAt  time.Time      `json:"signed_at"`
}
